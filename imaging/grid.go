// Package imaging implements the Imager component (C5): nearest-cell
// gridding, inverse FFT imaging, sigma thresholding, two-stage re-imaging,
// and candidate feature extraction.
package imaging

import (
	"github.com/skyburst/rtsearch"
)

// Grid bins one integration's visibilities across all baselines, channels,
// and polarizations onto an npixX x npixY complex128 (u,v) grid using
// nearest-cell assignment, per spec.md's gridding step. Each sample is
// gridded twice, at (u,v) and its Hermitian conjugate (-u,-v), since only
// one triangle of baselines is measured.
func Grid(buf *rtsearch.VisBuffer, uvw *rtsearch.UVWBuffer, freqGHz []float64, uvres int, npixX, npixY, tIdx int) []complex128 {
	grid := make([]complex128, npixX*npixY)

	cx, cy := npixX/2, npixY/2

	for bl := 0; bl < buf.NBl; bl++ {
		u0, v0 := float64(uvw.U[bl]), float64(uvw.V[bl])

		for ch := 0; ch < buf.NChan; ch++ {
			scale := freqGHz[ch] / freqGHz[0]
			u, v := u0*scale, v0*scale

			px := cx + int(roundHalfAwayFromZero(u/float64(uvres)))
			py := cy + int(roundHalfAwayFromZero(v/float64(uvres)))
			if px < 0 || px >= npixX || py < 0 || py >= npixY {
				continue
			}

			for pol := 0; pol < buf.NPol; pol++ {
				vis := buf.At(tIdx, bl, ch, pol)
				if vis == 0 {
					continue
				}
				c := complex(float64(real(vis)), float64(imag(vis)))
				grid[py*npixX+px] += c

				// Hermitian conjugate at (-u,-v)
				nx, ny := 2*cx-px, 2*cy-py
				if nx >= 0 && nx < npixX && ny >= 0 && ny < npixY {
					grid[ny*npixX+nx] += complex(real(c), -imag(c))
				}
			}
		}
	}

	return grid
}

func roundHalfAwayFromZero(x float64) float64 {
	if x >= 0 {
		return float64(int(x + 0.5))
	}
	return float64(int(x - 0.5))
}
