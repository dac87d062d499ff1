package imaging

import (
	"math"

	"github.com/skyburst/rtsearch"
)

// Detect images one (dm, dt, integration) cell per state.SearchType and
// returns the resulting candidate if its peak exceeds state.SigmaImage1 (and
// state.SigmaImage2 for the two-stage search types). ok is false when no
// detection clears threshold.
func Detect(buf *rtsearch.VisBuffer, uvw *rtsearch.UVWBuffer, state *rtsearch.PipelineState, key rtsearch.CandidateKey) (cand rtsearch.Candidate, ok bool) {
	grid := Grid(buf, uvw, state.Freq, state.UVRes, state.NPixX, state.NPixY, key.IntIndex)
	image1 := InverseFFT2D(grid, state.NPixX, state.NPixY)

	var mean, noise float64
	if state.SearchType == rtsearch.SearchImage1Stats {
		mean, noise = ClippedImageSigma(image1, 3.0, 10, 1e-6)
	} else {
		mean, noise = meanStd(image1)
	}

	idx, peak := Peak(image1)
	if !ExceedsThreshold(peak, mean, noise, state.SigmaImage1) {
		return rtsearch.Candidate{}, false
	}

	l1, m1 := PixelToLM(idx, state.NPixX, state.NPixY, state.UVRes)

	cand = rtsearch.Candidate{
		Key:    key,
		SNR1:   (peak - mean) / noise,
		Immax1: peak,
		L1:     l1,
		M1:     m1,
	}
	cand.Im40 = cutout(image1, state.NPixX, state.NPixY, idx, 40)

	switch state.SearchType {
	case rtsearch.SearchImage2, rtsearch.SearchImage2W:
		image2, l2, m2, peak2, mean2, noise2 := reimageFull(buf, uvw, state, key.IntIndex, l1, m1)
		if !ExceedsThreshold(peak2, mean2, noise2, state.SigmaImage2) {
			return rtsearch.Candidate{}, false
		}
		cand.SNR2 = (peak2 - mean2) / noise2
		cand.Immax2 = peak2
		cand.L2 = l2
		cand.M2 = m2
		_ = image2
	}

	cand.Spec20 = spectralCutout(buf, uvw, state.Freq, key.IntIndex, 20, l1, m1)
	cand.SpecStd, cand.SpecSkew, cand.SpecKurtosis = spectralStats(cand.Spec20)
	cand.ImSkew, cand.ImKurtosis = imageMoments(image1)

	return cand, true
}

// reimageFull re-images the whole integration on the full-resolution
// NPixXFull x NPixYFull grid (spec.md's two-stage search: image1 locates,
// image2 confirms at higher resolution). For image2w it grids a wProjected
// copy of uvw; Grid reads only u and v, so the image2w re-image is the same
// as the image2 one and no w-term correction is applied.
func reimageFull(buf *rtsearch.VisBuffer, uvw *rtsearch.UVWBuffer, state *rtsearch.PipelineState, tIdx int, l1, m1 float64) (image []float64, l2, m2, peak, mean, noise float64) {
	workUVW := uvw
	if state.SearchType == rtsearch.SearchImage2W {
		workUVW = wProjected(uvw, state.Freq, l1, m1)
	}

	grid := Grid(buf, workUVW, state.Freq, state.UVRes, state.NPixXFull, state.NPixYFull, tIdx)
	image = InverseFFT2D(grid, state.NPixXFull, state.NPixYFull)

	mean, noise = meanStd(image)
	idx, pk := Peak(image)
	l2, m2 = PixelToLM(idx, state.NPixXFull, state.NPixYFull, state.UVRes)

	return image, l2, m2, pk, mean, noise
}

// wProjected returns a copy of uvw with every baseline's w scaled by
// sqrt(1-l1^2-m1^2); u and v are copied unchanged.
func wProjected(uvw *rtsearch.UVWBuffer, freqGHz []float64, l1, m1 float64) *rtsearch.UVWBuffer {
	n := math.Sqrt(1-l1*l1-m1*m1) - 1
	out := rtsearch.NewUVWBuffer(len(uvw.U))
	for bl := range uvw.U {
		out.U[bl] = uvw.U[bl]
		out.V[bl] = uvw.V[bl]
		out.W[bl] = uvw.W[bl] * float32(1+n)
	}
	return out
}

// cutout extracts a size x size window of image centred on the flattened
// index idx, clipped to the image bounds.
func cutout(image []float64, npixX, npixY, idx, size int) [][]float32 {
	cx := idx % npixX
	cy := idx / npixX
	half := size / 2

	out := make([][]float32, 0, size)
	for y := cy - half; y < cy+half; y++ {
		if y < 0 || y >= npixY {
			continue
		}
		row := make([]float32, 0, size)
		for x := cx - half; x < cx+half; x++ {
			if x < 0 || x >= npixX {
				continue
			}
			row = append(row, float32(image[y*npixX+x]))
		}
		out = append(out, row)
	}
	return out
}

// spectralCutout extracts the candidate's visibility spectrum (up to width
// integrations centred on tIdx, every channel and polarization), phase-
// rotating each baseline/channel sample to (l1, m1) before averaging across
// baselines so an off-axis source combines coherently instead of averaging
// down to noise, then archives the per-integration, per-channel spectrum
// for later spectral-feature extraction.
func spectralCutout(buf *rtsearch.VisBuffer, uvw *rtsearch.UVWBuffer, freqGHz []float64, tIdx, width int, l1, m1 float64) [][][]complex64 {
	half := width / 2
	out := make([][][]complex64, 0, width)

	for t := tIdx - half; t < tIdx+half; t++ {
		if t < 0 || t >= buf.NInts {
			continue
		}
		chans := make([][]complex64, buf.NChan)
		for ch := 0; ch < buf.NChan; ch++ {
			pols := make([]complex64, buf.NPol)
			for pol := 0; pol < buf.NPol; pol++ {
				var sum complex64
				for bl := 0; bl < buf.NBl; bl++ {
					v := buf.At(t, bl, ch, pol)
					if v == 0 {
						continue
					}
					sum += rephaseSample(v, uvw, bl, freqGHz, ch, l1, m1)
				}
				pols[pol] = sum / complex64(complex(float64(buf.NBl), 0))
			}
			chans[ch] = pols
		}
		out = append(out, chans)
	}
	return out
}

// rephaseSample rotates a single baseline/channel visibility sample toward
// (l1, m1) using the same phase-gradient convention as
// conditioner.RephaseWithUVW, without mutating the buffer it was read from.
func rephaseSample(v complex64, uvw *rtsearch.UVWBuffer, bl int, freqGHz []float64, ch int, l1, m1 float64) complex64 {
	if l1 == 0 && m1 == 0 {
		return v
	}
	u, vv, w := float64(uvw.U[bl]), float64(uvw.V[bl]), float64(uvw.W[bl])
	n := -1.0 + math.Sqrt(1-l1*l1-m1*m1)
	scale := freqGHz[ch] / freqGHz[0]
	phase := -2 * math.Pi * scale * (u*l1 + vv*m1 + w*n)
	rot := complex64(complex(math.Cos(phase), math.Sin(phase)))
	return v * rot
}

func spectralStats(spec [][][]complex64) (std, skew, kurtosis float64) {
	mags := make([]float64, 0)
	for _, t := range spec {
		for _, ch := range t {
			for _, v := range ch {
				mags = append(mags, math.Hypot(float64(real(v)), float64(imag(v))))
			}
		}
	}
	return moments(mags)
}

func imageMoments(image []float64) (skew, kurtosis float64) {
	_, s, k := moments(image)
	return s, k
}

// moments returns the standard deviation, skewness, and excess kurtosis of
// vals.
func moments(vals []float64) (std, skew, kurtosis float64) {
	n := float64(len(vals))
	if n == 0 {
		return 0, 0, 0
	}

	var mean float64
	for _, v := range vals {
		mean += v
	}
	mean /= n

	var m2, m3, m4 float64
	for _, v := range vals {
		d := v - mean
		m2 += d * d
		m3 += d * d * d
		m4 += d * d * d * d
	}
	m2 /= n
	m3 /= n
	m4 /= n

	std = math.Sqrt(m2)
	if std == 0 {
		return std, 0, 0
	}
	skew = m3 / (std * std * std)
	kurtosis = m4/(m2*m2) - 3

	return std, skew, kurtosis
}
