package imaging

import (
	"gonum.org/v1/gonum/dsp/fourier"
)

// InverseFFT2D computes the 2-D inverse FFT of a gridded visibility plane
// shaped [npixY][npixX] (row-major, length npixX*npixY), returning the real
// part of the resulting image (the imaginary part is noise for a properly
// Hermitian-symmetric grid).
func InverseFFT2D(grid []complex128, npixX, npixY int) []float64 {
	rowFFT := fourier.NewCmplxFFT(npixX)
	colFFT := fourier.NewCmplxFFT(npixY)

	// inverse FFT each row
	rowTransformed := make([]complex128, npixX*npixY)
	rowBuf := make([]complex128, npixX)
	for y := 0; y < npixY; y++ {
		row := grid[y*npixX : (y+1)*npixX]
		rowFFT.Sequence(rowBuf, row)
		for x := 0; x < npixX; x++ {
			rowTransformed[y*npixX+x] = rowBuf[x] / complex(float64(npixX), 0)
		}
	}

	// inverse FFT each column
	colBuf := make([]complex128, npixY)
	colOut := make([]complex128, npixY)
	image := make([]float64, npixX*npixY)
	for x := 0; x < npixX; x++ {
		for y := 0; y < npixY; y++ {
			colBuf[y] = rowTransformed[y*npixX+x]
		}
		colFFT.Sequence(colOut, colBuf)
		for y := 0; y < npixY; y++ {
			image[y*npixX+x] = real(colOut[y]) / float64(npixY)
		}
	}

	return fftShift(image, npixX, npixY)
}

// fftShift reorders a DFT-convention image (zero-frequency cell at [0,0])
// into (l,m)-centre convention (zero-frequency cell at the image centre),
// matching the phase-centre offset the gridder assumed in Grid.
func fftShift(image []float64, npixX, npixY int) []float64 {
	out := make([]float64, len(image))
	cx, cy := npixX/2, npixY/2

	for y := 0; y < npixY; y++ {
		sy := (y + cy) % npixY
		for x := 0; x < npixX; x++ {
			sx := (x + cx) % npixX
			out[sy*npixX+sx] = image[y*npixX+x]
		}
	}
	return out
}
