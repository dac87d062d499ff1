package imaging

import "math"

// ClippedImageSigma iteratively sigma-clips image, alternately excluding
// pixels beyond nSigma standard deviations from the running mean and
// recomputing, until the standard deviation changes by less than tol
// between rounds or maxRounds is reached. Supplements spec.md's image1stats
// search type, following the original implementation's noise estimator
// rather than a single-pass std dev, which is biased high by a genuine
// transient's own flux.
func ClippedImageSigma(image []float64, nSigma float64, maxRounds int, tol float64) (mean, sigma float64) {
	active := append([]float64(nil), image...)

	mean, sigma = meanStd(active)
	for round := 0; round < maxRounds; round++ {
		kept := active[:0:0]
		for _, v := range active {
			if math.Abs(v-mean) <= nSigma*sigma {
				kept = append(kept, v)
			}
		}
		if len(kept) == 0 || len(kept) == len(active) {
			break
		}

		newMean, newSigma := meanStd(kept)
		active = kept

		if math.Abs(newSigma-sigma) < tol {
			mean, sigma = newMean, newSigma
			break
		}
		mean, sigma = newMean, newSigma
	}

	return mean, sigma
}

func meanStd(vals []float64) (mean, std float64) {
	if len(vals) == 0 {
		return 0, 0
	}
	for _, v := range vals {
		mean += v
	}
	mean /= float64(len(vals))

	for _, v := range vals {
		std += (v - mean) * (v - mean)
	}
	std = math.Sqrt(std / float64(len(vals)))
	return mean, std
}

// Peak locates the image's maximum pixel, breaking ties by preferring the
// lowest flattened index (smallest y, then smallest x).
func Peak(image []float64) (idx int, value float64) {
	value = math.Inf(-1)
	for i, v := range image {
		if v > value {
			value = v
			idx = i
		}
	}
	return idx, value
}

// ExceedsThreshold reports whether value lies at least sigmaThresh
// standard deviations (noise) above mean. Zero noise never passes.
func ExceedsThreshold(value, mean, noise, sigmaThresh float64) bool {
	if noise == 0 {
		return false
	}
	return (value-mean)/noise >= sigmaThresh
}

// PixelToLM converts a flattened pixel index to direction cosines (l, m),
// given the image is npixX x npixY with uvres wavelengths per (u,v) cell.
func PixelToLM(idx, npixX, npixY, uvres int) (l, m float64) {
	x := idx % npixX
	y := idx / npixX

	cellRad := 1.0 / (float64(npixX) * float64(uvres))
	cellRadY := 1.0 / (float64(npixY) * float64(uvres))

	l = float64(x-npixX/2) * cellRad
	m = float64(y-npixY/2) * cellRadY
	return l, m
}
