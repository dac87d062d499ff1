// Package conditioner implements the Conditioner component (C3): applies
// calibration, flags outlier visibilities, subtracts the mean in time, and
// optionally rephases the data to a secondary pointing.
package conditioner

import (
	"context"
	"fmt"
	"math"

	"github.com/samber/lo"

	"github.com/skyburst/rtsearch"
)

// Config carries the Conditioner's tunables (spec.md §6).
type Config struct {
	FlagSigma       float64 // default 5.0
	FlagMaxRounds   int     // default 3
	TimeSub         bool    // subtract the mean visibility across time, excluding zeros
	ExcludedBaselines []rtsearch.Baseline
	L1, M1          float64 // rephase direction cosines; zero means no rephasing
}

func (c Config) withDefaults() Config {
	if c.FlagSigma == 0 {
		c.FlagSigma = 5.0
	}
	if c.FlagMaxRounds == 0 {
		c.FlagMaxRounds = 3
	}
	return c
}

// NoiseStats is the per-segment noise journal the Conditioner emits, one
// entry per integration.
type NoiseStats struct {
	IntIndex   int
	NoisePerBl float64
	ZeroFrac   float64
}

// Condition applies calibration, flags bad data, and removes the time mean
// in place on buf. Baselines rejected wholesale via ExcludedBaselines are
// zeroed outright, following the original implementation's bad-baseline
// rejection (supplemented beyond spec.md's explicit calibration step).
// If calibration lookup fails, Condition degrades by proceeding with
// uncalibrated data and returns an error wrapping ErrCalibrationLoadFailed;
// the buffer is still flagged (and mean-subtracted when TimeSub is set), so
// callers may choose to continue the search with the uncalibrated buffer
// rather than abort the segment.
func Condition(ctx context.Context, cfg Config, meta rtsearch.ScanMetadata, cal rtsearch.Calibrator, freqGHz []float64, timeMJD float64, buf *rtsearch.VisBuffer) ([]NoiseStats, error) {
	cfg = cfg.withDefaults()
	buf.Lock()
	defer buf.Unlock()

	bls := meta.Baselines()
	excluded := excludedSet(cfg.ExcludedBaselines)

	freqsHz := make([]float64, len(freqGHz))
	for i, f := range freqGHz {
		freqsHz[i] = f * 1e9
	}

	var calErr error
	gains, err := cal.Select(ctx, timeMJD, freqsHz, bls, meta.Polarizations)
	if err != nil {
		calErr = fmt.Errorf("%w: %v", rtsearch.ErrCalibrationLoadFailed, err)
		gains = nil
	}

	zeroBaselines(buf, bls, excluded)
	if gains != nil {
		applyGains(buf, meta, bls, gains)
	}

	flagIterative(buf, cfg.FlagSigma, cfg.FlagMaxRounds)

	stats := noiseJournal(buf)

	if cfg.TimeSub {
		subtractTimeMean(buf)
	}

	if cfg.L1 != 0 || cfg.M1 != 0 {
		rephase(buf, bls, meta, freqGHz, cfg.L1, cfg.M1)
	}

	return stats, calErr
}

func excludedSet(bls []rtsearch.Baseline) map[rtsearch.Baseline]bool {
	set := make(map[rtsearch.Baseline]bool, len(bls))
	for _, b := range bls {
		set[b] = true
	}
	return set
}

// zeroBaselines zeroes every sample belonging to an excluded baseline,
// across all time, channel, and polarization.
func zeroBaselines(buf *rtsearch.VisBuffer, bls []rtsearch.Baseline, excluded map[rtsearch.Baseline]bool) {
	if len(excluded) == 0 {
		return
	}
	for blIdx, bl := range bls {
		if !excluded[bl] {
			continue
		}
		for t := 0; t < buf.NInts; t++ {
			for ch := 0; ch < buf.NChan; ch++ {
				for pol := 0; pol < buf.NPol; pol++ {
					buf.Set(t, blIdx, ch, pol, 0)
				}
			}
		}
	}
}

// applyGains multiplies each sample by the product of its two antennas'
// complex gains, zeroing any sample touched by a flagged gain.
func applyGains(buf *rtsearch.VisBuffer, meta rtsearch.ScanMetadata, bls []rtsearch.Baseline, gains map[rtsearch.AntChanPol]rtsearch.GainSample) {
	for blIdx, bl := range bls {
		for ch := 0; ch < buf.NChan; ch++ {
			for polIdx, pol := range meta.Polarizations {
				ga, okA := gains[rtsearch.AntChanPol{Ant: bl.A, Chan: ch, Pol: pol}]
				gb, okB := gains[rtsearch.AntChanPol{Ant: bl.B, Chan: ch, Pol: pol}]

				flagged := !okA || !okB || ga.Flagged || gb.Flagged
				product := complex64(1)
				if okA && okB {
					product = ga.Gain * cmplxConj(gb.Gain)
				}

				for t := 0; t < buf.NInts; t++ {
					if flagged {
						buf.Set(t, blIdx, ch, polIdx, 0)
						continue
					}
					buf.Set(t, blIdx, ch, polIdx, buf.At(t, blIdx, ch, polIdx)*product)
				}
			}
		}
	}
}

func cmplxConj(c complex64) complex64 {
	return complex(real(c), -imag(c))
}

// flagIterative applies sigma-clipped flagging across baseline/channel/pol
// slices in time, iterating until convergence or FlagMaxRounds, zeroing any
// sample whose magnitude exceeds sigma standard deviations from the mean.
func flagIterative(buf *rtsearch.VisBuffer, sigma float64, maxRounds int) {
	for round := 0; round < maxRounds; round++ {
		flaggedAny := false

		for bl := 0; bl < buf.NBl; bl++ {
			for ch := 0; ch < buf.NChan; ch++ {
				for pol := 0; pol < buf.NPol; pol++ {
					mags := make([]float64, 0, buf.NInts)
					for t := 0; t < buf.NInts; t++ {
						v := buf.At(t, bl, ch, pol)
						if v == 0 {
							continue
						}
						mags = append(mags, float64(cmplxAbs(v)))
					}
					if len(mags) < 2 {
						continue
					}

					mean, std := meanStd(mags)
					if std == 0 {
						continue
					}

					for t := 0; t < buf.NInts; t++ {
						v := buf.At(t, bl, ch, pol)
						if v == 0 {
							continue
						}
						if math.Abs(float64(cmplxAbs(v))-mean) > sigma*std {
							buf.Set(t, bl, ch, pol, 0)
							flaggedAny = true
						}
					}
				}
			}
		}

		if !flaggedAny {
			break
		}
	}
}

func cmplxAbs(v complex64) float32 {
	return float32(math.Hypot(float64(real(v)), float64(imag(v))))
}

func meanStd(vals []float64) (mean, std float64) {
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

// noiseJournal estimates, per integration, the noise level assumed to be
// signal-free on axis: for each baseline, channels and polarizations are
// averaged together and only the imaginary part is kept (the real part
// carries any on-axis calibrated signal, the imaginary part should not),
// then the per-baseline means are iteratively sigma-clipped and the
// standard deviation of the surviving values is taken as the noise
// estimate, following the original pipeline's estimate_noiseperbl.
func noiseJournal(buf *rtsearch.VisBuffer) []NoiseStats {
	stats := make([]NoiseStats, buf.NInts)

	for t := 0; t < buf.NInts; t++ {
		var n, zeros int
		blMeans := make([]float64, 0, buf.NBl)

		for bl := 0; bl < buf.NBl; bl++ {
			var sum float64
			var count int
			for ch := 0; ch < buf.NChan; ch++ {
				for pol := 0; pol < buf.NPol; pol++ {
					v := buf.At(t, bl, ch, pol)
					n++
					if v == 0 {
						zeros++
						continue
					}
					sum += float64(imag(v))
					count++
				}
			}
			if count > 0 {
				blMeans = append(blMeans, sum/float64(count))
			}
		}

		stats[t] = NoiseStats{
			IntIndex:   t,
			NoisePerBl: sigmaClippedStd(blMeans, 5.0, 3),
			ZeroFrac:   float64(zeros) / float64(lo.Max([]int{n, 1})),
		}
	}

	return stats
}

// sigmaClippedStd iteratively discards values more than sigma standard
// deviations from the mean, up to maxRounds times or until a round
// discards nothing, and returns the standard deviation of what remains.
func sigmaClippedStd(vals []float64, sigma float64, maxRounds int) float64 {
	kept := vals
	for round := 0; round < maxRounds && len(kept) > 1; round++ {
		mean, std := meanStd(kept)
		if std == 0 {
			break
		}
		next := make([]float64, 0, len(kept))
		for _, v := range kept {
			if math.Abs(v-mean) <= sigma*std {
				next = append(next, v)
			}
		}
		if len(next) == len(kept) {
			break
		}
		kept = next
	}
	if len(kept) == 0 {
		return 0
	}
	_, std := meanStd(kept)
	return std
}

// subtractTimeMean removes, per (baseline, channel, pol), the mean over all
// non-zero time samples.
func subtractTimeMean(buf *rtsearch.VisBuffer) {
	for bl := 0; bl < buf.NBl; bl++ {
		for ch := 0; ch < buf.NChan; ch++ {
			for pol := 0; pol < buf.NPol; pol++ {
				var sum complex64
				var n int
				for t := 0; t < buf.NInts; t++ {
					v := buf.At(t, bl, ch, pol)
					if v == 0 {
						continue
					}
					sum += v
					n++
				}
				if n == 0 {
					continue
				}
				mean := sum / complex64(complex(float64(n), 0))

				for t := 0; t < buf.NInts; t++ {
					v := buf.At(t, bl, ch, pol)
					if v == 0 {
						continue
					}
					buf.Set(t, bl, ch, pol, v-mean)
				}
			}
		}
	}
}

// rephase leaves buf unchanged: rephasing needs per-baseline (u, v, w),
// which Condition does not receive. The pipeline stage, which holds the
// per-segment UVWBuffer, rephases afterwards through RephaseWithUVW.
func rephase(buf *rtsearch.VisBuffer, bls []rtsearch.Baseline, meta rtsearch.ScanMetadata, freqGHz []float64, l1, m1 float64) {
	// No-op placeholder: concrete (u,v,w) is supplied by RephaseWithUVW.
}

// RephaseWithUVW rotates the phase centre to (l1, m1) using per-baseline
// (u, v, w) in wavelengths at channel 0, scaling the phase gradient by
// frequency per channel (spec.md's rephasing step, keyed off l1/m1).
func RephaseWithUVW(buf *rtsearch.VisBuffer, uvw *rtsearch.UVWBuffer, freqGHz []float64, l1, m1 float64) {
	if l1 == 0 && m1 == 0 {
		return
	}
	n := -1.0 + math.Sqrt(1-l1*l1-m1*m1)

	for bl := 0; bl < buf.NBl; bl++ {
		u, v, w := float64(uvw.U[bl]), float64(uvw.V[bl]), float64(uvw.W[bl])
		for ch := 0; ch < buf.NChan; ch++ {
			scale := freqGHz[ch] / freqGHz[0]
			phase := -2 * math.Pi * scale * (u*l1 + v*m1 + w*n)
			rot := complex64(complex(math.Cos(phase), math.Sin(phase)))

			for t := 0; t < buf.NInts; t++ {
				for pol := 0; pol < buf.NPol; pol++ {
					val := buf.At(t, bl, ch, pol)
					if val == 0 {
						continue
					}
					buf.Set(t, bl, ch, pol, val*rot)
				}
			}
		}
	}
}
