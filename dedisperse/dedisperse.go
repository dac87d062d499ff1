// Package dedisperse implements the Dedisperser component (C4): shifts
// each channel by its per-DM delay and block-averages dt consecutive
// integrations, fanning the baseline axis out across a worker pool.
package dedisperse

import (
	"context"
	"sync"

	"github.com/alitto/pond"

	"github.com/skyburst/rtsearch"
)

// Shift dedisperses src at the given per-channel delays (in integrations,
// channel-0-relative, as produced by planner.DataDelay) and writes the
// result into dst, which must have the same shape as src. Any sample whose
// shifted source index falls outside [0, NInts) is treated as zero.
func Shift(src, dst *rtsearch.VisBuffer, delay []int) {
	for bl := 0; bl < src.NBl; bl++ {
		for ch := 0; ch < src.NChan; ch++ {
			d := delay[ch]
			for pol := 0; pol < src.NPol; pol++ {
				for t := 0; t < src.NInts; t++ {
					srcT := t + d
					var v complex64
					if srcT >= 0 && srcT < src.NInts {
						v = src.At(srcT, bl, ch, pol)
					}
					dst.Set(t, bl, ch, pol, v)
				}
			}
		}
	}
}

// Resample block-averages dt consecutive integrations of src into dst,
// which must have NInts == src.NInts/dt (integer division; trailing
// samples that don't fill a full dt-block are dropped).
func Resample(src, dst *rtsearch.VisBuffer, dt int) {
	if dt <= 1 {
		dst.CopyFrom(src)
		return
	}

	nOut := src.NInts / dt
	scale := complex64(complex(1/float64(dt), 0))
	for bl := 0; bl < src.NBl; bl++ {
		for ch := 0; ch < src.NChan; ch++ {
			for pol := 0; pol < src.NPol; pol++ {
				for tOut := 0; tOut < nOut; tOut++ {
					var sum complex64
					for k := 0; k < dt; k++ {
						sum += src.At(tOut*dt+k, bl, ch, pol)
					}
					dst.Set(tOut, bl, ch, pol, sum*scale)
				}
			}
		}
	}
}

// ShiftResample dedisperses src at dm's delay and block-averages dt
// consecutive integrations in one pass, fanning baselines out across
// nWorkers pond workers (worker-pool-driven dedispersion fan-out). dst
// must be shaped [src.NInts/dt, NBl, NChan, NPol].
func ShiftResample(ctx context.Context, src, dst *rtsearch.VisBuffer, delay []int, dt, nWorkers int) error {
	if nWorkers < 1 {
		nWorkers = 1
	}
	nOut := src.NInts / dt
	scale := complex64(complex(1/float64(dt), 0))

	pool := pond.New(nWorkers, src.NBl, pond.MinWorkers(nWorkers), pond.Context(ctx))

	var mu sync.Mutex
	var firstErr error
	recordErr := func(err error) {
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}

	for blStart := 0; blStart < src.NBl; blStart++ {
		bl := blStart
		pool.Submit(func() {
			if ctx.Err() != nil {
				recordErr(ctx.Err())
				return
			}
			for ch := 0; ch < src.NChan; ch++ {
				d := delay[ch]
				for pol := 0; pol < src.NPol; pol++ {
					for tOut := 0; tOut < nOut; tOut++ {
						var sum complex64
						for k := 0; k < dt; k++ {
							srcT := tOut*dt + k + d
							if srcT >= 0 && srcT < src.NInts {
								sum += src.At(srcT, bl, ch, pol)
							}
						}
						dst.Set(tOut, bl, ch, pol, sum*scale)
					}
				}
			}
		})
	}

	pool.StopAndWait()
	return firstErr
}

// AllZero reports whether a buffer is entirely zero, taking its lock. The
// Engine uses it to skip searching an all-zero segment, and Search uses it
// to skip imaging an all-zero dedispersed cell.
func AllZero(buf *rtsearch.VisBuffer) bool {
	buf.Lock()
	defer buf.Unlock()
	return buf.AllZero()
}
