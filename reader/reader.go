// Package reader implements the SegmentReader component (C2): pulls one
// segment's raw visibilities and per-baseline (u,v,w) from the external
// ScanSource, rolls any wrapped spectral-window ordering into strictly
// increasing frequency order, downsamples in time/frequency, selects the
// configured channel slice, and casts (u,v,w) to the wavelength/sign
// convention the rest of the core expects (spec.md §4.2, §6).
package reader

import (
	"context"
	"fmt"
	"math"

	"github.com/skyburst/rtsearch"
)

const speedOfLightM = 2.99792458e8

// Config carries the SegmentReader's tunables (spec.md §6's `chans`,
// implicit `read_t_down`/`read_f_down`). Zero values mean "no
// downsampling"/"keep every channel".
type Config struct {
	ReadTDown int // block-average this many integrations together; default 1
	ReadFDown int // block-average this many raw channels together; default 1
	Chans     []int // channel indices to keep, applied after downsampling; nil means all
}

func (c Config) withDefaults() Config {
	if c.ReadTDown == 0 {
		c.ReadTDown = 1
	}
	if c.ReadFDown == 0 {
		c.ReadFDown = 1
	}
	return c
}

// Read pulls segment seg's raw visibilities and midpoint (u,v,w) from src,
// rolls/downsamples/selects them per Config, and writes the result into
// dst/dstUVW. dst must already be shaped [state.ReadInts, nBl, len(chans
// after selection), nPol]; callers size it from the same Config used here.
//
// read_ints is fixed to segment 0's span (spec.md §4.2) so every segment's
// VisBuffer has identical shape and is never reallocated.
func Read(ctx context.Context, cfg Config, src rtsearch.ScanSource, path string, scan int, meta rtsearch.ScanMetadata, state *rtsearch.PipelineState, seg int, dst *rtsearch.VisBuffer, dstUVW *rtsearch.UVWBuffer) error {
	cfg = cfg.withDefaults()

	window := state.SegmentTimes[seg]
	window0 := state.SegmentTimes[0]

	nSkip := int(math.Round(86400 * (window.StartMJD - meta.StartTimeMJD) / meta.IntegrationTimeS))
	readInts := int(math.Round(86400 * (window0.StopMJD - window0.StartMJD) / meta.IntegrationTimeS))

	raw, err := src.ReadVisibilities(ctx, path, scan, nSkip, readInts)
	if err != nil {
		return fmt.Errorf("reading segment %d: %w", seg, err)
	}

	nBl := meta.NBaselines()
	nChanRaw := meta.NChan()
	nPol := len(meta.Polarizations)

	rolled, err := rollSpws(raw, readInts, nBl, nChanRaw, nPol, meta.SpectralWindows)
	if err != nil {
		return err
	}

	down, tDown, nChanDown := downsample(rolled, readInts, nBl, nChanRaw, nPol, cfg.ReadTDown, cfg.ReadFDown)

	chans := cfg.Chans
	if chans == nil {
		chans = make([]int, nChanDown)
		for i := range chans {
			chans[i] = i
		}
	}

	selectChannels(down, tDown, nBl, nChanDown, nPol, chans, dst)

	u, v, w, err := src.ComputeUVW(ctx, path, scan, 0.5*(window.StartMJD+window.StopMJD))
	if err != nil {
		return fmt.Errorf("computing uvw for segment %d: %w", seg, err)
	}

	freq0Hz := orderedFreq0Hz(meta.SpectralWindows)
	castUVW(u, v, w, freq0Hz, dstUVW)

	return nil
}

// rollSpws detects spectral-window wrap and, if present, rolls the channel
// axis left by the number of channels preceding the wrap so reference
// frequencies become monotone. Exactly one negative jump is tolerated;
// more than one is SpwOrderAmbiguous.
func rollSpws(raw []complex64, nInts, nBl, nChan, nPol int, spws []rtsearch.SpectralWindow) ([]complex64, error) {
	wraps := 0
	wrapChan := 0
	chanOffset := 0
	for i, spw := range spws {
		if i > 0 && spw.RefFreqHz < spws[i-1].RefFreqHz {
			wraps++
			wrapChan = chanOffset
		}
		chanOffset += spw.NChan
	}
	if wraps == 0 {
		return raw, nil
	}
	if wraps > 1 {
		return nil, fmt.Errorf("%w: %d wraps across %d spectral windows", rtsearch.ErrSpwOrderAmbiguous, wraps, len(spws))
	}

	out := make([]complex64, len(raw))
	for t := 0; t < nInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for c := 0; c < nChan; c++ {
				srcChan := (c + wrapChan) % nChan
				for p := 0; p < nPol; p++ {
					dstIdx := ((t*nBl+bl)*nChan+c)*nPol + p
					srcIdx := ((t*nBl+bl)*nChan+srcChan)*nPol + p
					out[dstIdx] = raw[srcIdx]
				}
			}
		}
	}
	return out, nil
}

// downsample block-averages the time and frequency axes (mean of complex
// values over non-overlapping blocks; a trailing partial block is dropped,
// matching the teacher's reshape-and-mean idiom for block averaging).
func downsample(data []complex64, nInts, nBl, nChan, nPol, tDown, fDown int) ([]complex64, int, int) {
	if tDown <= 1 && fDown <= 1 {
		return data, nInts, nChan
	}

	outInts := nInts / tDown
	outChan := nChan / fDown
	out := make([]complex64, outInts*nBl*outChan*nPol)

	idx := func(t, bl, ch, p, nc int) int { return ((t*nBl+bl)*nc+ch)*nPol + p }

	for t := 0; t < outInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < outChan; ch++ {
				for p := 0; p < nPol; p++ {
					var sum complex64
					n := 0
					for dt := 0; dt < tDown; dt++ {
						for dc := 0; dc < fDown; dc++ {
							sum += data[idx(t*tDown+dt, bl, ch*fDown+dc, p, nChan)]
							n++
						}
					}
					out[idx(t, bl, ch, p, outChan)] = sum / complex(float32(n), 0)
				}
			}
		}
	}

	return out, outInts, outChan
}

// selectChannels copies the configured channel indices of data into dst,
// whose NChan must equal len(chans).
func selectChannels(data []complex64, nInts, nBl, nChan, nPol int, chans []int, dst *rtsearch.VisBuffer) {
	srcIdx := func(t, bl, ch, p int) int { return ((t*nBl+bl)*nChan+ch)*nPol + p }

	dst.Lock()
	defer dst.Unlock()
	for t := 0; t < nInts && t < dst.NInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for outCh, ch := range chans {
				for p := 0; p < nPol; p++ {
					dst.Set(t, bl, outCh, p, data[srcIdx(t, bl, ch, p)])
				}
			}
		}
	}
}

// orderedFreq0Hz returns freq_orig[0]: the reference frequency of the
// lowest-frequency spectral window, in Hz (spec.md §3, §6 sign convention).
func orderedFreq0Hz(spws []rtsearch.SpectralWindow) float64 {
	if len(spws) == 0 {
		return 0
	}
	min := spws[0].RefFreqHz
	for _, spw := range spws[1:] {
		if spw.RefFreqHz < min {
			min = spw.RefFreqHz
		}
	}
	return min
}

// castUVW converts metre (u,v,w) to wavelengths at freq0Hz with the -1
// sign convention (spec.md §3, §6): u_lambda = -u_m * freq0Hz / c.
func castUVW(u, v, w []float64, freq0Hz float64, dst *rtsearch.UVWBuffer) {
	scale := -freq0Hz / speedOfLightM
	for i := range u {
		dst.U[i] = float32(u[i] * scale)
		dst.V[i] = float32(v[i] * scale)
		dst.W[i] = float32(w[i] * scale)
	}
}
