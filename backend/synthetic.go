package backend

import (
	"context"
	"math"
	"sort"

	"github.com/samber/lo"

	"github.com/skyburst/rtsearch"
)

// Synthetic is an in-memory ScanSource and Calibrator pair used by tests
// and the CLI's dry-run mode: visibilities and gains are generated on
// demand rather than parsed from a file.
type Synthetic struct {
	Meta rtsearch.ScanMetadata

	// Visibility generates the complex sample recorded at (t, baseline,
	// channel, pol). The default (nil) generates all zeros, exercising the
	// DataAllZero edge case.
	Visibility func(t, bl, ch, pol int) complex64

	// Gain generates the calibration product for an (antenna, channel,
	// polarization) triple. Nil means unity gain, unflagged.
	Gain func(ant string, ch int, pol string) rtsearch.GainSample

	// UVW generates (u, v, w) in metres for baseline bl at time tMJD. Nil
	// means all zero, i.e. a phased-up, non-rotating synthesis array.
	UVW func(bl int, tMJD float64) (u, v, w float64)
}

var _ rtsearch.ScanSource = (*Synthetic)(nil)
var _ rtsearch.Calibrator = (*Synthetic)(nil)

// ReadMetadata ignores path/scan and returns the configured ScanMetadata.
func (s *Synthetic) ReadMetadata(ctx context.Context, path string, scan int) (rtsearch.ScanMetadata, error) {
	return s.Meta, nil
}

// ReadVisibilities synthesises readInts integrations starting at nSkip as a
// flattened [readInts, n_bl, nchan, npol] complex64 tensor.
func (s *Synthetic) ReadVisibilities(ctx context.Context, path string, scan, nSkip, readInts int) ([]complex64, error) {
	nBl := s.Meta.NBaselines()
	nChan := s.Meta.NChan()
	nPol := len(s.Meta.Polarizations)

	out := make([]complex64, readInts*nBl*nChan*nPol)
	if s.Visibility == nil {
		return out, nil
	}

	idx := 0
	for t := 0; t < readInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < nChan; ch++ {
				for pol := 0; pol < nPol; pol++ {
					if ctx.Err() != nil {
						return nil, ctx.Err()
					}
					out[idx] = s.Visibility(nSkip+t, bl, ch, pol)
					idx++
				}
			}
		}
	}
	return out, nil
}

// ComputeUVW synthesises per-baseline (u,v,w) in metres at time t.
func (s *Synthetic) ComputeUVW(ctx context.Context, path string, scan int, tMJD float64) (u, v, w []float64, err error) {
	nBl := s.Meta.NBaselines()
	u = make([]float64, nBl)
	v = make([]float64, nBl)
	w = make([]float64, nBl)

	if s.UVW == nil {
		return u, v, w, nil
	}

	for bl := 0; bl < nBl; bl++ {
		u[bl], v[bl], w[bl] = s.UVW(bl, tMJD)
	}
	return u, v, w, nil
}

// Select returns the configured gain for every (antenna, channel,
// polarization) combination spanned by baselines and pols.
func (s *Synthetic) Select(ctx context.Context, timeMJD float64, freqsHz []float64, baselines []rtsearch.Baseline, pols []string) (map[rtsearch.AntChanPol]rtsearch.GainSample, error) {
	ants := lo.Uniq(append(lo.Map(baselines, func(b rtsearch.Baseline, _ int) string { return b.A }),
		lo.Map(baselines, func(b rtsearch.Baseline, _ int) string { return b.B })...))
	sort.Strings(ants)

	out := make(map[rtsearch.AntChanPol]rtsearch.GainSample, len(ants)*len(freqsHz)*len(pols))
	for _, ant := range ants {
		for ch := range freqsHz {
			for _, pol := range pols {
				key := rtsearch.AntChanPol{Ant: ant, Chan: ch, Pol: pol}
				if s.Gain == nil {
					out[key] = rtsearch.GainSample{Gain: 1, Flagged: false}
					continue
				}
				out[key] = s.Gain(ant, ch, pol)
			}
		}
	}
	return out, nil
}

// InjectedTransient returns a Visibility generator that adds a real top-hat
// pulse of the given amplitude and width widthInts, dispersed by dm: it
// starts at integration pulseT in the highest-frequency channel and later
// in lower channels by each channel's dispersion delay. Each sample starts
// from noise() when noise is non-nil, else from zero.
// Used by the end-to-end transient-injection test scenario.
func InjectedTransient(meta rtsearch.ScanMetadata, freqGHz []float64, inttimeS float64, dm float64, pulseT, widthInts int, amplitude float64, noise func() complex64) func(t, bl, ch, pol int) complex64 {
	const dispConstSI = 4.149e-3
	fmax := freqGHz[len(freqGHz)-1]

	delay := func(ch int) int {
		delaySeconds := dispConstSI * dm * (1/(freqGHz[ch]*freqGHz[ch]) - 1/(fmax*fmax))
		return int(math.Round(delaySeconds / inttimeS))
	}

	return func(t, bl, ch, pol int) complex64 {
		v := complex64(0)
		if noise != nil {
			v = noise()
		}
		shifted := t - delay(ch)
		if shifted >= pulseT && shifted < pulseT+widthInts {
			v += complex64(complex(amplitude, 0))
		}
		return v
	}
}
