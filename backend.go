package rtsearch

import "context"

// ScanSource is the narrow external collaborator spec.md §6 describes:
// raw telescope-data file parsing lives outside the core and is reached
// only through this interface.
type ScanSource interface {
	// ReadMetadata returns the scan metadata for path/scan.
	ReadMetadata(ctx context.Context, path string, scan int) (ScanMetadata, error)

	// ReadVisibilities pulls read_ints integrations starting at nSkip and
	// returns them as a flattened [read_ints, n_bl, nchan, npol] complex64
	// tensor in the shape VisBuffer expects.
	ReadVisibilities(ctx context.Context, path string, scan, nSkip, readInts int) ([]complex64, error)

	// ComputeUVW returns per-baseline (u,v,w) in metres at time t (MJD).
	ComputeUVW(ctx context.Context, path string, scan int, tMJD float64) (u, v, w []float64, err error)
}

// GainSample is the per-(antenna, channel, polarization) calibration
// product: a complex gain and a flag.
type GainSample struct {
	Gain    complex64
	Flagged bool
}

// AntChanPol indexes a GainSample.
type AntChanPol struct {
	Ant  string
	Chan int
	Pol  string
}

// Calibrator is the narrow external collaborator for calibration-table
// parsing (spec.md §6). Two concrete backends exist outside the core
// (telescope-cal table, observatory gain+bandpass table); the core only
// ever calls Select.
type Calibrator interface {
	Select(ctx context.Context, timeMJD float64, freqsHz []float64, baselines []Baseline, pols []string) (map[AntChanPol]GainSample, error)
}
