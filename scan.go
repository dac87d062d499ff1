// Package rtsearch implements the core of a real-time transient search
// pipeline for radio interferometric visibility data: segmented dataflow,
// calibration/conditioning, dedispersion, imaging, and candidate emission.
package rtsearch

import "sort"

// SpectralWindow describes one correlator spectral window.
type SpectralWindow struct {
	SPWID       int
	NChan       int
	RefFreqHz   float64
	ChanWidthHz float64
}

// Baseline is an ordered antenna pair (A < B lexicographically).
type Baseline struct {
	A, B string
}

// ScanMetadata is immutable per scan, supplied by the external raw-data
// backend (see ScanSource).
type ScanMetadata struct {
	Filename          string
	ScanID            int
	SourceName        string
	PhaseCenterRA     float64 // radians
	PhaseCenterDec    float64 // radians
	SpectralWindows   []SpectralWindow
	Antennas          []string
	Polarizations     []string
	StartTimeMJD      float64
	IntegrationTimeS  float64
	NIntegrations     int
	DishDiameterM     float64
}

// NChan is the total channel count across all spectral windows.
func (s *ScanMetadata) NChan() int {
	n := 0
	for _, spw := range s.SpectralWindows {
		n += spw.NChan
	}
	return n
}

// Baselines returns the lexicographically ordered list of antenna pairs
// (i<j) implied by Antennas.
func (s *ScanMetadata) Baselines() []Baseline {
	ants := append([]string(nil), s.Antennas...)
	sort.Strings(ants)

	bls := make([]Baseline, 0, len(ants)*(len(ants)-1)/2)
	for i := 0; i < len(ants); i++ {
		for j := i + 1; j < len(ants); j++ {
			bls = append(bls, Baseline{A: ants[i], B: ants[j]})
		}
	}
	return bls
}

// NBaselines returns n_ants*(n_ants-1)/2.
func (s *ScanMetadata) NBaselines() int {
	n := len(s.Antennas)
	return n * (n - 1) / 2
}

// FreqsMonotone reports whether the concatenated spectral-window reference
// frequencies increase monotonically, and if not, the index of the single
// spw at which the wrap occurs (the spw following the negative jump).
func (s *ScanMetadata) FreqsMonotone() (monotone bool, wrapAt int) {
	for i := 1; i < len(s.SpectralWindows); i++ {
		if s.SpectralWindows[i].RefFreqHz < s.SpectralWindows[i-1].RefFreqHz {
			return false, i
		}
	}
	return true, -1
}
