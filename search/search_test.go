package search

import (
	"context"
	"math"
	"testing"

	"github.com/skyburst/rtsearch"
	"github.com/skyburst/rtsearch/backend"
)

func testState() *rtsearch.PipelineState {
	return &rtsearch.PipelineState{
		Freq:        []float64{1.40, 1.41, 1.42, 1.43},
		DMArr:       []float64{0, 10},
		DtArr:       []int{1, 2},
		UVRes:       10,
		NPixX:       16,
		NPixY:       16,
		NPixXFull:   32,
		NPixYFull:   32,
		SigmaImage1: 7,
		SigmaImage2: 7,
		SearchType:  rtsearch.SearchImage1,
		Segment:     0,
	}
}

func TestSearchAllZeroProducesNoCandidates(t *testing.T) {
	const nBl, nInts = 6, 16
	state := testState()
	buf := rtsearch.NewVisBuffer(nInts, nBl, len(state.Freq), 1)
	uvw := rtsearch.NewUVWBuffer(nBl)
	for bl := 0; bl < nBl; bl++ {
		uvw.U[bl] = float32(bl+1) * 5
		uvw.V[bl] = float32(bl+1) * 3
	}

	cfg := Config{NThread: 2, IntTimeS: 1}
	cands, err := Search(context.Background(), cfg, state, buf, uvw)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}
	if len(cands) != 0 {
		t.Errorf("got %d candidates from all-zero data, want 0", len(cands))
	}
}

func TestSearchRespectsCancellation(t *testing.T) {
	const nBl, nInts = 4, 8
	state := testState()
	buf := rtsearch.NewVisBuffer(nInts, nBl, len(state.Freq), 1)
	uvw := rtsearch.NewUVWBuffer(nBl)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	cfg := Config{NThread: 2, IntTimeS: 1}
	_, err := Search(ctx, cfg, state, buf, uvw)
	if err == nil {
		t.Error("expected an error from a pre-cancelled context")
	}
}

func TestSearchIteratesFullDMDtGrid(t *testing.T) {
	const nBl, nInts = 4, 8
	state := testState()
	buf := rtsearch.NewVisBuffer(nInts, nBl, len(state.Freq), 1)
	for t := 0; t < nInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < len(state.Freq); ch++ {
				buf.Set(t, bl, ch, 0, complex64(complex(1, 0)))
			}
		}
	}
	uvw := rtsearch.NewUVWBuffer(nBl)
	for bl := 0; bl < nBl; bl++ {
		uvw.U[bl] = float32(bl+1) * 5
		uvw.V[bl] = float32(bl+1) * 3
	}

	cfg := Config{NThread: 2, IntTimeS: 1}
	if _, err := Search(context.Background(), cfg, state, buf, uvw); err != nil {
		t.Fatalf("Search: %v", err)
	}
}

// TestSearchCandidateKeysUnique exercises invariant 7 (spec.md §8): a
// constant-visibility segment is equivalent to a point source at the phase
// centre. With only six baselines its dirty-image peak is about 3 standard
// deviations, under SigmaImage1, so this search can return no candidates at
// all — the property under test is that no two detections share a
// CandidateKey, not how many are found.
func TestSearchCandidateKeysUnique(t *testing.T) {
	const nBl, nInts = 6, 16
	state := testState()
	buf := rtsearch.NewVisBuffer(nInts, nBl, len(state.Freq), 1)
	for t := 0; t < nInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < len(state.Freq); ch++ {
				buf.Set(t, bl, ch, 0, complex64(complex(10, 0)))
			}
		}
	}
	uvw := rtsearch.NewUVWBuffer(nBl)
	for bl := 0; bl < nBl; bl++ {
		uvw.U[bl] = float32(bl+1) * 5
		uvw.V[bl] = float32(bl+1) * 3
	}

	cfg := Config{NThread: 2, IntTimeS: 1}
	cands, err := Search(context.Background(), cfg, state, buf, uvw)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	seen := make(map[rtsearch.CandidateKey]bool, len(cands))
	for _, c := range cands {
		if seen[c.Key] {
			t.Fatalf("duplicate candidate key %+v", c.Key)
		}
		seen[c.Key] = true
	}
}

// TestSearchInjectedTransientDetected exercises end-to-end scenario (b):
// a dispersed pulse injected at a known DM is recovered by sweeping the
// (dm, dt) grid that includes the injected DM.
func TestSearchInjectedTransientDetected(t *testing.T) {
	const nAnt, nChan, nInts = 10, 16, 200
	freq := make([]float64, nChan)
	for c := range freq {
		freq[c] = 1.3 + 0.01*float64(c) // GHz, spanning ~1.3-1.45
	}

	meta := rtsearch.ScanMetadata{
		Antennas:      antNames(nAnt),
		Polarizations: []string{"RR"},
		SpectralWindows: []rtsearch.SpectralWindow{
			{NChan: nChan, RefFreqHz: freq[0] * 1e9, ChanWidthHz: (freq[1] - freq[0]) * 1e9},
		},
	}
	nBl := meta.NBaselines()
	inttimeS := 0.01

	const pulseT, dm, amp = 100, 50.0, 30.0
	gen := backend.InjectedTransient(meta, freq, inttimeS, dm, pulseT, 1, amp, nil)

	buf := rtsearch.NewVisBuffer(nInts, nBl, nChan, 1)
	for t := 0; t < nInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < nChan; ch++ {
				buf.Set(t, bl, ch, 0, gen(t, bl, ch, 0))
			}
		}
	}

	uvw := rtsearch.NewUVWBuffer(nBl)
	for bl := 0; bl < nBl; bl++ {
		uvw.U[bl] = float32(bl+1) * 20
		uvw.V[bl] = float32(bl+1) * 15
	}

	state := &rtsearch.PipelineState{
		Freq:        freq,
		DMArr:       []float64{0, 50, 100},
		DtArr:       []int{1},
		UVRes:       10,
		NPixX:       32,
		NPixY:       32,
		NPixXFull:   64,
		NPixYFull:   64,
		SigmaImage1: 6,
		SigmaImage2: 6,
		SearchType:  rtsearch.SearchImage1,
		Segment:     0,
	}

	cfg := Config{NThread: 2, IntTimeS: inttimeS}
	cands, err := Search(context.Background(), cfg, state, buf, uvw)
	if err != nil {
		t.Fatalf("Search: %v", err)
	}

	found := false
	for _, c := range cands {
		if c.Key.DMIndex == 1 && math.Abs(float64(c.Key.IntIndex-pulseT)) <= 1 {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected a candidate near (dm_idx=1, int=%d), got %+v", pulseT, cands)
	}
}

func antNames(n int) []string {
	names := make([]string, n)
	for i := range names {
		names[i] = string(rune('A' + i))
	}
	return names
}
