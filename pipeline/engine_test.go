package pipeline

import (
	"context"
	"testing"

	"github.com/skyburst/rtsearch"
	"github.com/skyburst/rtsearch/backend"
	"github.com/skyburst/rtsearch/conditioner"
	"github.com/skyburst/rtsearch/planner"
	"github.com/skyburst/rtsearch/search"
)

func testMeta() rtsearch.ScanMetadata {
	return rtsearch.ScanMetadata{
		Filename:         "synthetic",
		ScanID:           1,
		SourceName:       "test-source",
		Antennas:         []string{"A1", "A2", "A3", "A4"},
		Polarizations:    []string{"RR"},
		DishDiameterM:    25,
		StartTimeMJD:     59000.0,
		IntegrationTimeS: 1.0,
		NIntegrations:    32,
		SpectralWindows: []rtsearch.SpectralWindow{
			{SPWID: 0, NChan: 8, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		},
	}
}

func TestEngineRunAllZeroProducesNoCandidates(t *testing.T) {
	meta := testMeta()
	state, err := planner.Plan(meta, planner.Config{MaxDM: 0})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	src := &backend.Synthetic{Meta: meta}
	engine := &Engine{
		Source:       src,
		Cal:          src,
		Meta:         meta,
		State:        state,
		CondConfig:   conditioner.Config{},
		SearchConfig: search.Config{NThread: 2, IntTimeS: meta.IntegrationTimeS},
	}

	results, err := engine.Run(context.Background())
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	for _, r := range results {
		if r.Candidates != 0 {
			t.Errorf("segment %d: got %d candidates from all-zero data, want 0", r.Segment, r.Candidates)
		}
	}
}

func TestEngineRunRespectsCancellation(t *testing.T) {
	meta := testMeta()
	meta.NIntegrations = 256
	state, err := planner.Plan(meta, planner.Config{MaxDM: 0, NSegments: 8})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	src := &backend.Synthetic{Meta: meta}
	engine := &Engine{
		Source:       src,
		Cal:          src,
		Meta:         meta,
		State:        state,
		SearchConfig: search.Config{NThread: 2, IntTimeS: meta.IntegrationTimeS},
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if _, err := engine.Run(ctx); err == nil {
		t.Error("expected an error from a pre-cancelled context")
	}
}
