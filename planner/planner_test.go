package planner

import (
	"errors"
	"math"
	"testing"

	"github.com/skyburst/rtsearch"
)

func testMeta() rtsearch.ScanMetadata {
	return rtsearch.ScanMetadata{
		Filename:   "test.ms",
		ScanID:     1,
		SourceName: "testsrc",
		SpectralWindows: []rtsearch.SpectralWindow{
			{SPWID: 0, NChan: 64, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		},
		Antennas:         []string{"ea01", "ea02", "ea03", "ea04"},
		Polarizations:    []string{"RR", "LL"},
		StartTimeMJD:     58849.0,
		IntegrationTimeS: 1.0,
		NIntegrations:    600,
		DishDiameterM:    25.0,
	}
}

func TestPlanSegmentSpanInvariant(t *testing.T) {
	meta := testMeta()
	cfg := Config{MaxDM: 100, MinDM: 0}

	state, err := Plan(meta, cfg)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	totalDuration := float64(meta.NIntegrations) * meta.IntegrationTimeS
	n := state.NSegments()
	got := float64(n)*SegmentSpanSeconds(n, totalDuration, state.TOverlapS) - float64(n-1)*state.TOverlapS

	if math.Abs(got-totalDuration) > 1e-6 {
		t.Errorf("segment span invariant violated: got %v want %v", got, totalDuration)
	}
}

func TestPlanDMGridMonotoneAndZeroIncluded(t *testing.T) {
	meta := testMeta()
	cfg := Config{MaxDM: 50, MinDM: 0}

	state, err := Plan(meta, cfg)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if state.DMArr[0] != 0 {
		t.Errorf("expected DM grid to start at MinDM=0, got %v", state.DMArr[0])
	}
	for i := 1; i < len(state.DMArr); i++ {
		if state.DMArr[i] <= state.DMArr[i-1] {
			t.Errorf("DM grid not strictly increasing at %d: %v <= %v", i, state.DMArr[i], state.DMArr[i-1])
		}
	}
}

func TestPlanNoDispersionGridIsZero(t *testing.T) {
	meta := testMeta()
	state, err := Plan(meta, Config{})
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(state.DMArr) != 1 || state.DMArr[0] != 0 {
		t.Errorf("expected trivial [0] DM grid when MaxDM unset, got %v", state.DMArr)
	}
}

func TestPlanSpwOrderAmbiguousOnMultipleWraps(t *testing.T) {
	meta := testMeta()
	meta.SpectralWindows = []rtsearch.SpectralWindow{
		{SPWID: 0, NChan: 32, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		{SPWID: 1, NChan: 32, RefFreqHz: 1.0e9, ChanWidthHz: 1e6},
		{SPWID: 2, NChan: 32, RefFreqHz: 1.6e9, ChanWidthHz: 1e6},
		{SPWID: 3, NChan: 32, RefFreqHz: 1.1e9, ChanWidthHz: 1e6},
	}

	_, err := Plan(meta, Config{})
	if !errors.Is(err, rtsearch.ErrSpwOrderAmbiguous) {
		t.Fatalf("expected ErrSpwOrderAmbiguous, got %v", err)
	}
}

func TestPlanInfeasibleUnderTightMemory(t *testing.T) {
	meta := testMeta()
	meta.NIntegrations = 10

	_, err := Plan(meta, Config{MaxDM: 100, MemoryLimitBytes: 1})
	if !errors.Is(err, rtsearch.ErrPlanInfeasible) {
		t.Fatalf("expected ErrPlanInfeasible, got %v", err)
	}
}

func TestImageGridIsPow2Pow3(t *testing.T) {
	npixX, npixY := ImageGrid(25, 5000, 5000, 1.0)
	for _, n := range []int{npixX, npixY} {
		v := n
		for v%2 == 0 {
			v /= 2
		}
		for v%3 == 0 {
			v /= 3
		}
		if v != 1 {
			t.Errorf("npix %d is not of the form 2^a*3^b", n)
		}
	}
}

func TestDataDelayZeroAtZeroDM(t *testing.T) {
	freq := []float64{1.3, 1.35, 1.4}
	if d := DataDelay(0, freq, 1.0); d != 0 {
		t.Errorf("expected zero delay at dm=0, got %d", d)
	}
}
