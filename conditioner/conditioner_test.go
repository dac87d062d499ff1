package conditioner

import (
	"context"
	"testing"

	"github.com/skyburst/rtsearch"
)

type unityCal struct{}

func (unityCal) Select(ctx context.Context, timeMJD float64, freqsHz []float64, baselines []rtsearch.Baseline, pols []string) (map[rtsearch.AntChanPol]rtsearch.GainSample, error) {
	out := make(map[rtsearch.AntChanPol]rtsearch.GainSample)
	for _, bl := range baselines {
		for ch := range freqsHz {
			for _, pol := range pols {
				out[rtsearch.AntChanPol{Ant: bl.A, Chan: ch, Pol: pol}] = rtsearch.GainSample{Gain: 1}
				out[rtsearch.AntChanPol{Ant: bl.B, Chan: ch, Pol: pol}] = rtsearch.GainSample{Gain: 1}
			}
		}
	}
	return out, nil
}

func testMeta() rtsearch.ScanMetadata {
	return rtsearch.ScanMetadata{
		Antennas:      []string{"a", "b", "c"},
		Polarizations: []string{"RR"},
		SpectralWindows: []rtsearch.SpectralWindow{
			{NChan: 4, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		},
	}
}

func TestConditionAllZeroStaysZero(t *testing.T) {
	meta := testMeta()
	buf := rtsearch.NewVisBuffer(5, meta.NBaselines(), meta.NChan(), 1)

	stats, err := Condition(context.Background(), Config{}, meta, unityCal{}, []float64{1.4, 1.401, 1.402, 1.403}, 58849.0, buf)
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}
	if !buf.AllZero() {
		t.Errorf("expected buffer to remain all zero")
	}
	if len(stats) != 5 {
		t.Errorf("expected one noise stat per integration, got %d", len(stats))
	}
}

func TestExcludedBaselinesZeroed(t *testing.T) {
	meta := testMeta()
	buf := rtsearch.NewVisBuffer(2, meta.NBaselines(), meta.NChan(), 1)

	bls := meta.Baselines()
	for t := 0; t < buf.NInts; t++ {
		for bl := range bls {
			for ch := 0; ch < buf.NChan; ch++ {
				buf.Set(t, bl, ch, 0, complex64(complex(1, 1)))
			}
		}
	}

	cfg := Config{ExcludedBaselines: []rtsearch.Baseline{bls[0]}}
	_, err := Condition(context.Background(), cfg, meta, unityCal{}, []float64{1.4, 1.401, 1.402, 1.403}, 58849.0, buf)
	if err != nil {
		t.Fatalf("Condition: %v", err)
	}

	for t := 0; t < buf.NInts; t++ {
		for ch := 0; ch < buf.NChan; ch++ {
			if buf.At(t, 0, ch, 0) != 0 {
				t.Errorf("excluded baseline not zeroed at t=%d ch=%d", t, ch)
			}
		}
	}
}

func TestSubtractTimeMeanZeroesConstantSignal(t *testing.T) {
	meta := testMeta()
	buf := rtsearch.NewVisBuffer(4, meta.NBaselines(), meta.NChan(), 1)

	for t := 0; t < buf.NInts; t++ {
		for bl := 0; bl < buf.NBl; bl++ {
			for ch := 0; ch < buf.NChan; ch++ {
				buf.Set(t, bl, ch, 0, complex64(complex(3, -2)))
			}
		}
	}

	subtractTimeMean(buf)

	for t := 0; t < buf.NInts; t++ {
		for bl := 0; bl < buf.NBl; bl++ {
			for ch := 0; ch < buf.NChan; ch++ {
				if v := buf.At(t, bl, ch, 0); v != 0 {
					t.Errorf("expected constant signal to vanish after mean subtraction, got %v", v)
				}
			}
		}
	}
}
