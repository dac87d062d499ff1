package reader

import (
	"context"
	"math"
	"testing"

	"github.com/skyburst/rtsearch"
)

// fakeSource hands back a deterministic ramp of visibilities so the test
// can check indices survive rolling/downsampling/selection.
type fakeSource struct {
	nBl, nChan, nPol int
}

func (f fakeSource) ReadMetadata(ctx context.Context, path string, scan int) (rtsearch.ScanMetadata, error) {
	return rtsearch.ScanMetadata{}, nil
}

func (f fakeSource) ReadVisibilities(ctx context.Context, path string, scan, nSkip, readInts int) ([]complex64, error) {
	out := make([]complex64, readInts*f.nBl*f.nChan*f.nPol)
	idx := 0
	for t := 0; t < readInts; t++ {
		for bl := 0; bl < f.nBl; bl++ {
			for c := 0; c < f.nChan; c++ {
				for p := 0; p < f.nPol; p++ {
					out[idx] = complex(float32(c), 0)
					idx++
				}
			}
		}
	}
	return out, nil
}

func (f fakeSource) ComputeUVW(ctx context.Context, path string, scan int, t float64) (u, v, w []float64, err error) {
	u = make([]float64, f.nBl)
	v = make([]float64, f.nBl)
	w = make([]float64, f.nBl)
	for i := range u {
		u[i], v[i], w[i] = 1.0, 2.0, 3.0
	}
	return u, v, w, nil
}

func testState(readInts int) *rtsearch.PipelineState {
	return &rtsearch.PipelineState{
		SegmentTimes: []rtsearch.SegmentWindow{
			{StartMJD: 58849.0, StopMJD: 58849.0 + float64(readInts)*0.01/86400},
		},
		ReadInts: readInts,
	}
}

func testMeta() rtsearch.ScanMetadata {
	return rtsearch.ScanMetadata{
		StartTimeMJD:     58849.0,
		IntegrationTimeS: 0.01,
		Antennas:         []string{"a", "b", "c"},
		Polarizations:    []string{"RR"},
		SpectralWindows: []rtsearch.SpectralWindow{
			{SPWID: 0, NChan: 4, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		},
	}
}

func TestReadCastsUVWWithSignFlip(t *testing.T) {
	meta := testMeta()
	state := testState(4)
	src := fakeSource{nBl: meta.NBaselines(), nChan: 4, nPol: 1}

	dst := rtsearch.NewVisBuffer(4, meta.NBaselines(), 4, 1)
	dstUVW := rtsearch.NewUVWBuffer(meta.NBaselines())

	if err := Read(context.Background(), Config{}, src, "scan.ms", 0, meta, state, 0, dst, dstUVW); err != nil {
		t.Fatalf("Read: %v", err)
	}

	wantScale := -1.4e9 / speedOfLightM
	wantU := float32(1.0 * wantScale)
	if math.Abs(float64(dstUVW.U[0]-wantU)) > 1e-3 {
		t.Fatalf("u = %v, want %v", dstUVW.U[0], wantU)
	}
}

func TestReadRejectsAmbiguousSpwOrder(t *testing.T) {
	meta := testMeta()
	meta.SpectralWindows = []rtsearch.SpectralWindow{
		{SPWID: 2, NChan: 2, RefFreqHz: 1.6e9, ChanWidthHz: 1e6},
		{SPWID: 3, NChan: 2, RefFreqHz: 1.3e9, ChanWidthHz: 1e6},
		{SPWID: 0, NChan: 2, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		{SPWID: 1, NChan: 2, RefFreqHz: 1.1e9, ChanWidthHz: 1e6},
	}
	state := testState(2)
	src := fakeSource{nBl: meta.NBaselines(), nChan: 8, nPol: 1}

	dst := rtsearch.NewVisBuffer(2, meta.NBaselines(), 8, 1)
	dstUVW := rtsearch.NewUVWBuffer(meta.NBaselines())

	err := Read(context.Background(), Config{}, src, "scan.ms", 0, meta, state, 0, dst, dstUVW)
	if err == nil {
		t.Fatal("expected SpwOrderAmbiguous error")
	}
}

func TestReadRollsSingleWrap(t *testing.T) {
	meta := testMeta()
	meta.SpectralWindows = []rtsearch.SpectralWindow{
		{SPWID: 2, NChan: 2, RefFreqHz: 1.6e9, ChanWidthHz: 1e6},
		{SPWID: 3, NChan: 2, RefFreqHz: 1.7e9, ChanWidthHz: 1e6},
		{SPWID: 0, NChan: 2, RefFreqHz: 1.4e9, ChanWidthHz: 1e6},
		{SPWID: 1, NChan: 2, RefFreqHz: 1.5e9, ChanWidthHz: 1e6},
	}
	state := testState(1)
	src := fakeSource{nBl: 1, nChan: 8, nPol: 1}

	dst := rtsearch.NewVisBuffer(1, 1, 8, 1)
	dstUVW := rtsearch.NewUVWBuffer(1)

	if err := Read(context.Background(), Config{}, src, "scan.ms", 0, meta, state, 0, dst, dstUVW); err != nil {
		t.Fatalf("Read: %v", err)
	}

	dst.Lock()
	defer dst.Unlock()
	// After rolling, channel 0 of the output should hold the original
	// channel 4 (the wrap point, where the low-freq spws begin).
	got := real(dst.At(0, 0, 0, 0))
	if got != 4 {
		t.Fatalf("dst channel 0 = %v, want 4 (rolled from wrap point)", got)
	}
}
