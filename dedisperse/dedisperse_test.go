package dedisperse

import (
	"context"
	"testing"

	"github.com/skyburst/rtsearch"
)

func TestShiftZeroDelayIsIdentity(t *testing.T) {
	src := rtsearch.NewVisBuffer(4, 1, 2, 1)
	for t := 0; t < 4; t++ {
		src.Set(t, 0, 0, 0, complex64(complex(float64(t), 0)))
	}
	dst := rtsearch.NewVisBuffer(4, 1, 2, 1)

	Shift(src, dst, []int{0, 0})

	for t := 0; t < 4; t++ {
		if dst.At(t, 0, 0, 0) != src.At(t, 0, 0, 0) {
			t.Errorf("zero delay changed sample at t=%d", t)
		}
	}
}

func TestShiftAligns(t *testing.T) {
	src := rtsearch.NewVisBuffer(4, 1, 1, 1)
	for t := 0; t < 4; t++ {
		src.Set(t, 0, 0, 0, complex64(complex(float64(t), 0)))
	}
	dst := rtsearch.NewVisBuffer(4, 1, 1, 1)

	Shift(src, dst, []int{1})

	want := []complex64{1, 2, 3, 0}
	for t := 0; t < 4; t++ {
		if dst.At(t, 0, 0, 0) != want[t] {
			t.Errorf("t=%d: got %v want %v", t, dst.At(t, 0, 0, 0), want[t])
		}
	}
}

func TestResampleAveragesBlocks(t *testing.T) {
	src := rtsearch.NewVisBuffer(4, 1, 1, 1)
	for t := 0; t < 4; t++ {
		src.Set(t, 0, 0, 0, complex64(complex(1, 0)))
	}
	dst := rtsearch.NewVisBuffer(2, 1, 1, 1)

	Resample(src, dst, 2)

	for t := 0; t < 2; t++ {
		if dst.At(t, 0, 0, 0) != 1 {
			t.Errorf("t=%d: got %v want 1", t, dst.At(t, 0, 0, 0))
		}
	}
}

func TestShiftResampleMatchesShiftThenResample(t *testing.T) {
	nInts, nBl, nChan, nPol := 8, 2, 2, 1
	src := rtsearch.NewVisBuffer(nInts, nBl, nChan, nPol)
	for t := 0; t < nInts; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < nChan; ch++ {
				src.Set(t, bl, ch, 0, complex64(complex(float64(t+bl+ch), 0)))
			}
		}
	}

	delay := []int{0, 1}
	dt := 2

	shifted := rtsearch.NewVisBuffer(nInts, nBl, nChan, nPol)
	Shift(src, shifted, delay)
	resampled := rtsearch.NewVisBuffer(nInts/dt, nBl, nChan, nPol)
	Resample(shifted, resampled, dt)

	fused := rtsearch.NewVisBuffer(nInts/dt, nBl, nChan, nPol)
	if err := ShiftResample(context.Background(), src, fused, delay, dt, 2); err != nil {
		t.Fatalf("ShiftResample: %v", err)
	}

	for t := 0; t < nInts/dt; t++ {
		for bl := 0; bl < nBl; bl++ {
			for ch := 0; ch < nChan; ch++ {
				if fused.At(t, bl, ch, 0) != resampled.At(t, bl, ch, 0) {
					t.Errorf("t=%d bl=%d ch=%d: fused %v != sequential %v", t, bl, ch, fused.At(t, bl, ch, 0), resampled.At(t, bl, ch, 0))
				}
			}
		}
	}
}
