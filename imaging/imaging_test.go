package imaging

import (
	"math"
	"testing"

	"github.com/skyburst/rtsearch"
)

func TestGridImageRoundTripRecoversPointSource(t *testing.T) {
	const nBl, nChan, nPol = 6, 1, 1
	const npix, uvres = 16, 10

	buf := rtsearch.NewVisBuffer(1, nBl, nChan, nPol)
	uvw := rtsearch.NewUVWBuffer(nBl)
	for bl := 0; bl < nBl; bl++ {
		uvw.U[bl] = float32(bl+1) * 5
		uvw.V[bl] = float32(bl+1) * 3
		buf.Set(0, bl, 0, 0, complex64(complex(1, 0)))
	}

	grid := Grid(buf, uvw, []float64{1.4}, uvres, npix, npix, 0)
	image := InverseFFT2D(grid, npix, npix)

	idx, peak := Peak(image)
	if peak <= 0 {
		t.Fatalf("expected positive peak, got %v at idx %d", peak, idx)
	}
}

func TestInverseFFT2DZeroGridIsZeroImage(t *testing.T) {
	const npix = 8
	grid := make([]complex128, npix*npix)
	image := InverseFFT2D(grid, npix, npix)
	for i, v := range image {
		if v != 0 {
			t.Fatalf("index %d: got %v want 0", i, v)
		}
	}
}

func TestClippedImageSigmaExcludesOutlier(t *testing.T) {
	image := make([]float64, 0, 101)
	for i := 0; i < 100; i++ {
		image = append(image, 0)
	}
	image = append(image, 1000) // single large outlier

	mean, sigma := ClippedImageSigma(image, 3.0, 10, 1e-9)
	if math.Abs(mean) > 1e-6 {
		t.Errorf("mean = %v, want near 0 after clipping outlier", mean)
	}
	if sigma > 1e-6 {
		t.Errorf("sigma = %v, want near 0 after clipping outlier", sigma)
	}
}

func TestPeakTieBreaksOnLowestIndex(t *testing.T) {
	image := []float64{1, 5, 5, 2}
	idx, value := Peak(image)
	if idx != 1 || value != 5 {
		t.Errorf("got idx=%d value=%v, want idx=1 value=5", idx, value)
	}
}

func TestExceedsThresholdZeroNoiseIsFalse(t *testing.T) {
	if ExceedsThreshold(100, 0, 0, 7) {
		t.Error("zero noise must never exceed threshold")
	}
}

func TestExceedsThresholdBoundary(t *testing.T) {
	if !ExceedsThreshold(7, 0, 1, 7) {
		t.Error("value exactly sigmaThresh standard deviations above mean should exceed")
	}
	if ExceedsThreshold(6.999, 0, 1, 7) {
		t.Error("value just under sigmaThresh standard deviations above mean should not exceed")
	}
}

func TestPixelToLMCentreIsOrigin(t *testing.T) {
	const npix, uvres = 16, 10
	l, m := PixelToLM(8*npix+8, npix, npix, uvres)
	if l != 0 || m != 0 {
		t.Errorf("centre pixel: got l=%v m=%v, want 0,0", l, m)
	}
}

func TestPixelToLMSignConvention(t *testing.T) {
	const npix, uvres = 16, 10
	lLow, _ := PixelToLM(8*npix+0, npix, npix, uvres)
	lHigh, _ := PixelToLM(8*npix+15, npix, npix, uvres)
	if lLow >= 0 || lHigh <= 0 {
		t.Errorf("expected pixels either side of centre to have opposite-sign l, got low=%v high=%v", lLow, lHigh)
	}
}

func TestDetectNoSignalNoDetection(t *testing.T) {
	const nBl, nChan, nPol = 4, 2, 1
	buf := rtsearch.NewVisBuffer(1, nBl, nChan, nPol)
	uvw := rtsearch.NewUVWBuffer(nBl)
	for bl := 0; bl < nBl; bl++ {
		uvw.U[bl] = float32(bl + 1)
		uvw.V[bl] = float32(bl + 1)
	}

	state := &rtsearch.PipelineState{
		Freq:        []float64{1.4, 1.401},
		UVRes:       10,
		NPixX:       16,
		NPixY:       16,
		NPixXFull:   32,
		NPixYFull:   32,
		SigmaImage1: 7,
		SigmaImage2: 7,
		SearchType:  rtsearch.SearchImage1,
	}

	_, ok := Detect(buf, uvw, state, rtsearch.CandidateKey{})
	if ok {
		t.Error("all-zero buffer should never produce a detection")
	}
}

func TestCutoutClipsAtImageBoundary(t *testing.T) {
	const npix = 8
	image := make([]float64, npix*npix)
	for i := range image {
		image[i] = float64(i)
	}

	out := cutout(image, npix, npix, 0, 40)
	if len(out) == 0 || len(out[0]) == 0 {
		t.Fatal("expected non-empty cutout near corner")
	}
	for _, row := range out {
		if len(row) > npix {
			t.Errorf("cutout row width %d exceeds image width %d", len(row), npix)
		}
	}
}

func TestMomentsConstantValueHasZeroStdSkewKurtosis(t *testing.T) {
	vals := []float64{5, 5, 5, 5}
	std, skew, kurtosis := moments(vals)
	if std != 0 || skew != 0 || kurtosis != 0 {
		t.Errorf("got std=%v skew=%v kurtosis=%v, want all 0", std, skew, kurtosis)
	}
}
