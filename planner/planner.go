// Package planner implements the one-shot Planner component: it turns scan
// metadata and a user configuration into a PipelineState consumed by every
// downstream stage.
package planner

import (
	"fmt"
	"sort"

	"github.com/skyburst/rtsearch"
)

const speedOfLightM = 2.99792458e8

// Config carries the user-tunable knobs spec.md §6 lists for planning.
// Zero values select the documented defaults.
type Config struct {
	MinDM, MaxDM float64
	MaxLoss      float64 // default 0.05

	IntrinsicWidthUS float64

	URange, VRange float64 // metres in u,v at ch0; URange 0 means 2*DishDiameterM, VRange 0 means URange
	Oversample     float64 // default 1.0
	FullOversample float64 // oversample factor for the stage-2 re-image grid; default 2*Oversample
	UVResOverride  int     // 0 means derive from DishDiameterM

	Scale            float64 // scale_nsegments; default 1.0
	NSegments        int     // 0 means derive from fringe time
	NThread          int     // default 1
	NChunks          int     // 0 means start at 1 and grow
	MemoryLimitBytes float64 // 0 means unconstrained

	Headroom float64 // vis-buffer headroom factor; default 4

	ReadFDown int   // block-average this many raw channels together before selection; default 1
	Chans     []int // channel indices to keep (post ReadFDown); nil means all

	SigmaImage1, SigmaImage2 float64 // defaults 7.0, 7.0
	SearchType               rtsearch.SearchType
	Features                 []rtsearch.Feature
}

func (c Config) withDefaults() Config {
	if c.MaxLoss == 0 {
		c.MaxLoss = 0.05
	}
	if c.Oversample == 0 {
		c.Oversample = 1.0
	}
	if c.FullOversample == 0 {
		c.FullOversample = 2 * c.Oversample
	}
	if c.Scale == 0 {
		c.Scale = 1.0
	}
	if c.NThread == 0 {
		c.NThread = 1
	}
	if c.NChunks == 0 {
		c.NChunks = 1
	}
	if c.Headroom == 0 {
		c.Headroom = 4.0
	}
	if c.ReadFDown == 0 {
		c.ReadFDown = 1
	}
	if c.SigmaImage1 == 0 {
		c.SigmaImage1 = 7.0
	}
	if c.SigmaImage2 == 0 {
		c.SigmaImage2 = 7.0
	}
	if c.SearchType == "" {
		c.SearchType = rtsearch.SearchImage1
	}
	if c.Features == nil {
		c.Features = rtsearch.DefaultFeatures
	}
	return c
}

// countWraps reports how many times the spectral windows' reference
// frequencies drop going from one window to the next, in file order.
func countWraps(spws []rtsearch.SpectralWindow) int {
	wraps := 0
	for i := 1; i < len(spws); i++ {
		if spws[i].RefFreqHz < spws[i-1].RefFreqHz {
			wraps++
		}
	}
	return wraps
}

// buildFreqGHz expands the spectral windows into a per-channel GHz axis,
// sorted ascending by spw reference frequency, then applies the same
// frequency block-averaging and channel selection the reader package
// applies to the visibility data itself, so PipelineState.Freq always
// matches the VisBuffer channel axis the rest of the core receives
// (spec.md §3: "freq[nchan] ... after downsampling and channel selection").
func buildFreqGHz(spws []rtsearch.SpectralWindow, readFDown int, chans []int) []float64 {
	ordered := append([]rtsearch.SpectralWindow(nil), spws...)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].RefFreqHz < ordered[j].RefFreqHz })

	raw := make([]float64, 0, len(ordered))
	for _, spw := range ordered {
		for c := 0; c < spw.NChan; c++ {
			hz := spw.RefFreqHz + float64(c)*spw.ChanWidthHz
			raw = append(raw, hz/1e9)
		}
	}

	if readFDown <= 0 {
		readFDown = 1
	}
	down := raw
	if readFDown > 1 {
		nOut := len(raw) / readFDown
		down = make([]float64, nOut)
		for i := 0; i < nOut; i++ {
			sum := 0.0
			for j := 0; j < readFDown; j++ {
				sum += raw[i*readFDown+j]
			}
			down[i] = sum / float64(readFDown)
		}
	}

	if chans == nil {
		return down
	}
	selected := make([]float64, len(chans))
	for i, c := range chans {
		selected[i] = down[c]
	}
	return selected
}

// Plan computes the full PipelineState for a scan: DM grid, image grid,
// segment plan, and memory-driven chunking, per spec.md §4.1.
func Plan(meta rtsearch.ScanMetadata, cfg Config) (*rtsearch.PipelineState, error) {
	cfg = cfg.withDefaults()

	if countWraps(meta.SpectralWindows) > 1 {
		return nil, fmt.Errorf("%w: %d wraps across %d spectral windows", rtsearch.ErrSpwOrderAmbiguous, countWraps(meta.SpectralWindows), len(meta.SpectralWindows))
	}

	freqGHz := buildFreqGHz(meta.SpectralWindows, cfg.ReadFDown, cfg.Chans)
	if len(freqGHz) == 0 {
		return nil, fmt.Errorf("%w: scan has no channels", rtsearch.ErrPlanInfeasible)
	}

	fmin, fmax := freqGHz[0], freqGHz[len(freqGHz)-1]
	meanFreq := 0.0
	for _, f := range freqGHz {
		meanFreq += f
	}
	meanFreq /= float64(len(freqGHz))

	chanWidthMHz := (fmax - fmin) * 1000 / float64(len(freqGHz)-1)
	if len(freqGHz) == 1 {
		chanWidthMHz = meta.SpectralWindows[0].ChanWidthHz / 1e6
	}
	bandwidthMHz := (fmax - fmin) * 1000

	lambdaMinM := speedOfLightM / (fmax * 1e9)

	uvres := cfg.UVResOverride
	if uvres == 0 {
		uvres = UVRes(meta.DishDiameterM, lambdaMinM)
	}
	if uvres <= 0 {
		uvres = 1
	}

	urange, vrange := cfg.URange, cfg.VRange
	if urange == 0 {
		urange = float64(meta.DishDiameterM) * 2
	}
	if vrange == 0 {
		vrange = urange
	}

	npixX, npixY := ImageGrid(uvres, urange, vrange, cfg.Oversample)
	npixXFull, npixYFull := ImageGrid(uvres, urange, vrange, cfg.FullOversample)

	dmParams := DMGridParams{
		MinDM:            cfg.MinDM,
		MaxDM:            cfg.MaxDM,
		MaxLoss:          cfg.MaxLoss,
		IntrinsicWidthUS: cfg.IntrinsicWidthUS,
		TSampUS:          meta.IntegrationTimeS * 1e6,
		ChanWidthMHz:     chanWidthMHz,
		BandwidthMHz:     bandwidthMHz,
		MeanFreqGHz:      meanFreq,
	}
	dmarr := BuildDMGrid(dmParams)

	dataDelay := make([]int, len(dmarr))
	maxDM := 0.0
	for i, dm := range dmarr {
		dataDelay[i] = DataDelay(dm, freqGHz, meta.IntegrationTimeS)
		if dm > maxDM {
			maxDM = dm
		}
	}

	tOverlapS := TOverlapSeconds(maxDM, freqGHz, meta.IntegrationTimeS)
	fringeTimeS := FringeTimeSeconds(uvres, npixX)

	nInts := meta.NIntegrations
	totalDurationS := float64(nInts) * meta.IntegrationTimeS

	nSegments := cfg.NSegments
	if nSegments == 0 {
		nSegments = NSegmentsFromFringeTime(cfg.Scale, meta.IntegrationTimeS, nInts, fringeTimeS, tOverlapS)
	}
	if nSegments < 1 {
		nSegments = 1
	}

	nBl := meta.NBaselines()
	nChan := len(freqGHz)
	nPol := len(meta.Polarizations)

	nChunks := cfg.NChunks
	const maxIterations = 64

	if cfg.MemoryLimitBytes > 0 {
		segSpanS := SegmentSpanSeconds(nSegments, totalDurationS, tOverlapS)
		readInts := int(segSpanS/meta.IntegrationTimeS + 0.5)

		iterations := 0
		for VisMemBytes(cfg.Headroom, readInts, nBl, nChan, nPol) > cfg.MemoryLimitBytes {
			if nSegments >= nInts || iterations >= maxIterations {
				return nil, fmt.Errorf("%w: visibility buffer exceeds memory limit even at finest segmentation", rtsearch.ErrPlanInfeasible)
			}
			ratio := VisMemBytes(cfg.Headroom, readInts, nBl, nChan, nPol) / cfg.MemoryLimitBytes
			nSegments = int(float64(nSegments)*ratio + 0.5)
			if nSegments > nInts {
				nSegments = nInts
			}
			segSpanS = SegmentSpanSeconds(nSegments, totalDurationS, tOverlapS)
			readInts = int(segSpanS/meta.IntegrationTimeS + 0.5)
			iterations++
		}

		iterations = 0
		for ImMemBytes(cfg.NThread, readInts, nChunks, npixX, npixY) > cfg.MemoryLimitBytes {
			if nChunks >= readInts || iterations >= maxIterations {
				return nil, fmt.Errorf("%w: imaging buffer exceeds memory limit even at finest chunking", rtsearch.ErrPlanInfeasible)
			}
			nChunks *= 2
			if nChunks > readInts {
				nChunks = readInts
			}
			iterations++
		}
	}

	segSpanS := SegmentSpanSeconds(nSegments, totalDurationS, tOverlapS)
	readInts := int(segSpanS/meta.IntegrationTimeS + 0.5)
	segmentTimes := BuildSegmentTimes(meta.StartTimeMJD, nSegments, segSpanS, tOverlapS)

	state := &rtsearch.PipelineState{
		Freq:         freqGHz,
		DMArr:        dmarr,
		DtArr:        []int{1},
		UVRes:        uvres,
		NPixX:        npixX,
		NPixY:        npixY,
		NPixXFull:    npixXFull,
		NPixYFull:    npixYFull,
		SegmentTimes: segmentTimes,
		TOverlapS:    tOverlapS,
		ReadInts:     readInts,
		NChunks:      nChunks,
		DataDelay:    dataDelay,
		SigmaImage1:  cfg.SigmaImage1,
		SigmaImage2:  cfg.SigmaImage2,
		SearchType:   cfg.SearchType,
		Features:     cfg.Features,
	}

	return state, nil
}
