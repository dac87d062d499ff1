package rtsearch

// SearchType selects the imaging strategy applied per (dm, dt, integration).
type SearchType string

const (
	SearchImage1      SearchType = "image1"
	SearchImage1Stats SearchType = "image1stats"
	SearchImage1Snip  SearchType = "image1snip"
	SearchImage2      SearchType = "image2"
	SearchImage2W     SearchType = "image2w"
)

// Feature names a candidate feature in the order features are extracted
// and persisted.
type Feature string

const (
	FeatureSNR1          Feature = "snr1"
	FeatureImmax1        Feature = "immax1"
	FeatureL1            Feature = "l1"
	FeatureM1            Feature = "m1"
	FeatureSNR2          Feature = "snr2"
	FeatureImmax2        Feature = "immax2"
	FeatureL2            Feature = "l2"
	FeatureM2            Feature = "m2"
	FeatureIm40          Feature = "im40"
	FeatureSpec20        Feature = "spec20"
	FeatureSpecStd       Feature = "specstd"
	FeatureSpecSkew      Feature = "specskew"
	FeatureSpecKurtosis  Feature = "speckurtosis"
	FeatureImSkew        Feature = "imskew"
	FeatureImKurtosis    Feature = "imkurtosis"
)

// DefaultFeatures is the declared feature order used when a caller does not
// override PipelineState.Features.
var DefaultFeatures = []Feature{
	FeatureSNR1, FeatureImmax1, FeatureL1, FeatureM1,
	FeatureSNR2, FeatureImmax2, FeatureL2, FeatureM2,
	FeatureIm40, FeatureSpec20,
	FeatureSpecStd, FeatureSpecSkew, FeatureSpecKurtosis,
	FeatureImSkew, FeatureImKurtosis,
}

// SegmentWindow is one [start,stop] MJD span of a segment plan.
type SegmentWindow struct {
	StartMJD, StopMJD float64
}

// PipelineState is produced once by the Planner and consumed by every other
// component. It is read-only after planning except for the per-segment
// fields (Segment, L0, M0), which the Conditioner owns until hand-off.
type PipelineState struct {
	Freq []float64 // GHz, strictly increasing, length NChan

	DMArr []float64 // pc/cm^3
	DtArr []int     // integration multiples, all > 0

	UVRes      int // wavelengths per cell at ch0
	NPixX      int
	NPixY      int
	NPixXFull  int
	NPixYFull  int

	SegmentTimes []SegmentWindow
	TOverlapS    float64
	ReadInts     int // identical across segments
	NChunks      int // imaging chunk count in the planner's memory estimate; search.Search images one task per integration and does not read it

	DataDelay []int // per-DM channel-0-relative delay, in integrations

	SigmaImage1 float64
	SigmaImage2 float64
	SearchType  SearchType
	Features    []Feature

	// Mutable per-segment state, owned by the Conditioner before hand-off
	// to the Searcher.
	Segment int
	L0, M0  float64
}

// NChan is the length of the frequency axis.
func (p *PipelineState) NChan() int { return len(p.Freq) }

// NSegments is the number of planned segments.
func (p *PipelineState) NSegments() int { return len(p.SegmentTimes) }

// MaxDataDelay returns the largest per-DM channel-0 delay, in integrations.
func (p *PipelineState) MaxDataDelay() int {
	max := 0
	for _, d := range p.DataDelay {
		if d > max {
			max = d
		}
	}
	return max
}
