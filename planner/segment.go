package planner

import (
	"math"

	"github.com/skyburst/rtsearch"
)

// FringeTimeSeconds approximates the timescale over which a single (u,v)
// grid cell remains valid: 0.5*86400/(2*pi*uvres*npix/2/25), a conservative
// factor for a dec-90 pointing (spec §4.1).
func FringeTimeSeconds(uvres, npix int) float64 {
	const decFactor = 25.0
	return 0.5 * 86400.0 / (2 * math.Pi * float64(uvres) * float64(npix) / 2 / decFactor)
}

// TOverlapSeconds returns max_dm_sweep at the lowest frequency, rounded up
// to an integer count of integrations.
func TOverlapSeconds(maxDM float64, freqGHz []float64, intTimeS float64) float64 {
	if maxDM <= 0 || len(freqGHz) == 0 {
		return intTimeS
	}
	fmin := freqGHz[0]
	fmax := freqGHz[len(freqGHz)-1]
	const dispConstSI = 4.149e-3
	delaySeconds := dispConstSI * maxDM * (1/(fmin*fmin) - 1/(fmax*fmax))
	nInts := math.Ceil(delaySeconds / intTimeS)
	if nInts < 1 {
		nInts = 1
	}
	return nInts * intTimeS
}

// NSegmentsFromFringeTime computes
// max(1, min(n_ints, floor(scale*inttime*n_ints/(fringeTime-t_overlap)))).
func NSegmentsFromFringeTime(scale, intTimeS float64, nInts int, fringeTimeS, tOverlapS float64) int {
	denom := fringeTimeS - tOverlapS
	if denom <= 0 {
		return nInts
	}
	n := int(math.Floor(scale * intTimeS * float64(nInts) / denom))
	if n < 1 {
		n = 1
	}
	if n > nInts {
		n = nInts
	}
	return n
}

// SegmentSpanSeconds returns the per-segment span S such that
// n*S - (n-1)*tOverlapS == totalDurationS (spec invariant 1).
func SegmentSpanSeconds(nSegments int, totalDurationS, tOverlapS float64) float64 {
	return (totalDurationS + float64(nSegments-1)*tOverlapS) / float64(nSegments)
}

// BuildSegmentTimes lays out n_segments overlapping windows starting at
// startMJD, each spanning segSpanS seconds and overlapping its neighbour by
// tOverlapS seconds.
func BuildSegmentTimes(startMJD float64, nSegments int, segSpanS, tOverlapS float64) []rtsearch.SegmentWindow {
	windows := make([]rtsearch.SegmentWindow, nSegments)
	stride := segSpanS - tOverlapS

	for k := 0; k < nSegments; k++ {
		segStart := rtsearch.AddSeconds(startMJD, float64(k)*stride)
		segStop := rtsearch.AddSeconds(segStart, segSpanS)
		windows[k] = rtsearch.SegmentWindow{StartMJD: segStart, StopMJD: segStop}
	}

	return windows
}

// VisMemBytes is the peak visibility-buffer footprint: headroom accounts
// for the read/work/resamp copies (headroom ~= 4).
func VisMemBytes(headroom float64, readInts, nBl, nChan, nPol int) float64 {
	return headroom * float64(readInts) * float64(nBl) * float64(nChan) * float64(nPol) * 8
}

// ImMemBytes is the peak imaging footprint across the worker pool.
func ImMemBytes(nThread, readInts, nChunks, npixX, npixY int) float64 {
	return float64(nThread) * (float64(readInts) / float64(nChunks)) * float64(npixX) * float64(npixY) * 8
}
