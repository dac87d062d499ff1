// Package pipeline implements the PipelineEngine component (C7): the
// segmented read/condition/search/write loop that owns every other
// component for the duration of a scan.
package pipeline

import (
	"context"
	"fmt"

	"github.com/skyburst/rtsearch"
	"github.com/skyburst/rtsearch/candidate"
	"github.com/skyburst/rtsearch/conditioner"
	"github.com/skyburst/rtsearch/dedisperse"
	"github.com/skyburst/rtsearch/reader"
	"github.com/skyburst/rtsearch/search"
)

// Engine wires the backend ScanSource/Calibrator, the Conditioner, the
// Searcher, and the candidate Sink into a segmented real-time loop. Two
// VisBuffers ping-pong roles each segment: while the current segment is
// conditioned and searched from workBuf, the backend fills readBuf with
// the next segment's raw data, handed off under VisBuffer's own lock
// rather than a separate engine-level one (spec.md's three-buffer
// read/work/resample hand-off — the third, per-(dm,dt) resample buffer,
// lives inside search.Search since its shape varies with dt and can't be
// shared across concurrently-running cells).
type Engine struct {
	Source rtsearch.ScanSource
	Cal    rtsearch.Calibrator
	Meta   rtsearch.ScanMetadata
	Path   string
	Scan   int

	State *rtsearch.PipelineState

	ReadConfig   reader.Config
	CondConfig   conditioner.Config
	SearchConfig search.Config

	Sink      *candidate.Sink
	ConfigURI string
}

// SegmentResult reports what happened for one completed segment.
type SegmentResult struct {
	Segment    int
	Candidates int
	CalErr     error
}

type readOutcome struct {
	uvw *rtsearch.UVWBuffer
	err error
}

// Run drives every planned segment in order: read, condition, search,
// write. Cancellation is observed at segment boundaries for the reader
// (the in-flight read for a not-yet-consumed segment is left to finish but
// never waited on) and at (dm, dt) cell boundaries inside the searcher
// (search.Search's own dedisperse/image join barrier); a cancelled
// segment's in-flight results are discarded rather than partially written
// to the Sink.
func (e *Engine) Run(ctx context.Context) ([]SegmentResult, error) {
	nBl := e.Meta.NBaselines()
	nChan := len(e.State.Freq) // post read_t_down/read_f_down/chans axis, not meta's raw channel count
	nPol := len(e.Meta.Polarizations)

	readBuf := rtsearch.NewVisBuffer(e.State.ReadInts, nBl, nChan, nPol)
	workBuf := rtsearch.NewVisBuffer(e.State.ReadInts, nBl, nChan, nPol)

	readResults := make(chan readOutcome, 1)
	go func() { readResults <- e.readSegment(ctx, 0, readBuf, nBl) }()

	results := make([]SegmentResult, 0, e.State.NSegments())

	for seg := 0; seg < e.State.NSegments(); seg++ {
		if err := ctx.Err(); err != nil {
			return results, fmt.Errorf("%w: segment %d aborted before read", rtsearch.ErrCancelled, seg)
		}

		outcome := <-readResults
		if outcome.err != nil {
			return results, fmt.Errorf("reading segment %d: %w", seg, outcome.err)
		}

		readBuf, workBuf = workBuf, readBuf
		uvw := outcome.uvw

		if seg+1 < e.State.NSegments() {
			next := seg + 1
			go func() { readResults <- e.readSegment(ctx, next, readBuf, nBl) }()
		}

		e.State.Segment = seg
		window := e.State.SegmentTimes[seg]

		noise, calErr := conditioner.Condition(ctx, e.CondConfig, e.Meta, e.Cal, e.State.Freq, window.StartMJD, workBuf)
		if e.CondConfig.L1 != 0 || e.CondConfig.M1 != 0 {
			conditioner.RephaseWithUVW(workBuf, uvw, e.State.Freq, e.CondConfig.L1, e.CondConfig.M1)
		}

		var cands []rtsearch.Candidate
		if !dedisperse.AllZero(workBuf) {
			var err error
			cands, err = search.Search(ctx, e.SearchConfig, e.State, workBuf, uvw)
			if err != nil {
				return results, fmt.Errorf("searching segment %d: %w", seg, err)
			}
		}

		if e.Sink != nil {
			if len(cands) > 0 {
				if err := e.Sink.WriteSegment(int64(seg), cands, e.State); err != nil {
					return results, fmt.Errorf("writing segment %d candidates: %w", seg, err)
				}
			}
			if noiseRecords := toNoiseRecords(seg, noise); len(noiseRecords) > 0 {
				if err := e.Sink.WriteNoise(int64(seg), noiseRecords); err != nil {
					return results, fmt.Errorf("writing segment %d noise journal: %w", seg, err)
				}
			}
		}

		results = append(results, SegmentResult{Segment: seg, Candidates: len(cands), CalErr: calErr})
	}

	if e.Sink != nil && e.ConfigURI != "" {
		if err := e.Sink.WriteSnapshot(e.ConfigURI, e.State); err != nil {
			return results, err
		}
	}

	return results, nil
}

// readSegment delegates to the reader package (C2) to pull one segment's
// raw visibilities and (u,v,w) from the backend into dst, whose shape the
// caller guarantees matches State.ReadInts.
func (e *Engine) readSegment(ctx context.Context, seg int, dst *rtsearch.VisBuffer, nBl int) readOutcome {
	uvw := rtsearch.NewUVWBuffer(nBl)
	if err := reader.Read(ctx, e.ReadConfig, e.Source, e.Path, e.Scan, e.Meta, e.State, seg, dst, uvw); err != nil {
		return readOutcome{err: err}
	}
	return readOutcome{uvw: uvw}
}

func toNoiseRecords(seg int, stats []conditioner.NoiseStats) []candidate.NoiseRecord {
	records := make([]candidate.NoiseRecord, len(stats))
	for i, s := range stats {
		records[i] = candidate.NoiseRecord{
			Segment:    int64(seg),
			IntIndex:   int64(s.IntIndex),
			NoisePerBl: s.NoisePerBl,
			ZeroFrac:   s.ZeroFrac,
		}
	}
	return records
}
