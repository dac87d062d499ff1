// Package search implements the Searcher component (C6): the per-segment
// DM x dt sweep that dedisperses, images, and thresholds every trial cell.
package search

import (
	"context"
	"sync"

	"github.com/alitto/pond"

	"github.com/skyburst/rtsearch"
	"github.com/skyburst/rtsearch/dedisperse"
	"github.com/skyburst/rtsearch/imaging"
	"github.com/skyburst/rtsearch/planner"
)

// Config tunes the search sweep. NThread sizes both the dedispersion and
// imaging worker pools.
type Config struct {
	NThread  int
	IntTimeS float64 // integration time, seconds
}

func (c Config) withDefaults() Config {
	if c.NThread == 0 {
		c.NThread = 1
	}
	return c
}

type cell struct {
	dmIdx, dtIdx int
}

type dedispersedCell struct {
	cell cell
	buf  *rtsearch.VisBuffer
}

// Search sweeps the full DM x dt grid declared in state against one
// conditioned segment buffer. Iteration is DM outer, dt inner, matching the
// declared grid order; every (dm, dt) cell is first dedispersed (the
// dedisperse map), and only once every cell's dedispersion has completed
// does imaging begin (the image map) — a join barrier between the two
// stages so a cancellation is always observed at a (dm, dt) boundary rather
// than mid-cell.
func Search(ctx context.Context, cfg Config, state *rtsearch.PipelineState, buf *rtsearch.VisBuffer, uvw *rtsearch.UVWBuffer) ([]rtsearch.Candidate, error) {
	cfg = cfg.withDefaults()

	cells := make([]cell, 0, len(state.DMArr)*len(state.DtArr))
	for dmIdx := range state.DMArr {
		for dtIdx := range state.DtArr {
			cells = append(cells, cell{dmIdx, dtIdx})
		}
	}

	results := make([]dedispersedCell, len(cells))

	errs := newErrorCollector()
	dedispersePool := pond.New(cfg.NThread, 0, pond.MinWorkers(cfg.NThread), pond.Context(ctx))
	for i, c := range cells {
		i, c := i, c
		dedispersePool.Submit(func() {
			if err := ctx.Err(); err != nil {
				errs.record(err)
				return
			}

			dt := state.DtArr[c.dtIdx]
			nOut := buf.NInts / dt
			if nOut == 0 {
				return
			}

			delay := planner.PerChannelDelay(state.DMArr[c.dmIdx], state.Freq, cfg.IntTimeS)
			dst := rtsearch.NewVisBuffer(nOut, buf.NBl, buf.NChan, buf.NPol)
			if err := dedisperse.ShiftResample(ctx, buf, dst, delay, dt, 1); err != nil {
				errs.record(err)
				return
			}
			results[i] = dedispersedCell{cell: c, buf: dst}
		})
	}
	dedispersePool.StopAndWait()
	if err := errs.first(); err != nil {
		return nil, err
	}

	var mu sync.Mutex
	var cands []rtsearch.Candidate

	imagePool := pond.New(cfg.NThread, 0, pond.MinWorkers(cfg.NThread), pond.Context(ctx))
	for _, r := range results {
		if r.buf == nil || dedisperse.AllZero(r.buf) {
			continue
		}
		r := r
		for t := 0; t < r.buf.NInts; t++ {
			t := t
			imagePool.Submit(func() {
				if err := ctx.Err(); err != nil {
					errs.record(err)
					return
				}

				key := rtsearch.CandidateKey{
					Segment:  state.Segment,
					IntIndex: t,
					DMIndex:  r.cell.dmIdx,
					DtIndex:  r.cell.dtIdx,
				}
				cand, ok := imaging.Detect(r.buf, uvw, state, key)
				if !ok {
					return
				}

				mu.Lock()
				cands = append(cands, cand)
				mu.Unlock()
			})
		}
	}
	imagePool.StopAndWait()
	if err := errs.first(); err != nil {
		return nil, err
	}

	return cands, nil
}

type errorCollector struct {
	mu  sync.Mutex
	err error
}

func newErrorCollector() *errorCollector { return &errorCollector{} }

func (e *errorCollector) record(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.err == nil {
		e.err = err
	}
}

func (e *errorCollector) first() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.err
}
