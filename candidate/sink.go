// Package candidate implements the candidate-sink component (C8): a
// TileDB-backed sparse array store for per-segment search results, a
// parallel noise journal, and a JSON state-snapshot writer.
package candidate

import (
	"errors"
	"fmt"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/skyburst/rtsearch"
)

// Dims bounds the candidate array's five dimensions at creation time.
type Dims struct {
	MaxSegments, MaxInts, MaxDMs, MaxDts, MaxBeams int64
}

// Sink owns the candidate and noise-journal TileDB arrays for one scan.
type Sink struct {
	ctx *tiledb.Context

	candidateURI string
	noiseURI     string

	writtenSegments map[int64]bool
}

// Open creates the candidate and noise arrays at the given URIs, unless
// the candidate array already exists, in which case ErrCandsfileExists is
// returned so a caller never silently overwrites a prior run's results.
func Open(ctx *tiledb.Context, candidateURI, noiseURI string, dims Dims) (*Sink, error) {
	if arrayExists(ctx, candidateURI) {
		return nil, fmt.Errorf("%w: %s", rtsearch.ErrCandsfileExists, candidateURI)
	}

	candSchema, err := CandidateArraySchema(ctx, dims.MaxSegments, dims.MaxInts, dims.MaxDMs, dims.MaxDts, dims.MaxBeams)
	if err != nil {
		return nil, err
	}
	defer candSchema.Free()

	candArray, err := tiledb.NewArray(ctx, candidateURI)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	defer candArray.Free()
	if err := candArray.Create(candSchema); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	noiseSchema, err := NoiseArraySchema(ctx, dims.MaxSegments, dims.MaxInts)
	if err != nil {
		return nil, err
	}
	defer noiseSchema.Free()

	noiseArray, err := tiledb.NewArray(ctx, noiseURI)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	defer noiseArray.Free()
	if err := noiseArray.Create(noiseSchema); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	if err := WriteArrayMetadata(ctx, candidateURI, "dims", dims); err != nil {
		return nil, err
	}
	if err := WriteArrayMetadata(ctx, noiseURI, "dims", dims); err != nil {
		return nil, err
	}

	return &Sink{
		ctx:             ctx,
		candidateURI:    candidateURI,
		noiseURI:        noiseURI,
		writtenSegments: make(map[int64]bool),
	}, nil
}

func arrayExists(ctx *tiledb.Context, uri string) bool {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return false
	}
	defer array.Free()

	exists, err := array.Exists()
	if err != nil {
		return false
	}
	return exists
}

// WriteSegment appends one segment's worth of candidates in a single
// batched write. A second write for the same segment fails with
// ErrCandsfileExists (a segment's candidates are immutable once flushed).
func (s *Sink) WriteSegment(segment int64, cands []rtsearch.Candidate, state *rtsearch.PipelineState) error {
	if s.writtenSegments[segment] {
		return fmt.Errorf("%w: segment %d", rtsearch.ErrCandsfileExists, segment)
	}

	rows := toCandidateRows(segment, cands, state)

	array, err := ArrayOpen(s.ctx, s.candidateURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return err
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(s.ctx, array)
	if err != nil {
		return err
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return err
	}
	if err := setStructFieldBuffers(query, &rows); err != nil {
		return err
	}
	if err := query.Submit(); err != nil {
		return err
	}

	s.writtenSegments[segment] = true
	return nil
}

// WriteNoise appends one segment's per-integration noise journal entries.
func (s *Sink) WriteNoise(segment int64, records []NoiseRecord) error {
	array, err := ArrayOpen(s.ctx, s.noiseURI, tiledb.TILEDB_WRITE)
	if err != nil {
		return err
	}
	defer array.Free()
	defer array.Close()

	query, err := tiledb.NewQuery(s.ctx, array)
	if err != nil {
		return err
	}
	defer query.Free()

	if err := query.SetLayout(tiledb.TILEDB_UNORDERED); err != nil {
		return err
	}

	columnar := columnarNoise(records)
	if err := setStructFieldBuffers(query, &columnar); err != nil {
		return err
	}
	return query.Submit()
}

// candidateColumns is the struct-of-slices layout setStructFieldBuffers
// expects: one slice per TileDB attribute/dimension, all the same length.
type candidateColumns struct {
	Segment, IntIndex, DMIdx, DtIdx, Beam []int64

	DM      []float64
	Dt      []int32
	TimeMJD []float64

	SNR1, Immax1, L1, M1 []float64
	SNR2, Immax2, L2, M2 []float64

	SpecStd, SpecSkew, SpecKurtosis []float64
	ImSkew, ImKurtosis              []float64

	Im40     [][]float32
	Spec20Re [][]float32
	Spec20Im [][]float32
}

// flattenIm40 flattens a [][]float32 cutout into a single row for the
// variable-length TileDB attribute.
func flattenIm40(cutout [][]float32) []float32 {
	flat := make([]float32, 0, len(cutout)*len(cutout))
	for _, row := range cutout {
		flat = append(flat, row...)
	}
	return flat
}

// flattenSpec20 flattens a [ntime][nchan][npol]complex64 cutout into real
// and imaginary float32 rows.
func flattenSpec20(cutout [][][]complex64) (re, im []float32) {
	for _, t := range cutout {
		for _, ch := range t {
			for _, v := range ch {
				re = append(re, real(v))
				im = append(im, imag(v))
			}
		}
	}
	return re, im
}

func toCandidateRows(segment int64, cands []rtsearch.Candidate, state *rtsearch.PipelineState) candidateColumns {
	n := len(cands)
	cols := candidateColumns{}
	chunkedStructSlices(&cols, n)

	for _, c := range cands {
		cols.Segment = append(cols.Segment, segment)
		cols.IntIndex = append(cols.IntIndex, int64(c.Key.IntIndex))
		cols.DMIdx = append(cols.DMIdx, int64(c.Key.DMIndex))
		cols.DtIdx = append(cols.DtIdx, int64(c.Key.DtIndex))
		cols.Beam = append(cols.Beam, int64(c.Key.Beam))

		cols.DM = append(cols.DM, state.DMArr[c.Key.DMIndex])
		cols.Dt = append(cols.Dt, int32(state.DtArr[c.Key.DtIndex]))
		segWindow := state.SegmentTimes[segment]
		intTimeS := (segWindow.StopMJD - segWindow.StartMJD) * 86400 / float64(state.ReadInts)
		cols.TimeMJD = append(cols.TimeMJD, rtsearch.AddSeconds(segWindow.StartMJD, float64(c.Key.IntIndex)*intTimeS))

		cols.SNR1 = append(cols.SNR1, c.SNR1)
		cols.Immax1 = append(cols.Immax1, c.Immax1)
		cols.L1 = append(cols.L1, c.L1)
		cols.M1 = append(cols.M1, c.M1)
		cols.SNR2 = append(cols.SNR2, c.SNR2)
		cols.Immax2 = append(cols.Immax2, c.Immax2)
		cols.L2 = append(cols.L2, c.L2)
		cols.M2 = append(cols.M2, c.M2)
		cols.SpecStd = append(cols.SpecStd, c.SpecStd)
		cols.SpecSkew = append(cols.SpecSkew, c.SpecSkew)
		cols.SpecKurtosis = append(cols.SpecKurtosis, c.SpecKurtosis)
		cols.ImSkew = append(cols.ImSkew, c.ImSkew)
		cols.ImKurtosis = append(cols.ImKurtosis, c.ImKurtosis)

		cols.Im40 = append(cols.Im40, flattenIm40(c.Im40))
		re, im := flattenSpec20(c.Spec20)
		cols.Spec20Re = append(cols.Spec20Re, re)
		cols.Spec20Im = append(cols.Spec20Im, im)
	}

	return cols
}

type noiseColumns struct {
	Segment, IntIndex     []int64
	NoisePerBl, ZeroFrac []float64
}

func columnarNoise(records []NoiseRecord) noiseColumns {
	cols := noiseColumns{}
	chunkedStructSlices(&cols, len(records))
	for _, r := range records {
		cols.Segment = append(cols.Segment, r.Segment)
		cols.IntIndex = append(cols.IntIndex, r.IntIndex)
		cols.NoisePerBl = append(cols.NoisePerBl, r.NoisePerBl)
		cols.ZeroFrac = append(cols.ZeroFrac, r.ZeroFrac)
	}
	return cols
}

// WriteSnapshot persists the current PipelineState as a JSON side-car next
// to the candidate array, for post-hoc reproducibility.
func (s *Sink) WriteSnapshot(configURI string, state *rtsearch.PipelineState) error {
	_, err := writeSnapshotFile(s.candidateURI+"_state.json", configURI, state)
	return err
}
