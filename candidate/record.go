package candidate

// candidateRow is the flattened, TileDB-serialisable projection of an
// rtsearch.Candidate: one cell per (segment, int_index, dm_idx, dt_idx,
// beam), with the raw im40/spec20 cutouts stored flattened and variable
// length (their shape is recoverable from PipelineState at read time).
type candidateRow struct {
	Segment  int64 `tiledb:"dtype=int64,ftype=dim"`
	IntIndex int64 `tiledb:"dtype=int64,ftype=dim"`
	DMIdx    int64 `tiledb:"dtype=int64,ftype=dim"`
	DtIdx    int64 `tiledb:"dtype=int64,ftype=dim"`
	Beam     int64 `tiledb:"dtype=int64,ftype=dim"`

	DM      float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Dt      int32   `tiledb:"dtype=int32,ftype=attr" filters:"zstd(level=16)"`
	TimeMJD float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	SNR1   float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Immax1 float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	L1     float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	M1     float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	SNR2   float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	Immax2 float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	L2     float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	M2     float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	SpecStd      float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SpecSkew     float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	SpecKurtosis float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ImSkew       float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ImKurtosis   float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`

	Im40      [][]float32 `tiledb:"dtype=float32,ftype=attr,var" filters:"zstd(level=16)"`
	Spec20Re  [][]float32 `tiledb:"dtype=float32,ftype=attr,var" filters:"zstd(level=16)"`
	Spec20Im  [][]float32 `tiledb:"dtype=float32,ftype=attr,var" filters:"zstd(level=16)"`
}

// NoiseRecord is one row of the per-segment, per-integration noise journal
// (the Conditioner's noise-tracking output, supplemented from the original
// implementation's behaviour; spec.md's Conditioner component, §3).
type NoiseRecord struct {
	Segment  int64 `tiledb:"dtype=int64,ftype=dim"`
	IntIndex int64 `tiledb:"dtype=int64,ftype=dim"`

	NoisePerBl float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
	ZeroFrac   float64 `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`
}
