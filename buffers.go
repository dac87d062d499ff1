package rtsearch

import "sync"

// VisBuffer is a 4-D [ints, n_bl, nchan, npol] complex64 tensor, row-major,
// guarded by a single mutex with exclusive-writer semantics (readers take
// the same lock; there is no reader/writer split, per the concurrency
// model). Buffers are allocated once per pipeline and reused across
// segments, never reallocated.
type VisBuffer struct {
	mu sync.Mutex

	NInts, NBl, NChan, NPol int
	Data                    []complex64
}

// NewVisBuffer allocates a VisBuffer of the given shape.
func NewVisBuffer(nInts, nBl, nChan, nPol int) *VisBuffer {
	return &VisBuffer{
		NInts: nInts, NBl: nBl, NChan: nChan, NPol: nPol,
		Data: make([]complex64, nInts*nBl*nChan*nPol),
	}
}

// Lock/Unlock expose the buffer's single mutex to callers that need to hold
// it across a sequence of operations (the PipelineEngine's hand-off).
func (b *VisBuffer) Lock()   { b.mu.Lock() }
func (b *VisBuffer) Unlock() { b.mu.Unlock() }

// Index computes the flat offset for (t, bl, ch, pol).
func (b *VisBuffer) Index(t, bl, ch, pol int) int {
	return ((t*b.NBl+bl)*b.NChan+ch)*b.NPol + pol
}

// At returns the visibility at (t, bl, ch, pol). Caller must hold the lock.
func (b *VisBuffer) At(t, bl, ch, pol int) complex64 {
	return b.Data[b.Index(t, bl, ch, pol)]
}

// Set assigns the visibility at (t, bl, ch, pol). Caller must hold the lock.
func (b *VisBuffer) Set(t, bl, ch, pol int, v complex64) {
	b.Data[b.Index(t, bl, ch, pol)] = v
}

// CopyFrom copies src's contents into b byte-for-byte. Shapes must match;
// caller must hold both locks.
func (b *VisBuffer) CopyFrom(src *VisBuffer) {
	copy(b.Data, src.Data)
}

// Zero clears the buffer's contents. Caller must hold the lock.
func (b *VisBuffer) Zero() {
	for i := range b.Data {
		b.Data[i] = 0
	}
}

// AllZero reports whether every sample in the buffer is exactly zero.
// Caller must hold the lock.
func (b *VisBuffer) AllZero() bool {
	for _, v := range b.Data {
		if v != 0 {
			return false
		}
	}
	return true
}

// UVWBuffer holds per-baseline (u,v,w) in wavelengths at channel 0, already
// sign-flipped per the measurement-set convention (§6): u = -u_m*freq0/c.
type UVWBuffer struct {
	U, V, W []float32
}

// NewUVWBuffer allocates a UVWBuffer for n_bl baselines.
func NewUVWBuffer(nBl int) *UVWBuffer {
	return &UVWBuffer{U: make([]float32, nBl), V: make([]float32, nBl), W: make([]float32, nBl)}
}

// CandidateKey uniquely identifies a candidate within a segment.
type CandidateKey struct {
	Segment  int
	IntIndex int
	DMIndex  int
	DtIndex  int
	Beam     int
}

// Candidate is a single detection with its ordered feature set.
type Candidate struct {
	Key CandidateKey

	SNR1, Immax1, L1, M1 float64
	SNR2, Immax2, L2, M2 float64

	Im40   [][]float32     // 40x40 cutout, clipped to image bounds
	Spec20 [][][]complex64 // [ntime][nchan][npol]

	SpecStd, SpecSkew, SpecKurtosis float64
	ImSkew, ImKurtosis              float64
}
