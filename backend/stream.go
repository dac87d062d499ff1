// Package backend provides the narrow collaborators spec.md §6 reserves
// for raw telescope-data access: a streamed byte-level reader over a
// measurement-set/SDM file or object store, and a synthetic in-memory
// ScanSource used by tests and the CLI's dry-run mode.
package backend

import (
	"bytes"
	"encoding/binary"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
)

// Stream caters for a generic reader type so raw visibility data can be
// pulled from a file on disk, an object store, or an in-memory byte buffer.
// Only Read and Seek are required, which both *tiledb.VFSfh and
// *bytes.Reader implement.
type Stream interface {
	Read(p []byte) (int, error)
	Seek(offset int64, whence int) (int64, error)
}

// GenericStream builds a Stream over an open VFS file handle, optionally
// slurping it into memory first so repeated segment reads don't re-hit the
// underlying store.
func GenericStream(stream *tiledb.VFSfh, size uint64, inMemory bool) (Stream, error) {
	if !inMemory {
		return stream, nil
	}

	buffer := make([]byte, size)
	if err := binary.Read(stream, binary.BigEndian, &buffer); err != nil {
		return nil, err
	}
	return bytes.NewReader(buffer), nil
}
