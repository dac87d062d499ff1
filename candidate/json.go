package candidate

import (
	"encoding/json"
	"errors"
	"fmt"

	tiledb "github.com/TileDB-Inc/TileDB-Go"

	"github.com/skyburst/rtsearch"
)

var ErrWriteSnapshot = errors.New("error writing pipeline state snapshot")

// writeSnapshotFile serialises state as indented JSON to fileURI through
// TileDB's VFS layer, so the snapshot can land on a local path or an object
// store (e.g. s3) exactly like the candidate/noise arrays it sits beside.
// configURI selects a non-default TileDB config (credentials, backend
// options); an empty string uses the default config.
func writeSnapshotFile(fileURI, configURI string, state *rtsearch.PipelineState) (int, error) {
	var (
		config *tiledb.Config
		err    error
	)

	if configURI == "" {
		config, err = tiledb.NewConfig()
	} else {
		config, err = tiledb.LoadConfig(configURI)
	}
	if err != nil {
		return 0, fmt.Errorf("%w: loading tiledb config: %v", ErrWriteSnapshot, err)
	}
	defer config.Free()

	ctx, err := tiledb.NewContext(config)
	if err != nil {
		return 0, fmt.Errorf("%w: creating tiledb context: %v", ErrWriteSnapshot, err)
	}
	defer ctx.Free()

	vfs, err := tiledb.NewVFS(ctx, config)
	if err != nil {
		return 0, fmt.Errorf("%w: creating tiledb vfs: %v", ErrWriteSnapshot, err)
	}
	defer vfs.Free()

	// the vfs api auto checks for a file's existence and removes it if we
	// are wanting to write
	stream, err := vfs.Open(fileURI, tiledb.TILEDB_VFS_WRITE)
	if err != nil {
		return 0, fmt.Errorf("%w: opening %s for write: %v", ErrWriteSnapshot, fileURI, err)
	}
	defer stream.Close()

	jsn, err := json.MarshalIndent(state, "", "    ")
	if err != nil {
		return 0, fmt.Errorf("%w: marshalling pipeline state: %v", ErrWriteSnapshot, err)
	}

	written, err := stream.Write(jsn)
	if err != nil {
		return 0, fmt.Errorf("%w: writing %s: %v", ErrWriteSnapshot, fileURI, err)
	}

	return written, nil
}

// JsonDumps constructs a JSON string of the supplied data, used by
// WriteArrayMetadata to embed array-level metadata (schema provenance,
// scan identifiers) inline in a TileDB array.
func JsonDumps(data any) (string, error) {
	jsn, err := json.Marshal(data)
	if err != nil {
		return "", err
	}

	return string(jsn), nil
}
