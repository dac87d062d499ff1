package candidate

import (
	"errors"
	"reflect"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	stgpsr "github.com/yuin/stagparser"
)

var ErrCreateAttribute = errors.New("Error Creating Attribute for TileDB Array")
var ErrCreateSchema = errors.New("Error Creating TileDB Schema")

// fieldNames returns the exported field names of a struct, in declaration
// order.
func fieldNames(t any) (names []string) {
	names = make([]string, 0, 10)

	btype := reflect.TypeOf(t)
	for i := 0; i < btype.NumField(); i++ {
		if btype.Field(i).IsExported() {
			names = append(names, btype.Field(i).Name)
		}
	}
	return names
}

// chunkedStructSlices pre-allocates every exported slice field of t to the
// given capacity, avoiding reallocation while accumulating candidates for a
// segment before a single batched write.
func chunkedStructSlices(t any, length int) error {
	values := reflect.ValueOf(t).Elem()
	types := reflect.TypeOf(t).Elem()
	for i := 0; i < values.NumField(); i++ {
		field := values.Field(i)
		ftype := field.Type()
		if types.Field(i).IsExported() {
			field.Set(reflect.MakeSlice(ftype, 0, length))
		}
	}

	return nil
}

// schemaAttrs walks t's exported fields and attaches each non-dimension
// field as a tiledb attribute, driven by the struct's tiledb/filters tags.
func schemaAttrs(t any, schema *tiledb.ArraySchema, ctx *tiledb.Context) error {
	var (
		field_tdb_defs map[string]stgpsr.Definition
		def            stgpsr.Definition
		status         bool
	)
	values := reflect.ValueOf(t).Elem()
	types := values.Type()
	filt_defs, _ := stgpsr.ParseStruct(t, "filters")
	tdb_defs, _ := stgpsr.ParseStruct(t, "tiledb")

	for i := 0; i < values.NumField(); i++ {
		name := types.Field(i).Name

		field_filt_defs := filt_defs[name]

		field_tdb_defs = make(map[string]stgpsr.Definition)
		for _, v := range tdb_defs[name] {
			field_tdb_defs[v.Name()] = v
		}

		def, status = field_tdb_defs["ftype"]
		if !status {
			return errors.Join(ErrCreateAttribute, errors.New("ftype tag not found on "+name))
		}
		ftype, _ := def.Attribute("ftype")
		if ftype == "dim" {
			// dimensions are declared separately on the array domain
			continue
		}

		err := CreateAttr(name, field_filt_defs, field_tdb_defs, schema, ctx)
		if err != nil {
			return errors.Join(ErrCreateAttribute, err)
		}
	}
	return nil
}

// candidateDomain builds the five-dimensional sparse domain a candidate
// array is keyed by: (segment, int_index, dm_idx, dt_idx, beam).
func candidateDomain(ctx *tiledb.Context, maxSegments, maxInts, maxDMs, maxDts, maxBeams int64) (*tiledb.Domain, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}

	dims := []struct {
		name string
		max  int64
	}{
		{"segment", maxSegments},
		{"int_index", maxInts},
		{"dm_idx", maxDMs},
		{"dt_idx", maxDts},
		{"beam", maxBeams},
	}

	for _, d := range dims {
		dim, err := tiledb.NewDimension(ctx, d.name, tiledb.TILEDB_INT64, []int64{0, d.max - 1}, uint64(1))
		if err != nil {
			return nil, errors.Join(ErrCreateAttribute, err)
		}
		if err := domain.AddDimensions(dim); err != nil {
			return nil, errors.Join(ErrCreateAttribute, err)
		}
		dim.Free()
	}

	return domain, nil
}

// CandidateArraySchema builds the sparse array schema for the candidate
// store: one cell per (segment, int_index, dm_idx, dt_idx, beam) with the
// extracted features attached as attributes.
func CandidateArraySchema(ctx *tiledb.Context, maxSegments, maxInts, maxDMs, maxDts, maxBeams int64) (*tiledb.ArraySchema, error) {
	domain, err := candidateDomain(ctx, maxSegments, maxInts, maxDMs, maxDts, maxBeams)
	if err != nil {
		return nil, err
	}
	defer domain.Free()

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetCapacity(100_000); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetAllowsDups(false); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	if err := schemaAttrs(&candidateRow{}, schema, ctx); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}

	if err := schema.Check(); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	return schema, nil
}

// NoiseArraySchema builds the sparse array schema for the per-segment noise
// journal: one cell per (segment, int_index).
func NoiseArraySchema(ctx *tiledb.Context, maxSegments, maxInts int64) (*tiledb.ArraySchema, error) {
	domain, err := tiledb.NewDomain(ctx)
	if err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	defer domain.Free()

	segDim, err := tiledb.NewDimension(ctx, "segment", tiledb.TILEDB_INT64, []int64{0, maxSegments - 1}, uint64(1))
	if err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	intDim, err := tiledb.NewDimension(ctx, "int_index", tiledb.TILEDB_INT64, []int64{0, maxInts - 1}, uint64(1))
	if err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	if err := domain.AddDimensions(segDim, intDim); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}
	segDim.Free()
	intDim.Free()

	schema, err := tiledb.NewArraySchema(ctx, tiledb.TILEDB_SPARSE)
	if err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	if err := schema.SetDomain(domain); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetCapacity(100_000); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetCellOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}
	if err := schema.SetTileOrder(tiledb.TILEDB_ROW_MAJOR); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	if err := schemaAttrs(&NoiseRecord{}, schema, ctx); err != nil {
		return nil, errors.Join(ErrCreateAttribute, err)
	}

	if err := schema.Check(); err != nil {
		return nil, errors.Join(ErrCreateSchema, err)
	}

	return schema, nil
}
