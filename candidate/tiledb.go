package candidate

import (
	"errors"
	"reflect"
	"strconv"

	tiledb "github.com/TileDB-Inc/TileDB-Go"
	"github.com/samber/lo"
	stgpsr "github.com/yuin/stagparser"
)

var ErrCreateAttr = errors.New("error creating candidate/noise tiledb attribute")
var ErrAddFilters = errors.New("error adding filter to filter list")
var ErrDims = errors.New("error: candidate/noise struct field has more than 2 slice dimensions")
var ErrDtype = errors.New("error: candidate/noise struct field has an unsupported tiledb dtype")
var ErrSetBuff = errors.New("error setting tiledb query buffer")

// ArrayOpen is a helper for opening a candidate/noise TileDB array in the
// given mode.
func ArrayOpen(ctx *tiledb.Context, uri string, mode tiledb.QueryType) (*tiledb.Array, error) {
	array, err := tiledb.NewArray(ctx, uri)
	if err != nil {
		return nil, err
	}

	err = array.Open(mode)
	if err != nil {
		array.Free()
		return nil, err
	}

	return array, nil
}

// AddFilters sequentially appends compression filters to the filter
// pipeline list.
func AddFilters(filter_list *tiledb.FilterList, filter ...*tiledb.Filter) error {
	for _, filt := range filter {
		if err := filter_list.AddFilter(filt); err != nil {
			return errors.Join(ErrAddFilters, err)
		}
	}

	return nil
}

// ZstdFilter initialises the Zstandard compression filter and sets the
// compression level. Every candidate/noise attribute is tagged
// `zstd(level=16)`; it is the only compressor the store uses.
func ZstdFilter(ctx *tiledb.Context, level int32) (*tiledb.Filter, error) {
	filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_ZSTD)
	if err != nil {
		return nil, err
	}

	if err := filt.SetOption(tiledb.TILEDB_COMPRESSION_LEVEL, level); err != nil {
		filt.Free()
		return nil, err
	}

	return filt, nil
}

// AttachFilters sets the same filter pipeline on each of the given
// attributes.
func AttachFilters(filter_list *tiledb.FilterList, attrs ...*tiledb.Attribute) error {
	for _, attr := range attrs {
		if err := attr.SetFilterList(filter_list); err != nil {
			return err
		}
	}

	return nil
}

// CreateAttr creates a TileDB attribute with its compression filter
// pipeline, configured by the `tiledb`/`filters` tags on a candidateRow or
// NoiseRecord field. Only the dtypes and filters those two record types
// actually carry are supported: int32, int64, float32, float64, and the
// zstd filter (see record.go) — this is a narrower surface than a general
// struct-to-schema mapper would need, trimmed to what the candidate/noise
// arrays exercise.
// An example tag is `tiledb:"dtype=float64,ftype=attr" filters:"zstd(level=16)"`.
func CreateAttr(
	field_name string,
	filter_defs []stgpsr.Definition,
	tiledb_defs map[string]stgpsr.Definition,
	schema *tiledb.ArraySchema,
	ctx *tiledb.Context,
) error {
	def, status := tiledb_defs["dtype"]
	if !status {
		return errors.Join(ErrCreateAttr, errors.New("dtype tag not found"))
	}
	dtype, _ := def.Attribute("dtype")

	var tdb_dtype tiledb.Datatype
	switch dtype {
	case "int32":
		tdb_dtype = tiledb.TILEDB_INT32
	case "int64":
		tdb_dtype = tiledb.TILEDB_INT64
	case "float32":
		tdb_dtype = tiledb.TILEDB_FLOAT32
	case "float64":
		tdb_dtype = tiledb.TILEDB_FLOAT64
	default:
		return errors.Join(ErrCreateAttr, ErrDtype, errors.New(dtype.(string)))
	}

	attr_filts, err := tiledb.NewFilterList(ctx)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attr_filts.Free()

	for _, filter := range filter_defs {
		switch filter.Name() {
		case "zstd":
			level, status := filter.Attribute("level")
			if !status {
				return errors.Join(ErrCreateAttr, errors.New("zstd level not defined"))
			}
			filt, err := ZstdFilter(ctx, int32(level.(int64)))
			if err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
			defer filt.Free()
			if err := attr_filts.AddFilter(filt); err != nil {
				return errors.Join(ErrCreateAttr, err)
			}
		default:
			return errors.Join(ErrCreateAttr, errors.New("unsupported filter: "+filter.Name()))
		}
	}

	attr, err := tiledb.NewAttribute(ctx, field_name, tdb_dtype)
	if err != nil {
		return errors.Join(ErrCreateAttr, err)
	}
	defer attr.Free()

	// variable length attrs (the Im40/Spec20Re/Spec20Im cutouts)
	_, varLen := tiledb_defs["var"]
	if varLen {
		if err := attr.SetCellValNum(tiledb.TILEDB_VAR_NUM); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	if err := AttachFilters(attr_filts, attr); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	if err := schema.AddAttributes(attr); err != nil {
		return errors.Join(ErrCreateAttr, err)
	}

	// var-length attrs need an offsets filter pipeline set on the schema;
	// it must come after the attribute carrying TILEDB_VAR_NUM is attached.
	if varLen {
		offset_filts, err := tiledb.NewFilterList(ctx)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}

		dd_filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_POSITIVE_DELTA)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}

		bysh_filt, err := tiledb.NewFilter(ctx, tiledb.TILEDB_FILTER_BYTESHUFFLE)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}

		zstd_filt, err := ZstdFilter(ctx, 16)
		if err != nil {
			return errors.Join(ErrCreateAttr, err)
		}

		if err := AddFilters(offset_filts, dd_filt, bysh_filt, zstd_filt); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}

		if err := schema.SetOffsetsFilterList(offset_filts); err != nil {
			return errors.Join(ErrCreateAttr, err)
		}
	}

	return nil
}

// sliceDimsType walks nested slice types (e.g. [][]float32) to find the
// number of slice dimensions and the underlying element type, so
// setStructFieldBuffers can dispatch on a candidateColumns/noiseColumns
// field without hand-writing a case per field.
func sliceDimsType(typ reflect.Type, dims *int) reflect.Type {
	if typ.Kind() == reflect.Slice {
		*dims += 1
		return sliceDimsType(typ.Elem(), dims)
	}
	return typ
}

// sliceOffsets computes the 1D byte offsets for a variable-length TileDB
// attribute from its [][]T row lengths.
func sliceOffsets[T any](s [][]T, byte_size uint64) (slc_offset []uint64) {
	nrows := len(s)
	slc_offset = make([]uint64, nrows)
	offset := uint64(0)

	for i := 0; i < nrows; i++ {
		slc_offset[i] = offset
		offset += uint64(len(s[i])) * byte_size
	}

	return slc_offset
}

// setStructFieldBuffers binds every exported slice field of t (a
// candidateColumns or noiseColumns pointer) as a TileDB query buffer. 1D
// fields (int32, int64, float64) bind directly; 2D fields ([][]float32,
// the cutout attributes) are flattened with their offsets computed
// separately, following the var-length attribute convention CreateAttr
// sets up.
func setStructFieldBuffers(query *tiledb.Query, t any) error {
	const bytesize4 = uint64(4)

	values := reflect.ValueOf(t).Elem()
	types := reflect.TypeOf(t).Elem()
	for i := 0; i < values.NumField(); i++ {
		fld := values.Field(i)
		typ := fld.Type()
		if !types.Field(i).IsExported() {
			continue
		}
		name := types.Field(i).Name

		dims := 0
		stype := sliceDimsType(typ, &dims)

		switch dims {
		case 1:
			switch stype.Name() {
			case "int32":
				if _, err := query.SetDataBuffer(name, fld.Interface().([]int32)); err != nil {
					return errors.Join(ErrSetBuff, err, errors.New(name))
				}
			case "int64":
				if _, err := query.SetDataBuffer(name, fld.Interface().([]int64)); err != nil {
					return errors.Join(ErrSetBuff, err, errors.New(name))
				}
			case "float64":
				if _, err := query.SetDataBuffer(name, fld.Interface().([]float64)); err != nil {
					return errors.Join(ErrSetBuff, err, errors.New(name))
				}
			default:
				return errors.Join(ErrDtype, errors.New(stype.Name()))
			}
		case 2:
			switch stype.Name() {
			case "float32":
				slc := fld.Interface().([][]float32)
				flt := lo.Flatten(slc)
				offsets := sliceOffsets(slc, bytesize4)

				if _, err := query.SetOffsetsBuffer(name, offsets); err != nil {
					return errors.Join(ErrSetBuff, err, errors.New(name))
				}
				if _, err := query.SetDataBuffer(name, flt); err != nil {
					return errors.Join(ErrSetBuff, err, errors.New(name))
				}
			default:
				return errors.Join(ErrDtype, errors.New(stype.Name()))
			}
		default:
			return errors.Join(ErrDims, errors.New(strconv.Itoa(dims)))
		}
	}
	return nil
}

// WriteArrayMetadata attaches a JSON-encoded key/value pair to a candidate
// or noise array's TileDB metadata, used by Open to stamp each array with
// the Dims it was created against.
func WriteArrayMetadata(ctx *tiledb.Context, array_uri, key string, md any) error {
	array, err := ArrayOpen(ctx, array_uri, tiledb.TILEDB_WRITE)
	if err != nil {
		return errors.Join(err, errors.New("opening (w) tiledb array: "+array_uri))
	}
	defer array.Free()
	defer array.Close()

	jsn, err := JsonDumps(md)
	if err != nil {
		return errors.Join(err, errors.New("serialising array metadata to json"))
	}

	if err := array.PutMetadata(key, jsn); err != nil {
		return errors.Join(err, errors.New("writing array metadata: "+array_uri))
	}

	return nil
}
