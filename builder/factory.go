package builder

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

// NewBuilder constructs the builder matching the given type, recursing into
// the child types of lists and structs. The set of supported types is
// closed; there is no runtime registration.
//
//nolint:gocyclo,funlen
func NewBuilder(mem memory.Allocator, dtype arrow.DataType) (Builder, error) {
	switch dtype.ID() {
	case arrow.NULL:
		return NewNullBuilder(mem), nil
	case arrow.BOOL:
		return NewBooleanBuilder(mem), nil
	case arrow.INT8:
		return NewInt8Builder(mem), nil
	case arrow.INT16:
		return NewInt16Builder(mem), nil
	case arrow.INT32:
		return NewInt32Builder(mem), nil
	case arrow.INT64:
		return NewInt64Builder(mem), nil
	case arrow.UINT8:
		return NewUint8Builder(mem), nil
	case arrow.UINT16:
		return NewUint16Builder(mem), nil
	case arrow.UINT32:
		return NewUint32Builder(mem), nil
	case arrow.UINT64:
		return NewUint64Builder(mem), nil
	case arrow.FLOAT16:
		return NewFloat16Builder(mem), nil
	case arrow.FLOAT32:
		return NewFloat32Builder(mem), nil
	case arrow.FLOAT64:
		return NewFloat64Builder(mem), nil
	case arrow.DATE32:
		return NewDate32Builder(mem), nil
	case arrow.DATE64:
		return NewDate64Builder(mem), nil
	case arrow.TIME32:
		return NewTime32Builder(mem, dtype.(*arrow.Time32Type)), nil
	case arrow.TIME64:
		return NewTime64Builder(mem, dtype.(*arrow.Time64Type)), nil
	case arrow.TIMESTAMP:
		return NewTimestampBuilder(mem, dtype.(*arrow.TimestampType)), nil
	case arrow.STRING:
		return NewStringBuilder(mem), nil
	case arrow.BINARY:
		return NewBinaryBuilder(mem), nil
	case arrow.FIXED_SIZE_BINARY:
		return NewFixedSizeBinaryBuilder(mem, dtype.(*arrow.FixedSizeBinaryType)), nil
	case arrow.DECIMAL128:
		return NewDecimal128Builder(mem, dtype.(*arrow.Decimal128Type)), nil
	case arrow.LIST:
		listType := dtype.(*arrow.ListType)

		valueBuilder, err := NewBuilder(mem, listType.Elem())
		if err != nil {
			return nil, fmt.Errorf("make builder for list value type: %w", err)
		}

		return NewListBuilder(mem, valueBuilder), nil
	case arrow.STRUCT:
		structType := dtype.(*arrow.StructType)
		fields := make([]Builder, 0, len(structType.Fields()))

		for _, field := range structType.Fields() {
			fieldBuilder, err := NewBuilder(mem, field.Type)
			if err != nil {
				return nil, fmt.Errorf("make builder for struct field %s: %w", field.Name, err)
			}

			fields = append(fields, fieldBuilder)
		}

		structBuilder, err := NewStructBuilder(mem, structType, fields)
		if err != nil {
			return nil, err
		}

		return structBuilder, nil
	case arrow.DICTIONARY:
		return NewDictionaryBuilder(mem, dtype.(*arrow.DictionaryType))
	default:
		return nil, fmt.Errorf("make builder for type %s: %w", dtype, common.ErrDataTypeNotSupported)
	}
}

// NewDictionaryBuilder dispatches on the dictionary's value type. The index
// type of the emitted arrays is chosen adaptively by the builder, not taken
// from dtype.
//
//nolint:gocyclo
func NewDictionaryBuilder(mem memory.Allocator, dtype *arrow.DictionaryType) (Builder, error) {
	switch dtype.ValueType.ID() {
	case arrow.NULL:
		return NewNullDictionaryBuilder(mem), nil
	case arrow.INT8:
		return NewPrimitiveDictionaryBuilder[int8](mem, dtype.ValueType), nil
	case arrow.INT16:
		return NewPrimitiveDictionaryBuilder[int16](mem, dtype.ValueType), nil
	case arrow.INT32:
		return NewPrimitiveDictionaryBuilder[int32](mem, dtype.ValueType), nil
	case arrow.INT64:
		return NewPrimitiveDictionaryBuilder[int64](mem, dtype.ValueType), nil
	case arrow.UINT8:
		return NewPrimitiveDictionaryBuilder[uint8](mem, dtype.ValueType), nil
	case arrow.UINT16:
		return NewPrimitiveDictionaryBuilder[uint16](mem, dtype.ValueType), nil
	case arrow.UINT32:
		return NewPrimitiveDictionaryBuilder[uint32](mem, dtype.ValueType), nil
	case arrow.UINT64:
		return NewPrimitiveDictionaryBuilder[uint64](mem, dtype.ValueType), nil
	case arrow.FLOAT32:
		return NewPrimitiveDictionaryBuilder[float32](mem, dtype.ValueType), nil
	case arrow.FLOAT64:
		return NewPrimitiveDictionaryBuilder[float64](mem, dtype.ValueType), nil
	case arrow.DATE32:
		return NewPrimitiveDictionaryBuilder[arrow.Date32](mem, dtype.ValueType), nil
	case arrow.DATE64:
		return NewPrimitiveDictionaryBuilder[arrow.Date64](mem, dtype.ValueType), nil
	case arrow.TIME32:
		return NewPrimitiveDictionaryBuilder[arrow.Time32](mem, dtype.ValueType), nil
	case arrow.TIME64:
		return NewPrimitiveDictionaryBuilder[arrow.Time64](mem, dtype.ValueType), nil
	case arrow.TIMESTAMP:
		return NewPrimitiveDictionaryBuilder[arrow.Timestamp](mem, dtype.ValueType), nil
	case arrow.STRING:
		return NewStringDictionaryBuilder(mem), nil
	case arrow.BINARY:
		return NewBinaryDictionaryBuilder(mem), nil
	case arrow.FIXED_SIZE_BINARY:
		return NewFixedSizeBinaryDictionaryBuilder(mem, dtype.ValueType.(*arrow.FixedSizeBinaryType)), nil
	default:
		return nil, fmt.Errorf("make dictionary builder for value type %s: %w",
			dtype.ValueType, common.ErrDataTypeNotSupported)
	}
}
