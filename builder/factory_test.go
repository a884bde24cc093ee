package builder

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/ydb-platform/colbuild/common"
)

func TestNewBuilderSupportedTypes(t *testing.T) {
	mem := memory.NewGoAllocator()

	dtypes := []arrow.DataType{
		arrow.Null,
		arrow.FixedWidthTypes.Boolean,
		arrow.PrimitiveTypes.Int8,
		arrow.PrimitiveTypes.Int16,
		arrow.PrimitiveTypes.Int32,
		arrow.PrimitiveTypes.Int64,
		arrow.PrimitiveTypes.Uint8,
		arrow.PrimitiveTypes.Uint16,
		arrow.PrimitiveTypes.Uint32,
		arrow.PrimitiveTypes.Uint64,
		arrow.FixedWidthTypes.Float16,
		arrow.PrimitiveTypes.Float32,
		arrow.PrimitiveTypes.Float64,
		arrow.PrimitiveTypes.Date32,
		arrow.PrimitiveTypes.Date64,
		arrow.FixedWidthTypes.Time32ms,
		arrow.FixedWidthTypes.Time64us,
		arrow.FixedWidthTypes.Timestamp_us,
		arrow.BinaryTypes.String,
		arrow.BinaryTypes.Binary,
		&arrow.FixedSizeBinaryType{ByteWidth: 8},
		&arrow.Decimal128Type{Precision: 10, Scale: 2},
		arrow.ListOf(arrow.PrimitiveTypes.Int32),
		arrow.StructOf(arrow.Field{Name: "f", Type: arrow.PrimitiveTypes.Int64, Nullable: true}),
		&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.BinaryTypes.String},
		&arrow.DictionaryType{IndexType: arrow.PrimitiveTypes.Int32, ValueType: arrow.PrimitiveTypes.Int64},
	}

	for _, dtype := range dtypes {
		dtype := dtype

		t.Run(dtype.String(), func(t *testing.T) {
			b, err := NewBuilder(mem, dtype)
			require.NoError(t, err)
			require.NotNil(t, b)

			b.Release()
		})
	}
}

func TestNewBuilderNestedRecursion(t *testing.T) {
	mem := memory.NewGoAllocator()

	dtype := arrow.ListOf(arrow.StructOf(
		arrow.Field{Name: "tags", Type: arrow.ListOf(arrow.BinaryTypes.String), Nullable: true},
		arrow.Field{Name: "weight", Type: arrow.PrimitiveTypes.Float32, Nullable: true},
	))

	b, err := NewBuilder(mem, dtype)
	require.NoError(t, err)

	defer b.Release()

	lb := b.(*ListBuilder)
	sb := lb.ValueBuilder().(*StructBuilder)
	require.Equal(t, 2, sb.NumFields())

	inner := sb.FieldBuilder(0).(*ListBuilder)
	require.IsType(t, &StringBuilder{}, inner.ValueBuilder())
}

func TestNewBuilderUnknownType(t *testing.T) {
	mem := memory.NewGoAllocator()

	_, err := NewBuilder(mem, arrow.MapOf(arrow.BinaryTypes.String, arrow.PrimitiveTypes.Int32))
	require.ErrorIs(t, err, common.ErrDataTypeNotSupported)
}

func TestNewDictionaryBuilderUnknownValueType(t *testing.T) {
	mem := memory.NewGoAllocator()

	_, err := NewBuilder(mem, &arrow.DictionaryType{
		IndexType: arrow.PrimitiveTypes.Int32,
		ValueType: arrow.ListOf(arrow.PrimitiveTypes.Int32),
	})
	require.ErrorIs(t, err, common.ErrDataTypeNotSupported)
}
