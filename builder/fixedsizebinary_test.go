package builder

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/decimal128"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/ydb-platform/colbuild/common"
)

func TestFixedSizeBinaryAppend(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewFixedSizeBinaryBuilder(mem, &arrow.FixedSizeBinaryType{ByteWidth: 4})
	defer b.Release()

	require.NoError(t, b.Append([]byte("abcd")))
	require.NoError(t, b.AppendNull())
	require.NoError(t, b.Append([]byte("wxyz")))

	require.Equal(t, []byte("abcd"), b.GetValue(0))

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	require.Equal(t, 3, data.Len())
	require.Equal(t, 1, data.NullN())
	// Null rows still occupy one width in the payload.
	require.Equal(t, 12, data.Buffers()[1].Len())

	arr := array.MakeFromData(data).(*array.FixedSizeBinary)
	defer arr.Release()

	require.Equal(t, []byte("abcd"), arr.Value(0))
	require.True(t, arr.IsNull(1))
	require.Equal(t, []byte("wxyz"), arr.Value(2))
}

func TestFixedSizeBinaryWidthMismatch(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewFixedSizeBinaryBuilder(mem, &arrow.FixedSizeBinaryType{ByteWidth: 4})
	defer b.Release()

	err := b.Append([]byte("too long"))
	require.ErrorIs(t, err, common.ErrInvalidByteWidth)
	require.Equal(t, 0, b.Len())
}

func TestFixedSizeBinaryBulkAppend(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewFixedSizeBinaryBuilder(mem, &arrow.FixedSizeBinaryType{ByteWidth: 2})
	defer b.Release()

	require.NoError(t, b.AppendValues([]byte("aabbcc"), []byte{1, 0, 1}))
	require.Equal(t, 3, b.Len())
	require.Equal(t, 1, b.NullN())

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	arr := array.MakeFromData(data).(*array.FixedSizeBinary)
	defer arr.Release()

	require.Equal(t, []byte("aa"), arr.Value(0))
	require.True(t, arr.IsNull(1))
	require.Equal(t, []byte("cc"), arr.Value(2))
}

func TestDecimal128CanonicalBytes(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewDecimal128Builder(mem, &arrow.Decimal128Type{Precision: 10, Scale: 2})
	defer b.Release()

	require.NoError(t, b.Append(decimal128.FromI64(258)))
	require.NoError(t, b.Append(decimal128.FromI64(-1)))

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	payload := data.Buffers()[1].Bytes()

	// 258 = 0x0102 little-endian, high half zero.
	expected := make([]byte, 16)
	expected[0] = 0x02
	expected[1] = 0x01
	require.Equal(t, expected, payload[:16])

	// -1 is all ones in two's complement.
	for _, bb := range payload[16:32] {
		require.Equal(t, byte(0xFF), bb)
	}
}

func TestDecimal128AppendDecimal(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewDecimal128Builder(mem, &arrow.Decimal128Type{Precision: 10, Scale: 2})
	defer b.Release()

	// 123.45 at scale 2 stores the integer 12345.
	v, err := decimal.NewFromString("123.45")
	require.NoError(t, err)
	require.NoError(t, b.AppendDecimal(v))

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	arr := array.MakeFromData(data).(*array.Decimal128)
	defer arr.Release()

	require.Equal(t, decimal128.FromI64(12345), arr.Value(0))
}
