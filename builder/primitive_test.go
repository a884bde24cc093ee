package builder

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/float16"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ydb-platform/colbuild/common"
)

func TestPrimitiveRoundTripWithNulls(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt64Builder(mem)
	defer b.Release()

	values := []int64{10, 20, 30, 40, 50}
	valid := []bool{true, false, true, false, true}

	require.NoError(t, b.AppendValues(values, valid))
	require.Equal(t, 5, b.Len())
	require.Equal(t, 2, b.NullN())

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	arr := array.MakeFromData(data).(*array.Int64)
	defer arr.Release()

	for i, v := range values {
		if valid[i] {
			require.True(t, arr.IsValid(i))
			require.Equal(t, v, arr.Value(i))
		} else {
			require.True(t, arr.IsNull(i))
		}
	}
}

func TestPrimitiveDataBufferTrimmedAtFinish(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	require.NoError(t, b.AppendValues([]int32{1, 2, 3}, nil))

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	require.Equal(t, 3*arrow.Int32SizeBytes, data.Buffers()[1].Len())
}

func TestPrimitiveCapacityFloor(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	require.NoError(t, b.Append(1))
	require.Equal(t, minBuilderCapacity, b.Cap())
}

func TestPrimitiveFinishResetsForReuse(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	require.NoError(t, b.AppendValues([]int32{1, 2, 3}, nil))

	first, err := b.Finish()
	require.NoError(t, err)
	first.Release()

	require.Equal(t, 0, b.Len())
	require.Equal(t, 0, b.Cap())
	require.Equal(t, 0, b.NullN())

	// A reused builder behaves exactly like a fresh one.
	require.NoError(t, b.Append(42))

	reused, err := b.Finish()
	require.NoError(t, err)

	defer reused.Release()

	fresh := NewInt32Builder(mem)
	defer fresh.Release()

	require.NoError(t, fresh.Append(42))

	expected, err := fresh.Finish()
	require.NoError(t, err)

	defer expected.Release()

	reusedArr := array.MakeFromData(reused).(*array.Int32)
	defer reusedArr.Release()

	expectedArr := array.MakeFromData(expected).(*array.Int32)
	defer expectedArr.Release()

	require.Empty(t, cmp.Diff(expectedArr.Int32Values(), reusedArr.Int32Values()))
	require.Equal(t, expectedArr.NullN(), reusedArr.NullN())
}

func TestPrimitiveAppendValuesBytes(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewFloat64Builder(mem)
	defer b.Release()

	require.NoError(t, b.AppendValuesBytes([]float64{1.5, 2.5, 3.5}, []byte{1, 0, 1}))
	require.Equal(t, 1, b.NullN())

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	arr := array.MakeFromData(data).(*array.Float64)
	defer arr.Release()

	require.Equal(t, 1.5, arr.Value(0))
	require.True(t, arr.IsNull(1))
	require.Equal(t, 3.5, arr.Value(2))
}

func TestPrimitiveValidityLengthMismatch(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	err := b.AppendValues([]int32{1, 2}, []bool{true})
	require.ErrorIs(t, err, common.ErrInvariantViolation)
	require.Equal(t, 0, b.Len())
}

func TestFloat16Builder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewFloat16Builder(mem)
	defer b.Release()

	require.NoError(t, b.Append(float16.New(1.5)))
	require.NoError(t, b.AppendNull())

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	arr := array.MakeFromData(data).(*array.Float16)
	defer arr.Release()

	require.Equal(t, float32(1.5), arr.Value(0).Float32())
	require.True(t, arr.IsNull(1))
}

func TestTimestampBuilder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewTimestampBuilder(mem, &arrow.TimestampType{Unit: arrow.Microsecond})
	defer b.Release()

	require.NoError(t, b.Append(arrow.Timestamp(1700000000000000)))
	require.NoError(t, b.AppendNull())

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	arr := array.MakeFromData(data).(*array.Timestamp)
	defer arr.Release()

	require.Equal(t, arrow.Timestamp(1700000000000000), arr.Value(0))
	require.True(t, arr.IsNull(1))
}
