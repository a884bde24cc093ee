package builder

import (
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/bitutil"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/stretchr/testify/require"

	"github.com/ydb-platform/colbuild/common"
)

func TestAdvanceBeyondCapacity(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	require.NoError(t, b.Resize(minBuilderCapacity))

	err := b.Advance(minBuilderCapacity + 1)
	require.ErrorIs(t, err, common.ErrBuilderNotExpanded)
	require.Equal(t, 0, b.Len())

	require.NoError(t, b.Advance(minBuilderCapacity))
	require.Equal(t, minBuilderCapacity, b.Len())
}

func TestReserveGrowsToPowerOfTwo(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	require.NoError(t, b.Reserve(100))
	require.Equal(t, 128, b.Cap())

	// Reserve within capacity never resizes.
	require.NoError(t, b.Reserve(100))
	require.Equal(t, 128, b.Cap())
}

func TestResizeNeverLosesLength(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	for i := 0; i < 100; i++ {
		require.NoError(t, b.Append(int32(i)))
	}

	require.LessOrEqual(t, b.Len(), b.Cap())
	require.Equal(t, 100, b.Len())
}

func TestSetNotNullCrossesByteBoundaries(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewInt32Builder(mem)
	defer b.Release()

	// Head misalignment: 3 appended bits, then a bulk run covering whole
	// bytes plus a tail.
	require.NoError(t, b.Append(1))
	require.NoError(t, b.AppendNull())
	require.NoError(t, b.Append(2))

	values := make([]int32, 21)
	require.NoError(t, b.AppendValues(values, nil))

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	require.Equal(t, 24, data.Len())
	require.Equal(t, 1, data.NullN())

	bitmap := data.Buffers()[0].Bytes()
	for i := 0; i < 24; i++ {
		require.Equal(t, i != 1, bitutil.BitIsSet(bitmap, i), "bit %d", i)
	}
}

func TestNullBuilder(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	b := NewNullBuilder(mem)
	defer b.Release()

	require.NoError(t, b.AppendNull())
	require.NoError(t, b.AppendNulls(3))

	data, err := b.Finish()
	require.NoError(t, err)

	defer data.Release()

	require.Equal(t, arrow.NULL, data.DataType().ID())
	require.Equal(t, 4, data.Len())
	require.Equal(t, 4, data.NullN())
	require.Nil(t, data.Buffers()[0])

	// The builder is reusable after Finish.
	require.Equal(t, 0, b.Len())
}
