package builder

import (
	"fmt"
	"testing"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/require"

	"github.com/ydb-platform/colbuild/common"
)

func finishDictionary(t *testing.T, b Builder) (*array.Dictionary, func()) {
	t.Helper()

	data, err := b.Finish()
	require.NoError(t, err)

	arr := array.MakeFromData(data).(*array.Dictionary)
	data.Release()

	return arr, arr.Release
}

func TestDictionaryCrossBatchDedup(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewPrimitiveDictionaryBuilder[int32](mem, arrow.PrimitiveTypes.Int32)
	defer b.Release()

	for _, v := range []int32{5, 7, 5, 9} {
		require.NoError(t, b.Append(v))
	}

	first, release := finishDictionary(t, b)
	defer release()

	indices := first.Indices().(*array.Int8)
	require.Empty(t, cmp.Diff([]int8{0, 1, 0, 2}, indices.Int8Values()))

	dict := first.Dictionary().(*array.Int32)
	require.Empty(t, cmp.Diff([]int32{5, 7, 9}, dict.Int32Values()))

	// The dedup table survives Finish: repeated keys keep their global
	// index, new keys continue the numbering.
	for _, v := range []int32{9, 11, 5} {
		require.NoError(t, b.Append(v))
	}

	second, release := finishDictionary(t, b)
	defer release()

	secondIndices := second.Indices().(*array.Int8)
	require.Empty(t, cmp.Diff([]int8{2, 3, 0}, secondIndices.Int8Values()))

	secondDict := second.Dictionary().(*array.Int32)
	require.Empty(t, cmp.Diff([]int32{11}, secondDict.Int32Values()))
}

func TestDictionaryNullKeys(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewPrimitiveDictionaryBuilder[int64](mem, arrow.PrimitiveTypes.Int64)
	defer b.Release()

	require.NoError(t, b.Append(5))
	require.NoError(t, b.AppendNull())
	require.NoError(t, b.Append(5))

	arr, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 3, arr.Len())
	require.Equal(t, 1, arr.NullN())
	require.True(t, arr.IsNull(1))
	require.Equal(t, 0, arr.GetValueIndex(0))
	require.Equal(t, 0, arr.GetValueIndex(2))

	// Null keys never enter the dictionary.
	require.Equal(t, 1, arr.Dictionary().Len())
}

func TestStringDictionaryHashTableGrowth(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewStringDictionaryBuilder(mem)
	defer b.Release()

	// Initial table: 1024 slots, load threshold ceil(0.7*1024) = 717.
	for i := 0; i < 717; i++ {
		require.NoError(t, b.AppendString(fmt.Sprintf("value-%03d", i)))
	}

	require.Equal(t, initialHashTableSize, b.hashTableSize)

	// Insertion 718 crosses the threshold and doubles the table once.
	require.NoError(t, b.AppendString("value-717"))
	require.Equal(t, 2*initialHashTableSize, b.hashTableSize)

	for i := 718; i < 800; i++ {
		require.NoError(t, b.AppendString(fmt.Sprintf("value-%03d", i)))
	}

	require.Equal(t, 2*initialHashTableSize, b.hashTableSize)

	arr, release := finishDictionary(t, b)
	defer release()

	// All 800 keys are distinct and keep insertion order.
	require.Equal(t, 800, arr.Dictionary().Len())

	for i := 0; i < 800; i++ {
		require.Equal(t, i, arr.GetValueIndex(i))
	}
}

func TestStringDictionaryCrossBatch(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewStringDictionaryBuilder(mem)
	defer b.Release()

	for _, v := range []string{"a", "b", "a"} {
		require.NoError(t, b.AppendString(v))
	}

	first, release := finishDictionary(t, b)
	defer release()

	firstDict := first.Dictionary().(*array.String)
	require.Equal(t, 2, firstDict.Len())
	require.Equal(t, "a", firstDict.Value(0))
	require.Equal(t, "b", firstDict.Value(1))

	for _, v := range []string{"b", "c"} {
		require.NoError(t, b.AppendString(v))
	}

	second, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 1, second.GetValueIndex(0))
	require.Equal(t, 2, second.GetValueIndex(1))

	secondDict := second.Dictionary().(*array.String)
	require.Equal(t, 1, secondDict.Len())
	require.Equal(t, "c", secondDict.Value(0))
}

func TestDictionaryReset(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewStringDictionaryBuilder(mem)
	defer b.Release()

	require.NoError(t, b.AppendString("a"))

	first, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 1, first.Dictionary().Len())

	// Reset severs the cross-batch memory: "a" dedups from scratch.
	b.Reset()

	require.NoError(t, b.AppendString("a"))

	second, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 0, second.GetValueIndex(0))
	require.Equal(t, 1, second.Dictionary().Len())
}

func TestFixedSizeBinaryDictionary(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewFixedSizeBinaryDictionaryBuilder(mem, &arrow.FixedSizeBinaryType{ByteWidth: 2})
	defer b.Release()

	require.NoError(t, b.Append([]byte("aa")))
	require.NoError(t, b.Append([]byte("bb")))
	require.NoError(t, b.Append([]byte("aa")))

	err := b.Append([]byte("way too long"))
	require.ErrorIs(t, err, common.ErrInvalidByteWidth)

	arr, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 3, arr.Len())
	require.Equal(t, 0, arr.GetValueIndex(0))
	require.Equal(t, 1, arr.GetValueIndex(1))
	require.Equal(t, 0, arr.GetValueIndex(2))
	require.Equal(t, 2, arr.Dictionary().Len())
}

func TestDictionaryAppendArray(t *testing.T) {
	mem := memory.NewGoAllocator()

	source := NewInt32Builder(mem)
	require.NoError(t, source.AppendValues([]int32{1, 2, 1}, []bool{true, true, true}))
	require.NoError(t, source.AppendNull())

	sourceData, err := source.Finish()
	require.NoError(t, err)

	sourceArr := array.MakeFromData(sourceData).(*array.Int32)
	sourceData.Release()

	defer sourceArr.Release()

	b := NewPrimitiveDictionaryBuilder[int32](mem, arrow.PrimitiveTypes.Int32)
	defer b.Release()

	require.NoError(t, b.AppendArray(sourceArr))

	arr, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 4, arr.Len())
	require.Equal(t, 1, arr.NullN())
	require.Equal(t, 0, arr.GetValueIndex(0))
	require.Equal(t, 1, arr.GetValueIndex(1))
	require.Equal(t, 0, arr.GetValueIndex(2))
	require.True(t, arr.IsNull(3))
}

func TestDictionaryAppendArrayTypeMismatch(t *testing.T) {
	mem := memory.NewGoAllocator()

	source := NewFloat64Builder(mem)
	require.NoError(t, source.Append(1.5))

	sourceData, err := source.Finish()
	require.NoError(t, err)

	sourceArr := array.MakeFromData(sourceData).(*array.Float64)
	sourceData.Release()

	defer sourceArr.Release()

	b := NewPrimitiveDictionaryBuilder[int32](mem, arrow.PrimitiveTypes.Int32)
	defer b.Release()

	err = b.AppendArray(sourceArr)
	require.ErrorIs(t, err, common.ErrDataTypeMismatch)
}

func TestNullDictionaryBuilder(t *testing.T) {
	mem := memory.NewGoAllocator()

	b := NewNullDictionaryBuilder(mem)
	defer b.Release()

	require.NoError(t, b.AppendNull())
	require.NoError(t, b.AppendNull())

	arr, release := finishDictionary(t, b)
	defer release()

	require.Equal(t, 2, arr.Len())
	require.Equal(t, 2, arr.NullN())
	require.Equal(t, 0, arr.Dictionary().Len())
}
