package builder

import (
	"bytes"
	"fmt"
	"math"
	"unsafe"

	"github.com/OneOfOne/xxhash"
	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

const (
	// hashSlotEmpty marks an unoccupied slot of the dedup table.
	hashSlotEmpty = int32(-1)

	// initialHashTableSize is the starting slot count; always a power of
	// two.
	initialHashTableSize = 1024

	// maxHashTableLoad is the occupancy fraction above which the table
	// doubles.
	maxHashTableLoad = 0.7
)

// dictionaryBuilderBase carries the dedup machinery shared by every
// dictionary builder: the open-addressed hash table, the adaptive indices
// builder and the entry-id offset separating overflow entries from the
// current batch.
//
// The hash table and the overflow dictionary deliberately survive Finish:
// identical keys keep their global index across batches. Call Reset to
// sever that memory and start from scratch.
type dictionaryBuilderBase struct {
	builderBase

	hashTable              *memory.Buffer
	hashSlots              []int32
	hashTableSize          int
	modBitmask             uint64
	hashTableLoadThreshold int

	// entryIDOffset counts the unique values accumulated by all previous
	// finished batches; a slot index below it resolves into the overflow
	// dictionary.
	entryIDOffset int

	valuesBuilder *AdaptiveIntBuilder
}

func (b *dictionaryBuilderBase) Len() int   { return b.valuesBuilder.Len() }
func (b *dictionaryBuilderBase) NullN() int { return b.valuesBuilder.NullN() }

func (b *dictionaryBuilderBase) init(capacity int) {
	b.initBitmap(capacity)

	if b.hashTable == nil {
		b.newHashTable(initialHashTableSize)
	}

	//nolint:errcheck // resize of a fresh adaptive builder cannot fail
	b.valuesBuilder.Resize(capacity)
}

func (b *dictionaryBuilderBase) newHashTable(size int) {
	b.hashTable = memory.NewResizableBuffer(b.mem)
	b.hashTable.Resize(size * arrow.Int32SizeBytes)
	// -1 in every slot is all bytes 0xFF.
	memory.Set(b.hashTable.Bytes(), 0xFF)

	b.hashSlots = arrow.Int32Traits.CastFromBytes(b.hashTable.Bytes())
	b.hashTableSize = size
	b.modBitmask = uint64(size - 1)
	b.hashTableLoadThreshold = int(math.Ceil(maxHashTableLoad * float64(size)))
}

func (b *dictionaryBuilderBase) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	if b.capacity == 0 {
		b.init(capacity)
		return nil
	}

	b.resizeBitmap(capacity)

	return nil
}

func (b *dictionaryBuilderBase) Reserve(n int) error { return b.reserve(n, b.Resize) }

// AppendNull records a null row. Null keys bypass the hash table entirely.
func (b *dictionaryBuilderBase) AppendNull() error { return b.valuesBuilder.AppendNull() }

// probe walks the table from the key's hash bucket until it finds either an
// empty slot or a slot whose value the caller deems equal.
func (b *dictionaryBuilderBase) probe(hash uint64, slotDifferent func(index int32) bool) uint64 {
	j := hash & b.modBitmask
	for b.hashSlots[j] != hashSlotEmpty && slotDifferent(b.hashSlots[j]) {
		j = (j + 1) & b.modBitmask
	}

	return j
}

// doubleTableSize rebuilds the table at twice the size. hashValue must
// resolve a slot index into the hash of the value it refers to, across both
// the overflow and the current dictionary.
func (b *dictionaryBuilderBase) doubleTableSize(hashValue func(index int32) uint64) {
	newSize := b.hashTableSize * 2
	newTable := memory.NewResizableBuffer(b.mem)
	newTable.Resize(newSize * arrow.Int32SizeBytes)
	memory.Set(newTable.Bytes(), 0xFF)

	newSlots := arrow.Int32Traits.CastFromBytes(newTable.Bytes())
	newMask := uint64(newSize - 1)

	for _, index := range b.hashSlots {
		if index == hashSlotEmpty {
			continue
		}

		j := hashValue(index) & newMask
		for newSlots[j] != hashSlotEmpty {
			j = (j + 1) & newMask
		}

		newSlots[j] = index
	}

	b.hashTable.Release()
	b.hashTable = newTable
	b.hashSlots = newSlots
	b.hashTableSize = newSize
	b.modBitmask = newMask
	b.hashTableLoadThreshold = int(math.Ceil(maxHashTableLoad * float64(newSize)))
}

// finishIndices wraps the finished indices array into dictionary-typed
// array data carrying the batch dictionary.
func (b *dictionaryBuilderBase) finishIndices(dictData arrow.ArrayData) (arrow.ArrayData, error) {
	idxData, err := b.valuesBuilder.Finish()
	if err != nil {
		dictData.Release()
		return nil, fmt.Errorf("finish indices builder: %w", err)
	}

	dtype := &arrow.DictionaryType{IndexType: idxData.DataType(), ValueType: dictData.DataType()}

	out := array.NewData(dtype, idxData.Len(), idxData.Buffers(), nil, idxData.NullN(), 0)
	out.SetDictionary(dictData)

	idxData.Release()
	dictData.Release()

	return out, nil
}

func (b *dictionaryBuilderBase) releaseTable() {
	if b.hashTable != nil {
		b.hashTable.Release()
		b.hashTable = nil
		b.hashSlots = nil
	}

	b.hashTableSize = 0
	b.modBitmask = 0
	b.hashTableLoadThreshold = 0
	b.entryIDOffset = 0
}

// DictionaryBuilder dictionary-encodes fixed-width values: unique values
// land in a dictionary, rows become integer indices into it.
type DictionaryBuilder[T FixedWidthValue] struct {
	dictionaryBuilderBase

	dictBuilder         *PrimitiveBuilder[T]
	overflowDictBuilder *PrimitiveBuilder[T]
}

// NewPrimitiveDictionaryBuilder builds a dictionary over the fixed-width
// value type described by valueType; T must match it.
func NewPrimitiveDictionaryBuilder[T FixedWidthValue](mem memory.Allocator, valueType arrow.DataType) *DictionaryBuilder[T] {
	return &DictionaryBuilder[T]{
		dictionaryBuilderBase: dictionaryBuilderBase{
			builderBase:   builderBase{dtype: valueType, mem: mem},
			valuesBuilder: NewAdaptiveIntBuilder(mem),
		},
		dictBuilder:         newPrimitiveBuilder[T](mem, valueType),
		overflowDictBuilder: newPrimitiveBuilder[T](mem, valueType),
	}
}

func (b *DictionaryBuilder[T]) Append(v T) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	j := b.probe(hashFixedWidth(v), func(index int32) bool { return b.resolveValue(index) != v })
	index := b.hashSlots[j]

	if index == hashSlotEmpty {
		index = int32(b.entryIDOffset + b.dictBuilder.Len())
		b.hashSlots[j] = index

		if err := b.dictBuilder.Append(v); err != nil {
			return fmt.Errorf("append dictionary value: %w", err)
		}

		if b.entryIDOffset+b.dictBuilder.Len() > b.hashTableLoadThreshold {
			b.doubleTableSize(func(index int32) uint64 { return hashFixedWidth(b.resolveValue(index)) })
		}
	}

	return b.valuesBuilder.Append(int64(index))
}

// resolveValue maps a slot index onto the concatenation of the overflow and
// current dictionaries.
func (b *DictionaryBuilder[T]) resolveValue(index int32) T {
	if int(index) >= b.entryIDOffset {
		return b.dictBuilder.Value(int(index) - b.entryIDOffset)
	}

	return b.overflowDictBuilder.Value(int(index))
}

// AppendArray appends every element of an already-built array of the same
// value type.
func (b *DictionaryBuilder[T]) AppendArray(arr arrow.Array) error {
	if !arrow.TypeEqual(arr.DataType(), b.dictBuilder.Type()) {
		return fmt.Errorf("append %s array to %s dictionary builder: %w",
			arr.DataType(), b.dictBuilder.Type(), common.ErrDataTypeMismatch)
	}

	values, ok := arr.(valueArray[T])
	if !ok {
		return fmt.Errorf("append %s array to %s dictionary builder: %w",
			arr.DataType(), b.dictBuilder.Type(), common.ErrDataTypeMismatch)
	}

	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			if err := b.AppendNull(); err != nil {
				return err
			}

			continue
		}

		if err := b.Append(values.Value(i)); err != nil {
			return err
		}
	}

	return nil
}

func (b *DictionaryBuilder[T]) Finish() (arrow.ArrayData, error) {
	// Future batches must see this batch's uniques: move them into the
	// overflow dictionary before finishing.
	moved := b.dictBuilder.Len()
	if err := b.overflowDictBuilder.AppendValues(b.dictBuilder.Values(), nil); err != nil {
		return nil, fmt.Errorf("move batch dictionary to overflow: %w", err)
	}

	b.entryIDOffset += moved

	dictData, err := b.dictBuilder.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish dictionary builder: %w", err)
	}

	out, err := b.finishIndices(dictData)
	if err != nil {
		return nil, err
	}

	if b.capacity > 0 {
		//nolint:errcheck // resizing fresh builders cannot fail
		b.dictBuilder.Resize(b.capacity)
		//nolint:errcheck
		b.valuesBuilder.Resize(b.capacity)
	}

	return out, nil
}

// Reset drops the cross-batch state: the hash table, the overflow
// dictionary and the entry-id offset. Subsequent batches dedup
// independently of everything appended before.
func (b *DictionaryBuilder[T]) Reset() {
	b.releaseTable()
	b.releaseBitmap()
	b.dictBuilder.Release()
	b.overflowDictBuilder.Release()
	b.valuesBuilder.Release()
}

func (b *DictionaryBuilder[T]) Release() { b.Reset() }

// BinaryDictionaryBuilder dictionary-encodes variable-length byte strings;
// hashing and equality run over the raw bytes.
type BinaryDictionaryBuilder struct {
	dictionaryBuilderBase

	dictBuilder         *BinaryBuilder
	overflowDictBuilder *BinaryBuilder
}

func NewBinaryDictionaryBuilder(mem memory.Allocator) *BinaryDictionaryBuilder {
	return newBinaryDictionaryBuilder(mem, arrow.BinaryTypes.Binary)
}

// NewStringDictionaryBuilder dictionary-encodes UTF-8 strings; no encoding
// validation is performed.
func NewStringDictionaryBuilder(mem memory.Allocator) *BinaryDictionaryBuilder {
	return newBinaryDictionaryBuilder(mem, arrow.BinaryTypes.String)
}

func newBinaryDictionaryBuilder(mem memory.Allocator, dtype arrow.DataType) *BinaryDictionaryBuilder {
	return &BinaryDictionaryBuilder{
		dictionaryBuilderBase: dictionaryBuilderBase{
			builderBase:   builderBase{dtype: dtype, mem: mem},
			valuesBuilder: NewAdaptiveIntBuilder(mem),
		},
		dictBuilder:         newBinaryBuilder(mem, dtype),
		overflowDictBuilder: newBinaryBuilder(mem, dtype),
	}
}

func (b *BinaryDictionaryBuilder) Append(v []byte) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	j := b.probe(xxhash.Checksum64(v), func(index int32) bool { return !bytes.Equal(b.resolveValue(index), v) })
	index := b.hashSlots[j]

	if index == hashSlotEmpty {
		index = int32(b.entryIDOffset + b.dictBuilder.Len())
		b.hashSlots[j] = index

		if err := b.dictBuilder.Append(v); err != nil {
			return fmt.Errorf("append dictionary value: %w", err)
		}

		if b.entryIDOffset+b.dictBuilder.Len() > b.hashTableLoadThreshold {
			b.doubleTableSize(func(index int32) uint64 { return xxhash.Checksum64(b.resolveValue(index)) })
		}
	}

	return b.valuesBuilder.Append(int64(index))
}

func (b *BinaryDictionaryBuilder) AppendString(v string) error { return b.Append([]byte(v)) }

func (b *BinaryDictionaryBuilder) resolveValue(index int32) []byte {
	if int(index) >= b.entryIDOffset {
		return b.dictBuilder.GetValue(int(index) - b.entryIDOffset)
	}

	return b.overflowDictBuilder.GetValue(int(index))
}

func (b *BinaryDictionaryBuilder) AppendArray(arr arrow.Array) error {
	if !arrow.TypeEqual(arr.DataType(), b.dictBuilder.Type()) {
		return fmt.Errorf("append %s array to %s dictionary builder: %w",
			arr.DataType(), b.dictBuilder.Type(), common.ErrDataTypeMismatch)
	}

	for i := 0; i < arr.Len(); i++ {
		if arr.IsNull(i) {
			if err := b.AppendNull(); err != nil {
				return err
			}

			continue
		}

		var err error

		switch values := arr.(type) {
		case *array.Binary:
			err = b.Append(values.Value(i))
		case *array.String:
			err = b.AppendString(values.Value(i))
		default:
			return fmt.Errorf("append %T array to binary dictionary builder: %w", arr, common.ErrDataTypeMismatch)
		}

		if err != nil {
			return err
		}
	}

	return nil
}

func (b *BinaryDictionaryBuilder) Finish() (arrow.ArrayData, error) {
	moved := b.dictBuilder.Len()
	for i := 0; i < moved; i++ {
		if err := b.overflowDictBuilder.Append(b.dictBuilder.GetValue(i)); err != nil {
			return nil, fmt.Errorf("move batch dictionary to overflow: %w", err)
		}
	}

	b.entryIDOffset += moved

	dictData, err := b.dictBuilder.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish dictionary builder: %w", err)
	}

	out, err := b.finishIndices(dictData)
	if err != nil {
		return nil, err
	}

	if b.capacity > 0 {
		//nolint:errcheck
		b.dictBuilder.Resize(b.capacity)
		//nolint:errcheck
		b.valuesBuilder.Resize(b.capacity)
	}

	return out, nil
}

func (b *BinaryDictionaryBuilder) Reset() {
	b.releaseTable()
	b.releaseBitmap()
	b.dictBuilder.Release()
	b.overflowDictBuilder.Release()
	b.valuesBuilder.Release()
}

func (b *BinaryDictionaryBuilder) Release() { b.Reset() }

// FixedSizeBinaryDictionaryBuilder dictionary-encodes fixed-width byte
// strings; equality is a bytewise compare over the type's width.
type FixedSizeBinaryDictionaryBuilder struct {
	dictionaryBuilderBase

	dictBuilder         *FixedSizeBinaryBuilder
	overflowDictBuilder *FixedSizeBinaryBuilder
}

func NewFixedSizeBinaryDictionaryBuilder(mem memory.Allocator, dtype *arrow.FixedSizeBinaryType) *FixedSizeBinaryDictionaryBuilder {
	return &FixedSizeBinaryDictionaryBuilder{
		dictionaryBuilderBase: dictionaryBuilderBase{
			builderBase:   builderBase{dtype: dtype, mem: mem},
			valuesBuilder: NewAdaptiveIntBuilder(mem),
		},
		dictBuilder:         NewFixedSizeBinaryBuilder(mem, dtype),
		overflowDictBuilder: NewFixedSizeBinaryBuilder(mem, dtype),
	}
}

func (b *FixedSizeBinaryDictionaryBuilder) Append(v []byte) error {
	if len(v) != b.dictBuilder.ByteWidth() {
		return fmt.Errorf("append %d bytes to width-%d dictionary builder: %w",
			len(v), b.dictBuilder.ByteWidth(), common.ErrInvalidByteWidth)
	}

	if err := b.Reserve(1); err != nil {
		return err
	}

	j := b.probe(xxhash.Checksum64(v), func(index int32) bool { return !bytes.Equal(b.resolveValue(index), v) })
	index := b.hashSlots[j]

	if index == hashSlotEmpty {
		index = int32(b.entryIDOffset + b.dictBuilder.Len())
		b.hashSlots[j] = index

		if err := b.dictBuilder.Append(v); err != nil {
			return fmt.Errorf("append dictionary value: %w", err)
		}

		if b.entryIDOffset+b.dictBuilder.Len() > b.hashTableLoadThreshold {
			b.doubleTableSize(func(index int32) uint64 { return xxhash.Checksum64(b.resolveValue(index)) })
		}
	}

	return b.valuesBuilder.Append(int64(index))
}

func (b *FixedSizeBinaryDictionaryBuilder) resolveValue(index int32) []byte {
	if int(index) >= b.entryIDOffset {
		return b.dictBuilder.GetValue(int(index) - b.entryIDOffset)
	}

	return b.overflowDictBuilder.GetValue(int(index))
}

func (b *FixedSizeBinaryDictionaryBuilder) AppendArray(arr arrow.Array) error {
	if !arrow.TypeEqual(arr.DataType(), b.dictBuilder.Type()) {
		return fmt.Errorf("append %s array to %s dictionary builder: %w",
			arr.DataType(), b.dictBuilder.Type(), common.ErrDataTypeMismatch)
	}

	values, ok := arr.(*array.FixedSizeBinary)
	if !ok {
		return fmt.Errorf("append %T array to fixed-size binary dictionary builder: %w", arr, common.ErrDataTypeMismatch)
	}

	for i := 0; i < values.Len(); i++ {
		if values.IsNull(i) {
			if err := b.AppendNull(); err != nil {
				return err
			}

			continue
		}

		if err := b.Append(values.Value(i)); err != nil {
			return err
		}
	}

	return nil
}

func (b *FixedSizeBinaryDictionaryBuilder) Finish() (arrow.ArrayData, error) {
	moved := b.dictBuilder.Len()
	for i := 0; i < moved; i++ {
		if err := b.overflowDictBuilder.Append(b.dictBuilder.GetValue(i)); err != nil {
			return nil, fmt.Errorf("move batch dictionary to overflow: %w", err)
		}
	}

	b.entryIDOffset += moved

	dictData, err := b.dictBuilder.Finish()
	if err != nil {
		return nil, fmt.Errorf("finish dictionary builder: %w", err)
	}

	out, err := b.finishIndices(dictData)
	if err != nil {
		return nil, err
	}

	if b.capacity > 0 {
		//nolint:errcheck
		b.dictBuilder.Resize(b.capacity)
		//nolint:errcheck
		b.valuesBuilder.Resize(b.capacity)
	}

	return out, nil
}

func (b *FixedSizeBinaryDictionaryBuilder) Reset() {
	b.releaseTable()
	b.releaseBitmap()
	b.dictBuilder.Release()
	b.overflowDictBuilder.Release()
	b.valuesBuilder.Release()
}

func (b *FixedSizeBinaryDictionaryBuilder) Release() { b.Reset() }

// NullDictionaryBuilder dictionary-encodes the null type: the dictionary is
// always an empty null array and every append is a null.
type NullDictionaryBuilder struct {
	builderBase

	valuesBuilder *AdaptiveIntBuilder
}

func NewNullDictionaryBuilder(mem memory.Allocator) *NullDictionaryBuilder {
	return &NullDictionaryBuilder{
		builderBase:   builderBase{dtype: arrow.Null, mem: mem},
		valuesBuilder: NewAdaptiveIntBuilder(mem),
	}
}

func (b *NullDictionaryBuilder) Len() int   { return b.valuesBuilder.Len() }
func (b *NullDictionaryBuilder) NullN() int { return b.valuesBuilder.NullN() }

func (b *NullDictionaryBuilder) AppendNull() error { return b.valuesBuilder.AppendNull() }

func (b *NullDictionaryBuilder) Reserve(n int) error { return b.valuesBuilder.Reserve(n) }

func (b *NullDictionaryBuilder) Resize(capacity int) error { return b.valuesBuilder.Resize(capacity) }

// AppendArray appends one null per element of the input null-type array.
func (b *NullDictionaryBuilder) AppendArray(arr arrow.Array) error {
	if !arrow.TypeEqual(arr.DataType(), arrow.Null) {
		return fmt.Errorf("append %s array to null dictionary builder: %w", arr.DataType(), common.ErrDataTypeMismatch)
	}

	for i := 0; i < arr.Len(); i++ {
		if err := b.AppendNull(); err != nil {
			return err
		}
	}

	return nil
}

func (b *NullDictionaryBuilder) Finish() (arrow.ArrayData, error) {
	dictData := array.NewData(arrow.Null, 0, []*memory.Buffer{nil}, nil, 0, 0)

	idxData, err := b.valuesBuilder.Finish()
	if err != nil {
		dictData.Release()
		return nil, fmt.Errorf("finish indices builder: %w", err)
	}

	dtype := &arrow.DictionaryType{IndexType: idxData.DataType(), ValueType: arrow.Null}

	out := array.NewData(dtype, idxData.Len(), idxData.Buffers(), nil, idxData.NullN(), 0)
	out.SetDictionary(dictData)

	idxData.Release()
	dictData.Release()

	return out, nil
}

func (b *NullDictionaryBuilder) Release() { b.valuesBuilder.Release() }

// valueArray is the read surface shared by the typed arrow array wrappers.
type valueArray[T any] interface {
	Len() int
	IsNull(i int) bool
	Value(i int) T
}

// hashFixedWidth hashes the in-memory bytes of a fixed-width value.
func hashFixedWidth[T FixedWidthValue](v T) uint64 {
	size := int(unsafe.Sizeof(v))
	return xxhash.Checksum64(unsafe.Slice((*byte)(unsafe.Pointer(&v)), size))
}
