// Package builder implements append-only builders that accumulate typed
// values into Arrow-format buffers and emit immutable array data on Finish.
//
// Builders are the write side only: finished arrays are read back through
// the arrow/array package. A builder instance must be confined to a single
// goroutine; the allocator behind it has to be thread-safe when shared.
package builder

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/bitutil"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

const (
	// minBuilderCapacity is the floor applied by every payload-bearing
	// builder when it resizes.
	minBuilderCapacity = 32

	// listMaximumElements bounds the row count of offset-bearing builders,
	// since offsets are int32.
	listMaximumElements = 1<<31 - 1

	// binaryMemoryLimit bounds the total payload of a binary builder.
	binaryMemoryLimit = 1<<31 - 1
)

// Builder is the common surface of all array builders.
//
// Finish transfers ownership of the accumulated buffers into the emitted
// array data and resets the builder to its freshly-constructed state, ready
// for reuse.
type Builder interface {
	Type() arrow.DataType
	Len() int
	Cap() int
	NullN() int

	AppendNull() error
	Reserve(n int) error
	Resize(capacity int) error
	Finish() (arrow.ArrayData, error)

	// Release drops the builder's buffer references without emitting
	// anything. Required when a builder is abandoned before Finish.
	Release()
}

// builderBase carries the state shared by every builder: element count,
// capacity and the validity bitmap. Concrete builders embed it and add
// their payload buffers.
type builderBase struct {
	dtype arrow.DataType
	mem   memory.Allocator

	length     int
	capacity   int
	nullCount  int
	nullBitmap *memory.Buffer
	rawBitmap  []byte
}

func (b *builderBase) Type() arrow.DataType { return b.dtype }
func (b *builderBase) Len() int             { return b.length }
func (b *builderBase) Cap() int             { return b.capacity }
func (b *builderBase) NullN() int           { return b.nullCount }

func (b *builderBase) initBitmap(capacity int) {
	b.nullBitmap = memory.NewResizableBuffer(b.mem)

	toAlloc := bitutil.CeilByte(capacity) / 8
	b.nullBitmap.Resize(toAlloc)
	b.rawBitmap = b.nullBitmap.Bytes()
	// The pool does not guarantee zeroed memory.
	memory.Set(b.rawBitmap, 0)
	b.capacity = capacity
}

// resizeBitmap grows the validity bitmap to hold newBits entries and
// zero-fills the newly allocated tail.
func (b *builderBase) resizeBitmap(newBits int) {
	if b.nullBitmap == nil {
		b.initBitmap(newBits)
		return
	}

	oldBytes := b.nullBitmap.Len()
	newBytes := bitutil.CeilByte(newBits) / 8
	b.nullBitmap.Resize(newBytes)
	b.rawBitmap = b.nullBitmap.Bytes()
	b.capacity = newBits

	if oldBytes < newBytes {
		memory.Set(b.rawBitmap[oldBytes:], 0)
	}
}

// reserve ensures room for n more elements, growing to the next power of
// two through the concrete builder's resize. Capacity never shrinks.
func (b *builderBase) reserve(n int, resize func(int) error) error {
	if b.length+n > b.capacity {
		newCapacity := bitutil.NextPowerOf2(b.length + n)
		return resize(newCapacity)
	}

	return nil
}

// advance bumps the length without touching any buffer.
func (b *builderBase) advance(n int) error {
	if b.length+n > b.capacity {
		return fmt.Errorf("advance %d elements beyond capacity %d: %w", n, b.capacity, common.ErrBuilderNotExpanded)
	}

	b.length += n

	return nil
}

func (b *builderBase) unsafeAppendBitmap(valid bool) {
	if valid {
		bitutil.SetBit(b.rawBitmap, b.length)
	} else {
		b.nullCount++
	}

	b.length++
}

// unsafeAppendValidBytes appends n validity bits, one per byte of
// validBytes; a non-zero byte marks the element valid. A nil slice means
// all elements are valid.
func (b *builderBase) unsafeAppendValidBytes(validBytes []byte, n int) {
	if validBytes == nil {
		b.unsafeSetNotNull(n)
		return
	}

	if n == 0 {
		return
	}

	byteOffset := b.length / 8
	bitOffset := b.length % 8
	bitset := b.rawBitmap[byteOffset]

	for i := 0; i < n; i++ {
		if bitOffset == 8 {
			bitOffset = 0
			b.rawBitmap[byteOffset] = bitset
			byteOffset++
			bitset = b.rawBitmap[byteOffset]
		}

		if validBytes[i] != 0 {
			bitset |= bitutil.BitMask[bitOffset]
		} else {
			bitset &= bitutil.FlippedBitMask[bitOffset]
			b.nullCount++
		}

		bitOffset++
	}

	if bitOffset != 0 {
		b.rawBitmap[byteOffset] = bitset
	}

	b.length += n
}

func (b *builderBase) unsafeAppendBools(valid []bool) {
	if len(valid) == 0 {
		return
	}

	byteOffset := b.length / 8
	bitOffset := b.length % 8
	bitset := b.rawBitmap[byteOffset]

	for i := range valid {
		if bitOffset == 8 {
			bitOffset = 0
			b.rawBitmap[byteOffset] = bitset
			byteOffset++
			bitset = b.rawBitmap[byteOffset]
		}

		if valid[i] {
			bitset |= bitutil.BitMask[bitOffset]
		} else {
			bitset &= bitutil.FlippedBitMask[bitOffset]
			b.nullCount++
		}

		bitOffset++
	}

	if bitOffset != 0 {
		b.rawBitmap[byteOffset] = bitset
	}

	b.length += len(valid)
}

// unsafeSetNotNull marks the next n bits valid: bit-by-bit until byte
// alignment, whole bytes with memset, then the trailing bits.
func (b *builderBase) unsafeSetNotNull(n int) {
	newLength := b.length + n

	padToByte := 8 - b.length%8
	if padToByte == 8 {
		padToByte = 0
	}

	if padToByte > n {
		padToByte = n
	}

	for i := b.length; i < b.length+padToByte; i++ {
		bitutil.SetBit(b.rawBitmap, i)
	}

	fastLength := (n - padToByte) / 8
	start := (b.length + padToByte) / 8
	memory.Set(b.rawBitmap[start:start+fastLength], 0xFF)

	for i := b.length + padToByte + fastLength*8; i < newLength; i++ {
		bitutil.SetBit(b.rawBitmap, i)
	}

	b.length = newLength
}

// detachBitmap hands the bitmap buffer over to an emitted array and clears
// the base state.
func (b *builderBase) detachBitmap() *memory.Buffer {
	bitmap := b.nullBitmap
	b.nullBitmap = nil
	b.rawBitmap = nil
	b.length = 0
	b.capacity = 0
	b.nullCount = 0

	return bitmap
}

func (b *builderBase) releaseBitmap() {
	if b.nullBitmap != nil {
		b.nullBitmap.Release()
		b.nullBitmap = nil
		b.rawBitmap = nil
	}

	b.length = 0
	b.capacity = 0
	b.nullCount = 0
}

// NullBuilder accumulates a run of nulls and emits a null-type array with
// no payload buffers.
type NullBuilder struct {
	builderBase
}

func NewNullBuilder(mem memory.Allocator) *NullBuilder {
	return &NullBuilder{builderBase: builderBase{dtype: arrow.Null, mem: mem}}
}

func (b *NullBuilder) AppendNull() error {
	b.length++
	b.nullCount++
	b.capacity = b.length

	return nil
}

func (b *NullBuilder) AppendNulls(n int) error {
	b.length += n
	b.nullCount += n
	b.capacity = b.length

	return nil
}

func (b *NullBuilder) Reserve(int) error { return nil }

func (b *NullBuilder) Resize(int) error { return nil }

func (b *NullBuilder) Finish() (arrow.ArrayData, error) {
	out := array.NewData(arrow.Null, b.length, []*memory.Buffer{nil}, nil, b.length, 0)

	b.length = 0
	b.nullCount = 0
	b.capacity = 0

	return out, nil
}

func (b *NullBuilder) Release() { b.releaseBitmap() }
