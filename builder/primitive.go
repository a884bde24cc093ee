package builder

import (
	"fmt"
	"unsafe"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/float16"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

// FixedWidthValue enumerates the element types storable by a
// PrimitiveBuilder. All are fixed-width and value-semantic.
type FixedWidthValue interface {
	int8 | int16 | int32 | int64 |
		uint8 | uint16 | uint32 | uint64 |
		float32 | float64 |
		arrow.Date32 | arrow.Date64 |
		arrow.Time32 | arrow.Time64 | arrow.Timestamp |
		float16.Num
}

// PrimitiveBuilder accumulates fixed-width values of type T into a single
// payload buffer.
type PrimitiveBuilder[T FixedWidthValue] struct {
	builderBase

	byteWidth int
	data      *memory.Buffer
	rawData   []T
}

func newPrimitiveBuilder[T FixedWidthValue](mem memory.Allocator, dtype arrow.DataType) *PrimitiveBuilder[T] {
	var zero T

	return &PrimitiveBuilder[T]{
		builderBase: builderBase{dtype: dtype, mem: mem},
		byteWidth:   int(unsafe.Sizeof(zero)),
	}
}

func (b *PrimitiveBuilder[T]) init(capacity int) {
	b.initBitmap(capacity)

	if b.data == nil {
		b.data = memory.NewResizableBuffer(b.mem)
	}

	nbytes := capacity * b.byteWidth
	b.data.Resize(nbytes)
	memory.Set(b.data.Bytes(), 0)
	b.refreshRawData()
}

func (b *PrimitiveBuilder[T]) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	if b.capacity == 0 {
		b.init(capacity)
		return nil
	}

	b.resizeBitmap(capacity)

	oldBytes := b.data.Len()
	newBytes := capacity * b.byteWidth
	b.data.Resize(newBytes)
	memory.Set(b.data.Bytes()[oldBytes:], 0)
	b.refreshRawData()

	return nil
}

func (b *PrimitiveBuilder[T]) Reserve(n int) error { return b.reserve(n, b.Resize) }

func (b *PrimitiveBuilder[T]) Advance(n int) error { return b.advance(n) }

func (b *PrimitiveBuilder[T]) Append(v T) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.rawData[b.length] = v
	b.unsafeAppendBitmap(true)

	return nil
}

func (b *PrimitiveBuilder[T]) AppendNull() error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(false)

	return nil
}

// AppendValues bulk-appends values with per-element validity. A nil valid
// slice marks every element valid.
func (b *PrimitiveBuilder[T]) AppendValues(values []T, valid []bool) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("append %d values with %d validity entries: %w",
			len(values), len(valid), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	copy(b.rawData[b.length:], values)

	if valid == nil {
		b.unsafeSetNotNull(len(values))
	} else {
		b.unsafeAppendBools(valid)
	}

	return nil
}

// AppendValuesBytes is the valid-bytes flavour: each non-zero byte of
// validBytes marks the matching element valid; nil means all valid.
func (b *PrimitiveBuilder[T]) AppendValuesBytes(values []T, validBytes []byte) error {
	if validBytes != nil && len(validBytes) != len(values) {
		return fmt.Errorf("append %d values with %d validity bytes: %w",
			len(values), len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	copy(b.rawData[b.length:], values)
	b.unsafeAppendValidBytes(validBytes, len(values))

	return nil
}

// Value reads back an element still held by the builder.
func (b *PrimitiveBuilder[T]) Value(i int) T { return b.rawData[i] }

func (b *PrimitiveBuilder[T]) Values() []T { return b.rawData[:b.length] }

func (b *PrimitiveBuilder[T]) Finish() (arrow.ArrayData, error) {
	bytesRequired := b.length * b.byteWidth
	if b.data != nil && bytesRequired > 0 && bytesRequired < b.data.Len() {
		b.data.Resize(bytesRequired)
	}

	out := array.NewData(b.dtype, b.length, []*memory.Buffer{b.nullBitmap, b.data}, nil, b.nullCount, 0)
	b.Release()

	return out, nil
}

func (b *PrimitiveBuilder[T]) Release() {
	b.releaseBitmap()

	if b.data != nil {
		b.data.Release()
		b.data = nil
	}

	b.rawData = nil
}

func (b *PrimitiveBuilder[T]) refreshRawData() {
	bytes := b.data.Bytes()
	if len(bytes) == 0 {
		b.rawData = nil
		return
	}

	b.rawData = unsafe.Slice((*T)(unsafe.Pointer(&bytes[0])), len(bytes)/b.byteWidth)
}

type (
	Int8Builder      = PrimitiveBuilder[int8]
	Int16Builder     = PrimitiveBuilder[int16]
	Int32Builder     = PrimitiveBuilder[int32]
	Int64Builder     = PrimitiveBuilder[int64]
	Uint8Builder     = PrimitiveBuilder[uint8]
	Uint16Builder    = PrimitiveBuilder[uint16]
	Uint32Builder    = PrimitiveBuilder[uint32]
	Uint64Builder    = PrimitiveBuilder[uint64]
	Float32Builder   = PrimitiveBuilder[float32]
	Float64Builder   = PrimitiveBuilder[float64]
	Float16Builder   = PrimitiveBuilder[float16.Num]
	Date32Builder    = PrimitiveBuilder[arrow.Date32]
	Date64Builder    = PrimitiveBuilder[arrow.Date64]
	Time32Builder    = PrimitiveBuilder[arrow.Time32]
	Time64Builder    = PrimitiveBuilder[arrow.Time64]
	TimestampBuilder = PrimitiveBuilder[arrow.Timestamp]
)

func NewInt8Builder(mem memory.Allocator) *Int8Builder {
	return newPrimitiveBuilder[int8](mem, arrow.PrimitiveTypes.Int8)
}

func NewInt16Builder(mem memory.Allocator) *Int16Builder {
	return newPrimitiveBuilder[int16](mem, arrow.PrimitiveTypes.Int16)
}

func NewInt32Builder(mem memory.Allocator) *Int32Builder {
	return newPrimitiveBuilder[int32](mem, arrow.PrimitiveTypes.Int32)
}

func NewInt64Builder(mem memory.Allocator) *Int64Builder {
	return newPrimitiveBuilder[int64](mem, arrow.PrimitiveTypes.Int64)
}

func NewUint8Builder(mem memory.Allocator) *Uint8Builder {
	return newPrimitiveBuilder[uint8](mem, arrow.PrimitiveTypes.Uint8)
}

func NewUint16Builder(mem memory.Allocator) *Uint16Builder {
	return newPrimitiveBuilder[uint16](mem, arrow.PrimitiveTypes.Uint16)
}

func NewUint32Builder(mem memory.Allocator) *Uint32Builder {
	return newPrimitiveBuilder[uint32](mem, arrow.PrimitiveTypes.Uint32)
}

func NewUint64Builder(mem memory.Allocator) *Uint64Builder {
	return newPrimitiveBuilder[uint64](mem, arrow.PrimitiveTypes.Uint64)
}

func NewFloat32Builder(mem memory.Allocator) *Float32Builder {
	return newPrimitiveBuilder[float32](mem, arrow.PrimitiveTypes.Float32)
}

func NewFloat64Builder(mem memory.Allocator) *Float64Builder {
	return newPrimitiveBuilder[float64](mem, arrow.PrimitiveTypes.Float64)
}

func NewFloat16Builder(mem memory.Allocator) *Float16Builder {
	return newPrimitiveBuilder[float16.Num](mem, arrow.FixedWidthTypes.Float16)
}

func NewDate32Builder(mem memory.Allocator) *Date32Builder {
	return newPrimitiveBuilder[arrow.Date32](mem, arrow.PrimitiveTypes.Date32)
}

func NewDate64Builder(mem memory.Allocator) *Date64Builder {
	return newPrimitiveBuilder[arrow.Date64](mem, arrow.PrimitiveTypes.Date64)
}

func NewTime32Builder(mem memory.Allocator, dtype *arrow.Time32Type) *Time32Builder {
	return newPrimitiveBuilder[arrow.Time32](mem, dtype)
}

func NewTime64Builder(mem memory.Allocator, dtype *arrow.Time64Type) *Time64Builder {
	return newPrimitiveBuilder[arrow.Time64](mem, dtype)
}

func NewTimestampBuilder(mem memory.Allocator, dtype *arrow.TimestampType) *TimestampBuilder {
	return newPrimitiveBuilder[arrow.Timestamp](mem, dtype)
}
