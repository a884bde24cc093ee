package builder

import (
	"fmt"
	"math"
	"unsafe"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"golang.org/x/exp/constraints"

	"github.com/ydb-platform/colbuild/common"
)

// adaptiveIntBuilderBase holds the payload of the adaptive builders: raw
// bytes interpreted at the current element width. intSize only ever grows
// between construction and Finish.
type adaptiveIntBuilderBase struct {
	builderBase

	data    *memory.Buffer
	rawData []byte
	intSize int
}

func (b *adaptiveIntBuilderBase) IntSize() int { return b.intSize }

func (b *adaptiveIntBuilderBase) init(capacity int) {
	b.initBitmap(capacity)

	if b.data == nil {
		b.data = memory.NewResizableBuffer(b.mem)
	}

	nbytes := capacity * b.intSize
	b.data.Resize(nbytes)
	memory.Set(b.data.Bytes(), 0)
	b.rawData = b.data.Bytes()
}

func (b *adaptiveIntBuilderBase) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	if b.capacity == 0 {
		b.init(capacity)
		return nil
	}

	b.resizeBitmap(capacity)
	b.resizeData(capacity)

	return nil
}

// resizeData grows the payload buffer to capacity elements at the current
// intSize. Element capacity is tracked explicitly; byte sizes are always
// derived from it, never read back from the pool.
func (b *adaptiveIntBuilderBase) resizeData(capacity int) {
	oldBytes := b.data.Len()
	newBytes := capacity * b.intSize
	b.data.Resize(newBytes)

	if newBytes > oldBytes {
		memory.Set(b.data.Bytes()[oldBytes:], 0)
	}

	b.rawData = b.data.Bytes()
}

func (b *adaptiveIntBuilderBase) Reserve(n int) error { return b.reserve(n, b.Resize) }

func (b *adaptiveIntBuilderBase) AppendNull() error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(false)

	return nil
}

func (b *adaptiveIntBuilderBase) finishData() *memory.Buffer {
	bytesRequired := b.length * b.intSize
	if b.data != nil && bytesRequired > 0 && bytesRequired < b.data.Len() {
		b.data.Resize(bytesRequired)
	}

	data := b.data
	b.data = nil
	b.rawData = nil

	return data
}

func (b *adaptiveIntBuilderBase) Release() {
	b.releaseBitmap()

	if b.data != nil {
		b.data.Release()
		b.data = nil
	}

	b.rawData = nil
}

// AdaptiveIntBuilder stores signed integers at the narrowest width able to
// hold every value appended so far, widening storage in place from 1 up to
// 8 bytes on demand. The output type of Finish reflects the final width.
type AdaptiveIntBuilder struct {
	adaptiveIntBuilderBase
}

func NewAdaptiveIntBuilder(mem memory.Allocator) *AdaptiveIntBuilder {
	return &AdaptiveIntBuilder{
		adaptiveIntBuilderBase: adaptiveIntBuilderBase{
			builderBase: builderBase{dtype: arrow.PrimitiveTypes.Int64, mem: mem},
			intSize:     1,
		},
	}
}

func (b *AdaptiveIntBuilder) Append(v int64) error {
	values := [1]int64{v}
	return b.AppendValues(values[:], nil)
}

func (b *AdaptiveIntBuilder) AppendValues(values []int64, valid []bool) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("append %d values with %d validity entries: %w",
			len(values), len(valid), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	if len(values) > 0 && b.intSize < 8 {
		newIntSize := b.intSize

		for i, v := range values {
			if valid == nil || valid[i] {
				newIntSize = expandedIntSize(v, newIntSize)
			}
		}

		if newIntSize != b.intSize {
			b.expandIntSize(newIntSize)
		}
	}

	b.writeValues(values)

	if valid == nil {
		b.unsafeSetNotNull(len(values))
	} else {
		b.unsafeAppendBools(valid)
	}

	return nil
}

// AppendValuesBytes is the valid-bytes flavour of AppendValues.
func (b *AdaptiveIntBuilder) AppendValuesBytes(values []int64, validBytes []byte) error {
	if validBytes != nil && len(validBytes) != len(values) {
		return fmt.Errorf("append %d values with %d validity bytes: %w",
			len(values), len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	if len(values) > 0 && b.intSize < 8 {
		newIntSize := b.intSize

		for i, v := range values {
			if validBytes == nil || validBytes[i] != 0 {
				newIntSize = expandedIntSize(v, newIntSize)
			}
		}

		if newIntSize != b.intSize {
			b.expandIntSize(newIntSize)
		}
	}

	b.writeValues(values)
	b.unsafeAppendValidBytes(validBytes, len(values))

	return nil
}

// writeValues narrowing-casts each value into the payload at the current
// width. The full-width path is a straight copy.
func (b *AdaptiveIntBuilder) writeValues(values []int64) {
	switch b.intSize {
	case 1:
		putInts[int8](b.rawData, b.length, values)
	case 2:
		putInts[int16](b.rawData, b.length, values)
	case 4:
		putInts[int32](b.rawData, b.length, values)
	case 8:
		putInts[int64](b.rawData, b.length, values)
	}
}

func (b *AdaptiveIntBuilder) expandIntSize(newIntSize int) {
	oldIntSize := b.intSize
	b.intSize = newIntSize
	b.resizeData(b.capacity)
	expandStoredInts(b.rawData, b.length, oldIntSize, newIntSize, true)
}

func (b *AdaptiveIntBuilder) Finish() (arrow.ArrayData, error) {
	var outType arrow.DataType

	switch b.intSize {
	case 1:
		outType = arrow.PrimitiveTypes.Int8
	case 2:
		outType = arrow.PrimitiveTypes.Int16
	case 4:
		outType = arrow.PrimitiveTypes.Int32
	case 8:
		outType = arrow.PrimitiveTypes.Int64
	default:
		return nil, fmt.Errorf("int size %d: %w", b.intSize, common.ErrInvariantViolation)
	}

	data := b.finishData()
	out := array.NewData(outType, b.length, []*memory.Buffer{b.nullBitmap, data}, nil, b.nullCount, 0)

	if data != nil {
		data.Release()
	}

	b.releaseBitmap()
	b.intSize = 1

	return out, nil
}

// AdaptiveUintBuilder is the unsigned counterpart of AdaptiveIntBuilder;
// widening zero-extends instead of sign-extending.
type AdaptiveUintBuilder struct {
	adaptiveIntBuilderBase
}

func NewAdaptiveUintBuilder(mem memory.Allocator) *AdaptiveUintBuilder {
	return &AdaptiveUintBuilder{
		adaptiveIntBuilderBase: adaptiveIntBuilderBase{
			builderBase: builderBase{dtype: arrow.PrimitiveTypes.Uint64, mem: mem},
			intSize:     1,
		},
	}
}

func (b *AdaptiveUintBuilder) Append(v uint64) error {
	values := [1]uint64{v}
	return b.AppendValues(values[:], nil)
}

func (b *AdaptiveUintBuilder) AppendValues(values []uint64, valid []bool) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("append %d values with %d validity entries: %w",
			len(values), len(valid), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	if len(values) > 0 && b.intSize < 8 {
		newIntSize := b.intSize

		for i, v := range values {
			if valid == nil || valid[i] {
				newIntSize = expandedUintSize(v, newIntSize)
			}
		}

		if newIntSize != b.intSize {
			b.expandIntSize(newIntSize)
		}
	}

	b.writeValues(values)

	if valid == nil {
		b.unsafeSetNotNull(len(values))
	} else {
		b.unsafeAppendBools(valid)
	}

	return nil
}

func (b *AdaptiveUintBuilder) AppendValuesBytes(values []uint64, validBytes []byte) error {
	if validBytes != nil && len(validBytes) != len(values) {
		return fmt.Errorf("append %d values with %d validity bytes: %w",
			len(values), len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	if len(values) > 0 && b.intSize < 8 {
		newIntSize := b.intSize

		for i, v := range values {
			if validBytes == nil || validBytes[i] != 0 {
				newIntSize = expandedUintSize(v, newIntSize)
			}
		}

		if newIntSize != b.intSize {
			b.expandIntSize(newIntSize)
		}
	}

	b.writeValues(values)
	b.unsafeAppendValidBytes(validBytes, len(values))

	return nil
}

func (b *AdaptiveUintBuilder) writeValues(values []uint64) {
	switch b.intSize {
	case 1:
		putInts[uint8](b.rawData, b.length, values)
	case 2:
		putInts[uint16](b.rawData, b.length, values)
	case 4:
		putInts[uint32](b.rawData, b.length, values)
	case 8:
		putInts[uint64](b.rawData, b.length, values)
	}
}

func (b *AdaptiveUintBuilder) expandIntSize(newIntSize int) {
	oldIntSize := b.intSize
	b.intSize = newIntSize
	b.resizeData(b.capacity)
	expandStoredInts(b.rawData, b.length, oldIntSize, newIntSize, false)
}

func (b *AdaptiveUintBuilder) Finish() (arrow.ArrayData, error) {
	var outType arrow.DataType

	switch b.intSize {
	case 1:
		outType = arrow.PrimitiveTypes.Uint8
	case 2:
		outType = arrow.PrimitiveTypes.Uint16
	case 4:
		outType = arrow.PrimitiveTypes.Uint32
	case 8:
		outType = arrow.PrimitiveTypes.Uint64
	default:
		return nil, fmt.Errorf("int size %d: %w", b.intSize, common.ErrInvariantViolation)
	}

	data := b.finishData()
	out := array.NewData(outType, b.length, []*memory.Buffer{b.nullBitmap, data}, nil, b.nullCount, 0)

	if data != nil {
		data.Release()
	}

	b.releaseBitmap()
	b.intSize = 1

	return out, nil
}

func expandedIntSize(v int64, current int) int {
	needed := 1

	switch {
	case v < math.MinInt32 || v > math.MaxInt32:
		needed = 8
	case v < math.MinInt16 || v > math.MaxInt16:
		needed = 4
	case v < math.MinInt8 || v > math.MaxInt8:
		needed = 2
	}

	if needed > current {
		return needed
	}

	return current
}

func expandedUintSize(v uint64, current int) int {
	needed := 1

	switch {
	case v > math.MaxUint32:
		needed = 8
	case v > math.MaxUint16:
		needed = 4
	case v > math.MaxUint8:
		needed = 2
	}

	if needed > current {
		return needed
	}

	return current
}

// expandStoredInts widens the n leading stored values of buf from oldSize
// to newSize bytes in place.
func expandStoredInts(buf []byte, n, oldSize, newSize int, signed bool) {
	if n == 0 || oldSize == newSize {
		return
	}

	if signed {
		switch {
		case oldSize == 1 && newSize == 2:
			expandInts[int8, int16](buf, n)
		case oldSize == 1 && newSize == 4:
			expandInts[int8, int32](buf, n)
		case oldSize == 1 && newSize == 8:
			expandInts[int8, int64](buf, n)
		case oldSize == 2 && newSize == 4:
			expandInts[int16, int32](buf, n)
		case oldSize == 2 && newSize == 8:
			expandInts[int16, int64](buf, n)
		case oldSize == 4 && newSize == 8:
			expandInts[int32, int64](buf, n)
		}

		return
	}

	switch {
	case oldSize == 1 && newSize == 2:
		expandInts[uint8, uint16](buf, n)
	case oldSize == 1 && newSize == 4:
		expandInts[uint8, uint32](buf, n)
	case oldSize == 1 && newSize == 8:
		expandInts[uint8, uint64](buf, n)
	case oldSize == 2 && newSize == 4:
		expandInts[uint16, uint32](buf, n)
	case oldSize == 2 && newSize == 8:
		expandInts[uint16, uint64](buf, n)
	case oldSize == 4 && newSize == 8:
		expandInts[uint32, uint64](buf, n)
	}
}

// expandInts rereads the n leading bytes of buf as O values and rewrites
// them as N values. The copy runs backward: every destination slot lies at
// or beyond its source slot, so the expansion is safe in place. Conversion
// through the typed slices sign-extends for signed types and zero-extends
// for unsigned ones.
func expandInts[O, N constraints.Integer](buf []byte, n int) {
	src := unsafe.Slice((*O)(unsafe.Pointer(&buf[0])), n)
	dst := unsafe.Slice((*N)(unsafe.Pointer(&buf[0])), n)

	for i := n - 1; i >= 0; i-- {
		dst[i] = N(src[i])
	}
}

// putInts narrowing-casts values into buf at element offset, interpreting
// buf as N-typed storage.
func putInts[N constraints.Integer, V constraints.Integer](buf []byte, offset int, values []V) {
	if len(values) == 0 {
		return
	}

	var zero N
	dst := unsafe.Slice((*N)(unsafe.Pointer(&buf[0])), len(buf)/int(unsafe.Sizeof(zero)))

	for i, v := range values {
		dst[offset+i] = N(v)
	}
}
