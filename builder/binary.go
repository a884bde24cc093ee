package builder

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

// BinaryBuilder accumulates variable-length byte strings into an int32
// offset buffer and a payload buffer. Total payload is capped at 2^31 - 1
// bytes and row count at 2^31 - 1 elements.
type BinaryBuilder struct {
	builderBase

	offsets *int32BufferBuilder
	values  *bufferBuilder
}

func NewBinaryBuilder(mem memory.Allocator) *BinaryBuilder {
	return newBinaryBuilder(mem, arrow.BinaryTypes.Binary)
}

func newBinaryBuilder(mem memory.Allocator, dtype arrow.DataType) *BinaryBuilder {
	return &BinaryBuilder{
		builderBase: builderBase{dtype: dtype, mem: mem},
		offsets:     newInt32BufferBuilder(mem),
		values:      newBufferBuilder(mem),
	}
}

func (b *BinaryBuilder) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	if capacity > listMaximumElements {
		return fmt.Errorf("resize binary builder to %d rows: %w", capacity, common.ErrListTooLong)
	}

	// One extra slot for the trailing offset.
	b.offsets.resize((capacity + 1) * arrow.Int32SizeBytes)
	b.resizeBitmap(capacity)

	return nil
}

func (b *BinaryBuilder) Reserve(n int) error { return b.reserve(n, b.Resize) }

// ReserveData pre-allocates room for n more payload bytes.
func (b *BinaryBuilder) ReserveData(n int) error {
	if b.values.Len()+n > binaryMemoryLimit {
		return fmt.Errorf("reserve %d payload bytes: %w", n, common.ErrBinaryDataTooLarge)
	}

	b.values.reserve(n)

	return nil
}

// appendNextOffset records the current payload length as the start of the
// next row.
func (b *BinaryBuilder) appendNextOffset() error {
	numBytes := b.values.Len()
	if numBytes > binaryMemoryLimit {
		return fmt.Errorf("payload of %d bytes: %w", numBytes, common.ErrBinaryDataTooLarge)
	}

	b.offsets.AppendValue(int32(numBytes))

	return nil
}

func (b *BinaryBuilder) Append(v []byte) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	if err := b.appendNextOffset(); err != nil {
		return err
	}

	b.values.Append(v)
	b.unsafeAppendBitmap(true)

	return nil
}

// AppendNull records a zero-length slice for the row. Reserve runs before
// the offset is pushed so a failed reservation cannot leave the offsets out
// of step with the bitmap.
func (b *BinaryBuilder) AppendNull() error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	if err := b.appendNextOffset(); err != nil {
		return err
	}

	b.unsafeAppendBitmap(false)

	return nil
}

// GetValue reads back a value still held by the builder.
func (b *BinaryBuilder) GetValue(i int) []byte {
	offsets := b.offsets.Values()
	start := offsets[i]

	var end int32
	if i == b.length-1 {
		end = int32(b.values.Len())
	} else {
		end = offsets[i+1]
	}

	return b.values.Bytes()[start:end]
}

// ValueDataLength reports the payload bytes accumulated so far.
func (b *BinaryBuilder) ValueDataLength() int { return b.values.Len() }

func (b *BinaryBuilder) Finish() (arrow.ArrayData, error) {
	// Trailing terminator: the offsets buffer carries length+1 entries.
	if err := b.appendNextOffset(); err != nil {
		return nil, err
	}

	offsets := b.offsets.Finish()
	values := b.values.Finish()

	out := array.NewData(b.dtype, b.length, []*memory.Buffer{b.nullBitmap, offsets, values}, nil, b.nullCount, 0)

	if offsets != nil {
		offsets.Release()
	}

	if values != nil {
		values.Release()
	}

	b.releaseBitmap()

	return out, nil
}

func (b *BinaryBuilder) Release() {
	b.releaseBitmap()
	b.offsets.Release()
	b.values.Release()
}

// StringBuilder builds UTF-8 string arrays. It is a thin layer over
// BinaryBuilder and performs no encoding validation.
type StringBuilder struct {
	BinaryBuilder
}

func NewStringBuilder(mem memory.Allocator) *StringBuilder {
	return &StringBuilder{BinaryBuilder: *newBinaryBuilder(mem, arrow.BinaryTypes.String)}
}

func (b *StringBuilder) Append(v string) error {
	return b.BinaryBuilder.Append([]byte(v))
}

// AppendStrings bulk-appends values with per-element validity; nil valid
// marks every element valid.
func (b *StringBuilder) AppendStrings(values []string, valid []bool) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("append %d values with %d validity entries: %w",
			len(values), len(valid), common.ErrInvariantViolation)
	}

	totalLength := 0
	for _, v := range values {
		totalLength += len(v)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	if err := b.ReserveData(totalLength); err != nil {
		return err
	}

	for i, v := range values {
		if err := b.appendNextOffset(); err != nil {
			return err
		}

		if valid == nil || valid[i] {
			b.values.Append([]byte(v))
			b.unsafeAppendBitmap(true)
		} else {
			b.unsafeAppendBitmap(false)
		}
	}

	return nil
}

func (b *StringBuilder) Value(i int) string { return string(b.GetValue(i)) }
