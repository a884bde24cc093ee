package builder

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

// ListBuilder wraps a child builder behind an int32 offset buffer. Each
// Append opens a row; the caller then appends the row's items directly to
// the child builder.
type ListBuilder struct {
	builderBase

	offsets      *int32BufferBuilder
	valueBuilder Builder

	// items, when set, is emitted verbatim as the child data instead of
	// finishing valueBuilder.
	items arrow.ArrayData
}

func NewListBuilder(mem memory.Allocator, valueBuilder Builder) *ListBuilder {
	return &ListBuilder{
		builderBase:  builderBase{dtype: arrow.ListOf(valueBuilder.Type()), mem: mem},
		offsets:      newInt32BufferBuilder(mem),
		valueBuilder: valueBuilder,
	}
}

// ValueBuilder returns the child builder rows are appended to.
func (b *ListBuilder) ValueBuilder() Builder { return b.valueBuilder }

// SetItems attaches a pre-built child array; Finish will use it verbatim
// and leave the child builder untouched.
func (b *ListBuilder) SetItems(items arrow.ArrayData) {
	if b.items != nil {
		b.items.Release()
	}

	items.Retain()
	b.items = items
}

func (b *ListBuilder) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	if capacity > listMaximumElements {
		return fmt.Errorf("resize list builder to %d rows: %w", capacity, common.ErrListTooLong)
	}

	// One extra slot for the trailing offset.
	b.offsets.resize((capacity + 1) * arrow.Int32SizeBytes)
	b.resizeBitmap(capacity)

	return nil
}

func (b *ListBuilder) Reserve(n int) error { return b.reserve(n, b.Resize) }

// appendNextOffset records the child builder's current length as the start
// of the next row.
func (b *ListBuilder) appendNextOffset() error {
	numValues := b.valueBuilder.Len()
	if numValues > listMaximumElements {
		return fmt.Errorf("list with %d child elements: %w", numValues, common.ErrListTooLong)
	}

	b.offsets.AppendValue(int32(numValues))

	return nil
}

// Append opens a new row. A null row still records an offset, so it carries
// a zero-length slice as long as the caller appends nothing to the child.
func (b *ListBuilder) Append(valid bool) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(valid)

	return b.appendNextOffset()
}

func (b *ListBuilder) AppendNull() error { return b.Append(false) }

// AppendOffsets bulk-appends pre-computed row offsets with the usual
// valid-bytes convention.
func (b *ListBuilder) AppendOffsets(offsets []int32, validBytes []byte) error {
	if validBytes != nil && len(validBytes) != len(offsets) {
		return fmt.Errorf("append %d offsets with %d validity bytes: %w",
			len(offsets), len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(offsets)); err != nil {
		return err
	}

	b.unsafeAppendValidBytes(validBytes, len(offsets))

	for _, offset := range offsets {
		b.offsets.AppendValue(offset)
	}

	return nil
}

func (b *ListBuilder) Finish() (arrow.ArrayData, error) {
	// Trailing terminator: offsets[length] = child length.
	terminator := b.valueBuilder.Len()
	if b.items != nil {
		terminator = b.items.Len()
	}

	if terminator > listMaximumElements {
		return nil, fmt.Errorf("list with %d child elements: %w", terminator, common.ErrListTooLong)
	}

	b.offsets.AppendValue(int32(terminator))

	offsets := b.offsets.Finish()

	var (
		items arrow.ArrayData
		err   error
	)

	if b.items != nil {
		items = b.items
		b.items = nil
	} else {
		items, err = b.valueBuilder.Finish()
		if err != nil {
			offsets.Release()
			return nil, fmt.Errorf("finish child builder: %w", err)
		}
	}

	out := array.NewData(b.dtype, b.length, []*memory.Buffer{b.nullBitmap, offsets}, []arrow.ArrayData{items}, b.nullCount, 0)

	if offsets != nil {
		offsets.Release()
	}

	items.Release()
	b.releaseBitmap()

	return out, nil
}

func (b *ListBuilder) Release() {
	b.releaseBitmap()
	b.offsets.Release()
	b.valueBuilder.Release()

	if b.items != nil {
		b.items.Release()
		b.items = nil
	}
}
