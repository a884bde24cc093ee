package builder

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/bitutil"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

// BooleanBuilder packs values into a bitmap, one bit per element.
type BooleanBuilder struct {
	builderBase

	data    *memory.Buffer
	rawData []byte
}

func NewBooleanBuilder(mem memory.Allocator) *BooleanBuilder {
	return &BooleanBuilder{builderBase: builderBase{dtype: arrow.FixedWidthTypes.Boolean, mem: mem}}
}

func (b *BooleanBuilder) init(capacity int) {
	b.initBitmap(capacity)

	if b.data == nil {
		b.data = memory.NewResizableBuffer(b.mem)
	}

	nbytes := int(bitutil.BytesForBits(int64(capacity)))
	b.data.Resize(nbytes)
	memory.Set(b.data.Bytes(), 0)
	b.rawData = b.data.Bytes()
}

func (b *BooleanBuilder) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	if b.capacity == 0 {
		b.init(capacity)
		return nil
	}

	b.resizeBitmap(capacity)

	oldBytes := b.data.Len()
	newBytes := int(bitutil.BytesForBits(int64(capacity)))
	b.data.Resize(newBytes)
	memory.Set(b.data.Bytes()[oldBytes:], 0)
	b.rawData = b.data.Bytes()

	return nil
}

func (b *BooleanBuilder) Reserve(n int) error { return b.reserve(n, b.Resize) }

func (b *BooleanBuilder) Append(v bool) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	bitutil.SetBitTo(b.rawData, b.length, v)
	b.unsafeAppendBitmap(true)

	return nil
}

func (b *BooleanBuilder) AppendNull() error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(false)

	return nil
}

// AppendValues bulk-appends bools; nil valid marks every element valid.
func (b *BooleanBuilder) AppendValues(values []bool, valid []bool) error {
	if valid != nil && len(valid) != len(values) {
		return fmt.Errorf("append %d values with %d validity entries: %w",
			len(values), len(valid), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	for i, v := range values {
		bitutil.SetBitTo(b.rawData, b.length+i, v)
	}

	if valid == nil {
		b.unsafeSetNotNull(len(values))
	} else {
		b.unsafeAppendBools(valid)
	}

	return nil
}

// AppendBytes appends one element per input byte; a non-zero byte yields a
// set value bit. validBytes follows the usual valid-bytes convention.
func (b *BooleanBuilder) AppendBytes(values []byte, validBytes []byte) error {
	if validBytes != nil && len(validBytes) != len(values) {
		return fmt.Errorf("append %d values with %d validity bytes: %w",
			len(values), len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(len(values)); err != nil {
		return err
	}

	for i, v := range values {
		bitutil.SetBitTo(b.rawData, b.length+i, v != 0)
	}

	b.unsafeAppendValidBytes(validBytes, len(values))

	return nil
}

func (b *BooleanBuilder) Value(i int) bool { return bitutil.BitIsSet(b.rawData, i) }

func (b *BooleanBuilder) Finish() (arrow.ArrayData, error) {
	bytesRequired := int(bitutil.BytesForBits(int64(b.length)))
	if b.data != nil && bytesRequired > 0 && bytesRequired < b.data.Len() {
		b.data.Resize(bytesRequired)
	}

	out := array.NewData(b.dtype, b.length, []*memory.Buffer{b.nullBitmap, b.data}, nil, b.nullCount, 0)
	b.Release()

	return out, nil
}

func (b *BooleanBuilder) Release() {
	b.releaseBitmap()

	if b.data != nil {
		b.data.Release()
		b.data = nil
	}

	b.rawData = nil
}
