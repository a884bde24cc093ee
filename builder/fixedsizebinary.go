package builder

import (
	"encoding/binary"
	"fmt"
	"math/big"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/decimal128"
	"github.com/apache/arrow/go/v13/arrow/memory"
	"github.com/shopspring/decimal"

	"github.com/ydb-platform/colbuild/common"
)

// FixedSizeBinaryBuilder accumulates opaque byte strings of a fixed width
// into a single payload buffer.
type FixedSizeBinaryBuilder struct {
	builderBase

	byteWidth int
	values    *bufferBuilder
}

func NewFixedSizeBinaryBuilder(mem memory.Allocator, dtype *arrow.FixedSizeBinaryType) *FixedSizeBinaryBuilder {
	return &FixedSizeBinaryBuilder{
		builderBase: builderBase{dtype: dtype, mem: mem},
		byteWidth:   dtype.ByteWidth,
		values:      newBufferBuilder(mem),
	}
}

func (b *FixedSizeBinaryBuilder) ByteWidth() int { return b.byteWidth }

func (b *FixedSizeBinaryBuilder) Resize(capacity int) error {
	if capacity < minBuilderCapacity {
		capacity = minBuilderCapacity
	}

	b.values.resize(capacity * b.byteWidth)
	b.resizeBitmap(capacity)

	return nil
}

func (b *FixedSizeBinaryBuilder) Reserve(n int) error { return b.reserve(n, b.Resize) }

func (b *FixedSizeBinaryBuilder) Append(v []byte) error {
	if len(v) != b.byteWidth {
		return fmt.Errorf("append %d bytes to width-%d builder: %w", len(v), b.byteWidth, common.ErrInvalidByteWidth)
	}

	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(true)
	b.values.Append(v)

	return nil
}

func (b *FixedSizeBinaryBuilder) AppendString(v string) error {
	return b.Append([]byte(v))
}

// AppendValues appends len(data)/byteWidth packed elements with the usual
// valid-bytes convention.
func (b *FixedSizeBinaryBuilder) AppendValues(data []byte, validBytes []byte) error {
	if len(data)%b.byteWidth != 0 {
		return fmt.Errorf("append %d packed bytes to width-%d builder: %w",
			len(data), b.byteWidth, common.ErrInvalidByteWidth)
	}

	n := len(data) / b.byteWidth
	if validBytes != nil && len(validBytes) != n {
		return fmt.Errorf("append %d values with %d validity bytes: %w",
			n, len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(n); err != nil {
		return err
	}

	b.unsafeAppendValidBytes(validBytes, n)
	b.values.Append(data)

	return nil
}

// AppendNull advances the payload by one zeroed element.
func (b *FixedSizeBinaryBuilder) AppendNull() error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(false)
	b.values.Advance(b.byteWidth)

	return nil
}

// GetValue reads back a value still held by the builder.
func (b *FixedSizeBinaryBuilder) GetValue(i int) []byte {
	return b.values.Bytes()[i*b.byteWidth : (i+1)*b.byteWidth]
}

func (b *FixedSizeBinaryBuilder) Finish() (arrow.ArrayData, error) {
	data := b.values.Finish()

	out := array.NewData(b.dtype, b.length, []*memory.Buffer{b.nullBitmap, data}, nil, b.nullCount, 0)

	if data != nil {
		data.Release()
	}

	b.releaseBitmap()

	return out, nil
}

func (b *FixedSizeBinaryBuilder) Release() {
	b.releaseBitmap()
	b.values.Release()
}

const decimal128ByteWidth = 16

// Decimal128Builder stores 128-bit decimals as fixed 16-byte values in the
// canonical little-endian two's complement layout.
type Decimal128Builder struct {
	FixedSizeBinaryBuilder
}

func NewDecimal128Builder(mem memory.Allocator, dtype *arrow.Decimal128Type) *Decimal128Builder {
	return &Decimal128Builder{
		FixedSizeBinaryBuilder: FixedSizeBinaryBuilder{
			builderBase: builderBase{dtype: dtype, mem: mem},
			byteWidth:   decimal128ByteWidth,
			values:      newBufferBuilder(mem),
		},
	}
}

func (b *Decimal128Builder) Append(v decimal128.Num) error {
	var serialized [decimal128ByteWidth]byte

	binary.LittleEndian.PutUint64(serialized[:8], v.LowBits())
	binary.LittleEndian.PutUint64(serialized[8:], uint64(v.HighBits()))

	return b.FixedSizeBinaryBuilder.Append(serialized[:])
}

// AppendDecimal rescales an arbitrary-precision decimal to the builder
// type's scale and appends it. Excess fractional digits are truncated.
func (b *Decimal128Builder) AppendDecimal(v decimal.Decimal) error {
	dtype := b.dtype.(*arrow.Decimal128Type)

	num, err := decimal128FromBigIntChecked(v.Shift(dtype.Scale).BigInt())
	if err != nil {
		return fmt.Errorf("decimal %s to 128-bit representation: %w", v, err)
	}

	return b.Append(num)
}

// decimal128FromBigIntChecked wraps decimal128.FromBigInt, which panics
// instead of returning an error when the value overflows 128 bits.
func decimal128FromBigIntChecked(v *big.Int) (num decimal128.Num, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%v", r)
		}
	}()
	return decimal128.FromBigInt(v), nil
}
