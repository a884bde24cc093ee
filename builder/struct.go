package builder

import (
	"fmt"

	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/array"
	"github.com/apache/arrow/go/v13/arrow/memory"

	"github.com/ydb-platform/colbuild/common"
)

// StructBuilder holds one child builder per field. The parent validity bit
// covers the whole row; the caller advances every child in lockstep.
type StructBuilder struct {
	builderBase

	fields []Builder
}

func NewStructBuilder(mem memory.Allocator, dtype *arrow.StructType, fields []Builder) (*StructBuilder, error) {
	if len(fields) != len(dtype.Fields()) {
		return nil, fmt.Errorf("struct type has %d fields, got %d builders: %w",
			len(dtype.Fields()), len(fields), common.ErrInvariantViolation)
	}

	return &StructBuilder{
		builderBase: builderBase{dtype: dtype, mem: mem},
		fields:      fields,
	}, nil
}

func (b *StructBuilder) NumFields() int { return len(b.fields) }

func (b *StructBuilder) FieldBuilder(i int) Builder { return b.fields[i] }

func (b *StructBuilder) Resize(capacity int) error {
	b.resizeBitmap(capacity)
	return nil
}

func (b *StructBuilder) Reserve(n int) error { return b.reserve(n, b.Resize) }

// Append opens a struct row with the given validity.
func (b *StructBuilder) Append(valid bool) error {
	if err := b.Reserve(1); err != nil {
		return err
	}

	b.unsafeAppendBitmap(valid)

	return nil
}

func (b *StructBuilder) AppendNull() error { return b.Append(false) }

// AppendValidBytes bulk-appends row validity with the usual valid-bytes
// convention.
func (b *StructBuilder) AppendValidBytes(validBytes []byte, n int) error {
	if validBytes != nil && len(validBytes) != n {
		return fmt.Errorf("append %d rows with %d validity bytes: %w",
			n, len(validBytes), common.ErrInvariantViolation)
	}

	if err := b.Reserve(n); err != nil {
		return err
	}

	b.unsafeAppendValidBytes(validBytes, n)

	return nil
}

func (b *StructBuilder) Finish() (arrow.ArrayData, error) {
	childData := make([]arrow.ArrayData, len(b.fields))

	for i, field := range b.fields {
		child, err := field.Finish()
		if err != nil {
			for _, finished := range childData[:i] {
				finished.Release()
			}

			return nil, fmt.Errorf("finish field builder #%d: %w", i, err)
		}

		childData[i] = child
	}

	out := array.NewData(b.dtype, b.length, []*memory.Buffer{b.nullBitmap}, childData, b.nullCount, 0)

	for _, child := range childData {
		child.Release()
	}

	b.releaseBitmap()

	return out, nil
}

func (b *StructBuilder) Release() {
	b.releaseBitmap()

	for _, field := range b.fields {
		field.Release()
	}
}
