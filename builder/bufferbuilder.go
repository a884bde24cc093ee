package builder

import (
	"github.com/apache/arrow/go/v13/arrow"
	"github.com/apache/arrow/go/v13/arrow/bitutil"
	"github.com/apache/arrow/go/v13/arrow/memory"
)

// bufferBuilder accumulates raw bytes into a resizable buffer. It backs the
// offset and payload buffers of the variable-length builders.
type bufferBuilder struct {
	mem      memory.Allocator
	buffer   *memory.Buffer
	capacity int
	length   int
	bytes    []byte
}

func newBufferBuilder(mem memory.Allocator) *bufferBuilder {
	return &bufferBuilder{mem: mem}
}

func (b *bufferBuilder) Len() int { return b.length }
func (b *bufferBuilder) Cap() int { return b.capacity }

func (b *bufferBuilder) resize(newBytes int) {
	if b.buffer == nil {
		b.buffer = memory.NewResizableBuffer(b.mem)
	}

	b.buffer.Resize(newBytes)
	b.bytes = b.buffer.Bytes()
	b.capacity = newBytes
}

func (b *bufferBuilder) reserve(n int) {
	if b.length+n > b.capacity {
		b.resize(bitutil.NextPowerOf2(b.length + n))
	}
}

func (b *bufferBuilder) Append(data []byte) {
	b.reserve(len(data))
	b.unsafeAppend(data)
}

func (b *bufferBuilder) unsafeAppend(data []byte) {
	copy(b.bytes[b.length:], data)
	b.length += len(data)
}

// Advance extends the buffer by n zeroed bytes.
func (b *bufferBuilder) Advance(n int) {
	b.reserve(n)
	memory.Set(b.bytes[b.length:b.length+n], 0)
	b.length += n
}

func (b *bufferBuilder) Bytes() []byte { return b.bytes[:b.length] }

// Finish trims the buffer to its exact content, hands it over to the caller
// and resets the builder. Returns nil when nothing was ever appended.
func (b *bufferBuilder) Finish() *memory.Buffer {
	if b.buffer != nil && b.length < b.capacity {
		b.buffer.Resize(b.length)
	}

	buffer := b.buffer
	b.buffer = nil
	b.bytes = nil
	b.length = 0
	b.capacity = 0

	return buffer
}

func (b *bufferBuilder) Release() {
	if b.buffer != nil {
		b.buffer.Release()
		b.buffer = nil
	}

	b.bytes = nil
	b.length = 0
	b.capacity = 0
}

// int32BufferBuilder is a bufferBuilder with int32-typed access, used for
// offset buffers.
type int32BufferBuilder struct {
	bufferBuilder
}

func newInt32BufferBuilder(mem memory.Allocator) *int32BufferBuilder {
	return &int32BufferBuilder{bufferBuilder{mem: mem}}
}

func (b *int32BufferBuilder) AppendValue(v int32) {
	b.reserve(arrow.Int32SizeBytes)
	b.Values()[b.length/arrow.Int32SizeBytes] = v
	b.length += arrow.Int32SizeBytes
}

// Values exposes the appended int32s, plus the reserved tail.
func (b *int32BufferBuilder) Values() []int32 {
	if b.bytes == nil {
		return nil
	}

	return arrow.Int32Traits.CastFromBytes(b.bytes)
}

func (b *int32BufferBuilder) NumValues() int { return b.length / arrow.Int32SizeBytes }
