package gguf

import (
	"encoding/binary"
	"math"
)

// builder assembles little-endian GGUF containers for tests.
type builder struct {
	buf []byte
}

func (b *builder) u8(v uint8) *builder {
	b.buf = append(b.buf, v)
	return b
}

func (b *builder) u32(v uint32) *builder {
	b.buf = binary.LittleEndian.AppendUint32(b.buf, v)
	return b
}

func (b *builder) u64(v uint64) *builder {
	b.buf = binary.LittleEndian.AppendUint64(b.buf, v)
	return b
}

func (b *builder) f32(v float32) *builder {
	return b.u32(math.Float32bits(v))
}

func (b *builder) str(s string) *builder {
	b.u64(uint64(len(s)))
	b.buf = append(b.buf, s...)
	return b
}

func (b *builder) raw(p ...byte) *builder {
	b.buf = append(b.buf, p...)
	return b
}

func (b *builder) header(version uint32, tensors, kvs uint64) *builder {
	b.raw('G', 'G', 'U', 'F').u32(version)
	return b.u64(tensors).u64(kvs)
}

func (b *builder) kvString(key, val string) *builder {
	return b.str(key).u32(uint32(TypeString)).str(val)
}

func (b *builder) kvU32(key string, val uint32) *builder {
	return b.str(key).u32(uint32(TypeUint32)).u32(val)
}

func (b *builder) tensor(name string, typ TensorType, offset uint64, dims ...uint64) *builder {
	b.str(name).u32(uint32(len(dims)))
	for _, d := range dims {
		b.u64(d)
	}
	return b.u32(uint32(typ)).u64(offset)
}

// pad appends zero bytes up to the next multiple of align.
func (b *builder) pad(align int) *builder {
	for len(b.buf)%align != 0 {
		b.buf = append(b.buf, 0)
	}
	return b
}

func (b *builder) zeros(n int) *builder {
	b.buf = append(b.buf, make([]byte, n)...)
	return b
}

func (b *builder) stream() *Stream {
	return NewStream(b.buf)
}
