package gguf

import (
	"encoding/binary"
	"math"
)

type reader struct {
	src ByteSource
}

func newReader(src ByteSource) *reader {
	return &reader{src: src}
}

func (r *reader) readN(n int) ([]byte, error) {
	return r.src.ReadN(n)
}

func (r *reader) readU8() (uint8, error) {
	b, err := r.readN(1)
	if err != nil {
		return 0, err
	}
	return b[0], nil
}

func (r *reader) readU32() (uint32, error) {
	b, err := r.readN(4)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b), nil
}

func (r *reader) readI32() (int32, error) {
	v, err := r.readU32()
	return int32(v), err
}

func (r *reader) readU64() (uint64, error) {
	b, err := r.readN(8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (r *reader) readI64() (int64, error) {
	v, err := r.readU64()
	return int64(v), err
}

func (r *reader) readF32() (float32, error) {
	u, err := r.readU32()
	if err != nil {
		return 0, err
	}
	return math.Float32frombits(u), nil
}

// readString reads a u64 length followed by that many bytes. The bytes are
// kept as-is; no encoding validation happens here.
func (r *reader) readString() (string, error) {
	n, err := r.readU64()
	if err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	if n > uint64(r.remaining()) {
		return "", &TruncatedError{Offset: r.src.Tell(), Want: n, Have: r.remaining()}
	}
	b, err := r.readN(int(n))
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (r *reader) remaining() int64 {
	if rem := r.src.Len() - r.src.Tell(); rem > 0 {
		return rem
	}
	return 0
}

// skip advances the cursor without bounds checking.
func (r *reader) skip(n int64) error {
	return r.src.Seek(r.src.Tell() + n)
}
