package gguf

import (
	"fmt"
	"math"
)

// ByteSource is a finite, seekable sequence of bytes. The decoder borrows
// it exclusively for the duration of a Read call.
type ByteSource interface {
	// Peek returns the next n bytes without advancing the cursor.
	Peek(n int) ([]byte, error)
	// ReadN returns exactly n bytes and advances the cursor past them.
	ReadN(n int) ([]byte, error)
	// Seek moves the cursor to an absolute position. Positions past the
	// end are allowed; reads from there fail.
	Seek(pos int64) error
	Tell() int64
	Len() int64
}

// Stream is an in-memory ByteSource. Peek and ReadN return sub-slices of
// the backing buffer.
type Stream struct {
	data []byte
	pos  int64
}

func NewStream(data []byte) *Stream {
	return &Stream{data: data}
}

func (s *Stream) Peek(n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("gguf: invalid read length %d", n)
	}
	end := s.pos + int64(n)
	if s.pos > int64(len(s.data)) || end > int64(len(s.data)) {
		return nil, &TruncatedError{Offset: s.pos, Want: uint64(n), Have: s.remaining()}
	}
	return s.data[s.pos:end:end], nil
}

func (s *Stream) ReadN(n int) ([]byte, error) {
	b, err := s.Peek(n)
	if err != nil {
		return nil, err
	}
	s.pos += int64(n)
	return b, nil
}

func (s *Stream) Seek(pos int64) error {
	if pos < 0 {
		return fmt.Errorf("gguf: invalid seek position %d", pos)
	}
	s.pos = pos
	return nil
}

func (s *Stream) Tell() int64 { return s.pos }

func (s *Stream) Len() int64 { return int64(len(s.data)) }

// Bytes returns the whole backing buffer.
func (s *Stream) Bytes() []byte { return s.data }

func (s *Stream) remaining() int64 {
	if r := int64(len(s.data)) - s.pos; r > 0 {
		return r
	}
	return 0
}

// Slice is a lazily read region of a ByteSource.
type Slice struct {
	src    ByteSource
	offset int64
	length uint64
}

func (s *Slice) Offset() int64 { return s.offset }

func (s *Slice) Len() uint64 { return s.length }

// Bytes reads the region. The source cursor is left where it was.
func (s *Slice) Bytes() ([]byte, error) {
	if s.length > math.MaxInt {
		return nil, &TruncatedError{Offset: s.offset, Want: s.length, Have: s.src.Len() - s.offset}
	}
	saved := s.src.Tell()
	if err := s.src.Seek(s.offset); err != nil {
		return nil, err
	}
	b, err := s.src.Peek(int(s.length))
	if serr := s.src.Seek(saved); err == nil {
		err = serr
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}
