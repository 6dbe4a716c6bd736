package gguf

import (
	"errors"
	"fmt"
	"io"
)

var (
	// ErrFormatMismatch means the source does not start with the GGUF
	// signature. Callers probing several formats should try the next one.
	ErrFormatMismatch          = errors.New("gguf: signature mismatch")
	ErrUnsupportedValueType    = errors.New("gguf: unsupported value type")
	ErrUnsupportedQuantization = errors.New("gguf: unsupported tensor quantization type")
	ErrNestingTooDeep          = errors.New("gguf: array nesting too deep")
)

// UnsupportedValueTypeError reports a metadata type tag the value grammar
// does not accept.
type UnsupportedValueTypeError struct {
	Code uint32
}

func (e *UnsupportedValueTypeError) Error() string {
	return fmt.Sprintf("gguf: unsupported value type %d", e.Code)
}

func (e *UnsupportedValueTypeError) Unwrap() error {
	return ErrUnsupportedValueType
}

// UnsupportedQuantizationError reports a tensor whose quantization code has
// no entry in the size table.
type UnsupportedQuantizationError struct {
	Code   uint32
	Tensor string
}

func (e *UnsupportedQuantizationError) Error() string {
	if e.Tensor == "" {
		return fmt.Sprintf("gguf: unsupported tensor quantization type %d", e.Code)
	}
	return fmt.Sprintf("gguf: tensor %s: unsupported tensor quantization type %d", e.Tensor, e.Code)
}

func (e *UnsupportedQuantizationError) Unwrap() error {
	return ErrUnsupportedQuantization
}

// TruncatedError is returned by a ByteSource when fewer bytes remain than
// were requested.
type TruncatedError struct {
	Offset int64
	Want   uint64
	Have   int64
}

func (e *TruncatedError) Error() string {
	return fmt.Sprintf("gguf: unexpected end of data at offset %d: want %d bytes, have %d", e.Offset, e.Want, e.Have)
}

func (e *TruncatedError) Unwrap() error {
	return io.ErrUnexpectedEOF
}

// NestingError reports an array value nested deeper than Limit levels.
type NestingError struct {
	Offset int64
	Limit  int
}

func (e *NestingError) Error() string {
	return fmt.Sprintf("gguf: array nesting exceeds %d levels at offset %d", e.Limit, e.Offset)
}

func (e *NestingError) Unwrap() error {
	return ErrNestingTooDeep
}
