// Package gguf decodes GGUF containers: a header, a typed key/value metadata
// table, a tensor descriptor table and an aligned tensor data section.
//
// Decoding never copies tensor payloads. Each resolved tensor carries a
// Slice into the ByteSource it was read from.
package gguf

import (
	"fmt"
	"math"

	"github.com/samcharles93/strata/internal/ordered"
)

const (
	magicGGUF = "GGUF"

	// DefaultAlignment applies when general.alignment is absent or zero.
	DefaultAlignment = 32

	// KeyAlignment overrides the data section alignment.
	KeyAlignment = "general.alignment"

	// MaxArrayDepth bounds how deeply array values may nest.
	MaxArrayDepth = 64
)

type ArrayValue struct {
	ElemType ValueType
	Values   []any
}

type Value struct {
	Type  ValueType
	Value any
}

type Header struct {
	Magic       string
	Version     uint32
	TensorCount uint64
	KVCount     uint64
}

type File struct {
	Format     string
	Header     Header
	KV         *ordered.Map[string, Value]
	Tensors    *ordered.Map[string, *Tensor]
	Alignment  uint64
	DataOffset int64
}

// Match reports whether src starts with the GGUF signature. It does not
// move the cursor and never fails; a false result means another decoder
// should be tried.
func Match(src ByteSource) bool {
	if src == nil || src.Len() <= 4 {
		return false
	}
	saved := src.Tell()
	defer func() { _ = src.Seek(saved) }()
	if err := src.Seek(0); err != nil {
		return false
	}
	sig, err := src.Peek(4)
	if err != nil {
		return false
	}
	return string(sig) == magicGGUF
}

// Read decodes the container held by src. On success the cursor of src is
// reset to 0 so the source can be handed to another consumer. On failure
// nothing is returned.
//
// Containers older than version 2 decode to an empty File.
func Read(src ByteSource) (*File, error) {
	if err := src.Seek(0); err != nil {
		return nil, err
	}
	r := newReader(src)

	magic, err := r.readN(4)
	if err != nil {
		return nil, fmt.Errorf("read magic: %w", err)
	}
	if string(magic) != magicGGUF {
		return nil, fmt.Errorf("%w: %q", ErrFormatMismatch, string(magic))
	}
	version, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("read version: %w", err)
	}

	f := &File{
		Format:    fmt.Sprintf("GGUF v%d", version),
		Header:    Header{Magic: magicGGUF, Version: version},
		KV:        ordered.New[string, Value](),
		Tensors:   ordered.New[string, *Tensor](),
		Alignment: DefaultAlignment,
	}

	if version >= 2 {
		if err := f.readBody(r); err != nil {
			return nil, err
		}
	}

	if err := src.Seek(0); err != nil {
		return nil, err
	}
	return f, nil
}

func (f *File) readBody(r *reader) error {
	tensorCount, err := r.readU64()
	if err != nil {
		return fmt.Errorf("read tensor count: %w", err)
	}
	kvCount, err := r.readU64()
	if err != nil {
		return fmt.Errorf("read kv count: %w", err)
	}
	f.Header.TensorCount = tensorCount
	f.Header.KVCount = kvCount

	for i := range kvCount {
		key, err := r.readString()
		if err != nil {
			return fmt.Errorf("read key %d: %w", i, err)
		}
		vtypeU32, err := r.readU32()
		if err != nil {
			return fmt.Errorf("read value type for %s: %w", key, err)
		}
		vtype := ValueType(vtypeU32)
		val, err := readValue(r, vtype, 0)
		if err != nil {
			return fmt.Errorf("read value for %s: %w", key, err)
		}
		f.KV.Set(key, Value{Type: vtype, Value: val})
	}

	for i := range tensorCount {
		t, err := readTensorInfo(r)
		if err != nil {
			return fmt.Errorf("read tensor %d: %w", i, err)
		}
		f.Tensors.Set(t.Name, t)
	}

	if v, ok := GetUint64(f.KV, KeyAlignment); ok && v > 0 {
		f.Alignment = v
	}
	pos := r.src.Tell()
	if pad := uint64(pos) % f.Alignment; pad != 0 {
		gap := f.Alignment - pad
		if gap > math.MaxInt64-uint64(pos) {
			return &TruncatedError{Offset: pos, Want: gap, Have: r.remaining()}
		}
		if err := r.skip(int64(gap)); err != nil {
			return fmt.Errorf("align data section: %w", err)
		}
	}
	f.DataOffset = r.src.Tell()

	if f.DataOffset >= r.src.Len() {
		return nil
	}
	for t := range f.Tensors.Values() {
		if err := f.resolveTensor(r, t); err != nil {
			return fmt.Errorf("tensor %s: %w", t.Name, err)
		}
	}
	return nil
}

func readTensorInfo(r *reader) (*Tensor, error) {
	name, err := r.readString()
	if err != nil {
		return nil, fmt.Errorf("read name: %w", err)
	}
	nDim, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("read dims %s: %w", name, err)
	}
	if uint64(nDim)*8 > uint64(r.remaining()) {
		return nil, &TruncatedError{Offset: r.src.Tell(), Want: uint64(nDim) * 8, Have: r.remaining()}
	}
	dims := make([]uint64, nDim)
	for d := range nDim {
		v, err := r.readU64()
		if err != nil {
			return nil, fmt.Errorf("read dim %s[%d]: %w", name, d, err)
		}
		dims[d] = v
	}
	ttype, err := r.readU32()
	if err != nil {
		return nil, fmt.Errorf("read type %s: %w", name, err)
	}
	offset, err := r.readU64()
	if err != nil {
		return nil, fmt.Errorf("read offset %s: %w", name, err)
	}
	return &Tensor{
		Name:   name,
		Dims:   dims,
		Type:   TensorType(ttype),
		Offset: offset,
	}, nil
}

func (f *File) resolveTensor(r *reader, t *Tensor) error {
	if t.Offset > uint64(math.MaxInt64-f.DataOffset) {
		return &TruncatedError{Offset: f.DataOffset, Want: t.Offset, Have: r.src.Len() - f.DataOffset}
	}
	if err := r.src.Seek(f.DataOffset + int64(t.Offset)); err != nil {
		return err
	}
	q, ok := LookupQuant(t.Type)
	if !ok {
		return &UnsupportedQuantizationError{Code: uint32(t.Type), Tensor: t.Name}
	}
	pos := r.src.Tell()
	size := uint64(math.MaxUint64)
	elems, ok := ElementCount(t.Dims)
	if ok {
		if n, fits := q.ByteLength(elems); fits {
			size = n
		}
	}
	if pos > r.src.Len() || size > uint64(r.remaining()) {
		return &TruncatedError{Offset: pos, Want: size, Have: r.remaining()}
	}
	t.Size = size
	t.DType = q.DType
	t.Data = &Slice{src: r.src, offset: pos, length: size}
	return r.skip(int64(size))
}

func readValue(r *reader, vtype ValueType, depth int) (any, error) {
	switch vtype {
	case TypeUint32:
		return r.readU32()
	case TypeInt32:
		return r.readI32()
	case TypeFloat32:
		return r.readF32()
	case TypeBool:
		v, err := r.readU8()
		if err != nil {
			return false, err
		}
		return v != 0, nil
	case TypeString:
		return r.readString()
	case TypeArray:
		if depth >= MaxArrayDepth {
			return nil, &NestingError{Offset: r.src.Tell(), Limit: MaxArrayDepth}
		}
		elemTypeU32, err := r.readU32()
		if err != nil {
			return nil, err
		}
		elemType := ValueType(elemTypeU32)
		count, err := r.readU64()
		if err != nil {
			return nil, err
		}
		// Every element occupies at least one byte.
		values := make([]any, 0, min(count, uint64(r.remaining())))
		for range count {
			v, err := readValue(r, elemType, depth+1)
			if err != nil {
				return nil, err
			}
			values = append(values, v)
		}
		return ArrayValue{ElemType: elemType, Values: values}, nil
	default:
		return nil, &UnsupportedValueTypeError{Code: uint32(vtype)}
	}
}
