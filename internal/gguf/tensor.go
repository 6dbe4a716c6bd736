package gguf

import "fmt"

// Tensor is a decoded tensor descriptor. Size, DType and Data are only set
// once the data section has been resolved; a container whose data section
// starts at or past the end of its source leaves them zero.
type Tensor struct {
	Name   string
	Dims   []uint64
	Type   TensorType
	Offset uint64 // relative to File.DataOffset

	Size  uint64
	DType string // empty for packed block formats
	Data  *Slice
}

// Elements returns the number of elements, saturating on overflow.
func (t *Tensor) Elements() uint64 {
	n, _ := ElementCount(t.Dims)
	return n
}

// Tensor returns the descriptor for the given name.
func (f *File) Tensor(name string) (*Tensor, bool) {
	return f.Tensors.Get(name)
}

// ReadTensorRaw returns the payload bytes of a resolved tensor.
func (f *File) ReadTensorRaw(name string) ([]byte, error) {
	t, ok := f.Tensors.Get(name)
	if !ok {
		return nil, fmt.Errorf("tensor not found: %s", name)
	}
	if t.Data == nil {
		return nil, fmt.Errorf("tensor %s: data section not present", name)
	}
	b, err := t.Data.Bytes()
	if err != nil {
		return nil, fmt.Errorf("read tensor %s: %w", name, err)
	}
	return b, nil
}
