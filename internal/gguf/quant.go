package gguf

import (
	"math"
	"math/bits"
)

// QK_K is the super-block size shared by the K-quant formats.
const QK_K = 256

// QuantSize describes how a quantization type packs elements: BlockSize
// elements occupy TypeSize bytes. DType names the decoded element type and
// is empty for packed block formats.
type QuantSize struct {
	BlockSize uint64
	TypeSize  uint64
	DType     string
}

// quantSizes holds the ggml block layouts. Byte counts are spelled out per
// field so new types can follow the pattern.
var quantSizes = map[TensorType]QuantSize{
	GGMLTypeF32:  {1, 4, "float32"},
	GGMLTypeF16:  {1, 2, "float16"},
	GGMLTypeQ4_0: {32, 2 + 16, ""},
	GGMLTypeQ4_1: {32, 2 + 2 + 16, ""},
	GGMLTypeQ5_0: {32, 2 + 4 + 16, ""},
	GGMLTypeQ5_1: {32, 2 + 2 + 4 + 16, ""},
	GGMLTypeQ8_0: {32, 2 + 32, ""},
	GGMLTypeQ8_1: {32, 4 + 4 + 32, ""},
	GGMLTypeQ2_K: {QK_K, 2 + 2 + QK_K/16 + QK_K/4, ""},
	GGMLTypeQ3_K: {QK_K, 2 + QK_K/4 + QK_K/8 + 12, ""},
	GGMLTypeQ4_K: {QK_K, 2 + 2 + QK_K/2 + 12, ""},
	GGMLTypeQ5_K: {QK_K, 2 + 2 + QK_K/2 + QK_K/8 + 12, ""},
	GGMLTypeQ6_K: {QK_K, 2 + QK_K/2 + QK_K/4 + QK_K/16, ""},
	GGMLTypeQ8_K: {QK_K, 4 + QK_K + QK_K/8, ""},
	GGMLTypeI8:   {1, 4, "int8"},
	GGMLTypeI16:  {1, 2, "int16"},
	GGMLTypeI32:  {1, 4, "int32"},
}

// LookupQuant returns the size entry for t.
func LookupQuant(t TensorType) (QuantSize, bool) {
	q, ok := quantSizes[t]
	return q, ok
}

// ByteLength returns floor(elements * TypeSize / BlockSize). ok is false if
// the result does not fit in 64 bits.
func (q QuantSize) ByteLength(elements uint64) (uint64, bool) {
	hi, lo := bits.Mul64(elements, q.TypeSize)
	if hi >= q.BlockSize {
		return 0, false
	}
	n, _ := bits.Div64(hi, lo, q.BlockSize)
	return n, true
}

// ElementCount multiplies the dimensions together. A tensor with no
// dimensions holds one element.
func ElementCount(dims []uint64) (uint64, bool) {
	n := uint64(1)
	for _, d := range dims {
		hi, lo := bits.Mul64(n, d)
		if hi != 0 {
			return math.MaxUint64, false
		}
		n = lo
	}
	return n, true
}
