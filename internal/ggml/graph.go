package ggml

import (
	"strconv"
	"strings"

	"github.com/samcharles93/strata/internal/gguf"
	"github.com/samcharles93/strata/internal/ordered"
)

type Graph struct {
	Nodes   []*Node
	Inputs  []*Argument
	Outputs []*Argument
}

func newGraph(layers *ordered.Map[string, *Layer]) *Graph {
	g := &Graph{
		Nodes:   make([]*Node, 0, layers.Len()),
		Inputs:  []*Argument{},
		Outputs: []*Argument{},
	}
	for name, layer := range layers.All() {
		g.Nodes = append(g.Nodes, newNode(name, layer))
	}
	return g
}

// Node is one layer. Inputs carry its weights, attributes its metadata.
type Node struct {
	Name       string
	Type       Kind
	Inputs     []*Argument
	Outputs    []*Argument
	Attributes []*Attribute
}

func newNode(name string, layer *Layer) *Node {
	n := &Node{
		Name:       name,
		Type:       layer.Kind,
		Inputs:     make([]*Argument, 0, layer.Weights.Len()),
		Outputs:    []*Argument{},
		Attributes: make([]*Attribute, 0, layer.Metadata.Len()),
	}
	for param, weight := range layer.Weights.All() {
		tensor := NewTensor(weight)
		value := &Value{
			Name:         weight.Name,
			Type:         tensor.Type,
			Quantization: tensor.Quantization,
			Initializer:  tensor,
		}
		n.Inputs = append(n.Inputs, &Argument{Name: param, Value: []*Value{value}})
	}
	for param, value := range layer.Metadata.All() {
		n.Attributes = append(n.Attributes, &Attribute{Name: param, Value: value})
	}
	return n
}

type Argument struct {
	Name  string
	Value []*Value
}

type Value struct {
	Name         string
	Type         TensorType
	Quantization string
	Initializer  *Tensor
}

type Attribute struct {
	Name  string
	Value gguf.Value
}

type TensorShape struct {
	Dimensions []uint64
}

func (s TensorShape) String() string {
	parts := make([]string, len(s.Dimensions))
	for i, d := range s.Dimensions {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return "[" + strings.Join(parts, ",") + "]"
}

type TensorType struct {
	DataType string
	Shape    TensorShape
}

// String renders the element type and shape, e.g. "float32[4096,32000]".
// Packed block formats have no element type and render as "?".
func (t TensorType) String() string {
	dt := t.DataType
	if dt == "" {
		dt = "?"
	}
	return dt + t.Shape.String()
}

// Tensor is the presentation view of a decoded tensor.
type Tensor struct {
	Type TensorType
	// Quantization is empty for F32 and F16.
	Quantization string
	// Encoding is "<" (little-endian) when the payload is readable as
	// native floats.
	Encoding string

	source *gguf.Tensor
}

func NewTensor(t *gguf.Tensor) *Tensor {
	out := &Tensor{
		Type: TensorType{
			DataType: t.DType,
			Shape:    TensorShape{Dimensions: t.Dims},
		},
		source: t,
	}
	if t.Type != gguf.GGMLTypeF32 && t.Type != gguf.GGMLTypeF16 {
		out.Quantization = t.Type.String()
	}
	if t.DType == "float32" || t.DType == "float16" {
		out.Encoding = "<"
	}
	return out
}

// Source returns the decoded descriptor the tensor was built from.
func (t *Tensor) Source() *gguf.Tensor { return t.source }

// Values returns the raw little-endian payload of float32 and float16
// tensors, and nil for every other type.
func (t *Tensor) Values() ([]byte, error) {
	if t.Encoding == "" || t.source.Data == nil {
		return nil, nil
	}
	return t.source.Data.Bytes()
}
