// Package export converts an assembled model into a plain document that can
// be encoded as JSON, YAML or CBOR.
package export

import (
	"encoding/hex"
	"fmt"
	"iter"
	"math"

	"github.com/zeebo/blake3"

	"github.com/samcharles93/strata/internal/ggml"
	"github.com/samcharles93/strata/internal/gguf"
)

type Options struct {
	// Digests adds a BLAKE3-256 digest of every resolved tensor payload.
	Digests bool
}

type Document struct {
	Format      string       `json:"format" yaml:"format" cbor:"format"`
	Name        string       `json:"name,omitempty" yaml:"name,omitempty" cbor:"name,omitempty"`
	Runtime     string       `json:"runtime,omitempty" yaml:"runtime,omitempty" cbor:"runtime,omitempty"`
	Description string       `json:"description,omitempty" yaml:"description,omitempty" cbor:"description,omitempty"`
	Alignment   uint64       `json:"alignment" yaml:"alignment" cbor:"alignment"`
	DataOffset  int64        `json:"data_offset" yaml:"data_offset" cbor:"data_offset"`
	Metadata    []Entry      `json:"metadata" yaml:"metadata" cbor:"metadata"`
	Tensors     []TensorInfo `json:"tensors" yaml:"tensors" cbor:"tensors"`
	Nodes       []Node       `json:"nodes" yaml:"nodes" cbor:"nodes"`
}

type Entry struct {
	Name  string `json:"name" yaml:"name" cbor:"name"`
	Type  string `json:"type" yaml:"type" cbor:"type"`
	Value any    `json:"value" yaml:"value" cbor:"value"`
}

type TensorInfo struct {
	Name         string   `json:"name" yaml:"name" cbor:"name"`
	Shape        []uint64 `json:"shape" yaml:"shape,flow" cbor:"shape"`
	Quantization string   `json:"quantization" yaml:"quantization" cbor:"quantization"`
	DType        string   `json:"dtype,omitempty" yaml:"dtype,omitempty" cbor:"dtype,omitempty"`
	Offset       uint64   `json:"offset" yaml:"offset" cbor:"offset"`
	Size         uint64   `json:"size" yaml:"size" cbor:"size"`
	Digest       string   `json:"blake3,omitempty" yaml:"blake3,omitempty" cbor:"blake3,omitempty"`
}

type Node struct {
	Name       string  `json:"name" yaml:"name" cbor:"name"`
	Type       string  `json:"type" yaml:"type" cbor:"type"`
	Inputs     []Input `json:"inputs" yaml:"inputs" cbor:"inputs"`
	Attributes []Entry `json:"attributes" yaml:"attributes" cbor:"attributes"`
}

type Input struct {
	Name         string `json:"name" yaml:"name" cbor:"name"`
	Tensor       string `json:"tensor" yaml:"tensor" cbor:"tensor"`
	Type         string `json:"type" yaml:"type" cbor:"type"`
	Quantization string `json:"quantization,omitempty" yaml:"quantization,omitempty" cbor:"quantization,omitempty"`
}

// Build flattens m into a Document.
func Build(m *ggml.Model, opts Options) (*Document, error) {
	doc := &Document{
		Format:      m.Format,
		Name:        m.Name,
		Runtime:     m.Runtime,
		Description: m.Description,
		Metadata:    entries(m.Metadata.All()),
		Tensors:     []TensorInfo{},
		Nodes:       []Node{},
	}

	if f := m.Container; f != nil {
		doc.Alignment = f.Alignment
		doc.DataOffset = f.DataOffset
		for t := range f.Tensors.Values() {
			info := TensorInfo{
				Name:         t.Name,
				Shape:        t.Dims,
				Quantization: t.Type.String(),
				DType:        t.DType,
				Offset:       t.Offset,
				Size:         t.Size,
			}
			if info.Shape == nil {
				info.Shape = []uint64{}
			}
			if opts.Digests && t.Data != nil {
				d, err := digest(t.Data)
				if err != nil {
					return nil, fmt.Errorf("digest %s: %w", t.Name, err)
				}
				info.Digest = d
			}
			doc.Tensors = append(doc.Tensors, info)
		}
	}

	for _, g := range m.Graphs {
		for _, n := range g.Nodes {
			node := Node{
				Name:       n.Name,
				Type:       string(n.Type),
				Inputs:     make([]Input, 0, len(n.Inputs)),
				Attributes: make([]Entry, 0, len(n.Attributes)),
			}
			for _, arg := range n.Inputs {
				for _, v := range arg.Value {
					node.Inputs = append(node.Inputs, Input{
						Name:         arg.Name,
						Tensor:       v.Name,
						Type:         v.Type.String(),
						Quantization: v.Quantization,
					})
				}
			}
			for _, a := range n.Attributes {
				node.Attributes = append(node.Attributes, entry(a.Name, a.Value))
			}
			doc.Nodes = append(doc.Nodes, node)
		}
	}
	return doc, nil
}

func entries(seq iter.Seq2[string, gguf.Value]) []Entry {
	out := []Entry{}
	for name, v := range seq {
		out = append(out, entry(name, v))
	}
	return out
}

func entry(name string, v gguf.Value) Entry {
	return Entry{Name: name, Type: v.Type.String(), Value: plain(v.Value)}
}

// plain converts decoded values into types every encoder accepts. Arrays
// become slices and non-finite floats become strings.
func plain(v any) any {
	switch t := v.(type) {
	case gguf.ArrayValue:
		out := make([]any, len(t.Values))
		for i, e := range t.Values {
			out[i] = plain(e)
		}
		return out
	case float32:
		f := float64(t)
		if math.IsNaN(f) || math.IsInf(f, 0) {
			return fmt.Sprint(f)
		}
		return t
	default:
		return v
	}
}

func digest(s *gguf.Slice) (string, error) {
	b, err := s.Bytes()
	if err != nil {
		return "", err
	}
	sum := blake3.Sum256(b)
	return hex.EncodeToString(sum[:]), nil
}
