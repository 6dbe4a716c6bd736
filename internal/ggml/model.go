// Package ggml regroups the flat namespace of a decoded GGUF container into
// typed layers and exposes them as a single node graph.
package ggml

import (
	"fmt"
	"strings"

	"github.com/samcharles93/strata/internal/gguf"
	"github.com/samcharles93/strata/internal/ordered"
)

// Kind classifies a layer.
type Kind string

const (
	KindTokenizer  Kind = "Tokenizer"
	KindParameters Kind = "Parameters"
	KindWeights    Kind = "Weights"
)

// Reserved top-level metadata keys.
const (
	KeyName                = "general.name"
	KeyArchitecture        = "general.architecture"
	KeyDescription         = "general.description"
	KeyAuthor              = "general.author"
	KeyLicense             = "general.license"
	KeyFileType            = "general.file_type"
	KeyQuantizationVersion = "general.quantization_version"

	tokenizerPrefix = "tokenizer."
)

// Layer groups the entries sharing a dotted-name prefix.
type Layer struct {
	Key      string
	Kind     Kind
	Metadata *ordered.Map[string, gguf.Value]
	Weights  *ordered.Map[string, *gguf.Tensor]
}

func newLayer(key string) func() *Layer {
	return func() *Layer {
		return &Layer{
			Key:      key,
			Metadata: ordered.New[string, gguf.Value](),
			Weights:  ordered.New[string, *gguf.Tensor](),
		}
	}
}

type Model struct {
	Format      string
	Name        string
	Runtime     string
	Description string
	// Metadata holds author and license followed by every entry that was
	// not grouped into a layer.
	Metadata *ordered.Map[string, gguf.Value]
	Layers   *ordered.Map[string, *Layer]
	Graphs   []*Graph

	Container *gguf.File
}

// NewModel assembles the layers and graph of a decoded container.
//
// Metadata is grouped first: tokenizer.* entries go to a Tokenizer layer
// keyed by their prefix, <runtime>.* entries to the shared Parameters layer
// keyed "". Tensors are grouped afterwards and always set the layer kind to
// Weights, including on layers that already hold metadata.
func NewModel(f *gguf.File) *Model {
	m := &Model{
		Format:    f.Format,
		Metadata:  ordered.New[string, gguf.Value](),
		Layers:    ordered.New[string, *Layer](),
		Container: f,
	}

	rest := ordered.New[string, gguf.Value]()
	for name, value := range f.KV.All() {
		switch name {
		case KeyName:
			m.Name = valueString(value)
		case KeyArchitecture:
			m.Runtime = valueString(value)
		case KeyDescription:
			m.Description = valueString(value)
		case KeyAuthor:
			m.Metadata.Set("author", value)
		case KeyLicense:
			m.Metadata.Set("license", value)
		case KeyFileType, KeyQuantizationVersion:
		default:
			rest.Set(name, value)
		}
	}

	for name, value := range rest.All() {
		switch {
		case strings.HasPrefix(name, tokenizerPrefix):
			key, param := splitName(name)
			layer := m.layer(key)
			layer.Kind = KindTokenizer
			layer.Metadata.Set(param, value)
		case m.Runtime != "" && strings.HasPrefix(name, m.Runtime+"."):
			layer := m.layer("")
			layer.Kind = KindParameters
			layer.Metadata.Set(name, value)
		default:
			m.Metadata.Set(name, value)
		}
	}

	for name, tensor := range f.Tensors.All() {
		key, param := splitName(name)
		layer := m.layer(key)
		layer.Kind = KindWeights
		layer.Weights.Set(param, tensor)
	}

	m.Graphs = []*Graph{newGraph(m.Layers)}
	return m
}

func (m *Model) layer(key string) *Layer {
	return m.Layers.GetOrInsert(key, newLayer(key))
}

// splitName splits at the last dot. A name without a dot is all prefix.
func splitName(name string) (prefix, leaf string) {
	i := strings.LastIndexByte(name, '.')
	if i < 0 {
		return name, ""
	}
	return name[:i], name[i+1:]
}

func valueString(v gguf.Value) string {
	if s, ok := v.Value.(string); ok {
		return s
	}
	return fmt.Sprint(v.Value)
}
