package ggml

import (
	"encoding/binary"
	"errors"
	"reflect"
	"testing"

	"github.com/samcharles93/strata/internal/gguf"
	"github.com/samcharles93/strata/internal/ordered"
)

type fileBuilder struct {
	f *gguf.File
}

func newFile() *fileBuilder {
	return &fileBuilder{f: &gguf.File{
		Format:    "GGUF v3",
		KV:        ordered.New[string, gguf.Value](),
		Tensors:   ordered.New[string, *gguf.Tensor](),
		Alignment: gguf.DefaultAlignment,
	}}
}

func (b *fileBuilder) str(key, val string) *fileBuilder {
	b.f.KV.Set(key, gguf.Value{Type: gguf.TypeString, Value: val})
	return b
}

func (b *fileBuilder) u32(key string, val uint32) *fileBuilder {
	b.f.KV.Set(key, gguf.Value{Type: gguf.TypeUint32, Value: val})
	return b
}

func (b *fileBuilder) tensor(name string, typ gguf.TensorType, dims ...uint64) *fileBuilder {
	t := &gguf.Tensor{Name: name, Dims: dims, Type: typ}
	if q, ok := gguf.LookupQuant(typ); ok {
		t.DType = q.DType
	}
	b.f.Tensors.Set(name, t)
	return b
}

func TestTensorPassOverridesLayerKind(t *testing.T) {
	f := newFile().
		str("tokenizer.ggml.model", "llama").
		tensor("tokenizer.ggml.weight", gguf.GGMLTypeF32, 4).f

	m := NewModel(f)

	layer, ok := m.Layers.Get("tokenizer.ggml")
	if !ok {
		t.Fatal("missing tokenizer.ggml layer")
	}
	if layer.Kind != KindWeights {
		t.Fatalf("kind: got %s, want %s", layer.Kind, KindWeights)
	}
	if model, ok := layer.Metadata.Get("model"); !ok || model.Value != "llama" {
		t.Fatalf("metadata model: got %v,%v", model.Value, ok)
	}
	if _, ok := layer.Weights.Get("weight"); !ok {
		t.Fatal("missing weight entry")
	}
	if m.Layers.Len() != 1 {
		t.Fatalf("layers: got %d, want 1", m.Layers.Len())
	}
}

func TestReservedKeysAreExtracted(t *testing.T) {
	f := newFile().
		str("general.name", "tiny").
		str("general.architecture", "llama").
		str("general.description", "a model").
		str("general.author", "someone").
		str("general.license", "mit").
		u32("general.file_type", 2).
		u32("general.quantization_version", 2).
		u32("general.alignment", 32).f

	m := NewModel(f)

	if m.Name != "tiny" || m.Runtime != "llama" || m.Description != "a model" {
		t.Fatalf("reserved fields: name=%q runtime=%q description=%q", m.Name, m.Runtime, m.Description)
	}
	if got, want := m.Metadata.Keys(), []string{"author", "license", "general.alignment"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("metadata keys: got %v, want %v", got, want)
	}
	if m.Layers.Len() != 0 {
		t.Fatalf("layers: got %d, want 0", m.Layers.Len())
	}
	for _, k := range []string{"general.name", "general.architecture", "general.description", "general.file_type", "general.quantization_version"} {
		if m.Metadata.Has(k) {
			t.Errorf("%s should not be in metadata", k)
		}
	}
}

func TestRuntimeParametersShareOneLayer(t *testing.T) {
	f := newFile().
		str("general.architecture", "llama").
		u32("llama.block_count", 32).
		u32("llama.attention.head_count", 32).
		str("tokenizer.ggml.model", "llama").
		str("mistral.context_length", "x").f

	m := NewModel(f)

	if got, want := m.Layers.Keys(), []string{"", "tokenizer.ggml"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("layers: got %q, want %q", got, want)
	}
	params, _ := m.Layers.Get("")
	if params.Kind != KindParameters {
		t.Fatalf("parameters kind: got %s", params.Kind)
	}
	if got, want := params.Metadata.Keys(), []string{"llama.block_count", "llama.attention.head_count"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("parameter keys: got %v, want %v", got, want)
	}

	tok, _ := m.Layers.Get("tokenizer.ggml")
	if tok.Kind != KindTokenizer {
		t.Fatalf("tokenizer kind: got %s", tok.Kind)
	}
	if got := tok.Metadata.Keys(); !reflect.DeepEqual(got, []string{"model"}) {
		t.Fatalf("tokenizer keys: got %v", got)
	}
	if got := m.Metadata.Keys(); !reflect.DeepEqual(got, []string{"mistral.context_length"}) {
		t.Fatalf("model metadata: got %v", got)
	}
}

func TestNoRuntimeLeavesEntriesUngrouped(t *testing.T) {
	m := NewModel(newFile().u32("llama.block_count", 32).f)

	if m.Runtime != "" {
		t.Fatalf("runtime: got %q", m.Runtime)
	}
	if m.Layers.Len() != 0 {
		t.Fatalf("layers: got %d, want 0", m.Layers.Len())
	}
	if got := m.Metadata.Keys(); !reflect.DeepEqual(got, []string{"llama.block_count"}) {
		t.Fatalf("metadata: got %v", got)
	}
}

func TestNonStringReservedValues(t *testing.T) {
	m := NewModel(newFile().u32("general.name", 7).f)
	if m.Name != "7" {
		t.Fatalf("name: got %q, want 7", m.Name)
	}
}

func TestSplitName(t *testing.T) {
	tests := []struct {
		in, prefix, leaf string
	}{
		{"blk.0.attn_q.weight", "blk.0.attn_q", "weight"},
		{"tokenizer.ggml.tokens", "tokenizer.ggml", "tokens"},
		{"output", "output", ""},
		{"trailing.", "trailing", ""},
		{".lead", "", "lead"},
	}
	for _, tc := range tests {
		p, l := splitName(tc.in)
		if p != tc.prefix || l != tc.leaf {
			t.Errorf("splitName(%q) = %q,%q, want %q,%q", tc.in, p, l, tc.prefix, tc.leaf)
		}
	}
}

func TestGraphNodes(t *testing.T) {
	f := newFile().
		str("general.architecture", "llama").
		u32("llama.block_count", 1).
		tensor("token_embd.weight", gguf.GGMLTypeQ4_K, 256, 8).
		tensor("blk.0.attn_q.weight", gguf.GGMLTypeF32, 4, 2).
		tensor("blk.0.attn_q.bias", gguf.GGMLTypeF16, 4).
		tensor("output", gguf.TensorType(99), 3).f

	m := NewModel(f)
	if len(m.Graphs) != 1 {
		t.Fatalf("graphs: got %d, want 1", len(m.Graphs))
	}
	g := m.Graphs[0]
	if len(g.Nodes) != 4 {
		t.Fatalf("nodes: got %d, want 4", len(g.Nodes))
	}
	if len(g.Inputs) != 0 || len(g.Outputs) != 0 {
		t.Fatalf("graph inputs/outputs should be empty: %v %v", g.Inputs, g.Outputs)
	}

	names := make([]string, len(g.Nodes))
	for i, n := range g.Nodes {
		names[i] = n.Name
	}
	if want := []string{"", "token_embd", "blk.0.attn_q", "output"}; !reflect.DeepEqual(names, want) {
		t.Fatalf("node order: got %q, want %q", names, want)
	}

	params := g.Nodes[0]
	if params.Type != KindParameters || len(params.Attributes) != 1 {
		t.Fatalf("parameters node: %+v", params)
	}
	if a := params.Attributes[0]; a.Name != "llama.block_count" || a.Value.Value != uint32(1) {
		t.Fatalf("attribute: %+v", a)
	}

	emb := g.Nodes[1]
	if emb.Type != KindWeights || len(emb.Inputs) != 1 {
		t.Fatalf("token_embd node: %+v", emb)
	}
	arg := emb.Inputs[0]
	if arg.Name != "weight" || len(arg.Value) != 1 {
		t.Fatalf("token_embd argument: %+v", arg)
	}
	v := arg.Value[0]
	if v.Name != "token_embd.weight" || v.Quantization != "Q4_K" {
		t.Fatalf("token_embd value: name=%q quantization=%q", v.Name, v.Quantization)
	}
	if got := v.Type.String(); got != "?[256,8]" {
		t.Fatalf("token_embd type: got %q", got)
	}
	if v.Initializer.Encoding != "" {
		t.Fatalf("packed tensor encoding: got %q", v.Initializer.Encoding)
	}

	attn := g.Nodes[2]
	if len(attn.Inputs) != 2 || attn.Inputs[0].Name != "weight" || attn.Inputs[1].Name != "bias" {
		t.Fatalf("attn inputs: %+v", attn.Inputs)
	}
	w, bias := attn.Inputs[0].Value[0], attn.Inputs[1].Value[0]
	if w.Quantization != "" {
		t.Fatalf("float tensor quantization: got %q", w.Quantization)
	}
	if w.Type.String() != "float32[4,2]" || bias.Type.String() != "float16[4]" {
		t.Fatalf("attn types: %s %s", w.Type, bias.Type)
	}
	if w.Initializer.Encoding != "<" {
		t.Fatalf("float tensor encoding: got %q", w.Initializer.Encoding)
	}

	out := g.Nodes[3]
	if len(out.Inputs) != 1 || out.Inputs[0].Name != "" {
		t.Fatalf("output inputs: %+v", out.Inputs)
	}
	if q := out.Inputs[0].Value[0].Quantization; q != "99" {
		t.Fatalf("unknown quantization: got %q", q)
	}
}

func TestShapeString(t *testing.T) {
	if got := (TensorShape{}).String(); got != "[]" {
		t.Fatalf("empty shape: got %q", got)
	}
	typ := TensorType{DataType: "int32", Shape: TensorShape{Dimensions: []uint64{2, 3}}}
	if got := typ.String(); got != "int32[2,3]" {
		t.Fatalf("type string: got %q", got)
	}
}

// container encodes a v3 file with an F32 tensor and a second tensor of
// the given type sized as Q8_0.
func container(second gguf.TensorType) []byte {
	var b []byte
	u32 := func(v uint32) { b = binary.LittleEndian.AppendUint32(b, v) }
	u64 := func(v uint64) { b = binary.LittleEndian.AppendUint64(b, v) }
	str := func(s string) { u64(uint64(len(s))); b = append(b, s...) }

	b = append(b, "GGUF"...)
	u32(3)
	u64(2)
	u64(2)
	str("general.name")
	u32(uint32(gguf.TypeString))
	str("tiny")
	str("tokenizer.ggml.model")
	u32(uint32(gguf.TypeString))
	str("gpt2")

	str("norm.weight")
	u32(1)
	u64(4)
	u32(uint32(gguf.GGMLTypeF32))
	u64(0)
	str("blk.0.ffn.weight")
	u32(1)
	u64(32)
	u32(uint32(second))
	u64(16)

	for len(b)%gguf.DefaultAlignment != 0 {
		b = append(b, 0)
	}
	for i := range 16 + 34 {
		b = append(b, byte(i))
	}
	return b
}

func TestOpen(t *testing.T) {
	src := gguf.NewStream(container(gguf.GGMLTypeQ8_0))
	if !Match(src) {
		t.Fatal("Match = false")
	}

	m, err := Open(src)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.Format != "GGUF v3" || m.Name != "tiny" {
		t.Fatalf("format=%q name=%q", m.Format, m.Name)
	}
	if src.Tell() != 0 {
		t.Fatalf("cursor not restored: %d", src.Tell())
	}
	if got, want := m.Layers.Keys(), []string{"tokenizer.ggml", "norm", "blk.0.ffn"}; !reflect.DeepEqual(got, want) {
		t.Fatalf("layers: got %q, want %q", got, want)
	}

	norm := m.Graphs[0].Nodes[1].Inputs[0].Value[0].Initializer
	vals, err := norm.Values()
	if err != nil {
		t.Fatalf("norm values: %v", err)
	}
	if len(vals) != 16 || vals[0] != 0 {
		t.Fatalf("norm values: got %v", vals)
	}
	if norm.Source().Name != "norm.weight" {
		t.Fatalf("norm source: got %q", norm.Source().Name)
	}

	ffn := m.Graphs[0].Nodes[2].Inputs[0].Value[0].Initializer
	vals, err = ffn.Values()
	if err != nil {
		t.Fatalf("ffn values: %v", err)
	}
	if vals != nil {
		t.Fatalf("packed tensor values should be nil, got %d bytes", len(vals))
	}
	if ffn.Source().Size != 34 {
		t.Fatalf("ffn size: got %d, want 34", ffn.Source().Size)
	}
}

func TestOpenMinimal(t *testing.T) {
	var b []byte
	b = append(b, "GGUF"...)
	b = binary.LittleEndian.AppendUint32(b, 2)
	b = binary.LittleEndian.AppendUint64(b, 0)
	b = binary.LittleEndian.AppendUint64(b, 1)
	b = binary.LittleEndian.AppendUint64(b, uint64(len("general.name")))
	b = append(b, "general.name"...)
	b = binary.LittleEndian.AppendUint32(b, uint32(gguf.TypeString))
	b = binary.LittleEndian.AppendUint64(b, 4)
	b = append(b, "test"...)

	m, err := Open(gguf.NewStream(b))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if m.Format != "GGUF v2" || m.Name != "test" {
		t.Fatalf("format=%q name=%q", m.Format, m.Name)
	}
	if m.Layers.Len() != 0 || m.Container.Tensors.Len() != 0 {
		t.Fatalf("layers=%d tensors=%d, want none", m.Layers.Len(), m.Container.Tensors.Len())
	}
	if len(m.Graphs[0].Nodes) != 0 {
		t.Fatalf("nodes: got %d, want 0", len(m.Graphs[0].Nodes))
	}
}

func TestMatchRejectsOtherFormats(t *testing.T) {
	if Match(gguf.NewStream([]byte("ABCDEFGH"))) {
		t.Fatal("Match accepted a non-GGUF source")
	}
	if _, err := Open(gguf.NewStream([]byte("ABCDEFGH"))); !errors.Is(err, gguf.ErrFormatMismatch) {
		t.Fatalf("expected ErrFormatMismatch, got %v", err)
	}
}

func TestOpenUnsupportedQuantization(t *testing.T) {
	_, err := Open(gguf.NewStream(container(99)))
	var qerr *gguf.UnsupportedQuantizationError
	if !errors.As(err, &qerr) {
		t.Fatalf("expected UnsupportedQuantizationError, got %v", err)
	}
	if qerr.Code != 99 || qerr.Tensor != "blk.0.ffn.weight" {
		t.Fatalf("unexpected error fields: %+v", qerr)
	}
}
