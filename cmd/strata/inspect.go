package main

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/ggml"
	"github.com/samcharles93/strata/internal/gguf"
	"github.com/samcharles93/strata/internal/logger"
)

type inspectOptions struct {
	showKV   bool
	tensors  int64
	filter   string
	typeName string
	ttype    gguf.TensorType
}

func inspectCmd() *cli.Command {
	var opts inspectOptions

	return &cli.Command{
		Name:      "inspect",
		Usage:     "Print the header, metadata and tensor table of a GGUF file",
		ArgsUsage: "<path.gguf>",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:        "kv",
				Usage:       "show all metadata key/values",
				Destination: &opts.showKV,
			},
			&cli.Int64Flag{
				Name:        "tensors",
				Usage:       "number of tensors to list (0 to skip, -1 for all)",
				Value:       20,
				Destination: &opts.tensors,
			},
			&cli.StringFlag{
				Name:        "filter",
				Usage:       "only list keys and tensors containing this substring",
				Destination: &opts.filter,
			},
			&cli.StringFlag{
				Name:        "type",
				Usage:       "only list tensors of this quantization type (e.g. Q4_K)",
				Destination: &opts.typeName,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 1 {
				return fmt.Errorf("usage: strata inspect [--kv] [--tensors N] <path.gguf>")
			}
			path := cmd.Args().First()
			log := logger.FromContext(ctx)
			if opts.typeName != "" {
				t, ok := gguf.ParseTensorType(strings.ToUpper(opts.typeName))
				if !ok {
					return fmt.Errorf("unknown tensor type %q", opts.typeName)
				}
				opts.ttype = t
			}

			m, f, err := openModel(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			log.Debug("decoded container", "path", path, "format", m.Format, "layers", m.Layers.Len())
			_, _ = fmt.Fprintf(cmd.Root().Writer, "File: %s\n", path)
			printInspect(cmd.Root().Writer, m, opts)
			return nil
		},
	}
}

func printInspect(w io.Writer, m *ggml.Model, opts inspectOptions) {
	f := m.Container
	_, _ = fmt.Fprintf(w, "%s | tensors=%d | kv=%d | alignment=%d | data_offset=%d\n",
		f.Format, f.Header.TensorCount, f.Header.KVCount, f.Alignment, f.DataOffset)

	printField(w, "name", m.Name)
	printField(w, "runtime", m.Runtime)
	printField(w, "description", m.Description)
	for name, v := range m.Metadata.All() {
		if name == "author" || name == "license" {
			printField(w, name, gguf.FormatValue(v))
		}
	}

	if m.Runtime != "" {
		if n, ok := gguf.GetUint64(f.KV, m.Runtime+".context_length"); ok {
			printField(w, "context", strconv.FormatUint(n, 10))
		}
		if base, ok := gguf.GetFloat64(f.KV, m.Runtime+".rope.freq_base"); ok {
			printField(w, "rope_base", strconv.FormatFloat(base, 'g', -1, 64))
		}
	}

	counts := map[ggml.Kind]int{}
	for layer := range m.Layers.Values() {
		counts[layer.Kind]++
	}
	_, _ = fmt.Fprintf(w, "  %-14s %d (tokenizer=%d parameters=%d weights=%d)\n", "layers:",
		m.Layers.Len(), counts[ggml.KindTokenizer], counts[ggml.KindParameters], counts[ggml.KindWeights])

	printTokenizer(w, f.KV)

	if opts.showKV {
		_, _ = fmt.Fprintln(w)
		_, _ = fmt.Fprintln(w, "All metadata:")
		for k, v := range f.KV.All() {
			if !matches(k, opts.filter) {
				continue
			}
			_, _ = fmt.Fprintf(w, "  %s = %s\n", k, gguf.FormatValue(v))
		}
	}

	n := opts.tensors
	if n == 0 {
		return
	}
	var listed []*gguf.Tensor
	for t := range f.Tensors.Values() {
		if matches(t.Name, opts.filter) && (opts.typeName == "" || t.Type == opts.ttype) {
			listed = append(listed, t)
		}
	}
	count := int64(len(listed))
	if n < 0 || n > count {
		n = count
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Tensors:")
	for _, t := range listed[:n] {
		_, _ = fmt.Fprintf(w, "  %-40s %-6s dims=%s off=%d size=%d\n",
			t.Name, t.Type.String(), formatDims(t.Dims), t.Offset, t.Size)
	}
	if n < count {
		_, _ = fmt.Fprintf(w, "  ... (%d more)\n", count-n)
	}
}

func printTokenizer(w io.Writer, kv *gguf.KV) {
	model, ok := gguf.GetString(kv, "tokenizer.ggml.model")
	if !ok {
		return
	}
	_, _ = fmt.Fprintln(w)
	_, _ = fmt.Fprintln(w, "Tokenizer:")
	printField(w, "model", model)
	if tokens, ok := gguf.GetArray[string](kv, "tokenizer.ggml.tokens"); ok {
		printField(w, "tokens", strconv.Itoa(len(tokens)))
	}
	for _, key := range []string{"bos_token_id", "eos_token_id", "padding_token_id"} {
		if id, ok := gguf.GetInt64(kv, "tokenizer.ggml."+key); ok {
			printField(w, key, strconv.FormatInt(id, 10))
		}
	}
	if add, ok := gguf.GetBool(kv, "tokenizer.ggml.add_bos_token"); ok {
		printField(w, "add_bos", strconv.FormatBool(add))
	}
}

func printField(w io.Writer, key, value string) {
	if value == "" {
		return
	}
	_, _ = fmt.Fprintf(w, "  %-14s %s\n", key+":", value)
}

func matches(name, filter string) bool {
	return filter == "" || strings.Contains(name, filter)
}

func formatDims(dims []uint64) string {
	if len(dims) == 0 {
		return "[]"
	}
	parts := make([]string, len(dims))
	for i, v := range dims {
		parts[i] = strconv.FormatUint(v, 10)
	}
	return "[" + strings.Join(parts, "x") + "]"
}
