package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"

	"github.com/urfave/cli/v3"

	"github.com/samcharles93/strata/internal/export"
	"github.com/samcharles93/strata/internal/ggml"
	"github.com/samcharles93/strata/internal/gguf"
	"github.com/samcharles93/strata/internal/logger"
)

func graphCmd() *cli.Command {
	var (
		format  string
		output  string
		digests bool
	)

	return &cli.Command{
		Name:      "graph",
		Usage:     "Print the layer graph of a GGUF file or export it",
		ArgsUsage: "<path.gguf>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "format",
				Aliases:     []string{"f"},
				Usage:       "export format (json, yaml, cbor); empty prints a listing",
				Destination: &format,
			},
			&cli.StringFlag{
				Name:        "output",
				Aliases:     []string{"o"},
				Usage:       "write the export to this file instead of stdout",
				Destination: &output,
			},
			&cli.BoolFlag{
				Name:        "digests",
				Usage:       "include a BLAKE3 digest of every tensor payload",
				Destination: &digests,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.NArg() < 1 {
				return fmt.Errorf("usage: strata graph [--format json|yaml|cbor] <path.gguf>")
			}
			applyGraphConfig(cmd, LoadConfig(), &format, &digests)
			path := cmd.Args().First()
			log := logger.FromContext(ctx)

			m, f, err := openModel(path)
			if err != nil {
				return err
			}
			defer func() { _ = f.Close() }()

			if format == "" {
				return writeGraphListing(cmd.Root().Writer, output, m)
			}

			fmtName, err := export.ParseFormat(format)
			if err != nil {
				return err
			}
			doc, err := export.Build(m, export.Options{Digests: digests})
			if err != nil {
				return err
			}
			data, err := export.Marshal(doc, fmtName)
			if err != nil {
				return err
			}
			if output == "" {
				_, err = cmd.Root().Writer.Write(data)
				return err
			}
			if err := os.WriteFile(output, data, 0o644); err != nil {
				return err
			}
			log.Info("export written", "path", output, "format", string(fmtName), "nodes", len(doc.Nodes))
			return nil
		},
	}
}

func writeGraphListing(stdout io.Writer, output string, m *ggml.Model) error {
	if output == "" {
		printGraph(stdout, m)
		return nil
	}
	var buf bytes.Buffer
	printGraph(&buf, m)
	return os.WriteFile(output, buf.Bytes(), 0o644)
}

func printGraph(w io.Writer, m *ggml.Model) {
	for _, g := range m.Graphs {
		for _, n := range g.Nodes {
			name := n.Name
			if name == "" {
				name = "(global)"
			}
			_, _ = fmt.Fprintf(w, "%s %s\n", n.Type, name)
			for _, arg := range n.Inputs {
				for _, v := range arg.Value {
					line := fmt.Sprintf("  %-24s %s", arg.Name, v.Type.String())
					if v.Quantization != "" {
						line += " " + v.Quantization
					}
					_, _ = fmt.Fprintln(w, line)
				}
			}
			for _, a := range n.Attributes {
				_, _ = fmt.Fprintf(w, "  %-24s = %s\n", a.Name, gguf.FormatValue(a.Value))
			}
		}
	}
}
