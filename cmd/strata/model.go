package main

import (
	"fmt"

	"github.com/samcharles93/strata/internal/compress"
	"github.com/samcharles93/strata/internal/ggml"
	"github.com/samcharles93/strata/internal/gguf"
)

// openModel maps path and assembles its model. Files wrapped in a zstd or
// LZ4 frame are inflated into memory first. The caller closes the returned
// file once it is done with tensor payloads.
func openModel(path string) (*ggml.Model, *gguf.MappedFile, error) {
	f, err := gguf.OpenFile(path)
	if err != nil {
		return nil, nil, err
	}
	if !ggml.Match(f) {
		if f, err = inflate(f); err != nil {
			return nil, nil, err
		}
	}
	if !ggml.Match(f) {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, gguf.ErrFormatMismatch)
	}
	m, err := ggml.Open(f)
	if err != nil {
		_ = f.Close()
		return nil, nil, fmt.Errorf("%s: %w", path, err)
	}
	return m, f, nil
}

func inflate(f *gguf.MappedFile) (*gguf.MappedFile, error) {
	data, codec, err := compress.Inflate(f.Bytes(), 0)
	if codec == compress.None {
		return f, nil
	}
	_ = f.Close()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", f.Path, err)
	}
	return &gguf.MappedFile{Stream: gguf.NewStream(data), Path: f.Path}, nil
}
