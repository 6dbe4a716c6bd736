package ggml

import "github.com/samcharles93/strata/internal/gguf"

// Match reports whether src holds a GGUF container.
func Match(src gguf.ByteSource) bool {
	return gguf.Match(src)
}

// Open decodes src and assembles the model. The source cursor is back at 0
// on success.
func Open(src gguf.ByteSource) (*Model, error) {
	f, err := gguf.Read(src)
	if err != nil {
		return nil, err
	}
	return NewModel(f), nil
}
