// Package compress inflates containers shipped inside a zstd or LZ4 frame.
package compress

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"
)

// Codec identifies the framing wrapped around a payload.
type Codec string

const (
	None Codec = "none"
	Zstd Codec = "zstd"
	LZ4  Codec = "lz4"
)

var (
	zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}
	lz4Magic  = []byte{0x04, 0x22, 0x4d, 0x18}
)

// ErrTooLarge is returned when the inflated payload exceeds the limit.
var ErrTooLarge = errors.New("compress: inflated payload exceeds limit")

// Detect inspects the frame magic at the start of head.
func Detect(head []byte) Codec {
	switch {
	case bytes.HasPrefix(head, zstdMagic):
		return Zstd
	case bytes.HasPrefix(head, lz4Magic):
		return LZ4
	default:
		return None
	}
}

// NewReader returns a reader that inflates r according to c.
func NewReader(r io.Reader, c Codec) (io.ReadCloser, error) {
	switch c {
	case None:
		return io.NopCloser(r), nil
	case Zstd:
		dec, err := zstd.NewReader(r, zstd.WithDecoderConcurrency(1))
		if err != nil {
			return nil, fmt.Errorf("zstd: %w", err)
		}
		return dec.IOReadCloser(), nil
	case LZ4:
		return io.NopCloser(lz4.NewReader(r)), nil
	default:
		return nil, fmt.Errorf("compress: unknown codec %q", c)
	}
}

// Inflate detects the codec of data and returns the inflated bytes. Data
// without a known frame is returned unchanged. A limit of zero or less
// means no limit.
func Inflate(data []byte, limit int64) ([]byte, Codec, error) {
	c := Detect(data)
	if c == None {
		return data, None, nil
	}
	if limit <= 0 {
		limit = math.MaxInt64 - 1
	}
	r, err := NewReader(bytes.NewReader(data), c)
	if err != nil {
		return nil, c, err
	}
	defer func() { _ = r.Close() }()

	out, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, c, fmt.Errorf("%s: %w", c, err)
	}
	if int64(len(out)) > limit {
		return nil, c, ErrTooLarge
	}
	return out, c, nil
}
