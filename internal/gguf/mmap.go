package gguf

import (
	"fmt"
	"io"
	"os"

	"golang.org/x/sys/unix"
)

// MappedFile is a Stream backed by a read-only file mapping.
type MappedFile struct {
	*Stream
	Path    string
	mmapped bool
}

// OpenFile maps a file read-only. If mmap is unavailable it falls back to
// reading the file into memory. The returned file must be closed to
// release any mapping.
func OpenFile(path string) (*MappedFile, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	size64 := stat.Size()
	if size64 < 0 || size64 > int64(int(^uint(0)>>1)) {
		return nil, fmt.Errorf("gguf: %s: unsupported file size %d", path, size64)
	}
	size := int(size64)
	if size == 0 {
		return &MappedFile{Stream: NewStream(nil), Path: path}, nil
	}

	data, err := unix.Mmap(int(f.Fd()), 0, size, unix.PROT_READ, unix.MAP_SHARED)
	if err == nil {
		return &MappedFile{Stream: NewStream(data), Path: path, mmapped: true}, nil
	}

	data, err = readAllAt(f, size)
	if err != nil {
		return nil, err
	}
	return &MappedFile{Stream: NewStream(data), Path: path}, nil
}

// Close releases the mapping. Slices obtained from the file must not be
// used afterwards.
func (m *MappedFile) Close() error {
	if m == nil || !m.mmapped {
		return nil
	}
	m.mmapped = false
	return unix.Munmap(m.data)
}

func readAllAt(r io.ReaderAt, size int) ([]byte, error) {
	out := make([]byte, size)
	var off int64
	for off < int64(size) {
		n, err := r.ReadAt(out[off:], off)
		off += int64(n)
		if err == nil {
			continue
		}
		if err == io.EOF && off == int64(size) {
			break
		}
		return nil, err
	}
	return out, nil
}
