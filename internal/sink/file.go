package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
)

// ZstdExtension marks compressed files.
const ZstdExtension = ".zst"

// File writes destinations as files under Dir. With Compress, output is
// zstd-compressed and ".zst" is appended to names that lack it.
type File struct {
	Dir      string
	Compress bool
}

func (f File) Create(_ context.Context, name string) (io.WriteCloser, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty file name", ErrInvalidDestination)
	}
	path := name
	if f.Dir != "" && !filepath.IsAbs(name) {
		path = filepath.Join(f.Dir, name)
	}
	compress := f.Compress || strings.HasSuffix(path, ZstdExtension)
	if compress && !strings.HasSuffix(path, ZstdExtension) {
		path += ZstdExtension
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("create directory %s: %w", dir, err)
		}
	}

	file, err := os.Create(path)
	if err != nil {
		return nil, fmt.Errorf("create %s: %w", path, err)
	}
	if !compress {
		return file, nil
	}
	enc, err := zstd.NewWriter(file, zstd.WithEncoderLevel(zstd.SpeedDefault))
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("zstd writer: %w", err)
	}
	return &zstdFile{enc: enc, file: file}, nil
}

type zstdFile struct {
	enc  *zstd.Encoder
	file *os.File
}

func (z *zstdFile) Write(p []byte) (int, error) {
	return z.enc.Write(p)
}

func (z *zstdFile) Close() error {
	if err := z.enc.Close(); err != nil {
		z.file.Close()
		return fmt.Errorf("flush zstd stream: %w", err)
	}
	return z.file.Close()
}

// Open opens a file for reading, decompressing it when its name ends in
// ".zst".
func Open(path string) (io.ReadCloser, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ZstdExtension) {
		return file, nil
	}
	dec, err := zstd.NewReader(file)
	if err != nil {
		file.Close()
		return nil, fmt.Errorf("zstd reader: %w", err)
	}
	return &zstdReader{dec: dec, file: file}, nil
}

type zstdReader struct {
	dec  *zstd.Decoder
	file *os.File
}

func (z *zstdReader) Read(p []byte) (int, error) {
	return z.dec.Read(p)
}

func (z *zstdReader) Close() error {
	z.dec.Close()
	return z.file.Close()
}
