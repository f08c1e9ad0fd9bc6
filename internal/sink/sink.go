// Package sink provides the destinations rendered output is written to: local
// files, optionally zstd-compressed, and S3 objects.
package sink

import (
	"context"
	"errors"
	"io"
)

// ErrInvalidDestination reports a destination that cannot be opened.
var ErrInvalidDestination = errors.New("invalid destination")

// Sink opens named destinations for writing. Closing the returned writer
// flushes it; the write is only complete once Close returned nil.
type Sink interface {
	Create(ctx context.Context, name string) (io.WriteCloser, error)
}

// nopCloser turns a writer the caller does not own into a WriteCloser.
type nopCloser struct {
	io.Writer
}

func (nopCloser) Close() error { return nil }

// Writer wraps w in a Sink whose destinations all write to w and are never
// closed.
func Writer(w io.Writer) Sink {
	return writerSink{w: w}
}

type writerSink struct {
	w io.Writer
}

func (s writerSink) Create(context.Context, string) (io.WriteCloser, error) {
	return nopCloser{s.w}, nil
}
