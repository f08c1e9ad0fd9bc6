package sink

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/google/uuid"
)

// S3Uploader defines the method used to upload to S3
type S3Uploader interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3 writes destinations as objects of Bucket. Object keys are Prefix joined
// with the destination name; an empty name gets a random UUID key.
type S3 struct {
	Client      S3Uploader
	Bucket      string
	Prefix      string
	ContentType string
}

// NewS3 returns an S3 sink using the default AWS configuration chain.
func NewS3(ctx context.Context, bucket, prefix string) (*S3, error) {
	if bucket == "" {
		return nil, fmt.Errorf("%w: empty bucket", ErrInvalidDestination)
	}
	cfg, err := config.LoadDefaultConfig(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}
	return &S3{Client: s3.NewFromConfig(cfg), Bucket: bucket, Prefix: prefix}, nil
}

// Key returns the object key a destination name is written to.
func (s *S3) Key(name string) string {
	if name == "" {
		name = uuid.NewString()
	}
	if s.Prefix == "" {
		return name
	}
	return path.Join(strings.TrimSuffix(s.Prefix, "/"), name)
}

// Create starts an upload streaming everything written until Close. Close
// waits for the upload and returns its error.
func (s *S3) Create(ctx context.Context, name string) (io.WriteCloser, error) {
	if s.Client == nil || s.Bucket == "" {
		return nil, fmt.Errorf("%w: S3 sink needs a client and a bucket", ErrInvalidDestination)
	}
	key := s.Key(name)
	contentType := s.ContentType
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	reader, writer := io.Pipe()
	w := &s3Writer{writer: writer, done: make(chan error, 1)}
	go func() {
		_, err := s.Client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.Bucket),
			Key:         aws.String(key),
			Body:        reader,
			ContentType: aws.String(contentType),
		})
		if err != nil {
			err = fmt.Errorf("upload s3://%s/%s: %w", s.Bucket, key, err)
		}
		// unblock pending writes whatever the outcome
		reader.CloseWithError(err)
		w.done <- err
	}()
	return w, nil
}

type s3Writer struct {
	writer *io.PipeWriter
	done   chan error
}

func (w *s3Writer) Write(p []byte) (int, error) {
	return w.writer.Write(p)
}

func (w *s3Writer) Close() error {
	if err := w.writer.Close(); err != nil {
		return err
	}
	return <-w.done
}
