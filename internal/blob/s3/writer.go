package s3blob

import (
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/alanyoungcy/easybet/internal/domain"
)

// minPartSize is the minimum allowed part size for S3 multipart uploads (5 MiB).
const minPartSize int64 = 5 * 1024 * 1024

// Writer implements domain.BlobWriter for archived snapshots.
type Writer struct {
	c *Client
}

// NewWriter creates a Writer over the client's bucket and prefix.
func NewWriter(c *Client) *Writer {
	return &Writer{c: c}
}

// Put uploads data with a single PutObject.
func (w *Writer) Put(ctx context.Context, path string, data io.Reader, contentType string) error {
	_, err := w.c.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(w.c.bucket),
		Key:         w.c.key(path),
		Body:        data,
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put %s: %w", path, err)
	}
	return nil
}

// PutMultipart streams data through the multipart upload manager. partSize
// is raised to the S3 minimum of 5 MiB.
func (w *Writer) PutMultipart(ctx context.Context, path string, data io.Reader, partSize int64) error {
	return w.putMultipart(ctx, path, data, partSize, "")
}

func (w *Writer) putMultipart(ctx context.Context, path string, data io.Reader, partSize int64, contentType string) error {
	uploader := manager.NewUploader(w.c.s3, func(u *manager.Uploader) {
		u.PartSize = max(partSize, minPartSize)
	})
	input := &s3.PutObjectInput{
		Bucket: aws.String(w.c.bucket),
		Key:    w.c.key(path),
		Body:   data,
	}
	if contentType != "" {
		input.ContentType = aws.String(contentType)
	}
	if _, err := uploader.Upload(ctx, input); err != nil {
		return fmt.Errorf("s3blob: multipart upload %s: %w", path, err)
	}
	return nil
}

// Compile-time interface checks.
var (
	_ domain.BlobWriter = (*Writer)(nil)
	_ domain.BlobReader = (*Reader)(nil)
)
