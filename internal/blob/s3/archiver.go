package s3blob

import (
	"bytes"
	"context"
	"fmt"
	"path"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// Archiver mirrors finished run reports into the configured bucket. It
// satisfies the reporter's uploader hook.
type Archiver struct {
	client *s3.Client
	bucket string
	prefix string
}

// NewArchiver creates an Archiver that writes under the given key prefix.
func NewArchiver(c *Client, prefix string) *Archiver {
	return &Archiver{
		client: c.s3,
		bucket: c.bucket,
		prefix: prefix,
	}
}

// Upload stores one report as a single PutObject request. Reports are a few
// hundred KB at most, so multipart upload is never needed.
func (a *Archiver) Upload(ctx context.Context, key string, data []byte) error {
	full := key
	if a.prefix != "" {
		full = path.Join(a.prefix, key)
	}

	_, err := a.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(a.bucket),
		Key:         aws.String(full),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/x-ndjson"),
	})
	if err != nil {
		return fmt.Errorf("s3blob: put object %s: %w", full, err)
	}
	return nil
}
