// Package gcs fetches statement documents stored in Google Cloud Storage.
package gcs

import (
	"context"
	"fmt"
	"io"
	"strings"

	"cloud.google.com/go/storage"
)

const scheme = "gs://"

// MaxObjectSize bounds a single download. Statements are small; anything larger is refused.
const MaxObjectSize = 32 << 20

// IsURI reports whether s looks like a gs:// object URI.
func IsURI(s string) bool {
	return strings.HasPrefix(s, scheme)
}

// ParseURI splits gs://bucket/path/to/object into bucket and object name.
func ParseURI(uri string) (bucket, object string, err error) {
	if !IsURI(uri) {
		return "", "", fmt.Errorf("not a gs:// URI: %q", uri)
	}
	rest := strings.TrimPrefix(uri, scheme)
	bucket, object, ok := strings.Cut(rest, "/")
	if !ok || bucket == "" || object == "" || strings.HasSuffix(object, "/") {
		return "", "", fmt.Errorf("gs:// URI needs a bucket and an object name: %q", uri)
	}
	return bucket, object, nil
}

// Client downloads objects. Create one per process and Close it on shutdown.
type Client struct {
	client *storage.Client
}

// NewClient uses application default credentials.
func NewClient(ctx context.Context) (*Client, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	return &Client{client: client}, nil
}

// Fetch downloads the object named by a gs:// URI.
func (c *Client) Fetch(ctx context.Context, uri string) ([]byte, error) {
	bucket, object, err := ParseURI(uri)
	if err != nil {
		return nil, err
	}

	r, err := c.client.Bucket(bucket).Object(object).NewReader(ctx)
	if err != nil {
		return nil, fmt.Errorf("open GCS object reader: %w", err)
	}
	defer r.Close()

	if r.Attrs.Size > MaxObjectSize {
		return nil, fmt.Errorf("object %s is %d bytes, limit is %d", uri, r.Attrs.Size, MaxObjectSize)
	}

	data, err := io.ReadAll(io.LimitReader(r, MaxObjectSize+1))
	if err != nil {
		return nil, fmt.Errorf("read GCS object: %w", err)
	}
	if len(data) > MaxObjectSize {
		return nil, fmt.Errorf("object %s exceeds %d bytes", uri, MaxObjectSize)
	}
	return data, nil
}

// Close releases the underlying client.
func (c *Client) Close() error {
	return c.client.Close()
}
