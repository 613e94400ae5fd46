package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"

	"cloud.google.com/go/storage"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// GCS reads objects from a Google Cloud Storage bucket.
type GCS struct {
	handle *storage.BucketHandle
	bucket string
}

// NewGCS creates a GCS downloader using application default credentials.
func NewGCS(ctx context.Context, bucket string) (*GCS, error) {
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return NewGCSFromHandle(client.Bucket(bucket), bucket), nil
}

// NewGCSFromHandle wraps an existing bucket handle.
func NewGCSFromHandle(handle *storage.BucketHandle, bucket string) *GCS {
	return &GCS{handle: handle, bucket: bucket}
}

// Download streams gs://bucket/objectName into memory.
func (g *GCS) Download(ctx context.Context, objectName string) (*models.DownloadedBlob, error) {
	r, err := g.handle.Object(objectName).NewReader(ctx)
	if err != nil {
		if errors.Is(err, storage.ErrObjectNotExist) {
			return nil, fmt.Errorf("gs://%s/%s: %w", g.bucket, objectName, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("failed to get GCS object reader for gs://%s/%s: %w", g.bucket, objectName, err)
	}
	defer r.Close()

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read gs://%s/%s: %w", g.bucket, objectName, err)
	}
	return &models.DownloadedBlob{
		ObjectName:  objectName,
		ContentType: contentTypeOr(r.Attrs.ContentType),
		Data:        data,
	}, nil
}
