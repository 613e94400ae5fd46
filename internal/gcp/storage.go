package gcp

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"
)

// GetEnv is a helper to read an environment variable or return a default value.
func GetEnv(key, fallback string) string {
	if value, ok := os.LookupEnv(key); ok {
		return value
	}
	return fallback
}

// SaveToGCSAtomically writes content to a GCS object only if it doesn't already exist.
// An existing object is not a failure: the same PDF hashes to the same name.
func SaveToGCSAtomically(ctx context.Context, bucket *storage.BucketHandle, objectName, contentType string, content []byte) error {
	writer := bucket.Object(objectName).If(storage.Conditions{DoesNotExist: true}).NewWriter(ctx)
	writer.ContentType = contentType

	if _, err := io.Copy(writer, bytes.NewReader(content)); err != nil {
		_ = writer.Close()
		return fmt.Errorf("failed to write to GCS: %w", err)
	}

	if err := writer.Close(); err != nil {
		var gerr *googleapi.Error
		if errors.As(err, &gerr) && gerr.Code == http.StatusPreconditionFailed {
			slog.Info("Archive object already exists, skipping.", "gcsObject", objectName)
			return nil
		}
		return fmt.Errorf("failed to finalize GCS write: %w", err)
	}
	return nil
}

// Archiver keeps a copy of every accepted source PDF in a GCS bucket, keyed by content hash.
type Archiver struct {
	client *storage.Client
	bucket string
}

// NewArchiver creates an Archiver for bucket.
func NewArchiver(ctx context.Context, bucket string) (*Archiver, error) {
	if bucket == "" {
		return nil, errors.New("archive bucket must be provided")
	}
	client, err := storage.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to create storage client: %w", err)
	}
	return &Archiver{client: client, bucket: bucket}, nil
}

// Archive stores data as <hash>.pdf.
func (a *Archiver) Archive(ctx context.Context, hash string, data []byte) (string, error) {
	objectName := hash + ".pdf"
	if err := SaveToGCSAtomically(ctx, a.client.Bucket(a.bucket), objectName, "application/pdf", data); err != nil {
		return "", err
	}
	return fmt.Sprintf("gs://%s/%s", a.bucket, objectName), nil
}

// Close releases the storage client.
func (a *Archiver) Close() error {
	return a.client.Close()
}
