// Package bucket downloads processed output objects from the storage backend.
//
// Three backends are supported: the Supabase storage REST API the hosted
// translator writes to, Google Cloud Storage, and S3.
package bucket

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// DefaultBucket is the bucket the translator writes its output to.
const DefaultBucket = "output-files"

// Backend names accepted by Open.
const (
	BackendSupabase = "supabase"
	BackendGCS      = "gcs"
	BackendS3       = "s3"
)

// ErrObjectNotFound is returned when the object does not exist in the bucket.
var ErrObjectNotFound = errors.New("bucket: object not found")

// Downloader fetches a single object by name from a fixed bucket.
type Downloader interface {
	Download(ctx context.Context, objectName string) (*models.DownloadedBlob, error)
}

// Config selects and configures a backend.
type Config struct {
	Backend string
	Bucket  string

	SupabaseURL string
	SupabaseKey string

	S3Region   string
	S3Endpoint string
}

// Open builds the Downloader for cfg.Backend.
func Open(ctx context.Context, cfg Config, httpClient *http.Client) (Downloader, error) {
	if cfg.Bucket == "" {
		cfg.Bucket = DefaultBucket
	}
	switch cfg.Backend {
	case "", BackendSupabase:
		return NewSupabase(cfg.SupabaseURL, cfg.SupabaseKey, cfg.Bucket, httpClient)
	case BackendGCS:
		return NewGCS(ctx, cfg.Bucket)
	case BackendS3:
		return NewS3(ctx, cfg.S3Region, cfg.S3Endpoint, cfg.Bucket)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

func contentTypeOr(ct string) string {
	if ct == "" {
		return "application/pdf"
	}
	return ct
}
