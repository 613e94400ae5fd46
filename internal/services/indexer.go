package services

import (
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"

	"github.com/Lllllllleong/mangasensei/internal/ledger"
)

// GCSEvent is the payload of a storage "object finalized" CloudEvent.
type GCSEvent struct {
	Bucket string `json:"bucket"`
	Name   string `json:"name"`
}

type OutputIndexerConfig struct {
	// Bucket, when set, restricts indexing to objects from this bucket.
	Bucket string
}

// OutputIndexer marks ledger records READY when the translator writes their output object.
type OutputIndexer struct {
	ledger ledger.Ledger
	config OutputIndexerConfig
}

func NewOutputIndexer(l ledger.Ledger, cfg OutputIndexerConfig) *OutputIndexer {
	return &OutputIndexer{ledger: l, config: cfg}
}

func (f *OutputIndexer) Process(ctx context.Context, e GCSEvent) error {
	logCtx := slog.With("gcsBucket", e.Bucket, "gcsObject", e.Name)

	if f.config.Bucket != "" && e.Bucket != f.config.Bucket {
		logCtx.Info("Object is not in the output bucket. Skipping.", "outputBucket", f.config.Bucket)
		return nil
	}
	if e.Name == "" || strings.HasSuffix(e.Name, "/") {
		logCtx.Info("Event does not name an object. Skipping.")
		return nil
	}

	// The processor returns "<prefix>/<objectName>" but stores the object under objectName.
	objectName := path.Base(e.Name)
	logCtx = logCtx.With("objectName", objectName)

	n, err := f.ledger.MarkReady(ctx, objectName)
	if err != nil {
		logCtx.Error("Failed to mark uploads ready", "error", err)
		return fmt.Errorf("failed to mark uploads ready: %w", err)
	}
	logCtx.Info("Output object indexed.", "matchedUploads", n)
	return nil
}
