package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/Lllllllleong/mangasensei/internal/bucket"
	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/models"
	"github.com/Lllllllleong/mangasensei/internal/processor"
	"github.com/Lllllllleong/mangasensei/internal/telemetry"
)

// DefaultBatchConcurrency bounds ProcessAll when no limit is configured.
const DefaultBatchConcurrency = 4

// Submitter sends a PDF to the translation endpoint.
type Submitter interface {
	Submit(ctx context.Context, file *models.SelectedFile) (*models.ProcessResponse, error)
}

// Archiver keeps a copy of the source PDF.
type Archiver interface {
	Archive(ctx context.Context, hash string, data []byte) (string, error)
}

// OrchestratorConfig holds the tunables of the upload/retrieve flow.
type OrchestratorConfig struct {
	BatchConcurrency int
	// Dedupe reuses the storage key of an earlier translation of the same file.
	Dedupe bool
}

// Orchestrator uploads a file for translation and retrieves the processed result.
type Orchestrator struct {
	processor Submitter
	bucket    bucket.Downloader
	ledger    ledger.Ledger
	archiver  Archiver
	metrics   *telemetry.Metrics
	config    OrchestratorConfig
}

// Result is a successfully retrieved translation.
type Result struct {
	UploadID   string
	StorageKey string
	ObjectName string
	Blob       *models.DownloadedBlob
	Reused     bool
}

// BatchResult is the outcome for one file of ProcessAll.
type BatchResult struct {
	File   *models.SelectedFile
	Result *Result
	Err    error
}

// NewOrchestrator wires the flow. A nil ledger discards records; a nil archiver
// skips archiving.
func NewOrchestrator(p Submitter, b bucket.Downloader, l ledger.Ledger, a Archiver, m *telemetry.Metrics, cfg OrchestratorConfig) *Orchestrator {
	if l == nil {
		l = ledger.Nop{}
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultBatchConcurrency
	}
	return &Orchestrator{
		processor: p,
		bucket:    b,
		ledger:    l,
		archiver:  a,
		metrics:   m,
		config:    cfg,
	}
}

// Process handles one accepted file: submit, resolve the storage key, download.
func (o *Orchestrator) Process(ctx context.Context, file *models.SelectedFile) (res *Result, err error) {
	ctx, span := telemetry.StartSpan(ctx, "orchestrator.Process",
		attribute.String("filename", file.Filename),
		attribute.Int64("size", file.Size))
	defer func() { telemetry.EndSpan(span, err) }()

	logCtx := slog.With("filename", file.Filename, "fileHash", file.Hash)
	logCtx.Info("Processing selected file.", "size", file.Size, "pageCount", file.PageCount)

	upload := &models.Upload{
		FileHash:         file.Hash,
		OriginalFilename: file.Filename,
		PageCount:        file.PageCount,
		Status:           models.StatusUploading,
	}
	if err := o.ledger.Create(ctx, upload); err != nil {
		logCtx.Warn("Could not record upload in ledger.", "error", err)
	}
	logCtx = logCtx.With("uploadId", upload.ID)

	o.archive(ctx, logCtx, file)

	key, reused := o.reusableKey(ctx, logCtx, file.Hash)
	if !reused {
		start := time.Now()
		resp, err := o.processor.Submit(ctx, file)
		o.metrics.ObserveStage("process", time.Since(start))
		if err != nil {
			return nil, o.handleError(ctx, logCtx, upload.ID, "processor request failed", &TransportError{Err: err})
		}
		key = resp.Key
	}
	logCtx = logCtx.With("storageKey", key)

	objectName, err := processor.ObjectName(key)
	if err != nil {
		return nil, o.handleError(ctx, logCtx, upload.ID, "processor returned an unusable key", &TransportError{Err: err})
	}
	logCtx = logCtx.With("objectName", objectName)
	o.record(ctx, logCtx, upload.ID, ledger.Changes{
		Status:     models.StatusDownloading,
		StorageKey: key,
		ObjectName: objectName,
	})

	start := time.Now()
	blob, err := o.bucket.Download(ctx, objectName)
	o.metrics.ObserveStage("download", time.Since(start))
	if err != nil {
		return nil, o.handleError(ctx, logCtx, upload.ID, "failed to download processed file", &DownloadError{ObjectName: objectName, Err: err})
	}

	o.record(ctx, logCtx, upload.ID, ledger.Changes{Status: models.StatusOpened})
	o.metrics.RecordUpload(Outcome(nil))
	logCtx.Info("Processed file retrieved.", "bytes", len(blob.Data), "reused", reused)

	return &Result{
		UploadID:   upload.ID,
		StorageKey: key,
		ObjectName: objectName,
		Blob:       blob,
		Reused:     reused,
	}, nil
}

// ProcessAll runs one task per file and waits for every outcome. A failure
// never cancels the other files.
func (o *Orchestrator) ProcessAll(ctx context.Context, files []*models.SelectedFile) []BatchResult {
	results := make([]BatchResult, len(files))

	var eg errgroup.Group
	eg.SetLimit(o.config.BatchConcurrency)
	for i, f := range files {
		eg.Go(func() error {
			res, err := o.Process(ctx, f)
			results[i] = BatchResult{File: f, Result: res, Err: err}
			return nil
		})
	}
	_ = eg.Wait()
	return results
}

func (o *Orchestrator) reusableKey(ctx context.Context, logCtx *slog.Logger, hash string) (string, bool) {
	if !o.config.Dedupe || hash == "" {
		return "", false
	}
	prev, err := o.ledger.FindReusable(ctx, hash)
	if err != nil {
		logCtx.Warn("Failed to check for an earlier translation.", "error", err)
		return "", false
	}
	if prev == nil {
		return "", false
	}
	logCtx.Info("Duplicate file detected. Reusing earlier translation.", "existingUploadId", prev.ID)
	o.metrics.RecordDedupeHit()
	return prev.StorageKey, true
}

func (o *Orchestrator) archive(ctx context.Context, logCtx *slog.Logger, file *models.SelectedFile) {
	if o.archiver == nil || file.Hash == "" {
		return
	}
	uri, err := o.archiver.Archive(ctx, file.Hash, file.Data)
	if err != nil {
		logCtx.Warn("Failed to archive source PDF.", "error", err)
		return
	}
	logCtx.Info("Source PDF archived.", "gcsUri", uri)
}

func (o *Orchestrator) record(ctx context.Context, logCtx *slog.Logger, id string, c ledger.Changes) {
	if id == "" {
		return
	}
	if err := o.ledger.Update(ctx, id, c); err != nil {
		logCtx.Warn("Failed to update upload record.", "status", c.Status, "error", err)
	}
}

func (o *Orchestrator) handleError(ctx context.Context, logCtx *slog.Logger, id, message string, originalErr error) error {
	logCtx.Error(message, "error", originalErr)
	o.metrics.RecordUpload(Outcome(originalErr))
	o.record(ctx, logCtx, id, ledger.Changes{
		Status:       models.StatusFailed,
		ErrorDetails: fmt.Sprintf("%s: %v", message, originalErr),
	})
	return originalErr
}
