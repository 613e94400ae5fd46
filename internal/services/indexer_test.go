package services

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/models"
)

func TestOutputIndexer_MarksMatchingUploads(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	waiting := &models.Upload{OriginalFilename: "a.pdf", Status: models.StatusDownloading}
	require.NoError(t, l.Create(ctx, waiting))
	require.NoError(t, l.Update(ctx, waiting.ID, ledger.Changes{StorageKey: "user123/result.pdf", ObjectName: "result.pdf"}))

	other := &models.Upload{OriginalFilename: "b.pdf", Status: models.StatusDownloading}
	require.NoError(t, l.Create(ctx, other))
	require.NoError(t, l.Update(ctx, other.ID, ledger.Changes{ObjectName: "other.pdf"}))

	f := NewOutputIndexer(l, OutputIndexerConfig{Bucket: "output-files"})
	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "output-files", Name: "result.pdf"}))

	got, err := l.Get(ctx, waiting.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusReady, got.Status)

	got, err = l.Get(ctx, other.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusDownloading, got.Status)
}

func TestOutputIndexer_Skips(t *testing.T) {
	ctx := context.Background()
	l := newLedger(t)

	u := &models.Upload{OriginalFilename: "a.pdf", Status: models.StatusUploading}
	require.NoError(t, l.Create(ctx, u))
	require.NoError(t, l.Update(ctx, u.ID, ledger.Changes{ObjectName: "result.pdf"}))

	f := NewOutputIndexer(l, OutputIndexerConfig{Bucket: "output-files"})
	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "somewhere-else", Name: "result.pdf"}))
	require.NoError(t, f.Process(ctx, GCSEvent{Bucket: "output-files", Name: "folder/"}))

	got, err := l.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusUploading, got.Status)
}
