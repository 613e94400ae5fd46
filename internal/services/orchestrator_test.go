package services

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/Lllllllleong/mangasensei/internal/bucket"
	"github.com/Lllllllleong/mangasensei/internal/intake"
	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/models"
	"github.com/Lllllllleong/mangasensei/internal/processor"
	"github.com/Lllllllleong/mangasensei/internal/telemetry"
)

type fakeProcessor struct {
	calls int32
	keyFn func(file *models.SelectedFile) (string, error)
}

func (f *fakeProcessor) Submit(_ context.Context, file *models.SelectedFile) (*models.ProcessResponse, error) {
	atomic.AddInt32(&f.calls, 1)
	key, err := f.keyFn(file)
	if err != nil {
		return nil, err
	}
	return &models.ProcessResponse{Key: key}, nil
}

type fakeBucket struct {
	mu        sync.Mutex
	requested []string
	objects   map[string][]byte
	err       error
}

func (b *fakeBucket) Download(_ context.Context, objectName string) (*models.DownloadedBlob, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.requested = append(b.requested, objectName)
	if b.err != nil {
		return nil, b.err
	}
	data, ok := b.objects[objectName]
	if !ok {
		return nil, bucket.ErrObjectNotFound
	}
	return &models.DownloadedBlob{ObjectName: objectName, ContentType: "application/pdf", Data: data}, nil
}

type fakeArchiver struct {
	hashes []string
	err    error
}

func (a *fakeArchiver) Archive(_ context.Context, hash string, _ []byte) (string, error) {
	a.hashes = append(a.hashes, hash)
	return "gs://archive/" + hash + ".pdf", a.err
}

func selected(name string) *models.SelectedFile {
	return &models.SelectedFile{
		Filename:    name,
		ContentType: intake.PDFMimeType,
		Hash:        "hash-" + name,
		Data:        []byte("%PDF " + name),
		Size:        int64(len(name) + 5),
	}
}

func newLedger(t *testing.T) *ledger.SQLite {
	t.Helper()
	l, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { l.Close() })
	return l
}

func TestProcess_RequestsSecondKeySegment(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "user123/result.pdf", nil }}
	b := &fakeBucket{objects: map[string][]byte{"result.pdf": []byte("%PDF translated")}}
	l := newLedger(t)
	o := NewOrchestrator(proc, b, l, nil, telemetry.NewMetrics(prometheus.NewRegistry()), OrchestratorConfig{})

	res, err := o.Process(context.Background(), selected("a.pdf"))
	require.NoError(t, err)

	assert.Equal(t, []string{"result.pdf"}, b.requested)
	assert.Equal(t, "user123/result.pdf", res.StorageKey)
	assert.Equal(t, "result.pdf", res.ObjectName)
	assert.Equal(t, "%PDF translated", string(res.Blob.Data))
	assert.False(t, res.Reused)

	rec, err := l.Get(context.Background(), res.UploadID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusOpened, rec.Status)
	assert.Equal(t, "result.pdf", rec.ObjectName)
}

func TestProcess_DownloadFailure(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "u/missing.pdf", nil }}
	b := &fakeBucket{objects: map[string][]byte{}}
	l := newLedger(t)
	o := NewOrchestrator(proc, b, l, nil, nil, OrchestratorConfig{})

	res, err := o.Process(context.Background(), selected("a.pdf"))
	assert.Nil(t, res)

	var derr *DownloadError
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, "missing.pdf", derr.ObjectName)
	assert.ErrorIs(t, err, bucket.ErrObjectNotFound)
	assert.Equal(t, DownloadMessage, UserMessage(err))

	recs, err := l.List(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, recs, 1)
	assert.Equal(t, models.StatusFailed, recs[0].Status)
	assert.Contains(t, recs[0].ErrorDetails, "missing.pdf")
}

func TestProcess_TransportFailureIsSurfaced(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) {
		return "", errors.New("connection refused")
	}}
	b := &fakeBucket{}
	o := NewOrchestrator(proc, b, nil, nil, nil, OrchestratorConfig{})

	_, err := o.Process(context.Background(), selected("a.pdf"))
	var terr *TransportError
	require.ErrorAs(t, err, &terr)
	assert.Equal(t, TransportMessage, UserMessage(err))
	assert.Empty(t, b.requested, "nothing is downloaded after a transport failure")
}

func TestProcess_MalformedKey(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "no-slash.pdf", nil }}
	b := &fakeBucket{}
	o := NewOrchestrator(proc, b, nil, nil, nil, OrchestratorConfig{})

	_, err := o.Process(context.Background(), selected("a.pdf"))
	assert.ErrorIs(t, err, processor.ErrMalformedKey)
	assert.Equal(t, TransportMessage, UserMessage(err))
	assert.Empty(t, b.requested)
}

func TestProcess_DedupeSkipsProcessor(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "u/out.pdf", nil }}
	b := &fakeBucket{objects: map[string][]byte{"out.pdf": []byte("%PDF")}}
	l := newLedger(t)
	o := NewOrchestrator(proc, b, l, nil, nil, OrchestratorConfig{Dedupe: true})

	first, err := o.Process(context.Background(), selected("a.pdf"))
	require.NoError(t, err)
	assert.False(t, first.Reused)

	second, err := o.Process(context.Background(), selected("a.pdf"))
	require.NoError(t, err)
	assert.True(t, second.Reused)
	assert.NotEqual(t, first.UploadID, second.UploadID)
	assert.Equal(t, int32(1), atomic.LoadInt32(&proc.calls))
	assert.Equal(t, []string{"out.pdf", "out.pdf"}, b.requested)
}

func TestProcess_DedupeDisabled(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "u/out.pdf", nil }}
	b := &fakeBucket{objects: map[string][]byte{"out.pdf": []byte("%PDF")}}
	o := NewOrchestrator(proc, b, newLedger(t), nil, nil, OrchestratorConfig{})

	for i := 0; i < 2; i++ {
		_, err := o.Process(context.Background(), selected("a.pdf"))
		require.NoError(t, err)
	}
	assert.Equal(t, int32(2), atomic.LoadInt32(&proc.calls))
}

func TestProcess_ArchiveFailureDoesNotFailUpload(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "u/out.pdf", nil }}
	b := &fakeBucket{objects: map[string][]byte{"out.pdf": []byte("%PDF")}}
	a := &fakeArchiver{err: errors.New("permission denied")}
	o := NewOrchestrator(proc, b, nil, a, nil, OrchestratorConfig{})

	_, err := o.Process(context.Background(), selected("a.pdf"))
	require.NoError(t, err)
	assert.Equal(t, []string{"hash-a.pdf"}, a.hashes)
}

func TestProcessAll_IsolatesFailures(t *testing.T) {
	proc := &fakeProcessor{keyFn: func(f *models.SelectedFile) (string, error) {
		if f.Filename == "bad.pdf" {
			return "", errors.New("processor exploded")
		}
		return "u/" + f.Filename, nil
	}}
	b := &fakeBucket{objects: map[string][]byte{
		"one.pdf": []byte("1"),
		"two.pdf": []byte("2"),
	}}
	o := NewOrchestrator(proc, b, nil, nil, nil, OrchestratorConfig{BatchConcurrency: 2})

	files := []*models.SelectedFile{selected("one.pdf"), selected("bad.pdf"), selected("two.pdf"), selected("gone.pdf")}
	results := o.ProcessAll(context.Background(), files)
	require.Len(t, results, 4)

	for i, r := range results {
		assert.Same(t, files[i], r.File, "results keep input order")
	}
	require.NoError(t, results[0].Err)
	assert.Equal(t, "1", string(results[0].Result.Blob.Data))

	var terr *TransportError
	assert.ErrorAs(t, results[1].Err, &terr)

	require.NoError(t, results[2].Err)
	assert.Equal(t, "2", string(results[2].Result.Blob.Data))

	var derr *DownloadError
	assert.ErrorAs(t, results[3].Err, &derr)
}

func TestUserMessage(t *testing.T) {
	assert.Equal(t, "", UserMessage(nil))
	assert.Equal(t, GenericMessage, UserMessage(errors.New("x")))
	assert.Equal(t, "Please upload a PDF file", UserMessage(fmt.Errorf("wrapped: %w", &intake.ValidationError{Err: intake.ErrNotPDF})))
	assert.Equal(t, "transport_error", Outcome(&TransportError{Err: errors.New("x")}))
	assert.Equal(t, "download_error", Outcome(&DownloadError{Err: errors.New("x")}))
	assert.Equal(t, "opened", Outcome(nil))
}

func TestProcess_RecordsFailedSpan(t *testing.T) {
	sr := tracetest.NewSpanRecorder()
	prev := otel.GetTracerProvider()
	otel.SetTracerProvider(sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(sr)))
	t.Cleanup(func() { otel.SetTracerProvider(prev) })

	proc := &fakeProcessor{keyFn: func(*models.SelectedFile) (string, error) { return "u/missing.pdf", nil }}
	o := NewOrchestrator(proc, &fakeBucket{objects: map[string][]byte{}}, nil, nil, nil, OrchestratorConfig{})

	_, err := o.Process(context.Background(), selected("a.pdf"))
	require.Error(t, err)

	ended := sr.Ended()
	require.Len(t, ended, 1)
	assert.Equal(t, "orchestrator.Process", ended[0].Name())
	assert.Equal(t, codes.Error, ended[0].Status().Code)
	assert.Contains(t, ended[0].Status().Description, "missing.pdf")
}
