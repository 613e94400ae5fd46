package web

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Lllllllleong/mangasensei/internal/models"
	"github.com/Lllllllleong/mangasensei/internal/telemetry"
)

// DefaultBlobTTL is how long a retrieved file stays reachable under /blobs.
const DefaultBlobTTL = 10 * time.Minute

type blobEntry struct {
	blob    *models.DownloadedBlob
	expires time.Time
}

// Registry holds downloaded results in memory under ephemeral IDs.
type Registry struct {
	ttl     time.Duration
	now     func() time.Time
	metrics *telemetry.Metrics

	mu      sync.Mutex
	entries map[string]blobEntry
}

func NewRegistry(ttl time.Duration, m *telemetry.Metrics) *Registry {
	if ttl <= 0 {
		ttl = DefaultBlobTTL
	}
	return &Registry{
		ttl:     ttl,
		now:     time.Now,
		metrics: m,
		entries: make(map[string]blobEntry),
	}
}

// Put stores b and returns its ID.
func (r *Registry) Put(b *models.DownloadedBlob) string {
	id := uuid.NewString()

	r.mu.Lock()
	r.entries[id] = blobEntry{blob: b, expires: r.now().Add(r.ttl)}
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetBlobs(n)
	return id
}

// Get returns the blob for id unless it is unknown or expired.
func (r *Registry) Get(id string) (*models.DownloadedBlob, bool) {
	r.mu.Lock()
	e, ok := r.entries[id]
	if ok && !r.now().Before(e.expires) {
		delete(r.entries, id)
		ok = false
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetBlobs(n)
	if !ok {
		return nil, false
	}
	return e.blob, true
}

// Sweep drops expired blobs and returns how many were removed.
func (r *Registry) Sweep() int {
	r.mu.Lock()
	now := r.now()
	removed := 0
	for id, e := range r.entries {
		if !now.Before(e.expires) {
			delete(r.entries, id)
			removed++
		}
	}
	n := len(r.entries)
	r.mu.Unlock()

	r.metrics.SetBlobs(n)
	return removed
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.entries)
}
