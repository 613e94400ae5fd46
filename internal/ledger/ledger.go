// Package ledger records upload attempts so that failures can be inspected and
// a PDF that was already translated can be served again without resubmitting it.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// Backend names accepted by Open.
const (
	BackendSQLite    = "sqlite"
	BackendFirestore = "firestore"
	BackendNone      = "none"
)

// ErrNotFound is returned when an upload ID is unknown.
var ErrNotFound = errors.New("ledger: upload not found")

// Changes lists the fields to update. Empty strings leave a field untouched.
type Changes struct {
	Status       string
	ErrorDetails string
	StorageKey   string
	ObjectName   string
}

// Ledger persists Upload records.
type Ledger interface {
	// Create stores u, assigning an ID if it has none.
	Create(ctx context.Context, u *models.Upload) error
	Update(ctx context.Context, id string, c Changes) error
	Get(ctx context.Context, id string) (*models.Upload, error)
	// FindReusable returns the newest record for hash that points at an
	// output object, or nil if there is none.
	FindReusable(ctx context.Context, hash string) (*models.Upload, error)
	// MarkReady flags records waiting on objectName as READY and reports how many matched.
	MarkReady(ctx context.Context, objectName string) (int, error)
	List(ctx context.Context, limit int) ([]models.Upload, error)
	Close() error
}

// Config selects and configures a backend.
type Config struct {
	Backend    string
	Path       string
	ProjectID  string
	DatabaseID string
	Collection string
}

// Open builds the Ledger for cfg.Backend.
func Open(ctx context.Context, cfg Config) (Ledger, error) {
	switch cfg.Backend {
	case "", BackendSQLite:
		return NewSQLite(cfg.Path)
	case BackendFirestore:
		return NewFirestore(ctx, cfg.ProjectID, cfg.DatabaseID, cfg.Collection)
	case BackendNone:
		return Nop{}, nil
	default:
		return nil, fmt.Errorf("unknown ledger backend %q", cfg.Backend)
	}
}

// Nop discards every record.
type Nop struct{}

func (Nop) Create(context.Context, *models.Upload) error { return nil }
func (Nop) Update(context.Context, string, Changes) error { return nil }
func (Nop) Get(context.Context, string) (*models.Upload, error) { return nil, ErrNotFound }
func (Nop) FindReusable(context.Context, string) (*models.Upload, error) { return nil, nil }
func (Nop) MarkReady(context.Context, string) (int, error) { return 0, nil }
func (Nop) List(context.Context, int) ([]models.Upload, error) { return nil, nil }
func (Nop) Close() error { return nil }
