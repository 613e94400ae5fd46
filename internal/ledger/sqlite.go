package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// DefaultSQLitePath is used when no path is configured.
const DefaultSQLitePath = "manga-sensei.db"

const schema = `
CREATE TABLE IF NOT EXISTS uploads (
	id                TEXT PRIMARY KEY,
	file_hash         TEXT NOT NULL,
	original_filename TEXT NOT NULL,
	status            TEXT NOT NULL,
	error_details     TEXT NOT NULL DEFAULT '',
	page_count        INTEGER NOT NULL DEFAULT 0,
	storage_key       TEXT NOT NULL DEFAULT '',
	object_name       TEXT NOT NULL DEFAULT '',
	created_at        TIMESTAMP NOT NULL,
	updated_at        TIMESTAMP NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_uploads_hash ON uploads(file_hash);
CREATE INDEX IF NOT EXISTS idx_uploads_object ON uploads(object_name);
`

const selectColumns = `id, file_hash, original_filename, status, error_details, page_count,
	storage_key, object_name, created_at, updated_at`

// SQLite is a local Ledger backed by a single database file.
type SQLite struct {
	db *sql.DB
}

// NewSQLite opens or creates the database at path and ensures the schema exists.
func NewSQLite(path string) (*SQLite, error) {
	if path == "" {
		path = DefaultSQLitePath
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating ledger directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}
	return &SQLite{db: db}, nil
}

func (s *SQLite) Create(ctx context.Context, u *models.Upload) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	_, err := s.db.ExecContext(ctx, `INSERT INTO uploads (`+selectColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		u.ID, u.FileHash, u.OriginalFilename, u.Status, u.ErrorDetails, u.PageCount,
		u.StorageKey, u.ObjectName, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		return fmt.Errorf("inserting upload %s: %w", u.ID, err)
	}
	return nil
}

func (s *SQLite) Update(ctx context.Context, id string, c Changes) error {
	res, err := s.db.ExecContext(ctx, `UPDATE uploads SET
		status        = COALESCE(NULLIF(?, ''), status),
		error_details = COALESCE(NULLIF(?, ''), error_details),
		storage_key   = COALESCE(NULLIF(?, ''), storage_key),
		object_name   = COALESCE(NULLIF(?, ''), object_name),
		updated_at    = ?
		WHERE id = ?`,
		c.Status, c.ErrorDetails, c.StorageKey, c.ObjectName, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("updating upload %s: %w", id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("updating upload %s: %w", id, err)
	}
	if n == 0 {
		return fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return nil
}

func (s *SQLite) Get(ctx context.Context, id string) (*models.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM uploads WHERE id = ?`, id)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
	}
	return u, err
}

func (s *SQLite) FindReusable(ctx context.Context, hash string) (*models.Upload, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+selectColumns+` FROM uploads
		WHERE file_hash = ? AND status IN (?, ?) AND storage_key != ''
		ORDER BY updated_at DESC LIMIT 1`,
		hash, models.StatusOpened, models.StatusReady)
	u, err := scanUpload(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	return u, nil
}

func (s *SQLite) MarkReady(ctx context.Context, objectName string) (int, error) {
	res, err := s.db.ExecContext(ctx, `UPDATE uploads SET status = ?, updated_at = ?
		WHERE object_name = ? AND status IN (?, ?, ?)`,
		models.StatusReady, time.Now().UTC(), objectName,
		models.StatusUploading, models.StatusDownloading, models.StatusFailed)
	if err != nil {
		return 0, fmt.Errorf("marking %s ready: %w", objectName, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

func (s *SQLite) List(ctx context.Context, limit int) ([]models.Upload, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+selectColumns+` FROM uploads ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("listing uploads: %w", err)
	}
	defer rows.Close()

	var out []models.Upload
	for rows.Next() {
		u, err := scanUpload(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, rows.Err()
}

// Close releases the database connection.
func (s *SQLite) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanUpload(row scanner) (*models.Upload, error) {
	var u models.Upload
	err := row.Scan(&u.ID, &u.FileHash, &u.OriginalFilename, &u.Status, &u.ErrorDetails,
		&u.PageCount, &u.StorageKey, &u.ObjectName, &u.CreatedAt, &u.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &u, nil
}
