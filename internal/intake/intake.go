// Package intake accepts or rejects the file a user picked or dropped.
package intake

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"mime"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// PDFMimeType is the only MIME type intake accepts.
const PDFMimeType = "application/pdf"

// DefaultMaxBytes caps the size of an accepted file.
const DefaultMaxBytes int64 = 50 << 20

var (
	ErrNoFile       = errors.New("no file selected")
	ErrTooManyFiles = errors.New("more than one file selected")
	ErrNotPDF       = errors.New("file is not a PDF")
	ErrTooLarge     = errors.New("file exceeds the size limit")
)

var userMessages = map[error]string{
	ErrNoFile:       "Please select a PDF file",
	ErrTooManyFiles: "Please upload only one file at a time",
	ErrNotPDF:       "Please upload a PDF file",
	ErrTooLarge:     "The file is too large to upload",
}

// ValidationError is returned for any file the user has to replace.
type ValidationError struct {
	Filename string
	Err      error
}

func (e *ValidationError) Error() string {
	if e.Filename == "" {
		return "intake: " + e.Err.Error()
	}
	return fmt.Sprintf("intake: %s: %v", e.Filename, e.Err)
}

func (e *ValidationError) Unwrap() error { return e.Err }

// UserMessage is the text shown in the blocking alert.
func (e *ValidationError) UserMessage() string {
	for sentinel, msg := range userMessages {
		if errors.Is(e.Err, sentinel) {
			return msg
		}
	}
	return "The selected file could not be accepted"
}

// Reason is a short label used for metrics.
func (e *ValidationError) Reason() string {
	switch {
	case errors.Is(e.Err, ErrNoFile):
		return "no_file"
	case errors.Is(e.Err, ErrTooManyFiles):
		return "too_many_files"
	case errors.Is(e.Err, ErrTooLarge):
		return "too_large"
	default:
		return "not_pdf"
	}
}

// Candidate is one file offered by the picker, the drop target or the command line.
type Candidate struct {
	Filename    string
	ContentType string
	Size        int64
	Open        func() (io.ReadCloser, error)
}

// FromMultipart converts the files of a multipart form field.
func FromMultipart(headers []*multipart.FileHeader) []Candidate {
	out := make([]Candidate, 0, len(headers))
	for _, fh := range headers {
		fh := fh
		out = append(out, Candidate{
			Filename:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Open: func() (io.ReadCloser, error) {
				return fh.Open()
			},
		})
	}
	return out
}

// FromPath describes a local file. The MIME type is derived from the extension,
// the same way a browser fills in File.type.
func FromPath(path string) (Candidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return Candidate{}, fmt.Errorf("%s is a directory", path)
	}
	ct := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	return Candidate{
		Filename:    filepath.Base(path),
		ContentType: ct,
		Size:        info.Size(),
		Open: func() (io.ReadCloser, error) {
			return os.Open(path)
		},
	}, nil
}

// Config controls how strict intake is.
type Config struct {
	MaxBytes int64
	// InspectContent additionally requires the bytes to parse as a PDF.
	InspectContent bool
}

// Validator applies the intake contract.
type Validator struct {
	config Config
}

// NewValidator creates a Validator, filling in the default size limit.
func NewValidator(cfg Config) *Validator {
	if cfg.MaxBytes <= 0 {
		cfg.MaxBytes = DefaultMaxBytes
	}
	return &Validator{config: cfg}
}

// MaxBytes is the largest file Validate accepts.
func (v *Validator) MaxBytes() int64 { return v.config.MaxBytes }

// Validate accepts exactly one PDF and returns it fully read into memory.
func (v *Validator) Validate(files []Candidate) (*models.SelectedFile, error) {
	switch {
	case len(files) == 0:
		return nil, &ValidationError{Err: ErrNoFile}
	case len(files) > 1:
		return nil, &ValidationError{Err: ErrTooManyFiles}
	}

	c := files[0]
	if !isPDFType(c.ContentType) {
		return nil, &ValidationError{Filename: c.Filename, Err: ErrNotPDF}
	}
	if c.Size > v.config.MaxBytes {
		return nil, &ValidationError{Filename: c.Filename, Err: ErrTooLarge}
	}

	data, err := v.read(c)
	if err != nil {
		return nil, err
	}

	selected := &models.SelectedFile{
		Filename:    c.Filename,
		ContentType: PDFMimeType,
		Size:        int64(len(data)),
		Hash:        hashBytes(data),
		Data:        data,
	}

	if v.config.InspectContent {
		pages, err := inspectPDF(data)
		if err != nil {
			return nil, &ValidationError{Filename: c.Filename, Err: fmt.Errorf("%w: %v", ErrNotPDF, err)}
		}
		selected.PageCount = pages
	}
	return selected, nil
}

func (v *Validator) read(c Candidate) ([]byte, error) {
	if c.Open == nil {
		return nil, fmt.Errorf("intake: %s has no content", c.Filename)
	}
	rc, err := c.Open()
	if err != nil {
		return nil, fmt.Errorf("intake: open %s: %w", c.Filename, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, v.config.MaxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("intake: read %s: %w", c.Filename, err)
	}
	if int64(len(data)) > v.config.MaxBytes {
		return nil, &ValidationError{Filename: c.Filename, Err: ErrTooLarge}
	}
	return data, nil
}

func isPDFType(contentType string) bool {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		return false
	}
	return mediaType == PDFMimeType
}

// inspectPDF sniffs the header and asks pdfcpu for the page count under
// relaxed validation.
func inspectPDF(data []byte) (int, error) {
	if http.DetectContentType(data) != PDFMimeType {
		return 0, errors.New("missing %PDF header")
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	pages, err := api.PageCount(bytes.NewReader(data), conf)
	if err != nil {
		return 0, err
	}
	if pages < 1 {
		return 0, errors.New("document has no pages")
	}
	return pages, nil
}

func hashBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
