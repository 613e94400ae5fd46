// Package processor talks to the remote translation endpoint.
package processor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// DefaultURL is the hosted translation endpoint.
const DefaultURL = "https://manga-senseii.onrender.com/upload-pdf/"

// FormField is the multipart field the endpoint reads the PDF from.
const FormField = "file"

// ErrMalformedKey is returned when the storage key has no object segment.
var ErrMalformedKey = errors.New("malformed storage key")

// StatusError is returned when the endpoint answers with a non-2xx status.
type StatusError struct {
	Code int
	Body string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("processor returned status %d", e.Code)
	}
	return fmt.Sprintf("processor returned status %d: %s", e.Code, e.Body)
}

// Config holds the endpoint settings.
type Config struct {
	URL        string
	Timeout    time.Duration
	MaxRetries int
}

// Client submits PDFs for translation.
type Client struct {
	config     Config
	httpClient *http.Client
}

// New creates a Client. A nil httpClient uses one with the configured timeout.
func New(cfg Config, httpClient *http.Client) *Client {
	if cfg.URL == "" {
		cfg.URL = DefaultURL
	}
	if httpClient == nil {
		httpClient = &http.Client{Timeout: cfg.Timeout}
	}
	return &Client{config: cfg, httpClient: httpClient}
}

// Submit posts the file as multipart field "file" and decodes the storage key.
func (c *Client) Submit(ctx context.Context, file *models.SelectedFile) (*models.ProcessResponse, error) {
	body, contentType, err := encodeMultipart(file)
	if err != nil {
		return nil, fmt.Errorf("failed to build multipart body: %w", err)
	}

	newReq := func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.URL, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Content-Type", contentType)
		req.Header.Set("Accept", "application/json")
		return req, nil
	}

	resp, err := doWithRetry(ctx, c.httpClient, newReq, c.config.MaxRetries)
	if err != nil {
		return nil, fmt.Errorf("processor request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &StatusError{Code: resp.StatusCode, Body: strings.TrimSpace(string(snippet))}
	}

	var out models.ProcessResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("could not decode processor response: %w", err)
	}
	if out.Key == "" {
		return nil, fmt.Errorf("processor response has no Key: %w", ErrMalformedKey)
	}
	return &out, nil
}

// ObjectName extracts the bucket object from a storage key of the form
// "<prefix>/<objectName>". Only the second segment is used.
func ObjectName(key string) (string, error) {
	parts := strings.Split(key, "/")
	if len(parts) < 2 || parts[1] == "" {
		return "", fmt.Errorf("%q: %w", key, ErrMalformedKey)
	}
	return parts[1], nil
}

func encodeMultipart(file *models.SelectedFile) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="%s"; filename="%s"`, FormField, escapeQuotes(file.Filename)))
	h.Set("Content-Type", file.ContentType)
	part, err := w.CreatePart(h)
	if err != nil {
		return nil, "", err
	}
	if _, err := io.Copy(part, file.Reader()); err != nil {
		return nil, "", err
	}
	if err := w.Close(); err != nil {
		return nil, "", err
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

var quoteEscaper = strings.NewReplacer("\\", "\\\\", `"`, "\\\"")

func escapeQuotes(s string) string {
	return quoteEscaper.Replace(s)
}
