package bucket

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// Supabase reads objects through the Supabase storage REST API.
type Supabase struct {
	baseURL    string
	apiKey     string
	bucket     string
	httpClient *http.Client
}

// NewSupabase creates a Supabase downloader. baseURL is the project URL,
// e.g. https://xyz.supabase.co.
func NewSupabase(baseURL, apiKey, bucket string, httpClient *http.Client) (*Supabase, error) {
	if baseURL == "" {
		return nil, errors.New("supabase url must be set")
	}
	if apiKey == "" {
		return nil, errors.New("supabase key must be set")
	}
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Supabase{
		baseURL:    strings.TrimRight(baseURL, "/"),
		apiKey:     apiKey,
		bucket:     bucket,
		httpClient: httpClient,
	}, nil
}

// Download fetches bucket/objectName.
func (s *Supabase) Download(ctx context.Context, objectName string) (*models.DownloadedBlob, error) {
	u := fmt.Sprintf("%s/storage/v1/object/%s/%s", s.baseURL, url.PathEscape(s.bucket), url.PathEscape(objectName))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+s.apiKey)
	req.Header.Set("apikey", s.apiKey)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("supabase download %s: %w", objectName, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("%s/%s: %w", s.bucket, objectName, ErrObjectNotFound)
	case resp.StatusCode == http.StatusBadRequest:
		// Storage answers 400 with "Object not found" for missing objects.
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		if strings.Contains(strings.ToLower(string(body)), "not found") {
			return nil, fmt.Errorf("%s/%s: %w", s.bucket, objectName, ErrObjectNotFound)
		}
		return nil, fmt.Errorf("supabase download %s: status %d: %s", objectName, resp.StatusCode, strings.TrimSpace(string(body)))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("supabase download %s: status %d", objectName, resp.StatusCode)
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("supabase read %s: %w", objectName, err)
	}
	return &models.DownloadedBlob{
		ObjectName:  objectName,
		ContentType: contentTypeOr(resp.Header.Get("Content-Type")),
		Data:        data,
	}, nil
}
