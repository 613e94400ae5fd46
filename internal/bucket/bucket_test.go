package bucket

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSupabase_Download(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/output-files/result.pdf", r.URL.Path)
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		assert.Equal(t, "secret", r.Header.Get("apikey"))
		w.Header().Set("Content-Type", "application/pdf")
		w.Write([]byte("%PDF translated"))
	}))
	defer ts.Close()

	d, err := NewSupabase(ts.URL+"/", "secret", DefaultBucket, ts.Client())
	require.NoError(t, err)

	blob, err := d.Download(context.Background(), "result.pdf")
	require.NoError(t, err)
	assert.Equal(t, "result.pdf", blob.ObjectName)
	assert.Equal(t, "application/pdf", blob.ContentType)
	assert.Equal(t, "%PDF translated", string(blob.Data))
}

func TestSupabase_EscapesObjectName(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/storage/v1/object/output-files/vol%201.pdf", r.URL.EscapedPath())
		w.Write([]byte("ok"))
	}))
	defer ts.Close()

	d, err := NewSupabase(ts.URL, "k", DefaultBucket, ts.Client())
	require.NoError(t, err)
	_, err = d.Download(context.Background(), "vol 1.pdf")
	require.NoError(t, err)
}

func TestSupabase_NotFound(t *testing.T) {
	for _, tc := range []struct {
		name   string
		status int
		body   string
	}{
		{name: "404", status: http.StatusNotFound, body: "{}"},
		{name: "400 object not found", status: http.StatusBadRequest, body: `{"statusCode":"404","error":"not_found","message":"Object not found"}`},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
				w.WriteHeader(tc.status)
				w.Write([]byte(tc.body))
			}))
			defer ts.Close()

			d, err := NewSupabase(ts.URL, "k", DefaultBucket, ts.Client())
			require.NoError(t, err)
			_, err = d.Download(context.Background(), "missing.pdf")
			assert.ErrorIs(t, err, ErrObjectNotFound)
		})
	}
}

func TestSupabase_ServerError(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer ts.Close()

	d, err := NewSupabase(ts.URL, "k", DefaultBucket, ts.Client())
	require.NoError(t, err)
	_, err = d.Download(context.Background(), "x.pdf")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrObjectNotFound)
}

func TestNewSupabase_RequiresSettings(t *testing.T) {
	_, err := NewSupabase("", "k", DefaultBucket, nil)
	assert.Error(t, err)
	_, err = NewSupabase("http://x", "", DefaultBucket, nil)
	assert.Error(t, err)
}

// isolateAWS keeps the developer's ~/.aws files and profile out of the test.
func isolateAWS(t *testing.T) {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("AWS_CONFIG_FILE", filepath.Join(dir, "config"))
	t.Setenv("AWS_SHARED_CREDENTIALS_FILE", filepath.Join(dir, "credentials"))
	t.Setenv("AWS_PROFILE", "")
	t.Setenv("AWS_REGION", "")
	t.Setenv("AWS_DEFAULT_REGION", "")
	t.Setenv("AWS_ACCESS_KEY_ID", "")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "")
	t.Setenv("AWS_SESSION_TOKEN", "")
}

func TestS3_DownloadPathStyle(t *testing.T) {
	isolateAWS(t)
	t.Setenv("AWS_ACCESS_KEY_ID", "test")
	t.Setenv("AWS_SECRET_ACCESS_KEY", "test")

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/output-files/result.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			w.Write([]byte("%PDF from s3"))
		default:
			w.Header().Set("Content-Type", "application/xml")
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<?xml version="1.0" encoding="UTF-8"?><Error><Code>NoSuchKey</Code><Message>The specified key does not exist.</Message></Error>`))
		}
	}))
	defer ts.Close()

	d, err := NewS3(context.Background(), "us-east-1", ts.URL, DefaultBucket)
	require.NoError(t, err)

	blob, err := d.Download(context.Background(), "result.pdf")
	require.NoError(t, err)
	assert.Equal(t, "%PDF from s3", string(blob.Data))
	assert.Equal(t, "application/pdf", blob.ContentType)

	_, err = d.Download(context.Background(), "missing.pdf")
	assert.ErrorIs(t, err, ErrObjectNotFound)
}

func TestNewS3_RequiresRegion(t *testing.T) {
	isolateAWS(t)
	_, err := NewS3(context.Background(), "", "", DefaultBucket)
	assert.ErrorContains(t, err, "region")
}

func TestNewS3_RegionFromSharedConfig(t *testing.T) {
	isolateAWS(t)
	require.NoError(t, os.WriteFile(os.Getenv("AWS_CONFIG_FILE"), []byte("[default]\nregion = eu-west-2\n"), 0o600))
	require.NoError(t, os.WriteFile(os.Getenv("AWS_SHARED_CREDENTIALS_FILE"),
		[]byte("[default]\naws_access_key_id = shared\naws_secret_access_key = shared\n"), 0o600))

	d, err := NewS3(context.Background(), "", "", DefaultBucket)
	require.NoError(t, err)
	assert.Equal(t, "eu-west-2", d.client.Options().Region)

	creds, err := d.client.Options().Credentials.Retrieve(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "shared", creds.AccessKeyID)
}

func TestOpen_UnknownBackend(t *testing.T) {
	_, err := Open(context.Background(), Config{Backend: "ftp"}, nil)
	assert.Error(t, err)
}

func TestOpen_DefaultsToSupabase(t *testing.T) {
	d, err := Open(context.Background(), Config{SupabaseURL: "http://example", SupabaseKey: "k"}, nil)
	require.NoError(t, err)
	sb, ok := d.(*Supabase)
	require.True(t, ok)
	assert.Equal(t, DefaultBucket, sb.bucket)
}
