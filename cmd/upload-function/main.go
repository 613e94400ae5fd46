package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"

	"github.com/Lllllllleong/mangasensei/internal/app"
	"github.com/Lllllllleong/mangasensei/internal/config"
)

var (
	handler http.Handler
	once    sync.Once
	initErr error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.HTTP("HandleMangaSensei", handleMangaSensei)
}

// main is required by the Go Functions Framework.
func main() {}

func newHandler(ctx context.Context) (http.Handler, error) {
	v, err := config.New(os.Getenv("MANGA_SENSEI_CONFIG"))
	if err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}
	app.SetupLogging(os.Stdout, cfg.LogLevel)

	a, err := app.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	// No janitor here: instances are short-lived and expired blobs are dropped on read.
	return a.Server().Router(), nil
}

// handleMangaSensei serves the page and API from a single HTTP function.
// Sessions and blobs are held in memory, so deploy with --max-instances=1.
func handleMangaSensei(w http.ResponseWriter, r *http.Request) {
	once.Do(func() {
		handler, initErr = newHandler(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		http.Error(w, "service unavailable", http.StatusServiceUnavailable)
		return
	}
	handler.ServeHTTP(w, r)
}
