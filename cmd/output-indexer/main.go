package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	cloudevents "github.com/cloudevents/sdk-go/v2"

	"github.com/Lllllllleong/mangasensei/internal/gcp"
	"github.com/Lllllllleong/mangasensei/internal/ledger"
	"github.com/Lllllllleong/mangasensei/internal/services"
)

var (
	indexerInstance *services.OutputIndexer
	once            sync.Once
	initErr         error
)

func init() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	functions.CloudEvent("IndexOutput", indexOutput)
}

// main is required by the Go Functions Framework.
func main() {}

func newIndexer(ctx context.Context) (*services.OutputIndexer, error) {
	projectID := gcp.GetEnv("PROJECT_ID", "")
	if projectID == "" {
		return nil, fmt.Errorf("PROJECT_ID environment variable must be set")
	}
	l, err := ledger.NewFirestore(ctx, projectID, gcp.GetEnv("FIRESTORE_DATABASE", ""), gcp.GetEnv("FIRESTORE_COLLECTION", ledger.DefaultCollection))
	if err != nil {
		return nil, err
	}
	f := services.NewOutputIndexer(l, services.OutputIndexerConfig{
		Bucket: gcp.GetEnv("OUTPUT_BUCKET", ""),
	})
	slog.Info("Output indexer initialized.", "projectId", projectID)
	return f, nil
}

// indexOutput is the Cloud Function entry point.
func indexOutput(ctx context.Context, e cloudevents.Event) error {
	once.Do(func() {
		indexerInstance, initErr = newIndexer(context.Background())
	})
	if initErr != nil {
		slog.Error("Critical error during function initialization", "error", initErr)
		return initErr
	}

	var gcsEvent services.GCSEvent
	if err := json.Unmarshal(e.Data(), &gcsEvent); err != nil {
		slog.Error("Failed to unmarshal event data", "error", err, "data", string(e.Data()))
		return fmt.Errorf("json.Unmarshal: %w", err)
	}

	return indexerInstance.Process(ctx, gcsEvent)
}
