package ledger

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/api/iterator"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/Lllllllleong/mangasensei/internal/gcp"
	"github.com/Lllllllleong/mangasensei/internal/models"
)

// DefaultCollection holds one document per upload attempt.
const DefaultCollection = "uploads"

// Firestore stores upload records in a Firestore collection.
type Firestore struct {
	client     *firestore.Client
	collection string
}

// NewFirestore connects to projectID and uses collection for records.
func NewFirestore(ctx context.Context, projectID, databaseID, collection string) (*Firestore, error) {
	client, err := gcp.NewFirestoreClient(ctx, projectID, databaseID)
	if err != nil {
		return nil, err
	}
	return NewFirestoreFromClient(client, collection), nil
}

// NewFirestoreFromClient wraps an existing client.
func NewFirestoreFromClient(client *firestore.Client, collection string) *Firestore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &Firestore{client: client, collection: collection}
}

func (f *Firestore) col() *firestore.CollectionRef {
	return f.client.Collection(f.collection)
}

func (f *Firestore) Create(ctx context.Context, u *models.Upload) error {
	now := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = now
	}
	u.UpdatedAt = now

	if u.ID == "" {
		docRef, _, err := f.col().Add(ctx, u)
		if err != nil {
			return fmt.Errorf("failed to create upload document: %w", err)
		}
		u.ID = docRef.ID
		return nil
	}
	if _, err := f.col().Doc(u.ID).Create(ctx, u); err != nil {
		return fmt.Errorf("failed to create upload document %s: %w", u.ID, err)
	}
	return nil
}

func (f *Firestore) Update(ctx context.Context, id string, c Changes) error {
	updates := []firestore.Update{
		{Path: "updatedAt", Value: time.Now().UTC()},
	}
	if c.Status != "" {
		updates = append(updates, firestore.Update{Path: "status", Value: c.Status})
	}
	if c.ErrorDetails != "" {
		updates = append(updates, firestore.Update{Path: "errorDetails", Value: c.ErrorDetails})
	}
	if c.StorageKey != "" {
		updates = append(updates, firestore.Update{Path: "storageKey", Value: c.StorageKey})
	}
	if c.ObjectName != "" {
		updates = append(updates, firestore.Update{Path: "objectName", Value: c.ObjectName})
	}

	if _, err := f.col().Doc(id).Update(ctx, updates); err != nil {
		if status.Code(err) == codes.NotFound {
			return fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return fmt.Errorf("failed to update upload %s: %w", id, err)
	}
	return nil
}

func (f *Firestore) Get(ctx context.Context, id string) (*models.Upload, error) {
	snap, err := f.col().Doc(id).Get(ctx)
	if err != nil {
		if status.Code(err) == codes.NotFound {
			return nil, fmt.Errorf("%s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get upload %s: %w", id, err)
	}
	return decode(snap)
}

func (f *Firestore) FindReusable(ctx context.Context, hash string) (*models.Upload, error) {
	docs, err := f.col().
		Where("fileHash", "==", hash).
		Where("status", "in", []string{models.StatusOpened, models.StatusReady}).
		Limit(1).
		Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to query for duplicates: %w", err)
	}
	for _, d := range docs {
		u, err := decode(d)
		if err != nil {
			return nil, err
		}
		if u.Reusable() {
			return u, nil
		}
	}
	return nil, nil
}

func (f *Firestore) MarkReady(ctx context.Context, objectName string) (int, error) {
	it := f.col().Where("objectName", "==", objectName).Documents(ctx)
	defer it.Stop()

	marked := 0
	for {
		snap, err := it.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return marked, fmt.Errorf("failed to query uploads for %s: %w", objectName, err)
		}
		u, err := decode(snap)
		if err != nil {
			return marked, err
		}
		if u.Status == models.StatusOpened || u.Status == models.StatusReady {
			continue
		}
		if err := f.Update(ctx, snap.Ref.ID, Changes{Status: models.StatusReady}); err != nil {
			return marked, err
		}
		marked++
	}
	return marked, nil
}

func (f *Firestore) List(ctx context.Context, limit int) ([]models.Upload, error) {
	if limit <= 0 {
		limit = 20
	}
	docs, err := f.col().OrderBy("createdAt", firestore.Desc).Limit(limit).Documents(ctx).GetAll()
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	out := make([]models.Upload, 0, len(docs))
	for _, d := range docs {
		u, err := decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, *u)
	}
	return out, nil
}

// Close releases the Firestore client.
func (f *Firestore) Close() error {
	return f.client.Close()
}

func decode(snap *firestore.DocumentSnapshot) (*models.Upload, error) {
	var u models.Upload
	if err := snap.DataTo(&u); err != nil {
		return nil, fmt.Errorf("failed to decode upload %s: %w", snap.Ref.ID, err)
	}
	u.ID = snap.Ref.ID
	return &u, nil
}
