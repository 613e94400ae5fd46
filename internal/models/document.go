package models

import "time"

// Upload statuses, in the order an attempt normally moves through them.
const (
	StatusUploading   = "UPLOADING"
	StatusDownloading = "DOWNLOADING"
	StatusOpened      = "OPENED"
	StatusFailed      = "FAILED"
	// StatusReady is set by the output indexer when the processed object shows up
	// in the output bucket before (or without) a client fetching it.
	StatusReady = "READY"
)

// Upload represents the ledger record for a single upload attempt.
// It tracks the overall status and the storage key handed back by the processor.
type Upload struct {
	ID               string    `firestore:"-" json:"id"`
	FileHash         string    `firestore:"fileHash,omitempty" json:"fileHash"`
	OriginalFilename string    `firestore:"originalFilename,omitempty" json:"originalFilename"`
	Status           string    `firestore:"status,omitempty" json:"status"`
	ErrorDetails     string    `firestore:"errorDetails,omitempty" json:"errorDetails,omitempty"`
	PageCount        int       `firestore:"pageCount,omitempty" json:"pageCount,omitempty"`
	StorageKey       string    `firestore:"storageKey,omitempty" json:"storageKey,omitempty"`
	ObjectName       string    `firestore:"objectName,omitempty" json:"objectName,omitempty"`
	CreatedAt        time.Time `firestore:"createdAt,omitempty" json:"createdAt"`
	UpdatedAt        time.Time `firestore:"updatedAt,omitempty" json:"updatedAt"`
}

// Reusable reports whether the record points at an output object that can be
// fetched again instead of re-running the translation.
func (u *Upload) Reusable() bool {
	if u == nil || u.StorageKey == "" {
		return false
	}
	return u.Status == StatusOpened || u.Status == StatusReady
}
