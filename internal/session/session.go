// Package session models the state of one browser page: what is selected,
// whether an upload is running, and what the user should be told.
package session

import (
	"errors"
	"sync"
	"time"

	"github.com/Lllllllleong/mangasensei/internal/models"
)

// State is a step of the page lifecycle.
type State string

const (
	StateIdle      State = "idle"
	StateSelecting State = "selecting"
	StateReady     State = "ready"
	StateUploading State = "uploading"
	StateOpened    State = "opened"
	StateFailed    State = "failed"
)

var (
	// ErrNotReady is returned when an upload is requested without a valid selection.
	ErrNotReady = errors.New("session: no file selected")
	// ErrBusy is returned while an upload is already in flight.
	ErrBusy = errors.New("session: upload already in progress")
)

// Snapshot is the externally visible state, sent to the page as JSON.
type Snapshot struct {
	State     State  `json:"state"`
	Filename  string `json:"filename,omitempty"`
	Loading   bool   `json:"loading"`
	CanUpload bool   `json:"canUpload"`
	Message   string `json:"message,omitempty"`
	BlobURL   string `json:"blobUrl,omitempty"`
}

// Session owns the selection and loading flags of a single page.
type Session struct {
	ID string

	mu          sync.Mutex
	state       State
	selected    *models.SelectedFile
	message     string
	blobURL     string
	lastSeen    time.Time
	subscribers map[chan Snapshot]struct{}
}

// New returns an idle session.
func New(id string) *Session {
	return &Session{
		ID:          id,
		state:       StateIdle,
		lastSeen:    time.Now(),
		subscribers: make(map[chan Snapshot]struct{}),
	}
}

// BeginSelect marks that a picker or drop is being handled. Any previous
// selection is dropped.
func (s *Session) BeginSelect() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUploading {
		return ErrBusy
	}
	s.selected = nil
	s.message = ""
	s.blobURL = ""
	s.state = StateSelecting
	s.notifyLocked()
	return nil
}

// Select stores the accepted file and enables the upload control.
func (s *Session) Select(file *models.SelectedFile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUploading {
		return ErrBusy
	}
	s.selected = file
	s.message = ""
	s.state = StateReady
	s.notifyLocked()
	return nil
}

// Reject records a validation failure; the selection stays empty.
func (s *Session) Reject(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUploading {
		return
	}
	s.selected = nil
	s.message = message
	s.state = StateIdle
	s.notifyLocked()
}

// Clear drops the selection without an error.
func (s *Session) Clear() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateUploading {
		return ErrBusy
	}
	s.selected = nil
	s.message = ""
	s.state = StateIdle
	s.notifyLocked()
	return nil
}

// BeginUpload hands out the selected file and switches to the loading state.
// Only one upload can be in flight.
func (s *Session) BeginUpload() (*models.SelectedFile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.state == StateUploading:
		return nil, ErrBusy
	case s.state != StateReady || s.selected == nil:
		return nil, ErrNotReady
	}
	s.state = StateUploading
	s.message = ""
	s.notifyLocked()
	return s.selected, nil
}

// Complete records the URL of the opened result and resets loading and selection.
func (s *Session) Complete(blobURL string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.blobURL = blobURL
	s.message = ""
	s.state = StateOpened
	s.notifyLocked()
}

// Fail records a user-facing error and resets loading and selection.
func (s *Session) Fail(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = nil
	s.blobURL = ""
	s.message = message
	s.state = StateFailed
	s.notifyLocked()
}

// Snapshot returns the current visible state.
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe returns a channel that receives a snapshot after every transition,
// starting with the current one, and a function to stop the subscription.
// Slow subscribers miss intermediate snapshots rather than blocking transitions.
func (s *Session) Subscribe() (<-chan Snapshot, func()) {
	ch := make(chan Snapshot, 8)
	s.mu.Lock()
	s.subscribers[ch] = struct{}{}
	ch <- s.snapshotLocked()
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.subscribers, ch)
			s.mu.Unlock()
			close(ch)
		})
	}
}

func (s *Session) touch(now time.Time) {
	s.mu.Lock()
	s.lastSeen = now
	s.mu.Unlock()
}

func (s *Session) idleSince(now time.Time) (time.Duration, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return now.Sub(s.lastSeen), s.state == StateUploading
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:     s.state,
		Loading:   s.state == StateUploading,
		CanUpload: s.state == StateReady && s.selected != nil,
		Message:   s.message,
		BlobURL:   s.blobURL,
	}
	if s.selected != nil {
		snap.Filename = s.selected.Filename
	}
	return snap
}

func (s *Session) notifyLocked() {
	snap := s.snapshotLocked()
	for ch := range s.subscribers {
		select {
		case ch <- snap:
		default:
		}
	}
}
