package services

import (
	"errors"
	"fmt"

	"github.com/Lllllllleong/mangasensei/internal/intake"
)

// Messages shown to the user for each failure category.
const (
	TransportMessage = "The translation service could not process the file, please try again"
	DownloadMessage  = "An error occurred while downloading the file, please try again"
	GenericMessage   = "Something went wrong, please try again"
)

// TransportError covers network failures and bad answers from the translation endpoint.
type TransportError struct {
	Err error
}

func (e *TransportError) Error() string { return fmt.Sprintf("transport failure: %v", e.Err) }
func (e *TransportError) Unwrap() error { return e.Err }

// DownloadError covers failures fetching the processed object from storage.
type DownloadError struct {
	ObjectName string
	Err        error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("download of %s failed: %v", e.ObjectName, e.Err)
}
func (e *DownloadError) Unwrap() error { return e.Err }

// UserMessage maps any error returned by intake or the orchestrator to the
// text a user should see.
func UserMessage(err error) string {
	var (
		verr *intake.ValidationError
		terr *TransportError
		derr *DownloadError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &verr):
		return verr.UserMessage()
	case errors.As(err, &terr):
		return TransportMessage
	case errors.As(err, &derr):
		return DownloadMessage
	default:
		return GenericMessage
	}
}

// Outcome labels an error for metrics.
func Outcome(err error) string {
	var (
		terr *TransportError
		derr *DownloadError
	)
	switch {
	case err == nil:
		return "opened"
	case errors.As(err, &terr):
		return "transport_error"
	case errors.As(err, &derr):
		return "download_error"
	default:
		return "error"
	}
}
