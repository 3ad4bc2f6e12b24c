package ggapp

import (
	"errors"
	"fmt"
)

var (
	// ErrUnauthenticated is returned when an operation needs a live token and there is none.
	ErrUnauthenticated = errors.New("not connected to Google Drive, please run 'ggbackup login' first")
	// ErrPopupBlocked is returned when the authorization page could not be opened.
	ErrPopupBlocked = errors.New("could not open the authorization page in a browser")
	// ErrTokenNotFound is returned when the authorization ended without an access token.
	ErrTokenNotFound = errors.New("authorization ended without an access token")
	// ErrInvalidBackupFormat is returned when a downloaded backup does not have the expected shape.
	ErrInvalidBackupFormat = errors.New("invalid backup file")
	// ErrRestoreCancelled is returned when the user declines a restore.
	ErrRestoreCancelled = errors.New("restore cancelled")
)

// UploadError is a non-success answer to a file upload.
type UploadError struct {
	Name    string // name of the file being uploaded
	Message string // message returned by Drive
	Err     error
}

func (e *UploadError) Error() string {
	return fmt.Sprintf("failed to upload %q: %s", e.Name, e.Message)
}

func (e *UploadError) Unwrap() error { return e.Err }

// DownloadError is a non-success answer to a file download.
type DownloadError struct {
	FileID  string
	Message string
	Err     error
}

func (e *DownloadError) Error() string {
	return fmt.Sprintf("failed to download file %s: %s", e.FileID, e.Message)
}

func (e *DownloadError) Unwrap() error { return e.Err }

// NetworkError is a request that could not complete at all.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("%s: request failed: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }
