package hub

import (
	"errors"
	"fmt"
	"net/http"
)

// HubError is the base of every error returned by this package.
type HubError struct {
	Message string
	Cause   error
}

func (e *HubError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Cause)
	}
	return e.Message
}

func (e *HubError) Unwrap() error {
	return e.Cause
}

// HTTPError is a non-success response from the Hub.
type HTTPError struct {
	*HubError
	StatusCode int
}

func NewHTTPError(message string, statusCode int) *HTTPError {
	return &HTTPError{
		HubError:   &HubError{Message: message},
		StatusCode: statusCode,
	}
}

func (e *HTTPError) Error() string {
	return fmt.Sprintf("HTTP %d: %s", e.StatusCode, e.Message)
}

// RepositoryNotFoundError is returned when the repository does not exist or
// the token cannot see it.
type RepositoryNotFoundError struct {
	*HTTPError
	RepoID string
}

func NewRepositoryNotFoundError(repoID string, statusCode int) *RepositoryNotFoundError {
	return &RepositoryNotFoundError{
		HTTPError: NewHTTPError(fmt.Sprintf("Repository '%s' not found", repoID), statusCode),
		RepoID:    repoID,
	}
}

// GatedRepoError is returned for gated repositories accessed without a grant.
type GatedRepoError struct {
	*RepositoryNotFoundError
}

func NewGatedRepoError(repoID string, statusCode int) *GatedRepoError {
	base := NewRepositoryNotFoundError(repoID, statusCode)
	base.Message = fmt.Sprintf("Repository '%s' is gated and requires authentication", repoID)
	return &GatedRepoError{RepositoryNotFoundError: base}
}

// EntryNotFoundError is returned when the file is missing from the repository.
type EntryNotFoundError struct {
	*HTTPError
	RepoID   string
	Revision string
	Path     string
}

func NewEntryNotFoundError(repoID, revision, path string) *EntryNotFoundError {
	message := fmt.Sprintf("Entry '%s' not found in repository '%s'", path, repoID)
	if revision != "" && revision != DefaultRevision {
		message = fmt.Sprintf("Entry '%s' not found in repository '%s' at revision '%s'", path, repoID, revision)
	}
	return &EntryNotFoundError{
		HTTPError: NewHTTPError(message, http.StatusNotFound),
		RepoID:    repoID,
		Revision:  revision,
		Path:      path,
	}
}

// OfflineModeIsEnabledError is returned when a file must be fetched but the
// client is offline.
type OfflineModeIsEnabledError struct {
	*HubError
}

func NewOfflineModeIsEnabledError(message string) *OfflineModeIsEnabledError {
	return &OfflineModeIsEnabledError{HubError: &HubError{Message: message}}
}

// FileMetadataError is returned when a download does not match its metadata.
type FileMetadataError struct {
	*HubError
	Path string
}

func NewFileMetadataError(path, message string) *FileMetadataError {
	return &FileMetadataError{HubError: &HubError{Message: message}, Path: path}
}

func handleHTTPError(resp *http.Response, repoID, revision, filename string) error {
	switch resp.StatusCode {
	case http.StatusNotFound:
		return NewEntryNotFoundError(repoID, revision, filename)
	case http.StatusUnauthorized:
		return NewRepositoryNotFoundError(repoID, resp.StatusCode)
	case http.StatusForbidden:
		return NewGatedRepoError(repoID, resp.StatusCode)
	default:
		return NewHTTPError(http.StatusText(resp.StatusCode), resp.StatusCode)
	}
}

// IsNotFound reports whether err means the requested file or repository is absent.
func IsNotFound(err error) bool {
	var entryErr *EntryNotFoundError
	var repoErr *RepositoryNotFoundError
	return errors.As(err, &entryErr) || errors.As(err, &repoErr)
}
