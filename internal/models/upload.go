package models

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
)

// ErrEmptyFile is returned when the selected file has no content.
var ErrEmptyFile = errors.New("file is empty")

// UploadCandidate is a user-selected log file plus the context and visibility
// it will be submitted with. It is never persisted.
type UploadCandidate struct {
	Path       string
	Name       string
	Size       int64
	Context    string
	Visibility Visibility
}

// NewUploadCandidate stats path and rejects input that is obviously invalid
// (missing, a directory, empty) before any round trip to the server.
func NewUploadCandidate(path, context string, visibility Visibility) (UploadCandidate, error) {
	info, err := os.Stat(path)
	if err != nil {
		return UploadCandidate{}, fmt.Errorf("stat %s: %w", path, err)
	}
	if info.IsDir() {
		return UploadCandidate{}, fmt.Errorf("%s is a directory", path)
	}
	if info.Size() == 0 {
		return UploadCandidate{}, fmt.Errorf("%s: %w", path, ErrEmptyFile)
	}
	if visibility == "" {
		visibility = DefaultVisibility
	}
	if !visibility.Valid() {
		return UploadCandidate{}, fmt.Errorf("invalid visibility %q", visibility)
	}

	return UploadCandidate{
		Path:       path,
		Name:       filepath.Base(path),
		Size:       info.Size(),
		Context:    context,
		Visibility: visibility,
	}, nil
}

// Open opens the underlying file for reading.
func (c UploadCandidate) Open() (io.ReadCloser, error) {
	return os.Open(c.Path)
}
