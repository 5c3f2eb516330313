// Package results persists prediction tables and tracks, per user, the
// most recent one for later download.
package results

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"

	"github.com/mcules/predict-server/internal/table"
)

// ErrNeverPredicted means the user has no recorded result pointer.
var ErrNeverPredicted = errors.New("no prediction has been made yet")

// ErrStorageMissing means a pointer exists but the file behind it is gone.
var ErrStorageMissing = errors.New("prediction file not found")

// Pointers maps a user to the filename of their most recent result.
// Set overwrites any previous pointer; last write wins.
type Pointers interface {
	SetResult(ctx context.Context, username, name string) error
	GetResult(ctx context.Context, username string) (string, bool, error)
}

// FileStore keeps result files in a single directory.
type FileStore struct {
	Dir string
}

// NewFileStore creates the directory if needed.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &FileStore{Dir: dir}, nil
}

// Save writes the table to a temporary file and renames it into place, so
// a concurrent reader either sees the whole file or none of it.
func (s *FileStore) Save(name string, t table.Table) error {
	tmp, err := os.CreateTemp(s.Dir, "."+name+".*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if err := t.WriteCSV(tmp); err != nil {
		_ = tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), filepath.Join(s.Dir, name))
}

// Open returns the raw bytes of a stored result. A missing file maps to
// ErrStorageMissing so callers can distinguish it from "never predicted".
func (s *FileStore) Open(name string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(s.Dir, filepath.Base(name)))
	if os.IsNotExist(err) {
		return nil, ErrStorageMissing
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// Resolve looks up the caller's pointer and opens the file behind it.
func Resolve(ctx context.Context, p Pointers, s *FileStore, username string) (string, io.ReadCloser, error) {
	name, ok, err := p.GetResult(ctx, username)
	if err != nil {
		return "", nil, err
	}
	if !ok {
		return "", nil, ErrNeverPredicted
	}
	rc, err := s.Open(name)
	if err != nil {
		return "", nil, err
	}
	return name, rc, nil
}
