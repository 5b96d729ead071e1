// Package lock provides run guards that keep mirror passes from overlapping.
package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/bissquit/incident-mirror/internal/mirror"
	"github.com/gofrs/flock"
)

// File is an advisory lock on a local file. It guards processes sharing a
// host or a volume.
type File struct {
	flock *flock.Flock
}

var _ mirror.Locker = (*File)(nil)

// NewFile creates a file lock at path. The parent directory is created if
// missing.
func NewFile(path string) (*File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create lock directory: %w", err)
	}
	return &File{flock: flock.New(path)}, nil
}

// TryLock acquires the lock without blocking.
func (f *File) TryLock(_ context.Context) (bool, error) {
	locked, err := f.flock.TryLock()
	if err != nil {
		return false, fmt.Errorf("lock %s: %w", f.flock.Path(), err)
	}
	return locked, nil
}

// Unlock releases the lock.
func (f *File) Unlock(_ context.Context) error {
	if err := f.flock.Unlock(); err != nil {
		return fmt.Errorf("unlock %s: %w", f.flock.Path(), err)
	}
	return nil
}

// Path returns the lock file path.
func (f *File) Path() string {
	return f.flock.Path()
}
