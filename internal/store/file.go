package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
)

const lockRetryDelay = 250 * time.Millisecond

// FileStore keeps documents in a local directory
type FileStore struct {
	dir string

	// beforeRename runs between writing the temp file and renaming it into place
	beforeRename func(tmpPath string) error
}

// NewFileStore creates a store rooted at dir; the directory is created on first write
func NewFileStore(dir string) *FileStore {
	return &FileStore{dir: dir}
}

// Location returns the document path
func (s *FileStore) Location(name string) string {
	return filepath.Join(s.dir, name)
}

// Read returns the document bytes
func (s *FileStore) Read(ctx context.Context, name string) ([]byte, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.Location(name))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", name, ErrNotExist)
		}
		return nil, fmt.Errorf("read %s: %w", name, err)
	}
	return data, nil
}

// Write stores data in a temp file in the target directory, fsyncs it and renames
// it over the document. On any failure the previous document is left untouched.
func (s *FileStore) Write(ctx context.Context, name string, data []byte) (err error) {
	if err := validateName(name); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return fmt.Errorf("create output directory: %w", err)
	}

	tmp, err := os.CreateTemp(s.dir, "."+name+".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	tmpPath := tmp.Name()
	defer func() {
		if err != nil {
			_ = os.Remove(tmpPath)
		}
	}()

	if _, err = tmp.Write(data); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("write temp file: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("sync temp file: %w", err)
	}
	if err = tmp.Close(); err != nil {
		return fmt.Errorf("close temp file: %w", err)
	}
	if err = os.Chmod(tmpPath, 0o644); err != nil {
		return fmt.Errorf("chmod temp file: %w", err)
	}
	if s.beforeRename != nil {
		if err = s.beforeRename(tmpPath); err != nil {
			return err
		}
	}
	if err = os.Rename(tmpPath, s.Location(name)); err != nil {
		return fmt.Errorf("rename into place: %w", err)
	}

	syncDir(s.dir)
	return nil
}

// syncDir flushes the rename; failures are ignored as some filesystems reject directory fsync
func syncDir(dir string) {
	d, err := os.Open(dir)
	if err != nil {
		return
	}
	_ = d.Sync()
	_ = d.Close()
}

// Lock takes an exclusive flock on "<name>.lock", waiting until ctx is done
func (s *FileStore) Lock(ctx context.Context, name string) (func() error, error) {
	if err := validateName(name); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(s.dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}

	lock := flock.New(filepath.Join(s.dir, name+".lock"))
	ok, err := lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("acquire lock for %s: %w", name, err)
	}
	if !ok {
		return nil, fmt.Errorf("acquire lock for %s: already held", name)
	}
	return lock.Unlock, nil
}
