package storage

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"syscall"
)

// Compile-time check: *FileStore must satisfy KeyValueStore.
var _ KeyValueStore = (*FileStore)(nil)

// FileStore keeps each key in its own file under a data directory.
type FileStore struct {
	dir string
}

// NewFileStore creates the data directory if needed and returns the store.
func NewFileStore(dir string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", dir, classifyOSError(err))
	}
	return &FileStore{dir: dir}, nil
}

func (fsStore *FileStore) path(key string) string {
	return filepath.Join(fsStore.dir, key+".json")
}

// Get reads the value for key. A missing file is (_, false, nil).
func (fsStore *FileStore) Get(key string) (string, bool, error) {
	data, err := os.ReadFile(fsStore.path(key))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("failed to read key %s: %w", key, classifyOSError(err))
	}
	return string(data), true, nil
}

// Set writes the value for key.
func (fsStore *FileStore) Set(key, value string) error {
	if err := os.WriteFile(fsStore.path(key), []byte(value), 0644); err != nil {
		return fmt.Errorf("failed to write key %s: %w", key, classifyOSError(err))
	}
	return nil
}

// Delete removes the key. Deleting an absent key is not an error.
func (fsStore *FileStore) Delete(key string) error {
	if err := os.Remove(fsStore.path(key)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to delete key %s: %w", key, classifyOSError(err))
	}
	return nil
}

// Close is a no-op for the file backend.
func (fsStore *FileStore) Close() error { return nil }

func classifyOSError(err error) error {
	switch {
	case errors.Is(err, syscall.ENOSPC), errors.Is(err, syscall.EDQUOT):
		return fmt.Errorf("%w: %v", ErrQuotaExceeded, err)
	case errors.Is(err, fs.ErrPermission):
		return fmt.Errorf("%w: %v", ErrAccessDenied, err)
	default:
		return err
	}
}
