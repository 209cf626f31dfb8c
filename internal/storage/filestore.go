package storage

import (
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pkg/errors"
)

// ErrPathEscape is returned for paths that resolve outside the storage root
var ErrPathEscape = errors.New("path escapes storage root")

// FileStore abstracts the media file storage. Paths are relative to the
// store's root; a non-disk backend can be substituted without touching the
// services.
type FileStore interface {
	Save(path string, r io.Reader) error
	Move(oldPath, newPath string) error
	Delete(path string) error
	DeleteTree(path string) error
	Exists(path string) bool
	EnsureDir(path string) error
	Abs(path string) (string, error)
}

// DiskStore stores files under a root directory on the local filesystem
type DiskStore struct {
	root string
}

// NewDiskStore creates a disk store rooted at the given directory
func NewDiskStore(root string) (*DiskStore, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, errors.Wrap(err, "failed to resolve storage root")
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return nil, errors.Wrap(err, "failed to create storage root")
	}
	return &DiskStore{root: abs}, nil
}

// Abs resolves a relative path against the root, rejecting escapes
func (s *DiskStore) Abs(path string) (string, error) {
	clean := filepath.Clean(filepath.Join(s.root, filepath.FromSlash(path)))
	if clean != s.root && !strings.HasPrefix(clean, s.root+string(filepath.Separator)) {
		return "", errors.Wrapf(ErrPathEscape, "path %q", path)
	}
	return clean, nil
}

// Save writes a new file, creating parent directories as needed
func (s *DiskStore) Save(path string, r io.Reader) error {
	abs, err := s.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(abs), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", path)
	}
	f, err := os.Create(abs)
	if err != nil {
		return errors.Wrapf(err, "failed to create file %q", path)
	}
	defer f.Close()
	if _, err := io.Copy(f, r); err != nil {
		return errors.Wrapf(err, "failed to write file %q", path)
	}
	return nil
}

// Move renames a file within the store, creating the target directory
func (s *DiskStore) Move(oldPath, newPath string) error {
	oldAbs, err := s.Abs(oldPath)
	if err != nil {
		return err
	}
	newAbs, err := s.Abs(newPath)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(newAbs), 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory for %q", newPath)
	}
	if err := os.Rename(oldAbs, newAbs); err != nil {
		return errors.Wrapf(err, "failed to move %q to %q", oldPath, newPath)
	}
	return nil
}

// Delete removes a single file. Missing files are not an error.
func (s *DiskStore) Delete(path string) error {
	abs, err := s.Abs(path)
	if err != nil {
		return err
	}
	if err := os.Remove(abs); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete %q", path)
	}
	return nil
}

// DeleteTree removes a directory recursively
func (s *DiskStore) DeleteTree(path string) error {
	abs, err := s.Abs(path)
	if err != nil {
		return err
	}
	if abs == s.root {
		return errors.Wrap(ErrPathEscape, "refusing to delete storage root")
	}
	if err := os.RemoveAll(abs); err != nil {
		return errors.Wrapf(err, "failed to delete tree %q", path)
	}
	return nil
}

// EnsureDir creates a directory inside the store
func (s *DiskStore) EnsureDir(path string) error {
	abs, err := s.Abs(path)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(abs, 0o755); err != nil {
		return errors.Wrapf(err, "failed to create directory %q", path)
	}
	return nil
}

// Exists reports whether a file is present
func (s *DiskStore) Exists(path string) bool {
	abs, err := s.Abs(path)
	if err != nil {
		return false
	}
	_, err = os.Stat(abs)
	return err == nil
}
