// Package filestore stands in for the out-of-scope S3/SFTP attachment
// storage backend (spec.md §1 calls it an external collaborator): a
// resolvable storageKey in and bytes back out, nothing more. Its
// upload/download/delete contract is deliberately minimal so
// internal/httpapi has something real to call without reimplementing a
// media storage product.
package filestore

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/google/uuid"
)

// Disk is a local-filesystem-backed stand-in for the production
// object-storage adapter.
type Disk struct {
	root string
}

// NewDisk constructs a Disk rooted at dir, creating it if necessary.
func NewDisk(dir string) (*Disk, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create filestore root: %w", err)
	}
	return &Disk{root: dir}, nil
}

// Put writes r to a freshly generated storage key and returns it along with
// the number of bytes written.
func (d *Disk) Put(_ context.Context, r io.Reader) (storageKey string, size int64, err error) {
	key := uuid.NewString()
	f, err := os.Create(filepath.Join(d.root, key))
	if err != nil {
		return "", 0, fmt.Errorf("create object: %w", err)
	}
	defer f.Close()

	n, err := io.Copy(f, r)
	if err != nil {
		os.Remove(filepath.Join(d.root, key))
		return "", 0, fmt.Errorf("write object: %w", err)
	}
	return key, n, nil
}

// Open returns a reader over the object at storageKey. The caller must
// close it.
func (d *Disk) Open(_ context.Context, storageKey string) (io.ReadCloser, error) {
	f, err := os.Open(filepath.Join(d.root, storageKey))
	if err != nil {
		return nil, fmt.Errorf("open object: %w", err)
	}
	return f, nil
}

// Delete removes the object at storageKey. Deleting a missing key is not an
// error.
func (d *Disk) Delete(_ context.Context, storageKey string) error {
	if err := os.Remove(filepath.Join(d.root, storageKey)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete object: %w", err)
	}
	return nil
}
