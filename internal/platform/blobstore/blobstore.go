// Package blobstore stores uploaded document content outside the database.
// Metadata lives in the documents table; the store only handles bytes. It
// ships a filesystem implementation for deployments and an in-memory one for
// testing and development.
package blobstore

import (
	"bytes"
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

var (
	ErrBlobNotFound = errors.New("blob not found")
	ErrFileTooLarge = errors.New("file exceeds maximum allowed size")
	ErrInvalidID    = errors.New("blob id contains path separators")
)

// MaxFileSize is the maximum allowed blob size in bytes (25 MB). Referral
// faxes and insurance card scans stay well under this.
const MaxFileSize = 25 * 1024 * 1024

// AllowedContentTypes lists the upload MIME types the intake pipeline handles.
var AllowedContentTypes = map[string]bool{
	"image/png":       true,
	"image/jpeg":      true,
	"image/tiff":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// PutResult reports what was stored.
type PutResult struct {
	Size int64
	Hash string // SHA-256, hex
}

// BlobStore defines the contract for blob storage backends.
type BlobStore interface {
	Put(ctx context.Context, id string, content io.Reader) (*PutResult, error)
	Get(ctx context.Context, id string) (io.ReadCloser, error)
	Delete(ctx context.Context, id string) error
}

// ---------------------------------------------------------------------------
// In-memory implementation
// ---------------------------------------------------------------------------

// InMemoryStore is a thread-safe, in-memory BlobStore for testing/dev.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewInMemoryStore returns a ready-to-use InMemoryStore.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string][]byte)}
}

func (s *InMemoryStore) Put(_ context.Context, id string, content io.Reader) (*PutResult, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	data, err := io.ReadAll(io.LimitReader(content, MaxFileSize+1))
	if err != nil {
		return nil, fmt.Errorf("reading content: %w", err)
	}
	if int64(len(data)) > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	h := sha256.Sum256(data)

	s.mu.Lock()
	s.blobs[id] = data
	s.mu.Unlock()

	return &PutResult{Size: int64(len(data)), Hash: fmt.Sprintf("%x", h)}, nil
}

func (s *InMemoryStore) Get(_ context.Context, id string) (io.ReadCloser, error) {
	s.mu.RLock()
	data, ok := s.blobs[id]
	s.mu.RUnlock()

	if !ok {
		return nil, ErrBlobNotFound
	}
	return io.NopCloser(bytes.NewReader(data)), nil
}

func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.blobs[id]; !ok {
		return ErrBlobNotFound
	}
	delete(s.blobs, id)
	return nil
}

// ---------------------------------------------------------------------------
// Filesystem implementation
// ---------------------------------------------------------------------------

// FileStore persists blobs as flat files under a root directory. IDs are
// UUIDs assigned by the documents service, one file per blob.
type FileStore struct {
	root string
}

// NewFileStore creates the root directory if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("create blob root: %w", err)
	}
	return &FileStore{root: root}, nil
}

func (s *FileStore) path(id string) string {
	return filepath.Join(s.root, id)
}

// Put streams the content to a temp file while hashing, enforces the size
// cap, then renames into place so readers never observe partial writes.
func (s *FileStore) Put(_ context.Context, id string, content io.Reader) (*PutResult, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}

	tmp, err := os.CreateTemp(s.root, ".upload-*")
	if err != nil {
		return nil, fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	n, err := io.Copy(tmp, io.TeeReader(io.LimitReader(content, MaxFileSize+1), hasher))
	if cerr := tmp.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, fmt.Errorf("write blob: %w", err)
	}
	if n > MaxFileSize {
		return nil, ErrFileTooLarge
	}

	if err := os.Rename(tmpName, s.path(id)); err != nil {
		return nil, fmt.Errorf("place blob: %w", err)
	}
	return &PutResult{Size: n, Hash: fmt.Sprintf("%x", hasher.Sum(nil))}, nil
}

func (s *FileStore) Get(_ context.Context, id string) (io.ReadCloser, error) {
	if err := checkID(id); err != nil {
		return nil, err
	}
	f, err := os.Open(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return f, nil
}

func (s *FileStore) Delete(_ context.Context, id string) error {
	if err := checkID(id); err != nil {
		return err
	}
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return ErrBlobNotFound
		}
		return err
	}
	return nil
}

func checkID(id string) error {
	if id == "" || strings.ContainsAny(id, `/\`) || id == "." || id == ".." {
		return ErrInvalidID
	}
	return nil
}
