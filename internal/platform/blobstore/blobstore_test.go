package blobstore

import (
	"context"
	"crypto/sha256"
	"errors"
	"fmt"
	"io"
	"strings"
	"sync"
	"testing"
)

func roundTrip(t *testing.T, store BlobStore) {
	t.Helper()
	content := "referral fax body"

	res, err := store.Put(context.Background(), "blob-1", strings.NewReader(content))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if res.Size != int64(len(content)) {
		t.Errorf("expected Size=%d, got %d", len(content), res.Size)
	}
	want := fmt.Sprintf("%x", sha256.Sum256([]byte(content)))
	if res.Hash != want {
		t.Errorf("expected hash %s, got %s", want, res.Hash)
	}

	rc, err := store.Get(context.Background(), "blob-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	data, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if string(data) != content {
		t.Errorf("expected %q, got %q", content, string(data))
	}

	if err := store.Delete(context.Background(), "blob-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := store.Get(context.Background(), "blob-1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound after delete, got %v", err)
	}
	if err := store.Delete(context.Background(), "blob-1"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound on double delete, got %v", err)
	}
}

func TestInMemoryStore_RoundTrip(t *testing.T) {
	roundTrip(t, NewInMemoryStore())
}

func TestFileStore_RoundTrip(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	roundTrip(t, store)
}

func TestPut_RejectsPathSeparators(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	for _, id := range []string{"", "../escape", "a/b", `a\b`, ".."} {
		if _, err := store.Put(context.Background(), id, strings.NewReader("x")); !errors.Is(err, ErrInvalidID) {
			t.Errorf("id %q: expected ErrInvalidID, got %v", id, err)
		}
	}
}

func TestInMemoryStore_ConcurrentAccess(t *testing.T) {
	store := NewInMemoryStore()

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			id := fmt.Sprintf("blob-%d", n)
			if _, err := store.Put(context.Background(), id, strings.NewReader("data")); err != nil {
				t.Errorf("put %s: %v", id, err)
				return
			}
			rc, err := store.Get(context.Background(), id)
			if err != nil {
				t.Errorf("get %s: %v", id, err)
				return
			}
			rc.Close()
		}(i)
	}
	wg.Wait()
}

func TestFileStore_GetMissing(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	if _, err := store.Get(context.Background(), "nope"); !errors.Is(err, ErrBlobNotFound) {
		t.Errorf("expected ErrBlobNotFound, got %v", err)
	}
}
