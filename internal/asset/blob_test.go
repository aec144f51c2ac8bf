package asset

import (
	"bytes"
	"context"
	"errors"
	"testing"
)

func blobStores(t *testing.T) map[string]BlobStorage {
	t.Helper()
	fs, err := NewFSBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBlobStore: %v", err)
	}
	return map[string]BlobStorage{
		"memory": NewMemoryBlobStore(),
		"fs":     fs,
	}
}

func TestBlobStorageRoundTrip(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			data := []byte{0x00, 0x01, 0xfe, 0xff}
			if err := store.Put(ctx, "key-1", data); err != nil {
				t.Fatalf("Put: %v", err)
			}
			got, err := store.Get(ctx, "key-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("round trip mismatch: %x", got)
			}

			// Overwrite replaces the content.
			if err := store.Put(ctx, "key-1", []byte("v2")); err != nil {
				t.Fatalf("Put overwrite: %v", err)
			}
			got, err = store.Get(ctx, "key-1")
			if err != nil {
				t.Fatalf("Get: %v", err)
			}
			if string(got) != "v2" {
				t.Fatalf("overwrite not applied: %q", got)
			}

			if err := store.Delete(ctx, "key-1"); err != nil {
				t.Fatalf("Delete: %v", err)
			}
			if _, err := store.Get(ctx, "key-1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound after delete, got %v", err)
			}
			// Deleting a missing key is not an error.
			if err := store.Delete(ctx, "key-1"); err != nil {
				t.Fatalf("repeat Delete: %v", err)
			}
		})
	}
}

func TestBlobStorageMissingKey(t *testing.T) {
	for name, store := range blobStores(t) {
		t.Run(name, func(t *testing.T) {
			if _, err := store.Get(context.Background(), "absent"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("got %v", err)
			}
		})
	}
}

func TestFSBlobStoreRejectsUnsafeKeys(t *testing.T) {
	fs, err := NewFSBlobStore(t.TempDir())
	if err != nil {
		t.Fatalf("NewFSBlobStore: %v", err)
	}
	ctx := context.Background()
	for _, key := range []string{"", "../escape", "a/b", "a.b", "a b"} {
		if err := fs.Put(ctx, key, []byte("x")); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
		if _, err := fs.Get(ctx, key); !errors.Is(err, ErrInvalidInput) {
			t.Fatalf("key %q: expected ErrInvalidInput, got %v", key, err)
		}
	}
}
