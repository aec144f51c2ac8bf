package asset

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// BlobStorage stores raw content bytes keyed by record id. It never
// interprets the bytes; sealed and plain content go through the same port.
type BlobStorage interface {
	Put(ctx context.Context, key string, data []byte) error
	Get(ctx context.Context, key string) ([]byte, error)
	Delete(ctx context.Context, key string) error
}

// MemoryBlobStore keeps blobs in process memory.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

func (s *MemoryBlobStore) Put(_ context.Context, key string, data []byte) error {
	if key == "" {
		return ErrInvalidInput
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := make([]byte, len(data))
	copy(cp, data)
	s.blobs[key] = cp
	return nil
}

func (s *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	data, ok := s.blobs[key]
	if !ok {
		return nil, ErrNotFound
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	return cp, nil
}

func (s *MemoryBlobStore) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, key)
	return nil
}

// FSBlobStore stores blobs as files under a single directory. Keys are
// restricted to id-safe characters so a key can never escape the root.
type FSBlobStore struct {
	root string
}

func NewFSBlobStore(root string) (*FSBlobStore, error) {
	if strings.TrimSpace(root) == "" {
		return nil, ErrInvalidInput
	}
	if err := os.MkdirAll(root, 0o700); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return &FSBlobStore{root: root}, nil
}

func safeKey(key string) error {
	if key == "" {
		return ErrInvalidInput
	}
	for _, r := range key {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
		default:
			return ErrInvalidInput
		}
	}
	return nil
}

func (s *FSBlobStore) path(key string) string {
	return filepath.Join(s.root, key+".bin")
}

func (s *FSBlobStore) Put(_ context.Context, key string, data []byte) error {
	if err := safeKey(key); err != nil {
		return err
	}
	tmp := s.path(key) + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	if err := os.Rename(tmp, s.path(key)); err != nil {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

func (s *FSBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	if err := safeKey(key); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(key))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return data, nil
}

func (s *FSBlobStore) Delete(_ context.Context, key string) error {
	if err := safeKey(key); err != nil {
		return err
	}
	if err := os.Remove(s.path(key)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("%w: %v", ErrDependency, err)
	}
	return nil
}

var (
	_ BlobStorage = (*MemoryBlobStore)(nil)
	_ BlobStorage = (*FSBlobStore)(nil)
)
