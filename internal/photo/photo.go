// Package photo stores the live capture a voter submits with their ballot
// and the reference photo on their membership record. Adjudicators compare
// the two; the service only ever handles opaque references.
package photo

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/google/uuid"

	"sabha/pkg/platform/sentinel"
)

// Store persists photo blobs and returns opaque references. Delete removes
// a blob whose owning record never landed; deleting a missing ref is a no-op.
type Store interface {
	Save(ctx context.Context, data []byte, contentType string) (string, error)
	Get(ctx context.Context, ref string) ([]byte, string, error)
	Delete(ctx context.Context, ref string) error
}

type blob struct {
	data        []byte
	contentType string
}

// InMemoryStore holds photos in memory for tests and local runs.
type InMemoryStore struct {
	mu    sync.RWMutex
	blobs map[string]blob
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{blobs: make(map[string]blob)}
}

func (s *InMemoryStore) Save(_ context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("photo payload is empty")
	}
	ref := uuid.NewString()
	s.mu.Lock()
	defer s.mu.Unlock()
	s.blobs[ref] = blob{data: append([]byte(nil), data...), contentType: contentType}
	return ref, nil
}

func (s *InMemoryStore) Get(_ context.Context, ref string) ([]byte, string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[ref]
	if !ok {
		return nil, "", fmt.Errorf("photo %s: %w", ref, sentinel.ErrNotFound)
	}
	return append([]byte(nil), b.data...), b.contentType, nil
}

func (s *InMemoryStore) Delete(_ context.Context, ref string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.blobs, ref)
	return nil
}

// FilesystemStore writes photos under a base directory, one file per ref.
// The content type rides in the file extension.
type FilesystemStore struct {
	baseDir string
}

func NewFilesystemStore(baseDir string) (*FilesystemStore, error) {
	if err := os.MkdirAll(baseDir, 0o750); err != nil {
		return nil, fmt.Errorf("create photo directory: %w", err)
	}
	return &FilesystemStore{baseDir: baseDir}, nil
}

func (s *FilesystemStore) Save(_ context.Context, data []byte, contentType string) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("photo payload is empty")
	}
	ref := uuid.NewString() + extFor(contentType)
	if err := os.WriteFile(filepath.Join(s.baseDir, ref), data, 0o640); err != nil {
		return "", fmt.Errorf("write photo: %w", err)
	}
	return ref, nil
}

func (s *FilesystemStore) Get(_ context.Context, ref string) ([]byte, string, error) {
	// Refs are generated server side; reject anything path-like anyway.
	if ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil, "", fmt.Errorf("photo %s: %w", ref, sentinel.ErrNotFound)
	}
	data, err := os.ReadFile(filepath.Join(s.baseDir, ref))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, "", fmt.Errorf("photo %s: %w", ref, sentinel.ErrNotFound)
		}
		return nil, "", fmt.Errorf("read photo: %w", err)
	}
	return data, typeFor(ref), nil
}

func (s *FilesystemStore) Delete(_ context.Context, ref string) error {
	if ref != filepath.Base(ref) || strings.HasPrefix(ref, ".") {
		return nil
	}
	if err := os.Remove(filepath.Join(s.baseDir, ref)); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("delete photo: %w", err)
	}
	return nil
}

func extFor(contentType string) string {
	switch contentType {
	case "image/png":
		return ".png"
	case "image/webp":
		return ".webp"
	default:
		return ".jpg"
	}
}

func typeFor(ref string) string {
	switch filepath.Ext(ref) {
	case ".png":
		return "image/png"
	case ".webp":
		return "image/webp"
	default:
		return "image/jpeg"
	}
}
