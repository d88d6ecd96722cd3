package portfolio

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// MediaStore keeps portfolio images. The Supabase storage bucket client
// satisfies it.
type MediaStore interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Delete(ctx context.Context, paths ...string) error
	PublicURL(path string) string
}

// MemoryMedia is an in-process MediaStore for local runs and tests.
type MemoryMedia struct {
	baseURL string

	mu      sync.RWMutex
	objects map[string][]byte
}

// NewMemoryMedia serves public URLs under baseURL.
func NewMemoryMedia(baseURL string) *MemoryMedia {
	return &MemoryMedia{baseURL: strings.TrimRight(baseURL, "/"), objects: make(map[string][]byte)}
}

func (m *MemoryMedia) Upload(_ context.Context, path string, data []byte, _ string) error {
	if path == "" {
		return fmt.Errorf("object path is required")
	}
	m.mu.Lock()
	m.objects[path] = append([]byte(nil), data...)
	m.mu.Unlock()
	return nil
}

func (m *MemoryMedia) Delete(_ context.Context, paths ...string) error {
	m.mu.Lock()
	for _, p := range paths {
		delete(m.objects, p)
	}
	m.mu.Unlock()
	return nil
}

func (m *MemoryMedia) PublicURL(path string) string {
	return m.baseURL + "/" + strings.TrimLeft(path, "/")
}

// Has reports whether an object exists.
func (m *MemoryMedia) Has(path string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.objects[path]
	return ok
}
