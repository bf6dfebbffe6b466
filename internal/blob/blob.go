// Package blob implements an in-memory object-URL registry: transient,
// process-local URLs addressing captured audio data.
package blob

import (
	"errors"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// Scheme prefixes every URL minted by the registry.
const Scheme = "blob:"

var ErrNotFound = errors.New("blob: URL not registered")

// Registry maps object URLs to raw data. Safe for concurrent use.
type Registry struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

func NewRegistry() *Registry {
	return &Registry{blobs: make(map[string][]byte)}
}

// Create registers data under a fresh object URL and returns the URL.
func (r *Registry) Create(data []byte) string {
	url := Scheme + uuid.NewString()
	r.mu.Lock()
	r.blobs[url] = data
	r.mu.Unlock()
	return url
}

// Get returns the data registered under url.
func (r *Registry) Get(url string) ([]byte, error) {
	r.mu.RLock()
	data, ok := r.blobs[url]
	r.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return data, nil
}

// Revoke releases url. Revoking an unknown URL is a no-op.
func (r *Registry) Revoke(url string) {
	r.mu.Lock()
	delete(r.blobs, url)
	r.mu.Unlock()
}

// Is reports whether url was minted by a blob registry.
func Is(url string) bool {
	return strings.HasPrefix(url, Scheme)
}
