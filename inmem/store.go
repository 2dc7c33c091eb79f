package inmem

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"sync"
)

// Blob is an object held by a Store.
type Blob struct {
	ContentType string
	Data        []byte
}

// Store is an in-memory community.ContentStore.
type Store struct {
	baseURL string

	mutex sync.RWMutex
	blobs map[string]Blob
	err   error
}

// NewStore returns a store whose public URLs start with baseURL.
func NewStore(baseURL string) *Store {
	return &Store{
		baseURL: strings.TrimRight(baseURL, "/"),
		blobs:   make(map[string]Blob),
	}
}

// Upload stores the content of r under name.
func (s *Store) Upload(_ context.Context, name, contentType string, r io.Reader) (string, error) {
	s.mutex.RLock()
	err := s.err
	s.mutex.RUnlock()
	if err != nil {
		return "", err
	}

	data, err := io.ReadAll(r)
	if err != nil {
		return "", fmt.Errorf("read blob: %w", err)
	}

	s.mutex.Lock()
	defer s.mutex.Unlock()
	s.blobs[name] = Blob{ContentType: contentType, Data: data}
	return s.baseURL + "/" + name, nil
}

// Get returns the blob stored under name.
func (s *Store) Get(name string) (Blob, bool) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()
	b, ok := s.blobs[name]
	return b, ok
}

// SetError makes every following upload fail with err.
func (s *Store) SetError(err error) {
	s.mutex.Lock()
	s.err = err
	s.mutex.Unlock()
}

// ServeHTTP serves stored blobs by name. Mount it with http.StripPrefix
// under the path of the store's base URL.
func (s *Store) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	b, ok := s.Get(strings.TrimPrefix(r.URL.Path, "/"))
	if !ok {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", b.ContentType)
	_, _ = w.Write(b.Data)
}
