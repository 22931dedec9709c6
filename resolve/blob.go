package resolve

import (
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/unkn0wn-root/imgcache/internal/util"
)

// DefaultBlobBase prefixes URLs of materialized images when no HTTP base is configured.
const DefaultBlobBase = "blob:imgcache/"

// Blob is a materialized image held in memory. Its URL stays valid until disposed.
type Blob struct {
	URL         string
	ContentType string
	Data        []byte
}

// BlobStore owns materialized images and hands out URLs for them.
//
// With an HTTP base (e.g. "http://localhost:8080/blob/") and the store mounted at that
// path, blob URLs load like any remote image. Blobs are never freed implicitly;
// call Dispose when the reference is no longer displayed. Cached disposes the
// blobs of the results it caches.
type BlobStore struct {
	base string
	seq  atomic.Uint64

	mu    sync.RWMutex
	blobs map[string]*Blob
}

// NewBlobStore creates a store; base "" => DefaultBlobBase.
func NewBlobStore(base string) *BlobStore {
	if base == "" {
		base = DefaultBlobBase
	}
	return &BlobStore{base: base, blobs: make(map[string]*Blob)}
}

// Put registers data for id and returns the blob with its URL.
func (s *BlobStore) Put(id, contentType string, data []byte) *Blob {
	n := s.seq.Add(1)
	b := &Blob{
		URL:         s.base + util.Token(id, strconv.FormatUint(n, 10)),
		ContentType: contentType,
		Data:        data,
	}
	s.mu.Lock()
	s.blobs[b.URL] = b
	s.mu.Unlock()
	return b
}

// Get looks a blob up by URL.
func (s *BlobStore) Get(url string) (*Blob, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.blobs[url]
	return b, ok
}

// Dispose releases the blob behind url. Reports whether it was registered.
func (s *BlobStore) Dispose(url string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.blobs[url]; !ok {
		return false
	}
	delete(s.blobs, url)
	return true
}

// Len is the number of live blobs.
func (s *BlobStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.blobs)
}

// ServeHTTP serves a blob by the last path segment of the request URL.
func (s *BlobStore) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		w.Header().Set("Allow", "GET, HEAD")
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	token := r.URL.Path[strings.LastIndex(r.URL.Path, "/")+1:]
	b, ok := s.Get(s.base + token)
	if !ok || token == "" {
		http.NotFound(w, r)
		return
	}
	ct := b.ContentType
	if ct == "" {
		ct = http.DetectContentType(b.Data)
	}
	w.Header().Set("Content-Type", ct)
	w.Header().Set("Content-Length", strconv.Itoa(len(b.Data)))
	w.Header().Set("Cache-Control", "private, max-age=3600")
	if r.Method == http.MethodHead {
		return
	}
	_, _ = w.Write(b.Data)
}
