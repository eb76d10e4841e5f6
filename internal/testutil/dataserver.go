package testutil

import (
	"crypto/md5"
	"encoding/hex"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
)

// DataServer is an in-process stand-in for the remote test data host.
//
// Thread-safety: all methods are safe for concurrent use.
type DataServer struct {
	*httptest.Server

	mu       sync.Mutex
	files    map[string][]byte
	hits     map[string]int
	failures map[string]int
}

// NewDataServer starts a server serving files (name to content) under "/".
// The server is closed when the test ends.
func NewDataServer(t *testing.T, files map[string][]byte) *DataServer {
	t.Helper()

	s := &DataServer{
		files:    make(map[string][]byte),
		hits:     make(map[string]int),
		failures: make(map[string]int),
	}
	for name, data := range files {
		s.files[name] = data
	}
	s.Server = httptest.NewServer(http.HandlerFunc(s.serve))
	t.Cleanup(s.Close)
	return s
}

func (s *DataServer) serve(w http.ResponseWriter, r *http.Request) {
	name := strings.TrimPrefix(r.URL.Path, "/")

	s.mu.Lock()
	s.hits[name]++
	failing := s.failures[name] > 0
	if failing {
		s.failures[name]--
	}
	data, ok := s.files[name]
	s.mu.Unlock()

	switch {
	case failing:
		http.Error(w, "transient failure", http.StatusServiceUnavailable)
	case !ok:
		http.NotFound(w, r)
	default:
		w.Write(data)
	}
}

// HostURL returns the base URL with a trailing slash.
func (s *DataServer) HostURL() string {
	return s.URL + "/"
}

// Hits returns how many requests were made for name.
func (s *DataServer) Hits(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[name]
}

// FailNext makes the next n requests for name fail with 503.
func (s *DataServer) FailNext(name string, n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[name] = n
}

// SetFile replaces the content served for name.
func (s *DataServer) SetFile(name string, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.files[name] = data
}

// MD5Hex returns the MD5 hex digest of data.
func MD5Hex(data []byte) string {
	sum := md5.Sum(data)
	return hex.EncodeToString(sum[:])
}
