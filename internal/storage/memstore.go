package storage

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
)

// DefaultMemBaseURL is the download host used by MemStore URLs.
const DefaultMemBaseURL = "https://storage.local"

// MemStore is an in-memory ObjectStore for tests and local trials.
type MemStore struct {
	mu      sync.Mutex
	objects map[string]Object
	baseURL string

	listErr  error
	failures map[string]error // "op:path" -> error
}

var _ ObjectStore = (*MemStore)(nil)

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{
		objects:  make(map[string]Object),
		baseURL:  DefaultMemBaseURL,
		failures: make(map[string]error),
	}
}

// Put adds or replaces an object.
func (s *MemStore) Put(path string, size int64, contentType string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.objects[path] = Object{Path: path, SizeBytes: size, ContentType: contentType}
}

// Has reports whether path exists.
func (s *MemStore) Has(path string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.objects[path]
	return ok
}

// Paths returns all stored paths, sorted.
func (s *MemStore) Paths() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	paths := make([]string, 0, len(s.objects))
	for p := range s.objects {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths
}

// FailList makes List return err.
func (s *MemStore) FailList(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listErr = err
}

// FailOn makes op ("delete", "copy" or "url") fail for path.
func (s *MemStore) FailOn(op, path string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[op+":"+path] = err
}

func (s *MemStore) List(ctx context.Context, prefix string) ([]Object, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listErr != nil {
		return nil, s.listErr
	}

	prefix = folderPrefix(prefix)
	var out []Object
	for p, obj := range s.objects {
		if p == prefix || !strings.HasPrefix(p, prefix) {
			continue
		}
		out = append(out, obj)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

func (s *MemStore) Delete(ctx context.Context, path string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["delete:"+path]; err != nil {
		return err
	}
	if _, ok := s.objects[path]; !ok {
		return fmt.Errorf("object %s does not exist", path)
	}
	delete(s.objects, path)
	return nil
}

func (s *MemStore) Copy(ctx context.Context, src, dst string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["copy:"+src]; err != nil {
		return err
	}
	obj, ok := s.objects[src]
	if !ok {
		return fmt.Errorf("object %s does not exist", src)
	}
	obj.Path = dst
	s.objects[dst] = obj
	return nil
}

func (s *MemStore) URL(ctx context.Context, path string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.failures["url:"+path]; err != nil {
		return "", err
	}
	return PublicURL(s.baseURL, path), nil
}
