package ops

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"sync"

	"github.com/gofrs/flock"

	"github.com/hpungsan/nounimaging/internal/errors"
)

// RunLocks serializes reconciliation runs per namespace, inside this process
// and across processes sharing the same data directory.
type RunLocks struct {
	dir string

	mu     sync.Mutex
	active map[string]*flock.Flock
}

// NewRunLocks keeps lock files in dir.
func NewRunLocks(dir string) *RunLocks {
	return &RunLocks{dir: dir, active: make(map[string]*flock.Flock)}
}

// Acquire takes the lock for namespace. It fails with RUN_IN_PROGRESS when
// another run holds it. The returned release func is idempotent.
func (l *RunLocks) Acquire(namespace string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, busy := l.active[namespace]; busy {
		return nil, errors.NewRunInProgress(namespace)
	}

	if err := os.MkdirAll(l.dir, 0700); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("create lock directory: %w", err))
	}
	fl := flock.New(l.lockPath(namespace))
	ok, err := fl.TryLock()
	if err != nil {
		return nil, errors.NewInternal(fmt.Errorf("acquire run lock: %w", err))
	}
	if !ok {
		return nil, errors.NewRunInProgress(namespace)
	}
	l.active[namespace] = fl

	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			defer l.mu.Unlock()
			delete(l.active, namespace)
			_ = fl.Unlock()
		})
	}, nil
}

// lockPath escapes namespace so that distinct namespaces never share a file.
func (l *RunLocks) lockPath(namespace string) string {
	return filepath.Join(l.dir, "run-"+url.PathEscape(namespace)+".lock")
}
