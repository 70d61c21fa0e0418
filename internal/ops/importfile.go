package ops

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hpungsan/nounimaging/internal/errors"
)

// MaxImportFileBytes bounds the size of a noun import file (16 MiB).
const MaxImportFileBytes = 16 << 20

// OpenImportFile validates and opens a noun import file. The path must not
// contain "..", must end in .json, must not be a symlink and must be a
// regular file no larger than MaxImportFileBytes.
func OpenImportFile(path string) (*os.File, error) {
	if path == "" {
		return nil, errors.NewInvalidRequest("path is required")
	}
	if containsTraversal(path) {
		return nil, errors.NewInvalidRequest("path must not contain directory traversal (..)")
	}

	cleaned := filepath.Clean(path)
	if !strings.EqualFold(filepath.Ext(cleaned), ".json") {
		return nil, errors.NewInvalidRequest("path must have .json extension")
	}

	if info, err := os.Lstat(cleaned); err == nil && info.Mode()&os.ModeSymlink != 0 {
		return nil, errors.NewInvalidRequest("path must not be a symlink")
	}

	f, err := openFileNoFollowRead(cleaned)
	if err != nil {
		if _, ok := errors.As(err); ok {
			return nil, err
		}
		return nil, errors.NewInvalidRequest(fmt.Sprintf("cannot open import file: %v", err))
	}

	info, err := f.Stat()
	if err != nil {
		f.Close()
		return nil, errors.NewInternal(err)
	}
	if !info.Mode().IsRegular() {
		f.Close()
		return nil, errors.NewInvalidRequest("path must be a regular file")
	}
	if info.Size() > MaxImportFileBytes {
		f.Close()
		return nil, errors.NewInvalidRequest(fmt.Sprintf("import file exceeds %d bytes", MaxImportFileBytes))
	}
	return f, nil
}

// containsTraversal checks if a path contains ".." as a path component.
func containsTraversal(path string) bool {
	normalized := strings.ReplaceAll(path, "\\", "/")
	for _, part := range strings.Split(normalized, "/") {
		if part == ".." {
			return true
		}
	}
	return false
}
