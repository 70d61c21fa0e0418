//go:build windows

package ops

import (
	"fmt"
	"os"

	"github.com/hpungsan/nounimaging/internal/errors"
)

// openFileNoFollowRead opens a file for reading.
// On Windows, O_NOFOLLOW is not available; OpenImportFile rejects symlinks
// with Lstat before we get here.
func openFileNoFollowRead(path string) (*os.File, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("import file not found: %s", path))
		}
		return nil, err
	}
	return f, nil
}
