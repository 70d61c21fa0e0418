//go:build !windows

package ops

import (
	stderrors "errors"
	"fmt"
	"os"
	"syscall"

	"github.com/hpungsan/nounimaging/internal/errors"
)

// openFileNoFollowRead opens a file for reading with O_NOFOLLOW so a symlink
// in the final path component is rejected. O_CLOEXEC prevents FD leaks across exec.
func openFileNoFollowRead(path string) (*os.File, error) {
	fd, err := syscall.Open(path, syscall.O_RDONLY|syscall.O_NOFOLLOW|syscall.O_CLOEXEC, 0)
	if err != nil {
		if stderrors.Is(err, syscall.ELOOP) {
			return nil, errors.NewInvalidRequest("cannot read from symlink")
		}
		if stderrors.Is(err, syscall.ENOENT) {
			return nil, errors.NewInvalidRequest(fmt.Sprintf("import file not found: %s", path))
		}
		return nil, err
	}
	return os.NewFile(uintptr(fd), path), nil
}
