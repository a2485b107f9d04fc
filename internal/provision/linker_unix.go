//go:build !windows

package provision

import (
	"os"

	"golang.org/x/sys/unix"
)

// HostLinker creates links with the host's symlink call. Unix links carry
// no file/directory distinction.
type HostLinker struct{}

// CreateDirectorySymlink implements Linker.
func (HostLinker) CreateDirectorySymlink(link, target string) error {
	if err := unix.Symlink(target, link); err != nil {
		return &os.LinkError{Op: "symlink", Old: target, New: link, Err: err}
	}
	return nil
}
