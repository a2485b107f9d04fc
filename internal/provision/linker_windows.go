//go:build windows

package provision

import (
	"os"

	"golang.org/x/sys/windows"
)

// HostLinker creates directory symbolic links with CreateSymbolicLinkW.
// Unprivileged creation is requested so developer-mode hosts need no
// elevation.
type HostLinker struct{}

// CreateDirectorySymlink implements Linker.
func (HostLinker) CreateDirectorySymlink(link, target string) error {
	linkp, err := windows.UTF16PtrFromString(link)
	if err != nil {
		return &os.LinkError{Op: "symlink", Old: target, New: link, Err: err}
	}
	targetp, err := windows.UTF16PtrFromString(target)
	if err != nil {
		return &os.LinkError{Op: "symlink", Old: target, New: link, Err: err}
	}

	flags := uint32(windows.SYMBOLIC_LINK_FLAG_DIRECTORY | windows.SYMBOLIC_LINK_FLAG_ALLOW_UNPRIVILEGED_CREATE)
	if err := windows.CreateSymbolicLink(linkp, targetp, flags); err != nil {
		return &os.LinkError{Op: "symlink", Old: target, New: link, Err: err}
	}
	return nil
}
