//go:build darwin || freebsd

package provider

import (
	"errors"

	"golang.org/x/sys/unix"
)

var errNoControlFS = errors.New("FUSE control filesystem not available")

func mountDevice(string) (uint64, error) {
	return 0, errNoControlFS
}

func abortConnection(*session) error {
	return errNoControlFS
}

// detachMount forces the unmount; the kernel then fails the device reads.
func detachMount(mountpoint string) error {
	return unix.Unmount(mountpoint, unix.MNT_FORCE)
}
