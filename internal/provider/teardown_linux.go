package provider

import (
	"errors"
	"os"
	"path/filepath"
	"strconv"

	"golang.org/x/sys/unix"
)

// fuseConnections is the mount point of the FUSE control filesystem.
const fuseConnections = "/sys/fs/fuse/connections"

func mountDevice(mountpoint string) (uint64, error) {
	var st unix.Stat_t
	if err := unix.Stat(mountpoint, &st); err != nil {
		return 0, err
	}
	return st.Dev, nil
}

// abortConnection ends the session's FUSE connection through the control
// filesystem. Pending and future reads on the device fail, so Serve returns.
func abortConnection(s *session) error {
	if s.dev == 0 {
		return errors.New("FUSE connection unknown")
	}
	// Connections are named by the kernel's internal dev_t encoding.
	id := uint64(unix.Major(s.dev))<<20 | uint64(unix.Minor(s.dev))
	name := filepath.Join(fuseConnections, strconv.FormatUint(id, 10), "abort")
	return os.WriteFile(name, []byte("1"), 0)
}

func detachMount(mountpoint string) error {
	return unix.Unmount(mountpoint, unix.MNT_DETACH)
}
