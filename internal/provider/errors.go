// Package provider implements the FUSE-backed virtualization engine that
// serves the namespace under a virtualization root.
//
// This file contains error types and error handling utilities.
package provider

import (
	"errors"
	"fmt"
	"os"
	"syscall"

	"regfs/internal/logging"
)

var (
	errLogger = logging.GetLogger().WithPrefix("error")

	// ErrNotFound indicates a name doesn't exist in the namespace
	ErrNotFound = errors.New("entry not found")

	// ErrAlreadyExists indicates the name is already taken
	ErrAlreadyExists = errors.New("entry already exists")

	// ErrNotDirectory indicates a directory operation on a non-directory
	ErrNotDirectory = errors.New("not a directory")

	// ErrDirectoryNotEmpty indicates attempt to remove non-empty directory
	ErrDirectoryNotEmpty = errors.New("directory not empty")

	// ErrVetoed indicates the notification sink refused a pending operation
	ErrVetoed = errors.New("operation vetoed by provider")

	// ErrAlreadyStarted is returned by Start while an instance is mounted
	ErrAlreadyStarted = errors.New("virtualization instance already started")
)

// Error wraps engine errors with the operation and the affected path.
type Error struct {
	Op   string // Operation that failed (e.g., "mount", "symlink")
	Path string // Affected path
	Err  error  // Underlying error
}

func (e *Error) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("operation %s failed: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("operation %s on %s failed: %v", e.Op, e.Path, e.Err)
}

// Unwrap implements error unwrapping for the errors.Is/As functions
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a new Error with the given operation, path, and underlying error
func NewError(op string, path string, err error) *Error {
	e := &Error{
		Op:   op,
		Path: path,
		Err:  err,
	}
	errLogger.Debug("Created new provider error: %v", e)
	return e
}

// ToFuseError converts an error to the errno FUSE hands back to the kernel.
func ToFuseError(err error) error {
	if err == nil {
		return nil
	}

	var errno syscall.Errno
	if errors.As(err, &errno) {
		return errno
	}

	switch {
	case errors.Is(err, ErrNotFound), errors.Is(err, os.ErrNotExist):
		return syscall.ENOENT
	case errors.Is(err, ErrAlreadyExists), errors.Is(err, os.ErrExist):
		return syscall.EEXIST
	case errors.Is(err, ErrNotDirectory):
		return syscall.ENOTDIR
	case errors.Is(err, ErrDirectoryNotEmpty):
		return syscall.ENOTEMPTY
	case errors.Is(err, ErrVetoed), errors.Is(err, os.ErrPermission):
		return syscall.EPERM
	default:
		errLogger.Debug("Unknown error type, returning EIO: %v", err)
		return syscall.EIO
	}
}

// Operation names used in errors and logs
const (
	OpMount    = "mount"
	OpUnmount  = "unmount"
	OpLookup   = "lookup"
	OpOpen     = "open"
	OpMkdir    = "mkdir"
	OpSymlink  = "symlink"
	OpReadlink = "readlink"
	OpRemove   = "remove"
	OpRename   = "rename"
)
