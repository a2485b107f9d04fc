package provider

import (
	"context"
	"os"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

// Symlink is a symbolic link in the virtual namespace.
type Symlink struct {
	p *Provider
	e *entry
}

var (
	_ fusefs.Node           = (*Symlink)(nil)
	_ fusefs.NodeReadlinker = (*Symlink)(nil)
)

// Attr implements the Node interface.
func (s *Symlink) Attr(_ context.Context, a *fuse.Attr) error {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()

	a.Inode = s.e.inode
	a.Mode = os.ModeSymlink | 0777
	a.Size = uint64(len(s.e.target))
	a.Mtime = s.e.mtime
	a.Uid = s.p.uid
	a.Gid = s.p.gid
	return nil
}

// Readlink implements the NodeReadlinker interface.
func (s *Symlink) Readlink(_ context.Context, _ *fuse.ReadlinkRequest) (string, error) {
	s.p.mu.RLock()
	defer s.p.mu.RUnlock()
	return s.e.target, nil
}
