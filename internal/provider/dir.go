package provider

import (
	"context"
	"os"
	"path"
	"sort"
	"syscall"
	"time"

	"regfs/internal/logging"
	"regfs/internal/notify"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	dirLogger = logging.GetLogger().WithPrefix("dir")
)

// Dir is a directory in the virtual namespace. The root directory is the
// Dir whose entry has no parent.
type Dir struct {
	p *Provider
	e *entry
}

var (
	_ fusefs.Node               = (*Dir)(nil)
	_ fusefs.NodeStringLookuper = (*Dir)(nil)
	_ fusefs.HandleReadDirAller = (*Dir)(nil)
	_ fusefs.NodeMkdirer        = (*Dir)(nil)
	_ fusefs.NodeSymlinker      = (*Dir)(nil)
	_ fusefs.NodeRemover        = (*Dir)(nil)
	_ fusefs.NodeRenamer        = (*Dir)(nil)
	_ fusefs.NodeOpener         = (*Dir)(nil)
)

func (d *Dir) node(e *entry) fusefs.Node {
	if e.kind == kindLink {
		return &Symlink{p: d.p, e: e}
	}
	return &Dir{p: d.p, e: e}
}

// Attr implements the Node interface, returning directory attributes.
func (d *Dir) Attr(_ context.Context, a *fuse.Attr) error {
	d.p.mu.RLock()
	defer d.p.mu.RUnlock()

	dirLogger.Trace("Getting attributes for directory: %q", d.e.relPath())
	a.Inode = d.e.inode
	a.Mode = os.ModeDir | 0755
	a.Mtime = d.e.mtime
	a.Uid = d.p.uid
	a.Gid = d.p.gid
	return nil
}

// Lookup implements the NodeStringLookuper interface, finding a child node.
func (d *Dir) Lookup(_ context.Context, name string) (fusefs.Node, error) {
	d.p.mu.RLock()
	defer d.p.mu.RUnlock()

	child, ok := d.e.children[name]
	if !ok {
		dirLogger.Trace("Path not found: %q", path.Join(d.e.relPath(), name))
		return nil, ToFuseError(ErrNotFound)
	}
	return d.node(child), nil
}

// ReadDirAll implements the HandleReadDirAller interface, listing directory contents.
func (d *Dir) ReadDirAll(_ context.Context) ([]fuse.Dirent, error) {
	d.p.mu.RLock()
	defer d.p.mu.RUnlock()

	entries := make([]fuse.Dirent, 0, len(d.e.children))
	for name, child := range d.e.children {
		typ := fuse.DT_Dir
		if child.kind == kindLink {
			typ = fuse.DT_Link
		}
		entries = append(entries, fuse.Dirent{Inode: child.inode, Name: name, Type: typ})
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })

	dirLogger.Debug("Directory %q contains %d entries", d.e.relPath(), len(entries))
	return entries, nil
}

// Open implements the NodeOpener interface and reports FileOpened.
func (d *Dir) Open(_ context.Context, req *fuse.OpenRequest, _ *fuse.OpenResponse) (fusefs.Handle, error) {
	d.p.mu.RLock()
	rel := d.e.relPath()
	d.p.mu.RUnlock()

	dirLogger.Trace("Opening directory %q with flags %v", rel, req.Flags)
	if err := d.p.dispatch(Notification{Event: notify.FileOpened, Path: rel, IsDirectory: true}); err != nil {
		return nil, ToFuseError(err)
	}
	return d, nil
}

// Mkdir implements the NodeMkdirer interface, creating a new directory.
func (d *Dir) Mkdir(_ context.Context, req *fuse.MkdirRequest) (fusefs.Node, error) {
	child, err := d.insert(OpMkdir, req.Name, kindDir, "")
	if err != nil {
		return nil, ToFuseError(err)
	}
	return &Dir{p: d.p, e: child}, nil
}

// Symlink implements the NodeSymlinker interface. Targets are stored
// verbatim and never resolved by the provider.
func (d *Dir) Symlink(_ context.Context, req *fuse.SymlinkRequest) (fusefs.Node, error) {
	child, err := d.insert(OpSymlink, req.NewName, kindLink, req.Target)
	if err != nil {
		return nil, ToFuseError(err)
	}
	return &Symlink{p: d.p, e: child}, nil
}

func (d *Dir) insert(op, name string, kind entryKind, target string) (*entry, error) {
	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	rel := path.Join(d.e.relPath(), name)
	if _, exists := d.e.children[name]; exists {
		dirLogger.Debug("%s: %q already exists", op, rel)
		return nil, NewError(op, rel, ErrAlreadyExists)
	}

	child := d.p.newEntry(name, kind, d.e)
	child.target = target
	d.e.children[name] = child
	d.e.mtime = time.Now()

	dirLogger.Debug("%s created %q", op, rel)
	return child, nil
}

// Remove implements the NodeRemover interface. PreDelete is reported first
// and a veto leaves the entry in place.
func (d *Dir) Remove(_ context.Context, req *fuse.RemoveRequest) error {
	d.p.mu.RLock()
	child, ok := d.e.children[req.Name]
	rel := path.Join(d.e.relPath(), req.Name)
	d.p.mu.RUnlock()

	if !ok {
		return ToFuseError(NewError(OpRemove, rel, ErrNotFound))
	}
	isDir := child.kind == kindDir
	if req.Dir != isDir {
		if req.Dir {
			return ToFuseError(NewError(OpRemove, rel, ErrNotDirectory))
		}
		return ToFuseError(NewError(OpRemove, rel, syscall.EISDIR))
	}

	if err := d.p.dispatch(Notification{Event: notify.PreDelete, Path: rel, IsDirectory: isDir}); err != nil {
		return ToFuseError(NewError(OpRemove, rel, err))
	}

	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	// The entry may have changed while the sink ran.
	if d.e.children[req.Name] != child {
		return ToFuseError(NewError(OpRemove, rel, ErrNotFound))
	}
	if isDir && len(child.children) > 0 {
		return ToFuseError(NewError(OpRemove, rel, ErrDirectoryNotEmpty))
	}

	delete(d.e.children, req.Name)
	child.parent = nil
	d.e.mtime = time.Now()
	dirLogger.Debug("Removed %q", rel)
	return nil
}

// Rename implements the NodeRenamer interface. PreRename is reported first
// and a veto leaves both names untouched.
func (d *Dir) Rename(_ context.Context, req *fuse.RenameRequest, newDir fusefs.Node) error {
	target, ok := newDir.(*Dir)
	if !ok {
		return ToFuseError(ErrNotDirectory)
	}

	d.p.mu.RLock()
	child, exists := d.e.children[req.OldName]
	oldRel := path.Join(d.e.relPath(), req.OldName)
	newRel := path.Join(target.e.relPath(), req.NewName)
	d.p.mu.RUnlock()

	if !exists {
		return ToFuseError(NewError(OpRename, oldRel, ErrNotFound))
	}

	n := Notification{
		Event:       notify.PreRename,
		Path:        oldRel,
		Destination: newRel,
		IsDirectory: child.kind == kindDir,
	}
	if err := d.p.dispatch(n); err != nil {
		return ToFuseError(NewError(OpRename, oldRel, err))
	}

	d.p.mu.Lock()
	defer d.p.mu.Unlock()

	if d.e.children[req.OldName] != child {
		return ToFuseError(NewError(OpRename, oldRel, ErrNotFound))
	}
	for anc := target.e; anc != nil; anc = anc.parent {
		if anc == child {
			return ToFuseError(NewError(OpRename, oldRel, syscall.EINVAL))
		}
	}
	if existing, taken := target.e.children[req.NewName]; taken && existing != child {
		if existing.kind == kindDir && len(existing.children) > 0 {
			return ToFuseError(NewError(OpRename, newRel, ErrDirectoryNotEmpty))
		}
		existing.parent = nil
	}

	delete(d.e.children, req.OldName)
	child.name = req.NewName
	child.parent = target.e
	target.e.children[req.NewName] = child

	now := time.Now()
	d.e.mtime = now
	target.e.mtime = now
	dirLogger.Debug("Renamed %q -> %q", oldRel, newRel)
	return nil
}
