package provider

import (
	"os"
	"strings"
	"sync"
	"syscall"
	"time"

	"regfs/internal/logging"
	"regfs/internal/notify"

	"bazil.org/fuse"
	fusefs "bazil.org/fuse/fs"
)

var (
	providerLogger = logging.GetLogger().WithPrefix("provider")
)

// DefaultStopWait bounds how long Stop waits for the FUSE server after the
// mount has been forcibly torn down.
const DefaultStopWait = 10 * time.Second

// Config holds the FUSE mount settings.
type Config struct {
	FSName             string
	AllowOther         bool
	AllowNonEmptyMount bool
}

// DefaultConfig returns the mount settings used when none are given.
func DefaultConfig() Config {
	return Config{FSName: "regfs"}
}

// Option configures a Provider.
type Option func(*Provider)

// WithSink sets the notification receiver. The default logs.
func WithSink(s Sink) Option {
	return func(p *Provider) {
		p.sink = s
	}
}

// WithConfig sets the FUSE mount settings.
func WithConfig(cfg Config) Option {
	return func(p *Provider) {
		p.cfg = cfg
	}
}

type entryKind int

const (
	kindDir entryKind = iota
	kindLink
)

// entry is one name in the in-memory namespace.
type entry struct {
	name     string
	kind     entryKind
	target   string
	inode    uint64
	mtime    time.Time
	parent   *entry
	children map[string]*entry
}

// relPath returns the root-relative path of e.
func (e *entry) relPath() string {
	var parts []string
	for cur := e; cur != nil && cur.parent != nil; cur = cur.parent {
		parts = append(parts, cur.name)
	}
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, "/")
}

// Provider is the virtualization engine: it mounts the namespace at a root
// and answers FUSE callbacks until stopped.
type Provider struct {
	cfg  Config
	sink Sink
	uid  uint32
	gid  uint32

	mu        sync.RWMutex // protects the namespace and opts
	root      *entry
	nextInode uint64
	opts      notify.StartOptions

	runMu   sync.Mutex // serializes Start and Stop
	session *session

	// Teardown steps, replaced in tests.
	unmount  func(mountpoint string) error
	abort    func(s *session) error
	detach   func(mountpoint string) error
	stopWait time.Duration
}

// session is one mounted namespace and the goroutine serving it.
type session struct {
	conn       *fuse.Conn
	mountpoint string
	dev        uint64 // device number of the mount, 0 if unknown
	served     chan struct{}
}

// New creates a provider with an empty namespace.
func New(opts ...Option) *Provider {
	p := &Provider{
		cfg:       DefaultConfig(),
		sink:      LogSink{},
		uid:       safeIntToUint32(os.Getuid()),
		gid:       safeIntToUint32(os.Getgid()),
		nextInode: 1,
		unmount:   fuse.Unmount,
		abort:     abortConnection,
		detach:    detachMount,
		stopWait:  DefaultStopWait,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.root = p.newEntry("", kindDir, nil)
	return p
}

func (p *Provider) newEntry(name string, kind entryKind, parent *entry) *entry {
	p.nextInode++
	e := &entry{
		name:   name,
		kind:   kind,
		inode:  p.nextInode,
		mtime:  time.Now(),
		parent: parent,
	}
	if kind == kindDir {
		e.children = make(map[string]*entry)
	}
	return e
}

func (p *Provider) options() notify.StartOptions {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.opts
}

// Root implements the fusefs.FS interface, returning the root directory node.
func (p *Provider) Root() (fusefs.Node, error) {
	return &Dir{p: p, e: p.root}, nil
}

// Start mounts the namespace at root and begins serving callbacks. The
// root must be an existing directory.
func (p *Provider) Start(root string, opts notify.StartOptions) error {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	if p.session != nil {
		return NewError(OpMount, root, ErrAlreadyStarted)
	}

	info, err := os.Stat(root)
	if err != nil {
		return NewError(OpMount, root, err)
	}
	if !info.IsDir() {
		return NewError(OpMount, root, syscall.ENOTDIR)
	}

	p.mu.Lock()
	p.opts = opts.Clone()
	p.mu.Unlock()

	mountOpts := []fuse.MountOption{
		fuse.FSName(p.cfg.FSName),
		fuse.Subtype("regfs"),
	}
	if p.cfg.AllowOther {
		mountOpts = append(mountOpts, fuse.AllowOther())
	}
	if p.cfg.AllowNonEmptyMount {
		mountOpts = append(mountOpts, fuse.AllowNonEmptyMount())
	}

	providerLogger.Info("Mounting virtualization root %s", root)
	providerLogger.Debug("Notification rules: %+v", opts.Rules)

	c, err := fuse.Mount(root, mountOpts...)
	if err != nil {
		return NewError(OpMount, root, err)
	}

	s := &session{conn: c, mountpoint: root, served: make(chan struct{})}
	go func() {
		defer close(s.served)
		if err := fusefs.Serve(c, p); err != nil {
			providerLogger.Error("FUSE server error: %v", err)
		}
		providerLogger.Debug("FUSE server stopped")
	}()

	// Needed to abort the connection if a normal unmount is refused.
	if s.dev, err = mountDevice(root); err != nil {
		providerLogger.Debug("Cannot identify FUSE connection for %s: %v", root, err)
	}

	p.session = s
	providerLogger.Info("Virtualization instance started")
	return nil
}

// Stop unmounts the namespace and blocks until the FUSE server has
// returned. When the unmount is refused, for example because a process
// still has its working directory inside the root, the connection is
// aborted and the mount lazily detached instead. Calling Stop on a provider
// that is not mounted does nothing.
func (p *Provider) Stop() {
	p.runMu.Lock()
	defer p.runMu.Unlock()

	s := p.session
	if s == nil {
		return
	}

	providerLogger.Info("Unmounting %s", s.mountpoint)
	forced := false
	if err := p.unmount(s.mountpoint); err != nil {
		forced = true
		providerLogger.Warn("Unmount refused, aborting connection: %v", NewError(OpUnmount, s.mountpoint, err))
		if err := p.abort(s); err != nil {
			providerLogger.Error("Aborting FUSE connection: %v", err)
		}
		if err := p.detach(s.mountpoint); err != nil {
			providerLogger.Error("Detaching %s: %v", s.mountpoint, err)
		}
	}

	if !forced {
		<-s.served
	} else {
		select {
		case <-s.served:
		case <-time.After(p.stopWait):
			// Conn.Close would block behind the server's pending read.
			providerLogger.Error("FUSE server for %s did not exit after %v, abandoning it", s.mountpoint, p.stopWait)
			p.session = nil
			return
		}
	}

	if s.conn != nil {
		if err := s.conn.Close(); err != nil {
			providerLogger.Debug("Closing FUSE connection: %v", err)
		}
	}

	p.session = nil
	providerLogger.Info("Virtualization instance stopped")
}

// Running reports whether the namespace is mounted.
func (p *Provider) Running() bool {
	p.runMu.Lock()
	defer p.runMu.Unlock()
	return p.session != nil
}

func safeIntToUint32(n int) uint32 {
	if n < 0 {
		return 0
	}
	return uint32(n)
}
