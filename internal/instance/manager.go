// Package instance owns the lifecycle of the single virtualization instance
// a regfs process runs.
package instance

import (
	"errors"
	"fmt"
	"sync"
	"syscall"

	"regfs/internal/logging"
	"regfs/internal/notify"
)

var logger = logging.GetLogger().WithPrefix("instance")

// Engine is the virtualization engine the manager drives.
type Engine interface {
	Start(root string, opts notify.StartOptions) error
	Stop()
}

// State is the lifecycle state of an Instance.
type State int

const (
	Unstarted State = iota
	Running
	Stopped
)

func (s State) String() string {
	switch s {
	case Unstarted:
		return "unstarted"
	case Running:
		return "running"
	case Stopped:
		return "stopped"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrAlreadyRunning is returned by Start while the manager's instance runs.
var ErrAlreadyRunning = errors.New("a virtualization instance is already running")

// EngineStartError reports that the engine refused to mount the root.
// Code is the host error number, or -1 when the engine gave none.
type EngineStartError struct {
	Root string
	Code int
	Err  error
}

func (e *EngineStartError) Error() string {
	return fmt.Sprintf("failed to start virtualization instance at %s: 0x%08x: %v", e.Root, uint32(e.Code), e.Err)
}

func (e *EngineStartError) Unwrap() error {
	return e.Err
}

// Instance is a handle to one virtualization session bound to one root.
type Instance struct {
	root  string
	mu    sync.Mutex
	state State
}

// Root returns the virtualization root the instance was started on.
func (i *Instance) Root() string {
	return i.root
}

// State returns the instance's current state.
func (i *Instance) State() State {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.state
}

// Manager starts and stops instances on an Engine. It allows one running
// instance at a time.
type Manager struct {
	engine  Engine
	mu      sync.Mutex
	current *Instance
}

// NewManager returns a manager for engine.
func NewManager(engine Engine) *Manager {
	return &Manager{engine: engine}
}

// Start mounts root with opts. On failure the returned error is an
// *EngineStartError and nothing needs stopping.
func (m *Manager) Start(root string, opts notify.StartOptions) (*Instance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.current != nil {
		return nil, &EngineStartError{Root: root, Code: -1, Err: ErrAlreadyRunning}
	}

	logger.Debug("Starting instance at %s with %d notification rule(s)", root, len(opts.Rules))
	if err := m.engine.Start(root, opts.Clone()); err != nil {
		logger.Error("Engine refused to start at %s: %v", root, err)
		return nil, &EngineStartError{Root: root, Code: errorCode(err), Err: err}
	}

	inst := &Instance{root: root, state: Running}
	m.current = inst
	logger.Info("Instance running at %s", root)
	return inst, nil
}

// Stop releases inst. It does nothing for nil, for instances that are not
// running, and on repeated calls. Engine failures are logged by the engine
// and never reach the caller.
func (m *Manager) Stop(inst *Instance) {
	if inst == nil {
		return
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	inst.mu.Lock()
	if inst.state != Running {
		inst.mu.Unlock()
		logger.Debug("Ignoring stop for %s instance at %s", inst.state, inst.root)
		return
	}
	inst.state = Stopped
	inst.mu.Unlock()

	logger.Info("Stopping instance at %s", inst.root)
	m.engine.Stop()
	if m.current == inst {
		m.current = nil
	}
}

func errorCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return -1
}
