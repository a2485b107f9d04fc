// Package lifecycle drives a regfs process from startup to shutdown: start
// the instance, provision drive links, wait for termination, stop.
package lifecycle

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"

	"regfs/internal/instance"
	"regfs/internal/logging"
	"regfs/internal/notify"
	"regfs/internal/provision"
)

var logger = logging.GetLogger().WithPrefix("lifecycle")

// State is a controller state.
type State int

const (
	Idle State = iota
	Starting
	Provisioning
	Running
	ShuttingDown
	Stopped
	Failed
)

var stateNames = map[State]string{
	Idle:         "idle",
	Starting:     "starting",
	Provisioning: "provisioning",
	Running:      "running",
	ShuttingDown: "shutting-down",
	Stopped:      "stopped",
	Failed:       "failed",
}

func (s State) String() string {
	if name, ok := stateNames[s]; ok {
		return name
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// ErrAlreadyRun is returned when Run is called a second time.
var ErrAlreadyRun = errors.New("controller has already run")

// UsageError reports invalid invocation. The state machine is never entered.
type UsageError struct {
	Reason string
}

func (e *UsageError) Error() string {
	return "usage: " + e.Reason
}

// Option configures a Controller.
type Option func(*Controller)

// WithOutput sets where console messages go. Defaults to os.Stdout.
func WithOutput(w io.Writer) Option {
	return func(c *Controller) {
		c.out = w
	}
}

// WithInput sets the reader whose next line requests shutdown. Defaults to
// os.Stdin.
func WithInput(r io.Reader) Option {
	return func(c *Controller) {
		c.in = r
	}
}

// WithDomain overrides the drive letters to provision.
func WithDomain(domain []provision.Letter) Option {
	return func(c *Controller) {
		c.domain = domain
	}
}

// WithPolicy overrides the notification policy builder.
func WithPolicy(build func() notify.StartOptions) Option {
	return func(c *Controller) {
		c.policy = build
	}
}

// Controller owns the instance for the life of the process.
type Controller struct {
	manager     *instance.Manager
	provisioner *provision.Provisioner
	policy      func() notify.StartOptions
	domain      []provision.Letter
	out         io.Writer
	in          io.Reader

	mu    sync.Mutex
	state State
	ran   bool
}

// New returns an idle controller.
func New(manager *instance.Manager, provisioner *provision.Provisioner, opts ...Option) *Controller {
	c := &Controller{
		manager:     manager,
		provisioner: provisioner,
		policy:      notify.Build,
		domain:      provision.Drives(),
		out:         os.Stdout,
		in:          os.Stdin,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	prev := c.state
	c.state = s
	c.mu.Unlock()
	logger.Debug("State %s -> %s", prev, s)
}

// Run starts the instance at root, provisions links, blocks until a line
// arrives on the input or ctx is done, then stops the instance. The
// instance is stopped if and only if it started.
func (c *Controller) Run(ctx context.Context, root string) error {
	c.mu.Lock()
	if c.ran {
		c.mu.Unlock()
		return ErrAlreadyRun
	}
	c.ran = true
	c.mu.Unlock()

	if root == "" {
		return &UsageError{Reason: "empty virtualization root"}
	}

	c.setState(Starting)
	inst, err := c.manager.Start(root, c.policy())
	if err != nil {
		c.setState(Failed)
		code := -1
		var startErr *instance.EngineStartError
		if errors.As(err, &startErr) {
			code = startErr.Code
		}
		fmt.Fprintf(c.out, "Failed to start virtualization instance: 0x%08x\n", uint32(code))
		return err
	}

	c.setState(Provisioning)
	if err := c.provisioner.ProvisionAll(root, c.domain); err != nil {
		for _, perr := range provisioningErrors(err) {
			fmt.Fprintf(c.out, "Failed to create symbolic link for drive %s: 0x%08x (%v)\n",
				perr.Letter, uint32(perr.Code), perr.Err)
		}
		c.manager.Stop(inst)
		c.setState(Failed)
		return err
	}
	fmt.Fprintf(c.out, "Symbolic links created from: %s to all drives.\n", root)

	c.setState(Running)
	fmt.Fprintf(c.out, "RegFS is running at virtualization root [%s]\n", root)
	fmt.Fprint(c.out, "Press Enter to stop the provider...")

	c.waitForTermination(ctx)

	c.setState(ShuttingDown)
	c.manager.Stop(inst)
	c.setState(Stopped)
	fmt.Fprintln(c.out, "\nProvider stopped.")
	return nil
}

// waitForTermination returns on the first input line, end of input, or
// ctx cancellation. A reader blocked on a terminal is abandoned.
func (c *Controller) waitForTermination(ctx context.Context) {
	line := make(chan struct{})
	go func() {
		defer close(line)
		if _, err := bufio.NewReader(c.in).ReadString('\n'); err != nil && !errors.Is(err, io.EOF) {
			logger.Warn("Reading termination signal: %v", err)
		}
	}()

	select {
	case <-line:
		logger.Debug("Termination requested from input")
	case <-ctx.Done():
		logger.Info("Termination requested: %v", context.Cause(ctx))
	}
}

func provisioningErrors(err error) []*provision.ProvisioningError {
	var out []*provision.ProvisioningError
	if joined, ok := err.(interface{ Unwrap() []error }); ok {
		for _, e := range joined.Unwrap() {
			out = append(out, provisioningErrors(e)...)
		}
		return out
	}
	var perr *provision.ProvisioningError
	if errors.As(err, &perr) {
		out = append(out, perr)
	}
	return out
}

// ExitCode maps Run's result to the process exit status: 0 on a clean
// stop, -1 for usage and engine start failures, 1 for provisioning and
// anything else.
func ExitCode(err error) int {
	if err == nil {
		return 0
	}

	var usage *UsageError
	var startErr *instance.EngineStartError
	if errors.As(err, &usage) || errors.As(err, &startErr) {
		return -1
	}
	return 1
}
