package lifecycle

import (
	"bytes"
	"context"
	"errors"
	"io"
	"path/filepath"
	"strings"
	"syscall"
	"testing"
	"time"

	"regfs/internal/instance"
	"regfs/internal/notify"
	"regfs/internal/provision"
)

// recorder logs engine and linker calls in order.
type recorder struct {
	calls    []string
	startErr error
	failLink map[string]error
}

func (r *recorder) Start(root string, opts notify.StartOptions) error {
	r.calls = append(r.calls, "start:"+root)
	return r.startErr
}

func (r *recorder) Stop() {
	r.calls = append(r.calls, "stop")
}

func (r *recorder) CreateDirectorySymlink(link, target string) error {
	name := filepath.Base(link)
	r.calls = append(r.calls, "link:"+name)
	return r.failLink[name]
}

func (r *recorder) count(prefix string) int {
	n := 0
	for _, c := range r.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func newTestController(rec *recorder, in io.Reader, out io.Writer) *Controller {
	return New(
		instance.NewManager(rec),
		provision.New(rec),
		WithInput(in),
		WithOutput(out),
	)
}

func TestRunCleanShutdown(t *testing.T) {
	rec := &recorder{}
	var out bytes.Buffer
	c := newTestController(rec, strings.NewReader("\n"), &out)

	err := c.Run(context.Background(), "/virt")
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if code := ExitCode(err); code != 0 {
		t.Errorf("Expected exit code 0, got %d", code)
	}
	if c.State() != Stopped {
		t.Errorf("Expected stopped, got %v", c.State())
	}

	if rec.calls[0] != "start:/virt" {
		t.Errorf("Expected start first, got %v", rec.calls)
	}
	if rec.count("link:") != 26 {
		t.Errorf("Expected 26 links, got %d", rec.count("link:"))
	}
	if rec.calls[len(rec.calls)-1] != "stop" || rec.count("stop") != 1 {
		t.Errorf("Expected a single trailing stop, got %v", rec.calls)
	}

	console := out.String()
	for _, want := range []string{
		"RegFS is running at virtualization root [/virt]",
		"Press Enter to stop the provider...",
		"Provider stopped.",
	} {
		if !strings.Contains(console, want) {
			t.Errorf("Expected %q in output %q", want, console)
		}
	}
}

func TestRunEngineStartFailure(t *testing.T) {
	rec := &recorder{startErr: syscall.EBUSY}
	var out bytes.Buffer
	c := newTestController(rec, strings.NewReader("\n"), &out)

	err := c.Run(context.Background(), "/virt")

	var startErr *instance.EngineStartError
	if !errors.As(err, &startErr) {
		t.Fatalf("Expected *EngineStartError, got %v", err)
	}
	if code := ExitCode(err); code != -1 {
		t.Errorf("Expected exit code -1, got %d", code)
	}
	if c.State() != Failed {
		t.Errorf("Expected failed, got %v", c.State())
	}
	if rec.count("link:") != 0 || rec.count("stop") != 0 {
		t.Errorf("No links or stop expected after a failed start, got %v", rec.calls)
	}
	if !strings.Contains(out.String(), "Failed to start virtualization instance: 0x00000010") {
		t.Errorf("Unexpected output %q", out.String())
	}
}

func TestRunProvisioningFailure(t *testing.T) {
	rec := &recorder{failLink: map[string]error{"D": syscall.ENOENT}}
	var out bytes.Buffer
	c := newTestController(rec, strings.NewReader("\n"), &out)

	err := c.Run(context.Background(), "/virt")

	var perr *provision.ProvisioningError
	if !errors.As(err, &perr) || perr.Letter != 'D' {
		t.Fatalf("Expected provisioning error for D, got %v", err)
	}
	if code := ExitCode(err); code != 1 {
		t.Errorf("Expected exit code 1, got %d", code)
	}
	if c.State() != Failed {
		t.Errorf("Expected failed, got %v", c.State())
	}

	want := []string{"start:/virt", "link:A", "link:B", "link:C", "link:D", "stop"}
	if strings.Join(rec.calls, ",") != strings.Join(want, ",") {
		t.Errorf("Expected calls %v, got %v", want, rec.calls)
	}
	if !strings.Contains(out.String(), "Failed to create symbolic link for drive D: 0x00000002") {
		t.Errorf("Unexpected output %q", out.String())
	}
	if strings.Contains(out.String(), "is running") {
		t.Error("Running message printed after a provisioning failure")
	}
}

func TestRunContinueOnErrorReportsEveryLetter(t *testing.T) {
	rec := &recorder{failLink: map[string]error{"D": syscall.ENOENT, "X": syscall.ENOENT}}
	var out bytes.Buffer
	c := New(
		instance.NewManager(rec),
		provision.New(rec, provision.WithPolicy(provision.ContinueOnError)),
		WithInput(strings.NewReader("\n")),
		WithOutput(&out),
	)

	err := c.Run(context.Background(), "/virt")
	if ExitCode(err) != 1 {
		t.Fatalf("Expected exit code 1, got %d (%v)", ExitCode(err), err)
	}
	for _, want := range []string{"drive D", "drive X"} {
		if !strings.Contains(out.String(), want) {
			t.Errorf("Expected %q in output %q", want, out.String())
		}
	}
	if rec.count("stop") != 1 {
		t.Errorf("Expected one stop, got %v", rec.calls)
	}
}

func TestRunStopsOnContextCancel(t *testing.T) {
	rec := &recorder{}
	pr, pw := io.Pipe()
	t.Cleanup(func() { pw.Close() })

	c := newTestController(rec, pr, io.Discard)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- c.Run(ctx, "/virt") }()

	deadline := time.After(5 * time.Second)
	for c.State() != Running {
		select {
		case <-deadline:
			t.Fatal("Controller never reached running")
		case <-time.After(time.Millisecond):
		}
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Run failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
	if c.State() != Stopped {
		t.Errorf("Expected stopped, got %v", c.State())
	}
}

func TestRunOnlyOnce(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec, strings.NewReader("\n"), io.Discard)

	if err := c.Run(context.Background(), "/virt"); err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	calls := len(rec.calls)

	if err := c.Run(context.Background(), "/virt"); !errors.Is(err, ErrAlreadyRun) {
		t.Errorf("Expected ErrAlreadyRun, got %v", err)
	}
	if len(rec.calls) != calls {
		t.Errorf("Second run touched the engine: %v", rec.calls[calls:])
	}
}

func TestRunEmptyRoot(t *testing.T) {
	rec := &recorder{}
	c := newTestController(rec, strings.NewReader("\n"), io.Discard)

	err := c.Run(context.Background(), "")
	var usage *UsageError
	if !errors.As(err, &usage) {
		t.Fatalf("Expected *UsageError, got %v", err)
	}
	if ExitCode(err) != -1 {
		t.Errorf("Expected exit code -1, got %d", ExitCode(err))
	}
	if len(rec.calls) != 0 || c.State() != Idle {
		t.Errorf("Expected no engine calls in idle, got %v (state %v)", rec.calls, c.State())
	}
}

func TestExitCode(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: 0},
		{name: "usage", err: &UsageError{Reason: "x"}, want: -1},
		{name: "engine", err: &instance.EngineStartError{Code: 5}, want: -1},
		{name: "provisioning", err: &provision.ProvisioningError{Letter: 'D'}, want: 1},
		{name: "other", err: errors.New("boom"), want: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ExitCode(tt.err); got != tt.want {
				t.Errorf("ExitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
