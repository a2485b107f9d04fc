package cli

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"regfs/internal/instance"
)

func TestArgumentValidation(t *testing.T) {
	tests := []struct {
		name string
		args []string
	}{
		{name: "no arguments", args: nil},
		{name: "two arguments", args: []string{"/a", "/b"}},
		{name: "empty root", args: []string{""}},
		{name: "unknown flag", args: []string{"--mount", "/a"}},
		{name: "help flag", args: []string{"--help"}},
		{name: "short help flag", args: []string{"-h"}},
		{name: "help with root", args: []string{"/a", "--help"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			calls := 0
			run := func(context.Context, string) error {
				calls++
				return nil
			}

			code := Execute(context.Background(), tt.args, &out, run)
			if code == 0 {
				t.Errorf("Expected non-zero exit for %v", tt.args)
			}
			if code != -1 {
				t.Errorf("Expected exit -1, got %d", code)
			}
			if calls != 0 {
				t.Errorf("Host ran %d times on invalid arguments", calls)
			}
			if !strings.Contains(out.String(), "> regfs <Virtualization Root Path>") {
				t.Errorf("Expected usage text, got %q", out.String())
			}
		})
	}
}

func TestExecutePassesAbsoluteRoot(t *testing.T) {
	var got string
	run := func(_ context.Context, root string) error {
		got = root
		return nil
	}

	code := Execute(context.Background(), []string{"virt"}, &bytes.Buffer{}, run)
	if code != 0 {
		t.Fatalf("Expected exit 0, got %d", code)
	}

	want, err := filepath.Abs("virt")
	if err != nil {
		t.Fatalf("Abs failed: %v", err)
	}
	if got != want {
		t.Errorf("Expected root %q, got %q", want, got)
	}
}

func TestExecuteMapsRunErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "engine start", err: &instance.EngineStartError{Code: 16, Err: errors.New("busy")}, want: -1},
		{name: "other", err: errors.New("provisioning"), want: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			run := func(context.Context, string) error { return tt.err }

			if code := Execute(context.Background(), []string{"/virt"}, &out, run); code != tt.want {
				t.Errorf("Expected exit %d, got %d", tt.want, code)
			}
			if strings.Contains(out.String(), "Usage:") {
				t.Error("Usage printed for a runtime failure")
			}
		})
	}
}
