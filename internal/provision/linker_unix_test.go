//go:build !windows

package provision

import (
	"errors"
	"os"
	"path/filepath"
	"syscall"
	"testing"
)

func TestHostLinker(t *testing.T) {
	root := t.TempDir()
	p := New(HostLinker{})

	if err := p.ProvisionAll(root, []Letter{'A', 'B'}); err != nil {
		t.Fatalf("ProvisionAll failed: %v", err)
	}

	// Targets are drive roots that do not exist here; links dangle.
	target, err := os.Readlink(filepath.Join(root, "B"))
	if err != nil {
		t.Fatalf("Readlink failed: %v", err)
	}
	if target != `B:\` {
		t.Errorf("Expected target %q, got %q", `B:\`, target)
	}

	err = p.ProvisionAll(root, []Letter{'A'})
	var perr *ProvisioningError
	if !errors.As(err, &perr) {
		t.Fatalf("Expected *ProvisioningError on existing link, got %v", err)
	}
	if perr.Code != int(syscall.EEXIST) {
		t.Errorf("Expected EEXIST code, got %d", perr.Code)
	}
}
