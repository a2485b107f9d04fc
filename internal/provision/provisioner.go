// Package provision creates the drive-letter mount links beneath a running
// virtualization root.
package provision

import (
	"errors"
	"fmt"
	"path/filepath"
	"syscall"

	"regfs/internal/logging"
)

var logger = logging.GetLogger().WithPrefix("provision")

// DefaultTargetFormat maps a drive letter to its drive root, e.g. C -> C:\.
const DefaultTargetFormat = `%c:\`

// Letter is one member of the drive-letter domain.
type Letter byte

func (l Letter) String() string {
	return string(rune(l))
}

// LinkPath is where the letter's link lives under root.
func (l Letter) LinkPath(root string) string {
	return filepath.Join(root, l.String())
}

// Target renders the link target for l using format.
func (l Letter) Target(format string) string {
	return fmt.Sprintf(format, byte(l))
}

// Drives returns the fixed domain A through Z in order.
func Drives() []Letter {
	letters := make([]Letter, 0, 26)
	for l := Letter('A'); l <= 'Z'; l++ {
		letters = append(letters, l)
	}
	return letters
}

// Linker creates directory symbolic links on the host.
type Linker interface {
	CreateDirectorySymlink(link, target string) error
}

// Policy decides what a link failure does to the rest of the pass.
type Policy int

const (
	// FailFast stops at the first failure and keeps the links made so far.
	FailFast Policy = iota
	// ContinueOnError attempts every letter and reports all failures.
	ContinueOnError
)

func (p Policy) String() string {
	switch p {
	case FailFast:
		return "fail-fast"
	case ContinueOnError:
		return "continue"
	default:
		return fmt.Sprintf("policy(%d)", int(p))
	}
}

// ParsePolicy converts a policy name to a Policy.
func ParsePolicy(name string) (Policy, error) {
	switch name {
	case "", "fail-fast":
		return FailFast, nil
	case "continue":
		return ContinueOnError, nil
	default:
		return FailFast, fmt.Errorf("unknown provisioning policy %q", name)
	}
}

// ProvisioningError reports a link that could not be created. Code is the
// host error number, or -1 when none is available.
type ProvisioningError struct {
	Letter Letter
	Link   string
	Target string
	Code   int
	Err    error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("failed to create symbolic link for drive %s (%s -> %s): code %d: %v",
		e.Letter, e.Link, e.Target, e.Code, e.Err)
}

func (e *ProvisioningError) Unwrap() error {
	return e.Err
}

// Option configures a Provisioner.
type Option func(*Provisioner)

// WithTargetFormat overrides DefaultTargetFormat. The format receives the
// letter as its single argument.
func WithTargetFormat(format string) Option {
	return func(p *Provisioner) {
		p.targetFormat = format
	}
}

// WithPolicy sets the failure policy. FailFast is the default.
func WithPolicy(policy Policy) Option {
	return func(p *Provisioner) {
		p.policy = policy
	}
}

// Provisioner creates one directory link per letter under a root.
type Provisioner struct {
	linker       Linker
	targetFormat string
	policy       Policy
	created      []Letter
}

// New returns a provisioner that creates links through linker.
func New(linker Linker, opts ...Option) *Provisioner {
	p := &Provisioner{
		linker:       linker,
		targetFormat: DefaultTargetFormat,
		policy:       FailFast,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// ProvisionAll links every letter of domain under root, in order. Links
// created before a failure are left in place. Target drives are not
// checked for existence.
func (p *Provisioner) ProvisionAll(root string, domain []Letter) error {
	p.created = p.created[:0]
	var errs []error

	for _, letter := range domain {
		link := letter.LinkPath(root)
		target := letter.Target(p.targetFormat)

		logger.Debug("Linking %s -> %s", link, target)
		if err := p.linker.CreateDirectorySymlink(link, target); err != nil {
			perr := &ProvisioningError{
				Letter: letter,
				Link:   link,
				Target: target,
				Code:   errorCode(err),
				Err:    err,
			}
			logger.Error("%v", perr)
			if p.policy == FailFast {
				return perr
			}
			errs = append(errs, perr)
			continue
		}
		p.created = append(p.created, letter)
	}

	logger.Info("Created %d of %d drive links under %s", len(p.created), len(domain), root)
	return errors.Join(errs...)
}

// Created returns the letters linked by the last ProvisionAll, in order.
func (p *Provisioner) Created() []Letter {
	return append([]Letter(nil), p.created...)
}

func errorCode(err error) int {
	var errno syscall.Errno
	if errors.As(err, &errno) {
		return int(errno)
	}
	return -1
}
