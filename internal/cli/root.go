// Package cli provides the command-line interface for regfs.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"

	"regfs/internal/lifecycle"

	"github.com/spf13/cobra"
)

const usageText = `Usage:
> regfs <Virtualization Root Path>
`

// RunFunc runs the host for a validated, absolute virtualization root.
type RunFunc func(ctx context.Context, root string) error

// NewRootCommand builds the regfs command around run.
func NewRootCommand(run RunFunc) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regfs <virtualization-root-path>",
		Short: "RegFS - virtualization provider host",
		Long: `RegFS mounts a virtualization instance at an existing directory, links
every drive letter A-Z beneath it, and runs until Enter is pressed or the
process is interrupted.`,
		Args:          exactlyOneRoot,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			root, err := filepath.Abs(args[0])
			if err != nil {
				return &lifecycle.UsageError{Reason: fmt.Sprintf("invalid root %q: %v", args[0], err)}
			}
			return run(cmd.Context(), root)
		},
	}
	cmd.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return &lifecycle.UsageError{Reason: err.Error()}
	})
	// Execute reports --help as a usage error and prints the usage itself.
	cmd.SetHelpFunc(func(*cobra.Command, []string) {})
	return cmd
}

// helpRequested reports whether cmd parsed a --help or -h flag.
func helpRequested(cmd *cobra.Command) bool {
	help, err := cmd.Flags().GetBool("help")
	return err == nil && help
}

func exactlyOneRoot(_ *cobra.Command, args []string) error {
	switch {
	case len(args) == 0:
		return &lifecycle.UsageError{Reason: "missing virtualization root"}
	case len(args) > 1:
		return &lifecycle.UsageError{Reason: fmt.Sprintf("expected one virtualization root, got %d arguments", len(args))}
	case args[0] == "":
		return &lifecycle.UsageError{Reason: "empty virtualization root"}
	}
	return nil
}

// Execute runs the command with args and returns the process exit status.
// Usage errors print the usage text to out.
func Execute(ctx context.Context, args []string, out io.Writer, run RunFunc) int {
	if args == nil {
		// cobra falls back to os.Args for a nil slice.
		args = []string{}
	}
	cmd := NewRootCommand(run)
	cmd.SetArgs(args)
	cmd.SetOut(out)
	cmd.SetErr(out)

	err := cmd.ExecuteContext(ctx)
	if err == nil && helpRequested(cmd) {
		err = &lifecycle.UsageError{Reason: "help requested"}
	}
	var usage *lifecycle.UsageError
	if errors.As(err, &usage) {
		fmt.Fprint(out, usageText)
	}
	return lifecycle.ExitCode(err)
}
