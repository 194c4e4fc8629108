package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"bookctl/internal/config"
)

const (
	ExitOK          = 0
	ExitCLIError    = 1
	ExitUnreachable = 2
	ExitJobFailed   = 3
	ExitValidation  = 4
)

// ExitError wraps an error with a process exit code.
type ExitError struct {
	Code int
	Err  error
}

func (e *ExitError) Error() string {
	if e.Err == nil {
		return ""
	}
	return e.Err.Error()
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "bookctl",
		Short:         "Submit and track textbook generation jobs",
		Long:          "bookctl submits source PDFs to the textbook generation backend and follows each job to completion: live progress, pipeline logs, and resuming failed runs from their last checkpoint. The tracked job survives restarts; run 'bookctl watch' to pick it up again.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.Init(cmd.Root()); err != nil {
				return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("config: %w", err)}
			}
			return nil
		},
	}

	// Persistent flags available to all subcommands
	pf := root.PersistentFlags()
	pf.String("server", "http://localhost:8000/api/v1", "Backend base URL")
	pf.Duration("timeout", 0, "Timeout for one-shot requests (default 15s)")
	pf.String("state-dir", "", "Directory for the session store and TUI logs")
	pf.String("log-level", "info", "Log level: debug, info, warn, error")
	pf.Bool("no-ui", false, "Disable TUI; use plain textual output")
	pf.String("transport", "sse", "Progress stream transport: sse, websocket")

	// Subcommands
	root.AddCommand(newSubmitCmd())
	root.AddCommand(newWatchCmd())
	root.AddCommand(newResumeCmd())
	root.AddCommand(newStatusCmd())
	root.AddCommand(newListCmd())
	root.AddCommand(newLogsCmd())
	root.AddCommand(newDownloadCmd())
	root.AddCommand(newResetCmd())
	root.AddCommand(newDoctorCmd())
	root.AddCommand(newCompletionCmd())

	return root
}

// Execute runs the CLI with the provided context.
func Execute(ctx context.Context) error {
	root := newRootCmd()
	return root.ExecuteContext(ctx)
}
