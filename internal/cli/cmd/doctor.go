package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bookctl/internal/dirs"
)

func newDoctorCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "doctor",
		Short:         "Check configuration, the session store and backend reachability",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			w := cmd.OutOrStdout()
			report(w, "Server", a.cfg.Server)
			report(w, "Transport", a.cfg.Stream.Transport)
			report(w, "State dir", a.cfg.StateDir)

			store := a.openStore()
			if store.Durable() {
				report(w, "Session", "durable ("+dirs.SessionDir(a.cfg.StateDir)+")")
			} else {
				report(w, "Session", "memory only (store locked or unavailable)")
			}
			if rec, ok := store.Load(); ok {
				report(w, "Tracked job", fmt.Sprintf("%s (%s)", rec.JobID, rec.Stage))
			} else {
				report(w, "Tracked job", "none")
			}

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			jobs, err := a.client.ListJobs(ctx)
			if err != nil {
				report(w, "Backend", "unreachable")
				return exitFor(fmt.Errorf("backend check: %w", err))
			}
			report(w, "Backend", fmt.Sprintf("ok (%d jobs)", len(jobs)))
			return nil
		},
	}
}

func report(w io.Writer, label, value string) {
	fmt.Fprintf(w, "%-12s %s\n", label+":", value)
}
