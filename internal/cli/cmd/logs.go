package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"

	"bookctl/internal/api"
	"bookctl/internal/logtail"
	"bookctl/internal/progress"
)

// maxLogPages bounds a one-shot dump.
const maxLogPages = 1000

func newLogsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "logs [job-id]",
		Short:         "Print the pipeline log of a job (default: the tracked job)",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			follow, _ := cmd.Flags().GetBool("follow")
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.trackedJob(args)
			if err != nil {
				return err
			}
			out := progress.NewPrinter(cmd.OutOrStdout())
			if follow {
				return followLogs(cmd.Context(), a, id, out)
			}
			return exitFor(dumpLogs(cmd.Context(), a, id, out))
		},
	}
	cmd.Flags().BoolP("follow", "f", false, "Keep polling for new lines until interrupted")
	return cmd
}

func dumpLogs(ctx context.Context, a *app, id string, out progress.Reporter) error {
	cursor := ""
	for i := 0; i < maxLogPages; i++ {
		rctx, cancel := a.requestContext(ctx)
		page, err := a.client.Logs(rctx, id, cursor, api.DefaultLogPageSize)
		cancel()
		if err != nil {
			return err
		}
		for _, e := range page.Entries {
			out.Log(e)
		}
		if !page.HasMore || page.NextCursor == "" || page.NextCursor == cursor {
			return nil
		}
		cursor = page.NextCursor
	}
	return nil
}

func followLogs(ctx context.Context, a *app, id string, out progress.Reporter) error {
	// A missing job would otherwise be retried forever.
	rctx, cancel := a.requestContext(ctx)
	_, err := a.client.GetJob(rctx, id)
	cancel()
	if err != nil {
		if errors.Is(err, api.ErrNotFound) {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
		return exitFor(err)
	}

	t := logtail.New(a.client, id, "",
		func(p api.LogPage) bool {
			for _, e := range p.Entries {
				out.Log(e)
			}
			return true
		},
		logtail.WithInterval(a.cfg.PollInterval),
		logtail.WithTimeout(a.cfg.RequestTimeout),
		logtail.WithLogger(a.logger),
	)
	t.Start(ctx)
	<-ctx.Done()
	t.Stop()
	return nil
}
