package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"bookctl/internal/model"
	"bookctl/internal/util/format"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "status [job-id]",
		Short:         "Print one status snapshot of a job (default: the tracked job)",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			id, err := a.trackedJob(args)
			if err != nil {
				return err
			}
			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			snap, err := a.client.GetJob(ctx, id)
			if err != nil {
				return exitFor(err)
			}

			printSnapshot(cmd.OutOrStdout(), snap, time.Now())
			if snap.Status == model.StatusFailed {
				return &ExitError{Code: ExitJobFailed, Err: fmt.Errorf("job %s failed", id)}
			}
			return nil
		},
	}
}

func printSnapshot(w io.Writer, s model.ProgressSnapshot, now time.Time) {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Job:\t%s\n", s.JobID)
	fmt.Fprintf(tw, "Status:\t%s\n", s.Status)
	fmt.Fprintf(tw, "Progress:\t%s\n", format.Percent(s.Percentage))
	if s.Phase != "" {
		fmt.Fprintf(tw, "Phase:\t%s\n", s.Phase)
	}
	if s.Task != "" {
		fmt.Fprintf(tw, "Task:\t%s\n", s.Task)
	}
	if s.Message != "" {
		fmt.Fprintf(tw, "Message:\t%s\n", s.Message)
	}
	if s.Status.Active() {
		fmt.Fprintf(tw, "ETA (phase):\t%s\n", format.ETA(s.ETAPhase))
		fmt.Fprintf(tw, "ETA (total):\t%s\n", format.ETA(s.ETATotal))
	}
	if !s.UpdatedAt.IsZero() {
		fmt.Fprintf(tw, "Updated:\t%s\n", format.Since(s.UpdatedAt, now))
	}
	if e := s.Error; e != nil {
		fmt.Fprintf(tw, "Error:\t%s: %s\n", e.Code, e.Message)
		if e.Phase != "" {
			fmt.Fprintf(tw, "Failed in:\t%s\n", e.Phase)
		}
		if e.Recoverable {
			fmt.Fprintf(tw, "Resume:\tbookctl resume --phase %d\n", e.SuggestedPhase())
		}
	}
	_ = tw.Flush()
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List the jobs known to the backend",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx, cancel := a.requestContext(cmd.Context())
			defer cancel()
			jobs, err := a.client.ListJobs(ctx)
			if err != nil {
				return exitFor(err)
			}

			tracked := ""
			if rec, ok := a.openStore().Load(); ok {
				tracked = rec.JobID
			}
			printJobs(cmd.OutOrStdout(), jobs, tracked, time.Now())
			return nil
		},
	}
}

func printJobs(w io.Writer, jobs []model.ProgressSnapshot, tracked string, now time.Time) {
	if len(jobs) == 0 {
		fmt.Fprintln(w, "No jobs")
		return
	}
	t := table.New().
		Border(lipgloss.HiddenBorder()).
		BorderHeader(false).
		Headers("", "JOB", "STATUS", "PROGRESS", "PHASE", "UPDATED")
	for _, s := range jobs {
		mark := ""
		if s.JobID == tracked {
			mark = "*"
		}
		updated := "-"
		if !s.UpdatedAt.IsZero() {
			updated = format.Since(s.UpdatedAt, now)
		}
		phase := s.Phase
		if phase == "" {
			phase = "-"
		}
		t.Row(mark, s.JobID, string(s.Status), format.Percent(s.Percentage), phase, updated)
	}
	fmt.Fprintln(w, t.Render())
}
