package cmd

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"bookctl/internal/lifecycle"
	"bookctl/internal/model"
	"bookctl/internal/progress"
)

func newWatchCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "watch [job-id]",
		Short:         "Follow the tracked job, or start tracking the given one",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(true)
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.reporter(cmd)
			ctrl := a.controller(rep)

			if len(args) == 1 {
				if err := ctrl.Start(args[0]); err != nil {
					ctrl.Close()
					return &ExitError{Code: ExitCLIError, Err: err}
				}
				return a.watch(cmd.Context(), ctrl, rep)
			}

			if stage := ctrl.RecoverAfterReload(cmd.Context()); stage == model.StageIdle {
				ctrl.Close()
				return &ExitError{Code: ExitCLIError, Err: errors.New("no tracked job; pass a job id or run 'bookctl submit'")}
			}
			return a.watch(cmd.Context(), ctrl, rep)
		},
	}
}

func newResumeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "resume",
		Short:         "Resume the tracked job from a checkpoint phase after a recoverable failure",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			phase, _ := cmd.Flags().GetInt("phase")
			if phase < 0 || phase > 4 {
				return &ExitError{Code: ExitValidation, Err: fmt.Errorf("invalid --phase: %d (valid: 1-4, 0 for the suggested phase)", phase)}
			}
			detach, _ := cmd.Flags().GetBool("detach")

			a, err := newApp(!detach)
			if err != nil {
				return err
			}
			defer a.Close()

			rep := a.reporter(cmd)
			ctrl := a.controller(rep)

			stage := ctrl.RecoverAfterReload(cmd.Context())
			if stage == model.StageIdle {
				ctrl.Close()
				return &ExitError{Code: ExitCLIError, Err: errors.New("no tracked job to resume")}
			}
			if err := ctrl.Resume(cmd.Context(), phase); err != nil {
				v := ctrl.View()
				ctrl.Close()
				if errors.Is(err, lifecycle.ErrNotResumable) {
					return &ExitError{Code: ExitCLIError, Err: fmt.Errorf("job %s is %s: %w", v.JobID, v.Stage, err)}
				}
				return exitFor(err)
			}
			if detach {
				ctrl.Close()
				return nil
			}
			return a.watch(cmd.Context(), ctrl, rep)
		},
	}
	cmd.Flags().Int("phase", 0, "Phase to resume from (1-4); 0 uses the phase suggested by the backend")
	cmd.Flags().Bool("detach", false, "Resume and exit without following the job")
	return cmd
}

func newResetCmd() *cobra.Command {
	return &cobra.Command{
		Use:           "reset",
		Short:         "Forget the tracked job and clear the session",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := newApp(false)
			if err != nil {
				return err
			}
			defer a.Close()

			rec, ok := a.openStore().Load()
			ctrl := a.controller(progress.Nop{})
			ctrl.Reset()
			ctrl.Close()
			if ok && rec.JobID != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "Stopped tracking %s\n", rec.JobID)
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), "No tracked job")
			}
			return nil
		},
	}
}
