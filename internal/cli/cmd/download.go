package cmd

import (
	"context"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"bookctl/internal/util"
	"bookctl/internal/util/format"
)

func newDownloadCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "download [job-id]",
		Short:         "Download the generated book of a completed job",
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
			out, _ := cmd.Flags().GetString("output")
			if out == "" {
				out = util.SanitizeFilename(fmt.Sprintf("book-%s.pdf", id))
			}

			n, err := downloadTo(cmd.Context(), a, id, out)
			if err != nil {
				return exitFor(err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s (%s)\n", out, format.HumanizeBytes(n))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "Output file (default book-<job-id>.pdf)")
	return cmd
}

func downloadTo(ctx context.Context, a *app, id, path string) (int64, error) {
	return util.WriteAtomic(path, func(w io.Writer) (int64, error) {
		return a.client.Download(ctx, id, w)
	})
}
