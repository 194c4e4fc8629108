package cmd

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"bookctl/internal/model"
	"bookctl/internal/progress"
)

func newSubmitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:           "submit <file.pdf>",
		Short:         "Upload a source PDF and follow the new job",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE:          runSubmit,
	}
	bindSubmitFlags(cmd.Flags())
	return cmd
}

func bindSubmitFlags(fs *pflag.FlagSet) {
	def := model.DefaultSubmitRequest("")
	fs.String("subject", def.Subject, "Book subject")
	fs.String("persona", def.Persona, "Author persona the book is written in")
	fs.String("level", def.AcademicLevel, "Academic level of the audience")
	fs.Int("pages", def.TargetPages, "Target page count (1-2000)")
	fs.Int("diagrams", def.MaxNewDiagrams, "Maximum number of new diagrams (0-500)")
	fs.Bool("skip-images", false, "Skip image generation")
	fs.String("provider", def.Provider, "LLM provider: gemini, openai, anthropic, ollama")
	fs.String("ollama-url", def.OllamaURL, "Ollama base URL (provider=ollama)")
	fs.Bool("detach", false, "Submit and exit without following the job")
}

func assembleSubmitRequest(cmd *cobra.Command, file string) model.SubmitRequest {
	r := model.DefaultSubmitRequest(filepath.Clean(file))
	fs := cmd.Flags()
	r.Subject, _ = fs.GetString("subject")
	r.Persona, _ = fs.GetString("persona")
	r.AcademicLevel, _ = fs.GetString("level")
	r.TargetPages, _ = fs.GetInt("pages")
	r.MaxNewDiagrams, _ = fs.GetInt("diagrams")
	r.SkipImages, _ = fs.GetBool("skip-images")
	r.Provider, _ = fs.GetString("provider")
	r.OllamaURL, _ = fs.GetString("ollama-url")
	return r
}

func runSubmit(cmd *cobra.Command, args []string) error {
	req := assembleSubmitRequest(cmd, args[0])
	if err := req.Validate(); err != nil {
		return &ExitError{Code: ExitValidation, Err: err}
	}
	detach, _ := cmd.Flags().GetBool("detach")

	a, err := newApp(!detach)
	if err != nil {
		return err
	}
	defer a.Close()

	var rep progress.Reporter = progress.Nop{}
	if !detach {
		rep = a.reporter(cmd)
	}
	ctrl := a.controller(rep)

	id, err := ctrl.Submit(cmd.Context(), req)
	if err != nil {
		ctrl.Close()
		return exitFor(fmt.Errorf("submit: %w", err))
	}
	if detach {
		ctrl.Close()
		fmt.Fprintln(cmd.OutOrStdout(), id)
		return nil
	}
	return a.watch(cmd.Context(), ctrl, rep)
}
