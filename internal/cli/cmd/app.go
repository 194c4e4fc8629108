package cmd

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"time"

	"github.com/phuslu/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"bookctl/internal/api"
	"bookctl/internal/config"
	"bookctl/internal/dirs"
	"bookctl/internal/lifecycle"
	"bookctl/internal/logging"
	"bookctl/internal/model"
	"bookctl/internal/progress"
	"bookctl/internal/session"
	"bookctl/internal/stream"
	"bookctl/internal/ui"
	"bookctl/internal/util"
)

// app holds the wiring shared by subcommands.
type app struct {
	cfg    config.Config
	logger *log.Logger
	client *api.Client
	store  *session.Store
	tui    bool
}

// newApp resolves configuration and builds the backend client. With
// interactive set and a terminal attached, logs go to a file under the state
// dir so they don't tear the TUI.
func newApp(interactive bool) (*app, error) {
	cfg := config.Load(viper.GetViper())
	a := &app{cfg: cfg, tui: interactive && !cfg.NoUI && isTerminal()}

	if a.tui {
		a.logger = logging.NewFile(cfg.LogLevel, dirs.LogFile(cfg.StateDir))
	} else {
		a.logger = logging.New(cfg.LogLevel, os.Stderr)
	}

	server, err := util.NormalizeServerURL(cfg.Server)
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	a.cfg.Server = server
	client, err := api.New(server, api.WithLogger(a.logger))
	if err != nil {
		return nil, &ExitError{Code: ExitCLIError, Err: err}
	}
	a.client = client
	return a, nil
}

// openStore opens the durable session store. If the badger directory cannot
// be opened (typically another bookctl holds its lock) the session lives in
// memory for this process only.
func (a *app) openStore() *session.Store {
	if a.store != nil {
		return a.store
	}
	dir := dirs.SessionDir(a.cfg.StateDir)
	backend, err := session.OpenBadger(dir)
	if err != nil {
		a.logger.Warn().Str("dir", dir).Err(err).Msg("session store unavailable, tracking in memory only")
		a.store = session.New(session.NewMemoryBackend(), session.WithLogger(a.logger))
		return a.store
	}
	a.store = session.New(backend, session.WithLogger(a.logger))
	return a.store
}

func (a *app) Close() {
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("closing session store")
		}
	}
}

func (a *app) transport() stream.Transport {
	if a.cfg.Stream.Transport == config.TransportWebSocket {
		return stream.NewWebSocketTransport(a.client, a.logger)
	}
	return stream.NewSSETransport(a.client, a.logger)
}

// reporter returns the TUI reporter or a plain printer on stdout.
func (a *app) reporter(cmd *cobra.Command) progress.Reporter {
	if a.tui {
		return ui.NewReporter()
	}
	return progress.NewPrinter(cmd.OutOrStdout())
}

func (a *app) controller(rep progress.Reporter) *lifecycle.Controller {
	streams := stream.New(a.transport(),
		stream.WithPolicy(stream.Policy{
			MaxRetries:     a.cfg.Stream.MaxRetries,
			InitialBackoff: a.cfg.Stream.InitialBackoff,
			MaxBackoff:     a.cfg.Stream.MaxBackoff,
			Cooldown:       a.cfg.Stream.Cooldown,
		}),
		stream.WithLogger(a.logger),
	)
	return lifecycle.New(a.client, streams, a.client, a.openStore(),
		lifecycle.WithRequestTimeout(a.cfg.RequestTimeout),
		lifecycle.WithPollInterval(a.cfg.PollInterval),
		lifecycle.WithLogger(a.logger),
		lifecycle.WithReporter(rep),
	)
}

// requestContext bounds one-shot calls made directly by commands.
func (a *app) requestContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, a.cfg.RequestTimeout)
}

// watch follows the tracked job until it settles or the user quits, then
// maps the outcome to an exit code. Quitting keeps the session.
func (a *app) watch(ctx context.Context, ctrl *lifecycle.Controller, rep progress.Reporter) error {
	defer ctrl.Close()

	var v progress.View
	switch r := rep.(type) {
	case *ui.Reporter:
		var err error
		v, err = ui.Run(ctx, ctrl, r)
		if err != nil {
			return &ExitError{Code: ExitCLIError, Err: err}
		}
	case *progress.Printer:
		if cur := ctrl.View(); cur.Stage.Terminal() || cur.Stage == model.StageIdle {
			v = cur
			break
		}
		select {
		case v = <-r.Finished():
		case <-ctx.Done():
			v = ctrl.View()
		}
	default:
		<-ctx.Done()
		v = ctrl.View()
	}
	if v.Stage.Terminal() {
		a.awaitDrain(ctx, ctrl)
	}
	return outcome(v)
}

// awaitDrain gives the final log pass of a finished job up to one request
// timeout to deliver trailing lines before the feeds are torn down.
func (a *app) awaitDrain(ctx context.Context, ctrl *lifecycle.Controller) {
	t := time.NewTimer(a.cfg.RequestTimeout)
	defer t.Stop()
	select {
	case <-ctrl.Drained():
	case <-t.C:
		a.logger.Warn().Dur("timeout", a.cfg.RequestTimeout).Msg("gave up waiting for trailing log lines")
	case <-ctx.Done():
	}
}

// outcome maps a final view to an exit status.
func outcome(v progress.View) error {
	switch v.Stage {
	case model.StageFailed:
		err := errors.New("job failed")
		if v.Error != nil {
			err = fmt.Errorf("job %s failed: %s: %s", v.JobID, v.Error.Code, v.Error.Message)
			if v.Error.Recoverable {
				err = fmt.Errorf("%w (resume with: bookctl resume --phase %d)", err, v.Error.SuggestedPhase())
			}
			if v.Error.Code == model.CodeNetwork {
				return &ExitError{Code: ExitUnreachable, Err: err}
			}
		}
		return &ExitError{Code: ExitJobFailed, Err: err}
	default:
		return nil
	}
}

// exitFor classifies an error returned by a backend call.
func exitFor(err error) error {
	if err == nil {
		return nil
	}
	var ee *ExitError
	if errors.As(err, &ee) {
		return ee
	}
	var ve *model.ValidationError
	if errors.As(err, &ve) {
		return &ExitError{Code: ExitValidation, Err: err}
	}
	if unreachable(err) {
		return &ExitError{Code: ExitUnreachable, Err: err}
	}
	return &ExitError{Code: ExitCLIError, Err: err}
}

// unreachable reports transport-level failures: no response was received.
func unreachable(err error) bool {
	var se *api.StatusError
	if errors.As(err, &se) {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	if errors.As(err, &ne) {
		return true
	}
	var ue *url.Error
	return errors.As(err, &ue)
}

// trackedJob returns args[0] or the job recorded in the session store.
func (a *app) trackedJob(args []string) (string, error) {
	if len(args) > 0 && args[0] != "" {
		return args[0], nil
	}
	rec, ok := a.openStore().Load()
	if !ok || rec.JobID == "" {
		return "", &ExitError{Code: ExitCLIError, Err: errors.New("no job id given and no tracked job; pass a job id or run 'bookctl submit'")}
	}
	return rec.JobID, nil
}

func isTerminal() bool {
	return term.IsTerminal(int(os.Stdout.Fd()))
}
