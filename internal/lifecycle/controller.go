// Package lifecycle reconciles the status fetch, the progress stream and the
// log feed of one tracked job into a single persisted state machine.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/phuslu/log"

	"bookctl/internal/api"
	"bookctl/internal/logging"
	"bookctl/internal/logtail"
	"bookctl/internal/model"
	"bookctl/internal/progress"
	"bookctl/internal/session"
)

var (
	// ErrNotResumable is returned by Resume outside a recoverable failure.
	ErrNotResumable = errors.New("job is not in a resumable state")
	// ErrNoJob is returned when an operation needs a job id and has none.
	ErrNoJob = errors.New("no job")
	// ErrSuperseded is returned when Reset or Start replaced the job while a
	// request for it was in flight. The late result is discarded.
	ErrSuperseded = errors.New("job was replaced while the request was in flight")
)

// API is the request/response part of the backend.
type API interface {
	Submit(ctx context.Context, r model.SubmitRequest) (string, error)
	GetJob(ctx context.Context, id string) (model.ProgressSnapshot, error)
	Resume(ctx context.Context, id string, phase int) error
}

// Streamer is the push progress feed.
type Streamer interface {
	Subscribe(ctx context.Context, jobID string, onSnapshot func(model.ProgressSnapshot), onDisconnected func()) (unsubscribe func())
}

// Store persists the tracked job across restarts.
type Store interface {
	Save(jobID string, stage model.Stage)
	Load() (session.Record, bool)
	Clear()
}

var closedChan = func() chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}()

const (
	DefaultRequestTimeout = 15 * time.Second
	DefaultPollInterval   = logtail.DefaultInterval
)

// Controller owns the Stage of the tracked job. All transitions happen under
// one mutex; asynchronous callbacks carry the generation they were created
// for and are dropped once the generation moved on.
type Controller struct {
	api      API
	streams  Streamer
	poller   logtail.Poller
	store    Store
	timeout  time.Duration
	interval time.Duration
	logCap   int
	logger   *log.Logger
	reporter progress.Reporter

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	gen      uint64
	stage    model.Stage
	jobID    string
	snap     *model.ProgressSnapshot
	pct      float64
	err      *model.ErrorInfo
	connLost bool
	logs     *progress.Ring
	lastSeq  uint64
	lastAt   time.Time
	resuming bool

	unsub  func()
	tailer *logtail.Tailer
}

// Option configures a Controller.
type Option func(*Controller)

// WithRequestTimeout bounds submit, resume and the recovery fetch.
func WithRequestTimeout(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.timeout = d
		}
	}
}

// WithPollInterval sets the log tail interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.interval = d
		}
	}
}

// WithLogCapacity bounds the in-memory log buffer.
func WithLogCapacity(n int) Option {
	return func(c *Controller) {
		c.logCap = n
	}
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		c.logger = l
	}
}

// WithReporter registers the presentation observer.
func WithReporter(r progress.Reporter) Option {
	return func(c *Controller) {
		c.reporter = r
	}
}

// New returns an idle controller.
func New(a API, streams Streamer, poller logtail.Poller, store Store, opts ...Option) *Controller {
	c := &Controller{
		api:      a,
		streams:  streams,
		poller:   poller,
		store:    store,
		timeout:  DefaultRequestTimeout,
		interval: DefaultPollInterval,
		logCap:   progress.DefaultLogCapacity,
		stage:    model.StageIdle,
	}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	if c.reporter == nil {
		c.reporter = progress.Nop{}
	}
	c.logs = progress.NewRing(c.logCap)
	c.ctx, c.cancel = context.WithCancel(context.Background())
	return c
}

// View returns a copy of the current view-model.
func (c *Controller) View() progress.View {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.viewLocked()
}

// Stage returns the current stage.
func (c *Controller) Stage() model.Stage {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stage
}

// Submit validates r, uploads it and starts tracking the new job.
func (c *Controller) Submit(ctx context.Context, r model.SubmitRequest) (string, error) {
	if err := r.Validate(); err != nil {
		return "", err
	}

	c.mu.Lock()
	gen, stop := c.switchLocked("", model.StageSubmitting)
	c.store.Save("", model.StageSubmitting)
	c.publishLocked()
	c.mu.Unlock()
	stop()

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	id, err := c.api.Submit(rctx, r)
	cancel()

	c.mu.Lock()
	if c.gen != gen {
		c.mu.Unlock()
		return id, ErrSuperseded
	}
	if err != nil {
		c.stage = model.StageIdle
		c.store.Clear()
		c.publishLocked()
		c.mu.Unlock()
		return "", err
	}
	if id == "" {
		c.stage = model.StageIdle
		c.store.Clear()
		c.publishLocked()
		c.mu.Unlock()
		return "", fmt.Errorf("submit: %w", ErrNoJob)
	}
	c.logger.Info().Str("job_id", id).Msg("job submitted")
	gen, _ = c.switchLocked(id, model.StageTracking)
	c.store.Save(id, model.StageTracking)
	c.attachLocked(gen, id, "", false)
	c.publishLocked()
	c.mu.Unlock()
	return id, nil
}

// Start begins tracking jobID, discarding everything known about the previous
// job. Feeds of the previous job are stopped before Start returns.
func (c *Controller) Start(jobID string) error {
	if jobID == "" {
		return ErrNoJob
	}
	c.mu.Lock()
	gen, stop := c.switchLocked(jobID, model.StageTracking)
	c.store.Save(jobID, model.StageTracking)
	c.publishLocked()
	c.mu.Unlock()

	stop()
	c.attach(gen, jobID, "", false)
	return nil
}

// OnSnapshot applies a snapshot for the tracked job.
func (c *Controller) OnSnapshot(s model.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.applyLocked(s)
}

// OnStreamDisconnected marks the push feed as lost. The stage is untouched.
func (c *Controller) OnStreamDisconnected() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.disconnectedLocked()
}

// Resume asks the backend to restart a recoverable failure from phase
// (0 means the suggested checkpoint). On failure the job stays failed with a
// RESUME_ERROR that can itself be resumed.
func (c *Controller) Resume(ctx context.Context, phase int) error {
	c.mu.Lock()
	if c.stage != model.StageFailed || c.err == nil || !c.err.Recoverable || c.resuming {
		c.mu.Unlock()
		return ErrNotResumable
	}
	if phase <= 0 {
		phase = c.err.SuggestedPhase()
	}
	jobID, gen, orig := c.jobID, c.gen, c.err.Clone()
	c.resuming = true
	c.mu.Unlock()

	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	err := c.api.Resume(rctx, jobID, phase)
	cancel()

	c.mu.Lock()
	c.resuming = false
	if c.gen != gen {
		c.mu.Unlock()
		return ErrSuperseded
	}
	if err != nil {
		c.err = &model.ErrorInfo{
			Code:        model.CodeResume,
			Message:     fmt.Sprintf("resume from phase %d failed: %v", phase, err),
			Phase:       orig.Phase,
			Recoverable: true,
			ResumePhase: orig.ResumePhase,
		}
		c.publishLocked()
		c.mu.Unlock()
		c.logger.Warn().Str("job_id", jobID).Int("phase", phase).Err(err).Msg("resume failed")
		return fmt.Errorf("resume %s: %w", jobID, err)
	}

	cursor := ""
	if c.tailer != nil {
		cursor = c.tailer.Cursor()
	}
	stop := c.detachLocked()
	c.gen++
	gen = c.gen
	c.err = nil
	c.connLost = false
	// the resumed run may restart its sequence numbers
	c.lastSeq, c.lastAt = 0, time.Time{}
	c.setStageLocked(model.StageTracking)
	c.publishLocked()
	c.mu.Unlock()
	c.logger.Info().Str("job_id", jobID).Int("phase", phase).Msg("job resumed")

	stop()
	c.attach(gen, jobID, cursor, false)
	return nil
}

// Reset stops all feeds, forgets the job and clears the persisted session.
func (c *Controller) Reset() {
	c.mu.Lock()
	_, stop := c.switchLocked("", model.StageIdle)
	c.store.Clear()
	c.publishLocked()
	c.mu.Unlock()
	stop()
}

// RecoverAfterReload restores the persisted job, if any, and reconciles it
// against one status fetch. The log cursor is not persisted, so tailing
// restarts from the beginning.
func (c *Controller) RecoverAfterReload(ctx context.Context) model.Stage {
	rec, ok := c.store.Load()
	if !ok || rec.JobID == "" || rec.Stage == model.StageIdle || rec.Stage == model.StageSubmitting {
		c.mu.Lock()
		_, stop := c.switchLocked("", model.StageIdle)
		if ok {
			c.store.Clear()
		}
		c.publishLocked()
		c.mu.Unlock()
		stop()
		return model.StageIdle
	}

	c.mu.Lock()
	gen, stop := c.switchLocked(rec.JobID, model.StageRecovering)
	c.publishLocked()
	c.mu.Unlock()
	stop()

	c.logger.Info().Str("job_id", rec.JobID).Str("stage", string(rec.Stage)).Msg("recovering job")
	rctx, cancel := context.WithTimeout(ctx, c.timeout)
	snap, err := c.api.GetJob(rctx, rec.JobID)
	cancel()

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return c.stage
	}
	if err != nil {
		code := model.CodeNetwork
		if errors.Is(err, api.ErrNotFound) {
			code = model.CodeNotFound
		}
		c.err = &model.ErrorInfo{Code: code, Message: err.Error(), Recoverable: false}
		c.setStageLocked(model.StageFailed)
		c.publishLocked()
		c.logger.Warn().Str("job_id", rec.JobID).Str("code", code).Err(err).Msg("recovery fetch failed")
		return c.stage
	}

	snap.JobID = rec.JobID
	c.applyLocked(snap)
	switch c.stage {
	case model.StageTracking:
		c.attachLocked(gen, rec.JobID, "", false)
	case model.StageDone, model.StageFailed:
		c.attachLocked(gen, rec.JobID, "", true)
	}
	return c.stage
}

// Drained is closed once the final log pass of a finished job has run.
// When no such pass is pending it is already closed.
func (c *Controller) Drained() <-chan struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tailer == nil || !c.stage.Terminal() {
		return closedChan
	}
	return c.tailer.Done()
}

// Close stops all feeds without touching the persisted session, so the job
// can be picked up again by RecoverAfterReload.
func (c *Controller) Close() {
	c.mu.Lock()
	stop := c.detachLocked()
	c.gen++
	c.mu.Unlock()
	stop()
	c.cancel()
}

// switchLocked detaches the current feeds, moves to a new generation and
// clears all per-job state. The returned function stops the detached feeds
// and must be called without c.mu held.
func (c *Controller) switchLocked(jobID string, stage model.Stage) (uint64, func()) {
	stop := c.detachLocked()
	c.gen++
	c.jobID = jobID
	c.stage = stage
	c.snap = nil
	c.pct = 0
	c.err = nil
	c.connLost = false
	c.logs.Reset()
	c.lastSeq, c.lastAt = 0, time.Time{}
	return c.gen, stop
}

func (c *Controller) detachLocked() func() {
	unsub, t := c.unsub, c.tailer
	c.unsub, c.tailer = nil, nil
	return func() {
		if unsub != nil {
			unsub()
		}
		if t != nil {
			t.Stop()
		}
	}
}

func (c *Controller) attach(gen uint64, jobID, cursor string, drainOnly bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.attachLocked(gen, jobID, cursor, drainOnly)
}

// attachLocked subscribes to the stream (unless drainOnly) and starts the
// log tailer. With drainOnly the tailer runs one draining pass and stops.
func (c *Controller) attachLocked(gen uint64, jobID, cursor string, drainOnly bool) {
	if !drainOnly {
		c.unsub = c.streams.Subscribe(c.ctx, jobID,
			func(s model.ProgressSnapshot) { c.streamSnapshot(gen, s) },
			func() { c.streamDisconnected(gen) },
		)
	}
	t := logtail.New(c.poller, jobID, cursor,
		func(p api.LogPage) bool { return c.appendLogs(gen, p) },
		logtail.WithInterval(c.interval),
		logtail.WithTimeout(c.timeout),
		logtail.WithLogger(c.logger),
	)
	if drainOnly {
		t.Finish()
	}
	t.Start(c.ctx)
	c.tailer = t
}

func (c *Controller) streamSnapshot(gen uint64, s model.ProgressSnapshot) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.applyLocked(s)
}

func (c *Controller) streamDisconnected(gen uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return
	}
	c.disconnectedLocked()
}

func (c *Controller) disconnectedLocked() {
	if c.stage != model.StageTracking || c.connLost {
		return
	}
	c.connLost = true
	c.logger.Warn().Str("job_id", c.jobID).Msg("progress stream lost")
	c.publishLocked()
}

func (c *Controller) appendLogs(gen uint64, p api.LogPage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gen != gen {
		return false
	}
	c.logs.Append(p.Entries...)
	for _, e := range p.Entries {
		c.reporter.Log(e)
	}
	return true
}

// applyLocked is the single transition function for snapshots. Snapshots are
// accepted only while tracking or recovering, only for the tracked job, and
// never when older than the last accepted one.
func (c *Controller) applyLocked(s model.ProgressSnapshot) {
	if c.stage != model.StageTracking && c.stage != model.StageRecovering {
		return
	}
	if s.JobID != "" && s.JobID != c.jobID {
		c.logger.Debug().Str("job_id", c.jobID).Str("other", s.JobID).Msg("ignoring snapshot for another job")
		return
	}
	if c.staleLocked(s) {
		c.logger.Debug().Str("job_id", c.jobID).Uint64("seq", s.Seq).Msg("ignoring stale snapshot")
		return
	}
	if s.Seq > c.lastSeq {
		c.lastSeq = s.Seq
	}
	if s.UpdatedAt.After(c.lastAt) {
		c.lastAt = s.UpdatedAt
	}

	s.JobID = c.jobID
	s.Percentage = min(max(s.Percentage, 0), 100)
	c.snap = &s
	c.pct = max(c.pct, s.Percentage)
	c.connLost = false

	switch s.Status {
	case model.StatusCompleted:
		c.err = nil
		c.setStageLocked(model.StageDone)
		c.finishFeedsLocked()
		c.logger.Info().Str("job_id", c.jobID).Msg("job completed")
	case model.StatusFailed:
		c.err = failureInfo(s)
		c.setStageLocked(model.StageFailed)
		c.finishFeedsLocked()
		c.logger.Warn().Str("job_id", c.jobID).Str("code", c.err.Code).Bool("recoverable", c.err.Recoverable).Msg("job failed")
	default:
		c.setStageLocked(model.StageTracking)
	}
	c.publishLocked()
}

func (c *Controller) staleLocked(s model.ProgressSnapshot) bool {
	if s.Seq != 0 && c.lastSeq != 0 && s.Seq <= c.lastSeq {
		return true
	}
	return !s.UpdatedAt.IsZero() && !c.lastAt.IsZero() && s.UpdatedAt.Before(c.lastAt)
}

// failureInfo returns the snapshot's error or synthesises one.
func failureInfo(s model.ProgressSnapshot) *model.ErrorInfo {
	if s.Error != nil {
		return s.Error.Clone()
	}
	msg := s.Message
	if msg == "" {
		msg = "job failed"
	}
	return &model.ErrorInfo{
		Code:        model.CodeUnknown,
		Message:     msg,
		Phase:       s.Phase,
		Recoverable: s.Recoverable,
		ResumePhase: s.ResumePhase,
	}
}

// finishFeedsLocked ends the stream subscription and lets the tailer drain.
// Unsubscribing happens on its own goroutine: this may run inside the
// stream's delivery callback.
func (c *Controller) finishFeedsLocked() {
	if unsub := c.unsub; unsub != nil {
		c.unsub = nil
		go unsub()
	}
	if c.tailer != nil {
		c.tailer.Finish()
	}
}

func (c *Controller) setStageLocked(s model.Stage) {
	if c.stage == s {
		return
	}
	c.stage = s
	if s != model.StageRecovering {
		c.store.Save(c.jobID, s)
	}
}

func (c *Controller) viewLocked() progress.View {
	v := progress.View{
		JobID:          c.jobID,
		Stage:          c.stage,
		Percentage:     c.pct,
		Error:          c.err.Clone(),
		ConnectionLost: c.connLost,
		Logs:           c.logs.Entries(),
	}
	if c.snap != nil {
		s := *c.snap
		s.Error = s.Error.Clone()
		v.Snapshot = &s
	}
	return v
}

func (c *Controller) publishLocked() {
	c.reporter.Update(c.viewLocked())
}
