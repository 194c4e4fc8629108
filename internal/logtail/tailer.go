// Package logtail polls a job's append-only log feed on a fixed interval.
package logtail

import (
	"context"
	"sync"
	"time"

	"github.com/phuslu/log"

	"bookctl/internal/api"
	"bookctl/internal/logging"
)

// Poller fetches one page of log entries after cursor.
type Poller interface {
	Logs(ctx context.Context, jobID, cursor string, limit int) (api.LogPage, error)
}

// Sink receives each page. Returning false means the job is no longer
// tracked and the tailer stops without scheduling another tick.
type Sink func(page api.LogPage) bool

const (
	DefaultInterval = 3 * time.Second
	DefaultTimeout  = 10 * time.Second
	// DefaultDrainPages bounds how many has_more pages the final tick follows.
	DefaultDrainPages = 20
)

// Tailer is a self-rescheduling poll loop. The next tick is armed only after
// the previous one returned, so polls never overlap.
type Tailer struct {
	poller     Poller
	jobID      string
	sink       Sink
	interval   time.Duration
	timeout    time.Duration
	limit      int
	drainPages int
	logger     *log.Logger

	mu     sync.Mutex
	cursor string
	// seen counts entries already delivered for the current cursor, for
	// backends that return entries without advancing next_cursor.
	seen int

	cancel     context.CancelFunc
	finish     chan struct{}
	finishOnce sync.Once
	done       chan struct{}
}

// Option configures a Tailer.
type Option func(*Tailer)

// WithInterval sets the delay between the end of one poll and the next.
func WithInterval(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.interval = d
		}
	}
}

// WithTimeout bounds each poll.
func WithTimeout(d time.Duration) Option {
	return func(t *Tailer) {
		if d > 0 {
			t.timeout = d
		}
	}
}

// WithPageSize sets the limit sent with each poll.
func WithPageSize(n int) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.limit = n
		}
	}
}

// WithDrainPages bounds how many pages the final pass follows.
func WithDrainPages(n int) Option {
	return func(t *Tailer) {
		if n > 0 {
			t.drainPages = n
		}
	}
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(t *Tailer) {
		t.logger = l
	}
}

// New returns a stopped tailer for jobID starting at cursor ("" = from the beginning).
func New(p Poller, jobID, cursor string, sink Sink, opts ...Option) *Tailer {
	t := &Tailer{
		poller:     p,
		jobID:      jobID,
		sink:       sink,
		cursor:     cursor,
		interval:   DefaultInterval,
		timeout:    DefaultTimeout,
		limit:      api.DefaultLogPageSize,
		drainPages: DefaultDrainPages,
		finish:     make(chan struct{}),
		done:       make(chan struct{}),
	}
	for _, o := range opts {
		o(t)
	}
	if t.logger == nil {
		t.logger = logging.Discard()
	}
	return t
}

// Start runs the loop in a goroutine. The first tick happens immediately.
func (t *Tailer) Start(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	t.mu.Lock()
	t.cancel = cancel
	t.mu.Unlock()
	go t.loop(ctx)
}

// Finish asks the loop to run one final draining tick and stop. It does not wait.
func (t *Tailer) Finish() {
	t.finishOnce.Do(func() { close(t.finish) })
}

// Stop cancels the loop and waits for it to exit. Safe on a tailer that was never started.
func (t *Tailer) Stop() {
	t.mu.Lock()
	cancel := t.cancel
	t.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-t.done
}

// Done is closed when the loop has exited.
func (t *Tailer) Done() <-chan struct{} {
	return t.done
}

// Cursor returns the last cursor issued by the backend.
func (t *Tailer) Cursor() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.cursor
}

func (t *Tailer) loop(ctx context.Context) {
	defer close(t.done)
	timer := time.NewTimer(0)
	defer timer.Stop()
	for {
		select {
		case <-t.finish:
			t.drain(ctx)
			return
		default:
		}
		select {
		case <-ctx.Done():
			return
		case <-t.finish:
			t.drain(ctx)
			return
		case <-timer.C:
		}
		if !t.tick(ctx) {
			return
		}
		timer.Reset(t.interval)
	}
}

func (t *Tailer) drain(ctx context.Context) {
	for i := 0; i < t.drainPages; i++ {
		page, ok := t.poll(ctx)
		if !ok {
			return
		}
		if !t.apply(page) || !page.HasMore || page.NextCursor == "" {
			return
		}
	}
	t.logger.Debug().Str("job_id", t.jobID).Int("pages", t.drainPages).Msg("log drain bound reached")
}

// tick polls one page. Transient errors are logged and skipped.
func (t *Tailer) tick(ctx context.Context) bool {
	page, ok := t.poll(ctx)
	if !ok {
		return ctx.Err() == nil
	}
	return t.apply(page)
}

func (t *Tailer) poll(ctx context.Context) (api.LogPage, bool) {
	cursor := t.Cursor()
	pctx, cancel := context.WithTimeout(ctx, t.timeout)
	defer cancel()
	page, err := t.poller.Logs(pctx, t.jobID, cursor, t.limit)
	if err != nil {
		if ctx.Err() == nil {
			t.logger.Warn().Str("job_id", t.jobID).Str("cursor", cursor).Err(err).Msg("log poll failed")
		}
		return api.LogPage{}, false
	}
	return page, true
}

// apply drops entries already delivered at an unchanged cursor, hands the
// rest to the sink and advances the cursor if the backend issued one.
func (t *Tailer) apply(page api.LogPage) bool {
	t.mu.Lock()
	skip := t.seen
	t.mu.Unlock()

	fresh := page
	if skip > 0 {
		if skip >= len(page.Entries) {
			fresh.Entries = nil
		} else {
			fresh.Entries = page.Entries[skip:]
		}
	}
	if !t.sink(fresh) {
		return false
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if page.NextCursor != "" && page.NextCursor != t.cursor {
		t.cursor = page.NextCursor
		t.seen = 0
	} else {
		t.seen = max(t.seen, len(page.Entries))
	}
	return true
}
