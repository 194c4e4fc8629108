// Package stream maintains push subscriptions to a job's progress feed and
// re-establishes them when the connection drops.
package stream

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/phuslu/log"

	"bookctl/internal/api"
	"bookctl/internal/logging"
	"bookctl/internal/model"
)

// Policy bounds reconnection. MaxRetries consecutive failed attempts (with
// exponential backoff between InitialBackoff and MaxBackoff) make up one
// window; an exhausted window reports a disconnect and the client waits
// Cooldown before starting a fresh one.
type Policy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	Cooldown       time.Duration
}

// DefaultPolicy is used when no policy is given.
var DefaultPolicy = Policy{
	MaxRetries:     5,
	InitialBackoff: 500 * time.Millisecond,
	MaxBackoff:     10 * time.Second,
	Cooldown:       30 * time.Second,
}

func (p Policy) newBackOff() backoff.BackOff {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.InitialBackoff
	eb.MaxInterval = p.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithMaxRetries(eb, uint64(max(p.MaxRetries, 0)))
	b.Reset()
	return b
}

// Client subscribes to progress feeds through a Transport.
type Client struct {
	transport Transport
	policy    Policy
	logger    *log.Logger
	onState   func(jobID string, s State)
}

// Option configures a Client.
type Option func(*Client)

// WithPolicy overrides DefaultPolicy.
func WithPolicy(p Policy) Option {
	return func(c *Client) {
		c.policy = p
	}
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// WithStateHook registers a function called on every connection state change.
// It runs on the subscription goroutine and must not block.
func WithStateHook(fn func(jobID string, s State)) Option {
	return func(c *Client) {
		c.onState = fn
	}
}

// New returns a Client reading from t.
func New(t Transport, opts ...Option) *Client {
	c := &Client{transport: t, policy: DefaultPolicy}
	for _, o := range opts {
		o(c)
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c
}

// Subscribe starts delivering snapshots for jobID to onSnapshot in arrival
// order. onDisconnected fires each time a reconnect window is exhausted; the
// client keeps trying afterwards. Delivery ends by itself after a terminal
// snapshot. The returned function unsubscribes; once it returns neither
// callback runs again. It is safe to call more than once and from any
// goroutine other than inside a callback.
func (c *Client) Subscribe(ctx context.Context, jobID string, onSnapshot func(model.ProgressSnapshot), onDisconnected func()) (unsubscribe func()) {
	ctx, cancel := context.WithCancel(ctx)
	sub := &subscription{
		jobID:          jobID,
		onSnapshot:     onSnapshot,
		onDisconnected: onDisconnected,
		cancel:         cancel,
	}
	go c.run(ctx, sub)
	return sub.unsubscribe
}

func (c *Client) setState(jobID string, s State) {
	c.logger.Debug().Str("job_id", jobID).Str("state", s.String()).Msg("progress stream")
	if c.onState != nil {
		c.onState(jobID, s)
	}
}

func (c *Client) run(ctx context.Context, sub *subscription) {
	defer c.setState(sub.jobID, StateClosed)
	bo := c.policy.newBackOff()
	for {
		c.setState(sub.jobID, StateConnecting)
		received, finished, err := c.attempt(ctx, sub)
		if finished || ctx.Err() != nil {
			return
		}
		if received {
			bo.Reset()
		}

		wait := bo.NextBackOff()
		if errors.Is(err, api.ErrNotFound) {
			wait = backoff.Stop
		}
		if wait == backoff.Stop {
			c.logger.Warn().Str("job_id", sub.jobID).Err(err).Msg("progress stream unavailable")
			sub.disconnected()
			wait = c.policy.Cooldown
			bo.Reset()
		} else {
			c.logger.Debug().Str("job_id", sub.jobID).Err(err).Dur("retry_in", wait).Msg("progress stream dropped")
		}

		t := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			t.Stop()
			return
		case <-t.C:
		}
	}
}

// attempt runs one connection. received reports whether at least one snapshot
// came through; finished reports that the subscription is over.
func (c *Client) attempt(ctx context.Context, sub *subscription) (received, finished bool, err error) {
	feed, err := c.transport.Open(ctx, sub.jobID)
	if err != nil {
		return false, false, err
	}
	defer feed.Close()
	c.setState(sub.jobID, StateOpen)

	for {
		snap, err := feed.Next()
		if err != nil {
			return received, false, err
		}
		received = true
		if snap.JobID == "" {
			snap.JobID = sub.jobID
		}
		if !sub.deliver(snap) {
			return received, true, nil
		}
		if !snap.Status.Active() {
			return received, true, nil
		}
	}
}

type subscription struct {
	jobID          string
	onSnapshot     func(model.ProgressSnapshot)
	onDisconnected func()
	cancel         context.CancelFunc

	mu     sync.Mutex
	closed bool
	once   sync.Once
}

func (s *subscription) deliver(snap model.ProgressSnapshot) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	if s.onSnapshot != nil {
		s.onSnapshot(snap)
	}
	return true
}

func (s *subscription) disconnected() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed && s.onDisconnected != nil {
		s.onDisconnected()
	}
}

func (s *subscription) unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	})
}
