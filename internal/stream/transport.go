package stream

import (
	"context"

	"bookctl/internal/model"
)

// Transport opens a push feed of snapshots for one job.
type Transport interface {
	Open(ctx context.Context, jobID string) (Feed, error)
}

// Feed is one open connection. Next blocks until a snapshot arrives, the
// connection ends (io.EOF or a transport error) or the Open context is done.
type Feed interface {
	Next() (model.ProgressSnapshot, error)
	Close() error
}

// State is the connection state of a subscription.
type State int

const (
	StateConnecting State = iota
	StateOpen
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosed:
		return "closed"
	default:
		return "unknown state"
	}
}
