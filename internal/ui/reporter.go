package ui

import (
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"bookctl/internal/model"
	"bookctl/internal/progress"
)

// Reporter feeds controller events into the TUI. It never blocks: views are
// coalesced so only the latest one is pending, log lines beyond the buffer
// are dropped.
type Reporter struct {
	views   chan progress.View
	logs    chan model.LogEntry
	dropped atomic.Int64
}

// NewReporter returns a reporter to pass to the controller and then to Run.
func NewReporter() *Reporter {
	return &Reporter{
		views: make(chan progress.View, 1),
		logs:  make(chan model.LogEntry, 256),
	}
}

func (r *Reporter) Update(v progress.View) {
	for {
		select {
		case r.views <- v:
			return
		default:
		}
		select {
		case <-r.views:
		default:
		}
	}
}

func (r *Reporter) Log(e model.LogEntry) {
	select {
	case r.logs <- e:
	default:
		r.dropped.Add(1)
	}
}

// Dropped returns how many log lines did not fit the buffer.
func (r *Reporter) Dropped() int64 {
	return r.dropped.Load()
}

// next waits for the next event. Views win over logs so the header never lags.
func (r *Reporter) next(done <-chan struct{}) tea.Msg {
	select {
	case v := <-r.views:
		return viewMsg{V: v}
	default:
	}
	select {
	case <-done:
		return quitMsg{}
	case v := <-r.views:
		return viewMsg{V: v}
	case e := <-r.logs:
		return logMsg{E: e}
	}
}
