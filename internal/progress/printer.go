package progress

import (
	"fmt"
	"io"
	"math"
	"strings"
	"sync"

	"bookctl/internal/model"
)

// Printer is a Reporter for non-interactive output. It prints stage changes,
// each new phase, every 10% of progress, connection changes and log lines.
type Printer struct {
	mu   sync.Mutex
	w    io.Writer
	last View
	seen bool
	// bucket is the last printed 10% step
	bucket int

	finished chan View
}

// NewPrinter returns a Printer writing to w.
func NewPrinter(w io.Writer) *Printer {
	return &Printer{w: w, bucket: -1, finished: make(chan View, 1)}
}

// Finished delivers the first view in which the job stopped making progress
// (done, failed or reset to idle after tracking started).
func (p *Printer) Finished() <-chan View {
	return p.finished
}

func (p *Printer) Update(v View) {
	p.mu.Lock()
	defer p.mu.Unlock()

	prev, seen := p.last, p.seen
	p.last, p.seen = v, true

	if !seen || prev.Stage != v.Stage || prev.JobID != v.JobID {
		p.printStage(v)
	}
	if v.Snapshot != nil && (prev.Snapshot == nil || prev.Snapshot.Phase != v.Snapshot.Phase) && v.Snapshot.Phase != "" {
		fmt.Fprintf(p.w, "phase %s: %s\n", v.Snapshot.Phase, v.Snapshot.Task)
	}
	if b := int(math.Floor(v.Percentage / 10)); b > p.bucket && v.Stage == model.StageTracking {
		p.bucket = b
		fmt.Fprintf(p.w, "progress %.1f%%\n", v.Percentage)
	}
	if v.ConnectionLost && !prev.ConnectionLost {
		fmt.Fprintln(p.w, "progress stream lost, reconnecting…")
	} else if !v.ConnectionLost && prev.ConnectionLost && v.Stage == model.StageTracking {
		fmt.Fprintln(p.w, "progress stream restored")
	}

	if v.Stage.Terminal() || (v.Stage == model.StageIdle && seen && prev.Stage != model.StageIdle) {
		select {
		case p.finished <- v:
		default:
		}
	}
}

func (p *Printer) printStage(v View) {
	switch v.Stage {
	case model.StageFailed:
		if v.Error == nil {
			fmt.Fprintf(p.w, "job %s failed\n", v.JobID)
			return
		}
		fmt.Fprintf(p.w, "job %s failed: %s: %s\n", v.JobID, v.Error.Code, v.Error.Message)
		if v.Error.Recoverable {
			fmt.Fprintf(p.w, "resumable from phase %d\n", v.Error.SuggestedPhase())
		}
	case model.StageDone:
		fmt.Fprintf(p.w, "job %s completed\n", v.JobID)
	case model.StageTracking:
		p.bucket = -1
		fmt.Fprintf(p.w, "tracking job %s\n", v.JobID)
	default:
		if v.JobID != "" {
			fmt.Fprintf(p.w, "job %s: %s\n", v.JobID, v.Stage)
		} else {
			fmt.Fprintf(p.w, "%s\n", v.Stage)
		}
	}
}

func (p *Printer) Log(e model.LogEntry) {
	p.mu.Lock()
	defer p.mu.Unlock()
	var b strings.Builder
	if !e.Timestamp.IsZero() {
		b.WriteString(e.Timestamp.Local().Format("15:04:05 "))
	}
	fmt.Fprintf(&b, "%-5s ", e.Level)
	if e.Source != "" {
		b.WriteString("[" + e.Source + "] ")
	}
	b.WriteString(e.Message)
	fmt.Fprintln(p.w, b.String())
}
