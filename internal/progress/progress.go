package progress

import (
	"bookctl/internal/model"
)

// DefaultLogCapacity is how many log lines a View keeps.
const DefaultLogCapacity = 500

// View is the presentation model of the tracked job. Values handed to a
// Reporter are copies; observers may keep them.
type View struct {
	JobID          string
	Stage          model.Stage
	Snapshot       *model.ProgressSnapshot // nil until the first snapshot
	Percentage     float64                 // 0..100, never decreases for a job
	Error          *model.ErrorInfo        // set only in StageFailed
	ConnectionLost bool
	Logs           []model.LogEntry // oldest first
}

// Resumable reports whether the view offers a resume action.
func (v View) Resumable() bool {
	return v.Stage == model.StageFailed && v.Error != nil && v.Error.Recoverable
}

// Reporter is implemented by UI or any observer interested in the tracked job.
// Calls are made while the controller holds its lock: implementations must
// not block and must not call back into the controller synchronously.
type Reporter interface {
	Update(v View)
	Log(e model.LogEntry)
}

// Nop discards everything.
type Nop struct{}

func (Nop) Update(View)        {}
func (Nop) Log(model.LogEntry) {}
