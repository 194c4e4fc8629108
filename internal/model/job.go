package model

import (
	"strings"
	"time"
)

// Stage is the client-visible lifecycle phase of a tracked job.
type Stage string

const (
	StageIdle       Stage = "idle"
	StageSubmitting Stage = "submitting"
	StageRecovering Stage = "recovering"
	StageTracking   Stage = "tracking"
	StageDone       Stage = "done"
	StageFailed     Stage = "failed"
)

// ParseStage maps a persisted stage string to a Stage.
// Unknown values (written by a newer or older client) load as StageIdle.
func ParseStage(s string) Stage {
	switch Stage(strings.ToLower(strings.TrimSpace(s))) {
	case StageSubmitting:
		return StageSubmitting
	case StageRecovering:
		return StageRecovering
	case StageTracking:
		return StageTracking
	case StageDone:
		return StageDone
	case StageFailed:
		return StageFailed
	default:
		return StageIdle
	}
}

// Terminal reports whether no snapshot can move the job out of this stage.
func (s Stage) Terminal() bool {
	return s == StageDone || s == StageFailed
}

// Status is the backend-reported job status.
type Status string

const (
	StatusPending    Status = "pending"
	StatusQueued     Status = "queued"
	StatusProcessing Status = "processing"
	StatusRunning    Status = "running"
	StatusCompleted  Status = "completed"
	StatusFailed     Status = "failed"
	StatusUnknown    Status = "unknown"
)

// ParseStatus normalises a wire status. Anything unrecognised is StatusUnknown,
// which is treated as still active.
func ParseStatus(s string) Status {
	switch Status(strings.ToLower(strings.TrimSpace(s))) {
	case StatusPending:
		return StatusPending
	case StatusQueued:
		return StatusQueued
	case StatusProcessing:
		return StatusProcessing
	case StatusRunning:
		return StatusRunning
	case StatusCompleted:
		return StatusCompleted
	case StatusFailed:
		return StatusFailed
	default:
		return StatusUnknown
	}
}

// Active reports whether the job is still expected to make progress.
func (s Status) Active() bool {
	return s != StatusCompleted && s != StatusFailed
}

// ProgressSnapshot is one authoritative description of job progress.
// A newer snapshot replaces the previous one wholesale.
type ProgressSnapshot struct {
	JobID       string
	Status      Status
	Percentage  float64 // 0..100
	Phase       string
	Task        string
	Message     string
	ETAPhase    *time.Duration // optional, non-negative
	ETATotal    *time.Duration // optional, non-negative
	Recoverable bool
	ResumePhase int        // 0 when the backend did not suggest one
	Error       *ErrorInfo // only set when Status is failed

	Seq       uint64    // 0 when the transport carries no sequence number
	UpdatedAt time.Time // zero when the backend did not stamp the record
}

// Job is the client-side record of the one tracked job.
type Job struct {
	ID       string
	Stage    Stage
	Snapshot *ProgressSnapshot
	Error    *ErrorInfo
}
