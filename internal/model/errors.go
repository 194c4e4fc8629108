package model

// Error codes synthesised by the client. Backend codes (JOB_FAILED,
// SERVER_INTERRUPTED, RENDER_TIMEOUT, ...) are passed through untouched.
const (
	CodeUnknown  = "UNKNOWN_ERROR"
	CodeResume   = "RESUME_ERROR"
	CodeNotFound = "NOT_FOUND"
	CodeNetwork  = "NETWORK_ERROR"
)

// ErrorInfo describes a pipeline failure. All fields are always populated
// with a usable default so presentation never sees a partial structure.
type ErrorInfo struct {
	Code        string
	Message     string
	Phase       string // phase the failure happened in
	Recoverable bool
	ResumePhase int // checkpoint to resume from; 0 when none
}

// Clone returns a copy, or nil for a nil receiver.
func (e *ErrorInfo) Clone() *ErrorInfo {
	if e == nil {
		return nil
	}
	c := *e
	return &c
}

// SuggestedPhase returns the phase a resume should start from.
func (e *ErrorInfo) SuggestedPhase() int {
	if e == nil || e.ResumePhase <= 0 {
		return 1
	}
	return e.ResumePhase
}
