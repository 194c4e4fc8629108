package api

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"bookctl/internal/model"
)

// flexFloat accepts a JSON number, a numeric string or null.
type flexFloat struct {
	V     float64
	Valid bool
}

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*f = flexFloat{}
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			*f = flexFloat{}
			return nil
		}
		*f = flexFloat{V: v, Valid: true}
		return nil
	}
	var v float64
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	*f = flexFloat{V: v, Valid: true}
	return nil
}

// flexInt accepts a JSON number, a numeric string or null.
type flexInt struct {
	V     int64
	Valid bool
}

func (i *flexInt) UnmarshalJSON(b []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(b); err != nil {
		return err
	}
	*i = flexInt{V: int64(f.V), Valid: f.Valid}
	return nil
}

// flexString accepts a JSON string, a number or null.
type flexString string

func (s *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || string(b) == "null" {
		*s = ""
		return nil
	}
	if b[0] == '"' {
		var v string
		if err := json.Unmarshal(b, &v); err != nil {
			return err
		}
		*s = flexString(v)
		return nil
	}
	*s = flexString(string(b))
	return nil
}

type wireError struct {
	Code          string     `json:"code"`
	PhaseFailedIn flexString `json:"phase_failed_in"`
	Message       string     `json:"message"`
	IsRecoverable *bool      `json:"is_recoverable"`
	ResumePhase   flexInt    `json:"resume_phase"`
}

type wireSnapshot struct {
	JobID         string     `json:"job_id"`
	Status        string     `json:"status"`
	Progress      flexFloat  `json:"progress_percentage"`
	CurrentPhase  flexString `json:"current_phase"`
	CurrentTask   string     `json:"current_task"`
	Message       string     `json:"message"`
	ETAPhase      flexFloat  `json:"eta_phase_seconds"`
	ETATotal      flexFloat  `json:"eta_total_seconds"`
	IsRecoverable *bool      `json:"is_recoverable"`
	ResumePhase   flexInt    `json:"resume_phase"`
	Error         *wireError `json:"error"`
	Seq           flexInt    `json:"seq"`
	UpdatedAt     flexFloat  `json:"updated_at"`
}

// DecodeSnapshot parses one snapshot-shaped JSON record (status endpoint,
// list entry or push event) and normalises it. Missing or malformed optional
// fields are defaulted rather than propagated.
func DecodeSnapshot(data []byte) (model.ProgressSnapshot, error) {
	var w wireSnapshot
	if err := json.Unmarshal(data, &w); err != nil {
		return model.ProgressSnapshot{}, err
	}
	return w.normalize(), nil
}

func (w wireSnapshot) normalize() model.ProgressSnapshot {
	status := model.ParseStatus(w.Status)
	s := model.ProgressSnapshot{
		JobID:      w.JobID,
		Status:     status,
		Percentage: clampPercent(w.Progress),
		Phase:      string(w.CurrentPhase),
		Task:       w.CurrentTask,
		Message:    w.Message,
		ETAPhase:   seconds(w.ETAPhase),
		ETATotal:   seconds(w.ETATotal),
	}
	if s.Task == "" {
		s.Task = w.Message
	}
	if w.ResumePhase.Valid && w.ResumePhase.V > 0 {
		s.ResumePhase = int(w.ResumePhase.V)
	}
	if w.Seq.Valid && w.Seq.V > 0 {
		s.Seq = uint64(w.Seq.V)
	}
	if w.UpdatedAt.Valid && w.UpdatedAt.V > 0 {
		sec, frac := math.Modf(w.UpdatedAt.V)
		s.UpdatedAt = time.Unix(int64(sec), int64(frac*1e9)).UTC()
	}

	// A failed record that says nothing about recoverability is assumed
	// resumable; anything else defaults to false.
	switch {
	case w.IsRecoverable != nil:
		s.Recoverable = *w.IsRecoverable
	case status == model.StatusFailed:
		s.Recoverable = true
	}

	if status == model.StatusFailed && w.Error != nil {
		s.Error = w.Error.normalize(s)
		if s.ResumePhase == 0 {
			s.ResumePhase = s.Error.ResumePhase
		}
	}
	return s
}

func (e wireError) normalize(s model.ProgressSnapshot) *model.ErrorInfo {
	info := &model.ErrorInfo{
		Code:        strings.TrimSpace(e.Code),
		Message:     e.Message,
		Phase:       string(e.PhaseFailedIn),
		Recoverable: s.Recoverable,
		ResumePhase: s.ResumePhase,
	}
	if info.Code == "" {
		info.Code = model.CodeUnknown
	}
	if info.Message == "" {
		info.Message = s.Message
	}
	if info.Phase == "" {
		info.Phase = s.Phase
	}
	if e.IsRecoverable != nil {
		info.Recoverable = *e.IsRecoverable
	}
	if e.ResumePhase.Valid && e.ResumePhase.V > 0 {
		info.ResumePhase = int(e.ResumePhase.V)
	}
	return info
}

func clampPercent(f flexFloat) float64 {
	if !f.Valid || math.IsNaN(f.V) || f.V < 0 {
		return 0
	}
	if f.V > 100 {
		return 100
	}
	return f.V
}

func seconds(f flexFloat) *time.Duration {
	if !f.Valid || math.IsNaN(f.V) || f.V < 0 {
		return nil
	}
	d := time.Duration(f.V * float64(time.Second))
	return &d
}

type wireLogEntry struct {
	Timestamp string `json:"timestamp"`
	Level     string `json:"level"`
	Source    string `json:"source"`
	Message   string `json:"message"`
}

type wireLogPage struct {
	Logs       []json.RawMessage `json:"logs"`
	NextCursor flexString        `json:"next_cursor"`
	HasMore    bool              `json:"has_more"`
}

// decodeLogEntry accepts either a structured entry or a bare string line.
func decodeLogEntry(raw json.RawMessage) (model.LogEntry, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || string(raw) == "null" {
		return model.LogEntry{}, false
	}
	if raw[0] == '"' {
		var line string
		if err := json.Unmarshal(raw, &line); err != nil {
			return model.LogEntry{}, false
		}
		return model.LogEntry{Level: model.LevelUnknown, Message: line}, true
	}
	var w wireLogEntry
	if err := json.Unmarshal(raw, &w); err != nil {
		return model.LogEntry{}, false
	}
	e := model.LogEntry{
		Level:    model.ParseLogLevel(w.Level),
		RawLevel: w.Level,
		Source:   w.Source,
		Message:  w.Message,
	}
	if ts, err := time.Parse(time.RFC3339, w.Timestamp); err == nil {
		e.Timestamp = ts
	}
	return e, true
}

type wireJobList struct {
	Jobs []json.RawMessage `json:"jobs"`
}

type wireSubmitResponse struct {
	JobID string `json:"job_id"`
}

type wireResumeRequest struct {
	Phase int `json:"phase"`
}
