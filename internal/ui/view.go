package ui

import (
	"fmt"
	"strings"

	"bookctl/internal/model"
	"bookctl/internal/util/format"
)

// visibleLogLines is how many log lines are drawn under the job.
const visibleLogLines = 12

func (m Model) View() string {
	if m.cleared {
		return m.styles.Faint.Render("Session cleared.") + "\n"
	}
	parts := []string{m.viewHeader(), m.viewJob()}
	if e := m.viewError(); e != "" {
		parts = append(parts, e)
	}
	if l := m.viewLogs(); l != "" {
		parts = append(parts, l)
	}
	parts = append(parts, m.viewHelp())
	return strings.Join(parts, "\n\n") + "\n"
}

func (m Model) viewHeader() string {
	title := m.styles.Title.Render("bookctl · textbook generation")
	sub := m.styles.Subtitle.Render("job " + m.view.JobID)
	return title + "\n" + sub
}

func (m Model) viewJob() string {
	v := m.view
	stageStyle := m.styles.JobInfo
	switch v.Stage {
	case model.StageSubmitting, model.StageRecovering:
		stageStyle = m.styles.StageWait
	case model.StageTracking:
		stageStyle = m.styles.StageRun
	case model.StageDone:
		stageStyle = m.styles.Success
	case model.StageFailed:
		stageStyle = m.styles.Error
	}

	stage := stageStyle.Render(string(v.Stage))
	conn := m.styles.Success.Render("● live")
	if v.ConnectionLost {
		conn = m.styles.Warning.Render("○ reconnecting")
	}
	if v.Stage != model.StageTracking {
		conn = ""
	}
	line1 := strings.TrimSpace(fmt.Sprintf("%s  %s", stage, conn))

	var line2 string
	switch {
	case v.Snapshot != nil || v.Percentage > 0:
		line2 = fmt.Sprintf("%s %s", m.bar.ViewAs(v.Percentage/100.0), format.Percent(v.Percentage))
	case v.Stage == model.StageFailed:
		line2 = m.styles.Error.Render("✗ failed")
	default:
		line2 = m.styles.Spinner.Render(m.spinner.View()) + " " + m.styles.Faint.Render("waiting for progress")
	}

	lines := []string{line1, line2}
	if s := v.Snapshot; s != nil {
		info := s.Task
		if s.Phase != "" {
			info = fmt.Sprintf("Phase %s · %s", s.Phase, s.Task)
		}
		if info != "" {
			lines = append(lines, m.styles.JobInfo.Render(truncate(info, 72)))
		}
		if s.ETAPhase != nil || s.ETATotal != nil {
			lines = append(lines, m.styles.Faint.Render(fmt.Sprintf("ETA phase %s • total %s", format.ETA(s.ETAPhase), format.ETA(s.ETATotal))))
		}
	}
	if m.status != "" {
		lines = append(lines, m.styles.Warning.Render(m.status))
	}
	return m.styles.Box.Render(strings.Join(lines, "\n"))
}

func (m Model) viewError() string {
	e := m.view.Error
	if m.view.Stage != model.StageFailed || e == nil {
		return ""
	}
	var b strings.Builder
	b.WriteString(m.styles.Error.Render(e.Code))
	if e.Phase != "" {
		b.WriteString(m.styles.Faint.Render(fmt.Sprintf(" (phase %s)", e.Phase)))
	}
	b.WriteString("\n")
	b.WriteString(e.Message)
	if e.Recoverable {
		phase := m.resumePhase()
		b.WriteString("\n")
		b.WriteString(m.styles.Warning.Render(fmt.Sprintf("Resumable from phase %d", phase)))
		if m.resuming {
			b.WriteString(" " + m.styles.Spinner.Render(m.spinner.View()) + " resuming…")
		}
	}
	return m.styles.ErrorBox.Render(b.String())
}

func (m Model) viewLogs() string {
	if len(m.logs) == 0 {
		return ""
	}
	logs := m.logs
	if len(logs) > visibleLogLines {
		logs = logs[len(logs)-visibleLogLines:]
	}
	var b strings.Builder
	b.WriteString(m.styles.Header.Render("Logs"))
	for _, e := range logs {
		b.WriteString("\n")
		b.WriteString(m.viewLogLine(e))
	}
	return b.String()
}

func (m Model) viewLogLine(e model.LogEntry) string {
	style := m.styles.JobInfo
	switch e.Level {
	case model.LevelError:
		style = m.styles.Error
	case model.LevelWarn:
		style = m.styles.Warning
	case model.LevelDebug:
		style = m.styles.Faint
	}
	var prefix string
	if !e.Timestamp.IsZero() {
		prefix = m.styles.Faint.Render(e.Timestamp.Local().Format("15:04:05")) + " "
	}
	level := fmt.Sprintf("%-5s", e.Level)
	if e.Source != "" {
		level += " [" + e.Source + "]"
	}
	width := 100
	if m.width > 20 {
		width = m.width - 2
	}
	return prefix + style.Render(truncate(level+" "+e.Message, width))
}

func (m Model) viewHelp() string {
	keys := []string{m.styles.Key.Render("q") + " quit (keeps session)"}
	if m.view.Resumable() {
		keys = append(keys, m.styles.Key.Render("r")+" resume", m.styles.Key.Render("1-4")+" pick phase")
	}
	if m.view.JobID != "" {
		keys = append(keys, m.styles.Key.Render("x")+" cancel & start over")
	}
	return m.styles.Faint.Render(strings.Join(keys, " • "))
}

func truncate(s string, n int) string {
	if n <= 0 || len([]rune(s)) <= n {
		return s
	}
	rs := []rune(s)
	return string(rs[:n-1]) + "…"
}
