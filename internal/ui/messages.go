package ui

import (
	"bookctl/internal/model"
	"bookctl/internal/progress"
)

type viewMsg struct {
	V progress.View
}

type logMsg struct {
	E model.LogEntry
}

type resumeDoneMsg struct {
	Phase int
	Err   error
}

type resetDoneMsg struct{}

type quitMsg struct{}
