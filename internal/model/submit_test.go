package model

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writePDF(t *testing.T) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "input.pdf")
	require.NoError(t, os.WriteFile(p, []byte("%PDF-1.4"), 0o644))
	return p
}

func TestSubmitRequest_Validate(t *testing.T) {
	pdf := writePDF(t)

	tests := []struct {
		name    string
		mutate  func(r *SubmitRequest)
		wantErr string
	}{
		{name: "defaults are valid", mutate: func(r *SubmitRequest) {}},
		{name: "missing file", mutate: func(r *SubmitRequest) { r.File = "" }, wantErr: "File is required"},
		{name: "not a pdf", mutate: func(r *SubmitRequest) { r.File = pdf + ".txt" }, wantErr: "File must end with .pdf"},
		{name: "file does not exist", mutate: func(r *SubmitRequest) { r.File = filepath.Join(filepath.Dir(pdf), "nope.pdf") }, wantErr: "no such file"},
		{name: "zero pages", mutate: func(r *SubmitRequest) { r.TargetPages = 0 }, wantErr: "TargetPages must be >= 1"},
		{name: "unknown provider", mutate: func(r *SubmitRequest) { r.Provider = "mystery" }, wantErr: "Provider must be one of"},
		{name: "bad ollama url", mutate: func(r *SubmitRequest) { r.OllamaURL = "not a url" }, wantErr: "OllamaURL must be a URL"},
		{name: "empty ollama url allowed", mutate: func(r *SubmitRequest) { r.OllamaURL = "" }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := DefaultSubmitRequest(pdf)
			tt.mutate(&r)
			err := r.Validate()
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			var ve *ValidationError
			require.True(t, errors.As(err, &ve))
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestParseStage_UnknownIsIdle(t *testing.T) {
	assert.Equal(t, StageTracking, ParseStage("tracking"))
	assert.Equal(t, StageFailed, ParseStage(" FAILED "))
	assert.Equal(t, StageIdle, ParseStage("Progress"))
	assert.Equal(t, StageIdle, ParseStage(""))
}

func TestParseStatus(t *testing.T) {
	assert.Equal(t, StatusProcessing, ParseStatus("processing"))
	assert.True(t, ParseStatus("queued").Active())
	assert.True(t, ParseStatus("something-new").Active())
	assert.False(t, ParseStatus("completed").Active())
	assert.False(t, ParseStatus("FAILED").Active())
}

func TestParseLogLevel(t *testing.T) {
	assert.Equal(t, LevelWarn, ParseLogLevel("warning"))
	assert.Equal(t, LevelDebug, ParseLogLevel("debug"))
	assert.Equal(t, LevelUnknown, ParseLogLevel("TRACE"))
}

func TestErrorInfo_SuggestedPhase(t *testing.T) {
	var nilInfo *ErrorInfo
	assert.Equal(t, 1, nilInfo.SuggestedPhase())
	assert.Equal(t, 1, (&ErrorInfo{}).SuggestedPhase())
	assert.Equal(t, 3, (&ErrorInfo{ResumePhase: 3}).SuggestedPhase())
}
