package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookctl/internal/model"
)

func newTestClient(t *testing.T, h http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	c, err := New(srv.URL + "/api/v1")
	require.NoError(t, err)
	return c
}

func TestNew_RejectsBadURL(t *testing.T) {
	_, err := New("ftp://example.com")
	assert.Error(t, err)
	_, err = New("://nope")
	assert.Error(t, err)
}

func TestGetJob_Processing(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/job-42", r.URL.Path)
		assert.NotEmpty(t, r.Header.Get("X-Request-ID"))
		_, _ = io.WriteString(w, `{
			"job_id": "job-42",
			"status": "processing",
			"progress_percentage": 37.5,
			"current_phase": "Phase 2: Expanding Content",
			"current_task": "Chunk 3/10",
			"message": "Chunk 3/10",
			"eta_phase_seconds": 120,
			"eta_total_seconds": null,
			"is_recoverable": false,
			"resume_phase": null
		}`)
	}))

	s, err := c.GetJob(context.Background(), "job-42")
	require.NoError(t, err)
	assert.Equal(t, model.StatusProcessing, s.Status)
	assert.Equal(t, 37.5, s.Percentage)
	assert.Equal(t, "Phase 2: Expanding Content", s.Phase)
	require.NotNil(t, s.ETAPhase)
	assert.Equal(t, 2*time.Minute, *s.ETAPhase)
	assert.Nil(t, s.ETATotal)
	assert.Nil(t, s.Error)
	assert.Zero(t, s.ResumePhase)
}

func TestGetJob_NotFound(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = io.WriteString(w, `{"detail":"Job job-7 not found"}`)
	}))

	_, err := c.GetJob(context.Background(), "job-7")
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrNotFound))
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, "Job job-7 not found", se.Detail)
}

func TestDecodeSnapshot_FailedShapes(t *testing.T) {
	tests := []struct {
		name            string
		body            string
		wantCode        string
		wantRecoverable bool
		wantResume      int
		wantErrNil      bool
	}{
		{
			name:            "full error payload",
			body:            `{"status":"failed","is_recoverable":true,"error":{"code":"RENDER_TIMEOUT","resume_phase":3}}`,
			wantCode:        "RENDER_TIMEOUT",
			wantRecoverable: true,
			wantResume:      3,
		},
		{
			name:            "resume phase as string",
			body:            `{"status":"failed","error":{"code":"JOB_FAILED","resume_phase":"4","is_recoverable":false}}`,
			wantCode:        "JOB_FAILED",
			wantRecoverable: false,
			wantResume:      4,
		},
		{
			name:            "error without code",
			body:            `{"status":"failed","message":"boom","current_phase":"Phase 3","error":{}}`,
			wantCode:        model.CodeUnknown,
			wantRecoverable: true,
		},
		{
			name:       "failed without error object",
			body:       `{"status":"failed","progress_percentage":"55"}`,
			wantErrNil: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := DecodeSnapshot([]byte(tt.body))
			require.NoError(t, err)
			assert.Equal(t, model.StatusFailed, s.Status)
			if tt.wantErrNil {
				assert.Nil(t, s.Error)
				assert.True(t, s.Recoverable)
				assert.Equal(t, 55.0, s.Percentage)
				return
			}
			require.NotNil(t, s.Error)
			assert.Equal(t, tt.wantCode, s.Error.Code)
			assert.Equal(t, tt.wantRecoverable, s.Error.Recoverable)
			assert.Equal(t, tt.wantResume, s.Error.ResumePhase)
			assert.Equal(t, tt.wantResume, s.ResumePhase)
		})
	}
}

func TestDecodeSnapshot_ErrorDroppedUnlessFailed(t *testing.T) {
	s, err := DecodeSnapshot([]byte(`{"status":"running","progress_percentage":140,"error":{"code":"X"}}`))
	require.NoError(t, err)
	assert.Nil(t, s.Error)
	assert.Equal(t, 100.0, s.Percentage)
}

func TestDecodeSnapshot_SequenceAndTimestamp(t *testing.T) {
	s, err := DecodeSnapshot([]byte(`{"status":"processing","seq":12,"updated_at":1700000000.5,"current_phase":3}`))
	require.NoError(t, err)
	assert.Equal(t, uint64(12), s.Seq)
	assert.Equal(t, int64(1700000000), s.UpdatedAt.Unix())
	assert.Equal(t, "3", s.Phase)
}

func TestLogs_CursorAndShapes(t *testing.T) {
	var gotCursor string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs/job-1/logs", r.URL.Path)
		gotCursor = r.URL.Query().Get("cursor")
		_, _ = io.WriteString(w, `{
			"logs": [
				{"timestamp":"2025-01-02T03:04:05Z","level":"WARNING","source":"Phase 2","message":"slow"},
				"bare line",
				null
			],
			"next_cursor": "7",
			"has_more": true
		}`)
	}))

	page, err := c.Logs(context.Background(), "job-1", "5", DefaultLogPageSize)
	require.NoError(t, err)
	assert.Equal(t, "5", gotCursor)
	assert.Equal(t, "7", page.NextCursor)
	assert.True(t, page.HasMore)
	require.Len(t, page.Entries, 2)
	assert.Equal(t, model.LevelWarn, page.Entries[0].Level)
	assert.Equal(t, "Phase 2", page.Entries[0].Source)
	assert.Equal(t, 2025, page.Entries[0].Timestamp.Year())
	assert.Equal(t, "bare line", page.Entries[1].Message)
}

func TestLogs_NumericCursorAndEmptyPage(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.URL.Query().Get("cursor"))
		_, _ = io.WriteString(w, `{"logs": [], "next_cursor": 0}`)
	}))

	page, err := c.Logs(context.Background(), "job-1", "", 0)
	require.NoError(t, err)
	assert.Empty(t, page.Entries)
	assert.Equal(t, "0", page.NextCursor)
}

func TestResume_SendsPhase(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/jobs/job-9/resume", r.URL.Path)
		var body map[string]int
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, 3, body["phase"])
		w.WriteHeader(http.StatusAccepted)
	}))

	require.NoError(t, c.Resume(context.Background(), "job-9", 3))
}

func TestResume_Failure(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "busy", http.StatusServiceUnavailable)
	}))

	err := c.Resume(context.Background(), "job-9", 2)
	var se *StatusError
	require.True(t, errors.As(err, &se))
	assert.Equal(t, http.StatusServiceUnavailable, se.Code)
	assert.False(t, errors.Is(err, ErrNotFound))
}

func TestSubmit_Multipart(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "source.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF-1.4 test"), 0o644))

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/jobs", r.URL.Path)
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "Physics", r.FormValue("book_subject"))
		assert.Equal(t, "120", r.FormValue("target_pages"))
		assert.Equal(t, "true", r.FormValue("skip_images"))
		f, hdr, err := r.FormFile("pdf_file")
		require.NoError(t, err)
		defer f.Close()
		assert.Equal(t, "source.pdf", hdr.Filename)
		data, _ := io.ReadAll(f)
		assert.True(t, bytes.HasPrefix(data, []byte("%PDF")))
		w.WriteHeader(http.StatusAccepted)
		_, _ = io.WriteString(w, `{"job_id":"job-42","status":"processing"}`)
	}))

	req := model.DefaultSubmitRequest(pdf)
	req.Subject = "Physics"
	req.TargetPages = 120
	req.SkipImages = true

	id, err := c.Submit(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "job-42", id)
}

func TestSubmit_BackendValidation(t *testing.T) {
	pdf := filepath.Join(t.TempDir(), "source.pdf")
	require.NoError(t, os.WriteFile(pdf, []byte("%PDF"), 0o644))

	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"detail":[{"loc":["body","target_pages"],"msg":"value is not a valid integer"}]}`)
	}))

	_, err := c.Submit(context.Background(), model.DefaultSubmitRequest(pdf))
	var ve *model.ValidationError
	require.True(t, errors.As(err, &ve))
	assert.Contains(t, ve.Error(), "value is not a valid integer")
}

func TestListJobs_SkipsMalformed(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = io.WriteString(w, `{"jobs":[
			{"job_id":"a","status":"completed","progress_percentage":100,"current_phase":4},
			{"job_id":"b","status":"failed","is_recoverable":true,"resume_phase":2},
			{"job_id":"c","status":["bad"]}
		]}`)
	}))

	jobs, err := c.ListJobs(context.Background())
	require.NoError(t, err)
	require.Len(t, jobs, 2)
	assert.Equal(t, "a", jobs[0].JobID)
	assert.Equal(t, 2, jobs[1].ResumePhase)
}

func TestDownload(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/v1/jobs/pending/download" {
			w.WriteHeader(http.StatusConflict)
			_, _ = io.WriteString(w, `{"detail":"Job is not completed (status: processing)"}`)
			return
		}
		_, _ = io.WriteString(w, "%PDF-1.7 final")
	}))

	var buf bytes.Buffer
	n, err := c.Download(context.Background(), "done", &buf)
	require.NoError(t, err)
	assert.Equal(t, int64(len("%PDF-1.7 final")), n)

	_, err = c.Download(context.Background(), "pending", &buf)
	assert.True(t, errors.Is(err, ErrConflict))
}
