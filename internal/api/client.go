// Package api is the HTTP client for the document-generation backend.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/phuslu/log"

	"bookctl/internal/logging"
	"bookctl/internal/model"
)

// DefaultLogPageSize matches the backend's default page size.
const DefaultLogPageSize = 50

var (
	// ErrNotFound is returned when the backend does not know the job.
	ErrNotFound = errors.New("job not found")
	// ErrConflict is returned when the job is in the wrong state for the request.
	ErrConflict = errors.New("job state conflict")
)

// StatusError is a non-2xx response.
type StatusError struct {
	Method string
	Path   string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Code, http.StatusText(e.Code))
}

// Is lets callers match StatusErrors against ErrNotFound / ErrConflict.
func (e *StatusError) Is(target error) bool {
	switch target {
	case ErrNotFound:
		return e.Code == http.StatusNotFound
	case ErrConflict:
		return e.Code == http.StatusConflict
	}
	return false
}

// LogPage is one page of the append-only log feed.
type LogPage struct {
	Entries    []model.LogEntry
	NextCursor string
	HasMore    bool
}

// Client talks to the backend contract rooted at a base URL
// (for example http://localhost:8000/api/v1).
type Client struct {
	base   *url.URL
	http   *http.Client
	logger *log.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient injects the HTTP client used for request/response calls.
func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) {
		c.http = h
	}
}

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Client) {
		c.logger = l
	}
}

// New constructs a Client. Per-call deadlines come from the caller's context;
// the default HTTP client carries no global timeout so streams can stay open.
func New(baseURL string, opts ...Option) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid server URL %q: %w", baseURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("invalid server URL %q: scheme must be http or https", baseURL)
	}
	c := &Client{base: u}
	for _, o := range opts {
		o(c)
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	if c.logger == nil {
		c.logger = logging.Discard()
	}
	return c, nil
}

// URL resolves a path below the base URL.
func (c *Client) URL(path string) *url.URL {
	u := *c.base
	u.Path = strings.TrimRight(c.base.Path, "/") + "/" + strings.TrimLeft(path, "/")
	return &u
}

// HTTPClient exposes the underlying client for streaming transports.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// NewRequest builds a request with the standard headers.
func (c *Client) NewRequest(ctx context.Context, method, path string, query url.Values, body io.Reader) (*http.Request, error) {
	u := c.URL(path)
	if len(query) > 0 {
		u.RawQuery = query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, method, u.String(), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "bookctl")
	req.Header.Set("X-Request-ID", uuid.NewString())
	return req, nil
}

// JobPath returns the path of a job resource, e.g. JobPath("42", "logs").
func JobPath(id string, rest ...string) string {
	p := "jobs/" + id
	for _, r := range rest {
		p += "/" + r
	}
	return p
}

// do sends req and returns the response on 2xx; otherwise it drains the body
// into a *StatusError.
func (c *Client) do(req *http.Request) (*http.Response, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.logger.Debug().Str("method", req.Method).Str("url", req.URL.String()).Err(err).Msg("request failed")
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL.Path, err)
	}
	c.logger.Debug().
		Str("method", req.Method).
		Str("url", req.URL.String()).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Str("request_id", req.Header.Get("X-Request-ID")).
		Msg("request")
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}
	defer resp.Body.Close()
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	return nil, &StatusError{
		Method: req.Method,
		Path:   req.URL.Path,
		Code:   resp.StatusCode,
		Detail: errorDetail(body),
	}
}

// errorDetail extracts {"detail": ...} (string or list of {msg}) from an error body.
func errorDetail(body []byte) string {
	var d struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(body, &d); err != nil || len(d.Detail) == 0 {
		return strings.TrimSpace(string(body))
	}
	var s string
	if json.Unmarshal(d.Detail, &s) == nil {
		return s
	}
	var items []struct {
		Msg string `json:"msg"`
	}
	if json.Unmarshal(d.Detail, &items) == nil {
		msgs := make([]string, 0, len(items))
		for _, it := range items {
			if it.Msg != "" {
				msgs = append(msgs, it.Msg)
			}
		}
		return strings.Join(msgs, "; ")
	}
	return string(d.Detail)
}

func (c *Client) getJSON(ctx context.Context, path string, query url.Values, out any) error {
	req, err := c.NewRequest(ctx, http.MethodGet, path, query, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// Submit uploads the source PDF and configuration, returning the new job id.
// Backend rejections of the payload come back as *model.ValidationError.
func (c *Client) Submit(ctx context.Context, r model.SubmitRequest) (string, error) {
	f, err := os.Open(r.File)
	if err != nil {
		return "", &model.ValidationError{Problems: []string{err.Error()}}
	}
	defer f.Close()

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("pdf_file", filepath.Base(r.File))
	if err != nil {
		return "", err
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("read %s: %w", r.File, err)
	}
	fields := map[string]string{
		"book_subject":     r.Subject,
		"book_persona":     r.Persona,
		"academic_level":   r.AcademicLevel,
		"target_pages":     strconv.Itoa(r.TargetPages),
		"max_new_diagrams": strconv.Itoa(r.MaxNewDiagrams),
		"skip_images":      strconv.FormatBool(r.SkipImages),
		"provider":         r.Provider,
		"ollama_url":       r.OllamaURL,
	}
	for k, v := range fields {
		if err := mw.WriteField(k, v); err != nil {
			return "", err
		}
	}
	if err := mw.Close(); err != nil {
		return "", err
	}

	req, err := c.NewRequest(ctx, http.MethodPost, "jobs", nil, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	resp, err := c.do(req)
	if err != nil {
		var se *StatusError
		if errors.As(err, &se) && (se.Code == http.StatusBadRequest || se.Code == http.StatusUnprocessableEntity) {
			return "", &model.ValidationError{Problems: []string{se.Detail}}
		}
		return "", err
	}
	defer resp.Body.Close()

	var out wireSubmitResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("decode submit response: %w", err)
	}
	if out.JobID == "" {
		return "", errors.New("submit response carried no job_id")
	}
	return out.JobID, nil
}

// GetJob fetches the one-shot status record for a job.
func (c *Client) GetJob(ctx context.Context, id string) (model.ProgressSnapshot, error) {
	var raw json.RawMessage
	if err := c.getJSON(ctx, JobPath(id), nil, &raw); err != nil {
		return model.ProgressSnapshot{}, err
	}
	s, err := DecodeSnapshot(raw)
	if err != nil {
		return model.ProgressSnapshot{}, fmt.Errorf("decode job %s: %w", id, err)
	}
	if s.JobID == "" {
		s.JobID = id
	}
	return s, nil
}

// ListJobs returns every job the backend knows about.
func (c *Client) ListJobs(ctx context.Context) ([]model.ProgressSnapshot, error) {
	var w wireJobList
	if err := c.getJSON(ctx, "jobs", nil, &w); err != nil {
		return nil, err
	}
	out := make([]model.ProgressSnapshot, 0, len(w.Jobs))
	for _, raw := range w.Jobs {
		s, err := DecodeSnapshot(raw)
		if err != nil {
			c.logger.Warn().Err(err).Msg("skipping malformed job record")
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// Logs fetches log entries after cursor. An empty cursor means from the beginning.
// An empty page does not imply the job ended.
func (c *Client) Logs(ctx context.Context, id, cursor string, limit int) (LogPage, error) {
	q := url.Values{}
	if cursor != "" {
		q.Set("cursor", cursor)
	}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	var w wireLogPage
	if err := c.getJSON(ctx, JobPath(id, "logs"), q, &w); err != nil {
		return LogPage{}, err
	}
	page := LogPage{
		NextCursor: strings.TrimSpace(string(w.NextCursor)),
		HasMore:    w.HasMore,
	}
	for _, raw := range w.Logs {
		if e, ok := decodeLogEntry(raw); ok {
			page.Entries = append(page.Entries, e)
		}
	}
	return page, nil
}

// Resume restarts a failed job from the given checkpoint phase.
func (c *Client) Resume(ctx context.Context, id string, phase int) error {
	body, err := json.Marshal(wireResumeRequest{Phase: phase})
	if err != nil {
		return err
	}
	req, err := c.NewRequest(ctx, http.MethodPost, JobPath(id, "resume"), nil, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	resp, err := c.do(req)
	if err != nil {
		return err
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return resp.Body.Close()
}

// Download streams the finished document into w and returns the byte count.
func (c *Client) Download(ctx context.Context, id string, w io.Writer) (int64, error) {
	req, err := c.NewRequest(ctx, http.MethodGet, JobPath(id, "download"), nil, nil)
	if err != nil {
		return 0, err
	}
	req.Header.Set("Accept", "application/pdf")
	resp, err := c.do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	n, err := io.Copy(w, resp.Body)
	if err != nil {
		return n, fmt.Errorf("download %s: %w", id, err)
	}
	return n, nil
}
