package stream

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/phuslu/log"

	"bookctl/internal/api"
	"bookctl/internal/logging"
	"bookctl/internal/model"
)

// SSETransport reads Server-Sent Events from GET /jobs/{id}/progress.
type SSETransport struct {
	client *api.Client
	logger *log.Logger
}

// NewSSETransport returns a transport using c for requests.
func NewSSETransport(c *api.Client, l *log.Logger) *SSETransport {
	if l == nil {
		l = logging.Discard()
	}
	return &SSETransport{client: c, logger: l}
}

// Open issues the streaming request. Non-200 responses are returned as *api.StatusError.
func (t *SSETransport) Open(ctx context.Context, jobID string) (Feed, error) {
	req, err := t.client.NewRequest(ctx, http.MethodGet, api.JobPath(jobID, "progress"), nil, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := t.client.HTTPClient().Do(req)
	if err != nil {
		return nil, fmt.Errorf("open progress stream: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, &api.StatusError{Method: req.Method, Path: req.URL.Path, Code: resp.StatusCode}
	}

	sc := bufio.NewScanner(resp.Body)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	return &sseFeed{body: resp.Body, sc: sc, jobID: jobID, logger: t.logger}, nil
}

type sseFeed struct {
	body   io.ReadCloser
	sc     *bufio.Scanner
	jobID  string
	logger *log.Logger
}

// Next returns the next event whose data decodes as a snapshot. Comments,
// keep-alives and undecodable events are skipped. An event cut off by the
// end of the body is still delivered.
func (f *sseFeed) Next() (model.ProgressSnapshot, error) {
	var data []string
	for f.sc.Scan() {
		line := f.sc.Text()
		if line == "" {
			if len(data) == 0 {
				continue
			}
			snap, ok := f.decode(data)
			data = data[:0]
			if !ok {
				continue
			}
			return snap, nil
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		if field == "data" {
			data = append(data, value)
		}
	}
	if err := f.sc.Err(); err != nil {
		return model.ProgressSnapshot{}, err
	}
	if len(data) > 0 {
		if snap, ok := f.decode(data); ok {
			return snap, nil
		}
	}
	return model.ProgressSnapshot{}, io.EOF
}

func (f *sseFeed) decode(data []string) (model.ProgressSnapshot, bool) {
	snap, err := api.DecodeSnapshot([]byte(strings.Join(data, "\n")))
	if err != nil {
		f.logger.Warn().Str("job_id", f.jobID).Err(err).Msg("skipping undecodable progress event")
		return model.ProgressSnapshot{}, false
	}
	return snap, true
}

func (f *sseFeed) Close() error {
	return f.body.Close()
}
