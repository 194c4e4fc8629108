package stream

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/phuslu/log"

	"bookctl/internal/api"
	"bookctl/internal/logging"
	"bookctl/internal/model"
)

// WebSocketTransport reads one JSON snapshot per text message from /jobs/{id}/ws.
type WebSocketTransport struct {
	client *api.Client
	dialer *websocket.Dialer
	logger *log.Logger
}

// NewWebSocketTransport returns a transport dialing URLs derived from c's base URL.
func NewWebSocketTransport(c *api.Client, l *log.Logger) *WebSocketTransport {
	if l == nil {
		l = logging.Discard()
	}
	return &WebSocketTransport{
		client: c,
		dialer: &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
		logger: l,
	}
}

// Open dials the job's socket. A failed handshake with an HTTP status is
// returned as *api.StatusError.
func (t *WebSocketTransport) Open(ctx context.Context, jobID string) (Feed, error) {
	u := t.client.URL(api.JobPath(jobID, "ws"))
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	header := http.Header{}
	header.Set("User-Agent", "bookctl")

	conn, resp, err := t.dialer.DialContext(ctx, u.String(), header)
	if err != nil {
		if resp != nil {
			return nil, &api.StatusError{Method: http.MethodGet, Path: u.Path, Code: resp.StatusCode}
		}
		return nil, fmt.Errorf("dial progress socket: %w", err)
	}

	f := &wsFeed{conn: conn, jobID: jobID, logger: t.logger, done: make(chan struct{})}
	go func() {
		select {
		case <-ctx.Done():
			_ = f.Close()
		case <-f.done:
		}
	}()
	return f, nil
}

type wsFeed struct {
	conn   *websocket.Conn
	jobID  string
	logger *log.Logger
	once   sync.Once
	done   chan struct{}
}

func (f *wsFeed) Next() (model.ProgressSnapshot, error) {
	for {
		typ, data, err := f.conn.ReadMessage()
		if err != nil {
			var ce *websocket.CloseError
			if errors.As(err, &ce) && ce.Code == websocket.CloseNormalClosure {
				return model.ProgressSnapshot{}, errClosedByServer
			}
			return model.ProgressSnapshot{}, err
		}
		if typ != websocket.TextMessage {
			continue
		}
		snap, err := api.DecodeSnapshot(data)
		if err != nil {
			f.logger.Warn().Str("job_id", f.jobID).Err(err).Msg("skipping undecodable progress message")
			continue
		}
		return snap, nil
	}
}

func (f *wsFeed) Close() error {
	var err error
	f.once.Do(func() {
		close(f.done)
		err = f.conn.Close()
	})
	return err
}

var errClosedByServer = errors.New("progress socket closed by server")
