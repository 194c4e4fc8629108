// Package session persists the tracked job (id + stage) across restarts.
package session

import (
	"errors"
	"sync"

	"github.com/phuslu/log"

	"bookctl/internal/logging"
	"bookctl/internal/model"
)

// Stable keys of the persisted layout.
const (
	KeyJobID = "session.job_id"
	KeyStage = "session.stage"
)

// ErrKeyNotFound is returned by a Backend for a missing key.
var ErrKeyNotFound = errors.New("key not found")

// Backend is a durable string key/value store.
type Backend interface {
	Get(key string) (string, error)
	Set(key, value string) error
	Delete(key string) error
	Close() error
}

// Record is the persisted session.
type Record struct {
	JobID string
	Stage model.Stage
}

// Store is the session store used by the lifecycle controller. It never
// returns errors: when the durable backend is missing or failing, it logs
// and keeps working from its in-memory copy for the rest of the process.
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *log.Logger
	mem     *Record
}

// Option configures a Store.
type Option func(*Store)

// WithLogger attaches a logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New returns a Store over backend. A nil backend gives a memory-only store.
func New(backend Backend, opts ...Option) *Store {
	s := &Store{backend: backend}
	for _, o := range opts {
		o(s)
	}
	if s.logger == nil {
		s.logger = logging.Discard()
	}
	return s
}

// Durable reports whether a durable backend is attached.
func (s *Store) Durable() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.backend != nil
}

// Save records the tracked job and its stage.
func (s *Store) Save(jobID string, stage model.Stage) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = &Record{JobID: jobID, Stage: stage}
	if s.backend == nil {
		return
	}
	if err := s.backend.Set(KeyJobID, jobID); err != nil {
		s.degrade("save", err)
		return
	}
	if err := s.backend.Set(KeyStage, string(stage)); err != nil {
		s.degrade("save", err)
	}
}

// Load returns the persisted session, if any. An unknown stored stage loads as idle.
func (s *Store) Load() (Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.backend != nil {
		rec, ok, err := s.loadBackend()
		if err == nil {
			if ok {
				s.mem = &rec
			} else {
				s.mem = nil
			}
			return rec, ok
		}
		s.degrade("load", err)
	}
	if s.mem == nil {
		return Record{}, false
	}
	return *s.mem, true
}

func (s *Store) loadBackend() (Record, bool, error) {
	id, err := s.backend.Get(KeyJobID)
	if errors.Is(err, ErrKeyNotFound) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, err
	}
	if id == "" {
		return Record{}, false, nil
	}
	stage, err := s.backend.Get(KeyStage)
	if err != nil && !errors.Is(err, ErrKeyNotFound) {
		return Record{}, false, err
	}
	return Record{JobID: id, Stage: model.ParseStage(stage)}, true, nil
}

// Clear forgets the session.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.mem = nil
	if s.backend == nil {
		return
	}
	for _, k := range []string{KeyJobID, KeyStage} {
		if err := s.backend.Delete(k); err != nil && !errors.Is(err, ErrKeyNotFound) {
			s.degrade("clear", err)
			return
		}
	}
}

// Close releases the durable backend.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.backend == nil {
		return nil
	}
	err := s.backend.Close()
	s.backend = nil
	return err
}

// degrade drops the durable backend after a failure. Must hold mu.
func (s *Store) degrade(op string, err error) {
	s.logger.Warn().Str("op", op).Err(err).Msg("session storage unavailable, continuing in memory")
	_ = s.backend.Close()
	s.backend = nil
}
