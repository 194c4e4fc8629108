package lifecycle

import (
	"context"
	"sync"

	"bookctl/internal/api"
	"bookctl/internal/model"
	"bookctl/internal/progress"
)

type fakeAPI struct {
	mu          sync.Mutex
	submitID    string
	submitErr   error
	submitCalls int
	job         model.ProgressSnapshot
	jobErr      error
	getCalls    []string
	resumeErr   error
	resumes     []int
	// hang makes GetJob and Resume block until their context ends.
	hang bool
}

func (a *fakeAPI) Submit(ctx context.Context, r model.SubmitRequest) (string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.submitCalls++
	return a.submitID, a.submitErr
}

func (a *fakeAPI) GetJob(ctx context.Context, id string) (model.ProgressSnapshot, error) {
	a.mu.Lock()
	a.getCalls = append(a.getCalls, id)
	job, err, hang := a.job, a.jobErr, a.hang
	a.mu.Unlock()
	if hang {
		<-ctx.Done()
		return model.ProgressSnapshot{}, ctx.Err()
	}
	return job, err
}

func (a *fakeAPI) Resume(ctx context.Context, id string, phase int) error {
	a.mu.Lock()
	a.resumes = append(a.resumes, phase)
	err, hang := a.resumeErr, a.hang
	a.mu.Unlock()
	if hang {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (a *fakeAPI) resumeCalls() []int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]int(nil), a.resumes...)
}

// fakeSub is one subscription handed out by fakeStreams. push delivers like
// the real client: nothing reaches the controller after unsubscribe.
type fakeSub struct {
	jobID  string
	onSnap func(model.ProgressSnapshot)
	onDisc func()

	mu     sync.Mutex
	closed bool
}

func (s *fakeSub) push(snap model.ProgressSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.onSnap(snap)
	}
}

func (s *fakeSub) drop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.onDisc()
	}
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

type fakeStreams struct {
	mu   sync.Mutex
	subs []*fakeSub
}

func (f *fakeStreams) Subscribe(ctx context.Context, jobID string, onSnapshot func(model.ProgressSnapshot), onDisconnected func()) func() {
	s := &fakeSub{jobID: jobID, onSnap: onSnapshot, onDisc: onDisconnected}
	f.mu.Lock()
	f.subs = append(f.subs, s)
	f.mu.Unlock()
	return func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()
	}
}

func (f *fakeStreams) all() []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeSub(nil), f.subs...)
}

func (f *fakeStreams) last() *fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.subs) == 0 {
		return nil
	}
	return f.subs[len(f.subs)-1]
}

type pollCall struct {
	jobID  string
	cursor string
}

// fakePoller serves pages keyed by job id and cursor.
type fakePoller struct {
	mu    sync.Mutex
	pages map[string]map[string]api.LogPage
	calls []pollCall
}

func newFakePoller() *fakePoller {
	return &fakePoller{pages: map[string]map[string]api.LogPage{}}
}

func (p *fakePoller) set(jobID, cursor string, page api.LogPage) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.pages[jobID] == nil {
		p.pages[jobID] = map[string]api.LogPage{}
	}
	p.pages[jobID][cursor] = page
}

func (p *fakePoller) Logs(ctx context.Context, jobID, cursor string, limit int) (api.LogPage, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.calls = append(p.calls, pollCall{jobID, cursor})
	return p.pages[jobID][cursor], nil
}

func (p *fakePoller) callCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.calls)
}

func (p *fakePoller) calledWith(jobID, cursor string) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	for _, c := range p.calls {
		if c.jobID == jobID && c.cursor == cursor {
			return true
		}
	}
	return false
}

type recordingReporter struct {
	mu    sync.Mutex
	views []progress.View
	logs  []model.LogEntry
}

func (r *recordingReporter) Update(v progress.View) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.views = append(r.views, v)
}

func (r *recordingReporter) Log(e model.LogEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.logs = append(r.logs, e)
}

func (r *recordingReporter) stages() []model.Stage {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Stage
	for _, v := range r.views {
		if len(out) == 0 || out[len(out)-1] != v.Stage {
			out = append(out, v.Stage)
		}
	}
	return out
}
