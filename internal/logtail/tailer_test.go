package logtail

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"bookctl/internal/api"
	"bookctl/internal/model"
)

// fakePoller serves pages keyed by cursor. Unknown cursors return an empty
// page that keeps the cursor where it is.
type fakePoller struct {
	mu      sync.Mutex
	pages   map[string]api.LogPage
	fail    map[string]int
	cursors []string
	block   chan struct{}
}

func (p *fakePoller) Logs(ctx context.Context, jobID, cursor string, limit int) (api.LogPage, error) {
	p.mu.Lock()
	p.cursors = append(p.cursors, cursor)
	if p.fail[cursor] > 0 {
		p.fail[cursor]--
		p.mu.Unlock()
		return api.LogPage{}, errors.New("connection reset")
	}
	page, ok := p.pages[cursor]
	block := p.block
	p.mu.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return api.LogPage{}, ctx.Err()
		}
	}
	if !ok {
		return api.LogPage{}, nil
	}
	return page, nil
}

func (p *fakePoller) calls() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]string(nil), p.cursors...)
}

type collector struct {
	mu      sync.Mutex
	entries []string
	active  bool
}

func (c *collector) sink(page api.LogPage) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.active {
		return false
	}
	for _, e := range page.Entries {
		c.entries = append(c.entries, e.Message)
	}
	return true
}

func (c *collector) messages() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.entries...)
}

func entries(msgs ...string) []model.LogEntry {
	out := make([]model.LogEntry, len(msgs))
	for i, m := range msgs {
		out[i] = model.LogEntry{Level: model.LevelInfo, Message: m}
	}
	return out
}

func TestTailer_AdvancesCursorAndAppendsInOrder(t *testing.T) {
	p := &fakePoller{pages: map[string]api.LogPage{
		"":  {Entries: entries("a", "b"), NextCursor: "2"},
		"2": {Entries: entries("c"), NextCursor: "3"},
	}}
	c := &collector{active: true}
	tl := New(p, "job-42", "", c.sink, WithInterval(time.Millisecond))
	tl.Start(context.Background())
	defer tl.Stop()

	require.Eventually(t, func() bool { return len(p.calls()) >= 4 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b", "c"}, c.messages())
	assert.Equal(t, "3", tl.Cursor())
}

func TestTailer_SameCursorYieldsNoDuplicates(t *testing.T) {
	// backend returns entries but never issues a cursor
	p := &fakePoller{pages: map[string]api.LogPage{
		"": {Entries: entries("a", "b")},
	}}
	c := &collector{active: true}
	tl := New(p, "job-1", "", c.sink, WithInterval(time.Millisecond))
	tl.Start(context.Background())
	defer tl.Stop()

	require.Eventually(t, func() bool { return len(p.calls()) >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, []string{"a", "b"}, c.messages())
	assert.Equal(t, "", tl.Cursor())
}

func TestTailer_EmptyPageKeepsCursor(t *testing.T) {
	p := &fakePoller{pages: map[string]api.LogPage{
		"5": {NextCursor: ""},
	}}
	c := &collector{active: true}
	tl := New(p, "job-1", "5", c.sink, WithInterval(time.Millisecond))
	tl.Start(context.Background())
	defer tl.Stop()

	require.Eventually(t, func() bool { return len(p.calls()) >= 3 }, time.Second, time.Millisecond)
	assert.Equal(t, "5", tl.Cursor())
	assert.Empty(t, c.messages())
}

func TestTailer_TransientErrorSkipsTick(t *testing.T) {
	p := &fakePoller{
		pages: map[string]api.LogPage{"": {Entries: entries("a"), NextCursor: "1"}},
		fail:  map[string]int{"": 2},
	}
	c := &collector{active: true}
	tl := New(p, "job-1", "", c.sink, WithInterval(time.Millisecond))
	tl.Start(context.Background())
	defer tl.Stop()

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, time.Millisecond)
	calls := p.calls()
	require.GreaterOrEqual(t, len(calls), 3)
	assert.Equal(t, []string{"", "", ""}, calls[:3])
	assert.Equal(t, "1", tl.Cursor())
}

func TestTailer_SinkRefusalStopsScheduling(t *testing.T) {
	p := &fakePoller{pages: map[string]api.LogPage{}}
	c := &collector{active: false}
	tl := New(p, "job-1", "", c.sink, WithInterval(time.Millisecond))
	tl.Start(context.Background())

	select {
	case <-tl.Done():
	case <-time.After(time.Second):
		t.Fatal("tailer kept running after sink refused")
	}
	assert.Len(t, p.calls(), 1)
	tl.Stop()
}

func TestTailer_FinishDrainsHasMoreThenStops(t *testing.T) {
	p := &fakePoller{pages: map[string]api.LogPage{
		"":  {Entries: entries("a"), NextCursor: "1"},
		"1": {Entries: entries("b"), NextCursor: "2", HasMore: true},
		"2": {Entries: entries("c"), NextCursor: "3", HasMore: true},
		"3": {Entries: entries("d"), NextCursor: "4"},
	}}
	c := &collector{active: true}
	tl := New(p, "job-1", "", c.sink, WithInterval(time.Hour))
	tl.Start(context.Background())

	require.Eventually(t, func() bool { return len(c.messages()) == 1 }, time.Second, time.Millisecond)
	tl.Finish()
	tl.Finish()

	select {
	case <-tl.Done():
	case <-time.After(time.Second):
		t.Fatal("tailer did not stop after draining")
	}
	assert.Equal(t, []string{"a", "b", "c", "d"}, c.messages())
	assert.Equal(t, []string{"", "1", "2", "3"}, p.calls())
}

func TestTailer_DrainIsBounded(t *testing.T) {
	p := &fakePoller{pages: map[string]api.LogPage{
		"":  {Entries: entries("a"), NextCursor: "1", HasMore: true},
		"1": {Entries: entries("b"), NextCursor: "2", HasMore: true},
		"2": {Entries: entries("c"), NextCursor: "3", HasMore: true},
	}}
	c := &collector{active: true}
	tl := New(p, "job-1", "", c.sink, WithInterval(time.Hour), WithDrainPages(2))
	tl.Finish()
	tl.Start(context.Background())

	select {
	case <-tl.Done():
	case <-time.After(time.Second):
		t.Fatal("tailer did not stop")
	}
	assert.Len(t, p.calls(), 2)
}

func TestTailer_StopCancelsInFlightPoll(t *testing.T) {
	p := &fakePoller{pages: map[string]api.LogPage{}, block: make(chan struct{})}
	c := &collector{active: true}
	tl := New(p, "job-1", "", c.sink, WithInterval(time.Millisecond))
	tl.Start(context.Background())
	require.Eventually(t, func() bool { return len(p.calls()) == 1 }, time.Second, time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		tl.Stop()
		close(stopped)
	}()
	select {
	case <-stopped:
	case <-time.After(time.Second):
		t.Fatal("Stop did not return")
	}
	assert.Empty(t, c.messages())
}

func TestTailer_StopWithoutStart(t *testing.T) {
	tl := New(&fakePoller{}, "job-1", "", func(api.LogPage) bool { return true })
	tl.Stop()
}
