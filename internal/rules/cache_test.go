package rules

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gyaneshwarpardhi/docflow/internal/condition"
	"github.com/gyaneshwarpardhi/docflow/internal/event"
)

type fakeSource struct {
	mu      sync.Mutex
	entries []Entry
	err     error
	calls   int
}

func (f *fakeSource) FetchActiveRules(context.Context) ([]Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.entries, nil
}

func (f *fakeSource) set(entries []Entry, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.entries, f.err = entries, err
}

func (f *fakeSource) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time { return c.t }

func entry(id string, priority, sortOrder int, ruleActive, wfActive bool) Entry {
	return Entry{
		Rule:     Rule{ID: id, WorkflowID: "wf-" + id, TriggerEvent: "*", SortOrder: sortOrder, IsActive: ruleActive},
		Workflow: Workflow{ID: "wf-" + id, EntityType: "*", Priority: priority, IsActive: wfActive},
	}
}

func ids(rs []*ActiveRule) []string {
	out := make([]string, 0, len(rs))
	for _, r := range rs {
		out = append(out, r.ID)
	}
	return out
}

func newTestCache(src Source) (*Cache, *clock) {
	clk := &clock{t: time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)}
	return NewCache(src, WithClock(clk.now)), clk
}

func TestCacheOrdersAndFilters(t *testing.T) {
	src := &fakeSource{entries: []Entry{
		entry("low-b", 1, 2, true, true),
		entry("high", 10, 5, true, true),
		entry("low-a", 1, 1, true, true),
		entry("inactive-rule", 50, 0, false, true),
		entry("inactive-wf", 50, 0, true, false),
		entry("tie-b", 1, 1, true, true),
	}}
	c, _ := newTestCache(src)

	got := c.GetActiveRules(context.Background())
	assert.Equal(t, []string{"high", "low-a", "tie-b", "low-b"}, ids(got))
}

func TestCacheServesWithinTTL(t *testing.T) {
	src := &fakeSource{entries: []Entry{entry("r1", 1, 0, true, true)}}
	c, clk := newTestCache(src)
	ctx := context.Background()

	c.Get(ctx)
	clk.t = clk.t.Add(59 * time.Second)
	c.Get(ctx)
	assert.Equal(t, 1, src.count())

	clk.t = clk.t.Add(2 * time.Second)
	c.Get(ctx)
	assert.Equal(t, 2, src.count())
}

func TestInvalidateForcesRefetch(t *testing.T) {
	src := &fakeSource{entries: []Entry{entry("r1", 1, 0, true, true)}}
	c, _ := newTestCache(src)
	ctx := context.Background()

	c.Get(ctx)
	src.set([]Entry{entry("r1", 1, 0, true, true), entry("r2", 1, 1, true, true)}, nil)
	c.Invalidate()

	got := c.GetActiveRules(ctx)
	assert.Equal(t, 2, src.count())
	assert.Equal(t, []string{"r1", "r2"}, ids(got))
}

func TestFetchFailureServesStale(t *testing.T) {
	src := &fakeSource{entries: []Entry{entry("r1", 1, 0, true, true), entry("r2", 1, 1, true, true)}}
	c, clk := newTestCache(src)
	ctx := context.Background()

	first := c.Get(ctx)
	require.False(t, first.Stale)

	boom := errors.New("db down")
	src.set(nil, boom)
	clk.t = clk.t.Add(2 * time.Minute)

	snap := c.Get(ctx)
	assert.True(t, snap.Stale)
	assert.ErrorIs(t, snap.FetchErr, boom)
	assert.Equal(t, []string{"r1", "r2"}, ids(snap.Rules))
	assert.True(t, snap.FetchedAt.Equal(first.FetchedAt))

	again := c.Get(ctx)
	assert.Equal(t, ids(snap.Rules), ids(again.Rules))
	assert.Equal(t, 3, src.count(), "failures are not cached")
}

func TestFetchFailureWithoutHistory(t *testing.T) {
	c, _ := newTestCache(&fakeSource{err: errors.New("db down")})
	snap := c.Get(context.Background())
	assert.True(t, snap.Stale)
	assert.Error(t, snap.FetchErr)
	assert.NotNil(t, snap.Rules)
	assert.Empty(t, snap.Rules)
}

func TestEmptyResultIsCached(t *testing.T) {
	src := &fakeSource{entries: []Entry{}}
	c, _ := newTestCache(src)
	ctx := context.Background()

	snap := c.Get(ctx)
	assert.False(t, snap.Stale)
	assert.Empty(t, snap.Rules)
	c.Get(ctx)
	assert.Equal(t, 1, src.count())
}

func TestCacheSkipsUncompilableConditions(t *testing.T) {
	bad := entry("bad", 1, 0, true, true)
	bad.Rule.Conditions = condition.Predicate{Field: "amount", Operator: "between", Value: 1}
	c, _ := newTestCache(&fakeSource{entries: []Entry{bad, entry("good", 1, 1, true, true)}})

	assert.Equal(t, []string{"good"}, ids(c.GetActiveRules(context.Background())))
}

func TestActiveRuleTriggers(t *testing.T) {
	r := &ActiveRule{
		Rule:     Rule{TriggerEvent: event.DocumentStatusChanged},
		Workflow: Workflow{EntityType: "mirv"},
	}
	tests := []struct {
		name string
		ev   event.Event
		want bool
	}{
		{"match", event.Event{Type: event.DocumentStatusChanged, EntityType: "mirv"}, true},
		{"other type", event.Event{Type: event.DocumentCreated, EntityType: "mirv"}, false},
		{"other entity", event.Event{Type: event.DocumentStatusChanged, EntityType: "mi"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, r.Triggers(tt.ev))
		})
	}

	wild := &ActiveRule{Rule: Rule{TriggerEvent: "*"}, Workflow: Workflow{EntityType: "*"}}
	assert.True(t, wild.Triggers(event.Event{Type: "anything", EntityType: "grn"}))
}
