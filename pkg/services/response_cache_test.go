package services

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func succeeded(sqlQuery string) *Resolution {
	return &Resolution{Outcome: OutcomeSucceeded, SQL: sqlQuery, Rows: []map[string]any{{"n": 1}}}
}

func TestResponseCache_TTL(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)}
	c := newResponseCache(time.Minute, 0, clock.Now)

	c.Set(QuestionKindOriginal, "How many members?", nil, succeeded("SELECT COUNT(*) FROM dim_member"))

	got, ok := c.Get(QuestionKindOriginal, "  how many MEMBERS? ", nil)
	require.True(t, ok)
	assert.Equal(t, "SELECT COUNT(*) FROM dim_member", got.SQL)

	clock.Advance(2 * time.Minute)
	_, ok = c.Get(QuestionKindOriginal, "How many members?", nil)
	assert.False(t, ok)

	stats := c.Stats()
	assert.Equal(t, int64(1), stats.Hits)
	assert.Equal(t, int64(1), stats.Misses)
	assert.Zero(t, stats.Entries)
}

func TestResponseCache_OnlySucceeded(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)

	c.Set(QuestionKindOriginal, "q", nil, &Resolution{Outcome: OutcomeExhausted, SQL: "SELECT 1"})
	c.Set(QuestionKindOriginal, "q", nil, &Resolution{Outcome: OutcomeRejected})
	c.Set(QuestionKindOriginal, "q", nil, nil)

	_, ok := c.Get(QuestionKindOriginal, "q", nil)
	assert.False(t, ok)
	assert.Zero(t, c.Stats().Entries)
}

func TestResponseCache_KeyedOnKindAndPrior(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	priorA := &PriorContext{Question: "loans by branch", SQL: "SELECT a FROM t"}
	priorB := &PriorContext{Question: "loans by branch", SQL: "SELECT b FROM t"}

	c.Set(QuestionKindOriginal, "only 2024", nil, succeeded("original"))
	c.Set(QuestionKindFollowUp, "only 2024", priorA, succeeded("follow-up A"))

	got, ok := c.Get(QuestionKindOriginal, "only 2024", nil)
	require.True(t, ok)
	assert.Equal(t, "original", got.SQL)

	got, ok = c.Get(QuestionKindFollowUp, "only 2024", priorA)
	require.True(t, ok)
	assert.Equal(t, "follow-up A", got.SQL)

	_, ok = c.Get(QuestionKindFollowUp, "only 2024", priorB)
	assert.False(t, ok)
}

func TestResponseCache_ReturnsCopies(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	c.Set(QuestionKindOriginal, "q", nil, succeeded("SELECT 1"))

	got, _ := c.Get(QuestionKindOriginal, "q", nil)
	got.SQL = "mutated"
	got.Cached = true

	again, _ := c.Get(QuestionKindOriginal, "q", nil)
	assert.Equal(t, "SELECT 1", again.SQL)
	assert.False(t, again.Cached)
}

func TestResponseCache_MaxEntries(t *testing.T) {
	clock := &fakeClock{now: time.Date(2024, 12, 1, 9, 0, 0, 0, time.UTC)}
	c := newResponseCache(time.Hour, 2, clock.Now)

	c.Set(QuestionKindOriginal, "first", nil, succeeded("1"))
	clock.Advance(time.Second)
	c.Set(QuestionKindOriginal, "second", nil, succeeded("2"))
	clock.Advance(time.Second)
	c.Set(QuestionKindOriginal, "third", nil, succeeded("3"))

	assert.Equal(t, 2, c.Stats().Entries)
	_, ok := c.Get(QuestionKindOriginal, "first", nil)
	assert.False(t, ok, "oldest entry evicted")
	_, ok = c.Get(QuestionKindOriginal, "third", nil)
	assert.True(t, ok)
}

func TestResponseCache_Clear(t *testing.T) {
	c := NewResponseCache(time.Hour, 0)
	c.Set(QuestionKindOriginal, "q", nil, succeeded("SELECT 1"))
	c.Get(QuestionKindOriginal, "q", nil)

	c.Clear()

	assert.Equal(t, CacheStats{}, c.Stats())
}
