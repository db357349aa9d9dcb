// Package storetest holds the behavioral suite every repository.Store backend must pass.
package storetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// Harness is one freshly constructed backend under test
type Harness struct {
	Store repository.Store
	// Advance moves the backend's notion of time forward
	Advance func(d time.Duration)
	// TTL is the retention window the store was built with
	TTL time.Duration
}

// Factory builds an isolated Harness for one subtest
type Factory func(t *testing.T) *Harness

// Clock is a manually advanced time source
type Clock struct {
	mu  sync.Mutex
	now time.Time
}

// NewClock returns a clock frozen at start
func NewClock(start time.Time) *Clock {
	return &Clock{now: start}
}

// Now returns the current fake time
func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

// Advance moves the clock forward
func (c *Clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// Run executes the full suite against the backend produced by newHarness
func Run(t *testing.T, newHarness Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, h *Harness)
	}{
		{"CreateSession", testCreateSession},
		{"AddMessageUnknownSession", testAddMessageUnknownSession},
		{"AddMessageRejectsRole", testAddMessageRejectsRole},
		{"MessagesOrderedSuffix", testMessagesOrderedSuffix},
		{"MessageProjection", testMessageProjection},
		{"ReplaceMessages", testReplaceMessages},
		{"MergeContextMonotonic", testMergeContextMonotonic},
		{"DeleteIdempotent", testDeleteIdempotent},
		{"ListUserSessions", testListUserSessions},
		{"SearchSessions", testSearchSessions},
		{"Retention", testRetention},
		{"ExpireStale", testExpireStale},
		{"Stats", testStats},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t)
			t.Cleanup(func() { _ = h.Store.Close() })
			tt.fn(t, h)
		})
	}
}

func testCreateSession(t *testing.T, h *Harness) {
	ctx := context.Background()

	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEmpty(t, id)

	other, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	assert.NotEqual(t, id, other)

	info, err := h.Store.GetSessionInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, id, info.ID)
	assert.Equal(t, "user-1", info.UserID)
	assert.Equal(t, 0, info.MessageCount)
	assert.True(t, info.ContextSummary.IsEmpty())

	_, err = h.Store.CreateSession(ctx, "  ")
	assert.ErrorIs(t, err, repository.ErrInvalidUserID)
}

func testAddMessageUnknownSession(t *testing.T, h *Harness) {
	ctx := context.Background()

	_, err := h.Store.AddMessage(ctx, "session_missing", repository.NewMessage{Role: repository.RoleUser, Content: "hi"})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	err = h.Store.MergeContext(ctx, "session_missing", repository.TripContext{Destination: "Paris"})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	_, err = h.Store.GetMessages(ctx, "session_missing", repository.MessageQuery{})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	_, err = h.Store.GetSessionInfo(ctx, "session_missing")
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func testAddMessageRejectsRole(t *testing.T, h *Harness) {
	ctx := context.Background()
	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	_, err = h.Store.AddMessage(ctx, id, repository.NewMessage{Role: "system", Content: "x"})
	assert.ErrorIs(t, err, repository.ErrInvalidRole)
}

func testMessagesOrderedSuffix(t *testing.T, h *Harness) {
	ctx := context.Background()
	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	for i := 0; i < 7; i++ {
		role := repository.RoleUser
		if i%2 == 1 {
			role = repository.RoleAssistant
		}
		_, err := h.Store.AddMessage(ctx, id, repository.NewMessage{Role: role, Content: fmt.Sprintf("message %d", i)})
		require.NoError(t, err)
	}

	all, err := h.Store.GetMessages(ctx, id, repository.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, all, 7)
	for i := 1; i < len(all); i++ {
		assert.False(t, all[i].CreatedAt.Before(all[i-1].CreatedAt), "messages out of order at %d", i)
	}

	tail, err := h.Store.GetMessages(ctx, id, repository.MessageQuery{Limit: 3})
	require.NoError(t, err)
	require.Len(t, tail, 3)
	assert.Equal(t, all[4:], tail)

	info, err := h.Store.GetSessionInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 7, info.MessageCount)
	assert.Equal(t, "message 6", info.LastUserMessage)
	assert.Equal(t, "message 5", info.LastAssistantMessage)
}

func testMessageProjection(t *testing.T, h *Harness) {
	ctx := context.Background()
	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	long := make([]byte, repository.PreviewLength+50)
	for i := range long {
		long[i] = 'a'
	}
	msgID, err := h.Store.AddMessage(ctx, id, repository.NewMessage{
		Role:       repository.RoleAssistant,
		Content:    string(long),
		ToolCallID: "call_1",
		Metadata:   map[string]interface{}{"tools_used": []interface{}{"generate_itinerary"}},
	})
	require.NoError(t, err)

	plain, err := h.Store.GetMessages(ctx, id, repository.MessageQuery{})
	require.NoError(t, err)
	require.Len(t, plain, 1)
	assert.Empty(t, plain[0].ID)
	assert.Nil(t, plain[0].Metadata)
	assert.Equal(t, "call_1", plain[0].ToolCallID)
	assert.Equal(t, string(long), plain[0].Content)

	full, err := h.Store.GetMessages(ctx, id, repository.MessageQuery{IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, full, 1)
	assert.Equal(t, msgID, full[0].ID)
	assert.Equal(t, id, full[0].SessionID)
	assert.Equal(t, []interface{}{"generate_itinerary"}, full[0].Metadata["tools_used"])

	info, err := h.Store.GetSessionInfo(ctx, id)
	require.NoError(t, err)
	assert.Len(t, info.LastAssistantMessage, repository.PreviewLength)
}

func testReplaceMessages(t *testing.T, h *Harness) {
	ctx := context.Background()
	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	oldID, err := h.Store.AddMessage(ctx, id, repository.NewMessage{Role: repository.RoleUser, Content: "old"})
	require.NoError(t, err)

	err = h.Store.ReplaceMessages(ctx, id, []repository.NewMessage{
		{Role: repository.RoleUser, Content: "first"},
		{Role: repository.RoleAssistant, Content: "second"},
		{Role: repository.RoleUser, Content: "third"},
	})
	require.NoError(t, err)

	msgs, err := h.Store.GetMessages(ctx, id, repository.MessageQuery{IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, "first", msgs[0].Content)
	assert.Equal(t, "third", msgs[2].Content)
	for i, m := range msgs {
		assert.NotEqual(t, oldID, m.ID)
		if i > 0 {
			assert.True(t, m.CreatedAt.After(msgs[i-1].CreatedAt))
		}
	}

	info, err := h.Store.GetSessionInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, 3, info.MessageCount)
	assert.Equal(t, "third", info.LastUserMessage)
	assert.Equal(t, "second", info.LastAssistantMessage)

	err = h.Store.ReplaceMessages(ctx, id, []repository.NewMessage{{Role: "bogus"}})
	assert.ErrorIs(t, err, repository.ErrInvalidRole)

	err = h.Store.ReplaceMessages(ctx, "session_missing", nil)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func testMergeContextMonotonic(t *testing.T, h *Harness) {
	ctx := context.Background()
	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	require.NoError(t, h.Store.MergeContext(ctx, id, repository.TripContext{
		Destination: "Paris",
		Travelers:   2,
		Interests:   []string{"food", "art"},
		Dates:       &repository.DateRange{Start: "2025-07-05"},
		Budget:      "$3000",
	}))
	require.NoError(t, h.Store.MergeContext(ctx, id, repository.TripContext{}))
	require.NoError(t, h.Store.MergeContext(ctx, id, repository.TripContext{Dates: &repository.DateRange{End: "2025-07-10"}}))

	got, err := h.Store.GetContext(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, repository.TripContext{
		Destination: "Paris",
		Travelers:   2,
		Interests:   []string{"art", "food"},
		Dates:       &repository.DateRange{Start: "2025-07-05", End: "2025-07-10"},
		Budget:      "$3000",
	}, got)

	info, err := h.Store.GetSessionInfo(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, "Paris", info.ContextSummary.Destination)
}

func testDeleteIdempotent(t *testing.T, h *Harness) {
	ctx := context.Background()
	id, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	_, err = h.Store.AddMessage(ctx, id, repository.NewMessage{Role: repository.RoleUser, Content: "hello"})
	require.NoError(t, err)

	deleted, err := h.Store.DeleteSession(ctx, id)
	require.NoError(t, err)
	assert.True(t, deleted)

	deleted, err = h.Store.DeleteSession(ctx, id)
	require.NoError(t, err)
	assert.False(t, deleted)

	_, err = h.Store.GetSessionInfo(ctx, id)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = h.Store.GetMessages(ctx, id, repository.MessageQuery{})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	sessions, err := h.Store.ListUserSessions(ctx, "user-1")
	require.NoError(t, err)
	assert.Empty(t, sessions)
}

func testListUserSessions(t *testing.T, h *Harness) {
	ctx := context.Background()

	first, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	h.Advance(time.Second)
	second, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	_, err = h.Store.CreateSession(ctx, "user-2")
	require.NoError(t, err)

	h.Advance(time.Second)
	_, err = h.Store.AddMessage(ctx, first, repository.NewMessage{Role: repository.RoleUser, Content: "bump"})
	require.NoError(t, err)

	sessions, err := h.Store.ListUserSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, first, sessions[0].ID)
	assert.Equal(t, second, sessions[1].ID)

	none, err := h.Store.ListUserSessions(ctx, "nobody")
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testSearchSessions(t *testing.T, h *Harness) {
	ctx := context.Background()

	paris, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	require.NoError(t, h.Store.MergeContext(ctx, paris, repository.TripContext{Destination: "Paris"}))
	_, err = h.Store.AddMessage(ctx, paris, repository.NewMessage{Role: repository.RoleUser, Content: "Museums in Paris please"})
	require.NoError(t, err)

	h.Advance(time.Second)
	rome, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	_, err = h.Store.AddMessage(ctx, rome, repository.NewMessage{Role: repository.RoleUser, Content: "Rome, then maybe paris"})
	require.NoError(t, err)

	h.Advance(time.Second)
	_, err = h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	results, err := h.Store.SearchSessions(ctx, "user-1", []string{"paris"})
	require.NoError(t, err)
	require.Len(t, results, 2)
	assert.Equal(t, paris, results[0].ID)
	assert.Equal(t, 3, results[0].RelevanceScore)
	assert.Equal(t, 1, results[0].SearchMatches.ContextMatches)
	assert.Equal(t, rome, results[1].ID)
	assert.Equal(t, 1, results[1].RelevanceScore)

	none, err := h.Store.SearchSessions(ctx, "user-1", []string{"tokyo"})
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testRetention(t *testing.T, h *Harness) {
	ctx := context.Background()

	stale, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	h.Advance(h.TTL / 2)
	fresh, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	h.Advance(h.TTL/2 + time.Second)

	_, err = h.Store.GetSessionInfo(ctx, stale)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = h.Store.AddMessage(ctx, stale, repository.NewMessage{Role: repository.RoleUser, Content: "late"})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)

	_, err = h.Store.GetSessionInfo(ctx, fresh)
	assert.NoError(t, err)

	sessions, err := h.Store.ListUserSessions(ctx, "user-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, fresh, sessions[0].ID)

	// a write refreshes the window
	_, err = h.Store.AddMessage(ctx, fresh, repository.NewMessage{Role: repository.RoleUser, Content: "still here"})
	require.NoError(t, err)
	h.Advance(h.TTL / 2)
	_, err = h.Store.GetSessionInfo(ctx, fresh)
	assert.NoError(t, err)
}

func testExpireStale(t *testing.T, h *Harness) {
	ctx := context.Background()

	old, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	h.Advance(time.Hour)
	recent, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)

	info, err := h.Store.GetSessionInfo(ctx, recent)
	require.NoError(t, err)

	removed, err := h.Store.ExpireStale(ctx, info.LastActivity.Add(-time.Minute))
	require.NoError(t, err)

	if h.Store.NativeTTL() {
		assert.Equal(t, 0, removed)
		return
	}
	assert.Equal(t, 1, removed)
	_, err = h.Store.GetSessionInfo(ctx, old)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = h.Store.GetSessionInfo(ctx, recent)
	assert.NoError(t, err)
}

func testStats(t *testing.T, h *Harness) {
	ctx := context.Background()

	a, err := h.Store.CreateSession(ctx, "user-1")
	require.NoError(t, err)
	_, err = h.Store.CreateSession(ctx, "user-2")
	require.NoError(t, err)
	for i := 0; i < 4; i++ {
		_, err = h.Store.AddMessage(ctx, a, repository.NewMessage{Role: repository.RoleUser, Content: "x"})
		require.NoError(t, err)
	}

	stats, err := h.Store.Stats(ctx)
	require.NoError(t, err)
	assert.True(t, stats.Connected)
	assert.NotEmpty(t, stats.StorageType)
	assert.Equal(t, 2, stats.TotalSessions)
	assert.Equal(t, 4, stats.TotalMessages)
	assert.InDelta(t, 2.0, stats.AvgMessagesPerSession, 0.001)
}
