package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/agent"
	"github.com/tripgenie/tripgenie-backend/internal/logging"
	"github.com/tripgenie/tripgenie-backend/internal/metrics"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
	"github.com/tripgenie/tripgenie-backend/internal/providers/stub"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/repository/memory"
	"github.com/tripgenie/tripgenie-backend/internal/repository/storetest"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
	"github.com/tripgenie/tripgenie-backend/internal/tripcontext"
)

type funcTool struct {
	name string
	fn   func(ctx context.Context, args tools.Args) (tools.Output, error)
}

func (f funcTool) Name() string         { return f.name }
func (f funcTool) Description() string  { return f.name }
func (f funcTool) Schema() tools.Schema { return tools.Schema{} }
func (f funcTool) Invoke(ctx context.Context, args tools.Args) (tools.Output, error) {
	return f.fn(ctx, args)
}

type harness struct {
	chat    *ChatService
	store   *memory.Store
	clock   *storetest.Clock
	metrics *metrics.Collector
}

func newHarness(t *testing.T, provider *stub.Provider, ts ...tools.Tool) *harness {
	t.Helper()
	logger := logging.Discard()
	clock := storetest.NewClock(time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC))
	store := memory.New(memory.Config{TTL: 24 * time.Hour, Now: clock.Now, Logger: logger})
	collector := metrics.New()

	gw := tools.NewGateway(tools.GatewayConfig{Timeout: time.Second, Observer: collector, Logger: logger})
	for _, tool := range ts {
		gw.Register(tool)
	}

	orchestrator := agent.NewOrchestrator(agent.Config{
		Decider:   agent.NewModelDecider(provider, collector, logger),
		Gateway:   gw,
		Extractor: tripcontext.NewExtractor(clock.Now),
		Logger:    logger,
	})

	chat := NewChatService(ChatConfig{
		Store:        store,
		Orchestrator: orchestrator,
		Metrics:      collector,
		HistoryLimit: 100,
		Now:          clock.Now,
		Logger:       logger,
	})
	return &harness{chat: chat, store: store, clock: clock, metrics: collector}
}

func TestProcessTurn_ParisScenario(t *testing.T) {
	provider := stub.NewScripted(
		stub.Reply{Content: "Sounds wonderful! When would you like to come back?"},
		stub.Reply{Content: "Noted, returning on the 10th."},
	)
	h := newHarness(t, provider)
	ctx := context.Background()

	first, err := h.chat.ProcessTurn(ctx, TurnRequest{
		Message: "Plan a 5-day trip to Paris for 2 people interested in art and food from 2025-07-05 with a $3000 budget",
		UserID:  "traveler-1",
	})
	require.NoError(t, err)
	require.True(t, first.Success)
	require.NotEmpty(t, first.SessionID)

	tc := first.ContextAnalysis
	assert.Equal(t, "Paris", tc.Destination)
	assert.Equal(t, 2, tc.Travelers)
	assert.Equal(t, []string{"art", "food"}, tc.Interests)
	require.NotNil(t, tc.Dates)
	assert.Equal(t, "2025-07-05", tc.Dates.Start)
	assert.Equal(t, "$3000", tc.Budget)
	assert.Empty(t, first.ToolCallsMade)
	require.Len(t, first.ConversationHistory, 2)

	second, err := h.chat.ProcessTurn(ctx, TurnRequest{
		Message:   "What about July 10th for the return?",
		SessionID: first.SessionID,
	})
	require.NoError(t, err)
	require.True(t, second.Success)
	assert.Equal(t, first.SessionID, second.SessionID)
	assert.Equal(t, "Noted, returning on the 10th.", second.Response)

	stored, err := h.store.GetContext(ctx, first.SessionID)
	require.NoError(t, err)
	assert.Equal(t, "Paris", stored.Destination)
	assert.Equal(t, 2, stored.Travelers)
	assert.Equal(t, []string{"art", "food"}, stored.Interests)
	require.NotNil(t, stored.Dates)
	assert.Equal(t, "2025-07-05", stored.Dates.Start)
	assert.Equal(t, "2025-07-10", stored.Dates.End)

	require.Len(t, second.ConversationHistory, 4)
	assert.Equal(t, repository.RoleUser, second.ConversationHistory[2].Role)
	assert.NotNil(t, second.ConversationHistory[3].Timestamp)

	sessions, err := h.chat.ListSessions(ctx, "traveler-1")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, 4, sessions[0].MessageCount)
}

func TestProcessTurn_ToolFailureStillSucceeds(t *testing.T) {
	broken := funcTool{name: tools.FlightSearchName, fn: func(ctx context.Context, args tools.Args) (tools.Output, error) {
		return tools.Output{}, errors.New("upstream returned 502")
	}}
	provider := stub.NewScripted(
		stub.Reply{ToolCalls: []providers.ToolCall{stub.ToolCall(tools.FlightSearchName, `{}`)}},
		stub.Reply{Content: "I could not reach the flight search right now."},
		stub.Reply{Content: "Sorry, flight search is down at the moment. Want me to plan the rest?"},
	)
	h := newHarness(t, provider, broken)
	ctx := context.Background()

	resp, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "find flights from London to Tokyo"})
	require.NoError(t, err)

	assert.True(t, resp.Success)
	assert.NotEmpty(t, resp.Response)
	assert.Equal(t, []string{tools.FlightSearchName}, resp.ToolCallsMade)
	assert.Empty(t, resp.Error)
	for _, entry := range resp.ConversationHistory {
		assert.NotEqual(t, repository.RoleTool, entry.Role)
	}

	msgs, err := h.store.GetMessages(ctx, resp.SessionID, repository.MessageQuery{IncludeMetadata: true})
	require.NoError(t, err)
	require.Len(t, msgs, 3)
	assert.Equal(t, repository.RoleTool, msgs[1].Role)
	assert.NotEmpty(t, msgs[1].ToolCallID)
	assert.Equal(t, string(tools.StatusError), msgs[1].Metadata["status"])
	assert.Equal(t, repository.RoleAssistant, msgs[2].Role)
	assert.Equal(t, []string{tools.FlightSearchName}, msgs[2].Metadata["tools_used"])
}

func TestProcessTurn_CompletionFailurePersistsApology(t *testing.T) {
	provider := stub.NewScripted(stub.Reply{Err: errors.New("model overloaded")})
	h := newHarness(t, provider)
	ctx := context.Background()

	resp, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "Plan a trip to Rome"})
	require.NoError(t, err)

	assert.False(t, resp.Success)
	assert.Equal(t, ApologyMessage, resp.Response)
	assert.Contains(t, resp.Error, "model overloaded")
	assert.True(t, resp.ContextAnalysis.IsEmpty())
	require.Len(t, resp.ConversationHistory, 2)
	assert.Equal(t, ApologyMessage, resp.ConversationHistory[1].Content)
}

func TestProcessTurn_InputErrors(t *testing.T) {
	h := newHarness(t, stub.New())
	ctx := context.Background()

	_, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "   "})
	assert.ErrorIs(t, err, ErrEmptyMessage)

	_, err = h.chat.ProcessTurn(ctx, TurnRequest{Message: "hello", SessionID: "missing"})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestProcessTurn_ExpiredSessionIsNotFound(t *testing.T) {
	h := newHarness(t, stub.New())
	ctx := context.Background()

	resp, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "hello"})
	require.NoError(t, err)

	h.clock.Advance(25 * time.Hour)

	_, err = h.chat.ProcessTurn(ctx, TurnRequest{Message: "still there?", SessionID: resp.SessionID})
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = h.chat.History(ctx, resp.SessionID)
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
}

func TestProcessTurn_HistorySeedsNewSessionOnly(t *testing.T) {
	h := newHarness(t, stub.NewScripted(stub.Reply{Content: "ok"}, stub.Reply{Content: "ok again"}))
	ctx := context.Background()

	seed := []HistoryEntry{
		{Role: repository.RoleUser, Content: "I want to go to Rome"},
		{Role: repository.RoleAssistant, Content: "Rome is great"},
		{Role: "system", Content: "ignored"},
	}
	resp, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "for 3 people", ConversationHistory: seed})
	require.NoError(t, err)
	require.Len(t, resp.ConversationHistory, 4)
	assert.Equal(t, "Rome", resp.ContextAnalysis.Destination)
	assert.Equal(t, 3, resp.ContextAnalysis.Travelers)

	resp, err = h.chat.ProcessTurn(ctx, TurnRequest{
		Message:             "thanks",
		SessionID:           resp.SessionID,
		ConversationHistory: []HistoryEntry{{Role: repository.RoleUser, Content: "something else entirely"}},
	})
	require.NoError(t, err)
	assert.Len(t, resp.ConversationHistory, 6)
}

func TestNewSessionAndHistory(t *testing.T) {
	h := newHarness(t, stub.New())
	ctx := context.Background()

	id, err := h.chat.NewSession(ctx, "")
	require.NoError(t, err)

	hist, err := h.chat.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, hist.Messages, 1)
	assert.Equal(t, WelcomeMessage, hist.Messages[0].Content)
	assert.Equal(t, repository.RoleAssistant, hist.Messages[0].Role)
	assert.Equal(t, DefaultUserID, hist.SessionInfo.UserID)
	assert.True(t, hist.Context.IsEmpty())

	sessions, err := h.chat.ListSessions(ctx, "")
	require.NoError(t, err)
	require.Len(t, sessions, 1)
	assert.Equal(t, id, sessions[0].ID)
}

// flakyDeleteStore fails DeleteSession for the listed ids
type flakyDeleteStore struct {
	*memory.Store
	fail map[string]bool
}

func (s *flakyDeleteStore) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	if s.fail[sessionID] {
		return false, errors.New("connection reset")
	}
	return s.Store.DeleteSession(ctx, sessionID)
}

func TestDeleteSessions_CollectsEveryFailure(t *testing.T) {
	logger := logging.Discard()
	mem := memory.New(memory.Config{TTL: time.Hour, Logger: logger})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 4; i++ {
		id, err := mem.CreateSession(ctx, "u1")
		require.NoError(t, err)
		ids = append(ids, id)
	}
	store := &flakyDeleteStore{Store: mem, fail: map[string]bool{ids[0]: true, ids[2]: true}}
	chat := NewChatService(ChatConfig{Store: store, Logger: logger})

	deleted, err := chat.DeleteSessions(ctx, ids)
	assert.Equal(t, 2, deleted, "failures do not stop later deletes")

	var merr *multierror.Error
	require.ErrorAs(t, err, &merr)
	require.Len(t, merr.Errors, 2)
	assert.ErrorContains(t, merr.Errors[0], "session "+ids[0]+": connection reset")
	assert.ErrorContains(t, merr.Errors[1], "session "+ids[2]+": connection reset")

	_, err = mem.GetSessionInfo(ctx, ids[1])
	assert.ErrorIs(t, err, repository.ErrSessionNotFound)
	_, err = mem.GetSessionInfo(ctx, ids[0])
	assert.NoError(t, err)
}

func TestSearchAndDeleteSessions(t *testing.T) {
	h := newHarness(t, stub.NewScripted(stub.Reply{Content: "Tokyo it is"}, stub.Reply{Content: "Lisbon, lovely"}))
	ctx := context.Background()

	tokyo, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "a week in tokyo", UserID: "u1"})
	require.NoError(t, err)
	lisbon, err := h.chat.ProcessTurn(ctx, TurnRequest{Message: "weekend in lisbon", UserID: "u1"})
	require.NoError(t, err)

	results, err := h.chat.SearchSessions(ctx, "u1", []string{" tokyo ", ""})
	require.NoError(t, err)
	require.NotEmpty(t, results)
	assert.Equal(t, tokyo.SessionID, results[0].ID)

	deleted, err := h.chat.DeleteSessions(ctx, []string{tokyo.SessionID, lisbon.SessionID, "missing"})
	require.NoError(t, err)
	assert.Equal(t, 2, deleted)

	ok, err := h.chat.DeleteSession(ctx, tokyo.SessionID)
	require.NoError(t, err)
	assert.False(t, ok)

	stats, err := h.chat.Stats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 0, stats.TotalSessions)
}
