package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/api/handlers"
	"github.com/tripgenie/tripgenie-backend/internal/api/models"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/logging"
	"github.com/tripgenie/tripgenie-backend/internal/providers/stub"
	"github.com/tripgenie/tripgenie-backend/internal/repository/memory"
	"github.com/tripgenie/tripgenie-backend/internal/services"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

func newTestApp(t *testing.T, provider *stub.Provider) (*fiber.App, *services.Services) {
	t.Helper()
	logger := logging.Discard()
	cfg := config.Defaults()
	cfg.LLM.Provider = "stub"
	cfg.Server.RateLimitPerMinute = 0

	store := memory.New(memory.Config{TTL: time.Hour, Logger: logger})
	svc, err := services.NewServices(cfg, store, services.Options{Provider: provider}, logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })

	return NewApp(svc, cfg.Server, logger), svc
}

func doJSON(t *testing.T, app *fiber.App, method, path, body string, out interface{}) int {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
	}
	return resp.StatusCode
}

func TestChat_CreatesSessionAndContinues(t *testing.T) {
	app, _ := newTestApp(t, stub.NewScripted(
		stub.Reply{Content: "Paris sounds great."},
		stub.Reply{Content: "Got it."},
	))

	var first services.TurnResponse
	code := doJSON(t, app, http.MethodPost, "/api/chat",
		`{"message":"I want to go to Paris for 2 people","user_id":"web-1"}`, &first)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, first.Success)
	assert.Equal(t, "Paris sounds great.", first.Response)
	assert.Equal(t, "Paris", first.ContextAnalysis.Destination)
	assert.Equal(t, []string{}, first.ToolCallsMade)

	var second services.TurnResponse
	code = doJSON(t, app, http.MethodPost, "/api/chat",
		`{"message":"in july","session_id":"`+first.SessionID+`"}`, &second)
	require.Equal(t, http.StatusOK, code)
	assert.Len(t, second.ConversationHistory, 4)

	var history models.HistoryResponse
	code = doJSON(t, app, http.MethodGet, "/api/chat/history/"+first.SessionID, "", &history)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, history.Success)
	assert.Equal(t, 4, history.MessageCount)
	assert.Equal(t, "Paris", history.Context.Destination)
	assert.Equal(t, "web-1", history.SessionInfo.UserID)
}

func TestChat_ErrorStatuses(t *testing.T) {
	app, _ := newTestApp(t, stub.New())

	tests := []struct {
		name   string
		method string
		path   string
		body   string
		status int
	}{
		{"empty message", http.MethodPost, "/api/chat", `{"message":"  "}`, http.StatusBadRequest},
		{"malformed body", http.MethodPost, "/api/chat", `{"message":`, http.StatusBadRequest},
		{"unknown session", http.MethodPost, "/api/chat", `{"message":"hi","session_id":"nope"}`, http.StatusNotFound},
		{"unknown history", http.MethodGet, "/api/chat/history/nope", "", http.StatusNotFound},
		{"search without q", http.MethodGet, "/api/chat/sessions/search", "", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var body models.ErrorResponse
			code := doJSON(t, app, tt.method, tt.path, tt.body, &body)
			assert.Equal(t, tt.status, code)
			assert.False(t, body.Success)
			assert.Equal(t, tt.status, body.Code)
			assert.NotEmpty(t, body.Error)
		})
	}
}

func TestChat_ProviderFailureIsReportedNotRaised(t *testing.T) {
	app, _ := newTestApp(t, stub.NewScripted(stub.Reply{Err: errors.New("rate limited upstream")}))

	var resp services.TurnResponse
	code := doJSON(t, app, http.MethodPost, "/api/chat", `{"message":"plan a trip"}`, &resp)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, resp.Success)
	assert.Equal(t, services.ApologyMessage, resp.Response)
	assert.Contains(t, resp.Error, "rate limited upstream")
}

func TestSessionEndpoints(t *testing.T) {
	app, svc := newTestApp(t, stub.New())

	var created models.NewSessionResponse
	code := doJSON(t, app, http.MethodPost, "/api/chat/new-session?user_id=alex", "", &created)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, created.Success)
	assert.Equal(t, "New session created", created.Message)

	history, err := svc.Chat.History(context.Background(), created.SessionID)
	require.NoError(t, err)
	require.Len(t, history.Messages, 1)
	assert.Equal(t, services.WelcomeMessage, history.Messages[0].Content)

	var listed models.SessionsResponse
	code = doJSON(t, app, http.MethodGet, "/api/chat/sessions?user_id=alex", "", &listed)
	require.Equal(t, http.StatusOK, code)
	require.Equal(t, 1, listed.Count)
	assert.Equal(t, created.SessionID, listed.Sessions[0].ID)

	var search models.SearchResponse
	code = doJSON(t, app, http.MethodGet, "/api/chat/sessions/search?user_id=alex&q=flights,hotels", "", &search)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, []string{"flights", "hotels"}, search.Query)
	assert.NotNil(t, search.Results)

	var deleted models.DeleteResponse
	code = doJSON(t, app, http.MethodDelete, "/api/chat/sessions/"+created.SessionID, "", &deleted)
	require.Equal(t, http.StatusOK, code)
	assert.True(t, deleted.Deleted)

	code = doJSON(t, app, http.MethodDelete, "/api/chat/sessions/"+created.SessionID, "", &deleted)
	require.Equal(t, http.StatusOK, code)
	assert.False(t, deleted.Deleted)

	code = doJSON(t, app, http.MethodGet, "/api/chat/sessions?user_id=nobody", "", &listed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 0, listed.Count)
	assert.NotNil(t, listed.Sessions)
}

func TestHealthAndSamples(t *testing.T) {
	app, _ := newTestApp(t, stub.New())

	var health models.HealthResponse
	code := doJSON(t, app, http.MethodGet, "/api/health", "", &health)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, handlers.Version, health.Version)
	assert.True(t, health.Features.TripPlanning)
	assert.False(t, health.Features.RealBookingLinks)
	assert.Equal(t, []string{tools.ItineraryName}, health.Tools)
	require.NotNil(t, health.Storage)
	assert.Equal(t, "memory", health.Storage.StorageType)

	var samples models.SampleQueriesResponse
	code = doJSON(t, app, http.MethodGet, "/api/sample-queries", "", &samples)
	require.Equal(t, http.StatusOK, code)
	require.Contains(t, samples.Categories, "flights")
	assert.Equal(t, "Complete Trip Planning", samples.Categories["complete_trips"].Title)
	assert.Len(t, samples.Categories["hotels"].Queries, 3)
}

func TestMetricsEndpoint(t *testing.T) {
	app, _ := newTestApp(t, stub.NewScripted(stub.Reply{Content: "hello"}))

	doJSON(t, app, http.MethodPost, "/api/chat", `{"message":"hi"}`, nil)

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/metrics", nil), -1)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `tripgenie_turns_total{outcome="success"} 1`)
}

func TestWebsocketRouteRequiresUpgrade(t *testing.T) {
	app, _ := newTestApp(t, stub.New())

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/ws/chat", nil), -1)
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusUpgradeRequired, resp.StatusCode)
}
