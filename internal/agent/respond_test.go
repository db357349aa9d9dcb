package agent

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
	"github.com/tripgenie/tripgenie-backend/internal/providers/anthropic"
	"github.com/tripgenie/tripgenie-backend/internal/providers/openai"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

// scriptedServer answers successive POSTs with the given bodies and records every request body
type scriptedServer struct {
	mu      sync.Mutex
	replies []string
	bodies  []map[string]interface{}
}

func (s *scriptedServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]interface{}
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	n := len(s.bodies)
	s.bodies = append(s.bodies, body)
	s.mu.Unlock()

	if n >= len(s.replies) {
		http.Error(w, "no more replies", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(s.replies[n]))
}

func (s *scriptedServer) requests() []map[string]interface{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]map[string]interface{}(nil), s.bodies...)
}

func messageRoles(t *testing.T, body map[string]interface{}) []string {
	t.Helper()
	raw, ok := body["messages"].([]interface{})
	require.True(t, ok, "request has messages")
	roles := make([]string, 0, len(raw))
	for _, m := range raw {
		roles = append(roles, m.(map[string]interface{})["role"].(string))
	}
	return roles
}

func runPlanningTurn(t *testing.T, p providers.Provider) *TurnResult {
	t.Helper()
	o := newOrchestrator(p, newGateway(time.Second, tools.NewItinerary(nil)), 0)
	res, err := o.Run(context.Background(), userTurn("Plan a trip to Paris for 2 people from 2025-07-05 to 2025-07-08"))
	require.NoError(t, err)
	return res
}

func TestRespondRequest_OpenAIEndsWithUserTurn(t *testing.T) {
	srv := &scriptedServer{replies: []string{
		`{"id":"1","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"tool_calls","message":{"role":"assistant","content":"","tool_calls":[{"id":"call_1","type":"function","function":{"name":"generate_itinerary","arguments":"{}"}}]}}]}`,
		`{"id":"2","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Here is your plan."}}]}`,
		`{"id":"3","model":"gpt-4o-mini","choices":[{"index":0,"finish_reason":"stop","message":{"role":"assistant","content":"Formatted plan."}}]}`,
	}}
	server := httptest.NewServer(srv)
	defer server.Close()

	p, err := openai.NewProvider(config.LLMConfig{APIKey: "sk-test", BaseURL: server.URL})
	require.NoError(t, err)

	res := runPlanningTurn(t, p)
	assert.Equal(t, "Formatted plan.", res.Response)

	reqs := srv.requests()
	require.Len(t, reqs, 3)
	assert.Equal(t, []string{"system", "user", "assistant", "tool"}, messageRoles(t, reqs[1]))

	respond := reqs[2]
	assert.Equal(t, []string{"user", "assistant", "tool", "user"}, messageRoles(t, respond))
	msgs := respond["messages"].([]interface{})
	assert.Equal(t, FormatPrompt, msgs[len(msgs)-1].(map[string]interface{})["content"])
	assert.Nil(t, respond["tools"])
}

func TestRespondRequest_AnthropicEndsWithUserTurn(t *testing.T) {
	srv := &scriptedServer{replies: []string{
		`{"id":"1","type":"message","role":"assistant","model":"claude","stop_reason":"tool_use","content":[{"type":"tool_use","id":"tu_1","name":"generate_itinerary","input":{}}]}`,
		`{"id":"2","type":"message","role":"assistant","model":"claude","stop_reason":"end_turn","content":[{"type":"text","text":"Here is your plan."}]}`,
		`{"id":"3","type":"message","role":"assistant","model":"claude","stop_reason":"end_turn","content":[{"type":"text","text":"Formatted plan."}]}`,
	}}
	server := httptest.NewServer(srv)
	defer server.Close()

	p, err := anthropic.NewProvider(config.LLMConfig{APIKey: "k", BaseURL: server.URL})
	require.NoError(t, err)

	res := runPlanningTurn(t, p)
	assert.Equal(t, "Formatted plan.", res.Response)

	reqs := srv.requests()
	require.Len(t, reqs, 3)
	assert.NotEmpty(t, reqs[0]["system"])

	respond := reqs[2]
	assert.Equal(t, []string{"user", "assistant", "user"}, messageRoles(t, respond))

	msgs := respond["messages"].([]interface{})
	last := msgs[len(msgs)-1].(map[string]interface{})["content"].([]interface{})
	require.Len(t, last, 2)
	assert.Equal(t, "tool_result", last[0].(map[string]interface{})["type"])
	assert.Equal(t, FormatPrompt, last[1].(map[string]interface{})["text"])
	for _, m := range msgs {
		for _, block := range m.(map[string]interface{})["content"].([]interface{}) {
			assert.NotEqual(t, "Here is your plan.", block.(map[string]interface{})["text"])
		}
	}
}
