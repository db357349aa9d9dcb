package openai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
)

func TestNewProvider_RequiresKey(t *testing.T) {
	_, err := NewProvider(config.LLMConfig{})
	assert.Error(t, err)
}

func TestComplete_ToolCallRoundTrip(t *testing.T) {
	var body map[string]interface{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/chat/completions", r.URL.Path)
		assert.Equal(t, "Bearer sk-test", r.Header.Get("Authorization"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"id": "chatcmpl-1",
			"model": "gpt-4o-mini",
			"choices": [{
				"index": 0,
				"finish_reason": "tool_calls",
				"message": {
					"role": "assistant",
					"content": "",
					"tool_calls": [{"id": "call_1", "type": "function", "function": {"name": "generate_itinerary", "arguments": "{\"destination\":\"Paris\"}"}}]
				}
			}],
			"usage": {"prompt_tokens": 5, "completion_tokens": 7, "total_tokens": 12}
		}`))
	}))
	defer server.Close()

	p, err := NewProvider(config.LLMConfig{APIKey: "sk-test", BaseURL: server.URL + "/", Model: "gpt-4o-mini", Temperature: 0.7, Timeout: 5 * time.Second})
	require.NoError(t, err)

	resp, err := p.Complete(context.Background(), providers.CompletionRequest{
		Messages: []providers.Message{
			{Role: providers.RoleSystem, Content: "You are TripGenie"},
			{Role: providers.RoleUser, Content: "Plan Paris"},
		},
		Tools: []providers.Tool{{
			Type: "function",
			Function: providers.Function{
				Name:        "generate_itinerary",
				Description: "itinerary",
				Parameters:  map[string]interface{}{"type": "object"},
			},
		}},
		ToolChoice: &providers.ToolChoice{Type: "auto"},
	})
	require.NoError(t, err)

	assert.Equal(t, "gpt-4o-mini", body["model"])
	assert.Equal(t, "auto", body["tool_choice"])
	assert.Len(t, body["tools"], 1)
	assert.Len(t, body["messages"], 2)

	msg, err := resp.FirstMessage()
	require.NoError(t, err)
	require.Len(t, msg.ToolCalls, 1)
	assert.Equal(t, "call_1", msg.ToolCalls[0].ID)
	assert.Equal(t, "generate_itinerary", msg.ToolCalls[0].Function.Name)
	assert.JSONEq(t, `{"destination":"Paris"}`, msg.ToolCalls[0].Function.Arguments)
	assert.Equal(t, 12, resp.Usage.TotalTokens)
}

func TestComplete_APIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusInternalServerError)
		_, _ = w.Write([]byte(`{"error":{"message":"overloaded","type":"server_error"}}`))
	}))
	defer server.Close()

	p, err := NewProvider(config.LLMConfig{APIKey: "sk-test", BaseURL: server.URL, Model: "m"})
	require.NoError(t, err)

	_, err = p.Complete(context.Background(), providers.CompletionRequest{
		Messages: []providers.Message{{Role: providers.RoleUser, Content: "hi"}},
	})
	assert.ErrorContains(t, err, "OpenAI API error: 500 - overloaded")
}

func TestConvertRequest_ToolHistory(t *testing.T) {
	p := &Provider{config: config.LLMConfig{Model: "default-model", Temperature: 0.3}}
	req := p.convertRequest(providers.CompletionRequest{
		Messages: []providers.Message{
			{Role: providers.RoleAssistant, ToolCalls: []providers.ToolCall{{ID: "c1", Type: "function", Function: providers.FunctionCall{Name: "t", Arguments: "{}"}}}},
			{Role: providers.RoleTool, ToolCallID: "c1", Content: "result"},
		},
		ToolChoice: &providers.ToolChoice{Type: "auto"},
	})

	assert.Equal(t, "default-model", req.Model)
	assert.InDelta(t, 0.3, req.Temperature, 0.0001)
	assert.Nil(t, req.ToolChoice, "tool choice is dropped without tools")
	require.Len(t, req.Messages[0].ToolCalls, 1)
	assert.Equal(t, "c1", req.Messages[1].ToolCallID)
}

func TestConvertRequest_DefaultModel(t *testing.T) {
	p := &Provider{}
	assert.Equal(t, DefaultModel, p.convertRequest(providers.CompletionRequest{}).Model)
	assert.Equal(t, "gpt-4o", p.convertRequest(providers.CompletionRequest{Model: "gpt-4o"}).Model)
	assert.Nil(t, p.convertRequest(providers.CompletionRequest{}).Tools)
}
