package stub

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
)

// Reply is one scripted completion
type Reply struct {
	Content   string
	ToolCalls []providers.ToolCall
	Err       error
	// Delay holds the reply back; the caller's context can cancel it
	Delay time.Duration
}

// Provider is an offline completion provider. Scripted replies are served in order;
// once they run out it answers with a keyword heuristic.
type Provider struct {
	mu     sync.Mutex
	script []Reply
	calls  []providers.CompletionRequest
}

// New creates a heuristic-only stub
func New() *Provider {
	return &Provider{}
}

// NewScripted creates a stub that serves replies in order
func NewScripted(replies ...Reply) *Provider {
	return &Provider{script: replies}
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "stub"
}

// Calls returns every request received so far
func (p *Provider) Calls() []providers.CompletionRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]providers.CompletionRequest(nil), p.calls...)
}

// Complete serves the next scripted reply or a heuristic one
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	p.mu.Lock()
	p.calls = append(p.calls, req)
	var (
		reply    Reply
		scripted bool
	)
	if len(p.script) > 0 {
		reply, p.script = p.script[0], p.script[1:]
		scripted = true
	}
	p.mu.Unlock()

	if !scripted {
		reply = heuristic(req)
	}

	if reply.Delay > 0 {
		select {
		case <-time.After(reply.Delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if reply.Err != nil {
		return nil, reply.Err
	}

	finish := "stop"
	if len(reply.ToolCalls) > 0 {
		finish = "tool_calls"
	}
	return &providers.CompletionResponse{
		ID:    fmt.Sprintf("stub-%d", time.Now().UnixNano()),
		Model: req.Model,
		Choices: []providers.Choice{{
			Message: providers.Message{
				Role:      providers.RoleAssistant,
				Content:   reply.Content,
				ToolCalls: reply.ToolCalls,
			},
			FinishReason: finish,
		}},
		Usage: providers.Usage{PromptTokens: 10, CompletionTokens: 10, TotalTokens: 20},
	}, nil
}

// ToolCall builds a function tool call with a fresh id
func ToolCall(name, arguments string) providers.ToolCall {
	return providers.ToolCall{
		ID:       "call_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Type:     "function",
		Function: providers.FunctionCall{Name: name, Arguments: arguments},
	}
}

var keywordTools = []struct {
	keywords []string
	tool     string
}{
	{[]string{"flight", "fly"}, "firecrawl_flight_search"},
	{[]string{"hotel", "stay", "accommodation"}, "firecrawl_hotel_search"},
	{[]string{"itinerary", "plan"}, "generate_itinerary"},
}

// heuristic requests the first offered tool whose keywords appear in the latest user
// message, unless tool results for that message are already present
func heuristic(req providers.CompletionRequest) Reply {
	last, toolOutputs := latestUserTurn(req.Messages)

	if len(toolOutputs) > 0 {
		return Reply{Content: "Here is what I found for your trip:\n\n" + strings.Join(toolOutputs, "\n\n")}
	}

	offered := make(map[string]bool, len(req.Tools))
	for _, t := range req.Tools {
		offered[t.Function.Name] = true
	}
	lower := strings.ToLower(last)
	for _, kt := range keywordTools {
		if !offered[kt.tool] {
			continue
		}
		for _, kw := range kt.keywords {
			if strings.Contains(lower, kw) {
				return Reply{ToolCalls: []providers.ToolCall{ToolCall(kt.tool, "{}")}}
			}
		}
	}
	return Reply{Content: "I'm here to help with your trip planning! Tell me where you'd like to go, when, and who is travelling."}
}

func latestUserTurn(messages []providers.Message) (string, []string) {
	var outputs []string
	for i := len(messages) - 1; i >= 0; i-- {
		switch messages[i].Role {
		case providers.RoleUser:
			return messages[i].Content, outputs
		case providers.RoleTool:
			outputs = append([]string{messages[i].Content}, outputs...)
		}
	}
	return "", outputs
}
