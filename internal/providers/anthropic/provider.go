package anthropic

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tripgenie/tripgenie-backend/internal/config"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
)

const (
	defaultBaseURL   = "https://api.anthropic.com"
	messagesPath     = "/v1/messages"
	anthropicVersion = "2023-06-01"

	// DefaultModel is used when neither the request nor the config names a model
	DefaultModel     = "claude-3-5-haiku-latest"
	defaultMaxTokens = 4096
)

// Provider implements the Anthropic Messages API provider
type Provider struct {
	config  config.LLMConfig
	baseURL string
	client  *http.Client
}

// AnthropicRequest represents a request to Anthropic's API
type AnthropicRequest struct {
	Model       string               `json:"model"`
	Messages    []AnthropicMessage   `json:"messages"`
	MaxTokens   int                  `json:"max_tokens"`
	Temperature *float32             `json:"temperature,omitempty"`
	System      string               `json:"system,omitempty"`
	Tools       []AnthropicTool      `json:"tools,omitempty"`
	ToolChoice  *AnthropicToolChoice `json:"tool_choice,omitempty"`
}

// AnthropicMessage represents a message in Anthropic format
type AnthropicMessage struct {
	Role    string             `json:"role"`
	Content []AnthropicContent `json:"content"`
}

// AnthropicContent is one content block
type AnthropicContent struct {
	Type      string          `json:"type"`
	Text      string          `json:"text,omitempty"`
	ID        string          `json:"id,omitempty"`
	Name      string          `json:"name,omitempty"`
	Input     json.RawMessage `json:"input,omitempty"`
	ToolUseID string          `json:"tool_use_id,omitempty"`
	Content   string          `json:"content,omitempty"`
}

// AnthropicTool represents a tool definition
type AnthropicTool struct {
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	InputSchema map[string]interface{} `json:"input_schema"`
}

// AnthropicToolChoice represents tool selection
type AnthropicToolChoice struct {
	Type string `json:"type"`
}

// AnthropicResponse represents a response from Anthropic's API
type AnthropicResponse struct {
	ID         string             `json:"id"`
	Type       string             `json:"type"`
	Role       string             `json:"role"`
	Content    []AnthropicContent `json:"content"`
	Model      string             `json:"model"`
	StopReason string             `json:"stop_reason,omitempty"`
	Usage      AnthropicUsage     `json:"usage"`
}

// AnthropicUsage represents token usage
type AnthropicUsage struct {
	InputTokens  int `json:"input_tokens"`
	OutputTokens int `json:"output_tokens"`
}

// NewProvider creates a new Anthropic provider
func NewProvider(cfg config.LLMConfig) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("Anthropic API key is required")
	}

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	return &Provider{
		config:  cfg,
		baseURL: baseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Name returns the provider name
func (p *Provider) Name() string {
	return "anthropic"
}

// Complete performs a non-streaming completion
func (p *Provider) Complete(ctx context.Context, req providers.CompletionRequest) (*providers.CompletionResponse, error) {
	body, err := json.Marshal(p.convertRequest(req))
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+messagesPath, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}

	p.setHeaders(httpReq)

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("Anthropic API error: %s - %s", resp.Status, string(bodyBytes))
	}

	var anthropicResp AnthropicResponse
	if err := json.NewDecoder(resp.Body).Decode(&anthropicResp); err != nil {
		return nil, err
	}

	return p.convertResponse(&anthropicResp), nil
}

// setHeaders sets the required headers for Anthropic API
func (p *Provider) setHeaders(req *http.Request) {
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", p.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)
}

// convertRequest converts internal request to Anthropic request. System messages are
// joined into the system field; consecutive turns of one role, tool results included,
// are folded into a single message.
func (p *Provider) convertRequest(req providers.CompletionRequest) AnthropicRequest {
	model := req.Model
	if model == "" {
		model = p.config.Model
	}
	if model == "" {
		model = DefaultModel
	}

	anthropicReq := AnthropicRequest{
		Model:     model,
		MaxTokens: defaultMaxTokens,
	}
	if req.MaxTokens != nil {
		anthropicReq.MaxTokens = *req.MaxTokens
	}
	if req.Temperature != nil {
		anthropicReq.Temperature = req.Temperature
	} else if p.config.Temperature > 0 {
		t := p.config.Temperature
		anthropicReq.Temperature = &t
	}

	var system []string
	for _, msg := range req.Messages {
		switch msg.Role {
		case providers.RoleSystem:
			system = append(system, msg.Content)

		case providers.RoleTool:
			block := AnthropicContent{Type: "tool_result", ToolUseID: msg.ToolCallID, Content: msg.Content}
			n := len(anthropicReq.Messages)
			if n > 0 && anthropicReq.Messages[n-1].Role == providers.RoleUser && isToolResults(anthropicReq.Messages[n-1]) {
				anthropicReq.Messages[n-1].Content = append(anthropicReq.Messages[n-1].Content, block)
				continue
			}
			anthropicReq.Messages = append(anthropicReq.Messages, AnthropicMessage{
				Role:    providers.RoleUser,
				Content: []AnthropicContent{block},
			})

		default:
			var content []AnthropicContent
			if msg.Content != "" {
				content = append(content, AnthropicContent{Type: "text", Text: msg.Content})
			}
			for _, tc := range msg.ToolCalls {
				input := json.RawMessage(tc.Function.Arguments)
				if !json.Valid(input) || len(bytes.TrimSpace(input)) == 0 {
					input = json.RawMessage("{}")
				}
				content = append(content, AnthropicContent{
					Type:  "tool_use",
					ID:    tc.ID,
					Name:  tc.Function.Name,
					Input: input,
				})
			}
			if len(content) == 0 {
				continue
			}
			// the API expects alternating roles
			n := len(anthropicReq.Messages)
			if n > 0 && anthropicReq.Messages[n-1].Role == msg.Role {
				anthropicReq.Messages[n-1].Content = append(anthropicReq.Messages[n-1].Content, content...)
				continue
			}
			anthropicReq.Messages = append(anthropicReq.Messages, AnthropicMessage{Role: msg.Role, Content: content})
		}
	}
	anthropicReq.System = strings.Join(system, "\n\n")

	for _, tool := range req.Tools {
		anthropicReq.Tools = append(anthropicReq.Tools, AnthropicTool{
			Name:        tool.Function.Name,
			Description: tool.Function.Description,
			InputSchema: tool.Function.Parameters,
		})
	}

	if req.ToolChoice != nil && len(anthropicReq.Tools) > 0 {
		switch req.ToolChoice.Type {
		case "auto", "none":
			anthropicReq.ToolChoice = &AnthropicToolChoice{Type: req.ToolChoice.Type}
		}
	}

	return anthropicReq
}

func isToolResults(msg AnthropicMessage) bool {
	for _, c := range msg.Content {
		if c.Type != "tool_result" {
			return false
		}
	}
	return len(msg.Content) > 0
}

// convertResponse converts Anthropic response to internal response
func (p *Provider) convertResponse(resp *AnthropicResponse) *providers.CompletionResponse {
	message := providers.Message{Role: providers.RoleAssistant}

	var text strings.Builder
	for _, content := range resp.Content {
		switch content.Type {
		case "text":
			text.WriteString(content.Text)
		case "tool_use":
			message.ToolCalls = append(message.ToolCalls, providers.ToolCall{
				ID:   content.ID,
				Type: "function",
				Function: providers.FunctionCall{
					Name:      content.Name,
					Arguments: string(content.Input),
				},
			})
		}
	}
	message.Content = text.String()

	finish := "stop"
	if resp.StopReason == "tool_use" {
		finish = "tool_calls"
	}

	return &providers.CompletionResponse{
		ID:    resp.ID,
		Model: resp.Model,
		Choices: []providers.Choice{{
			Index:        0,
			Message:      message,
			FinishReason: finish,
		}},
		Usage: providers.Usage{
			PromptTokens:     resp.Usage.InputTokens,
			CompletionTokens: resp.Usage.OutputTokens,
			TotalTokens:      resp.Usage.InputTokens + resp.Usage.OutputTokens,
		},
	}
}
