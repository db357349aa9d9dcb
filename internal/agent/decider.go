package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
)

// Completion phases
const (
	PhaseNameDecide  = "decide"
	PhaseNameRespond = "respond"
)

// CompletionError wraps a provider failure. It is fatal to the turn.
type CompletionError struct {
	Phase string
	Err   error
}

func (e *CompletionError) Error() string {
	return fmt.Sprintf("completion failed during %s: %v", e.Phase, e.Err)
}

func (e *CompletionError) Unwrap() error {
	return e.Err
}

// DecideRequest is everything the model sees when choosing between text and tools
type DecideRequest struct {
	Context         repository.TripContext
	History         []providers.Message
	Tools           []tools.Tool
	ScrapingEnabled bool
}

// Decision is either text or one or more tool calls
type Decision struct {
	Text      string
	ToolCalls []providers.ToolCall
}

// WantsTools reports whether the decision requests tool calls
func (d *Decision) WantsTools() bool {
	return d != nil && len(d.ToolCalls) > 0
}

// FormatRequest asks for the user-facing answer built from tool results
type FormatRequest struct {
	History []providers.Message
}

// Decider drives the model-dependent steps of a turn
type Decider interface {
	Decide(ctx context.Context, req DecideRequest) (*Decision, error)
	Format(ctx context.Context, req FormatRequest) (string, error)
}

// CompletionObserver is notified after every completion call
type CompletionObserver interface {
	ObserveCompletion(phase string, err error, duration time.Duration)
}

// ModelDecider implements Decider over a completion provider
type ModelDecider struct {
	provider providers.Provider
	observer CompletionObserver
	logger   *logrus.Logger
}

// NewModelDecider creates a decider; observer may be nil
func NewModelDecider(provider providers.Provider, observer CompletionObserver, logger *logrus.Logger) *ModelDecider {
	if logger == nil {
		logger = logrus.New()
	}
	return &ModelDecider{provider: provider, observer: observer, logger: logger}
}

// Decide runs the DECIDE completion with the system prompt and the offered tools
func (d *ModelDecider) Decide(ctx context.Context, req DecideRequest) (*Decision, error) {
	messages := make([]providers.Message, 0, len(req.History)+1)
	messages = append(messages, providers.Message{
		Role:    providers.RoleSystem,
		Content: SystemPrompt(req.Context, req.ScrapingEnabled),
	})
	messages = append(messages, req.History...)

	creq := providers.CompletionRequest{Messages: messages}
	if len(req.Tools) > 0 {
		creq.Tools = ToolDefinitions(req.Tools)
		creq.ToolChoice = &providers.ToolChoice{Type: "auto"}
	}

	msg, err := d.complete(ctx, PhaseNameDecide, creq)
	if err != nil {
		return nil, err
	}
	return &Decision{Text: msg.Content, ToolCalls: msg.ToolCalls}, nil
}

// Format runs the RESPOND completion over the history including tool results.
// A trailing plain assistant answer is dropped so the request ends on a user turn.
func (d *ModelDecider) Format(ctx context.Context, req FormatRequest) (string, error) {
	history := req.History
	if n := len(history); n > 0 && history[n-1].Role == providers.RoleAssistant && len(history[n-1].ToolCalls) == 0 {
		history = history[:n-1]
	}

	messages := make([]providers.Message, 0, len(history)+1)
	messages = append(messages, history...)
	messages = append(messages, providers.Message{Role: providers.RoleUser, Content: FormatPrompt})

	msg, err := d.complete(ctx, PhaseNameRespond, providers.CompletionRequest{Messages: messages})
	if err != nil {
		return "", err
	}
	return msg.Content, nil
}

func (d *ModelDecider) complete(ctx context.Context, phase string, req providers.CompletionRequest) (providers.Message, error) {
	start := time.Now()
	resp, err := d.provider.Complete(ctx, req)
	var msg providers.Message
	if err == nil {
		msg, err = resp.FirstMessage()
	}
	if d.observer != nil {
		d.observer.ObserveCompletion(phase, err, time.Since(start))
	}
	if err != nil {
		d.logger.WithFields(logrus.Fields{
			"provider": d.provider.Name(),
			"phase":    phase,
			"error":    err,
		}).Error("Completion failed")
		return providers.Message{}, &CompletionError{Phase: phase, Err: err}
	}
	return msg, nil
}

// ToolDefinitions renders gateway tools as model tool definitions
func ToolDefinitions(ts []tools.Tool) []providers.Tool {
	defs := make([]providers.Tool, 0, len(ts))
	for _, t := range ts {
		defs = append(defs, providers.Tool{
			Type: "function",
			Function: providers.Function{
				Name:        t.Name(),
				Description: t.Description(),
				Parameters:  t.Schema().JSONSchema(),
			},
		})
	}
	return defs
}
