package tools

import (
	"context"
	"errors"
	"fmt"
)

// Status classifies the outcome of one invocation
type Status string

const (
	StatusOK          Status = "ok"
	StatusNoResults   Status = "no_results"
	StatusError       Status = "error"
	StatusTimeout     Status = "timeout"
	StatusUnknownTool Status = "unknown_tool"
	StatusUnavailable Status = "unavailable"
	StatusInvalidArgs Status = "invalid_arguments"
)

var (
	// ErrUnknownTool classifies calls to tools that are not registered
	ErrUnknownTool = errors.New("unknown tool")
	// ErrBreakerOpen is returned while a tool's circuit breaker is open
	ErrBreakerOpen = errors.New("circuit breaker is open")
)

// Tool is one external capability the gateway can dispatch to
type Tool interface {
	Name() string
	Description() string
	Schema() Schema
	// Invoke runs the tool with validated arguments. Returning an error marks the call
	// failed; the gateway turns it into an error payload.
	Invoke(ctx context.Context, args Args) (Output, error)
}

// Output is what a tool produced
type Output struct {
	Content string
	// NoResults marks an explicit "nothing found" sentinel
	NoResults bool
}

// InvocationError records why a named tool call failed
type InvocationError struct {
	Tool string
	Err  error
}

func (e *InvocationError) Error() string {
	return fmt.Sprintf("tool %s failed: %v", e.Tool, e.Err)
}

func (e *InvocationError) Unwrap() error {
	return e.Err
}
