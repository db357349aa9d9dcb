package tools

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// DefaultTimeout bounds one tool invocation
const DefaultTimeout = 90 * time.Second

// Observer is notified after every invocation
type Observer interface {
	ObserveTool(tool string, status Status, duration time.Duration)
}

// Result is always returned by Invoke: either tool output or a payload describing
// why there is none. Content is never empty.
type Result struct {
	Tool     string        `json:"tool"`
	Status   Status        `json:"status"`
	Content  string        `json:"content"`
	Error    string        `json:"error,omitempty"`
	Duration time.Duration `json:"duration"`
}

// Failed reports whether the call produced no usable data
func (r Result) Failed() bool {
	return r.Status != StatusOK && r.Status != StatusNoResults
}

// GatewayConfig configures a Gateway
type GatewayConfig struct {
	Timeout  time.Duration
	Breaker  *CircuitBreaker
	Observer Observer
	Logger   *logrus.Logger
}

// Gateway dispatches named tool calls with argument validation, a per-call timeout
// and a per-tool circuit breaker. It never retries.
type Gateway struct {
	mu    sync.RWMutex
	tools map[string]Tool
	order []string

	timeout  time.Duration
	breaker  *CircuitBreaker
	observer Observer
	logger   *logrus.Logger
}

// NewGateway creates an empty gateway
func NewGateway(cfg GatewayConfig) *Gateway {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Breaker == nil {
		cfg.Breaker = NewCircuitBreaker(5, 30*time.Second, cfg.Logger)
	}
	return &Gateway{
		tools:    make(map[string]Tool),
		timeout:  cfg.Timeout,
		breaker:  cfg.Breaker,
		observer: cfg.Observer,
		logger:   cfg.Logger,
	}
}

// Register adds or replaces a tool
func (g *Gateway) Register(tool Tool) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, exists := g.tools[tool.Name()]; !exists {
		g.order = append(g.order, tool.Name())
	}
	g.tools[tool.Name()] = tool
}

// Tools returns the registered tools in registration order
func (g *Gateway) Tools() []Tool {
	g.mu.RLock()
	defer g.mu.RUnlock()

	out := make([]Tool, 0, len(g.order))
	for _, name := range g.order {
		out = append(out, g.tools[name])
	}
	return out
}

// Lookup finds a tool by name
func (g *Gateway) Lookup(name string) (Tool, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	tool, ok := g.tools[name]
	return tool, ok
}

type outcome struct {
	output Output
	err    error
}

// Invoke runs one tool call
func (g *Gateway) Invoke(ctx context.Context, name string, args Args) Result {
	start := time.Now()
	return g.finish(name, start, g.invoke(ctx, name, args))
}

// InvokeJSON decodes model-supplied arguments, fills missing context-bound fields
// from tc and runs the call
func (g *Gateway) InvokeJSON(ctx context.Context, name, rawArgs string, tc repository.TripContext) Result {
	start := time.Now()
	args, err := ParseArgs(rawArgs)
	if err != nil {
		return g.finish(name, start, failure(StatusInvalidArgs, err.Error()))
	}
	if tool, ok := g.Lookup(name); ok {
		args = tool.Schema().FillFromContext(args, tc)
	}
	return g.finish(name, start, g.invoke(ctx, name, args))
}

func (g *Gateway) finish(name string, start time.Time, result Result) Result {
	result.Tool = name
	result.Duration = time.Since(start)

	fields := logrus.Fields{"tool": name, "status": result.Status, "duration": result.Duration}
	switch result.Status {
	case StatusOK, StatusNoResults:
		g.logger.WithFields(fields).Info("Tool invocation finished")
	case StatusTimeout, StatusUnavailable:
		g.logger.WithFields(fields).Warn("Tool invocation produced no data")
	default:
		g.logger.WithFields(fields).WithField("error", result.Error).Warn("Tool invocation failed")
	}
	if g.observer != nil {
		g.observer.ObserveTool(name, result.Status, result.Duration)
	}
	return result
}

func (g *Gateway) invoke(ctx context.Context, name string, args Args) Result {
	tool, ok := g.Lookup(name)
	if !ok {
		return failure(StatusUnknownTool, fmt.Sprintf("Unknown tool: %s", name))
	}

	validated, err := tool.Schema().Validate(args)
	if err != nil {
		return failure(StatusInvalidArgs, err.Error())
	}

	if !g.breaker.Allow(name) {
		return failure(StatusUnavailable, fmt.Sprintf("%s is temporarily unavailable: %v", name, ErrBreakerOpen))
	}

	g.logger.WithFields(logrus.Fields{"tool": name, "args": validated}).Debug("Invoking tool")

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("tool panicked: %v", r)}
			}
		}()
		out, err := tool.Invoke(callCtx, validated)
		done <- outcome{output: out, err: err}
	}()

	var res outcome
	select {
	case res = <-done:
	case <-callCtx.Done():
		res = outcome{err: callCtx.Err()}
	}

	if res.err != nil {
		// the caller gave up; the tool is not to blame
		if ctxErr := ctx.Err(); ctxErr != nil {
			g.breaker.Release(name)
			if errors.Is(ctxErr, context.DeadlineExceeded) {
				return failure(StatusTimeout, fmt.Sprintf("%s stopped: request deadline exceeded; no results", name))
			}
			return failure(StatusError, fmt.Sprintf("%s stopped: request cancelled", name))
		}
		g.breaker.Record(name, true)
		if errors.Is(res.err, context.DeadlineExceeded) {
			return failure(StatusTimeout, fmt.Sprintf("%s timed out after %s; no results", name, g.timeout))
		}
		invErr := &InvocationError{Tool: name, Err: res.err}
		return failure(StatusError, invErr.Error())
	}

	g.breaker.Record(name, false)
	if res.output.NoResults || strings.TrimSpace(res.output.Content) == "" {
		content := res.output.Content
		if strings.TrimSpace(content) == "" {
			content = "No results found."
		}
		return Result{Status: StatusNoResults, Content: content}
	}
	return Result{Status: StatusOK, Content: res.output.Content}
}

func failure(status Status, message string) Result {
	return Result{Status: status, Content: ErrorPayload(message), Error: message}
}

// ErrorPayload renders {"error": message}
func ErrorPayload(message string) string {
	raw, _ := json.Marshal(map[string]string{"error": message})
	return string(raw)
}
