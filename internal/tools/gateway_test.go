package tools

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tripgenie/tripgenie-backend/internal/logging"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// fakeTool runs fn on every call and counts invocations
type fakeTool struct {
	name   string
	schema Schema
	calls  int32
	fn     func(ctx context.Context, args Args) (Output, error)
}

func (f *fakeTool) Name() string        { return f.name }
func (f *fakeTool) Description() string { return "fake " + f.name }
func (f *fakeTool) Schema() Schema      { return f.schema }
func (f *fakeTool) Invoke(ctx context.Context, args Args) (Output, error) {
	atomic.AddInt32(&f.calls, 1)
	return f.fn(ctx, args)
}

type recordingObserver struct {
	mu       sync.Mutex
	statuses []Status
}

func (o *recordingObserver) ObserveTool(_ string, status Status, _ time.Duration) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.statuses = append(o.statuses, status)
}

func newTestGateway(timeout time.Duration, observer Observer) *Gateway {
	logger := logging.Discard()
	return NewGateway(GatewayConfig{
		Timeout:  timeout,
		Breaker:  NewCircuitBreaker(2, time.Minute, logger),
		Observer: observer,
		Logger:   logger,
	})
}

func decodeError(t *testing.T, content string) string {
	t.Helper()
	var payload map[string]string
	require.NoError(t, json.Unmarshal([]byte(content), &payload))
	return payload["error"]
}

func TestGateway_Success(t *testing.T) {
	obs := &recordingObserver{}
	gw := newTestGateway(time.Second, obs)
	gw.Register(&fakeTool{
		name:   "echo",
		schema: Schema{Fields: []Field{{Name: "text", Type: TypeString, Required: true}}},
		fn: func(_ context.Context, args Args) (Output, error) {
			return Output{Content: "echo: " + args.String("text")}, nil
		},
	})

	res := gw.Invoke(context.Background(), "echo", Args{"text": "hi", "extra": 1})
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, "echo: hi", res.Content)
	assert.Equal(t, "echo", res.Tool)
	assert.False(t, res.Failed())
	assert.Equal(t, []Status{StatusOK}, obs.statuses)
}

func TestGateway_UnknownTool(t *testing.T) {
	gw := newTestGateway(time.Second, nil)

	res := gw.Invoke(context.Background(), "teleport", Args{})
	assert.Equal(t, StatusUnknownTool, res.Status)
	assert.Equal(t, `{"error":"Unknown tool: teleport"}`, res.Content)
	assert.True(t, res.Failed())
}

func TestGateway_InvalidArguments(t *testing.T) {
	tool := &fakeTool{
		name:   "needs",
		schema: Schema{Fields: []Field{{Name: "city", Type: TypeString, Required: true}}},
		fn:     func(context.Context, Args) (Output, error) { return Output{Content: "x"}, nil },
	}
	gw := newTestGateway(time.Second, nil)
	gw.Register(tool)

	res := gw.Invoke(context.Background(), "needs", Args{})
	assert.Equal(t, StatusInvalidArgs, res.Status)
	assert.Contains(t, decodeError(t, res.Content), `missing required argument "city"`)
	assert.Zero(t, atomic.LoadInt32(&tool.calls))
}

func TestGateway_Timeout(t *testing.T) {
	gw := newTestGateway(20*time.Millisecond, nil)
	gw.Register(&fakeTool{
		name: "slow",
		fn: func(ctx context.Context, _ Args) (Output, error) {
			<-ctx.Done()
			return Output{}, ctx.Err()
		},
	})

	res := gw.Invoke(context.Background(), "slow", Args{})
	assert.Equal(t, StatusTimeout, res.Status)
	assert.NotEmpty(t, res.Content)
	assert.Contains(t, decodeError(t, res.Content), "slow timed out after 20ms")
}

func TestGateway_ToolIgnoringContextStillTimesOut(t *testing.T) {
	release := make(chan struct{})
	defer close(release)

	gw := newTestGateway(20*time.Millisecond, nil)
	gw.Register(&fakeTool{
		name: "stuck",
		fn: func(context.Context, Args) (Output, error) {
			<-release
			return Output{Content: "late"}, nil
		},
	})

	start := time.Now()
	res := gw.Invoke(context.Background(), "stuck", Args{})
	assert.Equal(t, StatusTimeout, res.Status)
	assert.Less(t, time.Since(start), time.Second)
}

func TestGateway_ErrorAndPanic(t *testing.T) {
	gw := newTestGateway(time.Second, nil)
	gw.Register(&fakeTool{
		name: "broken",
		fn: func(context.Context, Args) (Output, error) {
			return Output{}, errors.New("upstream 503")
		},
	})
	gw.Register(&fakeTool{
		name: "panicky",
		fn: func(context.Context, Args) (Output, error) {
			panic("boom")
		},
	})

	res := gw.Invoke(context.Background(), "broken", Args{})
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "tool broken failed: upstream 503", decodeError(t, res.Content))

	res = gw.Invoke(context.Background(), "panicky", Args{})
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Error, "boom")
}

func TestGateway_NoResults(t *testing.T) {
	gw := newTestGateway(time.Second, nil)
	gw.Register(&fakeTool{
		name: "sentinel",
		fn: func(context.Context, Args) (Output, error) {
			return Output{Content: "No flights found.", NoResults: true}, nil
		},
	})
	gw.Register(&fakeTool{
		name: "empty",
		fn:   func(context.Context, Args) (Output, error) { return Output{Content: "  "}, nil },
	})

	res := gw.Invoke(context.Background(), "sentinel", Args{})
	assert.Equal(t, StatusNoResults, res.Status)
	assert.Equal(t, "No flights found.", res.Content)
	assert.False(t, res.Failed())

	res = gw.Invoke(context.Background(), "empty", Args{})
	assert.Equal(t, StatusNoResults, res.Status)
	assert.Equal(t, "No results found.", res.Content)
}

func TestGateway_BreakerOpensAfterRepeatedFailures(t *testing.T) {
	obs := &recordingObserver{}
	gw := newTestGateway(time.Second, obs)
	tool := &fakeTool{
		name: "flaky",
		fn: func(context.Context, Args) (Output, error) {
			return Output{}, errors.New("down")
		},
	}
	gw.Register(tool)

	gw.Invoke(context.Background(), "flaky", Args{})
	gw.Invoke(context.Background(), "flaky", Args{})
	res := gw.Invoke(context.Background(), "flaky", Args{})

	assert.Equal(t, StatusUnavailable, res.Status)
	assert.Contains(t, decodeError(t, res.Content), "temporarily unavailable")
	assert.Equal(t, int32(2), atomic.LoadInt32(&tool.calls))
	assert.Equal(t, []Status{StatusError, StatusError, StatusUnavailable}, obs.statuses)
}

func TestGateway_RegistrationOrder(t *testing.T) {
	gw := newTestGateway(time.Second, nil)
	for _, name := range []string{"b", "a", "c", "a"} {
		gw.Register(&fakeTool{name: name, fn: func(context.Context, Args) (Output, error) { return Output{}, nil }})
	}

	var names []string
	for _, tool := range gw.Tools() {
		names = append(names, tool.Name())
	}
	assert.Equal(t, []string{"b", "a", "c"}, names)

	_, ok := gw.Lookup("c")
	assert.True(t, ok)
	_, ok = gw.Lookup("z")
	assert.False(t, ok)
}

func TestCircuitBreaker_HalfOpenRecovery(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute, logging.Discard())
	cb.now = func() time.Time { return now }

	cb.Record("t", true)
	assert.Equal(t, StateOpen, cb.State("t"))
	assert.False(t, cb.Allow("t"))

	now = now.Add(2 * time.Minute)
	assert.True(t, cb.Allow("t"))
	assert.Equal(t, StateHalfOpen, cb.State("t"))

	cb.Record("t", false)
	cb.Record("t", false)
	assert.Equal(t, StateClosed, cb.State("t"))

	cb.Record("t", true)
	assert.Equal(t, "open", cb.State("t").String())
	cb.Reset("t")
	assert.Equal(t, StateClosed, cb.State("t"))
}

func TestCircuitBreaker_HalfOpenAdmitsOneTrial(t *testing.T) {
	now := time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC)
	cb := NewCircuitBreaker(1, time.Minute, logging.Discard())
	cb.now = func() time.Time { return now }

	cb.Record("t", true)
	now = now.Add(2 * time.Minute)

	var allowed int32
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cb.Allow("t") {
				atomic.AddInt32(&allowed, 1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), allowed)
	assert.Equal(t, StateHalfOpen, cb.State("t"))

	cb.Release("t")
	assert.True(t, cb.Allow("t"), "released trial frees the slot")
	assert.False(t, cb.Allow("t"))

	cb.Record("t", false)
	assert.True(t, cb.Allow("t"))
	cb.Record("t", false)
	assert.Equal(t, StateClosed, cb.State("t"))
	assert.True(t, cb.Allow("t"))
	assert.True(t, cb.Allow("t"))
}

func TestGateway_CallerDeadlineIsReported(t *testing.T) {
	gw := newTestGateway(time.Minute, nil)
	gw.Register(&fakeTool{
		name: "slow",
		fn: func(ctx context.Context, _ Args) (Output, error) {
			<-ctx.Done()
			return Output{}, ctx.Err()
		},
	})

	for i := 0; i < 3; i++ {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
		res := gw.Invoke(ctx, "slow", Args{})
		cancel()

		assert.Equal(t, StatusTimeout, res.Status)
		msg := decodeError(t, res.Content)
		assert.Equal(t, "slow stopped: request deadline exceeded; no results", msg)
		assert.NotContains(t, msg, "timed out after 1m0s")
	}
	assert.Equal(t, StateClosed, gw.breaker.State("slow"), "caller deadlines do not trip the breaker")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := gw.Invoke(ctx, "slow", Args{})
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "slow stopped: request cancelled", res.Error)
}

func TestGateway_InvokeJSONFillsFromContext(t *testing.T) {
	var got Args
	gw := newTestGateway(time.Second, nil)
	gw.Register(&fakeTool{
		name: "plan",
		schema: Schema{Fields: []Field{
			{Name: "destination", Type: TypeString, Required: true, ContextKey: BindDestination},
			{Name: "travelers", Type: TypeInteger, Required: true, ContextKey: BindTravelers},
		}},
		fn: func(_ context.Context, args Args) (Output, error) {
			got = args
			return Output{Content: "ok"}, nil
		},
	})
	tc := repository.TripContext{Destination: "Paris", Travelers: 2}

	res := gw.InvokeJSON(context.Background(), "plan", `{"travelers": 3}`, tc)
	assert.Equal(t, StatusOK, res.Status)
	assert.Equal(t, Args{"destination": "Paris", "travelers": 3}, got)

	res = gw.InvokeJSON(context.Background(), "plan", `not json`, tc)
	assert.Equal(t, StatusInvalidArgs, res.Status)
	assert.Equal(t, "plan", res.Tool)

	res = gw.InvokeJSON(context.Background(), "nope", `{}`, tc)
	assert.Equal(t, `{"error":"Unknown tool: nope"}`, res.Content)
}
