package agent

import (
	"context"
	"strings"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/providers"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
	"github.com/tripgenie/tripgenie-backend/internal/tools"
	"github.com/tripgenie/tripgenie-backend/internal/tripcontext"
)

// FallbackResponse is returned when a turn ends without assistant text
const FallbackResponse = "I'm here to help with your trip planning!"

// DefaultMaxToolRounds bounds TOOLS rounds per turn
const DefaultMaxToolRounds = 5

// Phase is a state of the turn state machine
type Phase string

const (
	PhaseExtract Phase = "extract"
	PhaseDecide  Phase = "decide"
	PhaseTools   Phase = "tools"
	PhaseRespond Phase = "respond"
	PhaseDone    Phase = "done"
)

// TurnInput is the conversation a turn starts from
type TurnInput struct {
	// History is the stored log, ending with the new user message
	History []repository.Message
	// StoredContext is the session's merged summary before this turn
	StoredContext repository.TripContext
}

// TurnResult is handed back to the caller for persistence
type TurnResult struct {
	Response string
	// ToolsUsed lists every requested tool name in request order
	ToolsUsed   []string
	ToolResults []ToolOutcome
	Context     repository.TripContext
	Rounds      int
}

// ToolOutcome pairs a tool result with the call that produced it
type ToolOutcome struct {
	CallID string
	Result tools.Result
}

// Orchestrator runs the EXTRACT, DECIDE, TOOLS, RESPOND state machine for one turn
type Orchestrator struct {
	decider       Decider
	gateway       *tools.Gateway
	extractor     *tripcontext.Extractor
	maxToolRounds int
	logger        *logrus.Logger
}

// Config configures an Orchestrator
type Config struct {
	Decider       Decider
	Gateway       *tools.Gateway
	Extractor     *tripcontext.Extractor
	MaxToolRounds int
	Logger        *logrus.Logger
}

// NewOrchestrator creates an orchestrator
func NewOrchestrator(cfg Config) *Orchestrator {
	if cfg.Extractor == nil {
		cfg.Extractor = tripcontext.NewExtractor(nil)
	}
	if cfg.MaxToolRounds <= 0 {
		cfg.MaxToolRounds = DefaultMaxToolRounds
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Orchestrator{
		decider:       cfg.Decider,
		gateway:       cfg.Gateway,
		extractor:     cfg.Extractor,
		maxToolRounds: cfg.MaxToolRounds,
		logger:        cfg.Logger,
	}
}

// turnState is the transient state of one turn
type turnState struct {
	phase    Phase
	context  repository.TripContext
	messages []providers.Message
	pending  []providers.ToolCall
	final    string
	result   TurnResult
}

// Run processes one turn. Tool failures never fail the turn; a CompletionError does.
func (o *Orchestrator) Run(ctx context.Context, in TurnInput) (*TurnResult, error) {
	st := &turnState{
		phase:    PhaseExtract,
		messages: ProviderHistory(in.History),
	}

	for st.phase != PhaseDone {
		o.logger.WithFields(logrus.Fields{"phase": st.phase, "round": st.result.Rounds}).Debug("Turn phase")

		var err error
		switch st.phase {
		case PhaseExtract:
			o.extract(st, in)
		case PhaseDecide:
			err = o.decide(ctx, st)
		case PhaseTools:
			o.runTools(ctx, st)
		case PhaseRespond:
			err = o.respond(ctx, st)
		}
		if err != nil {
			return nil, err
		}
	}

	st.result.Response = st.final
	if strings.TrimSpace(st.result.Response) == "" {
		st.result.Response = FallbackResponse
	}
	st.result.Context = st.context
	return &st.result, nil
}

func (o *Orchestrator) extract(st *turnState, in TurnInput) {
	st.context = in.StoredContext.Merge(o.extractor.Extract(in.History))
	st.phase = PhaseDecide
}

func (o *Orchestrator) decide(ctx context.Context, st *turnState) error {
	exhausted := st.result.Rounds >= o.maxToolRounds
	var offered []tools.Tool
	if !exhausted && o.gateway != nil {
		offered = o.gateway.Tools()
	}

	decision, err := o.decider.Decide(ctx, DecideRequest{
		Context:         st.context,
		History:         st.messages,
		Tools:           offered,
		ScrapingEnabled: o.scrapingEnabled(),
	})
	if err != nil {
		return err
	}

	if decision.WantsTools() && !exhausted {
		st.messages = append(st.messages, providers.Message{
			Role:      providers.RoleAssistant,
			Content:   decision.Text,
			ToolCalls: decision.ToolCalls,
		})
		st.pending = decision.ToolCalls
		st.phase = PhaseTools
		return nil
	}
	if decision.WantsTools() {
		o.logger.WithField("rounds", st.result.Rounds).Warn("Tool calls requested after the round limit; answering with text")
	}

	st.final = decision.Text
	if decision.Text != "" {
		st.messages = append(st.messages, providers.Message{Role: providers.RoleAssistant, Content: decision.Text})
	}
	st.phase = PhaseRespond
	return nil
}

// runTools executes one round concurrently and appends results in request order
func (o *Orchestrator) runTools(ctx context.Context, st *turnState) {
	calls := st.pending
	st.pending = nil

	results := make([]tools.Result, len(calls))
	var wg sync.WaitGroup
	for i, call := range calls {
		st.result.ToolsUsed = append(st.result.ToolsUsed, call.Function.Name)
		wg.Add(1)
		go func(i int, call providers.ToolCall) {
			defer wg.Done()
			results[i] = o.invoke(ctx, call, st.context)
		}(i, call)
	}
	wg.Wait()

	for i, call := range calls {
		st.messages = append(st.messages, providers.Message{
			Role:       providers.RoleTool,
			Content:    results[i].Content,
			ToolCallID: call.ID,
		})
		st.result.ToolResults = append(st.result.ToolResults, ToolOutcome{CallID: call.ID, Result: results[i]})
	}
	st.result.Rounds++
	st.phase = PhaseDecide
}

func (o *Orchestrator) invoke(ctx context.Context, call providers.ToolCall, tc repository.TripContext) tools.Result {
	if o.gateway == nil {
		return tools.Result{
			Tool:    call.Function.Name,
			Status:  tools.StatusUnknownTool,
			Content: tools.ErrorPayload("Unknown tool: " + call.Function.Name),
		}
	}
	return o.gateway.InvokeJSON(ctx, call.Function.Name, call.Function.Arguments, tc)
}

// respond reformats tool output with a second completion; without tool results the
// DECIDE text already is the answer
func (o *Orchestrator) respond(ctx context.Context, st *turnState) error {
	if len(st.result.ToolResults) > 0 {
		text, err := o.decider.Format(ctx, FormatRequest{History: st.messages})
		if err != nil {
			return err
		}
		if strings.TrimSpace(text) != "" {
			st.final = text
		}
	}
	st.phase = PhaseDone
	return nil
}

func (o *Orchestrator) scrapingEnabled() bool {
	if o.gateway == nil {
		return false
	}
	_, ok := o.gateway.Lookup(tools.FlightSearchName)
	return ok
}

// ProviderHistory converts stored messages to completion messages. Stored tool results
// are dropped: the assistant tool-call messages they answer are not persisted.
func ProviderHistory(history []repository.Message) []providers.Message {
	out := make([]providers.Message, 0, len(history))
	for _, m := range history {
		switch m.Role {
		case repository.RoleUser:
			out = append(out, providers.Message{Role: providers.RoleUser, Content: m.Content})
		case repository.RoleAssistant:
			out = append(out, providers.Message{Role: providers.RoleAssistant, Content: m.Content})
		}
	}
	return out
}
