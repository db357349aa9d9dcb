package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/agent"
	"github.com/tripgenie/tripgenie-backend/internal/metrics"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

const (
	// DefaultUserID owns sessions created without a user id
	DefaultUserID = "anonymous"

	// ApologyMessage is persisted as the assistant reply when a turn fails
	ApologyMessage = "I apologize, but I encountered an error. Please try rephrasing your request."

	// WelcomeMessage opens every session created through NewSession
	WelcomeMessage = "Hello! I'm TripGenie, your AI travel assistant. I can help you:\n\n" +
		"- Search for flights with real booking links\n" +
		"- Find hotels with direct booking options\n" +
		"- Create detailed itineraries\n" +
		"- Answer travel questions\n\n" +
		"Just tell me where you'd like to go and when, and I'll help you plan your perfect trip!"
)

// ErrEmptyMessage is returned for a turn without user text
var ErrEmptyMessage = errors.New("message is required")

// HistoryEntry is one message as seen by API clients
type HistoryEntry struct {
	Role       string     `json:"role"`
	Content    string     `json:"content"`
	Timestamp  *time.Time `json:"timestamp,omitempty"`
	ToolCallID string     `json:"tool_call_id,omitempty"`
}

// TurnRequest is one inbound user turn
type TurnRequest struct {
	Message   string `json:"message"`
	SessionID string `json:"session_id,omitempty"`
	UserID    string `json:"user_id,omitempty"`
	// ConversationHistory only seeds a session created by this turn
	ConversationHistory []HistoryEntry `json:"conversation_history,omitempty"`
}

// TurnResponse is the outcome of one turn
type TurnResponse struct {
	Success             bool                   `json:"success"`
	Response            string                 `json:"response"`
	ConversationHistory []HistoryEntry         `json:"conversation_history"`
	SessionID           string                 `json:"session_id"`
	ToolCallsMade       []string               `json:"tool_calls_made"`
	ContextAnalysis     repository.TripContext `json:"context_analysis"`
	Error               string                 `json:"error,omitempty"`
}

// SessionHistory is the read-only view of one session
type SessionHistory struct {
	SessionID   string                 `json:"session_id"`
	Messages    []repository.Message   `json:"messages"`
	Context     repository.TripContext `json:"context"`
	SessionInfo *repository.Session    `json:"session_info"`
}

// ChatService runs inbound turns against the session store and the orchestrator
type ChatService struct {
	store        repository.Store
	orchestrator *agent.Orchestrator
	metrics      *metrics.Collector
	historyLimit int
	now          func() time.Time
	logger       *logrus.Logger
}

// ChatConfig configures a ChatService
type ChatConfig struct {
	Store        repository.Store
	Orchestrator *agent.Orchestrator
	Metrics      *metrics.Collector
	HistoryLimit int
	Now          func() time.Time
	Logger       *logrus.Logger
}

// NewChatService creates a new chat service
func NewChatService(cfg ChatConfig) *ChatService {
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &ChatService{
		store:        cfg.Store,
		orchestrator: cfg.Orchestrator,
		metrics:      cfg.Metrics,
		historyLimit: repository.NormalizeLimit(cfg.HistoryLimit),
		now:          cfg.Now,
		logger:       cfg.Logger,
	}
}

// ProcessTurn persists the user message, runs the orchestrator and persists its
// outcome. A failed orchestration is reported in the response, not as an error;
// the returned error covers bad input, unknown sessions and store failures.
func (s *ChatService) ProcessTurn(ctx context.Context, req TurnRequest) (*TurnResponse, error) {
	start := time.Now()
	if strings.TrimSpace(req.Message) == "" {
		return nil, ErrEmptyMessage
	}

	sessionID, err := s.resolveSession(ctx, req)
	if err != nil {
		return nil, err
	}

	_, err = s.store.AddMessage(ctx, sessionID, repository.NewMessage{
		Role:     repository.RoleUser,
		Content:  req.Message,
		Metadata: map[string]interface{}{"timestamp": s.timestamp()},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to store user message: %w", err)
	}

	history, err := s.store.GetMessages(ctx, sessionID, repository.MessageQuery{Limit: s.historyLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	stored, err := s.store.GetContext(ctx, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to load context: %w", err)
	}

	result, runErr := s.orchestrator.Run(ctx, agent.TurnInput{History: history, StoredContext: stored})
	if runErr != nil {
		return s.failTurn(ctx, sessionID, stored, start, runErr)
	}

	if err := s.persistOutcome(ctx, sessionID, result); err != nil {
		return nil, err
	}

	resp, err := s.buildResponse(ctx, sessionID, result.Response, result.ToolsUsed, result.Context)
	if err != nil {
		return nil, err
	}
	resp.Success = true

	s.metrics.ObserveTurn(metrics.OutcomeSuccess, time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"tools":      result.ToolsUsed,
		"rounds":     result.Rounds,
		"duration":   time.Since(start),
	}).Info("Turn completed")
	return resp, nil
}

func (s *ChatService) resolveSession(ctx context.Context, req TurnRequest) (string, error) {
	if req.SessionID != "" {
		if _, err := s.store.GetSessionInfo(ctx, req.SessionID); err != nil {
			return "", err
		}
		return req.SessionID, nil
	}

	sessionID, err := s.store.CreateSession(ctx, userOrDefault(req.UserID))
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	if seed := seedMessages(req.ConversationHistory); len(seed) > 0 {
		if err := s.store.ReplaceMessages(ctx, sessionID, seed); err != nil {
			return "", fmt.Errorf("failed to seed session: %w", err)
		}
	}
	return sessionID, nil
}

// seedMessages keeps the user and assistant entries of a client-supplied history
func seedMessages(entries []HistoryEntry) []repository.NewMessage {
	var seed []repository.NewMessage
	for _, e := range entries {
		if e.Role != repository.RoleUser && e.Role != repository.RoleAssistant {
			continue
		}
		if strings.TrimSpace(e.Content) == "" {
			continue
		}
		seed = append(seed, repository.NewMessage{Role: e.Role, Content: e.Content})
	}
	return seed
}

// persistOutcome appends tool results, then the assistant reply, then merges the context
func (s *ChatService) persistOutcome(ctx context.Context, sessionID string, result *agent.TurnResult) error {
	for _, outcome := range result.ToolResults {
		_, err := s.store.AddMessage(ctx, sessionID, repository.NewMessage{
			Role:       repository.RoleTool,
			Content:    outcome.Result.Content,
			ToolCallID: outcome.CallID,
			Metadata: map[string]interface{}{
				"tool":   outcome.Result.Tool,
				"status": string(outcome.Result.Status),
			},
		})
		if err != nil {
			return fmt.Errorf("failed to store tool result: %w", err)
		}
	}

	toolsUsed := result.ToolsUsed
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	_, err := s.store.AddMessage(ctx, sessionID, repository.NewMessage{
		Role:    repository.RoleAssistant,
		Content: result.Response,
		Metadata: map[string]interface{}{
			"timestamp":  s.timestamp(),
			"tools_used": toolsUsed,
		},
	})
	if err != nil {
		return fmt.Errorf("failed to store assistant message: %w", err)
	}

	if err := s.store.MergeContext(ctx, sessionID, result.Context); err != nil {
		return fmt.Errorf("failed to merge context: %w", err)
	}
	return nil
}

// failTurn persists the apology so the log stays consistent and reports the failure
func (s *ChatService) failTurn(ctx context.Context, sessionID string, stored repository.TripContext, start time.Time, runErr error) (*TurnResponse, error) {
	s.metrics.ObserveTurn(metrics.OutcomeError, time.Since(start))
	s.logger.WithFields(logrus.Fields{
		"session_id": sessionID,
		"error":      runErr.Error(),
	}).Error("Turn failed")

	_, err := s.store.AddMessage(ctx, sessionID, repository.NewMessage{
		Role:     repository.RoleAssistant,
		Content:  ApologyMessage,
		Metadata: map[string]interface{}{"timestamp": s.timestamp(), "error": true},
	})
	if err != nil {
		return nil, multierror.Append(runErr, fmt.Errorf("failed to store apology: %w", err))
	}

	resp, err := s.buildResponse(ctx, sessionID, ApologyMessage, nil, stored)
	if err != nil {
		return nil, err
	}
	resp.Error = runErr.Error()
	return resp, nil
}

func (s *ChatService) buildResponse(ctx context.Context, sessionID, text string, toolsUsed []string, tc repository.TripContext) (*TurnResponse, error) {
	msgs, err := s.store.GetMessages(ctx, sessionID, repository.MessageQuery{Limit: s.historyLimit})
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	if toolsUsed == nil {
		toolsUsed = []string{}
	}
	return &TurnResponse{
		Response:            text,
		ConversationHistory: conversationHistory(msgs),
		SessionID:           sessionID,
		ToolCallsMade:       toolsUsed,
		ContextAnalysis:     tc,
	}, nil
}

// conversationHistory keeps user and assistant messages only
func conversationHistory(msgs []repository.Message) []HistoryEntry {
	out := make([]HistoryEntry, 0, len(msgs))
	for _, m := range msgs {
		if m.Role != repository.RoleUser && m.Role != repository.RoleAssistant {
			continue
		}
		ts := m.CreatedAt
		out = append(out, HistoryEntry{Role: m.Role, Content: m.Content, Timestamp: &ts})
	}
	return out
}

// NewSession creates a session that opens with the welcome message
func (s *ChatService) NewSession(ctx context.Context, userID string) (string, error) {
	sessionID, err := s.store.CreateSession(ctx, userOrDefault(userID))
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}
	_, err = s.store.AddMessage(ctx, sessionID, repository.NewMessage{
		Role:     repository.RoleAssistant,
		Content:  WelcomeMessage,
		Metadata: map[string]interface{}{"timestamp": s.timestamp(), "welcome": true},
	})
	if err != nil {
		return "", fmt.Errorf("failed to store welcome message: %w", err)
	}
	return sessionID, nil
}

// History returns a session's messages, merged context and bookkeeping
func (s *ChatService) History(ctx context.Context, sessionID string) (*SessionHistory, error) {
	info, err := s.store.GetSessionInfo(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	msgs, err := s.store.GetMessages(ctx, sessionID, repository.MessageQuery{
		Limit:           s.historyLimit,
		IncludeMetadata: true,
	})
	if err != nil {
		return nil, err
	}
	tc, err := s.store.GetContext(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &SessionHistory{SessionID: sessionID, Messages: msgs, Context: tc, SessionInfo: info}, nil
}

// ListSessions returns a user's live sessions, most recent first
func (s *ChatService) ListSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	return s.store.ListUserSessions(ctx, userOrDefault(userID))
}

// SearchSessions ranks a user's sessions against the search terms
func (s *ChatService) SearchSessions(ctx context.Context, userID string, terms []string) ([]repository.SearchResult, error) {
	var cleaned []string
	for _, t := range terms {
		if t = strings.TrimSpace(t); t != "" {
			cleaned = append(cleaned, t)
		}
	}
	return s.store.SearchSessions(ctx, userOrDefault(userID), cleaned)
}

// DeleteSession removes a session and reports whether it existed
func (s *ChatService) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	deleted, err := s.store.DeleteSession(ctx, sessionID)
	if err != nil {
		return false, err
	}
	if deleted {
		s.logger.WithField("session_id", sessionID).Info("Session deleted")
	}
	return deleted, nil
}

// DeleteSessions removes every listed session and returns how many existed.
// Failures do not stop the remaining deletions; they are returned together.
func (s *ChatService) DeleteSessions(ctx context.Context, sessionIDs []string) (int, error) {
	var (
		deleted int
		result  *multierror.Error
	)
	for _, id := range sessionIDs {
		ok, err := s.DeleteSession(ctx, id)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("session %s: %w", id, err))
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, result.ErrorOrNil()
}

// Stats reports store statistics
func (s *ChatService) Stats(ctx context.Context) (*repository.Stats, error) {
	return s.store.Stats(ctx)
}

func (s *ChatService) timestamp() string {
	return s.now().UTC().Format(time.RFC3339)
}

func userOrDefault(userID string) string {
	if strings.TrimSpace(userID) == "" {
		return DefaultUserID
	}
	return userID
}
