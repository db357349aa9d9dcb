package repository

import (
	"context"
	"errors"
	"time"
)

// Message roles accepted by the store
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleTool      = "tool"
)

const (
	// DefaultSessionTTL is the retention window measured from the last write
	DefaultSessionTTL = 24 * time.Hour
	// DefaultHistoryLimit bounds GetMessages when no limit is supplied
	DefaultHistoryLimit = 100
	// PreviewLength is the prefix kept in the last user/assistant preview fields
	PreviewLength = 200
	// SearchRecentMessages is how many recent messages SearchSessions scans per session
	SearchRecentMessages = 10
)

var (
	// ErrSessionNotFound is returned when a session id is unknown or expired
	ErrSessionNotFound = errors.New("session not found")
	// ErrInvalidRole is returned when a message role is not user, assistant or tool
	ErrInvalidRole = errors.New("invalid message role")
	// ErrInvalidUserID is returned when a user id is empty
	ErrInvalidUserID = errors.New("user id is required")
)

// Session is the bookkeeping record of one conversation
type Session struct {
	ID                   string      `json:"session_id" db:"id"`
	UserID               string      `json:"user_id" db:"user_id"`
	CreatedAt            time.Time   `json:"created_at" db:"created_at"`
	LastActivity         time.Time   `json:"last_activity" db:"last_activity"`
	MessageCount         int         `json:"message_count" db:"message_count"`
	ContextSummary       TripContext `json:"context_summary" db:"-"`
	LastUserMessage      string      `json:"last_user_message" db:"last_user_message"`
	LastAssistantMessage string      `json:"last_assistant_message" db:"last_assistant_message"`
}

// Message is one immutable entry of a session's ordered log
type Message struct {
	ID         string                 `json:"id,omitempty"`
	SessionID  string                 `json:"session_id,omitempty"`
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	CreatedAt  time.Time              `json:"timestamp"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// NewMessage is the caller-supplied part of a message; the store assigns id and timestamp
type NewMessage struct {
	Role       string                 `json:"role"`
	Content    string                 `json:"content"`
	ToolCallID string                 `json:"tool_call_id,omitempty"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// MessageQuery controls GetMessages
type MessageQuery struct {
	// Limit returns only the most recent Limit messages; zero means DefaultHistoryLimit
	Limit int
	// IncludeMetadata keeps ids, session ids and metadata maps in the result
	IncludeMetadata bool
}

// SearchResult is a session ranked by SearchSessions
type SearchResult struct {
	Session
	RelevanceScore int           `json:"relevance_score"`
	SearchMatches  SearchMatches `json:"search_matches"`
}

// SearchMatches breaks down a relevance score
type SearchMatches struct {
	ContextMatches int `json:"context_matches"`
	MessageMatches int `json:"message_matches"`
}

// Stats summarizes store contents
type Stats struct {
	StorageType           string  `json:"storage_type"`
	Connected             bool    `json:"connected"`
	TotalSessions         int     `json:"total_sessions"`
	TotalMessages         int     `json:"total_messages"`
	AvgMessagesPerSession float64 `json:"avg_messages_per_session"`
}

// Store persists sessions, their ordered message logs and merged trip context.
//
// Every mutating operation refreshes the session's last activity and therefore its
// retention window. Operations on different sessions are safe to run concurrently;
// concurrent writers on the same session get last-write-wins on MergeContext and
// append-only ordering on AddMessage.
//
// AddMessage, ReplaceMessages and MergeContext fail with ErrSessionNotFound when the
// session does not exist or has expired; no backend re-creates bookkeeping implicitly.
type Store interface {
	CreateSession(ctx context.Context, userID string) (string, error)
	AddMessage(ctx context.Context, sessionID string, msg NewMessage) (string, error)
	GetMessages(ctx context.Context, sessionID string, q MessageQuery) ([]Message, error)
	ReplaceMessages(ctx context.Context, sessionID string, msgs []NewMessage) error
	MergeContext(ctx context.Context, sessionID string, update TripContext) error
	GetContext(ctx context.Context, sessionID string) (TripContext, error)
	GetSessionInfo(ctx context.Context, sessionID string) (*Session, error)
	// DeleteSession reports whether a session was removed; deleting an unknown id returns false.
	DeleteSession(ctx context.Context, sessionID string) (bool, error)
	ListUserSessions(ctx context.Context, userID string) ([]Session, error)
	SearchSessions(ctx context.Context, userID string, terms []string) ([]SearchResult, error)
	// ExpireStale removes sessions whose last activity precedes olderThan and returns
	// how many were removed. Backends with NativeTTL return 0 without doing anything.
	ExpireStale(ctx context.Context, olderThan time.Time) (int, error)
	// NativeTTL reports whether the backend expires sessions on its own
	NativeTTL() bool
	Stats(ctx context.Context) (*Stats, error)
	Close() error
}

// ValidRole reports whether role may be stored
func ValidRole(role string) bool {
	switch role {
	case RoleUser, RoleAssistant, RoleTool:
		return true
	}
	return false
}

// Preview truncates content to PreviewLength runes
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewLength {
		return content
	}
	return string(runes[:PreviewLength])
}

// Project strips a message down to role, content, timestamp and correlation id
func Project(msg Message) Message {
	return Message{
		Role:       msg.Role,
		Content:    msg.Content,
		CreatedAt:  msg.CreatedAt,
		ToolCallID: msg.ToolCallID,
	}
}

// NormalizeLimit applies DefaultHistoryLimit to non-positive limits
func NormalizeLimit(limit int) int {
	if limit <= 0 {
		return DefaultHistoryLimit
	}
	return limit
}
