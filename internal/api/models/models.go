package models

import (
	"time"

	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Code    int    `json:"code"`
}

// HistoryResponse is returned by GET /api/chat/history/:id
type HistoryResponse struct {
	Success      bool                   `json:"success"`
	SessionID    string                 `json:"session_id"`
	Messages     []repository.Message   `json:"messages"`
	Context      repository.TripContext `json:"context"`
	SessionInfo  *repository.Session    `json:"session_info"`
	MessageCount int                    `json:"message_count"`
}

// NewSessionResponse is returned by POST /api/chat/new-session
type NewSessionResponse struct {
	Success   bool   `json:"success"`
	SessionID string `json:"session_id"`
	Message   string `json:"message"`
}

// SessionsResponse lists a user's sessions
type SessionsResponse struct {
	Success  bool                 `json:"success"`
	UserID   string               `json:"user_id"`
	Sessions []repository.Session `json:"sessions"`
	Count    int                  `json:"count"`
}

// SearchResponse lists ranked search hits
type SearchResponse struct {
	Success bool                      `json:"success"`
	Query   []string                  `json:"query"`
	Results []repository.SearchResult `json:"results"`
	Count   int                       `json:"count"`
}

// DeleteResponse reports whether a session existed
type DeleteResponse struct {
	Success bool `json:"success"`
	Deleted bool `json:"deleted"`
}

// Features advertises what this deployment can do
type Features struct {
	TripPlanning     bool `json:"trip_planning"`
	ContextMemory    bool `json:"context_memory"`
	RealBookingLinks bool `json:"real_booking_links"`
	ToolIntegration  bool `json:"tool_integration"`
}

// HealthResponse is returned by GET /api/health
type HealthResponse struct {
	Status    string            `json:"status"`
	Timestamp time.Time         `json:"timestamp"`
	Version   string            `json:"version"`
	Features  Features          `json:"features"`
	Tools     []string          `json:"tools"`
	Storage   *repository.Stats `json:"storage,omitempty"`
}

// SampleQueryCategory groups example prompts for clients
type SampleQueryCategory struct {
	Title   string   `json:"title"`
	Queries []string `json:"queries"`
}

// SampleQueriesResponse is returned by GET /api/sample-queries
type SampleQueriesResponse struct {
	Categories map[string]SampleQueryCategory `json:"categories"`
}
