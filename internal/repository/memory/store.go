package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// Store is an in-process repository.Store. Sessions past their retention window are
// invisible to reads immediately and are reclaimed by ExpireStale.
type Store struct {
	mu       sync.RWMutex
	sessions map[string]*sessionEntry
	byUser   map[string]map[string]struct{}

	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger
}

type sessionEntry struct {
	info     repository.Session
	context  repository.TripContext
	messages []repository.Message
}

// Config configures the in-memory store
type Config struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *logrus.Logger
}

// New creates an empty in-memory store
func New(cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = repository.DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Store{
		sessions: make(map[string]*sessionEntry),
		byUser:   make(map[string]map[string]struct{}),
		ttl:      cfg.TTL,
		now:      cfg.Now,
		logger:   cfg.Logger,
	}
}

// CreateSession allocates a new empty session
func (s *Store) CreateSession(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", repository.ErrInvalidUserID
	}

	now := s.now().UTC()
	id := repository.NewSessionID()

	s.mu.Lock()
	defer s.mu.Unlock()

	s.sessions[id] = &sessionEntry{
		info: repository.Session{
			ID:           id,
			UserID:       userID,
			CreatedAt:    now,
			LastActivity: now,
		},
	}
	if s.byUser[userID] == nil {
		s.byUser[userID] = make(map[string]struct{})
	}
	s.byUser[userID][id] = struct{}{}

	s.logger.WithFields(logrus.Fields{"session_id": id, "user_id": userID}).Debug("Session created")
	return id, nil
}

// AddMessage appends one message to the session log
func (s *Store) AddMessage(ctx context.Context, sessionID string, msg repository.NewMessage) (string, error) {
	if !repository.ValidRole(msg.Role) {
		return "", repository.ErrInvalidRole
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.liveLocked(sessionID)
	if err != nil {
		return "", err
	}

	stored := s.appendLocked(entry, msg)
	return stored.ID, nil
}

// GetMessages returns the most recent messages in chronological order
func (s *Store) GetMessages(ctx context.Context, sessionID string, q repository.MessageQuery) ([]repository.Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.liveLocked(sessionID)
	if err != nil {
		return nil, err
	}

	limit := repository.NormalizeLimit(q.Limit)
	msgs := entry.messages
	if len(msgs) > limit {
		msgs = msgs[len(msgs)-limit:]
	}

	out := make([]repository.Message, len(msgs))
	for i, m := range msgs {
		if q.IncludeMetadata {
			out[i] = copyMessage(m)
		} else {
			out[i] = repository.Project(m)
		}
	}
	return out, nil
}

// ReplaceMessages installs msgs as the session's entire log
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, msgs []repository.NewMessage) error {
	for _, m := range msgs {
		if !repository.ValidRole(m.Role) {
			return repository.ErrInvalidRole
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.liveLocked(sessionID)
	if err != nil {
		return err
	}

	entry.messages = nil
	entry.info.MessageCount = 0
	entry.info.LastUserMessage = ""
	entry.info.LastAssistantMessage = ""
	for _, m := range msgs {
		s.appendLocked(entry, m)
	}
	entry.info.LastActivity = s.activityLocked(entry)
	return nil
}

// MergeContext applies update on top of the stored context
func (s *Store) MergeContext(ctx context.Context, sessionID string, update repository.TripContext) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, err := s.liveLocked(sessionID)
	if err != nil {
		return err
	}

	entry.context = entry.context.Merge(update)
	entry.info.LastActivity = s.activityLocked(entry)
	return nil
}

// GetContext returns the merged context of a session
func (s *Store) GetContext(ctx context.Context, sessionID string) (repository.TripContext, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.liveLocked(sessionID)
	if err != nil {
		return repository.TripContext{}, err
	}
	return entry.context.Clone(), nil
}

// GetSessionInfo returns session bookkeeping
func (s *Store) GetSessionInfo(ctx context.Context, sessionID string) (*repository.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, err := s.liveLocked(sessionID)
	if err != nil {
		return nil, err
	}
	info := entry.snapshot()
	return &info, nil
}

// DeleteSession removes a session and its user index entry
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.sessions[sessionID]
	if !ok {
		return false, nil
	}
	expired := s.expiredLocked(entry)
	s.removeLocked(entry)
	if expired {
		return false, nil
	}

	s.logger.WithField("session_id", sessionID).Debug("Session deleted")
	return true, nil
}

// ListUserSessions returns a user's live sessions, most recently active first
func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sessions := make([]repository.Session, 0, len(s.byUser[userID]))
	for id := range s.byUser[userID] {
		entry, err := s.liveLocked(id)
		if err != nil {
			continue
		}
		sessions = append(sessions, entry.snapshot())
	}
	repository.SortByActivity(sessions)
	return sessions, nil
}

// SearchSessions ranks a user's sessions against terms
func (s *Store) SearchSessions(ctx context.Context, userID string, terms []string) ([]repository.SearchResult, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var results []repository.SearchResult
	for id := range s.byUser[userID] {
		entry, err := s.liveLocked(id)
		if err != nil {
			continue
		}
		recent := entry.messages
		if len(recent) > repository.SearchRecentMessages {
			recent = recent[len(recent)-repository.SearchRecentMessages:]
		}
		score, matches := repository.ScoreSession(entry.context, recent, terms)
		results = append(results, repository.SearchResult{
			Session:        entry.snapshot(),
			RelevanceScore: score,
			SearchMatches:  matches,
		})
	}
	return repository.RankSearchResults(results), nil
}

// ExpireStale deletes sessions whose last activity is before olderThan
func (s *Store) ExpireStale(ctx context.Context, olderThan time.Time) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	for _, entry := range s.sessions {
		if entry.info.LastActivity.Before(olderThan) {
			s.removeLocked(entry)
			removed++
		}
	}
	if removed > 0 {
		s.logger.WithField("removed", removed).Info("Expired stale sessions")
	}
	return removed, nil
}

// NativeTTL is false: expired sessions stay in memory until ExpireStale runs
func (s *Store) NativeTTL() bool {
	return false
}

// Stats reports live session and message counts
func (s *Store) Stats(ctx context.Context) (*repository.Stats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	stats := &repository.Stats{StorageType: "memory", Connected: true}
	for _, entry := range s.sessions {
		if s.expiredLocked(entry) {
			continue
		}
		stats.TotalSessions++
		stats.TotalMessages += len(entry.messages)
	}
	if stats.TotalSessions > 0 {
		stats.AvgMessagesPerSession = float64(stats.TotalMessages) / float64(stats.TotalSessions)
	}
	return stats, nil
}

// Close is a no-op
func (s *Store) Close() error {
	return nil
}

func (s *Store) liveLocked(sessionID string) (*sessionEntry, error) {
	entry, ok := s.sessions[sessionID]
	if !ok || s.expiredLocked(entry) {
		return nil, repository.ErrSessionNotFound
	}
	return entry, nil
}

func (s *Store) expiredLocked(entry *sessionEntry) bool {
	return !s.now().Before(entry.info.LastActivity.Add(s.ttl))
}

func (s *Store) removeLocked(entry *sessionEntry) {
	delete(s.sessions, entry.info.ID)
	if ids, ok := s.byUser[entry.info.UserID]; ok {
		delete(ids, entry.info.ID)
		if len(ids) == 0 {
			delete(s.byUser, entry.info.UserID)
		}
	}
}

func (s *Store) appendLocked(entry *sessionEntry, msg repository.NewMessage) repository.Message {
	var last time.Time
	if n := len(entry.messages); n > 0 {
		last = entry.messages[n-1].CreatedAt
	}

	stored := repository.Message{
		ID:         repository.NewMessageID(),
		SessionID:  entry.info.ID,
		Role:       msg.Role,
		Content:    msg.Content,
		CreatedAt:  repository.NextTimestamp(last, s.now()),
		ToolCallID: msg.ToolCallID,
		Metadata:   copyMetadata(msg.Metadata),
	}
	entry.messages = append(entry.messages, stored)

	entry.info.MessageCount = len(entry.messages)
	entry.info.LastActivity = stored.CreatedAt
	switch msg.Role {
	case repository.RoleUser:
		entry.info.LastUserMessage = repository.Preview(msg.Content)
	case repository.RoleAssistant:
		entry.info.LastAssistantMessage = repository.Preview(msg.Content)
	}
	return stored
}

// activityLocked returns the activity timestamp for a non-append mutation
func (s *Store) activityLocked(entry *sessionEntry) time.Time {
	now := s.now().UTC()
	if now.Before(entry.info.LastActivity) {
		return entry.info.LastActivity
	}
	return now
}

func (e *sessionEntry) snapshot() repository.Session {
	info := e.info
	info.ContextSummary = e.context.Clone()
	return info
}

func copyMessage(m repository.Message) repository.Message {
	m.Metadata = copyMetadata(m.Metadata)
	return m
}

func copyMetadata(md map[string]interface{}) map[string]interface{} {
	if md == nil {
		return nil
	}
	out := make(map[string]interface{}, len(md))
	for k, v := range md {
		out[k] = v
	}
	return out
}
