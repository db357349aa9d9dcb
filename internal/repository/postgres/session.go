package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// Store implements repository.Store using PostgreSQL. Every mutation moves
// expires_at to last_activity plus the TTL; reads ignore rows past expires_at and
// ExpireStale deletes them.
type Store struct {
	db     *sqlx.DB
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger
}

// Config configures the PostgreSQL store
type Config struct {
	TTL    time.Duration
	Now    func() time.Time
	Logger *logrus.Logger
}

// New creates a PostgreSQL store on an open, migrated database
func New(db *sqlx.DB, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = repository.DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Store{db: db, ttl: cfg.TTL, now: cfg.Now, logger: cfg.Logger}
}

type sessionRow struct {
	ID                   string    `db:"id"`
	UserID               string    `db:"user_id"`
	CreatedAt            time.Time `db:"created_at"`
	LastActivity         time.Time `db:"last_activity"`
	ExpiresAt            time.Time `db:"expires_at"`
	MessageCount         int       `db:"message_count"`
	ContextSummary       []byte    `db:"context_summary"`
	LastUserMessage      string    `db:"last_user_message"`
	LastAssistantMessage string    `db:"last_assistant_message"`
}

const sessionColumns = `id, user_id, created_at, last_activity, expires_at, message_count,
	context_summary, last_user_message, last_assistant_message`

func (r sessionRow) toSession() (repository.Session, error) {
	s := repository.Session{
		ID:                   r.ID,
		UserID:               r.UserID,
		CreatedAt:            r.CreatedAt.UTC(),
		LastActivity:         r.LastActivity.UTC(),
		MessageCount:         r.MessageCount,
		LastUserMessage:      r.LastUserMessage,
		LastAssistantMessage: r.LastAssistantMessage,
	}
	if len(r.ContextSummary) > 0 {
		if err := json.Unmarshal(r.ContextSummary, &s.ContextSummary); err != nil {
			return s, fmt.Errorf("corrupt context summary for %s: %w", r.ID, err)
		}
	}
	return s, nil
}

// CreateSession inserts a new empty session
func (s *Store) CreateSession(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", repository.ErrInvalidUserID
	}

	now := s.now().UTC().Truncate(time.Microsecond)
	row := sessionRow{
		ID:           repository.NewSessionID(),
		UserID:       userID,
		CreatedAt:    now,
		LastActivity: now,
		ExpiresAt:    now.Add(s.ttl),
	}

	query := `
		INSERT INTO trip_sessions (id, user_id, created_at, last_activity, expires_at)
		VALUES (:id, :user_id, :created_at, :last_activity, :expires_at)
	`
	if _, err := s.db.NamedExecContext(ctx, query, row); err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"session_id": row.ID, "user_id": userID}).Debug("Session created")
	return row.ID, nil
}

// MergeContext applies update on top of the stored context summary
func (s *Store) MergeContext(ctx context.Context, sessionID string, update repository.TripContext) error {
	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := s.lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		current, err := row.toSession()
		if err != nil {
			return err
		}

		raw, err := json.Marshal(current.ContextSummary.Merge(update))
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}

		activity := s.activity(row.LastActivity)
		_, err = tx.ExecContext(ctx, `
			UPDATE trip_sessions
			SET context_summary = $2::jsonb, last_activity = $3, expires_at = $4
			WHERE id = $1
		`, sessionID, string(raw), activity, activity.Add(s.ttl))
		return err
	})
}

// GetContext returns the merged context summary
func (s *Store) GetContext(ctx context.Context, sessionID string) (repository.TripContext, error) {
	info, err := s.GetSessionInfo(ctx, sessionID)
	if err != nil {
		return repository.TripContext{}, err
	}
	return info.ContextSummary, nil
}

// GetSessionInfo retrieves a live session
func (s *Store) GetSessionInfo(ctx context.Context, sessionID string) (*repository.Session, error) {
	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM trip_sessions WHERE id = $1 AND expires_at > $2`

	err := s.db.GetContext(ctx, &row, query, sessionID, s.now().UTC())
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, repository.ErrSessionNotFound
		}
		return nil, err
	}

	info, err := row.toSession()
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteSession deletes a live session; messages go with it through ON DELETE CASCADE
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	result, err := s.db.ExecContext(ctx,
		"DELETE FROM trip_sessions WHERE id = $1 AND expires_at > $2", sessionID, s.now().UTC())
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return false, err
	}
	if n > 0 {
		s.logger.WithField("session_id", sessionID).Debug("Session deleted")
	}
	return n > 0, nil
}

// ListUserSessions retrieves a user's live sessions, most recently active first
func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	var rows []sessionRow
	query := `
		SELECT ` + sessionColumns + `
		FROM trip_sessions
		WHERE user_id = $1 AND expires_at > $2
		ORDER BY last_activity DESC
	`
	if err := s.db.SelectContext(ctx, &rows, query, userID, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]repository.Session, 0, len(rows))
	for _, row := range rows {
		info, err := row.toSession()
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	return sessions, nil
}

// SearchSessions ranks a user's live sessions against terms
func (s *Store) SearchSessions(ctx context.Context, userID string, terms []string) ([]repository.SearchResult, error) {
	sessions, err := s.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]repository.SearchResult, 0, len(sessions))
	for _, info := range sessions {
		recent, err := s.recentMessages(ctx, s.db, info.ID, repository.SearchRecentMessages)
		if err != nil {
			return nil, err
		}
		score, matches := repository.ScoreSession(info.ContextSummary, recent, terms)
		results = append(results, repository.SearchResult{Session: info, RelevanceScore: score, SearchMatches: matches})
	}
	return repository.RankSearchResults(results), nil
}

// ExpireStale deletes sessions whose last activity precedes olderThan
func (s *Store) ExpireStale(ctx context.Context, olderThan time.Time) (int, error) {
	result, err := s.db.ExecContext(ctx, "DELETE FROM trip_sessions WHERE last_activity < $1", olderThan.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to expire sessions: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.WithField("removed", n).Info("Expired stale sessions")
	}
	return int(n), nil
}

// NativeTTL is false: rows stay until ExpireStale deletes them
func (s *Store) NativeTTL() bool {
	return false
}

// Stats counts live sessions and their messages
func (s *Store) Stats(ctx context.Context) (*repository.Stats, error) {
	stats := &repository.Stats{StorageType: "postgres"}
	if err := s.db.PingContext(ctx); err != nil {
		return stats, nil
	}
	stats.Connected = true

	var counts struct {
		Sessions int `db:"sessions"`
		Messages int `db:"messages"`
	}
	query := `
		SELECT COUNT(*) AS sessions, COALESCE(SUM(message_count), 0) AS messages
		FROM trip_sessions
		WHERE expires_at > $1
	`
	if err := s.db.GetContext(ctx, &counts, query, s.now().UTC()); err != nil {
		return nil, fmt.Errorf("failed to compute stats: %w", err)
	}
	stats.TotalSessions = counts.Sessions
	stats.TotalMessages = counts.Messages
	if counts.Sessions > 0 {
		stats.AvgMessagesPerSession = float64(counts.Messages) / float64(counts.Sessions)
	}
	return stats, nil
}

// Close closes the underlying database
func (s *Store) Close() error {
	return s.db.Close()
}

// lockSession loads a live session row FOR UPDATE
func (s *Store) lockSession(ctx context.Context, tx *sqlx.Tx, sessionID string) (sessionRow, error) {
	var row sessionRow
	query := `SELECT ` + sessionColumns + ` FROM trip_sessions WHERE id = $1 AND expires_at > $2 FOR UPDATE`
	err := tx.GetContext(ctx, &row, query, sessionID, s.now().UTC())
	if errors.Is(err, sql.ErrNoRows) {
		return row, repository.ErrSessionNotFound
	}
	return row, err
}

func (s *Store) inTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// activity returns the activity timestamp for a non-append mutation
func (s *Store) activity(last time.Time) time.Time {
	now := s.now().UTC().Truncate(time.Microsecond)
	if now.Before(last) {
		return last.UTC()
	}
	return now
}
