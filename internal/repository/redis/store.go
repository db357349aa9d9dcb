package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

// maxWatchAttempts bounds optimistic retries of a session update
const maxWatchAttempts = 5

// Store is a Redis-backed repository.Store.
//
// Layout:
//
//	session:{id}           hash, session bookkeeping and JSON context summary
//	session:{id}:messages  sorted set of message ids scored by creation time (unix micros)
//	message:{id}           hash, one message
//	user:{uid}:sessions    set of session ids
//
// Every key of a session carries the retention TTL and every mutation refreshes it, so
// expiry is native and ExpireStale does nothing.
type Store struct {
	client *goredis.Client
	ttl    time.Duration
	now    func() time.Time
	logger *logrus.Logger

	// beforeCommit runs between the reads and EXEC of AddMessage
	beforeCommit func(sessionID string)
}

// Config configures the Redis store
type Config struct {
	URL    string
	TTL    time.Duration
	Now    func() time.Time
	Logger *logrus.Logger
}

// New connects to Redis and verifies the connection with PING
func New(ctx context.Context, cfg Config) (*Store, error) {
	opts, err := goredis.ParseURL(cfg.URL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := goredis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	return NewWithClient(client, cfg), nil
}

// NewWithClient wraps an existing client
func NewWithClient(client *goredis.Client, cfg Config) *Store {
	if cfg.TTL <= 0 {
		cfg.TTL = repository.DefaultSessionTTL
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	return &Store{client: client, ttl: cfg.TTL, now: cfg.Now, logger: cfg.Logger}
}

func sessionKey(id string) string  { return "session:" + id }
func messagesKey(id string) string { return "session:" + id + ":messages" }
func messageKey(id string) string  { return "message:" + id }
func userKey(uid string) string    { return "user:" + uid + ":sessions" }

// CreateSession allocates a new empty session
func (s *Store) CreateSession(ctx context.Context, userID string) (string, error) {
	if strings.TrimSpace(userID) == "" {
		return "", repository.ErrInvalidUserID
	}

	id := repository.NewSessionID()
	now := formatTime(s.now().UTC())

	_, err := s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, sessionKey(id), map[string]interface{}{
			"session_id":             id,
			"user_id":                userID,
			"created_at":             now,
			"last_activity":          now,
			"message_count":          0,
			"context_summary":        "{}",
			"last_user_message":      "",
			"last_assistant_message": "",
		})
		pipe.Expire(ctx, sessionKey(id), s.ttl)
		pipe.SAdd(ctx, userKey(userID), id)
		pipe.Expire(ctx, userKey(userID), s.ttl)
		return nil
	})
	if err != nil {
		return "", fmt.Errorf("failed to create session: %w", err)
	}

	s.logger.WithFields(logrus.Fields{"session_id": id, "user_id": userID}).Debug("Session created")
	return id, nil
}

// AddMessage appends one message and refreshes the session TTL. The write only
// commits while the session still exists.
func (s *Store) AddMessage(ctx context.Context, sessionID string, msg repository.NewMessage) (string, error) {
	if !repository.ValidRole(msg.Role) {
		return "", repository.ErrInvalidRole
	}

	var msgID string
	err := s.watchSession(ctx, sessionID, func(tx *goredis.Tx) error {
		info, err := readSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		last, err := lastMessageTime(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		ids, err := tx.ZRange(ctx, messagesKey(sessionID), 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to read message index: %w", err)
		}

		created := repository.NextTimestamp(last, s.now())
		id := repository.NewMessageID()
		fields, err := messageFields(id, sessionID, msg, created)
		if err != nil {
			return err
		}

		session := map[string]interface{}{"last_activity": formatTime(created)}
		switch msg.Role {
		case repository.RoleUser:
			session["last_user_message"] = repository.Preview(msg.Content)
		case repository.RoleAssistant:
			session["last_assistant_message"] = repository.Preview(msg.Content)
		}

		if s.beforeCommit != nil {
			s.beforeCommit(sessionID)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, messageKey(id), fields)
			pipe.ZAdd(ctx, messagesKey(sessionID), goredis.Z{Score: float64(created.UnixMicro()), Member: id})
			pipe.HSet(ctx, sessionKey(sessionID), session)
			pipe.HIncrBy(ctx, sessionKey(sessionID), "message_count", 1)
			s.touch(ctx, pipe, info.UserID, sessionID, append(ids, id))
			return nil
		})
		if err != nil {
			return err
		}
		msgID = id
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) || errors.Is(err, repository.ErrInvalidRole) {
			return "", err
		}
		return "", fmt.Errorf("failed to add message: %w", err)
	}
	return msgID, nil
}

// GetMessages returns the most recent messages in chronological order
func (s *Store) GetMessages(ctx context.Context, sessionID string, q repository.MessageQuery) ([]repository.Message, error) {
	if _, err := s.loadSession(ctx, sessionID); err != nil {
		return nil, err
	}

	limit := repository.NormalizeLimit(q.Limit)
	ids, err := s.client.ZRange(ctx, messagesKey(sessionID), int64(-limit), -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read message index: %w", err)
	}

	msgs, err := s.loadMessages(ctx, ids)
	if err != nil {
		return nil, err
	}
	if !q.IncludeMetadata {
		for i := range msgs {
			msgs[i] = repository.Project(msgs[i])
		}
	}
	return msgs, nil
}

// ReplaceMessages atomically swaps the session's log for msgs
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, msgs []repository.NewMessage) error {
	for _, m := range msgs {
		if !repository.ValidRole(m.Role) {
			return repository.ErrInvalidRole
		}
	}

	type pending struct {
		id      string
		created time.Time
		fields  map[string]interface{}
	}
	var (
		last     time.Time
		entries  = make([]pending, 0, len(msgs))
		newIDs   = make([]string, 0, len(msgs))
		lastUser string
		lastBot  string
	)
	for _, m := range msgs {
		created := repository.NextTimestamp(last, s.now())
		last = created
		id := repository.NewMessageID()
		fields, err := messageFields(id, sessionID, m, created)
		if err != nil {
			return err
		}
		entries = append(entries, pending{id: id, created: created, fields: fields})
		newIDs = append(newIDs, id)
		switch m.Role {
		case repository.RoleUser:
			lastUser = repository.Preview(m.Content)
		case repository.RoleAssistant:
			lastBot = repository.Preview(m.Content)
		}
	}

	activity := s.now().UTC()
	if last.After(activity) {
		activity = last
	}

	err := s.watchSession(ctx, sessionID, func(tx *goredis.Tx) error {
		info, err := readSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		oldIDs, err := tx.ZRange(ctx, messagesKey(sessionID), 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to read message index: %w", err)
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			for _, id := range oldIDs {
				pipe.Del(ctx, messageKey(id))
			}
			pipe.Del(ctx, messagesKey(sessionID))
			for _, e := range entries {
				pipe.HSet(ctx, messageKey(e.id), e.fields)
				pipe.ZAdd(ctx, messagesKey(sessionID), goredis.Z{Score: float64(e.created.UnixMicro()), Member: e.id})
			}
			pipe.HSet(ctx, sessionKey(sessionID), map[string]interface{}{
				"message_count":          len(entries),
				"last_activity":          formatTime(activity),
				"last_user_message":      lastUser,
				"last_assistant_message": lastBot,
			})
			s.touch(ctx, pipe, info.UserID, sessionID, newIDs)
			return nil
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("failed to replace messages: %w", err)
	}
	return nil
}

// MergeContext applies update on top of the stored context summary
func (s *Store) MergeContext(ctx context.Context, sessionID string, update repository.TripContext) error {
	err := s.watchSession(ctx, sessionID, func(tx *goredis.Tx) error {
		info, err := readSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		ids, err := tx.ZRange(ctx, messagesKey(sessionID), 0, -1).Result()
		if err != nil {
			return fmt.Errorf("failed to read message index: %w", err)
		}

		merged := info.ContextSummary.Merge(update)
		raw, err := json.Marshal(merged)
		if err != nil {
			return fmt.Errorf("failed to encode context: %w", err)
		}

		activity := s.now().UTC()
		if activity.Before(info.LastActivity) {
			activity = info.LastActivity
		}

		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, sessionKey(sessionID), map[string]interface{}{
				"context_summary": string(raw),
				"last_activity":   formatTime(activity),
			})
			s.touch(ctx, pipe, info.UserID, sessionID, ids)
			return nil
		})
		return err
	})
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return err
		}
		return fmt.Errorf("failed to merge context: %w", err)
	}
	return nil
}

// GetContext returns the merged context summary
func (s *Store) GetContext(ctx context.Context, sessionID string) (repository.TripContext, error) {
	info, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return repository.TripContext{}, err
	}
	return info.ContextSummary, nil
}

// GetSessionInfo returns session bookkeeping
func (s *Store) GetSessionInfo(ctx context.Context, sessionID string) (*repository.Session, error) {
	info, err := s.loadSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	return &info, nil
}

// DeleteSession removes every key belonging to the session
func (s *Store) DeleteSession(ctx context.Context, sessionID string) (bool, error) {
	userID, err := s.client.HGet(ctx, sessionKey(sessionID), "user_id").Result()
	if errors.Is(err, goredis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to read session: %w", err)
	}
	ids, err := s.client.ZRange(ctx, messagesKey(sessionID), 0, -1).Result()
	if err != nil {
		return false, fmt.Errorf("failed to read message index: %w", err)
	}

	_, err = s.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		for _, id := range ids {
			pipe.Del(ctx, messageKey(id))
		}
		pipe.Del(ctx, messagesKey(sessionID), sessionKey(sessionID))
		pipe.SRem(ctx, userKey(userID), sessionID)
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to delete session: %w", err)
	}

	s.logger.WithField("session_id", sessionID).Debug("Session deleted")
	return true, nil
}

// ListUserSessions returns a user's live sessions, most recently active first.
// Ids whose session hash has expired are pruned from the user set.
func (s *Store) ListUserSessions(ctx context.Context, userID string) ([]repository.Session, error) {
	ids, err := s.client.SMembers(ctx, userKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := make([]repository.Session, 0, len(ids))
	var stale []interface{}
	for _, id := range ids {
		info, err := s.loadSession(ctx, id)
		if errors.Is(err, repository.ErrSessionNotFound) {
			stale = append(stale, id)
			continue
		}
		if err != nil {
			return nil, err
		}
		sessions = append(sessions, info)
	}
	if len(stale) > 0 {
		if err := s.client.SRem(ctx, userKey(userID), stale...).Err(); err != nil {
			s.logger.WithError(err).Warn("Failed to prune expired session ids")
		}
	}

	repository.SortByActivity(sessions)
	return sessions, nil
}

// SearchSessions ranks a user's sessions against terms
func (s *Store) SearchSessions(ctx context.Context, userID string, terms []string) ([]repository.SearchResult, error) {
	sessions, err := s.ListUserSessions(ctx, userID)
	if err != nil {
		return nil, err
	}

	results := make([]repository.SearchResult, 0, len(sessions))
	for _, info := range sessions {
		ids, err := s.client.ZRange(ctx, messagesKey(info.ID), -repository.SearchRecentMessages, -1).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to read message index: %w", err)
		}
		recent, err := s.loadMessages(ctx, ids)
		if err != nil {
			return nil, err
		}
		score, matches := repository.ScoreSession(info.ContextSummary, recent, terms)
		results = append(results, repository.SearchResult{Session: info, RelevanceScore: score, SearchMatches: matches})
	}
	return repository.RankSearchResults(results), nil
}

// ExpireStale does nothing; Redis expires sessions through key TTLs
func (s *Store) ExpireStale(ctx context.Context, olderThan time.Time) (int, error) {
	return 0, nil
}

// NativeTTL is true for Redis
func (s *Store) NativeTTL() bool {
	return true
}

// Stats scans session hashes and sums their message counts
func (s *Store) Stats(ctx context.Context) (*repository.Stats, error) {
	stats := &repository.Stats{StorageType: "redis"}
	if err := s.client.Ping(ctx).Err(); err != nil {
		return stats, nil
	}
	stats.Connected = true

	var cursor uint64
	for {
		keys, next, err := s.client.Scan(ctx, cursor, "session:*", 200).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to scan sessions: %w", err)
		}
		for _, key := range keys {
			if strings.HasSuffix(key, ":messages") {
				continue
			}
			count, err := s.client.HGet(ctx, key, "message_count").Int()
			if errors.Is(err, goredis.Nil) {
				continue
			}
			if err != nil {
				return nil, fmt.Errorf("failed to read session: %w", err)
			}
			stats.TotalSessions++
			stats.TotalMessages += count
		}
		cursor = next
		if cursor == 0 {
			break
		}
	}
	if stats.TotalSessions > 0 {
		stats.AvgMessagesPerSession = float64(stats.TotalMessages) / float64(stats.TotalSessions)
	}
	return stats, nil
}

// Close closes the client
func (s *Store) Close() error {
	return s.client.Close()
}

// Ping checks connectivity
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// touch refreshes the TTL of every key belonging to a session
func (s *Store) touch(ctx context.Context, pipe goredis.Pipeliner, userID, sessionID string, messageIDs []string) {
	pipe.Expire(ctx, sessionKey(sessionID), s.ttl)
	pipe.Expire(ctx, messagesKey(sessionID), s.ttl)
	for _, id := range messageIDs {
		pipe.Expire(ctx, messageKey(id), s.ttl)
	}
	pipe.Expire(ctx, userKey(userID), s.ttl)
}

// sessionReader is the read side shared by *goredis.Client and *goredis.Tx
type sessionReader interface {
	HGetAll(ctx context.Context, key string) *goredis.MapStringStringCmd
	ZRevRangeWithScores(ctx context.Context, key string, start, stop int64) *goredis.ZSliceCmd
}

// watchSession runs fn under WATCH on the session's hash and message index and
// retries when a concurrent writer touched either key before EXEC
func (s *Store) watchSession(ctx context.Context, sessionID string, fn func(tx *goredis.Tx) error) error {
	for attempt := 1; ; attempt++ {
		err := s.client.Watch(ctx, fn, sessionKey(sessionID), messagesKey(sessionID))
		if !errors.Is(err, goredis.TxFailedErr) || attempt == maxWatchAttempts {
			return err
		}
		s.logger.WithFields(logrus.Fields{"session_id": sessionID, "attempt": attempt}).Debug("Session changed during update, retrying")
	}
}

func (s *Store) loadSession(ctx context.Context, sessionID string) (repository.Session, error) {
	return readSession(ctx, s.client, sessionID)
}

func readSession(ctx context.Context, r sessionReader, sessionID string) (repository.Session, error) {
	fields, err := r.HGetAll(ctx, sessionKey(sessionID)).Result()
	if err != nil {
		return repository.Session{}, fmt.Errorf("failed to read session: %w", err)
	}
	if len(fields) == 0 {
		return repository.Session{}, repository.ErrSessionNotFound
	}
	return parseSession(fields)
}

func lastMessageTime(ctx context.Context, r sessionReader, sessionID string) (time.Time, error) {
	last, err := r.ZRevRangeWithScores(ctx, messagesKey(sessionID), 0, 0).Result()
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to read message index: %w", err)
	}
	if len(last) == 0 {
		return time.Time{}, nil
	}
	return time.UnixMicro(int64(last[0].Score)).UTC(), nil
}

func (s *Store) loadMessages(ctx context.Context, ids []string) ([]repository.Message, error) {
	if len(ids) == 0 {
		return []repository.Message{}, nil
	}

	cmds := make([]*goredis.MapStringStringCmd, len(ids))
	_, err := s.client.Pipelined(ctx, func(pipe goredis.Pipeliner) error {
		for i, id := range ids {
			cmds[i] = pipe.HGetAll(ctx, messageKey(id))
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	msgs := make([]repository.Message, 0, len(ids))
	for _, cmd := range cmds {
		fields := cmd.Val()
		if len(fields) == 0 {
			continue
		}
		msg, err := parseMessage(fields)
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}

func messageFields(id, sessionID string, msg repository.NewMessage, created time.Time) (map[string]interface{}, error) {
	metadata := "{}"
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return nil, fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = string(raw)
	}
	return map[string]interface{}{
		"id":           id,
		"session_id":   sessionID,
		"role":         msg.Role,
		"content":      msg.Content,
		"timestamp":    formatTime(created),
		"tool_call_id": msg.ToolCallID,
		"metadata":     metadata,
	}, nil
}

func parseSession(fields map[string]string) (repository.Session, error) {
	var info repository.Session
	var err error

	info.ID = fields["session_id"]
	info.UserID = fields["user_id"]
	info.LastUserMessage = fields["last_user_message"]
	info.LastAssistantMessage = fields["last_assistant_message"]
	if info.CreatedAt, err = parseTime(fields["created_at"]); err != nil {
		return info, err
	}
	if info.LastActivity, err = parseTime(fields["last_activity"]); err != nil {
		return info, err
	}
	if raw := fields["message_count"]; raw != "" {
		if info.MessageCount, err = strconv.Atoi(raw); err != nil {
			return info, fmt.Errorf("corrupt message_count %q: %w", raw, err)
		}
	}
	if raw := fields["context_summary"]; raw != "" {
		if err := json.Unmarshal([]byte(raw), &info.ContextSummary); err != nil {
			return info, fmt.Errorf("corrupt context summary: %w", err)
		}
	}
	return info, nil
}

func parseMessage(fields map[string]string) (repository.Message, error) {
	created, err := parseTime(fields["timestamp"])
	if err != nil {
		return repository.Message{}, err
	}
	msg := repository.Message{
		ID:         fields["id"],
		SessionID:  fields["session_id"],
		Role:       fields["role"],
		Content:    fields["content"],
		CreatedAt:  created,
		ToolCallID: fields["tool_call_id"],
	}
	if raw := fields["metadata"]; raw != "" && raw != "{}" {
		if err := json.Unmarshal([]byte(raw), &msg.Metadata); err != nil {
			return repository.Message{}, fmt.Errorf("corrupt message metadata: %w", err)
		}
	}
	return msg, nil
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, fmt.Errorf("corrupt timestamp %q: %w", raw, err)
	}
	return t, nil
}
