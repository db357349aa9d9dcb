package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/tripgenie/tripgenie-backend/internal/repository"
)

type messageRow struct {
	Seq        int64     `db:"seq"`
	ID         string    `db:"id"`
	SessionID  string    `db:"session_id"`
	Role       string    `db:"role"`
	Content    string    `db:"content"`
	ToolCallID string    `db:"tool_call_id"`
	Metadata   []byte    `db:"metadata"`
	CreatedAt  time.Time `db:"created_at"`
}

func (r messageRow) toMessage() (repository.Message, error) {
	msg := repository.Message{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Role:       r.Role,
		Content:    r.Content,
		CreatedAt:  r.CreatedAt.UTC(),
		ToolCallID: r.ToolCallID,
	}
	if len(r.Metadata) > 0 && string(r.Metadata) != "{}" {
		if err := json.Unmarshal(r.Metadata, &msg.Metadata); err != nil {
			return msg, fmt.Errorf("corrupt metadata on message %s: %w", r.ID, err)
		}
	}
	return msg, nil
}

// previewColumn maps a role to the session column holding its preview
var previewColumn = map[string]string{
	repository.RoleUser:      "last_user_message",
	repository.RoleAssistant: "last_assistant_message",
}

// AddMessage appends one message inside a transaction holding the session row lock
func (s *Store) AddMessage(ctx context.Context, sessionID string, msg repository.NewMessage) (string, error) {
	if !repository.ValidRole(msg.Role) {
		return "", repository.ErrInvalidRole
	}

	var id string
	err := s.inTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := s.lockSession(ctx, tx, sessionID); err != nil {
			return err
		}

		var last sql.NullTime
		if err := tx.GetContext(ctx, &last,
			"SELECT MAX(created_at) FROM trip_messages WHERE session_id = $1", sessionID); err != nil {
			return err
		}

		created := repository.NextTimestamp(last.Time.UTC(), s.now())

		var err error
		id, err = s.insertMessage(ctx, tx, sessionID, msg, created)
		if err != nil {
			return err
		}

		query := `
			UPDATE trip_sessions
			SET message_count = message_count + 1, last_activity = $2, expires_at = $3
			WHERE id = $1
		`
		args := []interface{}{sessionID, created, created.Add(s.ttl)}
		if column, ok := previewColumn[msg.Role]; ok {
			query = `
				UPDATE trip_sessions
				SET message_count = message_count + 1, last_activity = $2, expires_at = $3, ` + column + ` = $4
				WHERE id = $1
			`
			args = append(args, repository.Preview(msg.Content))
		}
		_, err = tx.ExecContext(ctx, query, args...)
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

// GetMessages returns the most recent messages in chronological order
func (s *Store) GetMessages(ctx context.Context, sessionID string, q repository.MessageQuery) ([]repository.Message, error) {
	if _, err := s.GetSessionInfo(ctx, sessionID); err != nil {
		return nil, err
	}

	msgs, err := s.recentMessages(ctx, s.db, sessionID, repository.NormalizeLimit(q.Limit))
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

// ReplaceMessages deletes the session's log and inserts msgs in one transaction
func (s *Store) ReplaceMessages(ctx context.Context, sessionID string, msgs []repository.NewMessage) error {
	for _, m := range msgs {
		if !repository.ValidRole(m.Role) {
			return repository.ErrInvalidRole
		}
	}

	return s.inTx(ctx, func(tx *sqlx.Tx) error {
		row, err := s.lockSession(ctx, tx, sessionID)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, "DELETE FROM trip_messages WHERE session_id = $1", sessionID); err != nil {
			return err
		}

		var (
			last     time.Time
			lastUser string
			lastBot  string
		)
		for _, m := range msgs {
			last = repository.NextTimestamp(last, s.now())
			if _, err := s.insertMessage(ctx, tx, sessionID, m, last); err != nil {
				return err
			}
			switch m.Role {
			case repository.RoleUser:
				lastUser = repository.Preview(m.Content)
			case repository.RoleAssistant:
				lastBot = repository.Preview(m.Content)
			}
		}

		activity := s.activity(row.LastActivity)
		if last.After(activity) {
			activity = last
		}
		_, err = tx.ExecContext(ctx, `
			UPDATE trip_sessions
			SET message_count = $2, last_activity = $3, expires_at = $4,
				last_user_message = $5, last_assistant_message = $6
			WHERE id = $1
		`, sessionID, len(msgs), activity, activity.Add(s.ttl), lastUser, lastBot)
		return err
	})
}

func (s *Store) insertMessage(ctx context.Context, tx *sqlx.Tx, sessionID string, msg repository.NewMessage, created time.Time) (string, error) {
	metadata := []byte("{}")
	if len(msg.Metadata) > 0 {
		raw, err := json.Marshal(msg.Metadata)
		if err != nil {
			return "", fmt.Errorf("failed to encode message metadata: %w", err)
		}
		metadata = raw
	}

	id := repository.NewMessageID()
	_, err := tx.ExecContext(ctx, `
		INSERT INTO trip_messages (id, session_id, role, content, tool_call_id, metadata, created_at)
		VALUES ($1, $2, $3, $4, $5, $6::jsonb, $7)
	`, id, sessionID, msg.Role, msg.Content, msg.ToolCallID, string(metadata), created)
	if err != nil {
		return "", fmt.Errorf("failed to insert message: %w", err)
	}
	return id, nil
}

// recentMessages returns the last limit messages of a session, oldest first
func (s *Store) recentMessages(ctx context.Context, q sqlx.QueryerContext, sessionID string, limit int) ([]repository.Message, error) {
	var rows []messageRow
	query := `
		SELECT seq, id, session_id, role, content, tool_call_id, metadata, created_at
		FROM (
			SELECT seq, id, session_id, role, content, tool_call_id, metadata, created_at
			FROM trip_messages
			WHERE session_id = $1
			ORDER BY seq DESC
			LIMIT $2
		) recent
		ORDER BY seq ASC
	`
	if err := sqlx.SelectContext(ctx, q, &rows, query, sessionID, limit); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}

	msgs := make([]repository.Message, 0, len(rows))
	for _, row := range rows {
		msg, err := row.toMessage()
		if err != nil {
			return nil, err
		}
		msgs = append(msgs, msg)
	}
	return msgs, nil
}
