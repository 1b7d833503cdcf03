package model

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// Store persists messages and conversation assignments in the app
// database. All writes are safe for concurrent callers; the database
// serializes them.
type Store struct {
	db *sql.DB
}

// NewStore wraps an open database handle.
func NewStore(db *sql.DB) *Store {
	return &Store{db: db}
}

// EnsureSchema creates the gateway tables when they do not exist yet.
func (s *Store) EnsureSchema(ctx context.Context) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			id                 TEXT PRIMARY KEY,
			chat_id            TEXT NOT NULL,
			sender             TEXT NOT NULL DEFAULT '',
			content            TEXT NOT NULL DEFAULT '',
			kind               TEXT NOT NULL DEFAULT 'text',
			status             TEXT NOT NULL DEFAULT 'queued',
			client_message_id  TEXT,
			is_from_me         BOOLEAN NOT NULL DEFAULT FALSE,
			is_from_agent      BOOLEAN NOT NULL DEFAULT FALSE,
			agent_id           BIGINT,
			error              TEXT NOT NULL DEFAULT '',
			created_at         TIMESTAMPTZ NOT NULL,
			updated_at         TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_chat_id ON messages (chat_id, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_messages_client_id ON messages (client_message_id) WHERE client_message_id IS NOT NULL`,
		`CREATE TABLE IF NOT EXISTS conversation_assignments (
			chat_id    TEXT PRIMARY KEY,
			agent_id   BIGINT NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("ensure schema: %w", err)
		}
	}
	return nil
}

// SaveMessage inserts a new message record.
func (s *Store) SaveMessage(ctx context.Context, m *Message) error {
	clientID := sql.NullString{String: m.ClientMessageID, Valid: m.ClientMessageID != ""}
	agentID := sql.NullInt64{Int64: m.AgentID, Valid: m.AgentID != 0}

	_, err := s.db.ExecContext(ctx, `
        INSERT INTO messages
            (id, chat_id, sender, content, kind, status, client_message_id,
             is_from_me, is_from_agent, agent_id, error, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
    `, m.ID, m.ChatID, m.Sender, m.Content, string(m.Kind), string(m.Status),
		clientID, m.IsFromMe, m.IsFromAgent, agentID, m.Error, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert message %s: %w", m.ID, err)
	}
	return nil
}

// UpdateMessageStatus advances a stored message to the given status.
func (s *Store) UpdateMessageStatus(ctx context.Context, id string, status MessageStatus, errMsg string) error {
	res, err := s.db.ExecContext(ctx, `
        UPDATE messages
        SET status = $1, error = $2, updated_at = $3
        WHERE id = $4
    `, string(status), errMsg, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("update message %s: %w", id, err)
	}

	rows, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return fmt.Errorf("message %s not found", id)
	}
	return nil
}

// FindPendingByClientID returns the most recent non-terminal outbound
// message recorded with the given client message id, or nil when none
// exists.
func (s *Store) FindPendingByClientID(ctx context.Context, clientMessageID string) (*Message, error) {
	row := s.db.QueryRowContext(ctx, `
        SELECT id, chat_id, sender, content, kind, status,
               COALESCE(client_message_id, ''), is_from_me, is_from_agent,
               COALESCE(agent_id, 0), error, created_at, updated_at
        FROM messages
        WHERE client_message_id = $1
          AND is_from_me = TRUE
          AND status NOT IN ('read', 'failed')
        ORDER BY created_at DESC
        LIMIT 1
    `, clientMessageID)

	m, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	return m, err
}

// ListMessagesByChat returns the stored messages of a chat, oldest first.
func (s *Store) ListMessagesByChat(ctx context.Context, chatID string, limit int) ([]*Message, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, chat_id, sender, content, kind, status,
               COALESCE(client_message_id, ''), is_from_me, is_from_agent,
               COALESCE(agent_id, 0), error, created_at, updated_at
        FROM messages
        WHERE chat_id = $1
        ORDER BY created_at ASC
        LIMIT $2
    `, chatID, limit)
	if err != nil {
		return nil, fmt.Errorf("list messages for %s: %w", chatID, err)
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// AssignedAgentID returns the agent assigned to a chat, or 0 when the
// conversation is unassigned.
func (s *Store) AssignedAgentID(ctx context.Context, chatID string) (int64, error) {
	var agentID int64
	err := s.db.QueryRowContext(ctx, `
        SELECT agent_id FROM conversation_assignments WHERE chat_id = $1
    `, chatID).Scan(&agentID)
	if err == sql.ErrNoRows {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("assignment lookup for %s: %w", chatID, err)
	}
	return agentID, nil
}

// AssignConversation binds a chat to an agent, replacing any previous
// assignment.
func (s *Store) AssignConversation(ctx context.Context, chatID string, agentID int64) error {
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO conversation_assignments (chat_id, agent_id, updated_at)
        VALUES ($1, $2, $3)
        ON CONFLICT (chat_id) DO UPDATE
        SET agent_id = EXCLUDED.agent_id, updated_at = EXCLUDED.updated_at
    `, chatID, agentID, time.Now().UTC())
	if err != nil {
		return fmt.Errorf("assign conversation %s: %w", chatID, err)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanMessage(row rowScanner) (*Message, error) {
	var m Message
	var kind, status string
	err := row.Scan(&m.ID, &m.ChatID, &m.Sender, &m.Content, &kind, &status,
		&m.ClientMessageID, &m.IsFromMe, &m.IsFromAgent, &m.AgentID,
		&m.Error, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, err
	}
	m.Kind = MessageKind(kind)
	m.Status = MessageStatus(status)
	return &m, nil
}
