// Package postgres implements store.ConversationStore over pgxpool,
// grounded on the teacher's chat_store_postgres.go: a single table schema
// created idempotently in Init, and AppendTurn wrapped in a transaction so
// the message-pair append and the Conversation's updated_at bump are a
// single atomic commit (§4.6 Atomicity).
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"turncore/internal/observability"
	"turncore/internal/store"
)

// ConversationStore is a Postgres-backed store.ConversationStore.
type ConversationStore struct {
	pool *pgxpool.Pool
}

// NewConversationStore wraps an existing pgxpool.Pool.
func NewConversationStore(pool *pgxpool.Pool) *ConversationStore {
	return &ConversationStore{pool: pool}
}

// Close releases the underlying pool.
func (s *ConversationStore) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// Init creates the conversations/messages tables if they don't already
// exist (teacher: chat_store_postgres.go's Init).
func (s *ConversationStore) Init(ctx context.Context) error {
	if s.pool == nil {
		return errors.New("postgres conversation store requires a pool")
	}
	_, err := s.pool.Exec(ctx, `
CREATE TABLE IF NOT EXISTS conversations (
    id UUID PRIMARY KEY,
    display_name TEXT NOT NULL,
    model_id TEXT NOT NULL DEFAULT '',
    prompt_id TEXT NOT NULL DEFAULT '',
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    archived BOOLEAN NOT NULL DEFAULT FALSE
);

CREATE TABLE IF NOT EXISTS conversation_messages (
    id UUID PRIMARY KEY,
    conversation_id UUID NOT NULL REFERENCES conversations(id) ON DELETE CASCADE,
    role TEXT NOT NULL,
    content TEXT NOT NULL,
    search_passage TEXT NOT NULL DEFAULT '',
    tool_call_name TEXT NOT NULL DEFAULT '',
    tool_call_args JSONB,
    metrics JSONB,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS conversation_messages_conv_created_idx
    ON conversation_messages(conversation_id, created_at);
`)
	return err
}

func (s *ConversationStore) CreateConversation(ctx context.Context, displayName, modelID, promptID string) (store.Conversation, error) {
	if strings.TrimSpace(displayName) == "" {
		displayName = "New Chat"
	}
	id := uuid.New()
	row := s.pool.QueryRow(ctx, `
INSERT INTO conversations (id, display_name, model_id, prompt_id)
VALUES ($1, $2, $3, $4)
RETURNING id, display_name, model_id, prompt_id, created_at, updated_at, archived`,
		id, displayName, modelID, promptID)
	return scanConversation(row)
}

func (s *ConversationStore) GetConversation(ctx context.Context, id string) (store.Conversation, error) {
	row := s.pool.QueryRow(ctx, `
SELECT id, display_name, model_id, prompt_id, created_at, updated_at, archived
FROM conversations WHERE id = $1`, id)
	conv, err := scanConversation(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.Conversation{}, store.ErrNotFound
		}
		return store.Conversation{}, err
	}

	msgs, err := s.listMessages(ctx, id)
	if err != nil {
		return store.Conversation{}, err
	}
	conv.Messages = msgs
	return conv, nil
}

func (s *ConversationStore) listMessages(ctx context.Context, conversationID string) ([]store.Message, error) {
	rows, err := s.pool.Query(ctx, `
SELECT id, conversation_id, role, content, search_passage, tool_call_name, tool_call_args, metrics, created_at
FROM conversation_messages
WHERE conversation_id = $1
ORDER BY created_at ASC, id ASC`, conversationID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []store.Message
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, msg)
	}
	if out == nil {
		out = make([]store.Message, 0)
	}
	return out, rows.Err()
}

// AppendTurn wraps the message-pair insert and the conversation's
// updated_at bump in a single transaction (§4.6 Atomicity: "a failure
// after provider success but before persistence is surfaced as an error;
// no assistant Message is retained").
func (s *ConversationStore) AppendTurn(ctx context.Context, conversationID string, userMsg, assistantMsg store.Message) (store.Conversation, error) {
	log := observability.LoggerWithTrace(ctx)

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return store.Conversation{}, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var exists bool
	if err := tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM conversations WHERE id = $1)`, conversationID).Scan(&exists); err != nil {
		return store.Conversation{}, err
	}
	if !exists {
		return store.Conversation{}, store.ErrNotFound
	}

	for _, msg := range []*store.Message{&userMsg, &assistantMsg} {
		msg.ConversationID = conversationID
		if msg.ID == "" {
			msg.ID = uuid.NewString()
		}
		if msg.CreatedAt.IsZero() {
			msg.CreatedAt = time.Now().UTC()
		}
		metricsJSON, err := json.Marshal(msg.Metrics)
		if err != nil {
			return store.Conversation{}, err
		}
		if _, err := tx.Exec(ctx, `
INSERT INTO conversation_messages
    (id, conversation_id, role, content, search_passage, tool_call_name, tool_call_args, metrics, created_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
			msg.ID, conversationID, msg.Role, msg.Content, msg.SearchPassage, msg.ToolCallName,
			nullableJSON(msg.ToolCallArgs), nullableJSON(metricsJSON), msg.CreatedAt); err != nil {
			log.Error().Err(err).Str("conversation_id", conversationID).Msg("append_turn_insert_message_failed")
			return store.Conversation{}, err
		}
	}

	if _, err := tx.Exec(ctx, `UPDATE conversations SET updated_at = NOW() WHERE id = $1`, conversationID); err != nil {
		return store.Conversation{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return store.Conversation{}, err
	}

	return s.GetConversation(ctx, conversationID)
}

func nullableJSON(raw []byte) any {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	return raw
}

func scanConversation(row pgx.Row) (store.Conversation, error) {
	var conv store.Conversation
	if err := row.Scan(&conv.ID, &conv.DisplayName, &conv.ModelID, &conv.PromptID, &conv.CreatedAt, &conv.UpdatedAt, &conv.Archived); err != nil {
		return store.Conversation{}, err
	}
	return conv, nil
}

func scanMessage(rows pgx.Rows) (store.Message, error) {
	var msg store.Message
	var toolArgs, metricsRaw []byte
	if err := rows.Scan(&msg.ID, &msg.ConversationID, &msg.Role, &msg.Content, &msg.SearchPassage,
		&msg.ToolCallName, &toolArgs, &metricsRaw, &msg.CreatedAt); err != nil {
		return store.Message{}, err
	}
	if len(toolArgs) > 0 {
		msg.ToolCallArgs = json.RawMessage(toolArgs)
	}
	if len(metricsRaw) > 0 {
		var metrics store.ResponseMetrics
		if err := json.Unmarshal(metricsRaw, &metrics); err == nil {
			msg.Metrics = &metrics
		}
	}
	return msg, nil
}
