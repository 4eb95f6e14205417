package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"shopping-assistant-backend/internal/conversation"
	"shopping-assistant-backend/internal/db"
)

// DatabaseStore persists conversations in SQL. Queries use ? placeholders
// and are rebound for the connected dialect.
type DatabaseStore struct {
	db *db.DB
}

func NewDatabaseStore(database *db.DB) *DatabaseStore {
	return &DatabaseStore{db: database}
}

// Save inserts or replaces the conversation.
func (ds *DatabaseStore) Save(ctx context.Context, c *conversation.Conversation) error {
	if c == nil || c.ID == "" {
		return fmt.Errorf("conversation id is required")
	}
	messages, err := conversation.EncodeMessages(c.Messages)
	if err != nil {
		return fmt.Errorf("failed to encode messages: %w", err)
	}

	query := `
		INSERT INTO conversations (id, title, messages, last_suggested_function, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (id)
		DO UPDATE SET
			title = EXCLUDED.title,
			messages = EXCLUDED.messages,
			last_suggested_function = EXCLUDED.last_suggested_function,
			updated_at = EXCLUDED.updated_at
	`
	_, err = ds.db.ExecContext(ctx, ds.db.Rebind(query),
		c.ID, c.Title, messages, c.LastSuggestedFunction,
		c.CreatedAt.UnixMilli(), c.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to save conversation: %w", err)
	}
	return nil
}

func (ds *DatabaseStore) Get(ctx context.Context, id string) (*conversation.Conversation, error) {
	if id == "" {
		return nil, conversation.ErrNotFound
	}
	query := `
		SELECT id, title, messages, last_suggested_function, created_at, updated_at
		FROM conversations
		WHERE id = ?
	`
	c, err := scanConversation(ds.db.QueryRowContext(ctx, ds.db.Rebind(query), id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, conversation.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get conversation: %w", err)
	}
	return c, nil
}

// List returns every conversation, most recently started first.
func (ds *DatabaseStore) List(ctx context.Context) ([]conversation.Conversation, error) {
	query := `
		SELECT id, title, messages, last_suggested_function, created_at, updated_at
		FROM conversations
		ORDER BY created_at DESC
	`
	rows, err := ds.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list conversations: %w", err)
	}
	defer rows.Close()

	out := []conversation.Conversation{}
	for rows.Next() {
		c, err := scanConversation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

func (ds *DatabaseStore) Delete(ctx context.Context, id string) error {
	res, err := ds.db.ExecContext(ctx, ds.db.Rebind(`DELETE FROM conversations WHERE id = ?`), id)
	if err != nil {
		return fmt.Errorf("failed to delete conversation: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

func (ds *DatabaseStore) UpdateTitle(ctx context.Context, id, title string) error {
	res, err := ds.db.ExecContext(ctx,
		ds.db.Rebind(`UPDATE conversations SET title = ?, updated_at = ? WHERE id = ?`),
		title, time.Now().UnixMilli(), id,
	)
	if err != nil {
		return fmt.Errorf("failed to update conversation title: %w", err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return conversation.ErrNotFound
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanConversation(row rowScanner) (*conversation.Conversation, error) {
	var (
		c                    conversation.Conversation
		messages             string
		createdAt, updatedAt int64
	)
	if err := row.Scan(&c.ID, &c.Title, &messages, &c.LastSuggestedFunction, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	msgs, err := conversation.DecodeMessages(messages)
	if err != nil {
		return nil, fmt.Errorf("failed to decode messages of %s: %w", c.ID, err)
	}
	c.Messages = msgs
	c.CreatedAt = time.UnixMilli(createdAt)
	c.UpdatedAt = time.UnixMilli(updatedAt)
	return &c, nil
}
