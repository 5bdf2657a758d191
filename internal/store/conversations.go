package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Conversation fetches conversation metadata by id.
// Returns ErrNotFound for unknown ids.
func (s *Store) Conversation(ctx context.Context, id string) (*Conversation, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, COALESCE(title, ''), created_at, updated_at
		 FROM conversations WHERE id = ?`, id)

	var c Conversation
	var created, updated string
	err := row.Scan(&c.ID, &c.UserID, &c.Title, &created, &updated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query conversation: %w", err)
	}
	c.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
	c.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updated)
	return &c, nil
}

// Messages returns a conversation's messages in creation order.
// An unknown conversation yields an empty slice, not an error.
func (s *Store) Messages(ctx context.Context, conversationID string) ([]Message, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, conversation_id, role, content, created_at
		 FROM messages WHERE conversation_id = ?
		 ORDER BY created_at, id`, conversationID)
	if err != nil {
		return nil, fmt.Errorf("query messages: %w", err)
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var created string
		if err := rows.Scan(&m.ID, &m.ConversationID, &m.Role, &m.Content, &created); err != nil {
			return nil, fmt.Errorf("scan message: %w", err)
		}
		m.CreatedAt, _ = time.Parse(time.RFC3339Nano, created)
		msgs = append(msgs, m)
	}
	return msgs, rows.Err()
}

// CountUserMessages counts user-authored messages in a conversation.
// Title generation keys off this being zero.
func (s *Store) CountUserMessages(ctx context.Context, conversationID string) (int, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE conversation_id = ? AND role = 'user'`,
		conversationID)

	var n int
	if err := row.Scan(&n); err != nil {
		return 0, fmt.Errorf("count user messages: %w", err)
	}
	return n, nil
}

// FinalizeParams carries everything the end-of-turn write needs.
type FinalizeParams struct {
	UserID         string
	ConversationID string

	// Title is applied once, only if the conversation has none yet.
	// Empty means don't touch the title.
	Title string

	Prompt string
	Answer string

	// Now anchors the message timestamps and the quota calendar day.
	Now time.Time

	// QuotaLimit is the user's role-derived daily limit. Ignored when
	// CountAgainstQuota is false.
	QuotaLimit int

	// CountAgainstQuota is false on the canned-response path, which
	// persists a pair without consuming quota.
	CountAgainstQuota bool
}

// FinalizeTurn commits one completed exchange as a single transaction:
// the conversation row (created if absent, title applied at most once,
// updated_at bumped), the (user, model) message pair, and the atomic
// conditional quota increment. Either everything lands or nothing does,
// so a crash can never leave a message pair without its counter update.
// Returns ErrQuotaExhausted (rolling everything back) when a concurrent
// turn consumed the user's last daily slot after the pipeline's initial
// check.
func (s *Store) FinalizeTurn(ctx context.Context, p FinalizeParams) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin finalize: %w", err)
	}
	defer tx.Rollback()

	now := p.Now.UTC()
	nowStr := now.Format(timeFormat)

	_, err = tx.ExecContext(ctx,
		`INSERT INTO conversations (id, user_id, title, created_at, updated_at)
		 VALUES (?, ?, NULL, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET updated_at = excluded.updated_at`,
		p.ConversationID, p.UserID, nowStr, nowStr,
	)
	if err != nil {
		return fmt.Errorf("upsert conversation: %w", err)
	}

	if p.Title != "" {
		_, err = tx.ExecContext(ctx,
			`UPDATE conversations SET title = ? WHERE id = ? AND title IS NULL`,
			p.Title, p.ConversationID,
		)
		if err != nil {
			return fmt.Errorf("set conversation title: %w", err)
		}
	}

	// The model message is stamped one tick after the user message so
	// creation order always reflects the exchange order.
	pair := []struct {
		role, content string
		at            time.Time
	}{
		{MessageRoleUser, p.Prompt, now},
		{MessageRoleModel, p.Answer, now.Add(time.Millisecond)},
	}
	for _, m := range pair {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate message ID: %w", err)
		}
		_, err = tx.ExecContext(ctx,
			`INSERT INTO messages (id, conversation_id, role, content, created_at)
			 VALUES (?, ?, ?, ?, ?)`,
			id.String(), p.ConversationID, m.role, m.content, m.at.Format(timeFormat),
		)
		if err != nil {
			return fmt.Errorf("insert %s message: %w", m.role, err)
		}
	}

	if p.CountAgainstQuota {
		if err := consumeQuota(ctx, tx, p.UserID, now.Format(DateFormat), p.QuotaLimit); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit finalize: %w", err)
	}
	return nil
}
