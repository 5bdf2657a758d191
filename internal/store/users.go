package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// CreateUser inserts a user row.
func (s *Store) CreateUser(ctx context.Context, u User) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO users (id, name, role, daily_message_count, last_message_date)
		 VALUES (?, ?, ?, ?, NULLIF(?, ''))`,
		u.ID, u.Name, u.Role, u.DailyMessageCount, u.LastMessageDate,
	)
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

// User fetches a user by id. Returns ErrNotFound for unknown ids.
func (s *Store) User(ctx context.Context, id string) (*User, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, name, role, daily_message_count, COALESCE(last_message_date, '')
		 FROM users WHERE id = ?`, id)

	var u User
	err := row.Scan(&u.ID, &u.Name, &u.Role, &u.DailyMessageCount, &u.LastMessageDate)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query user: %w", err)
	}
	return &u, nil
}

// CreateToken stores an API token's bcrypt secret hash under its public id.
func (s *Store) CreateToken(ctx context.Context, tokenID, userID, secretHash string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO api_tokens (id, user_id, secret_hash, created_at) VALUES (?, ?, ?, ?)`,
		tokenID, userID, secretHash, time.Now().UTC().Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("insert token: %w", err)
	}
	return nil
}

// Token fetches an API token row by its public id.
// Returns ErrNotFound for unknown ids.
func (s *Store) Token(ctx context.Context, tokenID string) (userID, secretHash string, err error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT user_id, secret_hash FROM api_tokens WHERE id = ?`, tokenID)

	err = row.Scan(&userID, &secretHash)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", ErrNotFound
	}
	if err != nil {
		return "", "", fmt.Errorf("query token: %w", err)
	}
	return userID, secretHash, nil
}

// consumeQuota performs the atomic check-and-increment inside tx. It
// bumps daily_message_count for today, resetting the counter when
// last_message_date is a prior day, and refuses when today's count has
// already reached limit. Returns ErrQuotaExhausted on refusal, so two
// concurrent turns can never both consume the last slot.
func consumeQuota(ctx context.Context, tx *sql.Tx, userID, today string, limit int) error {
	res, err := tx.ExecContext(ctx,
		`UPDATE users SET
			daily_message_count = CASE WHEN last_message_date = ? THEN daily_message_count + 1 ELSE 1 END,
			last_message_date = ?
		 WHERE id = ?
		   AND (last_message_date IS NULL OR last_message_date <> ? OR daily_message_count < ?)`,
		today, today, userID, today, limit,
	)
	if err != nil {
		return fmt.Errorf("update quota counter: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("quota rows affected: %w", err)
	}
	if n == 0 {
		return ErrQuotaExhausted
	}
	return nil
}
