// Package store is the SQLite persistence layer for the assistant
// pipeline: users and their API tokens, conversations with their
// append-only message log, the per-user daily quota counter, and the
// knowledge chunks the retriever searches. All public methods are safe
// for concurrent use (SQLite serializes writes).
package store

import (
	"database/sql"
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// DateFormat is how last_message_date is stored: a bare calendar day.
// Quota reset semantics compare these strings, not timestamps.
const DateFormat = "2006-01-02"

// timeFormat is how timestamps are stored. Unlike RFC3339Nano it never
// drops trailing zeros, so the strings stay fixed-width and ORDER BY
// created_at compares chronologically.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// Sentinel errors for callers to classify.
var (
	// ErrNotFound is returned when a referenced record does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrQuotaExhausted is returned by FinalizeTurn when the atomic
	// conditional counter update finds the daily limit already consumed.
	ErrQuotaExhausted = errors.New("daily message quota exhausted")
)

// User roles.
const (
	RoleDirector = "director"
	RoleMember   = "member"
)

// Message roles as persisted. The pipeline only ever writes these two.
const (
	MessageRoleUser  = "user"
	MessageRoleModel = "model"
)

// User is an account row. DailyMessageCount is only meaningful when
// LastMessageDate equals the current calendar day; otherwise it is
// semantically zero regardless of the stored value.
type User struct {
	ID                string
	Name              string
	Role              string
	DailyMessageCount int
	LastMessageDate   string // DateFormat, empty when the user never sent a message
}

// Conversation metadata. Title is empty until the first completed turn
// names it; it is set at most once.
type Conversation struct {
	ID        string
	UserID    string
	Title     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Message is one element of a conversation's append-only log.
type Message struct {
	ID             string
	ConversationID string
	Role           string
	Content        string
	CreatedAt      time.Time
}

// Chunk is one knowledge-base entry with its embedding vector.
type Chunk struct {
	ID        string
	Source    string
	Section   string
	Content   string
	Embedding []float32
	CreatedAt time.Time
}

// Store wraps the SQLite database.
type Store struct {
	db *sql.DB
}

// New opens (or creates) the database at dbPath and migrates the schema.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS users (
		id                  TEXT PRIMARY KEY,
		name                TEXT NOT NULL,
		role                TEXT NOT NULL CHECK (role IN ('director', 'member')),
		daily_message_count INTEGER NOT NULL DEFAULT 0,
		last_message_date   TEXT
	);

	CREATE TABLE IF NOT EXISTS api_tokens (
		id          TEXT PRIMARY KEY,
		user_id     TEXT NOT NULL,
		secret_hash TEXT NOT NULL,
		created_at  TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_api_tokens_user ON api_tokens(user_id);

	CREATE TABLE IF NOT EXISTS conversations (
		id         TEXT PRIMARY KEY,
		user_id    TEXT NOT NULL,
		title      TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL,
		FOREIGN KEY (user_id) REFERENCES users(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_conversations_user ON conversations(user_id, updated_at);

	CREATE TABLE IF NOT EXISTS messages (
		id              TEXT PRIMARY KEY,
		conversation_id TEXT NOT NULL,
		role            TEXT NOT NULL CHECK (role IN ('user', 'model')),
		content         TEXT NOT NULL,
		created_at      TEXT NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation_id, created_at);

	CREATE TABLE IF NOT EXISTS knowledge_chunks (
		id         TEXT PRIMARY KEY,
		source     TEXT NOT NULL,
		section    TEXT,
		content    TEXT NOT NULL,
		embedding  BLOB NOT NULL,
		created_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_chunks_source ON knowledge_chunks(source);
	`
	_, err := s.db.Exec(schema)
	return err
}

// encodeVector serializes an embedding as little-endian float32s.
func encodeVector(v []float32) []byte {
	buf := make([]byte, 4*len(v))
	for i, f := range v {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(f))
	}
	return buf
}

// decodeVector is the inverse of encodeVector.
func decodeVector(buf []byte) []float32 {
	v := make([]float32, len(buf)/4)
	for i := range v {
		v[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return v
}
