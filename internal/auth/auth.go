// Package auth verifies API bearer tokens. Tokens have the form
// "quill_<id>_<secret>": the id half is a plain lookup key and the
// secret half is checked against a bcrypt hash, so a leaked database
// never yields usable tokens.
package auth

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/quillworks/quill-assistant/internal/store"
)

const tokenPrefix = "quill"

// ErrInvalidToken is returned for malformed, unknown, or mismatched
// tokens. Callers must not distinguish those cases to clients.
var ErrInvalidToken = errors.New("invalid token")

// Verifier resolves a bearer token to a user id.
type Verifier interface {
	Verify(ctx context.Context, token string) (userID string, err error)
}

// TokenStore is the subset of the store the verifier needs.
type TokenStore interface {
	Token(ctx context.Context, tokenID string) (userID, secretHash string, err error)
	CreateToken(ctx context.Context, tokenID, userID, secretHash string) error
}

// StoreVerifier verifies tokens against the database.
type StoreVerifier struct {
	tokens TokenStore
}

// NewVerifier creates a store-backed verifier.
func NewVerifier(tokens TokenStore) *StoreVerifier {
	return &StoreVerifier{tokens: tokens}
}

// Verify parses and checks a bearer token, returning the owning user id.
func (v *StoreVerifier) Verify(ctx context.Context, token string) (string, error) {
	parts := strings.Split(token, "_")
	if len(parts) != 3 || parts[0] != tokenPrefix || parts[1] == "" || parts[2] == "" {
		return "", ErrInvalidToken
	}
	tokenID, secret := parts[1], parts[2]

	userID, secretHash, err := v.tokens.Token(ctx, tokenID)
	if errors.Is(err, store.ErrNotFound) {
		return "", ErrInvalidToken
	}
	if err != nil {
		return "", fmt.Errorf("look up token: %w", err)
	}

	if bcrypt.CompareHashAndPassword([]byte(secretHash), []byte(secret)) != nil {
		return "", ErrInvalidToken
	}
	return userID, nil
}

// Mint creates and persists a new token for a user, returning the full
// bearer string. The secret is only recoverable from this return value.
func Mint(ctx context.Context, tokens TokenStore, userID string) (string, error) {
	idBytes := make([]byte, 8)
	secretBytes := make([]byte, 24)
	if _, err := rand.Read(idBytes); err != nil {
		return "", fmt.Errorf("generate token id: %w", err)
	}
	if _, err := rand.Read(secretBytes); err != nil {
		return "", fmt.Errorf("generate token secret: %w", err)
	}
	tokenID := hex.EncodeToString(idBytes)
	secret := hex.EncodeToString(secretBytes)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash token secret: %w", err)
	}

	if err := tokens.CreateToken(ctx, tokenID, userID, string(hash)); err != nil {
		return "", err
	}

	return fmt.Sprintf("%s_%s_%s", tokenPrefix, tokenID, secret), nil
}
