package auth

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/quillworks/quill-assistant/internal/store"
)

// memTokens is an in-memory TokenStore.
type memTokens struct {
	rows map[string][2]string // tokenID -> (userID, secretHash)
}

func newMemTokens() *memTokens {
	return &memTokens{rows: make(map[string][2]string)}
}

func (m *memTokens) Token(ctx context.Context, tokenID string) (string, string, error) {
	row, ok := m.rows[tokenID]
	if !ok {
		return "", "", store.ErrNotFound
	}
	return row[0], row[1], nil
}

func (m *memTokens) CreateToken(ctx context.Context, tokenID, userID, secretHash string) error {
	m.rows[tokenID] = [2]string{userID, secretHash}
	return nil
}

func TestMintVerifyRoundTrip(t *testing.T) {
	tokens := newMemTokens()
	ctx := context.Background()

	token, err := Mint(ctx, tokens, "u1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if !strings.HasPrefix(token, "quill_") {
		t.Errorf("token %q missing prefix", token)
	}
	if parts := strings.Split(token, "_"); len(parts) != 3 {
		t.Fatalf("token %q not three-part", token)
	}

	userID, err := NewVerifier(tokens).Verify(ctx, token)
	if err != nil {
		t.Fatalf("verify: %v", err)
	}
	if userID != "u1" {
		t.Errorf("got user %q, want u1", userID)
	}
}

func TestVerifyRejections(t *testing.T) {
	tokens := newMemTokens()
	ctx := context.Background()

	token, err := Mint(ctx, tokens, "u1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	parts := strings.Split(token, "_")

	v := NewVerifier(tokens)

	tests := []struct {
		name  string
		token string
	}{
		{"empty", ""},
		{"wrong prefix", "nope_" + parts[1] + "_" + parts[2]},
		{"missing secret", "quill_" + parts[1] + "_"},
		{"missing id", "quill__" + parts[2]},
		{"too many parts", token + "_extra"},
		{"unknown id", "quill_deadbeef_" + parts[2]},
		{"wrong secret", "quill_" + parts[1] + "_not-the-secret"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := v.Verify(ctx, tc.token); !errors.Is(err, ErrInvalidToken) {
				t.Errorf("got %v, want ErrInvalidToken", err)
			}
		})
	}
}

func TestMintSecretsAreUnique(t *testing.T) {
	tokens := newMemTokens()
	ctx := context.Background()

	a, err := Mint(ctx, tokens, "u1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	b, err := Mint(ctx, tokens, "u1")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if a == b {
		t.Error("two mints produced the same token")
	}
}
