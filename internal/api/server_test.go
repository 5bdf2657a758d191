package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/quillworks/quill-assistant/internal/auth"
	"github.com/quillworks/quill-assistant/internal/canned"
	"github.com/quillworks/quill-assistant/internal/chat"
	"github.com/quillworks/quill-assistant/internal/events"
	"github.com/quillworks/quill-assistant/internal/llm"
	"github.com/quillworks/quill-assistant/internal/quota"
	"github.com/quillworks/quill-assistant/internal/router"
	"github.com/quillworks/quill-assistant/internal/store"
)

// staticVerifier resolves one fixed token.
type staticVerifier struct {
	token  string
	userID string
}

func (v staticVerifier) Verify(ctx context.Context, token string) (string, error) {
	if token != v.token {
		return "", auth.ErrInvalidToken
	}
	return v.userID, nil
}

type apiStore struct {
	user *store.User
}

func (s *apiStore) User(ctx context.Context, id string) (*store.User, error) {
	if s.user == nil || s.user.ID != id {
		return nil, store.ErrNotFound
	}
	return s.user, nil
}

func (s *apiStore) Messages(ctx context.Context, conversationID string) ([]store.Message, error) {
	return nil, nil
}

func (s *apiStore) CountUserMessages(ctx context.Context, conversationID string) (int, error) {
	return 0, nil
}

func (s *apiStore) FinalizeTurn(ctx context.Context, p store.FinalizeParams) error {
	return nil
}

type staticLLM struct{ content string }

func (c staticLLM) Chat(ctx context.Context, model string, messages []llm.Message, tools []map[string]any) (*llm.ChatResponse, error) {
	return &llm.ChatResponse{Message: llm.Message{Role: "assistant", Content: c.content}}, nil
}

type staticRetriever struct{}

func (staticRetriever) Retrieve(ctx context.Context, prompt string) string { return "" }

type staticTitles struct{}

func (staticTitles) Generate(ctx context.Context, prompt string) string { return "A Title" }

func newTestServer(t *testing.T) (*Server, *events.Bus) {
	t.Helper()
	bus := events.New()
	pipeline := chat.New(chat.Config{
		Store:     &apiStore{user: &store.User{ID: "u1", Name: "Ana", Role: store.RoleMember}},
		Matcher:   canned.NewMatcher(nil),
		Retriever: staticRetriever{},
		Router:    router.New(slog.Default(), router.Config{Fast: "fast", Capable: "capable"}),
		LLM:       staticLLM{content: "a fine answer"},
		Titles:    staticTitles{},
		Bus:       bus,
		Logger:    slog.Default(),
		Limits:    quota.DefaultLimits(),
	})
	return NewServer("", 0, pipeline, staticVerifier{token: "quill_id_secret", userID: "u1"}, bus, slog.Default()), bus
}

func postChat(t *testing.T, handler http.Handler, token, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/v1/chat", bytes.NewBufferString(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	handler.ServeHTTP(w, req)
	return w
}

func TestChatEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := postChat(t, h, "quill_id_secret", `{"prompt": "explain dns to me", "conversationId": "c1"}`)
	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d, body %s", w.Code, w.Body.String())
	}

	var resp chatResponse
	if err := json.NewDecoder(w.Body).Decode(&resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if resp.Response != "a fine answer" {
		t.Errorf("response: %q", resp.Response)
	}
	if resp.Title != "A Title" {
		t.Errorf("title: %q", resp.Title)
	}
}

func TestChatEndpointStatusMapping(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	tests := []struct {
		name   string
		token  string
		body   string
		status int
	}{
		{"no token", "", `{"prompt": "hi all", "conversationId": "c1"}`, http.StatusUnauthorized},
		{"bad token", "quill_wrong_secret", `{"prompt": "hi all", "conversationId": "c1"}`, http.StatusUnauthorized},
		{"invalid JSON", "quill_id_secret", `{"prompt": `, http.StatusBadRequest},
		{"blank prompt", "quill_id_secret", `{"prompt": "  ", "conversationId": "c1"}`, http.StatusBadRequest},
		{"missing conversation", "quill_id_secret", `{"prompt": "explain dns to me"}`, http.StatusBadRequest},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := postChat(t, h, tc.token, tc.body)
			if w.Code != tc.status {
				t.Errorf("status: got %d, want %d (body %s)", w.Code, tc.status, w.Body.String())
			}
		})
	}
}

func TestChatEndpointErrorBodyShape(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	w := postChat(t, h, "quill_id_secret", `{"prompt": "  ", "conversationId": "c1"}`)

	var body struct {
		Error struct {
			Message string `json:"message"`
			Type    string `json:"type"`
			Code    int    `json:"code"`
		} `json:"error"`
	}
	if err := json.NewDecoder(w.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Error.Type != "validation" || body.Error.Code != http.StatusBadRequest {
		t.Errorf("error body: %+v", body.Error)
	}
	if body.Error.Message == "" {
		t.Error("error message empty")
	}
}

func TestInternalErrorsAreOpaque(t *testing.T) {
	s, _ := newTestServer(t)

	w := httptest.NewRecorder()
	s.writeError(w, errors.New("dial tcp 10.0.0.5: connection refused"))

	if w.Code != http.StatusInternalServerError {
		t.Fatalf("status: got %d", w.Code)
	}
	if strings.Contains(w.Body.String(), "10.0.0.5") {
		t.Errorf("internal detail leaked: %s", w.Body.String())
	}
	if !strings.Contains(w.Body.String(), "internal error") {
		t.Errorf("missing opaque message: %s", w.Body.String())
	}
}

func TestHealthEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), "ok") {
		t.Errorf("body: %s", w.Body.String())
	}
}

func TestVersionEndpoint(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/version", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status: got %d", w.Code)
	}
	var info map[string]string
	if err := json.NewDecoder(w.Body).Decode(&info); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if info["version"] == "" {
		t.Errorf("version missing: %v", info)
	}
}

func TestMethodNotAllowed(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/chat", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusMethodNotAllowed {
		t.Errorf("status: got %d, want 405", w.Code)
	}
}

func TestEventsEndpointRequiresAuth(t *testing.T) {
	s, _ := newTestServer(t)
	h := s.Handler()

	req := httptest.NewRequest(http.MethodGet, "/v1/events", nil)
	w := httptest.NewRecorder()
	h.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status: got %d, want 401", w.Code)
	}
}
