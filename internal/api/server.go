// Package api implements the assistant's HTTP surface: the chat
// endpoint, health and version probes, and a WebSocket stream of
// pipeline events.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/quillworks/quill-assistant/internal/apperr"
	"github.com/quillworks/quill-assistant/internal/auth"
	"github.com/quillworks/quill-assistant/internal/buildinfo"
	"github.com/quillworks/quill-assistant/internal/chat"
	"github.com/quillworks/quill-assistant/internal/events"
)

// Server is the HTTP API server.
type Server struct {
	address  string
	port     int
	pipeline *chat.Pipeline
	verifier auth.Verifier
	bus      *events.Bus
	logger   *slog.Logger
	server   *http.Server
}

// NewServer creates an API server.
func NewServer(address string, port int, pipeline *chat.Pipeline, verifier auth.Verifier, bus *events.Bus, logger *slog.Logger) *Server {
	return &Server{
		address:  address,
		port:     port,
		pipeline: pipeline,
		verifier: verifier,
		bus:      bus,
		logger:   logger.With("component", "api"),
	}
}

// Handler builds the route mux. Exposed separately so tests can drive
// the server through httptest without binding a port.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /v1/chat", s.handleChat)
	mux.HandleFunc("GET /v1/events", s.handleEvents)
	mux.HandleFunc("GET /v1/version", s.handleVersion)
	mux.HandleFunc("GET /health", s.handleHealth)

	return mux
}

// Start begins serving HTTP requests and blocks until ctx is cancelled
// or the listener fails.
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.address, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("api server listening", "addr", s.server.Addr)
		errCh <- s.server.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

// chatRequest is the POST /v1/chat body.
type chatRequest struct {
	Prompt         string    `json:"prompt"`
	ConversationID string    `json:"conversationId"`
	FileData       *fileData `json:"fileData,omitempty"`
}

type fileData struct {
	MimeType string `json:"mimeType"`
	Base64   string `json:"base64"`
}

// chatResponse is the POST /v1/chat success body.
type chatResponse struct {
	Response string `json:"response"`
	Title    string `json:"title,omitempty"`
}

func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	userID, err := s.authenticate(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, apperr.New(apperr.KindValidation, "invalid JSON body"))
		return
	}

	turn := chat.Request{
		Prompt:         req.Prompt,
		ConversationID: req.ConversationID,
	}
	if req.FileData != nil {
		turn.Attachment = &chat.Attachment{
			MimeType: req.FileData.MimeType,
			Base64:   req.FileData.Base64,
		}
	}

	result, err := s.pipeline.Respond(r.Context(), userID, turn)
	if err != nil {
		s.writeError(w, err)
		return
	}

	s.writeJSON(w, http.StatusOK, chatResponse{
		Response: result.Response,
		Title:    result.Title,
	})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, buildinfo.Info())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// authenticate resolves the bearer token to a user id. Missing,
// malformed, and unknown tokens are indistinguishable to the client.
func (s *Server) authenticate(r *http.Request) (string, error) {
	header := r.Header.Get("Authorization")
	token, ok := strings.CutPrefix(header, "Bearer ")
	if !ok || token == "" {
		return "", apperr.New(apperr.KindAuth, "missing bearer token")
	}

	userID, err := s.verifier.Verify(r.Context(), token)
	if errors.Is(err, auth.ErrInvalidToken) {
		return "", apperr.New(apperr.KindAuth, "invalid token")
	}
	if err != nil {
		return "", fmt.Errorf("verify token: %w", err)
	}
	return userID, nil
}

// writeError maps an error through the taxonomy. Internal details are
// logged server-side only; response bodies carry the client-safe
// message.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	status := kind.HTTPStatus()

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", "kind", kind.String(), "error", err)
	} else {
		s.logger.Debug("request rejected", "kind", kind.String(), "error", err)
	}

	s.writeJSON(w, status, map[string]any{
		"error": map[string]any{
			"message": apperr.Message(err),
			"type":    kind.String(),
			"code":    status,
		},
	})
}

// writeJSON encodes v to w. Encoding errors typically mean the client
// disconnected mid-response; logged at debug and otherwise ignored.
func (s *Server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Debug("failed to write JSON response", "error", err)
	}
}
