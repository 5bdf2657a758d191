// Package titles names new conversations with a single cheap model
// call. The generator runs synchronously on a conversation's first
// turn, before the finalizer commits; a failure degrades to an untitled
// conversation rather than failing the turn.
package titles

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quillworks/quill-assistant/internal/llm"
)

// maxWords caps the generated title length.
const maxWords = 5

// Generator produces short conversation titles.
type Generator struct {
	client llm.Client
	model  string
	logger *slog.Logger
}

// New creates a title generator using the given (cheap) model.
func New(client llm.Client, model string, logger *slog.Logger) *Generator {
	return &Generator{
		client: client,
		model:  model,
		logger: logger.With("component", "titles"),
	}
}

// Generate names a conversation from its opening prompt. Returns an
// empty title on any failure; callers treat that as "leave untitled".
func (g *Generator) Generate(ctx context.Context, prompt string) string {
	instruction := fmt.Sprintf(
		"Write a title of at most %d words for a conversation that starts with the message below. Reply with the title only, no quotes or punctuation.\n\n%s",
		maxWords, prompt,
	)

	resp, err := g.client.Chat(ctx, g.model, []llm.Message{{Role: "user", Content: instruction}}, nil)
	if err != nil {
		g.logger.Warn("title generation failed", "error", err)
		return ""
	}

	title := clean(resp.Message.Content)
	if title == "" {
		g.logger.Warn("title generation returned empty text", "model", g.model)
	}
	return title
}

// clean strips code fences, quotes, and surplus words from model output.
func clean(s string) string {
	s = strings.TrimSpace(s)
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	s = strings.TrimSpace(s)
	s = strings.Trim(s, "\"'“”")

	// Keep only the first line; some models append explanations.
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}

	words := strings.Fields(s)
	if len(words) > maxWords {
		words = words[:maxWords]
	}
	return strings.Join(words, " ")
}
