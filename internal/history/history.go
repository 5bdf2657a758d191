// Package history reconstructs the conversation window fed to the
// model. The window only ever contains fully-completed exchanges: it
// starts with a user turn and never ends on a model turn, because the
// live prompt is supplied to the session out-of-band.
package history

import (
	"context"
	"fmt"

	"github.com/quillworks/quill-assistant/internal/llm"
	"github.com/quillworks/quill-assistant/internal/store"
)

// Source is the subset of the store the builder reads.
type Source interface {
	Messages(ctx context.Context, conversationID string) ([]store.Message, error)
}

// Build loads a conversation's persisted messages in creation order and
// trims them to a valid alternating window:
//
//  1. leading non-user elements are dropped (corrupted or partial data)
//  2. an odd-length window ending on a model turn loses that turn
//  3. a window still ending on a model turn loses it again
//
// Model turns map to the wire role "assistant".
func Build(ctx context.Context, src Source, conversationID string) ([]llm.Message, error) {
	stored, err := src.Messages(ctx, conversationID)
	if err != nil {
		return nil, fmt.Errorf("load history: %w", err)
	}
	return Trim(stored), nil
}

// Trim applies the window rules to already-loaded messages.
func Trim(stored []store.Message) []llm.Message {
	for len(stored) > 0 && stored[0].Role != store.MessageRoleUser {
		stored = stored[1:]
	}

	if len(stored)%2 == 1 && endsOnModel(stored) {
		stored = stored[:len(stored)-1]
	}
	if endsOnModel(stored) {
		stored = stored[:len(stored)-1]
	}

	out := make([]llm.Message, 0, len(stored))
	for _, m := range stored {
		role := "user"
		if m.Role == store.MessageRoleModel {
			role = "assistant"
		}
		out = append(out, llm.Message{Role: role, Content: m.Content})
	}
	return out
}

func endsOnModel(msgs []store.Message) bool {
	return len(msgs) > 0 && msgs[len(msgs)-1].Role == store.MessageRoleModel
}
