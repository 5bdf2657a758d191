package llm

import "context"

// Session manages one model conversation for the duration of a single
// request. It is seeded with the system prompt, prior history, and the
// turn's tool declarations; every Send appends to the same transcript
// so function-response turns land on the session that produced the
// function call.
type Session struct {
	client   Client
	model    string
	tools    []map[string]any
	messages []Message
}

// NewSession opens a chat session. history must already satisfy the
// alternation invariants (see the history package); the new turn's
// prompt is sent via Send, never included in history.
func NewSession(client Client, model, system string, history []Message, tools []map[string]any) *Session {
	msgs := make([]Message, 0, len(history)+2)
	if system != "" {
		msgs = append(msgs, Message{Role: "system", Content: system})
	}
	msgs = append(msgs, history...)
	return &Session{
		client:   client,
		model:    model,
		tools:    tools,
		messages: msgs,
	}
}

// Send appends a user turn and requests the next reply. The reply is
// appended to the session transcript before returning. images are
// optional base64-encoded inline attachments.
func (s *Session) Send(ctx context.Context, content string, images ...string) (*ChatResponse, error) {
	s.messages = append(s.messages, Message{Role: "user", Content: content, Images: images})
	return s.exchange(ctx)
}

// SendToolResult appends the function-response turn for call and
// requests the follow-up reply.
func (s *Session) SendToolResult(ctx context.Context, call ToolCall, result string) (*ChatResponse, error) {
	s.messages = append(s.messages, Message{
		Role:       "tool",
		Content:    result,
		ToolCallID: call.ID,
	})
	return s.exchange(ctx)
}

func (s *Session) exchange(ctx context.Context) (*ChatResponse, error) {
	resp, err := s.client.Chat(ctx, s.model, s.messages, s.tools)
	if err != nil {
		return nil, err
	}
	s.messages = append(s.messages, resp.Message)
	return resp, nil
}

// Len reports the current transcript length, including the system
// prompt. Used by tests and debug logging.
func (s *Session) Len() int { return len(s.messages) }
