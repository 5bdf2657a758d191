package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestChatRequestWireFormat(t *testing.T) {
	var captured chatRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/chat" {
			t.Errorf("unexpected path: %s", r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&captured); err != nil {
			t.Errorf("decode request: %v", err)
		}
		json.NewEncoder(w).Encode(chatResponse{
			Model:           "test-model",
			Message:         Message{Role: "assistant", Content: "pong"},
			Done:            true,
			PromptEvalCount: 10,
			EvalCount:       5,
		})
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	resp, err := client.Chat(context.Background(), "test-model",
		[]Message{{Role: "user", Content: "ping"}}, nil)
	if err != nil {
		t.Fatalf("chat: %v", err)
	}

	if captured.Stream {
		t.Error("stream must be false")
	}
	if captured.Model != "test-model" {
		t.Errorf("model: got %q", captured.Model)
	}
	if resp.Message.Content != "pong" {
		t.Errorf("content: got %q", resp.Message.Content)
	}
	if resp.InputTokens != 10 || resp.OutputTokens != 5 {
		t.Errorf("tokens: got in=%d out=%d", resp.InputTokens, resp.OutputTokens)
	}
}

func TestChatUpstreamError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model not found", http.StatusNotFound)
	}))
	defer srv.Close()

	client := NewHTTPClient(srv.URL)
	if _, err := client.Chat(context.Background(), "missing", nil, nil); err == nil {
		t.Fatal("expected error for non-200 response")
	}
}

func TestParseTextToolCalls(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    string // expected tool name, "" for no call
	}{
		{
			name:    "raw JSON object",
			content: `{"name": "web_search", "arguments": {"query": "go release"}}`,
			want:    "web_search",
		},
		{
			name:    "tagged form",
			content: `<tool_call>{"name": "web_search", "arguments": {"query": "x"}}</tool_call>`,
			want:    "web_search",
		},
		{
			name:    "unterminated tag",
			content: `<tool_call>{"name": "web_search", "arguments": {}}`,
			want:    "web_search",
		},
		{
			name:    "plain prose",
			content: "The capital of France is Paris.",
			want:    "",
		},
		{
			name:    "JSON without a name",
			content: `{"arguments": {"query": "x"}}`,
			want:    "",
		},
		{
			name:    "empty",
			content: "",
			want:    "",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			calls := parseTextToolCalls(tc.content)
			if tc.want == "" {
				if len(calls) != 0 {
					t.Fatalf("got %d calls, want none", len(calls))
				}
				return
			}
			if len(calls) != 1 {
				t.Fatalf("got %d calls, want 1", len(calls))
			}
			if calls[0].Function.Name != tc.want {
				t.Errorf("name: got %q, want %q", calls[0].Function.Name, tc.want)
			}
		})
	}
}

// scriptedClient replays canned responses and records transcripts.
type scriptedClient struct {
	responses   []*ChatResponse
	transcripts [][]Message
}

func (c *scriptedClient) Chat(ctx context.Context, model string, messages []Message, tools []map[string]any) (*ChatResponse, error) {
	c.transcripts = append(c.transcripts, append([]Message(nil), messages...))
	resp := c.responses[0]
	if len(c.responses) > 1 {
		c.responses = c.responses[1:]
	}
	return resp, nil
}

func TestSessionTranscript(t *testing.T) {
	client := &scriptedClient{responses: []*ChatResponse{
		{Message: Message{Role: "assistant", Content: "first"}},
		{Message: Message{Role: "assistant", Content: "second"}},
	}}

	history := []Message{
		{Role: "user", Content: "earlier question"},
		{Role: "assistant", Content: "earlier answer"},
	}
	s := NewSession(client, "m", "be helpful", history, nil)

	if _, err := s.Send(context.Background(), "new question"); err != nil {
		t.Fatalf("send: %v", err)
	}

	// system + 2 history + user + assistant
	if s.Len() != 5 {
		t.Fatalf("transcript length: got %d, want 5", s.Len())
	}

	sent := client.transcripts[0]
	if sent[0].Role != "system" || sent[0].Content != "be helpful" {
		t.Errorf("system prompt not first: %+v", sent[0])
	}
	if sent[len(sent)-1].Content != "new question" {
		t.Errorf("live prompt not last: %+v", sent[len(sent)-1])
	}

	// A tool result lands on the same transcript.
	call := ToolCall{ID: "call-1"}
	if _, err := s.SendToolResult(context.Background(), call, "tool output"); err != nil {
		t.Fatalf("send tool result: %v", err)
	}
	sent = client.transcripts[1]
	toolMsg := sent[len(sent)-1]
	if toolMsg.Role != "tool" || toolMsg.ToolCallID != "call-1" {
		t.Errorf("tool message malformed: %+v", toolMsg)
	}
}

func TestToolCallNamed(t *testing.T) {
	var other, match ToolCall
	other.Function.Name = "calculator"
	match.Function.Name = "web_search"

	resp := &ChatResponse{Message: Message{ToolCalls: []ToolCall{other, match}}}

	if got := ToolCallNamed(resp, "web_search"); got == nil || got.Function.Name != "web_search" {
		t.Errorf("got %+v, want the web_search call", got)
	}
	if got := ToolCallNamed(resp, "missing"); got != nil {
		t.Errorf("got %+v, want nil for absent tool", got)
	}
	if got := ToolCallNamed(nil, "web_search"); got != nil {
		t.Errorf("got %+v, want nil for nil response", got)
	}
}
