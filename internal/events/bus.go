// Package events provides a publish/subscribe event bus for pipeline
// observability. Events flow from the chat pipeline to subscribers (the
// WebSocket handler and the MQTT notifier). The bus is nil-safe:
// calling Publish on a nil *Bus is a no-op, so the pipeline does not
// need guard checks when eventing is disabled.
package events

import (
	"sync"
	"time"
)

// Kind constants describe pipeline lifecycle events.
const (
	// KindRequestStart signals the beginning of a chat request.
	// Data: request_id, conversation_id, user_id.
	KindRequestStart = "request_start"
	// KindCannedHit signals a canned-response short circuit.
	// Data: request_id.
	KindCannedHit = "canned_hit"
	// KindLLMCall signals a model call.
	// Data: request_id, model, stage (primary, nudge, followup, title).
	KindLLMCall = "llm_call"
	// KindToolCall signals the start of a search tool execution.
	// Data: request_id, query.
	KindToolCall = "tool_call"
	// KindToolDone signals completion of a search tool execution.
	// Data: request_id, ok.
	KindToolDone = "tool_done"
	// KindTurnComplete signals a fully persisted exchange, canned
	// turns included. Data: request_id, conversation_id, user_id,
	// elapsed_ms, plus model and title for model-generated turns or
	// canned=true for canned ones.
	KindTurnComplete = "turn_complete"
)

// Event is one pipeline occurrence.
type Event struct {
	// Kind is one of the Kind constants.
	Kind string `json:"kind"`

	// Timestamp is when the event was published.
	Timestamp time.Time `json:"timestamp"`

	// Data holds event-specific key/value pairs.
	Data map[string]any `json:"data,omitempty"`
}

// Bus is a non-blocking broadcast event bus. Subscribers receive events
// on buffered channels; slow subscribers miss events rather than
// blocking publishers.
type Bus struct {
	mu   sync.RWMutex
	subs map[chan Event]struct{}
	// recvToSend maps the receive-only channel returned by Subscribe
	// back to the bidirectional channel stored in subs, so Unsubscribe
	// can accept the caller's view of the channel.
	recvToSend map[<-chan Event]chan Event
}

// New creates a new event bus ready for use.
func New() *Bus {
	return &Bus{
		subs:       make(map[chan Event]struct{}),
		recvToSend: make(map[<-chan Event]chan Event),
	}
}

// Publish sends an event to all subscribers. Non-blocking: if a
// subscriber's channel is full, the event is dropped for that
// subscriber. Safe to call on a nil receiver (no-op).
func (b *Bus) Publish(e Event) {
	if b == nil {
		return
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Subscriber is full; drop rather than block.
		}
	}
}

// Subscribe returns a channel that receives published events. The
// caller must eventually call Unsubscribe to avoid resource leaks.
func (b *Bus) Subscribe(bufSize int) <-chan Event {
	ch := make(chan Event, bufSize)
	b.mu.Lock()
	defer b.mu.Unlock()
	b.subs[ch] = struct{}{}
	b.recvToSend[ch] = ch
	return ch
}

// Unsubscribe removes a subscription and closes the channel. Safe to
// call with a channel that is already unsubscribed (no-op).
func (b *Bus) Unsubscribe(ch <-chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	sendCh, ok := b.recvToSend[ch]
	if !ok {
		return
	}
	delete(b.subs, sendCh)
	delete(b.recvToSend, ch)
	close(sendCh)
}

// SubscriberCount returns the number of active subscribers.
func (b *Bus) SubscriberCount() int {
	if b == nil {
		return 0
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
