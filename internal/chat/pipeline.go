// Package chat implements the request pipeline that turns one user
// prompt into a persisted, rate-limited, context-grounded, optionally
// tool-augmented model answer.
//
// Control flow for one request: quota check → canned-response short
// circuit → (retrieval → history build → chat turn) → persistence.
// Every collaborator is an explicit dependency so tests can substitute
// fakes for the model, the search provider, and the store.
package chat

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/quillworks/quill-assistant/internal/apperr"
	"github.com/quillworks/quill-assistant/internal/canned"
	"github.com/quillworks/quill-assistant/internal/events"
	"github.com/quillworks/quill-assistant/internal/history"
	"github.com/quillworks/quill-assistant/internal/llm"
	"github.com/quillworks/quill-assistant/internal/quota"
	"github.com/quillworks/quill-assistant/internal/router"
	"github.com/quillworks/quill-assistant/internal/search"
	"github.com/quillworks/quill-assistant/internal/store"
)

// MaxAttachmentBytes is the decoded-size ceiling for inline
// attachments. The estimate from base64 length is checked before
// retrieval or any model call.
const MaxAttachmentBytes = 20 << 20

// nudgeInstruction is the single forced retry issued when a
// tool-enabled turn produced no function call.
const nudgeInstruction = "Use the " + search.ToolName +
	" tool to answer the previous question. Call the tool now instead of answering from memory."

// Attachment is an inline file sent with a prompt.
type Attachment struct {
	MimeType string
	Base64   string
}

// Request is one user turn.
type Request struct {
	Prompt         string
	ConversationID string
	Attachment     *Attachment
}

// Result is the completed turn.
type Result struct {
	Response string
	// Title is set only when this turn named the conversation.
	Title string
}

// Store is the persistence surface the pipeline needs.
type Store interface {
	User(ctx context.Context, id string) (*store.User, error)
	Messages(ctx context.Context, conversationID string) ([]store.Message, error)
	CountUserMessages(ctx context.Context, conversationID string) (int, error)
	FinalizeTurn(ctx context.Context, p store.FinalizeParams) error
}

// Retriever supplies grounding context for a prompt.
type Retriever interface {
	Retrieve(ctx context.Context, prompt string) string
}

// Searcher is the web-search collaborator.
type Searcher interface {
	Search(ctx context.Context, query string, opts search.Options) ([]search.Result, error)
	Primary() string
	Configured() bool
}

// TitleGenerator names a conversation from its opening prompt.
type TitleGenerator interface {
	Generate(ctx context.Context, prompt string) string
}

// Pipeline coordinates one request end to end.
type Pipeline struct {
	store     Store
	matcher   *canned.Matcher
	retriever Retriever
	router    *router.Router
	llm       llm.Client
	searcher  Searcher
	titles    TitleGenerator
	bus       *events.Bus
	logger    *slog.Logger
	limits    quota.Limits
	persona   string

	convLocks keyedMutex
}

// Config wires a Pipeline. Bus may be nil (eventing disabled);
// Searcher may be nil (no search provider configured).
type Config struct {
	Store     Store
	Matcher   *canned.Matcher
	Retriever Retriever
	Router    *router.Router
	LLM       llm.Client
	Searcher  Searcher
	Titles    TitleGenerator
	Bus       *events.Bus
	Logger    *slog.Logger
	Limits    quota.Limits
	Persona   string
}

// New creates a pipeline.
func New(cfg Config) *Pipeline {
	return &Pipeline{
		store:     cfg.Store,
		matcher:   cfg.Matcher,
		retriever: cfg.Retriever,
		router:    cfg.Router,
		llm:       cfg.LLM,
		searcher:  cfg.Searcher,
		titles:    cfg.Titles,
		bus:       cfg.Bus,
		logger:    cfg.Logger.With("component", "pipeline"),
		limits:    cfg.Limits,
		persona:   cfg.Persona,
	}
}

// Respond executes one turn for the authenticated user.
func (p *Pipeline) Respond(ctx context.Context, userID string, req Request) (*Result, error) {
	requestID := newRequestID()
	now := time.Now()

	if strings.TrimSpace(req.Prompt) == "" {
		return nil, apperr.New(apperr.KindValidation, "prompt is required")
	}
	if req.ConversationID == "" {
		return nil, apperr.New(apperr.KindValidation, "conversationId is required")
	}

	// Attachment ceiling is enforced before retrieval, history
	// building, or any model call.
	if req.Attachment != nil {
		estimated := (int64(len(req.Attachment.Base64))*3 + 3) / 4
		if estimated > MaxAttachmentBytes {
			return nil, apperr.New(apperr.KindTooLarge, "attachment exceeds the 20 MB limit")
		}
	}

	user, err := p.store.User(ctx, userID)
	if errors.Is(err, store.ErrNotFound) {
		return nil, apperr.New(apperr.KindNotFound, "profile not found")
	}
	if err != nil {
		return nil, fmt.Errorf("load user: %w", err)
	}

	// Pure decision; the counter only moves in the finalizer.
	if err := quota.Check(user, now, p.limits); err != nil {
		return nil, err
	}

	p.bus.Publish(events.Event{Kind: events.KindRequestStart, Data: map[string]any{
		"request_id":      requestID,
		"conversation_id": req.ConversationID,
		"user_id":         user.ID,
	}})

	// Writes to one conversation are serialized so concurrent turns
	// cannot interleave a history read with a message append.
	unlock := p.convLocks.Lock(req.ConversationID)
	defer unlock()

	if answer, ok := p.matcher.Match(req.Prompt); ok {
		return p.finishCanned(ctx, requestID, user, req, answer, now)
	}

	answer, decision, err := p.chatTurn(ctx, requestID, user, req)
	if err != nil {
		return nil, err
	}

	if strings.TrimSpace(answer) == "" {
		return nil, apperr.New(apperr.KindUpstreamEmpty, "model returned an empty answer")
	}

	title, err := p.finalize(ctx, user, req, answer, now, true)
	if err != nil {
		return nil, err
	}

	p.bus.Publish(events.Event{Kind: events.KindTurnComplete, Data: map[string]any{
		"request_id":      requestID,
		"conversation_id": req.ConversationID,
		"user_id":         user.ID,
		"model":           decision.Model,
		"title":           title,
		"elapsed_ms":      time.Since(now).Milliseconds(),
	}})

	return &Result{Response: answer, Title: title}, nil
}

// chatTurn runs the bounded tool-call protocol and returns the answer
// text. At most one search execution happens per branch and at most
// one forced nudge is ever issued per request.
func (p *Pipeline) chatTurn(ctx context.Context, requestID string, user *store.User, req Request) (string, router.Decision, error) {
	contextText := p.retriever.Retrieve(ctx, req.Prompt)
	decision := p.router.Route(req.Prompt)

	useTools := decision.UseTools && p.searcher != nil && p.searcher.Configured()

	hist, err := history.Build(ctx, p.store, req.ConversationID)
	if err != nil {
		return "", decision, err
	}

	system := p.persona
	if contextText != "" {
		system += "\n\nReference material:\n" + contextText
	}

	var tools []map[string]any
	if useTools {
		tools = []map[string]any{search.ToolDeclaration()}
	}

	session := llm.NewSession(p.llm, decision.Model, system, hist, tools)

	content, images := p.turnContent(req)

	p.publishLLMCall(requestID, decision.Model, "primary")
	resp, err := session.Send(ctx, content, images...)
	if err != nil {
		return "", decision, fmt.Errorf("primary model call: %w", err)
	}
	answer := resp.Message.Content

	if call := llm.ToolCallNamed(resp, search.ToolName); call != nil && useTools {
		answer, err = p.runTool(ctx, requestID, decision.Model, session, call)
		if err != nil {
			return "", decision, err
		}
		return answer, decision, nil
	}

	// Tool-enabled turn with no spontaneous call: force exactly one
	// nudge, unless the answer already cites the search provider.
	if useTools && !mentionsProvider(answer, p.searcher.Primary()) {
		p.publishLLMCall(requestID, decision.Model, "nudge")
		nudgeResp, err := session.Send(ctx, nudgeInstruction)
		if err != nil {
			return "", decision, fmt.Errorf("nudge model call: %w", err)
		}

		if call := llm.ToolCallNamed(nudgeResp, search.ToolName); call != nil {
			answer, err = p.runTool(ctx, requestID, decision.Model, session, call)
			if err != nil {
				return "", decision, err
			}
		} else {
			// The nudge reply's own text becomes the answer. This can
			// leak the instruction's framing; kept as-is pending a
			// product decision.
			answer = nudgeResp.Message.Content
		}
	}

	return answer, decision, nil
}

// runTool executes one search call and sends its findings back as the
// function-response turn. The follow-up reply's text is the answer.
func (p *Pipeline) runTool(ctx context.Context, requestID, model string, session *llm.Session, call *llm.ToolCall) (string, error) {
	query, opts, ok := search.ParseToolArgs(call.Function.Arguments)
	if !ok {
		return "", fmt.Errorf("web_search call missing query argument")
	}

	p.bus.Publish(events.Event{Kind: events.KindToolCall, Data: map[string]any{
		"request_id": requestID,
		"query":      query,
	}})

	results, err := p.searcher.Search(ctx, query, opts)
	p.bus.Publish(events.Event{Kind: events.KindToolDone, Data: map[string]any{
		"request_id": requestID,
		"ok":         err == nil,
	}})
	if err != nil {
		return "", fmt.Errorf("search tool: %w", err)
	}

	p.publishLLMCall(requestID, model, "followup")
	resp, err := session.SendToolResult(ctx, *call, search.FormatResults(results))
	if err != nil {
		return "", fmt.Errorf("follow-up model call: %w", err)
	}
	return resp.Message.Content, nil
}

// finishCanned persists a canned exchange. No model or embedding calls
// happen, no title is generated, and the quota counter is not advanced.
// The exchange still lands in the conversation, so turn_complete fires
// for it like any other turn, flagged canned.
func (p *Pipeline) finishCanned(ctx context.Context, requestID string, user *store.User, req Request, answer string, now time.Time) (*Result, error) {
	p.bus.Publish(events.Event{Kind: events.KindCannedHit, Data: map[string]any{
		"request_id": requestID,
	}})

	if _, err := p.finalize(ctx, user, req, answer, now, false); err != nil {
		return nil, err
	}

	p.bus.Publish(events.Event{Kind: events.KindTurnComplete, Data: map[string]any{
		"request_id":      requestID,
		"conversation_id": req.ConversationID,
		"user_id":         user.ID,
		"canned":          true,
		"elapsed_ms":      time.Since(now).Milliseconds(),
	}})

	return &Result{Response: answer}, nil
}

// finalize commits the exchange. Title generation happens iff the
// conversation has no prior user messages; its failure degrades to an
// untitled conversation. The store call is one transaction including
// the atomic quota increment.
func (p *Pipeline) finalize(ctx context.Context, user *store.User, req Request, answer string, now time.Time, countQuota bool) (string, error) {
	title := ""
	if countQuota {
		priorUserMessages, err := p.store.CountUserMessages(ctx, req.ConversationID)
		if err != nil {
			return "", fmt.Errorf("count user messages: %w", err)
		}
		if priorUserMessages == 0 {
			title = p.titles.Generate(ctx, req.Prompt)
		}
	}

	err := p.store.FinalizeTurn(ctx, store.FinalizeParams{
		UserID:            user.ID,
		ConversationID:    req.ConversationID,
		Title:             title,
		Prompt:            req.Prompt,
		Answer:            answer,
		Now:               now,
		QuotaLimit:        p.limits.ForRole(user.Role),
		CountAgainstQuota: countQuota,
	})
	if errors.Is(err, store.ErrQuotaExhausted) {
		return "", apperr.New(apperr.KindQuota, "daily message limit reached")
	}
	if err != nil {
		return "", fmt.Errorf("finalize turn: %w", err)
	}
	return title, nil
}

// turnContent builds the primary turn's content and inline images.
// Image attachments ride the wire natively; other mime types are
// surfaced to the model as a note since the chat endpoint cannot
// carry them.
func (p *Pipeline) turnContent(req Request) (string, []string) {
	if req.Attachment == nil {
		return req.Prompt, nil
	}
	if strings.HasPrefix(req.Attachment.MimeType, "image/") {
		return req.Prompt, []string{req.Attachment.Base64}
	}
	return fmt.Sprintf("%s\n\n[attachment of type %s omitted]", req.Prompt, req.Attachment.MimeType), nil
}

func (p *Pipeline) publishLLMCall(requestID, model, stage string) {
	p.bus.Publish(events.Event{Kind: events.KindLLMCall, Data: map[string]any{
		"request_id": requestID,
		"model":      model,
		"stage":      stage,
	}})
}

// mentionsProvider reports whether the answer already cites the search
// provider, in which case the nudge is skipped.
func mentionsProvider(answer, provider string) bool {
	if provider == "" {
		return false
	}
	return strings.Contains(strings.ToLower(answer), strings.ToLower(provider))
}

func newRequestID() string {
	if id, err := uuid.NewV7(); err == nil {
		return id.String()
	}
	return time.Now().UTC().Format("20060102-150405.000000000")
}
