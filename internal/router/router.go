// Package router selects the model and tool-enablement for a turn from
// prompt heuristics. Two independent substring checks run over the
// normalized prompt: a "simple" list that downgrades to the fast model,
// and a "needs tools" list that attaches the search tool. A tool match
// always forces the capable model, whatever the first check said.
package router

import (
	"log/slog"
	"strings"

	"github.com/quillworks/quill-assistant/internal/canned"
)

// Decision records which model was selected and why.
type Decision struct {
	Model     string `json:"model"`
	UseTools  bool   `json:"use_tools"`
	Matched   string `json:"matched,omitempty"` // keyword that drove the decision
	Reasoning string `json:"reasoning"`
}

// Config holds the router's models and keyword lists.
type Config struct {
	Fast    string
	Capable string

	// SimpleKeywords select the fast model. Empty uses the defaults.
	SimpleKeywords []string

	// ToolKeywords attach the search tool (and force Capable).
	// Matching is diacritic-insensitive. Empty uses the defaults.
	ToolKeywords []string
}

// DefaultSimpleKeywords marks prompts cheap models handle well.
func DefaultSimpleKeywords() []string {
	return []string{
		"traduza", "translate",
		"resuma", "resumo", "summarize",
		"corrija", "revise",
		"liste", "list",
	}
}

// DefaultToolKeywords marks prompts that need fresh external data.
func DefaultToolKeywords() []string {
	return []string{
		"pesquise", "pesquisar", "busque", "search",
		"noticia", "noticias", "news",
		"hoje", "agora", "atual", "latest", "today",
		"cotacao", "preco", "price",
		"previsao", "weather",
	}
}

// Router applies the selection heuristics.
type Router struct {
	logger         *slog.Logger
	fast           string
	capable        string
	simpleKeywords []string
	toolKeywords   []string
}

// New creates a router. Keyword lists are normalized once here so
// per-request matching is a plain substring scan.
func New(logger *slog.Logger, cfg Config) *Router {
	simple := cfg.SimpleKeywords
	if len(simple) == 0 {
		simple = DefaultSimpleKeywords()
	}
	tool := cfg.ToolKeywords
	if len(tool) == 0 {
		tool = DefaultToolKeywords()
	}
	return &Router{
		logger:         logger,
		fast:           cfg.Fast,
		capable:        cfg.Capable,
		simpleKeywords: normalizeAll(simple),
		toolKeywords:   normalizeAll(tool),
	}
}

// Route decides model and tool-enablement for a prompt.
func (r *Router) Route(prompt string) Decision {
	norm := canned.Normalize(prompt)

	if kw := firstMatch(norm, r.toolKeywords); kw != "" {
		d := Decision{
			Model:     r.capable,
			UseTools:  true,
			Matched:   kw,
			Reasoning: "tool keyword matched; search attached and capable model forced",
		}
		r.log(d)
		return d
	}

	if kw := firstMatch(norm, r.simpleKeywords); kw != "" {
		d := Decision{
			Model:     r.fast,
			Matched:   kw,
			Reasoning: "simple keyword matched; fast model selected",
		}
		r.log(d)
		return d
	}

	d := Decision{
		Model:     r.capable,
		Reasoning: "no heuristic matched; capable model selected",
	}
	r.log(d)
	return d
}

func (r *Router) log(d Decision) {
	if r.logger == nil {
		return
	}
	r.logger.Debug("model routed",
		"model", d.Model,
		"use_tools", d.UseTools,
		"matched", d.Matched,
	)
}

func normalizeAll(keywords []string) []string {
	out := make([]string, len(keywords))
	for i, k := range keywords {
		out[i] = canned.Normalize(k)
	}
	return out
}

func firstMatch(norm string, keywords []string) string {
	for _, k := range keywords {
		if k != "" && strings.Contains(norm, k) {
			return k
		}
	}
	return ""
}
