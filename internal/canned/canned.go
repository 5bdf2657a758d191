// Package canned short-circuits trivial prompts (greetings, thanks)
// with a static answer table, skipping retrieval and the model
// entirely. Matching is diacritic- and case-insensitive so "Olá!" and
// "ola" hit the same entry.
package canned

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks decomposes to NFD, removes combining marks, and
// recomposes, turning "olá" into "ola".
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Normalize folds a prompt for table lookup: diacritics stripped,
// lower-cased, whitespace collapsed, trailing punctuation dropped.
func Normalize(s string) string {
	folded, _, err := transform.String(stripMarks, s)
	if err != nil {
		folded = s
	}
	folded = strings.ToLower(folded)
	folded = strings.Join(strings.Fields(folded), " ")
	return strings.TrimRight(folded, "!?.,;: ")
}

// Matcher is a normalized-prompt lookup table.
type Matcher struct {
	answers map[string]string
}

// DefaultAnswers is the built-in table of trivial prompts.
func DefaultAnswers() map[string]string {
	const greeting = "Olá! Como posso ajudar você hoje?"
	const thanks = "De nada! Estou à disposição."
	return map[string]string{
		"oi":        greeting,
		"ola":       greeting,
		"bom dia":   greeting,
		"boa tarde": greeting,
		"boa noite": greeting,
		"hi":        greeting,
		"hello":     greeting,
		"hey":       greeting,
		"obrigado":  thanks,
		"obrigada":  thanks,
		"valeu":     thanks,
		"thanks":    thanks,
		"thank you": thanks,
	}
}

// NewMatcher builds a matcher. Keys are normalized at construction so
// config-supplied tables behave the same as the defaults. A nil table
// uses DefaultAnswers.
func NewMatcher(answers map[string]string) *Matcher {
	if answers == nil {
		answers = DefaultAnswers()
	}
	m := &Matcher{answers: make(map[string]string, len(answers))}
	for k, v := range answers {
		m.answers[Normalize(k)] = v
	}
	return m
}

// Match returns the canned answer for a prompt, if the table has one.
func (m *Matcher) Match(prompt string) (string, bool) {
	answer, ok := m.answers[Normalize(prompt)]
	return answer, ok
}
