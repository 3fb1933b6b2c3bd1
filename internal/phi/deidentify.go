// Package phi de-identifies free clinical text before it leaves the trusted
// boundary and re-identifies transformed output afterwards.
//
// Each detected span is replaced with an opaque placeholder of the form
// [CATEGORY_N], where N counts per category within one invocation. The
// placeholder-to-original mapping lives only in the returned token list; it
// is never persisted, logged, or serialized.
package phi

import (
	"fmt"
	"strings"
)

// Token records one redacted occurrence. Original is excluded from JSON so a
// token list can never leak PHI through serialization.
type Token struct {
	Placeholder string   `json:"placeholder"`
	Original    string   `json:"-"`
	Category    Category `json:"category"`
}

// Result is the outcome of one de-identification pass.
type Result struct {
	CleanedText string
	Tokens      []Token
}

// Session carries per-category placeholder counters across multiple
// de-identification passes. When several documents are concatenated into one
// transform call (handoff generation), a shared session keeps placeholders
// globally unique: the second name across all documents becomes [NAME_1],
// not a second [NAME_0].
//
// A Session is request-local state and is not safe for concurrent use; each
// inbound request gets its own.
type Session struct {
	counts map[Category]int
	tokens []Token
}

// NewSession returns a session with all category counters at zero.
func NewSession() *Session {
	return &Session{counts: make(map[Category]int)}
}

// Deidentify applies the full rule catalog to text in fixed order and
// returns the cleaned text. Detected spans are appended to the session's
// token list.
func (s *Session) Deidentify(text string) string {
	for _, rule := range defaultRules {
		text = s.apply(rule, text)
	}
	return text
}

// Tokens returns every token recorded by this session so far, in the order
// the spans were replaced.
func (s *Session) Tokens() []Token {
	return s.tokens
}

// apply replaces each non-overlapping match of a single rule with a fresh
// placeholder. For group rules only the submatch span is replaced; because a
// submatch always lies inside its match, spans stay ordered and disjoint.
func (s *Session) apply(rule Rule, text string) string {
	matches := rule.Pattern.FindAllStringSubmatchIndex(text, -1)
	if len(matches) == 0 {
		return text
	}

	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, m := range matches {
		start, end := m[0], m[1]
		if rule.group > 0 && len(m) > 2*rule.group+1 && m[2*rule.group] >= 0 {
			start, end = m[2*rule.group], m[2*rule.group+1]
		}

		n := s.counts[rule.Category]
		s.counts[rule.Category] = n + 1
		placeholder := fmt.Sprintf("[%s_%d]", rule.Category, n)

		b.WriteString(text[last:start])
		b.WriteString(placeholder)
		last = end

		s.tokens = append(s.tokens, Token{
			Placeholder: placeholder,
			Original:    text[start:end],
			Category:    rule.Category,
		})
	}
	b.WriteString(text[last:])
	return b.String()
}

// Deidentify runs the rule catalog over text with fresh counters. It is a
// pure function: two calls on the same input yield identical results, and
// counters never bleed between calls.
func Deidentify(text string) Result {
	s := NewSession()
	cleaned := s.Deidentify(text)
	return Result{CleanedText: cleaned, Tokens: s.tokens}
}

// CountByCategory summarizes a token list as category counts. This is the
// only shape of finding data that may reach logs, audit rows, or dashboards.
func CountByCategory(tokens []Token) map[Category]int {
	if len(tokens) == 0 {
		return nil
	}
	counts := make(map[Category]int)
	for _, t := range tokens {
		counts[t.Category]++
	}
	return counts
}
