// Package tokenizer provides the single text tokenisation rule shared by the
// index builder and the query engine. It lower-cases input, strips every
// character that is not a letter, digit, underscore or whitespace, and splits
// on runs of whitespace. There is no stemming and no stop-word removal: a
// query must tokenise exactly as the verse text it is matched against.
package tokenizer

import (
	"strings"
	"unicode"
)

// Token represents a single normalised term and its position in the
// original text.
type Token struct {
	Term     string
	Position int
}

// Tokenize breaks text into lowercased, punctuation-stripped Tokens.
func Tokenize(text string) []Token {
	words := strings.Fields(normalize(text))
	tokens := make([]Token, 0, len(words))
	for pos, word := range words {
		tokens = append(tokens, Token{
			Term:     word,
			Position: pos,
		})
	}
	return tokens
}

// Terms returns the token strings of text in order, duplicates included.
func Terms(text string) []string {
	return strings.Fields(normalize(text))
}

// UniqueTerms returns the distinct token strings of text in first-seen order.
func UniqueTerms(text string) []string {
	terms := Terms(text)
	seen := make(map[string]struct{}, len(terms))
	out := terms[:0]
	for _, t := range terms {
		if _, ok := seen[t]; ok {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// normalize lower-cases text and drops punctuation. Punctuation is removed
// rather than replaced, so "God's" becomes "gods" and "well-being" becomes
// "wellbeing".
func normalize(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case IsTokenRune(r):
			b.WriteRune(unicode.ToLower(r))
		case unicode.IsSpace(r):
			b.WriteRune(' ')
		}
	}
	return b.String()
}

// IsTokenRune reports whether r may appear inside a token.
func IsTokenRune(r rune) bool {
	return unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_'
}
