package tokenizer

import (
	"strings"
	"testing"
	"unicode"

	"github.com/stretchr/testify/assert"
)

func TestTerms(t *testing.T) {
	cases := []struct {
		in   string
		want []string
	}{
		{"In the beginning God created", []string{"in", "the", "beginning", "god", "created"}},
		{"God's   love,  endures!", []string{"gods", "love", "endures"}},
		{"well-being\tand\nsnake_case 42", []string{"wellbeing", "and", "snake_case", "42"}},
		{"  ... !!! ", []string{}},
		{"", []string{}},
		{"Ἐν ἀρχῇ ἦν ὁ λόγος", []string{"ἐν", "ἀρχῇ", "ἦν", "ὁ", "λόγος"}},
	}
	for _, tc := range cases {
		got := Terms(tc.in)
		if len(tc.want) == 0 {
			assert.Empty(t, got, tc.in)
			continue
		}
		assert.Equal(t, tc.want, got, tc.in)
	}
}

func TestTokenizePositions(t *testing.T) {
	tokens := Tokenize("Jesus wept.")
	assert.Equal(t, []Token{{Term: "jesus", Position: 0}, {Term: "wept", Position: 1}}, tokens)
}

func TestUniqueTerms(t *testing.T) {
	assert.Equal(t, []string{"holy", "is", "the", "lord"}, UniqueTerms("Holy, holy, holy is the LORD"))
}

// Every token is lowercase, non-empty, and built only from letters, digits
// and underscores.
func TestTokenPurity(t *testing.T) {
	inputs := []string{
		"And God said, Let there be light: and there was light.",
		"¶ The LORD is my shepherd; I shall not want.",
		"(Selah) — “Behold!” ‘said’ he… 3:16 #hash @at $5.00",
		"MiXeD_CaSe non-breaking em-space ǅ",
	}
	for _, in := range inputs {
		for _, term := range Terms(in) {
			assert.NotEmpty(t, term)
			assert.Equal(t, strings.ToLower(term), term)
			for _, r := range term {
				assert.True(t, unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_', "rune %q in %q", r, term)
			}
		}
	}
}
