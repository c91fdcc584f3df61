package benchmark

import (
	"strings"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/scripture-search/internal/indexer/tokenizer"
)

var sampleTexts = map[string]string{
	"short": "Jesus wept.",
	"medium": `And God said, Let us make man in our image, after our likeness: and let
        them have dominion over the fish of the sea, and over the fowl of the air,
        and over the cattle, and over all the earth, and over every creeping thing
        that creepeth upon the earth.`,
	"long": strings.Repeat(`For God so loved the world, that he gave his only begotten Son, that
        whosoever believeth in him should not perish, but have everlasting life. The
        LORD's people shall dwell in safety; the Spirit of the LORD is upon them. `, 20),
}

func BenchmarkTokenize(b *testing.B) {
	for name, text := range sampleTexts {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			b.SetBytes(int64(len(text)))
			for b.Loop() {
				_ = tokenizer.Tokenize(text)
			}
		})
	}
}

func BenchmarkTokenizeParallel(b *testing.B) {
	text := sampleTexts["medium"]
	b.ReportAllocs()
	b.SetBytes(int64(len(text)))
	b.RunParallel(func(pb *testing.PB) {
		for pb.Next() {
			_ = tokenizer.Tokenize(text)
		}
	})
}

// BenchmarkUniqueTerms measures query-side normalization.
func BenchmarkUniqueTerms(b *testing.B) {
	queries := map[string]string{
		"single":    "love",
		"phrase":    "in the beginning",
		"punctuate": "LORD's people, Israel!",
	}
	for name, q := range queries {
		b.Run(name, func(b *testing.B) {
			b.ReportAllocs()
			for b.Loop() {
				_ = tokenizer.UniqueTerms(q)
			}
		})
	}
}
