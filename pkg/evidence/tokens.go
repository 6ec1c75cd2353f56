package evidence

import (
	"sort"
	"strings"
	"unicode"
)

// TopKeyTokens is how many key tokens feed the broad fingerprint.
const TopKeyTokens = 8

var stopwords = map[string]bool{
	"the": true, "a": true, "an": true, "and": true, "or": true, "of": true,
	"to": true, "in": true, "on": true, "for": true, "with": true, "is": true,
	"are": true, "was": true, "this": true, "that": true, "from": true,
	"by": true, "at": true, "as": true, "be": true, "it": true, "not": true,
}

// KeyTokens extracts the deterministic content token set from free text:
// lowercase alphanumeric runs, minus stopwords and tokens shorter than
// three characters, ranked by frequency then alphabetically.
func KeyTokens(texts ...string) []string {
	counts := map[string]int{}
	for _, text := range texts {
		for _, tok := range tokenize(text) {
			counts[tok]++
		}
	}
	tokens := make([]string, 0, len(counts))
	for tok := range counts {
		tokens = append(tokens, tok)
	}
	sort.Slice(tokens, func(i, j int) bool {
		if counts[tokens[i]] != counts[tokens[j]] {
			return counts[tokens[i]] > counts[tokens[j]]
		}
		return tokens[i] < tokens[j]
	})
	return tokens
}

// Top returns the first n tokens of a ranked token list.
func Top(tokens []string, n int) []string {
	if len(tokens) <= n {
		return tokens
	}
	return tokens[:n]
}

func tokenize(text string) []string {
	var out []string
	var b strings.Builder
	flush := func() {
		if b.Len() == 0 {
			return
		}
		tok := b.String()
		b.Reset()
		if len(tok) < 3 || stopwords[tok] {
			return
		}
		out = append(out, tok)
	}
	for _, r := range strings.ToLower(text) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			b.WriteRune(r)
			continue
		}
		flush()
	}
	flush()
	return out
}
