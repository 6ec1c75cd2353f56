// Package secrets holds the shared secret pattern set used by the
// noSecretsInDiff comparator, the evidence builder, and the patch validator
// pipeline. All patterns run on Go's RE2 engine, which evaluates in linear
// time, so attacker-crafted inputs cannot trigger pathological backtracking.
package secrets

import (
	"regexp"
	"strings"
)

// RedactionSentinel replaces any matched secret before content is persisted.
const RedactionSentinel = "[REDACTED]"

// Pattern is one named secret detector.
type Pattern struct {
	Name string
	Re   *regexp.Regexp
}

// Known token prefixes and structural markers. Quantifiers are bounded so a
// single long line cannot match past its real token.
var patterns = []Pattern{
	{"github-pat", regexp.MustCompile(`github_pat_[0-9A-Za-z_]{22,255}`)},
	{"github-token", regexp.MustCompile(`gh[pousr]_[0-9A-Za-z]{36,255}`)},
	{"aws-access-key", regexp.MustCompile(`\b(AKIA|ASIA)[0-9A-Z]{16}\b`)},
	{"slack-token", regexp.MustCompile(`xox[baprs]-[0-9A-Za-z-]{10,250}`)},
	{"stripe-key", regexp.MustCompile(`\b[sr]k_live_[0-9a-zA-Z]{20,99}\b`)},
	{"private-key-block", regexp.MustCompile(`-----BEGIN (?:RSA |EC |DSA |OPENSSH |PGP )?PRIVATE KEY(?: BLOCK)?-----`)},
	{"generic-api-key", regexp.MustCompile(`(?i)\b(?:api[_-]?key|secret[_-]?key|auth[_-]?token)\b\s*[:=]\s*['"]?[0-9A-Za-z_\-]{20,128}`)},
	{"long-base64", regexp.MustCompile(`\b[A-Za-z0-9+/]{64,512}={0,2}\b`)},
	{"jwt", regexp.MustCompile(`\beyJ[0-9A-Za-z_-]{10,512}\.[0-9A-Za-z_-]{10,512}\.[0-9A-Za-z_-]{10,512}\b`)},
	{"bearer-header", regexp.MustCompile(`(?i)\bauthorization:\s*bearer\s+[0-9A-Za-z._\-]{16,512}`)},
}

// Patterns returns the active pattern set. The slice is shared; callers must
// not mutate it.
func Patterns() []Pattern { return patterns }

// Match is one detected secret occurrence.
type Match struct {
	PatternName string
	Line        int // 1-based line number within the scanned text
	Excerpt     string
}

// Scan reports every secret occurrence in text. The excerpt is pre-redacted
// so findings can be surfaced without leaking the secret itself.
func Scan(text string) []Match {
	var out []Match
	for i, line := range strings.Split(text, "\n") {
		for _, p := range patterns {
			if loc := p.Re.FindStringIndex(line); loc != nil {
				out = append(out, Match{
					PatternName: p.Name,
					Line:        i + 1,
					Excerpt:     line[:loc[0]] + RedactionSentinel + line[loc[1]:],
				})
			}
		}
	}
	return out
}

// ScanLines reports which of the given lines contain a secret.
func ScanLines(lines []string) []Match {
	return Scan(strings.Join(lines, "\n"))
}

// ContainsSecret reports whether text matches any secret pattern.
func ContainsSecret(text string) bool {
	for _, p := range patterns {
		if p.Re.MatchString(text) {
			return true
		}
	}
	return false
}

// Redact replaces every secret occurrence in text with the redaction
// sentinel. Applied to all evidence content before persistence.
func Redact(text string) string {
	for _, p := range patterns {
		text = p.Re.ReplaceAllString(text, RedactionSentinel)
	}
	return text
}
