package evidence

import (
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vertaai/driftgate/pkg/drift"
)

const (
	// DefaultMaxClaims caps how many claims one bundle carries.
	DefaultMaxClaims = 20
	// DefaultClaimWindow is the ± line context captured around a match.
	DefaultClaimWindow = 3
)

// claimPattern pairs a line pattern with the claim it evidences. Patterns
// are anchored to single lines and bounded; extraction cost is linear in
// the document.
type claimPattern struct {
	typ        ClaimType
	re         *regexp.Regexp
	confidence float64
}

var claimPatterns = []claimPattern{
	{ClaimProcessStep, regexp.MustCompile(`^\s*(?:\d+[.)]|[-*]\s+\[?\s?\]?)\s+\S`), 0.85},
	{ClaimInstructionBlock, regexp.MustCompile(`(?i)\b(approval|approve[sd]?|sign[- ]?off|rollback|escalat\w+|gate)\b`), 0.75},
	{ClaimInstructionBlock, regexp.MustCompile(`(?i)\b(if|when|unless|otherwise|in case)\b.*\b(then|must|should|do)\b`), 0.65},
	{ClaimInstructionBlock, regexp.MustCompile(`(?i)\b(staging|production|canary|region|cluster|namespace)\b\s*[:=]`), 0.6},
	{ClaimOwnerBlock, regexp.MustCompile(`(?i)\b(owner|maintainer|on[- ]?call|contact|escalation channel|team)\s*[:=]`), 0.8},
	{ClaimToolReference, regexp.MustCompile("(?m)^\\s*(?:\\$\\s+|`)?(kubectl|terraform|helm|docker|make|go|npm|aws|gcloud)\\b"), 0.7},
	{ClaimAPIEndpoint, regexp.MustCompile(`\b(GET|POST|PUT|PATCH|DELETE)\s+/\S+`), 0.8},
	{ClaimCoverageGap, regexp.MustCompile(`(?i)\b(TODO|TBD|FIXME)\b|\bnot (yet )?documented\b`), 0.5},
}

// relevantClaims restricts extraction to the claim types that matter for a
// drift type. Empty means all. Patterns sharing a type act as fallbacks;
// only the first occurrence per type is captured.
var relevantClaims = map[drift.Type][]ClaimType{
	drift.TypeInstruction: {ClaimInstructionBlock, ClaimProcessStep, ClaimToolReference},
	drift.TypeProcess:     {ClaimProcessStep, ClaimInstructionBlock},
	drift.TypeOwnership:   {ClaimOwnerBlock},
	drift.TypeCoverage:    {ClaimCoverageGap, ClaimAPIEndpoint},
	drift.TypeEnvironment: {ClaimInstructionBlock, ClaimToolReference},
}

// ExtractClaims pulls claims from the target doc deterministically. Per
// claim type only the first occurrence is captured, with a ± window of
// surrounding lines. Claims come back sorted by confidence descending,
// capped at maxClaims.
func ExtractClaims(docSystem, content string, driftType drift.Type, window, maxClaims int) []DocClaim {
	if window <= 0 {
		window = DefaultClaimWindow
	}
	if maxClaims <= 0 {
		maxClaims = DefaultMaxClaims
	}
	lines := strings.Split(content, "\n")

	wanted := map[ClaimType]bool{}
	if types, ok := relevantClaims[driftType]; ok {
		for _, t := range types {
			wanted[t] = true
		}
	}

	var claims []DocClaim
	seen := map[ClaimType]bool{}
	for _, p := range claimPatterns {
		if len(wanted) > 0 && !wanted[p.typ] {
			continue
		}
		for i, line := range lines {
			if seen[p.typ] {
				break
			}
			if !p.re.MatchString(line) {
				continue
			}
			start, end := i-window, i+window
			if start < 0 {
				start = 0
			}
			if end >= len(lines) {
				end = len(lines) - 1
			}
			method := MethodTokenPattern
			if isCommentLine(line) {
				method = MethodCodeComment
			}
			claims = append(claims, DocClaim{
				Type:       p.typ,
				StartLine:  start + 1,
				EndLine:    end + 1,
				Text:       strings.Join(lines[start:end+1], "\n"),
				Confidence: p.confidence,
				Method:     method,
			})
			seen[p.typ] = true
		}
	}

	if yamlClaim := extractYAMLOwner(content); yamlClaim != nil {
		if len(wanted) == 0 || wanted[ClaimOwnerBlock] {
			claims = append(claims, *yamlClaim)
		}
	}

	sort.SliceStable(claims, func(i, j int) bool {
		return claims[i].Confidence > claims[j].Confidence
	})
	if len(claims) > maxClaims {
		claims = claims[:maxClaims]
	}
	return claims
}

func isCommentLine(line string) bool {
	t := strings.TrimSpace(line)
	return strings.HasPrefix(t, "#") || strings.HasPrefix(t, "//")
}

// extractYAMLOwner parses a YAML frontmatter block and surfaces its owner
// field as a high-confidence structured claim.
func extractYAMLOwner(content string) *DocClaim {
	if !strings.HasPrefix(content, "---\n") {
		return nil
	}
	rest := content[4:]
	end := strings.Index(rest, "\n---")
	if end < 0 {
		return nil
	}
	block := rest[:end]
	var meta struct {
		Owner string `yaml:"owner"`
		Team  string `yaml:"team"`
	}
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil
	}
	owner := meta.Owner
	if owner == "" {
		owner = meta.Team
	}
	if owner == "" {
		return nil
	}
	return &DocClaim{
		Type:       ClaimOwnerBlock,
		StartLine:  1,
		EndLine:    strings.Count(content[:end+4], "\n") + 1,
		Text:       "owner: " + owner,
		Confidence: 0.95,
		Method:     MethodYAMLParse,
	}
}
