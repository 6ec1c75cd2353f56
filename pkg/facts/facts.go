// Package facts resolves dot-addressed read-only projections over the PR
// context and prior gate results. Unknown facts are reported as such, never
// as errors; the condition evaluator maps them to its unknown value.
package facts

import (
	"strings"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// GateResult is what the resolver exposes for `gate.<name>.*` facts: the
// latest completed check with that name on the same head commit.
type GateResult struct {
	CheckID     string
	Status      string // pass, warn, block
	Conclusion  string
	CompletedAt string
	Findings    []string
}

// GateLookup resolves a prior gate by check name. A nil return means no
// completed check exists and the fact is unknown.
type GateLookup func(checkName string) *GateResult

// Resolver resolves fact names for one evaluation. It is cheap to construct
// and holds no mutable state.
type Resolver struct {
	pr    *prcontext.PRContext
	gates GateLookup
}

// NewResolver builds a resolver over pr. gates may be nil when cross-gate
// facts are not available.
func NewResolver(pr *prcontext.PRContext, gates GateLookup) *Resolver {
	return &Resolver{pr: pr, gates: gates}
}

// Resolve returns the fact value and whether it is known.
func (r *Resolver) Resolve(name string) (interface{}, bool) {
	switch {
	case strings.HasPrefix(name, "pr."):
		return r.resolvePR(strings.TrimPrefix(name, "pr."))
	case strings.HasPrefix(name, "diff."):
		return r.resolveDiff(strings.TrimPrefix(name, "diff."))
	case strings.HasPrefix(name, "gate."):
		return r.resolveGate(strings.TrimPrefix(name, "gate."))
	}
	return nil, false
}

func (r *Resolver) resolvePR(field string) (interface{}, bool) {
	switch field {
	case "author":
		return r.pr.Author, true
	case "title":
		return r.pr.Title, true
	case "body":
		return r.pr.Body, true
	case "number":
		return r.pr.PRNumber, true
	case "headBranch":
		return r.pr.HeadBranch, true
	case "baseBranch":
		return r.pr.BaseBranch, true
	case "headSha":
		return r.pr.HeadSHA, true
	case "labels":
		return r.pr.Labels, true
	case "additions":
		return r.pr.Additions, true
	case "deletions":
		return r.pr.Deletions, true
	case "eventType":
		return r.pr.EventType, true
	case "approvals.count":
		return r.pr.ApprovedCount(), true
	case "commits.count":
		return len(r.pr.Commits), true
	}
	return nil, false
}

func (r *Resolver) resolveDiff(field string) (interface{}, bool) {
	switch field {
	case "filesChanged.count":
		return len(r.pr.Files), true
	case "filesChanged.paths":
		return r.pr.ChangedPaths(), true
	case "linesChanged.count":
		return r.pr.Additions + r.pr.Deletions, true
	case "addedLines.count":
		return len(r.pr.AddedLines()), true
	}
	return nil, false
}

// resolveGate handles `gate.<checkName>.<field>`. Check names may contain
// dots, so the field is the last segment.
func (r *Resolver) resolveGate(rest string) (interface{}, bool) {
	if r.gates == nil {
		return nil, false
	}
	idx := strings.LastIndex(rest, ".")
	if idx <= 0 {
		return nil, false
	}
	checkName, field := rest[:idx], rest[idx+1:]
	result := r.gates(checkName)
	if result == nil {
		return nil, false
	}
	switch field {
	case "status":
		return result.Status, true
	case "conclusion":
		return result.Conclusion, true
	case "findings":
		return result.Findings, true
	case "checkId":
		return result.CheckID, true
	case "completedAt":
		return result.CompletedAt, true
	}
	return nil, false
}

// GateLookupFromPR adapts the PR context's own check-run list into a
// GateLookup, mapping host conclusions to gate status values: success→pass,
// neutral→warn, failure and action_required→block.
func GateLookupFromPR(pr *prcontext.PRContext) GateLookup {
	return func(checkName string) *GateResult {
		cr := pr.LatestCheckRun(checkName)
		if cr == nil {
			return nil
		}
		return &GateResult{
			CheckID:     cr.ID,
			Status:      StatusFromConclusion(cr.Conclusion),
			Conclusion:  cr.Conclusion,
			CompletedAt: cr.CompletedAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
		}
	}
}

// StatusFromConclusion maps a check conclusion to the gate status
// vocabulary.
func StatusFromConclusion(conclusion string) string {
	switch contracts.CheckConclusion(conclusion) {
	case contracts.ConclusionSuccess:
		return "pass"
	case contracts.ConclusionNeutral:
		return "warn"
	case contracts.ConclusionFailure, contracts.ConclusionActionRequired:
		return "block"
	}
	return "unknown"
}
