// Package patchval runs the ordered validator pipeline over a generated
// patch proposal before it is offered to a human. Validators run in a
// fixed order and the pipeline short-circuits on the first hard failure;
// warnings accumulate without stopping it.
package patchval

import (
	"strings"
	"time"

	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
)

// Severity of one validator issue.
type Severity string

const (
	SeverityError Severity = "error"
	SeverityWarn  Severity = "warn"
)

// Issue is one validator finding.
type Issue struct {
	Validator string   `json:"validator"`
	Severity  Severity `json:"severity"`
	Message   string   `json:"message"`
}

// Result aggregates pipeline output. Valid is true when no errors fired.
// NeedsHuman is set when a validator downgraded a hard requirement and
// wants a person in the loop regardless of confidence.
type Result struct {
	Issues     []Issue `json:"issues"`
	Valid      bool    `json:"valid"`
	NeedsHuman bool    `json:"needs_human"`
}

// Errors returns only the hard failures.
func (r *Result) Errors() []Issue {
	var out []Issue
	for _, is := range r.Issues {
		if is.Severity == SeverityError {
			out = append(out, is)
		}
	}
	return out
}

// DocInfo describes the target document at validation time.
type DocInfo struct {
	Primary          bool
	Revision         string
	UpdatedAt        time.Time
	HasManagedRegion bool
	Content          string
}

// Config tunes validator thresholds.
type Config struct {
	MaxChangedLines      int
	MinConfidence        float64
	AutoApproveThreshold float64
	MaxDocAgeDays        int
}

// DefaultConfig is the shipped threshold set.
func DefaultConfig() Config {
	return Config{
		MaxChangedLines:      50,
		MinConfidence:        0.40,
		AutoApproveThreshold: 0.85,
		MaxDocAgeDays:        365,
	}
}

// Input carries everything the validators inspect. Evidence may be nil
// when no bundle was built.
type Input struct {
	Proposal  *drift.PatchProposal
	DriftType drift.Type
	Evidence  *evidence.Bundle
	Doc       DocInfo
	Config    Config
	Now       time.Time

	addedLines   []string
	removedLines []string
}

// Validator is one pipeline stage.
type Validator interface {
	Name() string
	Check(in *Input) []Issue
}

// Pipeline is the ordered validator chain.
type Pipeline struct {
	validators []Validator
}

// New builds the default 13-stage pipeline in contract order.
func New() *Pipeline {
	return &Pipeline{validators: []Validator{
		maxChangedLines{},
		noSecretsIntroduced{},
		patchStyleMatchesDriftType{},
		evidenceForRiskyChanges{},
		confidenceThreshold{},
		noBreakingChanges{},
		noNewCommandsUnlessEvidenced{},
		ownerBlockScope{},
		managedRegionOnly{},
		primaryDocOnly{},
		docFreshness{},
		docRevisionUnchanged{},
		hardEvidenceForAutoApprove{},
	}}
}

// Run executes the chain. The first error stops further validators; all
// issues collected so far are returned.
func (p *Pipeline) Run(in *Input) *Result {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	in.addedLines, in.removedLines = splitDiff(in.Proposal.UnifiedDiff)

	res := &Result{}
	for _, v := range p.validators {
		issues := v.Check(in)
		res.Issues = append(res.Issues, issues...)
		hard := false
		for _, is := range issues {
			if is.Severity == SeverityError {
				hard = true
			}
		}
		if hard {
			break
		}
	}
	res.Valid = len(res.Errors()) == 0
	for _, is := range res.Issues {
		if is.Validator == "HardEvidenceForAutoApprove" && is.Severity == SeverityWarn {
			res.NeedsHuman = true
		}
	}
	return res
}

// splitDiff separates added and removed content lines of a unified diff,
// skipping the file headers.
func splitDiff(diff string) (added, removed []string) {
	for _, line := range strings.Split(diff, "\n") {
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
		case strings.HasPrefix(line, "+"):
			added = append(added, line[1:])
		case strings.HasPrefix(line, "-"):
			removed = append(removed, line[1:])
		}
	}
	return added, removed
}
