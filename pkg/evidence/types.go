// Package evidence builds the EvidenceBundle attached to a drift candidate:
// a bounded source excerpt, deterministically extracted doc claims, an
// impact assessment, and three fingerprints of decreasing strictness. No
// step in here calls an LLM; everything is reproducible from the inputs.
package evidence

import (
	"time"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/drift"
)

// ExtractionMethod names how a doc claim was located.
type ExtractionMethod string

const (
	MethodTokenPattern ExtractionMethod = "token_pattern"
	MethodYAMLParse    ExtractionMethod = "yaml_parse"
	MethodCodeComment  ExtractionMethod = "code_comment"
)

// ClaimType classifies what a doc claim asserts.
type ClaimType string

const (
	ClaimInstructionBlock ClaimType = "instruction_block"
	ClaimProcessStep      ClaimType = "process_step"
	ClaimAPIEndpoint      ClaimType = "api_endpoint"
	ClaimOwnerBlock       ClaimType = "owner_block"
	ClaimToolReference    ClaimType = "tool_reference"
	ClaimCoverageGap      ClaimType = "coverage_gap"
)

// DocClaim is one extracted assertion from the target document.
type DocClaim struct {
	Type       ClaimType        `json:"type"`
	StartLine  int              `json:"start_line"`
	EndLine    int              `json:"end_line"`
	Text       string           `json:"text"`
	Confidence float64          `json:"confidence"`
	Method     ExtractionMethod `json:"extraction_method"`
}

// SourceEvidence is the bounded, redacted projection of the triggering
// signal.
type SourceEvidence struct {
	SourceType contracts.SourceType `json:"source_type"`
	Excerpt    string               `json:"excerpt"`
	Title      string               `json:"title,omitempty"`
	Repo       string               `json:"repo,omitempty"`
	PRNumber   int                  `json:"pr_number,omitempty"`
	Files      []string             `json:"files,omitempty"`
	Services   []string             `json:"services,omitempty"`
	Teams      []string             `json:"teams,omitempty"`
	URLs       []string             `json:"urls,omitempty"`
}

// Band is the impact severity band.
type Band string

const (
	BandLow      Band = "low"
	BandMedium   Band = "medium"
	BandHigh     Band = "high"
	BandCritical Band = "critical"
)

// BlastRadius names what a drift touches, split by kind. Systems covers
// repos, monitors, and anything else that is neither a service nor a team.
type BlastRadius struct {
	Services []string `json:"services"`
	Teams    []string `json:"teams"`
	Systems  []string `json:"systems"`
}

// Assessment is the scored impact of a drift.
type Assessment struct {
	Score           float64     `json:"score"`
	Band            Band        `json:"band"`
	FiredRules      []string    `json:"fired_rules"`
	ConsequenceText string      `json:"consequence_text,omitempty"`
	BlastRadius     BlastRadius `json:"blast_radius"`
}

// Fingerprints holds the three dedup hashes. Strict covers all normalized
// content, medium drops transient free text, broad keeps only routing
// fields plus the top key tokens.
type Fingerprints struct {
	Strict string `json:"strict"`
	Medium string `json:"medium"`
	Broad  string `json:"broad"`
}

// Bundle is the persisted evidence record. Immutable once written.
type Bundle struct {
	ID               string         `json:"id"`
	WorkspaceID      string         `json:"workspace_id"`
	DriftCandidateID string         `json:"drift_candidate_id"`
	DriftType        drift.Type     `json:"drift_type"`
	DocSystem        string         `json:"doc_system,omitempty"`
	DocID            string         `json:"doc_id,omitempty"`
	Source           SourceEvidence `json:"source"`
	Claims           []DocClaim     `json:"claims"`
	Impact           Assessment     `json:"impact"`
	KeyTokens        []string       `json:"key_tokens"`
	Fingerprints     Fingerprints   `json:"fingerprints"`
	CreatedAt        time.Time      `json:"created_at"`
}

// ReferencesFile reports whether any claim or the source evidence mentions
// path. Used by the auto-approve validator.
func (b *Bundle) ReferencesFile(path string) bool {
	for _, f := range b.Source.Files {
		if f == path {
			return true
		}
	}
	return false
}
