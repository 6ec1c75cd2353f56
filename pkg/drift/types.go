// Package drift implements the bounded state machine driving one
// DriftCandidate from signal ingestion to writeback, including the failure
// taxonomy, retry policy, deduplication contract, and the process-drift
// baseline check.
package drift

import (
	"time"
)

// Type classifies what kind of documentation drift a candidate represents.
type Type string

const (
	TypeInstruction Type = "instruction"
	TypeProcess     Type = "process"
	TypeOwnership   Type = "ownership"
	TypeCoverage    Type = "coverage"
	TypeEnvironment Type = "environment_tooling"
)

// KnownTypes enumerates the drift type vocabulary.
var KnownTypes = map[Type]bool{
	TypeInstruction: true, TypeProcess: true, TypeOwnership: true,
	TypeCoverage: true, TypeEnvironment: true,
}

// State is one node of the drift lifecycle.
type State string

const (
	StateIngested            State = "INGESTED"
	StateEligibilityChecked  State = "ELIGIBILITY_CHECKED"
	StateSignalsCorrelated   State = "SIGNALS_CORRELATED"
	StateDriftClassified     State = "DRIFT_CLASSIFIED"
	StateDocsResolved        State = "DOCS_RESOLVED"
	StateDocsFetched         State = "DOCS_FETCHED"
	StateDocContextExtracted State = "DOC_CONTEXT_EXTRACTED"
	StateBaselineChecked     State = "BASELINE_CHECKED"
	StatePatchPlanned        State = "PATCH_PLANNED"
	StatePatchGenerated      State = "PATCH_GENERATED"
	StatePatchValidated      State = "PATCH_VALIDATED"
	StateOwnerResolved       State = "OWNER_RESOLVED"
	StateSlackSent           State = "SLACK_SENT"
	StateAwaitingHuman       State = "AWAITING_HUMAN"
	StateApproved            State = "APPROVED"
	StateEditRequested       State = "EDIT_REQUESTED"
	StateRejected            State = "REJECTED"
	StateSnoozed             State = "SNOOZED"
	StateWritebackValidated  State = "WRITEBACK_VALIDATED"
	StateWrittenBack         State = "WRITTEN_BACK"
	StateCompleted           State = "COMPLETED"
	StateFailed              State = "FAILED"
	StateFailedNeedsMapping  State = "FAILED_NEEDS_MAPPING"
)

// IsTerminal reports whether no further transitions happen from s.
func (s State) IsTerminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateFailedNeedsMapping, StateRejected:
		return true
	}
	return false
}

// IsHumanGated reports whether the driver must stop and wait for an
// external callback in s.
func (s State) IsHumanGated() bool {
	return s == StateAwaitingHuman || s == StateSnoozed
}

// FailureCode partitions step failures into retry classes.
type FailureCode string

const (
	// Retryable.
	CodeTimeout            FailureCode = "TIMEOUT"
	CodeRateLimited        FailureCode = "RATE_LIMITED"
	CodeServiceUnavailable FailureCode = "SERVICE_UNAVAILABLE"

	// Configuration: terminal FAILED_NEEDS_MAPPING with actionable reason.
	CodeNeedsDocMapping     FailureCode = "NEEDS_DOC_MAPPING"
	CodeNeedsOwnerMapping   FailureCode = "NEEDS_OWNER_MAPPING"
	CodeNoManagedRegion     FailureCode = "NO_MANAGED_REGION"
	CodeMultiplePrimaryDocs FailureCode = "MULTIPLE_PRIMARY_DOCS"

	// Safety: terminal FAILED.
	CodePatchValidationFailed FailureCode = "PATCH_VALIDATION_FAILED"
	CodeUnsafePatch           FailureCode = "UNSAFE_PATCH"
	CodeSecretsDetected       FailureCode = "SECRETS_DETECTED"
	CodePatchTooLarge         FailureCode = "PATCH_TOO_LARGE"
	CodeOutOfScope            FailureCode = "OUT_OF_SCOPE"

	// Concurrency: one retry from WRITEBACK_VALIDATED, then FAILED.
	CodeRevisionMismatch FailureCode = "REVISION_MISMATCH"
	CodeDocConflict      FailureCode = "DOC_CONFLICT"
)

// FailureClass is the retry class of a failure code.
type FailureClass int

const (
	ClassUnknown FailureClass = iota
	ClassRetryable
	ClassConfiguration
	ClassSafety
	ClassConcurrency
)

// Classify maps a failure code to its retry class.
func Classify(code FailureCode) FailureClass {
	switch code {
	case CodeTimeout, CodeRateLimited, CodeServiceUnavailable:
		return ClassRetryable
	case CodeNeedsDocMapping, CodeNeedsOwnerMapping, CodeNoManagedRegion, CodeMultiplePrimaryDocs:
		return ClassConfiguration
	case CodePatchValidationFailed, CodeUnsafePatch, CodeSecretsDetected, CodePatchTooLarge, CodeOutOfScope:
		return ClassSafety
	case CodeRevisionMismatch, CodeDocConflict:
		return ClassConcurrency
	}
	return ClassUnknown
}

// Candidate is the aggregate state of one suspected drift. Exactly one
// worker advances it at a time, guarded by the drift lock.
type Candidate struct {
	WorkspaceID   string   `json:"workspace_id"`
	ID            string   `json:"id"`
	SignalEventID string   `json:"signal_event_id"`
	DriftType     Type     `json:"drift_type"`
	State         State    `json:"state"`
	Attempt       int      `json:"attempt"`
	LastError     string   `json:"last_error,omitempty"`
	LastErrorCode string   `json:"last_error_code,omitempty"`
	Fingerprint   string   `json:"fingerprint"`
	Correlated    []string `json:"correlated_signal_ids"`
	Confidence    float64  `json:"confidence"`

	Service    string `json:"service,omitempty"`
	DocSystem  string `json:"doc_system,omitempty"`
	DocID      string `json:"doc_id,omitempty"`
	OwnerTeam  string `json:"owner_team,omitempty"`
	OwnerSlack string `json:"owner_slack_channel,omitempty"`

	EvidenceBundleID string   `json:"evidence_bundle_id,omitempty"`
	DocMappingID     string   `json:"doc_mapping_id,omitempty"`
	PatchProposalIDs []string `json:"patch_proposal_ids,omitempty"`

	// WritebackRetried marks that the single concurrency retry from
	// WRITEBACK_VALIDATED has been consumed.
	WritebackRetried bool `json:"writeback_retried,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// HasCorrelated reports whether signalID is already merged in.
func (c *Candidate) HasCorrelated(signalID string) bool {
	for _, id := range c.Correlated {
		if id == signalID {
			return true
		}
	}
	return false
}

// MergeSignal adds a correlated signal id once.
func (c *Candidate) MergeSignal(signalID string) {
	if signalID == "" || c.HasCorrelated(signalID) {
		return
	}
	c.Correlated = append(c.Correlated, signalID)
}

// ClampConfidence bounds confidence to [0,1].
func ClampConfidence(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// PatchStyle enumerates patch proposal shapes.
type PatchStyle string

const (
	StyleReplaceSteps     PatchStyle = "replace_steps"
	StyleReorderSteps     PatchStyle = "reorder_steps"
	StyleUpdateOwnerBlock PatchStyle = "update_owner_block"
	StyleAddSection       PatchStyle = "add_section"
	StyleAddNote          PatchStyle = "add_note"
	StyleUpdateSection    PatchStyle = "update_section"
	StyleLinkPatch        PatchStyle = "link_patch"
)

// ProposalStatus is the lifecycle of one patch proposal.
type ProposalStatus string

const (
	ProposalProposed ProposalStatus = "proposed"
	ProposalSent     ProposalStatus = "sent"
	ProposalApproved ProposalStatus = "approved"
	ProposalRejected ProposalStatus = "rejected"
	ProposalApplied  ProposalStatus = "applied"
	ProposalFailed   ProposalStatus = "failed"
)

// PatchSafety records the safety attestations a proposal carries.
type PatchSafety struct {
	SecretsRedacted    bool `json:"secrets_redacted"`
	RiskyChangeAvoided bool `json:"risky_change_avoided"`
}

// PatchProposal is one generated doc patch awaiting human review. Only
// Status mutates after creation.
type PatchProposal struct {
	ID               string         `json:"id"`
	DriftCandidateID string         `json:"drift_candidate_id"`
	Style            PatchStyle     `json:"style"`
	OriginalMarkdown string         `json:"original_markdown"`
	PatchedMarkdown  string         `json:"patched_markdown"`
	UnifiedDiff      string         `json:"unified_diff"`
	Summary          string         `json:"summary"`
	Confidence       float64        `json:"confidence"`
	EvidenceRefs     []string       `json:"evidence_refs,omitempty"`
	Safety           PatchSafety    `json:"safety"`
	NeedsHuman       bool           `json:"needs_human"`
	ExpectedDocRev   string         `json:"expected_doc_revision"`
	Status           ProposalStatus `json:"status"`
	CreatedAt        time.Time      `json:"created_at"`
}

// DocMapping routes a (workspace, service, driftType) to its primary target
// document.
type DocMapping struct {
	ID          string `json:"id"`
	WorkspaceID string `json:"workspace_id"`
	Service     string `json:"service"`
	DriftType   Type   `json:"drift_type"`
	DocSystem   string `json:"doc_system"`
	DocID       string `json:"doc_id"`
	Primary     bool   `json:"primary"`
	OwnerTeam   string `json:"owner_team,omitempty"`
	OwnerSlack  string `json:"owner_slack_channel,omitempty"`
}
