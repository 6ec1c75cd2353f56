// Package evaluator runs selected policy packs against one PR context and
// aggregates per-pack decisions into the gate's global decision and check
// output. Evaluation is deterministic: identical pack hashes and PR context
// yield identical results.
package evaluator

import (
	"time"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/pack"
)

// Version is the fixed evaluator identifier published with every check
// output.
const Version = "driftgate-eval/1"

// RuleOutcome records how one rule resolved.
type RuleOutcome struct {
	RuleID    string              `json:"rule_id"`
	RuleName  string              `json:"rule_name"`
	Triggered bool                `json:"triggered"`
	Skipped   bool                `json:"skipped"` // skipIf matched or rule suppressed by conflict resolution
	SkipNote  string              `json:"skip_note,omitempty"`
	Decision  contracts.Decision  `json:"decision"`
	Findings  []contracts.Finding `json:"findings,omitempty"`
}

// PackResult is the evaluation of one pack.
type PackResult struct {
	PackID   string    `json:"pack_id"`
	PackName string    `json:"pack_name"`
	Hash     string    `json:"hash"`
	Mode     pack.Mode `json:"mode"`

	// Decision is the true computed decision. ReportedDecision differs
	// only in observe mode, where the pack always reports pass.
	Decision         contracts.Decision `json:"decision"`
	ReportedDecision contracts.Decision `json:"reported_decision"`

	Rules          []RuleOutcome       `json:"rules"`
	RulesTriggered int                 `json:"rules_triggered"`
	Findings       []contracts.Finding `json:"findings"`
	Err            string              `json:"error,omitempty"`
}

// Conflict records a cross-pack rule conflict per the merge strategy rules.
type Conflict struct {
	Kind    string   `json:"kind"` // rule, merge_strategy, priority
	RuleID  string   `json:"rule_id,omitempty"`
	PackIDs []string `json:"pack_ids"`
	Detail  string   `json:"detail"`
}

// Result is the full multi-pack evaluation outcome.
type Result struct {
	GlobalDecision   contracts.Decision    `json:"global_decision"`
	ReportedDecision contracts.Decision    `json:"reported_decision"`
	PerPack          []PackResult          `json:"per_pack"`
	Conflicts        []Conflict            `json:"conflicts,omitempty"`
	Check            contracts.CheckOutput `json:"check"`
	StartedAt        time.Time             `json:"started_at"`
	Duration         time.Duration         `json:"duration"`
	EvaluatorVersion string                `json:"evaluator_version"`
}
