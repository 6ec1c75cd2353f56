// Package pack defines the policy pack model: the versioned declarative
// documents the gate evaluates, their validation, deterministic selection,
// and the canonical content hash that identifies a published rule set.
package pack

import (
	"time"

	"github.com/vertaai/driftgate/pkg/condition"
	"github.com/vertaai/driftgate/pkg/contracts"
)

// Status is the pack lifecycle state.
type Status string

const (
	StatusDraft      Status = "DRAFT"
	StatusInReview   Status = "IN_REVIEW"
	StatusActive     Status = "ACTIVE"
	StatusDeprecated Status = "DEPRECATED"
	StatusArchived   Status = "ARCHIVED"
)

// Mode controls how pack decisions are reported externally.
type Mode string

const (
	ModeObserve Mode = "observe"
	ModeWarn    Mode = "warn"
	ModeEnforce Mode = "enforce"
)

// MergeStrategy resolves cross-pack rule conflicts.
type MergeStrategy string

const (
	MergeMostRestrictive MergeStrategy = "MOST_RESTRICTIVE"
	MergeHighestPriority MergeStrategy = "HIGHEST_PRIORITY"
	MergeExplicit        MergeStrategy = "EXPLICIT"
)

// ScopeType selects which requests a pack applies to.
type ScopeType string

const (
	ScopeWorkspace ScopeType = "workspace"
	ScopeService   ScopeType = "service"
	ScopeRepo      ScopeType = "repo"
)

// Metadata identifies a pack independent of its stored row.
type Metadata struct {
	ID      string   `json:"id" yaml:"id"`
	Name    string   `json:"name" yaml:"name"`
	Version string   `json:"version" yaml:"version"`
	Status  Status   `json:"status" yaml:"status"`
	Owners  []string `json:"owners,omitempty" yaml:"owners,omitempty"`
	Labels  []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	Mode    Mode     `json:"packMode" yaml:"packMode"`
}

// BranchFilter is an include/exclude glob pair over branch names.
type BranchFilter struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// RepoFilter is an include/exclude set over "owner/repo" names.
type RepoFilter struct {
	Include []string `json:"include,omitempty" yaml:"include,omitempty"`
	Exclude []string `json:"exclude,omitempty" yaml:"exclude,omitempty"`
}

// Scope restricts where a pack applies.
type Scope struct {
	Type     ScopeType    `json:"type" yaml:"type"`
	Ref      string       `json:"ref,omitempty" yaml:"ref,omitempty"` // service name for scope type service
	Branches BranchFilter `json:"branches,omitempty" yaml:"branches,omitempty"`
	Repos    RepoFilter   `json:"repos,omitempty" yaml:"repos,omitempty"`
	PREvents []string     `json:"prEvents,omitempty" yaml:"prEvents,omitempty"`
}

// DefaultPREvents apply when a scope names none.
var DefaultPREvents = []string{"opened", "synchronize", "reopened"}

// Defaults are pack-level settings merged over workspace defaults; the pack
// wins on conflict.
type Defaults struct {
	MaxTotalMs             int               `json:"maxTotalMs,omitempty" yaml:"maxTotalMs,omitempty"`
	PerComparatorTimeoutMs int               `json:"perComparatorTimeoutMs,omitempty" yaml:"perComparatorTimeoutMs,omitempty"`
	MaxAPICalls            int               `json:"maxApiCalls,omitempty" yaml:"maxApiCalls,omitempty"`
	MaxFileBytes           int               `json:"maxFileBytes,omitempty" yaml:"maxFileBytes,omitempty"`
	Severity               string            `json:"severity,omitempty" yaml:"severity,omitempty"`
	DecisionOnUnknown      contracts.Decision `json:"decisionOnUnknown,omitempty" yaml:"decisionOnUnknown,omitempty"`
	ExternalDependencyMode string            `json:"externalDependencyMode,omitempty" yaml:"externalDependencyMode,omitempty"` // soft_fail, hard_fail
}

// Trigger decides whether a rule fires for a PR.
type Trigger struct {
	Always        bool     `json:"always,omitempty" yaml:"always,omitempty"`
	Paths         []string `json:"paths,omitempty" yaml:"paths,omitempty"`
	Labels        []string `json:"labels,omitempty" yaml:"labels,omitempty"`
	ChangeSurface []string `json:"changeSurface,omitempty" yaml:"changeSurface,omitempty"` // api, iac, docs, code, ownership
}

// ComparatorRef names a registered comparator plus its parameters.
type ComparatorRef struct {
	ID     string                 `json:"comparatorId" yaml:"comparatorId"`
	Params map[string]interface{} `json:"params,omitempty" yaml:"params,omitempty"`
}

// Obligation is one check within a rule: exactly one of Comparator or
// Condition is set (the validator enforces this), plus the decision policy
// for failure and unknown outcomes.
type Obligation struct {
	Comparator *ComparatorRef       `json:"comparator,omitempty" yaml:"comparator,omitempty"`
	Condition  *condition.Condition `json:"condition,omitempty" yaml:"condition,omitempty"`

	DecisionOnFail    contracts.Decision `json:"decisionOnFail" yaml:"decisionOnFail"`
	DecisionOnUnknown contracts.Decision `json:"decisionOnUnknown,omitempty" yaml:"decisionOnUnknown,omitempty"`
	Severity          string             `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Rule is a pack element: trigger, optional guards, and one or more
// obligations.
type Rule struct {
	ID           string               `json:"id" yaml:"id"`
	Name         string               `json:"name" yaml:"name"`
	Enabled      *bool                `json:"enabled,omitempty" yaml:"enabled,omitempty"`
	Trigger      Trigger              `json:"trigger" yaml:"trigger"`
	When         string               `json:"when,omitempty" yaml:"when,omitempty"` // CEL guard over the fact namespace
	SkipIf       *condition.Condition `json:"skipIf,omitempty" yaml:"skipIf,omitempty"`
	ExcludePaths []string             `json:"excludePaths,omitempty" yaml:"excludePaths,omitempty"`
	Obligations  []Obligation         `json:"obligations" yaml:"obligations"`
}

// IsEnabled treats a missing enabled flag as true.
func (r *Rule) IsEnabled() bool { return r.Enabled == nil || *r.Enabled }

// Pack is one version of a policy pack. Audit-only fields (timestamps,
// authorship) are excluded from the canonical content hash.
type Pack struct {
	ID          string        `json:"id" yaml:"id"`
	WorkspaceID string        `json:"workspaceId" yaml:"workspaceId"`
	Metadata    Metadata      `json:"metadata" yaml:"metadata"`
	Scope       Scope         `json:"scope" yaml:"scope"`
	Priority    int           `json:"priority" yaml:"priority"` // 0-100
	Merge       MergeStrategy `json:"mergeStrategy" yaml:"mergeStrategy"`
	Defaults    Defaults      `json:"defaults,omitempty" yaml:"defaults,omitempty"`
	Rules       []Rule        `json:"rules" yaml:"rules"`

	// Audit-only; stripped before hashing.
	ContentHash string    `json:"contentHash,omitempty" yaml:"contentHash,omitempty"`
	CreatedBy   string    `json:"createdBy,omitempty" yaml:"createdBy,omitempty"`
	CreatedAt   time.Time `json:"createdAt,omitempty" yaml:"createdAt,omitempty"`
	UpdatedAt   time.Time `json:"updatedAt,omitempty" yaml:"updatedAt,omitempty"`
}

// PREventsOrDefault returns the scope's PR events or the default set.
func (s *Scope) PREventsOrDefault() []string {
	if len(s.PREvents) == 0 {
		return DefaultPREvents
	}
	return s.PREvents
}

// MergeDefaults overlays pack defaults on top of workspace defaults. The
// pack wins on every set field.
func MergeDefaults(workspace, pack Defaults) Defaults {
	out := workspace
	if pack.MaxTotalMs > 0 {
		out.MaxTotalMs = pack.MaxTotalMs
	}
	if pack.PerComparatorTimeoutMs > 0 {
		out.PerComparatorTimeoutMs = pack.PerComparatorTimeoutMs
	}
	if pack.MaxAPICalls > 0 {
		out.MaxAPICalls = pack.MaxAPICalls
	}
	if pack.MaxFileBytes > 0 {
		out.MaxFileBytes = pack.MaxFileBytes
	}
	if pack.Severity != "" {
		out.Severity = pack.Severity
	}
	if pack.DecisionOnUnknown != "" {
		out.DecisionOnUnknown = pack.DecisionOnUnknown
	}
	if pack.ExternalDependencyMode != "" {
		out.ExternalDependencyMode = pack.ExternalDependencyMode
	}
	return out
}
