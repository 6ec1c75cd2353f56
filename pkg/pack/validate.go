package pack

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp/syntax"
	"strings"

	"github.com/Masterminds/semver/v3"
	"github.com/gobwas/glob"
	"github.com/google/cel-go/cel"
	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/vertaai/driftgate/pkg/condition"
)

// Issue is one validation finding with the path to the offending field.
type Issue struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

func (i Issue) String() string { return i.Path + ": " + i.Message }

// ValidationResult aggregates structural and semantic issues. A pack is
// publishable only when Valid.
type ValidationResult struct {
	Issues []Issue `json:"issues,omitempty"`
}

// Valid reports whether no issues were found.
func (r *ValidationResult) Valid() bool { return len(r.Issues) == 0 }

func (r *ValidationResult) add(path, format string, args ...interface{}) {
	r.Issues = append(r.Issues, Issue{Path: path, Message: fmt.Sprintf(format, args...)})
}

// Validator runs the two-layer pack validation: structural schema first,
// then semantic checks (enum membership, comparator existence, obligation
// shape, glob syntax, regex linearity, priority range).
type Validator struct {
	schema      *jsonschema.Schema
	comparators func(id string) bool
	celEnv      *cel.Env
}

// NewValidator compiles the structural schema. comparatorExists reports
// whether a comparator id is registered; nil skips that check (load-time
// validation before the registry exists).
func NewValidator(comparatorExists func(id string) bool) (*Validator, error) {
	schema, err := jsonschema.CompileString("pack.schema.json", packSchema)
	if err != nil {
		return nil, fmt.Errorf("compile pack schema: %w", err)
	}
	env, err := celEnv()
	if err != nil {
		return nil, err
	}
	return &Validator{schema: schema, comparators: comparatorExists, celEnv: env}, nil
}

// celEnv declares the fact namespace available to rule `when` guards.
func celEnv() (*cel.Env, error) {
	env, err := cel.NewEnv(
		cel.Variable("pr", cel.DynType),
		cel.Variable("diff", cel.DynType),
		cel.Variable("gate", cel.DynType),
	)
	if err != nil {
		return nil, fmt.Errorf("cel env: %w", err)
	}
	return env, nil
}

// Validate runs both layers against the decoded pack plus its raw JSON.
// When raw is nil the pack is re-marshalled for the structural pass.
func (v *Validator) Validate(p *Pack, raw []byte) *ValidationResult {
	result := &ValidationResult{}
	v.structural(p, raw, result)
	if !result.Valid() {
		return result
	}
	v.semantic(p, result)
	return result
}

func (v *Validator) structural(p *Pack, raw []byte, result *ValidationResult) {
	if raw == nil {
		var err error
		raw, err = json.Marshal(p)
		if err != nil {
			result.add("$", "marshal for validation: %v", err)
			return
		}
	}
	var doc interface{}
	if err := json.Unmarshal(raw, &doc); err != nil {
		result.add("$", "invalid JSON: %v", err)
		return
	}
	if err := v.schema.Validate(doc); err != nil {
		var ve *jsonschema.ValidationError
		if errors.As(err, &ve) {
			for _, leaf := range leafErrors(ve) {
				result.add(instancePath(leaf), "%s", leaf.Message)
			}
			return
		}
		result.add("$", "%v", err)
	}
}

func leafErrors(ve *jsonschema.ValidationError) []*jsonschema.ValidationError {
	if len(ve.Causes) == 0 {
		return []*jsonschema.ValidationError{ve}
	}
	var out []*jsonschema.ValidationError
	for _, cause := range ve.Causes {
		out = append(out, leafErrors(cause)...)
	}
	return out
}

func instancePath(ve *jsonschema.ValidationError) string {
	if ve.InstanceLocation == "" {
		return "$"
	}
	return "$" + strings.ReplaceAll(ve.InstanceLocation, "/", ".")
}

func (v *Validator) semantic(p *Pack, result *ValidationResult) {
	if p.Priority < 0 || p.Priority > 100 {
		result.add("$.priority", "priority %d outside [0,100]", p.Priority)
	}
	if p.Metadata.Mode != ModeObserve && p.Metadata.Mode != ModeWarn && p.Metadata.Mode != ModeEnforce {
		result.add("$.metadata.packMode", "unknown pack mode %q", p.Metadata.Mode)
	}
	if p.Metadata.Status != "" && !knownStatus(p.Metadata.Status) {
		result.add("$.metadata.status", "unknown status %q", p.Metadata.Status)
	}
	if _, err := semver.NewVersion(p.Metadata.Version); err != nil {
		result.add("$.metadata.version", "not a semantic version: %q", p.Metadata.Version)
	}
	if p.Merge != "" && p.Merge != MergeMostRestrictive && p.Merge != MergeHighestPriority && p.Merge != MergeExplicit {
		result.add("$.mergeStrategy", "unknown merge strategy %q", p.Merge)
	}
	v.validateScope(&p.Scope, result)

	if len(p.Rules) == 0 {
		result.add("$.rules", "pack has no rules")
	}
	seen := map[string]bool{}
	for i := range p.Rules {
		rule := &p.Rules[i]
		path := fmt.Sprintf("$.rules[%d]", i)
		if seen[rule.ID] {
			result.add(path+".id", "duplicate rule id %q", rule.ID)
		}
		seen[rule.ID] = true
		v.validateRule(rule, path, result)
	}
}

func knownStatus(s Status) bool {
	switch s {
	case StatusDraft, StatusInReview, StatusActive, StatusDeprecated, StatusArchived:
		return true
	}
	return false
}

func (v *Validator) validateScope(s *Scope, result *ValidationResult) {
	switch s.Type {
	case ScopeWorkspace, ScopeRepo:
	case ScopeService:
		if s.Ref == "" {
			result.add("$.scope.ref", "service scope requires a service ref")
		}
	default:
		result.add("$.scope.type", "unknown scope type %q", s.Type)
	}
	checkGlobs(s.Branches.Include, "$.scope.branches.include", result)
	checkGlobs(s.Branches.Exclude, "$.scope.branches.exclude", result)
}

func checkGlobs(patterns []string, path string, result *ValidationResult) {
	for i, pattern := range patterns {
		if _, err := glob.Compile(pattern, '/'); err != nil {
			result.add(fmt.Sprintf("%s[%d]", path, i), "invalid glob %q: %v", pattern, err)
		}
	}
}

func (v *Validator) validateRule(rule *Rule, path string, result *ValidationResult) {
	checkGlobs(rule.Trigger.Paths, path+".trigger.paths", result)
	checkGlobs(rule.ExcludePaths, path+".excludePaths", result)

	if rule.When != "" {
		if _, issues := v.celEnv.Compile(rule.When); issues != nil && issues.Err() != nil {
			result.add(path+".when", "invalid expression: %v", issues.Err())
		}
	}
	if rule.SkipIf != nil {
		validateCondition(rule.SkipIf, path+".skipIf", result)
	}

	if len(rule.Obligations) == 0 {
		result.add(path+".obligations", "rule has no obligations")
	}
	for i := range rule.Obligations {
		ob := &rule.Obligations[i]
		obPath := fmt.Sprintf("%s.obligations[%d]", path, i)
		hasComparator := ob.Comparator != nil
		hasCondition := ob.Condition != nil
		switch {
		case hasComparator && hasCondition:
			result.add(obPath, "obligation sets both comparator and condition")
		case !hasComparator && !hasCondition:
			result.add(obPath, "obligation sets neither comparator nor condition")
		case hasComparator:
			if v.comparators != nil && !v.comparators(ob.Comparator.ID) {
				result.add(obPath+".comparator.comparatorId", "unknown comparator %q", ob.Comparator.ID)
			}
		case hasCondition:
			validateCondition(ob.Condition, obPath+".condition", result)
		}
		if !ob.DecisionOnFail.Valid() {
			result.add(obPath+".decisionOnFail", "unknown decision %q", ob.DecisionOnFail)
		}
		if ob.DecisionOnUnknown != "" && !ob.DecisionOnUnknown.Valid() {
			result.add(obPath+".decisionOnUnknown", "unknown decision %q", ob.DecisionOnUnknown)
		}
	}
}

func validateCondition(c *condition.Condition, path string, result *ValidationResult) {
	if c.IsComposite() {
		if c.Fact != "" || c.Value != nil {
			result.add(path, "composite condition must not set fact or value")
		}
		if c.Operator == condition.OpNot && len(c.Children) != 1 {
			result.add(path, "NOT takes exactly one child, got %d", len(c.Children))
		}
		if c.Operator != condition.OpNot && len(c.Children) == 0 {
			result.add(path+".conditions", "composite condition has no children")
		}
		for i := range c.Children {
			validateCondition(&c.Children[i], fmt.Sprintf("%s.conditions[%d]", path, i), result)
		}
		return
	}
	if c.Fact == "" {
		result.add(path+".fact", "simple condition requires a fact")
	}
	if !condition.SimpleOperators[c.Operator] {
		result.add(path+".operator", "unknown operator %q", c.Operator)
	}
	if len(c.Children) > 0 {
		result.add(path, "simple condition must not have children")
	}
	if c.Operator == condition.OpMatches {
		pattern, ok := c.Value.(string)
		if !ok {
			result.add(path+".value", "matches requires a string pattern")
			return
		}
		if _, err := syntax.Parse(pattern, syntax.Perl); err != nil {
			result.add(path+".value", "invalid regex %q: %v", pattern, err)
		}
	}
}
