package drift

import (
	"regexp"
	"strings"
)

// ProcessMismatchType names how a change disagrees with the documented
// process.
type ProcessMismatchType string

const (
	MismatchOrderChange    ProcessMismatchType = "order_change"
	MismatchNewGate        ProcessMismatchType = "new_gate"
	MismatchRemovedGate    ProcessMismatchType = "removed_gate"
	MismatchDecisionChange ProcessMismatchType = "decision_change"
	MismatchUnknown        ProcessMismatchType = "unknown"
)

// RecommendedAction is the baseline's disposition suggestion.
type RecommendedAction string

const (
	ActionGeneratePatch RecommendedAction = "generate_patch"
	ActionReviewQueue   RecommendedAction = "review_queue"
	ActionAnnotateOnly  RecommendedAction = "annotate_only"
)

// BaselineResult is the outcome of the process-drift baseline check.
type BaselineResult struct {
	HasStepList      bool                `json:"has_step_list"`
	HasGates         bool                `json:"has_gates"`
	HasDecisionLogic bool                `json:"has_decision_logic"`
	MismatchType     ProcessMismatchType `json:"mismatch_type"`
	Confidence       float64             `json:"confidence_suggestion"`
	Action           RecommendedAction   `json:"recommended_action"`
}

var (
	stepListRe      = regexp.MustCompile(`(?m)^\s*(?:\d+[.)]|[-*]\s+\[?\s?\]?)\s+\S`)
	gateRe          = regexp.MustCompile(`(?i)\b(approval|approve[sd]?|sign[- ]?off|rollback|escalat\w+)\b`)
	decisionLogicRe = regexp.MustCompile(`(?i)\b(if|when|unless)\b.*\b(then|must|should)\b`)
)

// baselineWindow bounds how much of the doc the pattern scan reads. The
// process section of a runbook sits near the top; scanning megabytes of
// appendix adds noise, not signal.
const baselineWindow = 400

// CheckProcessBaseline inspects the target doc for process structure,
// infers the mismatch type from the PR title and changed files, and
// suggests a confidence and disposition.
func CheckProcessBaseline(docContent, prTitle string, changedFiles []string) BaselineResult {
	lines := strings.Split(docContent, "\n")
	if len(lines) > baselineWindow {
		lines = lines[:baselineWindow]
	}
	window := strings.Join(lines, "\n")

	res := BaselineResult{
		HasStepList:      stepListRe.MatchString(window),
		HasGates:         gateRe.MatchString(window),
		HasDecisionLogic: decisionLogicRe.MatchString(window),
		MismatchType:     inferMismatch(prTitle, changedFiles),
	}

	conf := 0.3
	if res.HasStepList {
		conf += 0.2
	}
	if res.HasGates {
		conf += 0.2
	}
	if res.HasDecisionLogic {
		conf += 0.15
	}
	if strings.TrimSpace(prTitle) != "" {
		conf += 0.1
	}
	if conf > 0.95 {
		conf = 0.95
	}
	res.Confidence = conf

	switch {
	case conf >= 0.7 && res.HasStepList:
		res.Action = ActionGeneratePatch
	case conf < 0.5:
		res.Action = ActionReviewQueue
	default:
		res.Action = ActionAnnotateOnly
	}
	return res
}

func inferMismatch(prTitle string, changedFiles []string) ProcessMismatchType {
	text := strings.ToLower(prTitle)
	for _, f := range changedFiles {
		text += " " + strings.ToLower(f)
	}
	switch {
	case containsAny(text, "reorder", "order", "sequence", "before", "after"):
		return MismatchOrderChange
	case containsAny(text, "require approval", "add gate", "add check", "mandatory", "enforce"):
		return MismatchNewGate
	case containsAny(text, "remove approval", "skip", "drop gate", "no longer require", "bypass"):
		return MismatchRemovedGate
	case containsAny(text, "decision", "criteria", "threshold", "condition"):
		return MismatchDecisionChange
	}
	return MismatchUnknown
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
