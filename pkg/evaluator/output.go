package evaluator

import (
	"fmt"
	"strings"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/pack"
)

// renderCheck assembles the gate's public check output. The check is always
// produced; a pack set that failed to evaluate entirely yields a neutral
// conclusion with the failure reason in the summary.
func (e *Engine) renderCheck(result *Result) contracts.CheckOutput {
	out := contracts.CheckOutput{Name: e.checkName}

	allFailed := len(result.PerPack) > 0
	for _, p := range result.PerPack {
		if p.Err == "" {
			allFailed = false
			break
		}
	}
	if allFailed {
		out.Conclusion = contracts.ConclusionNeutral
		out.Title = "Policy evaluation failed"
		out.Summary = fmt.Sprintf("evaluation failed — %s", result.PerPack[0].Err)
		return out
	}

	switch result.ReportedDecision {
	case contracts.DecisionBlock:
		out.Conclusion = contracts.ConclusionFailure
	case contracts.DecisionWarn:
		out.Conclusion = contracts.ConclusionNeutral
	default:
		out.Conclusion = contracts.ConclusionSuccess
	}

	out.Title = titleFor(result)
	out.Summary = e.renderSummary(result)
	out.Text = renderText(result)
	return out
}

func titleFor(result *Result) string {
	switch result.ReportedDecision {
	case contracts.DecisionBlock:
		return "Blocked by policy"
	case contracts.DecisionWarn:
		return "Passed with warnings"
	}
	if result.GlobalDecision != result.ReportedDecision {
		return fmt.Sprintf("Would %s (observe-only)", strings.ToUpper(string(result.GlobalDecision)))
	}
	return "All policies passed"
}

// enforcementMode reports the strongest mode among evaluated packs; the
// per-pack lines carry the detail for mixed sets.
func enforcementMode(result *Result) string {
	strongest := pack.ModeObserve
	rank := map[pack.Mode]int{pack.ModeObserve: 0, pack.ModeWarn: 1, pack.ModeEnforce: 2}
	for _, p := range result.PerPack {
		if rank[p.Mode] > rank[strongest] {
			strongest = p.Mode
		}
	}
	return string(strongest)
}

func (e *Engine) renderSummary(result *Result) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Enforcement: %s\n", enforcementMode(result))
	fmt.Fprintf(&b, "Decision: %s", strings.ToUpper(string(result.ReportedDecision)))
	if result.GlobalDecision != result.ReportedDecision {
		fmt.Fprintf(&b, " — Would %s (observe-only)", strings.ToUpper(string(result.GlobalDecision)))
	}
	b.WriteString("\n\n")

	totalFindings := 0
	for _, p := range result.PerPack {
		totalFindings += len(p.Findings)
		line := fmt.Sprintf("- %s (%s): %s", p.PackName, pack.ShortHash(p.Hash), strings.ToUpper(string(p.ReportedDecision)))
		if p.Mode == pack.ModeObserve && p.Decision != p.ReportedDecision {
			line += fmt.Sprintf(" — Would %s (observe-only)", strings.ToUpper(string(p.Decision)))
		}
		line += fmt.Sprintf(" — %d rule(s) triggered, %d finding(s)", p.RulesTriggered, len(p.Findings))
		b.WriteString(line + "\n")
	}
	if len(result.Conflicts) > 0 {
		fmt.Fprintf(&b, "\n%d pack conflict(s) detected\n", len(result.Conflicts))
	}
	fmt.Fprintf(&b, "\nFindings: %d | Evaluation time: %dms | Evaluator: %s\n",
		totalFindings, result.Duration.Milliseconds(), result.EvaluatorVersion)
	return b.String()
}

// renderText groups findings under Blocking / Warnings / Unable to evaluate
// / Passing. Grouping follows the finding's decision, not its raw status:
// an obligation with decisionOnFail=pass lists as passing even when its
// comparator failed, which is what observe-style advisory obligations rely
// on.
func renderText(result *Result) string {
	var blocking, warnings, unknowns, passing []string
	for _, p := range result.PerPack {
		for _, f := range p.Findings {
			line := findingLine(p.PackName, f)
			switch {
			case f.Status == contracts.StatusUnknown:
				unknowns = append(unknowns, line)
			case f.Decision == contracts.DecisionBlock:
				blocking = append(blocking, line)
			case f.Decision == contracts.DecisionWarn:
				warnings = append(warnings, line)
			default:
				passing = append(passing, line)
			}
		}
	}

	var b strings.Builder
	section := func(title string, lines []string) {
		if len(lines) == 0 {
			return
		}
		fmt.Fprintf(&b, "## %s\n\n", title)
		for _, line := range lines {
			b.WriteString(line + "\n")
		}
		b.WriteString("\n")
	}
	section("Blocking", blocking)
	section("Warnings", warnings)
	section("Unable to evaluate", unknowns)
	section("Passing", passing)
	if b.Len() == 0 {
		return "No rules triggered for this change.\n"
	}
	return b.String()
}

func findingLine(packName string, f contracts.Finding) string {
	line := fmt.Sprintf("- [%s] %s", packName, f.RuleName)
	if f.Message != "" {
		line += ": " + f.Message
	}
	if f.ReasonCode != "" {
		line += fmt.Sprintf(" (%s)", f.ReasonCode)
	}
	for _, ev := range f.Evidence {
		if ev.Ref != "" {
			line += fmt.Sprintf("\n  - %s: %s", ev.Kind, ev.Ref)
			if ev.Snippet != "" {
				line += " — " + ev.Snippet
			}
		}
	}
	return line
}
