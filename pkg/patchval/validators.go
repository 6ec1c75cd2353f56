package patchval

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/region"
	"github.com/vertaai/driftgate/pkg/secrets"
)

func errIssue(name, format string, args ...interface{}) []Issue {
	return []Issue{{Validator: name, Severity: SeverityError, Message: fmt.Sprintf(format, args...)}}
}

func warnIssue(name, format string, args ...interface{}) []Issue {
	return []Issue{{Validator: name, Severity: SeverityWarn, Message: fmt.Sprintf(format, args...)}}
}

// 1. MaxChangedLines

type maxChangedLines struct{}

func (maxChangedLines) Name() string { return "MaxChangedLines" }

func (v maxChangedLines) Check(in *Input) []Issue {
	max := in.Config.MaxChangedLines
	if max <= 0 {
		max = 50
	}
	changed := len(in.addedLines) + len(in.removedLines)
	if changed > max {
		return errIssue(v.Name(), "Patch changes %d lines, max is %d", changed, max)
	}
	return nil
}

// 2. NoSecretsIntroduced

type noSecretsIntroduced struct{}

func (noSecretsIntroduced) Name() string { return "NoSecretsIntroduced" }

func (v noSecretsIntroduced) Check(in *Input) []Issue {
	for i, line := range in.addedLines {
		if secrets.ContainsSecret(line) {
			return errIssue(v.Name(), "Added line %d matches a secret pattern", i+1)
		}
	}
	return nil
}

// 3. PatchStyleMatchesDriftType

var styleAllowlist = map[drift.Type][]drift.PatchStyle{
	drift.TypeInstruction: {drift.StyleReplaceSteps, drift.StyleUpdateSection, drift.StyleAddNote, drift.StyleLinkPatch},
	drift.TypeProcess:     {drift.StyleReplaceSteps, drift.StyleReorderSteps, drift.StyleAddSection, drift.StyleAddNote, drift.StyleLinkPatch},
	drift.TypeOwnership:   {drift.StyleUpdateOwnerBlock, drift.StyleLinkPatch},
	drift.TypeCoverage:    {drift.StyleAddSection, drift.StyleAddNote, drift.StyleLinkPatch},
	drift.TypeEnvironment: {drift.StyleUpdateSection, drift.StyleAddNote, drift.StyleLinkPatch},
}

type patchStyleMatchesDriftType struct{}

func (patchStyleMatchesDriftType) Name() string { return "PatchStyleMatchesDriftType" }

func (v patchStyleMatchesDriftType) Check(in *Input) []Issue {
	allowed := styleAllowlist[in.DriftType]
	for _, s := range allowed {
		if s == in.Proposal.Style {
			return nil
		}
	}
	return errIssue(v.Name(), "Style %q is not allowed for drift type %q", in.Proposal.Style, in.DriftType)
}

// 4. EvidenceForRiskyChanges

var riskyKeywords = []string{
	"delete", "drop", "destroy", "force", "sudo", "rm -rf", "truncate",
	"production", "prod", "credential", "password", "disable",
}

type evidenceForRiskyChanges struct{}

func (evidenceForRiskyChanges) Name() string { return "EvidenceForRiskyChanges" }

func (v evidenceForRiskyChanges) Check(in *Input) []Issue {
	if in.Evidence != nil && (len(in.Evidence.Claims) > 0 || in.Evidence.Source.Excerpt != "") {
		return nil
	}
	for _, line := range in.addedLines {
		ll := strings.ToLower(line)
		for _, kw := range riskyKeywords {
			if strings.Contains(ll, kw) {
				return errIssue(v.Name(), "Patch touches risky keyword %q with no evidence attached", kw)
			}
		}
	}
	return nil
}

// 5. ConfidenceThreshold

type confidenceThreshold struct{}

func (confidenceThreshold) Name() string { return "ConfidenceThreshold" }

func (v confidenceThreshold) Check(in *Input) []Issue {
	min := in.Config.MinConfidence
	if min == 0 {
		min = 0.40
	}
	if in.Proposal.Confidence < min {
		return errIssue(v.Name(), "Confidence %.2f is below the minimum %.2f", in.Proposal.Confidence, min)
	}
	return nil
}

// 6. NoBreakingChanges

var breakingMarkers = []string{"BREAKING", "breaking change", "incompatible", "deprecated"}

type noBreakingChanges struct{}

func (noBreakingChanges) Name() string { return "NoBreakingChanges" }

func (v noBreakingChanges) Check(in *Input) []Issue {
	for _, line := range in.addedLines {
		for _, m := range breakingMarkers {
			if strings.Contains(line, m) {
				return warnIssue(v.Name(), "Patch introduces breaking-change marker %q", m)
			}
		}
	}
	return nil
}

// 7. NoNewCommandsUnlessEvidenced

var commandRe = regexp.MustCompile("(?:^|`|\\$\\s)(kubectl|terraform|helm|docker|make|npm|aws|gcloud|git|curl)\\b")

type noNewCommandsUnlessEvidenced struct{}

func (noNewCommandsUnlessEvidenced) Name() string { return "NoNewCommandsUnlessEvidenced" }

func (v noNewCommandsUnlessEvidenced) Check(in *Input) []Issue {
	evidenceText := ""
	if in.Evidence != nil {
		evidenceText = in.Evidence.Source.Excerpt
		for _, c := range in.Evidence.Claims {
			evidenceText += "\n" + c.Text
		}
	}
	for _, line := range in.addedLines {
		m := commandRe.FindStringSubmatch(line)
		if m == nil {
			continue
		}
		tool := m[1]
		if !strings.Contains(evidenceText, tool) {
			return errIssue(v.Name(), "Patch introduces command %q not present in the evidence", tool)
		}
	}
	return nil
}

// 8. OwnerBlockScope

var ownerContentRe = regexp.MustCompile(`(?i)\b(owner|maintainer|on[- ]?call|contact|team|slack|channel|escalation|@)\b|^\s*$`)

type ownerBlockScope struct{}

func (ownerBlockScope) Name() string { return "OwnerBlockScope" }

func (v ownerBlockScope) Check(in *Input) []Issue {
	if in.DriftType != drift.TypeOwnership {
		return nil
	}
	for _, line := range append(append([]string(nil), in.addedLines...), in.removedLines...) {
		if !ownerContentRe.MatchString(line) {
			return errIssue(v.Name(), "Ownership patch touches content outside the owner block: %q", strings.TrimSpace(line))
		}
	}
	return nil
}

// 9. ManagedRegionOnly

type managedRegionOnly struct{}

func (managedRegionOnly) Name() string { return "ManagedRegionOnly" }

func (v managedRegionOnly) Check(in *Input) []Issue {
	if !in.Doc.HasManagedRegion {
		return nil
	}
	changed, err := region.OutsideChanged(in.Proposal.OriginalMarkdown, in.Proposal.PatchedMarkdown)
	if err != nil {
		return errIssue(v.Name(), "Managed region markers are malformed: %v", err)
	}
	if changed {
		return errIssue(v.Name(), "Patch changes content outside the managed region")
	}
	return nil
}

// 10. PrimaryDocOnly

type primaryDocOnly struct{}

func (primaryDocOnly) Name() string { return "PrimaryDocOnly" }

func (v primaryDocOnly) Check(in *Input) []Issue {
	if in.Doc.Primary || in.Proposal.Style == drift.StyleLinkPatch {
		return nil
	}
	return errIssue(v.Name(), "Full-content style %q may only target the primary doc", in.Proposal.Style)
}

// 11. DocFreshness

type docFreshness struct{}

func (docFreshness) Name() string { return "DocFreshness" }

func (v docFreshness) Check(in *Input) []Issue {
	maxDays := in.Config.MaxDocAgeDays
	if maxDays <= 0 {
		maxDays = 365
	}
	if in.Doc.UpdatedAt.IsZero() {
		return nil
	}
	age := int(in.Now.Sub(in.Doc.UpdatedAt).Hours() / 24)
	if age > maxDays {
		return warnIssue(v.Name(), "Doc last updated %d days ago, freshness limit is %d days", age, maxDays)
	}
	return nil
}

// 12. DocRevisionUnchanged

type docRevisionUnchanged struct{}

func (docRevisionUnchanged) Name() string { return "DocRevisionUnchanged" }

func (v docRevisionUnchanged) Check(in *Input) []Issue {
	expected := in.Proposal.ExpectedDocRev
	current := in.Doc.Revision
	if expected == "" || current == "" || expected == current {
		return nil
	}
	// A numeric revision compared against a timestamp-style one cannot be
	// ordered here; writeback re-checks against the live doc.
	if isNumeric(expected) != isNumeric(current) {
		return warnIssue(v.Name(), "Revision formats differ (%q vs %q), deferring to writeback", expected, current)
	}
	return errIssue(v.Name(), "Doc revision changed from %q to %q since the patch was generated", expected, current)
}

func isNumeric(s string) bool {
	_, err := strconv.Atoi(s)
	return err == nil
}

// 13. HardEvidenceForAutoApprove

type hardEvidenceForAutoApprove struct{}

func (hardEvidenceForAutoApprove) Name() string { return "HardEvidenceForAutoApprove" }

func (v hardEvidenceForAutoApprove) Check(in *Input) []Issue {
	threshold := in.Config.AutoApproveThreshold
	if threshold == 0 {
		threshold = 0.85
	}
	if in.Proposal.Confidence < threshold {
		return nil
	}
	if in.Evidence != nil {
		for _, f := range in.Evidence.Source.Files {
			for _, line := range in.addedLines {
				if strings.Contains(line, f) {
					return nil
				}
			}
		}
		for _, tok := range in.Evidence.KeyTokens {
			for _, line := range in.addedLines {
				if strings.Contains(strings.ToLower(line), tok) {
					return nil
				}
			}
		}
	}
	return warnIssue(v.Name(), "Auto-approve confidence without evidence referencing the change, forcing human review")
}
