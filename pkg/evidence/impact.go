package evidence

import (
	"sort"
	"strings"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/signal"
)

// impactRule contributes a fixed weight when its predicate fires. The score
// is the clamped sum of fired weights; it never exceeds 1.
type impactRule struct {
	id     string
	weight float64
	fires  func(ev *signal.Event) bool
}

var criticalFileHints = []string{
	"deploy", "release", "rollback", "migration", "terraform/", ".tf",
	"codeowners", "dockerfile", "helm/", "k8s/", "prod",
}

var impactRules = []impactRule{
	{"pr_large", 0.2, func(ev *signal.Event) bool {
		return ev.Extracted.Additions+ev.Extracted.Deletions > 300
	}},
	{"many_files", 0.15, func(ev *signal.Event) bool {
		return len(ev.Extracted.FilesChanged) > 10
	}},
	{"critical_files", 0.25, func(ev *signal.Event) bool {
		for _, f := range ev.Extracted.FilesChanged {
			lf := strings.ToLower(f)
			for _, hint := range criticalFileHints {
				if strings.Contains(lf, hint) {
					return true
				}
			}
		}
		return false
	}},
	{"incident_high", 0.35, func(ev *signal.Event) bool {
		return ev.SourceType == contracts.SourcePagerDuty && severityRank(ev.Severity) >= severityRank(signal.SeverityHigh)
	}},
	{"alert_critical", 0.3, func(ev *signal.Event) bool {
		return (ev.SourceType == contracts.SourceDatadogAlert || ev.SourceType == contracts.SourceGrafanaAlert) &&
			ev.Severity == signal.SeverityCritical
	}},
	{"iac_change", 0.2, func(ev *signal.Event) bool {
		if ev.SourceType != contracts.SourceGitHubIaC {
			return false
		}
		n := 0
		for _, f := range ev.Extracted.FilesChanged {
			if strings.HasSuffix(f, ".tf") || strings.HasSuffix(f, ".tfvars") {
				n++
			}
		}
		return n > 0
	}},
	{"ownership_delta", 0.25, func(ev *signal.Event) bool {
		return ev.SourceType == contracts.SourceGitHubCodeowner && len(ev.Extracted.Teams) > 0
	}},
	{"signal_severity", 0.1, func(ev *signal.Event) bool {
		return ev.Severity == signal.SeverityHigh || ev.Severity == signal.SeverityCritical
	}},
}

// severityRank orders severities so "high or worse" comparisons work.
func severityRank(s signal.Severity) int {
	switch s {
	case signal.SeverityCritical:
		return 3
	case signal.SeverityHigh:
		return 2
	case signal.SeverityMedium:
		return 1
	}
	return 0
}

// AssessImpact scores the drift's blast and maps it to a band.
func AssessImpact(ev *signal.Event) Assessment {
	var score float64
	var fired []string
	for _, rule := range impactRules {
		if rule.fires(ev) {
			score += rule.weight
			fired = append(fired, rule.id)
		}
	}
	if score > 1 {
		score = 1
	}
	return Assessment{
		Score:           score,
		Band:            BandFor(score),
		FiredRules:      fired,
		ConsequenceText: consequenceText(fired, ev),
		BlastRadius:     blastRadius(ev),
	}
}

// BandFor is the step function over the impact score.
func BandFor(score float64) Band {
	switch {
	case score < 0.25:
		return BandLow
	case score < 0.5:
		return BandMedium
	case score < 0.75:
		return BandHigh
	default:
		return BandCritical
	}
}

// consequenceClauses render each fired rule as a cause a human can read in
// a notification without opening the bundle.
var consequenceClauses = map[string]string{
	"pr_large":        "a large code change",
	"many_files":      "a change spanning many files",
	"critical_files":  "changes to deployment-critical files",
	"incident_high":   "a high-urgency incident",
	"alert_critical":  "a critical monitor alert",
	"iac_change":      "infrastructure definition changes",
	"ownership_delta": "an ownership handover",
	"signal_severity": "an elevated signal severity",
}

// consequenceText derives the human-readable consequence from the fired
// rules. Deterministic: rule order follows impactRules.
func consequenceText(fired []string, ev *signal.Event) string {
	if len(fired) == 0 {
		return ""
	}
	clauses := make([]string, 0, len(fired))
	for _, id := range fired {
		if c, ok := consequenceClauses[id]; ok {
			clauses = append(clauses, c)
		}
	}
	if len(clauses) == 0 {
		return ""
	}
	subject := ev.Service
	if subject == "" {
		subject = ev.Extracted.Repo
	}
	if subject == "" {
		subject = "this system"
	}
	return "Documentation for " + subject + " may be stale: the signal involves " +
		strings.Join(clauses, " and ") + "."
}

// blastRadius collects the distinct services, teams, and systems the source
// artifacts reference, each list sorted for determinism. Repos and monitors
// count as systems.
func blastRadius(ev *signal.Event) BlastRadius {
	var systems []string
	if ev.Extracted.Repo != "" {
		systems = append(systems, ev.Extracted.Repo)
	}
	if ev.Extracted.MonitorName != "" {
		systems = append(systems, ev.Extracted.MonitorName)
	}
	var services []string
	if ev.Service != "" {
		services = append(services, ev.Service)
	}
	if ev.Extracted.Service != "" && ev.Extracted.Service != ev.Service {
		services = append(services, ev.Extracted.Service)
	}
	return BlastRadius{
		Services: dedupSorted(services),
		Teams:    dedupSorted(ev.Extracted.Teams),
		Systems:  dedupSorted(systems),
	}
}

func dedupSorted(in []string) []string {
	set := map[string]bool{}
	for _, s := range in {
		if s != "" {
			set[s] = true
		}
	}
	out := make([]string, 0, len(set))
	for s := range set {
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}
