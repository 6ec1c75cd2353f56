package evidence

import (
	"fmt"
	"strings"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/secrets"
	"github.com/vertaai/driftgate/pkg/signal"
)

// DefaultMaxExcerptChars bounds the persisted source excerpt.
const DefaultMaxExcerptChars = 2000

// buildSource projects a normalized signal into persisted source evidence.
// The excerpt is assembled from the typed fields per source type, redacted,
// and truncated.
func buildSource(ev *signal.Event, maxChars int) SourceEvidence {
	x := ev.Extracted
	src := SourceEvidence{
		SourceType: ev.SourceType,
		Title:      x.Title,
		Repo:       x.Repo,
		PRNumber:   x.PRNumber,
		Files:      x.FilesChanged,
		Teams:      x.Teams,
		URLs:       x.URLs,
	}
	if ev.Service != "" {
		src.Services = []string{ev.Service}
	}

	var b strings.Builder
	switch ev.SourceType {
	case contracts.SourceGitHubPR, contracts.SourceGitHubIaC, contracts.SourceGitHubCodeowner:
		fmt.Fprintf(&b, "%s#%d %s by %s (+%d/-%d)\n", x.Repo, x.PRNumber, x.Title, x.Author, x.Additions, x.Deletions)
		for _, f := range x.FilesChanged {
			b.WriteString(f)
			b.WriteByte('\n')
		}
	case contracts.SourcePagerDuty:
		fmt.Fprintf(&b, "incident %s [%s] %s\n", x.IncidentID, x.Urgency, x.Title)
	case contracts.SourceSlackCluster:
		fmt.Fprintf(&b, "channel %s, %d messages: %s\n", x.ChannelID, x.MessageCount, x.Title)
		for _, s := range x.Snippets {
			b.WriteString(s)
			b.WriteByte('\n')
		}
	case contracts.SourceDatadogAlert, contracts.SourceGrafanaAlert:
		fmt.Fprintf(&b, "monitor %s [%s] %s\n", x.MonitorName, x.AlertState, x.Title)
	default:
		b.WriteString(x.Title)
	}

	excerpt := secrets.Redact(b.String())
	if maxChars > 0 && len(excerpt) > maxChars {
		excerpt = excerpt[:maxChars]
	}
	src.Excerpt = excerpt
	return src
}
