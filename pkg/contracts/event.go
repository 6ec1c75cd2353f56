package contracts

import "time"

// SourceType identifies the upstream system a signal came from.
type SourceType string

const (
	SourceGitHubPR        SourceType = "github_pr"
	SourcePagerDuty       SourceType = "pagerduty_incident"
	SourceSlackCluster    SourceType = "slack_cluster"
	SourceDatadogAlert    SourceType = "datadog_alert"
	SourceGrafanaAlert    SourceType = "grafana_alert"
	SourceGitHubIaC       SourceType = "github_iac"
	SourceGitHubCodeowner SourceType = "github_codeowners"
)

// KnownSourceTypes enumerates every accepted source type.
var KnownSourceTypes = map[SourceType]bool{
	SourceGitHubPR: true, SourcePagerDuty: true, SourceSlackCluster: true,
	SourceDatadogAlert: true, SourceGrafanaAlert: true, SourceGitHubIaC: true,
	SourceGitHubCodeowner: true,
}

// InboundEvent is the shape-level webhook contract. The transport layer
// deduplicates on (WorkspaceID, SourceType, EventID) before handing the
// event to a normalizer.
type InboundEvent struct {
	SourceType  SourceType      `json:"source_type"`
	EventID     string          `json:"event_id"`
	OccurredAt  time.Time       `json:"occurred_at"`
	WorkspaceID string          `json:"workspace_id"`
	Raw         []byte          `json:"raw"`
}
