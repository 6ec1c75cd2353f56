// Package signal converts inbound webhook events into the uniform
// SignalEvent record the drift pipeline consumes. One normalizer exists per
// source type; all of them are pure except for clock access.
package signal

import (
	"time"

	"github.com/vertaai/driftgate/pkg/contracts"
)

// Severity is the normalized signal severity scale.
type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// Extracted is the typed projection a normalizer pulls out of the raw
// payload. Only the fields relevant to the source type are set.
type Extracted struct {
	// Common.
	Service string   `json:"service,omitempty"`
	Title   string   `json:"title,omitempty"`
	URLs    []string `json:"urls,omitempty"`
	Teams   []string `json:"teams,omitempty"`

	// github_pr / github_iac / github_codeowners.
	Repo         string   `json:"repo,omitempty"`
	PRNumber     int      `json:"pr_number,omitempty"`
	HeadSHA      string   `json:"head_sha,omitempty"`
	Author       string   `json:"author,omitempty"`
	FilesChanged []string `json:"files_changed,omitempty"`
	Additions    int      `json:"additions,omitempty"`
	Deletions    int      `json:"deletions,omitempty"`

	// pagerduty_incident.
	IncidentID string `json:"incident_id,omitempty"`
	Urgency    string `json:"urgency,omitempty"`

	// slack_cluster.
	ChannelID    string   `json:"channel_id,omitempty"`
	MessageCount int      `json:"message_count,omitempty"`
	Snippets     []string `json:"snippets,omitempty"`

	// datadog_alert / grafana_alert.
	MonitorName string `json:"monitor_name,omitempty"`
	AlertState  string `json:"alert_state,omitempty"`
}

// Event is the immutable normalized signal record appended to the store.
type Event struct {
	WorkspaceID string               `json:"workspace_id"`
	ID          string               `json:"id"`
	SourceType  contracts.SourceType `json:"source_type"`
	OccurredAt  time.Time            `json:"occurred_at"`
	RawPayload  []byte               `json:"raw_payload,omitempty"`
	Extracted   Extracted            `json:"extracted"`
	Severity    Severity             `json:"severity"`
	Service     string               `json:"service,omitempty"`
}
