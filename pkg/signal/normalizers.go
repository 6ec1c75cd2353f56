package signal

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/secrets"
)

// Normalizer converts one inbound event into a signal Event.
type Normalizer interface {
	SourceType() contracts.SourceType
	Normalize(ev contracts.InboundEvent) (*Event, error)
}

// Registry maps source types to normalizers. Built once at startup.
type Registry struct {
	normalizers map[contracts.SourceType]Normalizer
}

// NewRegistry registers the default normalizer set.
func NewRegistry() *Registry {
	r := &Registry{normalizers: map[contracts.SourceType]Normalizer{}}
	for _, n := range []Normalizer{
		githubPR{}, githubIaC{}, githubCodeowners{},
		pagerDuty{}, slackCluster{}, monitorAlert{source: contracts.SourceDatadogAlert},
		monitorAlert{source: contracts.SourceGrafanaAlert},
	} {
		r.normalizers[n.SourceType()] = n
	}
	return r
}

// Normalize dispatches on source type. Unknown source types are validation
// errors; the transport layer already filtered duplicates.
func (r *Registry) Normalize(ev contracts.InboundEvent) (*Event, error) {
	n, ok := r.normalizers[ev.SourceType]
	if !ok {
		return nil, fault.New(fault.KindValidation, "no normalizer for source type %q", ev.SourceType)
	}
	out, err := n.Normalize(ev)
	if err != nil {
		return nil, err
	}
	out.WorkspaceID = ev.WorkspaceID
	out.SourceType = ev.SourceType
	out.OccurredAt = ev.OccurredAt
	if out.ID == "" {
		out.ID = uuid.New().String()
	}
	// Raw payloads are persisted redacted; the original bytes never leave
	// the transport layer.
	out.RawPayload = []byte(secrets.Redact(string(ev.Raw)))
	if out.Service == "" {
		out.Service = out.Extracted.Service
	}
	return out, nil
}

func decode(raw []byte, into interface{}) error {
	if err := json.Unmarshal(raw, into); err != nil {
		return fault.Wrap(fault.KindValidation, err, "decode payload")
	}
	return nil
}

type githubPR struct{}

func (githubPR) SourceType() contracts.SourceType { return contracts.SourceGitHubPR }

func (githubPR) Normalize(ev contracts.InboundEvent) (*Event, error) {
	var payload struct {
		Repo      string   `json:"repo"`
		PRNumber  int      `json:"pr_number"`
		HeadSHA   string   `json:"head_sha"`
		Author    string   `json:"author"`
		Title     string   `json:"title"`
		Service   string   `json:"service"`
		Files     []string `json:"files"`
		Additions int      `json:"additions"`
		Deletions int      `json:"deletions"`
	}
	if err := decode(ev.Raw, &payload); err != nil {
		return nil, err
	}
	severity := SeverityLow
	if payload.Additions+payload.Deletions > 500 {
		severity = SeverityMedium
	}
	return &Event{
		Severity: severity,
		Service:  payload.Service,
		Extracted: Extracted{
			Service:      payload.Service,
			Title:        payload.Title,
			Repo:         payload.Repo,
			PRNumber:     payload.PRNumber,
			HeadSHA:      payload.HeadSHA,
			Author:       payload.Author,
			FilesChanged: payload.Files,
			Additions:    payload.Additions,
			Deletions:    payload.Deletions,
		},
	}, nil
}

type githubIaC struct{}

func (githubIaC) SourceType() contracts.SourceType { return contracts.SourceGitHubIaC }

func (githubIaC) Normalize(ev contracts.InboundEvent) (*Event, error) {
	var payload struct {
		Repo    string   `json:"repo"`
		Service string   `json:"service"`
		Files   []string `json:"files"`
		Title   string   `json:"title"`
	}
	if err := decode(ev.Raw, &payload); err != nil {
		return nil, err
	}
	iac := 0
	for _, f := range payload.Files {
		if strings.HasSuffix(f, ".tf") || strings.HasSuffix(f, ".tfvars") || strings.Contains(f, "terraform/") {
			iac++
		}
	}
	severity := SeverityMedium
	if iac > 10 {
		severity = SeverityHigh
	}
	return &Event{
		Severity: severity,
		Service:  payload.Service,
		Extracted: Extracted{
			Service:      payload.Service,
			Title:        payload.Title,
			Repo:         payload.Repo,
			FilesChanged: payload.Files,
		},
	}, nil
}

type githubCodeowners struct{}

func (githubCodeowners) SourceType() contracts.SourceType { return contracts.SourceGitHubCodeowner }

func (githubCodeowners) Normalize(ev contracts.InboundEvent) (*Event, error) {
	var payload struct {
		Repo    string   `json:"repo"`
		Service string   `json:"service"`
		Title   string   `json:"title"`
		Teams   []string `json:"teams"`
		Files   []string `json:"files"`
	}
	if err := decode(ev.Raw, &payload); err != nil {
		return nil, err
	}
	return &Event{
		Severity: SeverityMedium,
		Service:  payload.Service,
		Extracted: Extracted{
			Service:      payload.Service,
			Title:        payload.Title,
			Repo:         payload.Repo,
			Teams:        payload.Teams,
			FilesChanged: payload.Files,
		},
	}, nil
}

type pagerDuty struct{}

func (pagerDuty) SourceType() contracts.SourceType { return contracts.SourcePagerDuty }

func (pagerDuty) Normalize(ev contracts.InboundEvent) (*Event, error) {
	var payload struct {
		IncidentID string `json:"incident_id"`
		Service    string `json:"service"`
		Title      string `json:"title"`
		Urgency    string `json:"urgency"`
	}
	if err := decode(ev.Raw, &payload); err != nil {
		return nil, err
	}
	severity := SeverityHigh
	if strings.EqualFold(payload.Urgency, "low") {
		severity = SeverityMedium
	}
	return &Event{
		Severity: severity,
		Service:  payload.Service,
		Extracted: Extracted{
			Service:    payload.Service,
			Title:      payload.Title,
			IncidentID: payload.IncidentID,
			Urgency:    payload.Urgency,
		},
	}, nil
}

type slackCluster struct{}

func (slackCluster) SourceType() contracts.SourceType { return contracts.SourceSlackCluster }

func (slackCluster) Normalize(ev contracts.InboundEvent) (*Event, error) {
	var payload struct {
		ChannelID string   `json:"channel_id"`
		Service   string   `json:"service"`
		Title     string   `json:"title"`
		Messages  []string `json:"messages"`
	}
	if err := decode(ev.Raw, &payload); err != nil {
		return nil, err
	}
	snippets := make([]string, 0, len(payload.Messages))
	for _, m := range payload.Messages {
		snippets = append(snippets, secrets.Redact(m))
	}
	severity := SeverityLow
	if len(payload.Messages) >= 10 {
		severity = SeverityMedium
	}
	return &Event{
		Severity: severity,
		Service:  payload.Service,
		Extracted: Extracted{
			Service:      payload.Service,
			Title:        payload.Title,
			ChannelID:    payload.ChannelID,
			MessageCount: len(payload.Messages),
			Snippets:     snippets,
		},
	}, nil
}

// monitorAlert covers both Datadog and Grafana alerts; the payload shapes
// the core consumes are identical.
type monitorAlert struct {
	source contracts.SourceType
}

func (m monitorAlert) SourceType() contracts.SourceType { return m.source }

func (m monitorAlert) Normalize(ev contracts.InboundEvent) (*Event, error) {
	var payload struct {
		MonitorName string `json:"monitor_name"`
		Service     string `json:"service"`
		Title       string `json:"title"`
		AlertState  string `json:"alert_state"`
		Severity    string `json:"severity"`
	}
	if err := decode(ev.Raw, &payload); err != nil {
		return nil, err
	}
	severity := parseSeverity(payload.Severity)
	return &Event{
		Severity: severity,
		Service:  payload.Service,
		Extracted: Extracted{
			Service:     payload.Service,
			Title:       payload.Title,
			MonitorName: payload.MonitorName,
			AlertState:  payload.AlertState,
		},
	}, nil
}

func parseSeverity(s string) Severity {
	switch strings.ToLower(s) {
	case "critical", "p1":
		return SeverityCritical
	case "high", "p2":
		return SeverityHigh
	case "medium", "p3":
		return SeverityMedium
	case "low", "p4", "p5", "":
		return SeverityLow
	}
	return SeverityLow
}

// String implements a compact identity for logs.
func (e *Event) String() string {
	return fmt.Sprintf("%s/%s(%s)", e.WorkspaceID, e.ID, e.SourceType)
}
