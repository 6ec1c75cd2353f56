// Package store persists the mutable entities and the append-only audit
// trail. Memory implementations back tests and single-node runs; postgres
// holds drift candidates and audit entries in shared deployments, and
// sqlite holds evidence bundles locally.
package store

import (
	"context"
	"time"

	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/signal"
)

// Workspace is one tenant's configuration.
type Workspace struct {
	ID            string        `json:"id"`
	Name          string        `json:"name"`
	Defaults      pack.Defaults `json:"defaults"`
	SlackChannel  string        `json:"slack_channel,omitempty"`
	RetentionDays int           `json:"retention_days,omitempty"`
	Agents        []string      `json:"agents,omitempty"`
}

// SignalStore keeps normalized signal events and webhook idempotency marks.
type SignalStore interface {
	PutSignal(ctx context.Context, ev *signal.Event) error
	GetSignal(ctx context.Context, workspaceID, id string) (*signal.Event, error)

	// MarkEvent records an inbound delivery id; seen=true means this
	// delivery was already processed and must be dropped.
	MarkEvent(ctx context.Context, workspaceID, deliveryID string) (seen bool, err error)
}

// DriftStore keeps drift candidates.
type DriftStore interface {
	CreateDrift(ctx context.Context, c *drift.Candidate) error
	GetDrift(ctx context.Context, workspaceID, id string) (*drift.Candidate, error)
	UpdateDrift(ctx context.Context, c *drift.Candidate) error
	ListDriftsByState(ctx context.Context, workspaceID string, state drift.State) ([]*drift.Candidate, error)
}

// ProposalStore keeps patch proposals.
type ProposalStore interface {
	PutProposal(ctx context.Context, p *drift.PatchProposal) error
	GetProposal(ctx context.Context, id string) (*drift.PatchProposal, error)
	UpdateProposalStatus(ctx context.Context, id string, status drift.ProposalStatus) error
}

// MappingStore routes services to target documents.
type MappingStore interface {
	PutMapping(ctx context.Context, m *drift.DocMapping) error
	ResolveMappings(ctx context.Context, workspaceID, service string, driftType drift.Type) ([]*drift.DocMapping, error)
}

// EvidenceStore keeps bundles, addressable by id and by fingerprint.
type EvidenceStore interface {
	PutBundle(ctx context.Context, b *evidence.Bundle) error
	GetBundle(ctx context.Context, id string) (*evidence.Bundle, error)
	FindByFingerprint(ctx context.Context, workspaceID, fingerprint string) ([]*evidence.Bundle, error)
}

// PackStore keeps policy pack rows.
type PackStore interface {
	PutPack(ctx context.Context, p *pack.Pack) error
	GetPack(ctx context.Context, workspaceID, packID string) (*pack.Pack, error)
	ListPacks(ctx context.Context, workspaceID string) ([]*pack.Pack, error)
}

// WorkspaceStore keeps workspaces.
type WorkspaceStore interface {
	PutWorkspace(ctx context.Context, w *Workspace) error
	GetWorkspace(ctx context.Context, id string) (*Workspace, error)
}

// AuditStore is the persistent audit log with retention.
type AuditStore interface {
	audit.Log

	// SweepOlderThan deletes entries before cutoff and returns how many
	// went away.
	SweepOlderThan(ctx context.Context, workspaceID string, cutoff time.Time) (int, error)
}

// SweepExpired runs the retention sweep for one workspace using its
// configured retention window. A zero RetentionDays means keep forever.
func SweepExpired(ctx context.Context, audits AuditStore, w *Workspace, now time.Time) (int, error) {
	if w.RetentionDays <= 0 {
		return 0, nil
	}
	cutoff := now.AddDate(0, 0, -w.RetentionDays)
	return audits.SweepOlderThan(ctx, w.ID, cutoff)
}
