package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/signal"
)

// Memory implements every store interface in-process. One instance backs
// tests and single-node deployments.
type Memory struct {
	mu         sync.RWMutex
	signals    map[string]*signal.Event
	deliveries map[string]bool
	drifts     map[string]*drift.Candidate
	proposals  map[string]*drift.PatchProposal
	mappings   map[string][]*drift.DocMapping
	bundles    map[string]*evidence.Bundle
	packs      map[string]*pack.Pack
	workspaces map[string]*Workspace
	entries    []audit.Entry
	clock      func() time.Time
}

// NewMemory returns an empty store.
func NewMemory() *Memory {
	return &Memory{
		signals:    map[string]*signal.Event{},
		deliveries: map[string]bool{},
		drifts:     map[string]*drift.Candidate{},
		proposals:  map[string]*drift.PatchProposal{},
		mappings:   map[string][]*drift.DocMapping{},
		bundles:    map[string]*evidence.Bundle{},
		packs:      map[string]*pack.Pack{},
		workspaces: map[string]*Workspace{},
		clock:      time.Now,
	}
}

// WithClock overrides the clock for deterministic testing.
func (m *Memory) WithClock(clock func() time.Time) *Memory {
	m.clock = clock
	return m
}

func key2(a, b string) string { return a + "\x00" + b }

func (m *Memory) PutSignal(ctx context.Context, ev *signal.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *ev
	m.signals[key2(ev.WorkspaceID, ev.ID)] = &copied
	return nil
}

func (m *Memory) GetSignal(ctx context.Context, workspaceID, id string) (*signal.Event, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.signals[key2(workspaceID, id)]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "signal %s/%s", workspaceID, id)
	}
	copied := *ev
	return &copied, nil
}

func (m *Memory) MarkEvent(ctx context.Context, workspaceID, deliveryID string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(workspaceID, deliveryID)
	if m.deliveries[k] {
		return true, nil
	}
	m.deliveries[k] = true
	return false, nil
}

func (m *Memory) CreateDrift(ctx context.Context, c *drift.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(c.WorkspaceID, c.ID)
	if _, ok := m.drifts[k]; ok {
		return fault.New(fault.KindConflict, "drift %s already exists", c.ID)
	}
	copied := *c
	m.drifts[k] = &copied
	return nil
}

func (m *Memory) GetDrift(ctx context.Context, workspaceID, id string) (*drift.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.drifts[key2(workspaceID, id)]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "drift %s/%s", workspaceID, id)
	}
	copied := *c
	return &copied, nil
}

func (m *Memory) UpdateDrift(ctx context.Context, c *drift.Candidate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := key2(c.WorkspaceID, c.ID)
	if _, ok := m.drifts[k]; !ok {
		return fault.New(fault.KindNotFound, "drift %s/%s", c.WorkspaceID, c.ID)
	}
	c.UpdatedAt = m.clock().UTC()
	copied := *c
	m.drifts[k] = &copied
	return nil
}

func (m *Memory) ListDriftsByState(ctx context.Context, workspaceID string, state drift.State) ([]*drift.Candidate, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*drift.Candidate
	for _, c := range m.drifts {
		if c.WorkspaceID == workspaceID && c.State == state {
			copied := *c
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) PutProposal(ctx context.Context, p *drift.PatchProposal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.proposals[p.ID] = &copied
	return nil
}

func (m *Memory) GetProposal(ctx context.Context, id string) (*drift.PatchProposal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.proposals[id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "proposal %s", id)
	}
	copied := *p
	return &copied, nil
}

func (m *Memory) UpdateProposalStatus(ctx context.Context, id string, status drift.ProposalStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.proposals[id]
	if !ok {
		return fault.New(fault.KindNotFound, "proposal %s", id)
	}
	p.Status = status
	return nil
}

func (m *Memory) PutMapping(ctx context.Context, dm *drift.DocMapping) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *dm
	k := key2(dm.WorkspaceID, dm.Service)
	m.mappings[k] = append(m.mappings[k], &copied)
	return nil
}

func (m *Memory) ResolveMappings(ctx context.Context, workspaceID, service string, driftType drift.Type) ([]*drift.DocMapping, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*drift.DocMapping
	for _, dm := range m.mappings[key2(workspaceID, service)] {
		if dm.DriftType == driftType {
			copied := *dm
			out = append(out, &copied)
		}
	}
	return out, nil
}

func (m *Memory) PutBundle(ctx context.Context, b *evidence.Bundle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *b
	m.bundles[b.ID] = &copied
	return nil
}

func (m *Memory) GetBundle(ctx context.Context, id string) (*evidence.Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.bundles[id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "bundle %s", id)
	}
	copied := *b
	return &copied, nil
}

func (m *Memory) FindByFingerprint(ctx context.Context, workspaceID, fingerprint string) ([]*evidence.Bundle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*evidence.Bundle
	for _, b := range m.bundles {
		if b.WorkspaceID != workspaceID {
			continue
		}
		fp := b.Fingerprints
		if fp.Strict == fingerprint || fp.Medium == fingerprint || fp.Broad == fingerprint {
			copied := *b
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) PutPack(ctx context.Context, p *pack.Pack) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *p
	m.packs[key2(p.WorkspaceID, p.Metadata.ID)] = &copied
	return nil
}

func (m *Memory) GetPack(ctx context.Context, workspaceID, packID string) (*pack.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.packs[key2(workspaceID, packID)]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "pack %s/%s", workspaceID, packID)
	}
	copied := *p
	return &copied, nil
}

func (m *Memory) ListPacks(ctx context.Context, workspaceID string) ([]*pack.Pack, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*pack.Pack
	for _, p := range m.packs {
		if p.WorkspaceID == workspaceID {
			copied := *p
			out = append(out, &copied)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Metadata.ID < out[j].Metadata.ID })
	return out, nil
}

func (m *Memory) PutWorkspace(ctx context.Context, w *Workspace) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *w
	m.workspaces[w.ID] = &copied
	return nil
}

func (m *Memory) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	w, ok := m.workspaces[id]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "workspace %s", id)
	}
	copied := *w
	return &copied, nil
}

func (m *Memory) Append(ctx context.Context, entry audit.Entry) error {
	audit.Fill(&entry, m.clock)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries = append(m.entries, entry)
	return nil
}

func (m *Memory) List(ctx context.Context, workspaceID string, since, until time.Time) ([]audit.Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []audit.Entry
	for _, e := range m.entries {
		if e.WorkspaceID != workspaceID {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Timestamp.Before(out[j].Timestamp) })
	return out, nil
}

func (m *Memory) SweepOlderThan(ctx context.Context, workspaceID string, cutoff time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.entries[:0]
	removed := 0
	for _, e := range m.entries {
		if e.WorkspaceID == workspaceID && e.Timestamp.Before(cutoff) {
			removed++
			continue
		}
		kept = append(kept, e)
	}
	m.entries = kept
	return removed, nil
}
