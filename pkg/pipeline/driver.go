// Package pipeline orchestrates the drift state machine. The driver
// advances one candidate at a time under the drift lock, performs a
// bounded number of transitions per invocation, and schedules follow-up
// work through the queue. All collaborators enter through interfaces so
// every path is testable in-process.
package pipeline

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/dedup"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/llm"
	"github.com/vertaai/driftgate/pkg/lock"
	"github.com/vertaai/driftgate/pkg/patchval"
	"github.com/vertaai/driftgate/pkg/queue"
	"github.com/vertaai/driftgate/pkg/signal"
	"github.com/vertaai/driftgate/pkg/store"
	"github.com/vertaai/driftgate/pkg/writeback"
)

// MaxTransitionsPerInvocation bounds work done under one lock hold.
const MaxTransitionsPerInvocation = 5

// MaxRetryAttempts bounds retryable-failure re-enqueues per candidate.
const MaxRetryAttempts = 3

// Stores groups the persistence surfaces the driver needs.
type Stores struct {
	Signals    store.SignalStore
	Drifts     store.DriftStore
	Proposals  store.ProposalStore
	Mappings   store.MappingStore
	Bundles    store.EvidenceStore
	Workspaces store.WorkspaceStore
}

// Deps wires the driver. Zero optional fields fall back to defaults.
type Deps struct {
	Stores      Stores
	Audit       audit.Log
	Locker      lock.Locker
	Queue       *queue.Queue
	Index       dedup.Index
	Builder     *evidence.Builder
	Drafter     llm.Drafter
	Validators  *patchval.Pipeline
	Docs        adapters.DocAdapter
	Writeback   *writeback.Coordinator
	Notifier    adapters.Notifier
	Normalizers *signal.Registry
	CallbackKey []byte

	LockTTL        time.Duration
	MaxTransitions int
	MaxRetries     int
	ValidatorCfg   patchval.Config
	Clock          func() time.Time
}

// Driver runs the state machine.
type Driver struct {
	d Deps
}

// NewDriver validates and applies defaults.
func NewDriver(d Deps) *Driver {
	if d.LockTTL <= 0 {
		d.LockTTL = lock.DefaultTTL
	}
	if d.MaxTransitions <= 0 {
		d.MaxTransitions = MaxTransitionsPerInvocation
	}
	if d.MaxRetries <= 0 {
		d.MaxRetries = MaxRetryAttempts
	}
	if d.Clock == nil {
		d.Clock = time.Now
	}
	if d.ValidatorCfg == (patchval.Config{}) {
		d.ValidatorCfg = patchval.DefaultConfig()
	}
	if d.Validators == nil {
		d.Validators = patchval.New()
	}
	if d.Builder == nil {
		d.Builder = evidence.NewBuilder()
	}
	if d.Normalizers == nil {
		d.Normalizers = signal.NewRegistry()
	}
	return &Driver{d: d}
}

// IngestResult reports what happened to one inbound event.
type IngestResult struct {
	Dropped   bool             `json:"dropped,omitempty"` // duplicate delivery
	SignalID  string           `json:"signal_id,omitempty"`
	DriftID   string           `json:"drift_id,omitempty"`
	Candidate *drift.Candidate `json:"-"`
}

// Ingest normalizes an inbound event, opens a drift candidate, and
// enqueues the first driver invocation. Duplicate delivery ids drop
// silently; queue backpressure surfaces as a rate-limited fault so the
// transport can answer retry-after.
func (dr *Driver) Ingest(ctx context.Context, ev contracts.InboundEvent) (*IngestResult, error) {
	if ev.EventID != "" {
		seen, err := dr.d.Stores.Signals.MarkEvent(ctx, ev.WorkspaceID, ev.EventID)
		if err != nil {
			return nil, err
		}
		if seen {
			return &IngestResult{Dropped: true}, nil
		}
	}

	sig, err := dr.d.Normalizers.Normalize(ev)
	if err != nil {
		return nil, err
	}
	if err := dr.d.Stores.Signals.PutSignal(ctx, sig); err != nil {
		return nil, err
	}
	dr.record(ctx, sig.WorkspaceID, audit.EntrySignalIngested, "ingest", string(sig.SourceType), map[string]interface{}{
		"signal_id": sig.ID,
	})

	now := dr.d.Clock().UTC()
	cand := &drift.Candidate{
		WorkspaceID:   sig.WorkspaceID,
		ID:            uuid.New().String(),
		SignalEventID: sig.ID,
		DriftType:     classifyDrift(sig),
		State:         drift.StateIngested,
		Correlated:    []string{sig.ID},
		Confidence:    initialConfidence(sig),
		Service:       sig.Service,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	if err := dr.d.Stores.Drifts.CreateDrift(ctx, cand); err != nil {
		return nil, err
	}

	if err := dr.enqueue(cand, 0); err != nil {
		return nil, err
	}
	return &IngestResult{SignalID: sig.ID, DriftID: cand.ID, Candidate: cand}, nil
}

// AdvanceResult summarizes one driver invocation.
type AdvanceResult struct {
	Transitions int
	FinalState  drift.State
	Dedup       *dedup.Outcome
}

// Advance drives one candidate for up to MaxTransitions transitions under
// the drift lock. It returns without error when the lock is already held
// elsewhere; the queued job that triggered the other holder covers the
// work.
func (dr *Driver) Advance(ctx context.Context, workspaceID, driftID string) (*AdvanceResult, error) {
	token, ok, err := dr.d.Locker.Acquire(ctx, driftID, dr.d.LockTTL)
	if err != nil {
		return nil, err
	}
	if !ok {
		return &AdvanceResult{}, nil
	}
	defer func() { _ = dr.d.Locker.Release(context.WithoutCancel(ctx), driftID, token) }()

	res := &AdvanceResult{}
	for res.Transitions < dr.d.MaxTransitions {
		cand, err := dr.d.Stores.Drifts.GetDrift(ctx, workspaceID, driftID)
		if err != nil {
			return res, err
		}
		res.FinalState = cand.State
		if cand.State.IsTerminal() || cand.State.IsHumanGated() {
			return res, nil
		}

		next, stepErr := dr.step(ctx, cand, res)
		if stepErr != nil {
			if done, err := dr.fail(ctx, cand, stepErr); done || err != nil {
				res.FinalState = cand.State
				return res, err
			}
			// Retryable failure re-enqueued; stop this invocation.
			res.FinalState = cand.State
			return res, nil
		}

		dr.transition(ctx, cand, next)
		if err := dr.d.Stores.Drifts.UpdateDrift(ctx, cand); err != nil {
			return res, err
		}
		res.Transitions++
		res.FinalState = next

		if next.IsTerminal() {
			dr.closeOut(ctx, cand)
			return res, nil
		}
		if next.IsHumanGated() {
			return res, nil
		}
	}

	// Budget exhausted mid-pipeline; hand the rest to the next invocation.
	cand, err := dr.d.Stores.Drifts.GetDrift(ctx, workspaceID, driftID)
	if err == nil && !cand.State.IsTerminal() && !cand.State.IsHumanGated() {
		_ = dr.enqueue(cand, 0)
	}
	return res, nil
}

// HandleCallback re-enters the state machine from a signed human action.
func (dr *Driver) HandleCallback(ctx context.Context, token string, actorID string) (*Callback, error) {
	cb, err := VerifyCallback(dr.d.CallbackKey, token)
	if err != nil {
		return nil, err
	}
	cb.ActorID = actorID

	cand, err := dr.d.Stores.Drifts.GetDrift(ctx, cb.WorkspaceID, cb.DriftID)
	if err != nil {
		return nil, err
	}
	if cand.State != drift.StateAwaitingHuman && cand.State != drift.StateSnoozed {
		return nil, fault.New(fault.KindConflict, "drift %s is in state %s, not awaiting review", cand.ID, cand.State)
	}

	var next drift.State
	var proposalStatus drift.ProposalStatus
	switch cb.Action {
	case ActionApprove:
		next, proposalStatus = drift.StateApproved, drift.ProposalApproved
	case ActionReject:
		next, proposalStatus = drift.StateRejected, drift.ProposalRejected
	case ActionEdit:
		next = drift.StateEditRequested
	case ActionSnooze:
		next = drift.StateSnoozed
	}

	if proposalStatus != "" && cb.ProposalID != "" {
		if err := dr.d.Stores.Proposals.UpdateProposalStatus(ctx, cb.ProposalID, proposalStatus); err != nil {
			return nil, err
		}
	}

	dr.transition(ctx, cand, next)
	dr.record(ctx, cand.WorkspaceID, audit.EntryHumanAction, string(cb.Action), cand.ID, map[string]interface{}{
		"actor_id":    actorID,
		"proposal_id": cb.ProposalID,
	})
	if err := dr.d.Stores.Drifts.UpdateDrift(ctx, cand); err != nil {
		return nil, err
	}

	if next.IsTerminal() {
		dr.closeOut(ctx, cand)
		return cb, nil
	}
	if !next.IsHumanGated() {
		if err := dr.enqueue(cand, 0); err != nil {
			return nil, err
		}
	}
	return cb, nil
}

// fail applies the failure taxonomy. done=true means the candidate reached
// a terminal state or was re-enqueued and this invocation should stop.
func (dr *Driver) fail(ctx context.Context, cand *drift.Candidate, stepErr *stepError) (bool, error) {
	cand.LastError = stepErr.err.Error()
	cand.LastErrorCode = string(stepErr.code)

	switch drift.Classify(stepErr.code) {
	case drift.ClassRetryable:
		cand.Attempt++
		if cand.Attempt <= dr.d.MaxRetries {
			if err := dr.d.Stores.Drifts.UpdateDrift(ctx, cand); err != nil {
				return true, err
			}
			if err := dr.enqueue(cand, retryDelay(cand.Attempt)); err != nil {
				return true, err
			}
			return true, nil
		}
		dr.transition(ctx, cand, drift.StateFailed)
	case drift.ClassConfiguration:
		dr.transition(ctx, cand, drift.StateFailedNeedsMapping)
	case drift.ClassConcurrency:
		if !cand.WritebackRetried && cand.State == drift.StateWritebackValidated {
			cand.WritebackRetried = true
			if err := dr.d.Stores.Drifts.UpdateDrift(ctx, cand); err != nil {
				return true, err
			}
			if err := dr.enqueue(cand, retryDelay(1)); err != nil {
				return true, err
			}
			return true, nil
		}
		dr.transition(ctx, cand, drift.StateFailed)
	default: // safety and unknown
		dr.transition(ctx, cand, drift.StateFailed)
	}

	if err := dr.d.Stores.Drifts.UpdateDrift(ctx, cand); err != nil {
		return true, err
	}
	dr.closeOut(ctx, cand)
	return true, nil
}

func (dr *Driver) transition(ctx context.Context, cand *drift.Candidate, next drift.State) {
	prev := cand.State
	cand.State = next
	dr.record(ctx, cand.WorkspaceID, audit.EntryStateTransition, string(next), cand.ID, map[string]interface{}{
		"from": string(prev),
	})
}

// closeOut releases the dedup entry for a terminal candidate so the next
// signal with the same fingerprint opens a fresh drift.
func (dr *Driver) closeOut(ctx context.Context, cand *drift.Candidate) {
	if cand.Fingerprint != "" && dr.d.Index != nil {
		_ = dr.d.Index.Remove(ctx, cand.WorkspaceID, cand.Fingerprint)
	}
}

func (dr *Driver) enqueue(cand *drift.Candidate, delay time.Duration) error {
	if dr.d.Queue == nil {
		return nil
	}
	job := queue.Job{
		Kind:    "drift_step",
		Key:     cand.WorkspaceID + "/" + cand.ID,
		Attempt: cand.Attempt,
	}
	if delay > 0 {
		job.RunAt = dr.d.Clock().Add(delay)
	}
	err := dr.d.Queue.Enqueue(job)
	if err == queue.ErrBusy {
		return fault.Wrap(fault.KindRateLimited, err, "scheduler queue full")
	}
	return err
}

func (dr *Driver) record(ctx context.Context, workspaceID string, typ audit.EntryType, action, resource string, meta map[string]interface{}) {
	if dr.d.Audit == nil {
		return
	}
	_ = dr.d.Audit.Append(ctx, audit.Entry{
		WorkspaceID: workspaceID,
		Type:        typ,
		Action:      action,
		Resource:    resource,
		Metadata:    meta,
	})
}

// retryDelay grows exponentially with jitter.
func retryDelay(attempt int) time.Duration {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 2 * time.Second
	b.RandomizationFactor = 0.3
	d := b.NextBackOff()
	for i := 1; i < attempt; i++ {
		d = b.NextBackOff()
	}
	return d
}

func classifyDrift(sig *signal.Event) drift.Type {
	switch sig.SourceType {
	case contracts.SourceGitHubCodeowner:
		return drift.TypeOwnership
	case contracts.SourceGitHubIaC:
		return drift.TypeEnvironment
	case contracts.SourcePagerDuty, contracts.SourceDatadogAlert, contracts.SourceGrafanaAlert:
		return drift.TypeProcess
	case contracts.SourceSlackCluster:
		return drift.TypeCoverage
	}
	// PR signals split on what the change touches.
	title := sig.Extracted.Title
	if drift.CheckProcessBaseline("", title, sig.Extracted.FilesChanged).MismatchType != drift.MismatchUnknown {
		return drift.TypeProcess
	}
	return drift.TypeInstruction
}

func initialConfidence(sig *signal.Event) float64 {
	switch sig.Severity {
	case signal.SeverityCritical:
		return 0.8
	case signal.SeverityHigh:
		return 0.7
	case signal.SeverityMedium:
		return 0.55
	}
	return 0.4
}
