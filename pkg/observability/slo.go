// Package observability — SLO definitions and tracker.
//
// Targets cover the operations that matter to remediation latency: ingest,
// advance, evaluate, writeback, notify. Burn rate tracks how fast the error
// budget is being consumed inside the evaluation window.
package observability

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// SLOTarget defines a service level objective for one operation.
type SLOTarget struct {
	SLOID       string        `json:"slo_id"`
	Name        string        `json:"name"`
	Operation   string        `json:"operation"`    // ingest, advance, evaluate, writeback, notify
	LatencyP99  time.Duration `json:"latency_p99"`  // Target p99 latency
	SuccessRate float64       `json:"success_rate"` // Target success rate (0-1)
	WindowHours int           `json:"window_hours"` // Evaluation window
}

// SLOObservation is a single data point.
type SLOObservation struct {
	Operation string        `json:"operation"`
	Latency   time.Duration `json:"latency"`
	Success   bool          `json:"success"`
	Timestamp time.Time     `json:"timestamp"`
}

// SLOStatus reports current compliance.
type SLOStatus struct {
	SLOID            string  `json:"slo_id"`
	Operation        string  `json:"operation"`
	CurrentP99       float64 `json:"current_p99_ms"`
	CurrentSuccess   float64 `json:"current_success_rate"`
	InCompliance     bool    `json:"in_compliance"`
	BurnRate         float64 `json:"burn_rate"`         // >1 means burning faster than budget allows
	ErrorBudgetLeft  float64 `json:"error_budget_left"` // percentage remaining
	ObservationCount int     `json:"observation_count"`
}

// DefaultTargets returns the stock objectives for the remediation pipeline.
func DefaultTargets() []*SLOTarget {
	return []*SLOTarget{
		{SLOID: "slo-ingest", Name: "Signal ingestion", Operation: "ingest", LatencyP99: 500 * time.Millisecond, SuccessRate: 0.999, WindowHours: 24},
		{SLOID: "slo-advance", Name: "Pipeline advance", Operation: "advance", LatencyP99: 5 * time.Second, SuccessRate: 0.99, WindowHours: 24},
		{SLOID: "slo-evaluate", Name: "Gate evaluation", Operation: "evaluate", LatencyP99: 30 * time.Second, SuccessRate: 0.995, WindowHours: 24},
		{SLOID: "slo-writeback", Name: "Doc writeback", Operation: "writeback", LatencyP99: 10 * time.Second, SuccessRate: 0.98, WindowHours: 72},
		{SLOID: "slo-notify", Name: "Approval notification", Operation: "notify", LatencyP99: 3 * time.Second, SuccessRate: 0.99, WindowHours: 24},
	}
}

// SLOTracker monitors SLOs across operations.
type SLOTracker struct {
	mu           sync.Mutex
	targets      map[string]*SLOTarget       // operation → target
	observations map[string][]SLOObservation // operation → observations
	clock        func() time.Time
}

// NewSLOTracker creates a tracker seeded with the given targets.
func NewSLOTracker(targets ...*SLOTarget) *SLOTracker {
	t := &SLOTracker{
		targets:      make(map[string]*SLOTarget),
		observations: make(map[string][]SLOObservation),
		clock:        time.Now,
	}
	for _, target := range targets {
		t.targets[target.Operation] = target
	}
	return t
}

// WithClock overrides clock for testing.
func (t *SLOTracker) WithClock(clock func() time.Time) *SLOTracker {
	t.clock = clock
	return t
}

// SetTarget sets an SLO target for an operation.
func (t *SLOTracker) SetTarget(target *SLOTarget) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.targets[target.Operation] = target
}

// Record records an observation. Observations that have aged out of the
// target window are pruned here, so a long-running process never grows the
// tracker unboundedly.
func (t *SLOTracker) Record(obs SLOObservation) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if obs.Timestamp.IsZero() {
		obs.Timestamp = t.clock()
	}
	kept := t.observations[obs.Operation]
	if target, ok := t.targets[obs.Operation]; ok {
		cutoff := t.clock().Add(-time.Duration(target.WindowHours) * time.Hour)
		n := 0
		for _, o := range kept {
			if o.Timestamp.After(cutoff) {
				kept[n] = o
				n++
			}
		}
		kept = kept[:n]
	}
	t.observations[obs.Operation] = append(kept, obs)
}

// Status computes current SLO status for an operation.
func (t *SLOTracker) Status(operation string) (*SLOStatus, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	target, ok := t.targets[operation]
	if !ok {
		return nil, fmt.Errorf("no SLO target for operation %q", operation)
	}

	now := t.clock()
	windowStart := now.Add(-time.Duration(target.WindowHours) * time.Hour)

	var windowed []SLOObservation
	for _, obs := range t.observations[operation] {
		if obs.Timestamp.After(windowStart) {
			windowed = append(windowed, obs)
		}
	}

	if len(windowed) == 0 {
		return &SLOStatus{
			SLOID:            target.SLOID,
			Operation:        operation,
			InCompliance:     true,
			ErrorBudgetLeft:  100.0,
			ObservationCount: 0,
		}, nil
	}

	successCount := 0
	latencies := make([]float64, len(windowed))
	for i, obs := range windowed {
		if obs.Success {
			successCount++
		}
		latencies[i] = float64(obs.Latency.Milliseconds())
	}
	successRate := float64(successCount) / float64(len(windowed))

	sort.Float64s(latencies)
	p99Index := int(float64(len(latencies)) * 0.99)
	if p99Index >= len(latencies) {
		p99Index = len(latencies) - 1
	}
	p99 := latencies[p99Index]

	latencyOK := p99 <= float64(target.LatencyP99.Milliseconds())
	successOK := successRate >= target.SuccessRate
	inCompliance := latencyOK && successOK

	errorBudget := 1.0 - target.SuccessRate
	errorRate := 1.0 - successRate
	var burnRate float64
	budgetLeft := 100.0
	if errorBudget > 0 {
		burnRate = errorRate / errorBudget
		budgetLeft = 100.0 * (1.0 - burnRate)
	} else if errorRate > 0 {
		// A 100% target has no budget at all.
		burnRate = 1.0
		budgetLeft = 0
	}
	if budgetLeft < 0 {
		budgetLeft = 0
	}

	return &SLOStatus{
		SLOID:            target.SLOID,
		Operation:        operation,
		CurrentP99:       p99,
		CurrentSuccess:   successRate,
		InCompliance:     inCompliance,
		BurnRate:         burnRate,
		ErrorBudgetLeft:  budgetLeft,
		ObservationCount: len(windowed),
	}, nil
}

// Statuses reports every configured target, sorted by operation.
func (t *SLOTracker) Statuses() []*SLOStatus {
	t.mu.Lock()
	ops := make([]string, 0, len(t.targets))
	for op := range t.targets {
		ops = append(ops, op)
	}
	t.mu.Unlock()
	sort.Strings(ops)

	out := make([]*SLOStatus, 0, len(ops))
	for _, op := range ops {
		st, err := t.Status(op)
		if err != nil {
			continue
		}
		out = append(out, st)
	}
	return out
}

// Breaches returns the subset of statuses out of compliance.
func (t *SLOTracker) Breaches() []*SLOStatus {
	var out []*SLOStatus
	for _, st := range t.Statuses() {
		if !st.InCompliance {
			out = append(out, st)
		}
	}
	return out
}
