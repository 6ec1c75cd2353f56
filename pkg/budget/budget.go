// Package budget enforces per-evaluation resource limits: outbound API
// calls and total wall clock. Checks fail closed — once a limit is hit every
// subsequent Reserve returns BudgetExceeded and in-flight work is cancelled
// through the evaluation context.
package budget

import (
	"context"
	"sync/atomic"
	"time"

	"github.com/vertaai/driftgate/pkg/fault"
)

// Limits configures one evaluation's budget. Zero values fall back to the
// defaults below.
type Limits struct {
	MaxTotalMs             int
	PerComparatorTimeoutMs int
	MaxAPICalls            int
}

const (
	DefaultMaxTotalMs             = 30_000
	DefaultPerComparatorTimeoutMs = 5_000
	DefaultMaxAPICalls            = 50
)

func (l Limits) withDefaults() Limits {
	if l.MaxTotalMs <= 0 {
		l.MaxTotalMs = DefaultMaxTotalMs
	}
	if l.PerComparatorTimeoutMs <= 0 {
		l.PerComparatorTimeoutMs = DefaultPerComparatorTimeoutMs
	}
	if l.MaxAPICalls <= 0 {
		l.MaxAPICalls = DefaultMaxAPICalls
	}
	return l
}

// Budget tracks consumption for exactly one evaluation. It is never shared
// across evaluations.
type Budget struct {
	limits   Limits
	started  time.Time
	apiCalls atomic.Int64
	clock    func() time.Time
}

// New creates a budget and starts its wall clock.
func New(limits Limits) *Budget {
	b := &Budget{limits: limits.withDefaults(), clock: time.Now}
	b.started = b.clock()
	return b
}

// WithClock overrides the clock for deterministic testing.
func (b *Budget) WithClock(clock func() time.Time) *Budget {
	b.clock = clock
	b.started = clock()
	return b
}

// Scope returns a child context that is cancelled when MaxTotalMs elapses.
// The evaluator owns the returned cancel and must call it.
func (b *Budget) Scope(ctx context.Context) (context.Context, context.CancelFunc) {
	deadline := b.started.Add(time.Duration(b.limits.MaxTotalMs) * time.Millisecond)
	return context.WithDeadline(ctx, deadline)
}

// ComparatorScope returns a child context bounded by PerComparatorTimeoutMs.
func (b *Budget) ComparatorScope(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(b.limits.PerComparatorTimeoutMs)*time.Millisecond)
}

// ReserveCall consumes one API call from the budget. Fails closed: when the
// cap or the wall clock is exhausted it returns BudgetExceeded and the call
// must not be made.
func (b *Budget) ReserveCall() error {
	if b.Elapsed() > time.Duration(b.limits.MaxTotalMs)*time.Millisecond {
		return fault.New(fault.KindBudgetExceeded, "evaluation wall clock exhausted (%dms)", b.limits.MaxTotalMs)
	}
	if n := b.apiCalls.Add(1); n > int64(b.limits.MaxAPICalls) {
		b.apiCalls.Add(-1)
		return fault.New(fault.KindBudgetExceeded, "api call budget exhausted (%d)", b.limits.MaxAPICalls)
	}
	return nil
}

// Elapsed returns wall-clock time since the budget started.
func (b *Budget) Elapsed() time.Duration { return b.clock().Sub(b.started) }

// CallsUsed returns the number of reserved API calls.
func (b *Budget) CallsUsed() int { return int(b.apiCalls.Load()) }

// Remaining returns how many API calls may still be reserved.
func (b *Budget) Remaining() int {
	r := b.limits.MaxAPICalls - b.CallsUsed()
	if r < 0 {
		return 0
	}
	return r
}

// Limits returns the configured limits after default substitution.
func (b *Budget) Limits() Limits { return b.limits }
