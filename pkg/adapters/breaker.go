package adapters

import (
	"context"

	"github.com/sony/gobreaker"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// BreakerHost wraps a HostAdapter with a circuit breaker so a failing host
// sheds load quickly instead of burning every evaluation's budget on
// timeouts. Open-circuit rejections surface as retryable Transport errors.
type BreakerHost struct {
	inner HostAdapter
	cb    *gobreaker.CircuitBreaker
}

// NewBreakerHost wraps inner with a breaker named for metrics.
func NewBreakerHost(inner HostAdapter) *BreakerHost {
	return &BreakerHost{
		inner: inner,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name: "host-adapter",
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= 5
			},
			// NotFound is a valid answer, not a host failure.
			IsSuccessful: func(err error) bool {
				return err == nil || fault.KindOf(err) == fault.KindNotFound
			},
		}),
	}
}

func (b *BreakerHost) execute(fn func() (interface{}, error)) (interface{}, error) {
	out, err := b.cb.Execute(fn)
	if err == gobreaker.ErrOpenState || err == gobreaker.ErrTooManyRequests {
		return nil, fault.Wrap(fault.KindTransport, err, "host adapter circuit open")
	}
	return out, err
}

func (b *BreakerHost) FetchFile(ctx context.Context, ref, path string) (*FileContent, error) {
	out, err := b.execute(func() (interface{}, error) {
		return b.inner.FetchFile(ctx, ref, path)
	})
	if err != nil {
		return nil, err
	}
	return out.(*FileContent), nil
}

func (b *BreakerHost) ListReviews(ctx context.Context, owner, repo string, prNumber int) ([]prcontext.Approval, error) {
	out, err := b.execute(func() (interface{}, error) {
		return b.inner.ListReviews(ctx, owner, repo, prNumber)
	})
	if err != nil {
		return nil, err
	}
	return out.([]prcontext.Approval), nil
}

func (b *BreakerHost) ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]prcontext.CheckRun, error) {
	out, err := b.execute(func() (interface{}, error) {
		return b.inner.ListCheckRuns(ctx, owner, repo, sha)
	})
	if err != nil {
		return nil, err
	}
	return out.([]prcontext.CheckRun), nil
}

func (b *BreakerHost) PostCheck(ctx context.Context, owner, repo, sha string, checkOut contracts.CheckOutput) error {
	_, err := b.execute(func() (interface{}, error) {
		return nil, b.inner.PostCheck(ctx, owner, repo, sha, checkOut)
	})
	return err
}
