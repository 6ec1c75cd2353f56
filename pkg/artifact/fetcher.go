// Package artifact executes all outbound reads to the repository host under
// a per-evaluation budget. Every call reserves budget first and carries the
// evaluation's cancellation context; once the budget is exhausted the
// fetcher fails fast instead of queueing more work.
package artifact

import (
	"context"
	"strings"

	"github.com/gobwas/glob"
	"golang.org/x/time/rate"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/budget"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// DefaultMaxFileBytes caps a single file read during expansion. Policy packs
// override it via pack defaults.
const DefaultMaxFileBytes = 10 * 1024

// DefaultExpansionFiles is the top-N changed files fetched for expansion.
const DefaultExpansionFiles = 3

// defaultSkipGlobs rejects binary, lock, minified, and build-artifact files
// from expansion and comparator file reads.
var defaultSkipGlobs = []string{
	"**.png", "**.jpg", "**.jpeg", "**.gif", "**.ico", "**.pdf",
	"**.zip", "**.tar", "**.gz", "**.jar", "**.so", "**.dylib", "**.exe",
	"**.min.js", "**.min.css", "**.map",
	"**package-lock.json", "**yarn.lock", "**pnpm-lock.yaml", "**go.sum",
	"**Cargo.lock", "**poetry.lock", "**Gemfile.lock", "**composer.lock",
	"**/dist/**", "**/build/**", "**/node_modules/**", "**/vendor/**",
	"**.snap",
}

// Fetcher wraps the host adapter with budget enforcement, skip patterns,
// and byte caps.
type Fetcher struct {
	host         adapters.HostAdapter
	budget       *budget.Budget
	limiter      *rate.Limiter
	skip         []glob.Glob
	maxFileBytes int
}

// Option configures a Fetcher.
type Option func(*Fetcher)

// WithMaxFileBytes overrides the per-file byte cap.
func WithMaxFileBytes(n int) Option {
	return func(f *Fetcher) {
		if n > 0 {
			f.maxFileBytes = n
		}
	}
}

// WithSkipPatterns replaces the default skip glob set. Invalid globs are
// dropped; the pack validator catches them earlier for pack-provided sets.
func WithSkipPatterns(patterns []string) Option {
	return func(f *Fetcher) {
		f.skip = compileGlobs(patterns)
	}
}

// WithRateLimit bounds host calls per second across this fetcher.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(f *Fetcher) {
		f.limiter = rate.NewLimiter(rate.Limit(perSecond), burst)
	}
}

// New builds a fetcher bound to one evaluation budget.
func New(host adapters.HostAdapter, b *budget.Budget, opts ...Option) *Fetcher {
	f := &Fetcher{
		host:         host,
		budget:       b,
		limiter:      rate.NewLimiter(rate.Limit(20), 20),
		skip:         compileGlobs(defaultSkipGlobs),
		maxFileBytes: DefaultMaxFileBytes,
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

func compileGlobs(patterns []string) []glob.Glob {
	out := make([]glob.Glob, 0, len(patterns))
	for _, p := range patterns {
		g, err := glob.Compile(p, '/')
		if err != nil {
			continue
		}
		out = append(out, g)
	}
	return out
}

// Skipped reports whether path matches the skip pattern set.
func (f *Fetcher) Skipped(path string) bool {
	for _, g := range f.skip {
		if g.Match(path) {
			return true
		}
	}
	return false
}

func (f *Fetcher) reserve(ctx context.Context) error {
	if err := f.budget.ReserveCall(); err != nil {
		return err
	}
	if err := f.limiter.Wait(ctx); err != nil {
		return fault.Wrap(fault.KindTimeout, err, "rate limiter wait")
	}
	return nil
}

// FetchFile reads one file, enforcing skip patterns and the byte cap.
// Oversized content is truncated and flagged rather than dropped.
func (f *Fetcher) FetchFile(ctx context.Context, ref, path string) (*adapters.FileContent, error) {
	if f.Skipped(path) {
		return nil, fault.New(fault.KindValidation, "path %q matches skip patterns", path)
	}
	if err := f.reserve(ctx); err != nil {
		return nil, err
	}
	content, err := f.host.FetchFile(ctx, ref, path)
	if err != nil {
		return nil, classify(err, "fetch %s", path)
	}
	if len(content.Content) > f.maxFileBytes {
		content.Content = content.Content[:f.maxFileBytes]
		content.Size = f.maxFileBytes
	}
	return content, nil
}

// ListReviews fetches PR reviews under budget.
func (f *Fetcher) ListReviews(ctx context.Context, owner, repo string, prNumber int) ([]prcontext.Approval, error) {
	if err := f.reserve(ctx); err != nil {
		return nil, err
	}
	reviews, err := f.host.ListReviews(ctx, owner, repo, prNumber)
	if err != nil {
		return nil, classify(err, "list reviews %s/%s#%d", owner, repo, prNumber)
	}
	return reviews, nil
}

// ListCheckRuns fetches check runs for a commit under budget.
func (f *Fetcher) ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]prcontext.CheckRun, error) {
	if err := f.reserve(ctx); err != nil {
		return nil, err
	}
	runs, err := f.host.ListCheckRuns(ctx, owner, repo, sha)
	if err != nil {
		return nil, classify(err, "list check runs %s", sha)
	}
	return runs, nil
}

func classify(err error, format string, args ...interface{}) error {
	if fault.KindOf(err) != fault.KindUnknown {
		return err
	}
	msg := strings.ToLower(err.Error())
	kind := fault.KindTransport
	switch {
	case strings.Contains(msg, "not found") || strings.Contains(msg, "404"):
		kind = fault.KindNotFound
	case strings.Contains(msg, "rate limit") || strings.Contains(msg, "429"):
		kind = fault.KindRateLimited
	case strings.Contains(msg, "unauthorized") || strings.Contains(msg, "403") || strings.Contains(msg, "401"):
		kind = fault.KindUnauthorized
	case strings.Contains(msg, "deadline") || strings.Contains(msg, "timeout"):
		kind = fault.KindTimeout
	}
	return fault.Wrap(kind, err, format, args...)
}
