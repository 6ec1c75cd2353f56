package evidence

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/signal"
)

// Builder assembles evidence bundles. Safe for concurrent use.
type Builder struct {
	maxExcerptChars int
	maxClaims       int
	claimWindow     int
	clock           func() time.Time
}

// Option configures a Builder.
type Option func(*Builder)

// WithMaxExcerptChars bounds the persisted source excerpt.
func WithMaxExcerptChars(n int) Option { return func(b *Builder) { b.maxExcerptChars = n } }

// WithMaxClaims caps extracted claims per bundle.
func WithMaxClaims(n int) Option { return func(b *Builder) { b.maxClaims = n } }

// WithClaimWindow sets the ± line context around a claim match.
func WithClaimWindow(n int) Option { return func(b *Builder) { b.claimWindow = n } }

// WithClock overrides the clock for deterministic testing.
func WithClock(clock func() time.Time) Option { return func(b *Builder) { b.clock = clock } }

// NewBuilder returns a builder with the default bounds.
func NewBuilder(opts ...Option) *Builder {
	b := &Builder{
		maxExcerptChars: DefaultMaxExcerptChars,
		maxClaims:       DefaultMaxClaims,
		claimWindow:     DefaultClaimWindow,
		clock:           time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Request carries everything a bundle is derived from. DocContent may be
// empty when the target doc has not been fetched yet; claims are then
// empty and only the broad fingerprint is meaningful for dedup.
type Request struct {
	Signal           *signal.Event
	DriftCandidateID string
	DriftType        drift.Type
	DocSystem        string
	DocID            string
	DocContent       string
}

// Build produces an immutable bundle. Everything except the id and
// timestamp is a pure function of the request.
func (b *Builder) Build(ctx context.Context, req Request) (*Bundle, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	source := buildSource(req.Signal, b.maxExcerptChars)
	claims := ExtractClaims(req.DocSystem, req.DocContent, req.DriftType, b.claimWindow, b.maxClaims)
	impact := AssessImpact(req.Signal)

	claimTexts := make([]string, 0, len(claims)+1)
	claimTexts = append(claimTexts, source.Excerpt)
	for _, c := range claims {
		claimTexts = append(claimTexts, c.Text)
	}

	bundle := &Bundle{
		ID:               uuid.New().String(),
		WorkspaceID:      req.Signal.WorkspaceID,
		DriftCandidateID: req.DriftCandidateID,
		DriftType:        req.DriftType,
		DocSystem:        req.DocSystem,
		DocID:            req.DocID,
		Source:           source,
		Claims:           claims,
		Impact:           impact,
		KeyTokens:        KeyTokens(claimTexts...),
		CreatedAt:        b.clock().UTC(),
	}
	fp, err := ComputeFingerprints(bundle)
	if err != nil {
		return nil, err
	}
	bundle.Fingerprints = fp
	return bundle, nil
}
