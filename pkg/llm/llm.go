// Package llm defines the patch drafting boundary. Every drafter sits
// behind the redaction guard: no text reaches a drafter, local or remote,
// before secret scanning has replaced matches with the sentinel. The
// shipped drafter is rule-based and deterministic; remote model clients
// plug in behind the same interface.
package llm

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/region"
	"github.com/vertaai/driftgate/pkg/secrets"
)

// DraftRequest carries the inputs a drafter may see. All free text is
// redacted by the guard before a drafter runs.
type DraftRequest struct {
	DriftType   drift.Type
	Style       drift.PatchStyle
	DocContent  string
	DocRevision string
	Evidence    *evidence.Bundle
	Baseline    *drift.BaselineResult
	Summary     string
}

// Drafter produces one patch proposal from a draft request.
type Drafter interface {
	Draft(ctx context.Context, req DraftRequest) (*drift.PatchProposal, error)
}

// Guard wraps a drafter and enforces the redaction invariant.
type Guard struct {
	inner Drafter
}

// NewGuard wraps inner.
func NewGuard(inner Drafter) *Guard { return &Guard{inner: inner} }

// Draft redacts every free-text input, delegates, then re-scans the
// produced patch so a drafter can never emit a secret either.
func (g *Guard) Draft(ctx context.Context, req DraftRequest) (*drift.PatchProposal, error) {
	req.DocContent = secrets.Redact(req.DocContent)
	req.Summary = secrets.Redact(req.Summary)
	if req.Evidence != nil {
		redacted := *req.Evidence
		redacted.Source.Excerpt = secrets.Redact(redacted.Source.Excerpt)
		claims := make([]evidence.DocClaim, len(redacted.Claims))
		for i, c := range redacted.Claims {
			c.Text = secrets.Redact(c.Text)
			claims[i] = c
		}
		redacted.Claims = claims
		req.Evidence = &redacted
	}

	proposal, err := g.inner.Draft(ctx, req)
	if err != nil {
		return nil, err
	}
	if secrets.ContainsSecret(proposal.PatchedMarkdown) || secrets.ContainsSecret(proposal.UnifiedDiff) {
		return nil, fault.New(fault.KindUnsafe, "drafted patch contains a secret")
	}
	proposal.Safety.SecretsRedacted = true
	return proposal, nil
}

// RuleBased drafts patches from templates over the evidence bundle. It
// only writes inside the managed region when one is declared.
type RuleBased struct {
	clock func() time.Time
}

// NewRuleBased returns the deterministic drafter.
func NewRuleBased() *RuleBased { return &RuleBased{clock: time.Now} }

// WithClock overrides the clock for deterministic testing.
func (r *RuleBased) WithClock(clock func() time.Time) *RuleBased {
	r.clock = clock
	return r
}

func (r *RuleBased) Draft(ctx context.Context, req DraftRequest) (*drift.PatchProposal, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	note := r.renderNote(req)

	patched := ""
	if region.Has(req.DocContent) {
		inner, err := region.Extract(req.DocContent)
		if err != nil {
			return nil, err
		}
		updated := strings.TrimRight(inner, "\n") + "\n\n" + note + "\n"
		patched, err = region.Splice(req.DocContent, updated)
		if err != nil {
			return nil, err
		}
	} else {
		patched = strings.TrimRight(req.DocContent, "\n") + "\n\n" + note + "\n"
	}

	confidence := 0.5
	if req.Baseline != nil {
		confidence = req.Baseline.Confidence
	}

	return &drift.PatchProposal{
		ID:               uuid.New().String(),
		Style:            req.Style,
		OriginalMarkdown: req.DocContent,
		PatchedMarkdown:  patched,
		UnifiedDiff:      unifiedDiff(req.DocContent, patched),
		Summary:          req.Summary,
		Confidence:       drift.ClampConfidence(confidence),
		ExpectedDocRev:   req.DocRevision,
		Status:           drift.ProposalProposed,
		CreatedAt:        r.clock().UTC(),
	}, nil
}

func (r *RuleBased) renderNote(req DraftRequest) string {
	var b strings.Builder
	fmt.Fprintf(&b, "> **Drift notice** (%s): %s", req.DriftType, req.Summary)
	if req.Evidence != nil && req.Evidence.Source.Repo != "" {
		fmt.Fprintf(&b, "\n> Source: %s", req.Evidence.Source.Repo)
		if req.Evidence.Source.PRNumber > 0 {
			fmt.Fprintf(&b, "#%d", req.Evidence.Source.PRNumber)
		}
	}
	if req.Baseline != nil && req.Baseline.MismatchType != drift.MismatchUnknown {
		fmt.Fprintf(&b, "\n> Suspected change: %s", req.Baseline.MismatchType)
	}
	return b.String()
}

// unifiedDiff produces a minimal line diff: common prefix and suffix are
// elided, the differing middle is emitted as removals then additions. Doc
// patches are small and local; a full LCS diff buys nothing here.
func unifiedDiff(original, patched string) string {
	a := strings.Split(original, "\n")
	b := strings.Split(patched, "\n")

	pre := 0
	for pre < len(a) && pre < len(b) && a[pre] == b[pre] {
		pre++
	}
	post := 0
	for post < len(a)-pre && post < len(b)-pre && a[len(a)-1-post] == b[len(b)-1-post] {
		post++
	}

	var out strings.Builder
	out.WriteString("--- a/doc.md\n+++ b/doc.md\n")
	fmt.Fprintf(&out, "@@ -%d,%d +%d,%d @@\n", pre+1, len(a)-pre-post, pre+1, len(b)-pre-post)
	for _, line := range a[pre : len(a)-post] {
		out.WriteString("-" + line + "\n")
	}
	for _, line := range b[pre : len(b)-post] {
		out.WriteString("+" + line + "\n")
	}
	return out.String()
}
