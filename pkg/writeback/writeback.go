// Package writeback applies an approved patch to the target document under
// optimistic concurrency. A revision check brackets the write: mismatch
// before the write is retryable, conflict at the write is surfaced to the
// state machine without automatic retry.
package writeback

import (
	"context"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/region"
)

// Request carries one approved patch apply.
type Request struct {
	System           string
	DocID            string
	PatchedContent   string
	ExpectedRevision string
}

// Outcome reports what the coordinator did.
type Outcome struct {
	Applied     bool              `json:"applied"`
	NoOp        bool              `json:"no_op"`
	NewRevision string            `json:"new_revision,omitempty"`
	FailureCode drift.FailureCode `json:"failure_code,omitempty"`
}

// Coordinator performs writebacks through a DocAdapter.
type Coordinator struct {
	docs adapters.DocAdapter
}

// New returns a coordinator over docs.
func New(docs adapters.DocAdapter) *Coordinator {
	return &Coordinator{docs: docs}
}

// Apply runs the optimistic-concurrency protocol. When the current doc
// already equals the patched content the apply is an idempotent no-op.
// When the doc declares a managed region, the patched content must leave
// everything outside the region untouched relative to the live doc.
func (c *Coordinator) Apply(ctx context.Context, req Request) (*Outcome, error) {
	current, err := c.docs.ReadDoc(ctx, req.System, req.DocID)
	if err != nil {
		return nil, err
	}

	if current.Content == req.PatchedContent {
		return &Outcome{Applied: true, NoOp: true, NewRevision: current.Revision.Revision}, nil
	}

	if current.Revision.Revision != req.ExpectedRevision {
		return &Outcome{FailureCode: drift.CodeRevisionMismatch},
			fault.New(fault.KindConflict, "doc %s revision is %q, expected %q",
				req.DocID, current.Revision.Revision, req.ExpectedRevision)
	}

	if region.Has(current.Content) {
		changed, err := region.OutsideChanged(current.Content, req.PatchedContent)
		if err != nil || changed {
			return &Outcome{FailureCode: drift.CodeUnsafePatch},
				fault.New(fault.KindUnsafe, "patch for doc %s changes content outside the managed region", req.DocID)
		}
	}

	rev, err := c.docs.WriteDoc(ctx, req.System, req.DocID, req.PatchedContent, req.ExpectedRevision)
	if err != nil {
		if fault.KindOf(err) == fault.KindConflict {
			return &Outcome{FailureCode: drift.CodeDocConflict}, err
		}
		return nil, err
	}
	return &Outcome{Applied: true, NewRevision: rev.Revision}, nil
}
