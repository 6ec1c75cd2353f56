// Package observability provides driftgate-specific instrumentation helpers.
package observability

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Driftgate semantic convention attributes.
var (
	// Workspace attributes
	AttrWorkspaceID = attribute.Key("driftgate.workspace.id")

	// Drift candidate attributes
	AttrDriftID    = attribute.Key("driftgate.drift.id")
	AttrDriftType  = attribute.Key("driftgate.drift.type")
	AttrDriftState = attribute.Key("driftgate.drift.state")
	AttrSourceType = attribute.Key("driftgate.signal.source")

	// Pack evaluation attributes
	AttrPackID       = attribute.Key("driftgate.pack.id")
	AttrPackMode     = attribute.Key("driftgate.pack.mode")
	AttrRuleID       = attribute.Key("driftgate.rule.id")
	AttrComparatorID = attribute.Key("driftgate.comparator.id")
	AttrDecision     = attribute.Key("driftgate.decision")
	AttrEvalMs       = attribute.Key("driftgate.eval.latency_ms")

	// Patch pipeline attributes
	AttrProposalID    = attribute.Key("driftgate.proposal.id")
	AttrDocSystem     = attribute.Key("driftgate.doc.system")
	AttrDocID         = attribute.Key("driftgate.doc.id")
	AttrFailureCode   = attribute.Key("driftgate.failure.code")
	AttrHumanAction   = attribute.Key("driftgate.human.action")
	AttrRetryAttempt  = attribute.Key("driftgate.retry.attempt")
	AttrWritebackMode = attribute.Key("driftgate.writeback.mode")
)

// DriftStep creates attributes for one pipeline transition.
func DriftStep(workspaceID, driftID, driftType, state string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrWorkspaceID.String(workspaceID),
		AttrDriftID.String(driftID),
		AttrDriftType.String(driftType),
		AttrDriftState.String(state),
	}
}

// Ingestion creates attributes for signal intake.
func Ingestion(workspaceID, sourceType string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrWorkspaceID.String(workspaceID),
		AttrSourceType.String(sourceType),
	}
}

// Evaluation creates attributes for one gate run.
func Evaluation(workspaceID, decision string, packs int, latencyMs float64) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrWorkspaceID.String(workspaceID),
		AttrDecision.String(decision),
		attribute.Int("driftgate.packs.selected", packs),
		AttrEvalMs.Float64(latencyMs),
	}
}

// Writeback creates attributes for a doc writeback attempt.
func Writeback(workspaceID, docSystem, docID, proposalID string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrWorkspaceID.String(workspaceID),
		AttrDocSystem.String(docSystem),
		AttrDocID.String(docID),
		AttrProposalID.String(proposalID),
	}
}

// HumanDecision creates attributes for an approval callback.
func HumanDecision(workspaceID, driftID, action string) []attribute.KeyValue {
	return []attribute.KeyValue{
		AttrWorkspaceID.String(workspaceID),
		AttrDriftID.String(driftID),
		AttrHumanAction.String(action),
	}
}

// SpanFromContext extracts the span from context.
func SpanFromContext(ctx context.Context) trace.Span {
	return trace.SpanFromContext(ctx)
}

// AddSpanEvent adds an event to the current span.
func AddSpanEvent(ctx context.Context, name string, attrs ...attribute.KeyValue) {
	span := trace.SpanFromContext(ctx)
	span.AddEvent(name, trace.WithAttributes(attrs...))
}

// SetSpanStatus records an error on the current span when err is non-nil.
func SetSpanStatus(ctx context.Context, err error) {
	span := trace.SpanFromContext(ctx)
	if err != nil {
		span.RecordError(err)
	}
}
