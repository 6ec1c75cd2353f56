package pipeline

import (
	"context"
	"fmt"
	"sort"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/dedup"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/llm"
	"github.com/vertaai/driftgate/pkg/patchval"
	"github.com/vertaai/driftgate/pkg/region"
	"github.com/vertaai/driftgate/pkg/writeback"
)

// stepError pairs a failure with its taxonomy code.
type stepError struct {
	code drift.FailureCode
	err  error
}

func (e *stepError) Error() string { return string(e.code) + ": " + e.err.Error() }

func stepFail(code drift.FailureCode, err error) *stepError {
	return &stepError{code: code, err: err}
}

// codeForFault maps transport-layer fault kinds onto failure codes for
// steps that just propagate adapter errors.
func codeForFault(err error) drift.FailureCode {
	switch fault.KindOf(err) {
	case fault.KindNotFound:
		return drift.CodeNeedsDocMapping
	case fault.KindTimeout:
		return drift.CodeTimeout
	case fault.KindRateLimited:
		return drift.CodeRateLimited
	case fault.KindTransport:
		return drift.CodeServiceUnavailable
	case fault.KindConflict:
		return drift.CodeDocConflict
	case fault.KindUnsafe:
		return drift.CodeUnsafePatch
	}
	return drift.CodeServiceUnavailable
}

// step dispatches on the candidate's current state and returns the next
// state. Human-gated and terminal states never reach here.
func (dr *Driver) step(ctx context.Context, cand *drift.Candidate, res *AdvanceResult) (drift.State, *stepError) {
	switch cand.State {
	case drift.StateIngested:
		return dr.stepEligibility(ctx, cand)
	case drift.StateEligibilityChecked:
		return drift.StateSignalsCorrelated, nil
	case drift.StateSignalsCorrelated:
		return drift.StateDriftClassified, nil
	case drift.StateDriftClassified:
		return dr.stepClassifiedToDocs(ctx, cand, res)
	case drift.StateDocsResolved:
		return dr.stepFetchDoc(ctx, cand)
	case drift.StateDocsFetched:
		return dr.stepExtractContext(ctx, cand)
	case drift.StateDocContextExtracted:
		return dr.stepBaseline(ctx, cand)
	case drift.StateBaselineChecked:
		return drift.StatePatchPlanned, nil
	case drift.StatePatchPlanned, drift.StateEditRequested:
		return dr.stepGenerate(ctx, cand)
	case drift.StatePatchGenerated:
		return dr.stepValidate(ctx, cand)
	case drift.StatePatchValidated:
		return dr.stepResolveOwner(ctx, cand)
	case drift.StateOwnerResolved:
		return dr.stepNotify(ctx, cand)
	case drift.StateSlackSent:
		return drift.StateAwaitingHuman, nil
	case drift.StateApproved:
		return drift.StateWritebackValidated, nil
	case drift.StateWritebackValidated:
		return dr.stepWriteback(ctx, cand)
	case drift.StateWrittenBack:
		return dr.stepComplete(ctx, cand)
	}
	return "", stepFail(drift.CodeOutOfScope, fault.New(fault.KindValidation, "no step for state %s", cand.State))
}

func (dr *Driver) stepEligibility(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	if _, err := dr.d.Stores.Workspaces.GetWorkspace(ctx, cand.WorkspaceID); err != nil {
		return "", stepFail(drift.CodeOutOfScope, err)
	}
	if cand.Service == "" {
		return "", stepFail(drift.CodeNeedsDocMapping,
			fault.New(fault.KindValidation, "signal carries no service, cannot route to a doc"))
	}
	return drift.StateEligibilityChecked, nil
}

// stepClassifiedToDocs resolves the target doc, computes the dedup
// fingerprint, and reserves it. A losing reservation merges into the
// existing candidate and tombstones this one.
func (dr *Driver) stepClassifiedToDocs(ctx context.Context, cand *drift.Candidate, res *AdvanceResult) (drift.State, *stepError) {
	mappings, err := dr.d.Stores.Mappings.ResolveMappings(ctx, cand.WorkspaceID, cand.Service, cand.DriftType)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	var primary *drift.DocMapping
	for _, m := range mappings {
		if !m.Primary {
			continue
		}
		if primary != nil {
			return "", stepFail(drift.CodeMultiplePrimaryDocs,
				fault.New(fault.KindValidation, "service %s has multiple primary docs for %s", cand.Service, cand.DriftType))
		}
		primary = m
	}
	if primary == nil {
		return "", stepFail(drift.CodeNeedsDocMapping,
			fault.New(fault.KindNotFound, "no primary doc mapping for service %s, drift type %s", cand.Service, cand.DriftType))
	}

	cand.DocMappingID = primary.ID
	cand.DocSystem = primary.DocSystem
	cand.DocID = primary.DocID
	cand.OwnerTeam = primary.OwnerTeam
	cand.OwnerSlack = primary.OwnerSlack

	fp, serr := dr.fingerprintFor(ctx, cand)
	if serr != nil {
		return "", serr
	}
	cand.Fingerprint = fp

	if dr.d.Index != nil {
		existingID, inserted, err := dr.d.Index.Reserve(ctx, cand.WorkspaceID, fp, cand.ID)
		if err != nil {
			return "", stepFail(codeForFault(err), err)
		}
		if !inserted {
			return dr.mergeDuplicate(ctx, cand, existingID, res)
		}
	}
	return drift.StateDocsResolved, nil
}

// fingerprintFor hashes the dedup identity of a candidate.
func (dr *Driver) fingerprintFor(ctx context.Context, cand *drift.Candidate) (string, *stepError) {
	sig, err := dr.d.Stores.Signals.GetSignal(ctx, cand.WorkspaceID, cand.SignalEventID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	domains := append([]string(nil), sig.Extracted.Teams...)
	if cand.Service != "" {
		domains = append(domains, cand.Service)
	}
	sort.Strings(domains)

	texts := append([]string{sig.Extracted.Title}, sig.Extracted.FilesChanged...)
	tokens := evidence.Top(evidence.KeyTokens(texts...), evidence.TopKeyTokens)
	sort.Strings(tokens)

	fp, err := evidence.HashRecord(map[string]interface{}{
		"workspaceId": cand.WorkspaceID,
		"service":     cand.Service,
		"driftType":   string(cand.DriftType),
		"domains":     domains,
		"docId":       cand.DocID,
		"keyTokens":   tokens,
	})
	if err != nil {
		return "", stepFail(drift.CodeOutOfScope, err)
	}
	return fp, nil
}

// mergeDuplicate folds this candidate into the open one holding the
// fingerprint. The newcomer terminates as REJECTED; correlation and any
// confidence boost land on the survivor.
func (dr *Driver) mergeDuplicate(ctx context.Context, cand *drift.Candidate, existingID string, res *AdvanceResult) (drift.State, *stepError) {
	existing, err := dr.d.Stores.Drifts.GetDrift(ctx, cand.WorkspaceID, existingID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}

	out := dedup.Decide(existing.Confidence, len(existing.Correlated), cand.Confidence)
	out.ExistingDriftID = existingID
	res.Dedup = &out

	existing.MergeSignal(cand.SignalEventID)
	if out.ShouldNotify {
		existing.Confidence = drift.ClampConfidence(existing.Confidence + out.Boost)
		channel := existing.OwnerSlack
		if channel != "" && dr.d.Notifier != nil {
			msg := fmt.Sprintf("Drift %s gained a corroborating signal (confidence now %.2f).", existing.ID, existing.Confidence)
			_ = dr.d.Notifier.PostNotification(ctx, channel, msg)
		}
	}
	if err := dr.d.Stores.Drifts.UpdateDrift(ctx, existing); err != nil {
		return "", stepFail(codeForFault(err), err)
	}

	// The survivor owns the index entry; clearing the fingerprint keeps
	// this tombstone's close-out from evicting it.
	cand.Fingerprint = ""
	cand.LastErrorCode = "DUPLICATE"
	cand.LastError = "duplicate of drift " + existingID
	return drift.StateRejected, nil
}

func (dr *Driver) stepFetchDoc(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	if _, err := dr.d.Docs.ReadDoc(ctx, cand.DocSystem, cand.DocID); err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	return drift.StateDocsFetched, nil
}

func (dr *Driver) stepExtractContext(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	sig, err := dr.d.Stores.Signals.GetSignal(ctx, cand.WorkspaceID, cand.SignalEventID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	doc, err := dr.d.Docs.ReadDoc(ctx, cand.DocSystem, cand.DocID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}

	bundle, err := dr.d.Builder.Build(ctx, evidence.Request{
		Signal:           sig,
		DriftCandidateID: cand.ID,
		DriftType:        cand.DriftType,
		DocSystem:        cand.DocSystem,
		DocID:            cand.DocID,
		DocContent:       doc.Content,
	})
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	if err := dr.d.Stores.Bundles.PutBundle(ctx, bundle); err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	cand.EvidenceBundleID = bundle.ID
	dr.record(ctx, cand.WorkspaceID, audit.EntryEvidenceCreated, "build", cand.ID, map[string]interface{}{
		"bundle_id":   bundle.ID,
		"impact_band": string(bundle.Impact.Band),
	})
	return drift.StateDocContextExtracted, nil
}

func (dr *Driver) stepBaseline(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	if cand.DriftType != drift.TypeProcess {
		return drift.StateBaselineChecked, nil
	}
	baseline, serr := dr.runBaseline(ctx, cand)
	if serr != nil {
		return "", serr
	}
	cand.Confidence = baseline.Confidence
	return drift.StateBaselineChecked, nil
}

func (dr *Driver) runBaseline(ctx context.Context, cand *drift.Candidate) (*drift.BaselineResult, *stepError) {
	sig, err := dr.d.Stores.Signals.GetSignal(ctx, cand.WorkspaceID, cand.SignalEventID)
	if err != nil {
		return nil, stepFail(codeForFault(err), err)
	}
	doc, err := dr.d.Docs.ReadDoc(ctx, cand.DocSystem, cand.DocID)
	if err != nil {
		return nil, stepFail(codeForFault(err), err)
	}
	res := drift.CheckProcessBaseline(doc.Content, sig.Extracted.Title, sig.Extracted.FilesChanged)
	return &res, nil
}

// styleFor chooses the patch shape from the drift type and the baseline
// mismatch.
func styleFor(driftType drift.Type, baseline *drift.BaselineResult) drift.PatchStyle {
	switch driftType {
	case drift.TypeOwnership:
		return drift.StyleUpdateOwnerBlock
	case drift.TypeCoverage:
		return drift.StyleAddSection
	case drift.TypeEnvironment:
		return drift.StyleUpdateSection
	case drift.TypeProcess:
		if baseline != nil && baseline.MismatchType == drift.MismatchOrderChange {
			return drift.StyleReorderSteps
		}
		return drift.StyleReplaceSteps
	}
	return drift.StyleUpdateSection
}

func (dr *Driver) stepGenerate(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	sig, err := dr.d.Stores.Signals.GetSignal(ctx, cand.WorkspaceID, cand.SignalEventID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	doc, err := dr.d.Docs.ReadDoc(ctx, cand.DocSystem, cand.DocID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}

	var bundle *evidence.Bundle
	if cand.EvidenceBundleID != "" {
		bundle, err = dr.d.Stores.Bundles.GetBundle(ctx, cand.EvidenceBundleID)
		if err != nil {
			return "", stepFail(codeForFault(err), err)
		}
	}
	var baseline *drift.BaselineResult
	if cand.DriftType == drift.TypeProcess {
		baseline, _ = dr.runBaseline(ctx, cand)
	}

	drafter := dr.d.Drafter
	if drafter == nil {
		drafter = llm.NewGuard(llm.NewRuleBased())
	}
	proposal, err := drafter.Draft(ctx, llm.DraftRequest{
		DriftType:   cand.DriftType,
		Style:       styleFor(cand.DriftType, baseline),
		DocContent:  doc.Content,
		DocRevision: doc.Revision.Revision,
		Evidence:    bundle,
		Baseline:    baseline,
		Summary:     sig.Extracted.Title,
	})
	if err != nil {
		if fault.KindOf(err) == fault.KindUnsafe {
			return "", stepFail(drift.CodeSecretsDetected, err)
		}
		return "", stepFail(codeForFault(err), err)
	}
	proposal.DriftCandidateID = cand.ID
	proposal.Confidence = cand.Confidence
	if err := dr.d.Stores.Proposals.PutProposal(ctx, proposal); err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	cand.PatchProposalIDs = append(cand.PatchProposalIDs, proposal.ID)
	return drift.StatePatchGenerated, nil
}

func (dr *Driver) stepValidate(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	proposal, serr := dr.latestProposal(ctx, cand)
	if serr != nil {
		return "", serr
	}
	doc, err := dr.d.Docs.ReadDoc(ctx, cand.DocSystem, cand.DocID)
	if err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	var bundle *evidence.Bundle
	if cand.EvidenceBundleID != "" {
		bundle, err = dr.d.Stores.Bundles.GetBundle(ctx, cand.EvidenceBundleID)
		if err != nil {
			return "", stepFail(codeForFault(err), err)
		}
	}

	result := dr.d.Validators.Run(&patchval.Input{
		Proposal:  proposal,
		DriftType: cand.DriftType,
		Evidence:  bundle,
		Doc: patchval.DocInfo{
			Primary:          true,
			Revision:         doc.Revision.Revision,
			UpdatedAt:        doc.Revision.UpdatedAt,
			HasManagedRegion: hasManagedRegion(doc),
			Content:          doc.Content,
		},
		Config: dr.d.ValidatorCfg,
		Now:    dr.d.Clock(),
	})
	if !result.Valid {
		first := result.Errors()[0]
		code := drift.CodePatchValidationFailed
		switch first.Validator {
		case "NoSecretsIntroduced":
			code = drift.CodeSecretsDetected
		case "MaxChangedLines":
			code = drift.CodePatchTooLarge
		case "ManagedRegionOnly", "OwnerBlockScope":
			code = drift.CodeUnsafePatch
		}
		return "", stepFail(code, fault.New(fault.KindUnsafe, "%s: %s", first.Validator, first.Message))
	}
	if result.NeedsHuman && !proposal.NeedsHuman {
		proposal.NeedsHuman = true
		if err := dr.d.Stores.Proposals.PutProposal(ctx, proposal); err != nil {
			return "", stepFail(codeForFault(err), err)
		}
	}
	return drift.StatePatchValidated, nil
}

func hasManagedRegion(doc *adapters.Doc) bool {
	return doc != nil && region.Has(doc.Content)
}

func (dr *Driver) stepResolveOwner(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	if cand.OwnerSlack == "" {
		ws, err := dr.d.Stores.Workspaces.GetWorkspace(ctx, cand.WorkspaceID)
		if err != nil {
			return "", stepFail(codeForFault(err), err)
		}
		cand.OwnerSlack = ws.SlackChannel
	}
	if cand.OwnerSlack == "" {
		return "", stepFail(drift.CodeNeedsOwnerMapping,
			fault.New(fault.KindNotFound, "no owner channel for service %s", cand.Service))
	}
	return drift.StateOwnerResolved, nil
}

func (dr *Driver) stepNotify(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	proposal, serr := dr.latestProposal(ctx, cand)
	if serr != nil {
		return "", serr
	}
	msg, err := dr.approvalMessage(cand, proposal)
	if err != nil {
		return "", stepFail(drift.CodeServiceUnavailable, err)
	}
	if dr.d.Notifier != nil {
		if err := dr.d.Notifier.PostNotification(ctx, cand.OwnerSlack, msg); err != nil {
			return "", stepFail(codeForFault(err), err)
		}
	}
	if err := dr.d.Stores.Proposals.UpdateProposalStatus(ctx, proposal.ID, drift.ProposalSent); err != nil {
		return "", stepFail(codeForFault(err), err)
	}
	return drift.StateSlackSent, nil
}

func (dr *Driver) approvalMessage(cand *drift.Candidate, proposal *drift.PatchProposal) (string, error) {
	now := dr.d.Clock()
	var tokens [4]string
	for i, action := range []HumanAction{ActionApprove, ActionReject, ActionEdit, ActionSnooze} {
		t, err := SignCallback(dr.d.CallbackKey, cand.WorkspaceID, cand.ID, proposal.ID, action, now)
		if err != nil {
			return "", err
		}
		tokens[i] = t
	}
	return fmt.Sprintf(
		"Suspected %s drift in %s (confidence %.2f).\n%s\n\n```%s```\n\napprove: %s\nreject: %s\nedit: %s\nsnooze: %s",
		cand.DriftType, cand.Service, cand.Confidence, proposal.Summary, proposal.UnifiedDiff,
		tokens[0], tokens[1], tokens[2], tokens[3],
	), nil
}

func (dr *Driver) stepWriteback(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	proposal, serr := dr.latestProposal(ctx, cand)
	if serr != nil {
		return "", serr
	}

	out, err := dr.d.Writeback.Apply(ctx, writeback.Request{
		System:           cand.DocSystem,
		DocID:            cand.DocID,
		PatchedContent:   proposal.PatchedMarkdown,
		ExpectedRevision: proposal.ExpectedDocRev,
	})
	if err == nil {
		dr.record(ctx, cand.WorkspaceID, audit.EntryWritebackOutcome, "applied", cand.ID, map[string]interface{}{
			"proposal_id": proposal.ID,
			"no_op":       out.NoOp,
			"revision":    out.NewRevision,
		})
		return drift.StateWrittenBack, nil
	}

	if out != nil && out.FailureCode == drift.CodeRevisionMismatch {
		// A stale revision over unchanged content is a metadata race: refresh
		// the expected revision so the single concurrency retry can land. A
		// changed doc body is a real conflict and gets no refresh.
		doc, readErr := dr.d.Docs.ReadDoc(ctx, cand.DocSystem, cand.DocID)
		if readErr == nil && doc.Content != proposal.OriginalMarkdown {
			return "", stepFail(drift.CodeDocConflict, err)
		}
		if readErr == nil && !cand.WritebackRetried {
			proposal.ExpectedDocRev = doc.Revision.Revision
			if putErr := dr.d.Stores.Proposals.PutProposal(ctx, proposal); putErr != nil {
				return "", stepFail(codeForFault(putErr), putErr)
			}
		}
		return "", stepFail(drift.CodeRevisionMismatch, err)
	}
	if out != nil && out.FailureCode != "" {
		dr.record(ctx, cand.WorkspaceID, audit.EntryWritebackOutcome, "failed", cand.ID, map[string]interface{}{
			"proposal_id": proposal.ID,
			"code":        string(out.FailureCode),
		})
		return "", stepFail(out.FailureCode, err)
	}
	return "", stepFail(codeForFault(err), err)
}

func (dr *Driver) stepComplete(ctx context.Context, cand *drift.Candidate) (drift.State, *stepError) {
	if len(cand.PatchProposalIDs) > 0 {
		id := cand.PatchProposalIDs[len(cand.PatchProposalIDs)-1]
		if err := dr.d.Stores.Proposals.UpdateProposalStatus(ctx, id, drift.ProposalApplied); err != nil {
			return "", stepFail(codeForFault(err), err)
		}
	}
	return drift.StateCompleted, nil
}

func (dr *Driver) latestProposal(ctx context.Context, cand *drift.Candidate) (*drift.PatchProposal, *stepError) {
	if len(cand.PatchProposalIDs) == 0 {
		return nil, stepFail(drift.CodePatchValidationFailed,
			fault.New(fault.KindValidation, "drift %s has no patch proposal", cand.ID))
	}
	id := cand.PatchProposalIDs[len(cand.PatchProposalIDs)-1]
	proposal, err := dr.d.Stores.Proposals.GetProposal(ctx, id)
	if err != nil {
		return nil, stepFail(codeForFault(err), err)
	}
	return proposal, nil
}
