package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/fault"
)

// Remote drafts patches through an external model service. It speaks a
// small JSON contract so the service side can swap models freely. Always
// wrap a Remote in a Guard; the service never sees unredacted text.
type Remote struct {
	baseURL string
	client  *http.Client
	clock   func() time.Time
}

// NewRemote returns a drafter backed by the model service at baseURL.
func NewRemote(baseURL string) *Remote {
	return &Remote{
		baseURL: baseURL,
		client:  &http.Client{Timeout: 30 * time.Second},
		clock:   time.Now,
	}
}

type remoteRequest struct {
	DriftType   string  `json:"drift_type"`
	Style       string  `json:"style"`
	DocContent  string  `json:"doc_content"`
	Summary     string  `json:"summary"`
	Evidence    any     `json:"evidence,omitempty"`
	Confidence  float64 `json:"confidence"`
	ManagedOnly bool    `json:"managed_only"`
}

type remoteResponse struct {
	PatchedMarkdown string  `json:"patched_markdown"`
	Summary         string  `json:"summary"`
	Confidence      float64 `json:"confidence"`
	Refusal         string  `json:"refusal,omitempty"`
}

func (s *Remote) Draft(ctx context.Context, req DraftRequest) (*drift.PatchProposal, error) {
	confidence := 0.5
	if req.Baseline != nil {
		confidence = req.Baseline.Confidence
	}
	body, err := json.Marshal(remoteRequest{
		DriftType:  string(req.DriftType),
		Style:      string(req.Style),
		DocContent: req.DocContent,
		Summary:    req.Summary,
		Evidence:   req.Evidence,
		Confidence: confidence,
	})
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "encode draft request")
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, s.baseURL+"/v1/draft", bytes.NewReader(body))
	if err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "build draft request")
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fault.Wrap(fault.KindTimeout, err, "draft service timed out")
		}
		return nil, fault.Wrap(fault.KindTransport, err, "draft service unreachable")
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fault.New(fault.KindRateLimited, "draft service throttled")
	case resp.StatusCode >= 500:
		return nil, fault.New(fault.KindTransport, "draft service returned %d", resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, fault.New(fault.KindValidation, "draft service rejected request: %d", resp.StatusCode)
	}

	var out remoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "decode draft response")
	}
	if out.Refusal != "" {
		return nil, fault.New(fault.KindUnsafe, "draft refused: %s", out.Refusal)
	}
	if out.PatchedMarkdown == "" {
		return nil, fault.New(fault.KindTransport, "draft response missing patched content")
	}

	summary := req.Summary
	if out.Summary != "" {
		summary = out.Summary
	}
	if out.Confidence > 0 {
		confidence = out.Confidence
	}

	return &drift.PatchProposal{
		ID:               uuid.New().String(),
		Style:            req.Style,
		OriginalMarkdown: req.DocContent,
		PatchedMarkdown:  out.PatchedMarkdown,
		UnifiedDiff:      unifiedDiff(req.DocContent, out.PatchedMarkdown),
		Summary:          summary,
		Confidence:       drift.ClampConfidence(confidence),
		ExpectedDocRev:   req.DocRevision,
		Status:           drift.ProposalProposed,
		CreatedAt:        s.clock().UTC(),
	}, nil
}

var _ Drafter = (*Remote)(nil)

// String identifies the backend for logs.
func (s *Remote) String() string {
	return fmt.Sprintf("llm.Remote(%s)", s.baseURL)
}
