package api

import (
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/vertaai/driftgate/pkg/budget"
	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/evaluator"
	"github.com/vertaai/driftgate/pkg/pack"
	"github.com/vertaai/driftgate/pkg/pipeline"
	"github.com/vertaai/driftgate/pkg/prcontext"
	"github.com/vertaai/driftgate/pkg/store"
)

// Server exposes the gate and pipeline over HTTP.
type Server struct {
	Driver     *pipeline.Driver
	Engine     *evaluator.Engine
	Packs      store.PackStore
	Workspaces store.WorkspaceStore
	Validator  *pack.Validator

	// WebhookSecret verifies inbound event signatures. Empty disables
	// verification.
	WebhookSecret []byte

	// Limiter throttles per client IP when set.
	Limiter *GlobalRateLimiter
}

// Routes assembles the handler tree with middleware applied.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("POST /v1/events", VerifySignature(s.WebhookSecret, http.HandlerFunc(s.handleEvent)))
	mux.HandleFunc("GET /v1/callbacks", s.handleCallback)
	mux.HandleFunc("POST /v1/callbacks", s.handleCallback)
	mux.HandleFunc("POST /v1/workspaces/{workspace}/packs", s.handlePublishPack)
	mux.HandleFunc("GET /v1/workspaces/{workspace}/packs", s.handleListPacks)
	mux.HandleFunc("POST /v1/evaluate", s.handleEvaluate)
	mux.HandleFunc("GET /healthz", s.handleHealth)

	var h http.Handler = mux
	if s.Limiter != nil {
		h = s.Limiter.Middleware(h)
	}
	return RequestID(h)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_, _ = w.Write([]byte(`{"status":"ok"}`))
}

// handleEvent accepts one signed inbound event and opens a drift candidate.
// Queue backpressure surfaces as 429 with Retry-After so senders slow down.
func (s *Server) handleEvent(w http.ResponseWriter, r *http.Request) {
	var ev contracts.InboundEvent
	if err := json.NewDecoder(r.Body).Decode(&ev); err != nil {
		WriteBadRequest(w, "invalid event body")
		return
	}
	if ev.WorkspaceID == "" || ev.SourceType == "" {
		WriteBadRequest(w, "missing required fields: workspace_id, source_type")
		return
	}
	if !contracts.KnownSourceTypes[ev.SourceType] {
		WriteBadRequest(w, "unknown source type "+string(ev.SourceType))
		return
	}

	res, err := s.Driver.Ingest(r.Context(), ev)
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	_ = json.NewEncoder(w).Encode(res)
}

// handleCallback re-enters the pipeline from a signed notification link.
// GET serves the link in the Slack message; POST serves API clients.
func (s *Server) handleCallback(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	actor := r.URL.Query().Get("actor")
	if token == "" && r.Method == http.MethodPost {
		var body struct {
			Token string `json:"token"`
			Actor string `json:"actor"`
		}
		if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxWebhookBody)).Decode(&body); err == nil {
			token, actor = body.Token, body.Actor
		}
	}
	if token == "" {
		WriteBadRequest(w, "missing callback token")
		return
	}

	cb, err := s.Driver.HandleCallback(r.Context(), token, actor)
	if err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]string{
		"drift_id": cb.DriftID,
		"action":   string(cb.Action),
	})
}

// handlePublishPack validates a pack document and stores it. YAML and JSON
// bodies are both accepted; content type decides.
func (s *Server) handlePublishPack(w http.ResponseWriter, r *http.Request) {
	workspaceID := r.PathValue("workspace")
	if _, err := s.Workspaces.GetWorkspace(r.Context(), workspaceID); err != nil {
		WriteFault(w, err)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBody))
	if err != nil {
		WriteBadRequest(w, "request body unreadable or too large")
		return
	}

	var p *pack.Pack
	var raw []byte
	if strings.Contains(r.Header.Get("Content-Type"), "yaml") {
		p, raw, err = pack.ParseYAML(body)
	} else {
		raw = body
		p, err = pack.ParseJSON(body)
	}
	if err != nil {
		WriteBadRequest(w, err.Error())
		return
	}
	p.WorkspaceID = workspaceID

	result := s.Validator.Validate(p, raw)
	if !result.Valid() {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(result)
		return
	}

	hash, err := pack.Hash(p)
	if err != nil {
		WriteInternal(w, err)
		return
	}
	p.ContentHash = hash

	if err := s.Packs.PutPack(r.Context(), p); err != nil {
		WriteFault(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"pack_id":      p.Metadata.ID,
		"content_hash": hash,
	})
}

func (s *Server) handleListPacks(w http.ResponseWriter, r *http.Request) {
	packs, err := s.Packs.ListPacks(r.Context(), r.PathValue("workspace"))
	if err != nil {
		WriteFault(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(packs)
}

// EvaluateRequest is the on-demand evaluation body: the caller supplies the
// assembled PR context, the selection happens server side.
type EvaluateRequest struct {
	WorkspaceID string               `json:"workspace_id"`
	PREvent     string               `json:"pr_event"`
	Service     string               `json:"service,omitempty"`
	PR          *prcontext.PRContext `json:"pr"`
}

// EvaluateResponse pairs the full result with the rendered check output.
type EvaluateResponse struct {
	Decision contracts.Decision    `json:"decision"`
	Check    contracts.CheckOutput `json:"check"`
	Result   *evaluator.Result     `json:"result"`
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request) {
	var req EvaluateRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, 4*maxWebhookBody)).Decode(&req); err != nil {
		WriteBadRequest(w, "invalid evaluation body")
		return
	}
	if req.WorkspaceID == "" || req.PR == nil {
		WriteBadRequest(w, "missing required fields: workspace_id, pr")
		return
	}
	if req.PREvent == "" {
		req.PREvent = req.PR.EventType
	}

	ws, err := s.Workspaces.GetWorkspace(r.Context(), req.WorkspaceID)
	if err != nil {
		WriteFault(w, err)
		return
	}
	all, err := s.Packs.ListPacks(r.Context(), req.WorkspaceID)
	if err != nil {
		WriteFault(w, err)
		return
	}

	selected := pack.Select(all, pack.SelectionRequest{
		WorkspaceID: req.WorkspaceID,
		Repo:        req.PR.Owner + "/" + req.PR.Repo,
		Service:     req.Service,
		HeadBranch:  req.PR.HeadBranch,
		PREvent:     req.PREvent,
	})

	result := s.Engine.EvaluateAll(r.Context(), evaluator.Request{
		PR:        req.PR,
		Packs:     selected,
		Workspace: ws.Defaults,
		Budget: budget.Limits{
			MaxTotalMs:             ws.Defaults.MaxTotalMs,
			PerComparatorTimeoutMs: ws.Defaults.PerComparatorTimeoutMs,
			MaxAPICalls:            ws.Defaults.MaxAPICalls,
		},
		Agents: ws.Agents,
	})

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(EvaluateResponse{
		Decision: result.ReportedDecision,
		Check:    result.Check,
		Result:   result,
	})
}
