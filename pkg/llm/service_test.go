package llm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/fault"
)

func TestRemoteDraftSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/draft", r.URL.Path)
		var req remoteRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "process", req.DriftType)
		_ = json.NewEncoder(w).Encode(remoteResponse{
			PatchedMarkdown: req.DocContent + "\n\nUpdated steps.\n",
			Summary:         "Runbook steps refreshed",
			Confidence:      0.72,
		})
	}))
	defer srv.Close()

	p, err := NewRemote(srv.URL).Draft(context.Background(), DraftRequest{
		DriftType:   drift.TypeProcess,
		Style:       drift.StyleReplaceSteps,
		DocContent:  "# Runbook\n\nOld steps.",
		DocRevision: "7",
		Summary:     "deploy changed",
	})
	require.NoError(t, err)
	require.Contains(t, p.PatchedMarkdown, "Updated steps.")
	require.Equal(t, "Runbook steps refreshed", p.Summary)
	require.Equal(t, 0.72, p.Confidence)
	require.Equal(t, "7", p.ExpectedDocRev)
	require.NotEmpty(t, p.UnifiedDiff)
}

func TestRemoteDraftRefusalIsUnsafe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(remoteResponse{Refusal: "content policy"})
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL).Draft(context.Background(), DraftRequest{DocContent: "x"})
	require.Equal(t, fault.KindUnsafe, fault.KindOf(err))
}

func TestRemoteDraftThrottled(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL).Draft(context.Background(), DraftRequest{DocContent: "x"})
	require.Equal(t, fault.KindRateLimited, fault.KindOf(err))
}

func TestRemoteDraftServerErrorIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	_, err := NewRemote(srv.URL).Draft(context.Background(), DraftRequest{DocContent: "x"})
	require.Equal(t, fault.KindTransport, fault.KindOf(err))
}
