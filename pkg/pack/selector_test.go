package pack

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func selReq() SelectionRequest {
	return SelectionRequest{
		WorkspaceID: "ws1",
		Repo:        "acme/payments",
		Service:     "payments",
		HeadBranch:  "feature/x",
		PREvent:     "opened",
	}
}

func scoped(id string, priority int, scope Scope) *Pack {
	p := basePack()
	p.Metadata.ID = id
	p.Priority = priority
	p.Scope = scope
	return p
}

func TestSelectOrdersByPriorityThenID(t *testing.T) {
	packs := []*Pack{
		scoped("zeta", 50, Scope{Type: ScopeWorkspace}),
		scoped("alpha", 50, Scope{Type: ScopeWorkspace}),
		scoped("low", 10, Scope{Type: ScopeWorkspace}),
		scoped("high", 90, Scope{Type: ScopeWorkspace}),
	}

	out := Select(packs, selReq())
	require.Len(t, out, 4)
	var ids []string
	for _, p := range out {
		ids = append(ids, p.Metadata.ID)
	}
	require.Equal(t, []string{"high", "alpha", "zeta", "low"}, ids)
}

func TestSelectSkipsInactiveAndForeignWorkspace(t *testing.T) {
	draft := scoped("draft", 50, Scope{Type: ScopeWorkspace})
	draft.Metadata.Status = StatusDraft
	foreign := scoped("foreign", 50, Scope{Type: ScopeWorkspace})
	foreign.WorkspaceID = "ws2"

	out := Select([]*Pack{draft, foreign}, selReq())
	require.Empty(t, out)
}

func TestServiceScope(t *testing.T) {
	p := scoped("svc", 50, Scope{Type: ScopeService, Ref: "payments"})
	require.True(t, Matches(p, selReq()))

	req := selReq()
	req.Service = "billing"
	require.False(t, Matches(p, req))

	req.Service = ""
	require.False(t, Matches(p, req))
}

func TestRepoScopeIncludeExclude(t *testing.T) {
	p := scoped("repos", 50, Scope{
		Type:  ScopeRepo,
		Repos: RepoFilter{Include: []string{"acme/*"}, Exclude: []string{"acme/sandbox"}},
	})
	require.True(t, Matches(p, selReq()))

	req := selReq()
	req.Repo = "acme/sandbox"
	require.False(t, Matches(p, req))

	req.Repo = "other/payments"
	require.False(t, Matches(p, req))
}

func TestBranchFilterExcludeWins(t *testing.T) {
	p := scoped("branches", 50, Scope{
		Type:     ScopeWorkspace,
		Branches: BranchFilter{Include: []string{"feature/*"}, Exclude: []string{"feature/wip-*"}},
	})
	require.True(t, Matches(p, selReq()))

	req := selReq()
	req.HeadBranch = "feature/wip-2"
	require.False(t, Matches(p, req))

	req.HeadBranch = "main"
	require.False(t, Matches(p, req))
}

func TestPREventDefaults(t *testing.T) {
	p := scoped("events", 50, Scope{Type: ScopeWorkspace})
	for _, ev := range []string{"opened", "synchronize", "reopened"} {
		req := selReq()
		req.PREvent = ev
		require.True(t, Matches(p, req), ev)
	}
	req := selReq()
	req.PREvent = "labeled"
	require.False(t, Matches(p, req))

	p.Scope.PREvents = []string{"labeled"}
	require.True(t, Matches(p, req))
}

func TestMergeDefaultsPackWins(t *testing.T) {
	ws := Defaults{MaxTotalMs: 30000, MaxAPICalls: 50, Severity: "medium"}
	pk := Defaults{MaxTotalMs: 10000, Severity: "high"}

	out := MergeDefaults(ws, pk)
	require.Equal(t, 10000, out.MaxTotalMs)
	require.Equal(t, 50, out.MaxAPICalls)
	require.Equal(t, "high", out.Severity)
}
