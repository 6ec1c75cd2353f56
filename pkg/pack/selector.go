package pack

import (
	"sort"

	"github.com/gobwas/glob"
)

// SelectionRequest identifies the PR event a pack set is being selected
// for.
type SelectionRequest struct {
	WorkspaceID string
	Repo        string // "owner/repo"
	Service     string // resolved service name, may be empty
	HeadBranch  string
	PREvent     string
}

// Select returns the packs applicable to the request, ordered by
// (priority desc, packId asc). The ordering is deterministic and stable
// across re-evaluations with the same pack hashes.
func Select(packs []*Pack, req SelectionRequest) []*Pack {
	var out []*Pack
	for _, p := range packs {
		if Matches(p, req) {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority > out[j].Priority
		}
		return out[i].Metadata.ID < out[j].Metadata.ID
	})
	return out
}

// Matches reports whether one pack applies to the request: active status,
// same workspace, scope match, branch filter, and PR event membership.
func Matches(p *Pack, req SelectionRequest) bool {
	if p.Metadata.Status != StatusActive {
		return false
	}
	if p.WorkspaceID != req.WorkspaceID {
		return false
	}
	switch p.Scope.Type {
	case ScopeWorkspace:
	case ScopeService:
		if req.Service == "" || p.Scope.Ref != req.Service {
			return false
		}
	case ScopeRepo:
		if !repoIncluded(&p.Scope.Repos, req.Repo) {
			return false
		}
	default:
		return false
	}
	if !branchMatches(&p.Scope.Branches, req.HeadBranch) {
		return false
	}
	return eventMatches(p.Scope.PREventsOrDefault(), req.PREvent)
}

// repoIncluded applies include-minus-exclude. An empty include list means
// every repo.
func repoIncluded(f *RepoFilter, repo string) bool {
	for _, ex := range f.Exclude {
		if matchGlob(ex, repo) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if matchGlob(in, repo) {
			return true
		}
	}
	return false
}

func branchMatches(f *BranchFilter, branch string) bool {
	for _, ex := range f.Exclude {
		if matchGlob(ex, branch) {
			return false
		}
	}
	if len(f.Include) == 0 {
		return true
	}
	for _, in := range f.Include {
		if matchGlob(in, branch) {
			return true
		}
	}
	return false
}

func eventMatches(events []string, event string) bool {
	for _, e := range events {
		if e == event {
			return true
		}
	}
	return false
}

// matchGlob treats invalid patterns as non-matching; the validator rejects
// them before packs activate.
func matchGlob(pattern, s string) bool {
	g, err := glob.Compile(pattern, '/')
	if err != nil {
		return false
	}
	return g.Match(s)
}
