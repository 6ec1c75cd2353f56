// Package prcontext defines the read-only pull-request context consumed by
// comparators and fact resolvers. The gate never mutates it; every field is
// populated once by the host adapter before evaluation starts.
package prcontext

import (
	"strings"
	"time"
)

// FileStatus mirrors the host's changed-file status values.
type FileStatus string

const (
	FileAdded    FileStatus = "added"
	FileModified FileStatus = "modified"
	FileRemoved  FileStatus = "removed"
	FileRenamed  FileStatus = "renamed"
)

// ChangedFile is one entry of the PR's changed-file list. Patch holds the
// unified-diff hunk text for the file, possibly truncated by the host.
type ChangedFile struct {
	Filename  string     `json:"filename"`
	Status    FileStatus `json:"status"`
	Additions int        `json:"additions"`
	Deletions int        `json:"deletions"`
	Patch     string     `json:"patch,omitempty"`
}

// Approval is one review on the PR.
type Approval struct {
	Login string `json:"login"`
	State string `json:"state"` // APPROVED, CHANGES_REQUESTED, COMMENTED
}

// CheckRun is a completed or in-flight check on the head commit.
type CheckRun struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Conclusion  string    `json:"conclusion"` // success, failure, neutral, action_required, ""
	CompletedAt time.Time `json:"completed_at"`
}

// Commit identifies one commit in the PR.
type Commit struct {
	SHA     string `json:"sha"`
	Message string `json:"message"`
	Author  string `json:"author"`
}

// PRContext is the full read-only snapshot of a pull request at evaluation
// time. It matches the inbound shape of the host adapter; comparators treat
// it as immutable.
type PRContext struct {
	WorkspaceID string `json:"workspace_id"`
	Owner       string `json:"owner"`
	Repo        string `json:"repo"`
	PRNumber    int    `json:"pr_number"`

	HeadSHA    string `json:"head_sha"`
	BaseSHA    string `json:"base_sha"`
	BaseBranch string `json:"base_branch"`
	HeadBranch string `json:"head_branch"`

	Author string   `json:"author"`
	Title  string   `json:"title"`
	Body   string   `json:"body"`
	Labels []string `json:"labels,omitempty"`

	Commits   []Commit `json:"commits,omitempty"`
	Additions int      `json:"additions"`
	Deletions int      `json:"deletions"`

	Files     []ChangedFile `json:"files"`
	Approvals []Approval    `json:"approvals,omitempty"`
	CheckRuns []CheckRun    `json:"check_runs,omitempty"`

	// EventType is the PR event that triggered this evaluation
	// (opened, synchronize, reopened, labeled, ...).
	EventType string `json:"event_type"`
}

// ApprovedCount returns the number of APPROVED reviews, one per login.
func (p *PRContext) ApprovedCount() int {
	seen := map[string]bool{}
	for _, a := range p.Approvals {
		if a.State == "APPROVED" && !seen[a.Login] {
			seen[a.Login] = true
		}
	}
	return len(seen)
}

// ChangedPaths returns the filenames of all changed files in declaration
// order.
func (p *PRContext) ChangedPaths() []string {
	paths := make([]string, 0, len(p.Files))
	for _, f := range p.Files {
		paths = append(paths, f.Filename)
	}
	return paths
}

// AddedLines returns every added line (without the leading '+') across all
// file patches, in file order. Used by secret scanning and size checks.
func (p *PRContext) AddedLines() []string {
	var lines []string
	for _, f := range p.Files {
		lines = append(lines, addedLines(f.Patch)...)
	}
	return lines
}

func addedLines(patch string) []string {
	if patch == "" {
		return nil
	}
	var out []string
	for _, line := range strings.Split(patch, "\n") {
		if strings.HasPrefix(line, "+") && !strings.HasPrefix(line, "+++") {
			out = append(out, line[1:])
		}
	}
	return out
}

// LatestCheckRun returns the most recently completed check run with the
// given name, or nil when none exists. Gate facts use this for cross-gate
// dependencies on the same head commit.
func (p *PRContext) LatestCheckRun(name string) *CheckRun {
	var latest *CheckRun
	for i := range p.CheckRuns {
		cr := &p.CheckRuns[i]
		if cr.Name != name || cr.Conclusion == "" {
			continue
		}
		if latest == nil || cr.CompletedAt.After(latest.CompletedAt) {
			latest = cr
		}
	}
	return latest
}
