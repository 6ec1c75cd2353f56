package prcontext

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestApprovedCountDistinctLogins(t *testing.T) {
	pr := &PRContext{Approvals: []Approval{
		{Login: "alice", State: "APPROVED"},
		{Login: "alice", State: "APPROVED"},
		{Login: "bob", State: "CHANGES_REQUESTED"},
		{Login: "carol", State: "APPROVED"},
		{Login: "dave", State: "COMMENTED"},
	}}
	require.Equal(t, 2, pr.ApprovedCount())
}

func TestAddedLinesStripsDiffMarkers(t *testing.T) {
	pr := &PRContext{Files: []ChangedFile{
		{Filename: "a.go", Patch: "@@ -1,3 +1,4 @@\n context\n+added one\n-removed\n+++ b/a.go\n+added two\n"},
		{Filename: "b.go"},
	}}
	require.Equal(t, []string{"added one", "added two"}, pr.AddedLines())
}

func TestChangedPathsOrder(t *testing.T) {
	pr := &PRContext{Files: []ChangedFile{
		{Filename: "z.go"}, {Filename: "a.go"},
	}}
	require.Equal(t, []string{"z.go", "a.go"}, pr.ChangedPaths())
}

func TestLatestCheckRun(t *testing.T) {
	base := time.Unix(1700000000, 0)
	pr := &PRContext{CheckRuns: []CheckRun{
		{ID: "1", Name: "unit", Conclusion: "failure", CompletedAt: base},
		{ID: "2", Name: "unit", Conclusion: "success", CompletedAt: base.Add(time.Minute)},
		{ID: "3", Name: "unit", Conclusion: "", CompletedAt: base.Add(time.Hour)}, // still running
		{ID: "4", Name: "lint", Conclusion: "success", CompletedAt: base},
	}}

	latest := pr.LatestCheckRun("unit")
	require.NotNil(t, latest)
	require.Equal(t, "2", latest.ID)

	require.Nil(t, pr.LatestCheckRun("e2e"))
}
