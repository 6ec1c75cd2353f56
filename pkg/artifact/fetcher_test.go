package artifact

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/budget"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

func TestFetchFileSkipPatterns(t *testing.T) {
	host := adapters.NewFakeHost()
	host.Files["sha:image.png"] = "binary"
	f := New(host, budget.New(budget.Limits{}))

	_, err := f.FetchFile(context.Background(), "sha", "image.png")
	require.Equal(t, fault.KindValidation, fault.KindOf(err))
	require.Equal(t, 0, host.Calls, "skipped paths must not reach the host")

	require.True(t, f.Skipped("web/app.min.js"))
	require.True(t, f.Skipped("services/api/package-lock.json"))
	require.True(t, f.Skipped("ui/node_modules/left-pad/index.js"))
	require.False(t, f.Skipped("docs/runbook.md"))
}

func TestFetchFileByteCap(t *testing.T) {
	host := adapters.NewFakeHost()
	host.Files["sha:big.md"] = strings.Repeat("x", 100)
	f := New(host, budget.New(budget.Limits{}), WithMaxFileBytes(10))

	content, err := f.FetchFile(context.Background(), "sha", "big.md")
	require.NoError(t, err)
	require.Len(t, content.Content, 10)
	require.Equal(t, 10, content.Size)
}

func TestFetchFileBudgetExhaustion(t *testing.T) {
	host := adapters.NewFakeHost()
	host.Files["sha:a.md"] = "a"
	f := New(host, budget.New(budget.Limits{MaxAPICalls: 1}))

	_, err := f.FetchFile(context.Background(), "sha", "a.md")
	require.NoError(t, err)

	_, err = f.FetchFile(context.Background(), "sha", "a.md")
	require.Equal(t, fault.KindBudgetExceeded, fault.KindOf(err))
	require.Equal(t, 1, host.Calls)
}

func TestFetchFileNotFound(t *testing.T) {
	f := New(adapters.NewFakeHost(), budget.New(budget.Limits{}))
	_, err := f.FetchFile(context.Background(), "sha", "missing.md")
	require.Equal(t, fault.KindNotFound, fault.KindOf(err))
}

func TestSelectForExpansion(t *testing.T) {
	f := New(adapters.NewFakeHost(), budget.New(budget.Limits{}))
	pr := &prcontext.PRContext{Files: []prcontext.ChangedFile{
		{Filename: "small.go", Additions: 1},
		{Filename: "big.go", Additions: 90, Deletions: 10},
		{Filename: "mid-b.go", Additions: 50},
		{Filename: "mid-a.go", Additions: 50},
		{Filename: "gone.go", Status: prcontext.FileRemoved, Additions: 500},
		{Filename: "assets/logo.png", Additions: 400},
	}}

	selected, skipped := f.SelectForExpansion(pr, 3)
	require.Equal(t, []string{"assets/logo.png"}, skipped)
	var names []string
	for _, file := range selected {
		names = append(names, file.Filename)
	}
	// Churn descending, path ascending on ties; removed files never expand.
	require.Equal(t, []string{"big.go", "mid-a.go", "mid-b.go"}, names)
}

func TestExpandPartialFailure(t *testing.T) {
	host := adapters.NewFakeHost()
	host.Files["head:big.go"] = "package big"
	f := New(host, budget.New(budget.Limits{}))
	pr := &prcontext.PRContext{
		HeadSHA: "head",
		Files: []prcontext.ChangedFile{
			{Filename: "big.go", Additions: 90},
			{Filename: "absent.go", Additions: 10},
		},
	}

	report := f.Expand(context.Background(), pr, 2)
	require.Len(t, report.Fetched, 1)
	require.Equal(t, "big.go", report.Fetched[0].Path)
	require.Equal(t, 90, report.Fetched[0].Churn)
	require.Len(t, report.Errors, 1)
	require.Contains(t, report.Errors[0], "absent.go")
}
