package artifact

import (
	"context"
	"sort"

	"github.com/vertaai/driftgate/pkg/prcontext"
)

// ExpandedFile is one changed file fetched for context expansion.
type ExpandedFile struct {
	Path      string
	Content   string
	Truncated bool
	Churn     int // additions + deletions
}

// ExpansionReport records what the selection fetched and what it skipped.
// Skipped files are surfaced for transparency; they do not count against the
// file cap.
type ExpansionReport struct {
	Fetched []ExpandedFile
	Skipped []string
	Errors  []string
}

// SelectForExpansion implements the expansion selection: filter the PR's
// changed files by skip patterns, sort descending by churn (stable on path
// for determinism), and take the top maxFiles.
func (f *Fetcher) SelectForExpansion(pr *prcontext.PRContext, maxFiles int) (selected []prcontext.ChangedFile, skipped []string) {
	if maxFiles <= 0 {
		maxFiles = DefaultExpansionFiles
	}
	candidates := make([]prcontext.ChangedFile, 0, len(pr.Files))
	for _, file := range pr.Files {
		if file.Status == prcontext.FileRemoved {
			continue
		}
		if f.Skipped(file.Filename) {
			skipped = append(skipped, file.Filename)
			continue
		}
		candidates = append(candidates, file)
	}
	sort.SliceStable(candidates, func(i, j int) bool {
		ci := candidates[i].Additions + candidates[i].Deletions
		cj := candidates[j].Additions + candidates[j].Deletions
		if ci != cj {
			return ci > cj
		}
		return candidates[i].Filename < candidates[j].Filename
	})
	if len(candidates) > maxFiles {
		candidates = candidates[:maxFiles]
	}
	return candidates, skipped
}

// Expand selects and fetches the top changed files at the PR head. Fetch
// errors are recorded per file; a partial expansion is still usable.
func (f *Fetcher) Expand(ctx context.Context, pr *prcontext.PRContext, maxFiles int) *ExpansionReport {
	selected, skipped := f.SelectForExpansion(pr, maxFiles)
	report := &ExpansionReport{Skipped: skipped}
	for _, file := range selected {
		content, err := f.FetchFile(ctx, pr.HeadSHA, file.Filename)
		if err != nil {
			report.Errors = append(report.Errors, file.Filename+": "+err.Error())
			continue
		}
		report.Fetched = append(report.Fetched, ExpandedFile{
			Path:      file.Filename,
			Content:   content.Content,
			Truncated: content.Size >= f.maxFileBytes,
			Churn:     file.Additions + file.Deletions,
		})
	}
	return report
}
