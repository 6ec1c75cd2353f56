// Package adapters declares the narrow contracts for every side-effectful
// collaborator the core talks to: the repository host, the documentation
// system, and the notification channel. Wire-level clients live outside the
// core; the core only ever sees these interfaces, and every call crosses a
// budget check and a cancellable context.
package adapters

import (
	"context"
	"time"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// FileContent is the result of a repository file read.
type FileContent struct {
	Content  string
	Encoding string
	Size     int
}

// HostAdapter is the repository-host surface consumed by the artifact
// fetcher and the check publisher.
type HostAdapter interface {
	// FetchFile reads one file at ref. Missing files surface as a
	// fault.KindNotFound error.
	FetchFile(ctx context.Context, ref, path string) (*FileContent, error)

	// ListReviews returns the reviews on a PR.
	ListReviews(ctx context.Context, owner, repo string, prNumber int) ([]prcontext.Approval, error)

	// ListCheckRuns returns all check runs recorded for a commit.
	ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]prcontext.CheckRun, error)

	// PostCheck publishes the gate's check output on a commit.
	PostCheck(ctx context.Context, owner, repo, sha string, out contracts.CheckOutput) error
}

// DocRevision identifies a document version in the target doc system.
type DocRevision struct {
	Revision  string
	UpdatedAt time.Time
}

// Doc is a fetched target document.
type Doc struct {
	DocID    string
	System   string // confluence, wiki, markdown_repo
	Title    string
	Content  string
	Revision DocRevision
}

// DocAdapter is the documentation-system surface used by the evidence
// builder and the writeback coordinator.
type DocAdapter interface {
	// ReadDoc fetches the current content and revision of a document.
	ReadDoc(ctx context.Context, system, docID string) (*Doc, error)

	// WriteDoc applies new content iff the current revision equals
	// expectedRevision. Mismatches surface as fault.KindConflict errors
	// carrying the current revision in the message.
	WriteDoc(ctx context.Context, system, docID, newContent, expectedRevision string) (*DocRevision, error)
}

// Notifier delivers human-facing notifications.
type Notifier interface {
	PostNotification(ctx context.Context, channel, message string) error
}

// NotifierFunc adapts a function to the Notifier interface.
type NotifierFunc func(ctx context.Context, channel, message string) error

func (f NotifierFunc) PostNotification(ctx context.Context, channel, message string) error {
	return f(ctx, channel, message)
}
