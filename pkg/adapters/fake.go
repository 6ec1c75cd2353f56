package adapters

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/vertaai/driftgate/pkg/contracts"
	"github.com/vertaai/driftgate/pkg/fault"
	"github.com/vertaai/driftgate/pkg/prcontext"
)

// FakeHost is an in-memory HostAdapter for tests and local runs.
type FakeHost struct {
	mu        sync.Mutex
	Files     map[string]string // "ref:path" -> content
	Reviews   []prcontext.Approval
	CheckRuns []prcontext.CheckRun
	Posted    []contracts.CheckOutput
	Calls     int
	FailWith  error // when set, every call returns this error
}

// NewFakeHost returns an empty fake.
func NewFakeHost() *FakeHost {
	return &FakeHost{Files: map[string]string{}}
}

func (f *FakeHost) step(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return fault.Wrap(fault.KindTimeout, err, "fake host")
	}
	f.mu.Lock()
	f.Calls++
	err := f.FailWith
	f.mu.Unlock()
	return err
}

func (f *FakeHost) FetchFile(ctx context.Context, ref, path string) (*FileContent, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	content, ok := f.Files[ref+":"+path]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "file %s@%s", path, ref)
	}
	return &FileContent{Content: content, Encoding: "utf-8", Size: len(content)}, nil
}

func (f *FakeHost) ListReviews(ctx context.Context, owner, repo string, prNumber int) ([]prcontext.Approval, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]prcontext.Approval(nil), f.Reviews...), nil
}

func (f *FakeHost) ListCheckRuns(ctx context.Context, owner, repo, sha string) ([]prcontext.CheckRun, error) {
	if err := f.step(ctx); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]prcontext.CheckRun(nil), f.CheckRuns...), nil
}

func (f *FakeHost) PostCheck(ctx context.Context, owner, repo, sha string, out contracts.CheckOutput) error {
	if err := f.step(ctx); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Posted = append(f.Posted, out)
	return nil
}

// FakeDocs is an in-memory DocAdapter with monotonically increasing numeric
// revisions.
type FakeDocs struct {
	mu   sync.Mutex
	docs map[string]*Doc
	rev  int
}

// NewFakeDocs returns an empty fake doc system.
func NewFakeDocs() *FakeDocs {
	return &FakeDocs{docs: map[string]*Doc{}}
}

// Seed installs a document with revision "1".
func (f *FakeDocs) Seed(system, docID, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rev++
	f.docs[system+":"+docID] = &Doc{
		DocID:    docID,
		System:   system,
		Content:  content,
		Revision: DocRevision{Revision: "1", UpdatedAt: time.Now()},
	}
}

func (f *FakeDocs) ReadDoc(ctx context.Context, system, docID string) (*Doc, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[system+":"+docID]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "doc %s/%s", system, docID)
	}
	copied := *d
	return &copied, nil
}

func (f *FakeDocs) WriteDoc(ctx context.Context, system, docID, newContent, expectedRevision string) (*DocRevision, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	d, ok := f.docs[system+":"+docID]
	if !ok {
		return nil, fault.New(fault.KindNotFound, "doc %s/%s", system, docID)
	}
	if d.Revision.Revision != expectedRevision {
		return nil, fault.New(fault.KindConflict, "revision mismatch: have %s want %s", d.Revision.Revision, expectedRevision)
	}
	if d.Content != newContent {
		d.Content = newContent
		d.Revision = DocRevision{Revision: nextRevision(d.Revision.Revision), UpdatedAt: time.Now()}
	}
	rev := d.Revision
	return &rev, nil
}

func nextRevision(rev string) string {
	n, err := strconv.Atoi(rev)
	if err != nil {
		return rev + ".1"
	}
	return strconv.Itoa(n + 1)
}

// RecordingNotifier captures notifications for assertions.
type RecordingNotifier struct {
	mu       sync.Mutex
	Messages []string
	Channels []string
}

func (r *RecordingNotifier) PostNotification(ctx context.Context, channel, message string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.Channels = append(r.Channels, channel)
	r.Messages = append(r.Messages, message)
	return nil
}
