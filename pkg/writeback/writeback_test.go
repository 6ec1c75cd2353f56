package writeback

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/vertaai/driftgate/pkg/adapters"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/region"
)

func seedDocs(t *testing.T, content string) *adapters.FakeDocs {
	t.Helper()
	docs := adapters.NewFakeDocs()
	docs.Seed("confluence", "doc-1", content)
	return docs
}

func TestApplyHappyPath(t *testing.T) {
	docs := seedDocs(t, "old content\n")
	c := New(docs)

	out, err := c.Apply(context.Background(), Request{
		System: "confluence", DocID: "doc-1",
		PatchedContent: "new content\n", ExpectedRevision: "1",
	})
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.False(t, out.NoOp)

	doc, err := docs.ReadDoc(context.Background(), "confluence", "doc-1")
	require.NoError(t, err)
	require.Equal(t, "new content\n", doc.Content)
}

func TestApplySameContentIsNoOp(t *testing.T) {
	docs := seedDocs(t, "same content\n")
	c := New(docs)

	out, err := c.Apply(context.Background(), Request{
		System: "confluence", DocID: "doc-1",
		PatchedContent: "same content\n", ExpectedRevision: "1",
	})
	require.NoError(t, err)
	require.True(t, out.Applied)
	require.True(t, out.NoOp)
	require.Equal(t, "1", out.NewRevision)
}

func TestApplyRevisionMismatch(t *testing.T) {
	docs := seedDocs(t, "v1\n")
	_, err := docs.WriteDoc(context.Background(), "confluence", "doc-1", "v2\n", "1")
	require.NoError(t, err)

	out, err := New(docs).Apply(context.Background(), Request{
		System: "confluence", DocID: "doc-1",
		PatchedContent: "patched\n", ExpectedRevision: "1",
	})
	require.Error(t, err)
	require.Equal(t, drift.CodeRevisionMismatch, out.FailureCode)
}

func TestApplyRefusesOutsideManagedRegion(t *testing.T) {
	content := "intro\n" + region.StartMarker + "\nsteps\n" + region.EndMarker + "\noutro\n"
	docs := seedDocs(t, content)

	out, err := New(docs).Apply(context.Background(), Request{
		System: "confluence", DocID: "doc-1",
		PatchedContent:   "HACKED\n" + region.StartMarker + "\nsteps v2\n" + region.EndMarker + "\noutro\n",
		ExpectedRevision: "1",
	})
	require.Error(t, err)
	require.Equal(t, drift.CodeUnsafePatch, out.FailureCode)
}

func TestApplyInsideManagedRegion(t *testing.T) {
	content := "intro\n" + region.StartMarker + "\nsteps\n" + region.EndMarker + "\noutro\n"
	docs := seedDocs(t, content)

	out, err := New(docs).Apply(context.Background(), Request{
		System: "confluence", DocID: "doc-1",
		PatchedContent:   "intro\n" + region.StartMarker + "\nsteps v2\n" + region.EndMarker + "\noutro\n",
		ExpectedRevision: "1",
	})
	require.NoError(t, err)
	require.True(t, out.Applied)
}
