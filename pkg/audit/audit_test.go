package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestFill(t *testing.T) {
	now := time.Unix(1700000000, 0)
	e := Entry{WorkspaceID: "ws1", Type: EntryStateTransition}
	Fill(&e, func() time.Time { return now })

	require.NotEmpty(t, e.EventID)
	require.Equal(t, now.UTC(), e.Timestamp)

	// Pre-set fields are never overwritten.
	fixed := Entry{EventID: "ev-1", Timestamp: now.Add(time.Hour)}
	Fill(&fixed, func() time.Time { return now })
	require.Equal(t, "ev-1", fixed.EventID)
	require.Equal(t, now.Add(time.Hour), fixed.Timestamp)
}

func TestLoggerEmitsPrefixedJSON(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf).WithClock(func() time.Time { return time.Unix(1700000000, 0) })

	err := l.Append(context.Background(), Entry{
		WorkspaceID: "ws1",
		Type:        EntryHumanAction,
		Action:      "approve",
		Resource:    "drift/d1",
		ActorID:     "alice",
	})
	require.NoError(t, err)

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUDIT: "))
	require.True(t, strings.HasSuffix(line, "\n"))

	var got Entry
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUDIT: ")), &got))
	require.Equal(t, EntryHumanAction, got.Type)
	require.Equal(t, "alice", got.ActorID)
	require.NotEmpty(t, got.EventID)
}

// memLog is a minimal in-memory Log for exporter tests.
type memLog struct {
	entries []Entry
}

func (m *memLog) Append(ctx context.Context, entry Entry) error {
	Fill(&entry, nil)
	m.entries = append(m.entries, entry)
	return nil
}

func (m *memLog) List(ctx context.Context, workspaceID string, since, until time.Time) ([]Entry, error) {
	var out []Entry
	for _, e := range m.entries {
		if e.WorkspaceID != workspaceID {
			continue
		}
		if !since.IsZero() && e.Timestamp.Before(since) {
			continue
		}
		if !until.IsZero() && e.Timestamp.After(until) {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func TestTee(t *testing.T) {
	a, b := &memLog{}, &memLog{}
	tee := Tee{a, b}

	require.NoError(t, tee.Append(context.Background(), Entry{WorkspaceID: "ws1", Type: EntryEvaluation}))
	require.Len(t, a.entries, 1)
	require.Len(t, b.entries, 1)

	got, err := tee.List(context.Background(), "ws1", time.Time{}, time.Time{})
	require.NoError(t, err)
	require.Len(t, got, 1)
}

func TestExporterGeneratePack(t *testing.T) {
	log := &memLog{}
	ctx := context.Background()
	for _, action := range []string{"ingest", "advance", "writeback"} {
		require.NoError(t, log.Append(ctx, Entry{
			WorkspaceID: "ws1", Type: EntryStateTransition, Action: action,
		}))
	}
	require.NoError(t, log.Append(ctx, Entry{WorkspaceID: "other", Type: EntryHumanAction}))

	pack, checksum, err := NewExporter(log).GeneratePack(ctx, ExportRequest{WorkspaceID: "ws1"})
	require.NoError(t, err)

	sum := sha256.Sum256(pack)
	require.Equal(t, hex.EncodeToString(sum[:]), checksum)

	zr, err := zip.NewReader(bytes.NewReader(pack), int64(len(pack)))
	require.NoError(t, err)
	names := map[string]bool{}
	for _, f := range zr.File {
		names[f.Name] = true
	}
	require.True(t, names["manifest.json"])
	require.True(t, names["entries.json"])

	rc, err := zr.Open("entries.json")
	require.NoError(t, err)
	defer rc.Close()
	var entries []Entry
	require.NoError(t, json.NewDecoder(rc).Decode(&entries))
	require.Len(t, entries, 3)
}

func TestExporterValidation(t *testing.T) {
	e := NewExporter(&memLog{})
	ctx := context.Background()

	_, _, err := e.GeneratePack(ctx, ExportRequest{})
	require.Error(t, err)

	_, _, err = e.GeneratePack(ctx, ExportRequest{
		WorkspaceID: "ws1",
		StartTime:   time.Unix(200, 0),
		EndTime:     time.Unix(100, 0),
	})
	require.Error(t, err)
}
