// Package audit records the append-only trail of everything the system
// does to a workspace: state transitions, human actions, pack publishes,
// evidence creation, writeback outcomes. Entries are keyed by
// (workspace, timestamp, event id) and never mutated.
package audit

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// EntryType categorizes an audit entry.
type EntryType string

const (
	EntrySignalIngested   EntryType = "SIGNAL_INGESTED"
	EntryStateTransition  EntryType = "STATE_TRANSITION"
	EntryHumanAction      EntryType = "HUMAN_ACTION"
	EntryPackPublish      EntryType = "PACK_PUBLISH"
	EntryEvidenceCreated  EntryType = "EVIDENCE_CREATED"
	EntryWritebackOutcome EntryType = "WRITEBACK_OUTCOME"
	EntryEvaluation       EntryType = "EVALUATION"
)

// Entry is one immutable audit record.
type Entry struct {
	WorkspaceID string                 `json:"workspace_id"`
	EventID     string                 `json:"event_id"`
	Timestamp   time.Time              `json:"timestamp"`
	Type        EntryType              `json:"type"`
	Action      string                 `json:"action"`
	Resource    string                 `json:"resource"`
	ActorID     string                 `json:"actor_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// Log is the append-only audit surface.
type Log interface {
	Append(ctx context.Context, entry Entry) error
	List(ctx context.Context, workspaceID string, since, until time.Time) ([]Entry, error)
}

// Fill stamps the generated fields on an entry.
func Fill(entry *Entry, clock func() time.Time) {
	if entry.EventID == "" {
		entry.EventID = uuid.New().String()
	}
	if entry.Timestamp.IsZero() {
		if clock == nil {
			clock = time.Now
		}
		entry.Timestamp = clock().UTC()
	}
}

// Logger mirrors every appended entry to a writer as one JSON line with an
// AUDIT: prefix for log-pipeline filtering. It satisfies Log so a bare
// deployment without a store still has a trail.
type Logger struct {
	mu     sync.Mutex
	writer io.Writer
	clock  func() time.Time
}

// NewLogger writes to os.Stdout.
func NewLogger() *Logger { return NewLoggerWithWriter(os.Stdout) }

// NewLoggerWithWriter allows sink injection for tests.
func NewLoggerWithWriter(w io.Writer) *Logger {
	if w == nil {
		w = os.Stdout
	}
	return &Logger{writer: w, clock: time.Now}
}

// WithClock overrides the clock for deterministic testing.
func (l *Logger) WithClock(clock func() time.Time) *Logger {
	l.clock = clock
	return l
}

func (l *Logger) Append(ctx context.Context, entry Entry) error {
	Fill(&entry, l.clock)
	raw, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err = l.writer.Write(append(append([]byte("AUDIT: "), raw...), '\n'))
	return err
}

// List is unsupported on the writer sink.
func (l *Logger) List(ctx context.Context, workspaceID string, since, until time.Time) ([]Entry, error) {
	return nil, nil
}

// Tee appends to every underlying log, failing on the first error.
type Tee []Log

func (t Tee) Append(ctx context.Context, entry Entry) error {
	Fill(&entry, nil)
	for _, l := range t {
		if err := l.Append(ctx, entry); err != nil {
			return err
		}
	}
	return nil
}

func (t Tee) List(ctx context.Context, workspaceID string, since, until time.Time) ([]Entry, error) {
	if len(t) == 0 {
		return nil, nil
	}
	return t[0].List(ctx, workspaceID, since, until)
}
