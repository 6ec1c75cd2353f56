package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "modernc.org/sqlite"

	"github.com/vertaai/driftgate/pkg/evidence"
	"github.com/vertaai/driftgate/pkg/fault"
)

// SQLiteEvidence keeps evidence bundles in an embedded database with the
// three fingerprints as secondary keys.
type SQLiteEvidence struct {
	db *sql.DB
}

// NewSQLiteEvidence runs the migration and returns the store.
func NewSQLiteEvidence(db *sql.DB) (*SQLiteEvidence, error) {
	s := &SQLiteEvidence{db: db}
	if err := s.migrate(); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "sqlite migrate")
	}
	return s, nil
}

func (s *SQLiteEvidence) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS evidence_bundles (
		id           TEXT PRIMARY KEY,
		workspace_id TEXT NOT NULL,
		drift_id     TEXT NOT NULL,
		fp_strict    TEXT NOT NULL,
		fp_medium    TEXT NOT NULL,
		fp_broad     TEXT NOT NULL,
		body         JSON NOT NULL,
		created_at   DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS evidence_fp_strict ON evidence_bundles (workspace_id, fp_strict);
	CREATE INDEX IF NOT EXISTS evidence_fp_medium ON evidence_bundles (workspace_id, fp_medium);
	CREATE INDEX IF NOT EXISTS evidence_fp_broad  ON evidence_bundles (workspace_id, fp_broad);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *SQLiteEvidence) PutBundle(ctx context.Context, b *evidence.Bundle) error {
	body, err := json.Marshal(b)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "marshal bundle")
	}
	const query = `
	INSERT INTO evidence_bundles (id, workspace_id, drift_id, fp_strict, fp_medium, fp_broad, body, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	_, err = s.db.ExecContext(ctx, query,
		b.ID, b.WorkspaceID, b.DriftCandidateID,
		b.Fingerprints.Strict, b.Fingerprints.Medium, b.Fingerprints.Broad,
		string(body), b.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fault.Wrap(fault.KindTransport, err, "insert bundle %s", b.ID)
	}
	return nil
}

func (s *SQLiteEvidence) GetBundle(ctx context.Context, id string) (*evidence.Bundle, error) {
	const query = `SELECT body FROM evidence_bundles WHERE id = ?`
	var body string
	err := s.db.QueryRowContext(ctx, query, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "bundle %s", id)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "get bundle %s", id)
	}
	var b evidence.Bundle
	if err := json.Unmarshal([]byte(body), &b); err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "unmarshal bundle %s", id)
	}
	return &b, nil
}

func (s *SQLiteEvidence) FindByFingerprint(ctx context.Context, workspaceID, fingerprint string) ([]*evidence.Bundle, error) {
	const query = `
	SELECT body FROM evidence_bundles
	WHERE workspace_id = ? AND (fp_strict = ? OR fp_medium = ? OR fp_broad = ?)
	ORDER BY created_at`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, fingerprint, fingerprint, fingerprint)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "find bundles")
	}
	defer func() { _ = rows.Close() }()

	var out []*evidence.Bundle
	for rows.Next() {
		var body string
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var b evidence.Bundle
		if err := json.Unmarshal([]byte(body), &b); err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "unmarshal bundle row")
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}
