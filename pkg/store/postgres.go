package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	_ "github.com/lib/pq"

	"github.com/vertaai/driftgate/pkg/audit"
	"github.com/vertaai/driftgate/pkg/drift"
	"github.com/vertaai/driftgate/pkg/fault"
)

// Postgres holds drift candidates and the audit trail in a shared
// database. The candidate row stores the aggregate as JSON next to the
// indexed routing columns; the state machine always rewrites the whole
// aggregate under the drift lock, so column-level updates buy nothing.
type Postgres struct {
	db *sql.DB
}

// NewPostgres runs the migration and returns the store.
func NewPostgres(db *sql.DB) (*Postgres, error) {
	s := &Postgres{db: db}
	if err := s.migrate(); err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "postgres migrate")
	}
	return s, nil
}

func (s *Postgres) migrate() error {
	const query = `
	CREATE TABLE IF NOT EXISTS drift_candidates (
		workspace_id TEXT NOT NULL,
		id           TEXT NOT NULL,
		state        TEXT NOT NULL,
		fingerprint  TEXT NOT NULL,
		body         JSONB NOT NULL,
		created_at   TIMESTAMPTZ NOT NULL,
		updated_at   TIMESTAMPTZ NOT NULL,
		PRIMARY KEY (workspace_id, id)
	);
	CREATE INDEX IF NOT EXISTS drift_candidates_state
		ON drift_candidates (workspace_id, state);
	CREATE INDEX IF NOT EXISTS drift_candidates_fingerprint
		ON drift_candidates (workspace_id, fingerprint);

	CREATE TABLE IF NOT EXISTS audit_entries (
		workspace_id TEXT NOT NULL,
		event_id     TEXT NOT NULL,
		ts           TIMESTAMPTZ NOT NULL,
		entry_type   TEXT NOT NULL,
		body         JSONB NOT NULL,
		PRIMARY KEY (workspace_id, ts, event_id)
	);`
	_, err := s.db.ExecContext(context.Background(), query)
	return err
}

func (s *Postgres) CreateDrift(ctx context.Context, c *drift.Candidate) error {
	body, err := json.Marshal(c)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "marshal drift")
	}
	const query = `
	INSERT INTO drift_candidates (workspace_id, id, state, fingerprint, body, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = s.db.ExecContext(ctx, query,
		c.WorkspaceID, c.ID, string(c.State), c.Fingerprint, body, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fault.Wrap(fault.KindTransport, err, "insert drift %s", c.ID)
	}
	return nil
}

func (s *Postgres) GetDrift(ctx context.Context, workspaceID, id string) (*drift.Candidate, error) {
	const query = `SELECT body FROM drift_candidates WHERE workspace_id = $1 AND id = $2`
	var body []byte
	err := s.db.QueryRowContext(ctx, query, workspaceID, id).Scan(&body)
	if err == sql.ErrNoRows {
		return nil, fault.New(fault.KindNotFound, "drift %s/%s", workspaceID, id)
	}
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "get drift %s", id)
	}
	var c drift.Candidate
	if err := json.Unmarshal(body, &c); err != nil {
		return nil, fault.Wrap(fault.KindValidation, err, "unmarshal drift %s", id)
	}
	return &c, nil
}

func (s *Postgres) UpdateDrift(ctx context.Context, c *drift.Candidate) error {
	c.UpdatedAt = time.Now().UTC()
	body, err := json.Marshal(c)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "marshal drift")
	}
	const query = `
	UPDATE drift_candidates
	SET state = $3, fingerprint = $4, body = $5, updated_at = $6
	WHERE workspace_id = $1 AND id = $2`
	res, err := s.db.ExecContext(ctx, query,
		c.WorkspaceID, c.ID, string(c.State), c.Fingerprint, body, c.UpdatedAt)
	if err != nil {
		return fault.Wrap(fault.KindTransport, err, "update drift %s", c.ID)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fault.New(fault.KindNotFound, "drift %s/%s", c.WorkspaceID, c.ID)
	}
	return nil
}

func (s *Postgres) ListDriftsByState(ctx context.Context, workspaceID string, state drift.State) ([]*drift.Candidate, error) {
	const query = `
	SELECT body FROM drift_candidates
	WHERE workspace_id = $1 AND state = $2
	ORDER BY id`
	rows, err := s.db.QueryContext(ctx, query, workspaceID, string(state))
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "list drifts")
	}
	defer func() { _ = rows.Close() }()

	var out []*drift.Candidate
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var c drift.Candidate
		if err := json.Unmarshal(body, &c); err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "unmarshal drift row")
		}
		out = append(out, &c)
	}
	return out, rows.Err()
}

func (s *Postgres) Append(ctx context.Context, entry audit.Entry) error {
	audit.Fill(&entry, nil)
	body, err := json.Marshal(entry)
	if err != nil {
		return fault.Wrap(fault.KindValidation, err, "marshal audit entry")
	}
	const query = `
	INSERT INTO audit_entries (workspace_id, event_id, ts, entry_type, body)
	VALUES ($1, $2, $3, $4, $5)`
	_, err = s.db.ExecContext(ctx, query,
		entry.WorkspaceID, entry.EventID, entry.Timestamp, string(entry.Type), body)
	if err != nil {
		return fault.Wrap(fault.KindTransport, err, "append audit entry")
	}
	return nil
}

func (s *Postgres) List(ctx context.Context, workspaceID string, since, until time.Time) ([]audit.Entry, error) {
	query := `SELECT body FROM audit_entries WHERE workspace_id = $1`
	args := []interface{}{workspaceID}
	if !since.IsZero() {
		args = append(args, since)
		query += ` AND ts >= $2`
	}
	if !until.IsZero() {
		args = append(args, until)
		if len(args) == 3 {
			query += ` AND ts <= $3`
		} else {
			query += ` AND ts <= $2`
		}
	}
	query += ` ORDER BY ts, event_id`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fault.Wrap(fault.KindTransport, err, "list audit entries")
	}
	defer func() { _ = rows.Close() }()

	var out []audit.Entry
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return nil, err
		}
		var e audit.Entry
		if err := json.Unmarshal(body, &e); err != nil {
			return nil, fault.Wrap(fault.KindValidation, err, "unmarshal audit row")
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *Postgres) SweepOlderThan(ctx context.Context, workspaceID string, cutoff time.Time) (int, error) {
	const query = `DELETE FROM audit_entries WHERE workspace_id = $1 AND ts < $2`
	res, err := s.db.ExecContext(ctx, query, workspaceID, cutoff)
	if err != nil {
		return 0, fault.Wrap(fault.KindTransport, err, "sweep audit entries")
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
