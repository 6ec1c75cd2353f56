package audit

import (
	"archive/zip"
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	"github.com/vertaai/driftgate/pkg/fault"
)

// ExportRequest selects a workspace time range to export.
type ExportRequest struct {
	WorkspaceID string    `json:"workspace_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
}

// Exporter packages a workspace's audit trail into a checksummed zip for
// compliance reviews.
type Exporter struct {
	log Log
}

// NewExporter reads from log.
func NewExporter(log Log) *Exporter { return &Exporter{log: log} }

// GeneratePack returns the zip bytes and their sha256 hex checksum.
func (e *Exporter) GeneratePack(ctx context.Context, req ExportRequest) ([]byte, string, error) {
	if e.log == nil {
		return nil, "", fault.New(fault.KindValidation, "audit export without a backing log")
	}
	if req.WorkspaceID == "" {
		return nil, "", fault.New(fault.KindValidation, "workspace_id must not be empty")
	}
	if !req.StartTime.IsZero() && !req.EndTime.IsZero() && req.StartTime.After(req.EndTime) {
		return nil, "", fault.New(fault.KindValidation, "start_time must be before end_time")
	}

	entries, err := e.log.List(ctx, req.WorkspaceID, req.StartTime, req.EndTime)
	if err != nil {
		return nil, "", err
	}

	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	manifest := map[string]interface{}{
		"workspace_id": req.WorkspaceID,
		"start_time":   req.StartTime,
		"end_time":     req.EndTime,
		"entry_count":  len(entries),
	}
	if err := writeJSON(zw, "manifest.json", manifest); err != nil {
		return nil, "", err
	}
	if err := writeJSON(zw, "entries.json", entries); err != nil {
		return nil, "", err
	}
	if err := zw.Close(); err != nil {
		return nil, "", err
	}

	sum := sha256.Sum256(buf.Bytes())
	return buf.Bytes(), hex.EncodeToString(sum[:]), nil
}

func writeJSON(zw *zip.Writer, name string, v interface{}) error {
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = w.Write(raw)
	return err
}
