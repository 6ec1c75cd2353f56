package pack

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/gowebpki/jcs"
)

// Canonicalize returns the RFC 8785 canonical JSON of the pack's hashable
// content: audit-only fields stripped, rules sorted by id, obligations kept
// in their stable declared order. Two packs with the same canonical bytes
// enforce the same rule set.
func Canonicalize(p *Pack) ([]byte, error) {
	// Status is lifecycle state, not content: the same published version
	// keeps its hash through DEPRECATED and ARCHIVED.
	meta := struct {
		ID      string   `json:"id"`
		Name    string   `json:"name"`
		Version string   `json:"version"`
		Owners  []string `json:"owners,omitempty"`
		Labels  []string `json:"labels,omitempty"`
		Mode    Mode     `json:"packMode"`
	}{p.Metadata.ID, p.Metadata.Name, p.Metadata.Version, p.Metadata.Owners, p.Metadata.Labels, p.Metadata.Mode}

	// The storage row id is identity, not content: republishing identical
	// content under a new row keeps the same hash.
	hashable := struct {
		WorkspaceID string        `json:"workspaceId"`
		Metadata    interface{}   `json:"metadata"`
		Scope       Scope         `json:"scope"`
		Priority    int           `json:"priority"`
		Merge       MergeStrategy `json:"mergeStrategy"`
		Defaults    Defaults      `json:"defaults"`
		Rules       []Rule        `json:"rules"`
	}{
		WorkspaceID: p.WorkspaceID,
		Metadata:    meta,
		Scope:       p.Scope,
		Priority:    p.Priority,
		Merge:       p.Merge,
		Defaults:    p.Defaults,
		Rules:       append([]Rule(nil), p.Rules...),
	}
	sort.SliceStable(hashable.Rules, func(i, j int) bool {
		return hashable.Rules[i].ID < hashable.Rules[j].ID
	})

	raw, err := json.Marshal(hashable)
	if err != nil {
		return nil, fmt.Errorf("canonicalize pack %s: %w", p.ID, err)
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return nil, fmt.Errorf("jcs transform pack %s: %w", p.ID, err)
	}
	return canonical, nil
}

// Hash computes the canonical content hash of a pack: SHA-256 over the
// canonical bytes, hex encoded. The hash is published with every evaluation
// output.
func Hash(p *Pack) (string, error) {
	canonical, err := Canonicalize(p)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ShortHash returns the 16-character display prefix of a full hash.
func ShortHash(hash string) string {
	if len(hash) <= 16 {
		return hash
	}
	return hash[:16]
}
