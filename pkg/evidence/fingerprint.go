package evidence

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/gowebpki/jcs"

	"github.com/vertaai/driftgate/pkg/fault"
)

// HashRecord canonicalizes a record with JCS and hashes it, so field order
// and whitespace never influence the fingerprint.
func HashRecord(record interface{}) (string, error) {
	raw, err := json.Marshal(record)
	if err != nil {
		return "", fault.Wrap(fault.KindValidation, err, "marshal fingerprint record")
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", fault.Wrap(fault.KindValidation, err, "canonicalize fingerprint record")
	}
	sum := sha256.Sum256(canonical)
	return hex.EncodeToString(sum[:]), nil
}

// ComputeFingerprints derives the three dedup hashes from a bundle. Strict
// covers all normalized content, medium drops titles and excerpts, broad
// keeps only the routing fields plus the top key tokens.
func ComputeFingerprints(b *Bundle) (Fingerprints, error) {
	tokens := append([]string(nil), b.KeyTokens...)
	sort.Strings(tokens)

	strictRec := map[string]interface{}{
		"workspaceId": b.WorkspaceID,
		"driftType":   string(b.DriftType),
		"docSystem":   b.DocSystem,
		"docId":       b.DocID,
		"source":      b.Source,
		"claims":      b.Claims,
		"impact":      b.Impact,
		"keyTokens":   tokens,
	}
	mediumSource := b.Source
	mediumSource.Title = ""
	mediumSource.Excerpt = ""
	mediumClaims := make([]DocClaim, len(b.Claims))
	for i, c := range b.Claims {
		c.Text = ""
		mediumClaims[i] = c
	}
	mediumRec := map[string]interface{}{
		"workspaceId": b.WorkspaceID,
		"driftType":   string(b.DriftType),
		"docSystem":   b.DocSystem,
		"docId":       b.DocID,
		"source":      mediumSource,
		"claims":      mediumClaims,
		"keyTokens":   tokens,
	}
	topTokens := append([]string(nil), Top(b.KeyTokens, TopKeyTokens)...)
	sort.Strings(topTokens)
	broadRec := map[string]interface{}{
		"workspaceId":  b.WorkspaceID,
		"driftType":    string(b.DriftType),
		"docId":        b.DocID,
		"topKeyTokens": topTokens,
	}
	if len(b.Source.Services) > 0 {
		broadRec["service"] = b.Source.Services[0]
	}

	var fp Fingerprints
	var err error
	if fp.Strict, err = HashRecord(strictRec); err != nil {
		return fp, err
	}
	if fp.Medium, err = HashRecord(mediumRec); err != nil {
		return fp, err
	}
	if fp.Broad, err = HashRecord(broadRec); err != nil {
		return fp, err
	}
	return fp, nil
}
