// Package fingerprint implements change detection for snapshot entities: a
// deterministic digest over each entity's relevant fields, an in-memory
// store of last-seen digests, and a detector that compares the two.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Class identifies an entity class for fingerprint keying.
type Class string

const (
	ClassDocument   Class = "document"
	ClassEvent      Class = "calendar_event"
	ClassPerson     Class = "person"
	ClassTranscript Class = "transcript"
	ClassTemplate   Class = "template"
)

// Key addresses one entity in the fingerprint store. ScopeID is the owning
// document for classes whose identifiers are only unique within a document;
// empty for root documents.
type Key struct {
	Class    Class
	ScopeID  string
	EntityID string
}

// Compute returns the hex-encoded SHA-256 digest of v's JSON encoding.
// encoding/json writes struct fields in declaration order and map keys
// sorted, so the digest is stable across process restarts and independent
// of the field order of the source payload.
func Compute(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("fingerprint: marshal: %w", err)
	}
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:]), nil
}
