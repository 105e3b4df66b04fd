package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"

	"github.com/starford/munin/internal/apperr"
)

// envelope is the outer layer of the snapshot file. The cache value is a
// second, separately encoded JSON document.
type envelope struct {
	Cache *string `json:"cache"`
}

type payload struct {
	State *state `json:"state"`
}

type state struct {
	Documents   json.RawMessage            `json:"documents"`
	Transcripts map[string]json.RawMessage `json:"transcripts"`
	Templates   map[string]json.RawMessage `json:"templates"`
}

// Read loads and decodes the snapshot file at path into a normalized Graph.
// Any decode or shape failure yields a MalformedSnapshotError naming the
// failing layer; an empty-but-valid state produces an empty Graph, which is
// never confused with an error.
func Read(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &apperr.MalformedSnapshotError{Layer: "file", Err: err}
	}
	return Decode(data)
}

// Decode decodes raw snapshot bytes. Split out from Read so tests can feed
// payloads without touching the filesystem.
func Decode(data []byte) (*Graph, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &apperr.MalformedSnapshotError{Layer: "envelope", Err: err}
	}
	if env.Cache == nil {
		return nil, &apperr.MalformedSnapshotError{Layer: "envelope", Err: errors.New("missing cache field")}
	}

	var pl payload
	if err := json.Unmarshal([]byte(*env.Cache), &pl); err != nil {
		return nil, &apperr.MalformedSnapshotError{Layer: "payload", Err: err}
	}
	if pl.State == nil {
		return nil, &apperr.MalformedSnapshotError{Layer: "payload", Err: errors.New("missing state field")}
	}

	g := &Graph{
		Transcripts: make(map[string][]TranscriptEntry),
		Templates:   make(map[string][]Template),
	}

	docs, err := decodeCollection[Document](pl.State.Documents)
	if err != nil {
		return nil, &apperr.MalformedSnapshotError{Layer: "shape", Err: fmt.Errorf("documents: %w", err)}
	}
	g.Documents = docs

	for docID, raw := range pl.State.Transcripts {
		entries, err := decodeCollection[TranscriptEntry](raw)
		if err != nil {
			return nil, &apperr.MalformedSnapshotError{Layer: "shape", Err: fmt.Errorf("transcripts[%s]: %w", docID, err)}
		}
		if len(entries) > 0 {
			g.Transcripts[docID] = entries
		}
	}

	for docID, raw := range pl.State.Templates {
		tps, err := decodeTemplates(raw)
		if err != nil {
			return nil, &apperr.MalformedSnapshotError{Layer: "shape", Err: fmt.Errorf("templates[%s]: %w", docID, err)}
		}
		if len(tps) > 0 {
			g.Templates[docID] = tps
		}
	}

	return g, nil
}

// decodeCollection accepts either a JSON array or an object keyed by
// identifier and returns one canonical ordered slice: array order for
// arrays, sorted identifier order for keyed objects.
func decodeCollection[T any](raw json.RawMessage) ([]T, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	switch firstByte(raw) {
	case '[':
		var out []T
		if err := json.Unmarshal(raw, &out); err != nil {
			return nil, err
		}
		return out, nil
	case '{':
		var m map[string]T
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, err
		}
		keys := make([]string, 0, len(m))
		for k := range m {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := make([]T, 0, len(m))
		for _, k := range keys {
			out = append(out, m[k])
		}
		return out, nil
	default:
		return nil, errors.New("expected array or object")
	}
}

// decodeTemplates handles the extra ambiguity of the templates section: a
// value may be a single template object, an array of templates, or an
// object keyed by template identifier.
func decodeTemplates(raw json.RawMessage) ([]Template, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return nil, nil
	}
	if firstByte(raw) == '{' {
		var one Template
		if err := json.Unmarshal(raw, &one); err == nil && one.ID != "" {
			return []Template{one}, nil
		}
	}
	return decodeCollection[Template](raw)
}

func firstByte(raw json.RawMessage) byte {
	for _, b := range raw {
		switch b {
		case ' ', '\t', '\n', '\r':
			continue
		}
		return b
	}
	return 0
}
