package canvas

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
)

var ErrNotObject = errors.New("snapshot must be a JSON object")

// Snapshot is the persisted shape of a canvas: the rawJson of a form version
// and the exported document format.
type Snapshot struct {
	Title    string    `json:"title"`
	Logo     *Asset    `json:"logo,omitempty"`
	Elements []Element `json:"elements"`
}

func (s Snapshot) Marshal() (json.RawMessage, error) {
	if s.Elements == nil {
		s.Elements = []Element{}
	}
	data, err := json.Marshal(s)
	if err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	return data, nil
}

// IsObject reports whether raw is a JSON object (not null, array or scalar).
func IsObject(raw []byte) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] != '{' {
		return false
	}
	return json.Valid(trimmed)
}

func ParseSnapshot(raw []byte) (Snapshot, error) {
	if !IsObject(raw) {
		return Snapshot{}, ErrNotObject
	}
	var s Snapshot
	if err := json.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("decode snapshot: %w", err)
	}
	if s.Elements == nil {
		s.Elements = []Element{}
	}
	return s, nil
}
