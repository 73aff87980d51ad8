package collab

import (
	"encoding/json"
	"fmt"
)

// Workspace is the shared draft state a session synchronizes. Three
// independent fields; every delta replaces exactly one of them.
type Workspace struct {
	DraftText string     `json:"draft_text"`
	Snapshots []Snapshot `json:"snapshots"`
	Sources   []Source   `json:"sources"`
}

// ApplyDelta overwrites the targeted field. It never merges sub-fields
// and never touches the other two.
func (w *Workspace) ApplyDelta(d Delta) error {
	if err := d.Validate(); err != nil {
		return err
	}
	switch d.Kind {
	case DeltaDraftText:
		w.DraftText = *d.DraftText
	case DeltaSnapshotList:
		w.Snapshots = d.Snapshots
	case DeltaSourceList:
		w.Sources = d.Sources
	default:
		return fmt.Errorf("unknown delta kind %q", d.Kind)
	}
	return nil
}

// WorkspaceFragment renders a delta as the partial workspace object it
// replaces, e.g. {"draft_text": "..."}. Storage merges the fragment
// into the durable snapshot with a shallow jsonb concatenation, which
// is exactly the field-level last-writer-wins contract.
func (d Delta) WorkspaceFragment() (json.RawMessage, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	var fragment any
	switch d.Kind {
	case DeltaDraftText:
		fragment = map[string]string{"draft_text": *d.DraftText}
	case DeltaSnapshotList:
		fragment = map[string][]Snapshot{"snapshots": d.Snapshots}
	case DeltaSourceList:
		fragment = map[string][]Source{"sources": d.Sources}
	default:
		return nil, fmt.Errorf("unknown delta kind %q", d.Kind)
	}
	out, err := json.Marshal(fragment)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workspace fragment: %w", err)
	}
	return out, nil
}

// MergeSnapshot applies a delta to a serialized workspace snapshot.
// This is the server-side merge point: each published delta is folded
// into the session's durable state so late joiners get everything.
func MergeSnapshot(state json.RawMessage, d Delta) (json.RawMessage, error) {
	var w Workspace
	if len(state) > 0 {
		if err := json.Unmarshal(state, &w); err != nil {
			return nil, fmt.Errorf("failed to decode workspace state: %w", err)
		}
	}
	if err := w.ApplyDelta(d); err != nil {
		return nil, err
	}
	merged, err := json.Marshal(w)
	if err != nil {
		return nil, fmt.Errorf("failed to encode workspace state: %w", err)
	}
	return merged, nil
}
