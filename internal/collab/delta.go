package collab

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// DeltaKind tags the one field a delta replaces. Deltas are coarse,
// field-level overwrites: two racing deltas for different fields
// compose in any order, and same-field races are last-delivered-wins.
type DeltaKind string

const (
	DeltaDraftText    DeltaKind = "draft_text_changed"
	DeltaSnapshotList DeltaKind = "snapshot_list_replaced"
	DeltaSourceList   DeltaKind = "source_list_replaced"
)

// Snapshot is a named save point of the draft a user chose to keep.
type Snapshot struct {
	ID        uuid.UUID `json:"id"`
	Title     string    `json:"title"`
	DraftText string    `json:"draft_text"`
	SavedBy   uuid.UUID `json:"saved_by"`
	SavedAt   time.Time `json:"saved_at"`
}

// Source is an accomplishment record cited by the draft.
type Source struct {
	ID    uuid.UUID `json:"id"`
	Title string    `json:"title"`
	Kind  string    `json:"kind"`
}

// Delta is a partial update to shared workspace state. Exactly one
// payload field is meaningful, selected by Kind; list payloads are
// replaced wholesale, never diffed. The list fields carry no omitempty
// so that an empty list, the "clear everything" replacement, survives
// the trip through JSON.
type Delta struct {
	Kind      DeltaKind  `json:"kind"`
	DraftText *string    `json:"draft_text,omitempty"`
	Snapshots []Snapshot `json:"snapshots"`
	Sources   []Source   `json:"sources"`
}

func (d Delta) Validate() error {
	switch d.Kind {
	case DeltaDraftText:
		if d.DraftText == nil {
			return fmt.Errorf("%s delta missing draft_text", d.Kind)
		}
	case DeltaSnapshotList, DeltaSourceList:
		// An empty list is a valid wholesale replacement.
	default:
		return fmt.Errorf("unknown delta kind %q", d.Kind)
	}
	return nil
}

func DraftTextDelta(text string) Delta {
	return Delta{Kind: DeltaDraftText, DraftText: &text}
}

func SnapshotListDelta(snapshots []Snapshot) Delta {
	if snapshots == nil {
		snapshots = []Snapshot{}
	}
	return Delta{Kind: DeltaSnapshotList, Snapshots: snapshots}
}

func SourceListDelta(sources []Source) Delta {
	if sources == nil {
		sources = []Source{}
	}
	return Delta{Kind: DeltaSourceList, Sources: sources}
}
