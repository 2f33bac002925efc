package replay

import (
	"time"

	"rayview/internal/core/model"
	"rayview/internal/protocol"
)

// Record is one journaled timeline event. Every published event is
// appended, so one entry may appear multiple times as merges and soft
// marks update it; the latest record per entry id is authoritative.
type Record struct {
	EntryID    int64     `json:"entry_id"`
	ReceivedAt time.Time `json:"received_at"`
	Origin     string    `json:"origin"`
	SessionID  string    `json:"session_id,omitempty"`
	ScreenID   string    `json:"screen_id"`
	Kind       int       `json:"kind"`
	KindLabel  string    `json:"kind_label"`
	RawType    string    `json:"raw_type,omitempty"`
	ColorTag   string    `json:"color,omitempty"`
	Label      string    `json:"label,omitempty"`
	Marker     string    `json:"marker,omitempty"`
	Count      int       `json:"count,omitempty"`
	Values     []string  `json:"values,omitempty"`
	Clipboard  string    `json:"clipboard,omitempty"`
	MergedInto int64     `json:"merged_into,omitempty"`
	Hidden     bool      `json:"hidden,omitempty"`
	Removed    bool      `json:"removed,omitempty"`
}

// FromEntry snapshots an entry into its journal form.
func FromEntry(entry model.TimelineEntry) Record {
	return Record{
		EntryID:    int64(entry.ID),
		ReceivedAt: entry.ReceivedAt,
		Origin:     entry.Origin,
		SessionID:  entry.SessionID,
		ScreenID:   entry.ScreenID,
		Kind:       int(entry.Kind),
		KindLabel:  entry.Kind.String(),
		RawType:    entry.Content.RawType,
		ColorTag:   entry.ColorTag,
		Label:      entry.Label,
		Marker:     entry.Marker,
		Count:      entry.Count,
		Values:     entry.Content.Values,
		Clipboard:  entry.Content.Clipboard,
		MergedInto: int64(entry.MergedInto),
		Hidden:     entry.Hidden,
		Removed:    entry.Removed,
	}
}

// Draft maps the record back to a commit draft.
func (r Record) Draft() model.EntryDraft {
	return model.EntryDraft{
		ScreenID:  r.ScreenID,
		SessionID: r.SessionID,
		Origin:    r.Origin,
		Kind:      protocol.Kind(r.Kind),
		ColorTag:  r.ColorTag,
		Label:     r.Label,
		Marker:    r.Marker,
		Count:     r.Count,
		Content: model.Content{
			Values:    r.Values,
			Clipboard: r.Clipboard,
			RawType:   r.RawType,
		},
	}
}

// Replayable reports whether the record still represents a visible
// entry worth restoring.
func (r Record) Replayable() bool {
	return r.MergedInto == 0 && !r.Hidden && !r.Removed
}
