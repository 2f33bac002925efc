package model

import (
	"time"

	"rayview/internal/protocol"
)

// EntryID is the monotonic sequence number assigned at commit time.
// Zero is never a valid id, so it doubles as "unset" in references.
type EntryID int64

// TimelineEntry is one committed unit of the session history. Entries
// are immutable after commit; the only later mutations are the
// merged_from/merged_into backfill performed atomically with a merge,
// and the soft Hidden/Removed marks.
type TimelineEntry struct {
	ID         EntryID
	ReceivedAt time.Time
	ScreenID   string
	SessionID  string
	Origin     string
	Kind       protocol.Kind
	ColorTag   string
	Label      string
	Marker     string // "trace" or "caller" on a merged entry
	Count      int
	Content    Content
	MergedFrom EntryID // entry folded into this one
	MergedInto EntryID // survivor this entry was folded into
	Hidden     bool
	Removed    bool
}

// Visible reports whether the entry should appear on the timeline.
func (e *TimelineEntry) Visible() bool {
	return !e.Hidden && !e.Removed && e.MergedInto == 0
}

// Content carries the payload body. Clipboard text supersedes the raw
// values for display, but both are retained.
type Content struct {
	Values    []string
	Clipboard string
	Raw       map[string]interface{}
	RawType   string
}

// DisplayText returns the preferred display form of the content.
func (c Content) DisplayText() string {
	if c.Clipboard != "" {
		return c.Clipboard
	}
	for _, value := range c.Values {
		if value != "" {
			return value
		}
	}
	return ""
}

// EntryDraft is a normalized payload awaiting commit. The store
// assigns the id and evaluates merge rules.
type EntryDraft struct {
	ScreenID  string
	SessionID string
	Origin    string
	Kind      protocol.Kind
	ColorTag  string
	Label     string
	Marker    string
	Count     int
	Content   Content
}

// Screen is a named partition of the timeline, analogous to a tab.
type Screen struct {
	ID        string
	Label     string
	CreatedAt time.Time
}

// Lock is a named mutual-exclusion marker senders use to coordinate.
type Lock struct {
	Name       string
	Holder     string
	AcquiredAt time.Time
}

// CommandOp enumerates the typed commands the UI layer routes through
// the ingestion path.
type CommandOp int

const (
	OpClearAll CommandOp = iota
	OpClearScreen
	OpRemove
	OpHide
)

// Command is a synthetic store mutation, processed in arrival order
// alongside externally sourced events.
type Command struct {
	Op     CommandOp
	Entry  EntryID
	Screen string
}
