package store

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"rayview/internal/core/model"
	"rayview/internal/core/registry"
	"rayview/internal/protocol"
	"rayview/internal/util"
)

// DefaultRetention bounds how many entries are kept in memory before
// the oldest are pruned. Pruning never reuses ids.
const DefaultRetention = 1024

// MergeScope selects which key the per-origin merge cache uses. The
// wire contract does not pin down whether "immediately preceding"
// means same screen or just same sender, so the window is an option.
type MergeScope int

const (
	// ScopeOriginScreen merges only against the latest entry from the
	// same origin on the same screen.
	ScopeOriginScreen MergeScope = iota
	// ScopeOrigin merges against the latest entry from the same origin
	// regardless of screen.
	ScopeOrigin
)

// Option configures a Store.
type Option func(*Store)

// WithRetention overrides the in-memory entry cap.
func WithRetention(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.retention = n
		}
	}
}

// WithMergeScope overrides the merge-eligibility window.
func WithMergeScope(scope MergeScope) Option {
	return func(s *Store) { s.scope = scope }
}

// CommitResult reports what a commit did.
type CommitResult struct {
	ID         model.EntryID
	Merged     bool
	MergedWith model.EntryID // the surviving visible entry
}

// Store is the single-writer, multi-reader ordered collection of
// timeline entries. Writers (Commit, Apply, TagLast) serialize through
// the exclusive lock; Snapshot readers only share the read side and
// never observe a partially written entry.
type Store struct {
	mu        sync.RWMutex
	nextID    model.EntryID
	entries   []*model.TimelineEntry
	byID      map[model.EntryID]*model.TimelineEntry
	byScreen  map[string][]model.EntryID
	colors    map[string]int
	lastByKey map[string]model.EntryID // single-slot merge cache
	reg       *registry.Registry
	retention int
	scope     MergeScope
}

// New creates an empty store owning the given registry.
func New(reg *registry.Registry, opts ...Option) *Store {
	s := &Store{
		nextID:    1,
		byID:      make(map[model.EntryID]*model.TimelineEntry),
		byScreen:  make(map[string][]model.EntryID),
		colors:    make(map[string]int),
		lastByKey: make(map[string]model.EntryID),
		reg:       reg,
		retention: DefaultRetention,
	}
	if s.reg == nil {
		s.reg = registry.New()
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry exposes the screen/lock registry the store owns.
func (s *Store) Registry() *registry.Registry {
	return s.reg
}

// Commit assigns the next id to the draft and appends it, evaluating
// merge rules against the most recent entry from the same origin and
// screen. Exactly one commit is in flight at a time.
func (s *Store) Commit(draft model.EntryDraft) CommitResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ScreenID == "" {
		draft.ScreenID = s.reg.Current()
	}

	key := s.mergeKey(draft.Origin, draft.ScreenID)
	if draft.Kind.MergeSource() {
		if prev := s.mergeCandidate(key); prev != nil {
			return s.commitMerge(draft, prev, key)
		}
	}

	entry := s.appendEntry(draft)
	s.lastByKey[key] = entry.ID
	return CommitResult{ID: entry.ID, MergedWith: entry.ID}
}

// Restore appends a draft without merge evaluation. Journal replay
// feeds already-merged survivors back in, so re-evaluating would fold
// entries a second time.
func (s *Store) Restore(draft model.EntryDraft) model.EntryID {
	s.mu.Lock()
	defer s.mu.Unlock()

	if draft.ScreenID == "" {
		draft.ScreenID = s.reg.Current()
	}
	entry := s.appendEntry(draft)
	s.lastByKey[s.mergeKey(entry.Origin, entry.ScreenID)] = entry.ID
	return entry.ID
}

// mergeCandidate returns the cached previous entry when it can still
// absorb a follow-up payload.
func (s *Store) mergeCandidate(key string) *model.TimelineEntry {
	prevID, ok := s.lastByKey[key]
	if !ok {
		return nil
	}
	prev := s.byID[prevID]
	if prev == nil || !prev.Visible() || !prev.Kind.MergeTarget() {
		return nil
	}
	return prev
}

func (s *Store) commitMerge(draft model.EntryDraft, prev *model.TimelineEntry, key string) CommitResult {
	entry := s.appendEntry(draft)

	switch draft.Kind {
	case protocol.KindCount:
		// The folded count never becomes visible; the preceding entry
		// keeps its message and carries the count.
		entry.MergedInto = prev.ID
		if draft.Count > 0 {
			prev.Count = draft.Count
		} else {
			prev.Count++
		}
		prev.MergedFrom = entry.ID
		return CommitResult{ID: entry.ID, Merged: true, MergedWith: prev.ID}

	default: // trace, caller
		// The message is pulled forward onto the new entry and the
		// preceding entry folds away behind it.
		entry.Marker = draft.Kind.String()
		if entry.Label == "" {
			entry.Label = prev.Label
		}
		if entry.Label == "" {
			entry.Label = prev.Content.DisplayText()
		}
		entry.MergedFrom = prev.ID
		prev.MergedInto = entry.ID
		s.lastByKey[key] = entry.ID
		return CommitResult{ID: entry.ID, Merged: true, MergedWith: entry.ID}
	}
}

// appendEntry allocates the id and appends under the writer lock.
func (s *Store) appendEntry(draft model.EntryDraft) *model.TimelineEntry {
	id := s.nextID
	if n := len(s.entries); n > 0 && s.entries[n-1].ID >= id {
		// Ids are assigned exactly once, under this lock. A regression
		// means the single-writer guarantee is broken.
		panic(fmt.Sprintf("store: id regression: next %d after %d", id, s.entries[n-1].ID))
	}
	s.nextID++

	entry := &model.TimelineEntry{
		ID:         id,
		ReceivedAt: time.Now(),
		ScreenID:   draft.ScreenID,
		SessionID:  draft.SessionID,
		Origin:     draft.Origin,
		Kind:       draft.Kind,
		ColorTag:   draft.ColorTag,
		Label:      draft.Label,
		Marker:     draft.Marker,
		Count:      draft.Count,
		Content:    draft.Content,
	}
	s.entries = append(s.entries, entry)
	s.byID[id] = entry
	s.byScreen[entry.ScreenID] = append(s.byScreen[entry.ScreenID], id)
	if entry.ColorTag != "" {
		s.colors[entry.ColorTag]++
	}
	s.prune()
	return entry
}

// prune drops the oldest physical entries beyond the retention cap.
func (s *Store) prune() {
	excess := len(s.entries) - s.retention
	if excess <= 0 {
		return
	}
	for _, old := range s.entries[:excess] {
		delete(s.byID, old.ID)
		if ids := s.byScreen[old.ScreenID]; len(ids) > 0 && ids[0] == old.ID {
			s.byScreen[old.ScreenID] = ids[1:]
		}
		if old.ColorTag != "" {
			s.decColor(old.ColorTag)
		}
		key := s.mergeKey(old.Origin, old.ScreenID)
		if s.lastByKey[key] == old.ID {
			delete(s.lastByKey, key)
		}
	}
	s.entries = append(s.entries[:0], s.entries[excess:]...)
}

func (s *Store) decColor(tag string) {
	s.colors[tag]--
	if s.colors[tag] <= 0 {
		delete(s.colors, tag)
	}
}

// TagLast backfills the color tag or label of the most recent entry
// from an origin. Color and label follow-up payloads carry no body of
// their own; they decorate the entry that preceded them.
func (s *Store) TagLast(origin, screen, color, label string) (model.EntryID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	prev := s.mergeCandidateAny(s.mergeKey(origin, screen))
	if prev == nil {
		return 0, false
	}
	if color != "" {
		if prev.ColorTag != "" {
			s.decColor(prev.ColorTag)
		}
		prev.ColorTag = color
		s.colors[color]++
	}
	if label != "" {
		prev.Label = label
	}
	return prev.ID, true
}

// mergeCandidateAny is TagLast's variant: any visible previous entry
// qualifies, not only log/text.
func (s *Store) mergeCandidateAny(key string) *model.TimelineEntry {
	prevID, ok := s.lastByKey[key]
	if !ok {
		return nil
	}
	prev := s.byID[prevID]
	if prev == nil || !prev.Visible() {
		return nil
	}
	return prev
}

// Apply executes a typed command through the same writer section as
// commits.
func (s *Store) Apply(cmd model.Command) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch cmd.Op {
	case model.OpClearAll:
		s.entries = nil
		s.byID = make(map[model.EntryID]*model.TimelineEntry)
		s.byScreen = make(map[string][]model.EntryID)
		s.colors = make(map[string]int)
		s.lastByKey = make(map[string]model.EntryID)
		s.reg.Reset()
		util.LogDebug("store: cleared all entries")

	case model.OpClearScreen:
		screen := cmd.Screen
		if screen == "" {
			screen = s.reg.Current()
		}
		for _, id := range s.byScreen[screen] {
			if entry := s.byID[id]; entry != nil {
				entry.Removed = true
			}
		}
		for key, id := range s.lastByKey {
			if entry := s.byID[id]; entry == nil || entry.ScreenID == screen {
				delete(s.lastByKey, key)
			}
		}
		util.LogDebugf("store: cleared screen %s", screen)

	case model.OpRemove:
		if entry := s.target(cmd.Entry); entry != nil {
			entry.Removed = true
			s.dropFromCache(entry)
		}

	case model.OpHide:
		if entry := s.target(cmd.Entry); entry != nil {
			entry.Hidden = true
			s.dropFromCache(entry)
		}
	}
}

// target resolves a command target: an explicit id, or the newest
// visible entry when the id is unset (the wire remove/hide form).
func (s *Store) target(id model.EntryID) *model.TimelineEntry {
	if id != 0 {
		return s.byID[id]
	}
	for i := len(s.entries) - 1; i >= 0; i-- {
		if s.entries[i].Visible() {
			return s.entries[i]
		}
	}
	return nil
}

func (s *Store) dropFromCache(entry *model.TimelineEntry) {
	key := s.mergeKey(entry.Origin, entry.ScreenID)
	if s.lastByKey[key] == entry.ID {
		delete(s.lastByKey, key)
	}
}

// Snapshot returns a point-in-time copy of every retained entry in
// commit order. It never blocks writers beyond the read lock and two
// calls without an intervening commit return identical sequences.
func (s *Store) Snapshot() []model.TimelineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]model.TimelineEntry, len(s.entries))
	for i, entry := range s.entries {
		out[i] = *entry
	}
	return out
}

// SnapshotScreen returns the retained entries of one screen.
func (s *Store) SnapshotScreen(screen string) []model.TimelineEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.byScreen[screen]
	out := make([]model.TimelineEntry, 0, len(ids))
	for _, id := range ids {
		if entry := s.byID[id]; entry != nil {
			out = append(out, *entry)
		}
	}
	return out
}

// Entry returns a copy of one entry by id.
func (s *Store) Entry(id model.EntryID) (model.TimelineEntry, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	entry, ok := s.byID[id]
	if !ok {
		return model.TimelineEntry{}, false
	}
	return *entry, true
}

// Len returns the number of retained entries.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// Colors returns the color tags currently present, sorted.
func (s *Store) Colors() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	tags := make([]string, 0, len(s.colors))
	for tag := range s.colors {
		tags = append(tags, tag)
	}
	sort.Strings(tags)
	return tags
}

func (s *Store) mergeKey(origin, screen string) string {
	if s.scope == ScopeOrigin {
		return origin
	}
	return origin + "\x00" + screen
}
