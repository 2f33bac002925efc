package view

import (
	"context"
	"fmt"
	"time"

	"rayview/internal/core/model"
	"rayview/internal/core/registry"
	"rayview/internal/core/store"
	"rayview/internal/hub"
	"rayview/internal/ingest"
	"rayview/internal/presentation/display"
	"rayview/internal/presentation/interaction"
	"rayview/internal/replay"
	"rayview/internal/server"
	"rayview/internal/util"
)

// Orchestrator wires the receiver together: the HTTP gateway feeding
// the ingestion pipeline, the store and hub in the middle, journaling
// subscribers on the side, and the terminal view on top.
type Orchestrator struct {
	config *Config

	store    *store.Store
	hub      *hub.Hub
	pipeline *ingest.Pipeline
	server   *server.Server

	display  *display.TerminalDisplay
	keyboard *interaction.KeyboardReader
	state    *uiState

	journal  *replay.Writer
	sink     *replay.Sink
	follower *replay.Follower

	lastEntries []model.TimelineEntry
	lastScreen  string
}

// NewOrchestrator builds the component graph. Nothing starts until Run.
func NewOrchestrator(config *Config) (*Orchestrator, error) {
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	storeOpts := []store.Option{store.WithRetention(config.Retention)}
	if config.MergeAcrossScreens {
		storeOpts = append(storeOpts, store.WithMergeScope(store.ScopeOrigin))
	}
	st := store.New(registry.New(), storeOpts...)
	hb := hub.New()
	pipeline := ingest.NewPipeline(st, hb, config.QueueDepth)

	o := &Orchestrator{
		config:   config,
		store:    st,
		hub:      hb,
		pipeline: pipeline,
		display:  display.NewTerminalDisplay(),
		state:    newUIState(),
	}
	if !config.ServerDisabled {
		o.server = server.New(server.Config{
			BindAddr: config.BindAddr,
			Version:  config.Version,
			DumpFile: config.DumpFile,
		}, pipeline, st)
	}
	return o, nil
}

// Store exposes the timeline store, for preloading replayed journals.
func (o *Orchestrator) Store() *store.Store {
	return o.store
}

// Run starts every component and drives the main loop until the
// context is cancelled or the user quits.
func (o *Orchestrator) Run(ctx context.Context) error {
	util.LogInfof("starting rayview %s", o.config.Version)
	defer o.shutdown()

	if o.server != nil {
		if err := o.server.Start(); err != nil {
			return err
		}
	}
	if err := o.startJournals(); err != nil {
		return err
	}
	if o.config.FollowPath != "" {
		if err := o.startFollower(); err != nil {
			return err
		}
	}

	if o.config.Headless {
		util.LogInfo("running headless")
		<-ctx.Done()
		return nil
	}

	keyboard, err := interaction.NewKeyboardReader()
	if err != nil {
		return fmt.Errorf("cannot initialize keyboard: %w", err)
	}
	o.keyboard = keyboard
	defer o.keyboard.Close()

	o.display.EnterAlternateScreen()
	defer o.display.ExitAlternateScreen()

	sub := o.hub.Subscribe("ui", 128)
	defer sub.Close()

	ticker := time.NewTicker(time.Second / time.Duration(o.config.UIRefreshRate))
	defer ticker.Stop()

	o.render()
	dirty := false
	for {
		select {
		case <-ctx.Done():
			util.LogInfo("shutting down")
			return nil

		case <-sub.C():
			dirty = true

		case <-ticker.C:
			if o.state.paused {
				continue
			}
			if dirty || o.state.currentStatus() != "" {
				o.render()
				dirty = false
			}

		case keyEvent := <-o.keyboard.Events():
			if o.handleKey(ctx, keyEvent) {
				return nil
			}
			o.render()
		}
	}
}

// startJournals attaches the configured journaling subscribers.
func (o *Orchestrator) startJournals() error {
	if o.config.JournalPath != "" {
		journal, err := replay.NewWriter(o.config.JournalPath)
		if err != nil {
			return fmt.Errorf("cannot open journal %s: %w", o.config.JournalPath, err)
		}
		o.journal = journal
		go journal.Consume(o.hub.Subscribe("journal", 256))
	}
	if o.config.JournalDB != "" {
		sink, err := replay.OpenSink(context.Background(), o.config.JournalDB)
		if err != nil {
			return fmt.Errorf("cannot open journal db %s: %w", o.config.JournalDB, err)
		}
		o.sink = sink
		go sink.Consume(o.hub.Subscribe("journal-db", 256))
	}
	return nil
}

// startFollower tails a journal file as a live event source.
func (o *Orchestrator) startFollower() error {
	follower, err := replay.NewFollower(o.config.FollowPath)
	if err != nil {
		return fmt.Errorf("cannot follow journal %s: %w", o.config.FollowPath, err)
	}
	o.follower = follower

	go func() {
		for rec := range follower.Records() {
			if !rec.Replayable() {
				continue
			}
			draft := rec.Draft()
			if draft.ScreenID != "" {
				o.store.Registry().Resolve(draft.ScreenID)
			}
			id := o.store.Restore(draft)
			if entry, ok := o.store.Entry(id); ok {
				o.hub.Publish(entry)
			}
		}
	}()
	return nil
}

func (o *Orchestrator) render() {
	o.display.Render(o.buildFrame())
}

// buildFrame snapshots the store into a render frame.
func (o *Orchestrator) buildFrame() display.Frame {
	reg := o.store.Registry()
	screens := reg.Screens()
	st := o.state

	viewID := reg.Current()
	if st.follow {
		for i, screen := range screens {
			if screen.ID == viewID {
				st.screenIdx = i
			}
		}
	} else {
		if st.screenIdx >= len(screens) {
			st.screenIdx = len(screens) - 1
		}
		if st.screenIdx < 0 {
			st.screenIdx = 0
		}
		viewID = screens[st.screenIdx].ID
	}

	filter := o.colorFilter()
	var entries []model.TimelineEntry
	selectedIdx := -1
	for _, entry := range o.store.SnapshotScreen(viewID) {
		if !entry.Visible() {
			continue
		}
		if filter != "" && entry.ColorTag != filter {
			continue
		}
		if entry.ID == st.selectedID {
			selectedIdx = len(entries)
		}
		entries = append(entries, entry)
	}
	if st.selectedID != 0 && selectedIdx == -1 {
		// The selected entry was removed or filtered out.
		st.selectedID = 0
	}

	o.lastEntries = entries
	o.lastScreen = viewID

	bindAddr := o.config.BindAddr
	if o.server != nil && o.server.Addr() != nil {
		bindAddr = o.server.Addr().String()
	}

	return display.Frame{
		Version:     o.config.Version,
		BindAddr:    bindAddr,
		Screens:     screens,
		ActiveID:    viewID,
		Entries:     entries,
		SelectedIdx: selectedIdx,
		ColorFilter: filter,
		Locks:       reg.Locks(),
		Paused:      st.paused,
		Status:      st.currentStatus(),
	}
}

func (o *Orchestrator) colorFilter() string {
	if o.state.filterIdx < 0 {
		return ""
	}
	colors := o.store.Colors()
	if o.state.filterIdx >= len(colors) {
		o.state.filterIdx = -1
		return ""
	}
	return colors[o.state.filterIdx]
}

// handleKey processes one keypress. Returns true to quit.
func (o *Orchestrator) handleKey(ctx context.Context, event interaction.KeyEvent) bool {
	st := o.state

	switch event.Type {
	case interaction.KeyEscape:
		st.clearTransient()
		return false

	case interaction.KeyLeft:
		st.follow = false
		if st.screenIdx > 0 {
			st.screenIdx--
		}
		st.selectedID = 0
		return false

	case interaction.KeyRight:
		st.follow = false
		st.screenIdx++
		st.selectedID = 0
		return false

	case interaction.KeyUp:
		o.moveSelection(-1)
		return false

	case interaction.KeyDown:
		o.moveSelection(1)
		return false
	}

	switch event.Key {
	case 'q', 3: // q or Ctrl+C
		return true
	case 'f':
		o.cycleFilter()
	case 'c':
		o.submit(ctx, model.Command{Op: model.OpClearScreen, Screen: o.lastScreen})
		st.setStatus("screen cleared")
	case 'x':
		o.submit(ctx, model.Command{Op: model.OpRemove, Entry: st.selectedID})
		st.selectedID = 0
		st.setStatus("entry removed")
	case 'h':
		o.submit(ctx, model.Command{Op: model.OpHide, Entry: st.selectedID})
		st.selectedID = 0
		st.setStatus("entry hidden")
	case 'p':
		st.paused = !st.paused
		if st.paused {
			st.setStatus("paused")
		} else {
			st.setStatus("resumed")
		}
	}
	return false
}

// moveSelection walks the selection through the last rendered entry
// list; moving past the newest entry drops back to follow-the-tail.
func (o *Orchestrator) moveSelection(delta int) {
	entries := o.lastEntries
	if len(entries) == 0 {
		return
	}

	idx := -1
	for i, entry := range entries {
		if entry.ID == o.state.selectedID {
			idx = i
			break
		}
	}

	if idx == -1 {
		if delta < 0 {
			o.state.selectedID = entries[len(entries)-1].ID
		}
		return
	}

	idx += delta
	if idx >= len(entries) {
		o.state.selectedID = 0
		return
	}
	if idx < 0 {
		idx = 0
	}
	o.state.selectedID = entries[idx].ID
}

func (o *Orchestrator) cycleFilter() {
	colors := o.store.Colors()
	o.state.filterIdx++
	if o.state.filterIdx >= len(colors) {
		o.state.filterIdx = -1
		o.state.setStatus("filter off")
		return
	}
	o.state.setStatus("filter: " + colors[o.state.filterIdx])
}

// submit routes a UI command through the ordered ingestion path, so it
// cannot interleave with a commit in progress.
func (o *Orchestrator) submit(ctx context.Context, cmd model.Command) {
	if err := o.pipeline.SubmitCommand(ctx, cmd); err != nil {
		util.LogWarnf("view: command rejected: %v", err)
		o.state.setStatus("command rejected: " + err.Error())
	}
}

func (o *Orchestrator) shutdown() {
	if o.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if err := o.server.Shutdown(ctx); err != nil {
			util.LogWarnf("view: server shutdown: %v", err)
		}
	}
	o.pipeline.Close()
	if o.follower != nil {
		_ = o.follower.Close()
	}
	if o.journal != nil {
		_ = o.journal.Close()
	}
	if o.sink != nil {
		_ = o.sink.Close()
	}
	util.LogInfo("receiver stopped")
}
