package ingest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rayview/internal/core/model"
	"rayview/internal/core/registry"
	"rayview/internal/core/store"
	"rayview/internal/hub"
	"rayview/internal/protocol"
)

func newTestPipeline(t *testing.T, queueDepth int, opts ...PipelineOption) (*Pipeline, *store.Store, *hub.Hub) {
	t.Helper()
	st := store.New(registry.New())
	hb := hub.New()
	p := NewPipeline(st, hb, queueDepth, opts...)
	t.Cleanup(p.Close)
	return p, st, hb
}

func submitJSON(t *testing.T, p *Pipeline, raw string) {
	t.Helper()
	req, err := protocol.Decode([]byte(raw))
	require.NoError(t, err)
	require.NoError(t, p.Submit(context.Background(), req, Source{RemoteAddr: "10.0.0.5:1111"}))
}

func waitEvents(t *testing.T, sub *hub.Subscription, n int) []hub.Event {
	t.Helper()
	events := make([]hub.Event, 0, n)
	timeout := time.After(2 * time.Second)
	for len(events) < n {
		select {
		case ev := <-sub.C():
			events = append(events, ev)
		case <-timeout:
			t.Fatalf("timed out waiting for %d events, got %d", n, len(events))
		}
	}
	return events
}

func visibleEntries(st *store.Store) []model.TimelineEntry {
	var out []model.TimelineEntry
	for _, e := range st.Snapshot() {
		if e.Visible() {
			out = append(out, e)
		}
	}
	return out
}

func TestLogThenCountEndToEnd(t *testing.T) {
	p, st, hb := newTestPipeline(t, 16)
	sub := hb.Subscribe("test", 16)
	defer sub.Close()

	submitJSON(t, p, `{"uuid":"a","payloads":[{"type":"log","content":{"values":["hello"],"meta":[]}}],"meta":{"hostname":"h","project_name":"p"}}`)
	submitJSON(t, p, `{"uuid":"b","payloads":[{"type":"count","content":{"value":3}}],"meta":{"hostname":"h","project_name":"p"}}`)

	events := waitEvents(t, sub, 2)
	// Both notifications point at the same surviving entry.
	assert.Equal(t, events[0].Entry.ID, events[1].Entry.ID)

	entries := visibleEntries(st)
	require.Len(t, entries, 1)
	assert.Equal(t, "hello", entries[0].Content.DisplayText())
	assert.Equal(t, 3, entries[0].Count)
}

func TestCommitOrderMatchesSubmissionOrder(t *testing.T) {
	p, st, hb := newTestPipeline(t, 64)
	sub := hb.Subscribe("order", 64)
	defer sub.Close()

	for i := 0; i < 20; i++ {
		submitJSON(t, p, fmt.Sprintf(
			`{"uuid":"u%d","payloads":[{"type":"log","content":{"values":["m%d"],"meta":[]}}],"meta":{"hostname":"h"}}`, i, i))
	}

	events := waitEvents(t, sub, 20)
	for i, ev := range events {
		assert.Equal(t, fmt.Sprintf("m%d", i), ev.Entry.Content.DisplayText())
	}

	entries := st.Snapshot()
	require.Len(t, entries, 20)
	for i := 1; i < len(entries); i++ {
		assert.Equal(t, entries[i-1].ID+1, entries[i].ID)
	}
}

func TestScreenHintRoutesEntries(t *testing.T) {
	p, st, hb := newTestPipeline(t, 16)
	sub := hb.Subscribe("screens", 16)
	defer sub.Close()

	submitJSON(t, p, `{"uuid":"a","payloads":[{"type":"log","content":{"values":["routed"],"meta":[]}}],"meta":{"hostname":"h","screen":"Queries"}}`)
	waitEvents(t, sub, 1)

	entries := st.SnapshotScreen("queries")
	require.Len(t, entries, 1)
	assert.Equal(t, "routed", entries[0].Content.DisplayText())
}

func TestNewScreenSwitchesSubsequentEntries(t *testing.T) {
	p, st, hb := newTestPipeline(t, 16)
	sub := hb.Subscribe("switch", 16)
	defer sub.Close()

	submitJSON(t, p, `{"uuid":"a","payloads":[{"type":"new_screen","content":{"name":"Debug"}}],"meta":{"hostname":"h"}}`)
	submitJSON(t, p, `{"uuid":"b","payloads":[{"type":"log","content":{"values":["after"],"meta":[]}}],"meta":{"hostname":"h"}}`)
	waitEvents(t, sub, 2)

	entries := st.SnapshotScreen("debug")
	require.Len(t, entries, 2)
	assert.Equal(t, "debug", st.Registry().Current())
}

func TestLockPayloadRegistersLock(t *testing.T) {
	p, st, hb := newTestPipeline(t, 16)
	sub := hb.Subscribe("locks", 16)
	defer sub.Close()

	submitJSON(t, p, `{"uuid":"a","payloads":[{"type":"create_lock","content":{"name":"pause"}},{"type":"log","content":{"values":["locked"],"meta":[]}}],"meta":{"hostname":"h"}}`)
	waitEvents(t, sub, 1)

	require.True(t, st.Registry().Active("pause"))
	lock, _ := st.Registry().Lock("pause")
	assert.Equal(t, "h", lock.Holder)
}

func TestColorFollowUpTagsPreviousEntry(t *testing.T) {
	p, st, hb := newTestPipeline(t, 16)
	sub := hb.Subscribe("color", 16)
	defer sub.Close()

	submitJSON(t, p, `{"uuid":"a","payloads":[{"type":"log","content":{"values":["tint me"],"meta":[]}}],"meta":{"hostname":"h"}}`)
	submitJSON(t, p, `{"uuid":"b","payloads":[{"type":"color","content":{"color":"red"}}],"meta":{"hostname":"h"}}`)

	events := waitEvents(t, sub, 2)
	assert.Equal(t, "red", events[1].Entry.ColorTag)

	entries := visibleEntries(st)
	require.Len(t, entries, 1)
	assert.Equal(t, "red", entries[0].ColorTag)
}

func TestSyntheticCommandsShareTheOrderedPath(t *testing.T) {
	p, st, hb := newTestPipeline(t, 16)
	sub := hb.Subscribe("cmd", 16)
	defer sub.Close()

	submitJSON(t, p, `{"uuid":"a","payloads":[{"type":"log","content":{"values":["doomed"],"meta":[]}}],"meta":{"hostname":"h"}}`)
	events := waitEvents(t, sub, 1)

	require.NoError(t, p.SubmitCommand(context.Background(), model.Command{Op: model.OpRemove, Entry: events[0].Entry.ID}))

	require.Eventually(t, func() bool {
		return len(visibleEntries(st)) == 0
	}, 2*time.Second, 10*time.Millisecond)

	entry, ok := st.Entry(events[0].Entry.ID)
	require.True(t, ok, "removal is soft")
	assert.True(t, entry.Removed)
}

func TestCloseDrainsQueuedSubmissions(t *testing.T) {
	st := store.New(registry.New())
	p := NewPipeline(st, hub.New(), 64)

	for i := 0; i < 10; i++ {
		req, err := protocol.Decode([]byte(fmt.Sprintf(
			`{"uuid":"u%d","payloads":[{"type":"log","content":{"values":["m"],"meta":[]}}],"meta":{"hostname":"h"}}`, i)))
		require.NoError(t, err)
		require.NoError(t, p.Submit(context.Background(), req, Source{}))
	}

	p.Close()
	assert.Equal(t, 10, st.Len(), "queued submissions must be drained before stopping")

	req, err := protocol.Decode([]byte(`{"uuid":"late","payloads":[],"meta":{}}`))
	require.NoError(t, err)
	assert.ErrorIs(t, p.Submit(context.Background(), req, Source{}), ErrShuttingDown)
}

func TestBackpressureNeverDropsAcceptedSubmissions(t *testing.T) {
	p, st, _ := newTestPipeline(t, 1, WithSubmitWait(20*time.Millisecond))

	const producers = 8
	const perProducer = 25

	var accepted atomic.Int64
	var rejected atomic.Int64
	var wg sync.WaitGroup

	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				req, err := protocol.Decode([]byte(fmt.Sprintf(
					`{"uuid":"p%d-%d","payloads":[{"type":"log","content":{"values":["m"],"meta":[]}}],"meta":{"hostname":"h%d"}}`, n, j, n)))
				require.NoError(t, err)
				switch err := p.Submit(context.Background(), req, Source{}); err {
				case nil:
					accepted.Add(1)
				case ErrQueueFull:
					rejected.Add(1)
				default:
					t.Errorf("unexpected submit error: %v", err)
				}
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int64(producers*perProducer), accepted.Load()+rejected.Load())

	// Every accepted submission is eventually committed; none vanish.
	require.Eventually(t, func() bool {
		return int64(st.Len()) == accepted.Load()
	}, 2*time.Second, 10*time.Millisecond)
}
