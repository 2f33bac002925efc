package hub

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rayview/internal/core/model"
)

func entry(id int64) model.TimelineEntry {
	return model.TimelineEntry{ID: model.EntryID(id)}
}

func TestPublishDeliversInCommitOrder(t *testing.T) {
	h := New()
	sub := h.Subscribe("render", 8)
	defer sub.Close()

	for i := int64(1); i <= 5; i++ {
		h.Publish(entry(i))
	}

	for i := int64(1); i <= 5; i++ {
		ev := <-sub.C()
		assert.Equal(t, model.EntryID(i), ev.Entry.ID)
		assert.Zero(t, ev.Missed)
	}
}

func TestSlowSubscriberDoesNotBlockPublish(t *testing.T) {
	h := New()
	sub := h.Subscribe("slow", 2)
	defer sub.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := int64(1); i <= 100; i++ {
			h.Publish(entry(i))
		}
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("publish blocked on a slow subscriber")
	}
}

func TestOverflowDropsOldestWithCounter(t *testing.T) {
	h := New()
	sub := h.Subscribe("lagging", 2)
	defer sub.Close()

	for i := int64(1); i <= 5; i++ {
		h.Publish(entry(i))
	}

	// Buffer holds the two newest; earlier ones were shed, oldest
	// first, and the loss is counted on a delivered event.
	var delivered []Event
	for len(sub.ch) > 0 {
		delivered = append(delivered, <-sub.ch)
	}
	require.Len(t, delivered, 2)
	assert.Equal(t, model.EntryID(4), delivered[0].Entry.ID)
	assert.Equal(t, model.EntryID(5), delivered[1].Entry.ID)

	var missed uint64
	for _, ev := range delivered {
		missed += ev.Missed
	}
	assert.Equal(t, uint64(3), missed, "all shed notifications must be accounted for")
}

func TestCloseDetachesSubscriber(t *testing.T) {
	h := New()
	sub := h.Subscribe("tmp", 4)
	assert.Equal(t, 1, h.Subscribers())

	sub.Close()
	assert.Equal(t, 0, h.Subscribers())

	_, open := <-sub.C()
	assert.False(t, open, "channel must be closed")

	// Publishing after close must not panic.
	h.Publish(entry(1))

	// Close is idempotent.
	sub.Close()
}

func TestIndependentSubscribers(t *testing.T) {
	h := New()
	fast := h.Subscribe("fast", 16)
	slow := h.Subscribe("slow", 1)
	defer fast.Close()
	defer slow.Close()

	for i := int64(1); i <= 10; i++ {
		h.Publish(entry(i))
	}

	assert.Len(t, fast.ch, 10, "fast subscriber sees everything")
	assert.Len(t, slow.ch, 1, "slow subscriber keeps only the newest")

	ev := <-slow.C()
	assert.Equal(t, model.EntryID(10), ev.Entry.ID)
	assert.Equal(t, uint64(9), ev.Missed)
}
