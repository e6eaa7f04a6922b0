package streaming

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRingReplaySince(t *testing.T) {
	r := newRing(3)
	// Push 4 events; the first is overwritten.
	for i := 0; i < 4; i++ {
		r.push(Event{Seq: uint64(i + 1)})
	}
	evs := r.since(0)
	require.Len(t, evs, 3)
	assert.Equal(t, uint64(2), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[2].Seq)

	evs = r.since(2)
	require.Len(t, evs, 2)
	assert.Equal(t, uint64(3), evs[0].Seq)
	assert.Equal(t, uint64(4), evs[1].Seq)
}

func TestPublishAssignsMonotonicSeq(t *testing.T) {
	m := NewManager(16)
	for i := 1; i <= 5; i++ {
		evt := m.Publish("sess-1", Event{Type: TypeAgentMessage})
		assert.Equal(t, uint64(i), evt.Seq)
		assert.False(t, evt.Timestamp.IsZero())
		assert.Equal(t, "sess-1", evt.SessionID)
	}
	// Independent sequence per session.
	evt := m.Publish("sess-2", Event{Type: TypeQueryStart})
	assert.Equal(t, uint64(1), evt.Seq)
}

func TestSubscribeReceivesEvents(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("sess-1", 8)
	defer m.Unsubscribe("sess-1", ch)

	m.Publish("sess-1", Event{Type: TypeAgentStatus, Agent: "MarketAnalyst", Content: "thinking"})
	m.Publish("sess-2", Event{Type: TypeAgentStatus})

	evt := <-ch
	assert.Equal(t, TypeAgentStatus, evt.Type)
	assert.Equal(t, "MarketAnalyst", evt.Agent)
	select {
	case unexpected := <-ch:
		t.Fatalf("received event for other session: %+v", unexpected)
	default:
	}
}

func TestSlowSubscriberDropsNotBlocks(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("sess-1", 1)
	defer m.Unsubscribe("sess-1", ch)

	// Second publish overflows the subscriber buffer but must not block.
	m.Publish("sess-1", Event{Type: TypeAgentMessage, Content: "a"})
	m.Publish("sess-1", Event{Type: TypeAgentMessage, Content: "b"})

	evt := <-ch
	assert.Equal(t, "a", evt.Content)

	// The dropped event is still replayable from the ring.
	evs := m.ReplaySince("sess-1", evt.Seq)
	require.Len(t, evs, 1)
	assert.Equal(t, "b", evs[0].Content)
}

func TestUnsubscribeClosesChannel(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("sess-1", 1)
	m.Unsubscribe("sess-1", ch)
	_, open := <-ch
	assert.False(t, open)
}

func TestReplaySinceUnknownSession(t *testing.T) {
	m := NewManager(16)
	assert.Nil(t, m.ReplaySince("missing", 0))
}

func TestForget(t *testing.T) {
	m := NewManager(16)
	ch := m.Subscribe("sess-1", 1)
	m.Publish("sess-1", Event{Type: TypeQueryStart})
	<-ch

	m.Forget("sess-1")
	assert.Nil(t, m.ReplaySince("sess-1", 0))
	_, open := <-ch
	assert.False(t, open)

	// Fresh ring after forget restarts the sequence.
	evt := m.Publish("sess-1", Event{Type: TypeQueryStart})
	assert.Equal(t, uint64(1), evt.Seq)
}

func TestReplaySinceConsistentUnderPublish(t *testing.T) {
	m := NewManager(64)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for i := 0; i < 500; i++ {
			m.Publish("sess-1", Event{Type: TypeAgentMessage})
		}
	}()

	// Every snapshot taken while the publisher runs must be contiguous and
	// strictly ascending; a torn ring read would break either property.
	for i := 0; i < 200; i++ {
		evs := m.ReplaySince("sess-1", 0)
		for j := 1; j < len(evs); j++ {
			require.Equal(t, evs[j-1].Seq+1, evs[j].Seq)
		}
	}
	<-done

	evs := m.ReplaySince("sess-1", 0)
	require.NotEmpty(t, evs)
	assert.Equal(t, uint64(500), evs[len(evs)-1].Seq)
}
