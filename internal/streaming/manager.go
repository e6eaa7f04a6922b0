package streaming

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/tradecouncil/orchestrator/internal/metrics"
)

// Event types published over a session's stream.
const (
	TypeConnected           = "connected"
	TypeQueryStart          = "query_start"
	TypeClarificationNeeded = "clarification_needed"
	TypeQuickResponse       = "quick_response"
	TypeAgentStatus         = "agent_status"
	TypeAgentMessage        = "agent_message"
	TypeTradeRecommendation = "trade_recommendation"
	TypeChartConfig         = "chart_config"
	TypeConsensusUpdate     = "consensus_update"
	TypeQueryComplete       = "query_complete"
	TypeError               = "error"
	TypePong                = "pong"
)

// Event is one streaming event. Seq is assigned per session at publish time
// and supports replay after reconnect.
type Event struct {
	SessionID string    `json:"session_id"`
	Type      string    `json:"type"`
	Agent     string    `json:"agent,omitempty"`
	Round     int       `json:"round,omitempty"`
	Content   string    `json:"content,omitempty"`
	Data      any       `json:"data,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	Seq       uint64    `json:"seq"`
}

// Marshal returns the event's JSON for the wire or logs.
func (e Event) Marshal() []byte {
	b, _ := json.Marshal(e)
	return b
}

// Manager provides in-memory pub/sub for session events, with a per-session
// ring buffer for replay and Last-Event-Seq support.
type Manager struct {
	mu          sync.RWMutex
	subscribers map[string]map[chan Event]struct{}
	history     map[string]*ring
	capacity    int
}

// NewManager creates an event manager whose rings hold capacity events each.
func NewManager(capacity int) *Manager {
	if capacity <= 0 {
		capacity = 256
	}
	return &Manager{
		subscribers: make(map[string]map[chan Event]struct{}),
		history:     make(map[string]*ring),
		capacity:    capacity,
	}
}

// Subscribe adds a subscriber channel for a session; caller must drain and
// call Unsubscribe.
func (m *Manager) Subscribe(sessionID string, buffer int) chan Event {
	ch := make(chan Event, buffer)
	m.mu.Lock()
	defer m.mu.Unlock()
	subs := m.subscribers[sessionID]
	if subs == nil {
		subs = make(map[chan Event]struct{})
		m.subscribers[sessionID] = subs
	}
	subs[ch] = struct{}{}
	return ch
}

// Unsubscribe removes the subscriber channel and closes it.
func (m *Manager) Unsubscribe(sessionID string, ch chan Event) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if subs, ok := m.subscribers[sessionID]; ok {
		delete(subs, ch)
		close(ch)
		if len(subs) == 0 {
			delete(m.subscribers, sessionID)
		}
	}
}

// Publish assigns the event's Seq, records it in the session's ring and sends
// it to all subscribers without blocking. Delivery happens under the lock so
// subscribers observe events in seq order even when publishers race. Slow
// subscribers drop events; the ring keeps them for replay.
func (m *Manager) Publish(sessionID string, evt Event) Event {
	evt.SessionID = sessionID
	if evt.Timestamp.IsZero() {
		evt.Timestamp = time.Now()
	}
	m.mu.Lock()
	rg := m.history[sessionID]
	if rg == nil {
		rg = newRing(m.capacity)
		m.history[sessionID] = rg
	}
	rg.nextSeq++
	evt.Seq = rg.nextSeq
	rg.push(evt)
	for ch := range m.subscribers[sessionID] {
		select {
		case ch <- evt:
		default:
			metrics.EventsDropped.Inc()
		}
	}
	m.mu.Unlock()

	metrics.EventsPublished.WithLabelValues(evt.Type).Inc()
	return evt
}

// ReplaySince returns events with Seq > since, best-effort within the ring's
// capacity. The lock is held across the ring read so a concurrent Publish
// cannot tear the snapshot.
func (m *Manager) ReplaySince(sessionID string, since uint64) []Event {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rg := m.history[sessionID]
	if rg == nil {
		return nil
	}
	return rg.since(since)
}

// Forget drops a session's history and closes any remaining subscribers.
func (m *Manager) Forget(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.history, sessionID)
	if subs, ok := m.subscribers[sessionID]; ok {
		for ch := range subs {
			close(ch)
		}
		delete(m.subscribers, sessionID)
	}
}

// ring is a fixed-capacity ring buffer of events.
type ring struct {
	buf     []Event
	start   int
	count   int
	nextSeq uint64
}

func newRing(capacity int) *ring { return &ring{buf: make([]Event, capacity)} }

func (r *ring) push(e Event) {
	if len(r.buf) == 0 {
		return
	}
	if r.count < len(r.buf) {
		r.buf[(r.start+r.count)%len(r.buf)] = e
		r.count++
		return
	}
	// overwrite oldest
	r.buf[r.start] = e
	r.start = (r.start + 1) % len(r.buf)
}

func (r *ring) since(seq uint64) []Event {
	if r.count == 0 {
		return nil
	}
	out := make([]Event, 0, r.count)
	for i := 0; i < r.count; i++ {
		ev := r.buf[(r.start+i)%len(r.buf)]
		if ev.Seq > seq {
			out = append(out, ev)
		}
	}
	return out
}
