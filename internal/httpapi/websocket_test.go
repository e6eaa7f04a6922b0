package httpapi

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/config"
	"github.com/tradecouncil/orchestrator/internal/deliberation"
	"github.com/tradecouncil/orchestrator/internal/market"
	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/streaming"
	"github.com/tradecouncil/orchestrator/internal/transcript"
)

type stubInvoker struct{}

func (stubInvoker) Invoke(_ context.Context, p registry.Participant, input string) (string, error) {
	if strings.Contains(input, "stimme ab") {
		return "Einverstanden. [CONSENSUS: AGREE]", nil
	}
	if strings.Contains(input, "finalen Bericht") {
		return "# Fazit\n\n- Lage geprüft\n- Der Rat ist sich einig über das weitere Vorgehen.", nil
	}
	return "Keine neuen Erkenntnisse zur Lage.", nil
}

type stubQuoter struct{}

func (stubQuoter) Quote(_ context.Context, symbol string) (*market.Quote, error) {
	return nil, market.ErrQuoteNotFound
}

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()
	cfg := config.Default()
	cfg.Deliberation.InvocationTimeout = 2 * time.Second
	logger := zap.NewNop()

	sessions := session.NewManager(
		session.Limits{MaxTurns: cfg.Deliberation.MaxTurns, MaxStalls: cfg.Deliberation.MaxStalls},
		session.ContextLimits{MaxRecentTurns: 5, MaxActiveSymbols: 5},
		cfg.Session.IdleTTL, cfg.Session.MaxSessions, logger,
	)
	events := streaming.NewManager(cfg.Streaming.RingCapacity)
	reg := registry.New()
	orch := deliberation.NewOrchestrator(
		reg, sessions, events, stubInvoker{}, stubQuoter{},
		transcript.NopSink{}, cfg.Deliberation, logger,
	)
	srv := NewServer(reg, sessions, events, orch, stubQuoter{}, cfg, logger)

	ts := httptest.NewServer(srv.Routes())
	t.Cleanup(ts.Close)
	return ts
}

func dial(t *testing.T, ts *httptest.Server, query string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws" + query
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEvent(t *testing.T, conn *websocket.Conn) streaming.Event {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var evt streaming.Event
	require.NoError(t, json.Unmarshal(data, &evt))
	return evt
}

func TestWSGreetsOnConnect(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "?session_id=ws-greet")

	evt := readEvent(t, conn)
	assert.Equal(t, streaming.TypeConnected, evt.Type)
	assert.Equal(t, "ws-greet", evt.SessionID)
}

func TestWSQueryStreamsDeliberation(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "?session_id=ws-delib")
	readEvent(t, conn) // connected

	require.NoError(t, conn.WriteJSON(inbound{Type: "query", Message: "Sollten wir AAPL jetzt kaufen oder abwarten?"}))

	var types []string
	for {
		evt := readEvent(t, conn)
		types = append(types, evt.Type)
		if evt.Type == streaming.TypeQueryComplete || evt.Type == streaming.TypeError {
			break
		}
	}
	assert.Contains(t, types, streaming.TypeQueryStart)
	assert.Contains(t, types, streaming.TypeAgentMessage)
	assert.Equal(t, streaming.TypeQueryComplete, types[len(types)-1])
}

func TestWSPingGetsPong(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "?session_id=ws-ping")
	readEvent(t, conn) // connected

	require.NoError(t, conn.WriteJSON(inbound{Type: "ping"}))
	evt := readEvent(t, conn)
	assert.Equal(t, streaming.TypePong, evt.Type)
}

func TestWSAgentStatusesSnapshot(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "?session_id=ws-statuses")
	readEvent(t, conn) // connected

	require.NoError(t, conn.WriteJSON(inbound{Type: "agent_statuses"}))
	evt := readEvent(t, conn)
	assert.Equal(t, streaming.TypeAgentStatus, evt.Type)

	statuses, ok := evt.Data.([]any)
	require.True(t, ok)
	assert.Len(t, statuses, 6)
}

func TestWSReplaySince(t *testing.T) {
	ts := newTestServer(t)

	first := dial(t, ts, "?session_id=ws-replay")
	readEvent(t, first) // connected
	require.NoError(t, first.WriteJSON(inbound{Type: "query", Message: "Sollten wir MSFT jetzt kaufen oder abwarten?"}))

	var lastSeq uint64
	for {
		evt := readEvent(t, first)
		if evt.Seq > 0 {
			lastSeq = evt.Seq
		}
		if evt.Type == streaming.TypeQueryComplete {
			break
		}
	}
	require.Greater(t, lastSeq, uint64(2))
	first.Close()

	// Reconnect missing the last two events; they must be replayed in order.
	second := dial(t, ts, "?session_id=ws-replay&last_seq="+strconv.FormatUint(lastSeq-2, 10))
	evt := readEvent(t, second)
	assert.Equal(t, streaming.TypeConnected, evt.Type)

	replayed := readEvent(t, second)
	assert.Equal(t, lastSeq-1, replayed.Seq)
	replayed = readEvent(t, second)
	assert.Equal(t, lastSeq, replayed.Seq)
	assert.Equal(t, streaming.TypeQueryComplete, replayed.Type)
}

func TestWSMalformedFrameIsIgnored(t *testing.T) {
	ts := newTestServer(t)
	conn := dial(t, ts, "?session_id=ws-garbage")
	readEvent(t, conn) // connected

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{not json")))
	require.NoError(t, conn.WriteJSON(inbound{Type: "ping"}))
	evt := readEvent(t, conn)
	assert.Equal(t, streaming.TypePong, evt.Type)
}
