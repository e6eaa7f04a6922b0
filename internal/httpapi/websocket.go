package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/tradecouncil/orchestrator/internal/market"
	"github.com/tradecouncil/orchestrator/internal/metrics"
	"github.com/tradecouncil/orchestrator/internal/streaming"
)

const (
	writeTimeout = 10 * time.Second
	pongTimeout  = 60 * time.Second
	pingInterval = 20 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	// The service sits behind a gateway that enforces origin policy.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// inbound is a client-to-server websocket frame.
type inbound struct {
	Type      string `json:"type"`
	Message   string `json:"message,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	Symbol    string `json:"symbol,omitempty"`
}

// wsClient serializes writes to one websocket connection. The event
// forwarder and the read loop both send frames, so every write goes
// through send under the mutex.
type wsClient struct {
	conn    *websocket.Conn
	mu      sync.Mutex
	limiter *rate.Limiter
}

func (c *wsClient) send(ctx context.Context, evt streaming.Event) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	payload := evt.Marshal()
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return c.conn.WriteMessage(websocket.TextMessage, payload)
}

// handleWS upgrades the connection and runs the session event loop. One
// connection serves one session; queries arriving on the connection are
// executed against that session, and all session events flow back over it.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	sessionID := r.URL.Query().Get("session_id")
	if sessionID == "" {
		sessionID = uuid.NewString()
	}
	lastSeq, _ := strconv.ParseUint(r.URL.Query().Get("last_seq"), 10, 64)

	metrics.ActiveConnections.Inc()
	logger := s.logger.With(zap.String("session_id", sessionID))
	logger.Info("websocket connected", zap.Uint64("last_seq", lastSeq))

	client := &wsClient{
		conn: conn,
		limiter: rate.NewLimiter(
			rate.Limit(s.cfg.Streaming.ClientRatePerSec),
			s.cfg.Streaming.ClientBurst,
		),
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer func() {
		cancel()
		conn.Close()
		metrics.ActiveConnections.Dec()
		logger.Info("websocket disconnected")
	}()

	greeting := streaming.Event{
		SessionID: sessionID,
		Type:      streaming.TypeConnected,
		Content:   "verbunden",
		Timestamp: time.Now(),
	}
	if err := client.send(ctx, greeting); err != nil {
		return
	}
	for _, evt := range s.events.ReplaySince(sessionID, lastSeq) {
		if err := client.send(ctx, evt); err != nil {
			return
		}
	}

	ch := s.events.Subscribe(sessionID, 256)
	go func() {
		defer s.events.Unsubscribe(sessionID, ch)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-ch:
				if !ok {
					return
				}
				if err := client.send(ctx, evt); err != nil {
					cancel()
					return
				}
			}
		}
	}()

	go func() {
		ticker := time.NewTicker(pingInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				client.mu.Lock()
				conn.SetWriteDeadline(time.Now().Add(writeTimeout))
				err := conn.WriteMessage(websocket.PingMessage, nil)
				client.mu.Unlock()
				if err != nil {
					cancel()
					return
				}
			}
		}
	}()

	conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongTimeout))
		return nil
	})

	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				logger.Warn("websocket read failed", zap.Error(err))
			}
			return
		}
		conn.SetReadDeadline(time.Now().Add(pongTimeout))

		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			logger.Warn("malformed client frame", zap.Error(err))
			continue
		}
		s.dispatch(ctx, sessionID, msg)
	}
}

func (s *Server) dispatch(ctx context.Context, sessionID string, msg inbound) {
	switch msg.Type {
	case "query":
		if msg.Message == "" {
			return
		}
		id := sessionID
		if msg.SessionID != "" {
			id = msg.SessionID
		}
		go s.orch.Run(ctx, id, msg.Message)
	case "quote":
		if msg.Symbol == "" {
			return
		}
		go func() {
			qctx, cancel := context.WithTimeout(ctx, s.cfg.Market.QuoteTimeout)
			defer cancel()
			content := market.QuickResponse(qctx, s.quoter, []string{msg.Symbol}, s.logger)
			s.events.Publish(sessionID, streaming.Event{
				SessionID: sessionID,
				Type:      streaming.TypeQuickResponse,
				Content:   content,
				Timestamp: time.Now(),
			})
		}()
	case "agent_statuses":
		type agentStatus struct {
			Agent  string `json:"agent"`
			Role   string `json:"role"`
			Status string `json:"status"`
		}
		roster := s.reg.List()
		statuses := make([]agentStatus, 0, len(roster))
		for _, p := range roster {
			statuses = append(statuses, agentStatus{Agent: p.Name, Role: p.Description, Status: "bereit"})
		}
		s.events.Publish(sessionID, streaming.Event{
			SessionID: sessionID,
			Type:      streaming.TypeAgentStatus,
			Data:      statuses,
			Timestamp: time.Now(),
		})
	case "ping":
		s.events.Publish(sessionID, streaming.Event{
			SessionID: sessionID,
			Type:      streaming.TypePong,
			Timestamp: time.Now(),
		})
	default:
		s.logger.Debug("unknown client frame type", zap.String("type", msg.Type))
	}
}
