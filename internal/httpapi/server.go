package httpapi

import (
	"net/http"

	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/config"
	"github.com/tradecouncil/orchestrator/internal/deliberation"
	"github.com/tradecouncil/orchestrator/internal/market"
	"github.com/tradecouncil/orchestrator/internal/registry"
	"github.com/tradecouncil/orchestrator/internal/session"
	"github.com/tradecouncil/orchestrator/internal/streaming"
)

// Server exposes the deliberation service over websocket.
type Server struct {
	reg      *registry.Registry
	sessions *session.Manager
	events   *streaming.Manager
	orch     *deliberation.Orchestrator
	quoter   market.Quoter
	cfg      *config.Config
	logger   *zap.Logger
}

func NewServer(
	reg *registry.Registry,
	sessions *session.Manager,
	events *streaming.Manager,
	orch *deliberation.Orchestrator,
	quoter market.Quoter,
	cfg *config.Config,
	logger *zap.Logger,
) *Server {
	return &Server{
		reg:      reg,
		sessions: sessions,
		events:   events,
		orch:     orch,
		quoter:   quoter,
		cfg:      cfg,
		logger:   logger,
	}
}

// Routes returns the handler for the public port.
func (s *Server) Routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/ws", s.handleWS)
	return mux
}
