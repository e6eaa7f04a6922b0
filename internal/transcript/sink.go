package transcript

import (
	"context"
	"encoding/json"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/metrics"
	"github.com/tradecouncil/orchestrator/internal/session"
)

// Sink receives every transcript message as a fire-and-forget side channel.
// Failures never affect the deliberation.
type Sink interface {
	Append(ctx context.Context, msg session.Message)
}

// NopSink discards everything.
type NopSink struct{}

func (NopSink) Append(context.Context, session.Message) {}

// RedisSink appends messages to a per-session redis stream, capped at maxLen
// entries. Append errors are logged and dropped.
type RedisSink struct {
	client *redis.Client
	maxLen int64
	logger *zap.Logger
}

// NewRedisSink creates a sink writing to streams named transcript:<session>.
func NewRedisSink(client *redis.Client, maxLen int64, logger *zap.Logger) *RedisSink {
	return &RedisSink{client: client, maxLen: maxLen, logger: logger}
}

func (s *RedisSink) Append(ctx context.Context, msg session.Message) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return
	}
	err = s.client.XAdd(ctx, &redis.XAddArgs{
		Stream: "transcript:" + msg.SessionID,
		MaxLen: s.maxLen,
		Approx: true,
		Values: map[string]interface{}{
			"seq":         msg.Seq,
			"round":       msg.Round,
			"participant": msg.Participant,
			"message":     payload,
		},
	}).Err()
	if err != nil {
		metrics.TranscriptFailures.Inc()
		s.logger.Warn("transcript append failed",
			zap.String("session_id", msg.SessionID),
			zap.Uint64("seq", msg.Seq),
			zap.Error(err))
		return
	}
	metrics.TranscriptAppends.Inc()
}
