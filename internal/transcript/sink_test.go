package transcript

import (
	"context"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/tradecouncil/orchestrator/internal/session"
)

func TestRedisSinkAppend(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)
	defer mr.Close()

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	sink := NewRedisSink(client, 100, zap.NewNop())
	sink.Append(context.Background(), session.Message{
		SessionID:   "sess-1",
		Round:       1,
		Participant: "MarketAnalyst",
		Content:     "AAPL sieht stark aus",
		Seq:         1,
	})
	sink.Append(context.Background(), session.Message{
		SessionID:   "sess-1",
		Round:       1,
		Participant: "NewsResearcher",
		Content:     "Keine negativen Nachrichten",
		Seq:         2,
	})

	entries, err := client.XRange(context.Background(), "transcript:sess-1", "-", "+").Result()
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "MarketAnalyst", entries[0].Values["participant"])
	assert.Equal(t, "2", entries[1].Values["seq"])
}

func TestRedisSinkSurvivesBrokenConnection(t *testing.T) {
	mr, err := miniredis.Run()
	require.NoError(t, err)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()
	mr.Close()

	sink := NewRedisSink(client, 100, zap.NewNop())
	// Must not panic or block; failures are dropped.
	sink.Append(context.Background(), session.Message{SessionID: "sess-1", Seq: 1})
}
