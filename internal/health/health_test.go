package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestCheckAggregation(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(NewFuncChecker("ok", true, func(ctx context.Context) error { return nil }))

	overall := m.Check(context.Background())
	assert.Equal(t, StatusHealthy, overall.Status)

	m.Register(NewFuncChecker("flaky", false, func(ctx context.Context) error {
		return errors.New("timeout")
	}))
	overall = m.Check(context.Background())
	assert.Equal(t, StatusDegraded, overall.Status)
	assert.Equal(t, StatusUnhealthy, overall.Components["flaky"].Status)
	assert.True(t, m.Ready(context.Background()))

	m.Register(NewFuncChecker("broken", true, func(ctx context.Context) error {
		return errors.New("down")
	}))
	overall = m.Check(context.Background())
	assert.Equal(t, StatusUnhealthy, overall.Status)
	assert.False(t, m.Ready(context.Background()))
}

func TestCheckHonorsTimeout(t *testing.T) {
	m := NewManager(20 * time.Millisecond)
	m.Register(NewFuncChecker("slow", true, func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
			return nil
		}
	}))

	start := time.Now()
	overall := m.Check(context.Background())
	assert.Less(t, time.Since(start), 500*time.Millisecond)
	assert.Equal(t, StatusUnhealthy, overall.Status)
}

func TestRedisChecker(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	defer client.Close()

	c := NewRedisChecker(client)
	assert.False(t, c.Critical())
	require.NoError(t, c.Check(context.Background()))

	mr.Close()
	assert.Error(t, c.Check(context.Background()))
}

func TestHTTPEndpoints(t *testing.T) {
	m := NewManager(time.Second)
	m.Register(NewFuncChecker("ok", true, func(ctx context.Context) error { return nil }))

	mux := http.NewServeMux()
	NewHTTPHandler(m, zap.NewNop()).RegisterRoutes(mux)
	srv := httptest.NewServer(mux)
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var overall Overall
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&overall))
	assert.Equal(t, StatusHealthy, overall.Status)
	assert.Contains(t, overall.Components, "ok")

	live, err := http.Get(srv.URL + "/health/live")
	require.NoError(t, err)
	live.Body.Close()
	assert.Equal(t, http.StatusOK, live.StatusCode)

	m.Register(NewFuncChecker("broken", true, func(ctx context.Context) error {
		return errors.New("down")
	}))
	ready, err := http.Get(srv.URL + "/health/ready")
	require.NoError(t, err)
	ready.Body.Close()
	assert.Equal(t, http.StatusServiceUnavailable, ready.StatusCode)
}
