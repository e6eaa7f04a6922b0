package health

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Status of one component or of the service overall.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusDegraded  Status = "degraded"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult is the outcome of one component check.
type CheckResult struct {
	Component string    `json:"component"`
	Status    Status    `json:"status"`
	Error     string    `json:"error,omitempty"`
	Critical  bool      `json:"critical"`
	Timestamp time.Time `json:"timestamp"`
}

// Checker probes one dependency.
type Checker interface {
	Name() string
	// Critical failures mark the whole service unhealthy; non-critical ones
	// only degrade it.
	Critical() bool
	Check(ctx context.Context) error
}

// Overall is the aggregated service health.
type Overall struct {
	Status     Status                 `json:"status"`
	Components map[string]CheckResult `json:"components"`
	Timestamp  time.Time              `json:"timestamp"`
}

// Manager runs the registered checkers on demand.
type Manager struct {
	mu       sync.RWMutex
	checkers []Checker
	timeout  time.Duration
}

// NewManager creates a health manager; each check gets timeout to answer.
func NewManager(timeout time.Duration) *Manager {
	if timeout <= 0 {
		timeout = 3 * time.Second
	}
	return &Manager{timeout: timeout}
}

// Register adds a checker.
func (m *Manager) Register(c Checker) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.checkers = append(m.checkers, c)
}

// Check probes every component and aggregates the result.
func (m *Manager) Check(ctx context.Context) Overall {
	m.mu.RLock()
	checkers := append([]Checker(nil), m.checkers...)
	m.mu.RUnlock()

	overall := Overall{
		Status:     StatusHealthy,
		Components: make(map[string]CheckResult, len(checkers)),
		Timestamp:  time.Now(),
	}
	for _, c := range checkers {
		cctx, cancel := context.WithTimeout(ctx, m.timeout)
		err := c.Check(cctx)
		cancel()
		result := CheckResult{
			Component: c.Name(),
			Status:    StatusHealthy,
			Critical:  c.Critical(),
			Timestamp: time.Now(),
		}
		if err != nil {
			result.Error = err.Error()
			result.Status = StatusUnhealthy
			if c.Critical() {
				overall.Status = StatusUnhealthy
			} else if overall.Status == StatusHealthy {
				overall.Status = StatusDegraded
			}
		}
		overall.Components[c.Name()] = result
	}
	return overall
}

// Ready reports whether the service can take traffic.
func (m *Manager) Ready(ctx context.Context) bool {
	return m.Check(ctx).Status != StatusUnhealthy
}

// RedisChecker pings the transcript/cache redis. Non-critical: the service
// deliberates fine without it.
type RedisChecker struct {
	client *redis.Client
}

func NewRedisChecker(client *redis.Client) *RedisChecker {
	return &RedisChecker{client: client}
}

func (r *RedisChecker) Name() string   { return "redis" }
func (r *RedisChecker) Critical() bool { return false }

func (r *RedisChecker) Check(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

// FuncChecker wraps a probe function.
type FuncChecker struct {
	name     string
	critical bool
	fn       func(ctx context.Context) error
}

func NewFuncChecker(name string, critical bool, fn func(ctx context.Context) error) *FuncChecker {
	return &FuncChecker{name: name, critical: critical, fn: fn}
}

func (f *FuncChecker) Name() string                    { return f.name }
func (f *FuncChecker) Critical() bool                  { return f.critical }
func (f *FuncChecker) Check(ctx context.Context) error { return f.fn(ctx) }
