package core

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/redis/go-redis/v9"

	"github.com/arale275/autix-sub003/auth"
)

// Pinger is anything whose liveness can be probed.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingFunc adapts a function to Pinger.
type PingFunc func(ctx context.Context) error

func (f PingFunc) Ping(ctx context.Context) error { return f(ctx) }

// RedisPinger probes a go-redis client.
func RedisPinger(client redis.UniversalClient) Pinger {
	return PingFunc(func(ctx context.Context) error { return client.Ping(ctx).Err() })
}

var _ Pinger = (*pgxpool.Pool)(nil)

// QueueStatus reports hashing backlog.
type QueueStatus struct {
	Pending  int `json:"pending"`
	Capacity int `json:"capacity"`
}

// SystemStatus is the readiness report served on /readyz.
type SystemStatus struct {
	Ready         bool              `json:"ready"`
	Components    map[string]string `json:"components"`
	HashQueue     QueueStatus       `json:"hash_queue"`
	UptimeSeconds int64             `json:"uptime_seconds"`
}

// StatusReporter aggregates dependency health for readiness probes.
type StatusReporter struct {
	deps      map[string]Pinger
	hasher    *auth.HashPool
	startedAt time.Time
	timeout   time.Duration
}

// NewStatusReporter probes deps by name. hasher may be nil.
func NewStatusReporter(deps map[string]Pinger, hasher *auth.HashPool) *StatusReporter {
	return &StatusReporter{deps: deps, hasher: hasher, startedAt: time.Now(), timeout: 2 * time.Second}
}

// Collect pings every dependency; one failure marks the service not ready.
func (s *StatusReporter) Collect(ctx context.Context) SystemStatus {
	st := SystemStatus{Ready: true, Components: make(map[string]string, len(s.deps))}

	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()
	for name, dep := range s.deps {
		if err := dep.Ping(ctx); err != nil {
			st.Components[name] = "down: " + err.Error()
			st.Ready = false
			continue
		}
		st.Components[name] = "ok"
	}

	if s.hasher != nil {
		st.HashQueue.Pending = s.hasher.Pending()
		st.HashQueue.Capacity = s.hasher.Capacity()
	}
	st.UptimeSeconds = int64(time.Since(s.startedAt).Seconds())
	return st
}
