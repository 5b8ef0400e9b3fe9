package db

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// PoolStatus describes a pool for the /readyz endpoint.
type PoolStatus struct {
	LatencyMS float64 `json:"latency_ms"`
	Total     int32   `json:"total_conns"`
	Idle      int32   `json:"idle_conns"`
	Acquired  int32   `json:"acquired_conns"`
}

var errNilPool = errors.New("pool is nil")

// Probe pings pool and snapshots its connection counts. The status is
// filled in even when the ping fails so callers can report latency.
func Probe(ctx context.Context, pool *pgxpool.Pool) (PoolStatus, error) {
	if pool == nil {
		return PoolStatus{}, errNilPool
	}
	start := time.Now()
	err := pool.Ping(ctx)
	st := pool.Stat()
	return PoolStatus{
		LatencyMS: float64(time.Since(start).Microseconds()) / 1000,
		Total:     st.TotalConns(),
		Idle:      st.IdleConns(),
		Acquired:  st.AcquiredConns(),
	}, err
}
