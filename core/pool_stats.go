package core

import (
	"encoding/json"
	"fmt"

	"github.com/searchktools/http1-server/core/pools"
)

// PoolStats represents statistics for the worker pool and the shared
// buffer pool.
type PoolStats struct {
	Workers     pools.WorkerPoolStats `json:"workers"`
	BytePool    pools.BytePoolStats   `json:"byte_pool"`
	Connections int                   `json:"connections"`
}

// PoolStats returns a snapshot of the pools.
func (s *Server) PoolStats() PoolStats {
	s.mu.Lock()
	open := len(s.conns)
	s.mu.Unlock()
	return PoolStats{
		Workers:     s.pool.Stats(),
		BytePool:    pools.GlobalBytePoolStats(),
		Connections: open,
	}
}

// PoolStatsJSON returns pool statistics as JSON.
func (s *Server) PoolStatsJSON() ([]byte, error) {
	return json.Marshal(s.PoolStats())
}

// PoolStatsText returns pool statistics as human-readable text.
func (s *Server) PoolStatsText() string {
	stats := s.PoolStats()
	w := stats.Workers
	hitRate := 0.0
	if total := stats.BytePool.Hits + stats.BytePool.Misses; total > 0 {
		hitRate = float64(stats.BytePool.Hits) / float64(total) * 100
	}
	return fmt.Sprintf(`Worker Pool:
  Workers:   %d (%d active)
  Queue:     %d/%d
  Submitted: %d
  Completed: %d
  Failed:    %d
  Rejected:  %d

Byte Pool:
  Hits:     %d
  Misses:   %d
  Hit Rate: %.2f%%

Open connections: %d
`,
		w.Workers, w.Active,
		w.Queued, w.QueueSize,
		w.Submitted, w.Completed, w.Failed, w.Rejected,
		stats.BytePool.Hits, stats.BytePool.Misses, hitRate,
		stats.Connections,
	)
}
