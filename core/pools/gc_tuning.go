package pools

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// GCConfig holds GC tuning parameters for the server process.
type GCConfig struct {
	// Percent sets GOGC. 0 leaves the runtime setting alone.
	Percent int `yaml:"percent" json:"percent"`

	// MemoryLimit sets the soft memory limit in bytes. 0 = no limit.
	MemoryLimit int64 `yaml:"memory_limit" json:"memory_limit" split_words:"true"`
}

// DefaultGCConfig trades memory for fewer collections: request buffers
// are short-lived and the heap is small.
func DefaultGCConfig() GCConfig {
	return GCConfig{Percent: 200}
}

// Validate rejects negative settings.
func (c GCConfig) Validate() error {
	if c.Percent < 0 {
		return fmt.Errorf("gc percent must not be negative, got %d", c.Percent)
	}
	if c.MemoryLimit < 0 {
		return fmt.Errorf("gc memory limit must not be negative, got %d", c.MemoryLimit)
	}
	return nil
}

// ApplyGCConfig applies cfg and returns a function restoring the previous
// settings.
func ApplyGCConfig(cfg GCConfig) (restore func()) {
	prevPercent := -2
	prevLimit := int64(-1)
	if cfg.Percent > 0 {
		prevPercent = debug.SetGCPercent(cfg.Percent)
	}
	if cfg.MemoryLimit > 0 {
		prevLimit = debug.SetMemoryLimit(cfg.MemoryLimit)
	}
	return func() {
		if prevPercent != -2 {
			debug.SetGCPercent(prevPercent)
		}
		if prevLimit >= 0 {
			debug.SetMemoryLimit(prevLimit)
		}
	}
}

// GCStats holds garbage collection statistics
type GCStats struct {
	NumGC        uint32        `json:"num_gc"`
	LastPause    time.Duration `json:"last_pause"`
	HeapAlloc    uint64        `json:"heap_alloc"`
	NumGoroutine int           `json:"goroutines"`
}

// GetGCStats returns current GC statistics
func GetGCStats() GCStats {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	stats := GCStats{
		NumGC:        ms.NumGC,
		HeapAlloc:    ms.HeapAlloc,
		NumGoroutine: runtime.NumGoroutine(),
	}
	if ms.NumGC > 0 {
		stats.LastPause = time.Duration(ms.PauseNs[(ms.NumGC+255)%256])
	}
	return stats
}
