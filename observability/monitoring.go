package observability

import (
	"runtime"
	"sync"
	"time"
)

// MonitoringStats is the snapshot served on the health endpoint.
type MonitoringStats struct {
	ActiveSessions   int     `json:"active_sessions"`
	ActiveChannels   int     `json:"active_channels"`
	TypingStates     int     `json:"typing_states"`
	DeliveryFailures uint64  `json:"delivery_failures"`
	ProcessRSSMb     uint64  `json:"process_rss_mb"`
	ProcessCPU       float64 `json:"process_cpu_percent"`
	AllocMemMb       uint64  `json:"alloc_mem_mb"`
	NumGC            uint32  `json:"num_gc"`
	SampledAt        string  `json:"sampled_at"`
}

// MonitoringManager keeps the latest sample taken by the stats worker.
type MonitoringManager struct {
	mu          sync.RWMutex
	latestStats MonitoringStats
}

func NewMonitoringManager() *MonitoringManager {
	return &MonitoringManager{}
}

func (mm *MonitoringManager) Update(stats MonitoringStats) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	stats.AllocMemMb = m.Alloc / 1024 / 1024
	stats.NumGC = m.NumGC
	stats.SampledAt = time.Now().UTC().Format(time.RFC3339)

	mm.mu.Lock()
	mm.latestStats = stats
	mm.mu.Unlock()
}

func (mm *MonitoringManager) GetLatest() MonitoringStats {
	mm.mu.RLock()
	defer mm.mu.RUnlock()
	return mm.latestStats
}
