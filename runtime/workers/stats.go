package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

// Gauges is what the stats worker samples besides the process itself.
type Gauges interface {
	ActiveSessions() int
	ActiveChannels() int
	TypingStates() int
	DeliveryFailures() uint64
}

// StatsWorker samples the process and the runtime counters into the metrics
// and the monitoring snapshot served on /healthz.
type StatsWorker struct {
	log        *slog.Logger
	gauges     Gauges
	monitoring *observability.MonitoringManager
	interval   time.Duration
}

func NewStatsWorker(log *slog.Logger, gauges Gauges, monitoring *observability.MonitoringManager, interval time.Duration) *StatsWorker {
	return &StatsWorker{log: log, gauges: gauges, monitoring: monitoring, interval: interval}
}

func (w *StatsWorker) Run(ctx context.Context) error {
	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}
	w.sample(p)

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.sample(p)
		}
	}
}

func (w *StatsWorker) sample(p *process.Process) {
	stats := observability.MonitoringStats{
		ActiveSessions:   w.gauges.ActiveSessions(),
		ActiveChannels:   w.gauges.ActiveChannels(),
		TypingStates:     w.gauges.TypingStates(),
		DeliveryFailures: w.gauges.DeliveryFailures(),
	}
	rss, cpu, err := selfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
	} else {
		stats.ProcessRSSMb = rss / 1024 / 1024
		stats.ProcessCPU = cpu
		observability.ProcessRSS.Set(float64(rss))
		observability.ProcessCPU.Set(cpu)
	}
	w.monitoring.Update(stats)
}

func selfStats(p *process.Process) (uint64, float64, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, err
	}
	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, err
	}
	return memInfo.RSS, cpuPercent, nil
}
