package workers

import (
	"chat-relay/observability"
	"context"
	"log/slog"
	"os"
	"time"

	"github.com/shirou/gopsutil/process"
)

type groupCounter interface {
	GroupCount() int
}

// HeartbeatWorker samples the relay process (RSS, CPU) and the registry size
// at a fixed interval and publishes them as gauges.
type HeartbeatWorker struct {
	log      *slog.Logger
	metrics  *observability.Metrics
	registry groupCounter
	interval time.Duration
}

func NewHeartbeatWorker(log *slog.Logger, metrics *observability.Metrics,
	registry groupCounter, interval time.Duration) *HeartbeatWorker {
	return &HeartbeatWorker{
		log:      log,
		metrics:  metrics,
		registry: registry,
		interval: interval,
	}
}

func (w *HeartbeatWorker) Run(ctx context.Context) error {
	w.log.Info("Starting heartbeat worker", "interval", w.interval)
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	p, err := process.NewProcess(int32(os.Getpid()))
	if err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			w.beat(p)
		}
	}
}

func (w *HeartbeatWorker) beat(p *process.Process) {
	groups := w.registry.GroupCount()
	w.metrics.RegistryGroups.Set(float64(groups))

	rss, cpu, status, err := getSelfStats(p)
	if err != nil {
		w.log.Error("Failed to collect self stats", "error", err)
		return
	}
	w.metrics.ProcessRSS.Set(float64(rss))
	w.metrics.ProcessCPU.Set(cpu)
	w.log.Debug("Heartbeat", "rss", rss, "cpu", cpu, "status", status, "groups", groups)
}

// getSelfStats retrieves memory, CPU and OS status of the given process.
func getSelfStats(p *process.Process) (uint64, float64, string, error) {
	memInfo, err := p.MemoryInfo()
	if err != nil {
		return 0, 0, "", err
	}

	cpuPercent, err := p.CPUPercent()
	if err != nil {
		return 0, 0, "", err
	}

	status, err := p.Status()
	if err != nil {
		return 0, 0, "", err
	}
	return memInfo.RSS, cpuPercent, status, nil
}
