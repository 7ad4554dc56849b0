// Package monitor samples host metrics for the health endpoints.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"sync"
	"time"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/host"
	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
)

const snapshotCacheTTL = 2 * time.Second

// Snapshot is a point-in-time view of the host, shaped for JSON responses.
type Snapshot struct {
	CPUUsage    float64   `json:"cpu_usage"`
	CPUCores    int       `json:"cpu_cores"`
	LoadAverage []float64 `json:"load_average,omitempty"`

	MemoryTotalBytes uint64  `json:"memory_total_bytes"`
	MemoryUsedBytes  uint64  `json:"memory_used_bytes"`
	MemoryPercent    float64 `json:"memory_percent"`

	Platform    string `json:"platform"`
	Uptime      uint64 `json:"uptime_seconds"`
	TimestampMs int64  `json:"timestamp_ms"`
}

type Service struct {
	log *slog.Logger

	mu      sync.Mutex
	hasSnap bool
	snap    Snapshot
	snapAt  time.Time
}

func NewService(log *slog.Logger) *Service {
	if log == nil {
		log = slog.Default()
	}
	return &Service{log: log}
}

// GetSnapshot returns a recent snapshot, collecting a fresh one when the
// cached copy is older than the TTL. Collection failures degrade to partial
// data rather than erroring out the health endpoint.
func (s *Service) GetSnapshot(ctx context.Context) Snapshot {
	now := time.Now()

	s.mu.Lock()
	if s.hasSnap && now.Sub(s.snapAt) < snapshotCacheTTL {
		out := s.snap
		s.mu.Unlock()
		return out
	}
	s.mu.Unlock()

	snap := s.collect(ctx)

	s.mu.Lock()
	s.snap = snap
	s.snapAt = now
	s.hasSnap = true
	s.mu.Unlock()

	return snap
}

func (s *Service) collect(ctx context.Context) Snapshot {
	collectedAt := time.Now()

	snap := Snapshot{
		Platform: runtime.GOOS,
	}

	if usage, err := readCPUUsage(ctx); err == nil {
		snap.CPUUsage = usage
	} else {
		s.log.Warn("monitor: get cpu percent failed", "error", err)
	}

	if cores, err := cpu.CountsWithContext(ctx, true); err == nil {
		snap.CPUCores = cores
	} else {
		s.log.Warn("monitor: get cpu cores failed", "error", err)
	}

	if avg, err := load.AvgWithContext(ctx); err == nil && avg != nil {
		snap.LoadAverage = []float64{avg.Load1, avg.Load5, avg.Load15}
	} else if err != nil {
		s.log.Warn("monitor: get load average failed", "error", err)
	}

	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil && vm != nil {
		snap.MemoryTotalBytes = vm.Total
		snap.MemoryUsedBytes = vm.Used
		snap.MemoryPercent = vm.UsedPercent
	} else if err != nil {
		s.log.Warn("monitor: get memory failed", "error", err)
	}

	if up, err := host.UptimeWithContext(ctx); err == nil {
		snap.Uptime = up
	} else {
		s.log.Warn("monitor: get uptime failed", "error", err)
	}

	snap.TimestampMs = collectedAt.UnixMilli()
	return snap
}

// readCPUUsage prefers non-blocking sampling (diff from the previous call)
// and falls back to a short blocking interval when no prior sample exists.
func readCPUUsage(ctx context.Context) (float64, error) {
	var errs []error

	if p, err := cpu.PercentWithContext(ctx, 0, false); err == nil && len(p) > 0 {
		return p[0], nil
	} else if err != nil {
		errs = append(errs, err)
	}

	if p, err := cpu.PercentWithContext(ctx, 250*time.Millisecond, false); err == nil && len(p) > 0 {
		return p[0], nil
	} else if err != nil {
		errs = append(errs, err)
	}

	if len(errs) > 0 {
		return 0, errors.Join(errs...)
	}
	return 0, fmt.Errorf("cpu percent unavailable")
}
