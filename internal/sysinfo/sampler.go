// Package sysinfo samples host resource usage of the machine running the
// service, usually the observatory control PC.
package sysinfo

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
)

type Snapshot struct {
	Timestamp     time.Time `json:"timestamp"`
	CPUPercent    float64   `json:"cpuPercent"`
	MemoryTotal   uint64    `json:"memoryTotal"`
	MemoryUsed    uint64    `json:"memoryUsed"`
	MemoryPercent float64   `json:"memoryPercent"`
	DiskPath      string    `json:"diskPath"`
	DiskTotal     uint64    `json:"diskTotal"`
	DiskFree      uint64    `json:"diskFree"`
	DiskPercent   float64   `json:"diskPercent"`
	UptimeSeconds uint64    `json:"uptimeSeconds"`
}

// Sampler polls host statistics and caches the latest snapshot.
type Sampler struct {
	diskPath string
	interval time.Duration
	logger   zerolog.Logger

	cpuPercent func(context.Context, time.Duration, bool) ([]float64, error)
	virtualMem func(context.Context) (*mem.VirtualMemoryStat, error)
	diskUsage  func(context.Context, string) (*disk.UsageStat, error)
	uptime     func(context.Context) (uint64, error)

	mu     sync.RWMutex
	latest *Snapshot
}

func NewSampler(diskPath string, interval time.Duration, logger zerolog.Logger) *Sampler {
	if diskPath == "" {
		diskPath = "/"
	}
	return &Sampler{
		diskPath:   diskPath,
		interval:   interval,
		logger:     logger,
		cpuPercent: cpu.PercentWithContext,
		virtualMem: mem.VirtualMemoryWithContext,
		diskUsage:  disk.UsageWithContext,
		uptime:     host.UptimeWithContext,
	}
}

// Sample collects one snapshot. Individual collector failures are logged
// and reported as zeroes.
func (s *Sampler) Sample(ctx context.Context) Snapshot {
	snap := Snapshot{Timestamp: time.Now().UTC(), DiskPath: s.diskPath}

	if pct, err := s.cpuPercent(ctx, 0, false); err != nil {
		s.logger.Debug().Err(err).Msg("cpu usage collection failed")
	} else if len(pct) > 0 {
		snap.CPUPercent = pct[0]
	}

	if vm, err := s.virtualMem(ctx); err != nil {
		s.logger.Debug().Err(err).Msg("memory collection failed")
	} else {
		snap.MemoryTotal = vm.Total
		snap.MemoryUsed = vm.Used
		snap.MemoryPercent = vm.UsedPercent
	}

	if du, err := s.diskUsage(ctx, s.diskPath); err != nil {
		s.logger.Debug().Err(err).Str("path", s.diskPath).Msg("disk usage collection failed")
	} else {
		snap.DiskTotal = du.Total
		snap.DiskFree = du.Free
		snap.DiskPercent = du.UsedPercent
	}

	if up, err := s.uptime(ctx); err == nil {
		snap.UptimeSeconds = up
	}

	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
	return snap
}

// Latest returns the cached snapshot, sampling once if none exists yet.
func (s *Sampler) Latest(ctx context.Context) Snapshot {
	s.mu.RLock()
	latest := s.latest
	s.mu.RUnlock()
	if latest != nil {
		return *latest
	}
	return s.Sample(ctx)
}

// Run samples every interval until ctx is done.
func (s *Sampler) Run(ctx context.Context) {
	if s.interval <= 0 {
		return
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.Sample(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.Sample(ctx)
		}
	}
}
