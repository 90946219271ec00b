package sysstats

import (
	"context"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/mem"
	"github.com/shirou/gopsutil/v3/process"
	"go.uber.org/zap"

	"github.com/servicedeck/servicedeck/pkg/models"
)

// sampler reads system-wide CPU and memory figures plus per-process usage
// for the pids the inventory currently tracks. All readers are swappable
// for tests.
type sampler struct {
	logger *zap.Logger

	cpuPercent   func(ctx context.Context, percpu bool) ([]float64, error)
	virtualMem   func(ctx context.Context) (*mem.VirtualMemoryStat, error)
	swapMem      func(ctx context.Context) (*mem.SwapMemoryStat, error)
	processUsage func(ctx context.Context, pid uint32) (models.ResourceUsage, bool)
}

func newSampler(logger *zap.Logger) *sampler {
	return &sampler{
		logger: logger,
		cpuPercent: func(ctx context.Context, percpu bool) ([]float64, error) {
			return cpu.PercentWithContext(ctx, 0, percpu)
		},
		virtualMem:   mem.VirtualMemoryWithContext,
		swapMem:      mem.SwapMemoryWithContext,
		processUsage: readProcessUsage,
	}
}

// sample takes one system reading. Partial failures degrade the affected
// section to its zero value rather than failing the whole sample.
func (s *sampler) sample(ctx context.Context, now time.Time) models.StatsSample {
	out := models.StatsSample{Timestamp: now}

	if perCore, err := s.cpuPercent(ctx, true); err != nil {
		s.logger.Warn("cpu sampling failed", zap.Error(err))
	} else {
		out.CPU.PerCore = perCore
		out.CPU.CoreCount = len(perCore)
		var total float64
		for _, c := range perCore {
			total += c
		}
		if len(perCore) > 0 {
			out.CPU.UsagePercent = total / float64(len(perCore))
		}
	}

	if vm, err := s.virtualMem(ctx); err != nil {
		s.logger.Warn("memory sampling failed", zap.Error(err))
	} else {
		out.Memory.TotalBytes = vm.Total
		out.Memory.UsedBytes = vm.Used
		out.Memory.AvailableBytes = vm.Available
		out.Memory.UsagePercent = vm.UsedPercent
	}
	if swap, err := s.swapMem(ctx); err == nil {
		out.Memory.SwapTotalBytes = swap.Total
		out.Memory.SwapUsedBytes = swap.Used
	}

	return out
}

// sampleProcesses attributes resource usage to the given pids. Pids that no
// longer exist are simply absent from the result, which the inventory treats
// as unknown usage.
func (s *sampler) sampleProcesses(ctx context.Context, pids []uint32) map[uint32]models.ResourceUsage {
	usage := make(map[uint32]models.ResourceUsage, len(pids))
	for _, pid := range pids {
		if ctx.Err() != nil {
			break
		}
		if u, ok := s.processUsage(ctx, pid); ok {
			usage[pid] = u
		}
	}
	return usage
}

func readProcessUsage(ctx context.Context, pid uint32) (models.ResourceUsage, bool) {
	proc, err := process.NewProcessWithContext(ctx, int32(pid))
	if err != nil {
		return models.ResourceUsage{}, false
	}

	var u models.ResourceUsage
	if pct, err := proc.CPUPercentWithContext(ctx); err == nil {
		u.CPUPercent = pct
	}
	if info, err := proc.MemoryInfoWithContext(ctx); err == nil && info != nil {
		u.MemoryBytes = info.RSS
	}
	if pct, err := proc.MemoryPercentWithContext(ctx); err == nil {
		u.MemoryPercent = float64(pct)
	}
	return u, true
}
