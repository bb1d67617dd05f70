package handlers

import (
	"context"
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/load"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
)

const mib = 1 << 20

// hostUsage samples load and memory. Fields gopsutil cannot read on this
// platform stay zero.
func hostUsage(ctx context.Context) (CPUInfo, MemoryInfo) {
	cpu := CPUInfo{Cores: runtime.NumCPU()}
	if avg, err := load.AvgWithContext(ctx); err == nil {
		cpu.Load1Min, cpu.Load5Min, cpu.Load15Min = avg.Load1, avg.Load5, avg.Load15
		cpu.LoadPercentage1Min = avg.Load1 / float64(cpu.Cores) * 100
	}

	memory := MemoryInfo{Goroutines: runtime.NumGoroutine()}
	if vm, err := mem.VirtualMemoryWithContext(ctx); err == nil {
		memory.TotalMemoryMB = float64(vm.Total) / mib
		memory.UsedMemoryMB = float64(vm.Used) / mib
		memory.AvailableMemoryMB = float64(vm.Available) / mib
	}
	if rss, ok := processRSS(ctx); ok {
		memory.ProcessMemoryMB = float64(rss) / mib
		if memory.TotalMemoryMB > 0 {
			memory.ProcessPercentage = memory.ProcessMemoryMB / memory.TotalMemoryMB * 100
		}
	}
	return cpu, memory
}

func processRSS(ctx context.Context) (uint64, bool) {
	proc, err := process.NewProcessWithContext(ctx, int32(os.Getpid())) //nolint:gosec // pids fit in int32
	if err != nil {
		return 0, false
	}
	info, err := proc.MemoryInfoWithContext(ctx)
	if err != nil || info == nil {
		return 0, false
	}
	return info.RSS, true
}
