package metrics

import (
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
)

// SystemTracker samples host-level metrics: CPU, memory, and disk usage
// of the data directory.
type SystemTracker struct {
	startTime time.Time
	dataDir   string
}

// NewSystemTracker creates a new SystemTracker instance
func NewSystemTracker(dataDir string) *SystemTracker {
	return &SystemTracker{
		startTime: time.Now(),
		dataDir:   dataDir,
	}
}

// GetUptime returns the process uptime in seconds
func (sm *SystemTracker) GetUptime() int64 {
	return int64(time.Since(sm.startTime).Seconds())
}

// GetCPUUsage returns current CPU usage percentage
func (sm *SystemTracker) GetCPUUsage() (float64, error) {
	percentages, err := cpu.Percent(0, false)
	if err != nil || len(percentages) == 0 {
		return 0.0, err
	}
	return percentages[0], nil
}

// MemoryStats represents memory usage statistics
type MemoryStats struct {
	UsedPercent float64 `json:"used_percent"`
	UsedBytes   uint64  `json:"used_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
}

// GetMemoryUsage returns current memory usage statistics
func (sm *SystemTracker) GetMemoryUsage() (*MemoryStats, error) {
	memInfo, err := mem.VirtualMemory()
	if err != nil {
		return nil, err
	}

	return &MemoryStats{
		UsedPercent: memInfo.UsedPercent,
		UsedBytes:   memInfo.Used,
		TotalBytes:  memInfo.Total,
		FreeBytes:   memInfo.Free,
	}, nil
}

// DiskStats represents disk usage statistics
type DiskStats struct {
	UsedPercent float64 `json:"used_percent"`
	UsedBytes   uint64  `json:"used_bytes"`
	TotalBytes  uint64  `json:"total_bytes"`
	FreeBytes   uint64  `json:"free_bytes"`
}

// GetDiskUsage returns current disk usage statistics for the data directory
func (sm *SystemTracker) GetDiskUsage() (*DiskStats, error) {
	diskInfo, err := disk.Usage(sm.dataDir)
	if err != nil {
		return nil, err
	}

	return &DiskStats{
		UsedPercent: diskInfo.UsedPercent,
		UsedBytes:   diskInfo.Used,
		TotalBytes:  diskInfo.Total,
		FreeBytes:   diskInfo.Free,
	}, nil
}
