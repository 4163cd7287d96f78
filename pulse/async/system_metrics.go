package async

import (
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/cadence/errors"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active" yaml:"workers_active"`   // Number of workers currently executing jobs
	WorkersTotal  int     `json:"workers_total" yaml:"workers_total"`     // Total configured workers
	JobsQueued    int     `json:"jobs_queued" yaml:"jobs_queued"`         // Invocations waiting for a worker
	QueueCapacity int     `json:"queue_capacity" yaml:"queue_capacity"`   // Buffered submissions before saturation
	Processed     int64   `json:"processed" yaml:"processed"`             // Invocations finished since start
	Failed        int64   `json:"failed" yaml:"failed"`                   // Invocations that returned an error or panicked
	MemoryUsedGB  float64 `json:"memory_used_gb" yaml:"memory_used_gb"`   // Current memory usage in GB
	MemoryTotalGB float64 `json:"memory_total_gb" yaml:"memory_total_gb"` // Total system memory in GB
	MemoryPercent float64 `json:"memory_percent" yaml:"memory_percent"`   // Memory utilization percentage
}

// getMemoryStats returns current memory usage in bytes
func getMemoryStats() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	total, available, err := getMemoryStats()

	var memUsedGB, memTotalGB, memPercent float64
	if err == nil && total > 0 {
		memTotalGB = float64(total) / 1024 / 1024 / 1024
		memUsedGB = float64(total-available) / 1024 / 1024 / 1024
		memPercent = (memUsedGB / memTotalGB) * 100
	}

	wp.activeMu.Lock()
	defer wp.activeMu.Unlock()

	return SystemMetrics{
		WorkersActive: wp.activeWorkers,
		WorkersTotal:  wp.config.Workers,
		JobsQueued:    len(wp.tasks),
		QueueCapacity: cap(wp.tasks),
		Processed:     wp.processed,
		Failed:        wp.failed,
		MemoryUsedGB:  memUsedGB,
		MemoryTotalGB: memTotalGB,
		MemoryPercent: memPercent,
	}
}
