package async

import (
	"fmt"

	"github.com/shirou/gopsutil/v3/mem"

	"github.com/teranos/dealflow/errors"
)

// SystemMetrics tracks resource usage for worker pool monitoring
type SystemMetrics struct {
	WorkersActive int     `json:"workers_active"`
	WorkersTotal  int     `json:"workers_total"`
	JobsProcessed int     `json:"jobs_processed"`
	MemoryUsedGB  float64 `json:"memory_used_gb"`
	MemoryTotalGB float64 `json:"memory_total_gb"`
	MemoryPercent float64 `json:"memory_percent"`
	JobsQueued    int     `json:"jobs_queued"`
	JobsRunning   int     `json:"jobs_running"`
}

// memoryStats is swapped in tests.
var memoryStats = func() (total uint64, available uint64, err error) {
	v, err := mem.VirtualMemory()
	if err != nil {
		return 0, 0, errors.Wrap(err, "failed to get memory stats")
	}
	return v.Total, v.Available, nil
}

// calculateSafeWorkerCount recommends a worker count for the available
// memory. Each case run holds a deck, its extracted text and up to a dozen
// concurrent HTTP responses, budgeted at 1GB.
func calculateSafeWorkerCount(availableGB float64) int {
	const memoryPerWorker = 1.0
	const memoryBuffer = 1.0

	usable := availableGB - memoryBuffer
	recommended := int(usable / memoryPerWorker)
	switch {
	case recommended < 1:
		return 1
	case recommended > 16:
		return 16
	default:
		return recommended
	}
}

// GetSystemMetrics returns current system resource usage
func (wp *WorkerPool) GetSystemMetrics() SystemMetrics {
	var m SystemMetrics

	if total, available, err := memoryStats(); err == nil && total > 0 {
		m.MemoryTotalGB = float64(total) / 1024 / 1024 / 1024
		m.MemoryUsedGB = float64(total-available) / 1024 / 1024 / 1024
		m.MemoryPercent = m.MemoryUsedGB / m.MemoryTotalGB * 100
	}

	if stats, err := wp.queue.GetStats(); err == nil {
		m.JobsQueued = stats.Queued
		m.JobsRunning = stats.Running
	}

	wp.mu.Lock()
	m.WorkersActive = wp.activeWorkers
	m.JobsProcessed = wp.jobsProcessed
	wp.mu.Unlock()
	m.WorkersTotal = wp.poolConfig.Workers
	return m
}

// checkMemoryPressure returns a warning when the worker count exceeds what
// available memory supports, or "".
func (wp *WorkerPool) checkMemoryPressure() string {
	total, available, err := memoryStats()
	if err != nil {
		return ""
	}

	availableGB := float64(available) / 1024 / 1024 / 1024
	totalGB := float64(total) / 1024 / 1024 / 1024
	recommended := calculateSafeWorkerCount(availableGB)

	if wp.poolConfig.Workers > recommended {
		return fmt.Sprintf(
			"Worker count (%d) exceeds recommended (%d) for available memory (%.1f/%.1fGB)",
			wp.poolConfig.Workers, recommended, totalGB-availableGB, totalGB)
	}
	return ""
}
