package utils

import (
	"sync"
	"time"
)

// Tracks performance metrics across the system
type MetricsCollector struct {
	mu           sync.RWMutex
	requestCount uint64
	errorCount   uint64

	// Maps operation name to list of latencies in nanoseconds
	operationTimes map[string][]int64

	systemStartTime time.Time
}

func NewMetricsCollector() *MetricsCollector {
	return &MetricsCollector{
		operationTimes:  make(map[string][]int64),
		systemStartTime: time.Now(),
	}
}

func (mc *MetricsCollector) IncrementRequests() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.requestCount++
}

func (mc *MetricsCollector) IncrementErrors() {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.errorCount++
}

func (mc *MetricsCollector) AddOperationLatency(operationName string, duration time.Duration) {
	mc.mu.Lock()
	defer mc.mu.Unlock()

	if _, exists := mc.operationTimes[operationName]; !exists {
		mc.operationTimes[operationName] = make([]int64, 0)
	}
	mc.operationTimes[operationName] = append(
		mc.operationTimes[operationName],
		duration.Nanoseconds(),
	)
}

// OperationStats summarizes the recorded latencies for one operation.
type OperationStats struct {
	Operation string
	Count     int
	Mean      time.Duration
	Max       time.Duration
}

// Snapshot returns per-operation summaries, used by the simulator report
// and the health endpoint.
func (mc *MetricsCollector) Snapshot() []OperationStats {
	mc.mu.RLock()
	defer mc.mu.RUnlock()

	stats := make([]OperationStats, 0, len(mc.operationTimes))
	for op, samples := range mc.operationTimes {
		if len(samples) == 0 {
			continue
		}
		var total, max int64
		for _, s := range samples {
			total += s
			if s > max {
				max = s
			}
		}
		stats = append(stats, OperationStats{
			Operation: op,
			Count:     len(samples),
			Mean:      time.Duration(total / int64(len(samples))),
			Max:       time.Duration(max),
		})
	}
	return stats
}

func (mc *MetricsCollector) Uptime() time.Duration {
	mc.mu.RLock()
	defer mc.mu.RUnlock()
	return time.Since(mc.systemStartTime)
}
