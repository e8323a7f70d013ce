package resource

import "time"

// Metrics is the read-only snapshot of the sentinel's lifecycle counters.
// Counters are monotonically non-decreasing; peak and utilization are
// recomputed per snapshot.
type Metrics struct {
	Loads          uint64 `json:"loads"`
	Unloads        uint64 `json:"unloads"`
	SwapsPerformed uint64 `json:"swaps_performed"`
	MemoryCleanups uint64 `json:"memory_cleanups"`

	TotalLoadTime   time.Duration `json:"total_load_time"`
	AverageLoadTime time.Duration `json:"average_load_time"`

	PeakMemoryPercent    float64 `json:"peak_memory_percent"`
	CurrentMemoryPercent float64 `json:"current_memory_percent"`
}

// counters is the mutable backing state, touched only under the sentinel
// lock.
type counters struct {
	loads          uint64
	unloads        uint64
	swapsPerformed uint64
	memoryCleanups uint64
	totalLoadTime  time.Duration
	peakMemory     float64
}

func (c *counters) snapshot(currentMemory float64) Metrics {
	m := Metrics{
		Loads:                c.loads,
		Unloads:              c.unloads,
		SwapsPerformed:       c.swapsPerformed,
		MemoryCleanups:       c.memoryCleanups,
		TotalLoadTime:        c.totalLoadTime,
		PeakMemoryPercent:    c.peakMemory,
		CurrentMemoryPercent: currentMemory,
	}
	if c.loads > 0 {
		m.AverageLoadTime = c.totalLoadTime / time.Duration(c.loads)
	}
	return m
}

func (c *counters) observeMemory(percent float64) {
	if percent > c.peakMemory {
		c.peakMemory = percent
	}
}
