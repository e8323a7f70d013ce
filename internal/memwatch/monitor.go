// Package memwatch samples system memory and evaluates it against the
// configured warning/critical thresholds. It is independent of model state;
// the resource sentinel consults it before every load.
package memwatch

import (
	"fmt"
	"log"

	"github.com/shirou/gopsutil/v4/mem"
)

// Snapshot is a point-in-time view of system memory.
type Snapshot struct {
	Total       uint64  `json:"total"`
	Used        uint64  `json:"used"`
	Available   uint64  `json:"available"`
	PercentUsed float64 `json:"percent_used"` // fraction in [0, 1]
}

// Thresholds are fractions of total system memory. Immutable after startup.
type Thresholds struct {
	Warning  float64 `json:"warning"`
	Critical float64 `json:"critical"`
}

// Sampler returns the current memory snapshot. Injectable for tests.
type Sampler func() (Snapshot, error)

// Monitor evaluates memory snapshots against thresholds.
type Monitor struct {
	thresholds Thresholds
	sample     Sampler
}

// New creates a Monitor backed by the OS memory query.
func New(thresholds Thresholds) *Monitor {
	return NewWithSampler(thresholds, systemSampler)
}

// NewWithSampler creates a Monitor with a custom sampler.
func NewWithSampler(thresholds Thresholds, sample Sampler) *Monitor {
	return &Monitor{thresholds: thresholds, sample: sample}
}

func systemSampler() (Snapshot, error) {
	vm, err := mem.VirtualMemory()
	if err != nil {
		return Snapshot{}, err
	}
	return Snapshot{
		Total:       vm.Total,
		Used:        vm.Used,
		Available:   vm.Available,
		PercentUsed: vm.UsedPercent / 100,
	}, nil
}

// Snapshot returns the current memory state. Never fails: on a platform
// query error it logs and returns a zeroed snapshot.
func (m *Monitor) Snapshot() Snapshot {
	snap, err := m.sample()
	if err != nil {
		log.Printf("[memwatch] memory query failed: %v", err)
		return Snapshot{}
	}
	return snap
}

// CheckThreshold compares current usage against the critical threshold.
// Returns safe=true below the threshold; otherwise safe=false with a
// human-readable message. A warning-level breach is logged but still safe.
func (m *Monitor) CheckThreshold() (bool, string) {
	snap := m.Snapshot()
	if snap.Total == 0 {
		// Query failed; don't block loads on missing data.
		return true, ""
	}

	if snap.PercentUsed >= m.thresholds.Critical {
		return false, fmt.Sprintf("memory usage %.1f%% exceeds critical threshold %.1f%%",
			snap.PercentUsed*100, m.thresholds.Critical*100)
	}
	if snap.PercentUsed >= m.thresholds.Warning {
		log.Printf("[memwatch] memory usage %.1f%% above warning threshold %.1f%%",
			snap.PercentUsed*100, m.thresholds.Warning*100)
	}
	return true, ""
}

// Thresholds returns the configured thresholds.
func (m *Monitor) Thresholds() Thresholds {
	return m.thresholds
}
