package memwatch

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func fixedSampler(percent float64) Sampler {
	return func() (Snapshot, error) {
		total := uint64(16 << 30)
		used := uint64(float64(total) * percent)
		return Snapshot{
			Total:       total,
			Used:        used,
			Available:   total - used,
			PercentUsed: percent,
		}, nil
	}
}

func TestCheckThresholdSafe(t *testing.T) {
	m := NewWithSampler(Thresholds{Warning: 0.75, Critical: 0.90}, fixedSampler(0.50))
	safe, msg := m.CheckThreshold()
	assert.True(t, safe)
	assert.Empty(t, msg)
}

func TestCheckThresholdWarningStillSafe(t *testing.T) {
	m := NewWithSampler(Thresholds{Warning: 0.75, Critical: 0.90}, fixedSampler(0.80))
	safe, _ := m.CheckThreshold()
	assert.True(t, safe)
}

func TestCheckThresholdCritical(t *testing.T) {
	m := NewWithSampler(Thresholds{Warning: 0.75, Critical: 0.90}, fixedSampler(0.95))
	safe, msg := m.CheckThreshold()
	assert.False(t, safe)
	assert.Contains(t, msg, "critical threshold")
}

func TestSnapshotNeverFails(t *testing.T) {
	m := NewWithSampler(Thresholds{Warning: 0.75, Critical: 0.90}, func() (Snapshot, error) {
		return Snapshot{}, errors.New("platform query failed")
	})

	snap := m.Snapshot()
	assert.Equal(t, Snapshot{}, snap)

	// A failed query must not block loads.
	safe, msg := m.CheckThreshold()
	assert.True(t, safe)
	assert.Empty(t, msg)
}

func TestSystemSampler(t *testing.T) {
	m := New(Thresholds{Warning: 0.75, Critical: 0.90})
	snap := m.Snapshot()
	if snap.Total == 0 {
		t.Skip("memory query unavailable on this platform")
	}
	assert.Greater(t, snap.Total, snap.Available)
	assert.InDelta(t, float64(snap.Used)/float64(snap.Total), snap.PercentUsed, 0.25)
}
