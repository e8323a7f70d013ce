// Package resource owns the set of loaded heavy resources. The Sentinel
// enforces at most one active instance per kind, gates every load on the
// memory monitor, and aggregates lifecycle metrics.
package resource

import (
	"time"
)

// Kind is a category of heavy, memory-significant workload.
type Kind string

const (
	KindSpeechEngine    Kind = "speech_engine"
	KindCorrectionModel Kind = "correction_model"
)

// Valid reports whether k is a known resource kind.
func (k Kind) Valid() bool {
	switch k {
	case KindSpeechEngine, KindCorrectionModel:
		return true
	}
	return false
}

// Loader is the per-kind load strategy supplied by the surrounding
// application: one strategy spawns a speech-recognition process, another
// connects an in-process or served language model. The returned handle is
// opaque to the sentinel.
type Loader interface {
	Load(params map[string]string) (any, error)
	Unload(handle any) error
}

// Handle represents one loaded instance. Owned exclusively by the
// Sentinel; never handed out.
type Handle struct {
	Kind             Kind
	Backing          any
	MemoryUsageBytes uint64
	LoadDuration     time.Duration
	CreatedAt        time.Time
}

// HandleInfo is the read-only projection of a Handle exposed in status.
type HandleInfo struct {
	Kind             Kind          `json:"kind"`
	MemoryUsageBytes uint64        `json:"memory_usage_bytes"`
	LoadDuration     time.Duration `json:"load_duration"`
	CreatedAt        time.Time     `json:"created_at"`
}
