package resource

import (
	"log"
	"runtime"
	"sort"
	"sync"
	"time"

	"github.com/voice-scribe/backend/internal/gpu"
	"github.com/voice-scribe/backend/internal/memwatch"
)

// SentinelOptions configures a Sentinel.
type SentinelOptions struct {
	// SettleDelay is the bounded pause after an unload or forced cleanup
	// that lets the OS reclaim memory before the next load. Defaults to
	// 500ms. Non-cancelable.
	SettleDelay time.Duration
}

// Sentinel is the process-wide resource registry. Construct one at startup
// and pass it to collaborators; all mutating operations hold a single lock
// for the entire state transition, which is acceptable because loads and
// unloads are infrequent and never on a per-request hot path.
type Sentinel struct {
	mu sync.Mutex

	monitor *memwatch.Monitor
	accel   *gpu.Capability
	loaders map[Kind]Loader
	active  map[Kind]*Handle
	metrics counters
	settle  time.Duration
}

// NewSentinel creates a Sentinel with the given monitor, acceleration
// capability, and per-kind load strategies.
func NewSentinel(monitor *memwatch.Monitor, accel *gpu.Capability, loaders map[Kind]Loader, opts SentinelOptions) *Sentinel {
	settle := opts.SettleDelay
	if settle == 0 {
		settle = 500 * time.Millisecond
	}
	return &Sentinel{
		monitor: monitor,
		accel:   accel,
		loaders: loaders,
		active:  make(map[Kind]*Handle),
		settle:  settle,
	}
}

// ProbeMemory returns the current memory snapshot. Never fails.
func (s *Sentinel) ProbeMemory() memwatch.Snapshot {
	return s.monitor.Snapshot()
}

// CheckThreshold reports whether current memory usage is below the
// critical threshold, with a human-readable message when it is not.
func (s *Sentinel) CheckThreshold() (bool, string) {
	return s.monitor.CheckThreshold()
}

// Request loads a resource of kind. Idempotent: a second request while the
// kind is active returns true without loading again or touching metrics.
// Returns false, with no partial state retained, when the memory check
// fails after one forced cleanup attempt or when the loader errors.
func (s *Sentinel) Request(kind Kind, params map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requestLocked(kind, params)
}

func (s *Sentinel) requestLocked(kind Kind, params map[string]string) bool {
	if _, ok := s.active[kind]; ok {
		return true
	}

	loader, ok := s.loaders[kind]
	if !ok {
		log.Printf("[sentinel] no loader registered for kind %s", kind)
		return false
	}

	if safe, msg := s.monitor.CheckThreshold(); !safe {
		log.Printf("[sentinel] load of %s blocked: %s; forcing cleanup", kind, msg)
		s.forceCleanupLocked()
		if safe, msg = s.monitor.CheckThreshold(); !safe {
			log.Printf("[sentinel] load of %s refused after cleanup: %s", kind, msg)
			return false
		}
	}

	before := s.monitor.Snapshot()
	start := time.Now()
	backing, err := loader.Load(params)
	if err != nil {
		log.Printf("[sentinel] load of %s failed: %v", kind, err)
		return false
	}
	dur := time.Since(start)
	after := s.monitor.Snapshot()

	var delta uint64
	if after.Used > before.Used {
		delta = after.Used - before.Used
	}

	s.active[kind] = &Handle{
		Kind:             kind,
		Backing:          backing,
		MemoryUsageBytes: delta,
		LoadDuration:     dur,
		CreatedAt:        time.Now(),
	}
	s.metrics.loads++
	s.metrics.totalLoadTime += dur
	s.metrics.observeMemory(after.PercentUsed)

	log.Printf("[sentinel] loaded %s in %s (memory delta %d MB)",
		kind, dur.Round(time.Millisecond), delta/1024/1024)
	return true
}

// Release unloads the active resource of kind. Returns false, without
// touching metrics, when the kind is not active.
func (s *Sentinel) Release(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.releaseLocked(kind)
}

func (s *Sentinel) releaseLocked(kind Kind) bool {
	handle, ok := s.active[kind]
	if !ok {
		return false
	}

	if loader, ok := s.loaders[kind]; ok {
		if err := loader.Unload(handle.Backing); err != nil {
			log.Printf("[sentinel] unload of %s reported: %v", kind, err)
		}
	}
	delete(s.active, kind)
	s.metrics.unloads++

	log.Printf("[sentinel] released %s (held %s)", kind, time.Since(handle.CreatedAt).Round(time.Second))
	return true
}

// Swap releases from, waits out the settle delay, then requests to. The
// swap counter increments only on full success. When the load of to
// fails, from is NOT restored: both kinds end up inactive and the caller
// decides whether to re-request. This is a deliberate trade of
// availability for simplicity, not an oversight.
func (s *Sentinel) Swap(from, to Kind, params map[string]string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.releaseLocked(from)
	time.Sleep(s.settle)

	if !s.requestLocked(to, params) {
		log.Printf("[sentinel] swap %s -> %s failed at load; neither kind active", from, to)
		return false
	}
	s.metrics.swapsPerformed++
	return true
}

// ForceCleanup triggers a best-effort memory reclamation pass. Always
// succeeds.
func (s *Sentinel) ForceCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.forceCleanupLocked()
}

func (s *Sentinel) forceCleanupLocked() {
	runtime.GC()
	time.Sleep(s.settle)
	s.metrics.memoryCleanups++
	log.Printf("[sentinel] forced memory cleanup")
}

// CleanupAll releases every active resource. Used at shutdown and on
// fatal errors.
func (s *Sentinel) CleanupAll() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for kind := range s.active {
		s.releaseLocked(kind)
	}
}

// Metrics returns a read-only snapshot of the lifecycle counters.
func (s *Sentinel) Metrics() Metrics {
	current := s.monitor.Snapshot().PercentUsed

	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics.observeMemory(current)
	return s.metrics.snapshot(current)
}

// Status is the read-only sentinel state exposed on the status endpoint.
type Status struct {
	Initialized bool         `json:"initialized"`
	ActiveKinds []Kind       `json:"active_kinds"`
	Handles     []HandleInfo `json:"handles"`
	MemorySafe  bool         `json:"memory_safe"`
	GPUMode     gpu.Mode     `json:"gpu_mode"`
	Metrics     Metrics      `json:"metrics"`
}

// Status returns the current sentinel state.
func (s *Sentinel) Status() Status {
	safe, _ := s.monitor.CheckThreshold()
	current := s.monitor.Snapshot().PercentUsed

	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{
		Initialized: true,
		ActiveKinds: make([]Kind, 0, len(s.active)),
		Handles:     make([]HandleInfo, 0, len(s.active)),
		MemorySafe:  safe,
		GPUMode:     s.accel.Mode,
		Metrics:     s.metrics.snapshot(current),
	}
	for kind, h := range s.active {
		st.ActiveKinds = append(st.ActiveKinds, kind)
		st.Handles = append(st.Handles, HandleInfo{
			Kind:             kind,
			MemoryUsageBytes: h.MemoryUsageBytes,
			LoadDuration:     h.LoadDuration,
			CreatedAt:        h.CreatedAt,
		})
	}
	sort.Slice(st.ActiveKinds, func(i, j int) bool { return st.ActiveKinds[i] < st.ActiveKinds[j] })
	sort.Slice(st.Handles, func(i, j int) bool { return st.Handles[i].Kind < st.Handles[j].Kind })
	return st
}

// Active reports whether a resource of kind is currently loaded.
func (s *Sentinel) Active(kind Kind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.active[kind]
	return ok
}
