package recovery

import (
	"log"
	"sync"
)

// FallbackFunc produces a replacement value for a failed operation.
type FallbackFunc func(err error) (string, error)

// Manager executes the degradation strategy prescribed by a classified
// failure. Handlers are registered per operation context string; this
// string-keyed lookup is the one plugin boundary of the package.
type Manager struct {
	mu        sync.RWMutex
	fallbacks map[string]FallbackFunc

	recovered uint64
	failed    uint64
}

// NewManager creates an empty recovery manager.
func NewManager() *Manager {
	return &Manager{fallbacks: make(map[string]FallbackFunc)}
}

// RegisterFallback installs a handler for an operation context, replacing
// any previous one.
func (m *Manager) RegisterFallback(opContext string, fn FallbackFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallbacks[opContext] = fn
}

// Recover applies the failure's prescribed action and returns the value to
// use in place of the failed operation's result.
//
//   - Skip: the caller-supplied fallback value.
//   - Continue: the failure's partial result, or the fallback if none.
//   - Fallback: the registered handler's value, or the fallback value.
//   - Retry: no recovery here; the caller retries (see Do). The original
//     error is returned so it can be matched with IsRetryable.
//   - Abort: the original error propagates.
//
// Unclassified errors try a registered handler for opContext, else fail.
func (m *Manager) Recover(err error, opContext, fallback string) (string, error) {
	f, ok := AsFailure(err)
	if !ok {
		if fn := m.handler(opContext); fn != nil {
			return m.runHandler(fn, err, opContext)
		}
		m.countFailed()
		return "", err
	}

	switch f.Action {
	case ActionSkip:
		log.Printf("[recovery] %s in %s: using fallback value", f.Kind, opContext)
		m.countRecovered()
		return fallback, nil

	case ActionContinue:
		if f.Partial != "" {
			log.Printf("[recovery] %s in %s: using partial result", f.Kind, opContext)
			m.countRecovered()
			return f.Partial, nil
		}
		log.Printf("[recovery] %s in %s: no partial result, using fallback value", f.Kind, opContext)
		m.countRecovered()
		return fallback, nil

	case ActionFallback:
		if fn := m.handler(opContext); fn != nil {
			return m.runHandler(fn, err, opContext)
		}
		log.Printf("[recovery] %s in %s: no handler registered, using fallback value", f.Kind, opContext)
		m.countRecovered()
		return fallback, nil

	case ActionRetry:
		m.countFailed()
		return "", err

	default: // ActionAbort and anything unknown
		m.countFailed()
		return "", err
	}
}

// Stats returns the number of successful recoveries and unrecovered failures.
func (m *Manager) Stats() (recovered, failed uint64) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.recovered, m.failed
}

func (m *Manager) handler(opContext string) FallbackFunc {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.fallbacks[opContext]
}

func (m *Manager) runHandler(fn FallbackFunc, err error, opContext string) (string, error) {
	val, herr := fn(err)
	if herr != nil {
		log.Printf("[recovery] fallback handler for %s failed: %v", opContext, herr)
		m.countFailed()
		return "", err
	}
	m.countRecovered()
	return val, nil
}

func (m *Manager) countRecovered() {
	m.mu.Lock()
	m.recovered++
	m.mu.Unlock()
}

func (m *Manager) countFailed() {
	m.mu.Lock()
	m.failed++
	m.mu.Unlock()
}
