package locks

import (
	"sync"
	"sync/atomic"
)

// healthyHeldMax is the held-lock count above which the registry reports
// unhealthy. Holding this many locks at once is a proxy for a leak.
const healthyHeldMax = 1024

// Registry maps resource names to read/write locks and monitors. Locks
// are created lazily on first acquisition and live for the registry's
// lifetime; the name space is small (player IDs, mailbox row IDs) so
// entries are never evicted.
type Registry struct {
	mu       sync.Mutex
	locks    map[string]*sync.RWMutex
	monitors map[string]*sync.Mutex
	held     atomic.Int64
}

// NewRegistry creates an empty lock registry.
func NewRegistry() *Registry {
	return &Registry{
		locks:    make(map[string]*sync.RWMutex),
		monitors: make(map[string]*sync.Mutex),
	}
}

// Guard is a held lock. Release is idempotent.
type Guard struct {
	once    sync.Once
	release func()
}

// Release releases the underlying lock. Safe to call more than once.
func (g *Guard) Release() {
	g.once.Do(g.release)
}

func (r *Registry) rwLock(name string) *sync.RWMutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[name]
	if !ok {
		l = &sync.RWMutex{}
		r.locks[name] = l
	}
	return l
}

// AcquireWrite blocks until the write lock for name is held and returns
// a guard that releases it. A pending writer blocks new readers, so
// readers cannot starve writers.
func (r *Registry) AcquireWrite(name string) *Guard {
	l := r.rwLock(name)
	l.Lock()
	r.held.Add(1)
	return &Guard{release: func() {
		r.held.Add(-1)
		l.Unlock()
	}}
}

// AcquireRead blocks until a read lock for name is held. Multiple
// readers of the same name may hold their guards concurrently.
func (r *Registry) AcquireRead(name string) *Guard {
	l := r.rwLock(name)
	l.RLock()
	r.held.Add(1)
	return &Guard{release: func() {
		r.held.Add(-1)
		l.RUnlock()
	}}
}

// RunExclusive runs fn while holding the monitor for name. Monitors are
// separate from the read/write locks: they serve operations that have
// no natural read/write split.
func (r *Registry) RunExclusive(name string, fn func()) {
	r.mu.Lock()
	m, ok := r.monitors[name]
	if !ok {
		m = &sync.Mutex{}
		r.monitors[name] = m
	}
	r.mu.Unlock()

	m.Lock()
	r.held.Add(1)
	defer func() {
		r.held.Add(-1)
		m.Unlock()
	}()
	fn()
}

// Stats is a point-in-time snapshot for diagnostics.
type Stats struct {
	Locks    int   `json:"locks"`
	Monitors int   `json:"monitors"`
	Held     int64 `json:"held"`
}

// Stats returns the number of distinct locks, monitors, and currently
// held acquisitions.
func (r *Registry) Stats() Stats {
	r.mu.Lock()
	defer r.mu.Unlock()
	return Stats{
		Locks:    len(r.locks),
		Monitors: len(r.monitors),
		Held:     r.held.Load(),
	}
}

// Healthy reports whether the held-lock count is below the leak
// threshold.
func (r *Registry) Healthy() bool {
	return r.held.Load() < healthyHeldMax
}
