package ledger

import "sync"

// =============================================================================
// ENTITY LOCK - Serializes mutations per employee
// =============================================================================

// EntityLock hands out one mutex per canonical entity reference, so an
// order placement and a scheduled reset on the same employee cannot
// interleave. Locks are process-local; the optimistic version counter
// on the employee record covers multi-process deployments.
type EntityLock struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func NewEntityLock() *EntityLock {
	return &EntityLock{locks: make(map[string]*sync.Mutex)}
}

// Lock acquires the mutex for the key and returns the unlock function.
//
//	defer locks.Lock(emp.ID.Canonical())()
func (l *EntityLock) Lock(key string) func() {
	l.mu.Lock()
	m, ok := l.locks[key]
	if !ok {
		m = &sync.Mutex{}
		l.locks[key] = m
	}
	l.mu.Unlock()

	m.Lock()
	return m.Unlock
}
