package scheduler

import "sync"

// SyncObject is the scheduler's single synchronization primitive (§4.1,
// §5): a mutex paired with a broadcast condition variable. Every
// scheduler entry point acquires it; at any moment at most one
// controlled goroutine is outside a Wait on it, which is the
// cooperative-serialization invariant the whole package relies on.
type SyncObject struct {
	mu   sync.Mutex
	cond *sync.Cond
}

// NewSyncObject returns a ready-to-use SyncObject.
func NewSyncObject() *SyncObject {
	s := &SyncObject{}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// Lock acquires the underlying mutex.
func (s *SyncObject) Lock() { s.mu.Lock() }

// Unlock releases the underlying mutex.
func (s *SyncObject) Unlock() { s.mu.Unlock() }

// Wait blocks the calling goroutine on the condition variable. Must be
// called with the lock held; it is released while waiting and
// reacquired before returning, per sync.Cond semantics.
func (s *SyncObject) Wait() { s.cond.Wait() }

// NotifyAll wakes every goroutine currently blocked in Wait. Must be
// called with the lock held.
func (s *SyncObject) NotifyAll() { s.cond.Broadcast() }
