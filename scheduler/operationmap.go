package scheduler

// OperationMap is a mapping from operation id to *Operation, kept in
// insertion (registration) order. Ids are dense, start at 0, and are
// strictly increasing — the primary ordering key strategies use during
// selection (§3).
//
// OperationMap is not itself safe for concurrent use; every method here
// is called only while the owning Scheduler's SyncObject is held.
type OperationMap struct {
	order []*Operation
	byID  map[uint64]int
	next  uint64
}

// NewOperationMap returns an empty OperationMap with ids starting at 0.
func NewOperationMap() *OperationMap {
	return &OperationMap{byID: make(map[uint64]int)}
}

// NextID returns the id that would be assigned to the next registered
// operation, without reserving it.
func (m *OperationMap) NextID() uint64 { return m.next }

// Register adds op to the map. Returns false if an operation with the
// same id already exists.
func (m *OperationMap) Register(op *Operation) bool {
	if _, exists := m.byID[op.ID]; exists {
		return false
	}
	if op.ID != m.next {
		// Ids must be assigned by the caller via NextID to preserve the
		// dense, strictly increasing invariant; reject anything else.
		return false
	}
	m.byID[op.ID] = len(m.order)
	m.order = append(m.order, op)
	m.next++
	return true
}

// Get returns the operation with the given id, or nil if absent.
func (m *OperationMap) Get(id uint64) *Operation {
	idx, ok := m.byID[id]
	if !ok {
		return nil
	}
	return m.order[idx]
}

// Len returns the number of registered operations.
func (m *OperationMap) Len() int { return len(m.order) }

// InOrder returns operations in ascending id (registration) order. The
// returned slice is owned by the caller.
func (m *OperationMap) InOrder() []*Operation {
	out := make([]*Operation, len(m.order))
	copy(out, m.order)
	return out
}

// All calls fn for every operation in ascending id order, stopping early
// if fn returns false.
func (m *OperationMap) All(fn func(*Operation) bool) {
	for _, op := range m.order {
		if !fn(op) {
			return
		}
	}
}

// Reset clears the map back to empty, ready for reuse in the next
// iteration. Operations are never removed mid-run (§3); this is only
// called at iteration teardown.
func (m *OperationMap) Reset() {
	m.order = m.order[:0]
	for k := range m.byID {
		delete(m.byID, k)
	}
	m.next = 0
}
