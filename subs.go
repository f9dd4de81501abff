package parley

import (
	"slices"
	"sync"
)

// SubTracker remembers which group channels the session wants open so they
// can be replayed after a reconnect. It holds desired state only; the Conn
// reconciles the gateway's open set against it on every transition into
// Connected.
//
// Entries survive connection drops. They are removed only by explicit
// unsubscribe or by Disconnect (session teardown).
type SubTracker struct {
	mu     sync.Mutex
	groups map[int64]struct{}
}

// NewSubTracker creates an empty tracker.
func NewSubTracker() *SubTracker {
	return &SubTracker{groups: make(map[int64]struct{})}
}

// Track adds groupID to the tracked set. Returns true if it was not
// already tracked.
func (t *SubTracker) Track(groupID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.groups[groupID]; ok {
		return false
	}
	t.groups[groupID] = struct{}{}
	return true
}

// Untrack removes groupID from the tracked set. Returns true if it was
// tracked.
func (t *SubTracker) Untrack(groupID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.groups[groupID]; !ok {
		return false
	}
	delete(t.groups, groupID)
	return true
}

// Contains reports whether groupID is tracked.
func (t *SubTracker) Contains(groupID int64) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	_, ok := t.groups[groupID]
	return ok
}

// Tracked returns the tracked group ids, sorted.
func (t *SubTracker) Tracked() []int64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]int64, 0, len(t.groups))
	for id := range t.groups {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// Len returns the number of tracked groups.
func (t *SubTracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.groups)
}

// Clear empties the tracked set.
func (t *SubTracker) Clear() {
	t.mu.Lock()
	defer t.mu.Unlock()
	clear(t.groups)
}
