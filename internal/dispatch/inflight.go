package dispatch

import "sync"

// InFlight is the set of candidates that are queued or being processed.
type InFlight struct {
	mu    sync.Mutex
	paths map[string]struct{}
}

// NewInFlight returns an empty in-flight set.
func NewInFlight() *InFlight {
	return &InFlight{paths: make(map[string]struct{})}
}

// TryAcquire adds path to the set unless it is already a member or completed
// reports true for it. Both checks run under the set's lock, so a candidate
// that finishes concurrently with a late notification is never re-admitted.
func (f *InFlight) TryAcquire(path string, completed func(string) bool) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.paths[path]; ok {
		return false
	}
	if completed != nil && completed(path) {
		return false
	}
	f.paths[path] = struct{}{}
	return true
}

// Release removes path from the set. Releasing a non-member is a no-op.
func (f *InFlight) Release(path string) {
	f.mu.Lock()
	delete(f.paths, path)
	f.mu.Unlock()
}

// Contains reports whether path is currently a member.
func (f *InFlight) Contains(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.paths[path]
	return ok
}

// Len returns the number of members.
func (f *InFlight) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.paths)
}
