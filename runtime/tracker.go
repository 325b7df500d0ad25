package runtime

import (
	"sync"
	"time"
)

// tracker is the active-container table: the single source of truth for
// what is currently consuming engine resources. Entries are inserted
// before a container starts and removed on every exit path.
type tracker struct {
	mu         sync.RWMutex
	containers map[string]ContainerInfo
}

func newTracker() *tracker {
	return &tracker{containers: make(map[string]ContainerInfo)}
}

func (t *tracker) Add(info ContainerInfo) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.containers[info.ID] = info
}

// Remove deletes an entry and reports whether it existed. Removal is
// idempotent so the execution's deferred cleanup and an explicit stop
// request can race safely.
func (t *tracker) Remove(id string) (ContainerInfo, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	info, ok := t.containers[id]
	if ok {
		delete(t.containers, id)
	}
	return info, ok
}

func (t *tracker) Touch(id string, status Status) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if info, ok := t.containers[id]; ok {
		info.Status = status
		info.LastActivity = time.Now()
		t.containers[id] = info
	}
}

// List returns a snapshot of the table
func (t *tracker) List() []ContainerInfo {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]ContainerInfo, 0, len(t.containers))
	for _, info := range t.containers {
		out = append(out, info)
	}
	return out
}

func (t *tracker) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.containers)
}
