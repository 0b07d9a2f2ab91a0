package views

import "container/list"

// dedupTracker remembers recently applied event keys so redelivered events
// (at-least-once transport, overlapping replays) become no-ops. Bounded LRU:
// oldest keys are evicted first.
//
// Not thread-safe; callers hold the projector lock.
type dedupTracker struct {
	capacity int
	keys     map[string]*list.Element
	order    *list.List // front = most recent
}

func newDedupTracker(capacity int) *dedupTracker {
	if capacity <= 0 {
		capacity = 65536
	}
	return &dedupTracker{
		capacity: capacity,
		keys:     make(map[string]*list.Element, capacity),
		order:    list.New(),
	}
}

// Seen records key and reports whether it was already present.
func (d *dedupTracker) Seen(key string) bool {
	if el, ok := d.keys[key]; ok {
		d.order.MoveToFront(el)
		return true
	}

	d.keys[key] = d.order.PushFront(key)

	if d.order.Len() > d.capacity {
		oldest := d.order.Back()
		d.order.Remove(oldest)
		delete(d.keys, oldest.Value.(string))
	}
	return false
}

func (d *dedupTracker) Len() int {
	return d.order.Len()
}
