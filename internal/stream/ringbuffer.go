package stream

const defaultRingSize = 16

// ring keeps the newest entries up to a fixed capacity. It belongs to one
// session and is not safe for concurrent use.
type ring[T any] struct {
	items []T
	next  int // slot overwritten by the next push once full
	limit int
}

func newRing[T any](limit int) *ring[T] {
	if limit <= 0 {
		limit = defaultRingSize
	}
	return &ring[T]{items: make([]T, 0, limit), limit: limit}
}

func (r *ring[T]) push(v T) {
	if len(r.items) < r.limit {
		r.items = append(r.items, v)
		return
	}
	r.items[r.next] = v
	r.next = (r.next + 1) % r.limit
}

// snapshot returns the entries oldest first
func (r *ring[T]) snapshot() []T {
	out := make([]T, 0, len(r.items))
	out = append(out, r.items[r.next:]...)
	return append(out, r.items[:r.next]...)
}

func (r *ring[T]) size() int {
	return len(r.items)
}
