// Package queue provides a fixed-capacity FIFO with an explicit overflow policy.
package queue

// Policy selects what Push does when the queue is full.
type Policy int

const (
	// Reject refuses new items while the queue is full.
	Reject Policy = iota
	// EvictOldest drops the oldest item to make room for the new one.
	EvictOldest
)

func (p Policy) String() string {
	switch p {
	case Reject:
		return "reject"
	case EvictOldest:
		return "evict_oldest"
	default:
		return "unknown"
	}
}

// Bounded is an ordered collection holding at most Max items. The zero value is not
// usable; build one with New. Bounded is not safe for concurrent use; owners guard it.
type Bounded[T any] struct {
	items  []T
	max    int
	policy Policy
}

// New creates an empty queue. A max below one is treated as one.
func New[T any](max int, policy Policy) *Bounded[T] {
	if max < 1 {
		max = 1
	}

	return &Bounded[T]{
		items:  make([]T, 0, max),
		max:    max,
		policy: policy,
	}
}

// From creates a queue holding the last max items of items.
func From[T any](items []T, max int, policy Policy) *Bounded[T] {
	q := New[T](max, policy)
	start := 0
	if len(items) > q.max {
		start = len(items) - q.max
	}
	q.items = append(q.items, items[start:]...)
	return q
}

// Push appends item. It reports whether the item was admitted and returns the evicted
// item, if any.
func (q *Bounded[T]) Push(item T) (evicted T, didEvict bool, ok bool) {
	if len(q.items) < q.max {
		q.items = append(q.items, item)
		return evicted, false, true
	}

	if q.policy == Reject {
		return evicted, false, false
	}

	evicted = q.items[0]
	// Shift in place so the backing array does not grow without bound.
	copy(q.items, q.items[1:])
	q.items[len(q.items)-1] = item
	return evicted, true, true
}

// Remove deletes the first item matching match and returns it.
func (q *Bounded[T]) Remove(match func(T) bool) (removed T, ok bool) {
	for i, item := range q.items {
		if !match(item) {
			continue
		}

		removed = item
		q.items = append(q.items[:i], q.items[i+1:]...)
		return removed, true
	}

	return removed, false
}

// Find returns the first item matching match.
func (q *Bounded[T]) Find(match func(T) bool) (found T, ok bool) {
	for _, item := range q.items {
		if match(item) {
			return item, true
		}
	}

	return found, false
}

// Items returns a copy of the queue contents, oldest first.
func (q *Bounded[T]) Items() []T {
	out := make([]T, len(q.items))
	copy(out, q.items)
	return out
}

// Clear drops every item and returns what was dropped.
func (q *Bounded[T]) Clear() []T {
	dropped := q.items
	q.items = make([]T, 0, q.max)
	return dropped
}

func (q *Bounded[T]) Len() int {
	return len(q.items)
}

func (q *Bounded[T]) Max() int {
	return q.max
}

func (q *Bounded[T]) Full() bool {
	return len(q.items) >= q.max
}

func (q *Bounded[T]) Policy() Policy {
	return q.policy
}
