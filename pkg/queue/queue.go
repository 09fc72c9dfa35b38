// Package queue implements the priority-ordered waiting list with a
// stable FIFO tiebreak. The queue owns only the ordering of waiting
// sessions — execution belongs to the dispatcher — so it is a
// single-writer in-memory structure rather than a polled claim queue.
package queue

import (
	"sort"
	"sync"
	"time"

	"github.com/Blockchain-Unmasked/ai-dev-lab-sub000/pkg/coreerr"
)

// Item is one waiting session's position-relevant state.
type Item struct {
	SessionID string
	Priority  int
	CreatedAt time.Time
	Tier      int
}

// Queue is the priority-ordered waiting list. Exactly one entry exists per
// waiting session; ordering is descending priority, ties broken by
// ascending CreatedAt (FIFO within priority). The queue is a single-writer
// structure — Enqueue/Remove/Pop serialize through mu — and read queries
// (Peek/Position/Snapshot/Length) return a snapshot rather than a live
// view.
type Queue struct {
	mu    sync.Mutex
	items []Item

	// woke is closed and replaced on every Enqueue and every Wake call,
	// giving the dispatcher a channel to select on instead of polling.
	wokeMu sync.Mutex
	woke   chan struct{}
}

// New builds an empty Queue.
func New() *Queue {
	return &Queue{woke: make(chan struct{})}
}

// Woke returns a channel that is closed the next time an item is enqueued.
// Callers must re-call Woke after each signal to keep waiting.
func (q *Queue) Woke() <-chan struct{} {
	q.wokeMu.Lock()
	defer q.wokeMu.Unlock()
	return q.woke
}

func (q *Queue) signal() {
	q.wokeMu.Lock()
	close(q.woke)
	q.woke = make(chan struct{})
	q.wokeMu.Unlock()
}

// insertionIndex returns the first index whose stored item has strictly
// lower priority than item, or equal priority and a later CreatedAt, i.e.
// the position item should be inserted at
// to keep q.items sorted priority-desc, createdAt-asc. Must be called with
// mu held.
func (q *Queue) insertionIndex(item Item) int {
	return sort.Search(len(q.items), func(i int) bool {
		other := q.items[i]
		if other.Priority != item.Priority {
			return other.Priority < item.Priority
		}
		return other.CreatedAt.After(item.CreatedAt)
	})
}

// Enqueue inserts sessionID at the position its priority/createdAt dictate.
// If sessionID is already queued, it is first removed — this is how
// re-enqueue on escalation or priority change is implemented.
func (q *Queue) Enqueue(item Item) {
	q.mu.Lock()
	q.removeLocked(item.SessionID)
	idx := q.insertionIndex(item)
	q.items = append(q.items, Item{})
	copy(q.items[idx+1:], q.items[idx:])
	q.items[idx] = item
	q.mu.Unlock()
	// Signal on every enqueue, not just empty->non-empty: a waiting
	// dispatcher tick may be blocked wanting a higher-priority or
	// differently-tiered head than whatever was already queued.
	q.signal()
}

func (q *Queue) removeLocked(sessionID string) bool {
	for i, it := range q.items {
		if it.SessionID == sessionID {
			q.items = append(q.items[:i], q.items[i+1:]...)
			return true
		}
	}
	return false
}

// Remove deletes sessionID from the queue if present. Reports whether it
// was found.
func (q *Queue) Remove(sessionID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.removeLocked(sessionID)
}

// Peek returns the highest-priority item without removing it.
func (q *Queue) Peek() (Item, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, false
	}
	return q.items[0], true
}

// Pop removes and returns the highest-priority item.
func (q *Queue) Pop() (Item, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return Item{}, coreerr.NewNotFoundError("queue_item", "<head>")
	}
	item := q.items[0]
	q.items = q.items[1:]
	return item, nil
}

// PushFront re-inserts item at the front of the queue, used by the
// dispatcher to push a popped-but-ineligible head back to exactly where it
// was without re-deriving its sort position.
func (q *Queue) PushFront(item Item) {
	q.mu.Lock()
	q.items = append([]Item{item}, q.items...)
	q.mu.Unlock()
}

// Position returns sessionID's 1-indexed position, or false if not queued.
func (q *Queue) Position(sessionID string) (int, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	for i, it := range q.items {
		if it.SessionID == sessionID {
			return i + 1, true
		}
	}
	return 0, false
}

// Length returns the current queue depth.
func (q *Queue) Length() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// Wake signals every current Woke() waiter without mutating the queue,
// used by callers (e.g. the dispatcher) that need to trigger a re-check
// for a reason the queue itself doesn't observe — an agent becoming
// available, not an item being enqueued.
func (q *Queue) Wake() {
	q.signal()
}

// Snapshot returns a copy of the queue contents in pop order.
func (q *Queue) Snapshot() []Item {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Item, len(q.items))
	copy(out, q.items)
	return out
}
