// Package broadcast provides the two small concurrency primitives the
// dispatch core wires input sessions, the aggregator, and output/telemetry
// sessions together with (spec.md §4.6, §5): a bounded drop-oldest
// mailbox for "snapshot changed" notifications, and a single-slot
// broadcast for the unified state where subscribers always see the
// latest value and may miss intermediate ones.
package broadcast

import "sync"

// Mailbox is a bounded channel of notifications where a full mailbox
// drops its oldest pending entry to make room for the newest one,
// rather than blocking the sender or dropping the newest.
type Mailbox[T any] struct {
	ch chan T
}

// NewMailbox creates a Mailbox with the given capacity.
func NewMailbox[T any](capacity int) *Mailbox[T] {
	return &Mailbox[T]{ch: make(chan T, capacity)}
}

// Notify enqueues v, dropping the oldest pending notification if the
// mailbox is full.
func (m *Mailbox[T]) Notify(v T) {
	for {
		select {
		case m.ch <- v:
			return
		default:
			select {
			case <-m.ch:
			default:
			}
		}
	}
}

// C returns the receive side of the mailbox.
func (m *Mailbox[T]) C() <-chan T { return m.ch }

// Slot holds the single most recent value of T and lets subscribers
// select on the next update alongside a shutdown signal, so a
// subscriber can honor context cancellation instead of blocking
// indefinitely on a value that may never come (spec.md §5 cancellation:
// "each task must observe the shutdown signal between awaits").
type Slot[T any] struct {
	mu      sync.Mutex
	value   T
	version uint64
	changed chan struct{}
}

// NewSlot creates an empty Slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{changed: make(chan struct{})}
}

// Set stores v as the latest value and wakes any waiters.
func (s *Slot[T]) Set(v T) {
	s.mu.Lock()
	s.value = v
	s.version++
	old := s.changed
	s.changed = make(chan struct{})
	s.mu.Unlock()
	close(old)
}

// Get returns the latest value along with its version.
func (s *Slot[T]) Get() (T, uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value, s.version
}

// Changed returns a channel that is closed once a value newer than
// lastSeen is available (immediately, if one already is). Typical use:
//
//	select {
//	case <-slot.Changed(lastSeen):
//	        v, lastSeen := slot.Get()
//	case <-ctx.Done():
//	        return
//	}
func (s *Slot[T]) Changed(lastSeen uint64) <-chan struct{} {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.version != lastSeen {
		ready := make(chan struct{})
		close(ready)
		return ready
	}
	return s.changed
}
