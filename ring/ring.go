// Package ring implements fixed-capacity, single-producer/single-consumer
// typed ring buffers, pre-allocated from a fixed-size pool instead of the
// heap. It is the queue primitive the serial transport engines use to move
// data between interrupt context and the foreground.
package ring

import (
	"sync/atomic"

	"github.com/pkg/errors"
)

// Discipline selects how Take removes an element relative to Add.
type Discipline uint8

const (
	// FIFO takes the oldest element first (queue semantics).
	FIFO Discipline = iota
	// LIFO takes the most recently added element first (stack semantics).
	// LIFO and FIFO must not be mixed on the two ends of the same Ring: both
	// add and take would then mutate head, breaking the SPSC contract.
	LIFO
)

// ErrPoolExhausted names the condition of a Pool with every slot assigned.
// Pool.Create does not return it; Create reports that case as nil, false.
var ErrPoolExhausted = errors.New("ring: pool exhausted")

// Ring is one fixed-capacity queue backed by caller-supplied storage.
// Capacity is len(buffer)-1; one slot is always kept empty so head==tail is
// an unambiguous empty marker.
//
// Add must only be called by the producer, Take only by the consumer. Under
// that discipline head/tail are each written by exactly one side and read by
// the other, so plain atomic loads/stores are sufficient - no lock is taken.
type Ring[T any] struct {
	buf        []T
	head       atomic.Uint32
	tail       atomic.Uint32
	discipline Discipline
	assigned   atomic.Bool
}

// reset clears a Ring to the unassigned, empty state. Called with the slot
// already removed from service (pool bookkeeping), so plain writes are fine.
func (r *Ring[T]) reset() {
	r.buf = nil
	r.head.Store(0)
	r.tail.Store(0)
	r.assigned.Store(false)
}

// bind claims the ring for the given backing buffer and discipline.
func (r *Ring[T]) bind(buf []T, discipline Discipline) {
	r.buf = buf
	r.head.Store(0)
	r.tail.Store(0)
	r.discipline = discipline
	r.assigned.Store(true)
}

// Add writes one element if the ring is not full. Reports whether it did.
func (r *Ring[T]) Add(v T) bool {
	if !r.assigned.Load() {
		return false
	}
	length := uint32(len(r.buf))
	head := r.head.Load()
	tail := r.tail.Load()
	next := (head + 1) % length
	if next == tail {
		return false // full
	}
	r.buf[head] = v
	r.head.Store(next)
	return true
}

// Take removes one element according to the ring's discipline. Reports
// whether an element was available.
func (r *Ring[T]) Take() (T, bool) {
	var zero T
	if !r.assigned.Load() {
		return zero, false
	}
	if r.discipline == LIFO {
		return r.takeFront()
	}
	return r.takeBack()
}

// takeBack implements FIFO removal: consume from tail.
func (r *Ring[T]) takeBack() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	v := r.buf[tail]
	r.tail.Store((tail + 1) % uint32(len(r.buf)))
	return v, true
}

// takeFront implements LIFO removal: consume the most recent write by
// decrementing head, treating it as the top of a stack.
func (r *Ring[T]) takeFront() (T, bool) {
	var zero T
	head := r.head.Load()
	tail := r.tail.Load()
	if head == tail {
		return zero, false
	}
	length := uint32(len(r.buf))
	var newHead uint32
	if head > 0 {
		newHead = head - 1
	} else {
		newHead = length - 1
	}
	v := r.buf[newHead]
	r.head.Store(newHead)
	return v, true
}

// Flush empties the ring. The caller must ensure the queue is quiesced
// (no concurrent Add/Take) before calling this.
func (r *Ring[T]) Flush() {
	r.head.Store(0)
	r.tail.Store(0)
}

// IsEmpty reports whether the ring currently holds no elements. An
// unassigned ring reports empty.
func (r *Ring[T]) IsEmpty() bool {
	if !r.assigned.Load() {
		return true
	}
	return r.head.Load() == r.tail.Load()
}

// IsFull reports whether the ring has no remaining capacity. An unassigned
// ring reports not full.
func (r *Ring[T]) IsFull() bool {
	if !r.assigned.Load() {
		return false
	}
	length := uint32(len(r.buf))
	next := (r.head.Load() + 1) % length
	return next == r.tail.Load()
}

// IsValid reports whether the ring is currently claimed from its pool.
func (r *Ring[T]) IsValid() bool {
	return r.assigned.Load()
}

// Len reports the number of elements currently queued. It is a snapshot;
// under concurrent Add/Take the value may be stale by the time it is read.
func (r *Ring[T]) Len() int {
	if !r.assigned.Load() {
		return 0
	}
	length := uint32(len(r.buf))
	head := r.head.Load()
	tail := r.tail.Load()
	if head >= tail {
		return int(head - tail)
	}
	return int(length - tail + head)
}

// Capacity reports the maximum number of elements the ring can hold, which
// is always one less than the backing buffer's length.
func (r *Ring[T]) Capacity() int {
	if len(r.buf) == 0 {
		return 0
	}
	return len(r.buf) - 1
}

// Pool is a fixed-capacity set of rings, all sharing element type T. It
// mirrors the firmware's global queue pool: storage for the Ring headers is
// allocated once, at pool construction; only the caller-supplied backing
// buffer passed to Create varies per queue.
type Pool[T any] struct {
	slots []Ring[T]
}

// NewPool allocates a pool capable of holding up to capacity simultaneously
// assigned rings.
func NewPool[T any](capacity int) *Pool[T] {
	return &Pool[T]{slots: make([]Ring[T], capacity)}
}

// Init invalidates every ring in the pool. Must be called before any Create.
func (p *Pool[T]) Init() {
	for i := range p.slots {
		p.slots[i].reset()
	}
}

// Create claims a free slot and binds it to buf. Returns nil, false when buf
// is empty or the pool has no free slot.
func (p *Pool[T]) Create(buf []T, discipline Discipline) (*Ring[T], bool) {
	if len(buf) == 0 {
		return nil, false
	}
	for i := range p.slots {
		if !p.slots[i].assigned.Load() {
			p.slots[i].bind(buf, discipline)
			return &p.slots[i], true
		}
	}
	return nil, false
}

// Invalidate returns ring to the pool. A nil ring is a no-op.
func (p *Pool[T]) Invalidate(r *Ring[T]) {
	if r == nil {
		return
	}
	r.reset()
}
