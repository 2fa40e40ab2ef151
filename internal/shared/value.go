// Package shared provides Value, a double-buffered variable that update
// functions read concurrently while syncs publish new aggregates into it.
//
// Readers pin the current head slot with Acquire and must Release the
// returned Ref. Writers are serialized; each write goes into the buffer slot
// once every reader that pinned it has released, and is then published by
// swapping head and buffer. Readers therefore never observe a torn value and
// never block writers for longer than their own critical section.
package shared

import (
	"sync"
	"sync/atomic"
)

// Syncable is the type-erased view of a Value used by the engine to apply
// sync results without knowing T.
type Syncable interface {
	Name() string
	IsUnique() bool
	ApplyAny(fn func(current, param any) any, param any)
}

type slot[T any] struct {
	val  T
	refs atomic.Int64
}

// Value is a shared variable of type T. The zero value is not usable; create
// one with New.
type Value[T any] struct {
	name  string
	slots [2]slot[T]
	head  atomic.Pointer[slot[T]]

	writeMu sync.Mutex

	drainMu sync.Mutex
	drained *sync.Cond
}

// New returns a Value holding initial.
func New[T any](name string, initial T) *Value[T] {
	v := &Value[T]{name: name}
	v.drained = sync.NewCond(&v.drainMu)
	v.slots[0].val = initial
	v.slots[1].val = initial
	v.head.Store(&v.slots[0])
	return v
}

// Ref pins the slot that was head when it was acquired.
type Ref[T any] struct {
	owner *Value[T]
	s     *slot[T]
}

// Value returns the pinned value.
func (r *Ref[T]) Value() T { return r.s.val }

// Release unpins the slot. A Ref must be released exactly once.
func (r *Ref[T]) Release() {
	if r.s == nil {
		panic("shared: Ref released twice")
	}
	r.owner.unpin(r.s)
	r.s = nil
}

func (v *Value[T]) Name() string { return v.name }

// Acquire pins the current head.
func (v *Value[T]) Acquire() *Ref[T] {
	for {
		s := v.head.Load()
		s.refs.Add(1)
		if v.head.Load() == s {
			return &Ref[T]{owner: v, s: s}
		}
		// head moved between load and pin; the slot may be the one a writer
		// is waiting on.
		v.unpin(s)
	}
}

func (v *Value[T]) unpin(s *slot[T]) {
	if s.refs.Add(-1) == 0 {
		v.drainMu.Lock()
		v.drained.Broadcast()
		v.drainMu.Unlock()
	}
}

// Get returns a copy of the current value.
func (v *Value[T]) Get() T {
	r := v.Acquire()
	defer r.Release()
	return r.Value()
}

// Set publishes val.
func (v *Value[T]) Set(val T) {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	v.publish(val)
}

// Exchange publishes val and returns the value it replaced.
func (v *Value[T]) Exchange(val T) T {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	old := v.head.Load().val
	v.publish(val)
	return old
}

// Apply publishes fn(current, param).
func (v *Value[T]) Apply(fn func(current T, param any) T, param any) {
	v.writeMu.Lock()
	defer v.writeMu.Unlock()
	v.publish(fn(v.head.Load().val, param))
}

// ApplyAny implements Syncable. It panics if fn returns something other than T.
func (v *Value[T]) ApplyAny(fn func(current, param any) any, param any) {
	v.Apply(func(current T, param any) T {
		return fn(current, param).(T)
	}, param)
}

// IsUnique reports whether no Ref is outstanding.
func (v *Value[T]) IsUnique() bool {
	return v.slots[0].refs.Load() == 0 && v.slots[1].refs.Load() == 0
}

// publish must be called with writeMu held.
func (v *Value[T]) publish(val T) {
	head := v.head.Load()
	buf := &v.slots[0]
	if head == buf {
		buf = &v.slots[1]
	}

	v.drainMu.Lock()
	for buf.refs.Load() != 0 {
		v.drained.Wait()
	}
	v.drainMu.Unlock()

	buf.val = val
	v.head.Store(buf)
}
