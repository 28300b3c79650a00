package common

import "cdpvault/core/events"

// Journal records undo closures for in-memory state so that a compound
// operation spanning several components either applies fully or not at all.
// Events raised inside an operation are held back until the outermost
// Atomic call commits.
type Journal struct {
	undo    []func()
	pending []events.Event
	depth   int
	emitter events.Emitter
}

// NewJournal returns a journal flushing committed events to emitter. A nil
// emitter discards them.
func NewJournal(emitter events.Emitter) *Journal {
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	return &Journal{emitter: emitter}
}

// SetEmitter swaps the downstream emitter.
func (j *Journal) SetEmitter(emitter events.Emitter) {
	if j == nil {
		return
	}
	if emitter == nil {
		emitter = events.NoopEmitter{}
	}
	j.emitter = emitter
}

// Append registers an undo closure for a mutation that was just applied.
func (j *Journal) Append(undo func()) {
	if j == nil || undo == nil || j.depth == 0 {
		return
	}
	j.undo = append(j.undo, undo)
}

// Emit buffers an event until the enclosing operation commits.
func (j *Journal) Emit(evt events.Event) {
	if j == nil || evt == nil {
		return
	}
	if j.depth == 0 {
		j.emitter.Emit(evt)
		return
	}
	j.pending = append(j.pending, evt)
}

// Atomic runs fn. When fn fails or panics every mutation journaled since the
// call began is reverted in reverse order and buffered events are dropped.
// Calls nest; only the outermost commit publishes events.
func (j *Journal) Atomic(fn func() error) error {
	mark, eventMark := len(j.undo), len(j.pending)
	j.depth++
	committed := false
	defer func() {
		if !committed {
			j.revert(mark, eventMark)
		}
		j.depth--
	}()
	if err := fn(); err != nil {
		return err
	}
	committed = true
	if j.depth == 1 {
		j.undo = j.undo[:0]
		flushed := j.pending
		j.pending = nil
		for _, evt := range flushed {
			j.emitter.Emit(evt)
		}
	}
	return nil
}

func (j *Journal) revert(mark, eventMark int) {
	for i := len(j.undo) - 1; i >= mark; i-- {
		j.undo[i]()
	}
	j.undo = j.undo[:mark]
	j.pending = j.pending[:eventMark]
}

// Assign sets *dst to value and journals the previous value.
func Assign[T any](j *Journal, dst *T, value T) {
	prev := *dst
	j.Append(func() { *dst = prev })
	*dst = value
}

// AssignKey sets m[key] to value and journals the previous entry, removing
// the key again on revert when it did not exist.
func AssignKey[K comparable, V any](j *Journal, m map[K]V, key K, value V) {
	prev, existed := m[key]
	j.Append(func() {
		if existed {
			m[key] = prev
		} else {
			delete(m, key)
		}
	})
	m[key] = value
}

// DeleteKey removes m[key] and journals the previous entry.
func DeleteKey[K comparable, V any](j *Journal, m map[K]V, key K) {
	prev, existed := m[key]
	if !existed {
		return
	}
	j.Append(func() { m[key] = prev })
	delete(m, key)
}
