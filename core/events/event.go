package events

import "cdpvault/core/types"

// Event is a committed engine state change.
type Event interface {
	EventType() string
}

// Emitter receives events after the operation that produced them commits.
type Emitter interface {
	Emit(Event)
}

// NoopEmitter discards everything.
type NoopEmitter struct{}

func (NoopEmitter) Emit(Event) {}

// Fanout delivers each event to every emitter in order.
type Fanout []Emitter

func (f Fanout) Emit(evt Event) {
	for _, next := range f {
		if next != nil {
			next.Emit(evt)
		}
	}
}

// Flatten returns the attribute form of evt. Events without attributes
// yield a bare type.
func Flatten(evt Event) *types.Event {
	if typed, ok := evt.(Typed); ok {
		if out := typed.Event(); out != nil {
			return out
		}
	}
	return &types.Event{Type: evt.EventType()}
}
