package dispatch

import (
	"log"
	"sync/atomic"
	"time"
)

// EventKind identifies one kind of dispatch event.
type EventKind string

const (
	// EventText is a fragment of the assistant's reply to the user.
	EventText EventKind = "text"
	// EventToolStart announces a tool invocation.
	EventToolStart EventKind = "tool_start"
	// EventToolEnd carries a tool invocation's result preview.
	EventToolEnd EventKind = "tool_end"
	// EventConversationCreated reports a conversation launched in the
	// background.
	EventConversationCreated EventKind = "conversation_created"
	// EventConversationUpdate reports progress inside a background
	// conversation.
	EventConversationUpdate EventKind = "conversation_update"
	// EventConversationComplete reports a background conversation reaching a
	// terminal outcome.
	EventConversationComplete EventKind = "conversation_complete"
	// EventError reports a dispatch-level failure.
	EventError EventKind = "error"
	// EventDone marks the end of one dispatch exchange.
	EventDone EventKind = "done"
)

// Event is one observable occurrence during dispatch.
type Event struct {
	Kind EventKind
	// Text is the payload: reply fragment, result preview, or status.
	Text string
	// Tool is set for tool events.
	Tool string
	// SessionID is set for conversation events.
	SessionID string
}

// Emitter fans dispatch events out to one subscriber over a buffered
// channel. Emission never blocks the dispatcher for long: a full channel is
// retried briefly, then the event is dropped and counted.
type Emitter struct {
	events  chan Event
	dropped atomic.Uint64
}

// NewEmitter creates an emitter with the given buffer size.
func NewEmitter(bufferSize int) *Emitter {
	return &Emitter{events: make(chan Event, bufferSize)}
}

// Emit sends an event, dropping it if the subscriber cannot drain in time.
func (e *Emitter) Emit(ev Event) {
	select {
	case e.events <- ev:
		return
	default:
	}

	select {
	case e.events <- ev:
	case <-time.After(100 * time.Millisecond):
		count := e.dropped.Add(1)
		if count%10 == 1 {
			log.Printf("[dispatch] WARNING: event channel full, dropped event (total dropped: %d): kind=%s", count, ev.Kind)
		}
	}
}

// Dropped returns how many events have been dropped so far.
func (e *Emitter) Dropped() uint64 {
	return e.dropped.Load()
}

// Events returns the subscriber side of the event stream.
func (e *Emitter) Events() <-chan Event {
	return e.events
}

// Close closes the event stream. Call only after the dispatcher has stopped.
func (e *Emitter) Close() {
	close(e.events)
}
