package events

import (
	"sync"
	"time"

	"github.com/google/uuid"
)

// Publisher delivers one event. Components receive a Publisher instead of
// holding a reference to whatever routes the events.
type Publisher func(Event)

// Discard drops every event.
func Discard(Event) {}

// Fanout returns a Publisher that forwards to each non-nil publisher in order.
func Fanout(ps ...Publisher) Publisher {
	out := make([]Publisher, 0, len(ps))
	for _, p := range ps {
		if p != nil {
			out = append(out, p)
		}
	}
	return func(e Event) {
		for _, p := range out {
			p(e)
		}
	}
}

// Envelope is the transport form of an event used by external sinks.
type Envelope struct {
	ID   string    `json:"id"`
	Kind Kind      `json:"kind"`
	Time time.Time `json:"time"`
	Data Event     `json:"data"`
}

// Wrap assigns an id and timestamp to e.
func Wrap(e Event, at time.Time) Envelope {
	return Envelope{
		ID:   uuid.NewString(),
		Kind: e.Kind(),
		Time: at.UTC(),
		Data: e,
	}
}

// Recorder collects published events. It is safe for concurrent use.
type Recorder struct {
	mu     sync.Mutex
	events []Event
}

// Publish appends e. Use it as a Publisher: rec.Publish.
func (r *Recorder) Publish(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// OfKind returns the recorded events of kind k.
func (r *Recorder) OfKind(k Kind) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Kind() == k {
			out = append(out, e)
		}
	}
	return out
}

// Statuses returns the connection statuses recorded, in order.
func (r *Recorder) Statuses() []Status {
	var out []Status
	for _, e := range r.OfKind(KindConnection) {
		out = append(out, e.(Connection).Status)
	}
	return out
}

// Reset clears the recorder.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = nil
}
