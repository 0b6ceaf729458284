// Package events publishes provisioning lifecycle notifications to the
// configured broker. Publishing is best effort throughout the engine:
// callers log failures and carry on, an unreachable broker never fails an
// allocation or a batch.
package events

import (
	"context"
	"sync"

	contracts "hangar/contracts/events"
)

// Publisher is the outbound port for lifecycle events.
type Publisher interface {
	Publish(ctx context.Context, event contracts.Event) error
	Close()
}

// Nop discards events. The default when no broker is configured.
type Nop struct{}

func (Nop) Publish(context.Context, contracts.Event) error { return nil }

func (Nop) Close() {}

// Recorder captures events in memory for tests and dry runs.
type Recorder struct {
	mu     sync.Mutex
	events []contracts.Event
	err    error
}

// NewRecorder returns an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

// Fail makes every subsequent Publish return err. Pass nil to heal.
func (r *Recorder) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *Recorder) Publish(_ context.Context, event contracts.Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.err != nil {
		return r.err
	}
	r.events = append(r.events, event)
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of everything published so far.
func (r *Recorder) Events() []contracts.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]contracts.Event, len(r.events))
	copy(out, r.events)
	return out
}

// ByType filters recorded events by type.
func (r *Recorder) ByType(eventType string) []contracts.Event {
	var out []contracts.Event
	for _, e := range r.Events() {
		if e.Type == eventType {
			out = append(out, e)
		}
	}
	return out
}
