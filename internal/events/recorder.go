package events

import (
	"encoding/json"
	"sync"
)

// Recorded is one event captured by a Recorder.
type Recorded struct {
	Subject string
	Payload []byte
}

// Recorder keeps published events in memory. Tests use it to assert on emitted events.
type Recorder struct {
	mu     sync.Mutex
	events []Recorded
	Err    error // returned from Publish when set
}

func (r *Recorder) Publish(subject string, data any) error {
	if r.Err != nil {
		return r.Err
	}
	payload, err := json.Marshal(data)
	if err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, Recorded{Subject: subject, Payload: payload})
	return nil
}

func (r *Recorder) Close() {}

// Events returns a copy of the recorded events.
func (r *Recorder) Events() []Recorded {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Recorded(nil), r.events...)
}

// Count returns how many events were published on subject.
func (r *Recorder) Count(subject string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e.Subject == subject {
			n++
		}
	}
	return n
}
