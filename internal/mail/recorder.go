package mail

import (
	"context"
	"errors"
	"sync"
)

// Recorder is an in-memory Sender for tests. Addresses listed in FailFor are rejected.
type Recorder struct {
	mu       sync.Mutex
	messages []Message
	FailFor  map[string]bool
}

var ErrRejected = errors.New("recipient rejected")

func NewRecorder(failFor ...string) *Recorder {
	r := &Recorder{FailFor: make(map[string]bool)}
	for _, addr := range failFor {
		r.FailFor[addr] = true
	}
	return r
}

func (r *Recorder) Send(_ context.Context, msg Message) error {
	if err := msg.validate(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.FailFor[msg.To.Address] {
		return ErrRejected
	}
	r.messages = append(r.messages, msg)
	return nil
}

func (r *Recorder) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Message(nil), r.messages...)
}
