// Package events fans simulation events out to subscribers such as websocket
// clients. Each event is encoded once and the same bytes are handed to every
// subscriber.
package events

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/ardanlabs/powsim/foundation/blockchain/event"
)

// messageBuffer is how many encoded events a subscriber can fall behind
// before events are dropped for it.
const messageBuffer = 100

// Events maps subscriber ids to the channel their events are delivered on.
type Events struct {
	subs map[string]chan []byte
	mu   sync.RWMutex
}

// New constructs an empty set of subscribers.
func New() *Events {
	return &Events{
		subs: make(map[string]chan []byte),
	}
}

// Shutdown closes the channel of every subscriber and forgets them all.
func (evt *Events) Shutdown() {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	for id, ch := range evt.subs {
		delete(evt.subs, id)
		close(ch)
	}
}

// Acquire registers the id and returns the channel its events arrive on.
// Acquiring an id twice returns the same channel.
func (evt *Events) Acquire(id string) <-chan []byte {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	if ch, exists := evt.subs[id]; exists {
		return ch
	}

	ch := make(chan []byte, messageBuffer)
	evt.subs[id] = ch

	return ch
}

// Release closes the channel of the id and forgets it.
func (evt *Events) Release(id string) error {
	evt.mu.Lock()
	defer evt.mu.Unlock()

	ch, exists := evt.subs[id]
	if !exists {
		return fmt.Errorf("subscriber %q does not exist", id)
	}

	delete(evt.subs, id)
	close(ch)

	return nil
}

// Receivers returns the number of registered subscribers.
func (evt *Events) Receivers() int {
	evt.mu.RLock()
	defer evt.mu.RUnlock()

	return len(evt.subs)
}

// Send encodes the event and offers it to every subscriber without blocking.
// It returns the number of subscribers whose buffer was full.
func (evt *Events) Send(e event.Event) (int, error) {
	data, err := json.Marshal(e)
	if err != nil {
		return 0, fmt.Errorf("encoding %s event: %w", e.Kind, err)
	}

	evt.mu.RLock()
	defer evt.mu.RUnlock()

	var dropped int
	for _, ch := range evt.subs {
		select {
		case ch <- data:
		default:
			dropped++
		}
	}

	return dropped, nil
}
