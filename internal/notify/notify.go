// Package notify is the change-notification sink: fire-and-forget broadcast
// of "item updated" / "job completed" events to any number of subscribers
// (typically SSE connections). Slow subscribers drop events rather than
// block the sender.
package notify

import (
	"sync"
)

const eventBuffer = 64

// Event types broadcast by the background pipeline.
const (
	TypeItemUpdated  = "item_updated"
	TypeJobCompleted = "job_completed"
)

// Event is one change notification.
type Event struct {
	Type     string `json:"type"`
	MediaUID string `json:"media_uid,omitempty"`
	Job      string `json:"job,omitempty"`
	Count    int    `json:"count,omitempty"`
}

// Broadcaster fans events out to all current subscribers.
type Broadcaster struct {
	mu        sync.RWMutex
	listeners []chan Event
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{}
}

// Subscribe adds a listener and returns its channel.
func (b *Broadcaster) Subscribe() chan Event {
	b.mu.Lock()
	defer b.mu.Unlock()
	ch := make(chan Event, eventBuffer)
	b.listeners = append(b.listeners, ch)
	return ch
}

// Unsubscribe removes a listener and closes its channel.
func (b *Broadcaster) Unsubscribe(ch chan Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i, listener := range b.listeners {
		if listener == ch {
			b.listeners = append(b.listeners[:i], b.listeners[i+1:]...)
			close(ch)
			return
		}
	}
}

// Publish sends an event to all listeners without blocking.
func (b *Broadcaster) Publish(event Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, listener := range b.listeners {
		select {
		case listener <- event:
		default:
			// Listener buffer full, skip.
		}
	}
}

// ItemUpdated broadcasts a per-item change notification.
func (b *Broadcaster) ItemUpdated(mediaUID string) {
	b.Publish(Event{Type: TypeItemUpdated, MediaUID: mediaUID})
}

// JobCompleted broadcasts a completion summary for a background job.
func (b *Broadcaster) JobCompleted(job string, count int) {
	b.Publish(Event{Type: TypeJobCompleted, Job: job, Count: count})
}
