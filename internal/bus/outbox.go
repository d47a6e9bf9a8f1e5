package bus

import (
	"sync"
	"time"
)

// Envelope is one encoded publish waiting for the connection.
type Envelope struct {
	Topic    string
	Payload  []byte
	QueuedAt time.Time
}

// Outbox keeps pending publishes in issue order.
type Outbox struct {
	mu    sync.RWMutex
	items []Envelope
}

func NewOutbox() *Outbox {
	return &Outbox{}
}

func (o *Outbox) Push(item Envelope) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.items = append(o.items, item)
}

func (o *Outbox) Peek() (Envelope, bool) {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if len(o.items) == 0 {
		return Envelope{}, false
	}
	return o.items[0], true
}

func (o *Outbox) Pop() (Envelope, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.items) == 0 {
		return Envelope{}, false
	}
	item := o.items[0]
	o.items[0] = Envelope{}
	o.items = o.items[1:]
	return item, true
}

func (o *Outbox) Len() int {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return len(o.items)
}

func (o *Outbox) List() []Envelope {
	o.mu.RLock()
	defer o.mu.RUnlock()
	out := make([]Envelope, len(o.items))
	copy(out, o.items)
	return out
}
