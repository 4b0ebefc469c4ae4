package writer

import (
	"sync"

	"kasocial/internal/models"
)

// Event is the fixed payload delivered to progress subscribers. Snapshots
// only; subscribers never see the writer's mutable state.
type Event struct {
	Fingerprint string               `json:"fingerprint"`
	Status      models.WriteStatus   `json:"status"`
	Segment     int                  `json:"segment,omitempty"` // 1-based segment just acted on
	TxID        string               `json:"tx_id,omitempty"`
	Error       string               `json:"error,omitempty"`
	Progress    *models.WriteProgress `json:"progress"`
}

// Broadcaster fans events out to subscriber channels. A slow subscriber
// loses events rather than blocking the writer.
type Broadcaster struct {
	mu   sync.Mutex
	subs map[int]chan Event
	next int
}

// NewBroadcaster creates an empty broadcaster.
func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[int]chan Event)}
}

// Subscribe registers a new subscriber. The returned cancel func must be
// called to release the channel.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.next
	b.next++
	ch := make(chan Event, 16)
	b.subs[id] = ch

	cancel := func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, dropping it for any whose
// buffer is full.
func (b *Broadcaster) Publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
