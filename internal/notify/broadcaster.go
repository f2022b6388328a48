// Package notify fans sync events out to live observers (websocket
// clients). Delivery is best effort: a subscriber that cannot keep up loses
// events rather than stalling the sync flow.
package notify

import (
	"sync"

	"github.com/aagamb/granthsync/internal/syncer"
)

const subscriberBuffer = 32

type Broadcaster struct {
	mu   sync.RWMutex
	subs map[chan syncer.Event]struct{}
}

func NewBroadcaster() *Broadcaster {
	return &Broadcaster{subs: make(map[chan syncer.Event]struct{})}
}

// Publish sends the event to every subscriber without blocking. Implements
// tracker.Sink.
func (b *Broadcaster) Publish(e syncer.Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for ch := range b.subs {
		select {
		case ch <- e:
		default:
			// Slow subscriber; drop. Terminal state is always available
			// through the snapshot endpoint.
		}
	}
}

// Subscribe registers a new observer. The returned func unsubscribes and
// closes the channel; it is safe to call more than once.
func (b *Broadcaster) Subscribe() (<-chan syncer.Event, func()) {
	ch := make(chan syncer.Event, subscriberBuffer)
	b.mu.Lock()
	b.subs[ch] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, ch)
			b.mu.Unlock()
			close(ch)
		})
	}
	return ch, cancel
}

// Subscribers reports the current observer count.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
