package backend

import (
	"context"
	"sync"

	"github.com/rs/xid"

	"github.com/b0bbywan/odio-bluetooth/events"
	"github.com/b0bbywan/odio-bluetooth/logger"
)

const subscriberBuffer = 32

type subscriber struct {
	filter  func(events.Event) bool
	dropped int
}

// Broadcaster stamps events read from upstream with an ID and copies them to
// every subscriber whose filter accepts them. Slow subscribers lose events
// rather than blocking the others.
type Broadcaster struct {
	mu      sync.RWMutex
	clients map[chan events.Event]*subscriber
}

// NewBroadcaster runs until ctx is cancelled or upstream is closed.
func NewBroadcaster(ctx context.Context, upstream <-chan events.Event) *Broadcaster {
	b := &Broadcaster{
		clients: make(map[chan events.Event]*subscriber),
	}
	go b.run(ctx, upstream)
	return b
}

func (b *Broadcaster) Subscribe() chan events.Event {
	return b.SubscribeFunc(nil)
}

// SubscribeFunc registers a subscriber. A nil filter accepts everything.
func (b *Broadcaster) SubscribeFunc(filter func(events.Event) bool) chan events.Event {
	ch := make(chan events.Event, subscriberBuffer)
	b.mu.Lock()
	b.clients[ch] = &subscriber{filter: filter}
	b.mu.Unlock()
	return ch
}

// Unsubscribe closes ch. Unknown or already closed channels are ignored.
func (b *Broadcaster) Unsubscribe(ch chan events.Event) {
	b.mu.Lock()
	sub, ok := b.clients[ch]
	delete(b.clients, ch)
	b.mu.Unlock()
	if !ok {
		return
	}
	close(ch)
	if sub.dropped > 0 {
		logger.Info("[sse] subscriber left after missing %d events", sub.dropped)
	}
}

// Subscribers returns the number of live subscriptions.
func (b *Broadcaster) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.clients)
}

func (b *Broadcaster) broadcast(e events.Event) {
	if e.ID == "" {
		e.ID = xid.New().String()
	}
	// Write lock: dropped counters are updated and Unsubscribe must not
	// close a channel while it is being sent to.
	b.mu.Lock()
	defer b.mu.Unlock()
	for ch, sub := range b.clients {
		if sub.filter != nil && !sub.filter(e) {
			continue
		}
		select {
		case ch <- e:
		default:
			sub.dropped++
			logger.Warn("[sse] client channel full, dropping %s event", e.Type)
		}
	}
}

func (b *Broadcaster) run(ctx context.Context, upstream <-chan events.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case e, ok := <-upstream:
			if !ok {
				return
			}
			b.broadcast(e)
		}
	}
}

// newBroadcasterFromBackend merges the event streams of the enabled
// backends.
func newBroadcasterFromBackend(ctx context.Context, b *Backend) *Broadcaster {
	var srcs []<-chan events.Event
	if b.Bluetooth != nil {
		srcs = append(srcs, b.Bluetooth.Events())
	}
	if b.Systemd != nil {
		srcs = append(srcs, b.Systemd.Events())
	}
	return NewBroadcaster(ctx, fanIn(ctx, srcs...))
}

// fanIn merges sources into one channel, closed once every source is done
// or ctx is cancelled. Nil sources are skipped.
func fanIn(ctx context.Context, sources ...<-chan events.Event) <-chan events.Event {
	merged := make(chan events.Event, 64)
	var wg sync.WaitGroup

	forward := func(ch <-chan events.Event) {
		defer wg.Done()
		for {
			select {
			case <-ctx.Done():
				return
			case e, ok := <-ch:
				if !ok {
					return
				}
				select {
				case merged <- e:
				case <-ctx.Done():
					return
				}
			}
		}
	}

	for _, src := range sources {
		if src != nil {
			wg.Add(1)
			go forward(src)
		}
	}

	go func() {
		wg.Wait()
		close(merged)
	}()

	return merged
}
