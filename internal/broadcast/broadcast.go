// Package broadcast fans spectrum frames out to the live viewers of one
// telescope. Publishing never blocks: each subscriber has a bounded
// queue and slow consumers lose their oldest unsent frame rather than
// stalling the pipeline or their neighbors.
package broadcast

import (
	"errors"
	"sync"

	"github.com/svartdal/telescoped/internal/metrics"
	"github.com/svartdal/telescoped/internal/spectrum"
)

// ErrClosed is returned by Subscribe after the broadcaster has shut
// down (telescope removed or its pipeline faulted).
var ErrClosed = errors.New("stream closed")

// DefaultQueueDepth bounds a subscriber's outgoing queue when the
// config does not say otherwise.
const DefaultQueueDepth = 8

// Subscriber is one live viewer connection. Frames are read from
// Frames(); the channel is closed on unsubscribe, on replacement by a
// newer subscription from the same viewing context, and on broadcaster
// shutdown.
type Subscriber struct {
	contextID string
	ch        chan *spectrum.Frame
}

// Frames returns the subscriber's frame channel.
func (s *Subscriber) Frames() <-chan *spectrum.Frame { return s.ch }

// Context returns the viewing-context identifier this subscriber is
// bound to.
func (s *Subscriber) Context() string { return s.contextID }

// Broadcaster owns the subscriber set of a single telescope.
type Broadcaster struct {
	telescope  string
	queueDepth int

	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	byContext map[string]*Subscriber
	latest    *spectrum.Frame
	closed    bool
	closeErr  error
}

// New creates a broadcaster for the named telescope. queueDepth <= 0
// selects DefaultQueueDepth.
func New(telescope string, queueDepth int) *Broadcaster {
	if queueDepth <= 0 {
		queueDepth = DefaultQueueDepth
	}
	return &Broadcaster{
		telescope:  telescope,
		queueDepth: queueDepth,
		subs:       make(map[*Subscriber]struct{}),
		byContext:  make(map[string]*Subscriber),
	}
}

// Subscribe registers a viewer. A subscription for a context that
// already has one open (a page refresh, say) first tears down the prior
// subscriber, so each viewing context holds at most one live stream.
// The latest cached frame, if any, is preloaded so late joiners see a
// spectrum immediately.
func (b *Broadcaster) Subscribe(contextID string) (*Subscriber, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil, ErrClosed
	}

	if prior, ok := b.byContext[contextID]; ok {
		b.removeLocked(prior)
	}

	sub := &Subscriber{
		contextID: contextID,
		ch:        make(chan *spectrum.Frame, b.queueDepth),
	}
	if b.latest != nil {
		sub.ch <- b.latest
	}
	b.subs[sub] = struct{}{}
	b.byContext[contextID] = sub
	metrics.SubscriberDelta(b.telescope, 1)
	return sub, nil
}

// Unsubscribe removes a subscriber and closes its frame channel. Safe to
// call for a subscriber that was already removed.
func (b *Broadcaster) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.subs[sub]; ok {
		b.removeLocked(sub)
	}
}

// removeLocked drops sub from both indexes and closes its channel.
// Callers hold b.mu.
func (b *Broadcaster) removeLocked(sub *Subscriber) {
	delete(b.subs, sub)
	if b.byContext[sub.contextID] == sub {
		delete(b.byContext, sub.contextID)
	}
	close(sub.ch)
	metrics.SubscriberDelta(b.telescope, -1)
}

// Publish delivers a frame to every subscriber and caches it for late
// joiners. A full subscriber queue loses its oldest frame; staleness is
// preferred over stalling the producer.
func (b *Broadcaster) Publish(f *spectrum.Frame) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.latest = f

	for sub := range b.subs {
		select {
		case sub.ch <- f:
			metrics.FrameBroadcast(b.telescope)
			continue
		default:
		}
		select {
		case <-sub.ch:
			metrics.FrameDropped(b.telescope)
		default:
		}
		select {
		case sub.ch <- f:
			metrics.FrameBroadcast(b.telescope)
		default:
		}
	}
}

// SubscriberCount returns the number of live subscribers.
func (b *Broadcaster) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Close shuts the broadcaster down, waking every subscriber with a
// closed channel instead of leaving them blocked forever. err records
// why (nil for a clean shutdown) and is reported by Err.
func (b *Broadcaster) Close(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	b.closeErr = err
	for sub := range b.subs {
		b.removeLocked(sub)
	}
}

// Err returns the error the broadcaster was closed with, if any.
func (b *Broadcaster) Err() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.closeErr
}
