// Package stream serves the live preview of rendered transitions to
// browsers, as chunked MP3 over HTTP or Opus over WebRTC.
package stream

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pion/logging"
)

// listenerBuffer is about 3 seconds of 20ms frames.
const listenerBuffer = 150

// Broadcaster fans out preview frames from the player to every listener.
type Broadcaster struct {
	log logging.LeveledLogger

	mu        sync.RWMutex
	listeners map[*Listener]struct{}
	sent      atomic.Int64
}

// Listener receives PCM frames from the broadcaster.
type Listener struct {
	Kind string       // "http" or "webrtc"
	C    chan []int16 // buffered channel of 20ms PCM frames
	done chan struct{}

	dropped atomic.Int64
}

// Dropped returns how many frames this listener missed by reading too slowly.
func (l *Listener) Dropped() int64 {
	return l.dropped.Load()
}

// Done is closed when the listener is unsubscribed.
func (l *Listener) Done() <-chan struct{} {
	return l.done
}

// Stats summarises the broadcast for the status endpoint.
type Stats struct {
	Listeners int            `json:"listeners"`
	ByKind    map[string]int `json:"by_kind"`
	Frames    int64          `json:"frames"`
}

// NewBroadcaster creates a broadcaster. log may be nil.
func NewBroadcaster(log logging.LeveledLogger) *Broadcaster {
	return &Broadcaster{
		log:       log,
		listeners: make(map[*Listener]struct{}),
	}
}

// Subscribe registers a listener of the given kind.
func (b *Broadcaster) Subscribe(kind string) *Listener {
	l := &Listener{
		Kind: kind,
		C:    make(chan []int16, listenerBuffer),
		done: make(chan struct{}),
	}
	b.mu.Lock()
	b.listeners[l] = struct{}{}
	n := len(b.listeners)
	b.mu.Unlock()
	if b.log != nil {
		b.log.Infof("%s listener connected (total: %d)", kind, n)
	}
	return l
}

// Unsubscribe removes a listener and signals it to stop. Calling it twice is
// harmless.
func (b *Broadcaster) Unsubscribe(l *Listener) {
	b.mu.Lock()
	_, ok := b.listeners[l]
	delete(b.listeners, l)
	n := len(b.listeners)
	b.mu.Unlock()
	if !ok {
		return
	}
	close(l.done)
	if b.log != nil {
		b.log.Infof("%s listener disconnected (remaining: %d, dropped %d frames)", l.Kind, n, l.Dropped())
	}
}

// ListenerCount returns the number of active listeners.
func (b *Broadcaster) ListenerCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.listeners)
}

// Stats returns a snapshot of the broadcast.
func (b *Broadcaster) Stats() Stats {
	b.mu.RLock()
	defer b.mu.RUnlock()
	s := Stats{Listeners: len(b.listeners), ByKind: map[string]int{}, Frames: b.sent.Load()}
	for l := range b.listeners {
		s.ByKind[l.Kind]++
	}
	return s
}

// Run reads frames from source and fans out to all listeners.
// Slow listeners get frames dropped rather than blocking the broadcast.
func (b *Broadcaster) Run(ctx context.Context, source <-chan []int16) {
	for {
		select {
		case <-ctx.Done():
			return
		case frame, ok := <-source:
			if !ok {
				return
			}
			b.sent.Add(1)
			b.mu.RLock()
			for l := range b.listeners {
				select {
				case l.C <- frame:
				default:
					l.dropped.Add(1)
				}
			}
			b.mu.RUnlock()
		}
	}
}
