// Package progress implements the event stream the engine publishes
// run and per-note state transitions to. Front ends (the CLI logger,
// or any GUI driving the engine) subscribe to follow a sync live.
package progress

import (
	"sync/atomic"
)

// Run-level stages.
const (
	StageFetching   = "run.fetching"
	StageDiffing    = "run.diffing"
	StageProcessing = "run.processing"
	StageCommitting = "run.committing"
	StageDone       = "run.done"
	StageAborted    = "run.aborted"
)

// Per-note stages.
const (
	NotePending   = "note.pending"
	NoteTransform = "note.transforming"
	NoteResolving = "note.resolving_attachments"
	NoteWriting   = "note.writing"
	NoteCommitted = "note.committed"
	NoteSkipped   = "note.skipped"
	NoteFailed    = "note.failed"
)

// Event is one state transition. NoteID and Detail are empty for pure
// run-level events.
type Event struct {
	Stage  string
	NoteID string
	Detail string
}

// Broker fans events out to subscribers.
//
// Concurrency model: a single internal loop goroutine owns the mutable
// subscriber set. Public methods talk to the loop through channels, so
// no mutexes are required. Slow subscribers are skipped rather than
// allowed to block publishers.
type Broker struct {
	subscribeCh   chan chan Event
	unsubscribeCh chan chan Event
	publishCh     chan Event

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker starts a broker loop.
func NewBroker() *Broker {
	b := &Broker{
		subscribeCh:   make(chan chan Event),
		unsubscribeCh: make(chan chan Event),
		publishCh:     make(chan Event, 256),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	subs := make(map[chan Event]struct{})
	for {
		select {
		case <-b.stopCh:
			for ch := range subs {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			subs[ch] = struct{}{}

		case ch := <-b.unsubscribeCh:
			if _, ok := subs[ch]; ok {
				delete(subs, ch)
				close(ch)
			}

		case ev := <-b.publishCh:
			for ch := range subs {
				select {
				case ch <- ev:
				default:
					// Subscriber buffer full; drop to keep the loop live.
				}
			}
		}
	}
}

// Close stops the loop and closes all subscriber channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe registers a new subscriber and returns its channel.
func (b *Broker) Subscribe() chan Event {
	ch := make(chan Event, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}
	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Broker) Unsubscribe(ch chan Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// Publish broadcasts an event to all subscribers. Safe to call from
// any goroutine; never blocks on slow consumers.
func (b *Broker) Publish(ev Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- ev:
	case <-b.stopped:
	}
}
