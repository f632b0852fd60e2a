package orchestrator

import (
	"log/slog"
	"sync"
)

const signalBuffer = 256

type envelope struct {
	signal  Signal
	flushed chan struct{}
}

// signalBus delivers signals to subscribers on a single consumer goroutine,
// in publish order. Publishing never blocks; when the buffer is full the
// signal is dropped and logged.
type signalBus struct {
	logger *slog.Logger

	mu     sync.RWMutex
	subs   map[int]func(Signal)
	nextID int
	closed bool

	events chan envelope
	done   chan struct{}
}

func newSignalBus(logger *slog.Logger) *signalBus {
	b := &signalBus{
		logger: logger,
		subs:   make(map[int]func(Signal)),
		events: make(chan envelope, signalBuffer),
		done:   make(chan struct{}),
	}
	go b.run()
	return b
}

func (b *signalBus) subscribe(fn func(Signal)) func() {
	if fn == nil {
		return func() {}
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	id := b.nextID
	b.nextID++
	b.subs[id] = fn
	return func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		delete(b.subs, id)
	}
}

func (b *signalBus) publish(sig Signal) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	select {
	case b.events <- envelope{signal: sig}:
	default:
		b.logger.Warn("orchestrator: signal buffer full, dropping signal", "kind", sig.Kind)
	}
}

// flush blocks until every signal published before the call was delivered.
func (b *signalBus) flush() {
	b.mu.RLock()
	if b.closed {
		b.mu.RUnlock()
		return
	}
	marker := make(chan struct{})
	b.events <- envelope{flushed: marker}
	b.mu.RUnlock()
	<-marker
}

func (b *signalBus) close() {
	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		return
	}
	b.closed = true
	close(b.events)
	b.mu.Unlock()
	<-b.done
}

func (b *signalBus) run() {
	defer close(b.done)
	for env := range b.events {
		if env.flushed != nil {
			close(env.flushed)
			continue
		}
		b.dispatch(env.signal)
	}
}

func (b *signalBus) dispatch(sig Signal) {
	b.mu.RLock()
	subs := make([]func(Signal), 0, len(b.subs))
	for id := 0; id < b.nextID; id++ {
		if fn, ok := b.subs[id]; ok {
			subs = append(subs, fn)
		}
	}
	b.mu.RUnlock()
	for _, fn := range subs {
		fn(sig)
	}
}
