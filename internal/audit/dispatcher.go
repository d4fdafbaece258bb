package audit

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
}

// Dispatcher moves events from request goroutines to a single sink
// goroutine through a bounded queue. A nil *Dispatcher is a valid no-op.
type Dispatcher struct {
	sink       Sink
	dropIfFull bool

	// mu guards queue against a send after close. Emit holds it shared.
	mu     sync.RWMutex
	queue  chan Event
	closed bool

	stop     chan struct{}
	finished chan struct{}
	once     sync.Once
	closeErr error

	dropped   atomic.Uint64
	delivered atomic.Uint64
}

// NewDispatcher returns nil when cfg.Enabled is false. Otherwise it starts
// the sink goroutine, which runs until Close.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	d := &Dispatcher{
		sink:       sink,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, max(cfg.BufferSize, 1)),
		stop:       make(chan struct{}),
		finished:   make(chan struct{}),
	}
	go d.loop()
	return d
}

func (d *Dispatcher) loop() {
	defer close(d.finished)
	for ev := range d.queue {
		d.deliver(ev)
	}
}

// deliver isolates the loop from a panicking sink; the event counts as
// dropped.
func (d *Dispatcher) deliver(ev Event) {
	defer func() {
		if recover() != nil {
			d.dropped.Add(1)
		}
	}()
	d.sink.Emit(context.Background(), ev)
	d.delivered.Add(1)
}

// Emit enqueues ev. When the queue is full it either drops ev (DropIfFull)
// or waits until there is room, ctx ends or Close is called. Events
// abandoned because ctx ended are counted as dropped.
func (d *Dispatcher) Emit(ctx context.Context, ev Event) {
	if d == nil {
		return
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return
	}

	select {
	case d.queue <- ev:
		return
	default:
	}
	if d.dropIfFull {
		d.dropped.Add(1)
		return
	}

	var done <-chan struct{}
	if ctx != nil {
		done = ctx.Done()
	}
	select {
	case d.queue <- ev:
	case <-done:
		d.dropped.Add(1)
	case <-d.stop:
	}
}

// Close stops accepting events, waits for the queue to drain and then
// closes the sink if it implements io.Closer. Later calls return the first
// call's result.
func (d *Dispatcher) Close() error {
	if d == nil {
		return nil
	}
	d.once.Do(func() {
		close(d.stop)

		d.mu.Lock()
		d.closed = true
		close(d.queue)
		d.mu.Unlock()

		<-d.finished
		if c, ok := d.sink.(io.Closer); ok {
			d.closeErr = c.Close()
		}
	})
	return d.closeErr
}

// Dropped counts events that never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Delivered counts events the sink accepted.
func (d *Dispatcher) Delivered() uint64 {
	if d == nil {
		return 0
	}
	return d.delivered.Load()
}
