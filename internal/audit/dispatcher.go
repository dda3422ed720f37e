package audit

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
)

// Config controls dispatcher buffering behavior.
type Config struct {
	Enabled    bool
	BufferSize int
	DropIfFull bool
	// Logger receives sink panics. Nil discards them.
	Logger *slog.Logger
}

// Stats counts what happened to emitted events. Every Emit on a live dispatcher ends
// up in exactly one of the three counters once Close returns.
type Stats struct {
	Delivered uint64
	Dropped   uint64
	Failed    uint64
}

// Dispatcher hands audit events to a sink on a single background worker so request
// paths never wait on sink I/O. A nil *Dispatcher is a valid disabled dispatcher.
type Dispatcher struct {
	sink       Sink
	logger     *slog.Logger
	dropIfFull bool

	// intake guards the queue against Close: senders hold it shared, Close takes it
	// exclusively before stopping the worker, so no accepted event is stranded.
	intake sync.RWMutex
	closed bool

	queue    chan Event
	stop     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	delivered atomic.Uint64
	dropped   atomic.Uint64
	failed    atomic.Uint64
}

// NewDispatcher starts the worker. It returns nil when cfg is disabled.
func NewDispatcher(cfg Config, sink Sink) *Dispatcher {
	if !cfg.Enabled {
		return nil
	}
	size := cfg.BufferSize
	if size < 1 {
		size = 1
	}
	if sink == nil {
		sink = NoOpSink{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	d := &Dispatcher{
		sink:       sink,
		logger:     logger,
		dropIfFull: cfg.DropIfFull,
		queue:      make(chan Event, size),
		stop:       make(chan struct{}),
		stopped:    make(chan struct{}),
	}
	go d.work()
	return d
}

func (d *Dispatcher) work() {
	defer close(d.stopped)
	for {
		select {
		case event := <-d.queue:
			d.deliver(event)
		case <-d.stop:
			// Intake is closed before stop, so the queue can only shrink from here.
			for pending := len(d.queue); pending > 0; pending-- {
				d.deliver(<-d.queue)
			}
			return
		}
	}
}

func (d *Dispatcher) deliver(event Event) {
	defer func() {
		if r := recover(); r != nil {
			d.failed.Add(1)
			d.logger.Error("audit sink panicked", "event", event.Type, "panic", fmt.Sprint(r))
		}
	}()
	d.sink.Emit(context.Background(), event)
	d.delivered.Add(1)
}

// Emit queues event. With DropIfFull a full buffer drops the event; otherwise Emit
// waits for room until ctx ends. Events emitted after Close are dropped.
func (d *Dispatcher) Emit(ctx context.Context, event Event) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	d.intake.RLock()
	defer d.intake.RUnlock()
	if d.closed {
		d.dropped.Add(1)
		return
	}

	if d.dropIfFull {
		select {
		case d.queue <- event:
		default:
			d.dropped.Add(1)
		}
		return
	}
	select {
	case d.queue <- event:
	case <-ctx.Done():
		d.dropped.Add(1)
	}
}

// Close stops intake, delivers everything already queued and waits for the worker.
// Safe to call more than once.
func (d *Dispatcher) Close() {
	if d == nil {
		return
	}
	d.stopOnce.Do(func() {
		d.intake.Lock()
		d.closed = true
		d.intake.Unlock()
		close(d.stop)
	})
	<-d.stopped
}

// Dropped reports how many events never reached the sink.
func (d *Dispatcher) Dropped() uint64 {
	if d == nil {
		return 0
	}
	return d.dropped.Load()
}

// Stats returns a snapshot of the delivery counters.
func (d *Dispatcher) Stats() Stats {
	if d == nil {
		return Stats{}
	}
	return Stats{
		Delivered: d.delivered.Load(),
		Dropped:   d.dropped.Load(),
		Failed:    d.failed.Load(),
	}
}
