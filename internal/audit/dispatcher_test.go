package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type countingSink struct {
	count atomic.Int64
}

func (s *countingSink) Emit(context.Context, Event) {
	s.count.Add(1)
}

type gateSink struct {
	gate chan struct{}
}

func newGateSink() *gateSink {
	return &gateSink{gate: make(chan struct{})}
}

func (s *gateSink) Emit(context.Context, Event) {
	<-s.gate
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestDisabledDispatcherIsNil(t *testing.T) {
	d := NewDispatcher(Config{Enabled: false}, &countingSink{})
	if d != nil {
		t.Fatal("expected nil dispatcher when disabled")
	}
	d.Emit(context.Background(), Event{Type: "e1"})
	d.Close()
	if d.Dropped() != 0 {
		t.Fatal("expected zero drops on nil dispatcher")
	}
}

func TestDispatcherDeliversOnClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 16}, sink)
	for i := 0; i < 10; i++ {
		d.Emit(context.Background(), Event{Type: "e"})
	}
	d.Close()
	if got := sink.count.Load(); got != 10 {
		t.Fatalf("expected 10 delivered events, got %d", got)
	}
}

func TestDispatcherDropIfFullDoesNotBlock(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1, DropIfFull: true}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Type: "e1"})
	d.Emit(context.Background(), Event{Type: "e2"})

	start := time.Now()
	d.Emit(context.Background(), Event{Type: "e3"})
	if time.Since(start) > 100*time.Millisecond {
		t.Fatal("expected non-blocking emit when DropIfFull is true")
	}
	if d.Dropped() == 0 {
		t.Fatal("expected dropped counter to increment when queue is full")
	}
}

func TestDispatcherBlocksUntilSpace(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Type: "e1"})
	d.Emit(context.Background(), Event{Type: "e2"})

	done := make(chan struct{})
	go func() {
		d.Emit(context.Background(), Event{Type: "e3"})
		close(done)
	}()

	select {
	case <-done:
		t.Fatal("expected emit to block while buffer is full")
	case <-time.After(150 * time.Millisecond):
	}

	sink.gate <- struct{}{}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("expected blocked emit to proceed after space is available")
	}
}

func TestDispatcherBlockedEmitHonorsContext(t *testing.T) {
	sink := newGateSink()
	d := NewDispatcher(Config{Enabled: true, BufferSize: 1}, sink)
	defer func() {
		close(sink.gate)
		d.Close()
	}()

	d.Emit(context.Background(), Event{Type: "e1"})
	d.Emit(context.Background(), Event{Type: "e2"})

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	d.Emit(ctx, Event{Type: "e3"})
	if d.Dropped() != 1 {
		t.Fatalf("expected one drop after context expiry, got %d", d.Dropped())
	}
}

func TestDispatcherCloseIdempotentAndEmitAfterCloseSafe(t *testing.T) {
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, &countingSink{})

	d.Emit(context.Background(), Event{Type: "e1"})
	d.Close()
	d.Close()
	d.Emit(context.Background(), Event{Type: "e2"})
}

func TestDispatcherSurvivesPanickingSink(t *testing.T) {
	var calls atomic.Int64
	var logs syncBuffer
	sink := SinkFunc(func(_ context.Context, event Event) {
		calls.Add(1)
		if event.Type == "boom" {
			panic("sink exploded")
		}
	})
	d := NewDispatcher(Config{
		Enabled:    true,
		BufferSize: 8,
		Logger:     slog.New(slog.NewJSONHandler(&logs, nil)),
	}, sink)

	d.Emit(context.Background(), Event{Type: "e1"})
	d.Emit(context.Background(), Event{Type: "boom"})
	d.Emit(context.Background(), Event{Type: "e2"})
	d.Close()

	if got := calls.Load(); got != 3 {
		t.Fatalf("expected every event to reach the sink, got %d", got)
	}
	if got := d.Stats(); got != (Stats{Delivered: 2, Failed: 1}) {
		t.Fatalf("unexpected stats: %+v", got)
	}
	if !strings.Contains(logs.String(), `"panic":"sink exploded"`) {
		t.Fatalf("expected panic to be logged: %s", logs.String())
	}
}

func TestDispatcherAccountsForEveryEmitAcrossClose(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4, DropIfFull: true}, sink)

	const emitters, perEmitter = 8, 200
	var wg sync.WaitGroup
	for i := 0; i < emitters; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < perEmitter; j++ {
				d.Emit(context.Background(), Event{Type: "e"})
			}
		}()
	}
	d.Close()
	wg.Wait()

	stats := d.Stats()
	if total := stats.Delivered + stats.Dropped + stats.Failed; total != emitters*perEmitter {
		t.Fatalf("expected %d accounted events, got %+v", emitters*perEmitter, stats)
	}
	if uint64(sink.count.Load()) != stats.Delivered {
		t.Fatalf("sink saw %d events, stats report %d delivered", sink.count.Load(), stats.Delivered)
	}
}

func TestDispatcherEmitAfterCloseCountsAsDropped(t *testing.T) {
	sink := &countingSink{}
	d := NewDispatcher(Config{Enabled: true, BufferSize: 4}, sink)
	d.Emit(context.Background(), Event{Type: "e1"})
	d.Close()
	d.Emit(context.Background(), Event{Type: "e2"})

	if got := d.Stats(); got != (Stats{Delivered: 1, Dropped: 1}) {
		t.Fatalf("unexpected stats: %+v", got)
	}
	if (*Dispatcher)(nil).Stats() != (Stats{}) {
		t.Fatal("expected zero stats on nil dispatcher")
	}
}

func TestJSONWriterSinkWritesJSONLines(t *testing.T) {
	var buf syncBuffer
	sink := NewJSONWriterSink(&buf)
	sink.Emit(context.Background(), Event{
		Timestamp: time.Now().UTC(),
		Type:      "validate_success",
		Subject:   "u1",
		TokenID:   "jti-1",
		Success:   true,
	})
	sink.Emit(context.Background(), Event{Type: "validate_rejected", Code: "TOKEN_BLACKLISTED"})

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first Event
	if err := json.Unmarshal([]byte(lines[0]), &first); err != nil {
		t.Fatalf("line is not JSON: %v", err)
	}
	if first.Type != "validate_success" || first.Subject != "u1" || first.TokenID != "jti-1" {
		t.Fatalf("unexpected event: %+v", first)
	}
	if !strings.Contains(lines[1], `"code":"TOKEN_BLACKLISTED"`) {
		t.Fatalf("expected code in second line: %s", lines[1])
	}
}

func TestLogSinkLevels(t *testing.T) {
	var buf syncBuffer
	logger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	sink := NewLogSink(logger)

	sink.Emit(context.Background(), Event{Type: "refresh_success", Subject: "u1", Success: true})
	sink.Emit(context.Background(), Event{Type: "validate_rejected", Code: "DEVICE_MISMATCH"})

	out := buf.String()
	if !strings.Contains(out, `"level":"INFO"`) || !strings.Contains(out, `"event":"refresh_success"`) {
		t.Fatalf("expected info record for success: %s", out)
	}
	if !strings.Contains(out, `"level":"WARN"`) || !strings.Contains(out, `"code":"DEVICE_MISMATCH"`) {
		t.Fatalf("expected warn record for failure: %s", out)
	}
}
