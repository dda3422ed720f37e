package revocation

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// DefaultPruneInterval is used when Pruner.Interval is not positive.
const DefaultPruneInterval = time.Minute

// Pruner calls Store.Prune on a fixed interval until closed. Reclaim latency is bounded
// by Interval plus the duration of one sweep.
type Pruner struct {
	store    Store
	interval time.Duration
	timeout  time.Duration
	logger   *slog.Logger

	done      chan struct{}
	wg        sync.WaitGroup
	startOnce sync.Once
	closeOnce sync.Once
}

// NewPruner returns a stopped Pruner. A nil logger uses slog.Default.
func NewPruner(store Store, interval time.Duration, logger *slog.Logger) *Pruner {
	if interval <= 0 {
		interval = DefaultPruneInterval
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Pruner{
		store:    store,
		interval: interval,
		timeout:  interval,
		logger:   logger.With(slog.String("component", "revocation.pruner")),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop. Subsequent calls are no-ops.
func (p *Pruner) Start() {
	if p == nil || p.store == nil {
		return
	}
	p.startOnce.Do(func() {
		p.wg.Add(1)
		go p.run()
	})
}

func (p *Pruner) run() {
	defer p.wg.Done()

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			p.sweep()
		case <-p.done:
			return
		}
	}
}

func (p *Pruner) sweep() {
	ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
	defer cancel()

	removed, err := p.store.Prune(ctx)
	if err != nil {
		p.logger.Warn("prune failed", slog.Any("error", err))
		return
	}
	if removed > 0 {
		p.logger.Debug("pruned expired revocation records", slog.Int("removed", removed))
	}
}

// Close stops the loop and waits for an in-flight sweep to finish.
func (p *Pruner) Close() {
	if p == nil {
		return
	}
	p.closeOnce.Do(func() {
		close(p.done)
		p.wg.Wait()
	})
}
