package cache

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sweeper removes orphan partitions.
type Sweeper interface {
	Sweep(ctx context.Context) ([]string, error)
}

// Janitor periodically re-sweeps partitions for long-lived agents that
// never go through another activation.
type Janitor struct {
	mu       sync.RWMutex
	sweeper  func() Sweeper
	interval time.Duration
	cancel   context.CancelFunc
	done     chan struct{}
}

// NewJanitor creates a janitor that asks current for the sweeper on every
// tick, so it follows version changes. current may return nil.
func NewJanitor(current func() Sweeper, interval time.Duration) *Janitor {
	return &Janitor{
		sweeper:  current,
		interval: interval,
	}
}

// Start begins the sweep loop.
func (j *Janitor) Start(ctx context.Context) {
	j.mu.Lock()
	ctx, j.cancel = context.WithCancel(ctx)
	j.done = make(chan struct{})
	j.mu.Unlock()

	go func() {
		defer close(j.done)
		ticker := time.NewTicker(j.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				j.tick(ctx)
			}
		}
	}()
}

// Stop gracefully stops the janitor.
func (j *Janitor) Stop() {
	j.mu.RLock()
	cancel := j.cancel
	done := j.done
	j.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

func (j *Janitor) tick(ctx context.Context) {
	s := j.sweeper()
	if s == nil {
		return
	}
	dropped, err := s.Sweep(ctx)
	if err != nil {
		log.Printf("cache janitor: sweep: %v", err)
	}
	if len(dropped) > 0 {
		log.Printf("🧹 cache janitor dropped %d orphan partition(s): %v", len(dropped), dropped)
	}
}
