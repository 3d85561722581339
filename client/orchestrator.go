package client

import (
	"context"
	"log"
	"sync"
	"time"
)

// Sender replays one captured request against the live backend. A nil error
// removes the request from the queue; an error leaves it queued with its
// retry counter bumped.
type Sender interface {
	Replay(ctx context.Context, req OfflineRequest) error
}

// SenderFunc adapts a function to the Sender interface.
type SenderFunc func(ctx context.Context, req OfflineRequest) error

func (f SenderFunc) Replay(ctx context.Context, req OfflineRequest) error { return f(ctx, req) }

// DrainStats reports what one drain pass did.
type DrainStats struct {
	Attempted int
	Delivered int
	Failed    int
	Purged    int64
}

// Orchestrator drains the offline queue. A drain runs on three triggers:
// reconnect, the periodic ticker, and a manual Drain call. Only one drain
// runs at a time; overlapping triggers are coalesced into a no-op.
type Orchestrator struct {
	store     *QueueStore
	sender    Sender
	retention time.Duration

	mu       sync.Mutex
	draining bool

	stopOnce sync.Once
	stop     chan struct{}
	wg       sync.WaitGroup
}

// NewOrchestrator wires a queue store to a sender. A request that keeps
// failing stays queued with its retry counter climbing until the retention
// purge drops it; each pass attempts every pending request exactly once, so
// a poison request cannot loop within a single drain.
func NewOrchestrator(store *QueueStore, sender Sender) *Orchestrator {
	return &Orchestrator{
		store:     store,
		sender:    sender,
		retention: DefaultRetention,
		stop:      make(chan struct{}),
	}
}

// Drain replays queued requests oldest first. Requests are attempted
// sequentially so replay preserves the order the user acted in. Returns the
// pass statistics; a pass that found another drain in flight returns zeros.
func (o *Orchestrator) Drain(ctx context.Context) (DrainStats, error) {
	o.mu.Lock()
	if o.draining {
		o.mu.Unlock()
		return DrainStats{}, nil
	}
	o.draining = true
	o.mu.Unlock()
	defer func() {
		o.mu.Lock()
		o.draining = false
		o.mu.Unlock()
	}()

	var stats DrainStats
	purged, err := o.store.PurgeOlderThan(o.retention)
	if err != nil {
		return stats, err
	}
	stats.Purged = purged

	pending, err := o.store.List(0)
	if err != nil {
		return stats, err
	}

	for _, req := range pending {
		if ctx.Err() != nil {
			return stats, ctx.Err()
		}

		stats.Attempted++
		if err := o.sender.Replay(ctx, req); err != nil {
			stats.Failed++
			if _, rerr := o.store.IncrementRetry(req.ID); rerr != nil {
				log.Printf("client: bump retry for %s: %v", req.ID, rerr)
			}
			continue
		}
		if err := o.store.Remove(req.ID); err != nil && err != ErrNotFound {
			log.Printf("client: remove replayed request %s: %v", req.ID, err)
		}
		stats.Delivered++
	}
	return stats, nil
}

// StartPeriodic launches a background drain every interval until Stop.
func (o *Orchestrator) StartPeriodic(interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-o.stop:
				return
			case <-ticker.C:
				if _, err := o.Drain(context.Background()); err != nil {
					log.Printf("client: periodic drain: %v", err)
				}
			}
		}
	}()
}

// Stop halts the periodic drain loop.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stop) })
	o.wg.Wait()
}
