package collab

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// RefreshFunc extends a lock lease. False means the lease expired or
// was taken over; an error means storage failed.
type RefreshFunc func(ctx context.Context) (bool, error)

// HeartbeatInterval derives the refresh cadence from the lock TTL.
// Five beats per TTL tolerates a missed beat or two without the lease
// lapsing underneath an active editor.
func HeartbeatInterval(ttl time.Duration) time.Duration {
	return ttl / 5
}

// Heartbeat is the repeating refresh task a client owns while it holds
// a section lock. It is started explicitly and stopped
// deterministically when the section closes; leaving it to die with
// the process is what the lease TTL is for.
type Heartbeat struct {
	interval time.Duration
	refresh  RefreshFunc
	onLost   func()

	started  atomic.Bool
	stopOnce sync.Once
	stop     chan struct{}
	done     chan struct{}
}

// NewHeartbeat builds a heartbeat that calls refresh every interval.
// onLost fires at most once, when a refresh reports the lease is gone
// or storage failed; the holder must re-acquire and warn the user that
// their edits may have raced with someone else's.
func NewHeartbeat(interval time.Duration, refresh RefreshFunc, onLost func()) *Heartbeat {
	return &Heartbeat{
		interval: interval,
		refresh:  refresh,
		onLost:   onLost,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start runs the refresh loop until Stop is called, the context is
// cancelled, or the lease is lost.
func (h *Heartbeat) Start(ctx context.Context) {
	if !h.started.CompareAndSwap(false, true) {
		return
	}
	go func() {
		defer close(h.done)
		ticker := time.NewTicker(h.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				ok, err := h.refresh(ctx)
				if err != nil || !ok {
					if h.onLost != nil {
						h.onLost()
					}
					return
				}
			case <-h.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the loop and waits for it to exit. Safe to call more than
// once and safe to call after the lease was already lost.
func (h *Heartbeat) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
	if h.started.Load() {
		<-h.done
	}
}
