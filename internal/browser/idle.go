package browser

import (
	"context"
	"sync"
	"time"

	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"
)

const (
	// A page counts as settled once no more than idleMaxInflight requests have
	// been outstanding for idleQuietPeriod.
	idleMaxInflight = 2
	idleQuietPeriod = 500 * time.Millisecond
	idleCheckEvery  = 50 * time.Millisecond
)

// idleTracker counts in-flight requests from network events.
type idleTracker struct {
	mu        sync.Mutex
	inflight  map[network.RequestID]struct{}
	idleSince time.Time
	now       func() time.Time
}

func newIdleTracker() *idleTracker {
	return &idleTracker{
		inflight:  map[network.RequestID]struct{}{},
		idleSince: time.Now(),
		now:       time.Now,
	}
}

func (t *idleTracker) listen(ctx context.Context) {
	chromedp.ListenTarget(ctx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			t.started(e.RequestID)
		case *network.EventLoadingFinished:
			t.finished(e.RequestID)
		case *network.EventLoadingFailed:
			t.finished(e.RequestID)
		}
	})
}

func (t *idleTracker) started(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.update()
}

func (t *idleTracker) finished(id network.RequestID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.update()
}

// update must be called with mu held.
func (t *idleTracker) update() {
	if len(t.inflight) > idleMaxInflight {
		t.idleSince = time.Time{}
		return
	}
	if t.idleSince.IsZero() {
		t.idleSince = t.now()
	}
}

// reset forgets earlier traffic, typically right before a navigation.
func (t *idleTracker) reset() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight = map[network.RequestID]struct{}{}
	t.idleSince = t.now()
}

func (t *idleTracker) settled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return !t.idleSince.IsZero() && t.now().Sub(t.idleSince) >= idleQuietPeriod
}

// wait blocks until the page has settled or ctx ends.
func (t *idleTracker) wait(ctx context.Context) error {
	ticker := time.NewTicker(idleCheckEvery)
	defer ticker.Stop()
	for {
		if t.settled() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
