// Package feed turns raw trade observations from the market endpoints into a
// strictly-ordered, exactly-once event stream.
package feed

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

const defaultSubscriberBuffer = 64

// Filter deduplicates and orders raw trade candidates. Candidates may arrive
// from any number of sources (polling ticks, the live stream); each unique
// (source wallet, tx hash) key is emitted to every subscriber exactly once,
// in (timestamp, tx hash) ascending order within a batch.
//
// The seen set is time-windowed by observation: every sighting of a key,
// duplicate or not, refreshes it, and only keys the feed has stopped
// reissuing for a full horizon are evicted. Eviction by the trade's own
// timestamp would re-admit old trades that a cursorless fetch still returns.
type Filter struct {
	horizon time.Duration
	logger  ports.Logger

	mu     sync.Mutex
	seen   map[domain.TradeKey]time.Time // key -> last observation time
	subs   []chan *domain.TradeEvent
	closed bool
}

// NewFilter creates a filter whose seen set forgets keys older than horizon.
func NewFilter(horizon time.Duration, logger ports.Logger) *Filter {
	return &Filter{
		horizon: horizon,
		logger:  logger,
		seen:    make(map[domain.TradeKey]time.Time),
	}
}

// Subscribe registers a consumer and returns its event channel. All
// subscriptions must be made before the first Process call; the channel is
// closed by Close.
func (f *Filter) Subscribe() <-chan *domain.TradeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch := make(chan *domain.TradeEvent, defaultSubscriberBuffer)
	f.subs = append(f.subs, ch)
	return ch
}

// Process merges a batch of raw candidates, orders them, drops already-seen
// keys, and emits the remainder to every subscriber in order. It returns the
// events that were emitted. Emission blocks when a subscriber's buffer is
// full rather than dropping or reordering; per-user causal order depends on it.
func (f *Filter) Process(ctx context.Context, candidates []*domain.TradeEvent) []*domain.TradeEvent {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return nil
	}

	now := time.Now()
	f.evictLocked(now)

	// Deterministic total order: timestamp first, tx hash as tie-break.
	batch := make([]*domain.TradeEvent, len(candidates))
	copy(batch, candidates)
	sort.SliceStable(batch, func(i, j int) bool { return batch[i].Before(batch[j]) })

	emitted := make([]*domain.TradeEvent, 0, len(batch))
	for _, ev := range batch {
		key := ev.Key()
		if _, dup := f.seen[key]; dup {
			// Refresh: a key the feed is still reissuing must outlive
			// the horizon, or it would be re-emitted every tick.
			f.seen[key] = now
			continue
		}
		f.seen[key] = now
		emitted = append(emitted, ev)
	}

	// Keys are marked seen before delivery completes: if the context is
	// cancelled mid-fan-out, a subscriber can miss events another already
	// received, and they are not re-emitted in this process. The durable
	// processed-trade and mirror-order records heal that after a restart.
	for _, ev := range emitted {
		for _, sub := range f.subs {
			select {
			case sub <- ev:
			case <-ctx.Done():
				f.logger.Warn(ctx, "Filter emission interrupted by context", map[string]interface{}{
					"pending": len(emitted)})
				return emitted
			}
		}
	}
	return emitted
}

// evictLocked drops keys that have not been observed within the horizon.
// Caller holds f.mu.
func (f *Filter) evictLocked(now time.Time) {
	if f.horizon <= 0 {
		return
	}
	cutoff := now.Add(-f.horizon)
	for key, ts := range f.seen {
		if ts.Before(cutoff) {
			delete(f.seen, key)
		}
	}
}

// SeenCount reports the current size of the seen set.
func (f *Filter) SeenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.seen)
}

// Close closes all subscriber channels. Further Process calls are no-ops.
func (f *Filter) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return
	}
	f.closed = true
	for _, sub := range f.subs {
		close(sub)
	}
}
