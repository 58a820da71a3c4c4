package feed

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeduggirala/polytrade/internal/domain"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

func event(wallet, txHash string, ts time.Time) *domain.TradeEvent {
	return &domain.TradeEvent{
		SourceWallet: wallet,
		MarketID:     "token-1",
		Side:         domain.Buy,
		TxHash:       txHash,
		Timestamp:    ts,
	}
}

func drain(ch <-chan *domain.TradeEvent) []*domain.TradeEvent {
	var out []*domain.TradeEvent
	for {
		select {
		case ev := <-ch:
			out = append(out, ev)
		default:
			return out
		}
	}
}

func TestFilter_OrdersBatchByTimestampThenHash(t *testing.T) {
	f := NewFilter(time.Hour, &mockLogger{})
	sub := f.Subscribe()

	base := time.Now().UTC()
	batch := []*domain.TradeEvent{
		event("0xw", "0xcc", base.Add(2*time.Second)),
		event("0xw", "0xbb", base),
		event("0xw", "0xaa", base), // same timestamp as 0xbb, hash breaks the tie
	}

	emitted := f.Process(context.Background(), batch)
	require.Len(t, emitted, 3)

	got := drain(sub)
	require.Len(t, got, 3)
	assert.Equal(t, "0xaa", got[0].TxHash)
	assert.Equal(t, "0xbb", got[1].TxHash)
	assert.Equal(t, "0xcc", got[2].TxHash)
}

func TestFilter_ExactlyOnceAcrossBatches(t *testing.T) {
	f := NewFilter(time.Hour, &mockLogger{})
	sub := f.Subscribe()

	now := time.Now().UTC()
	first := f.Process(context.Background(), []*domain.TradeEvent{
		event("0xWallet", "0xaa", now),
		event("0xwallet", "0xaa", now), // duplicate within the batch, case-insensitive
		event("0xwallet", "0xbb", now),
	})
	assert.Len(t, first, 2)

	// Re-observing the same trades in a later batch emits nothing.
	second := f.Process(context.Background(), []*domain.TradeEvent{
		event("0xwallet", "0xaa", now),
		event("0xWALLET", "0xbb", now),
	})
	assert.Empty(t, second)

	assert.Len(t, drain(sub), 2)
	assert.Equal(t, 2, f.SeenCount())
}

func TestFilter_EvictsKeysNoLongerObserved(t *testing.T) {
	f := NewFilter(time.Minute, &mockLogger{})

	f.Process(context.Background(), []*domain.TradeEvent{
		event("0xw", "0xaa", time.Now().UTC().Add(-2*time.Minute)),
	})
	require.Equal(t, 1, f.SeenCount())

	// Backdate the observation: the feed has stopped reissuing this key for
	// a full horizon, so the next Process evicts it.
	f.mu.Lock()
	for key := range f.seen {
		f.seen[key] = time.Now().Add(-2 * time.Minute)
	}
	f.mu.Unlock()

	fresh := f.Process(context.Background(), []*domain.TradeEvent{
		event("0xw", "0xbb", time.Now().UTC()),
	})
	assert.Len(t, fresh, 1)
	assert.Equal(t, 1, f.SeenCount(), "old key evicted, fresh key retained")
}

func TestFilter_ReissuedStaleTradeIsNotReemitted(t *testing.T) {
	f := NewFilter(time.Minute, &mockLogger{})
	sub := f.Subscribe()

	// A trade older than the horizon that the cursorless fetch still returns
	// in the latest-N window: every tick re-delivers the same candidate.
	old := event("0xw", "0xaa", time.Now().UTC().Add(-2*time.Minute))
	first := f.Process(context.Background(), []*domain.TradeEvent{old})
	require.Len(t, first, 1)

	second := f.Process(context.Background(), []*domain.TradeEvent{old})
	assert.Empty(t, second, "a key still being reissued stays deduplicated")
	third := f.Process(context.Background(), []*domain.TradeEvent{old})
	assert.Empty(t, third)

	assert.Equal(t, 1, f.SeenCount())
	assert.Len(t, drain(sub), 1)
}

func TestFilter_AllSubscribersSeeEveryEvent(t *testing.T) {
	f := NewFilter(time.Hour, &mockLogger{})
	subA := f.Subscribe()
	subB := f.Subscribe()

	now := time.Now().UTC()
	f.Process(context.Background(), []*domain.TradeEvent{
		event("0xw", "0xaa", now),
		event("0xw", "0xbb", now.Add(time.Second)),
	})

	gotA := drain(subA)
	gotB := drain(subB)
	require.Len(t, gotA, 2)
	require.Len(t, gotB, 2)
	assert.Equal(t, gotA[0].TxHash, gotB[0].TxHash)
	assert.Equal(t, gotA[1].TxHash, gotB[1].TxHash)
}

func TestFilter_CloseStopsEmission(t *testing.T) {
	f := NewFilter(time.Hour, &mockLogger{})
	sub := f.Subscribe()

	f.Close()

	_, open := <-sub
	assert.False(t, open, "subscriber channel closed")

	emitted := f.Process(context.Background(), []*domain.TradeEvent{
		event("0xw", "0xaa", time.Now().UTC()),
	})
	assert.Nil(t, emitted, "closed filter drops batches")
}
