package mirror

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

type fakeMarket struct {
	price    float64
	priceErr error
}

func (f *fakeMarket) RecentTrades(ctx context.Context, wallet string, limit int) ([]*domain.TradeEvent, error) {
	return nil, fmt.Errorf("not implemented")
}

func (f *fakeMarket) BestPrice(ctx context.Context, marketID string, side domain.OrderSide) (float64, error) {
	return f.price, f.priceErr
}

type fakeExecutor struct {
	outcome    domain.OrderOutcome
	submitErr  error
	submitted  []*domain.MirrorOrder
	credential string
}

func (f *fakeExecutor) Submit(ctx context.Context, credentialRef string, order *domain.MirrorOrder) error {
	f.credential = credentialRef
	f.submitted = append(f.submitted, order)
	if f.submitErr != nil {
		return f.submitErr
	}
	order.Outcome = f.outcome
	return nil
}

type fakeOrderRepo struct {
	created   []*domain.MirrorOrder
	createErr error
}

func (f *fakeOrderRepo) CreateOrder(ctx context.Context, o *domain.MirrorOrder) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	f.created = append(f.created, o)
	return int64(len(f.created)), nil
}

func (f *fakeOrderRepo) FindOrdersByUser(ctx context.Context, userID string, limit int) ([]*domain.MirrorOrder, error) {
	return f.created, nil
}

func (f *fakeOrderRepo) HasOrderForTrade(ctx context.Context, key domain.TradeKey) (bool, error) {
	for _, o := range f.created {
		if o.SourceWallet == key.SourceWallet && o.TxHash == key.TxHash {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeOrderRepo) CountOrdersToday(ctx context.Context, userID string) (int, error) {
	count := 0
	for _, o := range f.created {
		if o.Outcome != domain.OutcomeSkipped {
			count++
		}
	}
	return count, nil
}

type fakeWalletRepo struct {
	ports.WalletRepository
	wallet *domain.Wallet
}

func (f *fakeWalletRepo) FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	return f.wallet, nil
}

func testEvent(volume string) *domain.TradeEvent {
	return &domain.TradeEvent{
		SourceWallet: "0xwhale",
		MarketID:     "token-1",
		MarketTitle:  "Will it rain tomorrow?",
		Side:         domain.Buy,
		Volume:       decimal.RequireFromString(volume),
		TxHash:       "0xaaa",
		Timestamp:    time.Now().UTC(),
	}
}

func newTestEngine(t *testing.T, market *fakeMarket, exec *fakeExecutor, orders *fakeOrderRepo) *Engine {
	t.Helper()
	engine, err := New(Config{
		UserID:   "alice",
		Market:   market,
		Executor: exec,
		Orders:   orders,
		Wallets:  &fakeWalletRepo{wallet: &domain.Wallet{UserID: "alice", CredentialRef: "cred-alice"}},
		Limits:   Limits{ScaleFactor: 0.1, MinNotional: 1, MaxNotional: 500},
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)
	return engine
}

func TestMirror_FilledOrder(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeFilled}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))

	require.Len(t, exec.submitted, 1)
	assert.Equal(t, "cred-alice", exec.credential)

	require.Len(t, orders.created, 1)
	order := orders.created[0]
	assert.Equal(t, domain.OutcomeFilled, order.Outcome)
	assert.Equal(t, 100.0, order.Notional, "source notional scaled down")
	assert.Equal(t, 0.62, order.Price)
	assert.Equal(t, "alice", order.UserID)
	assert.Equal(t, "0xwhale", order.SourceWallet)
	assert.Equal(t, "0xaaa", order.TxHash)
	assert.NotEmpty(t, order.ClientOrderID)
}

func TestMirror_SkipsBelowMinimum(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeFilled}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	// 0.1 scale on $5 is $0.50, below the $1 minimum.
	require.NoError(t, engine.Mirror(context.Background(), testEvent("5")))

	assert.Empty(t, exec.submitted, "skipped trades are never submitted")
	require.Len(t, orders.created, 1)
	assert.Equal(t, domain.OutcomeSkipped, orders.created[0].Outcome)
	assert.NotEmpty(t, orders.created[0].Reason)
}

func TestMirror_NoLiquidityRecordsKilled(t *testing.T) {
	market := &fakeMarket{priceErr: fmt.Errorf("no quotes: %w", ports.ErrNoLiquidity)}
	exec := &fakeExecutor{}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))

	assert.Empty(t, exec.submitted)
	require.Len(t, orders.created, 1)
	assert.Equal(t, domain.OutcomeKilled, orders.created[0].Outcome)
}

func TestMirror_SubmitFailureIsRecordedNotFatal(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{submitErr: fmt.Errorf("relay: %w", ports.ErrOrderRejected)}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	// A rejected submission still returns nil; the outcome carries the failure.
	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))

	require.Len(t, orders.created, 1)
	assert.Equal(t, domain.OutcomeError, orders.created[0].Outcome)
	assert.NotEmpty(t, orders.created[0].Reason)
}

func TestMirror_KilledOrderIsFinal(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeKilled}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))

	assert.Len(t, exec.submitted, 1, "exactly one submission, no retry")
	require.Len(t, orders.created, 1)
	assert.Equal(t, domain.OutcomeKilled, orders.created[0].Outcome)
}

func TestMirror_PersistFailureSurfaces(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeFilled}
	orders := &fakeOrderRepo{createErr: fmt.Errorf("disk full")}
	engine := newTestEngine(t, market, exec, orders)

	err := engine.Mirror(context.Background(), testEvent("1000"))
	assert.Error(t, err, "losing the order record is the one fatal outcome")
}

func TestMirror_RecordedTradeIsNotResubmitted(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeFilled}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	// The same trade event arrives twice, as after a restart or a seen-set
	// eviction while the feed still returns the row.
	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))
	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))
	require.NoError(t, engine.Mirror(context.Background(), testEvent("1000")))

	assert.Len(t, exec.submitted, 1, "at most one submission per trade")
	assert.Len(t, orders.created, 1, "at most one recorded outcome per trade")
}

func TestMirror_DailyOrderCap(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeFilled}
	orders := &fakeOrderRepo{}
	engine, err := New(Config{
		UserID:   "alice",
		Market:   market,
		Executor: exec,
		Orders:   orders,
		Wallets:  &fakeWalletRepo{wallet: &domain.Wallet{UserID: "alice", CredentialRef: "cred-alice"}},
		Limits:   Limits{ScaleFactor: 0.1, MinNotional: 1, MaxOrdersPerDay: 2},
		Logger:   &mockLogger{},
	})
	require.NoError(t, err)

	for i, hash := range []string{"0xaaa", "0xbbb", "0xccc"} {
		ev := testEvent("1000")
		ev.TxHash = hash
		require.NoError(t, engine.Mirror(context.Background(), ev), "event %d", i)
	}

	assert.Len(t, exec.submitted, 2, "third order exceeds the daily cap")
	require.Len(t, orders.created, 3, "capped order is still recorded")
	assert.Equal(t, domain.OutcomeSkipped, orders.created[2].Outcome)
	assert.Contains(t, orders.created[2].Reason, "daily order cap")
}

func TestMirror_UniqueClientOrderIDs(t *testing.T) {
	market := &fakeMarket{price: 0.62}
	exec := &fakeExecutor{outcome: domain.OutcomeFilled}
	orders := &fakeOrderRepo{}
	engine := newTestEngine(t, market, exec, orders)

	ev1 := testEvent("1000")
	ev2 := testEvent("1000")
	ev2.TxHash = "0xbbb"
	require.NoError(t, engine.Mirror(context.Background(), ev1))
	require.NoError(t, engine.Mirror(context.Background(), ev2))

	require.Len(t, orders.created, 2)
	assert.NotEqual(t, orders.created[0].ClientOrderID, orders.created[1].ClientOrderID)
}
