package sqlite

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"
)

// mockLogger implements ports.Logger for testing
type mockLogger struct{}

func (m *mockLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (m *mockLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (m *mockLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// setupTestDB creates a temporary database for testing
func setupTestDB(t *testing.T) (*Repository, func()) {
	t.Helper()

	tmpDir, err := os.MkdirTemp("", "polytrade-test-*")
	require.NoError(t, err)

	dbPath := filepath.Join(tmpDir, "test.db")
	repo, err := NewRepository(Config{
		DBPath: dbPath,
		Logger: &mockLogger{},
	})
	require.NoError(t, err)

	cleanup := func() {
		repo.Close()
		os.RemoveAll(tmpDir)
	}

	return repo, cleanup
}

func newWallet(userID, code string) *domain.Wallet {
	return &domain.Wallet{
		UserID:        userID,
		Handle:        "@" + userID,
		Address:       "0x" + userID,
		CredentialRef: "cred-" + userID,
		ReferralCode:  code,
	}
}

func TestRepository_CreateAndFindWallet(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	w := newWallet("alice", "ALICE01")
	w.Settings = map[string]string{"theme": "dark"}
	id, err := repo.CreateWallet(ctx, w)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	found, err := repo.FindByUserID(ctx, "alice")
	require.NoError(t, err)
	require.NotNil(t, found)
	assert.Equal(t, "alice", found.UserID)
	assert.Equal(t, "@alice", found.Handle)
	assert.Equal(t, "0xalice", found.Address)
	assert.Equal(t, "ALICE01", found.ReferralCode)
	assert.Equal(t, map[string]string{"theme": "dark"}, found.Settings)
	assert.True(t, found.TotalPoints.IsZero())
	assert.True(t, found.TotalVolume.IsZero())

	// Referral code lookup is case-insensitive.
	byCode, err := repo.FindByReferralCode(ctx, "alice01")
	require.NoError(t, err)
	require.NotNil(t, byCode)
	assert.Equal(t, "alice", byCode.UserID)

	missing, err := repo.FindByUserID(ctx, "nobody")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestRepository_CreateWalletDuplicates(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("alice", "ALICE01"))
	require.NoError(t, err)

	// Same user ID
	_, err = repo.CreateWallet(ctx, newWallet("alice", "OTHER01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	// Same referral code
	_, err = repo.CreateWallet(ctx, newWallet("bob", "ALICE01"))
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)
}

func TestRepository_SetReferredBy(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("carol", "CAROL01"))
	require.NoError(t, err)
	_, err = repo.CreateWallet(ctx, newWallet("bob", "BOB01"))
	require.NoError(t, err)

	require.NoError(t, repo.SetReferredBy(ctx, "bob", "CAROL01"))

	bob, err := repo.FindByUserID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "CAROL01", bob.ReferredBy)

	// A second referrer is refused, even the same one again.
	err = repo.SetReferredBy(ctx, "bob", "CAROL01")
	assert.ErrorIs(t, err, ports.ErrAlreadyReferred)

	err = repo.SetReferredBy(ctx, "nobody", "CAROL01")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_GrantPointsClaimsTradeOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("alice", "ALICE01"))
	require.NoError(t, err)

	key := domain.TradeKey{SourceWallet: "0xwhale", TxHash: "0xaaa"}
	grant := ports.PointsGrant{
		UserID: "alice",
		Points: decimal.RequireFromString("1000"),
		Type:   domain.GrantTrade,
		Volume: decimal.RequireFromString("1000"),
	}

	require.NoError(t, repo.GrantPoints(ctx, &key, []ports.PointsGrant{grant}))

	processed, err := repo.IsTradeProcessed(ctx, key)
	require.NoError(t, err)
	assert.True(t, processed)

	// Replaying the same trade key writes nothing.
	err = repo.GrantPoints(ctx, &key, []ports.PointsGrant{grant})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateTrade)

	alice, err := repo.FindByUserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, "1000", alice.TotalPoints.String())
	assert.Equal(t, "1000", alice.TotalVolume.String())

	history, err := repo.PointsHistory(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, history, 1)
	assert.Equal(t, domain.GrantTrade, history[0].Type)

	// Differently-cased wallet observations collapse to the same claim.
	upper := domain.TradeKey{SourceWallet: "0xWHALE", TxHash: "0xaaa"}
	err = repo.GrantPoints(ctx, &upper, []ports.PointsGrant{grant})
	assert.ErrorIs(t, err, ports.ErrDuplicateTrade)
}

func TestRepository_GrantPointsIsAtomic(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("alice", "ALICE01"))
	require.NoError(t, err)

	key := domain.TradeKey{SourceWallet: "0xwhale", TxHash: "0xbbb"}
	grants := []ports.PointsGrant{
		{UserID: "alice", Points: decimal.RequireFromString("10"), Type: domain.GrantTrade},
		{UserID: "ghost", Points: decimal.RequireFromString("1"), Type: domain.GrantReferralTrade},
	}

	// Second grant hits a missing recipient; the whole batch must roll back,
	// including the trade claim.
	err = repo.GrantPoints(ctx, &key, grants)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrNotFound)

	processed, err := repo.IsTradeProcessed(ctx, key)
	require.NoError(t, err)
	assert.False(t, processed, "failed grant must release the trade claim")

	alice, err := repo.FindByUserID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.TotalPoints.IsZero())
}

func TestRepository_SignupBonusGrantedOnce(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("carol", "CAROL01"))
	require.NoError(t, err)

	bonus := ports.PointsGrant{
		UserID:         "carol",
		Points:         decimal.RequireFromString("100"),
		Type:           domain.GrantReferralSignup,
		ReferredUserID: "bob",
	}

	require.NoError(t, repo.GrantPoints(ctx, nil, []ports.PointsGrant{bonus}))

	err = repo.GrantPoints(ctx, nil, []ports.PointsGrant{bonus})
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	carol, err := repo.FindByUserID(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "100", carol.TotalPoints.String())
}

func TestRepository_TotalsMatchHistorySum(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("alice", "ALICE01"))
	require.NoError(t, err)

	amounts := []string{"1000", "0.5", "12.34"}
	for i, amount := range amounts {
		key := domain.TradeKey{SourceWallet: "0xwhale", TxHash: "0xtx" + string(rune('a'+i))}
		grant := ports.PointsGrant{
			UserID: "alice",
			Points: decimal.RequireFromString(amount),
			Type:   domain.GrantTrade,
			Volume: decimal.RequireFromString(amount),
		}
		require.NoError(t, repo.GrantPoints(ctx, &key, []ports.PointsGrant{grant}))
	}

	sum, err := repo.SumPoints(ctx, "alice")
	require.NoError(t, err)

	alice, err := repo.FindByUserID(ctx, "alice")
	require.NoError(t, err)
	assert.True(t, alice.TotalPoints.Equal(sum), "running total must equal the history sum")
	assert.Equal(t, "1012.84", sum.String())
}

func TestRepository_ReferralStatsAndList(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("carol", "CAROL01"))
	require.NoError(t, err)
	bob := newWallet("bob", "BOB01")
	bob.ReferredBy = "CAROL01"
	_, err = repo.CreateWallet(ctx, bob)
	require.NoError(t, err)

	grants := []ports.PointsGrant{
		{UserID: "bob", Points: decimal.RequireFromString("500"), Type: domain.GrantTrade,
			Volume: decimal.RequireFromString("500")},
		{UserID: "carol", Points: decimal.RequireFromString("50"), Type: domain.GrantReferralTrade,
			Volume: decimal.RequireFromString("500"), ReferredUserID: "bob"},
	}
	key := domain.TradeKey{SourceWallet: "0xbob", TxHash: "0xccc"}
	require.NoError(t, repo.GrantPoints(ctx, &key, grants))
	require.NoError(t, repo.GrantPoints(ctx, nil, []ports.PointsGrant{{
		UserID: "carol", Points: decimal.RequireFromString("100"),
		Type: domain.GrantReferralSignup, ReferredUserID: "bob",
	}}))

	stats, err := repo.ReferralStats(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "CAROL01", stats.ReferralCode)
	assert.Equal(t, 1, stats.ReferralCount)
	assert.Equal(t, "150", stats.ReferralPoints.String())
	assert.Equal(t, "150", stats.TotalPoints.String())

	referrals, err := repo.ListReferrals(ctx, "carol", 10)
	require.NoError(t, err)
	require.Len(t, referrals, 1)
	assert.Equal(t, "@bob", referrals[0].Handle)
	assert.Equal(t, "500", referrals[0].TotalVolume.String())
}

func TestRepository_MirrorOrders(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("alice", "ALICE01"))
	require.NoError(t, err)

	order := &domain.MirrorOrder{
		ClientOrderID: "coid-1",
		UserID:        "alice",
		SourceWallet:  "0xWhale",
		TxHash:        "0xddd",
		MarketID:      "token-1",
		Side:          domain.Buy,
		Notional:      100.0,
		Price:         0.62,
		Outcome:       domain.OutcomeFilled,
		SubmittedAt:   time.Now().UTC(),
	}
	id, err := repo.CreateOrder(ctx, order)
	require.NoError(t, err)
	assert.Greater(t, id, int64(0))

	// Client order IDs are unique.
	dup := *order
	_, err = repo.CreateOrder(ctx, &dup)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrDuplicateEntry)

	killed := &domain.MirrorOrder{
		ClientOrderID: "coid-2",
		UserID:        "alice",
		SourceWallet:  "0xwhale",
		TxHash:        "0xeee",
		MarketID:      "token-1",
		Side:          domain.Sell,
		Notional:      40.0,
		Price:         0.31,
		Outcome:       domain.OutcomeKilled,
		Reason:        "no liquidity",
		SubmittedAt:   time.Now().UTC(),
	}
	_, err = repo.CreateOrder(ctx, killed)
	require.NoError(t, err)

	orders, err := repo.FindOrdersByUser(ctx, "alice", 10)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	assert.Equal(t, "coid-2", orders[0].ClientOrderID, "newest first")
	assert.Equal(t, domain.OutcomeKilled, orders[0].Outcome)
	assert.Equal(t, "no liquidity", orders[0].Reason)
	assert.Equal(t, "0xwhale", orders[1].SourceWallet, "wallet stored lowercased")

	count, err := repo.CountOrdersToday(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	// Skipped orders never reached the relay and do not count.
	skipped := &domain.MirrorOrder{
		ClientOrderID: "coid-3",
		UserID:        "alice",
		SourceWallet:  "0xwhale",
		TxHash:        "0xfff",
		MarketID:      "token-1",
		Side:          domain.Buy,
		Notional:      0.5,
		Outcome:       domain.OutcomeSkipped,
		Reason:        "below minimum",
		SubmittedAt:   time.Now().UTC(),
	}
	_, err = repo.CreateOrder(ctx, skipped)
	require.NoError(t, err)

	count, err = repo.CountOrdersToday(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, 2, count, "skipped orders excluded from the daily count")
}

func TestRepository_HasOrderForTrade(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("alice", "ALICE01"))
	require.NoError(t, err)

	_, err = repo.CreateOrder(ctx, &domain.MirrorOrder{
		ClientOrderID: "coid-1",
		UserID:        "alice",
		SourceWallet:  "0xWhale",
		TxHash:        "0xddd",
		MarketID:      "token-1",
		Side:          domain.Buy,
		Notional:      100.0,
		Outcome:       domain.OutcomeFilled,
		SubmittedAt:   time.Now().UTC(),
	})
	require.NoError(t, err)

	// The check is case-insensitive on the wallet, matching the trade key.
	has, err := repo.HasOrderForTrade(ctx, domain.TradeKey{SourceWallet: "0xWHALE", TxHash: "0xddd"})
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasOrderForTrade(ctx, domain.TradeKey{SourceWallet: "0xwhale", TxHash: "0xeee"})
	require.NoError(t, err)
	assert.False(t, has)
}

func TestRepository_SetReferralCode(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	_, err := repo.CreateWallet(ctx, newWallet("carol", "CAROL01"))
	require.NoError(t, err)
	bob := newWallet("bob", "BOB01")
	bob.ReferredBy = "CAROL01"
	_, err = repo.CreateWallet(ctx, bob)
	require.NoError(t, err)

	// Changing the code carries existing referral edges along.
	require.NoError(t, repo.SetReferralCode(ctx, "carol", "QUEEN"))

	carol, err := repo.FindByUserID(ctx, "carol")
	require.NoError(t, err)
	assert.Equal(t, "QUEEN", carol.ReferralCode)

	bobStored, err := repo.FindByUserID(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, "QUEEN", bobStored.ReferredBy, "referral edge follows the new code")

	referrals, err := repo.ListReferrals(ctx, "carol", 10)
	require.NoError(t, err)
	require.Len(t, referrals, 1)
	assert.Equal(t, "@bob", referrals[0].Handle)

	// A code held by another wallet is refused.
	err = repo.SetReferralCode(ctx, "bob", "QUEEN")
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrCodeTaken)

	// Setting the current code again is a no-op.
	require.NoError(t, repo.SetReferralCode(ctx, "carol", "QUEEN"))

	err = repo.SetReferralCode(ctx, "nobody", "KING")
	assert.ErrorIs(t, err, ports.ErrNotFound)
}

func TestRepository_UpdateSettings(t *testing.T) {
	repo, cleanup := setupTestDB(t)
	defer cleanup()
	ctx := context.Background()

	w := newWallet("alice", "ALICE01")
	w.Settings = map[string]string{"notify": "all"}
	_, err := repo.CreateWallet(ctx, w)
	require.NoError(t, err)

	require.NoError(t, repo.UpdateSettings(ctx, "alice", map[string]string{"notify": "fills", "locale": "en"}))

	alice, err := repo.FindByUserID(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"notify": "fills", "locale": "en"}, alice.Settings)

	err = repo.UpdateSettings(ctx, "nobody", map[string]string{"notify": "all"})
	assert.ErrorIs(t, err, ports.ErrNotFound)
}
