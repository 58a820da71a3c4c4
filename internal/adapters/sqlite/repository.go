package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sreeduggirala/polytrade/internal/domain"
	"github.com/sreeduggirala/polytrade/internal/ports"

	"github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements the ports.WalletRepository, ports.LedgerRepository
// and ports.OrderRepository interfaces using SQLite.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/polytrade.db" // Default path
	}

	// Create data directory if it doesn't exist
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency; foreign keys enforce the referral graph.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000&_foreign_keys=on")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// SQLite handles concurrency internally; the Go driver benefits from a single connection.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}

	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "Ledger store initialized", map[string]interface{}{"path": dbPath})

	return repo, nil
}

// initializeSchema creates tables if they don't exist.
// NOTE: This is a basic approach. A proper migration tool is recommended for production.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS wallets (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL UNIQUE,
		handle TEXT DEFAULT NULL,
		address TEXT NOT NULL,
		credential_ref TEXT NOT NULL,
		settings TEXT NOT NULL DEFAULT '{}',
		referral_code TEXT NOT NULL UNIQUE,
		referred_by TEXT DEFAULT NULL REFERENCES wallets (referral_code),
		total_points TEXT NOT NULL DEFAULT '0',
		total_volume TEXT NOT NULL DEFAULT '0',
		created_at TIMESTAMP NOT NULL,
		CHECK (referred_by IS NULL OR referred_by <> referral_code)
	);

	CREATE TABLE IF NOT EXISTS points_history (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id TEXT NOT NULL REFERENCES wallets (user_id),
		points_earned TEXT NOT NULL,
		points_type TEXT NOT NULL
			CHECK (points_type IN ('trade', 'referral_trade', 'referral_signup')),
		volume TEXT DEFAULT NULL,
		market_id TEXT DEFAULT NULL,
		market_title TEXT DEFAULT NULL,
		referred_user_id TEXT DEFAULT NULL,
		description TEXT DEFAULT NULL,
		created_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS processed_trades (
		source_wallet TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		processed_at TIMESTAMP NOT NULL,
		PRIMARY KEY (source_wallet, tx_hash)
	);

	CREATE TABLE IF NOT EXISTS mirror_orders (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		client_order_id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL REFERENCES wallets (user_id),
		source_wallet TEXT NOT NULL,
		tx_hash TEXT NOT NULL,
		market_id TEXT NOT NULL,
		side TEXT NOT NULL,
		notional REAL NOT NULL,
		price REAL NOT NULL,
		outcome TEXT NOT NULL,
		reason TEXT DEFAULT NULL,
		submitted_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_points_history_user ON points_history (user_id, created_at);
	CREATE INDEX IF NOT EXISTS idx_wallets_referred_by ON wallets (referred_by);
	CREATE INDEX IF NOT EXISTS idx_mirror_orders_user ON mirror_orders (user_id, submitted_at);
	CREATE INDEX IF NOT EXISTS idx_mirror_orders_trade ON mirror_orders (source_wallet, tx_hash);
	-- At most one signup bonus per referred user, ever.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_points_signup_once
		ON points_history (referred_user_id) WHERE points_type = 'referral_signup';
	`
	_, err := r.db.ExecContext(ctx, schema)
	if err != nil {
		return fmt.Errorf("failed to execute schema initialization: %w", err)
	}
	return nil
}

// Close closes the database connection.
func (r *Repository) Close() error {
	if r.db != nil {
		r.logger.Info(context.Background(), "Closing SQLite database connection")
		return r.db.Close()
	}
	return nil
}

// mapConstraintErr translates SQLite constraint violations into standard
// ports errors so callers can branch on duplicates without knowing the driver.
func mapConstraintErr(err error) error {
	var sqlErr sqlite3.Error
	if errors.As(err, &sqlErr) && sqlErr.Code == sqlite3.ErrConstraint {
		return ports.ErrDuplicateEntry
	}
	return nil
}

// --- WalletRepository Implementation ---

// CreateWallet saves a new wallet and returns its assigned ID.
func (r *Repository) CreateWallet(ctx context.Context, w *domain.Wallet) (int64, error) {
	const query = `
	INSERT INTO wallets (user_id, handle, address, credential_ref, settings, referral_code, referred_by, total_points, total_volume, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	settings := []byte("{}")
	if w.Settings != nil {
		var err error
		settings, err = json.Marshal(w.Settings)
		if err != nil {
			return 0, fmt.Errorf("failed to encode settings for user %s: %w", w.UserID, err)
		}
	}
	createdAt := w.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	result, err := r.db.ExecContext(ctx, query,
		w.UserID, nullString(w.Handle), strings.ToLower(w.Address), w.CredentialRef, string(settings),
		strings.ToUpper(w.ReferralCode), nullString(strings.ToUpper(w.ReferredBy)),
		w.TotalPoints.String(), w.TotalVolume.String(), createdAt)
	if err != nil {
		if dup := mapConstraintErr(err); dup != nil {
			return 0, fmt.Errorf("wallet for user %s conflicts with an existing record: %w", w.UserID, dup)
		}
		return 0, fmt.Errorf("failed to insert wallet for user %s: %w", w.UserID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for wallet %s: %w", w.UserID, err)
	}
	w.ID = id
	w.CreatedAt = createdAt
	r.logger.Debug(ctx, "Wallet created", map[string]interface{}{"userID": w.UserID, "referralCode": w.ReferralCode})
	return id, nil
}

const walletColumns = `id, user_id, COALESCE(handle, ''), address, credential_ref, settings,
	       referral_code, COALESCE(referred_by, ''), total_points, total_volume, created_at`

// FindByUserID retrieves a wallet by its stable user identifier.
func (r *Repository) FindByUserID(ctx context.Context, userID string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE user_id = ?`

	w, err := scanWallet(r.db.QueryRowContext(ctx, query, userID))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Not an error, just not found
		}
		return nil, fmt.Errorf("failed to query wallet for user %s: %w", userID, err)
	}
	return w, nil
}

// FindByReferralCode retrieves a wallet by referral code (case-insensitive).
func (r *Repository) FindByReferralCode(ctx context.Context, code string) (*domain.Wallet, error) {
	query := `SELECT ` + walletColumns + ` FROM wallets WHERE referral_code = ?`

	w, err := scanWallet(r.db.QueryRowContext(ctx, query, strings.ToUpper(strings.TrimSpace(code))))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to query wallet by referral code: %w", err)
	}
	return w, nil
}

// SetReferralCode replaces a user's referral code. Referral edges point at
// the code itself, so existing referred users are moved to the new code in
// the same transaction; foreign key checks are deferred until commit because
// parent and children cannot be updated in one statement.
func (r *Repository) SetReferralCode(ctx context.Context, userID, code string) error {
	code = strings.ToUpper(code)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin referral code transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `PRAGMA defer_foreign_keys = ON`); err != nil {
		return fmt.Errorf("failed to defer foreign key checks: %w", err)
	}

	var oldCode string
	err = tx.QueryRowContext(ctx, `SELECT referral_code FROM wallets WHERE user_id = ?`, userID).Scan(&oldCode)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("user %s: %w", userID, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to read referral code for user %s: %w", userID, err)
	}
	if oldCode == code {
		return nil
	}

	_, err = tx.ExecContext(ctx, `UPDATE wallets SET referral_code = ? WHERE user_id = ?`, code, userID)
	if err != nil {
		if dup := mapConstraintErr(err); dup != nil {
			return fmt.Errorf("referral code %s: %w", code, ports.ErrCodeTaken)
		}
		return fmt.Errorf("failed to update referral code for user %s: %w", userID, err)
	}
	_, err = tx.ExecContext(ctx, `UPDATE wallets SET referred_by = ? WHERE referred_by = ?`, code, oldCode)
	if err != nil {
		return fmt.Errorf("failed to move referral edges from %s to %s: %w", oldCode, code, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit referral code update: %w", err)
	}
	r.logger.Debug(ctx, "Referral code updated", map[string]interface{}{"userID": userID, "code": code})
	return nil
}

// SetReferredBy records who referred the user. The WHERE clause guards
// against overwriting an existing referrer.
func (r *Repository) SetReferredBy(ctx context.Context, userID, code string) error {
	const query = `UPDATE wallets SET referred_by = ? WHERE user_id = ? AND referred_by IS NULL`

	result, err := r.db.ExecContext(ctx, query, strings.ToUpper(code), userID)
	if err != nil {
		if dup := mapConstraintErr(err); dup != nil {
			// CHECK or FK violation: self-referral or dangling code.
			return fmt.Errorf("referral code %s for user %s: %w", code, userID, ports.ErrInvalidCode)
		}
		return fmt.Errorf("failed to set referrer for user %s: %w", userID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for referrer update: %w", err)
	}
	if rows == 0 {
		existing, ferr := r.FindByUserID(ctx, userID)
		if ferr != nil {
			return ferr
		}
		if existing == nil {
			return fmt.Errorf("user %s: %w", userID, ports.ErrNotFound)
		}
		return fmt.Errorf("user %s: %w", userID, ports.ErrAlreadyReferred)
	}
	r.logger.Debug(ctx, "Referrer recorded", map[string]interface{}{"userID": userID, "code": code})
	return nil
}

// UpdateSettings replaces the wallet's settings map.
func (r *Repository) UpdateSettings(ctx context.Context, userID string, settings map[string]string) error {
	const query = `UPDATE wallets SET settings = ? WHERE user_id = ?`

	encoded, err := json.Marshal(settings)
	if err != nil {
		return fmt.Errorf("failed to encode settings for user %s: %w", userID, err)
	}
	result, err := r.db.ExecContext(ctx, query, string(encoded), userID)
	if err != nil {
		return fmt.Errorf("failed to update settings for user %s: %w", userID, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected for settings update: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("user %s: %w", userID, ports.ErrNotFound)
	}
	return nil
}

// ListReferrals returns users referred by the given user, most recent first.
func (r *Repository) ListReferrals(ctx context.Context, userID string, limit int) ([]*domain.Referral, error) {
	const query = `
	SELECT COALESCE(w.handle, ''), w.total_points, w.total_volume, w.created_at
	FROM wallets w
	JOIN wallets ref ON w.referred_by = ref.referral_code
	WHERE ref.user_id = ?
	ORDER BY w.created_at DESC
	LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query referrals for user %s: %w", userID, err)
	}
	defer rows.Close()

	referrals := make([]*domain.Referral, 0)
	for rows.Next() {
		ref := &domain.Referral{}
		var points, volume string
		if err := rows.Scan(&ref.Handle, &points, &volume, &ref.JoinedAt); err != nil {
			return nil, fmt.Errorf("failed to scan referral row: %w", err)
		}
		if ref.TotalPoints, err = decimal.NewFromString(points); err != nil {
			return nil, fmt.Errorf("corrupt total_points in referral row: %w", err)
		}
		if ref.TotalVolume, err = decimal.NewFromString(volume); err != nil {
			return nil, fmt.Errorf("corrupt total_volume in referral row: %w", err)
		}
		referrals = append(referrals, ref)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral rows: %w", err)
	}
	return referrals, nil
}

// --- LedgerRepository Implementation ---

// GrantPoints applies a set of grants atomically: claim the trade key (when
// given), insert history entries, and bump wallet totals, all in one
// transaction. Either everything commits or nothing does.
func (r *Repository) GrantPoints(ctx context.Context, claim *domain.TradeKey, grants []ports.PointsGrant) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin grant transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()

	if claim != nil {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO processed_trades (source_wallet, tx_hash, processed_at) VALUES (?, ?, ?)`,
			strings.ToLower(claim.SourceWallet), claim.TxHash, now)
		if err != nil {
			if dup := mapConstraintErr(err); dup != nil {
				return fmt.Errorf("trade %s/%s: %w", claim.SourceWallet, claim.TxHash, ports.ErrDuplicateTrade)
			}
			return fmt.Errorf("failed to claim trade key: %w", err)
		}
	}

	for _, g := range grants {
		if err := applyGrant(ctx, tx, g, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit grant transaction: %w", err)
	}
	r.logger.Debug(ctx, "Points granted", map[string]interface{}{"grants": len(grants)})
	return nil
}

// applyGrant bumps the recipient's running totals and appends the history
// entry inside the caller's transaction.
func applyGrant(ctx context.Context, tx *sql.Tx, g ports.PointsGrant, now time.Time) error {
	var points, volume string
	err := tx.QueryRowContext(ctx,
		`SELECT total_points, total_volume FROM wallets WHERE user_id = ?`, g.UserID).
		Scan(&points, &volume)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("grant recipient %s: %w", g.UserID, ports.ErrNotFound)
		}
		return fmt.Errorf("failed to read totals for user %s: %w", g.UserID, err)
	}

	totalPoints, err := decimal.NewFromString(points)
	if err != nil {
		return fmt.Errorf("corrupt total_points for user %s: %w", g.UserID, err)
	}
	totalVolume, err := decimal.NewFromString(volume)
	if err != nil {
		return fmt.Errorf("corrupt total_volume for user %s: %w", g.UserID, err)
	}

	totalPoints = totalPoints.Add(g.Points)
	if !g.Volume.IsZero() {
		totalVolume = totalVolume.Add(g.Volume)
	}

	_, err = tx.ExecContext(ctx,
		`UPDATE wallets SET total_points = ?, total_volume = ? WHERE user_id = ?`,
		totalPoints.String(), totalVolume.String(), g.UserID)
	if err != nil {
		return fmt.Errorf("failed to update totals for user %s: %w", g.UserID, err)
	}

	var volumeCol sql.NullString
	if !g.Volume.IsZero() {
		volumeCol = sql.NullString{String: g.Volume.String(), Valid: true}
	}
	_, err = tx.ExecContext(ctx, `
	INSERT INTO points_history (user_id, points_earned, points_type, volume, market_id, market_title, referred_user_id, description, created_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		g.UserID, g.Points.String(), string(g.Type), volumeCol,
		nullString(g.MarketID), nullString(g.MarketTitle), nullString(g.ReferredUserID),
		nullString(g.Description), now)
	if err != nil {
		if dup := mapConstraintErr(err); dup != nil {
			// The partial unique index rejects a second signup bonus.
			return fmt.Errorf("signup bonus for referred user %s: %w", g.ReferredUserID, ports.ErrDuplicateEntry)
		}
		return fmt.Errorf("failed to insert points history for user %s: %w", g.UserID, err)
	}
	return nil
}

// IsTradeProcessed reports whether a trade key has already been claimed.
func (r *Repository) IsTradeProcessed(ctx context.Context, key domain.TradeKey) (bool, error) {
	const query = `SELECT COUNT(*) FROM processed_trades WHERE source_wallet = ? AND tx_hash = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(key.SourceWallet), key.TxHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check processed trade: %w", err)
	}
	return count > 0, nil
}

// PointsHistory returns a user's grants, newest first, up to limit.
func (r *Repository) PointsHistory(ctx context.Context, userID string, limit int) ([]*domain.PointsEntry, error) {
	const query = `
	SELECT id, user_id, points_earned, points_type, COALESCE(volume, '0'),
	       COALESCE(market_id, ''), COALESCE(market_title, ''), COALESCE(referred_user_id, ''),
	       COALESCE(description, ''), created_at
	FROM points_history
	WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query points history for user %s: %w", userID, err)
	}
	defer rows.Close()

	entries := make([]*domain.PointsEntry, 0)
	for rows.Next() {
		entry, err := scanPointsEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan points history row: %w", err)
		}
		entries = append(entries, entry)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating points history rows: %w", err)
	}
	return entries, nil
}

// SumPoints returns the sum of all history entries for a user. Used to
// verify the ledger against the wallet's running total.
func (r *Repository) SumPoints(ctx context.Context, userID string) (decimal.Decimal, error) {
	const query = `SELECT points_earned FROM points_history WHERE user_id = ?`

	rows, err := r.db.QueryContext(ctx, query, userID)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to query points for user %s: %w", userID, err)
	}
	defer rows.Close()

	sum := decimal.Zero
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return decimal.Zero, fmt.Errorf("failed to scan points row: %w", err)
		}
		points, err := decimal.NewFromString(raw)
		if err != nil {
			return decimal.Zero, fmt.Errorf("corrupt points_earned for user %s: %w", userID, err)
		}
		sum = sum.Add(points)
	}
	if err = rows.Err(); err != nil {
		return decimal.Zero, fmt.Errorf("error iterating points rows: %w", err)
	}
	return sum, nil
}

// ReferralStats aggregates a user's referral code, totals and referral earnings.
func (r *Repository) ReferralStats(ctx context.Context, userID string) (*domain.ReferralStats, error) {
	w, err := r.FindByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if w == nil {
		return nil, fmt.Errorf("user %s: %w", userID, ports.ErrNotFound)
	}

	stats := &domain.ReferralStats{
		ReferralCode:   w.ReferralCode,
		ReferredBy:     w.ReferredBy,
		TotalPoints:    w.TotalPoints,
		TotalVolume:    w.TotalVolume,
		ReferralPoints: decimal.Zero,
	}

	err = r.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM wallets WHERE referred_by = ?`, w.ReferralCode).
		Scan(&stats.ReferralCount)
	if err != nil {
		return nil, fmt.Errorf("failed to count referrals for user %s: %w", userID, err)
	}

	rows, err := r.db.QueryContext(ctx,
		`SELECT points_earned FROM points_history
		 WHERE user_id = ? AND points_type IN ('referral_trade', 'referral_signup')`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query referral points for user %s: %w", userID, err)
	}
	defer rows.Close()
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan referral points row: %w", err)
		}
		points, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("corrupt referral points for user %s: %w", userID, err)
		}
		stats.ReferralPoints = stats.ReferralPoints.Add(points)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating referral points rows: %w", err)
	}
	return stats, nil
}

// --- OrderRepository Implementation ---

// CreateOrder saves a finalized mirror order and returns its assigned ID.
func (r *Repository) CreateOrder(ctx context.Context, o *domain.MirrorOrder) (int64, error) {
	const query = `
	INSERT INTO mirror_orders (client_order_id, user_id, source_wallet, tx_hash, market_id, side, notional, price, outcome, reason, submitted_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := r.db.ExecContext(ctx, query,
		o.ClientOrderID, o.UserID, strings.ToLower(o.SourceWallet), o.TxHash, o.MarketID,
		string(o.Side), o.Notional, o.Price, string(o.Outcome), nullString(o.Reason), o.SubmittedAt)
	if err != nil {
		if dup := mapConstraintErr(err); dup != nil {
			return 0, fmt.Errorf("mirror order %s: %w", o.ClientOrderID, dup)
		}
		return 0, fmt.Errorf("failed to insert mirror order for user %s: %w", o.UserID, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for mirror order: %w", err)
	}
	o.ID = id
	r.logger.Debug(ctx, "Mirror order recorded", map[string]interface{}{"orderID": id, "outcome": o.Outcome})
	return id, nil
}

// FindOrdersByUser retrieves the most recent mirror orders for a user.
func (r *Repository) FindOrdersByUser(ctx context.Context, userID string, limit int) ([]*domain.MirrorOrder, error) {
	const query = `
	SELECT id, client_order_id, user_id, source_wallet, tx_hash, market_id, side,
	       notional, price, outcome, COALESCE(reason, ''), submitted_at
	FROM mirror_orders
	WHERE user_id = ? ORDER BY submitted_at DESC, id DESC LIMIT ?`

	rows, err := r.db.QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query mirror orders for user %s: %w", userID, err)
	}
	defer rows.Close()

	orders := make([]*domain.MirrorOrder, 0)
	for rows.Next() {
		o := &domain.MirrorOrder{}
		var side, outcome string
		err := rows.Scan(&o.ID, &o.ClientOrderID, &o.UserID, &o.SourceWallet, &o.TxHash,
			&o.MarketID, &side, &o.Notional, &o.Price, &outcome, &o.Reason, &o.SubmittedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan mirror order row: %w", err)
		}
		o.Side = domain.OrderSide(side)
		o.Outcome = domain.OrderOutcome(outcome)
		orders = append(orders, o)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating mirror order rows: %w", err)
	}
	return orders, nil
}

// HasOrderForTrade reports whether an order was already recorded for the
// trade key.
func (r *Repository) HasOrderForTrade(ctx context.Context, key domain.TradeKey) (bool, error) {
	const query = `SELECT COUNT(*) FROM mirror_orders WHERE source_wallet = ? AND tx_hash = ?`
	var count int
	err := r.db.QueryRowContext(ctx, query, strings.ToLower(key.SourceWallet), key.TxHash).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check mirror order for trade: %w", err)
	}
	return count > 0, nil
}

// CountOrdersToday counts orders submitted today for a user. Skipped orders
// never reached the relay and are excluded.
func (r *Repository) CountOrdersToday(ctx context.Context, userID string) (int, error) {
	const query = `
	SELECT COUNT(*) FROM mirror_orders
	WHERE user_id = ? AND date(submitted_at) = date('now') AND outcome <> 'skipped'`
	var count int
	err := r.db.QueryRowContext(ctx, query, userID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count today's orders for user %s: %w", userID, err)
	}
	return count, nil
}

// --- Helper Scan Functions ---

// scanner defines an interface compatible with *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...interface{}) error
}

// scanWallet scans a row into a domain.Wallet struct.
func scanWallet(s scanner) (*domain.Wallet, error) {
	w := &domain.Wallet{}
	var settings, points, volume string
	err := s.Scan(
		&w.ID, &w.UserID, &w.Handle, &w.Address, &w.CredentialRef, &settings,
		&w.ReferralCode, &w.ReferredBy, &points, &volume, &w.CreatedAt)
	if err != nil {
		return nil, err // Handle sql.ErrNoRows in the caller
	}
	if err := json.Unmarshal([]byte(settings), &w.Settings); err != nil {
		return nil, fmt.Errorf("corrupt settings for user %s: %w", w.UserID, err)
	}
	if w.TotalPoints, err = decimal.NewFromString(points); err != nil {
		return nil, fmt.Errorf("corrupt total_points for user %s: %w", w.UserID, err)
	}
	if w.TotalVolume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("corrupt total_volume for user %s: %w", w.UserID, err)
	}
	return w, nil
}

// scanPointsEntry scans a row into a domain.PointsEntry struct.
func scanPointsEntry(s scanner) (*domain.PointsEntry, error) {
	e := &domain.PointsEntry{}
	var points, volume, grantType string
	err := s.Scan(
		&e.ID, &e.UserID, &points, &grantType, &volume,
		&e.MarketID, &e.MarketTitle, &e.ReferredUserID, &e.Description, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.Type = domain.GrantType(grantType)
	if e.Points, err = decimal.NewFromString(points); err != nil {
		return nil, fmt.Errorf("corrupt points_earned in entry %d: %w", e.ID, err)
	}
	if e.Volume, err = decimal.NewFromString(volume); err != nil {
		return nil, fmt.Errorf("corrupt volume in entry %d: %w", e.ID, err)
	}
	return e, nil
}

// nullString maps an empty string to SQL NULL.
func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
