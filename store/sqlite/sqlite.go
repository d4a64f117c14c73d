/*
Package sqlite provides a SQLite-backed implementation of engine.Store.

PURPOSE:
  Production persistence for the reward catalog, issued claims, and
  per-user progress counters. The same SQL shape applies to PostgreSQL -
  only minor dialect differences.

KEY TABLES:
  rewards:       Catalog definitions (replaced wholesale, never deleted)
  reward_claims: Issued claims; redeemed_at set at most once
  user_progress: One row per (user, counter), latest value only

INVARIANT ENFORCEMENT:
  Claim issuance runs in a single database transaction:
  1. A SELECT refuses the insert while a valid claim for the same
     (user_id, reward_id) pair exists.
  2. A conditional UPDATE increments quantity_claimed only while below
     quantity_limit; zero rows affected means the ceiling was hit.
  3. The claim INSERT relies on the UNIQUE constraint on coupon_code;
     a violation surfaces as ErrCouponCodeTaken and the engine retries
     with a fresh code.
  Either all three commit or nothing is written.

WRITE-ONCE REDEMPTION:
  MarkRedeemed is a conditional UPDATE guarded by redeemed_at IS NULL.
  Zero rows affected means the claim is missing or already redeemed;
  a follow-up SELECT distinguishes the two.

CONCURRENCY:
  A sync.Mutex serializes writers on top of SQLite's single-writer model.
  Opened in WAL mode so readers don't block.

USAGE:
  store, err := sqlite.New("./data/rewards.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()
  eng := engine.New(store)

SEE ALSO:
  - engine/store.go: Interface contract
  - engine/store/memory.go: In-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/jmoiron/sqlx"
	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"

	"github.com/warp/reward-engine/engine"
)

// Store implements engine.Store using SQLite.
type Store struct {
	db *sqlx.DB
	mu sync.Mutex
}

// New creates a SQLite store at the given path. Use ":memory:" for an
// in-memory database.
func New(dbPath string) (*Store, error) {
	db, err := sqlx.Connect("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &Store{db: db}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	-- Catalog definitions. Never deleted, only deactivated.
	CREATE TABLE IF NOT EXISTS rewards (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		description TEXT NOT NULL DEFAULT '',
		reward_type TEXT NOT NULL,
		value TEXT NOT NULL,
		discount_amount TEXT NOT NULL DEFAULT '0',
		trigger_type TEXT NOT NULL,
		trigger_data_json TEXT,
		status TEXT NOT NULL,
		quantity_limit INTEGER,
		quantity_claimed INTEGER NOT NULL DEFAULT 0,
		expires_at TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_rewards_trigger_type
		ON rewards(trigger_type);
	CREATE INDEX IF NOT EXISTS idx_rewards_status
		ON rewards(status);

	-- Issued claims. redeemed_at transitions NULL -> value exactly once.
	CREATE TABLE IF NOT EXISTS reward_claims (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		reward_id TEXT NOT NULL,
		claimed_at TEXT NOT NULL,
		redeemed_at TEXT,
		expires_at TEXT,
		coupon_code TEXT,
		metadata_json TEXT,
		trigger_data_json TEXT
	);

	-- Coupon codes are globally unique across all users and claims.
	CREATE UNIQUE INDEX IF NOT EXISTS idx_claims_coupon_code
		ON reward_claims(coupon_code) WHERE coupon_code IS NOT NULL;

	CREATE INDEX IF NOT EXISTS idx_claims_user
		ON reward_claims(user_id);
	-- Hot path for the single-valid-claim check at issuance.
	CREATE INDEX IF NOT EXISTS idx_claims_user_reward
		ON reward_claims(user_id, reward_id);

	-- Latest counter value per user. No history.
	CREATE TABLE IF NOT EXISTS user_progress (
		user_id TEXT NOT NULL,
		counter TEXT NOT NULL,
		value INTEGER NOT NULL,
		updated_at TEXT NOT NULL,
		PRIMARY KEY (user_id, counter)
	);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// ROW TYPES
// =============================================================================

type rewardRow struct {
	ID              string         `db:"id"`
	Name            string         `db:"name"`
	Description     string         `db:"description"`
	RewardType      string         `db:"reward_type"`
	Value           string         `db:"value"`
	DiscountAmount  string         `db:"discount_amount"`
	TriggerType     string         `db:"trigger_type"`
	TriggerDataJSON sql.NullString `db:"trigger_data_json"`
	Status          string         `db:"status"`
	QuantityLimit   sql.NullInt64  `db:"quantity_limit"`
	QuantityClaimed int64          `db:"quantity_claimed"`
	ExpiresAt       sql.NullString `db:"expires_at"`
	CreatedAt       string         `db:"created_at"`
	UpdatedAt       string         `db:"updated_at"`
}

type claimRow struct {
	ID              string         `db:"id"`
	UserID          string         `db:"user_id"`
	RewardID        string         `db:"reward_id"`
	ClaimedAt       string         `db:"claimed_at"`
	RedeemedAt      sql.NullString `db:"redeemed_at"`
	ExpiresAt       sql.NullString `db:"expires_at"`
	CouponCode      sql.NullString `db:"coupon_code"`
	MetadataJSON    sql.NullString `db:"metadata_json"`
	TriggerDataJSON sql.NullString `db:"trigger_data_json"`
}

func (r rewardRow) toReward() engine.Reward {
	reward := engine.Reward{
		ID:              engine.RewardID(r.ID),
		Name:            r.Name,
		Description:     r.Description,
		Type:            engine.RewardType(r.RewardType),
		Value:           r.Value,
		Status:          engine.RewardStatus(r.Status),
		QuantityClaimed: r.QuantityClaimed,
		CreatedAt:       parseTime(r.CreatedAt),
		UpdatedAt:       parseTime(r.UpdatedAt),
	}
	reward.DiscountAmount, _ = decimal.NewFromString(r.DiscountAmount)
	reward.Trigger.Type = engine.TriggerType(r.TriggerType)
	if r.TriggerDataJSON.Valid && r.TriggerDataJSON.String != "" {
		json.Unmarshal([]byte(r.TriggerDataJSON.String), &reward.Trigger.Data)
	}
	if r.QuantityLimit.Valid {
		limit := r.QuantityLimit.Int64
		reward.QuantityLimit = &limit
	}
	if r.ExpiresAt.Valid {
		exp := parseTime(r.ExpiresAt.String)
		reward.ExpiresAt = &exp
	}
	return reward
}

func (r claimRow) toClaim() engine.UserRewardClaim {
	claim := engine.UserRewardClaim{
		ID:         engine.ClaimID(r.ID),
		UserID:     engine.UserID(r.UserID),
		RewardID:   engine.RewardID(r.RewardID),
		ClaimedAt:  parseTime(r.ClaimedAt),
		CouponCode: r.CouponCode.String,
	}
	if r.RedeemedAt.Valid {
		t := parseTime(r.RedeemedAt.String)
		claim.RedeemedAt = &t
	}
	if r.ExpiresAt.Valid {
		t := parseTime(r.ExpiresAt.String)
		claim.ExpiresAt = &t
	}
	if r.MetadataJSON.Valid && r.MetadataJSON.String != "" {
		json.Unmarshal([]byte(r.MetadataJSON.String), &claim.Metadata)
	}
	if r.TriggerDataJSON.Valid && r.TriggerDataJSON.String != "" {
		json.Unmarshal([]byte(r.TriggerDataJSON.String), &claim.TriggerData)
	}
	return claim
}

// =============================================================================
// CATALOG (engine.Store)
// =============================================================================

// SaveReward inserts or replaces a reward definition wholesale.
func (s *Store) SaveReward(ctx context.Context, r engine.Reward) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	triggerData, _ := json.Marshal(r.Trigger.Data)

	query := `
		INSERT OR REPLACE INTO rewards
		(id, name, description, reward_type, value, discount_amount,
		 trigger_type, trigger_data_json, status, quantity_limit,
		 quantity_claimed, expires_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, query,
		r.ID, r.Name, r.Description, r.Type, r.Value, r.DiscountAmount.String(),
		r.Trigger.Type, string(triggerData), r.Status,
		nullInt64(r.QuantityLimit), r.QuantityClaimed,
		nullTime(r.ExpiresAt), formatTime(r.CreatedAt), formatTime(r.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to save reward: %w", err)
	}
	return nil
}

// Reward returns the definition by exact id, regardless of availability.
func (s *Store) Reward(ctx context.Context, id engine.RewardID) (engine.Reward, error) {
	var row rewardRow
	err := s.db.GetContext(ctx, &row, `SELECT * FROM rewards WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.Reward{}, fmt.Errorf("reward %s: %w", id, engine.ErrRewardNotFound)
		}
		return engine.Reward{}, fmt.Errorf("failed to get reward: %w", err)
	}
	return row.toReward(), nil
}

// Rewards returns the whole catalog in creation order.
func (s *Store) Rewards(ctx context.Context) ([]engine.Reward, error) {
	var rows []rewardRow
	err := s.db.SelectContext(ctx, &rows,
		`SELECT * FROM rewards ORDER BY created_at ASC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("failed to list rewards: %w", err)
	}

	rewards := make([]engine.Reward, len(rows))
	for i, r := range rows {
		rewards[i] = r.toReward()
	}
	return rewards, nil
}

// =============================================================================
// CLAIMS (engine.Store)
// =============================================================================

// IssueClaim inserts the claim and bumps the reward counter in one
// transaction, refusing writes that would violate the claim invariants.
func (s *Store) IssueClaim(ctx context.Context, claim engine.UserRewardClaim, now time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	// Gate 1: no second valid claim for the (user, reward) pair.
	var validCount int
	err = tx.GetContext(ctx, &validCount, `
		SELECT COUNT(*) FROM reward_claims
		WHERE user_id = ? AND reward_id = ?
		  AND redeemed_at IS NULL
		  AND (expires_at IS NULL OR expires_at > ?)
	`, claim.UserID, claim.RewardID, formatTime(now))
	if err != nil {
		return fmt.Errorf("failed to check existing claims: %w", err)
	}
	if validCount > 0 {
		return engine.ErrClaimConflict
	}

	// Gate 2: conditional counter bump. Zero rows affected means the
	// reward is missing or the quantity ceiling was hit.
	result, err := tx.ExecContext(ctx, `
		UPDATE rewards
		SET quantity_claimed = quantity_claimed + 1, updated_at = ?
		WHERE id = ?
		  AND (quantity_limit IS NULL OR quantity_claimed < quantity_limit)
	`, formatTime(now), claim.RewardID)
	if err != nil {
		return fmt.Errorf("failed to increment quantity: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		var exists int
		if err := tx.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM rewards WHERE id = ?`, claim.RewardID); err != nil {
			return fmt.Errorf("failed to check reward: %w", err)
		}
		if exists == 0 {
			return fmt.Errorf("reward %s: %w", claim.RewardID, engine.ErrRewardNotFound)
		}
		return engine.ErrQuantityExhausted
	}

	// Gate 3: the coupon-code unique index.
	metadata, _ := json.Marshal(claim.Metadata)
	triggerData, _ := json.Marshal(claim.TriggerData)
	_, err = tx.ExecContext(ctx, `
		INSERT INTO reward_claims
		(id, user_id, reward_id, claimed_at, redeemed_at, expires_at,
		 coupon_code, metadata_json, trigger_data_json)
		VALUES (?, ?, ?, ?, NULL, ?, ?, ?, ?)
	`, claim.ID, claim.UserID, claim.RewardID, formatTime(claim.ClaimedAt),
		nullTime(claim.ExpiresAt), nullString(claim.CouponCode),
		string(metadata), string(triggerData))
	if err != nil {
		if isCouponConflictError(err) {
			return engine.ErrCouponCodeTaken
		}
		return fmt.Errorf("failed to insert claim: %w", err)
	}

	return tx.Commit()
}

// ClaimsByUser returns the user's full claim history in insertion order.
func (s *Store) ClaimsByUser(ctx context.Context, userID engine.UserID) ([]engine.UserRewardClaim, error) {
	var rows []claimRow
	err := s.db.SelectContext(ctx, &rows, `
		SELECT id, user_id, reward_id, claimed_at, redeemed_at, expires_at,
		       coupon_code, metadata_json, trigger_data_json
		FROM reward_claims
		WHERE user_id = ?
		ORDER BY rowid ASC
	`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list claims: %w", err)
	}

	claims := make([]engine.UserRewardClaim, len(rows))
	for i, r := range rows {
		claims[i] = r.toClaim()
	}
	return claims, nil
}

// Claim returns one claim from the user's list.
func (s *Store) Claim(ctx context.Context, userID engine.UserID, claimID engine.ClaimID) (engine.UserRewardClaim, error) {
	var row claimRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, reward_id, claimed_at, redeemed_at, expires_at,
		       coupon_code, metadata_json, trigger_data_json
		FROM reward_claims
		WHERE id = ? AND user_id = ?
	`, claimID, userID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.UserRewardClaim{}, fmt.Errorf("claim %s: %w", claimID, engine.ErrClaimNotFound)
		}
		return engine.UserRewardClaim{}, fmt.Errorf("failed to get claim: %w", err)
	}
	return row.toClaim(), nil
}

// MarkRedeemed sets redeemed_at exactly once via a conditional update.
func (s *Store) MarkRedeemed(ctx context.Context, userID engine.UserID, claimID engine.ClaimID, at time.Time) (engine.UserRewardClaim, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.ExecContext(ctx, `
		UPDATE reward_claims
		SET redeemed_at = ?
		WHERE id = ? AND user_id = ? AND redeemed_at IS NULL
	`, formatTime(at), claimID, userID)
	if err != nil {
		return engine.UserRewardClaim{}, fmt.Errorf("failed to redeem claim: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return engine.UserRewardClaim{}, fmt.Errorf("failed to get rows affected: %w", err)
	}
	if affected == 0 {
		// Missing claim or write-once violation; look to tell them apart.
		var exists int
		if err := s.db.GetContext(ctx, &exists,
			`SELECT COUNT(*) FROM reward_claims WHERE id = ? AND user_id = ?`,
			claimID, userID); err != nil {
			return engine.UserRewardClaim{}, fmt.Errorf("failed to check claim: %w", err)
		}
		if exists == 0 {
			return engine.UserRewardClaim{}, fmt.Errorf("claim %s: %w", claimID, engine.ErrClaimNotFound)
		}
		return engine.UserRewardClaim{}, fmt.Errorf("claim %s: %w", claimID, engine.ErrClaimExpired)
	}

	return s.Claim(ctx, userID, claimID)
}

// ClaimByCoupon finds a claim by its coupon code across all users.
func (s *Store) ClaimByCoupon(ctx context.Context, code string) (engine.UserRewardClaim, error) {
	var row claimRow
	err := s.db.GetContext(ctx, &row, `
		SELECT id, user_id, reward_id, claimed_at, redeemed_at, expires_at,
		       coupon_code, metadata_json, trigger_data_json
		FROM reward_claims
		WHERE coupon_code = ?
	`, code)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return engine.UserRewardClaim{}, fmt.Errorf("coupon %s: %w", code, engine.ErrClaimNotFound)
		}
		return engine.UserRewardClaim{}, fmt.Errorf("failed to look up coupon: %w", err)
	}
	return row.toClaim(), nil
}

// =============================================================================
// PROGRESS (engine.Store)
// =============================================================================

// Progress returns the user's counters. Empty map for unknown users.
func (s *Store) Progress(ctx context.Context, userID engine.UserID) (engine.Progress, error) {
	rows, err := s.db.QueryxContext(ctx,
		`SELECT counter, value FROM user_progress WHERE user_id = ?`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load progress: %w", err)
	}
	defer rows.Close()

	progress := engine.Progress{}
	for rows.Next() {
		var counter string
		var value int64
		if err := rows.Scan(&counter, &value); err != nil {
			return nil, fmt.Errorf("failed to scan progress: %w", err)
		}
		progress[counter] = value
	}
	return progress, rows.Err()
}

// SaveProgress overwrites the user's counters wholesale.
func (s *Store) SaveProgress(ctx context.Context, userID engine.UserID, p engine.Progress) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx,
		`DELETE FROM user_progress WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("failed to clear progress: %w", err)
	}

	now := formatTime(time.Now().UTC())
	for counter, value := range p {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO user_progress (user_id, counter, value, updated_at)
			VALUES (?, ?, ?, ?)
		`, userID, counter, value, now); err != nil {
			return fmt.Errorf("failed to save progress: %w", err)
		}
	}

	return tx.Commit()
}

// =============================================================================
// HELPERS
// =============================================================================

// timeLayout pads nanoseconds to a fixed width so stored timestamps
// order lexicographically. RFC3339Nano trims trailing zeros, which
// mis-sorts strings of different fraction lengths within a second.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*t), Valid: true}
}

func nullString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}

func nullInt64(n *int64) sql.NullInt64 {
	if n == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *n, Valid: true}
}

func isCouponConflictError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed") &&
		strings.Contains(err.Error(), "coupon_code")
}
