// Package postgres implements the subscription store on PostgreSQL.
package postgres

import (
	"context"
	_ "embed"
	"errors"
	"fmt"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

//go:embed schema.sql
var schema string

// uniqueViolation is the SQLSTATE for a unique constraint failure.
const uniqueViolation = "23505"

// Store is an internal.Store backed by a pgx connection pool.
type Store struct {
	Pool *pgxpool.Pool
}

var _ internal.Store = (*Store)(nil)

// Open connects to dsn and verifies the connection.
func Open(ctx context.Context, dsn string) (*Store, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("connect to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return &Store{Pool: pool}, nil
}

// Close releases the pool.
func (s *Store) Close() {
	s.Pool.Close()
}

// Migrate creates missing tables and indexes. It is safe to run repeatedly.
func (s *Store) Migrate(ctx context.Context) error {
	if _, err := s.Pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}

func nullable(id uuid.UUID) *uuid.UUID {
	if id == uuid.Nil {
		return nil
	}
	return &id
}

func deref(id *uuid.UUID) uuid.UUID {
	if id == nil {
		return uuid.Nil
	}
	return *id
}

func parseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.Zero, fmt.Errorf("bad numeric %q: %w", s, err)
	}
	return d, nil
}

// ---- merchants ----

func (s *Store) FindMerchantByNormalizedName(ctx context.Context, normalized string) (*internal.Merchant, error) {
	var m internal.Merchant
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, normalized FROM merchants WHERE normalized = $1`,
		normalized,
	).Scan(&m.ID, &m.Name, &m.Normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMerchant is atomic: a concurrent insert of the same normalized name
// returns the row that won.
func (s *Store) CreateMerchant(ctx context.Context, name, normalized string) (*internal.Merchant, error) {
	var m internal.Merchant
	err := s.Pool.QueryRow(ctx,
		`INSERT INTO merchants (id, name, normalized)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (normalized) DO UPDATE SET normalized = EXCLUDED.normalized
		 RETURNING id, name, normalized`,
		uuid.New(), name, normalized,
	).Scan(&m.ID, &m.Name, &m.Normalized)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) GetMerchant(ctx context.Context, id uuid.UUID) (*internal.Merchant, error) {
	var m internal.Merchant
	err := s.Pool.QueryRow(ctx,
		`SELECT id, name, normalized FROM merchants WHERE id = $1`,
		id,
	).Scan(&m.ID, &m.Name, &m.Normalized)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("merchant %s: %w", id, internal.ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}

// ---- transactions ----

func (s *Store) FindTransactionsByUser(ctx context.Context, userID string) ([]internal.Transaction, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT id, user_id, batch_id, date, amount::text, currency, description,
		        normalized_merchant, merchant_id, subscription_like
		 FROM transactions
		 WHERE user_id = $1
		 ORDER BY seq`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Transaction
	for rows.Next() {
		var (
			t          internal.Transaction
			batchID    *uuid.UUID
			merchantID *uuid.UUID
			amount     string
		)
		if err := rows.Scan(&t.ID, &t.UserID, &batchID, &t.Date, &amount, &t.Currency, &t.Description,
			&t.NormalizedMerchant, &merchantID, &t.SubscriptionLike); err != nil {
			return nil, err
		}
		if t.Amount, err = parseAmount(amount); err != nil {
			return nil, err
		}
		t.BatchID = deref(batchID)
		t.MerchantID = deref(merchantID)
		out = append(out, t)
	}
	return out, rows.Err()
}

// InsertTransactions stores the batch atomically.
func (s *Store) InsertTransactions(ctx context.Context, txs []internal.Transaction) error {
	if len(txs) == 0 {
		return nil
	}
	return pgx.BeginFunc(ctx, s.Pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, t := range txs {
			batch.Queue(
				`INSERT INTO transactions (id, user_id, batch_id, date, amount, currency, description,
				                           normalized_merchant, merchant_id, subscription_like)
				 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10)`,
				t.ID, t.UserID, nullable(t.BatchID), t.Date, t.Amount.StringFixed(2), t.Currency, t.Description,
				t.NormalizedMerchant, nullable(t.MerchantID), t.SubscriptionLike,
			)
		}
		return tx.SendBatch(ctx, batch).Close()
	})
}

// ---- subscriptions ----

const subscriptionColumns = `id, user_id, merchant_id, status, average_amount::text, currency, billing_interval,
	next_expected_date, first_seen, last_seen, from_manual, guide_id`

func scanSubscription(row pgx.Row) (*internal.Subscription, error) {
	var (
		sub     internal.Subscription
		amount  string
		guideID *uuid.UUID
	)
	if err := row.Scan(&sub.ID, &sub.UserID, &sub.MerchantID, &sub.Status, &amount, &sub.Currency, &sub.Interval,
		&sub.NextExpectedDate, &sub.FirstSeen, &sub.LastSeen, &sub.FromManual, &guideID); err != nil {
		return nil, err
	}
	var err error
	if sub.AverageAmount, err = parseAmount(amount); err != nil {
		return nil, err
	}
	sub.GuideID = deref(guideID)
	return &sub, nil
}

func (s *Store) FindSubscriptionByUserAndMerchant(ctx context.Context, userID string, merchantID uuid.UUID) (*internal.Subscription, error) {
	sub, err := scanSubscription(s.Pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 AND merchant_id = $2`,
		userID, merchantID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return sub, err
}

func (s *Store) InsertSubscription(ctx context.Context, sub *internal.Subscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	_, err := s.Pool.Exec(ctx,
		`INSERT INTO subscriptions (id, user_id, merchant_id, status, average_amount, currency, billing_interval,
		                            next_expected_date, first_seen, last_seen, from_manual, guide_id)
		 VALUES ($1, $2, $3, $4, $5::numeric, $6, $7, $8, $9, $10, $11, $12)`,
		sub.ID, sub.UserID, sub.MerchantID, string(sub.Status), sub.AverageAmount.StringFixed(2), sub.Currency,
		string(sub.Interval), sub.NextExpectedDate, sub.FirstSeen, sub.LastSeen, sub.FromManual, nullable(sub.GuideID),
	)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation && pgErr.ConstraintName != "subscriptions_pkey" {
		return fmt.Errorf("merchant %s: %w", sub.MerchantID, internal.ErrSubscriptionExists)
	}
	return err
}

func (s *Store) UpdateSubscription(ctx context.Context, sub *internal.Subscription) error {
	tag, err := s.Pool.Exec(ctx,
		`UPDATE subscriptions
		 SET status = $2, average_amount = $3::numeric, currency = $4, billing_interval = $5,
		     next_expected_date = $6, first_seen = $7, last_seen = $8, from_manual = $9, guide_id = $10
		 WHERE id = $1`,
		sub.ID, string(sub.Status), sub.AverageAmount.StringFixed(2), sub.Currency, string(sub.Interval),
		sub.NextExpectedDate, sub.FirstSeen, sub.LastSeen, sub.FromManual, nullable(sub.GuideID),
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("subscription %s: %w", sub.ID, internal.ErrNotFound)
	}
	return nil
}

func (s *Store) ListSubscriptions(ctx context.Context, userID string) ([]internal.Subscription, error) {
	rows, err := s.Pool.Query(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE user_id = $1 ORDER BY next_expected_date, id`,
		userID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *sub)
	}
	return out, rows.Err()
}

func (s *Store) GetSubscription(ctx context.Context, userID string, id uuid.UUID) (*internal.Subscription, error) {
	sub, err := scanSubscription(s.Pool.QueryRow(ctx,
		`SELECT `+subscriptionColumns+` FROM subscriptions WHERE id = $1 AND user_id = $2`,
		id, userID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("subscription %s: %w", id, internal.ErrNotFound)
	}
	return sub, err
}

// ---- guides ----

const guideColumns = `id, provider_name, slug, cancellation_url, instructions`

func scanGuide(row pgx.Row) (*internal.Guide, error) {
	var g internal.Guide
	if err := row.Scan(&g.ID, &g.ProviderName, &g.Slug, &g.CancellationURL, &g.Instructions); err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) FindGuideBySlug(ctx context.Context, slug string) (*internal.Guide, error) {
	g, err := scanGuide(s.Pool.QueryRow(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE lower(slug) = lower($1)`,
		slug,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	return g, err
}

func (s *Store) GetGuide(ctx context.Context, id uuid.UUID) (*internal.Guide, error) {
	g, err := scanGuide(s.Pool.QueryRow(ctx,
		`SELECT `+guideColumns+` FROM guides WHERE id = $1`,
		id,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("guide %s: %w", id, internal.ErrNotFound)
	}
	return g, err
}

func (s *Store) ListGuides(ctx context.Context) ([]internal.Guide, error) {
	rows, err := s.Pool.Query(ctx, `SELECT `+guideColumns+` FROM guides ORDER BY lower(provider_name)`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []internal.Guide
	for rows.Next() {
		g, err := scanGuide(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *g)
	}
	return out, rows.Err()
}

func (s *Store) UpsertGuide(ctx context.Context, g *internal.Guide) error {
	if g.Slug == "" {
		return errors.New("guide slug must not be empty")
	}
	return s.Pool.QueryRow(ctx,
		`INSERT INTO guides (id, provider_name, slug, cancellation_url, instructions)
		 VALUES ($1, $2, $3, $4, $5)
		 ON CONFLICT ((lower(slug))) DO UPDATE
		 SET provider_name = EXCLUDED.provider_name,
		     cancellation_url = EXCLUDED.cancellation_url,
		     instructions = EXCLUDED.instructions
		 RETURNING id`,
		uuid.New(), g.ProviderName, g.Slug, g.CancellationURL, g.Instructions,
	).Scan(&g.ID)
}
