package internal

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gigurra/subscription-tracker/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ManualInput describes a subscription entered by the user.
type ManualInput struct {
	MerchantName     string
	Amount           decimal.Decimal
	Currency         string          // default USD
	Interval         BillingInterval // required
	GuideID          uuid.UUID       // optional, must exist when set
	NextExpectedDate time.Time       // optional, defaults to now plus the interval length
}

// CreateManualSubscription stores a user-entered subscription. Detection never
// modifies it afterwards.
func (t *Tracker) CreateManualSubscription(ctx context.Context, userID string, in ManualInput) (*Subscription, error) {
	name := strings.TrimSpace(in.MerchantName)
	normalized := NormalizeMerchantName(name)
	if normalized == "" {
		return nil, fmt.Errorf("%w: merchant name", ErrMissingField)
	}
	if !in.Amount.IsPositive() {
		return nil, fmt.Errorf("%w: must be positive, got %s", ErrInvalidAmount, in.Amount)
	}
	amount := in.Amount.Round(2)
	if amount.GreaterThan(MaxAmount) {
		return nil, fmt.Errorf("%w: %s exceeds %s", ErrInvalidAmount, in.Amount, MaxAmount)
	}
	interval, err := ParseBillingInterval(string(in.Interval))
	if err != nil {
		return nil, err
	}

	currency := strings.ToUpper(strings.TrimSpace(in.Currency))
	if currency == "" {
		currency = DefaultCurrency
	}

	if in.GuideID != uuid.Nil {
		if _, err := t.store.GetGuide(ctx, in.GuideID); err != nil {
			if errors.Is(err, ErrNotFound) {
				return nil, fmt.Errorf("%w: %s", ErrGuideNotFound, in.GuideID)
			}
			return nil, fmt.Errorf("checking guide: %w", err)
		}
	}

	merchant, err := FindOrCreateMerchant(ctx, t.store, truncate(name, maxNameLen), normalized)
	if err != nil {
		return nil, err
	}

	now := t.now()
	next := in.NextExpectedDate
	if next.IsZero() {
		next = now.AddDate(0, 0, interval.approxDays())
	}

	// detection for the same user must not interleave with the lookup below
	unlock := t.detector.locks.Lock(userID)
	defer unlock()

	existing, err := t.store.FindSubscriptionByUserAndMerchant(ctx, userID, merchant.ID)
	if err != nil {
		return nil, fmt.Errorf("finding subscription: %w", err)
	}
	if existing != nil && existing.FromManual {
		return nil, fmt.Errorf("%w: %s", ErrSubscriptionExists, merchant.Name)
	}

	log := logger.FromContext(ctx).With().
		Str("user_id", userID).
		Str("merchant", merchant.Name).
		Str("interval", string(interval)).
		Logger()

	// A detected subscription is taken over in place and keeps its id and history.
	if existing != nil {
		sub := *existing
		sub.Status = StatusActive
		sub.AverageAmount = amount
		sub.Currency = currency
		sub.Interval = interval
		sub.NextExpectedDate = next
		sub.FromManual = true
		if in.GuideID != uuid.Nil {
			sub.GuideID = in.GuideID
		}
		if err := t.store.UpdateSubscription(ctx, &sub); err != nil {
			return nil, fmt.Errorf("updating subscription: %w", err)
		}
		log.Info().Msg("detected subscription converted to manual")
		return &sub, nil
	}

	sub := &Subscription{
		ID:               uuid.New(),
		UserID:           userID,
		MerchantID:       merchant.ID,
		Status:           StatusActive,
		AverageAmount:    amount,
		Currency:         currency,
		Interval:         interval,
		NextExpectedDate: next,
		FirstSeen:        now,
		LastSeen:         now,
		FromManual:       true,
		GuideID:          in.GuideID,
	}
	if err := t.store.InsertSubscription(ctx, sub); err != nil {
		return nil, fmt.Errorf("inserting subscription: %w", err)
	}

	log.Info().Msg("manual subscription created")
	return sub, nil
}
