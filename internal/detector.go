package internal

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/gigurra/subscription-tracker/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// maxGapDeviation is how far (in days) any single gap may stray from the mean gap.
const maxGapDeviation = 5.0

// Detector finds recurring charges in a user's transactions and reconciles
// them with stored subscriptions. Runs for the same user are serialized.
type Detector struct {
	store Store
	locks *keyedMutex
}

// NewDetector creates a detector backed by store.
func NewDetector(store Store) *Detector {
	return &Detector{store: store, locks: newKeyedMutex()}
}

// DetectionSummary counts what a detection run did.
type DetectionSummary struct {
	Groups        int // merchant groups considered
	Recurring     int // groups that passed the recurring test
	Created       int
	Updated       int
	SkippedManual int // recurring groups with a user-entered subscription
	Failed        int
}

// Analysis is the outcome of the recurrence test for one group.
type Analysis struct {
	Interval         BillingInterval
	AverageAmount    decimal.Decimal
	NextExpectedDate time.Time
}

// DetectSubscriptions analyzes all of the user's transactions and creates or
// updates detected subscriptions. Every group is attempted; failures are
// returned joined after the run. Subscriptions entered by the user are never modified.
func (d *Detector) DetectSubscriptions(ctx context.Context, userID string) (DetectionSummary, error) {
	unlock := d.locks.Lock(userID)
	defer unlock()

	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()

	var summary DetectionSummary

	txs, err := d.store.FindTransactionsByUser(ctx, userID)
	if err != nil {
		return summary, fmt.Errorf("loading transactions: %w", err)
	}

	groups := GroupTransactions(txs)
	summary.Groups = len(groups)

	var errs []error
	for _, group := range groups {
		analysis, ok := AnalyzeGroup(group)
		if !ok {
			continue
		}
		summary.Recurring++

		outcome, err := d.reconcile(ctx, userID, group, analysis)
		if err != nil {
			summary.Failed++
			log.Error().Err(err).
				Str("merchant_id", group.MerchantID.String()).
				Str("merchant", group.Normalized).
				Msg("subscription upsert failed")
			errs = append(errs, fmt.Errorf("merchant %q: %w", group.Normalized, err))
			continue
		}
		switch outcome {
		case outcomeCreated:
			summary.Created++
		case outcomeUpdated:
			summary.Updated++
		case outcomeManual:
			summary.SkippedManual++
		}
	}

	log.Info().
		Int("groups", summary.Groups).
		Int("recurring", summary.Recurring).
		Int("created", summary.Created).
		Int("updated", summary.Updated).
		Int("failed", summary.Failed).
		Msg("subscription detection finished")

	return summary, errors.Join(errs...)
}

type upsertOutcome int

const (
	outcomeCreated upsertOutcome = iota
	outcomeUpdated
	outcomeManual
)

func (d *Detector) reconcile(ctx context.Context, userID string, group TransactionGroup, a Analysis) (upsertOutcome, error) {
	var guideID uuid.UUID
	guide, err := d.store.FindGuideBySlug(ctx, group.Normalized)
	if err != nil {
		return 0, fmt.Errorf("finding guide: %w", err)
	}
	if guide != nil {
		guideID = guide.ID
	}

	existing, err := d.store.FindSubscriptionByUserAndMerchant(ctx, userID, group.MerchantID)
	if err != nil {
		return 0, fmt.Errorf("finding subscription: %w", err)
	}

	if existing == nil {
		sub := &Subscription{
			ID:               uuid.New(),
			UserID:           userID,
			MerchantID:       group.MerchantID,
			Status:           StatusActive,
			AverageAmount:    a.AverageAmount,
			Currency:         group.Currency,
			Interval:         a.Interval,
			NextExpectedDate: a.NextExpectedDate,
			FirstSeen:        group.FirstSeen,
			LastSeen:         group.LastSeen,
			GuideID:          guideID,
		}
		if err := d.store.InsertSubscription(ctx, sub); err != nil {
			return 0, fmt.Errorf("inserting subscription: %w", err)
		}
		return outcomeCreated, nil
	}

	if existing.FromManual {
		return outcomeManual, nil
	}

	existing.AverageAmount = a.AverageAmount
	existing.LastSeen = group.LastSeen
	existing.NextExpectedDate = a.NextExpectedDate
	existing.Interval = a.Interval
	// An existing guide link is kept when nothing matches now.
	if guideID != uuid.Nil {
		existing.GuideID = guideID
	}
	if err := d.store.UpdateSubscription(ctx, existing); err != nil {
		return 0, fmt.Errorf("updating subscription: %w", err)
	}
	return outcomeUpdated, nil
}

// GroupTransactions groups transactions by merchant. Transactions without a
// merchant id or normalized merchant are left out. Groups are returned in
// order of first appearance.
func GroupTransactions(txs []Transaction) []TransactionGroup {
	index := make(map[uuid.UUID]int)
	var groups []TransactionGroup

	for _, tx := range txs {
		if tx.MerchantID == uuid.Nil || tx.NormalizedMerchant == "" {
			continue
		}

		i, ok := index[tx.MerchantID]
		if !ok {
			i = len(groups)
			index[tx.MerchantID] = i
			groups = append(groups, TransactionGroup{
				MerchantID: tx.MerchantID,
				Normalized: tx.NormalizedMerchant,
				FirstSeen:  tx.Date,
				LastSeen:   tx.Date,
			})
		}

		g := &groups[i]
		g.Amounts = append(g.Amounts, tx.Amount)
		g.Dates = append(g.Dates, tx.Date)
		g.Currency = tx.Currency // last one wins, currencies are not cross-checked
		if tx.Date.Before(g.FirstSeen) {
			g.FirstSeen = tx.Date
		}
		if tx.Date.After(g.LastSeen) {
			g.LastSeen = tx.Date
		}
	}

	return groups
}

// AnalyzeGroup runs the recurrence test and, if it passes, computes the
// interval, average amount and next expected charge.
func AnalyzeGroup(g TransactionGroup) (Analysis, bool) {
	if !IsRecurring(g.Dates) {
		return Analysis{}, false
	}
	interval := ClassifyInterval(g.Dates)
	return Analysis{
		Interval:         interval,
		AverageAmount:    AverageAmount(g.Amounts),
		NextExpectedDate: interval.Next(g.LastSeen),
	}, true
}

// IsRecurring reports whether the dates are evenly spaced: at least two of
// them, and every gap within maxGapDeviation days of the mean gap. Two dates
// always pass.
func IsRecurring(dates []time.Time) bool {
	gaps := dayGaps(dates)
	if len(gaps) == 0 {
		return false
	}
	mean := meanOf(gaps)
	for _, gap := range gaps {
		if math.Abs(float64(gap)-mean) > maxGapDeviation {
			return false
		}
	}
	return true
}

// ClassifyInterval maps the mean gap to a billing interval.
// Fewer than two dates default to monthly.
func ClassifyInterval(dates []time.Time) BillingInterval {
	gaps := dayGaps(dates)
	if len(gaps) == 0 {
		return IntervalMonthly
	}
	mean := meanOf(gaps)
	switch {
	case mean <= 10:
		return IntervalWeekly
	case mean <= 35:
		return IntervalMonthly
	case mean <= 100:
		return IntervalQuarterly
	default:
		return IntervalAnnual
	}
}

// AverageAmount is the signed arithmetic mean, rounded to cents.
func AverageAmount(amounts []decimal.Decimal) decimal.Decimal {
	if len(amounts) == 0 {
		return decimal.Zero
	}
	return decimal.Sum(amounts[0], amounts[1:]...).
		Div(decimal.NewFromInt(int64(len(amounts)))).
		Round(2)
}

// dayGaps sorts a copy of dates and returns the whole-day gaps between neighbours.
func dayGaps(dates []time.Time) []int {
	if len(dates) < 2 {
		return nil
	}
	sorted := make([]time.Time, len(dates))
	for i, d := range dates {
		sorted[i] = calendarDay(d)
	}
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Before(sorted[j]) })

	gaps := make([]int, 0, len(sorted)-1)
	for i := 1; i < len(sorted); i++ {
		gaps = append(gaps, int(sorted[i].Sub(sorted[i-1]).Hours()/24))
	}
	return gaps
}

func meanOf(xs []int) float64 {
	sum := 0
	for _, x := range xs {
		sum += x
	}
	return float64(sum) / float64(len(xs))
}

// calendarDay drops the time of day so gaps count calendar days.
func calendarDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
