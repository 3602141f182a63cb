package internal

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DateFormat selects how ambiguous numeric dates in statement text are read.
type DateFormat string

const (
	DateFormatUS  DateFormat = "US"  // MM/DD/YYYY
	DateFormatEU  DateFormat = "EU"  // DD/MM/YYYY
	DateFormatISO DateFormat = "ISO" // YYYY-MM-DD
)

// ParseDateFormat returns the DateFormat for s (case-insensitive). Empty means US.
func ParseDateFormat(s string) (DateFormat, error) {
	switch DateFormat(strings.ToUpper(strings.TrimSpace(s))) {
	case "", DateFormatUS:
		return DateFormatUS, nil
	case DateFormatEU:
		return DateFormatEU, nil
	case DateFormatISO:
		return DateFormatISO, nil
	}
	return "", fmt.Errorf("unknown date format %q (want US, EU or ISO)", s)
}

// TransactionType is the keyword-inferred kind of a statement line.
type TransactionType string

const (
	TypePayment      TransactionType = "PAYMENT"
	TypeDeposit      TransactionType = "DEPOSIT"
	TypeWithdrawal   TransactionType = "WITHDRAWAL"
	TypeFee          TransactionType = "FEE"
	TypeInterest     TransactionType = "INTEREST"
	TypeRefund       TransactionType = "REFUND"
	TypeSubscription TransactionType = "SUBSCRIPTION"
)

// Candidate is a transaction extracted from statement text. It is never persisted as is.
type Candidate struct {
	Date            time.Time
	Amount          decimal.Decimal // positive = credit, negative = debit
	Description     string
	Merchant        string          // leading upper-case run, empty if none
	Type            TransactionType // empty if no keyword matched
	Balance         *decimal.Decimal
	ReferenceNumber string
	Currency        string
}

// Transaction is an imported, persisted transaction. Rows are append-only.
type Transaction struct {
	ID                 uuid.UUID
	UserID             string
	BatchID            uuid.UUID // import batch, uuid.Nil if unknown
	Date               time.Time
	Amount             decimal.Decimal
	Currency           string
	Description        string
	NormalizedMerchant string
	MerchantID         uuid.UUID // uuid.Nil if no merchant could be derived
	SubscriptionLike   bool
}

// Merchant is keyed globally by its normalized name.
type Merchant struct {
	ID         uuid.UUID
	Name       string
	Normalized string
}

// Guide describes how to cancel a provider's subscription.
type Guide struct {
	ID              uuid.UUID
	ProviderName    string
	Slug            string
	CancellationURL string
	Instructions    string
}

type SubscriptionStatus string

const (
	StatusActive        SubscriptionStatus = "ACTIVE"
	StatusCancelled     SubscriptionStatus = "CANCELLED"
	StatusPendingCancel SubscriptionStatus = "PENDING_CANCEL"
)

// BillingInterval is the cadence of a subscription.
type BillingInterval string

const (
	IntervalWeekly    BillingInterval = "weekly"
	IntervalMonthly   BillingInterval = "monthly"
	IntervalQuarterly BillingInterval = "quarterly"
	IntervalAnnual    BillingInterval = "annual"
)

// ParseBillingInterval validates an interval name (case-insensitive).
func ParseBillingInterval(s string) (BillingInterval, error) {
	switch BillingInterval(strings.ToLower(strings.TrimSpace(s))) {
	case IntervalWeekly:
		return IntervalWeekly, nil
	case IntervalMonthly:
		return IntervalMonthly, nil
	case IntervalQuarterly:
		return IntervalQuarterly, nil
	case IntervalAnnual:
		return IntervalAnnual, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidInterval, s)
}

// Next returns t advanced by one billing period. Month arithmetic clamps to the
// last day of the target month, so Jan 31 + 1 month is Feb 28 (or 29).
func (i BillingInterval) Next(t time.Time) time.Time {
	switch i {
	case IntervalWeekly:
		return t.AddDate(0, 0, 7)
	case IntervalQuarterly:
		return addMonths(t, 3)
	case IntervalAnnual:
		return addMonths(t, 12)
	default:
		return addMonths(t, 1)
	}
}

// approxDays is used when no reference date exists (manual subscriptions).
func (i BillingInterval) approxDays() int {
	switch i {
	case IntervalWeekly:
		return 7
	case IntervalQuarterly:
		return 90
	case IntervalAnnual:
		return 365
	default:
		return 30
	}
}

// PerYear is the number of charges in a year.
func (i BillingInterval) PerYear() int64 {
	switch i {
	case IntervalWeekly:
		return 52
	case IntervalQuarterly:
		return 4
	case IntervalAnnual:
		return 1
	default:
		return 12
	}
}

// YearlyCost is the absolute amount charged per year.
func (s Subscription) YearlyCost() decimal.Decimal {
	return s.AverageAmount.Abs().Mul(decimal.NewFromInt(s.Interval.PerYear()))
}

// MonthlyCost is YearlyCost spread over twelve months, rounded to cents.
func (s Subscription) MonthlyCost() decimal.Decimal {
	return s.YearlyCost().Div(decimal.NewFromInt(12)).Round(2)
}

func addMonths(t time.Time, months int) time.Time {
	y, m, d := t.Date()
	first := time.Date(y, m+time.Month(months), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if last := daysIn(first.Year(), first.Month()); d > last {
		d = last
	}
	return first.AddDate(0, 0, d-1)
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// Subscription is a recurring charge, either detected or entered by the user.
type Subscription struct {
	ID               uuid.UUID
	UserID           string
	MerchantID       uuid.UUID
	Status           SubscriptionStatus
	AverageAmount    decimal.Decimal
	Currency         string
	Interval         BillingInterval
	NextExpectedDate time.Time
	FirstSeen        time.Time
	LastSeen         time.Time
	FromManual       bool
	GuideID          uuid.UUID // uuid.Nil if no guide is linked
}

// SubscriptionView is a subscription joined with its merchant and guide.
type SubscriptionView struct {
	Subscription
	Merchant Merchant
	Guide    *Guide
}

// TransactionGroup collects one merchant's transactions for recurrence analysis.
type TransactionGroup struct {
	MerchantID uuid.UUID
	Normalized string
	Amounts    []decimal.Decimal
	Dates      []time.Time
	Currency   string
	FirstSeen  time.Time
	LastSeen   time.Time
}
