package internal

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gigurra/subscription-tracker/internal/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// MaxAmount is the largest absolute amount a transaction can store (numeric(10,2)).
var MaxAmount = decimal.RequireFromString("99999999.99")

// maxNameLen matches the merchant.name column width.
const maxNameLen = 255

// ImportResult reports what an import stored.
type ImportResult struct {
	Count     int // transactions stored
	Skipped   int // malformed rows, or statement lines dropped by the allowlist
	Overflow  int // amounts above MaxAmount
	BatchID   uuid.UUID
	Detection DetectionSummary
}

// Importer turns rows and statements into stored transactions and then runs
// detection for the user.
type Importer struct {
	store     Store
	detector  *Detector
	cfg       *Config
	extractor TextExtractor
}

// NewImporter creates an importer. cfg may be nil (no allowlist, no groups);
// extractor may be nil if ImportDocument is never called.
func NewImporter(store Store, detector *Detector, cfg *Config, extractor TextExtractor) *Importer {
	return &Importer{store: store, detector: detector, cfg: cfg, extractor: extractor}
}

// draft is a transaction that passed parsing but is not stored yet.
type draft struct {
	date             time.Time
	amount           decimal.Decimal
	description      string
	merchantName     string
	subscriptionLike bool
}

// ImportCSV reads a header-driven CSV export and imports its valid rows.
func (imp *Importer) ImportCSV(ctx context.Context, userID string, r io.Reader, currency string) (ImportResult, error) {
	rows, err := ParseCSV(r)
	if err != nil {
		return ImportResult{}, fmt.Errorf("%w: %w", ErrMalformedInput, err)
	}
	return imp.ImportRows(ctx, userID, rows, currency)
}

// ImportRows validates structured rows and imports the valid ones. Malformed
// rows are skipped, not errors.
func (imp *Importer) ImportRows(ctx context.Context, userID string, rows []Row, currency string) (ImportResult, error) {
	log := logger.FromContext(ctx)

	var result ImportResult
	drafts := make([]draft, 0, len(rows))
	for i, row := range rows {
		parsed, err := ValidateRow(row)
		if err != nil {
			log.Debug().Err(err).Int("row", i+1).Msg("skipping row")
			result.Skipped++
			continue
		}
		drafts = append(drafts, draft{
			date:         parsed.Date,
			amount:       parsed.Amount,
			description:  parsed.Description,
			merchantName: parsed.MerchantName(),
		})
	}

	return imp.persist(ctx, userID, drafts, imp.currency(currency), result)
}

// ImportStatementText parses raw statement text and imports the candidates.
// When the config asks for it, lines that match no known subscription
// provider are dropped. Text that yields no candidates at all is an
// ErrNoTransactions failure.
func (imp *Importer) ImportStatementText(ctx context.Context, userID, text string, opts ParseOptions) (ImportResult, error) {
	log := logger.FromContext(ctx)

	opts.Currency = imp.currency(opts.Currency)
	if opts.DateFormat == "" {
		opts.DateFormat = imp.cfg.StatementDateFormat()
	}

	candidates := ParseStatement(text, opts)
	if len(candidates) == 0 {
		return ImportResult{}, ErrNoTransactions
	}

	var result ImportResult
	filter := imp.cfg.FilterStatements()
	drafts := make([]draft, 0, len(candidates))
	for _, c := range candidates {
		known := imp.cfg.MatchKnown(c.Description, c.Amount, c.Date)
		if filter && known == nil {
			result.Skipped++
			continue
		}

		name := c.Merchant
		if name == "" {
			name = c.Description
		}
		drafts = append(drafts, draft{
			date:             c.Date,
			amount:           c.Amount,
			description:      c.Description,
			merchantName:     name,
			subscriptionLike: c.Type == TypeSubscription || known != nil,
		})
	}

	log.Debug().
		Int("candidates", len(candidates)).
		Int("filtered", result.Skipped).
		Msg("statement parsed")

	return imp.persist(ctx, userID, drafts, opts.Currency, result)
}

// ImportDocument extracts text from a statement document and imports it like
// ImportStatementText. Once extraction succeeds doc is zeroed, so the caller's
// buffer no longer holds the statement.
func (imp *Importer) ImportDocument(ctx context.Context, userID string, doc []byte, opts ParseOptions) (ImportResult, error) {
	if imp.extractor == nil {
		return ImportResult{}, errors.New("no text extractor configured")
	}

	text, err := imp.extractor.ExtractText(ctx, doc)
	if err != nil {
		return ImportResult{}, fmt.Errorf("extracting text: %w", err)
	}
	clear(doc)

	return imp.ImportStatementText(ctx, userID, text, opts)
}

// persist resolves merchants, stores the batch and runs detection.
func (imp *Importer) persist(ctx context.Context, userID string, drafts []draft, currency string, result ImportResult) (ImportResult, error) {
	log := logger.FromContext(ctx).With().Str("user_id", userID).Logger()

	result.BatchID = uuid.New()
	merchants := make(map[string]uuid.UUID)
	txs := make([]Transaction, 0, len(drafts))

	for i, d := range drafts {
		amount := d.amount.Round(2)
		if amount.Abs().GreaterThan(MaxAmount) {
			log.Warn().
				Int("index", i).
				Str("amount", d.amount.String()).
				Str("description", d.description).
				Msg("amount exceeds 99,999,999.99, skipping transaction")
			result.Overflow++
			continue
		}

		name := d.merchantName
		if group := imp.cfg.GroupName(d.description); group != "" {
			name = group
		}
		normalized := NormalizeMerchantName(name)

		var merchantID uuid.UUID
		if normalized != "" {
			id, ok := merchants[normalized]
			if !ok {
				m, err := FindOrCreateMerchant(ctx, imp.store, truncate(name, maxNameLen), normalized)
				if err != nil {
					return result, err
				}
				id = m.ID
				merchants[normalized] = id
			}
			merchantID = id
		}

		txs = append(txs, Transaction{
			ID:                 uuid.New(),
			UserID:             userID,
			BatchID:            result.BatchID,
			Date:               d.date,
			Amount:             amount,
			Currency:           currency,
			Description:        d.description,
			NormalizedMerchant: normalized,
			MerchantID:         merchantID,
			SubscriptionLike:   d.subscriptionLike,
		})
	}

	if len(txs) > 0 {
		if err := imp.store.InsertTransactions(ctx, txs); err != nil {
			return result, fmt.Errorf("inserting transactions: %w", err)
		}
	}
	result.Count = len(txs)

	log.Info().
		Int("count", result.Count).
		Int("skipped", result.Skipped).
		Int("overflow", result.Overflow).
		Str("batch_id", result.BatchID.String()).
		Msg("import finished")

	if imp.detector == nil || result.Count == 0 {
		return result, nil
	}
	summary, err := imp.detector.DetectSubscriptions(ctx, userID)
	result.Detection = summary
	if err != nil {
		return result, fmt.Errorf("detecting subscriptions: %w", err)
	}
	return result, nil
}

func (imp *Importer) currency(c string) string {
	if c = strings.ToUpper(strings.TrimSpace(c)); c != "" {
		return c
	}
	if c = imp.cfg.ImportCurrency(); c != "" {
		return c
	}
	return DefaultCurrency
}

// truncate shortens s to at most maxLen bytes without splitting a rune.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	s = s[:maxLen]
	for !utf8.ValidString(s) {
		s = s[:len(s)-1]
	}
	return s
}
