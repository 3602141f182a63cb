package internal

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Tracker is the application service used by the CLI and the HTTP API.
type Tracker struct {
	*Importer

	store    Store
	detector *Detector
	cfg      *Config
	now      func() time.Time
}

// NewTracker wires a store, config and text extractor into a Tracker.
func NewTracker(store Store, cfg *Config, extractor TextExtractor) *Tracker {
	detector := NewDetector(store)
	return &Tracker{
		Importer: NewImporter(store, detector, cfg, extractor),
		store:    store,
		detector: detector,
		cfg:      cfg,
		now:      time.Now,
	}
}

// Config returns the tracker's configuration, possibly nil.
func (t *Tracker) Config() *Config {
	return t.cfg
}

// Recalculate re-runs subscription detection for the user.
func (t *Tracker) Recalculate(ctx context.Context, userID string) (DetectionSummary, error) {
	return t.detector.DetectSubscriptions(ctx, userID)
}

// ListSubscriptions returns the user's subscriptions with merchant and guide,
// ordered by next expected date.
func (t *Tracker) ListSubscriptions(ctx context.Context, userID string) ([]SubscriptionView, error) {
	subs, err := t.store.ListSubscriptions(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing subscriptions: %w", err)
	}

	views := make([]SubscriptionView, 0, len(subs))
	for _, sub := range subs {
		view, err := t.view(ctx, sub)
		if err != nil {
			return nil, err
		}
		views = append(views, view)
	}
	sort.SliceStable(views, func(i, j int) bool {
		return views[i].NextExpectedDate.Before(views[j].NextExpectedDate)
	})
	return views, nil
}

// GetSubscription returns one of the user's subscriptions, or ErrNotFound.
func (t *Tracker) GetSubscription(ctx context.Context, userID string, id uuid.UUID) (*SubscriptionView, error) {
	sub, err := t.store.GetSubscription(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	view, err := t.view(ctx, *sub)
	if err != nil {
		return nil, err
	}
	return &view, nil
}

func (t *Tracker) view(ctx context.Context, sub Subscription) (SubscriptionView, error) {
	view := SubscriptionView{Subscription: sub}

	m, err := t.store.GetMerchant(ctx, sub.MerchantID)
	if err != nil {
		return view, fmt.Errorf("loading merchant for subscription %s: %w", sub.ID, err)
	}
	view.Merchant = *m

	if sub.GuideID != uuid.Nil {
		g, err := t.store.GetGuide(ctx, sub.GuideID)
		switch {
		case err == nil:
			view.Guide = g
		case !errors.Is(err, ErrNotFound):
			return view, fmt.Errorf("loading guide for subscription %s: %w", sub.ID, err)
		}
	}
	return view, nil
}

// ListTransactions returns the user's most recent transactions, newest first.
func (t *Tracker) ListTransactions(ctx context.Context, userID string, limit int) ([]Transaction, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	txs, err := t.store.FindTransactionsByUser(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("listing transactions: %w", err)
	}
	sort.SliceStable(txs, func(i, j int) bool {
		return txs[i].Date.After(txs[j].Date)
	})
	if len(txs) > limit {
		txs = txs[:limit]
	}
	return txs, nil
}

// SeedGuides stores the configured cancellation guides, replacing guides with the same slug.
func (t *Tracker) SeedGuides(ctx context.Context) (int, error) {
	guides := t.cfg.AllGuides()
	for _, gc := range guides {
		g := &Guide{
			ProviderName:    gc.Name,
			Slug:            strings.ToLower(gc.Slug),
			CancellationURL: gc.URL,
			Instructions:    gc.Instructions,
		}
		if err := t.store.UpsertGuide(ctx, g); err != nil {
			return 0, fmt.Errorf("seeding guide %q: %w", gc.Slug, err)
		}
	}
	return len(guides), nil
}

// ListGuides returns all cancellation guides ordered by provider name.
func (t *Tracker) ListGuides(ctx context.Context) ([]Guide, error) {
	return t.store.ListGuides(ctx)
}

// GetGuideBySlug returns the guide with the slug, or ErrGuideNotFound.
func (t *Tracker) GetGuideBySlug(ctx context.Context, slug string) (*Guide, error) {
	g, err := t.store.FindGuideBySlug(ctx, slug)
	if err != nil {
		return nil, err
	}
	if g == nil {
		return nil, fmt.Errorf("%w: %s", ErrGuideNotFound, slug)
	}
	return g, nil
}
