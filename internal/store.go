package internal

import (
	"context"
	"fmt"

	"github.com/google/uuid"
)

// Store is the persistence collaborator. Find* methods return (nil, nil) on a
// miss; Get* methods return ErrNotFound.
type Store interface {
	FindMerchantByNormalizedName(ctx context.Context, normalized string) (*Merchant, error)
	// CreateMerchant inserts a merchant. If one with the same normalized name
	// already exists it is returned instead, so at most one row exists per name.
	CreateMerchant(ctx context.Context, name, normalized string) (*Merchant, error)
	GetMerchant(ctx context.Context, id uuid.UUID) (*Merchant, error)

	FindTransactionsByUser(ctx context.Context, userID string) ([]Transaction, error)
	InsertTransactions(ctx context.Context, txs []Transaction) error

	FindSubscriptionByUserAndMerchant(ctx context.Context, userID string, merchantID uuid.UUID) (*Subscription, error)
	InsertSubscription(ctx context.Context, sub *Subscription) error
	UpdateSubscription(ctx context.Context, sub *Subscription) error
	ListSubscriptions(ctx context.Context, userID string) ([]Subscription, error)
	GetSubscription(ctx context.Context, userID string, id uuid.UUID) (*Subscription, error)

	// FindGuideBySlug matches the slug case-insensitively.
	FindGuideBySlug(ctx context.Context, slug string) (*Guide, error)
	GetGuide(ctx context.Context, id uuid.UUID) (*Guide, error)
	ListGuides(ctx context.Context) ([]Guide, error)
	// UpsertGuide inserts or replaces the guide with the same slug. g.ID is
	// set to the stored row's id.
	UpsertGuide(ctx context.Context, g *Guide) error
}

// FindOrCreateMerchant returns the merchant for normalized, creating it with
// display name name on first sighting.
func FindOrCreateMerchant(ctx context.Context, store Store, name, normalized string) (*Merchant, error) {
	m, err := store.FindMerchantByNormalizedName(ctx, normalized)
	if err != nil {
		return nil, fmt.Errorf("finding merchant %q: %w", normalized, err)
	}
	if m != nil {
		return m, nil
	}
	m, err = store.CreateMerchant(ctx, name, normalized)
	if err != nil {
		return nil, fmt.Errorf("creating merchant %q: %w", normalized, err)
	}
	return m, nil
}
