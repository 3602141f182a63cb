package internal

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// MemoryStore is an in-memory Store, safe for concurrent use.
// Values are copied in and out so callers never share state with the store.
type MemoryStore struct {
	mu            sync.RWMutex
	merchants     map[uuid.UUID]Merchant
	byNormalized  map[string]uuid.UUID
	transactions  []Transaction
	subscriptions map[uuid.UUID]Subscription
	guides        map[uuid.UUID]Guide
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		merchants:     make(map[uuid.UUID]Merchant),
		byNormalized:  make(map[string]uuid.UUID),
		subscriptions: make(map[uuid.UUID]Subscription),
		guides:        make(map[uuid.UUID]Guide),
	}
}

func (s *MemoryStore) FindMerchantByNormalizedName(_ context.Context, normalized string) (*Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.byNormalized[normalized]
	if !ok {
		return nil, nil
	}
	m := s.merchants[id]
	return &m, nil
}

func (s *MemoryStore) CreateMerchant(_ context.Context, name, normalized string) (*Merchant, error) {
	if normalized == "" {
		return nil, fmt.Errorf("merchant normalized name must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if id, ok := s.byNormalized[normalized]; ok {
		m := s.merchants[id]
		return &m, nil
	}

	m := Merchant{ID: uuid.New(), Name: name, Normalized: normalized}
	s.merchants[m.ID] = m
	s.byNormalized[normalized] = m.ID
	return &m, nil
}

func (s *MemoryStore) GetMerchant(_ context.Context, id uuid.UUID) (*Merchant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.merchants[id]
	if !ok {
		return nil, fmt.Errorf("merchant %s: %w", id, ErrNotFound)
	}
	return &m, nil
}

func (s *MemoryStore) FindTransactionsByUser(_ context.Context, userID string) ([]Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Transaction
	for _, tx := range s.transactions {
		if tx.UserID == userID {
			out = append(out, tx)
		}
	}
	return out, nil
}

func (s *MemoryStore) InsertTransactions(_ context.Context, txs []Transaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.transactions = append(s.transactions, txs...)
	return nil
}

func (s *MemoryStore) FindSubscriptionByUserAndMerchant(_ context.Context, userID string, merchantID uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, sub := range s.subscriptions {
		if sub.UserID == userID && sub.MerchantID == merchantID {
			return &sub, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) InsertSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if _, exists := s.subscriptions[sub.ID]; exists {
		return fmt.Errorf("subscription %s already exists", sub.ID)
	}
	for _, existing := range s.subscriptions {
		if existing.UserID == sub.UserID && existing.MerchantID == sub.MerchantID {
			return fmt.Errorf("merchant %s: %w", sub.MerchantID, ErrSubscriptionExists)
		}
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

func (s *MemoryStore) UpdateSubscription(_ context.Context, sub *Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subscriptions[sub.ID]; !exists {
		return fmt.Errorf("subscription %s: %w", sub.ID, ErrNotFound)
	}
	s.subscriptions[sub.ID] = *sub
	return nil
}

// ListSubscriptions returns the user's subscriptions ordered by next expected date.
func (s *MemoryStore) ListSubscriptions(_ context.Context, userID string) ([]Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []Subscription
	for _, sub := range s.subscriptions {
		if sub.UserID == userID {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].NextExpectedDate.Equal(out[j].NextExpectedDate) {
			return out[i].NextExpectedDate.Before(out[j].NextExpectedDate)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (s *MemoryStore) GetSubscription(_ context.Context, userID string, id uuid.UUID) (*Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, ok := s.subscriptions[id]
	if !ok || sub.UserID != userID {
		return nil, fmt.Errorf("subscription %s: %w", id, ErrNotFound)
	}
	return &sub, nil
}

func (s *MemoryStore) FindGuideBySlug(_ context.Context, slug string) (*Guide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, g := range s.guides {
		if strings.EqualFold(g.Slug, slug) {
			return &g, nil
		}
	}
	return nil, nil
}

func (s *MemoryStore) GetGuide(_ context.Context, id uuid.UUID) (*Guide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	g, ok := s.guides[id]
	if !ok {
		return nil, fmt.Errorf("guide %s: %w", id, ErrNotFound)
	}
	return &g, nil
}

// ListGuides returns all guides ordered by provider name.
func (s *MemoryStore) ListGuides(_ context.Context) ([]Guide, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Guide, 0, len(s.guides))
	for _, g := range s.guides {
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool {
		return strings.ToLower(out[i].ProviderName) < strings.ToLower(out[j].ProviderName)
	})
	return out, nil
}

func (s *MemoryStore) UpsertGuide(_ context.Context, g *Guide) error {
	if g.Slug == "" {
		return fmt.Errorf("guide slug must not be empty")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for id, existing := range s.guides {
		if strings.EqualFold(existing.Slug, g.Slug) {
			g.ID = id
			s.guides[id] = *g
			return nil
		}
	}
	if g.ID == uuid.Nil {
		g.ID = uuid.New()
	}
	s.guides[g.ID] = *g
	return nil
}
