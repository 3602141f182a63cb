package postgres

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// openTestStore connects to TEST_DATABASE_URL, skipping the test when it is unset.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	s, err := Open(ctx, dsn)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(s.Close)
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("Migrate: %v", err)
	}
	// twice, to check it is idempotent
	if err := s.Migrate(ctx); err != nil {
		t.Fatalf("second Migrate: %v", err)
	}
	return s
}

func day(s string) time.Time {
	d, err := time.Parse("2006-01-02", s)
	if err != nil {
		panic(err)
	}
	return d
}

func TestCreateMerchant_Atomic(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	normalized := "merchant " + uuid.NewString()

	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		ids = map[uuid.UUID]bool{}
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m, err := s.CreateMerchant(ctx, "Merchant", normalized)
			if err != nil {
				t.Error(err)
				return
			}
			mu.Lock()
			ids[m.ID] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	if len(ids) != 1 {
		t.Errorf("expected one merchant row, got %d ids", len(ids))
	}

	found, err := s.FindMerchantByNormalizedName(ctx, normalized)
	if err != nil || found == nil {
		t.Fatalf("find: %v, %v", found, err)
	}
	if missing, err := s.FindMerchantByNormalizedName(ctx, "nope "+uuid.NewString()); missing != nil || err != nil {
		t.Errorf("miss should be nil, nil; got %v, %v", missing, err)
	}
	if _, err := s.GetMerchant(ctx, uuid.New()); !errors.Is(err, internal.ErrNotFound) {
		t.Errorf("GetMerchant miss: %v", err)
	}
}

func TestTransactionsRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	m, err := s.CreateMerchant(ctx, "Netflix", "netflix "+user)
	if err != nil {
		t.Fatal(err)
	}
	batch := uuid.New()
	txs := []internal.Transaction{
		{ID: uuid.New(), UserID: user, BatchID: batch, Date: day("2024-01-15"), Amount: decimal.RequireFromString("-15.99"),
			Currency: "USD", Description: "NETFLIX.COM", NormalizedMerchant: m.Normalized, MerchantID: m.ID, SubscriptionLike: true},
		{ID: uuid.New(), UserID: user, Date: day("2024-01-16"), Amount: decimal.RequireFromString("99999999.99"),
			Currency: "USD", Description: "no merchant"},
	}
	if err := s.InsertTransactions(ctx, txs); err != nil {
		t.Fatalf("InsertTransactions: %v", err)
	}

	got, err := s.FindTransactionsByUser(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 {
		t.Fatalf("expected 2 transactions, got %d", len(got))
	}
	if !got[0].Amount.Equal(txs[0].Amount) || got[0].MerchantID != m.ID || got[0].BatchID != batch || !got[0].SubscriptionLike {
		t.Errorf("first transaction mismatch: %+v", got[0])
	}
	if !got[0].Date.Equal(day("2024-01-15")) {
		t.Errorf("date = %s", got[0].Date)
	}
	if got[1].MerchantID != uuid.Nil || got[1].BatchID != uuid.Nil {
		t.Errorf("null ids should read back as uuid.Nil: %+v", got[1])
	}
	if !got[1].Amount.Equal(decimal.RequireFromString("99999999.99")) {
		t.Errorf("max amount = %s", got[1].Amount)
	}
}

func TestDetectorAgainstPostgres(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	user := uuid.NewString()

	tr := internal.NewTracker(s, nil, internal.PlainText)
	rows := []internal.Row{
		{Date: "2024-01-01", Amount: "-9.99", Description: "Spotify " + user},
		{Date: "2024-02-01", Amount: "-9.99", Description: "Spotify " + user},
		{Date: "2024-03-03", Amount: "-10.99", Description: "Spotify " + user},
	}
	result, err := tr.ImportRows(ctx, user, rows, "")
	if err != nil {
		t.Fatalf("ImportRows: %v", err)
	}
	if result.Detection.Created != 1 {
		t.Fatalf("expected one subscription, got %+v", result.Detection)
	}

	// a second run updates in place
	summary, err := tr.Recalculate(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if summary.Updated != 1 || summary.Created != 0 {
		t.Errorf("second run summary = %+v", summary)
	}

	views, err := tr.ListSubscriptions(ctx, user)
	if err != nil {
		t.Fatal(err)
	}
	if len(views) != 1 {
		t.Fatalf("expected 1 subscription, got %d", len(views))
	}
	v := views[0]
	if !v.AverageAmount.Equal(decimal.RequireFromString("-10.32")) {
		t.Errorf("average = %s, want -10.32", v.AverageAmount)
	}
	if v.Interval != internal.IntervalMonthly || !v.NextExpectedDate.Equal(day("2024-04-03")) {
		t.Errorf("interval %s next %s", v.Interval, v.NextExpectedDate)
	}

	if _, err := s.GetSubscription(ctx, "someone else", v.ID); !errors.Is(err, internal.ErrNotFound) {
		t.Errorf("GetSubscription for another user: %v", err)
	}

	dup := v.Subscription
	dup.ID = uuid.New()
	if err := s.InsertSubscription(ctx, &dup); !errors.Is(err, internal.ErrSubscriptionExists) {
		t.Errorf("second subscription for the merchant: err = %v, want ErrSubscriptionExists", err)
	}

	// a manual entry takes over the detected row
	manual, err := tr.CreateManualSubscription(ctx, user, internal.ManualInput{
		MerchantName: "Spotify " + user,
		Amount:       decimal.RequireFromString("11.99"),
		Interval:     internal.IntervalMonthly,
	})
	if err != nil {
		t.Fatalf("CreateManualSubscription: %v", err)
	}
	if manual.ID != v.ID || !manual.FromManual {
		t.Errorf("expected detected row %s converted to manual, got %+v", v.ID, manual)
	}
}

func TestGuides(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	slug := "svc-" + uuid.NewString()

	g := &internal.Guide{ProviderName: "Svc", Slug: slug, CancellationURL: "https://a"}
	if err := s.UpsertGuide(ctx, g); err != nil {
		t.Fatal(err)
	}
	first := g.ID

	g2 := &internal.Guide{ProviderName: "Svc", Slug: slug, CancellationURL: "https://b"}
	if err := s.UpsertGuide(ctx, g2); err != nil {
		t.Fatal(err)
	}
	if g2.ID != first {
		t.Errorf("upsert by slug should keep the id: %s vs %s", g2.ID, first)
	}

	found, err := s.FindGuideBySlug(ctx, "SVC-"+slug[4:])
	if err != nil || found == nil {
		t.Fatalf("case-insensitive find: %v, %v", found, err)
	}
	if found.CancellationURL != "https://b" {
		t.Errorf("url = %q, want https://b", found.CancellationURL)
	}
	if _, err := s.GetGuide(ctx, uuid.New()); !errors.Is(err, internal.ErrNotFound) {
		t.Errorf("GetGuide miss: %v", err)
	}
}
