package api

import (
	"time"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

type importResponse struct {
	Count    int    `json:"count"`
	Skipped  int    `json:"skipped"`
	Overflow int    `json:"overflow"`
	BatchID  string `json:"batchId"`
}

func newImportResponse(r internal.ImportResult) importResponse {
	return importResponse{Count: r.Count, Skipped: r.Skipped, Overflow: r.Overflow, BatchID: r.BatchID.String()}
}

type statementTextRequest struct {
	Text       string `json:"text"`
	Currency   string `json:"currency"`
	DateFormat string `json:"dateFormat"`
}

type manualRequest struct {
	MerchantName     string          `json:"merchantName"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	Interval         string          `json:"interval"`
	GuideID          string          `json:"guideId"`
	NextExpectedDate string          `json:"nextExpectedDate"`
}

type merchantJSON struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Normalized string `json:"normalizedName"`
}

type guideJSON struct {
	ID              string `json:"id"`
	ProviderName    string `json:"providerName"`
	Slug            string `json:"slug"`
	CancellationURL string `json:"cancellationUrl,omitempty"`
	Instructions    string `json:"instructions,omitempty"`
}

func newGuideJSON(g internal.Guide) guideJSON {
	return guideJSON{
		ID:              g.ID.String(),
		ProviderName:    g.ProviderName,
		Slug:            g.Slug,
		CancellationURL: g.CancellationURL,
		Instructions:    g.Instructions,
	}
}

type subscriptionJSON struct {
	ID               string        `json:"id"`
	Status           string        `json:"status"`
	AverageAmount    string        `json:"averageAmount"`
	Currency         string        `json:"currency"`
	Interval         string        `json:"billingInterval"`
	NextExpectedDate string        `json:"nextExpectedDate"`
	FirstSeen        string        `json:"firstSeen"`
	LastSeen         string        `json:"lastSeen"`
	FromManual       bool          `json:"fromManual"`
	MonthlyCost      string        `json:"monthlyCost"`
	Merchant         *merchantJSON `json:"merchant,omitempty"`
	Guide            *guideJSON    `json:"guide,omitempty"`
}

func newSubscriptionJSON(s internal.Subscription) subscriptionJSON {
	return subscriptionJSON{
		ID:               s.ID.String(),
		Status:           string(s.Status),
		AverageAmount:    s.AverageAmount.StringFixed(2),
		Currency:         s.Currency,
		Interval:         string(s.Interval),
		NextExpectedDate: s.NextExpectedDate.Format(dateLayout),
		FirstSeen:        s.FirstSeen.Format(dateLayout),
		LastSeen:         s.LastSeen.Format(dateLayout),
		FromManual:       s.FromManual,
		MonthlyCost:      s.MonthlyCost().StringFixed(2),
	}
}

func newSubscriptionViewJSON(v internal.SubscriptionView) subscriptionJSON {
	out := newSubscriptionJSON(v.Subscription)
	out.Merchant = &merchantJSON{ID: v.Merchant.ID.String(), Name: v.Merchant.Name, Normalized: v.Merchant.Normalized}
	if v.Guide != nil {
		g := newGuideJSON(*v.Guide)
		out.Guide = &g
	}
	return out
}

type transactionJSON struct {
	ID               string `json:"id"`
	Date             string `json:"date"`
	Amount           string `json:"amount"`
	Currency         string `json:"currency"`
	Description      string `json:"description"`
	Merchant         string `json:"normalizedMerchant,omitempty"`
	SubscriptionLike bool   `json:"isSubscriptionLike"`
}

func newTransactionJSON(t internal.Transaction) transactionJSON {
	return transactionJSON{
		ID:               t.ID.String(),
		Date:             t.Date.Format(dateLayout),
		Amount:           t.Amount.StringFixed(2),
		Currency:         t.Currency,
		Description:      t.Description,
		Merchant:         t.NormalizedMerchant,
		SubscriptionLike: t.SubscriptionLike,
	}
}

func parseOptionalDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse(dateLayout, s)
}
