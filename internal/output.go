package internal

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/shopspring/decimal"
)

// OutputOptions controls how subscriptions are displayed
type OutputOptions struct {
	ShowFilter string   // active, cancelled, pending or all
	TagFilter  []string // keep subscriptions carrying any of these tags
	SortField  string   // name, amount, next or description
	SortDir    string   // asc or desc
}

// JSONOutput is the root JSON output object
type JSONOutput struct {
	Subscriptions []JSONSubscription `json:"subscriptions"`
	Totals        []JSONTotal        `json:"totals"`
}

// JSONTotal sums active subscriptions of one currency
type JSONTotal struct {
	Currency     string          `json:"currency"`
	Count        int             `json:"count"`
	MonthlyTotal decimal.Decimal `json:"monthly_total"`
	YearlyTotal  decimal.Decimal `json:"yearly_total"`
}

// JSONSubscription is the JSON output format for a subscription
type JSONSubscription struct {
	ID               string          `json:"id"`
	Name             string          `json:"name"`
	Description      string          `json:"description,omitempty"`
	Tags             []string        `json:"tags,omitempty"`
	Status           string          `json:"status"`
	Interval         string          `json:"interval"`
	Amount           decimal.Decimal `json:"amount"`
	Currency         string          `json:"currency"`
	NextExpectedDate string          `json:"next_expected_date"`
	FirstSeen        string          `json:"first_seen"`
	LastSeen         string          `json:"last_seen"`
	Manual           bool            `json:"manual"`
	YearlyCost       decimal.Decimal `json:"yearly_cost"`
	CancelURL        string          `json:"cancel_url,omitempty"`
}

// PrintSubscriptionsJSON outputs subscriptions in JSON format
func PrintSubscriptionsJSON(w io.Writer, subs []SubscriptionView, cfg *Config) error {
	subscriptions := make([]JSONSubscription, 0, len(subs))
	for _, sub := range subs {
		js := JSONSubscription{
			ID:               sub.ID.String(),
			Name:             sub.Merchant.Name,
			Description:      cfg.GetDescription(sub.Merchant.Name),
			Tags:             cfg.GetTags(sub.Merchant.Name),
			Status:           string(sub.Status),
			Interval:         string(sub.Interval),
			Amount:           sub.AverageAmount,
			Currency:         sub.Currency,
			NextExpectedDate: sub.NextExpectedDate.Format("2006-01-02"),
			FirstSeen:        sub.FirstSeen.Format("2006-01-02"),
			LastSeen:         sub.LastSeen.Format("2006-01-02"),
			Manual:           sub.FromManual,
			YearlyCost:       sub.YearlyCost(),
		}
		if sub.Guide != nil {
			js.CancelURL = sub.Guide.CancellationURL
		}
		subscriptions = append(subscriptions, js)
	}

	output := JSONOutput{
		Subscriptions: subscriptions,
		Totals:        activeTotals(subs),
	}

	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(output)
}

// activeTotals sums active subscriptions per currency, ordered by currency code.
func activeTotals(subs []SubscriptionView) []JSONTotal {
	byCurrency := make(map[string]*JSONTotal)
	for _, sub := range subs {
		if sub.Status != StatusActive {
			continue
		}
		t, ok := byCurrency[sub.Currency]
		if !ok {
			t = &JSONTotal{Currency: sub.Currency}
			byCurrency[sub.Currency] = t
		}
		t.Count++
		t.YearlyTotal = t.YearlyTotal.Add(sub.YearlyCost())
	}

	totals := make([]JSONTotal, 0, len(byCurrency))
	for _, t := range byCurrency {
		t.MonthlyTotal = t.YearlyTotal.Div(decimal.NewFromInt(12)).Round(2)
		totals = append(totals, *t)
	}
	sort.Slice(totals, func(i, j int) bool { return totals[i].Currency < totals[j].Currency })
	return totals
}

// PrintSubscriptionsTable outputs subscriptions as a formatted table
func PrintSubscriptionsTable(w io.Writer, allSubs []SubscriptionView, displaySubs []SubscriptionView, opts OutputOptions, cfg *Config) {
	// Count from all subscriptions (for summary line)
	activeCount := 0
	for _, sub := range allSubs {
		if sub.Status == StatusActive {
			activeCount++
		}
	}

	fmt.Fprintf(w, "Found %d subscriptions (%d active, %d inactive)\n",
		len(allSubs), activeCount, len(allSubs)-activeCount)
	showingStr := opts.ShowFilter
	if len(opts.TagFilter) > 0 {
		showingStr += fmt.Sprintf(", tags: %s", strings.Join(opts.TagFilter, ", "))
	}
	fmt.Fprintf(w, "Showing: %s\n\n", showingStr)

	SortSubscriptions(displaySubs, opts.SortField, opts.SortDir, cfg)

	t := table.NewWriter()
	t.SetOutputMirror(w)

	// Check which optional columns to show
	hasDescriptions := false
	hasTags := false
	hasGuides := false
	for _, sub := range displaySubs {
		if cfg.GetDescription(sub.Merchant.Name) != "" {
			hasDescriptions = true
		}
		if len(cfg.GetTags(sub.Merchant.Name)) > 0 {
			hasTags = true
		}
		if sub.Guide != nil {
			hasGuides = true
		}
	}

	// Build header dynamically
	header := table.Row{"Name"}
	if hasDescriptions {
		header = append(header, "Description")
	}
	if hasTags {
		header = append(header, "Tags")
	}
	header = append(header, "Status", "Interval", "Last Seen", "Next", "Amount", "Monthly", "Yearly")
	if hasGuides {
		header = append(header, "Cancel")
	}
	t.AppendHeader(header)

	for _, sub := range displaySubs {
		cur := GetCurrency(sub.Currency)

		status := text.FgGreen.Sprint(string(sub.Status))
		switch sub.Status {
		case StatusCancelled:
			status = text.FgRed.Sprint(string(sub.Status))
		case StatusPendingCancel:
			status = text.FgYellow.Sprint(string(sub.Status))
		}

		name := sub.Merchant.Name
		if sub.FromManual {
			name += text.FgHiBlack.Sprint(" (manual)")
		}

		monthlyStr := cur.Format(sub.MonthlyCost())
		yearlyStr := cur.Format(sub.YearlyCost())
		if sub.Status != StatusActive {
			monthlyStr = text.FgHiBlack.Sprint("-")
			yearlyStr = text.FgHiBlack.Sprint("-")
		}

		// Build row dynamically
		row := table.Row{name}
		if hasDescriptions {
			row = append(row, cfg.GetDescription(sub.Merchant.Name))
		}
		if hasTags {
			row = append(row, strings.Join(cfg.GetTags(sub.Merchant.Name), ", "))
		}
		row = append(row, status, string(sub.Interval),
			sub.LastSeen.Format("2006-01-02"), sub.NextExpectedDate.Format("2006-01-02"),
			cur.Format(sub.AverageAmount.Abs()), monthlyStr, yearlyStr)
		if hasGuides {
			cancel := ""
			if sub.Guide != nil {
				cancel = sub.Guide.CancellationURL
			}
			row = append(row, cancel)
		}
		t.AppendRow(row)
	}

	t.AppendSeparator()

	// One footer row per currency, totals cover displayed active subscriptions
	for i, total := range activeTotals(displaySubs) {
		cur := GetCurrency(total.Currency)
		footer := table.Row{""}
		if hasDescriptions {
			footer = append(footer, "")
		}
		if hasTags {
			footer = append(footer, "")
		}
		label := ""
		if i == 0 {
			label = "Total (active)"
		}
		footer = append(footer, "", "", "", "", text.Bold.Sprint(label),
			text.Bold.Sprint(cur.Format(total.MonthlyTotal)), text.Bold.Sprint(cur.Format(total.YearlyTotal)))
		if hasGuides {
			footer = append(footer, "")
		}
		t.AppendFooter(footer)
	}

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.Style().Format.Footer = text.FormatDefault

	// Right-align the money columns
	amountCol := len(header) - 2
	if hasGuides {
		amountCol--
	}
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: amountCol, Align: text.AlignRight},
		{Number: amountCol + 1, Align: text.AlignRight},
		{Number: amountCol + 2, Align: text.AlignRight},
	})

	t.Render()
}

// SortSubscriptions sorts in place by name, amount, next or description.
func SortSubscriptions(subs []SubscriptionView, field, dir string, cfg *Config) {
	label := func(s SubscriptionView) string {
		if field == "description" {
			if desc := cfg.GetDescription(s.Merchant.Name); desc != "" {
				return strings.ToLower(desc)
			}
		}
		return strings.ToLower(s.Merchant.Name)
	}

	sort.SliceStable(subs, func(i, j int) bool {
		var less bool
		switch field {
		case "amount":
			less = subs[i].MonthlyCost().LessThan(subs[j].MonthlyCost())
		case "next":
			less = subs[i].NextExpectedDate.Before(subs[j].NextExpectedDate)
		default: // "name", "description"
			less = label(subs[i]) < label(subs[j])
		}
		if dir == "desc" {
			return !less
		}
		return less
	})
}

// PrintCandidatesTable shows statement lines as parsed, before anything is stored.
func PrintCandidatesTable(w io.Writer, candidates []Candidate, cfg *Config) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"Date", "Description", "Merchant", "Type", "Ref", "Amount", "Known"})

	for _, c := range candidates {
		known := ""
		if cfg.MatchKnown(c.Description, c.Amount, c.Date) != nil {
			known = text.FgGreen.Sprint("yes")
		}
		t.AppendRow(table.Row{
			c.Date.Format("2006-01-02"),
			c.Description,
			c.Merchant,
			string(c.Type),
			c.ReferenceNumber,
			GetCurrency(c.Currency).Format(c.Amount),
			known,
		})
	}

	t.SetStyle(table.StyleRounded)
	t.Style().Format.Header = text.FormatDefault
	t.SetColumnConfigs([]table.ColumnConfig{{Number: 6, Align: text.AlignRight}})
	t.Render()
}

// FilterByStatus filters subscriptions by status (active/cancelled/pending/all)
func FilterByStatus(subs []SubscriptionView, show string) []SubscriptionView {
	var want SubscriptionStatus
	switch show {
	case "", "all":
		return subs
	case "active":
		want = StatusActive
	case "cancelled":
		want = StatusCancelled
	case "pending":
		want = StatusPendingCancel
	default:
		return nil
	}
	var result []SubscriptionView
	for _, sub := range subs {
		if sub.Status == want {
			result = append(result, sub)
		}
	}
	return result
}

// FilterByTags filters subscriptions to only those with matching tags
func FilterByTags(subs []SubscriptionView, tags []string, cfg *Config) []SubscriptionView {
	if cfg == nil || len(tags) == 0 {
		return subs
	}
	var result []SubscriptionView
	for _, sub := range subs {
		if hasAnyTag(cfg.GetTags(sub.Merchant.Name), tags) {
			result = append(result, sub)
		}
	}
	return result
}

func hasAnyTag(subTags []string, filterTags []string) bool {
	for _, ft := range filterTags {
		for _, st := range subTags {
			if strings.EqualFold(st, ft) {
				return true
			}
		}
	}
	return false
}

// FilterByExclusions removes subscriptions matching exclusion rules
func FilterByExclusions(subs []SubscriptionView, cfg *Config) []SubscriptionView {
	if cfg == nil {
		return subs
	}
	var result []SubscriptionView
	for _, sub := range subs {
		if !cfg.ShouldExclude(sub) {
			result = append(result, sub)
		}
	}
	return result
}
