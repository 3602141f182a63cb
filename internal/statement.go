package internal

import (
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// ParseOptions controls a single ParseStatement call.
type ParseOptions struct {
	Currency   string     // stamped on every candidate, default USD
	DateFormat DateFormat // default US
	// Now supplies the year for dates written without one. Zero means time.Now().
	Now time.Time
}

// DefaultCurrency is used when neither the caller nor the config names one.
const DefaultCurrency = "USD"

var (
	// US and EU share the pattern; only the field order differs.
	slashDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})/(\d{4})`)
	isoDatePattern   = regexp.MustCompile(`(\d{4})-(\d{1,2})-(\d{1,2})`)
	shortDatePattern = regexp.MustCompile(`(\d{1,2})/(\d{1,2})(?:\s|$)`)

	dollarAmountPattern = regexp.MustCompile(`([+-]?)\$\s*([\d,]+\.?\d*)`)
	plainAmountPattern  = regexp.MustCompile(`([+-]?)([\d,]+\.?\d{2})\b`)
	balancePattern      = regexp.MustCompile(`(?i)balance[:\s]+([+-]?)\$?([\d,]+\.?\d*)`)

	merchantPattern  = regexp.MustCompile(`^[A-Z][A-Z\s&]+`)
	referencePattern = regexp.MustCompile(`(?i)\b(?:REFERENCE|REF)(?:\s*[#:]\s*|\s+)([A-Z0-9-]+)`)
	edgeNonWord      = regexp.MustCompile(`^\W+|\W+$`)

	blankLineRun = regexp.MustCompile(`\n{3,}`)
)

// minAmount is the smallest absolute amount accepted as a transaction.
var minAmount = decimal.RequireFromString("0.001")

// ParseStatement extracts candidate transactions from raw statement text
// (OCR output or a plain text dump). It never fails: lines it cannot make
// sense of yield nothing. The result is sorted by date, ties keep input order.
func ParseStatement(text string, opts ParseOptions) []Candidate {
	currency := opts.Currency
	if currency == "" {
		currency = DefaultCurrency
	}
	format := opts.DateFormat
	if format == "" {
		format = DateFormatUS
	}
	now := opts.Now
	if now.IsZero() {
		now = time.Now()
	}

	lines := splitStatementLines(text)

	var (
		candidates []Candidate
		lastDate   *time.Time // carried forward to lines without their own date
		balance    *decimal.Decimal
	)

	for i, line := range lines {
		if line == "" {
			continue
		}

		datePattern := fullDatePattern(format)
		dateLoc := datePattern.FindStringSubmatchIndex(line)
		if dateLoc != nil {
			if d, ok := fullDate(line, dateLoc, format); ok {
				lastDate = &d
			}
		} else if loc := shortDatePattern.FindStringSubmatchIndex(line); loc != nil {
			datePattern = shortDatePattern
			if d, ok := shortDate(line, loc, now.Year()); ok {
				lastDate = &d
			}
		}

		// Balance is read before amounts so it applies to this line's candidates,
		// and its figure is not mistaken for a transaction amount.
		scan := datePattern.ReplaceAllStringFunc(line, blank)
		if m := balancePattern.FindStringSubmatch(scan); m != nil {
			if b, ok := parseSignedAmount(m[1], m[2]); ok {
				balance = &b
			}
			scan = balancePattern.ReplaceAllStringFunc(scan, blank)
		}

		if lastDate == nil {
			continue
		}

		matches := dollarAmountPattern.FindAllStringSubmatch(scan, -1)
		if len(matches) == 0 {
			matches = plainAmountPattern.FindAllStringSubmatch(scan, -1)
		}

		for _, m := range matches {
			amount, ok := parseSignedAmount(m[1], m[2])
			if !ok || amount.Abs().LessThanOrEqual(minAmount) {
				continue
			}

			description := describeLine(line, datePattern)
			if description == "" && i > 0 {
				description = strings.TrimSpace(lines[i-1])
			}
			if description == "" {
				continue
			}

			c := Candidate{
				Date:            *lastDate,
				Amount:          amount,
				Description:     description,
				Merchant:        extractMerchant(description),
				Type:            ClassifyTransactionType(description),
				ReferenceNumber: extractReference(description),
				Currency:        currency,
			}
			if balance != nil {
				b := *balance
				c.Balance = &b
			}
			candidates = append(candidates, c)
		}
	}

	sort.SliceStable(candidates, func(i, j int) bool {
		return candidates[i].Date.Before(candidates[j].Date)
	})

	return candidates
}

// splitStatementLines unifies line endings, collapses long blank runs and trims each line.
func splitStatementLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	text = strings.ReplaceAll(text, "\r", "\n")
	text = blankLineRun.ReplaceAllString(text, "\n\n")
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	lines := strings.Split(text, "\n")
	for i := range lines {
		lines[i] = strings.TrimSpace(lines[i])
	}
	return lines
}

func fullDatePattern(format DateFormat) *regexp.Regexp {
	if format == DateFormatISO {
		return isoDatePattern
	}
	return slashDatePattern
}

// fullDate builds a date from a slash or ISO match. Impossible dates (month 13,
// Feb 30) are rejected rather than rolled over.
func fullDate(line string, loc []int, format DateFormat) (time.Time, bool) {
	a := atoi(line[loc[2]:loc[3]])
	b := atoi(line[loc[4]:loc[5]])
	c := atoi(line[loc[6]:loc[7]])

	switch format {
	case DateFormatISO:
		return makeDate(a, b, c)
	case DateFormatEU:
		return makeDate(c, b, a)
	default:
		return makeDate(c, a, b)
	}
}

// shortDate reads M/D without a year.
func shortDate(line string, loc []int, year int) (time.Time, bool) {
	month := atoi(line[loc[2]:loc[3]])
	day := atoi(line[loc[4]:loc[5]])
	return makeDate(year, month, day)
}

func makeDate(year, month, day int) (time.Time, bool) {
	if month < 1 || month > 12 || day < 1 || day > daysIn(year, time.Month(month)) {
		return time.Time{}, false
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), true
}

func atoi(s string) int {
	n, _ := strconv.Atoi(s)
	return n
}

// parseSignedAmount turns a sign token and a digit run like "1,234.5" into a decimal.
func parseSignedAmount(sign, digits string) (decimal.Decimal, bool) {
	digits = strings.TrimSuffix(strings.ReplaceAll(digits, ",", ""), ".")
	if digits == "" {
		return decimal.Zero, false
	}
	d, err := decimal.NewFromString(digits)
	if err != nil {
		return decimal.Zero, false
	}
	if sign == "-" {
		d = d.Neg()
	}
	return d, true
}

// describeLine strips the date, balance and amount tokens from a line and cleans the rest.
func describeLine(line string, datePattern *regexp.Regexp) string {
	s := datePattern.ReplaceAllString(line, " ")
	s = balancePattern.ReplaceAllString(s, " ")
	s = dollarAmountPattern.ReplaceAllString(s, " ")
	s = plainAmountPattern.ReplaceAllString(s, " ")
	s = whitespaceRun.ReplaceAllString(s, " ")
	s = edgeNonWord.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

func extractMerchant(description string) string {
	return strings.TrimSpace(merchantPattern.FindString(description))
}

func extractReference(description string) string {
	if m := referencePattern.FindStringSubmatch(description); m != nil {
		return m[1]
	}
	return ""
}

// typeKeywords is checked in order; the first rule with a matching keyword wins.
var typeKeywords = []struct {
	typ      TransactionType
	keywords []string
}{
	{TypePayment, []string{"payment", "transfer"}},
	{TypeDeposit, []string{"deposit", "credit"}},
	{TypeWithdrawal, []string{"withdrawal", "debit"}},
	{TypeFee, []string{"fee", "charge"}},
	{TypeInterest, []string{"interest"}},
	{TypeRefund, []string{"refund"}},
	{TypeSubscription, []string{"subscription", "recurring"}},
}

// ClassifyTransactionType infers a transaction type from description keywords.
// Returns "" if nothing matches.
func ClassifyTransactionType(description string) TransactionType {
	lower := strings.ToLower(description)
	for _, rule := range typeKeywords {
		for _, kw := range rule.keywords {
			if strings.Contains(lower, kw) {
				return rule.typ
			}
		}
	}
	return ""
}

func blank(s string) string {
	return strings.Repeat(" ", len(s))
}
