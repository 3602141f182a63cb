package internal

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Row is one structured input row before validation. All fields are raw text.
type Row struct {
	Date        string
	Amount      string
	Description string
	Merchant    string // optional, description is used when empty
}

// ParsedRow is a Row that passed validation.
type ParsedRow struct {
	Date        time.Time
	Amount      decimal.Decimal
	Description string
	Merchant    string
}

// MerchantName returns the name the row should be grouped under.
func (r ParsedRow) MerchantName() string {
	if r.Merchant != "" {
		return r.Merchant
	}
	return r.Description
}

var nonAmountChars = regexp.MustCompile(`[^0-9.\-]`)

// rowDateLayouts are tried in order. "1/2/2006" also accepts zero-padded input.
var rowDateLayouts = []string{
	"2006-01-02",
	"1/2/2006",
	time.RFC3339,
	"2006/01/02",
	"Jan 2, 2006",
	"2 Jan 2006",
	"January 2, 2006",
}

// ValidateRow trims a row and parses its date and amount. Rows missing any of
// date, amount or description, or with values that do not parse, are rejected.
func ValidateRow(r Row) (ParsedRow, error) {
	dateStr := strings.TrimSpace(r.Date)
	amountStr := strings.TrimSpace(r.Amount)
	description := strings.TrimSpace(r.Description)

	switch {
	case dateStr == "":
		return ParsedRow{}, fmt.Errorf("%w: date", ErrMissingField)
	case amountStr == "":
		return ParsedRow{}, fmt.Errorf("%w: amount", ErrMissingField)
	case description == "":
		return ParsedRow{}, fmt.Errorf("%w: description", ErrMissingField)
	}

	date, err := ParseRowDate(dateStr)
	if err != nil {
		return ParsedRow{}, err
	}

	amount, err := ParseRowAmount(amountStr)
	if err != nil {
		return ParsedRow{}, err
	}

	return ParsedRow{
		Date:        date,
		Amount:      amount,
		Description: description,
		Merchant:    strings.TrimSpace(r.Merchant),
	}, nil
}

// ParseRowDate accepts the common export date layouts. The result is a UTC calendar date.
func ParseRowDate(s string) (time.Time, error) {
	for _, layout := range rowDateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			y, m, d := t.Date()
			return time.Date(y, m, d, 0, 0, 0, 0, time.UTC), nil
		}
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidDate, s)
}

// ParseRowAmount strips currency symbols, spaces and thousands separators
// ("$1,234.50" -> 1234.50) and parses what is left.
func ParseRowAmount(s string) (decimal.Decimal, error) {
	cleaned := nonAmountChars.ReplaceAllString(s, "")
	if cleaned == "" || cleaned == "-" || cleaned == "." {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: %q", ErrInvalidAmount, s)
	}
	return d, nil
}
