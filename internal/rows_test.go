package internal

import (
	"errors"
	"testing"
)

func TestValidateRow(t *testing.T) {
	tests := []struct {
		name    string
		row     Row
		wantErr error
		amount  string
		date    string
	}{
		{
			name:   "plain row",
			row:    Row{Date: "2024-01-15", Amount: "-15.99", Description: "NETFLIX"},
			amount: "-15.99",
			date:   "2024-01-15",
		},
		{
			name:   "currency symbol and thousands separator",
			row:    Row{Date: "01/15/2024", Amount: " $1,234.50 ", Description: "Rent"},
			amount: "1234.50",
			date:   "2024-01-15",
		},
		{
			name:   "single digit US date",
			row:    Row{Date: "1/5/2024", Amount: "9.99", Description: "Spotify"},
			amount: "9.99",
			date:   "2024-01-05",
		},
		{
			name:   "written month",
			row:    Row{Date: "Jan 5, 2024", Amount: "USD 9.99", Description: "Spotify"},
			amount: "9.99",
			date:   "2024-01-05",
		},
		{
			name:   "rfc3339 timestamp keeps calendar date",
			row:    Row{Date: "2024-01-05T23:30:00-05:00", Amount: "9.99", Description: "Spotify"},
			amount: "9.99",
			date:   "2024-01-05",
		},
		{
			name:    "missing date",
			row:     Row{Amount: "9.99", Description: "Spotify"},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing amount",
			row:     Row{Date: "2024-01-05", Amount: "  ", Description: "Spotify"},
			wantErr: ErrMissingField,
		},
		{
			name:    "missing description",
			row:     Row{Date: "2024-01-05", Amount: "9.99"},
			wantErr: ErrMissingField,
		},
		{
			name:    "unparseable date",
			row:     Row{Date: "yesterday", Amount: "9.99", Description: "Spotify"},
			wantErr: ErrInvalidDate,
		},
		{
			name:    "unparseable amount",
			row:     Row{Date: "2024-01-05", Amount: "n/a", Description: "Spotify"},
			wantErr: ErrInvalidAmount,
		},
		{
			name:    "double minus",
			row:     Row{Date: "2024-01-05", Amount: "--5", Description: "Spotify"},
			wantErr: ErrInvalidAmount,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ValidateRow(tt.row)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("expected %v, got %v", tt.wantErr, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if !got.Amount.Equal(dec(tt.amount)) {
				t.Errorf("amount = %s, want %s", got.Amount, tt.amount)
			}
			if !got.Date.Equal(date(tt.date)) {
				t.Errorf("date = %s, want %s", got.Date.Format("2006-01-02"), tt.date)
			}
		})
	}
}

func TestValidateRow_DescriptionVerbatimTrimmed(t *testing.T) {
	got, err := ValidateRow(Row{Date: "2024-01-05", Amount: "1", Description: "  Coffee  &  Co.  "})
	if err != nil {
		t.Fatal(err)
	}
	if got.Description != "Coffee  &  Co." {
		t.Errorf("description = %q", got.Description)
	}
	if got.MerchantName() != "Coffee  &  Co." {
		t.Errorf("merchant name should fall back to description, got %q", got.MerchantName())
	}
}

func TestValidateRow_DropsOnlyMalformed(t *testing.T) {
	rows := []Row{
		{Date: "2024-01-01", Amount: "-9.99", Description: "Spotify"},
		{Date: "", Amount: "-9.99", Description: "Spotify"},
		{Date: "2024-02-01", Amount: "-9.99", Description: "Spotify", Merchant: "Spotify AB"},
		{Date: "2024-03-01", Amount: "", Description: "Spotify"},
		{Date: "2024-04-01", Amount: "-9.99", Description: ""},
	}

	var valid []ParsedRow
	for _, r := range rows {
		if p, err := ValidateRow(r); err == nil {
			valid = append(valid, p)
		}
	}

	if len(valid) != 2 {
		t.Fatalf("expected 2 valid rows, got %d", len(valid))
	}
	if valid[1].MerchantName() != "Spotify AB" {
		t.Errorf("merchant name = %q, want Spotify AB", valid[1].MerchantName())
	}
}
