package internal

import (
	"io"
	"strings"
	"testing"

	"github.com/xuri/excelize/v2"
)

func TestIsKnownParser(t *testing.T) {
	// Register a test parser
	RegisterParser("test-format", ParserFunc(func(r io.Reader) ([]Row, error) {
		return nil, nil
	}))

	tests := []struct {
		name     string
		input    string
		expected bool
	}{
		{"known parser", "test-format", true},
		{"built-in csv", "csv", true},
		{"built-in xlsx", "xlsx", true},
		{"built-in simple-json", "simple-json", true},
		{"unknown parser", "unknown-format", false},
		{"empty string", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := IsKnownParser(tt.input)
			if got != tt.expected {
				t.Errorf("IsKnownParser(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestParseFileArg(t *testing.T) {
	tests := []struct {
		name           string
		input          string
		expectedFormat string
		expectedPath   string
	}{
		{
			name:           "with built-in format prefix",
			input:          "xlsx:bank.xlsx",
			expectedFormat: "xlsx",
			expectedPath:   "bank.xlsx",
		},
		{
			name:           "no prefix",
			input:          "data.json",
			expectedFormat: "",
			expectedPath:   "data.json",
		},
		{
			name:           "object storage uri",
			input:          "gs://bucket/statements/march.csv",
			expectedFormat: "",
			expectedPath:   "gs://bucket/statements/march.csv",
		},
		{
			name:           "windows path with drive letter",
			input:          "C:\\Users\\test\\data.xlsx",
			expectedFormat: "",
			expectedPath:   "C:\\Users\\test\\data.xlsx",
		},
		{
			name:           "format prefix with absolute path",
			input:          "csv:/home/user/data.txt",
			expectedFormat: "csv",
			expectedPath:   "/home/user/data.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotFormat, gotPath := ParseFileArg(tt.input)
			if gotFormat != tt.expectedFormat {
				t.Errorf("ParseFileArg(%q) format = %q, want %q", tt.input, gotFormat, tt.expectedFormat)
			}
			if gotPath != tt.expectedPath {
				t.Errorf("ParseFileArg(%q) path = %q, want %q", tt.input, gotPath, tt.expectedPath)
			}
		})
	}
}

func TestSourceForPath(t *testing.T) {
	tests := map[string]string{
		"march.CSV":       "csv",
		"export.xlsx":     "xlsx",
		"dump.json":       "simple-json",
		"statement.pdf":   "",
		"gs://b/file.csv": "csv",
		"no-extension":    "",
	}
	for path, want := range tests {
		if got := SourceForPath(path); got != want {
			t.Errorf("SourceForPath(%q) = %q, want %q", path, got, want)
		}
	}
}

func TestParseCSV(t *testing.T) {
	input := "Date,Amount,Description,Merchant\n" +
		"2024-01-15,-15.99,NETFLIX.COM 866-579,Netflix\n" +
		"\n" +
		"2024-02-15,\"-$1,015.99\",  Rent  ,\n" +
		"2024-03-15,,missing amount,\n"

	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows (blank line skipped), got %d", len(rows))
	}

	if rows[0].Merchant != "Netflix" || rows[0].Description != "NETFLIX.COM 866-579" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Amount != "-$1,015.99" || rows[1].Description != "Rent" {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if rows[2].Amount != "" {
		t.Errorf("row 2 amount = %q, want empty", rows[2].Amount)
	}
}

func TestParseCSV_HeaderAliasesAndOrder(t *testing.T) {
	input := "\ufeffPayee;ignored\n"
	if _, err := ParseCSV(strings.NewReader(input)); err == nil {
		t.Error("expected error for header without required columns")
	}

	input = "\ufeffMemo,Posted Date,AMOUNT\nSpotify,2024-01-01,-9.99\n"
	rows, err := ParseCSV(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	want := Row{Date: "2024-01-01", Amount: "-9.99", Description: "Spotify"}
	if rows[0] != want {
		t.Errorf("row = %+v, want %+v", rows[0], want)
	}
}

func TestParseCSV_Empty(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(""))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 0 {
		t.Errorf("expected no rows, got %d", len(rows))
	}
}

func TestParseXLSX_Handelsbanken(t *testing.T) {
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	data := [][]interface{}{
		{"Kontoutdrag"},
		{},
		{"Reskontradatum", "Transaktionsdatum", "Text", "Belopp", "Saldo"},
		{"2025-01-15", "2025-01-14", "Netflix", "-99,00", "1000,00"},
		{"2025-02-15", "2025-02-14", "Prel Spotify", "-119,00", "881,00"},
	}
	for i, row := range data {
		cell, err := excelize.CoordinatesToCellName(1, i+1)
		if err != nil {
			t.Fatal(err)
		}
		row := row
		if err := f.SetSheetRow(sheet, cell, &row); err != nil {
			t.Fatal(err)
		}
	}
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rows, err := ParseXLSX(buf)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].Date != "2025-01-15" || rows[0].Amount != "-99.00" || rows[0].Description != "Netflix" {
		t.Errorf("row 0 = %+v", rows[0])
	}
	if rows[1].Description != "Spotify" {
		t.Errorf("pending prefix not stripped: %q", rows[1].Description)
	}

	parsed, err := ValidateRow(rows[1])
	if err != nil {
		t.Fatalf("row 1 should validate: %v", err)
	}
	if !parsed.Amount.Equal(dec("-119")) {
		t.Errorf("amount = %s, want -119", parsed.Amount)
	}
}

func TestParseSimpleJSON(t *testing.T) {
	input := `{"transactions": [
		{"date": "2025-01-15", "text": "Netflix", "amount": -99.00},
		{"date": "2025-02-15", "text": "NETFLIX.COM", "merchant": "Netflix", "amount": "-99.00"},
		{"date": "2025-03-15", "text": "No amount"}
	]}`

	rows, err := ParseSimpleJSON(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(rows))
	}
	if rows[0].Amount != "-99.00" {
		t.Errorf("numeric amount = %q, want -99.00", rows[0].Amount)
	}
	if rows[1].Amount != "-99.00" || rows[1].Merchant != "Netflix" {
		t.Errorf("row 1 = %+v", rows[1])
	}
	if _, err := ValidateRow(rows[2]); err == nil {
		t.Error("row without amount should not validate")
	}
}
