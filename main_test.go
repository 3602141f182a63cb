package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"
)

const sampleJSON = `{"transactions": [
  {"date": "2024-01-05", "text": "Netflix", "amount": -99},
  {"date": "2024-02-05", "text": "Netflix", "amount": -99},
  {"date": "2024-03-05", "text": "Netflix", "amount": -99},
  {"date": "2024-01-12", "text": "Spotify", "amount": "-129"},
  {"date": "2024-02-12", "text": "Spotify", "amount": "-129"},
  {"date": "2024-03-12", "text": "Spotify", "amount": "-129"},
  {"date": "2024-01-03", "text": "Grocery Store", "amount": -412.50},
  {"date": "2024-01-05", "text": "Grocery Store", "amount": -88.10},
  {"date": "2024-02-20", "text": "Grocery Store", "amount": -230}
]}`

// writeFile writes content into a fresh temp dir and returns its path.
func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

// common points at a temp config so the user's own config never interferes.
func common(t *testing.T, configContent string) CommonParams {
	t.Helper()
	return CommonParams{Config: writeFile(t, "config.yaml", configContent)}
}

func detect(t *testing.T, p DetectParams) string {
	t.Helper()
	if p.User == "" {
		p.User = "local"
	}
	if p.Currency == "" {
		p.Currency = "SEK"
	}
	if p.Output == "" {
		p.Output = "table"
	}
	if p.Show == "" {
		p.Show = "active"
	}
	if p.Sort == "" {
		p.Sort = "name"
	}
	if p.SortDir == "" {
		p.SortDir = "asc"
	}
	var buf bytes.Buffer
	if err := runDetect(context.Background(), &buf, &p); err != nil {
		t.Fatalf("detect: %v", err)
	}
	return buf.String()
}

func detectJSON(t *testing.T, p DetectParams) internal.JSONOutput {
	t.Helper()
	p.Output = "json"
	out := detect(t, p)
	var result internal.JSONOutput
	if err := json.Unmarshal([]byte(out), &result); err != nil {
		t.Fatalf("failed to parse JSON output: %v\nOutput: %s", err, out)
	}
	return result
}

func names(result internal.JSONOutput) map[string]bool {
	m := make(map[string]bool)
	for _, sub := range result.Subscriptions {
		m[sub.Name] = true
	}
	return m
}

func TestCLI_BasicDetection(t *testing.T) {
	result := detectJSON(t, DetectParams{
		CommonParams: common(t, ""),
		InputParams:  InputParams{Source: "simple-json"},
		File:         writeFile(t, "sample.json", sampleJSON),
	})

	if len(result.Subscriptions) != 2 {
		t.Errorf("expected 2 subscriptions, got %d", len(result.Subscriptions))
	}
	got := names(result)
	if !got["Netflix"] || !got["Spotify"] {
		t.Errorf("expected Netflix and Spotify, got %v", got)
	}
	if got["Grocery Store"] {
		t.Error("Grocery Store should not be detected as subscription")
	}
}

func TestCLI_Totals(t *testing.T) {
	result := detectJSON(t, DetectParams{
		CommonParams: common(t, ""),
		File:         "simple-json:" + writeFile(t, "sample.json", sampleJSON),
	})

	if len(result.Totals) != 1 {
		t.Fatalf("expected one currency total, got %+v", result.Totals)
	}
	total := result.Totals[0]
	if total.Currency != "SEK" || total.Count != 2 {
		t.Errorf("unexpected total: %+v", total)
	}
	// Netflix 99 + Spotify 129
	if !total.MonthlyTotal.Equal(decimal.NewFromInt(228)) {
		t.Errorf("monthly total = %s, want 228", total.MonthlyTotal)
	}
	if !total.YearlyTotal.Equal(decimal.NewFromInt(2736)) {
		t.Errorf("yearly total = %s, want 2736", total.YearlyTotal)
	}
}

func TestCLI_ShowAll(t *testing.T) {
	out := detect(t, DetectParams{
		CommonParams: common(t, ""),
		File:         writeFile(t, "sample.json", sampleJSON),
		Show:         "all",
	})
	for _, want := range []string{"Showing: all", "Found 2 subscriptions", "Netflix", "Spotify"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_TagFilter(t *testing.T) {
	config := `
tags:
  Netflix: [entertainment]
  Spotify: [music]
`
	result := detectJSON(t, DetectParams{
		CommonParams: common(t, config),
		File:         writeFile(t, "sample.json", sampleJSON),
		Tags:         []string{"music"},
	})
	if len(result.Subscriptions) != 1 || result.Subscriptions[0].Name != "Spotify" {
		t.Errorf("expected only Spotify, got %+v", result.Subscriptions)
	}
	if tags := result.Subscriptions[0].Tags; len(tags) != 1 || tags[0] != "music" {
		t.Errorf("tags = %v", tags)
	}
}

func TestCLI_Exclusions(t *testing.T) {
	result := detectJSON(t, DetectParams{
		CommonParams: common(t, "exclude:\n  - netflix\n"),
		File:         writeFile(t, "sample.json", sampleJSON),
	})
	if got := names(result); got["Netflix"] || !got["Spotify"] {
		t.Errorf("netflix should be excluded, got %v", got)
	}
}

func TestCLI_Groups(t *testing.T) {
	data := `{"transactions": [
  {"date": "2024-01-10", "text": "GOOGLE *YouTube", "amount": -119},
  {"date": "2024-02-10", "text": "GOOGLE *YT Premium", "amount": -119},
  {"date": "2024-03-10", "text": "GOOGLE *YouTube", "amount": -119}
]}`
	config := `
groups:
  - name: YouTube Premium
    patterns: ["google \\*(youtube|yt)"]
`
	result := detectJSON(t, DetectParams{
		CommonParams: common(t, config),
		File:         writeFile(t, "yt.json", data),
	})
	if len(result.Subscriptions) != 1 || result.Subscriptions[0].Name != "YouTube Premium" {
		t.Errorf("expected one grouped subscription, got %+v", result.Subscriptions)
	}
}

func TestCLI_EmptyResult(t *testing.T) {
	data := `{"transactions": [{"date": "2024-01-03", "text": "Grocery Store", "amount": -10}]}`
	out := detect(t, DetectParams{
		CommonParams: common(t, ""),
		File:         writeFile(t, "one.json", data),
	})
	if !strings.Contains(out, "No subscriptions detected.") {
		t.Errorf("unexpected output: %s", out)
	}
}

// createTestXLSX creates a minimal Handelsbanken-format xlsx file
func createTestXLSX(t *testing.T, transactions [][]string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "export.xlsx")
	f := excelize.NewFile()
	sheet := f.GetSheetName(0)

	f.SetCellValue(sheet, "A1", "Reskontradatum")
	f.SetCellValue(sheet, "B1", "Text")
	f.SetCellValue(sheet, "C1", "Belopp")
	for i, tx := range transactions {
		row := i + 2
		f.SetCellValue(sheet, fmt.Sprintf("A%d", row), tx[0])
		f.SetCellValue(sheet, fmt.Sprintf("B%d", row), tx[1])
		f.SetCellValue(sheet, fmt.Sprintf("C%d", row), tx[2])
	}
	if err := f.SaveAs(path); err != nil {
		t.Fatalf("failed to create test xlsx: %v", err)
	}
	return path
}

func TestCLI_ImportXLSX(t *testing.T) {
	path := createTestXLSX(t, [][]string{
		{"2024-01-25", "HBO MAX", "-109,00"},
		{"2024-02-25", "HBO MAX", "-109,00"},
		{"2024-03-25", "HBO MAX", "-109,00"},
		{"2024-03-26", "BAKERY", "-45,50"},
	})

	var buf bytes.Buffer
	err := runImport(context.Background(), &buf, &ImportParams{
		CommonParams: common(t, ""),
		StoreParams:  StoreParams{User: "local"},
		InputParams:  InputParams{Currency: "SEK"},
		File:         path,
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	out := buf.String()
	if !strings.Contains(out, "Imported 4 transactions (0 skipped, 0 over limit)") || !strings.Contains(out, "1 new") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestCLI_ImportStatementText(t *testing.T) {
	statement := "03/01/2024 NETFLIX.COM $15.99\n04/01/2024 NETFLIX.COM $15.99\n04/02/2024 CORNER DELI $4.50\n"

	var buf bytes.Buffer
	err := runImport(context.Background(), &buf, &ImportParams{
		CommonParams: common(t, ""),
		StoreParams:  StoreParams{User: "local"},
		InputParams:  InputParams{Currency: "USD"},
		File:         writeFile(t, "statement.txt", statement),
	})
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	// the deli is not a known provider, so the default allowlist drops it
	if out := buf.String(); !strings.Contains(out, "Imported 2 transactions (1 skipped") {
		t.Errorf("unexpected output: %s", out)
	}
}

func TestCLI_Parse(t *testing.T) {
	statement := "15/03/2024 SPOTIFY AB 119.00\n16/03/2024 ICA SUPERMARKET 250.00 REF: A1B2\n"

	var buf bytes.Buffer
	err := runParse(context.Background(), &buf, &ParseParams{
		CommonParams: common(t, ""),
		InputParams:  InputParams{Currency: "SEK", DateFormat: "eu"},
		File:         writeFile(t, "statement.txt", statement),
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"2024-03-15", "SPOTIFY AB", "2024-03-16", "A1B2", "2 transactions, checked against"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestCLI_ParseErrors(t *testing.T) {
	ctx := context.Background()

	err := runParse(ctx, &bytes.Buffer{}, &ParseParams{
		CommonParams: common(t, ""),
		InputParams:  InputParams{Currency: "USD"},
		File:         writeFile(t, "empty.txt", "nothing here\n"),
	})
	if !errors.Is(err, internal.ErrNoTransactions) {
		t.Errorf("err = %v, want ErrNoTransactions", err)
	}

	err = runParse(ctx, &bytes.Buffer{}, &ParseParams{
		CommonParams: common(t, ""),
		File:         writeFile(t, "export.csv", "Date,Text,Amount\n"),
	})
	if err == nil || !strings.Contains(err.Error(), "imported directly") {
		t.Errorf("err = %v, want structured export refusal", err)
	}
}

func TestCLI_Add(t *testing.T) {
	var buf bytes.Buffer
	err := runAdd(context.Background(), &buf, &AddParams{
		CommonParams: common(t, ""),
		StoreParams:  StoreParams{User: "local"},
		Merchant:     "Netflix",
		Amount:       "15.99",
		Interval:     "monthly",
		Currency:     "USD",
		Guide:        "netflix",
		Next:         "2030-01-15",
	})
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if out := buf.String(); !strings.Contains(out, "Added Netflix: $15.99 monthly, next charge 2030-01-15") {
		t.Errorf("unexpected output: %s", out)
	}

	tests := []struct {
		name string
		p    AddParams
		err  error
	}{
		{"bad amount", AddParams{Merchant: "X", Amount: "abc", Interval: "monthly"}, internal.ErrInvalidAmount},
		{"negative amount", AddParams{Merchant: "X", Amount: "-1", Interval: "monthly"}, internal.ErrInvalidAmount},
		{"bad interval", AddParams{Merchant: "X", Amount: "1", Interval: "daily"}, internal.ErrInvalidInterval},
		{"bad date", AddParams{Merchant: "X", Amount: "1", Interval: "monthly", Next: "tomorrow"}, internal.ErrInvalidDate},
		{"unknown guide", AddParams{Merchant: "X", Amount: "1", Interval: "monthly", Guide: "hulu"}, internal.ErrGuideNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.p.CommonParams = common(t, "")
			tt.p.User = "local"
			if err := runAdd(context.Background(), &bytes.Buffer{}, &tt.p); !errors.Is(err, tt.err) {
				t.Errorf("err = %v, want %v", err, tt.err)
			}
		})
	}
}

func TestResolveSource(t *testing.T) {
	tests := []struct {
		flag, arg    string
		source, path string
	}{
		{"", "export.csv", "csv", "export.csv"},
		{"", "bank.XLSX", "xlsx", "bank.XLSX"},
		{"", "simple-json:data.txt", "simple-json", "data.txt"},
		{"statement", "simple-json:data.txt", "statement", "data.txt"},
		{"", "gs://bucket/statements/march.pdf", "", "gs://bucket/statements/march.pdf"},
		{"", "statement.txt", "", "statement.txt"},
		{"ocr", "scan.png", "ocr", "scan.png"},
	}
	for _, tt := range tests {
		source, path := resolveSource(tt.flag, tt.arg)
		if source != tt.source || path != tt.path {
			t.Errorf("resolveSource(%q, %q) = (%q, %q), want (%q, %q)", tt.flag, tt.arg, source, path, tt.source, tt.path)
		}
	}
}
