package internal

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
)

// headerAliases maps accepted header names (lower-case) to row fields.
// The Swedish names cover Handelsbanken account and card exports.
var headerAliases = map[string]string{
	"date":              "date",
	"transaction date":  "date",
	"posted date":       "date",
	"reskontradatum":    "date",
	"transaktionsdatum": "date",
	"amount":            "amount",
	"belopp":            "amount",
	"description":       "description",
	"text":              "description",
	"memo":              "description",
	"payee":             "description",
	"merchant":          "merchant",
	"merchant name":     "merchant",
}

// columns holds the index of each row field in a header, -1 if absent.
type columns struct {
	date, amount, description, merchant int
	commaDecimal                        bool // amounts use "," as decimal separator
}

// findColumns maps a header row. The first alias seen for a field wins.
func findColumns(header []string) (columns, bool) {
	c := columns{date: -1, amount: -1, description: -1, merchant: -1}
	for i, cell := range header {
		name := strings.ToLower(strings.TrimSpace(cell))
		switch headerAliases[name] {
		case "date":
			if c.date < 0 {
				c.date = i
			}
		case "amount":
			if c.amount < 0 {
				c.amount = i
				c.commaDecimal = name == "belopp"
			}
		case "description":
			if c.description < 0 {
				c.description = i
			}
		case "merchant":
			if c.merchant < 0 {
				c.merchant = i
			}
		}
	}
	return c, c.date >= 0 && c.amount >= 0 && c.description >= 0
}

func (c columns) row(record []string) Row {
	cell := func(i int) string {
		if i < 0 || i >= len(record) {
			return ""
		}
		return strings.TrimSpace(record[i])
	}

	amount := cell(c.amount)
	if c.commaDecimal {
		amount = strings.ReplaceAll(strings.ReplaceAll(amount, " ", ""), ",", ".")
	}

	return Row{
		Date:        cell(c.date),
		Amount:      amount,
		Description: strings.TrimPrefix(cell(c.description), "Prel "), // pending card rows
		Merchant:    cell(c.merchant),
	}
}

// ParseCSV reads a header-driven CSV export with columns date, amount,
// description and optionally merchant. Header names are case-insensitive and
// blank lines are skipped. Rows are returned unvalidated.
func ParseCSV(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, fmt.Errorf("reading CSV header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	cols, ok := findColumns(header)
	if !ok {
		return nil, fmt.Errorf("could not find required columns (date, amount, description) in header %v", header)
	}

	var rows []Row
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reading CSV: %w", err)
		}
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, cols.row(record))
	}

	return rows, nil
}

func isBlankRecord(record []string) bool {
	for _, f := range record {
		if strings.TrimSpace(f) != "" {
			return false
		}
	}
	return true
}
