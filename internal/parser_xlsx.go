package internal

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// ParseXLSX reads rows from the first sheet of a spreadsheet export.
// The header row is searched for, so banner rows above it are ignored.
// Handelsbanken exports work as is:
// - Regular account: Reskontradatum, Transaktionsdatum, Text, Belopp, Saldo
// - Credit card: Reskontradatum, Transaktionsdatum, Text, Belopp (may have empty first column)
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, fmt.Errorf("opening spreadsheet: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("no sheets found in file")
	}

	records, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("reading sheet: %w", err)
	}

	// Find header row and column indices
	var cols columns
	dataStartRow := -1
	for i, record := range records {
		if c, ok := findColumns(record); ok {
			cols = c
			dataStartRow = i + 1
			break
		}
	}
	if dataStartRow < 0 {
		return nil, fmt.Errorf("could not find required columns (date, amount, description)")
	}

	var rows []Row
	for _, record := range records[dataStartRow:] {
		if isBlankRecord(record) {
			continue
		}
		rows = append(rows, cols.row(record))
	}

	return rows, nil
}
