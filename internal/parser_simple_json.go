package internal

import (
	"encoding/json"
	"fmt"
	"io"
)

// SimpleJSONFormat is a minimal JSON format for importing transactions
// Example:
//
//	{
//	  "transactions": [
//	    {"date": "2025-01-15", "text": "Netflix", "amount": -15.99},
//	    {"date": "2025-02-15", "text": "NETFLIX.COM 866-579", "merchant": "Netflix", "amount": "-15.99"}
//	  ]
//	}
//
// This format is easy to convert to from any bank export or data source.
type SimpleJSONFormat struct {
	Transactions []SimpleJSONTransaction `json:"transactions"`
}

type SimpleJSONTransaction struct {
	Date     string      `json:"date"`               // any layout ParseRowDate accepts
	Text     string      `json:"text"`               // Payee/description
	Merchant string      `json:"merchant,omitempty"` // optional grouping name
	Amount   json.Number `json:"amount"`             // Negative for expenses, number or string
}

// UnmarshalJSON accepts the amount both as a JSON number and as a string.
func (t *SimpleJSONTransaction) UnmarshalJSON(data []byte) error {
	var raw struct {
		Date     string          `json:"date"`
		Text     string          `json:"text"`
		Merchant string          `json:"merchant"`
		Amount   json.RawMessage `json:"amount"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	t.Date, t.Text, t.Merchant = raw.Date, raw.Text, raw.Merchant

	if len(raw.Amount) == 0 || string(raw.Amount) == "null" {
		t.Amount = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(raw.Amount, &s); err == nil {
		t.Amount = json.Number(s)
		return nil
	}
	t.Amount = json.Number(raw.Amount)
	return nil
}

// ParseSimpleJSON parses a document in the simple JSON format
func ParseSimpleJSON(r io.Reader) ([]Row, error) {
	var jsonData SimpleJSONFormat
	if err := json.NewDecoder(r).Decode(&jsonData); err != nil {
		return nil, fmt.Errorf("parsing JSON: %w", err)
	}

	rows := make([]Row, 0, len(jsonData.Transactions))
	for _, tx := range jsonData.Transactions {
		rows = append(rows, Row{
			Date:        tx.Date,
			Amount:      tx.Amount.String(),
			Description: tx.Text,
			Merchant:    tx.Merchant,
		})
	}

	return rows, nil
}
