package models

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
)

// LineItem is one billed row on an estimate or invoice.
type LineItem struct {
	Description string `json:"description"`
	Quantity    int    `json:"quantity"`
	UnitCents   int64  `json:"unit_cents"`
	TotalCents  int64  `json:"total_cents"`
}

// LineItems stores a slice of line items as a single jsonb column.
type LineItems []LineItem

// Value implements the driver.Valuer interface
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return json.Marshal([]LineItem{})
	}
	return json.Marshal(l)
}

// Scan implements the sql.Scanner interface
func (l *LineItems) Scan(value interface{}) error {
	if value == nil {
		*l = nil
		return nil
	}
	bytes, ok := value.([]byte)
	if !ok {
		return errors.New("line items: unsupported column type")
	}
	return json.Unmarshal(bytes, l)
}

// Sum adds up the line totals.
func (l LineItems) Sum() int64 {
	var total int64
	for _, item := range l {
		total += item.TotalCents
	}
	return total
}
