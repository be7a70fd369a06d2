package invoice

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// InvoiceType distinguishes the two statutory invoice categories
type InvoiceType string

const (
	Ordinary InvoiceType = "ordinary"
	Special  InvoiceType = "special"
)

// Label returns the short Chinese label clerks use for the type
func (t InvoiceType) Label() string {
	switch t {
	case Ordinary:
		return "普票"
	case Special:
		return "专票"
	default:
		return string(t)
	}
}

// FieldSet holds the fields extracted from one document. An empty string
// means the field is unknown.
type FieldSet struct {
	InvoiceType   InvoiceType
	Amount        string
	Category      string
	InvoiceNumber string
	// IsTripSheet marks an itinerary document; when set the other fields are unset
	IsTripSheet bool
}

// TripSheet returns the field set of a detected itinerary document
func TripSheet() FieldSet {
	return FieldSet{IsTripSheet: true}
}

// AllMissing reports whether no invoice field is known
func (f FieldSet) AllMissing() bool {
	return f.InvoiceType == "" && f.Amount == "" && f.Category == "" && f.InvoiceNumber == ""
}

// CriticalMissing reports whether the invoice number or the amount is unknown
func (f FieldSet) CriticalMissing() bool {
	return f.InvoiceNumber == "" || f.Amount == ""
}

// CoreMissing reports whether the invoice type or the category is unknown
func (f FieldSet) CoreMissing() bool {
	return f.InvoiceType == "" || f.Category == ""
}

// Complete reports whether every invoice field is known
func (f FieldSet) Complete() bool {
	return !f.CriticalMissing() && !f.CoreMissing()
}

type fieldSetJSON struct {
	InvoiceType   *string `json:"invoice_type"`
	Amount        *string `json:"amount"`
	Category      *string `json:"category"`
	InvoiceNumber *string `json:"invoice_number"`
	IsTripSheet   bool    `json:"is_trip_sheet"`
}

// MarshalJSON writes unknown fields as null
func (f FieldSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(fieldSetJSON{
		InvoiceType:   nullable(string(f.InvoiceType)),
		Amount:        nullable(f.Amount),
		Category:      nullable(f.Category),
		InvoiceNumber: nullable(f.InvoiceNumber),
		IsTripSheet:   f.IsTripSheet,
	})
}

// UnmarshalJSON reads null fields back as unknown
func (f *FieldSet) UnmarshalJSON(data []byte) error {
	var raw fieldSetJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*f = FieldSet{
		InvoiceType:   InvoiceType(deref(raw.InvoiceType)),
		Amount:        deref(raw.Amount),
		Category:      deref(raw.Category),
		InvoiceNumber: deref(raw.InvoiceNumber),
		IsTripSheet:   raw.IsTripSheet,
	}
	return nil
}

func nullable(s string) *string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	return &s
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// LogValue renders the field set as a log group
func (f FieldSet) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("invoice_type", string(f.InvoiceType)),
		slog.String("amount", f.Amount),
		slog.String("category", f.Category),
		slog.String("invoice_number", f.InvoiceNumber),
		slog.Bool("is_trip_sheet", f.IsTripSheet),
	)
}
