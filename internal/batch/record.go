package batch

import (
	"encoding/json"
	"errors"

	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/tripsheet"
)

var (
	// ErrEmptyBatch is returned when a batch has no documents at all
	ErrEmptyBatch = errors.New("batch has no documents")
	// ErrNoInvoiceNumber marks an invoice that cannot be deduplicated or reconciled
	ErrNoInvoiceNumber = errors.New("no invoice number")
)

// Kind classifies what the batch did with a document
type Kind string

const (
	KindInvoice   Kind = "invoice"
	KindDuplicate Kind = "duplicate"
	KindTripSheet Kind = "trip_sheet"
	KindSkipped   Kind = "skipped"
	KindFailed    Kind = "failed"
)

// Outcome is the result for one document, kept in input order
type Outcome struct {
	Document  document.Document
	Kind      Kind
	Fields    invoice.FieldSet
	TripSheet *tripsheet.TripSheet
	Err       error
}

// InvoiceRecord is one accepted, non-duplicate invoice
type InvoiceRecord struct {
	Source        document.Document
	Fields        invoice.FieldSet
	FileName      string
	HasTripSheet  bool
	TripSheetFile string
}

// MarshalJSON flattens the fields and the output bookkeeping into one object
func (r InvoiceRecord) MarshalJSON() ([]byte, error) {
	fields, err := json.Marshal(r.Fields)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(fields, &out); err != nil {
		return nil, err
	}
	if r.FileName != "" {
		out["file_name"] = r.FileName
	}
	if r.HasTripSheet {
		out["has_trip_sheet"] = true
		out["trip_sheet_file"] = r.TripSheetFile
	}
	return json.Marshal(out)
}

// UnmarshalJSON reads a record written by MarshalJSON
func (r *InvoiceRecord) UnmarshalJSON(data []byte) error {
	var aux struct {
		FileName      string `json:"file_name"`
		HasTripSheet  bool   `json:"has_trip_sheet"`
		TripSheetFile string `json:"trip_sheet_file"`
	}
	if err := json.Unmarshal(data, &aux); err != nil {
		return err
	}
	if err := json.Unmarshal(data, &r.Fields); err != nil {
		return err
	}
	r.FileName = aux.FileName
	r.HasTripSheet = aux.HasTripSheet
	r.TripSheetFile = aux.TripSheetFile
	return nil
}

// Result is the outcome of a whole batch
type Result struct {
	// Outcomes has one entry per input document, in input order
	Outcomes []Outcome
	// Invoices are the accepted records, in acceptance order
	Invoices []*InvoiceRecord
	// TripSheets are the parsed itineraries, in input order
	TripSheets []*tripsheet.TripSheet
	// Unmatched names the JSON files of trip sheets linked to no invoice
	Unmatched []string
}

// Count returns the number of outcomes of kind k
func (r *Result) Count(k Kind) int {
	n := 0
	for _, o := range r.Outcomes {
		if o.Kind == k {
			n++
		}
	}
	return n
}
