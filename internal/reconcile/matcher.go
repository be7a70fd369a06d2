package reconcile

import (
	"log/slog"
	"regexp"

	"github.com/shopspring/decimal"
)

// Tolerance is the largest amount difference still treated as equal
var Tolerance = decimal.RequireFromString("0.01")

var nonNumeric = regexp.MustCompile(`[^0-9.]+`)

// Invoice is an accepted invoice record as seen by the matcher
type Invoice struct {
	ID     string
	Amount string
}

// Sheet is a parsed trip sheet as seen by the matcher
type Sheet struct {
	ID    string
	Total decimal.NullDecimal
}

// Link associates a trip sheet with the invoice it pays for
type Link struct {
	InvoiceID   string
	TripSheetID string
}

// Result lists the links made and the trip sheets left without one
type Result struct {
	Links     []Link
	Unmatched []string
}

// LinkFor returns the link of an invoice, if any
func (r Result) LinkFor(invoiceID string) (Link, bool) {
	for _, l := range r.Links {
		if l.InvoiceID == invoiceID {
			return l, true
		}
	}
	return Link{}, false
}

// ParseAmount reads an invoice amount leniently, dropping everything but
// digits and dots.
func ParseAmount(s string) (decimal.Decimal, bool) {
	cleaned := nonNumeric.ReplaceAllString(s, "")
	if cleaned == "" {
		return decimal.Decimal{}, false
	}
	d, err := decimal.NewFromString(cleaned)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

// Matches reports whether an invoice amount and a trip sheet total are equal
// within Tolerance.
func Matches(amount, total decimal.Decimal) bool {
	return amount.Sub(total).Abs().LessThan(Tolerance)
}

// Match links every trip sheet with a total to the first invoice, in
// acceptance order, whose amount matches it. Sheets are handled in order. An
// invoice keeps at most one link: a later sheet matching an already linked
// invoice takes the link over and the earlier sheet becomes unmatched.
func Match(invoices []Invoice, sheets []Sheet) Result {
	amounts := make([]decimal.Decimal, len(invoices))
	valid := make([]bool, len(invoices))
	for i, inv := range invoices {
		amounts[i], valid[i] = ParseAmount(inv.Amount)
	}

	linkedBy := make(map[string]string)
	var order []string
	var unmatched []string

	for _, sheet := range sheets {
		if !sheet.Total.Valid {
			continue
		}
		found := false
		for i, inv := range invoices {
			if !valid[i] || !Matches(amounts[i], sheet.Total.Decimal) {
				continue
			}
			if previous, ok := linkedBy[inv.ID]; ok {
				slog.Warn("Trip sheet link replaced by a later trip sheet",
					"invoice", inv.ID,
					"previous", previous,
					"trip_sheet", sheet.ID,
				)
				unmatched = append(unmatched, previous)
			} else {
				order = append(order, inv.ID)
			}
			linkedBy[inv.ID] = sheet.ID
			found = true
			break
		}
		if !found {
			slog.Warn("No invoice matches trip sheet total",
				"trip_sheet", sheet.ID,
				"total_amount", sheet.Total.Decimal.String(),
			)
			unmatched = append(unmatched, sheet.ID)
		}
	}

	result := Result{Unmatched: unmatched}
	for _, id := range order {
		result.Links = append(result.Links, Link{InvoiceID: id, TripSheetID: linkedBy[id]})
	}
	return result
}
