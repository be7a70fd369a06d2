package batch

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"

	"golang.org/x/sync/errgroup"

	"github.com/zombor/invoice-tracker/internal/dedup"
	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/reconcile"
	"github.com/zombor/invoice-tracker/internal/tripsheet"
)

const defaultWorkers = 4

// Extractor is the layered field extraction the processor drives in phases
type Extractor interface {
	Primary(ctx context.Context, doc document.Document) invoice.FieldSet
	HasFallback() bool
	Fallback(ctx context.Context, doc document.Document) invoice.FieldSet
}

// TripParser parses documents classified as trip sheets
type TripParser interface {
	Parse(ctx context.Context, doc document.Document) (*tripsheet.TripSheet, error)
}

// Sink receives documents as the sequential phase classifies them. Invoice
// returns the file name the accepted document was stored under.
type Sink interface {
	TripSheet(doc document.Document) error
	Duplicate(doc document.Document) error
	Invoice(doc document.Document) (string, error)
}

// Processor runs a batch through extraction, fallback, deduplication and
// reconciliation.
type Processor struct {
	extractor Extractor
	trips     TripParser
	sink      Sink
	workers   int
}

// Option configures a Processor
type Option func(*Processor)

// WithWorkers bounds the number of documents processed at the same time
func WithWorkers(n int) Option {
	return func(p *Processor) {
		if n > 0 {
			p.workers = n
		}
	}
}

// WithSink hands classified documents to s
func WithSink(s Sink) Option {
	return func(p *Processor) {
		p.sink = s
	}
}

// NewProcessor creates a Processor
func NewProcessor(extractor Extractor, trips TripParser, opts ...Option) *Processor {
	p := &Processor{
		extractor: extractor,
		trips:     trips,
		workers:   defaultWorkers,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run processes docs. Extraction and model calls run concurrently; every
// decision that depends on order runs afterwards over the results in input
// order. A failing document never affects the others.
func (p *Processor) Run(ctx context.Context, docs []document.Document) (*Result, error) {
	if len(docs) == 0 {
		return nil, ErrEmptyBatch
	}

	outcomes := make([]Outcome, len(docs))
	p.fanOut(len(docs), func(i int) {
		outcomes[i] = p.extract(ctx, docs[i])
	})

	var pending []int
	if p.extractor.HasFallback() {
		for i, o := range outcomes {
			if o.Err == nil && invoice.NeedsFallback(o.Fields) {
				slog.Info("Rule-based extraction incomplete, trying model fallback",
					"file", o.Document.Name,
					"fields", o.Fields,
				)
				pending = append(pending, i)
			}
		}
	}

	fallbacks := make([]invoice.FieldSet, len(pending))
	p.fanOut(len(pending), func(j int) {
		doc := docs[pending[j]]
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("Model fallback panicked", "file", doc.Name, "panic", rec)
			}
		}()
		fallbacks[j] = p.extractor.Fallback(ctx, doc)
	})
	for j, i := range pending {
		outcomes[i].Fields = invoice.Merge(outcomes[i].Fields, fallbacks[j])
	}

	return p.reduce(outcomes), nil
}

// fanOut runs fn for 0..n-1 on at most p.workers goroutines. Panics are
// recovered per call so siblings keep running.
func (p *Processor) fanOut(n int, fn func(i int)) {
	var g errgroup.Group
	g.SetLimit(p.workers)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			fn(i)
			return nil
		})
	}
	_ = g.Wait()
}

func (p *Processor) extract(ctx context.Context, doc document.Document) (out Outcome) {
	out = Outcome{Document: doc}
	defer func() {
		if rec := recover(); rec != nil {
			out.Err = fmt.Errorf("processing %s: panic: %v", doc.Name, rec)
		}
	}()

	out.Fields = p.extractor.Primary(ctx, doc)
	if !out.Fields.IsTripSheet {
		return out
	}

	sheet, err := p.trips.Parse(ctx, doc)
	if err != nil {
		slog.Error("Failed to parse trip sheet", "file", doc.Name, "error", err)
	}
	if sheet == nil {
		sheet = &tripsheet.TripSheet{FileName: doc.Name, Trips: []tripsheet.TripRecord{}}
	}
	out.TripSheet = sheet
	return out
}

// reduce classifies the outcomes in input order, then links trip sheets
func (p *Processor) reduce(outcomes []Outcome) *Result {
	result := &Result{Outcomes: outcomes}
	registry := dedup.NewRegistry()

	for i := range outcomes {
		o := &outcomes[i]
		doc := o.Document

		switch {
		case o.Err != nil:
			o.Kind = KindFailed
			slog.Error("Failed to process document", "file", doc.Name, "error", o.Err)

		case o.Fields.IsTripSheet:
			if err := p.toSink(func(s Sink) error { return s.TripSheet(doc) }); err != nil {
				o.Kind, o.Err = KindFailed, fmt.Errorf("storing trip sheet: %w", err)
				slog.Error("Failed to store trip sheet", "file", doc.Name, "error", err)
				continue
			}
			o.Kind = KindTripSheet
			result.TripSheets = append(result.TripSheets, o.TripSheet)
			slog.Info("Trip sheet detected", "file", doc.Name, "trips", len(o.TripSheet.Trips))

		case o.Fields.InvoiceNumber == "":
			o.Kind, o.Err = KindSkipped, ErrNoInvoiceNumber
			slog.Warn("No invoice number found, skipping document", "file", doc.Name, "fields", o.Fields)

		case registry.CheckAndRegister(o.Fields.InvoiceNumber):
			o.Kind = KindDuplicate
			slog.Info("Duplicate invoice number", "file", doc.Name, "invoice_number", o.Fields.InvoiceNumber)
			if err := p.toSink(func(s Sink) error { return s.Duplicate(doc) }); err != nil {
				slog.Error("Failed to store duplicate", "file", doc.Name, "error", err)
			}

		default:
			var name string
			err := p.toSink(func(s Sink) error {
				var err error
				name, err = s.Invoice(doc)
				return err
			})
			if err != nil {
				o.Kind, o.Err = KindFailed, fmt.Errorf("storing invoice: %w", err)
				slog.Error("Failed to store invoice", "file", doc.Name, "error", err)
				continue
			}
			o.Kind = KindInvoice
			result.Invoices = append(result.Invoices, &InvoiceRecord{
				Source:   doc,
				Fields:   o.Fields,
				FileName: name,
			})
		}
	}

	p.link(result)
	return result
}

func (p *Processor) toSink(fn func(Sink) error) error {
	if p.sink == nil {
		return nil
	}
	return fn(p.sink)
}

func (p *Processor) link(result *Result) {
	invoices := make([]reconcile.Invoice, len(result.Invoices))
	for i, rec := range result.Invoices {
		invoices[i] = reconcile.Invoice{ID: strconv.Itoa(i), Amount: rec.Fields.Amount}
	}
	sheets := make([]reconcile.Sheet, len(result.TripSheets))
	for i, sheet := range result.TripSheets {
		sheets[i] = reconcile.Sheet{ID: sheet.JSONName(), Total: sheet.TotalAmount}
	}

	matched := reconcile.Match(invoices, sheets)
	for _, l := range matched.Links {
		i, _ := strconv.Atoi(l.InvoiceID)
		result.Invoices[i].HasTripSheet = true
		result.Invoices[i].TripSheetFile = l.TripSheetID
	}
	result.Unmatched = matched.Unmatched
}
