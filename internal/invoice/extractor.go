package invoice

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

// Extractor produces a field set for one document
type Extractor interface {
	Extract(ctx context.Context, doc document.Document) (FieldSet, error)
}

// TextReader reads the text layer of a PDF
type TextReader interface {
	Text(ctx context.Context, path string) (string, error)
}

// RuleExtractor applies the text rules to the document's text layer
type RuleExtractor struct {
	text TextReader
}

// NewRuleExtractor creates a RuleExtractor reading text through r
func NewRuleExtractor(r TextReader) *RuleExtractor {
	return &RuleExtractor{text: r}
}

// Extract reads the text layer and runs the rules. Images carry no text
// layer and always yield an empty field set.
func (e *RuleExtractor) Extract(ctx context.Context, doc document.Document) (FieldSet, error) {
	if !doc.IsPDF() {
		return FieldSet{}, nil
	}
	text, err := e.text.Text(ctx, doc.Path)
	if err != nil {
		return FieldSet{}, fmt.Errorf("reading text layer: %w", err)
	}
	return ExtractText(text, doc.Name), nil
}

// ModelExtractor asks a vision model for the fields of the document's first page
type ModelExtractor struct {
	scanner scanning.Scanner
}

// NewModelExtractor creates a ModelExtractor backed by scanner
func NewModelExtractor(scanner scanning.Scanner) *ModelExtractor {
	return &ModelExtractor{scanner: scanner}
}

// Extract sends the document to the scanner and normalizes the invoice type
func (e *ModelExtractor) Extract(ctx context.Context, doc document.Document) (FieldSet, error) {
	data, err := doc.Read()
	if err != nil {
		return FieldSet{}, err
	}

	result, err := e.scanner.ScanInvoice(ctx, data, doc.ContentType)
	if err != nil {
		return FieldSet{}, fmt.Errorf("scanning invoice: %w", err)
	}
	if result == nil {
		return FieldSet{}, scanning.ErrRefused
	}

	invoiceType, ok := NormalizeType(result.InvoiceType)
	if !ok {
		slog.Warn("Model returned an unrecognized invoice type, keeping it as-is",
			"file", doc.Name,
			"invoice_type", result.InvoiceType,
		)
	}

	return FieldSet{
		InvoiceType:   invoiceType,
		Amount:        result.Amount,
		Category:      result.Category,
		InvoiceNumber: result.InvoiceNumber,
	}, nil
}

// Layered runs a primary extractor and fills its gaps from a fallback one
type Layered struct {
	primary  Extractor
	fallback Extractor
}

// NewLayered composes primary with fallback. A nil fallback disables the second pass.
func NewLayered(primary, fallback Extractor) *Layered {
	return &Layered{primary: primary, fallback: fallback}
}

// HasFallback reports whether a fallback extractor is configured
func (l *Layered) HasFallback() bool {
	return l.fallback != nil
}

// Primary runs the primary extractor. Failures are logged and yield an
// empty field set, which in turn triggers the fallback.
func (l *Layered) Primary(ctx context.Context, doc document.Document) FieldSet {
	fields, err := l.primary.Extract(ctx, doc)
	if err != nil {
		slog.Error("Failed to extract invoice fields", "file", doc.Name, "error", err)
		return FieldSet{}
	}
	return fields
}

// Fallback runs the fallback extractor. Failures are logged and yield an empty field set.
func (l *Layered) Fallback(ctx context.Context, doc document.Document) FieldSet {
	if l.fallback == nil {
		return FieldSet{}
	}
	fields, err := l.fallback.Extract(ctx, doc)
	if err != nil {
		logFallbackError(doc, err)
		return FieldSet{}
	}
	slog.Info("Fallback extraction finished", "file", doc.Name, "fields", fields)
	return fields
}

// Extract runs the whole layered path for a single document
func (l *Layered) Extract(ctx context.Context, doc document.Document) (FieldSet, error) {
	fields := l.Primary(ctx, doc)
	if !l.HasFallback() || !NeedsFallback(fields) {
		return fields, nil
	}
	slog.Info("Rule-based extraction incomplete, trying model fallback", "file", doc.Name, "fields", fields)
	return Merge(fields, l.Fallback(ctx, doc)), nil
}

func logFallbackError(doc document.Document, err error) {
	switch {
	case errors.Is(err, scanning.ErrMissingCredential):
		slog.Error("Model fallback skipped: no credential configured",
			"file", doc.Name,
			"hint", "set GEMINI_API_KEY or pass --gemini-key",
		)
	case errors.Is(err, scanning.ErrRender):
		slog.Error("Model fallback skipped: could not render the first page",
			"file", doc.Name,
			"error", err,
			"hint", "check that the PDF opens in a viewer; rendering uses the bundled MuPDF library",
		)
	default:
		slog.Error("Model fallback failed", "file", doc.Name, "error", err)
	}
}
