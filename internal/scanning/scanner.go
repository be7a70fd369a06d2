package scanning

import (
	"context"
	"errors"
	"fmt"
)

var (
	// ErrUnavailable is the family of failures that leave the model fallback without a result
	ErrUnavailable = errors.New("ocr unavailable")
	// ErrMissingCredential is a configuration error detected before any network call
	ErrMissingCredential = fmt.Errorf("%w: model credential is missing", ErrUnavailable)
	// ErrRender means the first page could not be turned into an image
	ErrRender = fmt.Errorf("%w: page rasterization failed", ErrUnavailable)
	// ErrRefused means the model answered without usable content
	ErrRefused = fmt.Errorf("%w: model refused or returned no content", ErrUnavailable)
)

// InvoiceData contains the fields a vision model read from an invoice.
// Empty strings are fields the model could not find.
type InvoiceData struct {
	InvoiceType   string `json:"invoice_type"`
	InvoiceNumber string `json:"invoice_number"`
	Category      string `json:"category"`
	Amount        string `json:"amount"`
}

// Scanner defines the interface for model-backed invoice extraction
type Scanner interface {
	// ScanInvoice renders the document's first page and extracts invoice fields
	ScanInvoice(ctx context.Context, data []byte, contentType string) (*InvoiceData, error)
	// Close closes the scanner and releases resources
	Close() error
}

// Unavailable is a Scanner that fails every call with Err without touching the network
type Unavailable struct {
	Err error
}

// ScanInvoice returns the configured error
func (u Unavailable) ScanInvoice(ctx context.Context, data []byte, contentType string) (*InvoiceData, error) {
	if u.Err == nil {
		return nil, ErrUnavailable
	}
	return nil, u.Err
}

// Close is a no-op
func (u Unavailable) Close() error {
	return nil
}
