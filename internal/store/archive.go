package store

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"time"

	"go.etcd.io/bbolt"

	"github.com/zombor/invoice-tracker/internal/batch"
	"github.com/zombor/invoice-tracker/internal/tripsheet"
)

const (
	invoiceBucket   = "invoices"
	tripSheetBucket = "trip_sheets"
	outcomeBucket   = "outcomes"
)

// OutcomeEntry is the archived summary of one document
type OutcomeEntry struct {
	File  string     `json:"file"`
	Kind  batch.Kind `json:"kind"`
	Error string     `json:"error,omitempty"`
}

// Archive is a per-run BoltDB file holding the records a run produced
type Archive struct {
	db *bbolt.DB
}

// NewArchive creates a fresh archive at path, replacing any previous one
func NewArchive(path string) (*Archive, error) {
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("removing previous archive: %w", err)
	}

	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		for _, name := range []string{invoiceBucket, tripSheetBucket, outcomeBucket} {
			if _, err := tx.CreateBucketIfNotExists([]byte(name)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &Archive{db: db}, nil
}

// SaveResult stores every outcome, invoice record and trip sheet of a batch
// in one transaction.
func (a *Archive) SaveResult(result *batch.Result) error {
	return a.db.Update(func(tx *bbolt.Tx) error {
		outcomes := tx.Bucket([]byte(outcomeBucket))
		for i, o := range result.Outcomes {
			entry := OutcomeEntry{File: o.Document.Name, Kind: o.Kind}
			if o.Err != nil {
				entry.Error = o.Err.Error()
			}
			if err := put(outcomes, fmt.Sprintf("%06d", i), entry); err != nil {
				return fmt.Errorf("storing outcome: %w", err)
			}
		}

		invoices := tx.Bucket([]byte(invoiceBucket))
		for _, rec := range result.Invoices {
			if err := put(invoices, rec.Fields.InvoiceNumber, rec); err != nil {
				return fmt.Errorf("storing invoice: %w", err)
			}
		}

		sheets := tx.Bucket([]byte(tripSheetBucket))
		for _, sheet := range result.TripSheets {
			if err := put(sheets, sheet.JSONName(), sheet); err != nil {
				return fmt.Errorf("storing trip sheet: %w", err)
			}
		}
		return nil
	})
}

func put(bucket *bbolt.Bucket, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshaling %s: %w", key, err)
	}
	return bucket.Put([]byte(key), data)
}

// GetInvoice retrieves an invoice record by invoice number
func (a *Archive) GetInvoice(number string) (*batch.InvoiceRecord, error) {
	var rec *batch.InvoiceRecord
	err := a.db.View(func(tx *bbolt.Tx) error {
		data := tx.Bucket([]byte(invoiceBucket)).Get([]byte(number))
		if data == nil {
			return fmt.Errorf("invoice not found: %s", number)
		}
		return json.Unmarshal(data, &rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// ListInvoices returns all invoice records ordered by invoice number
func (a *Archive) ListInvoices() ([]*batch.InvoiceRecord, error) {
	records := make([]*batch.InvoiceRecord, 0)
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(invoiceBucket)).ForEach(func(k, v []byte) error {
			var rec batch.InvoiceRecord
			if err := json.Unmarshal(v, &rec); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			records = append(records, &rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return records, nil
}

// ListTripSheets returns all trip sheets ordered by JSON file name
func (a *Archive) ListTripSheets() ([]*tripsheet.TripSheet, error) {
	sheets := make([]*tripsheet.TripSheet, 0)
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(tripSheetBucket)).ForEach(func(k, v []byte) error {
			var sheet tripsheet.TripSheet
			if err := json.Unmarshal(v, &sheet); err != nil {
				return fmt.Errorf("unmarshaling trip sheet: %w", err)
			}
			sheets = append(sheets, &sheet)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return sheets, nil
}

// ListOutcomes returns the document outcomes in input order
func (a *Archive) ListOutcomes() ([]OutcomeEntry, error) {
	entries := make([]OutcomeEntry, 0)
	err := a.db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket([]byte(outcomeBucket)).ForEach(func(k, v []byte) error {
			var entry OutcomeEntry
			if err := json.Unmarshal(v, &entry); err != nil {
				return fmt.Errorf("unmarshaling outcome: %w", err)
			}
			entries = append(entries, entry)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return entries, nil
}

// Close closes the database connection
func (a *Archive) Close() error {
	return a.db.Close()
}
