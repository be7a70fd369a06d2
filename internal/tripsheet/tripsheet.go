package tripsheet

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/pdftext"
)

// TripRecord is one ride listed on an itinerary
type TripRecord struct {
	Date        string              `json:"date"`
	Origin      string              `json:"origin"`
	Destination string              `json:"destination"`
	Amount      decimal.NullDecimal `json:"amount"`
}

// TripSheet is the parsed form of an itinerary document
type TripSheet struct {
	FileName    string              `json:"file_name"`
	TotalAmount decimal.NullDecimal `json:"total_amount"`
	Trips       []TripRecord        `json:"trips"`
}

// JSONName returns the file name the parsed sheet is written under
func (s *TripSheet) JSONName() string {
	return strings.TrimSuffix(s.FileName, filepath.Ext(s.FileName)) + ".json"
}

var (
	totalRegex     = regexp.MustCompile(`合计\s*([0-9]+(?:\.[0-9]{1,2})?)\s*元`)
	yearRegex      = regexp.MustCompile(`行程起止日期[:：]\s*([0-9]{4})-`)
	datePartRegex  = regexp.MustCompile(`^(\d{2})-(\d{2})`)
	currencyRegex  = regexp.MustCompile(`[元¥￥,]`)
	rowAmountRegex = regexp.MustCompile(`[0-9]+(?:\.[0-9]{1,2})?`)
)

const (
	headerLabel      = "上车时间"
	originLabel      = "起点"
	destinationLabel = "终点"
	amountLabel      = "金额"

	defaultDateCol   = 2
	defaultOriginCol = 5
	defaultAmountCol = 8
)

// Parser recovers trip records from itinerary documents
type Parser struct {
	source pdftext.Source
	now    func() time.Time
}

// NewParser creates a Parser reading documents through source
func NewParser(source pdftext.Source) *Parser {
	return &Parser{source: source, now: time.Now}
}

// WithClock replaces the clock used for the default reference year
func (p *Parser) WithClock(now func() time.Time) *Parser {
	p.now = now
	return p
}

// Parse reads the document text for the total and the reference year, then
// collects the trips of every table that has a boarding time header. A
// missing total is not an error.
func (p *Parser) Parse(ctx context.Context, doc document.Document) (*TripSheet, error) {
	sheet := &TripSheet{FileName: doc.Name, Trips: []TripRecord{}}

	text, err := p.source.Text(ctx, doc.Path)
	if err != nil {
		return sheet, fmt.Errorf("reading trip sheet text: %w", err)
	}
	sheet.TotalAmount = ParseTotal(text)

	tables, err := p.source.Tables(ctx, doc.Path)
	if err != nil {
		return sheet, fmt.Errorf("reading trip sheet tables: %w", err)
	}

	year := ReferenceYear(text, p.now())
	for _, table := range tables {
		sheet.Trips = append(sheet.Trips, TripsFromTable(table, year)...)
	}
	return sheet, nil
}

// ParseTotal finds the "合计 N 元" summary amount
func ParseTotal(text string) decimal.NullDecimal {
	m := totalRegex.FindStringSubmatch(text)
	if m == nil {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(m[1])
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// ReferenceYear takes the year from the trip date range label, defaulting to
// the year of now.
func ReferenceYear(text string, now time.Time) string {
	if m := yearRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return strconv.Itoa(now.Year())
}

// NormalizeDate turns a cell like "04-11 08:23" into "2024/04/11". It
// returns false when the cell does not start with a MM-DD token.
func NormalizeDate(cell, year string) (string, bool) {
	fields := strings.Fields(cell)
	if len(fields) == 0 {
		return "", false
	}
	m := datePartRegex.FindStringSubmatch(fields[0])
	if m == nil {
		return "", false
	}
	return year + "/" + m[1] + "/" + m[2], true
}

type columns struct {
	date, origin, destination, amount int
}

func findColumn(header []string, label string) int {
	for i, cell := range header {
		if strings.Contains(cell, label) {
			return i
		}
	}
	return -1
}

func resolveColumns(header []string) columns {
	cols := columns{
		date:   findColumn(header, headerLabel),
		origin: findColumn(header, originLabel),
		amount: findColumn(header, amountLabel),
	}
	if cols.date < 0 {
		cols.date = defaultDateCol
	}
	if cols.origin < 0 {
		cols.origin = defaultOriginCol
	}
	if cols.destination = findColumn(header, destinationLabel); cols.destination < 0 {
		cols.destination = cols.origin + 1
	}
	if cols.amount < 0 {
		cols.amount = defaultAmountCol
	}
	return cols
}

func cell(row []string, i int) string {
	if i < 0 || i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

func parseRowAmount(s string) decimal.NullDecimal {
	m := rowAmountRegex.FindString(currencyRegex.ReplaceAllString(s, ""))
	if m == "" {
		return decimal.NullDecimal{}
	}
	d, err := decimal.NewFromString(m)
	if err != nil {
		return decimal.NullDecimal{}
	}
	return decimal.NewNullDecimal(d)
}

// TripsFromTable extracts the trips listed below the boarding time header.
// Only rows numbered in the first cell count; rows without a date are dropped.
func TripsFromTable(table pdftext.Table, year string) []TripRecord {
	headerIdx := -1
	for i, row := range table {
		if findColumn(row, headerLabel) >= 0 {
			headerIdx = i
			break
		}
	}
	if headerIdx < 0 {
		return nil
	}
	cols := resolveColumns(table[headerIdx])

	var trips []TripRecord
	for _, row := range table[headerIdx+1:] {
		first := cell(row, 0)
		if first == "" {
			continue
		}
		if _, err := strconv.Atoi(first); err != nil {
			continue
		}

		date, ok := NormalizeDate(cell(row, cols.date), year)
		if !ok {
			continue
		}

		trip := TripRecord{
			Date:        date,
			Origin:      cell(row, cols.origin),
			Destination: cell(row, cols.destination),
			Amount:      parseRowAmount(cell(row, cols.amount)),
		}
		if trip.Origin == "" && trip.Destination == "" && !trip.Amount.Valid {
			continue
		}
		trips = append(trips, trip)
	}
	return trips
}
