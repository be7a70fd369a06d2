package report

import (
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/xuri/excelize/v2"

	"github.com/zombor/invoice-tracker/internal/batch"
	"github.com/zombor/invoice-tracker/internal/tripsheet"
)

const (
	invoiceSheet = "Invoices"
	tripSheet    = "Trips"
	totalLabel   = "总计"
)

var (
	invoiceHeaders = []string{"发票类型", "金额", "类别", "发票号码", "新文件名"}
	tripHeaders    = []string{"行程单", "日期", "起点", "终点", "金额"}
)

// Write saves an XLSX workbook with one row per invoice and a total row,
// plus a sheet listing every trip of every trip sheet.
func Write(path string, invoices []*batch.InvoiceRecord, sheets []*tripsheet.TripSheet) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", invoiceSheet); err != nil {
		return fmt.Errorf("naming sheet: %w", err)
	}
	writeRow(f, invoiceSheet, 1, toAny(invoiceHeaders))

	row := 2
	for _, rec := range invoices {
		writeRow(f, invoiceSheet, row, []any{
			rec.Fields.InvoiceType.Label(),
			amountValue(rec.Fields.Amount),
			rec.Fields.Category,
			rec.Fields.InvoiceNumber,
			rec.FileName,
		})
		row++
	}
	if len(invoices) > 0 {
		totalRow := row
		_ = f.SetCellValue(invoiceSheet, cellName(1, totalRow), totalLabel)
		formula := fmt.Sprintf("SUM(B2:B%d)", totalRow-1)
		if err := f.SetCellFormula(invoiceSheet, cellName(2, totalRow), formula); err != nil {
			return fmt.Errorf("setting total formula: %w", err)
		}
	}
	_ = f.SetColWidth(invoiceSheet, "A", "A", 10)
	_ = f.SetColWidth(invoiceSheet, "B", "B", 12)
	_ = f.SetColWidth(invoiceSheet, "C", "C", 24)
	_ = f.SetColWidth(invoiceSheet, "D", "D", 24)
	_ = f.SetColWidth(invoiceSheet, "E", "E", 40)

	if len(sheets) > 0 {
		if _, err := f.NewSheet(tripSheet); err != nil {
			return fmt.Errorf("creating trip sheet: %w", err)
		}
		writeRow(f, tripSheet, 1, toAny(tripHeaders))
		row = 2
		for _, sheet := range sheets {
			for _, trip := range sheet.Trips {
				var amount any
				if trip.Amount.Valid {
					amount = trip.Amount.Decimal.InexactFloat64()
				}
				writeRow(f, tripSheet, row, []any{sheet.FileName, trip.Date, trip.Origin, trip.Destination, amount})
				row++
			}
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("xlsx write: %w", err)
	}
	return nil
}

// amountValue returns the amount as a number, or nil when it is not a plain decimal
func amountValue(s string) any {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil
	}
	return d.InexactFloat64()
}

func writeRow(f *excelize.File, sheet string, row int, values []any) {
	for i, v := range values {
		if v == nil {
			continue
		}
		_ = f.SetCellValue(sheet, cellName(i+1, row), v)
	}
}

func cellName(col, row int) string {
	name, _ := excelize.CoordinatesToCellName(col, row)
	return name
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
