package batch_test

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-tracker/internal/batch"
	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/files"
	"github.com/zombor/invoice-tracker/internal/invoice"
	"github.com/zombor/invoice-tracker/internal/pdftext"
	"github.com/zombor/invoice-tracker/internal/report"
	"github.com/zombor/invoice-tracker/internal/scanning"
	"github.com/zombor/invoice-tracker/internal/store"
	"github.com/zombor/invoice-tracker/internal/tripsheet"
)

// fakeReader serves canned text layers and tables by file name
type fakeReader struct {
	texts  map[string]string
	tables map[string][]pdftext.Table
}

func (f *fakeReader) Text(ctx context.Context, path string) (string, error) {
	return f.texts[filepath.Base(path)], nil
}

func (f *fakeReader) Tables(ctx context.Context, path string) ([]pdftext.Table, error) {
	return f.tables[filepath.Base(path)], nil
}

// MockScanner for testing
type MockScanner struct {
	mu          sync.Mutex
	invoiceData *scanning.InvoiceData
	types       []string
}

func (m *MockScanner) ScanInvoice(ctx context.Context, data []byte, contentType string) (*scanning.InvoiceData, error) {
	m.mu.Lock()
	m.types = append(m.types, contentType)
	m.mu.Unlock()
	return m.invoiceData, nil
}

func (m *MockScanner) Close() error {
	return nil
}

var _ = Describe("Integration", func() {
	var (
		tempDir   string
		inputDir  string
		organizer *files.Organizer
		scanner   *MockScanner
		reader    *fakeReader
		result    *batch.Result
		err       error
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		inputDir = filepath.Join(tempDir, "input")
		Expect(os.MkdirAll(inputDir, 0755)).To(Succeed())

		for _, name := range []string{"hotel.pdf", "copy.pdf", "didi.pdf", "scan.png"} {
			Expect(os.WriteFile(filepath.Join(inputDir, name), []byte("content of "+name), 0644)).To(Succeed())
		}

		hotel := "电子发票（普通发票） 发票号码：12345678 开票日期：2024年04月11日 *住宿服务*住宿费 价税合计（大写）壹佰玖拾捌圆整（小写）¥198.00"
		reader = &fakeReader{
			texts: map[string]string{
				"hotel.pdf": hotel,
				"copy.pdf":  hotel,
				"didi.pdf":  "滴滴出行 行程单 DIDI TRAVEL 行程起止日期：2024-04-11 至 2024-04-11 共1笔行程，合计198.00元",
			},
			tables: map[string][]pdftext.Table{
				"didi.pdf": {{
					{"序号", "服务商", "车型", "上车时间", "城市", "起点", "终点", "里程[公里]", "金额[元]"},
					{"1", "滴滴快车", "快车", "04-11 08:23 周四", "上海市", "虹桥火车站", "静安嘉里中心", "18.2", "198.00"},
				}},
			},
		}

		scanner = &MockScanner{
			invoiceData: &scanning.InvoiceData{
				InvoiceType:   "增值税专用发票",
				InvoiceNumber: "87654321",
				Category:      "*咨询服务*",
				Amount:        "600.00",
			},
		}

		organizer, err = files.NewOrganizer(files.Dirs{
			Output:     filepath.Join(tempDir, "output"),
			Duplicates: filepath.Join(tempDir, "duplicates"),
			TripSheets: filepath.Join(tempDir, "trip_sheets"),
		})
		Expect(err).NotTo(HaveOccurred())
	})

	JustBeforeEach(func() {
		docs, err := document.Discover(inputDir)
		Expect(err).NotTo(HaveOccurred())

		extractor := invoice.NewLayered(invoice.NewRuleExtractor(reader), invoice.NewModelExtractor(scanner))
		processor := batch.NewProcessor(extractor, tripsheet.NewParser(reader), batch.WithSink(organizer))
		result, err = processor.Run(context.Background(), docs)
		Expect(err).NotTo(HaveOccurred())
	})

	It("accepts the text invoice and the scanned one", func() {
		Expect(result.Invoices).To(HaveLen(2))
		numbers := []string{result.Invoices[0].Fields.InvoiceNumber, result.Invoices[1].Fields.InvoiceNumber}
		Expect(numbers).To(Equal([]string{"12345678", "87654321"}))
	})

	It("asks the model only about the image", func() {
		Expect(scanner.types).To(Equal([]string{"image/png"}))
		scanned := result.Invoices[1].Fields
		Expect(scanned.InvoiceType).To(Equal(invoice.Special))
		Expect(scanned.Category).To(Equal("*咨询服务*"))
	})

	It("links the trip sheet to the matching invoice", func() {
		hotel := result.Invoices[0]
		Expect(hotel.HasTripSheet).To(BeTrue())
		Expect(hotel.TripSheetFile).To(Equal("didi.json"))
		Expect(result.Invoices[1].HasTripSheet).To(BeFalse())
		Expect(result.TripSheets[0].Trips[0].Date).To(Equal("2024/04/11"))
		Expect(result.TripSheets[0].Trips[0].Destination).To(Equal("静安嘉里中心"))
	})

	It("sorts the files into their directories", func() {
		Expect(filepath.Join(tempDir, "duplicates", "hotel.pdf")).To(BeARegularFile())
		Expect(filepath.Join(tempDir, "trip_sheets", "didi.pdf")).To(BeARegularFile())
		for _, rec := range result.Invoices {
			Expect(filepath.Join(tempDir, "output", rec.FileName)).To(BeARegularFile())
		}
	})

	It("writes the JSON, spreadsheet and archive outputs", func() {
		path, err := organizer.WriteJSON(files.InvoiceDataFile, result.Invoices)
		Expect(err).NotTo(HaveOccurred())
		data, err := os.ReadFile(path)
		Expect(err).NotTo(HaveOccurred())
		var decoded []map[string]any
		Expect(json.Unmarshal(data, &decoded)).To(Succeed())
		Expect(decoded[0]).To(HaveKeyWithValue("has_trip_sheet", true))

		Expect(report.Write(organizer.Path("invoices.xlsx"), result.Invoices, result.TripSheets)).To(Succeed())

		archive, err := store.NewArchive(organizer.Path("run.db"))
		Expect(err).NotTo(HaveOccurred())
		defer archive.Close()
		Expect(archive.SaveResult(result)).To(Succeed())
		saved, err := archive.GetInvoice("87654321")
		Expect(err).NotTo(HaveOccurred())
		Expect(saved.FileName).To(Equal(result.Invoices[1].FileName))
	})
})
