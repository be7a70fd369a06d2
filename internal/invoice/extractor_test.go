package invoice

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/invoice-tracker/internal/document"
	"github.com/zombor/invoice-tracker/internal/scanning"
)

type mockTextReader struct {
	text  string
	err   error
	calls int
}

func (m *mockTextReader) Text(ctx context.Context, path string) (string, error) {
	m.calls++
	return m.text, m.err
}

type mockScanner struct {
	data        *scanning.InvoiceData
	err         error
	contentType string
}

func (m *mockScanner) ScanInvoice(ctx context.Context, data []byte, contentType string) (*scanning.InvoiceData, error) {
	m.contentType = contentType
	return m.data, m.err
}

func (m *mockScanner) Close() error {
	return nil
}

type mockExtractor struct {
	fields FieldSet
	err    error
	calls  int
}

func (m *mockExtractor) Extract(ctx context.Context, doc document.Document) (FieldSet, error) {
	m.calls++
	return m.fields, m.err
}

var _ = Describe("RuleExtractor", func() {
	var reader *mockTextReader

	BeforeEach(func() {
		reader = &mockTextReader{text: "普通发票 发票号码：12345678"}
	})

	It("runs the rules over the text layer", func() {
		fields, err := NewRuleExtractor(reader).Extract(context.Background(), document.New("/in/a.pdf"))
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.InvoiceNumber).To(Equal("12345678"))
		Expect(fields.InvoiceType).To(Equal(Ordinary))
	})

	It("returns nothing for images without reading them", func() {
		fields, err := NewRuleExtractor(reader).Extract(context.Background(), document.New("/in/a.jpg"))
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.AllMissing()).To(BeTrue())
		Expect(reader.calls).To(BeZero())
	})

	It("wraps text layer errors", func() {
		reader.err = errors.New("broken xref")
		_, err := NewRuleExtractor(reader).Extract(context.Background(), document.New("/in/a.pdf"))
		Expect(err).To(MatchError(ContainSubstring("reading text layer: broken xref")))
	})
})

var _ = Describe("ModelExtractor", func() {
	var (
		scanner *mockScanner
		doc     document.Document
	)

	BeforeEach(func() {
		path := filepath.Join(GinkgoT().TempDir(), "scan.heic")
		Expect(os.WriteFile(path, []byte("heic bytes"), 0644)).To(Succeed())
		doc = document.New(path)
		scanner = &mockScanner{data: &scanning.InvoiceData{
			InvoiceType:   "增值税专用发票",
			InvoiceNumber: "87654321",
			Category:      "咨询服务",
			Amount:        "600.00",
		}}
	})

	It("maps the model answer onto a field set", func() {
		fields, err := NewModelExtractor(scanner).Extract(context.Background(), doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields).To(Equal(FieldSet{
			InvoiceType:   Special,
			Amount:        "600.00",
			Category:      "咨询服务",
			InvoiceNumber: "87654321",
		}))
		Expect(scanner.contentType).To(Equal("image/heic"))
	})

	It("keeps an unrecognized type as-is", func() {
		scanner.data.InvoiceType = "机打发票"
		fields, err := NewModelExtractor(scanner).Extract(context.Background(), doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields.InvoiceType).To(Equal(InvoiceType("机打发票")))
	})

	It("wraps scanner errors", func() {
		scanner.err = scanning.ErrMissingCredential
		_, err := NewModelExtractor(scanner).Extract(context.Background(), doc)
		Expect(err).To(MatchError(scanning.ErrMissingCredential))
	})

	It("treats an empty answer as a refusal", func() {
		scanner.data = nil
		_, err := NewModelExtractor(scanner).Extract(context.Background(), doc)
		Expect(err).To(MatchError(scanning.ErrRefused))
	})

	It("keeps the rule result when the scanner answers nothing", func() {
		scanner.data = nil
		primary := &mockExtractor{fields: FieldSet{Amount: "35.00"}}
		fields, err := NewLayered(primary, NewModelExtractor(scanner)).Extract(context.Background(), doc)
		Expect(err).NotTo(HaveOccurred())
		Expect(fields).To(Equal(FieldSet{Amount: "35.00"}))
	})

	It("returns read errors", func() {
		_, err := NewModelExtractor(scanner).Extract(context.Background(), document.New("/missing/a.pdf"))
		Expect(err).To(MatchError(ContainSubstring("reading document")))
	})
})

var _ = Describe("Layered", func() {
	var (
		primary  *mockExtractor
		fallback *mockExtractor
		layered  *Layered
		fields   FieldSet
		err      error
	)

	BeforeEach(func() {
		primary = &mockExtractor{fields: FieldSet{Amount: "35.00", Category: "运输服务"}}
		fallback = &mockExtractor{fields: FieldSet{InvoiceType: Ordinary, Amount: "99.00", InvoiceNumber: "12345678"}}
		layered = NewLayered(primary, fallback)
	})

	JustBeforeEach(func() {
		fields, err = layered.Extract(context.Background(), document.New("/in/a.pdf"))
	})

	It("fills the gaps of the primary result", func() {
		Expect(err).NotTo(HaveOccurred())
		Expect(fields).To(Equal(FieldSet{
			InvoiceType:   Ordinary,
			Amount:        "35.00",
			Category:      "运输服务",
			InvoiceNumber: "12345678",
		}))
	})

	When("the primary result is complete", func() {
		BeforeEach(func() {
			primary.fields = complete
		})

		It("does not call the fallback", func() {
			Expect(fields).To(Equal(complete))
			Expect(fallback.calls).To(BeZero())
		})
	})

	When("the document is a trip sheet", func() {
		BeforeEach(func() {
			primary.fields = TripSheet()
		})

		It("does not call the fallback", func() {
			Expect(fields.IsTripSheet).To(BeTrue())
			Expect(fallback.calls).To(BeZero())
		})
	})

	When("the primary extractor fails", func() {
		BeforeEach(func() {
			primary.err = errors.New("unreadable")
		})

		It("uses the fallback alone", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields.InvoiceNumber).To(Equal("12345678"))
			Expect(fields.Category).To(BeEmpty())
		})
	})

	When("the fallback fails", func() {
		BeforeEach(func() {
			fallback.err = scanning.ErrRender
		})

		It("keeps the primary result", func() {
			Expect(err).NotTo(HaveOccurred())
			Expect(fields).To(Equal(primary.fields))
		})
	})

	When("no fallback is configured", func() {
		BeforeEach(func() {
			layered = NewLayered(primary, nil)
		})

		It("returns the primary result", func() {
			Expect(layered.HasFallback()).To(BeFalse())
			Expect(fields).To(Equal(primary.fields))
		})
	})
})
