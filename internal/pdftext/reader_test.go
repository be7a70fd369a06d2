package pdftext

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

// placedText is one string drawn at a fixed page position
type placedText struct {
	x, y float64
	s    string
}

// writeFixturePDF writes a one-page PDF drawing each item with its own text
// matrix, with a correct cross-reference table.
func writeFixturePDF(path string, items []placedText) {
	var content strings.Builder
	for _, it := range items {
		fmt.Fprintf(&content, "BT /F1 10 Tf 1 0 0 1 %.0f %.0f Tm (%s) Tj ET\n", it.x, it.y, it.s)
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << /Font << /F1 4 0 R >> >> /Contents 5 0 R >>",
		"<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /Encoding /WinAnsiEncoding >>",
		fmt.Sprintf("<< /Length %d >>\nstream\n%s\nendstream", content.Len(), content.String()),
	}

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)

	Expect(os.WriteFile(path, buf.Bytes(), 0o644)).To(Succeed())
}

var tripFixture = []placedText{
	{50, 750, "TRIP TABLE"},
	{50, 700, "No"}, {150, 700, "Time"}, {250, 700, "From"}, {350, 700, "To"}, {450, 700, "Amount"},
	{50, 680, "1"}, {150, 680, "04-11"}, {250, 680, "Station"}, {350, 680, "Office"}, {450, 680, "35.50"},
}

var _ = Describe("Reader", func() {
	var (
		path   string
		reader *Reader
	)

	BeforeEach(func() {
		path = filepath.Join(GinkgoT().TempDir(), "trip.pdf")
		writeFixturePDF(path, tripFixture)
		reader = &Reader{}
	})

	It("reads the text layer", func() {
		text, err := reader.Text(context.Background(), path)
		Expect(err).NotTo(HaveOccurred())
		Expect(text).To(ContainSubstring("TRIP TABLE"))
		Expect(text).To(ContainSubstring("Station"))
	})

	It("detects the table from positioned text", func() {
		tables, err := reader.Tables(context.Background(), path)
		Expect(err).NotTo(HaveOccurred())
		Expect(tables).To(Equal([]Table{{
			{"No", "Time", "From", "To", "Amount"},
			{"1", "04-11", "Station", "Office", "35.50"},
		}}))
	})

	It("counts the pages", func() {
		Expect(PageCount(path)).To(Equal(1))
	})

	It("stops on a cancelled context", func() {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := reader.Tables(ctx, path)
		Expect(err).To(MatchError(context.Canceled))
	})

	Describe("repair", func() {
		It("rewrites the document into a readable copy", func() {
			repaired, cleanup, err := repair(path)
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(cleanup)

			Expect(repaired).NotTo(Equal(path))
			text, err := reader.Text(context.Background(), repaired)
			Expect(err).NotTo(HaveOccurred())
			Expect(text).To(ContainSubstring("TRIP TABLE"))
		})
	})

	When("the file is not a PDF", func() {
		BeforeEach(func() {
			path = filepath.Join(GinkgoT().TempDir(), "broken.pdf")
			Expect(os.WriteFile(path, []byte("not a pdf"), 0o644)).To(Succeed())
		})

		It("reports unreadable text", func() {
			_, err := reader.Text(context.Background(), path)
			Expect(err).To(MatchError(ErrUnreadable))
		})

		It("reports unreadable tables even after a repair attempt", func() {
			reader.Repair = true
			_, err := reader.Tables(context.Background(), path)
			Expect(err).To(MatchError(ErrUnreadable))
		})

		It("reports an unreadable page count", func() {
			_, err := PageCount(path)
			Expect(err).To(MatchError(ErrUnreadable))
		})
	})
})
