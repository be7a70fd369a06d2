package scanning

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"
)

var _ = Describe("Ollama", func() {
	var (
		server   *ghttp.Server
		scanner  *Ollama
		received ollamaChatRequest
		data     *InvoiceData
		err      error
	)

	BeforeEach(func() {
		server = ghttp.NewServer()
		scanner, err = NewOllama(server.URL(), "qwen2.5vl", 5*time.Second)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		server.Close()
	})

	JustBeforeEach(func() {
		data, err = scanner.ScanInvoice(context.Background(), []byte("png bytes"), "image/png")
	})

	When("the model answers with JSON", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.CombineHandlers(
				ghttp.VerifyRequest(http.MethodPost, "/api/chat"),
				ghttp.VerifyContentType("application/json"),
				func(w http.ResponseWriter, r *http.Request) {
					body, _ := io.ReadAll(r.Body)
					Expect(json.Unmarshal(body, &received)).To(Succeed())
				},
				ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{
					Message: ollamaMessage{
						Role:    "assistant",
						Content: `{"invoice_type": "增值税专用发票", "invoice_number": "87654321", "category": "*咨询*服务", "amount": "600.00"}`,
					},
					Done: true,
				}),
			))
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("returns the parsed fields", func() {
			Expect(data.InvoiceNumber).To(Equal("87654321"))
			Expect(data.Amount).To(Equal("600.00"))
			Expect(data.InvoiceType).To(Equal("增值税专用发票"))
		})

		It("sends a bounded low-temperature request", func() {
			Expect(received.Model).To(Equal("qwen2.5vl"))
			Expect(received.Options.Temperature).To(Equal(requestTemperature))
			Expect(received.Options.NumPredict).To(Equal(requestMaxTokens))
			Expect(received.Format).To(HaveKey("properties"))
		})

		It("attaches the page image to the user message", func() {
			Expect(received.Messages).To(HaveLen(2))
			Expect(received.Messages[0].Content).To(ContainSubstring("专用发票"))
			Expect(received.Messages[1].Images).To(HaveLen(1))
		})
	})

	When("the API returns an error status", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWith(http.StatusInternalServerError, "model not loaded"))
		})

		It("returns an unavailable error", func() {
			Expect(errors.Is(err, ErrUnavailable)).To(BeTrue())
			Expect(err).To(MatchError(ContainSubstring("model not loaded")))
		})
	})

	When("the model answers with nothing", func() {
		BeforeEach(func() {
			server.AppendHandlers(ghttp.RespondWithJSONEncoded(http.StatusOK, ollamaChatResponse{Done: true}))
		})

		It("returns ErrRefused", func() {
			Expect(err).To(MatchError(ErrRefused))
		})
	})
})

var _ = Describe("toPNG", func() {
	It("passes PNG data through", func() {
		out, err := toPNG([]byte("already png"), "image/png")
		Expect(err).NotTo(HaveOccurred())
		Expect(string(out)).To(Equal("already png"))
	})

	It("wraps undecodable images in ErrRender", func() {
		_, err := toPNG([]byte("not an image"), "image/jpeg")
		Expect(err).To(MatchError(ErrRender))
	})

	It("detects HEIC by its ftyp brand", func() {
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypheic\x00\x00"))).To(BeTrue())
		Expect(isHEICFormat([]byte("\x00\x00\x00\x18ftypisom\x00\x00"))).To(BeFalse())
		Expect(isHEICMimeType(" image/HEIF ")).To(BeTrue())
	})
})
