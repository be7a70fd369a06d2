package scanning

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/generative-ai-go/genai"
	"google.golang.org/api/option"
)

// Gemini implements the Scanner interface using Google Gemini
type Gemini struct {
	client  *genai.Client
	model   *genai.GenerativeModel
	timeout time.Duration
}

// NewGemini creates a new Gemini Scanner instance. A missing key is reported
// as ErrMissingCredential before any client is created.
func NewGemini(ctx context.Context, apiKey string, modelName string, timeout time.Duration) (*Gemini, error) {
	if apiKey == "" {
		return nil, ErrMissingCredential
	}
	if modelName == "" {
		modelName = "gemini-2.5-flash"
	}
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	client, err := genai.NewClient(ctx, option.WithAPIKey(apiKey))
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}

	model := client.GenerativeModel(modelName)
	model.SetTemperature(requestTemperature)
	model.SetMaxOutputTokens(requestMaxTokens)
	model.SystemInstruction = &genai.Content{Parts: []genai.Part{genai.Text(systemPrompt)}}
	model.ResponseMIMEType = "application/json"
	model.ResponseSchema = geminiSchema()

	return &Gemini{
		client:  client,
		model:   model,
		timeout: timeout,
	}, nil
}

// geminiSchema mirrors InvoiceJSONSchema in the SDK's schema type
func geminiSchema() *genai.Schema {
	props := make(map[string]*genai.Schema, len(fieldOrder))
	for _, name := range fieldOrder {
		props[name] = &genai.Schema{
			Type:        genai.TypeString,
			Description: fieldDescriptions[name],
			Nullable:    true,
		}
	}
	return &genai.Schema{
		Type:       genai.TypeObject,
		Properties: props,
	}
}

// ScanInvoice analyzes the first page of an invoice and extracts its fields
func (g *Gemini) ScanInvoice(ctx context.Context, data []byte, contentType string) (*InvoiceData, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	pngData, err := toPNG(data, contentType)
	if err != nil {
		return nil, err
	}

	// genai.ImageData expects just the format suffix (e.g., "png"), not the full MIME type
	parts := []genai.Part{
		genai.ImageData("png", pngData),
		genai.Text(userPrompt),
	}

	resp, err := g.model.GenerateContent(ctx, parts...)
	if err != nil {
		return nil, fmt.Errorf("%w: generating content: %w", ErrUnavailable, err)
	}

	if len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil || len(resp.Candidates[0].Content.Parts) == 0 {
		return nil, ErrRefused
	}

	var responseText strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if text, ok := part.(genai.Text); ok {
			responseText.WriteString(string(text))
		}
	}

	result, err := parseInvoiceJSON(responseText.String())
	if err != nil {
		return nil, fmt.Errorf("%w: parsing invoice data: %w", ErrRefused, err)
	}

	return result, nil
}

// Close closes the Gemini client
func (g *Gemini) Close() error {
	return g.client.Close()
}
