package extractor

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/gigurra/subscription-tracker/internal/logger"
	"golang.org/x/sync/semaphore"
	"google.golang.org/genai"
)

// DefaultModel is used when GEMINI_MODEL is not set.
const DefaultModel = "gemini-2.5-flash"

const transcribePrompt = "Transcribe every line of this bank or card statement as plain text.\n" +
	"Rules:\n" +
	"- Keep one statement line per output line, in the original order.\n" +
	"- Keep dates, descriptions and amounts exactly as printed, including signs and currency symbols.\n" +
	"- Do not summarize, translate or add commentary. Output the text only."

type kind int

const (
	kindText kind = iota
	kindPDF
	kindImage
)

func detectKind(doc []byte) kind {
	if IsPDF(doc) {
		return kindPDF
	}
	mime := http.DetectContentType(doc)
	if strings.HasPrefix(mime, "image/") {
		return kindImage
	}
	return kindText
}

// GeminiOCR transcribes scanned statements and images with a Gemini model.
// Concurrent requests are bounded so large uploads cannot fan out unchecked.
type GeminiOCR struct {
	client *genai.Client
	model  string
	sem    *semaphore.Weighted
}

// GeminiOptions configures NewGeminiOCR. Zero values fall back to the environment.
type GeminiOptions struct {
	APIKey      string // default GEMINI_API_KEY
	Model       string // default GEMINI_MODEL, then DefaultModel
	Concurrency int64  // default 2
}

// NewGeminiOCR creates an OCR extractor. It fails if no API key is available.
func NewGeminiOCR(ctx context.Context, opts GeminiOptions) (*GeminiOCR, error) {
	if opts.APIKey == "" {
		opts.APIKey = os.Getenv("GEMINI_API_KEY")
	}
	if opts.APIKey == "" {
		return nil, errors.New("GEMINI_API_KEY is not set")
	}
	if opts.Model == "" {
		opts.Model = os.Getenv("GEMINI_MODEL")
	}
	if opts.Model == "" {
		opts.Model = DefaultModel
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = 2
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  opts.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &GeminiOCR{
		client: client,
		model:  opts.Model,
		sem:    semaphore.NewWeighted(opts.Concurrency),
	}, nil
}

// ExtractText implements internal.TextExtractor.
func (g *GeminiOCR) ExtractText(ctx context.Context, doc []byte) (string, error) {
	mime := "application/pdf"
	if !IsPDF(doc) {
		mime = http.DetectContentType(doc)
		if !strings.HasPrefix(mime, "image/") {
			return "", fmt.Errorf("unsupported document type %s for OCR", mime)
		}
	}

	if err := g.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer g.sem.Release(1)

	contents := []*genai.Content{
		{
			Role: "user",
			Parts: []*genai.Part{
				{Text: transcribePrompt},
				{InlineData: &genai.Blob{MIMEType: mime, Data: doc}},
			},
		},
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Str("model", g.model).
		Str("mime", mime).
		Int("bytes", len(doc)).
		Msg("sending document for OCR")

	resp, err := g.client.Models.GenerateContent(ctx, g.model, contents, nil)
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := stripFences(resp.Text())
	if strings.TrimSpace(text) == "" {
		return "", errors.New("empty response from model")
	}
	return text, nil
}

// stripFences removes a Markdown code fence the model may wrap its answer in.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	} else {
		s = ""
	}
	return strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "```"))
}
