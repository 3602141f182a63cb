package extractor

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gigurra/subscription-tracker/internal"
	"github.com/gigurra/subscription-tracker/internal/logger"
)

// Chain tries each extractor in order and returns the first non-blank text.
type Chain []internal.TextExtractor

// ExtractText implements internal.TextExtractor.
func (c Chain) ExtractText(ctx context.Context, doc []byte) (string, error) {
	if len(c) == 0 {
		return "", errors.New("no extractors configured")
	}
	log := logger.FromContext(ctx)

	var errs []error
	for i, ex := range c {
		text, err := ex.ExtractText(ctx, doc)
		if err == nil && strings.TrimSpace(text) != "" {
			return text, nil
		}
		if err == nil {
			err = ErrNoTextLayer
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return "", ctxErr
		}
		log.Debug().Err(err).Int("extractor", i).Msg("extractor gave no text, trying next")
		errs = append(errs, fmt.Errorf("extractor %d: %w", i, err))
	}
	return "", errors.Join(errs...)
}

// Auto picks an extractor by content: PDFs go through the text layer first and
// fall back to ocr (when set), images need ocr, anything else is read as text.
func Auto(ocr internal.TextExtractor) internal.TextExtractor {
	return internal.TextExtractorFunc(func(ctx context.Context, doc []byte) (string, error) {
		switch kind := detectKind(doc); {
		case kind == kindPDF && ocr != nil:
			return Chain{PDF{}, ocr}.ExtractText(ctx, doc)
		case kind == kindPDF:
			return PDF{}.ExtractText(ctx, doc)
		case kind == kindImage && ocr != nil:
			return ocr.ExtractText(ctx, doc)
		case kind == kindImage:
			return "", errors.New("image documents need OCR, set GEMINI_API_KEY")
		default:
			return internal.PlainText.ExtractText(ctx, doc)
		}
	})
}
