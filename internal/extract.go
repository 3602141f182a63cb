package internal

import (
	"context"
	"errors"
	"unicode/utf8"
)

// TextExtractor turns a statement document into plain text. Implementations
// must not keep a reference to doc after returning.
type TextExtractor interface {
	ExtractText(ctx context.Context, doc []byte) (string, error)
}

// TextExtractorFunc adapts a function to TextExtractor.
type TextExtractorFunc func(ctx context.Context, doc []byte) (string, error)

func (f TextExtractorFunc) ExtractText(ctx context.Context, doc []byte) (string, error) {
	return f(ctx, doc)
}

// PlainText treats the document as UTF-8 text, for statements that are already text dumps.
var PlainText TextExtractor = TextExtractorFunc(func(_ context.Context, doc []byte) (string, error) {
	if !utf8.Valid(doc) {
		return "", errors.New("document is not valid UTF-8 text")
	}
	return string(doc), nil
})
