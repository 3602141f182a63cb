package extractor

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/gigurra/subscription-tracker/internal"
)

func fixed(text string, err error) internal.TextExtractor {
	return internal.TextExtractorFunc(func(context.Context, []byte) (string, error) {
		return text, err
	})
}

func TestChain(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name    string
		chain   Chain
		want    string
		wantErr bool
	}{
		{"first wins", Chain{fixed("a", nil), fixed("b", nil)}, "a", false},
		{"skips errors", Chain{fixed("", errors.New("boom")), fixed("b", nil)}, "b", false},
		{"skips blank text", Chain{fixed("  \n", nil), fixed("b", nil)}, "b", false},
		{"all fail", Chain{fixed("", errors.New("one")), fixed("", nil)}, "", true},
		{"empty chain", Chain{}, "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.chain.ExtractText(ctx, []byte("doc"))
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("text = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestChain_ErrorsCombined(t *testing.T) {
	_, err := Chain{fixed("", errors.New("one")), fixed("", nil)}.ExtractText(context.Background(), nil)
	if err == nil || !strings.Contains(err.Error(), "one") || !errors.Is(err, ErrNoTextLayer) {
		t.Errorf("expected both failures in %v", err)
	}
}

func TestPDF_RejectsBadInput(t *testing.T) {
	ctx := context.Background()
	for name, doc := range map[string][]byte{
		"not a pdf": []byte("03/01/2024 NETFLIX $15.99"),
		"truncated": []byte("%PDF-1.4\n1 0 obj\n<< /Type /Catalog"),
		"empty":     nil,
	} {
		t.Run(name, func(t *testing.T) {
			if _, err := (PDF{}).ExtractText(ctx, doc); err == nil {
				t.Error("expected an error")
			}
		})
	}
}

func TestDetectKind(t *testing.T) {
	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	tests := []struct {
		name string
		doc  []byte
		want kind
	}{
		{"pdf", []byte("%PDF-1.7\n..."), kindPDF},
		{"png", png, kindImage},
		{"jpeg", []byte("\xff\xd8\xff\xe0\x00\x10JFIF\x00"), kindImage},
		{"text", []byte("03/01/2024 NETFLIX $15.99"), kindText},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := detectKind(tt.doc); got != tt.want {
				t.Errorf("detectKind = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestAuto(t *testing.T) {
	ctx := context.Background()

	text, err := Auto(nil).ExtractText(ctx, []byte("03/01/2024 NETFLIX $15.99"))
	if err != nil || text != "03/01/2024 NETFLIX $15.99" {
		t.Errorf("plain text: %q, %v", text, err)
	}

	png := []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")
	if _, err := Auto(nil).ExtractText(ctx, png); err == nil {
		t.Error("images without OCR should fail")
	}
	text, err = Auto(fixed("OCR TEXT", nil)).ExtractText(ctx, png)
	if err != nil || text != "OCR TEXT" {
		t.Errorf("image with OCR: %q, %v", text, err)
	}

	// A broken PDF falls back to OCR
	text, err = Auto(fixed("OCR TEXT", nil)).ExtractText(ctx, []byte("%PDF-1.4 broken"))
	if err != nil || text != "OCR TEXT" {
		t.Errorf("pdf fallback: %q, %v", text, err)
	}
}

func TestStripFences(t *testing.T) {
	tests := map[string]string{
		"plain":                        "plain",
		"```\nline one\nline two\n```": "line one\nline two",
		"```text\nabc\n```":            "abc",
		"  ```\n```  ":                 "",
	}
	for in, want := range tests {
		if got := stripFences(in); got != want {
			t.Errorf("stripFences(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestNewGeminiOCR_RequiresKey(t *testing.T) {
	t.Setenv("GEMINI_API_KEY", "")
	if _, err := NewGeminiOCR(context.Background(), GeminiOptions{}); err == nil {
		t.Error("expected an error without an API key")
	}
}
