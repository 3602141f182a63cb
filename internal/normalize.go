package internal

import (
	"regexp"
	"strings"
)

var (
	nonMerchantChars = regexp.MustCompile(`[^a-z0-9\s]`)
	whitespaceRun    = regexp.MustCompile(`\s+`)
)

// maxNormalizedLen matches the merchant.normalized column width.
const maxNormalizedLen = 255

// NormalizeMerchantName returns the canonical grouping key for a merchant:
// lower-cased, only [a-z0-9 ] kept, whitespace collapsed and trimmed.
func NormalizeMerchantName(name string) string {
	s := strings.ToLower(strings.TrimSpace(name))
	s = nonMerchantChars.ReplaceAllString(s, "")
	s = strings.TrimSpace(whitespaceRun.ReplaceAllString(s, " "))
	if len(s) > maxNormalizedLen {
		s = strings.TrimSpace(s[:maxNormalizedLen])
	}
	return s
}
