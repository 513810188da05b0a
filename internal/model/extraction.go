package model

import "strings"

// ExtractionResult is what the extraction collaborator returns for one
// message. Confidence is reported once per message; every item inherits it.
type ExtractionResult struct {
	Intent       string
	Items        []ExtractedItem
	UnknownTerms []string
	Confidence   float64
}

// ExtractedItem is a single item the collaborator found in a message. Every
// field is optional; the confidence router resolves each one independently.
type ExtractedItem struct {
	Description  string
	Category     string
	Manufacturer string
	Unit         string
	Condition    string
	PartNumber   string
	Currency     string
	Quantity     *int
	Price        *float64
}

// FallbackExtraction is the safe result substituted when extraction fails or
// returns something unparseable: no intent, no items, zero confidence. It
// yields zero listings and never feeds the review or notification paths.
func FallbackExtraction() *ExtractionResult {
	return &ExtractionResult{
		Intent:     string(IntentUnknown),
		Confidence: 0,
	}
}

// normalize lowercases and trims a free-form string for tolerant comparison.
func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
