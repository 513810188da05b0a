// Package jargon rewrites raw message text, substituting verified trade
// acronyms with their expansions before extraction.
package jargon

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// Expand replaces every whole-word, case-insensitive occurrence of each
// verified acronym with "<expansion> (<matched-text>)", preserving the
// original token for downstream context. Unverified entries are never
// applied. Blank input, or no verified entries, returns the input unchanged.
func Expand(text string, entries []model.JargonEntry) string {
	if strings.TrimSpace(text) == "" || len(entries) == 0 {
		return text
	}

	expanded := text
	for _, entry := range entries {
		if !entry.Verified {
			continue
		}
		acronym := strings.TrimSpace(entry.Acronym)
		expansion := strings.TrimSpace(entry.Expansion)
		if acronym == "" || expansion == "" {
			continue
		}

		// Word boundaries keep a short acronym from firing inside a
		// longer unrelated token.
		re, err := regexp.Compile(`(?i)\b` + regexp.QuoteMeta(acronym) + `\b`)
		if err != nil {
			continue
		}

		expanded = re.ReplaceAllStringFunc(expanded, func(matched string) string {
			return fmt.Sprintf("%s (%s)", expansion, matched)
		})
	}

	return expanded
}
