package jargon

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

func TestExpand(t *testing.T) {
	verified := []model.JargonEntry{
		{Acronym: "NOS", Expansion: "New Old Stock", Verified: true},
		{Acronym: "FS", Expansion: "For Sale", Verified: true},
	}

	tests := []struct {
		name    string
		text    string
		entries []model.JargonEntry
		want    string
	}{
		{
			name:    "verified acronym expands with original token preserved",
			text:    "Selling Parker valves NOS",
			entries: verified,
			want:    "Selling Parker valves New Old Stock (NOS)",
		},
		{
			name:    "case insensitive match keeps matched casing",
			text:    "selling valves nos",
			entries: verified,
			want:    "selling valves New Old Stock (nos)",
		},
		{
			name:    "every occurrence is replaced",
			text:    "NOS valves and NOS gauges",
			entries: verified,
			want:    "New Old Stock (NOS) valves and New Old Stock (NOS) gauges",
		},
		{
			name:    "two letter acronym does not fire inside longer token",
			text:    "offset flange fitting",
			entries: verified,
			want:    "offset flange fitting",
		},
		{
			name:    "acronym at word boundary next to punctuation",
			text:    "Parker valve, NOS!",
			entries: verified,
			want:    "Parker valve, New Old Stock (NOS)!",
		},
		{
			name:    "unverified entries are never applied",
			text:    "BNIB watch for trade",
			entries: []model.JargonEntry{{Acronym: "BNIB", Expansion: "Brand New In Box", Verified: false}},
			want:    "BNIB watch for trade",
		},
		{
			name:    "no entries returns input unchanged",
			text:    "plain text",
			entries: nil,
			want:    "plain text",
		},
		{
			name:    "blank input returns unchanged",
			text:    "   ",
			entries: verified,
			want:    "   ",
		},
		{
			name:    "multiple acronyms in one message",
			text:    "FS: Parker valves NOS",
			entries: verified,
			want:    "For Sale (FS): Parker valves New Old Stock (NOS)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Expand(tt.text, tt.entries))
		})
	}
}
