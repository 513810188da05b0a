package extract

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/Yuanja/watch-tracker-sub000/internal/model"
)

// wire types mirror what the provider is asked to emit. Every field is
// optional; tolerant scalar types absorb the formatting slips models make.
type wireResult struct {
	Intent       string     `json:"intent"`
	Items        []wireItem `json:"items"`
	UnknownTerms []string   `json:"unknown_terms"`
	Confidence   flexFloat  `json:"confidence"`
}

type wireItem struct {
	Description  string     `json:"description"`
	Category     string     `json:"category"`
	Manufacturer string     `json:"manufacturer"`
	Unit         string     `json:"unit"`
	Condition    string     `json:"condition"`
	PartNumber   string     `json:"part_number"`
	Quantity     *flexInt   `json:"quantity"`
	Price        *flexFloat `json:"price"`
	Currency     string     `json:"currency"`
}

// flexFloat accepts a JSON number, a quoted number, or a percentage string.
type flexFloat float64

func (f *flexFloat) UnmarshalJSON(data []byte) error {
	s := strings.TrimSpace(string(data))
	s = strings.Trim(s, `"`)
	s = strings.TrimSpace(s)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}

	percent := strings.HasSuffix(s, "%")
	s = strings.TrimSuffix(s, "%")
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return fmt.Errorf("cannot parse %q as number: %w", s, err)
	}
	if percent {
		v /= 100.0
	}
	*f = flexFloat(v)
	return nil
}

// flexInt accepts a JSON number or a quoted number, truncating decimals.
type flexInt int

func (i *flexInt) UnmarshalJSON(data []byte) error {
	var f flexFloat
	if err := f.UnmarshalJSON(data); err != nil {
		return err
	}
	*i = flexInt(int(f))
	return nil
}

// ParseResult parses raw provider output into an ExtractionResult. It
// tolerates markdown fences and leading prose around the JSON document, and
// clamps the confidence into [0, 1] (a bare percentage like 92 is scaled
// down).
func ParseResult(content string) (*model.ExtractionResult, error) {
	doc := extractJSON(content)
	if doc == "" {
		return nil, fmt.Errorf("no JSON object found in response")
	}

	var wire wireResult
	if err := json.Unmarshal([]byte(doc), &wire); err != nil {
		return nil, fmt.Errorf("failed to decode extraction response: %w", err)
	}

	confidence := float64(wire.Confidence)
	if confidence > 1.0 && confidence <= 100.0 {
		confidence /= 100.0
	}
	if confidence < 0 {
		confidence = 0
	} else if confidence > 1 {
		confidence = 1
	}

	result := &model.ExtractionResult{
		Intent:     wire.Intent,
		Confidence: confidence,
	}

	for _, term := range wire.UnknownTerms {
		if t := strings.TrimSpace(term); t != "" {
			result.UnknownTerms = append(result.UnknownTerms, t)
		}
	}

	for _, item := range wire.Items {
		extracted := model.ExtractedItem{
			Description:  strings.TrimSpace(item.Description),
			Category:     strings.TrimSpace(item.Category),
			Manufacturer: strings.TrimSpace(item.Manufacturer),
			Unit:         strings.TrimSpace(item.Unit),
			Condition:    strings.TrimSpace(item.Condition),
			PartNumber:   strings.TrimSpace(item.PartNumber),
			Currency:     strings.ToUpper(strings.TrimSpace(item.Currency)),
		}
		if item.Quantity != nil {
			n := int(*item.Quantity)
			extracted.Quantity = &n
		}
		if item.Price != nil {
			p := float64(*item.Price)
			extracted.Price = &p
		}
		result.Items = append(result.Items, extracted)
	}

	return result, nil
}

// extractJSON pulls the outermost JSON object out of model output that may
// be wrapped in markdown fences or prose.
func extractJSON(content string) string {
	content = strings.TrimSpace(content)
	if fenced := strings.Index(content, "```"); fenced >= 0 {
		content = strings.ReplaceAll(content, "```json", "")
		content = strings.ReplaceAll(content, "```", "")
	}

	start := strings.Index(content, "{")
	end := strings.LastIndex(content, "}")
	if start < 0 || end <= start {
		return ""
	}
	return content[start : end+1]
}
