package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseResult(t *testing.T) {
	t.Run("well formed response", func(t *testing.T) {
		content := `{
			"intent": "sell",
			"items": [
				{
					"description": "Parker valves",
					"manufacturer": "Parker",
					"condition": "New Old Stock",
					"quantity": 10,
					"price": 50,
					"currency": "usd"
				}
			],
			"unknown_terms": ["B7"],
			"confidence": 0.92
		}`

		result, err := ParseResult(content)
		require.NoError(t, err)
		assert.Equal(t, "sell", result.Intent)
		assert.InDelta(t, 0.92, result.Confidence, 0.001)
		require.Len(t, result.Items, 1)
		item := result.Items[0]
		assert.Equal(t, "Parker valves", item.Description)
		assert.Equal(t, "USD", item.Currency)
		require.NotNil(t, item.Quantity)
		assert.Equal(t, 10, *item.Quantity)
		require.NotNil(t, item.Price)
		assert.InDelta(t, 50.0, *item.Price, 0.001)
		assert.Equal(t, []string{"B7"}, result.UnknownTerms)
	})

	t.Run("markdown fenced response", func(t *testing.T) {
		content := "```json\n{\"intent\": \"want\", \"items\": [], \"confidence\": 0.6}\n```"

		result, err := ParseResult(content)
		require.NoError(t, err)
		assert.Equal(t, "want", result.Intent)
		assert.InDelta(t, 0.6, result.Confidence, 0.001)
		assert.Empty(t, result.Items)
	})

	t.Run("percentage confidence is scaled", func(t *testing.T) {
		result, err := ParseResult(`{"intent": "sell", "confidence": 92}`)
		require.NoError(t, err)
		assert.InDelta(t, 0.92, result.Confidence, 0.001)
	})

	t.Run("quoted percent string confidence", func(t *testing.T) {
		result, err := ParseResult(`{"intent": "sell", "confidence": "85%"}`)
		require.NoError(t, err)
		assert.InDelta(t, 0.85, result.Confidence, 0.001)
	})

	t.Run("quoted numeric scalars", func(t *testing.T) {
		result, err := ParseResult(`{
			"intent": "sell",
			"items": [{"description": "gauge", "quantity": "3", "price": "19.99"}],
			"confidence": "0.7"
		}`)
		require.NoError(t, err)
		require.Len(t, result.Items, 1)
		require.NotNil(t, result.Items[0].Quantity)
		assert.Equal(t, 3, *result.Items[0].Quantity)
		require.NotNil(t, result.Items[0].Price)
		assert.InDelta(t, 19.99, *result.Items[0].Price, 0.001)
	})

	t.Run("prose around the JSON document", func(t *testing.T) {
		content := `Here is the extraction you asked for:
		{"intent": "sell", "items": [], "confidence": 0.5}
		Let me know if you need anything else.`

		result, err := ParseResult(content)
		require.NoError(t, err)
		assert.Equal(t, "sell", result.Intent)
	})

	t.Run("no JSON at all", func(t *testing.T) {
		_, err := ParseResult("I could not process that message.")
		assert.Error(t, err)
	})

	t.Run("malformed JSON", func(t *testing.T) {
		_, err := ParseResult(`{"intent": "sell", "confidence":`)
		assert.Error(t, err)
	})

	t.Run("negative confidence clamps to zero", func(t *testing.T) {
		result, err := ParseResult(`{"intent": "sell", "confidence": -0.3}`)
		require.NoError(t, err)
		assert.Equal(t, 0.0, result.Confidence)
	})

	t.Run("blank unknown terms are dropped", func(t *testing.T) {
		result, err := ParseResult(`{"intent": "sell", "unknown_terms": ["", "  ", "NOS"], "confidence": 0.9}`)
		require.NoError(t, err)
		assert.Equal(t, []string{"NOS"}, result.UnknownTerms)
	})
}
