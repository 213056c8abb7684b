package orchestrator

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDecision(t *testing.T) {
	workers := []string{"Researcher", "Scrapper"}

	t.Run("should parse a worker route", func(t *testing.T) {
		d, err := ParseDecision(`{"next": "Researcher", "reasoning": "needs facts"}`, workers)
		require.NoError(t, err)
		assert.Equal(t, "Researcher", d.Next)
		assert.Equal(t, "needs facts", d.Reasoning)
		assert.Empty(t, d.Response)
	})

	t.Run("should parse a direct response", func(t *testing.T) {
		d, err := ParseDecision(`{"next": "FINISH", "reasoning": "greeting", "response": "Hello!"}`, workers)
		require.NoError(t, err)
		assert.Equal(t, RouteFinish, d.Next)
		assert.Equal(t, "Hello!", d.Response)
	})

	t.Run("should unwrap a code fence", func(t *testing.T) {
		raw := "Here is my decision:\n```json\n{\"next\": \"Scrapper\", \"reasoning\": \"page fetch\"}\n```"
		d, err := ParseDecision(raw, workers)
		require.NoError(t, err)
		assert.Equal(t, "Scrapper", d.Next)
	})

	t.Run("should handle braces inside strings", func(t *testing.T) {
		d, err := ParseDecision(`{"next": "FINISH", "reasoning": "the {weird} case", "response": "a } in text"}`, workers)
		require.NoError(t, err)
		assert.Equal(t, "a } in text", d.Response)
	})

	t.Run("should reject an illegal option", func(t *testing.T) {
		_, err := ParseDecision(`{"next": "Planner", "reasoning": "hm"}`, workers)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "illegal routing option")
	})

	t.Run("should reject output without JSON", func(t *testing.T) {
		_, err := ParseDecision("I think the Researcher should go next.", workers)
		require.Error(t, err)
	})

	t.Run("should reject a missing next field", func(t *testing.T) {
		_, err := ParseDecision(`{"reasoning": "no route"}`, workers)
		require.Error(t, err)
	})
}
