package orchestrator

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/xeipuuv/gojsonschema"
)

// Decision is the structured output of one supervisor round
type Decision struct {
	Next      string `json:"next"`
	Reasoning string `json:"reasoning"`
	Response  string `json:"response,omitempty"`
}

const decisionSchema = `{
	"type": "object",
	"properties": {
		"next": {"type": "string"},
		"reasoning": {"type": "string"},
		"response": {"type": "string"}
	},
	"required": ["next"]
}`

var decisionSchemaLoader = gojsonschema.NewStringLoader(decisionSchema)

// ParseDecision extracts and validates a routing decision from raw
// model output. The next field must be one of the worker names or
// FINISH, anything else is rejected.
func ParseDecision(raw string, workers []string) (*Decision, error) {
	jsonText := extractJSON(raw)
	if jsonText == "" {
		return nil, fmt.Errorf("no JSON object found in decision output")
	}

	result, err := gojsonschema.Validate(decisionSchemaLoader, gojsonschema.NewStringLoader(jsonText))
	if err != nil {
		return nil, fmt.Errorf("failed to validate decision: %w", err)
	}
	if !result.Valid() {
		var problems []string
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return nil, fmt.Errorf("invalid decision shape: %s", strings.Join(problems, "; "))
	}

	var decision Decision
	if err := json.Unmarshal([]byte(jsonText), &decision); err != nil {
		return nil, fmt.Errorf("failed to parse decision: %w", err)
	}

	if !isLegalRoute(decision.Next, workers) {
		return nil, fmt.Errorf("illegal routing option: %q", decision.Next)
	}

	return &decision, nil
}

func isLegalRoute(next string, workers []string) bool {
	if next == RouteFinish {
		return true
	}
	for _, w := range workers {
		if next == w {
			return true
		}
	}
	return false
}

// extractJSON finds the first balanced JSON object in the text. Models
// sometimes wrap the decision in prose or a code fence.
func extractJSON(raw string) string {
	start := strings.Index(raw, "{")
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(raw); i++ {
		c := raw[i]
		if escaped {
			escaped = false
			continue
		}
		switch c {
		case '\\':
			if inString {
				escaped = true
			}
		case '"':
			inString = !inString
		case '{':
			if !inString {
				depth++
			}
		case '}':
			if !inString {
				depth--
				if depth == 0 {
					return raw[start : i+1]
				}
			}
		}
	}

	return ""
}
