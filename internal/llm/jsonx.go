package llm

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeLooseJSON extracts and decodes a JSON object from model-generated
// text. Models occasionally wrap JSON in prose or emit slightly broken
// syntax (trailing commas, unquoted keys); this first trims to the
// outermost braces, then falls back to jsonrepair before giving up.
func DecodeLooseJSON(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start == -1 || end <= start {
		return nil, fmt.Errorf("no JSON object found in text (%d chars)", len(text))
	}
	candidate := text[start : end+1]

	var decoded map[string]any
	if err := json.Unmarshal([]byte(candidate), &decoded); err == nil {
		return decoded, nil
	}

	repaired, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("repair JSON: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), &decoded); err != nil {
		return nil, fmt.Errorf("decode repaired JSON: %w", err)
	}
	return decoded, nil
}
