package utils

import (
	"encoding/json"
	"fmt"
	"strings"
)

// DecodeJSONObject unmarshals an LLM reply into v. Models often wrap the
// object in prose or code fences, so on failure the outermost {...} is tried.
func DecodeJSONObject(text string, v any) error {
	if err := json.Unmarshal([]byte(text), v); err == nil {
		return nil
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return fmt.Errorf("no JSON object in model response")
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return fmt.Errorf("failed to parse model response as JSON: %w", err)
	}
	return nil
}
