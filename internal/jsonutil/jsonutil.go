package jsonutil

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

// DecodeWithFallback decodes raw JSON into out. Model output is often
// wrapped in markdown fences or slightly malformed; a strict decode is
// tried first, then a repaired pass.
func DecodeWithFallback(raw string, out any) error {
	raw = StripFences(raw)
	if raw == "" {
		return fmt.Errorf("jsonutil: empty input")
	}
	if err := json.Unmarshal([]byte(raw), out); err == nil {
		return nil
	}
	repaired, err := jsonrepair.JSONRepair(raw)
	if err != nil {
		return fmt.Errorf("jsonutil: repair failed: %w", err)
	}
	if err := json.Unmarshal([]byte(repaired), out); err != nil {
		return fmt.Errorf("jsonutil: decode repaired: %w", err)
	}
	return nil
}

// StripFences removes a surrounding ```json ... ``` block if present.
func StripFences(raw string) string {
	raw = strings.TrimSpace(raw)
	if !strings.HasPrefix(raw, "```") {
		return raw
	}
	raw = strings.TrimPrefix(raw, "```")
	if idx := strings.IndexByte(raw, '\n'); idx >= 0 {
		first := strings.TrimSpace(raw[:idx])
		if first == "" || strings.EqualFold(first, "json") {
			raw = raw[idx+1:]
		}
	}
	raw = strings.TrimSuffix(strings.TrimSpace(raw), "```")
	return strings.TrimSpace(raw)
}
