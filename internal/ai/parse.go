package ai

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidOutput marks provider output that could not be used.
var ErrInvalidOutput = errors.New("invalid provider output")

// DecodeObject extracts the JSON object from a model response. Code fences,
// leading prose and trailing chatter around the object are tolerated.
func DecodeObject(raw string) (map[string]any, error) {
	cleaned := ExtractJSON(raw)

	var data map[string]any
	if err := json.Unmarshal([]byte(cleaned), &data); err != nil {
		start := strings.Index(cleaned, "{")
		end := strings.LastIndex(cleaned, "}")
		if start == -1 || end <= start {
			return nil, fmt.Errorf("%w: no json object: %v", ErrInvalidOutput, err)
		}
		if err := json.Unmarshal([]byte(cleaned[start:end+1]), &data); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrInvalidOutput, err)
		}
	}
	return data, nil
}

// ExtractJSON strips markdown code fences around a JSON payload.
func ExtractJSON(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "```") {
		raw = strings.TrimPrefix(raw, "```json")
		raw = strings.TrimPrefix(raw, "```")
		raw = strings.TrimSpace(raw)
		if idx := strings.LastIndex(raw, "```"); idx != -1 {
			raw = raw[:idx]
		}
	}
	raw = strings.Trim(raw, "`")
	return strings.TrimSpace(raw)
}

func CoerceString(v any) string {
	switch val := v.(type) {
	case string:
		return strings.TrimSpace(val)
	case fmt.Stringer:
		return strings.TrimSpace(val.String())
	default:
		if v == nil {
			return ""
		}
		bytes, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprintf("%v", v)
		}
		return string(bytes)
	}
}

// CoerceStrings accepts a list or a newline separated string and returns the
// non-empty trimmed items. Leading list markers are removed.
func CoerceStrings(v any) []string {
	var items []string
	switch val := v.(type) {
	case []any:
		for _, item := range val {
			items = append(items, CoerceString(item))
		}
	case []string:
		items = append(items, val...)
	case string:
		items = strings.Split(val, "\n")
	default:
		return nil
	}

	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		item = strings.TrimLeft(item, "-*• ")
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
