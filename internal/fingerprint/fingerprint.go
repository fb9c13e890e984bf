// Package fingerprint derives stable cache keys from request inputs.
//
// Inputs are canonicalized before hashing so that semantically identical
// requests collide: object keys are sorted and strings are whitespace-collapsed.
// Lists keep their order; callers pass unordered values through Set first.
package fingerprint

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// Of returns the hex SHA-256 fingerprint of namespace and inputs.
func Of(namespace string, inputs any) (string, error) {
	canonical, err := Canonical(inputs)
	if err != nil {
		return "", err
	}

	h := sha256.New()
	h.Write([]byte(strings.TrimSpace(namespace)))
	h.Write([]byte{0})
	h.Write(canonical)
	return hex.EncodeToString(h.Sum(nil)), nil
}

// Canonical renders inputs as canonical JSON.
func Canonical(inputs any) ([]byte, error) {
	raw, err := json.Marshal(inputs)
	if err != nil {
		return nil, fmt.Errorf("marshal fingerprint inputs: %w", err)
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()

	var generic any
	if err := dec.Decode(&generic); err != nil {
		return nil, fmt.Errorf("decode fingerprint inputs: %w", err)
	}

	out, err := json.Marshal(canonicalize(generic))
	if err != nil {
		return nil, fmt.Errorf("marshal canonical inputs: %w", err)
	}
	return out, nil
}

func canonicalize(v any) any {
	switch val := v.(type) {
	case string:
		return normalizeText(val)
	case map[string]any:
		// encoding/json sorts map keys on output.
		out := make(map[string]any, len(val))
		for k, item := range val {
			out[k] = canonicalize(item)
		}
		return out
	case []any:
		out := make([]any, len(val))
		for i, item := range val {
			out[i] = canonicalize(item)
		}
		return out
	default:
		return val
	}
}

// Set returns the normalized, sorted, de-duplicated values of items. Empty
// strings are dropped and a nil result is never returned.
func Set(items []string) []string {
	seen := make(map[string]struct{}, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		s := normalizeText(item)
		if s == "" {
			continue
		}
		if _, dup := seen[s]; dup {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	sort.Strings(out)
	return out
}

func normalizeText(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
