package compiler

import (
	"encoding/json"
	"strings"
)

// ExtractStructured recovers a structured object from raw model output
// according to the policy. It never fails: code fences are stripped, the
// first balanced {...} span is decoded, and on any decode failure the result
// degrades to an empty value for the policy's output key.
func ExtractStructured(text string, policy ExtractPolicy) map[string]any {
	fallback := map[string]any{policy.OutputKey: []any{}}

	cleaned := text
	if policy.StripFences {
		cleaned = stripCodeFences(cleaned)
	}

	span := cleaned
	if policy.FirstObject {
		span = firstBalancedObject(cleaned)
		if span == "" {
			return fallback
		}
	}

	var decoded map[string]any

	err := json.Unmarshal([]byte(span), &decoded)
	if err != nil || decoded == nil {
		return fallback
	}

	if policy.OutputSlice != nil {
		if list, ok := decoded[policy.OutputKey].([]any); ok && len(list) > *policy.OutputSlice {
			decoded[policy.OutputKey] = list[:*policy.OutputSlice]
		}
	}

	return decoded
}

// MergeWithPassThrough overlays the decoded step output onto a pass-through
// copy of the prepare output, minus excluded fields. Each step accumulates
// the context of earlier steps this way.
func MergeWithPassThrough(prepareOutput, decoded map[string]any, policy *PassThroughPolicy) map[string]any {
	merged := make(map[string]any, len(prepareOutput)+len(decoded))

	for key, value := range prepareOutput {
		if policy != nil && contains(policy.Exclude, key) {
			continue
		}

		merged[key] = value
	}

	for key, value := range decoded {
		merged[key] = value
	}

	return merged
}

func contains(list []string, needle string) bool {
	for _, item := range list {
		if item == needle {
			return true
		}
	}

	return false
}

// stripCodeFences removes leading and trailing markdown fence markers,
// including a language tag on the opening fence.
func stripCodeFences(text string) string {
	trimmed := strings.TrimSpace(text)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = trimmed[3:]
		if newline := strings.IndexByte(trimmed, '\n'); newline >= 0 && isLanguageTag(trimmed[:newline]) {
			trimmed = trimmed[newline+1:]
		}
	}

	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")

	return strings.TrimSpace(trimmed)
}

func isLanguageTag(line string) bool {
	return len(strings.TrimSpace(line)) <= 10 && !strings.ContainsAny(line, "{}")
}

// firstBalancedObject returns the first {...} span with balanced braces,
// respecting string literals and escapes, or "" when none exists.
func firstBalancedObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]

		if escaped {
			escaped = false

			continue
		}

		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == '{':
			depth++
		case c == '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}

	return ""
}
