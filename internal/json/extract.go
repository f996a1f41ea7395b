// Package json pulls structured payloads out of free-form model output.
//
// Models asked for JSON or SQL frequently wrap it in a fenced block or add a
// sentence around it. These helpers recover the payload.
package json

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// StripCodeFence removes a surrounding markdown fence such as ```json or
// ```sql. Text without a fence is returned trimmed.
func StripCodeFence(s string) string {
	trimmed := strings.TrimSpace(s)
	if !strings.HasPrefix(trimmed, "```") {
		return trimmed
	}

	trimmed = strings.TrimPrefix(trimmed, "```")
	// Drop the info string (language tag) on the opening line.
	if nl := strings.IndexByte(trimmed, '\n'); nl >= 0 {
		tag := strings.TrimSpace(trimmed[:nl])
		if !strings.ContainsAny(tag, " {[") {
			trimmed = trimmed[nl+1:]
		}
	}
	trimmed = strings.TrimSpace(trimmed)
	trimmed = strings.TrimSuffix(trimmed, "```")
	return strings.TrimSpace(trimmed)
}

// ExtractJSON returns the first complete JSON object found in s.
func ExtractJSON(s string) (string, error) {
	s = StripCodeFence(s)
	if json.Valid([]byte(s)) && strings.HasPrefix(s, "{") {
		return s, nil
	}

	for start := strings.IndexByte(s, '{'); start >= 0; {
		dec := json.NewDecoder(strings.NewReader(s[start:]))
		var raw json.RawMessage
		if err := dec.Decode(&raw); err == nil {
			return string(bytes.TrimSpace(raw)), nil
		}
		next := strings.IndexByte(s[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}

	preview := s
	if len(preview) > 100 {
		preview = preview[:100] + "..."
	}
	return "", fmt.Errorf("no JSON object in response: %q", preview)
}

// Decode extracts the first JSON object from s and unmarshals it into T.
func Decode[T any](s string) (T, error) {
	var out T
	raw, err := ExtractJSON(s)
	if err != nil {
		return out, err
	}
	if err := json.Unmarshal([]byte(raw), &out); err != nil {
		return out, fmt.Errorf("failed to unmarshal JSON: %w", err)
	}
	return out, nil
}
