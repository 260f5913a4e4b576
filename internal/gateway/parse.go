package gateway

import (
	"encoding/json"
	"strconv"
	"strings"

	"github.com/leadbit-flash1/251005forms/internal/field"
)

// ParseSuggestions extracts suggestions from arbitrary model output. It
// never fails: malformed input degrades to fewer or zero suggestions.
// Attempts, in order: chat-completion envelope unwrap, BOM strip, code
// fence strip, direct array parse, then a character scan that recovers
// every complete top-level object inside the outermost array (truncated
// or malformed trailing objects are skipped silently).
func ParseSuggestions(raw string) []field.Suggestion {
	text := strings.TrimPrefix(strings.TrimSpace(raw), "\uFEFF")

	var envelope struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal([]byte(text), &envelope); err == nil && len(envelope.Choices) > 0 {
		if inner := strings.TrimSpace(envelope.Choices[0].Message.Content); inner != "" {
			text = strings.TrimPrefix(inner, "\uFEFF")
		}
	}

	text = stripFences(text)

	var loose []map[string]interface{}
	if err := json.Unmarshal([]byte(text), &loose); err == nil {
		return coerceAll(loose)
	}
	return coerceAll(recoverObjects(text))
}

// stripFences drops leading and trailing markdown code fence lines.
func stripFences(text string) string {
	lines := strings.Split(text, "\n")
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "```") {
		lines = lines[1:]
	}
	if len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[len(lines)-1]), "```") {
		lines = lines[:len(lines)-1]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// recoverObjects scans from the first '[' tracking string-literal state
// (respecting backslash escapes) and brace depth, parsing each complete
// top-level object independently. Objects that fail to parse are skipped.
func recoverObjects(text string) []map[string]interface{} {
	start := strings.Index(text, "[")
	if start == -1 {
		return nil
	}

	var out []map[string]interface{}
	depth := 0
	objStart := -1
	inString := false
	escaped := false

	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			if depth == 0 {
				objStart = i
			}
			depth++
		case '}':
			depth--
			if depth == 0 && objStart >= 0 {
				var m map[string]interface{}
				if err := json.Unmarshal([]byte(text[objStart:i+1]), &m); err == nil {
					out = append(out, m)
				}
				objStart = -1
			}
		case ']':
			if depth == 0 {
				// end of the outermost array
				return out
			}
		}
	}
	return out
}

func coerceAll(items []map[string]interface{}) []field.Suggestion {
	out := make([]field.Suggestion, 0, len(items))
	for _, m := range items {
		if m == nil {
			continue
		}
		s := coerce(m)
		if s.Key == "" && s.Index < 0 {
			// nothing to resolve against
			continue
		}
		out = append(out, s)
	}
	return out
}

// coerce validates and converts one loosely-typed object into a Suggestion:
// value forced to string, confidence clamped to [0,1], positional hints
// defaulting to -1 when absent.
func coerce(m map[string]interface{}) field.Suggestion {
	s := field.Suggestion{
		Key:         asString(m["key"]),
		Index:       asIndex(m["index"]),
		Value:       asString(m["value"]),
		Confidence:  0.5,
		Reason:      asString(m["reason"]),
		FormIndex:   asIndex(m["formIndex"]),
		OrderInForm: asIndex(m["orderInForm"]),
	}
	if c, ok := m["confidence"].(float64); ok {
		switch {
		case c < 0:
			s.Confidence = 0
		case c > 1:
			s.Confidence = 1
		default:
			s.Confidence = c
		}
	}
	return s
}

func asString(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	default:
		return ""
	}
}

func asIndex(v interface{}) int {
	switch t := v.(type) {
	case float64:
		return int(t)
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(t)); err == nil {
			return n
		}
	}
	return -1
}
