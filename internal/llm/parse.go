package llm

import (
	"encoding/json"
	"fmt"
	"html"
	"regexp"
	"strings"
)

var thinkBlock = regexp.MustCompile(`(?s)<think>.*?</think>`)

// ParseDelimited splits a free-text completion into phrases. A semicolon
// anywhere in the text makes it the delimiter; otherwise commas are used.
// Segments are trimmed and empty ones dropped.
func ParseDelimited(completion string) []string {
	text := cleanCompletion(completion)
	if strings.Contains(text, ";") {
		return split(text, ";")
	}
	return split(text, ",")
}

// SplitOn splits a completion on an explicit delimiter.
func SplitOn(completion, delimiter string) []string {
	return split(cleanCompletion(completion), delimiter)
}

func split(text, delimiter string) []string {
	var out []string
	for _, part := range strings.Split(text, delimiter) {
		part = strings.TrimSpace(part)
		part = strings.Trim(part, `"'*`)
		part = strings.TrimSpace(part)
		if part != "" {
			out = append(out, part)
		}
	}
	return out
}

// cleanCompletion removes reasoning blocks and decodes entities.
func cleanCompletion(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	s = html.UnescapeString(s)
	s = strings.ReplaceAll(s, "\r", "")
	return strings.TrimSpace(strings.ReplaceAll(s, "\n", " "))
}

// ParseSchema reads the string-list field from a structured completion. The
// completion may be one object or an array of objects (chunked extraction);
// arrays are merged in order. Code fences around the JSON are tolerated.
func ParseSchema(completion, field string) ([]string, error) {
	raw := stripFences(thinkBlock.ReplaceAllString(completion, ""))
	if raw == "" {
		return nil, nil
	}

	var objects []map[string]json.RawMessage
	switch raw[0] {
	case '[':
		if err := json.Unmarshal([]byte(raw), &objects); err != nil {
			return nil, fmt.Errorf("decode structured completion: %w", err)
		}
	case '{':
		var obj map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &obj); err != nil {
			return nil, fmt.Errorf("decode structured completion: %w", err)
		}
		objects = append(objects, obj)
	default:
		return nil, fmt.Errorf("decode structured completion: unexpected %q", raw[0])
	}

	var out []string
	for _, obj := range objects {
		value, ok := obj[field]
		if !ok {
			continue
		}
		var list []string
		if err := json.Unmarshal(value, &list); err != nil {
			// Some models return a single string instead of a list.
			var single string
			if err := json.Unmarshal(value, &single); err != nil {
				return nil, fmt.Errorf("decode %s: %w", field, err)
			}
			list = ParseDelimited(single)
		}
		for _, item := range list {
			if item = strings.TrimSpace(html.UnescapeString(item)); item != "" {
				out = append(out, item)
			}
		}
	}
	return out, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
