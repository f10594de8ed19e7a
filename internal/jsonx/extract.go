// Package jsonx pulls a JSON object out of free-form model output.
package jsonx

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/kaptinlin/jsonrepair"
)

var ErrNoJSON = errors.New("no JSON object in text")

// Extract returns the first JSON object found in text. It tolerates code
// fences, prose around the object and the usual model mistakes (trailing
// commas, single quotes, a missing closing brace).
func Extract(text string) (map[string]any, error) {
	t := stripFences(strings.TrimSpace(text))
	if t == "" {
		return nil, ErrNoJSON
	}
	var out map[string]any
	if json.Unmarshal([]byte(t), &out) == nil && out != nil {
		return out, nil
	}
	start := strings.IndexByte(t, '{')
	if start == -1 {
		return nil, ErrNoJSON
	}
	candidate := balancedObject(t[start:])
	if json.Unmarshal([]byte(candidate), &out) == nil && out != nil {
		return out, nil
	}
	fixed, err := jsonrepair.JSONRepair(candidate)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	if err := json.Unmarshal([]byte(fixed), &out); err != nil || out == nil {
		return nil, fmt.Errorf("%w: repaired text is not an object", ErrNoJSON)
	}
	return out, nil
}

// Decode extracts the object and decodes it into v.
func Decode(text string, v any) error {
	m, err := Extract(text)
	if err != nil {
		return err
	}
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	return json.Unmarshal(b, v)
}

func stripFences(t string) string {
	i := strings.Index(t, "```")
	if i == -1 {
		return t
	}
	body := t[i+3:]
	// drop a language hint such as ```json
	if nl := strings.IndexByte(body, '\n'); nl != -1 && !strings.ContainsAny(body[:nl], "{[") {
		body = body[nl+1:]
	}
	if j := strings.Index(body, "```"); j != -1 {
		body = body[:j]
	}
	return strings.TrimSpace(body)
}

// balancedObject returns the prefix of s up to the brace closing s[0], or
// all of s when it never closes.
func balancedObject(s string) string {
	depth := 0
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}
