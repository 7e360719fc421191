package llm

import (
	"fmt"
	"strings"
)

const extractLogPrefix = "llm:extract"

// ExtractJSONObject returns the first balanced {...} object in a reply,
// ignoring markdown code fences and any prose around it. Braces inside
// JSON strings are not counted.
func ExtractJSONObject(reply string) (string, error) {
	text := stripFences(reply)
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return "", fmt.Errorf("%s - no JSON object in reply", extractLogPrefix)
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1], nil
			}
		}
	}
	return "", fmt.Errorf("%s - unterminated JSON object in reply", extractLogPrefix)
}

func stripFences(reply string) string {
	text := strings.TrimSpace(reply)
	if !strings.Contains(text, "```") {
		return text
	}
	var b strings.Builder
	for _, line := range strings.Split(text, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		b.WriteString(line)
		b.WriteByte('\n')
	}
	return b.String()
}
