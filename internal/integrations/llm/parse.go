package llm

import (
	"fmt"
	"strings"

	"github.com/tidwall/gjson"

	"tokasu/internal/domain"
)

var narrativeFields = []string{"summary", "analysis", "recommendation", "legalRisk", "responseFlow"}

// ExtractJSONObject returns the first balanced, valid JSON object in text.
// Code fences and surrounding prose are ignored.
func ExtractJSONObject(text string) (string, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")

	for start := strings.IndexByte(text, '{'); start >= 0; {
		if end := matchBrace(text, start); end > 0 {
			candidate := text[start : end+1]
			if gjson.Valid(candidate) {
				return candidate, nil
			}
		}
		next := strings.IndexByte(text[start+1:], '{')
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", fmt.Errorf("%w: no JSON object in response", domain.ErrMalformedResponse)
}

// matchBrace returns the index of the brace closing the one at start, or -1.
func matchBrace(text string, start int) int {
	depth := 0
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
			depth++
		case '}':
			depth--
			if depth == 0 {
				return i
			}
		}
	}
	return -1
}

// ParseResult extracts and validates the classifier's JSON payload. Any
// missing or mistyped field is an error; severity is rounded and clamped.
func ParseResult(text string) (ClassificationResult, error) {
	obj, err := ExtractJSONObject(text)
	if err != nil {
		return ClassificationResult{}, err
	}
	doc := gjson.Parse(obj)

	sev := doc.Get("severity")
	if sev.Type != gjson.Number {
		return ClassificationResult{}, fmt.Errorf("%w: severity missing or not a number", domain.ErrMalformedResponse)
	}

	flag := doc.Get("isKasuhara")
	if !flag.Exists() {
		flag = doc.Get("isHarassment")
	}
	if flag.Type != gjson.True && flag.Type != gjson.False {
		return ClassificationResult{}, fmt.Errorf("%w: isKasuhara missing or not a boolean", domain.ErrMalformedResponse)
	}

	text5 := make(map[string]string, len(narrativeFields))
	for _, name := range narrativeFields {
		v := doc.Get(name)
		if v.Type != gjson.String {
			return ClassificationResult{}, fmt.Errorf("%w: %s missing or not a string", domain.ErrMalformedResponse, name)
		}
		text5[name] = v.String()
	}

	return ClassificationResult{
		Severity:       domain.ClampSeverity(sev.Float()),
		IsHarassment:   flag.Bool(),
		Summary:        text5["summary"],
		Analysis:       text5["analysis"],
		Recommendation: text5["recommendation"],
		LegalRisk:      text5["legalRisk"],
		ResponseFlow:   text5["responseFlow"],
		Source:         domain.SourceAI,
	}, nil
}
