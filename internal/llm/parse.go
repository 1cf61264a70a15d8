// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package llm

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/pdiddy/litbrief/pkg/types"
)

// WrapperTag is the tag models without JSON guarantees are asked to wrap
// their answer in.
const WrapperTag = "json"

// Attempt is one strategy for locating a JSON document in raw model output.
type Attempt struct {
	Name string
	Fn   func(raw string) (string, error)
}

// thinkTagPattern matches a leading <think>...</think> block.
var thinkTagPattern = regexp.MustCompile(`(?s)^\s*<think>.*?</think>\s*`)

// DirectJSON accepts the whole response when it is a JSON object.
var DirectJSON = Attempt{
	Name: "direct",
	Fn: func(raw string) (string, error) {
		s := strings.TrimSpace(raw)
		if !strings.HasPrefix(s, "{") {
			return "", errors.New("response is not a JSON object")
		}
		if !json.Valid([]byte(s)) {
			return "", errors.New("response is not valid JSON")
		}
		return s, nil
	},
}

// ExtractObject locates the first balanced {...} block.
var ExtractObject = Attempt{
	Name: "extract",
	Fn: func(raw string) (string, error) {
		s := thinkTagPattern.ReplaceAllString(raw, "")
		obj, ok := extractBalancedObject(s)
		if !ok {
			return "", errors.New("no JSON object found")
		}
		if !json.Valid([]byte(obj)) {
			return "", errors.New("extracted object is not valid JSON")
		}
		return obj, nil
	},
}

// StripWrapper looks for <tag>...</tag> and extracts the object inside it.
func StripWrapper(tag string) Attempt {
	re := regexp.MustCompile(`(?s)<` + regexp.QuoteMeta(tag) + `>(.*?)</` + regexp.QuoteMeta(tag) + `>`)
	return Attempt{
		Name: "wrapper:" + tag,
		Fn: func(raw string) (string, error) {
			m := re.FindStringSubmatch(raw)
			if m == nil {
				return "", fmt.Errorf("no <%s> wrapper found", tag)
			}
			return ExtractObject.Fn(m[1])
		},
	}
}

// AttemptsFor returns the parse order for model: direct then extract when the
// model guarantees JSON, wrapper then extract otherwise.
func AttemptsFor(model types.ModelInfo) []Attempt {
	if model.GuaranteesJSON() {
		return []Attempt{DirectJSON, ExtractObject}
	}
	return []Attempt{StripWrapper(WrapperTag), ExtractObject}
}

// OutputDirective is the prompt instruction matching the parse order that
// AttemptsFor picks for model.
func OutputDirective(model types.ModelInfo) string {
	if model.GuaranteesJSON() {
		return "Respond with a single JSON object and nothing else."
	}
	return "Respond with a single JSON object wrapped in <" + WrapperTag + "></" + WrapperTag + "> tags. Write nothing outside the tags."
}

// Parse runs attempts in order and returns the first candidate that decodes
// into T and passes validate. validate may be nil. When every attempt fails
// the result is a ParseError naming each failure.
func Parse[T any](raw string, attempts []Attempt, validate func(*T) error) (T, error) {
	var zero T
	if strings.TrimSpace(raw) == "" {
		return zero, ParseError("empty response", nil)
	}

	failures := make([]string, 0, len(attempts))
	for _, a := range attempts {
		candidate, err := a.Fn(raw)
		if err != nil {
			failures = append(failures, a.Name+": "+err.Error())
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(candidate), &v); err != nil {
			failures = append(failures, a.Name+": decode: "+err.Error())
			continue
		}
		if validate != nil {
			if err := validate(&v); err != nil {
				failures = append(failures, a.Name+": invalid: "+err.Error())
				continue
			}
		}
		return v, nil
	}
	return zero, ParseError("no parse attempt succeeded", errors.New(strings.Join(failures, "; ")))
}

// extractBalancedObject returns the first {...} block with balanced braces,
// ignoring braces inside JSON strings.
func extractBalancedObject(s string) (string, bool) {
	start := strings.IndexByte(s, '{')
	if start < 0 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(s); i++ {
		c := s[i]
		if escaped {
			escaped = false
			continue
		}
		if c == '\\' && inString {
			escaped = true
			continue
		}
		if c == '"' {
			inString = !inString
			continue
		}
		if inString {
			continue
		}
		switch c {
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}
	return "", false
}
