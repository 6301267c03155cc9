package rubric

import (
	"encoding/json"
	"errors"
	"io"
	"regexp"
	"strconv"
	"strings"
)

// ParseError indicates the raw LLM output was not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	return "rubric: parse llm output: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

var numericPattern = regexp.MustCompile(`^-?(\d+(\.\d*)?|\.\d+)$`)

// Decode parses raw text as strict JSON. There is no partial recovery and no
// markdown-fence stripping; the compiled prompt already forbids fences.
// Numbers are decoded as json.Number so integers survive the round trip.
func Decode(raw string) (interface{}, error) {
	decoder := json.NewDecoder(strings.NewReader(raw))
	decoder.UseNumber()

	var value interface{}
	if err := decoder.Decode(&value); err != nil {
		return nil, &ParseError{Err: err}
	}

	// Trailing non-whitespace after the document means the model wrapped the
	// JSON in prose, which counts as a bad attempt.
	if _, err := decoder.Token(); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Err: errors.New("trailing content after json document")}
	}

	return value, nil
}

// Normalize applies the scalar-cleanup rules recursively to a decoded JSON
// tree and returns the normalized tree. Normalize is idempotent.
//
// Rules: strings are trimmed; NONE, NULL and the empty string (case
// insensitive) become nil; N/A and NA are canonicalised to the literal "N/A"
// string rather than nulled, since "Acted On" legitimately scores as "N/A";
// numeric-looking strings become int64 or float64; objects and arrays are
// normalized element-wise; everything else passes through unchanged.
func Normalize(value interface{}) interface{} {
	switch v := value.(type) {
	case string:
		return normalizeString(v)
	case json.Number:
		return normalizeNumber(v)
	case map[string]interface{}:
		result := make(map[string]interface{}, len(v))
		for key, element := range v {
			result[key] = Normalize(element)
		}
		return result
	case []interface{}:
		result := make([]interface{}, len(v))
		for i, element := range v {
			result[i] = Normalize(element)
		}
		return result
	default:
		return value
	}
}

func normalizeString(s string) interface{} {
	trimmed := strings.TrimSpace(s)
	switch strings.ToUpper(trimmed) {
	case "", "NONE", "NULL":
		return nil
	case "N/A", "NA":
		return "N/A"
	}

	if numericPattern.MatchString(trimmed) {
		if !strings.Contains(trimmed, ".") {
			if n, err := strconv.ParseInt(trimmed, 10, 64); err == nil {
				return n
			}
		}
		if f, err := strconv.ParseFloat(trimmed, 64); err == nil {
			return f
		}
	}

	return trimmed
}

func normalizeNumber(n json.Number) interface{} {
	if !strings.ContainsAny(n.String(), ".eE") {
		if i, err := n.Int64(); err == nil {
			return i
		}
	}
	if f, err := n.Float64(); err == nil {
		return f
	}
	return n.String()
}
