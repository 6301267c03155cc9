package rubric

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrNotMappable indicates the normalized output was not a JSON object at the
// top level (for example a bare string or number).
var ErrNotMappable = errors.New("rubric: llm output is not a json object")

// SchemaError reports which field paths of the rubric schema failed
// validation.
type SchemaError struct {
	Fields []string
}

func (e *SchemaError) Error() string {
	return "rubric: schema validation failed: " + strings.Join(e.Fields, ", ")
}

// Score is a rubric dimension score: an integer from 1 to 10 or the literal
// "N/A" for a dimension that does not apply.
type Score struct {
	Value int
	NA    bool
}

// MarshalJSON renders the score in the wire format the prompt demands.
func (s Score) MarshalJSON() ([]byte, error) {
	if s.NA {
		return json.Marshal("N/A")
	}
	return json.Marshal(s.Value)
}

// UnmarshalJSON accepts an integer or the literal "N/A".
func (s *Score) UnmarshalJSON(data []byte) error {
	var str string
	if err := json.Unmarshal(data, &str); err == nil {
		if str != "N/A" {
			return fmt.Errorf("invalid score %q", str)
		}
		s.NA = true
		s.Value = 0
		return nil
	}

	var value int
	if err := json.Unmarshal(data, &value); err != nil {
		return err
	}
	s.NA = false
	s.Value = value
	return nil
}

// DimensionResult carries the score and justification for one dimension.
type DimensionResult struct {
	Score         Score  `json:"score"`
	Justification string `json:"justification"`
}

// Output is a validated rubric evaluation as returned by the LLM.
type Output struct {
	Reasoning  map[string]string          `json:"reasoning"`
	Evaluation map[string]DimensionResult `json:"evaluation"`
	Feedback   string                     `json:"feedback"`
}

// FromNormalized validates a normalized JSON tree against the rubric schema.
// Every dimension must appear in both reasoning and evaluation, and every
// score must be an integer 1-10, with "N/A" accepted only for "Acted On".
// All failing field paths are collected into a single SchemaError.
func FromNormalized(value interface{}) (Output, error) {
	root, ok := value.(map[string]interface{})
	if !ok {
		return Output{}, ErrNotMappable
	}

	var failed []string
	output := Output{
		Reasoning:  make(map[string]string, len(Dimensions)),
		Evaluation: make(map[string]DimensionResult, len(Dimensions)),
	}

	reasoning, ok := root["reasoning"].(map[string]interface{})
	if !ok {
		failed = append(failed, "reasoning")
	} else {
		for _, dimension := range Dimensions {
			raw, present := reasoning[dimension]
			if !present {
				failed = append(failed, "reasoning."+dimension)
				continue
			}
			text, ok := asOptionalString(raw)
			if !ok {
				failed = append(failed, "reasoning."+dimension)
				continue
			}
			output.Reasoning[dimension] = text
		}
	}

	evaluation, ok := root["evaluation"].(map[string]interface{})
	if !ok {
		failed = append(failed, "evaluation")
	} else {
		for _, dimension := range Dimensions {
			raw, present := evaluation[dimension]
			if !present {
				failed = append(failed, "evaluation."+dimension)
				continue
			}
			entry, ok := raw.(map[string]interface{})
			if !ok {
				failed = append(failed, "evaluation."+dimension)
				continue
			}

			result := DimensionResult{}
			score, ok := asScore(entry["score"], dimension)
			if !ok {
				failed = append(failed, "evaluation."+dimension+".score")
			} else {
				result.Score = score
			}

			justification, ok := asOptionalString(entry["justification"])
			if !ok {
				failed = append(failed, "evaluation."+dimension+".justification")
			} else {
				result.Justification = justification
			}

			output.Evaluation[dimension] = result
		}
	}

	feedback, ok := asOptionalString(root["feedback"])
	if !ok {
		failed = append(failed, "feedback")
	} else {
		output.Feedback = feedback
	}

	if len(failed) > 0 {
		sort.Strings(failed)
		return Output{}, &SchemaError{Fields: failed}
	}

	return output, nil
}

// asOptionalString accepts a string or nil; normalization turns empty strings
// into nil, which round back into "" here.
func asOptionalString(value interface{}) (string, bool) {
	if value == nil {
		return "", true
	}
	s, ok := value.(string)
	return s, ok
}

func asScore(value interface{}, dimension string) (Score, bool) {
	switch v := value.(type) {
	case int64:
		if v < 1 || v > 10 {
			return Score{}, false
		}
		return Score{Value: int(v)}, true
	case float64:
		if v != float64(int64(v)) || v < 1 || v > 10 {
			return Score{}, false
		}
		return Score{Value: int(v)}, true
	case string:
		// The normalizer preserves N/A tokens; only "Acted On" may use one.
		if v == "N/A" && dimension == DimensionActedOn {
			return Score{NA: true}, true
		}
		return Score{}, false
	default:
		return Score{}, false
	}
}
