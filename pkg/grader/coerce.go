package grader

import (
	"bytes"
	"encoding/json"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

// Placeholders used when the reply omits a text field.
const (
	PlaceholderQuestion        = "Unnamed aspect"
	PlaceholderFeedback        = "No feedback provided"
	PlaceholderOverallFeedback = "No overall feedback provided"
)

// Outcome records which path Coerce took.
type Outcome string

const (
	// OutcomeValid means the reply matched the schema.
	OutcomeValid Outcome = "valid"
	// OutcomeCoerced means defaults were filled in.
	OutcomeCoerced Outcome = "coerced"
)

const replySchemaJSON = `{
  "type": "object",
  "required": ["results", "totalScore", "overallFeedback"],
  "properties": {
    "results": {
      "type": "array",
      "items": {
        "type": "object",
        "required": ["question", "mistakes", "score", "feedback"],
        "properties": {
          "question": {"type": "string", "minLength": 1},
          "mistakes": {"type": "array", "items": {"type": "string"}},
          "score": {"type": "number"},
          "feedback": {"type": "string", "minLength": 1}
        }
      }
    },
    "totalScore": {"type": "number"},
    "overallFeedback": {"type": "string", "minLength": 1}
  }
}`

var replySchema = jsonschema.MustCompileString("grading_reply.schema.json", replySchemaJSON)

// Empty is the result used for a file whose grading produced nothing usable.
func Empty() Result {
	return Result{
		Results:         []AspectResult{},
		TotalScore:      0,
		OverallFeedback: PlaceholderOverallFeedback,
	}
}

// Coerce turns an untrusted grading reply into a well-formed Result. It never
// fails: unusable input degrades to Empty.
func Coerce(raw []byte) (Result, Outcome) {
	result, outcome := parseReply(raw)
	observeReply(outcome)
	return result, outcome
}

// Decode is Coerce without reply metrics, for payloads read back from storage.
func Decode(raw []byte) Result {
	result, _ := parseReply(raw)
	return result
}

func parseReply(raw []byte) (Result, Outcome) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return Empty(), OutcomeCoerced
	}

	var doc interface{}
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return Empty(), OutcomeCoerced
	}

	if obj, ok := doc.(map[string]interface{}); ok && replySchema.Validate(obj) == nil {
		var strict Result
		if err := json.Unmarshal(trimmed, &strict); err == nil {
			return normalise(strict), OutcomeValid
		}
	}

	return coerceValue(doc), OutcomeCoerced
}

func coerceValue(doc interface{}) Result {
	obj, _ := doc.(map[string]interface{})

	items, _ := obj["results"].([]interface{})
	results := make([]AspectResult, 0, len(items))
	var sum float64
	for _, item := range items {
		entry, _ := item.(map[string]interface{})
		aspect := AspectResult{
			Question: stringOr(entry["question"], PlaceholderQuestion),
			Mistakes: stringList(entry["mistakes"]),
			Score:    numberOr(entry["score"], 0),
			Feedback: stringOr(entry["feedback"], PlaceholderFeedback),
		}
		sum += aspect.Score
		results = append(results, aspect)
	}

	total, ok := obj["totalScore"].(float64)
	if !ok {
		total = sum
	}

	return Result{
		Results:         results,
		TotalScore:      total,
		OverallFeedback: stringOr(obj["overallFeedback"], PlaceholderOverallFeedback),
	}
}

func normalise(result Result) Result {
	if result.Results == nil {
		result.Results = []AspectResult{}
	}
	for i := range result.Results {
		if result.Results[i].Mistakes == nil {
			result.Results[i].Mistakes = []string{}
		}
	}
	return result
}

func stringOr(value interface{}, fallback string) string {
	if s, ok := value.(string); ok && strings.TrimSpace(s) != "" {
		return s
	}
	return fallback
}

func numberOr(value interface{}, fallback float64) float64 {
	if n, ok := value.(float64); ok {
		return n
	}
	return fallback
}

func stringList(value interface{}) []string {
	items, _ := value.([]interface{})
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
