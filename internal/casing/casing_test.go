package casing

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestKeyConversion(t *testing.T) {
	require.Equal(t, "totalScore", SnakeToCamel("total_score"))
	require.Equal(t, "submissionId", SnakeToCamel("submission_id"))
	require.Equal(t, "plain", SnakeToCamel("plain"))
	require.Equal(t, "trailing_", SnakeToCamel("trailing_"))
	require.Equal(t, "a_1", SnakeToCamel("a_1"))

	require.Equal(t, "overall_feedback", CamelToSnake("overallFeedback"))
	require.Equal(t, "is_base64", CamelToSnake("isBase64"))
	require.Equal(t, "plain", CamelToSnake("plain"))
}

func TestCamelToSnakeOnlySplitsASCIIUpperCase(t *testing.T) {
	require.Equal(t, "Élan", CamelToSnake("Élan"))
	require.Equal(t, "straßeΣigma", CamelToSnake("straßeΣigma"))
	require.Equal(t, "noteÜber_id", CamelToSnake("noteÜberId"))
	require.Equal(t, "_x_y", CamelToSnake("XY"))
}

func TestTransformIsRecursiveAndElementWise(t *testing.T) {
	var payload interface{}
	require.NoError(t, json.Unmarshal([]byte(`{
		"totalScore": 8,
		"overallFeedback": "ok",
		"results": [
			{"question": "Q1", "mistakeList": ["a"], "score": 4},
			[{"nestedKey": true}],
			"scalar"
		]
	}`), &payload))

	snake := ToSnake(payload).(map[string]interface{})
	require.Contains(t, snake, "total_score")
	require.Contains(t, snake, "overall_feedback")

	results := snake["results"].([]interface{})
	require.Len(t, results, 3)
	require.Contains(t, results[0].(map[string]interface{}), "mistake_list")
	require.Contains(t, results[1].([]interface{})[0].(map[string]interface{}), "nested_key")
	require.Equal(t, "scalar", results[2])

	require.Equal(t, payload, ToCamel(snake))
}

func TestTransformLeavesScalarsAlone(t *testing.T) {
	require.Nil(t, ToCamel(nil))
	require.Equal(t, 3.5, ToSnake(3.5))
	require.Equal(t, "some_value", ToCamel("some_value"))
}
