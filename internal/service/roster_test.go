package service

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"
)

func fileNames(files []IntakeFile) []string {
	names := make([]string, 0, len(files))
	for _, file := range files {
		names = append(names, file.Name)
	}
	return names
}

func TestConvertRosterToFilesNamesDeterministically(t *testing.T) {
	records, err := ParseRoster([]byte(`[
		{"firstName": "Jane", "lastName": "Doe", "answers": [1, 2]},
		{"first_name": "John", "last_name": "Smith"},
		{"firstName": "jane", "lastName": "doe"},
		{"score": 10},
		{"firstName": "Jane", "lastName": "Doe"},
		{"lastName": "Solo"}
	]`))
	require.NoError(t, err)

	first := ConvertRosterToFiles(records)
	second := ConvertRosterToFiles(records)

	expected := []string{
		"DoeJane.txt",
		"SmithJohn.txt",
		"doejaneAttempt2.txt",
		"student_4.txt",
		"DoeJaneAttempt3.txt",
		"Solo.txt",
	}
	require.Equal(t, expected, fileNames(first))
	require.Equal(t, fileNames(first), fileNames(second))

	for _, file := range first {
		require.Equal(t, "text/plain", file.ContentType)
	}

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(first[0].Content, &decoded))
	require.Equal(t, "Jane", decoded["firstName"])
	require.Contains(t, string(first[0].Content), "\n  \"answers\"")
}

func TestRosterNamesPreferCamelCaseKeys(t *testing.T) {
	records, err := ParseRoster([]byte(`[{"last_name":"Lovelace","lastName":"Byron","firstName":"Ada"},{"last_name":"Lovelace","lastName":" ","first_name":"Ada"}]`))
	require.NoError(t, err)

	for i := 0; i < 50; i++ {
		require.Equal(t, []string{"ByronAda.txt", "LovelaceAda.txt"}, fileNames(ConvertRosterToFiles(records)))
	}
}

func TestParseRosterRejectsNonArrays(t *testing.T) {
	_, err := ParseRoster([]byte(`{"firstName": "Jane"}`))
	require.True(t, IsValidationError(err))

	_, err = ParseRoster([]byte(`[{"firstName": "Jane"}, 4]`))
	require.True(t, IsValidationError(err))

	_, err = ParseRoster([]byte(`not json`))
	require.True(t, IsValidationError(err))

	records, err := ParseRoster([]byte(`[]`))
	require.NoError(t, err)
	require.Empty(t, ConvertRosterToFiles(records))
}
