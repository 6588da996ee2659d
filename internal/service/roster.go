package service

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/noah-isme/autograde-api/internal/casing"
)

// RosterRecord is one student entry of a quiz roster.
type RosterRecord map[string]interface{}

// ParseRoster decodes a JSON array of student records.
func ParseRoster(data []byte) ([]RosterRecord, error) {
	var raw []interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, newValidationError("roster must be a JSON array of student records")
	}

	records := make([]RosterRecord, 0, len(raw))
	for i, item := range raw {
		obj, ok := item.(map[string]interface{})
		if !ok {
			return nil, newValidationError(fmt.Sprintf("roster entry %d is not an object", i+1))
		}
		records = append(records, RosterRecord(obj))
	}
	return records, nil
}

// ConvertRosterToFiles turns each record into a text file named after the
// student. Repeated names get an Attempt suffix counted from 2 in order of
// appearance; records without names fall back to their position and share
// the same collision count.
func ConvertRosterToFiles(records []RosterRecord) []IntakeFile {
	seen := make(map[string]int, len(records))
	files := make([]IntakeFile, 0, len(records))

	for i, record := range records {
		last, first := rosterNames(record)

		base := last + first
		if base == "" {
			base = fmt.Sprintf("student_%d", i+1)
		}
		key := strings.ToLower(base)
		seen[key]++
		name := base + ".txt"
		if n := seen[key]; n > 1 {
			name = fmt.Sprintf("%sAttempt%d.txt", base, n)
		}

		content, err := json.MarshalIndent(map[string]interface{}(record), "", "  ")
		if err != nil {
			content = []byte(fmt.Sprint(map[string]interface{}(record)))
		}

		files = append(files, IntakeFile{
			Name:        name,
			ContentType: "text/plain",
			Content:     content,
		})
	}
	return files
}

var (
	lastNameKeys  = []string{"lastName", "last_name"}
	firstNameKeys = []string{"firstName", "first_name"}
)

func rosterNames(record RosterRecord) (string, string) {
	return rosterLookup(record, lastNameKeys), rosterLookup(record, firstNameKeys)
}

// rosterLookup returns the first non-empty value among keys, then among any
// other key that camel-cases to keys[0], taken in sorted order.
func rosterLookup(record RosterRecord, keys []string) string {
	for _, key := range keys {
		if value := rosterField(record[key]); value != "" {
			return value
		}
	}

	others := make([]string, 0, len(record))
	for key := range record {
		if casing.SnakeToCamel(key) == keys[0] {
			others = append(others, key)
		}
	}
	sort.Strings(others)
	for _, key := range others {
		if value := rosterField(record[key]); value != "" {
			return value
		}
	}
	return ""
}

func rosterField(value interface{}) string {
	s, ok := value.(string)
	if !ok {
		return ""
	}
	s = strings.TrimSpace(s)
	return strings.NewReplacer("/", "", "\\", "").Replace(s)
}
