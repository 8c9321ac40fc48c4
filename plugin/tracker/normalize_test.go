package tracker

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name     string
		raw      string
		expected string
	}{
		{"absent", "", ""},
		{"null", `null`, ""},
		{"string", `"Office365"`, "Office365"},
		{"integer", `42`, "42"},
		{"float", `3.5`, "3.5"},
		{"bool", `true`, "true"},
		{"select with value", `{"value": "Критичная", "id": "10001"}`, "Критичная"},
		{"select with name", `{"name": "Закупки"}`, "Закупки"},
		{"select prefers value over name", `{"value": "A", "name": "B"}`, "A"},
		{"select with empty value falls back to name", `{"value": "", "name": "B"}`, "B"},
		{"list of scalars", `["one", "two"]`, "one\ntwo"},
		{"list drops empty entries", `["one", "", "two", null]`, "one\ntwo"},
		{
			"list of user references",
			`[{"displayName": "Ivan Petrov", "key": "ipetrov"}, {"displayName": "Anna", "accountId": "a-1"}]`,
			"Ivan Petrov (ipetrov)\nAnna (a-1)",
		},
		{
			"user reference with key only",
			`[{"key": "ipetrov"}]`,
			"(ipetrov)",
		},
		{
			"user reference with display name only",
			`[{"displayName": "Ivan Petrov"}]`,
			"Ivan Petrov",
		},
		{
			"list entry with name renders as key",
			`[{"name": "reviewers"}]`,
			"(reviewers)",
		},
		{"object without value or name", `{"self": "http://x"}`, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var raw json.RawMessage
			if tt.raw != "" {
				raw = json.RawMessage(tt.raw)
			}
			assert.Equal(t, tt.expected, Normalize(raw, "customfield_10204"))
		})
	}
}

func TestNormalizeNeverPanics(t *testing.T) {
	// The normalizer must be total over arbitrary input.
	inputs := []string{
		`{`, `[[[{"a":`, `{"value": [1, 2]}`, `[{"displayName": 5}]`,
		`[[["deep"]]]`, `{"value": null, "name": null}`,
	}
	for _, input := range inputs {
		assert.NotPanics(t, func() {
			Normalize(json.RawMessage(input), "customfield_10100")
		})
	}
}
