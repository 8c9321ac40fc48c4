package tracker

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Normalize converts a raw tracker field value to its canonical string form.
// It is total over arbitrary JSON input and never fails; unrecognized shapes
// degrade to a best-effort string. The field id is used for diagnostics only.
//
// Rules:
//   - null or absent -> ""
//   - list -> canonical string per entry joined by newline, empties dropped;
//     object entries render as "<display-name> (<key>)"
//   - object with "value" or "name" -> that key's value, preferring "value"
//   - any other scalar -> its string form
func Normalize(raw json.RawMessage, fieldID string) string {
	if len(raw) == 0 {
		return ""
	}

	var value any
	if err := json.Unmarshal(raw, &value); err != nil {
		slog.Debug("field value is not valid JSON, using raw text",
			slog.String("field", fieldID), slog.String("error", err.Error()))
		return strings.TrimSpace(string(raw))
	}

	return normalizeValue(value)
}

func normalizeValue(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case []any:
		parts := make([]string, 0, len(v))
		for _, item := range v {
			if s := normalizeListEntry(item); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, "\n")
	case map[string]any:
		return selectValue(v)
	default:
		return stringify(v)
	}
}

// normalizeListEntry renders one entry of a multi-valued field. User-picker
// entries carry displayName plus an identifying key/name/accountId.
func normalizeListEntry(item any) string {
	obj, ok := item.(map[string]any)
	if !ok {
		return stringify(item)
	}

	displayName, _ := obj["displayName"].(string)
	key := firstString(obj, "key", "name", "accountId")
	if displayName == "" && key == "" {
		return strings.TrimSpace(fmt.Sprint(obj))
	}
	if key != "" {
		return strings.TrimSpace(displayName + " (" + key + ")")
	}
	return displayName
}

// selectValue renders a select-style object {"value": ...} or {"name": ...},
// preferring value over name. Returns "" for any other object.
func selectValue(obj map[string]any) string {
	if v, ok := obj["value"]; ok {
		if s := stringify(v); s != "" {
			return s
		}
	}
	if v, ok := obj["name"]; ok {
		return stringify(v)
	}
	return ""
}

func firstString(obj map[string]any, keys ...string) string {
	for _, k := range keys {
		if s, ok := obj[k].(string); ok && s != "" {
			return s
		}
	}
	return ""
}

func stringify(value any) string {
	switch v := value.(type) {
	case nil:
		return ""
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprint(v)
	}
}
