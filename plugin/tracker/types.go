package tracker

import "encoding/json"

// Issue is one tracked record as returned by the tracker, with raw field
// values and the human-readable label map from the names expansion.
type Issue struct {
	Key string `json:"key"`
	// Fields maps field id to its raw JSON value.
	Fields map[string]json.RawMessage `json:"fields"`
	// Names maps field id to its human-readable label. Diagnostic only.
	Names map[string]string `json:"names"`
}

// searchResponse is the paginated search envelope.
type searchResponse struct {
	StartAt    int      `json:"startAt"`
	MaxResults int      `json:"maxResults"`
	Total      int      `json:"total"`
	Issues     []*Issue `json:"issues"`
}

// groupMember is one entry of the group membership listing.
type groupMember struct {
	Name string `json:"name"`
	Key  string `json:"key"`
}

// groupMemberResponse is the paginated group membership envelope.
type groupMemberResponse struct {
	Values []groupMember `json:"values"`
	IsLast bool          `json:"isLast"`
}

// EditMeta describes which fields of an issue are editable.
type EditMeta struct {
	Fields map[string]json.RawMessage `json:"fields"`
}
