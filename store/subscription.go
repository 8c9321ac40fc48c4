package store

// Subscription is one subscriber's notification preference: the chosen
// department plus an optional secondary filter. The storage shape permits
// several filter entries, though the selection flow populates at most one.
type Subscription struct {
	// ID is the stable subscriber identity (messaging chat id).
	ID int64
	// Department is the primary subscription partition. Empty until the
	// subscriber picks a department.
	Department string
	// Filters maps a filter field id to the selected value. An entry is
	// only meaningful for a field valid for the current department; keeping
	// the two consistent is the caller's responsibility.
	Filters map[string]string
}

// Clone returns a deep copy, so callers never observe store-internal maps.
func (s *Subscription) Clone() *Subscription {
	clone := &Subscription{
		ID:         s.ID,
		Department: s.Department,
		Filters:    make(map[string]string, len(s.Filters)),
	}
	for fieldID, value := range s.Filters {
		clone.Filters[fieldID] = value
	}
	return clone
}

// UpsertSubscription specifies a subscription update. Nil fields are left
// untouched: setting the department alone does not clear existing filters.
type UpsertSubscription struct {
	ID            int64
	Department    *string
	FilterFieldID *string
	FilterValue   *string
}

// LoginLink ties a subscriber identity to a tracker login, recorded after a
// successful group-membership check.
type LoginLink struct {
	ID    int64
	Login string
}
