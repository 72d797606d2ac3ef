package profile

import (
	"encoding/json"
	"sort"
)

// StringSet is a grow-only set of strings. Membership only ever increases
// through Union; the sole shrink path is an explicit Reset, invoked by the
// profile reset operation.
type StringSet struct {
	items map[string]struct{}
}

// NewStringSet returns an empty set.
func NewStringSet(values ...string) *StringSet {
	s := &StringSet{items: map[string]struct{}{}}
	s.Union(values)
	return s
}

// Union adds every value to the set, ignoring empties.
func (s *StringSet) Union(values []string) {
	for _, v := range values {
		if v == "" {
			continue
		}
		s.items[v] = struct{}{}
	}
}

// Contains reports membership.
func (s *StringSet) Contains(value string) bool {
	_, ok := s.items[value]
	return ok
}

// Len returns the number of members.
func (s *StringSet) Len() int {
	return len(s.items)
}

// Values returns the members in sorted order for deterministic output.
func (s *StringSet) Values() []string {
	values := make([]string, 0, len(s.items))
	for v := range s.items {
		values = append(values, v)
	}
	sort.Strings(values)
	return values
}

// Reset empties the set. Only the profile reset path calls this.
func (s *StringSet) Reset() {
	s.items = map[string]struct{}{}
}

// MarshalJSON encodes the set as a sorted JSON array.
func (s *StringSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Values())
}

// UnmarshalJSON decodes a JSON array into the set.
func (s *StringSet) UnmarshalJSON(data []byte) error {
	var values []string
	if err := json.Unmarshal(data, &values); err != nil {
		return err
	}
	s.items = make(map[string]struct{}, len(values))
	s.Union(values)
	return nil
}
