package flow

import (
	"encoding/json"
	"strings"
)

// SlugSet is an ordered, duplicate-free list of slugs. Slugs are opaque,
// case-sensitive strings. The comma-joined form only appears at the JSON
// and CSV boundaries.
type SlugSet struct {
	items []string
}

// NewSlugSet builds a set from slugs, trimming whitespace and dropping empty
// entries and repeats.
func NewSlugSet(slugs ...string) SlugSet {
	var s SlugSet
	for _, slug := range slugs {
		s = s.Add(slug)
	}
	return s
}

// ParseSlugs parses the comma-joined form.
func ParseSlugs(joined string) SlugSet {
	if joined == "" {
		return SlugSet{}
	}
	return NewSlugSet(strings.Split(joined, ",")...)
}

// Len returns the number of slugs.
func (s SlugSet) Len() int { return len(s.items) }

// Empty reports whether the set has no slugs.
func (s SlugSet) Empty() bool { return len(s.items) == 0 }

// Contains reports whether slug is a member.
func (s SlugSet) Contains(slug string) bool {
	slug = strings.TrimSpace(slug)
	for _, it := range s.items {
		if it == slug {
			return true
		}
	}
	return false
}

// Add returns a set with slug appended. Adding a member is a no-op.
func (s SlugSet) Add(slug string) SlugSet {
	slug = strings.TrimSpace(slug)
	if slug == "" || s.Contains(slug) {
		return s
	}
	items := make([]string, len(s.items), len(s.items)+1)
	copy(items, s.items)
	return SlugSet{items: append(items, slug)}
}

// Remove returns a set without slug.
func (s SlugSet) Remove(slug string) SlugSet {
	slug = strings.TrimSpace(slug)
	if !s.Contains(slug) {
		return s
	}
	items := make([]string, 0, len(s.items)-1)
	for _, it := range s.items {
		if it != slug {
			items = append(items, it)
		}
	}
	return SlugSet{items: items}
}

// Rename returns a set with from replaced by to in place. If to is already a
// member, from is simply dropped.
func (s SlugSet) Rename(from, to string) SlugSet {
	from, to = strings.TrimSpace(from), strings.TrimSpace(to)
	if from == to || !s.Contains(from) {
		return s
	}
	if to == "" || s.Contains(to) {
		return s.Remove(from)
	}
	items := make([]string, len(s.items))
	for i, it := range s.items {
		if it == from {
			it = to
		}
		items[i] = it
	}
	return SlugSet{items: items}
}

// Slice returns a copy of the slugs in order.
func (s SlugSet) Slice() []string {
	if len(s.items) == 0 {
		return nil
	}
	out := make([]string, len(s.items))
	copy(out, s.items)
	return out
}

// String returns the comma-joined form.
func (s SlugSet) String() string { return strings.Join(s.items, ",") }

func (s SlugSet) clone() SlugSet { return SlugSet{items: s.Slice()} }

// MarshalJSON encodes the set as its comma-joined string.
func (s SlugSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// UnmarshalJSON accepts a comma-joined string, an array of strings or null.
func (s *SlugSet) UnmarshalJSON(b []byte) error {
	if string(b) == "null" {
		*s = SlugSet{}
		return nil
	}
	var joined string
	if err := json.Unmarshal(b, &joined); err == nil {
		*s = ParseSlugs(joined)
		return nil
	}
	var list []string
	if err := json.Unmarshal(b, &list); err != nil {
		return err
	}
	*s = NewSlugSet(list...)
	return nil
}
