package models

import (
	"database/sql/driver"
	"fmt"
	"strings"
)

// Tag is a member of the fixed safety-concern vocabulary.
type Tag string

// Safety-concern vocabulary. Declaration order is the canonical storage order.
const (
	TagHarassment     Tag = "harassment"
	TagPickpocketing  Tag = "pickpocketing"
	TagNightTransit   Tag = "night_transit"
	TagAccommodation  Tag = "accommodation"
	TagRideshare      Tag = "rideshare"
	TagPoliceResponse Tag = "police_response"
	TagScams          Tag = "scams"
	TagCatcalling     Tag = "catcalling"
	TagOther          Tag = "other"
)

// tagSeparator joins tags in the safety_reports.tags column.
const tagSeparator = ","

var vocabulary = []Tag{
	TagHarassment,
	TagPickpocketing,
	TagNightTransit,
	TagAccommodation,
	TagRideshare,
	TagPoliceResponse,
	TagScams,
	TagCatcalling,
	TagOther,
}

var tagRank = func() map[Tag]int {
	m := make(map[Tag]int, len(vocabulary))
	for i, t := range vocabulary {
		m[t] = i
	}
	return m
}()

// Vocabulary returns the allowed tags in canonical order.
func Vocabulary() []Tag {
	out := make([]Tag, len(vocabulary))
	copy(out, vocabulary)
	return out
}

// Valid reports whether t belongs to the vocabulary.
func (t Tag) Valid() bool {
	_, ok := tagRank[t]
	return ok
}

// ParseTag converts raw input to a Tag. Surrounding whitespace and case are ignored.
func ParseTag(raw string) (Tag, error) {
	t := Tag(strings.ToLower(strings.TrimSpace(raw)))
	if !t.Valid() {
		return "", fmt.Errorf("unknown tag %q", raw)
	}
	return t, nil
}

// TagSet is a set of vocabulary tags. The zero value is an empty set.
type TagSet map[Tag]struct{}

// NewTagSet builds a set from tags, ignoring duplicates.
func NewTagSet(tags ...Tag) TagSet {
	s := make(TagSet, len(tags))
	for _, t := range tags {
		s[t] = struct{}{}
	}
	return s
}

// ParseTagList validates every raw value against the vocabulary and returns the
// resulting set. The first unknown value aborts parsing.
func ParseTagList(raw []string) (TagSet, error) {
	s := make(TagSet, len(raw))
	for _, r := range raw {
		if strings.TrimSpace(r) == "" {
			continue
		}
		t, err := ParseTag(r)
		if err != nil {
			return nil, err
		}
		s[t] = struct{}{}
	}
	return s, nil
}

// ParseTagSet decodes the stored comma-joined representation. Unknown tokens are
// dropped so that rows written before a vocabulary change still load.
func ParseTagSet(stored string) TagSet {
	s := TagSet{}
	for _, part := range strings.Split(stored, tagSeparator) {
		if t, err := ParseTag(part); err == nil {
			s[t] = struct{}{}
		}
	}
	return s
}

// Has reports whether t is in the set.
func (s TagSet) Has(t Tag) bool {
	_, ok := s[t]
	return ok
}

// Contains reports whether every tag of other is in s.
func (s TagSet) Contains(other TagSet) bool {
	for t := range other {
		if !s.Has(t) {
			return false
		}
	}
	return true
}

// Len returns the number of tags in the set.
func (s TagSet) Len() int {
	return len(s)
}

// Sorted returns the tags in canonical vocabulary order.
func (s TagSet) Sorted() []Tag {
	out := make([]Tag, 0, len(s))
	for _, t := range vocabulary {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Strings returns the sorted tags as plain strings.
func (s TagSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, t := range sorted {
		out[i] = string(t)
	}
	return out
}

// String returns the storage form: tags in canonical order joined by commas.
func (s TagSet) String() string {
	return strings.Join(s.Strings(), tagSeparator)
}

// Value implements driver.Valuer so a TagSet is written as its delimited string.
func (s TagSet) Value() (driver.Value, error) {
	return s.String(), nil
}

// Scan implements sql.Scanner for reading the delimited tags column.
func (s *TagSet) Scan(value interface{}) error {
	switch v := value.(type) {
	case nil:
		*s = TagSet{}
	case string:
		*s = ParseTagSet(v)
	case []byte:
		*s = ParseTagSet(string(v))
	default:
		return fmt.Errorf("failed to scan TagSet: expected string, got %T", value)
	}
	return nil
}
