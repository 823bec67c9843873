package models

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Location is the canonical (country, city, optional neighborhood) entity that
// reports are deduplicated against.
// A nil Neighborhood means the location is city-wide.
type Location struct {
	Neighborhood *string `json:"neighborhood,omitempty"`
	Country      string  `json:"country"`
	City         string  `json:"city"`
	ID           int64   `json:"id"`
}

// LocationKey is the normalized lookup key of a Location.
type LocationKey struct {
	Neighborhood *string
	Country      string
	City         string
}

// Label returns the city-level display label, "City, Country".
// The neighborhood is intentionally left out.
func (l Location) Label() string {
	return CityLabel(l.City, l.Country)
}

// DetailedLabel returns "City, Country – Neighborhood", or the city label for
// city-wide locations.
func (l Location) DetailedLabel() string {
	if l.Neighborhood == nil {
		return l.Label()
	}
	return l.Label() + " – " + *l.Neighborhood
}

// Key returns the lookup key of l.
func (l Location) Key() LocationKey {
	return LocationKey{Country: l.Country, City: l.City, Neighborhood: l.Neighborhood}
}

// CityLabel formats a city and country as "City, Country".
func CityLabel(city, country string) string {
	return city + ", " + country
}

// NormalizeLocation canonicalizes free-text geography: surrounding whitespace is
// trimmed, inner runs of whitespace collapse to one space and every part is
// title-cased. An empty neighborhood becomes nil. The result is a fixed point:
// normalizing it again yields the same values.
func NormalizeLocation(country, city, neighborhood string) LocationKey {
	key := LocationKey{
		Country: foldPlace(country),
		City:    foldPlace(city),
	}
	if n := foldPlace(neighborhood); n != "" {
		key.Neighborhood = &n
	}
	return key
}

// Normalize re-applies NormalizeLocation to an existing key.
func (k LocationKey) Normalize() LocationKey {
	hood := ""
	if k.Neighborhood != nil {
		hood = *k.Neighborhood
	}
	return NormalizeLocation(k.Country, k.City, hood)
}

// Equal compares two keys, treating two nil neighborhoods as equal.
func (k LocationKey) Equal(other LocationKey) bool {
	if k.Country != other.Country || k.City != other.City {
		return false
	}
	if k.Neighborhood == nil || other.Neighborhood == nil {
		return k.Neighborhood == nil && other.Neighborhood == nil
	}
	return *k.Neighborhood == *other.Neighborhood
}

func foldPlace(s string) string {
	s = strings.Join(strings.Fields(s), " ")
	if s == "" {
		return ""
	}
	// cases.Caser keeps state, so each call gets its own.
	return cases.Title(language.Und).String(s)
}
