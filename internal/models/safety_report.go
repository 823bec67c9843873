package models

import (
	"time"
)

// Safety score bounds. 1 means the reporter felt very unsafe, 5 very safe.
const (
	MinSafetyScore     = 1
	MaxSafetyScore     = 5
	DefaultSafetyScore = 3
)

// SafetyReport is one immutable, community-submitted safety observation.
// AuthorInitials is nil when the reporter stayed anonymous.
type SafetyReport struct {
	CreatedAt      time.Time `json:"createdAt"`
	Tags           TagSet    `json:"-"`
	AuthorInitials *string   `json:"authorInitials,omitempty"`
	Title          string    `json:"title"`
	Body           string    `json:"body"`
	ID             int64     `json:"id"`
	LocationID     int64     `json:"locationId"`
	SafetyScore    int       `json:"safetyScore"`
}

// NewReport carries the fields needed to append a report for an existing location.
type NewReport struct {
	CreatedAt      time.Time
	Tags           TagSet
	AuthorInitials *string
	Title          string
	Body           string
	LocationID     int64
	SafetyScore    int
}

// ReportWithLocation pairs a report with the location it belongs to.
type ReportWithLocation struct {
	Report   SafetyReport
	Location Location
}

// ReportDigest is the slice of a report the analytics scan needs.
type ReportDigest struct {
	Tags        TagSet
	Country     string
	City        string
	SafetyScore int
}

// Label returns the city-level label the digest is grouped under.
func (d ReportDigest) Label() string {
	return CityLabel(d.City, d.Country)
}

// ValidSafetyScore reports whether score is within 1..5.
func ValidSafetyScore(score int) bool {
	return score >= MinSafetyScore && score <= MaxSafetyScore
}

// Stars renders score as filled and empty stars, e.g. "★★☆☆☆".
func Stars(score int) string {
	if score < 0 {
		score = 0
	}
	if score > MaxSafetyScore {
		score = MaxSafetyScore
	}
	out := make([]rune, 0, MaxSafetyScore)
	for i := 0; i < MaxSafetyScore; i++ {
		if i < score {
			out = append(out, '★')
		} else {
			out = append(out, '☆')
		}
	}
	return string(out)
}
