// Package analytics aggregates safety reports into dashboard figures.
// Every call recomputes from the full report set; nothing is cached.
package analytics

import (
	"sort"

	"github.com/stwalsh4118/solosafe/api/internal/models"
)

// DefaultTopK is how many locations the risk ranking keeps when no limit is given.
const DefaultTopK = 5

// Summary is the dashboard view of all reports.
type Summary struct {
	// GlobalAverage is the mean safety score, nil when there are no reports.
	GlobalAverage *float64
	TagCounts     map[models.Tag]int
	RiskRanking   []LocationRisk
	ReportCount   int
}

// HasData reports whether any report contributed to the summary.
func (s Summary) HasData() bool {
	return s.ReportCount > 0
}

// LocationRisk is one row of the risk ranking, grouped at city level.
type LocationRisk struct {
	Label        string
	AverageScore float64
	ReportCount  int
}

type scoreAccumulator struct {
	sum   int
	count int
}

func (a scoreAccumulator) mean() float64 {
	return float64(a.sum) / float64(a.count)
}

// Summarize computes the global average, tag histogram and the topK riskiest
// locations. Locations are grouped by "City, Country" with neighborhoods
// collapsed, ordered by ascending mean score, ties broken by label.
// A topK below 1 falls back to DefaultTopK.
func Summarize(digests []models.ReportDigest, topK int) Summary {
	if topK < 1 {
		topK = DefaultTopK
	}

	summary := Summary{
		TagCounts:   make(map[models.Tag]int),
		RiskRanking: []LocationRisk{},
		ReportCount: len(digests),
	}
	if len(digests) == 0 {
		return summary
	}

	var total scoreAccumulator
	byLabel := make(map[string]*scoreAccumulator)

	for _, d := range digests {
		total.sum += d.SafetyScore
		total.count++

		for _, tag := range d.Tags.Sorted() {
			summary.TagCounts[tag]++
		}

		label := d.Label()
		acc, ok := byLabel[label]
		if !ok {
			acc = &scoreAccumulator{}
			byLabel[label] = acc
		}
		acc.sum += d.SafetyScore
		acc.count++
	}

	avg := total.mean()
	summary.GlobalAverage = &avg

	ranking := make([]LocationRisk, 0, len(byLabel))
	for label, acc := range byLabel {
		ranking = append(ranking, LocationRisk{
			Label:        label,
			AverageScore: acc.mean(),
			ReportCount:  acc.count,
		})
	}
	sort.Slice(ranking, func(i, j int) bool {
		if ranking[i].AverageScore != ranking[j].AverageScore {
			return ranking[i].AverageScore < ranking[j].AverageScore
		}
		return ranking[i].Label < ranking[j].Label
	})

	if len(ranking) > topK {
		ranking = ranking[:topK]
	}
	summary.RiskRanking = ranking

	return summary
}
