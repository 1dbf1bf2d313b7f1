// Package ranking turns a raw similarity fetch into the ordered list shown
// to the user.
package ranking

import (
	"fmt"
	"math"
	"slices"

	"github.com/raphaelgruber/loglens/internal/models"
)

// DefaultFloor is the similarity floor, as a percentage, used when none is configured.
const DefaultFloor = 80.0

// Ranked is one entry of a ranked list.
type Ranked struct {
	RecordID string

	// Percentage is the normalized score, unrounded.
	Percentage float64

	// IsPrimary marks the record's established primary match.
	IsPrimary bool

	// Candidate is the raw candidate; zero for a prepended primary match.
	Candidate models.SimilarityCandidate
}

// Display returns the percentage clamped to [0,100] and rounded to one decimal.
func (r Ranked) Display() float64 {
	p := math.Max(0, math.Min(100, r.Percentage))
	return math.Round(p*10) / 10
}

func (r Ranked) String() string {
	return fmt.Sprintf("%.1f%%", r.Display())
}

// Normalize converts a raw score to a percentage. Scores above 1 are taken
// to be percentages already; scores up to and including 1 are fractions.
// Invalid, NaN and infinite scores count as 0.
func Normalize(score models.Score) float64 {
	if !score.Valid || math.IsNaN(score.Value) || math.IsInf(score.Value, 0) {
		return 0
	}
	if score.Value > 1 {
		return score.Value
	}
	return score.Value * 100
}

// FloorFraction converts a percentage floor to the fraction the similarity
// endpoint expects.
func FloorFraction(percent float64) float64 {
	return math.Max(0, math.Min(100, percent)) / 100
}

// Rank normalizes, filters and orders candidates. Candidates at or above
// floor (a percentage) are kept and sorted by descending score; ties keep
// their input order. Duplicate record ids keep their best score.
//
// The primary match is exempt from the floor. If it is not among the kept
// candidates it is prepended; if it is, that entry is marked primary in
// place. With a nil primary, a candidate flagged IsPrimaryMatch plays that
// role. Rank does not modify its input.
func Rank(candidates []models.SimilarityCandidate, floor float64, primary *models.PrimaryMatch) []Ranked {
	if primary == nil {
		primary = flaggedPrimary(candidates)
	}

	best := make(map[string]int, len(candidates))
	all := make([]Ranked, 0, len(candidates))
	for _, c := range candidates {
		if c.RecordID == "" {
			continue
		}
		r := Ranked{RecordID: c.RecordID, Percentage: Normalize(c.Score), Candidate: c}
		if i, ok := best[c.RecordID]; ok {
			if r.Percentage > all[i].Percentage {
				all[i] = r
			}
			continue
		}
		best[c.RecordID] = len(all)
		all = append(all, r)
	}

	kept := make([]Ranked, 0, len(all))
	for _, r := range all {
		if r.Percentage >= floor {
			kept = append(kept, r)
		}
	}
	slices.SortStableFunc(kept, func(a, b Ranked) int {
		switch {
		case a.Percentage > b.Percentage:
			return -1
		case a.Percentage < b.Percentage:
			return 1
		}
		return 0
	})

	if primary == nil || primary.RecordID == "" {
		return kept
	}
	for i := range kept {
		if kept[i].RecordID == primary.RecordID {
			kept[i].IsPrimary = true
			return kept
		}
	}

	head := Ranked{
		RecordID:   primary.RecordID,
		Percentage: primary.Percentage,
		IsPrimary:  true,
	}
	if i, ok := best[primary.RecordID]; ok {
		head.Candidate = all[i].Candidate
	}
	return append([]Ranked{head}, kept...)
}

// flaggedPrimary returns the first candidate flagged as the primary match.
func flaggedPrimary(candidates []models.SimilarityCandidate) *models.PrimaryMatch {
	for _, c := range candidates {
		if c.IsPrimaryMatch && c.RecordID != "" {
			return &models.PrimaryMatch{RecordID: c.RecordID, Percentage: Normalize(c.Score)}
		}
	}
	return nil
}

// Ranker keeps the raw result of one similarity fetch so the floor can be
// changed without fetching again.
type Ranker struct {
	raw     []models.SimilarityCandidate
	primary *models.PrimaryMatch
	floor   float64
	ranked  []Ranked
}

// NewRanker ranks candidates at floor. The candidate slice is copied.
func NewRanker(candidates []models.SimilarityCandidate, floor float64, primary *models.PrimaryMatch) *Ranker {
	r := &Ranker{
		raw:   slices.Clone(candidates),
		floor: floor,
	}
	if primary != nil {
		p := *primary
		r.primary = &p
	}
	r.rerank()
	return r
}

func (r *Ranker) rerank() {
	r.ranked = Rank(r.raw, r.floor, r.primary)
}

// SetFloor re-ranks the original fetch at a new floor.
func (r *Ranker) SetFloor(floor float64) []Ranked {
	r.floor = floor
	r.rerank()
	return r.Ranked()
}

// Floor returns the current floor percentage.
func (r *Ranker) Floor() float64 {
	return r.floor
}

// Ranked returns a copy of the current ranked list.
func (r *Ranker) Ranked() []Ranked {
	return slices.Clone(r.ranked)
}

// Total is the number of distinct candidates in the original fetch.
func (r *Ranker) Total() int {
	return len(Rank(r.raw, math.Inf(-1), nil))
}
