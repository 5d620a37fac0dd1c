package topics

import (
	"sort"

	"github.com/videoindex/ingestor/internal/models"
)

// engagementWeight is hardcoded to 1.0 per spec.md §9's Open Question
// resolution: the multiplier is retained in the formula for forward
// compatibility but no engagement data source exists yet.
const engagementWeight = 1.0

// Aggregate rolls per-video TopicRecords up into AccountTagAggregate,
// grouping by canonical topic (spec.md §4.3 "Account-level aggregation").
func Aggregate(perVideo map[string][]models.TopicRecord) []models.AccountTagAggregate {
	type acc struct {
		frequency int
		scoreSum  float64
		videoIDs  []string
		seen      map[string]struct{}
	}

	byCanonical := map[string]*acc{}
	var order []string

	videoIDs := make([]string, 0, len(perVideo))
	for id := range perVideo {
		videoIDs = append(videoIDs, id)
	}
	sort.Strings(videoIDs)

	for _, videoID := range videoIDs {
		records := perVideo[videoID]
		seenInVideo := map[string]struct{}{}
		for _, r := range records {
			if _, dup := seenInVideo[r.Canonical]; dup {
				continue
			}
			seenInVideo[r.Canonical] = struct{}{}

			a, ok := byCanonical[r.Canonical]
			if !ok {
				a = &acc{seen: map[string]struct{}{}}
				byCanonical[r.Canonical] = a
				order = append(order, r.Canonical)
			}
			a.frequency++
			a.scoreSum += r.ScoreMMR
			if _, ok := a.seen[videoID]; !ok {
				a.seen[videoID] = struct{}{}
				a.videoIDs = append(a.videoIDs, videoID)
			}
		}
	}

	out := make([]models.AccountTagAggregate, 0, len(order))
	for _, canonical := range order {
		a := byCanonical[canonical]
		avgScore := a.scoreSum / float64(a.frequency)
		out = append(out, models.AccountTagAggregate{
			Canonical:     canonical,
			Frequency:     a.frequency,
			AvgScore:      avgScore,
			CombinedScore: float64(a.frequency) * avgScore * engagementWeight,
			VideoIDs:      a.videoIDs,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].CombinedScore != out[j].CombinedScore {
			return out[i].CombinedScore > out[j].CombinedScore
		}
		return out[i].Canonical < out[j].Canonical
	})
	return out
}
