package council

import (
	"math"
	"sort"
)

// AggregateRankings folds every judge's ranking into a single leaderboard.
// Each model's score is its mean 1-based position across the judges that
// ranked it; labels that map to no known model are ignored, and models no
// judge ranked are omitted entirely. The result is sorted best first.
func AggregateRankings(stage2 []StageTwoResult, labelToModel map[string]string) []RankedModel {
	positions := make(map[string][]int)
	var order []string

	for _, result := range stage2 {
		for i, label := range result.Ranking {
			model, ok := labelToModel[label]
			if !ok {
				continue
			}
			if _, seen := positions[model]; !seen {
				order = append(order, model)
			}
			positions[model] = append(positions[model], i+1)
		}
	}

	aggregate := make([]RankedModel, 0, len(order))
	for _, model := range order {
		ranks := positions[model]
		sum := 0
		for _, r := range ranks {
			sum += r
		}
		avg := float64(sum) / float64(len(ranks))
		aggregate = append(aggregate, RankedModel{
			Model:         model,
			AverageRank:   math.Round(avg*100) / 100,
			RankingsCount: len(ranks),
		})
	}

	sort.SliceStable(aggregate, func(i, j int) bool {
		return aggregate[i].AverageRank < aggregate[j].AverageRank
	})
	return aggregate
}
