package rubric

import "math"

// OverallScore computes the mean of the numeric dimension scores, rounded to
// two decimal places. Dimensions scored "N/A" are excluded. The second return
// is false when no dimension carries a numeric score.
func OverallScore(evaluation map[string]DimensionResult) (float64, bool) {
	total := 0
	count := 0
	for _, result := range evaluation {
		if result.Score.NA {
			continue
		}
		total += result.Score.Value
		count++
	}

	if count == 0 {
		return 0, false
	}

	mean := float64(total) / float64(count)
	return math.Round(mean*100) / 100, true
}
