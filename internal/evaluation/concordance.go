package evaluation

import (
	"fmt"

	"github.com/montanaflynn/stats"

	"gosurv/domain/core"
	"gosurv/domain/run"
)

// ConcordanceIndex is Harrell's C: the share of comparable pairs whose
// predicted risk orders them the same way as their observed failures.
// A pair is comparable when the earlier subject failed, or when durations
// tie and only one of them failed. Tied risks count one half.
func ConcordanceIndex(durations, risks []float64, events []bool) (float64, error) {
	n := len(durations)
	if len(risks) != n || len(events) != n {
		return 0, core.NewInputError(fmt.Sprintf("%d durations, %d risks, %d events", n, len(risks), len(events)))
	}

	var concordant, comparable float64
	for i := 0; i < n; i++ {
		if !events[i] {
			continue
		}
		for j := 0; j < n; j++ {
			if i == j {
				continue
			}
			switch {
			case durations[i] < durations[j]:
			case durations[i] == durations[j] && !events[j]:
			default:
				continue
			}
			comparable++
			switch {
			case risks[i] > risks[j]:
				concordant++
			case risks[i] == risks[j]:
				concordant += 0.5
			}
		}
	}

	if comparable == 0 {
		return 0, core.ErrEmptyComparablePairs
	}
	return concordant / comparable, nil
}

// Summarize reports the mean and population standard deviation of fold
// scores
func Summarize(scores []float64) (run.Summary, error) {
	if len(scores) == 0 {
		return run.Summary{}, core.NewInputError("no fold scores to summarize")
	}
	mean, err := stats.Mean(scores)
	if err != nil {
		return run.Summary{}, err
	}
	std, err := stats.StandardDeviationPopulation(scores)
	if err != nil {
		return run.Summary{}, err
	}
	return run.Summary{
		Scores: append([]float64(nil), scores...),
		Mean:   mean,
		StdDev: std,
	}, nil
}
