package run

import (
	"encoding/json"
	"time"

	"gosurv/domain/core"
)

// FoldResult records what one fold did and how its held-out ranking scored
type FoldResult struct {
	Fold        int `json:"fold"`
	TrainSize   int `json:"train_size"`
	TestSize    int `json:"test_size"`
	TrainEvents int `json:"train_events"`
	TestEvents  int `json:"test_events"`

	Dropped        []string `json:"dropped"`
	LogTransformed []string `json:"log_transformed"`
	SplineTargets  []string `json:"spline_targets"`
	DesignColumns  int      `json:"design_columns"`
	Selected       []string `json:"selected"`

	L1Iterations int `json:"l1_iterations"`
	L2Iterations int `json:"l2_iterations"`
	Retries      int `json:"retries"`

	CIndex  float64       `json:"c_index"`
	Elapsed time.Duration `json:"elapsed"`
}

// Summary aggregates the fold scores. StdDev is the population standard
// deviation.
type Summary struct {
	Scores []float64 `json:"scores"`
	Mean   float64   `json:"mean"`
	StdDev float64   `json:"std_dev"`
}

// Run is a completed cross-validation run
type Run struct {
	ID          core.RunID      `json:"id"`
	CreatedAt   time.Time       `json:"created_at"`
	DatasetName string          `json:"dataset_name"`
	Subjects    int             `json:"subjects"`
	Events      int             `json:"events"`
	Seed        int64           `json:"seed"`
	Config      json.RawMessage `json:"config"`
	Fingerprint core.Hash       `json:"fingerprint"`
	Manifest    *Manifest       `json:"manifest,omitempty"`
	Folds       []FoldResult    `json:"folds"`
	Summary     Summary         `json:"summary"`
	Elapsed     time.Duration   `json:"elapsed"`
}

// Scores returns the fold C-indices in fold order
func (r *Run) Scores() []float64 {
	scores := make([]float64, len(r.Folds))
	for i, f := range r.Folds {
		scores[i] = f.CIndex
	}
	return scores
}

// SelectionFrequency counts in how many folds each column was selected
func (r *Run) SelectionFrequency() map[string]int {
	freq := make(map[string]int)
	for _, f := range r.Folds {
		for _, name := range f.Selected {
			freq[name]++
		}
	}
	return freq
}
