// Package profiling summarizes the columns of an encoded dataset before it
// is cross-validated
package profiling

import (
	"math"
	"sort"

	"github.com/montanaflynn/stats"
	"gonum.org/v1/gonum/stat"

	"gosurv/domain/dataset"
)

// ColumnProfile describes one covariate over the full table. Fold-local
// preprocessing may decide differently on a training slice; the flags here
// only preview those decisions.
type ColumnProfile struct {
	Name     string             `json:"name"`
	Kind     dataset.ColumnKind `json:"kind"`
	Distinct int                `json:"distinct"`
	Mean     float64            `json:"mean"`
	StdDev   float64            `json:"std_dev"`
	Min      float64            `json:"min"`
	Q25      float64            `json:"q25"`
	Median   float64            `json:"median"`
	Q75      float64            `json:"q75"`
	Max      float64            `json:"max"`
	Skewness float64            `json:"skewness"`
	Outliers int                `json:"outliers"`

	Constant       bool `json:"constant"`
	LogCandidate   bool `json:"log_candidate"`
	SplineEligible bool `json:"spline_eligible"`
}

// DataProfiler applies the pipeline's thresholds to whole-table statistics
type DataProfiler struct {
	SkewThreshold float64
	MinDistinct   int
}

// NewDataProfiler creates a new data profiler
func NewDataProfiler(skewThreshold float64, minDistinct int) *DataProfiler {
	return &DataProfiler{SkewThreshold: skewThreshold, MinDistinct: minDistinct}
}

// ProfileColumn summarizes a single column
func (dp *DataProfiler) ProfileColumn(col dataset.Column) (ColumnProfile, error) {
	p := ColumnProfile{Name: col.Name, Kind: col.Kind, Distinct: distinct(col.Values)}
	data := stats.Float64Data(col.Values)

	var err error
	if p.Mean, err = data.Mean(); err != nil {
		return p, err
	}
	if p.StdDev, err = data.StandardDeviationSample(); err != nil {
		return p, err
	}
	if p.Min, err = data.Min(); err != nil {
		return p, err
	}
	if p.Max, err = data.Max(); err != nil {
		return p, err
	}
	q, err := data.Quartiles()
	if err != nil {
		return p, err
	}
	p.Q25, p.Median, p.Q75 = q.Q1, q.Q2, q.Q3

	p.Constant = p.Distinct < 2
	if !p.Constant && len(data) > 2 {
		p.Skewness = stat.Skew(col.Values, nil)
	}
	p.Outliers = detectOutliers(col.Values, p.Q25, p.Q75)
	p.LogCandidate = col.Kind == dataset.KindNumeric && math.Abs(p.Skewness) > dp.SkewThreshold
	p.SplineEligible = col.Kind == dataset.KindNumeric && p.Distinct >= dp.MinDistinct
	return p, nil
}

// ProfileDataset profiles every column in dataset order
func (dp *DataProfiler) ProfileDataset(ds *dataset.Dataset) ([]ColumnProfile, error) {
	profiles := make([]ColumnProfile, 0, ds.NumColumns())
	for _, name := range ds.Names() {
		col, _ := ds.Column(name)
		p, err := dp.ProfileColumn(col)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	}
	return profiles, nil
}

// detectOutliers counts values outside the 1.5·IQR fences
func detectOutliers(data []float64, q25, q75 float64) int {
	iqr := q75 - q25
	lowerBound := q25 - 1.5*iqr
	upperBound := q75 + 1.5*iqr

	outlierCount := 0
	for _, x := range data {
		if x < lowerBound || x > upperBound {
			outlierCount++
		}
	}
	return outlierCount
}

func distinct(values []float64) int {
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)
	n := 0
	for i, v := range sorted {
		if i == 0 || v != sorted[i-1] {
			n++
		}
	}
	return n
}
