package testkit

import (
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"math/rand/v2"
	"strconv"

	"github.com/xuri/excelize/v2"
	"gonum.org/v1/gonum/stat/distuv"

	"gosurv/domain/dataset"
)

// SurvivalGeneratorConfig configures the synthetic failure-time generator
type SurvivalGeneratorConfig struct {
	Subjects   int `json:"subjects"`
	Covariates int `json:"covariates"`
	// Predictive leading covariates drive the hazard with log hazard ratio
	// Effect each
	Predictive int     `json:"predictive"`
	Effect     float64 `json:"effect"`
	// BaselineRate is failures per day at x = 0
	BaselineRate float64 `json:"baseline_rate"`
	CensorRate   float64 `json:"censor_rate"`
	// SkewedEvery makes every n-th non-predictive covariate log-normal; 0
	// disables
	SkewedEvery int `json:"skewed_every"`
	// Routes are the categorical levels written to raw exports
	Routes []string `json:"routes"`
	Seed   int64    `json:"seed"`
}

// DefaultSurvivalConfig returns 500 subjects with 10 covariates, one of them
// predictive, and 30% censoring
func DefaultSurvivalConfig() SurvivalGeneratorConfig {
	return SurvivalGeneratorConfig{
		Subjects:     500,
		Covariates:   10,
		Predictive:   1,
		Effect:       1.2,
		BaselineRate: 1.0 / 365,
		CensorRate:   0.3,
		SkewedEvery:  4,
		Routes:       []string{"east", "north", "west"},
		Seed:         42,
	}
}

// SurvivalSample is one generated cohort. Covariates are stored by column.
type SurvivalSample struct {
	Names      []string
	Covariates [][]float64
	Durations  []float64
	Events     []bool
	Routes     []string
}

// SurvivalDataGenerator draws cohorts from a proportional hazards model
// with exponential baseline
type SurvivalDataGenerator struct {
	config SurvivalGeneratorConfig
	src    rand.Source
}

// NewSurvivalDataGenerator creates a generator seeded from config.Seed
func NewSurvivalDataGenerator(config SurvivalGeneratorConfig) *SurvivalDataGenerator {
	seed := uint64(config.Seed)
	return &SurvivalDataGenerator{
		config: config,
		src:    rand.NewPCG(seed, seed^0x9e3779b97f4a7c15),
	}
}

// Generate draws one cohort
func (g *SurvivalDataGenerator) Generate() (*SurvivalSample, error) {
	cfg := g.config
	if cfg.Subjects < 2 || cfg.Covariates < 1 {
		return nil, fmt.Errorf("need at least 2 subjects and 1 covariate, got %d and %d", cfg.Subjects, cfg.Covariates)
	}
	if cfg.Predictive > cfg.Covariates {
		return nil, fmt.Errorf("%d predictive covariates exceed %d covariates", cfg.Predictive, cfg.Covariates)
	}
	if cfg.CensorRate < 0 || cfg.CensorRate >= 1 {
		return nil, fmt.Errorf("censor rate %g outside [0, 1)", cfg.CensorRate)
	}
	if cfg.BaselineRate <= 0 {
		return nil, fmt.Errorf("baseline rate must be positive")
	}

	normal := distuv.Normal{Mu: 0, Sigma: 1, Src: g.src}
	unit := distuv.Uniform{Min: 0, Max: 1, Src: g.src}

	s := &SurvivalSample{
		Names:      make([]string, cfg.Covariates),
		Covariates: make([][]float64, cfg.Covariates),
		Durations:  make([]float64, cfg.Subjects),
		Events:     make([]bool, cfg.Subjects),
	}
	for j := range s.Covariates {
		s.Names[j] = fmt.Sprintf("x%02d", j+1)
		col := make([]float64, cfg.Subjects)
		skewed := cfg.SkewedEvery > 0 && j >= cfg.Predictive && (j+1)%cfg.SkewedEvery == 0
		for i := range col {
			v := normal.Rand()
			if skewed {
				v = math.Exp(v)
			}
			col[i] = v
		}
		s.Covariates[j] = col
	}

	for i := 0; i < cfg.Subjects; i++ {
		eta := 0.0
		for j := 0; j < cfg.Predictive; j++ {
			eta += cfg.Effect * s.Covariates[j][i]
		}
		failure := distuv.Exponential{Rate: cfg.BaselineRate * math.Exp(eta), Src: g.src}.Rand()
		if unit.Rand() < cfg.CensorRate {
			s.Durations[i] = failure * unit.Rand()
			s.Events[i] = false
		} else {
			s.Durations[i] = failure
			s.Events[i] = true
		}
	}

	if len(cfg.Routes) > 0 {
		s.Routes = make([]string, cfg.Subjects)
		for i := range s.Routes {
			s.Routes[i] = cfg.Routes[int(unit.Rand()*float64(len(cfg.Routes)))%len(cfg.Routes)]
		}
	}
	return s, nil
}

// Dataset converts the numeric covariates and outcomes into a Dataset
func (s *SurvivalSample) Dataset(name string) (*dataset.Dataset, error) {
	cols := make([]dataset.Column, len(s.Names))
	for j, n := range s.Names {
		cols[j] = dataset.Column{Name: n, Kind: dataset.KindNumeric, Values: s.Covariates[j]}
	}
	return dataset.NewDataset(name, cols, s.Durations, s.Events, nil)
}

// Header is the raw export header: duration and event columns named as in
// the field exports, covariates, then the route category
func (s *SurvivalSample) Header() []string {
	header := []string{"lifetime_duration_days", "FAILED"}
	header = append(header, s.Names...)
	if s.Routes != nil {
		header = append(header, "ROUTE")
	}
	return header
}

// Row renders subject i as raw cells
func (s *SurvivalSample) Row(i int) []string {
	row := []string{
		strconv.FormatFloat(s.Durations[i], 'f', 4, 64),
		"0",
	}
	if s.Events[i] {
		row[1] = "1"
	}
	for j := range s.Names {
		row = append(row, strconv.FormatFloat(s.Covariates[j][i], 'g', 10, 64))
	}
	if s.Routes != nil {
		row = append(row, s.Routes[i])
	}
	return row
}

// WriteCSV writes the cohort as a raw CSV export
func (s *SurvivalSample) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(s.Header()); err != nil {
		return err
	}
	for i := range s.Durations {
		if err := cw.Write(s.Row(i)); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

// WriteXLSX writes the cohort to the first sheet of a new workbook
func (s *SurvivalSample) WriteXLSX(path string) error {
	f := excelize.NewFile()
	defer f.Close()

	sheet := f.GetSheetName(0)
	writeRow := func(r int, cells []string) error {
		cell, err := excelize.CoordinatesToCellName(1, r)
		if err != nil {
			return err
		}
		values := make([]interface{}, len(cells))
		for i, c := range cells {
			values[i] = c
		}
		return f.SetSheetRow(sheet, cell, &values)
	}

	if err := writeRow(1, s.Header()); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}
	for i := range s.Durations {
		if err := writeRow(i+2, s.Row(i)); err != nil {
			return fmt.Errorf("failed to write row %d: %w", i+1, err)
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("failed to save workbook: %w", err)
	}
	return nil
}
