package selection

import (
	"math"
	"sort"

	"gosurv/internal/cox"
)

// DefaultTopK is the number of columns carried into the refit
const DefaultTopK = 30

// Selector keeps the columns of an L1 fit with the largest |z|. The cutoff
// is a fixed count, not a significance threshold.
type Selector struct {
	TopK int
}

// NewSelector returns a selector keeping at most topK columns
func NewSelector(topK int) *Selector {
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Selector{TopK: topK}
}

// Ranked is a selected column with the score it was ranked by
type Ranked struct {
	Name string  `json:"name"`
	AbsZ float64 `json:"abs_z"`
}

// Rank orders the active coefficients by |z| descending. Ties keep the
// model's column order.
func (s *Selector) Rank(m *cox.Model) []Ranked {
	var ranked []Ranked
	for _, t := range m.Terms {
		if !t.Active || math.IsNaN(t.Z) {
			continue
		}
		ranked = append(ranked, Ranked{Name: t.Name, AbsZ: math.Abs(t.Z)})
	}
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].AbsZ > ranked[j].AbsZ
	})
	if len(ranked) > s.TopK {
		ranked = ranked[:s.TopK]
	}
	return ranked
}

// Select returns the names of the top columns, most significant first
func (s *Selector) Select(m *cox.Model) []string {
	ranked := s.Rank(m)
	names := make([]string, len(ranked))
	for i, r := range ranked {
		names[i] = r.Name
	}
	return names
}
