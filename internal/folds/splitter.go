// Package folds partitions subjects into shuffled k-fold train/test splits.
package folds

import (
	"math/rand"

	"gosurv/domain/core"
)

// Fold is one train/test split. Both index sets are ascending.
type Fold struct {
	Index int
	Train []int
	Test  []int
}

// Splitter produces deterministic k-fold partitions for a seed
type Splitter struct {
	k    int
	seed int64
}

// NewSplitter creates a splitter for k folds
func NewSplitter(k int, seed int64) *Splitter {
	return &Splitter{k: k, seed: seed}
}

// K returns the fold count
func (s *Splitter) K() int { return s.k }

// Split shuffles 0..n-1 once and cuts the permutation into k contiguous
// blocks; the first n%k blocks get one extra subject
func (s *Splitter) Split(n int) ([]Fold, error) {
	if s.k < 2 || s.k > n {
		return nil, core.NewFoldCountError(s.k, n)
	}

	perm := make([]int, n)
	for i := range perm {
		perm[i] = i
	}
	rng := rand.New(rand.NewSource(s.seed))
	rng.Shuffle(n, func(i, j int) {
		perm[i], perm[j] = perm[j], perm[i]
	})

	folds := make([]Fold, s.k)
	base, extra := n/s.k, n%s.k
	start := 0
	for f := 0; f < s.k; f++ {
		size := base
		if f < extra {
			size++
		}
		block := perm[start : start+size]
		start += size

		inTest := make([]bool, n)
		test := make([]int, 0, size)
		for _, idx := range block {
			inTest[idx] = true
		}
		for idx := 0; idx < n; idx++ {
			if inTest[idx] {
				test = append(test, idx)
			}
		}
		train := make([]int, 0, n-size)
		for idx := 0; idx < n; idx++ {
			if !inTest[idx] {
				train = append(train, idx)
			}
		}
		folds[f] = Fold{Index: f, Train: train, Test: test}
	}

	return folds, nil
}

// TestBlocks returns the test sets in fold order, e.g. for fingerprinting
func TestBlocks(folds []Fold) [][]int {
	blocks := make([][]int, len(folds))
	for i, f := range folds {
		blocks[i] = f.Test
	}
	return blocks
}
