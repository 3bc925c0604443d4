package folds

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosurv/domain/core"
)

func TestSplit_PartitionsIndexSet(t *testing.T) {
	cases := []struct{ n, k int }{
		{10, 2}, {11, 3}, {500, 5}, {7, 7}, {101, 10},
	}

	for _, c := range cases {
		folds, err := NewSplitter(c.k, 42).Split(c.n)
		require.NoError(t, err)
		require.Len(t, folds, c.k)

		seen := make([]int, c.n)
		for _, f := range folds {
			size := len(f.Test)
			assert.True(t, size == c.n/c.k || size == c.n/c.k+1, "block size %d for n=%d k=%d", size, c.n, c.k)
			assert.Equal(t, c.n, len(f.Train)+len(f.Test))

			inTest := make(map[int]bool, size)
			for _, idx := range f.Test {
				seen[idx]++
				inTest[idx] = true
			}
			for _, idx := range f.Train {
				assert.False(t, inTest[idx], "index %d in both train and test of fold %d", idx, f.Index)
			}
			assert.IsIncreasing(t, f.Train)
		}
		for idx, count := range seen {
			assert.Equal(t, 1, count, "index %d appears in %d test sets", idx, count)
		}
	}
}

func TestSplit_DeterministicUnderSeed(t *testing.T) {
	a, err := NewSplitter(5, 42).Split(200)
	require.NoError(t, err)
	b, err := NewSplitter(5, 42).Split(200)
	require.NoError(t, err)
	c, err := NewSplitter(5, 43).Split(200)
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, TestBlocks(a), TestBlocks(c))
	assert.Equal(t, core.ComputeFoldHash(200, 42, TestBlocks(a)), core.ComputeFoldHash(200, 42, TestBlocks(b)))
}

func TestSplit_Shuffles(t *testing.T) {
	folds, err := NewSplitter(4, 1).Split(40)
	require.NoError(t, err)

	contiguous := true
	for i := 1; i < len(folds[0].Test); i++ {
		if folds[0].Test[i] != folds[0].Test[i-1]+1 {
			contiguous = false
		}
	}
	assert.False(t, contiguous, "first test block should not be a contiguous index run after shuffling")
}

func TestSplit_InvalidFoldCount(t *testing.T) {
	for _, c := range []struct{ n, k int }{{10, 1}, {10, 0}, {3, 4}} {
		_, err := NewSplitter(c.k, 42).Split(c.n)
		assert.ErrorIs(t, err, core.ErrInvalidFoldCount)
	}
}
