package design

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"gosurv/domain/core"
	"gosurv/domain/dataset"
)

func TestFitBSpline_KnotsAndPartitionOfUnity(t *testing.T) {
	x := []float64{0, 1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	s, err := FitBSpline(x, 4)
	require.NoError(t, err)

	assert.Equal(t, 0.0, s.Lower)
	assert.Equal(t, 10.0, s.Upper)
	require.Len(t, s.Inner, 1)
	assert.InDelta(t, 5.0, s.Inner[0], 1e-12)
	assert.Equal(t, []float64{0, 0, 0, 0, 5, 10, 10, 10, 10}, s.Knots())

	out := make([]float64, 4)
	for _, v := range []float64{0, 0.5, 2.5, 5, 7.3, 9.99, 10} {
		s.Eval(v, out)
		sum := 0.0
		for _, b := range out {
			assert.GreaterOrEqual(t, b, -1e-12)
			sum += b
		}
		assert.LessOrEqual(t, sum, 1+1e-12, "dropped first basis keeps the sum at most one (x=%v)", v)
	}

	s.Eval(0, out)
	assert.Equal(t, []float64{0, 0, 0, 0}, out, "at the lower boundary only the dropped basis is active")
	s.Eval(10, out)
	assert.InDelta(t, 1.0, out[3], 1e-12)
}

func TestBSpline_ClampsOutOfRange(t *testing.T) {
	s, err := FitBSpline([]float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}, 5)
	require.NoError(t, err)
	require.Len(t, s.Inner, 2)

	inside := make([]float64, 5)
	outside := make([]float64, 5)
	s.Eval(10, inside)
	s.Eval(1000, outside)
	assert.Equal(t, inside, outside)

	s.Eval(1, inside)
	s.Eval(-50, outside)
	assert.Equal(t, inside, outside)
}

func TestFitBSpline_Errors(t *testing.T) {
	_, err := FitBSpline([]float64{1, 1, 1}, 4)
	assert.ErrorIs(t, err, core.ErrDegenerateDesignMatrix)

	_, err = FitBSpline([]float64{1, 2, 3}, 2)
	assert.ErrorIs(t, err, core.ErrInvalidInput)
}

func designFrames(t *testing.T, seed int64) (*dataset.Frame, *dataset.Frame) {
	t.Helper()
	rng := rand.New(rand.NewSource(seed))
	n := 120
	a := make([]float64, n)
	b := make([]float64, n)
	c := make([]float64, n)
	d := make([]float64, n)
	e := make([]float64, n)
	durations := make([]float64, n)
	events := make([]bool, n)
	for i := 0; i < n; i++ {
		a[i] = 2 * rng.NormFloat64()
		b[i] = rng.NormFloat64()
		c[i] = 3 * rng.NormFloat64()
		if rng.Float64() < 0.5 {
			d[i] = 1
		}
		e[i] = float64(rng.Intn(5)) * 10
		durations[i] = rng.ExpFloat64()
		events[i] = true
	}
	ds, err := dataset.NewDataset("design", []dataset.Column{
		{Name: "a", Kind: dataset.KindNumeric, Values: a},
		{Name: "b", Kind: dataset.KindNumeric, Values: b},
		{Name: "c", Kind: dataset.KindNumeric, Values: c},
		{Name: "d", Kind: dataset.KindIndicator, Values: d},
		{Name: "e", Kind: dataset.KindNumeric, Values: e},
	}, durations, events, nil)
	require.NoError(t, err)

	trainIdx, testIdx := []int{}, []int{}
	for i := 0; i < n; i++ {
		if i%4 == 0 {
			testIdx = append(testIdx, i)
		} else {
			trainIdx = append(trainIdx, i)
		}
	}
	train, err := ds.Slice(trainIdx)
	require.NoError(t, err)
	test, err := ds.Slice(testIdx)
	require.NoError(t, err)
	return train, test
}

func TestBuilder_RanksSplineTargetsByVariance(t *testing.T) {
	train, _ := designFrames(t, 1)

	basis, err := NewBuilder(2, 4, 10).Fit(train)
	require.NoError(t, err)

	assert.Equal(t, []string{"c", "a"}, basis.SplineColumns())
	assert.Equal(t, []string{
		"bs(c, df=4)[0]", "bs(c, df=4)[1]", "bs(c, df=4)[2]", "bs(c, df=4)[3]",
		"bs(a, df=4)[0]", "bs(a, df=4)[1]", "bs(a, df=4)[2]", "bs(a, df=4)[3]",
		"a", "b", "c", "d", "e",
	}, basis.ColumnNames())
}

func TestBuilder_SkipsLowCardinalityColumns(t *testing.T) {
	train, _ := designFrames(t, 2)

	basis, err := NewBuilder(20, 4, 10).Fit(train)
	require.NoError(t, err)

	// e has 5 distinct values despite the largest variance; d is a dummy
	assert.ElementsMatch(t, []string{"a", "b", "c"}, basis.SplineColumns())
}

func TestBuilder_TrainAndTestShareColumns(t *testing.T) {
	train, test := designFrames(t, 3)

	basis, xTrain, xTest, err := NewBuilder(20, 4, 10).Build(train, test)
	require.NoError(t, err)

	assert.Equal(t, xTrain.Columns, xTest.Columns)
	assert.Equal(t, basis.ColumnNames(), xTrain.Columns)
	rTrain, cTrain := xTrain.Dims()
	rTest, cTest := xTest.Dims()
	assert.Equal(t, train.Len(), rTrain)
	assert.Equal(t, test.Len(), rTest)
	assert.Equal(t, cTrain, cTest)

	// linear columns copy the frame values verbatim
	j, ok := xTest.ColumnIndex("b")
	require.True(t, ok)
	col, _ := test.Column("b")
	for r, v := range col.Values {
		assert.Equal(t, v, xTest.Data.At(r, j))
	}
}

func TestBuilder_KnotsComeFromTrainOnly(t *testing.T) {
	train, test := designFrames(t, 4)
	basis, err := NewBuilder(1, 4, 10).Fit(train)
	require.NoError(t, err)

	// shifting the test frame far away must not move the knots
	col, _ := test.Column("c")
	shifted := make([]float64, len(col.Values))
	for i, v := range col.Values {
		shifted[i] = v + 1000
	}
	require.NoError(t, test.Set("c", shifted))

	xTest, err := basis.Transform(test)
	require.NoError(t, err)
	for r := 0; r < test.Len(); r++ {
		assert.InDelta(t, 1.0, xTest.Data.At(r, 3), 1e-12, "clamped to the training upper boundary")
	}
	trainCol, _ := train.Column("c")
	assert.Equal(t, maxOf(trainCol.Values), basis.Terms[0].Spline.Upper)
}

func TestBuilder_DegenerateWithoutSplineTargets(t *testing.T) {
	ds, err := dataset.NewDataset("flat", []dataset.Column{
		{Name: "d", Kind: dataset.KindIndicator, Values: []float64{0, 1, 0, 1}},
		{Name: "few", Kind: dataset.KindNumeric, Values: []float64{1, 2, 1, 2}},
	}, []float64{1, 2, 3, 4}, []bool{true, true, false, true}, nil)
	require.NoError(t, err)
	frame, err := ds.Slice([]int{0, 1, 2, 3})
	require.NoError(t, err)

	_, err = NewBuilder(20, 4, 10).Fit(frame)
	assert.ErrorIs(t, err, core.ErrDegenerateDesignMatrix)

	frame.Drop("d", "few")
	_, err = NewBuilder(20, 4, 10).Fit(frame)
	assert.ErrorIs(t, err, core.ErrDegenerateDesignMatrix)
}

func TestBasis_TransformMissingColumn(t *testing.T) {
	train, test := designFrames(t, 5)
	basis, err := NewBuilder(2, 4, 10).Fit(train)
	require.NoError(t, err)

	test.Drop("b")
	_, err = basis.Transform(test)
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
}

func TestMatrix_Select(t *testing.T) {
	train, _ := designFrames(t, 6)
	_, xTrain, _, err := NewBuilder(2, 4, 10).Build(train, train)
	require.NoError(t, err)

	sub, err := xTrain.Select([]string{"d", "bs(c, df=4)[2]"})
	require.NoError(t, err)
	assert.Equal(t, []string{"d", "bs(c, df=4)[2]"}, sub.Columns)
	src, _ := xTrain.ColumnIndex("bs(c, df=4)[2]")
	for r := 0; r < train.Len(); r++ {
		assert.Equal(t, xTrain.Data.At(r, src), sub.Data.At(r, 1))
	}

	_, err = xTrain.Select([]string{"nope"})
	assert.ErrorIs(t, err, core.ErrColumnNotFound)
	_, err = xTrain.Select(nil)
	assert.ErrorIs(t, err, core.ErrDegenerateDesignMatrix)
}

func maxOf(values []float64) float64 {
	m := math.Inf(-1)
	for _, v := range values {
		m = math.Max(m, v)
	}
	return m
}
