package hbl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rootBestSplit(t *testing.T, binned *BinnedFeatures, gradients, hessians []float64, options TrainOptions) *BestSplit {
	t.Helper()
	stats := NewBinStats(binned)
	ComputeBinStatsRoot(stats, binned, gradients, hessians, 1)
	totals := NodeTotals{NExamples: len(gradients)}
	for i := range gradients {
		totals.SumGradients += gradients[i]
		if hessians == nil {
			totals.SumHessians++
		} else {
			totals.SumHessians += hessians[i]
		}
	}
	return FindBestSplit(stats, binned, totals, options)
}

func TestContinuousSplitAtMidpoint(t *testing.T) {
	options := testOptions()
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{0, 0, 0, 1, 1, 1})}, options)
	gradients := []float64{-1, -1, -1, 1, 1, 1}

	best := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, ContinuousSplitKind, best.Split.Kind)
	assert.Equal(t, 0, best.Split.FeatureIndex)
	assert.Equal(t, 1, best.Split.BinIndex)
	assert.Equal(t, float32(0.5), best.Split.SplitValue)
	assert.Equal(t, Left, best.Split.InvalidValuesDirection)
	assert.InDelta(t, 6.0, best.Gain, 1e-12)
	assert.InDelta(t, -3.0, best.LeftSumGradients, 1e-12)
	assert.InDelta(t, 3.0, best.RightSumGradients, 1e-12)
	assert.Equal(t, NodeTotals{NExamples: 3, SumGradients: -3, SumHessians: 3}, best.LeftTotals(3))
}

func TestSplitGainFloor(t *testing.T) {
	options := testOptions()
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{0, 0, 0, 1, 1, 1})}, options)

	options.MinGainToSplit = 6
	assert.Nil(t, rootBestSplit(t, binned, []float64{-1, -1, -1, 1, 1, 1}, nil, options))

	options.MinGainToSplit = 0
	assert.Nil(t, rootBestSplit(t, binned, make([]float64, 6), nil, options))
}

func TestSplitRespectsMinExamples(t *testing.T) {
	options := testOptions()
	options.MinExamplesPerNode = 2
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{0, 1, 2, 3, 4, 5})}, options)
	gradients := []float64{-5, 1, 1, 1, 1, 1}

	best := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, 2, best.Split.BinIndex)

	options.MinExamplesPerNode = 4
	assert.Nil(t, rootBestSplit(t, binned, gradients, nil, options))
}

func TestInvalidValuesJoinLeftPrefix(t *testing.T) {
	options := testOptions()
	nan := float32(math.NaN())
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{nan, nan, 1, 1, 2, 2})}, options)
	gradients := []float64{-1, -1, -1, -1, 2, 2}

	best := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Split.BinIndex)
	assert.Equal(t, Left, best.Split.InvalidValuesDirection)
	assert.Equal(t, Left, best.Split.BinDirection(0))
	assert.InDelta(t, -4.0, best.LeftSumGradients, 1e-12)
}

func TestInvalidValuesAloneOnTheLeft(t *testing.T) {
	options := testOptions()
	nan := float32(math.NaN())
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{nan, nan, 1, 1, 2, 2})}, options)
	gradients := []float64{-2, -2, 1, 1, 1, 1}

	best := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, 0, best.Split.BinIndex)
	assert.Equal(t, Left, best.Split.InvalidValuesDirection)
	assert.Equal(t, Left, best.Split.BinDirection(0))
	assert.Equal(t, Right, best.Split.BinDirection(1))
	assert.Equal(t, Right, best.Split.BinDirection(2))
	assert.InDelta(t, 12.0, best.Gain, 1e-12)
	assert.Equal(t, NodeTotals{NExamples: 2, SumGradients: -4, SumHessians: 2}, best.LeftTotals(2))
}

func TestInvalidDirectionFollowsLargerSide(t *testing.T) {
	options := testOptions()
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{0, 1, 1, 1, 1, 1})}, options)
	gradients := []float64{-5, 1, 1, 1, 1, 1}

	best := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, 1, best.Split.BinIndex)
	assert.Equal(t, Right, best.Split.InvalidValuesDirection)
}

//categoricalDataset has five categories with four examples each; the categories in negative
//pull the gradient down.
func categoricalDataset(relabel map[uint32]uint32, negative map[uint32]bool, seed int64) ([]FeatureColumn, []float64) {
	var values []uint32
	var gradients []float64
	for category := uint32(1); category <= 5; category++ {
		for k := 0; k < 4; k++ {
			values = append(values, relabel[category])
			if negative[category] {
				gradients = append(gradients, -1)
			} else {
				gradients = append(gradients, 1)
			}
		}
	}
	rng := rand.New(rand.NewSource(seed))
	rng.Shuffle(len(values), func(i, j int) {
		values[i], values[j] = values[j], values[i]
		gradients[i], gradients[j] = gradients[j], gradients[i]
	})
	return []FeatureColumn{EnumColumn("c", 5, values)}, gradients
}

func leftCategories(split Split) []int {
	var left []int
	for bin, direction := range split.Directions {
		if bin != 0 && direction == Left {
			left = append(left, bin)
		}
	}
	return left
}

func TestDiscreteSplitPartition(t *testing.T) {
	options := testOptions()
	options.SmoothingFactorForDiscreteBinSorting = 1
	options.SupplementalL2RegularizationForDiscreteSplits = 1
	negative := map[uint32]bool{1: true, 3: true}

	identity := map[uint32]uint32{1: 1, 2: 2, 3: 3, 4: 4, 5: 5}
	columns, gradients := categoricalDataset(identity, negative, 1)
	binned := binColumns(t, columns, options)
	best := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, DiscreteSplitKind, best.Split.Kind)
	assert.Len(t, best.Split.Directions, 6)
	assert.Equal(t, []int{1, 3}, leftCategories(best.Split))
	assert.Equal(t, Right, best.Split.InvalidValuesDirection)

	relabel := map[uint32]uint32{1: 5, 2: 1, 3: 2, 4: 3, 5: 4}
	columns, gradients = categoricalDataset(relabel, negative, 2)
	binned = binColumns(t, columns, options)
	permuted := rootBestSplit(t, binned, gradients, nil, options)
	require.NotNil(t, permuted)
	assert.Equal(t, []int{2, 5}, leftCategories(permuted.Split))
	assert.InDelta(t, best.Gain, permuted.Gain, 1e-9)
}

func TestDiscreteSplitWithoutSmoothing(t *testing.T) {
	options := testOptions()
	options.SmoothingFactorForDiscreteBinSorting = 0
	options.SupplementalL2RegularizationForDiscreteSplits = 0
	//option 3 never occurs, so its bin is empty
	binned := binColumns(t, []FeatureColumn{EnumColumn("c", 3, []uint32{1, 1, 2, 2})}, options)

	best := rootBestSplit(t, binned, []float64{1, 1, -1, -1}, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, []int{2}, leftCategories(best.Split))
	assert.InDelta(t, 4.0, best.Gain, 1e-12)
}

func TestSplitTiesKeepLowestFeature(t *testing.T) {
	options := testOptions()
	options.ThreadsNum = 2
	x := []float32{0, 0, 1, 1}
	binned := binColumns(t, []FeatureColumn{NumberColumn("a", x), NumberColumn("b", x)}, options)

	best := rootBestSplit(t, binned, []float64{1, 1, -1, -1}, nil, options)
	require.NotNil(t, best)
	assert.Equal(t, 0, best.Split.FeatureIndex)
}

func TestChildrenSearchEqualsSeparateSearches(t *testing.T) {
	columns, gradients, hessians := randomDataset(7, 600)
	options := testOptions()
	options.MinExamplesPerNode = 5
	options.ThreadsNum = 3
	binned := binColumns(t, columns, options)
	n := binned.NExamples()

	split := Split{Kind: ContinuousSplitKind, FeatureIndex: 0, BinIndex: 100, InvalidValuesDirection: Left}
	indices := identityIndex(n)
	nLeft := RearrangeExamplesIndex(indices, make([]int, n), binned, &split, 1)

	childTotals := func(examples []int) NodeTotals {
		totals := NodeTotals{NExamples: len(examples)}
		for _, e := range examples {
			totals.SumGradients += gradients[e]
			totals.SumHessians += hessians[e]
		}
		return totals
	}
	leftTotals, rightTotals := childTotals(indices[:nLeft]), childTotals(indices[nLeft:])
	leftStats := bruteBinStats(binned, indices[:nLeft], gradients, hessians)
	rightStats := bruteBinStats(binned, indices[nLeft:], gradients, hessians)

	leftBest, rightBest := FindBestSplitsForChildren(leftStats, leftTotals, rightStats, rightTotals, binned, options)
	assert.Equal(t, FindBestSplit(leftStats, binned, leftTotals, options), leftBest)
	assert.Equal(t, FindBestSplit(rightStats, binned, rightTotals, options), rightBest)

	leftOnly, none := FindBestSplitsForChildren(leftStats, leftTotals, nil, rightTotals, binned, options)
	assert.Equal(t, leftBest, leftOnly)
	assert.Nil(t, none)
}
