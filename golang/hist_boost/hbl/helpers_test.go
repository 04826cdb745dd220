package hbl

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

//testOptions are permissive options for small hand-written datasets.
func testOptions() TrainOptions {
	options := DefaultTrainOptions()
	options.MinExamplesPerNode = 1
	options.MinSumHessiansPerNode = 0
	options.LearningRate = 1
	options.ThreadsNum = 1
	return options
}

func binColumns(t *testing.T, columns []FeatureColumn, options TrainOptions) *BinnedFeatures {
	t.Helper()
	instructions, err := ComputeBinningInstructions(columns, options)
	require.NoError(t, err)
	binned, err := BinFeatures(columns, instructions, options.Threads())
	require.NoError(t, err)
	return binned
}

//randomDataset builds two number columns (one with missing values) and one enum column,
//with gradients depending on all of them.
func randomDataset(seed int64, n int) (columns []FeatureColumn, gradients, hessians []float64) {
	rng := rand.New(rand.NewSource(seed))
	x0 := make([]float32, n)
	x1 := make([]float32, n)
	x2 := make([]uint32, n)
	gradients = make([]float64, n)
	hessians = make([]float64, n)
	for i := 0; i < n; i++ {
		x0[i] = float32(rng.NormFloat64())
		x1[i] = float32(rng.Intn(50))
		if rng.Intn(10) == 0 {
			x1[i] = float32(math.NaN())
		}
		x2[i] = uint32(rng.Intn(6))
		g := rng.NormFloat64() * 0.1
		if x0[i] > 0.3 {
			g += 1
		}
		if x2[i] == 2 || x2[i] == 4 {
			g -= 0.7
		}
		if !math.IsNaN(float64(x1[i])) && x1[i] > 30 {
			g += 0.4
		}
		gradients[i] = g
		hessians[i] = 0.5 + rng.Float64()
	}
	columns = []FeatureColumn{
		NumberColumn("x0", x0),
		NumberColumn("x1", x1),
		EnumColumn("x2", 5, x2),
	}
	return columns, gradients, hessians
}

//bruteBinStats accumulates a histogram by direct iteration, without gathering.
func bruteBinStats(binned *BinnedFeatures, examples []int, gradients, hessians []float64) *BinStats {
	stats := NewBinStats(binned)
	for j := 0; j < binned.NFeatures(); j++ {
		entries := stats.Feature(j)
		for _, example := range examples {
			h := 1.0
			if hessians != nil {
				h = hessians[example]
			}
			entries[binned.Bin(j, example)].SumGradients += gradients[example]
			entries[binned.Bin(j, example)].SumHessians += h
		}
	}
	return stats
}

func requireBinStatsClose(t *testing.T, expected, actual *BinStats, delta float64) {
	t.Helper()
	require.Equal(t, len(expected.Entries), len(actual.Entries))
	for i := range expected.Entries {
		require.InDelta(t, expected.Entries[i].SumGradients, actual.Entries[i].SumGradients, delta, "gradients of entry %d", i)
		require.InDelta(t, expected.Entries[i].SumHessians, actual.Entries[i].SumHessians, delta, "hessians of entry %d", i)
	}
}

func identityIndex(n int) []int {
	indices := make([]int, n)
	for i := range indices {
		indices[i] = i
	}
	return indices
}
