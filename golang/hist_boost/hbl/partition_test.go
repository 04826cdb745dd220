package hbl

import (
	"math/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireLosslessPartition(t *testing.T, binned *BinnedFeatures, split *Split, original, indices []int, nLeft int) {
	t.Helper()
	require.Len(t, indices, len(original))
	sortedBefore := append([]int(nil), original...)
	sortedAfter := append([]int(nil), indices...)
	sort.Ints(sortedBefore)
	sort.Ints(sortedAfter)
	require.Equal(t, sortedBefore, sortedAfter)

	for position, example := range indices {
		direction := split.BinDirection(binned.Bin(split.FeatureIndex, example))
		if position < nLeft {
			require.Equal(t, Left, direction, "example %d at position %d", example, position)
		} else {
			require.Equal(t, Right, direction, "example %d at position %d", example, position)
		}
	}
}

func TestPartitionSerialAndParallel(t *testing.T) {
	columns, _, _ := randomDataset(11, 10_000)
	binned := binColumns(t, columns, testOptions())
	n := binned.NExamples()

	splits := []Split{
		{Kind: ContinuousSplitKind, FeatureIndex: 0, BinIndex: 120, InvalidValuesDirection: Right},
		{Kind: ContinuousSplitKind, FeatureIndex: 1, BinIndex: 20, InvalidValuesDirection: Left},
		{Kind: DiscreteSplitKind, FeatureIndex: 2, Directions: []SplitDirection{Right, Left, Right, Left, Left, Right}},
	}
	rng := rand.New(rand.NewSource(3))
	for _, split := range splits {
		original := rng.Perm(n)

		serial := append([]int(nil), original...)
		nLeftSerial := RearrangeExamplesIndex(serial, make([]int, n), binned, &split, 1)
		requireLosslessPartition(t, binned, &split, original, serial, nLeftSerial)

		parallel := append([]int(nil), original...)
		nLeftParallel := RearrangeExamplesIndex(parallel, make([]int, n), binned, &split, 4)
		requireLosslessPartition(t, binned, &split, original, parallel, nLeftParallel)
		assert.Equal(t, nLeftSerial, nLeftParallel)

		var expectedLeft, expectedRight []int
		for _, example := range original {
			if split.BinDirection(binned.Bin(split.FeatureIndex, example)) == Left {
				expectedLeft = append(expectedLeft, example)
			} else {
				expectedRight = append(expectedRight, example)
			}
		}
		expected := append(expectedLeft, expectedRight...)
		assert.Equal(t, expected, serial)
		assert.Equal(t, expected, parallel)
	}
}

func TestPartitionSubRange(t *testing.T) {
	columns, _, _ := randomDataset(12, 200)
	binned := binColumns(t, columns, testOptions())
	index := identityIndex(binned.NExamples())
	split := Split{Kind: ContinuousSplitKind, FeatureIndex: 0, BinIndex: 60, InvalidValuesDirection: Left}

	examples := ExampleRange{50, 150}
	original := append([]int(nil), examples.Of(index)...)
	nLeft := RearrangeExamplesIndex(examples.Of(index), make([]int, len(index)), binned, &split, 1)
	requireLosslessPartition(t, binned, &split, original, examples.Of(index), nLeft)

	left, right := examples.SplitAt(nLeft)
	assert.Equal(t, ExampleRange{50, 50 + nLeft}, left)
	assert.Equal(t, ExampleRange{50 + nLeft, 150}, right)
	assert.Equal(t, 100, left.Len()+right.Len())
	assert.Equal(t, identityIndex(50), index[:50])
}

func TestChunkBounds(t *testing.T) {
	assert.Equal(t, []int{0, 4, 7, 10}, chunkBounds(10, 3))
	assert.Equal(t, []int{0, 1, 2}, chunkBounds(2, 8))
	assert.Equal(t, []int{0, 0}, chunkBounds(0, 4))
	assert.Equal(t, []int{0, 5}, chunkBounds(5, 0))
}
