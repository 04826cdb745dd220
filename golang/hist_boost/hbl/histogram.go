package hbl

import (
	"log"
)

//binIndex is the storage type of a binned feature column.
type binIndex interface {
	~uint8 | ~uint16
}

//ComputeBinStatsRoot fills stats with the histogram of every example.
//A nil hessians slice means the hessians are constant and equal to one.
//Features are processed in parallel; each one writes only its own entries.
func ComputeBinStatsRoot(stats *BinStats, binned *BinnedFeatures, gradients, hessians []float64, threadsNum int) {
	forEachTask(threadsNum, binned.NFeatures(), func(j int) {
		stats.resetFeature(j)
		entries := stats.Feature(j)
		column := binned.Column(j)
		if column.U8 != nil {
			accumulateRoot(entries, column.U8, gradients, hessians)
		} else {
			accumulateRoot(entries, column.U16, gradients, hessians)
		}
	})
	histogramExamplesTotal.WithLabelValues("root").Add(float64(binned.NExamples()))
}

func accumulateRoot[T binIndex](entries []BinStatsEntry, bins []T, gradients, hessians []float64) {
	if hessians == nil {
		for example, bin := range bins {
			entry := &entries[bin]
			entry.SumGradients += gradients[example]
			entry.SumHessians += 1
		}
		return
	}
	for example, bin := range bins {
		entry := &entries[bin]
		entry.SumGradients += gradients[example]
		entry.SumHessians += hessians[example]
	}
}

//ComputeBinStatsForExamples fills stats with the histogram of the examples listed in indices.
//The gradients (and hessians) of those examples are first gathered into orderedGradients and
//orderedHessians so that the accumulation loop reads them sequentially; only the binned
//feature lookups stay indirect. The ordered buffers must hold at least len(indices) values.
func ComputeBinStatsForExamples(
	stats *BinStats,
	binned *BinnedFeatures,
	indices []int,
	gradients, hessians []float64,
	orderedGradients, orderedHessians []float64,
	threadsNum int,
) {
	n := len(indices)
	orderedGradients = orderedGradients[:n]
	if hessians != nil {
		orderedHessians = orderedHessians[:n]
	} else {
		orderedHessians = nil
	}
	gatherThreads := threadsNum
	if n < parallelGatherMinExamples {
		gatherThreads = 1
	}
	forEachChunk(gatherThreads, n, func(_, begin, end int) {
		for k := begin; k < end; k++ {
			orderedGradients[k] = gradients[indices[k]]
		}
		if orderedHessians != nil {
			for k := begin; k < end; k++ {
				orderedHessians[k] = hessians[indices[k]]
			}
		}
	})

	forEachTask(threadsNum, binned.NFeatures(), func(j int) {
		stats.resetFeature(j)
		entries := stats.Feature(j)
		column := binned.Column(j)
		if column.U8 != nil {
			accumulateForExamples(entries, column.U8, indices, orderedGradients, orderedHessians)
		} else {
			accumulateForExamples(entries, column.U16, indices, orderedGradients, orderedHessians)
		}
	})
	histogramExamplesTotal.WithLabelValues("node").Add(float64(n))
}

const parallelGatherMinExamples = 16384

func accumulateForExamples[T binIndex](entries []BinStatsEntry, bins []T, indices []int, orderedGradients, orderedHessians []float64) {
	if orderedHessians == nil {
		for k, example := range indices {
			entry := &entries[bins[example]]
			entry.SumGradients += orderedGradients[k]
			entry.SumHessians += 1
		}
		return
	}
	for k, example := range indices {
		entry := &entries[bins[example]]
		entry.SumGradients += orderedGradients[k]
		entry.SumHessians += orderedHessians[k]
	}
}

//ComputeBinStatsSubtraction turns the parent histogram into the histogram of the larger child
//by subtracting the directly computed histogram of the smaller child, bin by bin.
func ComputeBinStatsSubtraction(parent, smallerChild *BinStats) {
	if len(parent.Entries) != len(smallerChild.Entries) {
		log.Panicf("cannot subtract bin stats of %d entries from %d entries", len(smallerChild.Entries), len(parent.Entries))
	}
	child := smallerChild.Entries
	for i := range parent.Entries {
		parent.Entries[i].SumGradients -= child[i].SumGradients
		parent.Entries[i].SumHessians -= child[i].SumHessians
	}
	subtractionsTotal.Inc()
}
