package hbl

//parallelPartitionMinExamples is the smallest range partitioned with count-then-scatter.
const parallelPartitionMinExamples = 4096

//leftBinsTable precomputes, for every bin of the split feature, whether it goes left.
func leftBinsTable(split *Split, nBins int) []bool {
	table := make([]bool, nBins)
	for bin := range table {
		table[bin] = split.BinDirection(bin) == Left
	}
	return table
}

//RearrangeExamplesIndex reorders the examples of one node in place so that the examples sent
//left by split come first, and returns how many go left. The relative order of examples is
//kept on both sides, so the result does not depend on threadsNum. scratch must hold at least
//len(indices) values. Large ranges are partitioned in parallel.
func RearrangeExamplesIndex(indices, scratch []int, binned *BinnedFeatures, split *Split, threadsNum int) (nLeft int) {
	column := binned.Column(split.FeatureIndex)
	leftBins := leftBinsTable(split, column.NBins)
	scratch = scratch[:len(indices)]
	if threadsNum > 1 && len(indices) >= parallelPartitionMinExamples {
		partitionExamplesTotal.WithLabelValues("parallel").Add(float64(len(indices)))
		if column.U8 != nil {
			return partitionParallel(indices, scratch, column.U8, leftBins, threadsNum)
		}
		return partitionParallel(indices, scratch, column.U16, leftBins, threadsNum)
	}
	partitionExamplesTotal.WithLabelValues("serial").Add(float64(len(indices)))
	if column.U8 != nil {
		return partitionSerial(indices, scratch, column.U8, leftBins)
	}
	return partitionSerial(indices, scratch, column.U16, leftBins)
}

//partitionSerial compacts the left examples in place and parks the right ones in scratch.
//The write position never passes the read position, so the in place compaction is safe.
func partitionSerial[T binIndex](indices, scratch []int, bins []T, leftBins []bool) int {
	nLeft, nRight := 0, 0
	for _, example := range indices {
		if leftBins[bins[example]] {
			indices[nLeft] = example
			nLeft++
		} else {
			scratch[nRight] = example
			nRight++
		}
	}
	copy(indices[nLeft:], scratch[:nRight])
	return nLeft
}

//partitionParallel counts left examples per chunk, turns the counts into disjoint output
//offsets, scatters every chunk into scratch independently and copies the result back.
//The relative order of examples is preserved on both sides.
func partitionParallel[T binIndex](indices, scratch []int, bins []T, leftBins []bool, threadsNum int) int {
	n := len(indices)
	bounds := chunkBounds(n, threadsNum)
	nChunks := len(bounds) - 1

	leftCounts := make([]int, nChunks)
	forEachTask(threadsNum, nChunks, func(c int) {
		count := 0
		for _, example := range indices[bounds[c]:bounds[c+1]] {
			if leftBins[bins[example]] {
				count++
			}
		}
		leftCounts[c] = count
	})

	nLeft := 0
	for _, count := range leftCounts {
		nLeft += count
	}
	leftOffsets := make([]int, nChunks)
	rightOffsets := make([]int, nChunks)
	leftOffset, rightOffset := 0, nLeft
	for c := 0; c < nChunks; c++ {
		leftOffsets[c] = leftOffset
		rightOffsets[c] = rightOffset
		leftOffset += leftCounts[c]
		rightOffset += bounds[c+1] - bounds[c] - leftCounts[c]
	}

	forEachTask(threadsNum, nChunks, func(c int) {
		l, r := leftOffsets[c], rightOffsets[c]
		for _, example := range indices[bounds[c]:bounds[c+1]] {
			if leftBins[bins[example]] {
				scratch[l] = example
				l++
			} else {
				scratch[r] = example
				r++
			}
		}
	})

	forEachChunk(threadsNum, n, func(_, begin, end int) {
		copy(indices[begin:end], scratch[begin:end])
	})
	return nLeft
}
