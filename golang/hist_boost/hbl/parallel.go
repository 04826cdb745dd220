package hbl

import (
	"golang.org/x/sync/errgroup"
)

//forEachTask runs task(i) for every i in [0, n) using at most threadsNum goroutines.
//The call returns once every task has finished. With a single thread the tasks run inline
//in index order.
func forEachTask(threadsNum, n int, task func(i int)) {
	if threadsNum <= 1 || n <= 1 {
		for i := 0; i < n; i++ {
			task(i)
		}
		return
	}

	var g errgroup.Group
	g.SetLimit(threadsNum)
	for i := 0; i < n; i++ {
		g.Go(func() error {
			task(i)
			return nil
		})
	}
	_ = g.Wait()
}

//chunkBounds splits [0, n) into at most nChunks contiguous chunks of nearly equal size.
//The returned slice has len(chunks)+1 entries: chunk c covers [bounds[c], bounds[c+1]).
func chunkBounds(n, nChunks int) []int {
	if nChunks < 1 {
		nChunks = 1
	}
	if nChunks > n {
		nChunks = n
	}
	if nChunks == 0 {
		return []int{0, 0}
	}
	bounds := make([]int, nChunks+1)
	chunkSize := n / nChunks
	remainder := n % nChunks
	for c := 0; c < nChunks; c++ {
		size := chunkSize
		if c < remainder {
			size++
		}
		bounds[c+1] = bounds[c] + size
	}
	return bounds
}

//forEachChunk splits [0, n) into one chunk per thread and runs task on every chunk.
func forEachChunk(threadsNum, n int, task func(chunk, begin, end int)) {
	bounds := chunkBounds(n, threadsNum)
	forEachTask(threadsNum, len(bounds)-1, func(c int) {
		task(c, bounds[c], bounds[c+1])
	})
}
