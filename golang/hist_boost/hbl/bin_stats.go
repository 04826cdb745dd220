package hbl

import (
	"log"
)

//BinStatsEntry accumulates gradients and hessians of the examples falling into one bin.
type BinStatsEntry struct {
	SumGradients float64
	SumHessians  float64
}

//BinStats is a column-major histogram: the entries of feature j occupy
//Entries[Offsets[j]:Offsets[j+1]], indexed by bin.
type BinStats struct {
	Entries []BinStatsEntry
	Offsets []int
	poolId  int
}

//NewBinStats allocates a zeroed histogram laid out for the given binned features.
func NewBinStats(binned *BinnedFeatures) *BinStats {
	offsets := make([]int, binned.NFeatures()+1)
	for j := range binned.Columns {
		offsets[j+1] = offsets[j] + binned.Columns[j].NBins
	}
	return &BinStats{
		Entries: make([]BinStatsEntry, offsets[len(offsets)-1]),
		Offsets: offsets,
		poolId:  -1,
	}
}

//Feature returns the bins of feature j.
func (s *BinStats) Feature(j int) []BinStatsEntry {
	return s.Entries[s.Offsets[j]:s.Offsets[j+1]]
}

//NFeatures returns the number of features covered by the histogram.
func (s *BinStats) NFeatures() int {
	return len(s.Offsets) - 1
}

//resetFeature zeroes the entries of one feature.
func (s *BinStats) resetFeature(j int) {
	clear(s.Feature(j))
}

//BinStatsPool hands out preallocated histograms. It is used from the tree growth control
//loop only and is therefore not safe for concurrent use.
type BinStatsPool struct {
	all  []*BinStats
	free []*BinStats
	out  []bool
}

//NewBinStatsPool preallocates capacity histograms for the given binned features.
func NewBinStatsPool(capacity int, binned *BinnedFeatures) *BinStatsPool {
	pool := &BinStatsPool{
		all:  make([]*BinStats, capacity),
		free: make([]*BinStats, 0, capacity),
		out:  make([]bool, capacity),
	}
	for i := 0; i < capacity; i++ {
		stats := NewBinStats(binned)
		stats.poolId = i
		pool.all[i] = stats
	}
	for i := capacity - 1; i >= 0; i-- {
		pool.free = append(pool.free, pool.all[i])
	}
	return pool
}

//Get checks out a histogram. Its contents are unspecified: callers overwrite or reset it.
//Running out of histograms means the leaf budget bookkeeping is broken, so it panics.
func (p *BinStatsPool) Get() *BinStats {
	if len(p.free) == 0 {
		log.Panicf("bin stats pool exhausted: all %d histograms are checked out", len(p.all))
	}
	stats := p.free[len(p.free)-1]
	p.free = p.free[:len(p.free)-1]
	p.out[stats.poolId] = true
	return stats
}

//Put returns a histogram to the pool.
func (p *BinStatsPool) Put(stats *BinStats) {
	if stats.poolId < 0 || stats.poolId >= len(p.all) || p.all[stats.poolId] != stats {
		log.Panicf("bin stats returned to a pool that does not own them")
	}
	if !p.out[stats.poolId] {
		log.Panicf("bin stats %d returned twice", stats.poolId)
	}
	p.out[stats.poolId] = false
	p.free = append(p.free, stats)
}

//InUse returns the number of histograms currently checked out.
func (p *BinStatsPool) InUse() int {
	return len(p.all) - len(p.free)
}
