package hbl

import (
	"math"
	"sort"
)

//SplitDirection tells on which side of a branch an example continues.
type SplitDirection int8

const (
	Left SplitDirection = iota
	Right
)

func (d SplitDirection) String() string {
	if d == Left {
		return "left"
	}
	return "right"
}

//SplitKind distinguishes threshold splits from subset splits.
type SplitKind int8

const (
	ContinuousSplitKind SplitKind = iota
	DiscreteSplitKind
)

//Split is the decision stored in a branch.
//Continuous splits send bin 0 (invalid values) to InvalidValuesDirection and every other bin
//b to the left when b <= BinIndex, which is the same as value <= SplitValue. BinIndex 0
//separates invalid values (left) from all valid ones (right); SplitValue is unused then.
//Discrete splits send bin b to Directions[b].
type Split struct {
	Kind                   SplitKind        `json:"kind"`
	FeatureIndex           int              `json:"feature_index"`
	SplitValue             float32          `json:"split_value,omitempty"`
	BinIndex               int              `json:"bin_index,omitempty"`
	InvalidValuesDirection SplitDirection   `json:"invalid_values_direction"`
	Directions             []SplitDirection `json:"directions,omitempty"`
}

//BinDirection returns where an example with the given bin of the split feature goes.
func (s *Split) BinDirection(bin int) SplitDirection {
	if s.Kind == DiscreteSplitKind {
		if bin < len(s.Directions) {
			return s.Directions[bin]
		}
		return s.InvalidValuesDirection
	}
	if bin == 0 {
		return s.InvalidValuesDirection
	}
	if bin <= s.BinIndex {
		return Left
	}
	return Right
}

//NodeTotals are the aggregate statistics of the examples in one node.
type NodeTotals struct {
	NExamples    int
	SumGradients float64
	SumHessians  float64
}

//BestSplit contains results of the split selection algorithm.
type BestSplit struct {
	Gain              float64
	Split             Split
	LeftSumGradients  float64
	LeftSumHessians   float64
	RightSumGradients float64
	RightSumHessians  float64
	validSplit        bool
}

//LeftTotals returns the left child aggregates; nExamples is the exact left count.
func (b *BestSplit) LeftTotals(nExamples int) NodeTotals {
	return NodeTotals{NExamples: nExamples, SumGradients: b.LeftSumGradients, SumHessians: b.LeftSumHessians}
}

//RightTotals returns the right child aggregates; nExamples is the exact right count.
func (b *BestSplit) RightTotals(nExamples int) NodeTotals {
	return NodeTotals{NExamples: nExamples, SumGradients: b.RightSumGradients, SumHessians: b.RightSumHessians}
}

//negativeLoss is the loss reduction of a node compared to predicting zero for it.
func negativeLoss(sumGradients, sumHessians, l2Regularization float64) float64 {
	denominator := sumHessians + l2Regularization
	if denominator <= 0 {
		return 0
	}
	return sumGradients * sumGradients / denominator
}

//splitGain is the loss improvement of replacing the parent with its two children.
func splitGain(parent NodeTotals, leftG, leftH, rightG, rightH, l2Regularization float64) float64 {
	return negativeLoss(leftG, leftH, l2Regularization) +
		negativeLoss(rightG, rightH, l2Regularization) -
		negativeLoss(parent.SumGradients, parent.SumHessians, l2Regularization)
}

//approximateCount estimates how many examples carry sumHessians of the node's hessian mass.
func approximateCount(sumHessians float64, totals NodeTotals) int {
	if totals.SumHessians <= 0 {
		return 0
	}
	return int(math.Round(sumHessians / totals.SumHessians * float64(totals.NExamples)))
}

//scanState walks bins in a given order, keeping the left-hand running sums.
type scanState struct {
	totals  NodeTotals
	options TrainOptions
	l2      float64
	leftG   float64
	leftH   float64
}

//add moves one bin to the left side.
func (s *scanState) add(entry BinStatsEntry) {
	s.leftG += entry.SumGradients
	s.leftH += entry.SumHessians
}

//evaluate scores the current prefix. It returns ok=false when the left side does not yet satisfy
//the node constraints, and stop=true when the right side fails: it can only shrink further.
func (s *scanState) evaluate() (gain float64, leftN int, ok, stop bool) {
	rightG := s.totals.SumGradients - s.leftG
	rightH := s.totals.SumHessians - s.leftH
	leftN = approximateCount(s.leftH, s.totals)
	rightN := s.totals.NExamples - leftN
	if leftN < s.options.MinExamplesPerNode || s.leftH < s.options.MinSumHessiansPerNode {
		return 0, leftN, false, false
	}
	if rightN < s.options.MinExamplesPerNode || rightH < s.options.MinSumHessiansPerNode {
		return 0, leftN, false, true
	}
	return splitGain(s.totals, s.leftG, s.leftH, rightG, rightH, s.l2), leftN, true, false
}

func (s *scanState) record(best *BestSplit, gain float64) {
	best.Gain = gain
	best.LeftSumGradients = s.leftG
	best.LeftSumHessians = s.leftH
	best.RightSumGradients = s.totals.SumGradients - s.leftG
	best.RightSumHessians = s.totals.SumHessians - s.leftH
	best.validSplit = true
}

//findBestContinuousSplit scans the bins of a number feature in ascending order.
//Bin 0 (invalid values) always belongs to the running left prefix. The prefix made of bin 0
//alone is a candidate too: it sends invalid values left and every valid value right.
func findBestContinuousSplit(featureIndex int, entries []BinStatsEntry, thresholds []float32, totals NodeTotals, options TrainOptions) (best BestSplit) {
	state := scanState{totals: totals, options: options, l2: options.L2Regularization}
	bestLeftN := 0
	for bin := 0; bin < len(entries)-1; bin++ {
		state.add(entries[bin])
		gain, leftN, ok, stop := state.evaluate()
		if stop {
			break
		}
		if !ok {
			continue
		}
		if !best.validSplit || gain > best.Gain {
			state.record(&best, gain)
			bestLeftN = leftN
			best.Split = Split{
				Kind:         ContinuousSplitKind,
				FeatureIndex: featureIndex,
				BinIndex:     bin,
			}
			if bin > 0 {
				best.Split.SplitValue = thresholds[bin-1]
			}
		}
	}
	if !best.validSplit {
		return
	}
	switch {
	case best.Split.BinIndex == 0:
		best.Split.InvalidValuesDirection = Left
	case entries[0].SumHessians > 0 || entries[0].SumGradients != 0:
		best.Split.InvalidValuesDirection = Left
	case bestLeftN >= totals.NExamples-bestLeftN:
		best.Split.InvalidValuesDirection = Left
	default:
		best.Split.InvalidValuesDirection = Right
	}
	return
}

//findBestDiscreteSplit orders the bins of an enum feature by their smoothed mean gradient and
//scans prefixes of that order. The chosen prefix goes left.
func findBestDiscreteSplit(featureIndex int, entries []BinStatsEntry, totals NodeTotals, options TrainOptions) (best BestSplit) {
	order := make([]int, len(entries))
	scores := make([]float64, len(entries))
	for bin, entry := range entries {
		order[bin] = bin
		if denominator := entry.SumHessians + options.SmoothingFactorForDiscreteBinSorting; denominator > 0 {
			scores[bin] = entry.SumGradients / denominator
		}
	}
	sort.SliceStable(order, func(a, b int) bool {
		return scores[order[a]] < scores[order[b]]
	})

	state := scanState{
		totals:  totals,
		options: options,
		l2:      options.L2Regularization + options.SupplementalL2RegularizationForDiscreteSplits,
	}
	bestPrefix := -1
	for position := 0; position < len(order)-1; position++ {
		state.add(entries[order[position]])
		gain, _, ok, stop := state.evaluate()
		if stop {
			break
		}
		if !ok {
			continue
		}
		if !best.validSplit || gain > best.Gain {
			state.record(&best, gain)
			bestPrefix = position
		}
	}
	if !best.validSplit {
		return
	}
	directions := make([]SplitDirection, len(entries))
	for position, bin := range order {
		if position <= bestPrefix {
			directions[bin] = Left
		} else {
			directions[bin] = Right
		}
	}
	best.Split = Split{
		Kind:                   DiscreteSplitKind,
		FeatureIndex:           featureIndex,
		InvalidValuesDirection: directions[0],
		Directions:             directions,
	}
	return
}

//findBestSplitForFeature dispatches on the feature kind.
func findBestSplitForFeature(j int, stats *BinStats, binned *BinnedFeatures, totals NodeTotals, options TrainOptions) BestSplit {
	instruction := binned.Instructions[j]
	if instruction.Kind == EnumColumnKind {
		return findBestDiscreteSplit(j, stats.Feature(j), totals, options)
	}
	return findBestContinuousSplit(j, stats.Feature(j), instruction.Thresholds, totals, options)
}

//selectBestSplit reduces per-feature results to the global best. Ties keep the lowest feature
//index. Splits whose gain does not exceed MinGainToSplit are rejected.
func selectBestSplit(results []BestSplit, options TrainOptions) *BestSplit {
	bestIndex := -1
	for j := range results {
		if !results[j].validSplit {
			continue
		}
		if bestIndex == -1 || results[j].Gain > results[bestIndex].Gain {
			bestIndex = j
		}
	}
	if bestIndex == -1 || !(results[bestIndex].Gain > options.MinGainToSplit) {
		return nil
	}
	best := results[bestIndex]
	return &best
}

//FindBestSplit finds the best split of a node across all features. It returns nil when no
//split satisfies the node constraints and the gain floor.
func FindBestSplit(stats *BinStats, binned *BinnedFeatures, totals NodeTotals, options TrainOptions) *BestSplit {
	results := make([]BestSplit, binned.NFeatures())
	forEachTask(options.Threads(), binned.NFeatures(), func(j int) {
		results[j] = findBestSplitForFeature(j, stats, binned, totals, options)
	})
	return selectBestSplit(results, options)
}

//FindBestSplitsForChildren searches both children of a freshly split node in one pass over the
//features. A nil histogram skips that child. The results equal two FindBestSplit calls.
func FindBestSplitsForChildren(
	leftStats *BinStats, leftTotals NodeTotals,
	rightStats *BinStats, rightTotals NodeTotals,
	binned *BinnedFeatures,
	options TrainOptions,
) (leftBest, rightBest *BestSplit) {
	nFeatures := binned.NFeatures()
	leftResults := make([]BestSplit, nFeatures)
	rightResults := make([]BestSplit, nFeatures)
	forEachTask(options.Threads(), nFeatures, func(j int) {
		if leftStats != nil {
			leftResults[j] = findBestSplitForFeature(j, leftStats, binned, leftTotals, options)
		}
		if rightStats != nil {
			rightResults[j] = findBestSplitForFeature(j, rightStats, binned, rightTotals, options)
		}
	})
	if leftStats != nil {
		leftBest = selectBestSplit(leftResults, options)
	}
	if rightStats != nil {
		rightBest = selectBestSplit(rightResults, options)
	}
	return
}
