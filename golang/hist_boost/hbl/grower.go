package hbl

import (
	"context"
	"fmt"
	"log"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
)

//leafValueEpsilon keeps the leaf value finite when a leaf carries no hessian mass.
const leafValueEpsilon = 2.220446049250313e-16

//LeafRange pairs the examples that ended in one leaf with the leaf value, so that running
//predictions can be updated without walking the tree again.
type LeafRange struct {
	Examples ExampleRange `json:"examples"`
	Value    float64      `json:"value"`
}

//TrainTreeResult is the output of one tree build. LeafRanges index into ExamplesIndex,
//which is owned by the trainer and overwritten by the next Train call.
type TrainTreeResult struct {
	Tree          Tree
	LeafRanges    []LeafRange
	ExamplesIndex []int
}

//TreeTrainer grows trees over fixed binned features. It owns the histogram pool, the examples
//index and the scratch buffers, all reused from one tree to the next.
//A TreeTrainer is not safe for concurrent use.
type TreeTrainer struct {
	binned           *BinnedFeatures
	options          TrainOptions
	threadsNum       int
	pool             *BinStatsPool
	examplesIndex    []int
	partitionScratch []int
	orderedGrads     []float64
	orderedHess      []float64
	logger           *slog.Logger
	tracer           trace.Tracer
}

//TreeTrainerParams collect arguments required to construct a trainer.
//A nil Logger or TracerProvider falls back to the process-wide default.
type TreeTrainerParams struct {
	Binned         *BinnedFeatures
	Options        TrainOptions
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

const tracerName = "github.com/tarstars/hist_boosting/golang/hist_boost/hbl"

//NewTreeTrainer validates the options and preallocates MaxLeafNodes histograms.
func NewTreeTrainer(params TreeTrainerParams) (*TreeTrainer, error) {
	if err := params.Options.Validate(); err != nil {
		return nil, err
	}
	if params.Binned == nil || params.Binned.NFeatures() == 0 {
		return nil, ErrNoFeatures
	}
	n := params.Binned.NExamples()
	if n == 0 {
		return nil, ErrNoExamples
	}
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	tracerProvider := params.TracerProvider
	if tracerProvider == nil {
		tracerProvider = otel.GetTracerProvider()
	}
	return &TreeTrainer{
		binned:           params.Binned,
		options:          params.Options,
		threadsNum:       params.Options.Threads(),
		pool:             NewBinStatsPool(params.Options.MaxLeafNodes, params.Binned),
		examplesIndex:    make([]int, n),
		partitionScratch: make([]int, n),
		orderedGrads:     make([]float64, n),
		orderedHess:      make([]float64, n),
		logger:           logger,
		tracer:           tracerProvider.Tracer(tracerName),
	}, nil
}

//growState is the bookkeeping of a single tree build.
type growState struct {
	nodes      []TreeNode
	leafRanges []LeafRange
	queue      splitQueue
	gradients  []float64
	hessians   []float64
	nExamples  int
}

//Train builds one tree for the given gradients. A nil hessians slice means constant hessians
//equal to one, as for squared error. Once started, a tree always runs to completion: ctx only
//carries the tracing span.
func (t *TreeTrainer) Train(ctx context.Context, gradients, hessians []float64) (*TrainTreeResult, error) {
	n := t.binned.NExamples()
	if len(gradients) != n {
		return nil, fmt.Errorf("%d gradients for %d examples: %w", len(gradients), n, ErrLengthMismatch)
	}
	if hessians != nil && len(hessians) != n {
		return nil, fmt.Errorf("%d hessians for %d examples: %w", len(hessians), n, ErrLengthMismatch)
	}

	_, span := t.tracer.Start(ctx, "hbl.TrainTree", trace.WithAttributes(
		attribute.Int("n_examples", n),
		attribute.Int("n_features", t.binned.NFeatures()),
	))
	defer span.End()
	start := time.Now()

	for i := range t.examplesIndex {
		t.examplesIndex[i] = i
	}
	state := &growState{
		gradients: gradients,
		hessians:  hessians,
		nExamples: n,
	}

	rootTotals := NodeTotals{NExamples: n, SumGradients: floats.Sum(gradients)}
	if hessians == nil {
		rootTotals.SumHessians = float64(n)
	} else {
		rootTotals.SumHessians = floats.Sum(hessians)
	}
	rootRange := ExampleRange{0, n}

	if !t.canSplit(rootTotals, 0) {
		t.addLeaf(state, -1, Left, rootRange, rootTotals)
	} else {
		rootStats := t.pool.Get()
		ComputeBinStatsRoot(rootStats, t.binned, gradients, hessians, t.threadsNum)
		rootSplit := FindBestSplit(rootStats, t.binned, rootTotals, t.options)
		if rootSplit == nil {
			t.pool.Put(rootStats)
			t.addLeaf(state, -1, Left, rootRange, rootTotals)
		} else {
			state.queue.push(&queueItem{
				gain:        rootSplit.Gain,
				bestSplit:   rootSplit,
				parentIndex: -1,
				depth:       0,
				examples:    rootRange,
				binStats:    rootStats,
				totals:      rootTotals,
			})
		}
	}

	for state.queue.Len() > 0 {
		item := state.queue.pop()
		nLeafNodes := len(state.leafRanges) + state.queue.Len() + 1
		if nLeafNodes >= t.options.MaxLeafNodes {
			t.pool.Put(item.binStats)
			t.addLeaf(state, item.parentIndex, item.direction, item.examples, item.totals)
			continue
		}
		t.splitNode(state, item)
	}

	if t.pool.InUse() != 0 {
		log.Panicf("%d histograms still checked out after the tree is finished", t.pool.InUse())
	}
	if len(state.leafRanges) > t.options.MaxLeafNodes {
		log.Panicf("tree has %d leaves, the budget is %d", len(state.leafRanges), t.options.MaxLeafNodes)
	}

	result := &TrainTreeResult{
		Tree:          Tree{Nodes: state.nodes},
		LeafRanges:    state.leafRanges,
		ExamplesIndex: t.examplesIndex,
	}
	elapsed := time.Since(start)
	treeBuildDuration.Observe(elapsed.Seconds())
	treeLeaves.Observe(float64(len(state.leafRanges)))
	span.SetAttributes(attribute.Int("n_leaves", len(state.leafRanges)))
	t.logger.Debug("tree trained",
		slog.Int("nodes", len(state.nodes)),
		slog.Int("leaves", len(state.leafRanges)),
		slog.Duration("elapsed", elapsed),
	)
	return result, nil
}

//canSplit checks whether a node could still become a branch: both children need at least the
//minimal number of examples and hessian mass, and the depth limit must not be reached.
func (t *TreeTrainer) canSplit(totals NodeTotals, depth int) bool {
	return t.options.canSplitAtDepth(depth) &&
		totals.NExamples >= 2*t.options.MinExamplesPerNode &&
		totals.SumHessians >= 2*t.options.MinSumHessiansPerNode
}

//LeafValue is the Newton step of a leaf, scaled by the learning rate.
func LeafValue(totals NodeTotals, options TrainOptions) float64 {
	return -options.LearningRate * totals.SumGradients / (totals.SumHessians + options.L2Regularization + leafValueEpsilon)
}

func (s *growState) examplesFraction(examples ExampleRange) float32 {
	return float32(examples.Len()) / float32(s.nExamples)
}

//appendNode adds a node and links it to its parent.
func (s *growState) appendNode(node TreeNode, parentIndex int, direction SplitDirection) int {
	index := len(s.nodes)
	node.TreeNodeId = index
	s.nodes = append(s.nodes, node)
	if parentIndex >= 0 {
		if direction == Left {
			s.nodes[parentIndex].LeftIndex = index
		} else {
			s.nodes[parentIndex].RightIndex = index
		}
	}
	return index
}

func (t *TreeTrainer) addLeaf(state *growState, parentIndex int, direction SplitDirection, examples ExampleRange, totals NodeTotals) {
	value := LeafValue(totals, t.options)
	state.appendNode(NewLeafNode(0, value, state.examplesFraction(examples)), parentIndex, direction)
	state.leafRanges = append(state.leafRanges, LeafRange{Examples: examples, Value: value})
}

//childState describes one child while its parent is being split.
type childState struct {
	direction SplitDirection
	examples  ExampleRange
	totals    NodeTotals
	eligible  bool
	binStats  *BinStats
}

//splitNode turns a popped queue item into a branch and handles both of its children.
func (t *TreeTrainer) splitNode(state *growState, item *queueItem) {
	split := item.bestSplit.Split
	indices := item.examples.Of(t.examplesIndex)
	nLeft := RearrangeExamplesIndex(indices, t.partitionScratch, t.binned, &split, t.threadsNum)
	leftRange, rightRange := item.examples.SplitAt(nLeft)

	missingValuesDirection := Left
	if rightRange.Len() > leftRange.Len() {
		missingValuesDirection = Right
	}
	branchIndex := state.appendNode(
		NewBranchNode(0, split, missingValuesDirection, state.examplesFraction(item.examples)),
		item.parentIndex, item.direction,
	)

	childDepth := item.depth + 1
	left := &childState{direction: Left, examples: leftRange, totals: item.bestSplit.LeftTotals(leftRange.Len())}
	right := &childState{direction: Right, examples: rightRange, totals: item.bestSplit.RightTotals(rightRange.Len())}
	left.eligible = t.canSplit(left.totals, childDepth)
	right.eligible = t.canSplit(right.totals, childDepth)

	smaller, larger := left, right
	if right.examples.Len() < left.examples.Len() {
		smaller, larger = right, left
	}

	parentStats := item.binStats
	switch {
	case smaller.eligible && larger.eligible:
		smaller.binStats = t.computeChildBinStats(state, smaller.examples)
		ComputeBinStatsSubtraction(parentStats, smaller.binStats)
		larger.binStats = parentStats
	case smaller.eligible:
		smaller.binStats = t.computeChildBinStats(state, smaller.examples)
		t.pool.Put(parentStats)
	case larger.eligible:
		smallerStats := t.computeChildBinStats(state, smaller.examples)
		ComputeBinStatsSubtraction(parentStats, smallerStats)
		t.pool.Put(smallerStats)
		larger.binStats = parentStats
	default:
		t.pool.Put(parentStats)
	}

	leftBest, rightBest := FindBestSplitsForChildren(
		left.binStats, left.totals,
		right.binStats, right.totals,
		t.binned, t.options,
	)
	t.enqueueOrLeaf(state, left, leftBest, branchIndex, childDepth)
	t.enqueueOrLeaf(state, right, rightBest, branchIndex, childDepth)
}

func (t *TreeTrainer) computeChildBinStats(state *growState, examples ExampleRange) *BinStats {
	stats := t.pool.Get()
	ComputeBinStatsForExamples(
		stats, t.binned, examples.Of(t.examplesIndex),
		state.gradients, state.hessians,
		t.orderedGrads, t.orderedHess,
		t.threadsNum,
	)
	return stats
}

//enqueueOrLeaf queues a child that has a profitable split and makes every other child a leaf.
func (t *TreeTrainer) enqueueOrLeaf(state *growState, child *childState, best *BestSplit, branchIndex, depth int) {
	if child.binStats == nil {
		t.addLeaf(state, branchIndex, child.direction, child.examples, child.totals)
		return
	}
	if best == nil {
		t.pool.Put(child.binStats)
		t.addLeaf(state, branchIndex, child.direction, child.examples, child.totals)
		return
	}
	state.queue.push(&queueItem{
		gain:        best.Gain,
		bestSplit:   best,
		parentIndex: branchIndex,
		direction:   child.direction,
		depth:       depth,
		examples:    child.examples,
		binStats:    child.binStats,
		totals:      child.totals,
	})
}
