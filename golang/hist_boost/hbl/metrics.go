package hbl

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

//Tree training metrics
var (
	treeBuildDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hbl_tree_build_duration_seconds",
		Help:    "Time to grow one tree",
		Buckets: []float64{0.0001, 0.001, 0.01, 0.1, 1, 10, 100},
	})

	treeLeaves = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "hbl_tree_leaves",
		Help:    "Number of leaves per grown tree",
		Buckets: []float64{1, 2, 4, 8, 16, 32, 64, 128, 256, 1024},
	})

	histogramExamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hbl_histogram_examples_total",
		Help: "Examples scanned while building histograms",
	}, []string{"path"})

	subtractionsTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "hbl_subtractions_total",
		Help: "Histograms derived by parent minus smaller child subtraction",
	})

	partitionExamplesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "hbl_partition_examples_total",
		Help: "Examples rearranged while partitioning node ranges",
	}, []string{"mode"})
)
