package hbl

import (
	"fmt"
	"runtime"

	"github.com/go-playground/validator/v10"
)

//TrainOptions collects the knobs recognized by binning, split search and tree growth.
//MaxDepth is optional: nil means the depth is bounded only by MaxLeafNodes.
type TrainOptions struct {
	MaxDepth                                      *int    `yaml:"max_depth" json:"max_depth" validate:"omitempty,gte=0"`
	MaxLeafNodes                                  int     `yaml:"max_leaf_nodes" json:"max_leaf_nodes" validate:"gte=2"`
	LearningRate                                  float64 `yaml:"learning_rate" json:"learning_rate" validate:"gt=0"`
	L2Regularization                              float64 `yaml:"l2_regularization" json:"l2_regularization" validate:"gte=0"`
	MinExamplesPerNode                            int     `yaml:"min_examples_per_node" json:"min_examples_per_node" validate:"gte=0"`
	MinSumHessiansPerNode                         float64 `yaml:"min_sum_hessians_per_node" json:"min_sum_hessians_per_node" validate:"gte=0"`
	MinGainToSplit                                float64 `yaml:"min_gain_to_split" json:"min_gain_to_split" validate:"gte=0"`
	MaxValidBinsForNumberFeatures                 int     `yaml:"max_valid_bins_for_number_features" json:"max_valid_bins_for_number_features" validate:"gte=2,lte=65535"`
	MaxExamplesForComputingBinThresholds          int     `yaml:"max_examples_for_computing_bin_thresholds" json:"max_examples_for_computing_bin_thresholds" validate:"gte=1"`
	SmoothingFactorForDiscreteBinSorting          float64 `yaml:"smoothing_factor_for_discrete_bin_sorting" json:"smoothing_factor_for_discrete_bin_sorting" validate:"gte=0"`
	SupplementalL2RegularizationForDiscreteSplits float64 `yaml:"supplemental_l2_regularization_for_discrete_splits" json:"supplemental_l2_regularization_for_discrete_splits" validate:"gte=0"`
	ThreadsNum                                    int     `yaml:"threads_num" json:"threads_num" validate:"gte=0"`
}

var optionsValidate = validator.New()

//DefaultTrainOptions returns the options used when a config leaves a field out.
func DefaultTrainOptions() TrainOptions {
	return TrainOptions{
		MaxDepth:                                      nil,
		MaxLeafNodes:                                  31,
		LearningRate:                                  0.1,
		L2Regularization:                              0,
		MinExamplesPerNode:                            20,
		MinSumHessiansPerNode:                         1e-3,
		MinGainToSplit:                                0,
		MaxValidBinsForNumberFeatures:                 255,
		MaxExamplesForComputingBinThresholds:          200_000,
		SmoothingFactorForDiscreteBinSorting:          10,
		SupplementalL2RegularizationForDiscreteSplits: 10,
		ThreadsNum:                                    0,
	}
}

//Validate checks the option ranges.
func (o TrainOptions) Validate() error {
	if err := optionsValidate.Struct(o); err != nil {
		return fmt.Errorf("invalid train options: %w", err)
	}
	return nil
}

//Threads returns the effective worker count, defaulting to GOMAXPROCS.
func (o TrainOptions) Threads() int {
	if o.ThreadsNum > 0 {
		return o.ThreadsNum
	}
	return runtime.GOMAXPROCS(0)
}

//canSplitAtDepth reports whether a node at the given depth may still become a branch.
func (o TrainOptions) canSplitAtDepth(depth int) bool {
	return o.MaxDepth == nil || depth < *o.MaxDepth
}

//IntPtr is a small helper for filling optional integer options.
func IntPtr(v int) *int {
	return &v
}
