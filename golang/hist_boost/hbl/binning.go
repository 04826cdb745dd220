package hbl

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

var (
	ErrNoExamples     = errors.New("no examples")
	ErrNoFeatures     = errors.New("no features")
	ErrLengthMismatch = errors.New("length mismatch")
	ErrTooManyBins    = errors.New("too many bins")
)

//maxBinsPerFeature is the number of bins a uint16 binned column can address.
const maxBinsPerFeature = math.MaxUint16 + 1

//ColumnKind tells how raw values of a feature column are stored and binned.
type ColumnKind int

const (
	NumberColumnKind ColumnKind = iota
	EnumColumnKind
)

//FeatureColumn is one raw input feature. Number columns use NaN and infinities as missing values.
//Enum columns store option codes 1..EnumOptions; 0 (or anything above EnumOptions) is missing.
type FeatureColumn struct {
	Name         string
	Kind         ColumnKind
	NumberValues []float32
	EnumValues   []uint32
	EnumOptions  int
}

//NumberColumn creates a numeric feature column.
func NumberColumn(name string, values []float32) FeatureColumn {
	return FeatureColumn{Name: name, Kind: NumberColumnKind, NumberValues: values}
}

//EnumColumn creates a categorical feature column with nOptions categories.
func EnumColumn(name string, nOptions int, values []uint32) FeatureColumn {
	return FeatureColumn{Name: name, Kind: EnumColumnKind, EnumValues: values, EnumOptions: nOptions}
}

//Len returns the number of examples in the column.
func (c FeatureColumn) Len() int {
	if c.Kind == EnumColumnKind {
		return len(c.EnumValues)
	}
	return len(c.NumberValues)
}

func validateColumns(columns []FeatureColumn) (nExamples int, err error) {
	if len(columns) == 0 {
		return 0, ErrNoFeatures
	}
	nExamples = columns[0].Len()
	for j, column := range columns {
		if column.Len() != nExamples {
			return 0, fmt.Errorf("column %d (%q) has %d values, expected %d: %w", j, column.Name, column.Len(), nExamples, ErrLengthMismatch)
		}
	}
	if nExamples == 0 {
		return 0, ErrNoExamples
	}
	return nExamples, nil
}

//BinningInstruction describes how the raw values of one feature map to bins.
//Bin 0 is always reserved for invalid or missing values.
//A Number instruction with k thresholds yields k+2 bins: bin b >= 1 holds the values in
//(Thresholds[b-2], Thresholds[b-1]]. An Enum instruction yields NOptions+1 bins.
type BinningInstruction struct {
	Kind       ColumnKind `json:"kind"`
	Thresholds []float32  `json:"thresholds,omitempty"`
	NOptions   int        `json:"n_options,omitempty"`
}

//NBins returns the number of bins including the reserved invalid bin.
func (b BinningInstruction) NBins() int {
	if b.Kind == EnumColumnKind {
		return b.NOptions + 1
	}
	return len(b.Thresholds) + 2
}

//NumberBin maps a raw numeric value to its bin.
func (b BinningInstruction) NumberBin(value float32) int {
	if !isFinite(value) {
		return 0
	}
	return 1 + sort.Search(len(b.Thresholds), func(i int) bool {
		return b.Thresholds[i] >= value
	})
}

//EnumBin maps a raw enum code to its bin.
func (b BinningInstruction) EnumBin(value uint32) int {
	if int64(value) > int64(b.NOptions) {
		return 0
	}
	return int(value)
}

func isFinite(value float32) bool {
	v := float64(value)
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

//valueCount is one distinct value of a number column sample with its multiplicity.
type valueCount struct {
	value float32
	count int
}

//ComputeBinningInstructions derives one BinningInstruction per column from a sample of the data.
func ComputeBinningInstructions(columns []FeatureColumn, options TrainOptions) ([]BinningInstruction, error) {
	if _, err := validateColumns(columns); err != nil {
		return nil, err
	}
	for j, column := range columns {
		if column.Kind != EnumColumnKind {
			continue
		}
		if column.EnumOptions < 0 || column.EnumOptions+1 > maxBinsPerFeature {
			return nil, fmt.Errorf("enum column %d (%q) has %d options, at most %d are supported: %w",
				j, column.Name, column.EnumOptions, maxBinsPerFeature-1, ErrTooManyBins)
		}
	}
	instructions := make([]BinningInstruction, len(columns))
	forEachTask(options.Threads(), len(columns), func(j int) {
		column := columns[j]
		if column.Kind == EnumColumnKind {
			instructions[j] = BinningInstruction{Kind: EnumColumnKind, NOptions: column.EnumOptions}
			return
		}
		instructions[j] = computeNumberBinningInstruction(column.NumberValues, options)
	})
	return instructions, nil
}

func computeNumberBinningInstruction(values []float32, options TrainOptions) BinningInstruction {
	histogram, total := numberHistogram(values, options.MaxExamplesForComputingBinThresholds)
	maxValidBins := options.MaxValidBinsForNumberFeatures

	var thresholds []float32
	if len(histogram) < maxValidBins {
		thresholds = make([]float32, 0, len(histogram))
		for i := 0; i+1 < len(histogram); i++ {
			thresholds = append(thresholds, histogram[i].value+(histogram[i+1].value-histogram[i].value)/2)
		}
	} else {
		thresholds = quantileThresholds(histogram, total, maxValidBins)
	}
	return BinningInstruction{Kind: NumberColumnKind, Thresholds: thresholds}
}

//numberHistogram counts the distinct finite values among the first maxExamples values,
//sorted by value.
func numberHistogram(values []float32, maxExamples int) (histogram []valueCount, total int) {
	if maxExamples > 0 && len(values) > maxExamples {
		values = values[:maxExamples]
	}
	counts := make(map[float32]int)
	for _, value := range values {
		if !isFinite(value) {
			continue
		}
		counts[value]++
		total++
	}
	histogram = make([]valueCount, 0, len(counts))
	for value, count := range counts {
		histogram = append(histogram, valueCount{value, count})
	}
	sort.Slice(histogram, func(i, j int) bool { return histogram[i].value < histogram[j].value })
	return histogram, total
}

//quantileThresholds computes maxValidBins-1 thresholds at evenly spaced quantiles of the
//sampled values, interpolating linearly between neighbouring sorted values.
//Coinciding thresholds are dropped so the result stays strictly increasing.
func quantileThresholds(histogram []valueCount, total, maxValidBins int) []float32 {
	thresholds := make([]float32, 0, maxValidBins-1)
	cumulative := make([]int, len(histogram))
	running := 0
	for i, entry := range histogram {
		running += entry.count
		cumulative[i] = running
	}
	valueAt := func(position int) float32 {
		i := sort.Search(len(cumulative), func(i int) bool { return cumulative[i] > position })
		return histogram[i].value
	}

	for q := 1; q < maxValidBins; q++ {
		position := float64(q) / float64(maxValidBins) * float64(total-1)
		lower := int(math.Floor(position))
		upper := int(math.Ceil(position))
		lowerValue := valueAt(lower)
		upperValue := valueAt(upper)
		threshold := lowerValue + float32(position-float64(lower))*(upperValue-lowerValue)
		if len(thresholds) > 0 && threshold <= thresholds[len(thresholds)-1] {
			continue
		}
		thresholds = append(thresholds, threshold)
	}
	return thresholds
}
