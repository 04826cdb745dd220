package hbl

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/mat"
)

//BinnedFeatureColumn holds the bin index of every example for one feature.
//Exactly one of U8 and U16 is set, depending on the number of bins.
type BinnedFeatureColumn struct {
	U8    []uint8
	U16   []uint16
	NBins int
}

//Bin returns the bin of one example.
func (c *BinnedFeatureColumn) Bin(example int) int {
	if c.U8 != nil {
		return int(c.U8[example])
	}
	return int(c.U16[example])
}

//BinnedFeatures is the read-only binned view of the training data shared by every tree.
type BinnedFeatures struct {
	Columns      []BinnedFeatureColumn
	Instructions []BinningInstruction
	nExamples    int
}

//NExamples returns the number of examples.
func (b *BinnedFeatures) NExamples() int {
	return b.nExamples
}

//NFeatures returns the number of features.
func (b *BinnedFeatures) NFeatures() int {
	return len(b.Columns)
}

//Column returns the binned column of feature j.
func (b *BinnedFeatures) Column(j int) *BinnedFeatureColumn {
	return &b.Columns[j]
}

//Bin returns the bin of the given example for feature j.
func (b *BinnedFeatures) Bin(j, example int) int {
	return b.Columns[j].Bin(example)
}

//BinFeatures maps every raw value to its bin once, using one instruction per column.
func BinFeatures(columns []FeatureColumn, instructions []BinningInstruction, threadsNum int) (*BinnedFeatures, error) {
	nExamples, err := validateColumns(columns)
	if err != nil {
		return nil, err
	}
	if err := matchInstructions(columns, instructions); err != nil {
		return nil, err
	}

	binned := &BinnedFeatures{
		Columns:      make([]BinnedFeatureColumn, len(columns)),
		Instructions: instructions,
		nExamples:    nExamples,
	}
	forEachTask(threadsNum, len(columns), func(j int) {
		binned.Columns[j] = binColumn(columns[j], instructions[j])
	})
	return binned, nil
}

//matchInstructions checks that there is one instruction of the right kind per column and that
//every instruction fits a uint16 binned column.
func matchInstructions(columns []FeatureColumn, instructions []BinningInstruction) error {
	if len(instructions) != len(columns) {
		return fmt.Errorf("%d instructions for %d columns: %w", len(instructions), len(columns), ErrLengthMismatch)
	}
	for j, column := range columns {
		if column.Kind != instructions[j].Kind {
			return fmt.Errorf("column %d (%q) kind does not match its binning instruction", j, column.Name)
		}
		if nBins := instructions[j].NBins(); nBins < 1 || nBins > maxBinsPerFeature {
			return fmt.Errorf("column %d (%q) needs %d bins: %w", j, column.Name, nBins, ErrTooManyBins)
		}
	}
	return nil
}

func binColumn(column FeatureColumn, instruction BinningInstruction) BinnedFeatureColumn {
	nBins := instruction.NBins()
	n := column.Len()
	binOf := func(i int) int {
		if column.Kind == EnumColumnKind {
			return instruction.EnumBin(column.EnumValues[i])
		}
		return instruction.NumberBin(column.NumberValues[i])
	}

	result := BinnedFeatureColumn{NBins: nBins}
	if nBins <= math.MaxUint8+1 {
		result.U8 = make([]uint8, n)
		for i := 0; i < n; i++ {
			result.U8[i] = uint8(binOf(i))
		}
	} else {
		result.U16 = make([]uint16, n)
		for i := 0; i < n; i++ {
			result.U16[i] = uint16(binOf(i))
		}
	}
	return result
}

//ColumnsFromDense turns every column of a dense matrix into a number feature column.
//NaN entries are treated as missing values.
func ColumnsFromDense(features *mat.Dense) []FeatureColumn {
	h, w := features.Dims()
	columns := make([]FeatureColumn, w)
	for q := 0; q < w; q++ {
		values := make([]float32, h)
		for p := 0; p < h; p++ {
			values[p] = float32(features.At(p, q))
		}
		columns[q] = NumberColumn(fmt.Sprintf("f_%d", q), values)
	}
	return columns
}

//Height returns the number of rows of a matrix.
func Height(m mat.Matrix) int {
	h, _ := m.Dims()
	return h
}
