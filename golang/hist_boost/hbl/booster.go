package hbl

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path"

	"go.opentelemetry.io/otel/trace"
	"gonum.org/v1/gonum/floats"
)

//Booster is the squared-error model: a bias plus the sum of its trees.
type Booster struct {
	Bias          float64              `json:"bias"`
	Instructions  []BinningInstruction `json:"instructions"`
	Trees         []Tree               `json:"trees"`
	LearningCurve []float64            `json:"learning_curve"`
}

//BoosterParams collect arguments required to construct a booster.
type BoosterParams struct {
	Columns        []FeatureColumn
	Target         []float64
	NRounds        int
	Options        TrainOptions
	Logger         *slog.Logger
	TracerProvider trace.TracerProvider
}

//NewBooster fits a squared-error booster. Binning instructions and binned features are
//computed once; each round derives gradients from the running predictions, grows one tree
//and updates the predictions through the leaf ranges of that tree.
func NewBooster(ctx context.Context, params BoosterParams) (*Booster, error) {
	logger := params.Logger
	if logger == nil {
		logger = slog.Default()
	}
	instructions, err := ComputeBinningInstructions(params.Columns, params.Options)
	if err != nil {
		return nil, err
	}
	binned, err := BinFeatures(params.Columns, instructions, params.Options.Threads())
	if err != nil {
		return nil, err
	}
	n := binned.NExamples()
	if len(params.Target) != n {
		return nil, fmt.Errorf("%d targets for %d examples: %w", len(params.Target), n, ErrLengthMismatch)
	}
	trainer, err := NewTreeTrainer(TreeTrainerParams{
		Binned:         binned,
		Options:        params.Options,
		Logger:         logger,
		TracerProvider: params.TracerProvider,
	})
	if err != nil {
		return nil, err
	}

	booster := &Booster{
		Bias:         floats.Sum(params.Target) / float64(n),
		Instructions: instructions,
	}
	predictions := make([]float64, n)
	for i := range predictions {
		predictions[i] = booster.Bias
	}
	gradients := make([]float64, n)

	for round := 0; round < params.NRounds; round++ {
		for i := range gradients {
			gradients[i] = predictions[i] - params.Target[i]
		}
		result, err := trainer.Train(ctx, gradients, nil)
		if err != nil {
			return nil, err
		}
		for _, leafRange := range result.LeafRanges {
			for _, example := range leafRange.Examples.Of(result.ExamplesIndex) {
				predictions[example] += leafRange.Value
			}
		}
		booster.Trees = append(booster.Trees, result.Tree)
		rmse := Rmse(params.Target, predictions)
		booster.LearningCurve = append(booster.LearningCurve, rmse)
		logger.Info("round finished",
			slog.Int("round", round+1),
			slog.Int("leaves", result.Tree.NLeaves()),
			slog.Float64("rmse", rmse),
		)
	}
	return booster, nil
}

//Rmse is the root mean squared difference between target and prediction.
func Rmse(target, prediction []float64) float64 {
	if len(target) == 0 {
		return 0
	}
	return floats.Distance(target, prediction, 2) / math.Sqrt(float64(len(target)))
}

//Predict infers values for raw feature columns laid out like the training columns.
//treesNumber limits the number of trees used; nil means all of them.
func (booster *Booster) Predict(columns []FeatureColumn, treesNumber *int) ([]float64, error) {
	if len(columns) != len(booster.Instructions) {
		return nil, fmt.Errorf("%d columns for a model of %d features: %w", len(columns), len(booster.Instructions), ErrLengthMismatch)
	}
	nExamples, err := validateColumns(columns)
	if err != nil {
		return nil, err
	}
	if err := matchInstructions(columns, booster.Instructions); err != nil {
		return nil, err
	}
	n := len(booster.Trees)
	if treesNumber != nil && *treesNumber < n {
		n = *treesNumber
	}

	prediction := make([]float64, nExamples)
	for p := 0; p < nExamples; p++ {
		s := booster.Bias
		for treeInd := 0; treeInd < n; treeInd++ {
			s += booster.Trees[treeInd].Predict(columns, p, booster.Instructions)
		}
		prediction[p] = s
	}
	return prediction, nil
}

//Save writes the model as indented JSON.
func (booster *Booster) Save(filename string) error {
	modelByteRepr, err := json.MarshalIndent(booster, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(filename, modelByteRepr, 0o644)
}

//LoadModel reads a model written by Save.
func LoadModel(filename string) (*Booster, error) {
	source, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer func() { _ = source.Close() }()

	booster := &Booster{}
	if err := json.NewDecoder(source).Decode(booster); err != nil {
		return nil, fmt.Errorf("decode model %s: %w", filename, err)
	}
	return booster, nil
}

//RenderTrees draws every tree of the model into picturesDirectory.
func (booster *Booster) RenderTrees(dumpPrefix, figureType, picturesDirectory string) error {
	for graphInd := range booster.Trees {
		filename := fmt.Sprintf("%s_%05d.%s", dumpPrefix, graphInd, figureType)
		if err := booster.Trees[graphInd].RenderFile(path.Join(picturesDirectory, filename), figureType); err != nil {
			return err
		}
	}
	return nil
}
