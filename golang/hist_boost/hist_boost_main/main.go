package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"runtime"
	"runtime/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/tarstars/hist_boosting/golang/hist_boost/hbl"
	"gopkg.in/yaml.v3"
)

//decodeConfig overlays the YAML config file on top of the default options.
func decodeConfig(srcConfig string) (hbl.TrainOptions, error) {
	options := hbl.DefaultTrainOptions()
	if srcConfig == "" {
		return options, nil
	}
	content, err := os.ReadFile(srcConfig)
	if err != nil {
		return options, err
	}
	if err := yaml.Unmarshal(content, &options); err != nil {
		return options, fmt.Errorf("parse config %s: %w", srcConfig, err)
	}
	return options, options.Validate()
}

func loadColumns(featuresFile string) ([]hbl.FeatureColumn, error) {
	slog.Info("load features", slog.String("file", featuresFile))
	features, err := hbl.ReadNpy(featuresFile)
	if err != nil {
		return nil, err
	}
	_, width := features.Dims()
	slog.Debug("features loaded", slog.Int("examples", hbl.Height(features)), slog.Int("features", width))
	return hbl.ColumnsFromDense(features), nil
}

//TreeDump is the JSON written by the tree command.
type TreeDump struct {
	Instructions []hbl.BinningInstruction `json:"instructions"`
	Tree         hbl.Tree                 `json:"tree"`
	LeafRanges   []hbl.LeafRange          `json:"leaf_ranges"`
}

func newTreeCommand() *cobra.Command {
	var config, featuresFile, gradientsFile, hessiansFile, outFile, svgFile string
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "grow one tree from given gradients",
		RunE: func(cmd *cobra.Command, _ []string) error {
			options, err := decodeConfig(config)
			if err != nil {
				return err
			}
			columns, err := loadColumns(featuresFile)
			if err != nil {
				return err
			}
			gradients, err := hbl.ReadNpyVector(gradientsFile)
			if err != nil {
				return err
			}
			var hessians []float64
			if hessiansFile != "" {
				if hessians, err = hbl.ReadNpyVector(hessiansFile); err != nil {
					return err
				}
			}

			instructions, err := hbl.ComputeBinningInstructions(columns, options)
			if err != nil {
				return err
			}
			binned, err := hbl.BinFeatures(columns, instructions, options.Threads())
			if err != nil {
				return err
			}
			trainer, err := hbl.NewTreeTrainer(hbl.TreeTrainerParams{Binned: binned, Options: options})
			if err != nil {
				return err
			}
			result, err := trainer.Train(cmd.Context(), gradients, hessians)
			if err != nil {
				return err
			}

			dump, err := json.MarshalIndent(TreeDump{instructions, result.Tree, result.LeafRanges}, "", "  ")
			if err != nil {
				return err
			}
			if err := os.WriteFile(outFile, dump, 0o644); err != nil {
				return err
			}
			if svgFile != "" {
				return result.Tree.RenderFile(svgFile, "svg")
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&config, "config", "", "YAML file with train options")
	cmd.Flags().StringVar(&featuresFile, "features", "", "npy matrix of features, one row per example")
	cmd.Flags().StringVar(&gradientsFile, "gradients", "", "npy vector of gradients")
	cmd.Flags().StringVar(&hessiansFile, "hessians", "", "npy vector of hessians, constant when omitted")
	cmd.Flags().StringVar(&outFile, "out", "tree.json", "where to write the tree")
	cmd.Flags().StringVar(&svgFile, "svg", "", "optional svg rendering of the tree")
	_ = cmd.MarkFlagRequired("features")
	_ = cmd.MarkFlagRequired("gradients")
	return cmd
}

func newBoostCommand() *cobra.Command {
	var config, featuresFile, targetFile, outFile string
	var rounds int
	cmd := &cobra.Command{
		Use:   "boost",
		Short: "fit a squared-error booster",
		RunE: func(cmd *cobra.Command, _ []string) error {
			options, err := decodeConfig(config)
			if err != nil {
				return err
			}
			columns, err := loadColumns(featuresFile)
			if err != nil {
				return err
			}
			target, err := hbl.ReadNpyVector(targetFile)
			if err != nil {
				return err
			}
			booster, err := hbl.NewBooster(cmd.Context(), hbl.BoosterParams{
				Columns: columns,
				Target:  target,
				NRounds: rounds,
				Options: options,
			})
			if err != nil {
				return err
			}
			return booster.Save(outFile)
		},
	}
	cmd.Flags().StringVar(&config, "config", "", "YAML file with train options")
	cmd.Flags().StringVar(&featuresFile, "features", "", "npy matrix of features, one row per example")
	cmd.Flags().StringVar(&targetFile, "target", "", "npy vector of targets")
	cmd.Flags().IntVar(&rounds, "rounds", 100, "number of boosting rounds")
	cmd.Flags().StringVar(&outFile, "out", "model.json", "where to write the model")
	_ = cmd.MarkFlagRequired("features")
	_ = cmd.MarkFlagRequired("target")
	return cmd
}

func newPredictCommand() *cobra.Command {
	var modelFile, featuresFile, outFile string
	var treesNumber int
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "predict with a saved booster",
		RunE: func(_ *cobra.Command, _ []string) error {
			booster, err := hbl.LoadModel(modelFile)
			if err != nil {
				return err
			}
			columns, err := loadColumns(featuresFile)
			if err != nil {
				return err
			}
			var optionalTreeNumber *int
			if treesNumber != 0 {
				optionalTreeNumber = &treesNumber
			}
			prediction, err := booster.Predict(columns, optionalTreeNumber)
			if err != nil {
				return err
			}
			return hbl.WriteNpy(outFile, prediction)
		},
	}
	cmd.Flags().StringVar(&modelFile, "model", "model.json", "saved model")
	cmd.Flags().StringVar(&featuresFile, "features", "", "npy matrix of features, one row per example")
	cmd.Flags().StringVar(&outFile, "out", "prediction.npy", "where to write predictions")
	cmd.Flags().IntVar(&treesNumber, "trees", 0, "number of trees to use, all when 0")
	_ = cmd.MarkFlagRequired("features")
	return cmd
}

func newGraphCommand() *cobra.Command {
	var modelFile, picturesDirectory, dumpPrefix, figureType string
	cmd := &cobra.Command{
		Use:   "graph",
		Short: "render every tree of a saved booster",
		RunE: func(_ *cobra.Command, _ []string) error {
			booster, err := hbl.LoadModel(modelFile)
			if err != nil {
				return err
			}
			return booster.RenderTrees(dumpPrefix, figureType, picturesDirectory)
		},
	}
	cmd.Flags().StringVar(&modelFile, "model", "model.json", "saved model")
	cmd.Flags().StringVar(&picturesDirectory, "dir", ".", "output directory")
	cmd.Flags().StringVar(&dumpPrefix, "prefix", "tree", "file name prefix")
	cmd.Flags().StringVar(&figureType, "format", "svg", "png, svg or jpg")
	return cmd
}

//writeHeapProfile dumps the heap after a forced collection.
func writeHeapProfile(fileName string) error {
	f, err := os.Create(fileName)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}

func newRootCommand() *cobra.Command {
	var memprofile, metricsFile string
	var verbose bool
	root := &cobra.Command{
		Use:           "hist_boost",
		Short:         "histogram gradient boosted trees",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(_ *cobra.Command, _ []string) {
			level := slog.LevelInfo
			if verbose {
				level = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
		},
		PersistentPostRunE: func(_ *cobra.Command, _ []string) error {
			if metricsFile != "" {
				if err := prometheus.WriteToTextfile(metricsFile, prometheus.DefaultGatherer); err != nil {
					return fmt.Errorf("write metrics %s: %w", metricsFile, err)
				}
			}
			if memprofile != "" {
				return writeHeapProfile(memprofile)
			}
			return nil
		},
	}
	root.PersistentFlags().StringVar(&memprofile, "memprofile", "", "write memory profile to `file`")
	root.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "write prometheus metrics in text format to `file`")
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "debug logging")
	root.AddCommand(newTreeCommand(), newBoostCommand(), newPredictCommand(), newGraphCommand())
	return root
}

func main() {
	if err := newRootCommand().ExecuteContext(context.Background()); err != nil {
		slog.Error("hist_boost failed", slog.Any("error", err))
		os.Exit(1)
	}
}
