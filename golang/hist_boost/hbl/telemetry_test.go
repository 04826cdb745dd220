package hbl

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"
)

func TestTrainRecordsSpan(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	options := testOptions()
	binned := binColumns(t, []FeatureColumn{NumberColumn("x", []float32{0, 0, 0, 1, 1, 1})}, options)
	trainer, err := NewTreeTrainer(TreeTrainerParams{Binned: binned, Options: options, TracerProvider: tp})
	require.NoError(t, err)

	_, err = trainer.Train(context.Background(), []float64{-1, -1, -1, 1, 1, 1}, nil)
	require.NoError(t, err)

	spans := spanRecorder.Ended()
	require.Len(t, spans, 1)
	assert.Equal(t, "hbl.TrainTree", spans[0].Name())
	attributes := make(map[attribute.Key]attribute.Value)
	for _, kv := range spans[0].Attributes() {
		attributes[kv.Key] = kv.Value
	}
	assert.Equal(t, int64(6), attributes["n_examples"].AsInt64())
	assert.Equal(t, int64(1), attributes["n_features"].AsInt64())
	assert.Equal(t, int64(2), attributes["n_leaves"].AsInt64())
}

func TestBoosterSpansPerRound(t *testing.T) {
	spanRecorder := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(spanRecorder))
	defer func() { _ = tp.Shutdown(context.Background()) }()

	columns, target, _ := randomDataset(41, 200)
	_, err := NewBooster(context.Background(), BoosterParams{
		Columns:        columns,
		Target:         target,
		NRounds:        3,
		Options:        boosterOptions(),
		TracerProvider: tp,
	})
	require.NoError(t, err)
	assert.Len(t, spanRecorder.Ended(), 3)
}

func TestTrainUpdatesMetrics(t *testing.T) {
	columns, gradients, hessians := randomDataset(42, 6000)
	options := testOptions()
	options.ThreadsNum = 4
	options.MinExamplesPerNode = 20
	binned := binColumns(t, columns, options)
	trainer := newTrainer(t, binned, options)

	rootBefore := testutil.ToFloat64(histogramExamplesTotal.WithLabelValues("root"))
	parallelBefore := testutil.ToFloat64(partitionExamplesTotal.WithLabelValues("parallel"))
	subtractionsBefore := testutil.ToFloat64(subtractionsTotal)

	result, err := trainer.Train(context.Background(), gradients, hessians)
	require.NoError(t, err)
	require.Greater(t, result.Tree.NLeaves(), 2)

	assert.Equal(t, 6000.0, testutil.ToFloat64(histogramExamplesTotal.WithLabelValues("root"))-rootBefore)
	assert.GreaterOrEqual(t, testutil.ToFloat64(partitionExamplesTotal.WithLabelValues("parallel"))-parallelBefore, 6000.0)
	assert.Greater(t, testutil.ToFloat64(subtractionsTotal), subtractionsBefore)
}
