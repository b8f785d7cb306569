package vibration

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rig-vibration/models"
)

// echoEstimator returns the first n standardized inputs as outputs.
type echoEstimator struct {
	outputs int
	panics  bool
	short   bool
}

func (e echoEstimator) Predict(row []float64) ([]float64, error) {
	if e.panics {
		panic("corrupt estimator")
	}
	if e.short {
		return row[:e.outputs-1], nil
	}
	return append([]float64(nil), row[:e.outputs]...), nil
}

func (e echoEstimator) InputWidth() int  { return models.FeatureCount }
func (e echoEstimator) OutputArity() int { return e.outputs }

func identityScaler(layout models.FeatureLayout) *StandardScaler {
	mean := make([]float64, len(layout))
	std := make([]float64, len(layout))
	for i := range std {
		std[i] = 1
	}
	return &StandardScaler{Layout: layout, Mean: mean, Stddev: std}
}

func sampleVector() models.FeatureVector {
	return models.FeatureVector{
		Depth:            2500,
		WOB:              20,
		RPM:              120,
		FlowIn:           2000,
		Torque:           15,
		SPP:              200,
		ROP:              25,
		MudWeightIn:      1.2,
		MudTempIn:        40,
		MudTempOut:       55,
		SurfaceStickSlip: 30,
	}
}

// writeArtifacts fits a small forest and persists it with its scaler.
func writeArtifacts(t *testing.T, dir string, layout models.FeatureLayout) (string, string) {
	t.Helper()
	return writeRunArtifacts(t, dir, layout, "run-1", 9)
}

func writeRunArtifacts(t *testing.T, dir string, layout models.FeatureLayout, runID string, dataSeed int64) (string, string) {
	t.Helper()

	x, y := syntheticRows(80, dataSeed)
	scaler, err := FitStandardScaler(x, layout)
	require.NoError(t, err)
	xs, err := scaler.TransformAll(x)
	require.NoError(t, err)
	forest, err := FitForest(context.Background(), xs, y, ForestConfig{Trees: 5, Seed: 44})
	require.NoError(t, err)

	modelPath := filepath.Join(dir, "model.json")
	scalerPath := filepath.Join(dir, "scaler.json")
	artifact := NewModelArtifact(forest, layout, DefaultTargets(3), &TrainingSummary{RunID: runID, Rows: 80, Seed: 44})
	require.NoError(t, SaveArtifacts(modelPath, scalerPath, runID, artifact, scaler))
	return modelPath, scalerPath
}

func TestEngineAssemblesInLayoutOrder(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(identityScaler(models.LayoutDashboard), echoEstimator{outputs: 3}, models.LayoutDashboard, DefaultTargets(3), 0)
	require.NoError(t, err)

	result, err := engine.Predict(context.Background(), sampleVector())
	require.NoError(t, err)
	assert.Equal(t, []float64{2500, 20, 120}, result.Raw())
	assert.Equal(t, StickSlip, result.Values[0].Metric)
	assert.Equal(t, "Lateral Vib.", result.Values[1].Label)
	assert.Equal(t, "g", result.Values[2].Unit)
}

func TestEngineCachesRepeatedVectors(t *testing.T) {
	t.Parallel()

	engine, err := NewEngine(identityScaler(models.LayoutTraining), echoEstimator{outputs: 3}, models.LayoutTraining, DefaultTargets(3), 4)
	require.NoError(t, err)

	first, err := engine.Predict(context.Background(), sampleVector())
	require.NoError(t, err)
	assert.False(t, first.Cached)

	second, err := engine.Predict(context.Background(), sampleVector())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Raw(), second.Raw())
}

func TestEngineWrapsEstimatorFailures(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		estimator echoEstimator
	}{
		{name: "panic", estimator: echoEstimator{outputs: 3, panics: true}},
		{name: "short output", estimator: echoEstimator{outputs: 3, short: true}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			engine, err := NewEngine(identityScaler(models.LayoutTraining), tt.estimator, models.LayoutTraining, DefaultTargets(3), 0)
			require.NoError(t, err)

			_, err = engine.Predict(context.Background(), sampleVector())
			var predErr *PredictionError
			require.ErrorAs(t, err, &predErr)
		})
	}
}

func TestNewEngineRejectsMismatchedComponents(t *testing.T) {
	t.Parallel()

	_, err := NewEngine(identityScaler(models.LayoutTraining), echoEstimator{outputs: 3}, models.LayoutTraining, DefaultTargets(4), 0)
	assert.Error(t, err, "target count differs from estimator arity")

	narrow := &StandardScaler{Mean: []float64{0}, Stddev: []float64{1}}
	_, err = NewEngine(narrow, echoEstimator{outputs: 3}, models.LayoutTraining, DefaultTargets(3), 0)
	assert.Error(t, err, "scaler width differs from layout")

	_, err = NewEngine(identityScaler(models.LayoutTraining), echoEstimator{outputs: 3}, models.LayoutTraining, []string{"stick_slip_severity", "bogus", "axial_shock"}, 0)
	assert.Error(t, err, "unknown metric")
}

func TestOfflineEngineRefusesPredictions(t *testing.T) {
	t.Parallel()

	engine := OfflineEngine(errors.New("model.json missing"))
	assert.False(t, engine.Available())

	_, err := engine.Predict(context.Background(), sampleVector())
	assert.ErrorIs(t, err, ErrEngineOffline)

	info := engine.Info()
	assert.False(t, info.Available)
	assert.Equal(t, "model.json missing", info.OfflineReason)
}

func TestLoadEngineRoundTrip(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modelPath, scalerPath := writeArtifacts(t, dir, models.LayoutTraining)

	engine, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: scalerPath, OutputArity: 3})
	require.NoError(t, err)
	require.True(t, engine.Available())

	info := engine.Info()
	assert.Equal(t, 5, info.Trees)
	assert.Equal(t, models.LayoutTraining, info.Layout)
	require.NotNil(t, info.Training)
	assert.Equal(t, 80, info.Training.Rows)
	assert.Equal(t, "run-1", info.RunID)

	first, err := engine.Predict(context.Background(), sampleVector())
	require.NoError(t, err)
	require.Len(t, first.Values, 3)

	// A second load of the same artifacts must predict identically.
	reloaded, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: scalerPath, OutputArity: 3})
	require.NoError(t, err)
	second, err := reloaded.Predict(context.Background(), sampleVector())
	require.NoError(t, err)
	assert.Equal(t, first.Raw(), second.Raw())

	for _, path := range []string{modelPath, scalerPath} {
		_, err = os.Stat(path + ".tmp")
		assert.True(t, os.IsNotExist(err), "temporary artifact left behind")
	}
}

func TestLoadEngineConcurrentPredictionsAgree(t *testing.T) {
	t.Parallel()

	modelPath, scalerPath := writeArtifacts(t, t.TempDir(), models.LayoutDashboard)
	engine, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: scalerPath, CacheSize: 2})
	require.NoError(t, err)

	want, err := engine.Predict(context.Background(), sampleVector())
	require.NoError(t, err)

	var wg sync.WaitGroup
	results := make([][]float64, 16)
	errs := make([]error, 16)
	for i := range results {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fv := sampleVector()
			if i%2 == 1 {
				fv.Depth += float64(i)
			}
			res, err := engine.Predict(context.Background(), fv)
			results[i], errs[i] = res.Raw(), err
		}()
	}
	wg.Wait()

	for i := range results {
		require.NoError(t, errs[i])
		if i%2 == 0 {
			assert.Equal(t, want.Raw(), results[i])
		}
	}
}

func TestLoadEngineFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modelPath, scalerPath := writeArtifacts(t, dir, models.LayoutTraining)

	t.Run("missing model", func(t *testing.T) {
		_, err := LoadEngine(EngineConfig{ModelPath: filepath.Join(dir, "absent.json"), ScalerPath: scalerPath})
		var loadErr *ArtifactLoadError
		require.ErrorAs(t, err, &loadErr)
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("arity mismatch", func(t *testing.T) {
		_, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: scalerPath, OutputArity: 4})
		var loadErr *ArtifactLoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, modelPath, loadErr.Path)
	})

	t.Run("corrupt scaler", func(t *testing.T) {
		corrupt := filepath.Join(dir, "corrupt.json")
		require.NoError(t, os.WriteFile(corrupt, []byte("{not json"), 0o644))
		_, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: corrupt})
		var loadErr *ArtifactLoadError
		require.ErrorAs(t, err, &loadErr)
	})

	t.Run("scaler from another layout", func(t *testing.T) {
		otherDir := t.TempDir()
		_, otherScaler := writeArtifacts(t, otherDir, models.LayoutDashboard)
		_, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: otherScaler})
		var loadErr *ArtifactLoadError
		require.ErrorAs(t, err, &loadErr)
	})

	t.Run("scaler from another training run", func(t *testing.T) {
		otherDir := t.TempDir()
		_, otherScaler := writeRunArtifacts(t, otherDir, models.LayoutTraining, "run-2", 10)
		_, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: otherScaler, OutputArity: 3})
		var loadErr *ArtifactLoadError
		require.ErrorAs(t, err, &loadErr)
		assert.Equal(t, otherScaler, loadErr.Path)
		assert.Contains(t, err.Error(), "training run")
	})
}

func TestSaveArtifactsKeepsPreviousPairOnWriteFailure(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	modelPath, scalerPath := writeArtifacts(t, dir, models.LayoutTraining)
	before, err := os.ReadFile(scalerPath)
	require.NoError(t, err)

	// The model temp file cannot be created while a directory holds its name.
	require.NoError(t, os.Mkdir(modelPath+".tmp", 0o755))

	x, y := syntheticRows(80, 10)
	scaler, err := FitStandardScaler(x, models.LayoutTraining)
	require.NoError(t, err)
	xs, err := scaler.TransformAll(x)
	require.NoError(t, err)
	forest, err := FitForest(context.Background(), xs, y, ForestConfig{Trees: 3, Seed: 1})
	require.NoError(t, err)
	artifact := NewModelArtifact(forest, models.LayoutTraining, DefaultTargets(3), nil)

	err = SaveArtifacts(modelPath, scalerPath, "run-2", artifact, scaler)
	require.Error(t, err)

	after, err := os.ReadFile(scalerPath)
	require.NoError(t, err)
	assert.Equal(t, before, after, "scaler replaced by a failed save")
	_, err = os.Stat(scalerPath + ".tmp")
	assert.True(t, os.IsNotExist(err))

	engine, err := LoadEngine(EngineConfig{ModelPath: modelPath, ScalerPath: scalerPath, OutputArity: 3})
	require.NoError(t, err)
	assert.Equal(t, "run-1", engine.Info().RunID)
}
