package training

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"path/filepath"
	"time"

	"gonum.org/v1/gonum/stat"

	"rig-vibration/dataset"
	"rig-vibration/models"
	"rig-vibration/utils"
	"rig-vibration/vibration"
)

// Column names used by the historical well log export.
var (
	DefaultInputColumns  = []string{"DEPT", "WOB", "RPM", "Flow in", "Torque", "SPP", "M.Wt in", "M.Temp in", "M.Temp out", "SSS_H"}
	DefaultTargetColumns = []string{"SSL_H", "VIBXYH", "VIBZH"}

	// DashboardInputColumns feed models.LayoutDashboard, with ROP in place of SSS_H.
	DashboardInputColumns = []string{"DEPT", "WOB", "RPM", "Flow in", "Torque", "SPP", "ROP", "M.Wt in", "M.Temp in", "M.Temp out"}
)

// Config describes one training run.
type Config struct {
	DatasetPath   string
	ModelPath     string
	ScalerPath    string
	InputColumns  []string
	TargetColumns []string
	Layout        models.FeatureLayout // feature each input column feeds, in order
	Targets       []string             // metric key each target column produces, in order
	TestRatio     float64
	Seed          int64
	Forest        vibration.ForestConfig
}

// DefaultConfig returns the configuration that reproduces the shipped model.
func DefaultConfig(datasetPath, modelsDir string) Config {
	forest := vibration.DefaultForestConfig()
	return Config{
		DatasetPath:   datasetPath,
		ModelPath:     filepath.Join(modelsDir, "model.json"),
		ScalerPath:    filepath.Join(modelsDir, "scaler.json"),
		InputColumns:  DefaultInputColumns,
		TargetColumns: DefaultTargetColumns,
		Layout:        models.LayoutTraining,
		Targets:       vibration.DefaultTargets(len(DefaultTargetColumns)),
		TestRatio:     0.2,
		Seed:          forest.Seed,
		Forest:        forest,
	}
}

func (c Config) validate() error {
	if c.DatasetPath == "" || c.ModelPath == "" || c.ScalerPath == "" {
		return errors.New("dataset, model and scaler paths are required")
	}
	if err := c.Layout.Validate(); err != nil {
		return err
	}
	if len(c.InputColumns) != len(c.Layout) {
		return fmt.Errorf("%d input columns for a %d feature layout", len(c.InputColumns), len(c.Layout))
	}
	if len(c.TargetColumns) == 0 || len(c.TargetColumns) != len(c.Targets) {
		return fmt.Errorf("%d target columns for %d target metrics", len(c.TargetColumns), len(c.Targets))
	}
	return nil
}

// Report summarises a finished run.
type Report struct {
	Summary    vibration.TrainingSummary
	Scores     []TargetScore
	Profile    []dataset.ColumnProfile
	Issues     []string
	ModelPath  string
	ScalerPath string
	Duration   time.Duration
}

// Run loads the dataset, imputes missing cells, splits, standardizes, fits
// the forest and scores it on the held out rows. Artifacts are written
// only after every step succeeded.
func Run(ctx context.Context, cfg Config) (*Report, error) {
	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid training config: %w", err)
	}
	logger := utils.GetLogger()
	start := time.Now()

	table, err := dataset.LoadCSV(cfg.DatasetPath)
	if err != nil {
		return nil, err
	}
	frame, err := table.Select(cfg.InputColumns, cfg.TargetColumns)
	if err != nil {
		return nil, err
	}
	profile := frame.Profile()
	issues := dataset.ScaleIssues(profile, len(frame.X))
	for _, issue := range issues {
		logger.WarnContext(ctx, "input column issue", slog.String("issue", issue))
	}
	if _, err := frame.ImputeMean(); err != nil {
		return nil, err
	}

	train, test, err := dataset.TrainTestSplit(len(frame.X), cfg.TestRatio, cfg.Seed)
	if err != nil {
		return nil, err
	}
	trainX, trainY := frame.Rows(train)
	testX, testY := frame.Rows(test)
	logger.InfoContext(ctx, "dataset prepared",
		slog.String("dataset", cfg.DatasetPath),
		slog.Int("rows", len(frame.X)),
		slog.Int("train", len(train)),
		slog.Int("test", len(test)))

	scaler, err := vibration.FitStandardScaler(trainX, cfg.Layout)
	if err != nil {
		return nil, fmt.Errorf("fit scaler: %w", err)
	}
	trainXs, err := scaler.TransformAll(trainX)
	if err != nil {
		return nil, err
	}
	testXs, err := scaler.TransformAll(testX)
	if err != nil {
		return nil, err
	}

	forestCfg := cfg.Forest
	forestCfg.Seed = cfg.Seed
	forest, err := vibration.FitForest(ctx, trainXs, trainY, forestCfg)
	if err != nil {
		return nil, fmt.Errorf("fit forest: %w", err)
	}

	scores, overall, err := Score(forest, testXs, testY, cfg.Targets)
	if err != nil {
		return nil, err
	}

	summary := vibration.TrainingSummary{
		RunID:         utils.GenerateUniqueID(),
		TrainedAt:     time.Now().UTC(),
		Dataset:       filepath.Base(cfg.DatasetPath),
		Rows:          len(frame.X),
		TrainRows:     len(train),
		TestRows:      len(test),
		Seed:          cfg.Seed,
		R2:            overall,
		R2PerTarget:   make(map[string]float64, len(scores)),
		InputColumns:  frame.InputColumns,
		TargetColumns: frame.TargetColumns,
	}
	for _, s := range scores {
		summary.R2PerTarget[s.Target] = s.R2
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	artifact := vibration.NewModelArtifact(forest, cfg.Layout, cfg.Targets, &summary)
	if err := vibration.SaveArtifacts(cfg.ModelPath, cfg.ScalerPath, summary.RunID, artifact, scaler); err != nil {
		return nil, fmt.Errorf("save artifacts: %w", err)
	}

	report := &Report{
		Summary:    summary,
		Scores:     scores,
		Profile:    profile,
		Issues:     issues,
		ModelPath:  cfg.ModelPath,
		ScalerPath: cfg.ScalerPath,
		Duration:   time.Since(start),
	}
	logger.InfoContext(ctx, "training complete",
		slog.Float64("r2", overall),
		slog.String("model", cfg.ModelPath),
		slog.String("scaler", cfg.ScalerPath),
		slog.Duration("duration", report.Duration))
	return report, nil
}

// TargetScore is the held out quality of one output.
type TargetScore struct {
	Target string  `json:"target"`
	R2     float64 `json:"r2"`
	MAE    float64 `json:"mae"`
}

// Score predicts every row of x and compares against y. The overall value
// is the uniform average of the per-target R².
func Score(est vibration.Estimator, x, y [][]float64, targets []string) ([]TargetScore, float64, error) {
	if len(x) == 0 || len(x) != len(y) {
		return nil, 0, fmt.Errorf("cannot score %d rows against %d targets", len(x), len(y))
	}
	if len(targets) != est.OutputArity() {
		return nil, 0, fmt.Errorf("%d target names for %d outputs", len(targets), est.OutputArity())
	}

	predicted := make([][]float64, len(targets))
	actual := make([][]float64, len(targets))
	for i, row := range x {
		out, err := est.Predict(row)
		if err != nil {
			return nil, 0, fmt.Errorf("score row %d: %w", i, err)
		}
		for o := range targets {
			predicted[o] = append(predicted[o], out[o])
			actual[o] = append(actual[o], y[i][o])
		}
	}

	scores := make([]TargetScore, len(targets))
	r2s := make([]float64, len(targets))
	for o, name := range targets {
		abs := make([]float64, len(actual[o]))
		for i := range abs {
			abs[i] = math.Abs(predicted[o][i] - actual[o][i])
		}
		r2s[o] = rSquared(predicted[o], actual[o])
		scores[o] = TargetScore{Target: name, R2: r2s[o], MAE: stat.Mean(abs, nil)}
	}
	return scores, stat.Mean(r2s, nil), nil
}

// rSquared follows the usual convention for a constant truth: 1 for a
// perfect fit, 0 otherwise.
func rSquared(estimates, values []float64) float64 {
	const tol = 1e-9
	if len(values) < 2 || stat.Variance(values, nil) < tol {
		for i := range values {
			if math.Abs(estimates[i]-values[i]) > tol {
				return 0
			}
		}
		return 1
	}
	return stat.RSquaredFrom(estimates, values, nil)
}
