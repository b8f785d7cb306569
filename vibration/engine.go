package vibration

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	lru "github.com/hashicorp/golang-lru/v2"

	"rig-vibration/models"
	"rig-vibration/utils"
)

// EngineConfig locates the artifacts and states the output contract the
// caller expects.
type EngineConfig struct {
	ModelPath   string
	ScalerPath  string
	OutputArity int // 0 accepts whatever the artifact declares
	CacheSize   int // 0 disables the prediction cache
}

// Engine is the application context for inference. It holds a fitted
// scaler and estimator loaded once at startup. After construction it is
// read-only and safe for concurrent use; the prediction cache is
// internally synchronised.
type Engine struct {
	offlineReason error
	scaler        *StandardScaler
	estimator     Estimator
	layout        models.FeatureLayout
	targets       []Metric
	cache         *lru.Cache[string, []float64]
	info          EngineInfo
}

// LoadEngine deserialises both artifacts and checks they agree with each
// other and with cfg.OutputArity. Any failure is an *ArtifactLoadError.
func LoadEngine(cfg EngineConfig) (*Engine, error) {
	artifact, scaler, err := LoadArtifacts(cfg.ModelPath, cfg.ScalerPath)
	if err != nil {
		return nil, err
	}
	if cfg.OutputArity > 0 && artifact.Forest.Outputs != cfg.OutputArity {
		return nil, &ArtifactLoadError{
			Path: cfg.ModelPath,
			Err:  fmt.Errorf("estimator produces %d outputs, expected %d", artifact.Forest.Outputs, cfg.OutputArity),
		}
	}

	engine, err := NewEngine(scaler, artifact.Forest, artifact.Layout, artifact.Targets, cfg.CacheSize)
	if err != nil {
		return nil, &ArtifactLoadError{Err: err}
	}
	engine.info.RunID = artifact.RunID
	engine.info.Trees = len(artifact.Forest.Trees)
	engine.info.Training = artifact.Training
	engine.info.ModelPath = cfg.ModelPath
	engine.info.ScalerPath = cfg.ScalerPath

	utils.GetLogger().Info("prediction engine loaded",
		"model", cfg.ModelPath,
		"scaler", cfg.ScalerPath,
		"layout", artifact.Layout.String(),
		"outputs", artifact.Forest.Outputs,
		"trees", len(artifact.Forest.Trees))

	return engine, nil
}

// NewEngine assembles an engine from in-memory components.
func NewEngine(scaler *StandardScaler, estimator Estimator, layout models.FeatureLayout, targets []string, cacheSize int) (*Engine, error) {
	if scaler == nil || estimator == nil {
		return nil, errors.New("scaler and estimator are required")
	}
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	if scaler.Width() != len(layout) || estimator.InputWidth() != len(layout) {
		return nil, fmt.Errorf("input width mismatch: layout %d, scaler %d, estimator %d",
			len(layout), scaler.Width(), estimator.InputWidth())
	}
	if len(targets) != estimator.OutputArity() {
		return nil, fmt.Errorf("estimator produces %d outputs, %d targets named", estimator.OutputArity(), len(targets))
	}

	metrics := make([]Metric, len(targets))
	for i, key := range targets {
		m, ok := MetricByKey(key)
		if !ok {
			return nil, fmt.Errorf("unknown target metric %q", key)
		}
		metrics[i] = m
	}

	var cache *lru.Cache[string, []float64]
	if cacheSize > 0 {
		var err error
		cache, err = lru.New[string, []float64](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create prediction cache: %w", err)
		}
	}

	layoutCopy := append(models.FeatureLayout(nil), layout...)
	return &Engine{
		scaler:    scaler,
		estimator: estimator,
		layout:    layoutCopy,
		targets:   metrics,
		cache:     cache,
		info: EngineInfo{
			Available: true,
			Layout:    layoutCopy,
			Targets:   metrics,
		},
	}, nil
}

// OfflineEngine returns an engine that refuses every prediction.
func OfflineEngine(reason error) *Engine {
	if reason == nil {
		reason = ErrEngineOffline
	}
	return &Engine{
		offlineReason: reason,
		info: EngineInfo{
			Available:     false,
			OfflineReason: reason.Error(),
		},
	}
}

// Available reports whether predictions can be served.
func (e *Engine) Available() bool {
	return e != nil && e.offlineReason == nil && e.estimator != nil
}

// Info describes the loaded artifacts.
func (e *Engine) Info() EngineInfo {
	if e == nil {
		return EngineInfo{OfflineReason: ErrEngineOffline.Error()}
	}
	return e.info
}

// Layout is the feature order rows are assembled in.
func (e *Engine) Layout() models.FeatureLayout { return e.layout }

// Predict assembles fv in layout order, standardizes it and runs the estimator.
func (e *Engine) Predict(ctx context.Context, fv models.FeatureVector) (result PredictionResult, err error) {
	if !e.Available() {
		return PredictionResult{}, ErrEngineOffline
	}
	if err := ctx.Err(); err != nil {
		return PredictionResult{}, err
	}

	row, err := fv.Assemble(e.layout)
	if err != nil {
		return PredictionResult{}, &PredictionError{Err: err}
	}

	key := cacheKey(row)
	if e.cache != nil {
		if raw, ok := e.cache.Get(key); ok {
			return e.result(raw, true), nil
		}
	}

	defer func() {
		if r := recover(); r != nil {
			result = PredictionResult{}
			err = &PredictionError{Err: fmt.Errorf("estimator panic: %v", r)}
		}
	}()

	scaled, err := e.scaler.Transform(row)
	if err != nil {
		return PredictionResult{}, &PredictionError{Err: err}
	}
	raw, err := e.estimator.Predict(scaled)
	if err != nil {
		return PredictionResult{}, &PredictionError{Err: err}
	}
	if len(raw) != len(e.targets) {
		return PredictionResult{}, &PredictionError{
			Err: fmt.Errorf("estimator returned %d values, expected %d", len(raw), len(e.targets)),
		}
	}

	if e.cache != nil {
		e.cache.Add(key, append([]float64(nil), raw...))
	}
	return e.result(raw, false), nil
}

func (e *Engine) result(raw []float64, cached bool) PredictionResult {
	values := make([]MetricValue, len(e.targets))
	for i, m := range e.targets {
		values[i] = MetricValue{Metric: m, Value: raw[i]}
	}
	return PredictionResult{Values: values, Cached: cached}
}

func cacheKey(row []float64) string {
	var sb strings.Builder
	for i, v := range row {
		if i > 0 {
			sb.WriteByte(',')
		}
		sb.WriteString(strconv.FormatFloat(v, 'g', -1, 64))
	}
	return sb.String()
}
