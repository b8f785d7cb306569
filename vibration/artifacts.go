package vibration

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"rig-vibration/models"
)

const (
	ModelKindRandomForest = "random_forest"
	artifactVersion       = 1
)

// ModelArtifact is the persisted form of a fitted estimator together with
// the feature layout and output contract it was trained with.
type ModelArtifact struct {
	Kind     string               `json:"kind"`
	Version  int                  `json:"version"`
	RunID    string               `json:"runId,omitempty"`
	Layout   models.FeatureLayout `json:"layout"`
	Targets  []string             `json:"targets"`
	Training *TrainingSummary     `json:"training,omitempty"`
	Forest   *ForestRegressor     `json:"forest"`
}

// NewModelArtifact wraps a fitted forest for persistence.
func NewModelArtifact(forest *ForestRegressor, layout models.FeatureLayout, targets []string, summary *TrainingSummary) *ModelArtifact {
	return &ModelArtifact{
		Kind:     ModelKindRandomForest,
		Version:  artifactVersion,
		Layout:   append(models.FeatureLayout(nil), layout...),
		Targets:  append([]string(nil), targets...),
		Training: summary,
		Forest:   forest,
	}
}

func (a *ModelArtifact) validate() error {
	if a.Kind != ModelKindRandomForest {
		return fmt.Errorf("unsupported model kind %q", a.Kind)
	}
	if a.Version != artifactVersion {
		return fmt.Errorf("unsupported artifact version %d", a.Version)
	}
	if err := a.Layout.Validate(); err != nil {
		return err
	}
	if a.Forest == nil || len(a.Forest.Trees) == 0 {
		return errors.New("model has no trees")
	}
	if a.Forest.Inputs != len(a.Layout) {
		return fmt.Errorf("forest expects %d inputs, layout names %d", a.Forest.Inputs, len(a.Layout))
	}
	if len(a.Targets) != a.Forest.Outputs {
		return fmt.Errorf("forest produces %d outputs, artifact names %d targets", a.Forest.Outputs, len(a.Targets))
	}
	for _, key := range a.Targets {
		if _, ok := MetricByKey(key); !ok {
			return fmt.Errorf("unknown target metric %q", key)
		}
	}
	for i, tree := range a.Forest.Trees {
		if len(tree.Nodes) == 0 {
			return fmt.Errorf("tree %d has no nodes", i)
		}
	}
	return nil
}

// SaveArtifacts writes a scaler and model produced by the same training
// run. Both are stamped with runID, validated and written to temporary
// files before either is renamed into place, so a write failure leaves the
// previous pair untouched.
func SaveArtifacts(modelPath, scalerPath, runID string, artifact *ModelArtifact, scaler *StandardScaler) error {
	if runID == "" {
		return errors.New("run id is required")
	}
	if err := artifact.validate(); err != nil {
		return fmt.Errorf("refusing to save invalid model: %w", err)
	}
	if err := scaler.validate(); err != nil {
		return fmt.Errorf("refusing to save invalid scaler: %w", err)
	}
	stampedModel, stampedScaler := *artifact, *scaler
	stampedModel.RunID, stampedScaler.RunID = runID, runID

	scalerTmp, err := writeJSONTemp(scalerPath, &stampedScaler)
	if err != nil {
		return fmt.Errorf("scaler: %w", err)
	}
	modelTmp, err := writeJSONTemp(modelPath, &stampedModel)
	if err != nil {
		os.Remove(scalerTmp)
		return fmt.Errorf("model: %w", err)
	}

	if err := os.Rename(scalerTmp, scalerPath); err != nil {
		os.Remove(scalerTmp)
		os.Remove(modelTmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	// A failure here leaves a new scaler beside the old model; LoadEngine
	// rejects that pair because the run ids differ.
	if err := os.Rename(modelTmp, modelPath); err != nil {
		os.Remove(modelTmp)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}
	return nil
}

// LoadModel reads and validates a model artifact.
func LoadModel(path string) (*ModelArtifact, error) {
	var artifact ModelArtifact
	if err := readJSON(path, &artifact); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	if err := artifact.validate(); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	return &artifact, nil
}

// loadScaler reads and validates a scaler artifact.
func loadScaler(path string) (*StandardScaler, error) {
	var scaler StandardScaler
	if err := readJSON(path, &scaler); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	if err := scaler.validate(); err != nil {
		return nil, &ArtifactLoadError{Path: path, Err: err}
	}
	return &scaler, nil
}

// LoadArtifacts reads a model and scaler and checks they come from the same
// training run and feature layout.
func LoadArtifacts(modelPath, scalerPath string) (*ModelArtifact, *StandardScaler, error) {
	artifact, err := LoadModel(modelPath)
	if err != nil {
		return nil, nil, err
	}
	scaler, err := loadScaler(scalerPath)
	if err != nil {
		return nil, nil, err
	}
	if scaler.RunID != artifact.RunID {
		return nil, nil, &ArtifactLoadError{
			Path: scalerPath,
			Err:  fmt.Errorf("scaler from training run %q, model from run %q", scaler.RunID, artifact.RunID),
		}
	}
	if len(scaler.Layout) > 0 && !slices.Equal(scaler.Layout, artifact.Layout) {
		return nil, nil, &ArtifactLoadError{
			Path: scalerPath,
			Err:  fmt.Errorf("scaler fitted on [%s], model on [%s]", scaler.Layout, artifact.Layout),
		}
	}
	return artifact, scaler, nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(filepath.Clean(path))
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("unable to parse: %w", err)
	}
	return nil
}

// writeJSONTemp writes v next to path with a .tmp suffix and returns the
// temporary path.
func writeJSONTemp(path string, v any) (string, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal artifact: %w", err)
	}

	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write artifact: %w", err)
	}
	return tempPath, nil
}
