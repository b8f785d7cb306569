package vibration

import (
	"errors"
	"fmt"
)

// ErrEngineOffline is returned by Predict when artifacts failed to load.
var ErrEngineOffline = errors.New("prediction engine offline")

// ArtifactLoadError reports a model or scaler artifact that is missing,
// corrupt or inconsistent with the other artifact.
type ArtifactLoadError struct {
	Path string
	Err  error
}

func (e *ArtifactLoadError) Error() string {
	if e.Path == "" {
		return fmt.Sprintf("load artifacts: %v", e.Err)
	}
	return fmt.Sprintf("load artifact %s: %v", e.Path, e.Err)
}

func (e *ArtifactLoadError) Unwrap() error { return e.Err }

// PredictionError reports a failure inside scaling or estimation.
type PredictionError struct {
	Err error
}

func (e *PredictionError) Error() string { return fmt.Sprintf("prediction failed: %v", e.Err) }

func (e *PredictionError) Unwrap() error { return e.Err }
