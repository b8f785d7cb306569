package vibration

import (
	"time"

	"rig-vibration/models"
)

// Estimator maps one standardized feature row to a fixed-length output vector.
type Estimator interface {
	Predict(row []float64) ([]float64, error)
	InputWidth() int
	OutputArity() int
}

// Metric describes one estimator output.
type Metric struct {
	Key   string `json:"key"`
	Label string `json:"label"`
	Unit  string `json:"unit"`
}

var (
	StickSlip        = Metric{Key: "stick_slip_severity", Label: "Vib. Count", Unit: "index"}
	LateralVibration = Metric{Key: "lateral_vibration", Label: "Lateral Vib.", Unit: "g"}
	AxialShock       = Metric{Key: "axial_shock", Label: "Axial Vib.", Unit: "g"}
	SlipStickPercent = Metric{Key: "slip_stick_pct", Label: "SS%", Unit: "%"}
)

// MetricCatalogue lists outputs in their fixed semantic order.
var MetricCatalogue = []Metric{StickSlip, LateralVibration, AxialShock, SlipStickPercent}

// MetricByKey looks up a catalogue entry.
func MetricByKey(key string) (Metric, bool) {
	for _, m := range MetricCatalogue {
		if m.Key == key {
			return m, true
		}
	}
	return Metric{}, false
}

// DefaultTargets returns the first n catalogue metrics.
func DefaultTargets(n int) []string {
	if n > len(MetricCatalogue) {
		n = len(MetricCatalogue)
	}
	keys := make([]string, n)
	for i := 0; i < n; i++ {
		keys[i] = MetricCatalogue[i].Key
	}
	return keys
}

// MetricValue is one named prediction.
type MetricValue struct {
	Metric
	Value float64 `json:"value"`
}

// PredictionResult is the ordered output of a single prediction.
type PredictionResult struct {
	Values []MetricValue `json:"values"`
	Cached bool          `json:"cached,omitempty"`
}

// Raw returns the predicted values in output order.
func (r PredictionResult) Raw() []float64 {
	raw := make([]float64, len(r.Values))
	for i, v := range r.Values {
		raw[i] = v.Value
	}
	return raw
}

// TrainingSummary records how an estimator was produced.
type TrainingSummary struct {
	RunID         string             `json:"runId,omitempty"`
	TrainedAt     time.Time          `json:"trainedAt"`
	Dataset       string             `json:"dataset,omitempty"`
	Rows          int                `json:"rows"`
	TrainRows     int                `json:"trainRows"`
	TestRows      int                `json:"testRows"`
	Seed          int64              `json:"seed"`
	R2            float64            `json:"r2"`
	R2PerTarget   map[string]float64 `json:"r2PerTarget,omitempty"`
	InputColumns  []string           `json:"inputColumns,omitempty"`
	TargetColumns []string           `json:"targetColumns,omitempty"`
}

// EngineInfo exposes metadata about the loaded artifacts.
type EngineInfo struct {
	Available     bool                 `json:"available"`
	OfflineReason string               `json:"offlineReason,omitempty"`
	RunID         string               `json:"runId,omitempty"`
	Layout        models.FeatureLayout `json:"layout,omitempty"`
	Targets       []Metric             `json:"targets,omitempty"`
	Trees         int                  `json:"trees,omitempty"`
	Training      *TrainingSummary     `json:"training,omitempty"`
	ModelPath     string               `json:"modelPath,omitempty"`
	ScalerPath    string               `json:"scalerPath,omitempty"`
}
