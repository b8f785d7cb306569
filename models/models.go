package models

import (
	"fmt"
	"math"
	"strings"
	"time"
)

// Feature names one drilling or mud parameter fed to the estimator.
type Feature string

const (
	Depth            Feature = "depth"
	WOB              Feature = "wob"
	RPM              Feature = "rpm"
	FlowIn           Feature = "flow_in"
	Torque           Feature = "torque"
	SPP              Feature = "spp"
	ROP              Feature = "rop"
	MudWeightIn      Feature = "mud_weight_in"
	MudTempIn        Feature = "mud_temp_in"
	MudTempOut       Feature = "mud_temp_out"
	SurfaceStickSlip Feature = "surface_stick_slip"
)

// FeatureCount is the width of every estimator input row.
const FeatureCount = 10

// FeatureLayout is the ordered list of features an estimator was fitted on.
type FeatureLayout []Feature

var (
	// LayoutTraining matches the historical dataset used by the training pipeline.
	LayoutTraining = FeatureLayout{Depth, WOB, RPM, FlowIn, Torque, SPP, MudWeightIn, MudTempIn, MudTempOut, SurfaceStickSlip}
	// LayoutDashboard swaps surface stick-slip for ROP.
	LayoutDashboard = FeatureLayout{Depth, WOB, RPM, FlowIn, Torque, SPP, ROP, MudWeightIn, MudTempIn, MudTempOut}
)

var knownFeatures = map[Feature]bool{
	Depth: true, WOB: true, RPM: true, FlowIn: true, Torque: true, SPP: true,
	ROP: true, MudWeightIn: true, MudTempIn: true, MudTempOut: true, SurfaceStickSlip: true,
}

// Validate checks the layout has FeatureCount distinct known features.
func (l FeatureLayout) Validate() error {
	if len(l) != FeatureCount {
		return fmt.Errorf("feature layout has %d entries, expected %d", len(l), FeatureCount)
	}
	seen := make(map[Feature]bool, len(l))
	for _, f := range l {
		if !knownFeatures[f] {
			return fmt.Errorf("unknown feature %q in layout", f)
		}
		if seen[f] {
			return fmt.Errorf("duplicate feature %q in layout", f)
		}
		seen[f] = true
	}
	return nil
}

func (l FeatureLayout) String() string {
	names := make([]string, len(l))
	for i, f := range l {
		names[i] = string(f)
	}
	return strings.Join(names, ",")
}

// FeatureVector holds one set of operator-supplied readings.
type FeatureVector struct {
	Depth            float64 `json:"depth"`            // ft
	WOB              float64 `json:"wob"`              // klbs
	RPM              float64 `json:"rpm"`              // rev/min
	FlowIn           float64 `json:"flowIn"`           // gpm
	Torque           float64 `json:"torque"`           // kft.lbs
	SPP              float64 `json:"spp"`              // psi
	ROP              float64 `json:"rop"`              // ft/hr
	MudWeightIn      float64 `json:"mudWeightIn"`      // ppg
	MudTempIn        float64 `json:"mudTempIn"`        // degF
	MudTempOut       float64 `json:"mudTempOut"`       // degF
	SurfaceStickSlip float64 `json:"surfaceStickSlip"` // surface SSS index
}

// Value returns the reading for a single feature.
func (fv FeatureVector) Value(f Feature) (float64, error) {
	switch f {
	case Depth:
		return fv.Depth, nil
	case WOB:
		return fv.WOB, nil
	case RPM:
		return fv.RPM, nil
	case FlowIn:
		return fv.FlowIn, nil
	case Torque:
		return fv.Torque, nil
	case SPP:
		return fv.SPP, nil
	case ROP:
		return fv.ROP, nil
	case MudWeightIn:
		return fv.MudWeightIn, nil
	case MudTempIn:
		return fv.MudTempIn, nil
	case MudTempOut:
		return fv.MudTempOut, nil
	case SurfaceStickSlip:
		return fv.SurfaceStickSlip, nil
	default:
		return 0, fmt.Errorf("unknown feature %q", f)
	}
}

// Set assigns the reading for a single feature.
func (fv *FeatureVector) Set(f Feature, value float64) error {
	switch f {
	case Depth:
		fv.Depth = value
	case WOB:
		fv.WOB = value
	case RPM:
		fv.RPM = value
	case FlowIn:
		fv.FlowIn = value
	case Torque:
		fv.Torque = value
	case SPP:
		fv.SPP = value
	case ROP:
		fv.ROP = value
	case MudWeightIn:
		fv.MudWeightIn = value
	case MudTempIn:
		fv.MudTempIn = value
	case MudTempOut:
		fv.MudTempOut = value
	case SurfaceStickSlip:
		fv.SurfaceStickSlip = value
	default:
		return fmt.Errorf("unknown feature %q", f)
	}
	return nil
}

// Assemble returns the readings as a row in layout order.
func (fv FeatureVector) Assemble(layout FeatureLayout) ([]float64, error) {
	if err := layout.Validate(); err != nil {
		return nil, err
	}
	row := make([]float64, len(layout))
	for i, f := range layout {
		value, err := fv.Value(f)
		if err != nil {
			return nil, err
		}
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return nil, fmt.Errorf("feature %s is not a finite number", f)
		}
		row[i] = value
	}
	return row, nil
}

// FeatureVectorFromRow is the inverse of Assemble.
func FeatureVectorFromRow(layout FeatureLayout, row []float64) (FeatureVector, error) {
	var fv FeatureVector
	if len(row) != len(layout) {
		return fv, fmt.Errorf("row has %d values for a %d feature layout", len(row), len(layout))
	}
	for i, f := range layout {
		if err := fv.Set(f, row[i]); err != nil {
			return fv, err
		}
	}
	return fv, nil
}

// CheckNonNegative rejects negative values for quantities that cannot be negative.
func (fv FeatureVector) CheckNonNegative() error {
	for _, f := range []Feature{Depth, WOB, RPM, FlowIn} {
		value, _ := fv.Value(f)
		if value < 0 {
			return fmt.Errorf("feature %s must not be negative (got %g)", f, value)
		}
	}
	return nil
}

// PredictionRecord is a stored prediction with the inputs that produced it.
type PredictionRecord struct {
	ID         string        `json:"id" bson:"_id"`
	SessionID  string        `json:"sessionId,omitempty" bson:"session_id,omitempty"`
	Timestamp  time.Time     `json:"timestamp" bson:"timestamp"`
	Inputs     FeatureVector `json:"inputs" bson:"inputs"`
	Values     []float64     `json:"values" bson:"values"`
	RiskScore  float64       `json:"riskScore" bson:"risk_score"`
	RiskBand   string        `json:"riskBand" bson:"risk_band"`
	Advisories []string      `json:"advisories" bson:"advisories"`
	LatencyMs  float64       `json:"latencyMs" bson:"latency_ms"`
}
