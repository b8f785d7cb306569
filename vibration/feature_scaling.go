package vibration

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/stat"

	"rig-vibration/models"
)

// StandardScaler standardizes every feature column to mean=0 and std=1.
// It is immutable once fitted.
type StandardScaler struct {
	RunID  string               `json:"runId,omitempty"`
	Layout models.FeatureLayout `json:"layout"`
	Mean   []float64            `json:"mean"`
	Stddev []float64            `json:"stddev"`
}

// FitStandardScaler learns per-column mean and population standard
// deviation. Constant columns keep a std of 1 so Transform never divides
// by zero.
func FitStandardScaler(rows [][]float64, layout models.FeatureLayout) (*StandardScaler, error) {
	if len(rows) == 0 {
		return nil, errors.New("no rows provided")
	}

	featureCount := len(rows[0])
	if featureCount == 0 {
		return nil, errors.New("rows have no features")
	}
	if layout != nil && len(layout) != featureCount {
		return nil, fmt.Errorf("layout names %d features, rows have %d", len(layout), featureCount)
	}

	mean := make([]float64, featureCount)
	stddev := make([]float64, featureCount)
	column := make([]float64, len(rows))
	for c := 0; c < featureCount; c++ {
		for r, row := range rows {
			if len(row) != featureCount {
				return nil, errors.New("inconsistent feature dimensions")
			}
			column[r] = row[c]
		}
		mean[c], stddev[c] = stat.PopMeanStdDev(column, nil)
		if stddev[c] < 1e-10 {
			stddev[c] = 1.0
		}
	}

	return &StandardScaler{
		Layout: append(models.FeatureLayout(nil), layout...),
		Mean:   mean,
		Stddev: stddev,
	}, nil
}

// Width is the number of features the scaler was fitted on.
func (s *StandardScaler) Width() int { return len(s.Mean) }

// Transform applies z-score standardization to one row.
func (s *StandardScaler) Transform(features []float64) ([]float64, error) {
	if len(features) != len(s.Mean) {
		return nil, fmt.Errorf("scaler expects %d features, got %d", len(s.Mean), len(features))
	}

	scaled := make([]float64, len(features))
	for i, val := range features {
		scaled[i] = (val - s.Mean[i]) / s.Stddev[i]
	}
	return scaled, nil
}

// TransformAll standardizes every row.
func (s *StandardScaler) TransformAll(rows [][]float64) ([][]float64, error) {
	out := make([][]float64, len(rows))
	for i, row := range rows {
		scaled, err := s.Transform(row)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i, err)
		}
		out[i] = scaled
	}
	return out, nil
}

func (s *StandardScaler) validate() error {
	if len(s.Mean) == 0 {
		return errors.New("scaler has no statistics")
	}
	if len(s.Mean) != len(s.Stddev) {
		return fmt.Errorf("scaler has %d means but %d deviations", len(s.Mean), len(s.Stddev))
	}
	for i, sd := range s.Stddev {
		if sd == 0 {
			return fmt.Errorf("scaler deviation %d is zero", i)
		}
	}
	if s.Layout != nil && len(s.Layout) != len(s.Mean) {
		return fmt.Errorf("scaler layout names %d features, statistics cover %d", len(s.Layout), len(s.Mean))
	}
	return nil
}
