package dataset

import (
	"fmt"
	"math"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// ColumnProfile summarises one input column before scaling.
type ColumnProfile struct {
	Name    string  `json:"name"`
	Min     float64 `json:"min"`
	Max     float64 `json:"max"`
	Mean    float64 `json:"mean"`
	Std     float64 `json:"std"`
	Missing int     `json:"missing"`
}

// Range is Max - Min.
func (p ColumnProfile) Range() float64 { return p.Max - p.Min }

// Profile computes per-column statistics for the frame's inputs. Missing
// cells are counted and skipped, so it can run before or after ImputeMean.
func (f *Frame) Profile() []ColumnProfile {
	profiles := make([]ColumnProfile, len(f.InputColumns))
	for c, name := range f.InputColumns {
		p := ColumnProfile{Name: name}
		present := make([]float64, 0, len(f.X))
		for _, row := range f.X {
			if math.IsNaN(row[c]) {
				p.Missing++
				continue
			}
			present = append(present, row[c])
		}
		if len(present) > 0 {
			p.Min = floats.Min(present)
			p.Max = floats.Max(present)
			p.Mean, p.Std = stat.PopMeanStdDev(present, nil)
		}
		profiles[c] = p
	}
	return profiles
}

// ScaleIssues flags columns that will not help the estimator or that are
// mostly imputed.
func ScaleIssues(profiles []ColumnProfile, rows int) []string {
	var issues []string
	for _, p := range profiles {
		if rows > 0 && p.Missing == rows {
			issues = append(issues, fmt.Sprintf("column %q has no values", p.Name))
			continue
		}
		if p.Std == 0 {
			issues = append(issues, fmt.Sprintf("column %q is constant (%g)", p.Name, p.Mean))
		}
		if rows > 0 && float64(p.Missing)/float64(rows) > 0.5 {
			issues = append(issues, fmt.Sprintf("column %q is %.0f%% imputed", p.Name, 100*float64(p.Missing)/float64(rows)))
		}
		// coefficient of variation
		if math.Abs(p.Mean) > 1e-9 && p.Std/math.Abs(p.Mean) > 2.0 {
			issues = append(issues, fmt.Sprintf("column %q has high coefficient of variation (%.2f)", p.Name, p.Std/math.Abs(p.Mean)))
		}
	}
	return issues
}
