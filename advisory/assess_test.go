package advisory

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rig-vibration/vibration"
)

func result(values ...float64) vibration.PredictionResult {
	var r vibration.PredictionResult
	for i, v := range values {
		r.Values = append(r.Values, vibration.MetricValue{Metric: vibration.MetricCatalogue[i], Value: v})
	}
	return r
}

func TestClassifyBoundaries(t *testing.T) {
	t.Parallel()

	stickSlip := DefaultConfig().Status[0]
	tests := []struct {
		value float64
		want  Severity
	}{
		{value: 7.99, want: Safe},
		{value: 8.0, want: Warning},
		{value: 11.99, want: Warning},
		{value: 12.0, want: Danger},
		{value: 40, want: Danger},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Classify(tt.value, stickSlip), "value %g", tt.value)
	}
}

func TestAssessRiskAggregation(t *testing.T) {
	t.Parallel()

	a := Assess(result(4, 6, 3), DefaultConfig())
	assert.InDelta(t, 0.5, a.RiskScore, 1e-12)
	assert.Equal(t, RiskLow, a.RiskBand)

	moderate := Assess(result(8, 12, 6), DefaultConfig())
	assert.InDelta(t, 1.0, moderate.RiskScore, 1e-12)
	assert.Equal(t, RiskModerate, moderate.RiskBand)

	critical := Assess(result(12, 18, 9), DefaultConfig())
	assert.Equal(t, RiskCritical, critical.RiskBand)
}

func TestAssessIdealConditions(t *testing.T) {
	t.Parallel()

	a := Assess(result(4, 2, 0.5), DefaultConfig())
	assert.True(t, a.Ideal)
	assert.Equal(t, []string{DefaultConfig().IdealMessage}, a.Messages())
	for _, m := range a.Metrics {
		assert.Equal(t, Safe, m.Severity)
	}
}

func TestAssessTriggersAreIndependentOfStatus(t *testing.T) {
	t.Parallel()

	// Lateral 4 is "safe" for the status colour but above its advisory trigger.
	a := Assess(result(10, 4, 1.5), DefaultConfig())
	assert.False(t, a.Ideal)
	require.Len(t, a.Advisories, 2)
	assert.Equal(t, vibration.LateralVibration.Key, a.Advisories[0].Metric)
	assert.True(t, a.Advisories[0].Critical)
	assert.Equal(t, vibration.AxialShock.Key, a.Advisories[1].Metric)

	assert.Equal(t, Warning, a.Metrics[0].Severity)
	assert.Equal(t, Safe, a.Metrics[1].Severity)

	// Exactly at the trigger does not fire.
	atTrigger := Assess(result(80, 3, 1), DefaultConfig())
	assert.True(t, atTrigger.Ideal)
}

func TestAssessFourOutputVariant(t *testing.T) {
	t.Parallel()

	a := Assess(result(4, 6, 3, 55), DefaultConfig())
	require.Len(t, a.Metrics, 4)
	assert.Empty(t, a.Metrics[3].Severity, "SS% has no status threshold by default")
	assert.InDelta(t, 0.5, a.RiskScore, 1e-12)
}

func TestLoadConfigOverridesSections(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "advisory.yaml")
	yamlDoc := `
status:
  - metric: stick_slip_severity
    safe_below: 10
    warning_below: 20
  - metric: slip_stick_pct
    safe_below: 50
    warning_below: 80
`
	require.NoError(t, os.WriteFile(path, []byte(yamlDoc), 0o644))

	cfg, err := LoadConfig(path)
	require.NoError(t, err)
	require.Len(t, cfg.Status, 2)
	assert.Equal(t, Safe, Classify(9, cfg.Status[0]))
	assert.Equal(t, DefaultConfig().Advisories, cfg.Advisories)
	assert.Equal(t, DefaultConfig().Risk, cfg.Risk)
}

func TestLoadConfigRejectsInvalidTables(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	tests := map[string]string{
		"unknown metric": "status:\n  - metric: torque\n    safe_below: 1\n    warning_below: 2\n",
		"inverted":       "status:\n  - metric: axial_shock\n    safe_below: 9\n    warning_below: 6\n",
		"zero safe":      "status:\n  - metric: axial_shock\n    safe_below: 0\n    warning_below: 6\n",
		"no message":     "advisories:\n  - metric: axial_shock\n    above: 1\n",
		"bad yaml":       "status: [",
	}
	for name, doc := range tests {
		path := filepath.Join(dir, filepath.Base(name)+".yaml")
		require.NoError(t, os.WriteFile(path, []byte(doc), 0o644))
		_, err := LoadConfig(path)
		assert.Error(t, err, name)
	}

	_, err := LoadConfig(filepath.Join(dir, "missing.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)

	cfg, err := LoadConfig("")
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}
