package models

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleVector() FeatureVector {
	return FeatureVector{
		Depth: 9500, WOB: 25, RPM: 120, FlowIn: 650, Torque: 18, SPP: 3200,
		ROP: 45, MudWeightIn: 10.2, MudTempIn: 95, MudTempOut: 120, SurfaceStickSlip: 7,
	}
}

func TestAssembleFollowsLayoutOrder(t *testing.T) {
	t.Parallel()

	fv := sampleVector()

	row, err := fv.Assemble(LayoutTraining)
	require.NoError(t, err)
	assert.Equal(t, []float64{9500, 25, 120, 650, 18, 3200, 10.2, 95, 120, 7}, row)

	row, err = fv.Assemble(LayoutDashboard)
	require.NoError(t, err)
	assert.Equal(t, []float64{9500, 25, 120, 650, 18, 3200, 45, 10.2, 95, 120}, row)
}

func TestAssembleRejectsBadLayoutsAndValues(t *testing.T) {
	t.Parallel()

	fv := sampleVector()
	_, err := fv.Assemble(LayoutTraining[:9])
	assert.Error(t, err)

	dup := append(FeatureLayout{}, LayoutTraining...)
	dup[9] = Depth
	_, err = fv.Assemble(dup)
	assert.ErrorContains(t, err, "duplicate")

	fv.RPM = math.NaN()
	_, err = fv.Assemble(LayoutTraining)
	assert.ErrorContains(t, err, "rpm")
}

func TestSetAndValueRoundTrip(t *testing.T) {
	t.Parallel()

	var fv FeatureVector
	for i, f := range append(LayoutTraining, ROP) {
		require.NoError(t, fv.Set(f, float64(i+1)))
		got, err := fv.Value(f)
		require.NoError(t, err)
		assert.Equal(t, float64(i+1), got)
	}
	assert.Error(t, fv.Set(Feature("bogus"), 1))
}

func TestCheckNonNegative(t *testing.T) {
	t.Parallel()

	fv := sampleVector()
	assert.NoError(t, fv.CheckNonNegative())

	fv.FlowIn = -1
	assert.ErrorContains(t, fv.CheckNonNegative(), "flow_in")

	// temperatures are allowed to be negative
	fv = sampleVector()
	fv.MudTempIn = -5
	assert.NoError(t, fv.CheckNonNegative())
}

func TestFeatureVectorFromRowInvertsAssemble(t *testing.T) {
	t.Parallel()

	row := []float64{1, 2, 3, 4, 5, 6, 7, 8, 9, 10}
	fv, err := FeatureVectorFromRow(LayoutDashboard, row)
	require.NoError(t, err)
	assert.Equal(t, 7.0, fv.ROP)
	assert.Zero(t, fv.SurfaceStickSlip)

	back, err := fv.Assemble(LayoutDashboard)
	require.NoError(t, err)
	assert.Equal(t, row, back)

	_, err = FeatureVectorFromRow(LayoutDashboard, row[:4])
	assert.Error(t, err)
}
