package db

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rig-vibration/models"
)

func record(depth float64, at time.Time) *models.PredictionRecord {
	return &models.PredictionRecord{
		SessionID:  "session-1",
		Timestamp:  at,
		Inputs:     models.FeatureVector{Depth: depth, WOB: 20, RPM: 120},
		Values:     []float64{4, 6, 3},
		RiskScore:  0.5,
		RiskBand:   "LOW",
		Advisories: []string{"Drilling conditions are ideal. No action required."},
		LatencyMs:  1.5,
	}
}

func exerciseClient(t *testing.T, client DBClient) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)

	for i := 0; i < 5; i++ {
		r := record(1000+float64(i), base.Add(time.Duration(i)*time.Minute))
		require.NoError(t, client.StorePrediction(ctx, r))
		assert.NotEmpty(t, r.ID)
	}

	latest, err := client.ListPredictions(ctx, 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	assert.Equal(t, 1004.0, latest[0].Inputs.Depth)
	assert.Equal(t, 1003.0, latest[1].Inputs.Depth)
	assert.Equal(t, []float64{4, 6, 3}, latest[0].Values)
	assert.Equal(t, "LOW", latest[0].RiskBand)
	assert.Equal(t, "session-1", latest[0].SessionID)
	assert.Len(t, latest[0].Advisories, 1)
	assert.True(t, latest[0].Timestamp.Equal(base.Add(4*time.Minute)))

	all, err := client.ListPredictions(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, all, 5)
}

func TestSQLiteClientStoresAndLists(t *testing.T) {
	t.Parallel()

	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "nested", "history.sqlite3"))
	require.NoError(t, err)
	defer client.Close()

	exerciseClient(t, client)
}

func TestSQLiteClientRejectsDuplicateID(t *testing.T) {
	t.Parallel()

	client, err := NewSQLiteClient(filepath.Join(t.TempDir(), "history.sqlite3"))
	require.NoError(t, err)
	defer client.Close()

	r := record(1, time.Now())
	r.ID = "fixed"
	require.NoError(t, client.StorePrediction(context.Background(), r))
	assert.Error(t, client.StorePrediction(context.Background(), r))
}

func TestFileClientStoresAndLists(t *testing.T) {
	t.Parallel()

	client := NewFileClient(filepath.Join(t.TempDir(), "history", "predictions.json"))
	exerciseClient(t, client)
}

func TestFileClientEmpty(t *testing.T) {
	t.Parallel()

	client := NewFileClient(filepath.Join(t.TempDir(), "absent.json"))
	records, err := client.ListPredictions(context.Background(), 10)
	require.NoError(t, err)
	assert.Empty(t, records)
}

func TestNewDBClientSelectsBackend(t *testing.T) {
	dir := t.TempDir()

	t.Setenv("DB_TYPE", "file")
	t.Setenv("HISTORY_FILE", filepath.Join(dir, "h.json"))
	client, err := NewDBClient()
	require.NoError(t, err)
	assert.IsType(t, &FileClient{}, client)

	t.Setenv("DB_TYPE", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "h.sqlite3"))
	client, err = NewDBClient()
	require.NoError(t, err)
	assert.IsType(t, &SQLiteClient{}, client)
	require.NoError(t, client.Close())

	t.Setenv("DB_TYPE", "none")
	client, err = NewDBClient()
	require.NoError(t, err)
	require.NoError(t, client.StorePrediction(context.Background(), record(1, time.Now())))
	records, err := client.ListPredictions(context.Background(), 5)
	require.NoError(t, err)
	assert.Empty(t, records)

	t.Setenv("DB_TYPE", "postgres")
	_, err = NewDBClient()
	assert.Error(t, err)
}
