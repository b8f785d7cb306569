package dataset

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImputeMeanFillsMissingWithColumnMean(t *testing.T) {
	t.Parallel()

	table, err := ReadCSV(strings.NewReader("A,T\n10,1\n,2\n30,3\n"))
	require.NoError(t, err)

	frame, err := table.Select([]string{"A"}, []string{"T"})
	require.NoError(t, err)
	assert.True(t, math.IsNaN(frame.X[1][0]))

	means, err := frame.ImputeMean()
	require.NoError(t, err)
	assert.InDelta(t, 20.0, frame.X[1][0], 1e-12)
	assert.InDelta(t, 20.0, means[0], 1e-12)
	assert.InDelta(t, 2.0, means[1], 1e-12)
	assert.Equal(t, []float64{10, 20, 30}, []float64{frame.X[0][0], frame.X[1][0], frame.X[2][0]})
}

func TestImputeMeanRejectsEmptyColumn(t *testing.T) {
	t.Parallel()

	table, err := ReadCSV(strings.NewReader("A,T\n,1\nNaN,2\n"))
	require.NoError(t, err)
	frame, err := table.Select([]string{"A"}, []string{"T"})
	require.NoError(t, err)

	_, err = frame.ImputeMean()
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"A"}, schemaErr.Empty)
}

func TestSelectReportsEveryMissingColumn(t *testing.T) {
	t.Parallel()

	table, err := ReadCSV(strings.NewReader("DEPT,WOB,SSL_H\n1,2,3\n"))
	require.NoError(t, err)

	_, err = table.Select([]string{"DEPT", "WOB", "RPM"}, []string{"SSL_H", "VIBZH"})
	var schemaErr *SchemaError
	require.ErrorAs(t, err, &schemaErr)
	assert.Equal(t, []string{"RPM", "VIBZH"}, schemaErr.Missing)
	assert.Contains(t, err.Error(), "RPM")
}

func TestSelectMatchesColumnNamesLoosely(t *testing.T) {
	t.Parallel()

	table, err := ReadCSV(strings.NewReader("\ufeffDEPT,Flow in,M.Wt in,SSL_H\n1,2,3,4\n"))
	require.NoError(t, err)

	frame, err := table.Select([]string{"dept", "Flow-in", "M.Wt-in"}, []string{"SSL_H"})
	require.NoError(t, err)
	assert.Equal(t, []float64{1, 2, 3}, frame.X[0])
	assert.Equal(t, []float64{4}, frame.Y[0])
}

func TestLoadCSVFailures(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()

	_, err := LoadCSV(filepath.Join(dir, "absent.csv"))
	var loadErr *DataLoadError
	require.ErrorAs(t, err, &loadErr)
	assert.True(t, errors.Is(err, os.ErrNotExist))

	ragged := filepath.Join(dir, "ragged.csv")
	require.NoError(t, os.WriteFile(ragged, []byte("A,B\n1,2\n3\n"), 0o644))
	_, err = LoadCSV(ragged)
	require.ErrorAs(t, err, &loadErr)

	text := filepath.Join(dir, "text.csv")
	require.NoError(t, os.WriteFile(text, []byte("A,B\n1,abc\n"), 0o644))
	table, err := LoadCSV(text)
	require.NoError(t, err)
	_, err = table.Select([]string{"A"}, []string{"B"})
	require.ErrorAs(t, err, &loadErr)
	assert.Equal(t, text, loadErr.Path)
}

func TestTrainTestSplitIsSeededAndSized(t *testing.T) {
	t.Parallel()

	train, test, err := TrainTestSplit(101, 0.2, 44)
	require.NoError(t, err)
	assert.Len(t, test, 21)
	assert.Len(t, train, 80)

	seen := make(map[int]bool)
	for _, idx := range append(append([]int{}, train...), test...) {
		assert.False(t, seen[idx], "index %d assigned twice", idx)
		seen[idx] = true
	}
	assert.Len(t, seen, 101)

	again, againTest, err := TrainTestSplit(101, 0.2, 44)
	require.NoError(t, err)
	assert.Equal(t, train, again)
	assert.Equal(t, test, againTest)

	_, _, err = TrainTestSplit(1, 0.2, 44)
	assert.Error(t, err)
	_, _, err = TrainTestSplit(10, 1.5, 44)
	assert.Error(t, err)
}

func TestProfileSummarisesInputsAndFlagsIssues(t *testing.T) {
	t.Parallel()

	table, err := ReadCSV(strings.NewReader("A,B,C,T\n1,5,,1\n2,5,,2\n3,5,7,3\n"))
	require.NoError(t, err)
	frame, err := table.Select([]string{"A", "B", "C"}, []string{"T"})
	require.NoError(t, err)

	profile := frame.Profile()
	require.Len(t, profile, 3)
	assert.Equal(t, "A", profile[0].Name)
	assert.InDelta(t, 1.0, profile[0].Min, 1e-12)
	assert.InDelta(t, 3.0, profile[0].Max, 1e-12)
	assert.InDelta(t, 2.0, profile[0].Mean, 1e-12)
	assert.InDelta(t, 0.816496580927726, profile[0].Std, 1e-12)
	assert.Equal(t, 2, profile[2].Missing)

	issues := ScaleIssues(profile, len(frame.X))
	joined := strings.Join(issues, "\n")
	assert.NotContains(t, joined, `"A"`)
	assert.Contains(t, joined, `column "B" is constant`)
	assert.Contains(t, joined, `column "C" is 67% imputed`)
}
