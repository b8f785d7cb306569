package dataset

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/stat"
)

// Table is a CSV file held in memory as raw cells.
type Table struct {
	Header  []string
	Source  string
	records [][]string
	index   map[string]int
}

// Frame is the numeric selection of a Table used for training.
// Missing cells are NaN until ImputeMean is applied.
type Frame struct {
	InputColumns  []string
	TargetColumns []string
	X             [][]float64
	Y             [][]float64
}

// LoadCSV reads a comma separated dataset with a header row.
func LoadCSV(path string) (*Table, error) {
	file, err := os.Open(filepath.Clean(path))
	if err != nil {
		return nil, &DataLoadError{Path: path, Err: err}
	}
	defer file.Close()

	table, err := ReadCSV(file)
	if err != nil {
		return nil, &DataLoadError{Path: path, Err: err}
	}
	table.Source = path
	return table, nil
}

// ReadCSV parses CSV content. Every row must have as many cells as the header.
func ReadCSV(r io.Reader) (*Table, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, errors.New("dataset is empty")
		}
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	index := make(map[string]int, len(header))
	for i, name := range header {
		key := normaliseColumn(name)
		if key == "" {
			continue
		}
		if _, dup := index[key]; !dup {
			index[key] = i
		}
	}

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read rows: %w", err)
	}
	if len(records) == 0 {
		return nil, errors.New("dataset has no rows")
	}

	return &Table{Header: header, records: records, index: index}, nil
}

// HasColumn reports whether a column exists, ignoring case and separators.
func (t *Table) HasColumn(name string) bool {
	_, ok := t.index[normaliseColumn(name)]
	return ok
}

// Select extracts input and target columns as numbers.
func (t *Table) Select(inputs, targets []string) (*Frame, error) {
	var missing []string
	for _, name := range append(append([]string{}, inputs...), targets...) {
		if !t.HasColumn(name) {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return nil, &SchemaError{Missing: missing}
	}

	x, err := t.columns(inputs)
	if err != nil {
		return nil, err
	}
	y, err := t.columns(targets)
	if err != nil {
		return nil, err
	}

	return &Frame{
		InputColumns:  append([]string{}, inputs...),
		TargetColumns: append([]string{}, targets...),
		X:             x,
		Y:             y,
	}, nil
}

func (t *Table) columns(names []string) ([][]float64, error) {
	out := make([][]float64, len(t.records))
	for r, record := range t.records {
		row := make([]float64, len(names))
		for c, name := range names {
			cell := strings.TrimSpace(record[t.index[normaliseColumn(name)]])
			value, err := parseCell(cell)
			if err != nil {
				return nil, &DataLoadError{Path: t.Source, Err: fmt.Errorf("row %d column %s: %w", r+2, name, err)}
			}
			row[c] = value
		}
		out[r] = row
	}
	return out, nil
}

func parseCell(cell string) (float64, error) {
	switch strings.ToLower(cell) {
	case "", "na", "nan", "null", "none", "-":
		return math.NaN(), nil
	}
	return strconv.ParseFloat(cell, 64)
}

// normaliseColumn folds case and drops separators so "M.Wt in" matches "M.Wt-in".
func normaliseColumn(name string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case ' ', '-', '_', '.', '\t':
			return -1
		}
		if r >= 'A' && r <= 'Z' {
			return r + 32
		}
		return r
	}, strings.TrimSpace(name))
}

// ImputeMean replaces missing cells with the mean of the present values in
// the same column of the frame. This biases every imputed row toward the
// observed mean; it is not model based. It returns the fill value used per
// column, inputs first then targets.
func (f *Frame) ImputeMean() ([]float64, error) {
	xMeans, xEmpty := imputeColumns(f.X, f.InputColumns)
	yMeans, yEmpty := imputeColumns(f.Y, f.TargetColumns)
	if empty := append(xEmpty, yEmpty...); len(empty) > 0 {
		return nil, &SchemaError{Empty: empty}
	}
	return append(xMeans, yMeans...), nil
}

func imputeColumns(rows [][]float64, names []string) ([]float64, []string) {
	means := make([]float64, len(names))
	var empty []string
	for c := range names {
		present := make([]float64, 0, len(rows))
		for _, row := range rows {
			if !math.IsNaN(row[c]) {
				present = append(present, row[c])
			}
		}
		if len(present) == 0 {
			empty = append(empty, names[c])
			continue
		}
		means[c] = stat.Mean(present, nil)
		for _, row := range rows {
			if math.IsNaN(row[c]) {
				row[c] = means[c]
			}
		}
	}
	return means, empty
}

// Rows returns the subset of the frame at the given row indices. Row slices are shared.
func (f *Frame) Rows(indices []int) (x, y [][]float64) {
	x = make([][]float64, len(indices))
	y = make([][]float64, len(indices))
	for i, idx := range indices {
		x[i] = f.X[idx]
		y[i] = f.Y[idx]
	}
	return x, y
}
