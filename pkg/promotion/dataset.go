package promotion

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"
)

// Dataset is a held-out set for evaluation.
type Dataset struct {
	// column names of Rows
	Columns []string
	Rows    [][]float64
	Labels  []int64
}

// Select returns rows with columns ordered as names.
func (d Dataset) Select(names []string) ([][]float64, error) {
	index := make(map[string]int, len(d.Columns))
	for i, c := range d.Columns {
		index[c] = i
	}
	picks := make([]int, len(names))
	for i, n := range names {
		c, ok := index[n]
		if !ok {
			return nil, fmt.Errorf("%w: held-out set has no column %q", ErrDataUnavailable, n)
		}
		picks[i] = c
	}

	rows := make([][]float64, len(d.Rows))
	for r, row := range d.Rows {
		selected := make([]float64, len(picks))
		for i, c := range picks {
			selected[i] = row[c]
		}
		rows[r] = selected
	}
	return rows, nil
}

// DataSource provides the held-out set.
type DataSource interface {
	Load(ctx context.Context) (Dataset, error)
}

// CSVFiles is a held-out set in a pair of CSV files.
//
// X has a header of feature names. Y has a header and a single column of labels.
type CSVFiles struct {
	X string
	Y string
}

func (c CSVFiles) Load(context.Context) (Dataset, error) {
	header, rows, err := readCSV(c.X)
	if err != nil {
		return Dataset{}, err
	}
	ycols, yrows, err := readCSV(c.Y)
	if err != nil {
		return Dataset{}, err
	}
	if len(ycols) != 1 {
		return Dataset{}, fmt.Errorf("%w: %s should have 1 column, but %d", ErrDataUnavailable, c.Y, len(ycols))
	}
	if len(rows) != len(yrows) {
		return Dataset{}, fmt.Errorf(
			"%w: %s has %d rows but %s has %d", ErrDataUnavailable, c.X, len(rows), c.Y, len(yrows),
		)
	}
	if len(rows) == 0 {
		return Dataset{}, fmt.Errorf("%w: %s has no rows", ErrDataUnavailable, c.X)
	}

	d := Dataset{Columns: header, Rows: make([][]float64, len(rows)), Labels: make([]int64, len(yrows))}
	for i, row := range rows {
		values := make([]float64, len(row))
		for j, cell := range row {
			v, err := strconv.ParseFloat(strings.TrimSpace(cell), 64)
			if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
				return Dataset{}, fmt.Errorf(
					"%w: %s line %d column %q: %q is not a finite number", ErrDataUnavailable, c.X, i+2, header[j], cell,
				)
			}
			values[j] = v
		}
		d.Rows[i] = values
	}
	for i, row := range yrows {
		label, err := parseLabel(row[0])
		if err != nil {
			return Dataset{}, fmt.Errorf("%w: %s line %d: %w", ErrDataUnavailable, c.Y, i+2, err)
		}
		d.Labels[i] = label
	}
	return d, nil
}

// labels can be written as floats like "1.0".
func parseLabel(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return i, nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f != math.Trunc(f) || math.IsInf(f, 0) {
		return 0, fmt.Errorf("%q is not a class label", s)
	}
	return int64(f), nil
}

func readCSV(path string) ([]string, [][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrDataUnavailable, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, fmt.Errorf("%w: %s is empty", ErrDataUnavailable, path)
	} else if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, path, err)
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}

	// csv.Reader rejects rows whose number of fields differs from the header.
	rows, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %s: %w", ErrDataUnavailable, path, err)
	}
	return header, rows, nil
}
