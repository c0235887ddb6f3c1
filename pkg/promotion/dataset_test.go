package promotion_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/mlgate/pkg/cmp"
	"github.com/opst/mlgate/pkg/promotion"
	"github.com/opst/mlgate/pkg/utils/try"
)

func holdout(t *testing.T, x, y string) promotion.CSVFiles {
	t.Helper()
	dir := t.TempDir()
	files := promotion.CSVFiles{X: filepath.Join(dir, "X_test.csv"), Y: filepath.Join(dir, "y_test.csv")}
	if x != "" {
		if err := os.WriteFile(files.X, []byte(x), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	if y != "" {
		if err := os.WriteFile(files.Y, []byte(y), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	return files
}

func TestCSVFiles(t *testing.T) {
	ctx := context.Background()

	t.Run("it loads rows and labels, and selects columns by name", func(t *testing.T) {
		data := try.To(holdout(t, "a, b,c\n1,2,3\n4,5,6\n", "target\n0\n1.0\n").Load(ctx)).OrFatal(t)

		if !cmp.SliceEq(data.Columns, []string{"a", "b", "c"}) {
			t.Errorf("columns: %v", data.Columns)
		}
		if !cmp.SliceEq(data.Labels, []int64{0, 1}) {
			t.Errorf("labels: %v", data.Labels)
		}

		rows := try.To(data.Select([]string{"c", "a"})).OrFatal(t)
		if len(rows) != 2 || !cmp.SliceEq(rows[0], []float64{3, 1}) || !cmp.SliceEq(rows[1], []float64{6, 4}) {
			t.Errorf("rows: %v", rows)
		}

		if _, err := data.Select([]string{"d"}); !errors.Is(err, promotion.ErrDataUnavailable) {
			t.Errorf("expected ErrDataUnavailable, got %v", err)
		}
	})

	for name, files := range map[string]struct{ x, y string }{
		"missing X":            {y: "y\n1\n"},
		"missing y":            {x: "a\n1\n"},
		"empty X":              {x: " ", y: "y\n1\n"},
		"no rows":              {x: "a\n", y: "y\n"},
		"row count mismatch":   {x: "a\n1\n2\n", y: "y\n1\n"},
		"ragged X":             {x: "a,b\n1,2\n3\n", y: "y\n1\n0\n"},
		"not a number":         {x: "a\nfoo\n", y: "y\n1\n"},
		"not finite":           {x: "a\nNaN\n", y: "y\n1\n"},
		"y with 2 columns":     {x: "a\n1\n", y: "y,z\n1,2\n"},
		"label is not integer": {x: "a\n1\n", y: "y\n0.5\n"},
	} {
		t.Run("when "+name+", it returns ErrDataUnavailable", func(t *testing.T) {
			_, err := holdout(t, files.x, files.y).Load(ctx)
			if !errors.Is(err, promotion.ErrDataUnavailable) {
				t.Errorf("expected ErrDataUnavailable, got %v", err)
			}
		})
	}
}
