package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/opst/mlgate/pkg/promotion"
	"github.com/opst/mlgate/pkg/registry/filesystem"
)

const (
	good = `{
		"format": "mlgate/v1", "kind": "logistic", "feature_names": ["x"], "classes": [0, 1],
		"logistic": {"coefficients": [[1]], "intercepts": [0]}
	}`
	bad = `{
		"format": "mlgate/v1", "kind": "logistic", "feature_names": ["x"], "classes": [0, 1],
		"logistic": {"coefficients": [[-1]], "intercepts": [0]}
	}`

	xTest = "x\n-2\n-1\n1\n2\n"
	yTest = "target\n0\n0\n1\n1\n"
)

type workspace struct {
	dir    string
	models string
	env    map[string]string
}

func newWorkspace(t *testing.T) *workspace {
	t.Helper()
	dir := t.TempDir()
	models := filepath.Join(dir, "models")
	if err := os.MkdirAll(models, 0755); err != nil {
		t.Fatal(err)
	}
	for name, content := range map[string]string{
		"good.json": good, "bad.json": bad, "X_test.csv": xTest, "y_test.csv": yTest,
	} {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return &workspace{
		dir:    dir,
		models: models,
		env:    map[string]string{"FALLBACK_MODEL_PATH": filepath.Join(models, "model.json")},
	}
}

func (w *workspace) run(t *testing.T, args ...string) (int, promotion.Decision, string) {
	t.Helper()
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	args = append([]string{
		"-holdout-x", filepath.Join(w.dir, "X_test.csv"),
		"-holdout-y", filepath.Join(w.dir, "y_test.csv"),
	}, args...)
	code := run(context.Background(), args, stdout, stderr, func(k string) string { return w.env[k] })

	d := promotion.Decision{}
	if code == exitOK {
		if err := json.Unmarshal(stdout.Bytes(), &d); err != nil {
			t.Fatalf("output is not a decision: %s (%v)", stdout.String(), err)
		}
	}
	return code, d, stderr.String()
}

func TestRun(t *testing.T) {
	t.Run("first model is promoted without evaluation, then a better one replaces it, and a worse one is kept out", func(t *testing.T) {
		w := newWorkspace(t)

		code, d, logs := w.run(t, "-register", filepath.Join(w.dir, "bad.json"))
		if code != exitOK {
			t.Fatalf("exit %d: %s", code, logs)
		}
		if d.Outcome != promotion.Promote || !d.Bootstrap {
			t.Errorf("unexpected decision: %+v", d)
		}
		alias := filesystem.AliasPath(w.models, "production")
		if got, err := os.ReadFile(alias); err != nil || string(got) != bad {
			t.Fatalf("production is not the first model: %q, %v", got, err)
		}

		code, d, logs = w.run(t, "-challenger", filepath.Join(w.dir, "good.json"))
		if code != exitOK {
			t.Fatalf("exit %d: %s", code, logs)
		}
		if d.Outcome != promotion.Promote || d.Bootstrap {
			t.Errorf("unexpected decision: %+v", d)
		}
		if d.ChallengerMetric == nil || *d.ChallengerMetric != 1 || d.IncumbentMetric == nil || *d.IncumbentMetric != 0 {
			t.Errorf("unexpected metrics: %+v", d)
		}
		if got, _ := os.ReadFile(alias); string(got) != good {
			t.Errorf("production is not replaced: %q", got)
		}

		code, d, logs = w.run(t, "-challenger", filepath.Join(w.dir, "bad.json"))
		if code != exitOK {
			t.Fatalf("exit %d: %s", code, logs)
		}
		if d.Outcome != promotion.Keep {
			t.Errorf("unexpected decision: %+v", d)
		}
		if got, _ := os.ReadFile(alias); string(got) != good {
			t.Errorf("production is changed on KEEP: %q", got)
		}
	})

	t.Run("when neither -challenger nor -register is given, it exits 1", func(t *testing.T) {
		w := newWorkspace(t)
		if code, _, _ := w.run(t); code != exitError {
			t.Errorf("exit %d", code)
		}
	})

	t.Run("when both -challenger and -register are given, it exits 1", func(t *testing.T) {
		w := newWorkspace(t)
		code, _, _ := w.run(t, "-challenger", "a.json", "-register", filepath.Join(w.dir, "good.json"))
		if code != exitError {
			t.Errorf("exit %d", code)
		}
	})

	t.Run("when the challenger does not exist, it exits 1", func(t *testing.T) {
		w := newWorkspace(t)
		if code, _, _ := w.run(t, "-challenger", filepath.Join(w.dir, "missing.json")); code != exitError {
			t.Errorf("exit %d", code)
		}
	})

	t.Run("when held-out data is missing after bootstrap, it exits 1 and production is kept", func(t *testing.T) {
		w := newWorkspace(t)
		if code, _, logs := w.run(t, "-register", filepath.Join(w.dir, "bad.json")); code != exitOK {
			t.Fatalf("exit %d: %s", code, logs)
		}
		if err := os.Remove(filepath.Join(w.dir, "y_test.csv")); err != nil {
			t.Fatal(err)
		}

		if code, _, _ := w.run(t, "-challenger", filepath.Join(w.dir, "good.json")); code != exitError {
			t.Errorf("exit %d", code)
		}
		got, _ := os.ReadFile(filesystem.AliasPath(w.models, "production"))
		if string(got) != bad {
			t.Errorf("production is changed: %q", got)
		}
	})

	t.Run("when the production alias is held by another promotion, it exits 2", func(t *testing.T) {
		w := newWorkspace(t)
		unlock, err := filesystem.Lock(w.models, "production")
		if err != nil {
			t.Fatal(err)
		}
		defer unlock()
		if code, _, _ := w.run(t, "-register", filepath.Join(w.dir, "good.json")); code != exitConflict {
			t.Errorf("exit %d", code)
		}
	})
}
