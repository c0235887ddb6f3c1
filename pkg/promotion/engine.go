package promotion

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlgate/pkg/model"
	"github.com/opst/mlgate/pkg/model/artifact"
	"github.com/opst/mlgate/pkg/registry"
	"golang.org/x/sync/errgroup"
)

type Engine struct {
	reg    registry.Registry
	alias  string
	margin float64
	data   DataSource
	logger echo.Logger
}

// NewEngine returns an Engine promoting models to alias of reg.
//
// margin should be finite and non-negative.
func NewEngine(reg registry.Registry, alias string, margin float64, data DataSource, logger echo.Logger) (*Engine, error) {
	if math.IsNaN(margin) || math.IsInf(margin, 0) || margin < 0 {
		return nil, fmt.Errorf("promotion: invalid margin %v", margin)
	}
	return &Engine{reg: reg, alias: alias, margin: margin, data: data, logger: logger}, nil
}

// Evaluate compares the challenger with the production model, and promotes it when it wins.
//
// When there is no production model, the challenger is promoted without evaluation.
//
// # Returns
//
// - Decision: what has been decided. Valid only when error is nil.
//
// - error: ErrArtifactLoad, ErrDataUnavailable or ErrPromotionConflict.
// Other errors come from the registry.
func (e *Engine) Evaluate(ctx context.Context, challengerID string) (Decision, error) {
	challenger, err := e.load(ctx, func(ctx context.Context) (registry.Entry, error) {
		return e.reg.Get(ctx, challengerID)
	})
	if errors.Is(err, registry.ErrMissing) {
		return Decision{}, fmt.Errorf("%w: challenger %s: %w", ErrArtifactLoad, challengerID, err)
	} else if err != nil {
		return Decision{}, fmt.Errorf("challenger %s: %w", challengerID, err)
	}

	incumbent, err := e.load(ctx, func(ctx context.Context) (registry.Entry, error) {
		return e.reg.Alias(ctx, e.alias)
	})
	if errors.Is(err, registry.ErrMissing) {
		return e.bootstrap(ctx, challenger)
	} else if err != nil {
		return Decision{}, fmt.Errorf("incumbent %s: %w", e.alias, err)
	}

	data, err := e.data.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrDataUnavailable) {
			err = fmt.Errorf("%w: %w", ErrDataUnavailable, err)
		}
		return Decision{}, err
	}

	var chMetric, incMetric float64
	eg, _ := errgroup.WithContext(ctx)
	eg.Go(func() (err error) {
		chMetric, err = score(challenger, data)
		return err
	})
	eg.Go(func() (err error) {
		incMetric, err = score(incumbent, data)
		return err
	})
	if err := eg.Wait(); err != nil {
		return Decision{}, err
	}

	d := Decision{
		Outcome:           Decide(chMetric, incMetric, e.margin),
		ChallengerVersion: challenger.Version(),
		IncumbentVersion:  incumbent.Version(),
		ChallengerMetric:  &chMetric,
		IncumbentMetric:   &incMetric,
		Margin:            e.margin,
	}
	if d.Outcome == Keep {
		e.logger.Infof("promotion: %s", d)
		return d, nil
	}

	if err := e.swap(ctx, incumbent.Version(), challenger.Version()); err != nil {
		return Decision{}, err
	}
	e.logger.Infof("promotion: %s", d)
	return d, nil
}

func (e *Engine) bootstrap(ctx context.Context, challenger *model.Handle) (Decision, error) {
	if err := e.swap(ctx, "", challenger.Version()); err != nil {
		return Decision{}, err
	}
	d := Decision{
		Outcome:           Promote,
		ChallengerVersion: challenger.Version(),
		Margin:            e.margin,
		Bootstrap:         true,
	}
	e.logger.Infof("promotion: %s", d)
	return d, nil
}

func (e *Engine) swap(ctx context.Context, expected, next string) error {
	err := e.reg.SwapAlias(ctx, e.alias, expected, next)
	if errors.Is(err, registry.ErrConflict) {
		return fmt.Errorf("%w: %w", ErrPromotionConflict, err)
	}
	return err
}

// load fetches an artifact and builds its model.
//
// registry.ErrMissing is passed through as is. Broken artifacts are reported as ErrArtifactLoad.
func (e *Engine) load(ctx context.Context, fetch func(context.Context) (registry.Entry, error)) (*model.Handle, error) {
	entry, err := fetch(ctx)
	if errors.Is(err, registry.ErrMissing) {
		return nil, err
	} else if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}

	a, err := artifact.Decode(entry.Payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}
	names, err := a.Schema(entry.FeatureNames)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrArtifactLoad, err)
	}
	return model.NewHandle(a.Predictor(), names, model.ProvenanceRegistry, entry.Version, time.Time{}), nil
}

// score computes AUC of h on data, taking the second class as positive.
func score(h *model.Handle, data Dataset) (float64, error) {
	rows, err := data.Select(h.FeatureNames())
	if err != nil {
		return 0, err
	}

	scores := make([]float64, len(rows))
	positive := make([]bool, len(rows))
	for i, row := range rows {
		pred, err := h.Predict(model.Positional(row), true)
		if err != nil {
			return 0, fmt.Errorf("%w: model %s: %w", ErrArtifactLoad, h.Version(), err)
		}
		pos := pred.Probabilities[1]
		scores[i] = pos.Probability
		positive[i] = data.Labels[i] == pos.Class
	}
	return AUC(scores, positive)
}
