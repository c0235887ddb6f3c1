package resolver

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlgate/pkg/loop"
	"github.com/opst/mlgate/pkg/model"
	"github.com/opst/mlgate/pkg/registry"
	"github.com/opst/mlgate/pkg/utils/filewatch"
	"golang.org/x/sync/errgroup"
)

// Resolver tries strategies in order, and falls back to an unavailable model.
type Resolver struct {
	strategies []Strategy
	logger     echo.Logger
	now        func() time.Time
}

type Option func(*Resolver) *Resolver

func WithClock(now func() time.Time) Option {
	return func(r *Resolver) *Resolver {
		r.now = now
		return r
	}
}

func New(logger echo.Logger, strategies []Strategy, options ...Option) *Resolver {
	r := &Resolver{strategies: strategies, logger: logger, now: time.Now}
	for _, opt := range options {
		r = opt(r)
	}
	return r
}

// Resolve returns the model of the first strategy which succeeds.
//
// It never returns nil. When every strategy fails, it returns model.Unavailable.
func (r *Resolver) Resolve(ctx context.Context) *model.Handle {
	return r.resolve(ctx).handle
}

type resolution struct {
	handle *model.Handle

	// index of the strategy which gave handle. len(strategies) for unavailable.
	rank int

	// failures[i] is the error of strategies[i]. len(failures) == rank.
	failures []error
}

func (r *Resolver) resolve(ctx context.Context) resolution {
	at := r.now()
	failures := make([]error, 0, len(r.strategies))
	for i, s := range r.strategies {
		h, err := attempt(ctx, s, at)
		if err != nil {
			r.logger.Warnf("model: %s is not usable: %v", s.Name(), err)
			failures = append(failures, err)
			continue
		}
		return resolution{handle: h, rank: i, failures: failures}
	}
	r.logger.Errorf("model: no model is available. predictions are refused until a model is loaded")
	return resolution{handle: model.Unavailable(at), rank: len(r.strategies), failures: failures}
}

func attempt(ctx context.Context, s Strategy, at time.Time) (h *model.Handle, err error) {
	defer func() {
		if r := recover(); r != nil {
			h, err = nil, fmt.Errorf("panic: %v", r)
		}
	}()
	h, err = s.Resolve(ctx, at)
	if err == nil && h == nil {
		err = errors.New("no model")
	}
	return h, err
}

// Holder publishes the current model.
//
// Readers should take Current once per request, and use it throughout.
type Holder struct {
	current  atomic.Pointer[model.Handle]
	resolver *Resolver
	logger   echo.Logger

	// serializes Refresh, and guards rank
	mu sync.Mutex

	// rank of the strategy which gave current
	rank int
}

// NewHolder returns a Holder which has no model yet. Call Refresh to load.
func NewHolder(resolver *Resolver, logger echo.Logger) *Holder {
	h := &Holder{resolver: resolver, logger: logger, rank: len(resolver.strategies)}
	h.current.Store(model.Unavailable(resolver.now()))
	return h
}

func (h *Holder) Current() *model.Handle {
	return h.current.Load()
}

// Refresh resolves the model again, and replaces the current one when it has changed.
//
// A loaded model is kept when the refresh cannot tell it is obsolete:
// when ctx is done before the resolution completes, or when the strategy which
// gave the current model (or one ranked between it and the new one) fails with
// an error other than registry.ErrMissing.
//
// # Returns
//
// - *model.Handle: the current model after refresh.
//
// - bool: true if replaced.
func (h *Holder) Refresh(ctx context.Context) (*model.Handle, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()

	res := h.resolver.resolve(ctx)
	current := h.current.Load()

	if err := ctx.Err(); err != nil {
		h.logger.Warnf(
			"model: refresh is interrupted (%v). keep %s (%s)",
			err, current.Provenance(), current.Version(),
		)
		return current, false
	}

	if current.Loaded() && h.rank < res.rank {
		for i := h.rank; i < len(res.failures); i++ {
			err := res.failures[i]
			if errors.Is(err, registry.ErrMissing) {
				continue
			}
			h.logger.Warnf(
				"model: %s has failed (%v). keep %s (%s) instead of %s (%s)",
				h.resolver.strategies[i].Name(), err,
				current.Provenance(), current.Version(),
				res.handle.Provenance(), res.handle.Version(),
			)
			return current, false
		}
	}

	h.rank = res.rank
	next := res.handle
	if next.Same(current) {
		return current, false
	}

	h.current.Store(next)
	h.logger.Infof(
		"model: switched from %s (%s) to %s (%s)",
		current.Provenance(), current.Version(), next.Provenance(), next.Version(),
	)
	return next, true
}

// Watch refreshes the model every interval, and whenever files in dirs change.
//
// It blocks until ctx is done. interval <= 0 disables periodic refresh.
func (h *Holder) Watch(ctx context.Context, interval time.Duration, dirs ...string) error {
	eg, gctx := errgroup.WithContext(ctx)

	if 0 < interval {
		eg.Go(func() error {
			_, err := loop.Start(gctx, struct{}{}, func(ctx context.Context, _ struct{}) (struct{}, loop.Next) {
				h.Refresh(ctx)
				return struct{}{}, loop.Continue(interval)
			})
			return err
		})
	}

	if 0 < len(dirs) {
		retry := interval
		if retry <= 0 || time.Minute < retry {
			retry = time.Minute
		}
		eg.Go(func() error {
			_, err := loop.Start(gctx, struct{}{}, func(ctx context.Context, _ struct{}) (struct{}, loop.Next) {
				wctx, cancel, err := filewatch.UntilModifyContext(ctx, dirs...)
				if err != nil {
					h.logger.Warnf("model: cannot watch %v: %v", dirs, err)
					return struct{}{}, loop.Continue(retry)
				}
				<-wctx.Done()
				cancel()
				if err := ctx.Err(); err != nil {
					return struct{}{}, loop.Break(err)
				}
				h.logger.Debugf("model: %v", context.Cause(wctx))
				h.Refresh(ctx)
				return struct{}{}, loop.Continue(0)
			})
			return err
		})
	}

	err := eg.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}
