package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/labstack/echo/v4"
)

// Dispatcher passes requests to an orchestrator in background workers.
type Dispatcher struct {
	orch    Orchestrator
	logger  echo.Logger
	timeout time.Duration
	observe func(Request, error)

	queue  chan Request
	errs   chan error
	base   context.Context
	cancel context.CancelFunc

	mu      sync.RWMutex
	stopped bool

	workers   sync.WaitGroup
	closeErrs sync.Once
	drained   chan struct{}
}

type dispatcherConfig struct {
	workers int
	size    int
	timeout time.Duration
	observe func(Request, error)
}

type DispatcherOption func(*dispatcherConfig) *dispatcherConfig

// number of concurrent dispatches. Default is 1.
func WithWorkers(n int) DispatcherOption {
	return func(c *dispatcherConfig) *dispatcherConfig {
		c.workers = n
		return c
	}
}

// number of requests waiting for a worker. Default is 16.
func WithQueueSize(n int) DispatcherOption {
	return func(c *dispatcherConfig) *dispatcherConfig {
		c.size = n
		return c
	}
}

// timeout of each call to the orchestrator. Default is 30 seconds.
func WithDispatchTimeout(d time.Duration) DispatcherOption {
	return func(c *dispatcherConfig) *dispatcherConfig {
		c.timeout = d
		return c
	}
}

// WithObserver sets a function called after each dispatch, with its result.
func WithObserver(f func(Request, error)) DispatcherOption {
	return func(c *dispatcherConfig) *dispatcherConfig {
		c.observe = f
		return c
	}
}

// NewDispatcher starts workers. Stop it after use.
func NewDispatcher(orch Orchestrator, logger echo.Logger, options ...DispatcherOption) *Dispatcher {
	conf := &dispatcherConfig{workers: 1, size: 16, timeout: 30 * time.Second}
	for _, opt := range options {
		conf = opt(conf)
	}
	if conf.workers < 1 {
		conf.workers = 1
	}
	if conf.size < 0 {
		conf.size = 0
	}

	base, cancel := context.WithCancel(context.Background())
	d := &Dispatcher{
		orch:    orch,
		logger:  logger,
		timeout: conf.timeout,
		observe: conf.observe,
		queue:   make(chan Request, conf.size),
		errs:    make(chan error, conf.workers),
		base:    base,
		cancel:  cancel,
		drained: make(chan struct{}),
	}

	go d.report(d.errs)
	for range conf.workers {
		d.workers.Add(1)
		go d.work()
	}
	return d
}

// Submit queues req without blocking.
//
// When the queue is full or the dispatcher is stopped, it returns ErrTrigger.
func (d *Dispatcher) Submit(req Request) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.stopped {
		return fmt.Errorf("%w: dispatcher is stopped", ErrTrigger)
	}

	select {
	case d.queue <- req:
		return nil
	default:
		return fmt.Errorf("%w: too many requests are waiting", ErrTrigger)
	}
}

func (d *Dispatcher) work() {
	defer d.workers.Done()
	for req := range d.queue {
		err := d.dispatch(req)
		if err != nil {
			d.errs <- fmt.Errorf("retrain %s: %w", req.RunID, err)
		} else {
			d.logger.Infof("retrain: %s is started (requested by %s)", req.RunID, req.RequestedBy)
		}
		if d.observe != nil {
			d.observe(req, err)
		}
	}
}

func (d *Dispatcher) dispatch(req Request) (err error) {
	ctx, cancel := context.WithTimeout(d.base, d.timeout)
	defer cancel()
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("orchestrator panicked: %v", r)
		}
	}()
	return d.orch.Start(ctx, req)
}

// report logs errors of dispatches. They are never retried.
func (d *Dispatcher) report(errs <-chan error) {
	defer close(d.drained)
	for err := range errs {
		if errors.Is(err, ErrAlreadyStarted) {
			d.logger.Infof("%v", err)
			continue
		}
		d.logger.Errorf("%v", err)
	}
}

// Stop refuses new requests, and waits queued ones to be dispatched.
//
// When ctx is done before that, dispatches in flight are cancelled.
func (d *Dispatcher) Stop(ctx context.Context) error {
	d.mu.Lock()
	if !d.stopped {
		d.stopped = true
		close(d.queue)
	}
	d.mu.Unlock()

	finished := make(chan struct{})
	go func() {
		d.workers.Wait()
		close(finished)
	}()

	var err error
	select {
	case <-finished:
	case <-ctx.Done():
		d.cancel()
		<-finished
		err = ctx.Err()
	}
	d.cancel()

	d.closeErrs.Do(func() { close(d.errs) })
	<-d.drained
	return err
}
