package retrain_test

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/mlgate/pkg/retrain"
)

func TestRunIDs(t *testing.T) {
	at := time.Unix(1760000000, 300_000_000)

	t.Run("requests in the same second share a run id", func(t *testing.T) {
		testee := retrain.RunIDs{Granularity: time.Second}
		a := testee.For(at, "")
		b := testee.For(at.Add(600*time.Millisecond), "")
		if a != "manual_run_1760000000" || a != b {
			t.Errorf("got %s and %s", a, b)
		}
		if c := testee.For(at.Add(time.Second), ""); c != "manual_run_1760000001" {
			t.Errorf("next second: got %s", c)
		}
	})

	t.Run("coarser granularity truncates more", func(t *testing.T) {
		testee := retrain.RunIDs{Granularity: time.Minute}
		if got := testee.For(at, ""); got != "manual_run_1759999980" {
			t.Errorf("got %s", got)
		}
	})

	t.Run("granularity finer than a second is treated as a second", func(t *testing.T) {
		testee := retrain.RunIDs{}
		if got := testee.For(at, ""); got != "manual_run_1760000000" {
			t.Errorf("got %s", got)
		}
	})

	t.Run("idempotency key is used and sanitized", func(t *testing.T) {
		testee := retrain.RunIDs{Granularity: time.Second}
		if got := testee.For(at, " nightly/2026-10-15 "); got != "manual_run_nightly_2026-10-15" {
			t.Errorf("got %s", got)
		}
		long := testee.For(at, strings.Repeat("k", 100))
		if long != "manual_run_"+strings.Repeat("k", 64) {
			t.Errorf("got %s", long)
		}
	})
}

type countingSubmitter struct {
	mu   sync.Mutex
	reqs []retrain.Request
	err  error
}

func (c *countingSubmitter) Submit(req retrain.Request) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return c.err
	}
	c.reqs = append(c.reqs, req)
	return nil
}

func TestTrigger(t *testing.T) {
	ctx := context.Background()
	at := time.Unix(1760000000, 0)

	t.Run("concurrent requests in the same window get the same run id and are dispatched once", func(t *testing.T) {
		sub := &countingSubmitter{}
		testee := retrain.NewTrigger(
			retrain.RunIDs{Granularity: time.Second}, sub, 10*time.Minute,
			retrain.WithClock(func() time.Time { return at }),
		)

		acks := make([]retrain.Ack, 2)
		errs := make([]error, 2)
		wg := new(sync.WaitGroup)
		for i := range acks {
			wg.Add(1)
			go func() {
				defer wg.Done()
				acks[i], errs[i] = testee.Request(ctx, "admin", "")
			}()
		}
		wg.Wait()

		for _, err := range errs {
			if err != nil {
				t.Fatal(err)
			}
		}
		if acks[0].RunID != acks[1].RunID || acks[0].RunID != "manual_run_1760000000" {
			t.Errorf("run ids differ: %+v", acks)
		}
		if acks[0].Duplicate == acks[1].Duplicate {
			t.Errorf("exactly one should be duplicated: %+v", acks)
		}
		if len(sub.reqs) != 1 || sub.reqs[0].RequestedBy != "admin" || !sub.reqs[0].RequestedAt.Equal(at) {
			t.Errorf("unexpected dispatches: %+v", sub.reqs)
		}
	})

	t.Run("after the dedupe window, the same run id is dispatched again", func(t *testing.T) {
		sub := &countingSubmitter{}
		now := at
		testee := retrain.NewTrigger(
			retrain.RunIDs{Granularity: time.Second}, sub, time.Minute,
			retrain.WithClock(func() time.Time { return now }),
		)

		if _, err := testee.Request(ctx, "admin", "nightly"); err != nil {
			t.Fatal(err)
		}
		now = at.Add(30 * time.Second)
		if ack, err := testee.Request(ctx, "admin", "nightly"); err != nil || !ack.Duplicate {
			t.Errorf("within window: %+v, %v", ack, err)
		}
		now = at.Add(2 * time.Minute)
		if ack, err := testee.Request(ctx, "admin", "nightly"); err != nil || ack.Duplicate {
			t.Errorf("after window: %+v, %v", ack, err)
		}
		if len(sub.reqs) != 2 {
			t.Errorf("dispatched %d times, want 2", len(sub.reqs))
		}
	})

	t.Run("when the request cannot be queued, it returns ErrTrigger and does not remember it", func(t *testing.T) {
		sub := &countingSubmitter{err: errors.New("queue is full")}
		testee := retrain.NewTrigger(
			retrain.RunIDs{Granularity: time.Second}, sub, time.Minute,
			retrain.WithClock(func() time.Time { return at }),
		)

		if _, err := testee.Request(ctx, "admin", ""); !errors.Is(err, retrain.ErrTrigger) {
			t.Fatalf("expected ErrTrigger, got %v", err)
		}

		sub.err = nil
		ack, err := testee.Request(ctx, "admin", "")
		if err != nil || ack.Duplicate {
			t.Errorf("retry should be dispatched: %+v, %v", ack, err)
		}
	})

	t.Run("Refuse refuses everything with the given error", func(t *testing.T) {
		cause := errors.New("not configured")
		if _, err := retrain.Refuse(cause).Request(ctx, "admin", ""); !errors.Is(err, cause) {
			t.Errorf("expected %v, got %v", cause, err)
		}
	})
}

type orchestratorFunc func(context.Context, retrain.Request) error

func (f orchestratorFunc) Start(ctx context.Context, req retrain.Request) error {
	return f(ctx, req)
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func newLogger() (*log.Logger, *syncBuffer) {
	buf := new(syncBuffer)
	l := log.New("test")
	l.SetOutput(buf)
	l.SetLevel(log.DEBUG)
	return l, buf
}

type result struct {
	req retrain.Request
	err error
}

func TestDispatcher(t *testing.T) {
	t.Run("it dispatches queued requests and logs failures", func(t *testing.T) {
		logger, logs := newLogger()
		results := make(chan result, 3)
		testee := retrain.NewDispatcher(
			orchestratorFunc(func(_ context.Context, req retrain.Request) error {
				switch req.RunID {
				case "fail":
					return errors.New("airflow is down")
				case "dup":
					return retrain.ErrAlreadyStarted
				}
				return nil
			}),
			logger,
			retrain.WithWorkers(2),
			retrain.WithObserver(func(req retrain.Request, err error) { results <- result{req, err} }),
		)

		for _, id := range []string{"ok", "fail", "dup"} {
			if err := testee.Submit(retrain.Request{RunID: id, RequestedBy: "admin"}); err != nil {
				t.Fatal(err)
			}
		}

		got := map[string]error{}
		for range 3 {
			r := <-results
			got[r.req.RunID] = r.err
		}
		if got["ok"] != nil || got["fail"] == nil || !errors.Is(got["dup"], retrain.ErrAlreadyStarted) {
			t.Errorf("unexpected results: %v", got)
		}

		if err := testee.Stop(context.Background()); err != nil {
			t.Fatal(err)
		}
		out := logs.String()
		for _, want := range []string{"retrain fail: airflow is down", "retrain dup: run has already been started", "ok is started"} {
			if !strings.Contains(out, want) {
				t.Errorf("log should contain %q: %s", want, out)
			}
		}
	})

	t.Run("each dispatch is bounded by the timeout", func(t *testing.T) {
		logger, _ := newLogger()
		results := make(chan result, 1)
		testee := retrain.NewDispatcher(
			orchestratorFunc(func(ctx context.Context, _ retrain.Request) error {
				<-ctx.Done()
				return ctx.Err()
			}),
			logger,
			retrain.WithDispatchTimeout(20*time.Millisecond),
			retrain.WithObserver(func(req retrain.Request, err error) { results <- result{req, err} }),
		)
		defer testee.Stop(context.Background())

		if err := testee.Submit(retrain.Request{RunID: "slow"}); err != nil {
			t.Fatal(err)
		}
		select {
		case r := <-results:
			if !errors.Is(r.err, context.DeadlineExceeded) {
				t.Errorf("expected DeadlineExceeded, got %v", r.err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("dispatch is not timed out")
		}
	})

	t.Run("when the queue is full, Submit returns ErrTrigger without blocking", func(t *testing.T) {
		logger, _ := newLogger()
		started := make(chan struct{}, 1)
		release := make(chan struct{})
		testee := retrain.NewDispatcher(
			orchestratorFunc(func(ctx context.Context, _ retrain.Request) error {
				started <- struct{}{}
				<-release
				return nil
			}),
			logger,
			retrain.WithWorkers(1),
			retrain.WithQueueSize(1),
		)

		if err := testee.Submit(retrain.Request{RunID: "1"}); err != nil {
			t.Fatal(err)
		}
		<-started
		if err := testee.Submit(retrain.Request{RunID: "2"}); err != nil {
			t.Fatal(err)
		}
		if err := testee.Submit(retrain.Request{RunID: "3"}); !errors.Is(err, retrain.ErrTrigger) {
			t.Errorf("expected ErrTrigger, got %v", err)
		}

		close(release)
		if err := testee.Stop(context.Background()); err != nil {
			t.Fatal(err)
		}
	})

	t.Run("when stopped, Submit returns ErrTrigger", func(t *testing.T) {
		logger, _ := newLogger()
		testee := retrain.NewDispatcher(orchestratorFunc(func(context.Context, retrain.Request) error { return nil }), logger)
		if err := testee.Stop(context.Background()); err != nil {
			t.Fatal(err)
		}
		if err := testee.Submit(retrain.Request{RunID: "late"}); !errors.Is(err, retrain.ErrTrigger) {
			t.Errorf("expected ErrTrigger, got %v", err)
		}
		if err := testee.Stop(context.Background()); err != nil {
			t.Errorf("second Stop: %v", err)
		}
	})

	t.Run("when Stop times out, dispatches in flight are cancelled", func(t *testing.T) {
		logger, _ := newLogger()
		results := make(chan result, 1)
		started := make(chan struct{})
		testee := retrain.NewDispatcher(
			orchestratorFunc(func(ctx context.Context, _ retrain.Request) error {
				close(started)
				<-ctx.Done()
				return ctx.Err()
			}),
			logger,
			retrain.WithDispatchTimeout(time.Hour),
			retrain.WithObserver(func(req retrain.Request, err error) { results <- result{req, err} }),
		)
		if err := testee.Submit(retrain.Request{RunID: "long"}); err != nil {
			t.Fatal(err)
		}
		<-started

		ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
		defer cancel()
		if err := testee.Stop(ctx); !errors.Is(err, context.DeadlineExceeded) {
			t.Errorf("expected DeadlineExceeded, got %v", err)
		}
		if r := <-results; !errors.Is(r.err, context.Canceled) {
			t.Errorf("expected Canceled, got %v", r.err)
		}
	})
}
