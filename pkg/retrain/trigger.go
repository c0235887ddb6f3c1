package retrain

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"
)

// Submitter queues requests without blocking.
type Submitter interface {
	Submit(req Request) error
}

// Trigger accepts retrain requests and hands them to a dispatcher.
//
// A run id accepted within the dedupe window is not dispatched again.
type Trigger struct {
	ids        RunIDs
	dispatcher Submitter
	window     time.Duration
	now        func() time.Time

	mu       sync.Mutex
	accepted map[string]Ack
}

var _ Requester = &Trigger{}

type TriggerOption func(*Trigger) *Trigger

func WithClock(now func() time.Time) TriggerOption {
	return func(t *Trigger) *Trigger {
		t.now = now
		return t
	}
}

func NewTrigger(ids RunIDs, dispatcher Submitter, window time.Duration, options ...TriggerOption) *Trigger {
	t := &Trigger{
		ids:        ids,
		dispatcher: dispatcher,
		window:     window,
		now:        time.Now,
		accepted:   map[string]Ack{},
	}
	for _, opt := range options {
		t = opt(t)
	}
	return t
}

// Request queues a retrain run.
//
// # Returns
//
// - Ack: receipt with run id. Duplicate is true when the run was accepted already.
//
// - error: ErrTrigger when the request cannot be queued.
func (t *Trigger) Request(ctx context.Context, requester string, idempotencyKey string) (Ack, error) {
	if err := ctx.Err(); err != nil {
		return Ack{}, fmt.Errorf("%w: %w", ErrTrigger, err)
	}

	now := t.now()
	runID := t.ids.For(now, idempotencyKey)

	t.mu.Lock()
	defer t.mu.Unlock()

	for id, ack := range t.accepted {
		if t.window <= now.Sub(ack.AcceptedAt) {
			delete(t.accepted, id)
		}
	}

	if ack, ok := t.accepted[runID]; ok {
		ack.Duplicate = true
		return ack, nil
	}

	if err := t.dispatcher.Submit(Request{RunID: runID, RequestedAt: now, RequestedBy: requester}); err != nil {
		if !errors.Is(err, ErrTrigger) {
			err = fmt.Errorf("%w: %w", ErrTrigger, err)
		}
		return Ack{}, err
	}

	ack := Ack{RunID: runID, AcceptedAt: now}
	t.accepted[runID] = ack
	return ack, nil
}
