// Package retrain asks a workflow orchestrator to run the training pipeline.
package retrain

import (
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"
)

var (
	// the request cannot be accepted now.
	ErrTrigger = errors.New("retrain cannot be triggered")

	// the orchestrator already has a run with the same id.
	ErrAlreadyStarted = errors.New("run has already been started")
)

type Request struct {
	RunID       string
	RequestedAt time.Time
	RequestedBy string
}

// Ack is a receipt for an accepted request.
type Ack struct {
	RunID      string
	AcceptedAt time.Time

	// true when the same run has been accepted already.
	Duplicate bool
}

// Orchestrator starts a run of the training pipeline.
type Orchestrator interface {
	// Start requests the orchestrator to start a run.
	//
	// When the run id is taken, it returns ErrAlreadyStarted.
	Start(ctx context.Context, req Request) error
}

// Requester accepts retrain requests from users.
type Requester interface {
	// Request accepts a retrain request.
	//
	// # Args
	//
	// - ctx
	//
	// - requester: who requests.
	//
	// - idempotencyKey: optional. Requests with the same key are the same run.
	Request(ctx context.Context, requester string, idempotencyKey string) (Ack, error)
}

type refusing struct {
	err error
}

// Refuse returns a Requester which refuses every request with err.
func Refuse(err error) Requester {
	return refusing{err: err}
}

func (r refusing) Request(context.Context, string, string) (Ack, error) {
	return Ack{}, r.err
}

const runIDPrefix = "manual_run_"

// longest key kept in a run id.
const maxKeyLength = 64

var unsafeRunID = regexp.MustCompile(`[^A-Za-z0-9_.-]`)

// RunIDs generates run ids.
//
// Requests in the same window of Granularity share a run id.
type RunIDs struct {
	Granularity time.Duration
}

// For returns the run id for a request at t.
//
// When key is given, it is used instead of the time.
func (g RunIDs) For(t time.Time, key string) string {
	if key = strings.TrimSpace(key); key != "" {
		key = unsafeRunID.ReplaceAllString(key, "_")
		if maxKeyLength < len(key) {
			key = key[:maxKeyLength]
		}
		return runIDPrefix + key
	}

	d := g.Granularity
	if d < time.Second {
		d = time.Second
	}
	return runIDPrefix + strconv.FormatInt(t.Truncate(d).Unix(), 10)
}
