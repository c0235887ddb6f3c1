package retrain

// Accepted is the response body of POST /retrain.
type Accepted struct {
	// always "accepted"
	Status string `json:"status"`
	RunID  string `json:"run_id"`
}

const StatusAccepted = "accepted"

// HeaderIdempotencyKey names the request header to choose the run id.
//
// Requests with the same key are dispatched once.
const HeaderIdempotencyKey = "Idempotency-Key"
