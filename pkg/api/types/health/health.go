package health

// Status is the response body of GET /.
type Status struct {
	// "ok" while the server is serving. It does not mean a model is loaded.
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

const StatusOK = "ok"
