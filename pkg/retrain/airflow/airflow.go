// Package airflow starts DAG runs via the Airflow stable REST API.
package airflow

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"

	"github.com/opst/mlgate/pkg/retrain"
)

type client struct {
	endpoint *url.URL
	dagID    string
	user     string
	password string
	http     *http.Client
}

type Option func(*client) *client

// WithHTTPClient replaces http.Client. Default is http.DefaultClient.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *client) *client {
		c.http = hc
		return c
	}
}

// New returns an Orchestrator triggering dagID.
//
// baseURL is the root of the Airflow web server, like "http://airflow:8080".
func New(baseURL string, dagID string, user string, password string, options ...Option) (retrain.Orchestrator, error) {
	u, err := url.Parse(baseURL)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("airflow: unsupported url %q", baseURL)
	}
	if dagID == "" {
		return nil, fmt.Errorf("airflow: dag id is empty")
	}

	c := &client{endpoint: u, dagID: dagID, user: user, password: password, http: http.DefaultClient}
	for _, opt := range options {
		c = opt(c)
	}
	return c, nil
}

type dagRun struct {
	DagRunID string         `json:"dag_run_id"`
	Conf     map[string]any `json:"conf"`
}

func (c *client) Start(ctx context.Context, req retrain.Request) error {
	body, err := json.Marshal(dagRun{
		DagRunID: req.RunID,
		Conf:     map[string]any{"requested_by": req.RequestedBy},
	})
	if err != nil {
		return err
	}

	hreq, err := http.NewRequestWithContext(
		ctx, http.MethodPost,
		c.endpoint.JoinPath("api", "v1", "dags", c.dagID, "dagRuns").String(),
		bytes.NewReader(body),
	)
	if err != nil {
		return err
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "application/json")
	hreq.SetBasicAuth(c.user, c.password)

	resp, err := c.http.Do(hreq)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	switch {
	case 200 <= resp.StatusCode && resp.StatusCode < 300:
		io.Copy(io.Discard, resp.Body)
		return nil
	case resp.StatusCode == http.StatusConflict:
		return fmt.Errorf("%w: %s", retrain.ErrAlreadyStarted, req.RunID)
	default:
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("airflow: %s: %s", resp.Status, bytes.TrimSpace(detail))
	}
}
