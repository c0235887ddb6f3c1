package server

import (
	"time"
)

// Configuration of mlgate.
//
// to get Config instance, use Load or ConfigMarshall.TrySeal.
type Config struct {
	port         int
	database     string
	auth         *AuthConfig
	model        *ModelConfig
	promotion    *PromotionConfig
	orchestrator *OrchestratorConfig
}

// port to listen. default = 8000
func (c *Config) Port() int {
	return c.port
}

// Connection string for the registry database. Empty when the registry is not used.
func (c *Config) Database() string {
	return c.database
}

func (c *Config) Auth() *AuthConfig {
	return c.auth
}

func (c *Config) Model() *ModelConfig {
	return c.model
}

func (c *Config) Promotion() *PromotionConfig {
	return c.promotion
}

func (c *Config) Orchestrator() *OrchestratorConfig {
	return c.orchestrator
}

type AuthConfig struct {
	adminUsername     string
	adminPasswordHash string
	signingKey        string
	previousKey       string
	algorithm         string
	tokenTTL          time.Duration
}

// Username of the admin. It can be empty; then login fails as misconfiguration.
func (a *AuthConfig) AdminUsername() string {
	return a.adminUsername
}

// bcrypt hash of admin's password. It can be empty; then login fails as misconfiguration.
func (a *AuthConfig) AdminPasswordHash() string {
	return a.adminPasswordHash
}

// Secret to sign tokens.
//
// It returns ErrConfiguration when not set.
func (a *AuthConfig) SigningKey() (string, error) {
	if a.signingKey == "" {
		return "", newError("auth.secretKey (SECRET_KEY) is required")
	}
	return a.signingKey, nil
}

// Secret which signed tokens before rotation. Empty when not rotating.
func (a *AuthConfig) PreviousSigningKey() string {
	return a.previousKey
}

// JWS algorithm. default = HS256
func (a *AuthConfig) Algorithm() string {
	return a.algorithm
}

// How long tokens live. default = 30 minutes
func (a *AuthConfig) TokenTTL() time.Duration {
	return a.tokenTTL
}

type ModelConfig struct {
	name            string
	productionAlias string
	fallbackPath    string
	refreshInterval time.Duration
}

// Name of the registered model in the registry.
func (m *ModelConfig) Name() string {
	return m.name
}

// Alias pointing the production version. default = "production"
func (m *ModelConfig) ProductionAlias() string {
	return m.productionAlias
}

// Path of the local fallback artifact.
func (m *ModelConfig) FallbackPath() string {
	return m.fallbackPath
}

// Interval to re-resolve the production model. 0 disables polling.
func (m *ModelConfig) RefreshInterval() time.Duration {
	return m.refreshInterval
}

type PromotionConfig struct {
	margin float64
}

// Challenger should beat incumbent by more than this. default = 0.01
func (p *PromotionConfig) Margin() float64 {
	return p.margin
}

type OrchestratorKind string

const (
	Airflow    OrchestratorKind = "airflow"
	Kubernetes OrchestratorKind = "kubernetes"
)

type OrchestratorConfig struct {
	kind             OrchestratorKind
	url              string
	user             string
	password         string
	dagID            string
	timeout          time.Duration
	runIDGranularity time.Duration
	dedupeWindow     time.Duration
	workers          int
	queueSize        int
	job              *JobConfig
}

func (o *OrchestratorConfig) Kind() OrchestratorKind {
	return o.kind
}

// Base URL of Airflow webserver.
func (o *OrchestratorConfig) URL() string {
	return o.url
}

func (o *OrchestratorConfig) User() string {
	return o.user
}

func (o *OrchestratorConfig) Password() string {
	return o.password
}

// DAG to be triggered. default = "dvc_pipeline"
func (o *OrchestratorConfig) DagID() string {
	return o.dagID
}

// Timeout of each request to the orchestrator. default = 30s
func (o *OrchestratorConfig) Timeout() time.Duration {
	return o.timeout
}

// Retrain requests within the same window of this size share a run id. default = 1s
func (o *OrchestratorConfig) RunIDGranularity() time.Duration {
	return o.runIDGranularity
}

// How long dispatched run ids are remembered to suppress duplicates. default = 10m
func (o *OrchestratorConfig) DedupeWindow() time.Duration {
	return o.dedupeWindow
}

// Number of dispatching workers. default = 2
func (o *OrchestratorConfig) Workers() int {
	return o.workers
}

// Capacity of the dispatch queue. default = 16
func (o *OrchestratorConfig) QueueSize() int {
	return o.queueSize
}

func (o *OrchestratorConfig) Job() *JobConfig {
	return o.job
}

// Validate checks settings required to reach the orchestrator.
//
// It is checked on first use, not on startup, so that the server can serve predictions
// without an orchestrator.
func (o *OrchestratorConfig) Validate() error {
	switch o.kind {
	case Airflow:
		if o.url == "" {
			return newError("orchestrator.url (ORCHESTRATOR_URL) is required")
		}
		if o.user == "" || o.password == "" {
			return newError("orchestrator.user and orchestrator.password (AIRFLOW_API_USER, AIRFLOW_API_PASS) are required")
		}
	case Kubernetes:
		if o.job.image == "" {
			return newError("orchestrator.job.image (RETRAIN_JOB_IMAGE) is required")
		}
	default:
		return newError("orchestrator.kind should be airflow or kubernetes, but %q", o.kind)
	}
	return nil
}

// Kubernetes Job to run retraining.
type JobConfig struct {
	image          string
	namespace      string
	command        []string
	serviceAccount string
}

func (j *JobConfig) Image() string {
	return j.image
}

// default = "default"
func (j *JobConfig) Namespace() string {
	return j.namespace
}

func (j *JobConfig) Command() []string {
	return append([]string{}, j.command...)
}

func (j *JobConfig) ServiceAccount() string {
	return j.serviceAccount
}
