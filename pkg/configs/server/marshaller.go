package server

import (
	"errors"
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"
	"gopkg.in/yaml.v3"
)

// ErrConfiguration is an operational misconfiguration, not a client error.
var ErrConfiguration = errors.New("configuration error")

func newError(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}

// Load reads configuration from a yaml file, then overrides it with environment variables.
//
// args:
//   - filepath: path to yaml file. When empty, only environment variables are used.
//   - getenv: lookup function for environment variables, like os.Getenv.
//
// returns *Config, error:
//
//	When loading success, returns `(*Config, nil)`.
//	Otherwise, returns `(nil, error)` wrapping ErrConfiguration.
func Load(filepath string, getenv func(string) string) (*Config, error) {
	m := &ConfigMarshall{}
	if filepath != "" {
		content, err := os.ReadFile(filepath)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
		}
		if m, err = Unmarshal(content); err != nil {
			return nil, err
		}
	}
	if err := m.Overlay(getenv); err != nil {
		return nil, err
	}
	return m.TrySeal()
}

func Unmarshal(conf []byte) (*ConfigMarshall, error) {
	out := &ConfigMarshall{}
	if err := yaml.Unmarshal(conf, out); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	return out, nil
}

// Configuration of mlgate.
//
// This type is marshalling value and mutable.
// Consider to use immutable version, Config, which is returned from TrySeal.
type ConfigMarshall struct {
	Port         int                         `yaml:"port,omitempty"`
	Database     string                      `yaml:"database,omitempty"`
	Auth         *AuthConfigMarshall         `yaml:"auth,omitempty"`
	Model        *ModelConfigMarshall        `yaml:"model,omitempty"`
	Promotion    *PromotionConfigMarshall    `yaml:"promotion,omitempty"`
	Orchestrator *OrchestratorConfigMarshall `yaml:"orchestrator,omitempty"`
}

type AuthConfigMarshall struct {
	AdminUsername     string `yaml:"adminUsername,omitempty"`
	AdminPasswordHash string `yaml:"adminPasswordHash,omitempty"`
	SecretKey         string `yaml:"secretKey,omitempty"`
	PreviousSecretKey string `yaml:"previousSecretKey,omitempty"`
	Algorithm         string `yaml:"algorithm,omitempty"`
	TokenTTL          string `yaml:"tokenTTL,omitempty"`
}

type ModelConfigMarshall struct {
	Name            string `yaml:"name,omitempty"`
	ProductionAlias string `yaml:"productionAlias,omitempty"`
	FallbackPath    string `yaml:"fallbackPath,omitempty"`
	RefreshInterval string `yaml:"refreshInterval,omitempty"`
}

type PromotionConfigMarshall struct {
	Margin *float64 `yaml:"margin,omitempty"`
}

type OrchestratorConfigMarshall struct {
	Kind             string             `yaml:"kind,omitempty"`
	URL              string             `yaml:"url,omitempty"`
	User             string             `yaml:"user,omitempty"`
	Password         string             `yaml:"password,omitempty"`
	DagID            string             `yaml:"dagId,omitempty"`
	Timeout          string             `yaml:"timeout,omitempty"`
	RunIDGranularity string             `yaml:"runIdGranularity,omitempty"`
	DedupeWindow     string             `yaml:"dedupeWindow,omitempty"`
	Workers          int                `yaml:"workers,omitempty"`
	QueueSize        int                `yaml:"queueSize,omitempty"`
	Job              *JobConfigMarshall `yaml:"job,omitempty"`
}

type JobConfigMarshall struct {
	Image          string   `yaml:"image,omitempty"`
	Namespace      string   `yaml:"namespace,omitempty"`
	Command        []string `yaml:"command,omitempty"`
	ServiceAccount string   `yaml:"serviceAccount,omitempty"`
}

// fill nil sections with empty ones.
func (c *ConfigMarshall) ensure() {
	if c.Auth == nil {
		c.Auth = &AuthConfigMarshall{}
	}
	if c.Model == nil {
		c.Model = &ModelConfigMarshall{}
	}
	if c.Promotion == nil {
		c.Promotion = &PromotionConfigMarshall{}
	}
	if c.Orchestrator == nil {
		c.Orchestrator = &OrchestratorConfigMarshall{}
	}
	if c.Orchestrator.Job == nil {
		c.Orchestrator.Job = &JobConfigMarshall{}
	}
}

// Overlay overrides values with environment variables which are not empty.
func (c *ConfigMarshall) Overlay(getenv func(string) string) error {
	c.ensure()

	str := func(env string, dest *string) {
		if v := getenv(env); v != "" {
			*dest = v
		}
	}

	if v := getenv("SERVER_PORT"); v != "" {
		p, err := strconv.Atoi(v)
		if err != nil {
			return newError("SERVER_PORT should be a number: %q", v)
		}
		c.Port = p
	}
	str("DATABASE_URL", &c.Database)

	str("ADMIN_USERNAME", &c.Auth.AdminUsername)
	str("ADMIN_PASSWORD_HASH", &c.Auth.AdminPasswordHash)
	str("SECRET_KEY", &c.Auth.SecretKey)
	str("PREVIOUS_SECRET_KEY", &c.Auth.PreviousSecretKey)
	str("ALGORITHM", &c.Auth.Algorithm)
	if v := getenv("ACCESS_TOKEN_EXPIRE_MINUTES"); v != "" {
		m, err := strconv.Atoi(v)
		if err != nil {
			return newError("ACCESS_TOKEN_EXPIRE_MINUTES should be a number: %q", v)
		}
		c.Auth.TokenTTL = (time.Duration(m) * time.Minute).String()
	}

	str("MODEL_NAME", &c.Model.Name)
	str("PRODUCTION_ALIAS", &c.Model.ProductionAlias)
	str("FALLBACK_MODEL_PATH", &c.Model.FallbackPath)
	str("MODEL_REFRESH_INTERVAL", &c.Model.RefreshInterval)

	if v := getenv("PROMOTION_MARGIN"); v != "" {
		f, err := strconv.ParseFloat(v, 64)
		if err != nil {
			return newError("PROMOTION_MARGIN should be a number: %q", v)
		}
		c.Promotion.Margin = &f
	}

	str("ORCHESTRATOR", &c.Orchestrator.Kind)
	str("ORCHESTRATOR_URL", &c.Orchestrator.URL)
	str("AIRFLOW_API_USER", &c.Orchestrator.User)
	str("AIRFLOW_API_PASS", &c.Orchestrator.Password)
	str("AIRFLOW_DAG_ID", &c.Orchestrator.DagID)
	str("ORCHESTRATOR_TIMEOUT", &c.Orchestrator.Timeout)
	str("RETRAIN_JOB_IMAGE", &c.Orchestrator.Job.Image)
	str("RETRAIN_JOB_NAMESPACE", &c.Orchestrator.Job.Namespace)
	return nil
}

// verify configuration values and create "readonly" version of this.
//
// Missing values are filled with defaults, except secrets.
// Secrets never have defaults; see AuthConfig.SigningKey and OrchestratorConfig.Validate.
func (c *ConfigMarshall) TrySeal() (*Config, error) {
	c.ensure()

	port := c.Port
	if port == 0 {
		port = 8000
	}
	if port < 0 || 65535 < port {
		return nil, newError("(root).port is out of range: %d", port)
	}

	a, err := c.Auth.trySeal("(root).auth")
	if err != nil {
		return nil, err
	}
	m, err := c.Model.trySeal("(root).model")
	if err != nil {
		return nil, err
	}
	p, err := c.Promotion.trySeal("(root).promotion")
	if err != nil {
		return nil, err
	}
	o, err := c.Orchestrator.trySeal("(root).orchestrator")
	if err != nil {
		return nil, err
	}

	return &Config{
		port:         port,
		database:     c.Database,
		auth:         a,
		model:        m,
		promotion:    p,
		orchestrator: o,
	}, nil
}

func (a *AuthConfigMarshall) trySeal(path string) (*AuthConfig, error) {
	if a.AdminPasswordHash != "" {
		if _, err := bcrypt.Cost([]byte(a.AdminPasswordHash)); err != nil {
			return nil, newError("%s.adminPasswordHash is not a bcrypt hash", path)
		}
	}

	alg := strings.ToUpper(a.Algorithm)
	if alg == "" {
		alg = "HS256"
	}

	ttl, err := duration(a.TokenTTL, 30*time.Minute, path+".tokenTTL")
	if err != nil {
		return nil, err
	}
	if ttl <= 0 {
		return nil, newError("%s.tokenTTL should be positive", path)
	}

	return &AuthConfig{
		adminUsername:     a.AdminUsername,
		adminPasswordHash: a.AdminPasswordHash,
		signingKey:        a.SecretKey,
		previousKey:       a.PreviousSecretKey,
		algorithm:         alg,
		tokenTTL:          ttl,
	}, nil
}

func (m *ModelConfigMarshall) trySeal(path string) (*ModelConfig, error) {
	interval, err := duration(m.RefreshInterval, time.Minute, path+".refreshInterval")
	if err != nil {
		return nil, err
	}
	if interval < 0 {
		return nil, newError("%s.refreshInterval should not be negative", path)
	}
	return &ModelConfig{
		name:            orDefault(m.Name, "classifier"),
		productionAlias: orDefault(m.ProductionAlias, "production"),
		fallbackPath:    orDefault(m.FallbackPath, "models/model.json"),
		refreshInterval: interval,
	}, nil
}

func (p *PromotionConfigMarshall) trySeal(path string) (*PromotionConfig, error) {
	margin := 0.01
	if p.Margin != nil {
		margin = *p.Margin
	}
	if math.IsNaN(margin) || math.IsInf(margin, 0) || margin < 0 {
		return nil, newError("%s.margin should be a non-negative number: %v", path, margin)
	}
	return &PromotionConfig{margin: margin}, nil
}

func (o *OrchestratorConfigMarshall) trySeal(path string) (*OrchestratorConfig, error) {
	timeout, err := duration(o.Timeout, 30*time.Second, path+".timeout")
	if err != nil {
		return nil, err
	}
	granularity, err := duration(o.RunIDGranularity, time.Second, path+".runIdGranularity")
	if err != nil {
		return nil, err
	}
	window, err := duration(o.DedupeWindow, 10*time.Minute, path+".dedupeWindow")
	if err != nil {
		return nil, err
	}
	if timeout <= 0 || granularity <= 0 || window < 0 {
		return nil, newError("%s: timeout and runIdGranularity should be positive", path)
	}

	workers := o.Workers
	if workers <= 0 {
		workers = 2
	}
	queue := o.QueueSize
	if queue <= 0 {
		queue = 16
	}

	return &OrchestratorConfig{
		kind:             OrchestratorKind(strings.ToLower(orDefault(o.Kind, string(Airflow)))),
		url:              o.URL,
		user:             o.User,
		password:         o.Password,
		dagID:            orDefault(o.DagID, "dvc_pipeline"),
		timeout:          timeout,
		runIDGranularity: granularity,
		dedupeWindow:     window,
		workers:          workers,
		queueSize:        queue,
		job: &JobConfig{
			image:          o.Job.Image,
			namespace:      orDefault(o.Job.Namespace, "default"),
			command:        append([]string{}, o.Job.Command...),
			serviceAccount: o.Job.ServiceAccount,
		},
	}, nil
}

func orDefault(v string, d string) string {
	if v == "" {
		return d
	}
	return v
}

func duration(v string, d time.Duration, path string) (time.Duration, error) {
	if v == "" {
		return d, nil
	}
	dur, err := time.ParseDuration(v)
	if err != nil {
		return 0, newError("%s should be a duration (like 30s): %q", path, v)
	}
	return dur, nil
}
