package main

import (
	"context"
	"fmt"
	"path/filepath"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/opst/mlgate/pkg/auth/credential"
	credpg "github.com/opst/mlgate/pkg/auth/credential/postgres"
	"github.com/opst/mlgate/pkg/auth/token"
	"github.com/opst/mlgate/pkg/auth/token/key"
	kcs "github.com/opst/mlgate/pkg/configs/server"
	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
	"github.com/opst/mlgate/pkg/conn/db/postgres/schema"
	"github.com/opst/mlgate/pkg/kubeutil"
	"github.com/opst/mlgate/pkg/model/resolver"
	"github.com/opst/mlgate/pkg/registry"
	"github.com/opst/mlgate/pkg/registry/filesystem"
	regpg "github.com/opst/mlgate/pkg/registry/postgres"
	"github.com/opst/mlgate/pkg/retrain"
	"github.com/opst/mlgate/pkg/retrain/airflow"
	"github.com/opst/mlgate/pkg/retrain/k8sjob"
	"github.com/opst/mlgate/pkg/utils/retry"
	k8s "k8s.io/client-go/kubernetes"
)

const connectAttempts = 5

// newAuthority builds the token authority. A missing or weak signing key is fatal.
func newAuthority(conf *kcs.AuthConfig) (*token.Authority, error) {
	secret, err := conf.SigningKey()
	if err != nil {
		return nil, err
	}
	signing, err := key.HMAC(conf.Algorithm(), []byte(secret))
	if err != nil {
		return nil, fmt.Errorf("%w: signing key: %w", kcs.ErrConfiguration, err)
	}

	verifyOnly := []key.Key{}
	if prev := conf.PreviousSigningKey(); prev != "" {
		k, err := key.HMAC(conf.Algorithm(), []byte(prev))
		if err != nil {
			return nil, fmt.Errorf("%w: previous signing key: %w", kcs.ErrConfiguration, err)
		}
		verifyOnly = append(verifyOnly, k)
	}

	return token.New(token.NewKeychain(signing, verifyOnly...), conf.TokenTTL()), nil
}

// newCredentialStore returns the admin from configuration, followed by users in the database if any.
func newCredentialStore(conf *kcs.AuthConfig, p pool.Pool) credential.Store {
	env := credential.EnvStore(conf.AdminUsername(), conf.AdminPasswordHash())
	if p == nil {
		return env
	}
	return credential.Chain(env, credpg.New(p))
}

// newRegistry returns the registry database when configured.
// Otherwise, aliases are files next to the fallback artifact.
//
// It returns nil when neither is available.
func newRegistry(conf *kcs.ModelConfig, p pool.Pool) registry.Registry {
	if p != nil {
		return regpg.New(p, conf.Name())
	}
	if fb := conf.FallbackPath(); fb != "" {
		return filesystem.New(filepath.Dir(fb))
	}
	return nil
}

func newStrategies(conf *kcs.ModelConfig, reg registry.Registry) []resolver.Strategy {
	strategies := []resolver.Strategy{}
	if reg != nil {
		strategies = append(strategies, resolver.FromRegistry(reg, conf.ProductionAlias()))
	}
	if fb := conf.FallbackPath(); fb != "" {
		strategies = append(strategies, resolver.FromFile(fb))
	}
	return strategies
}

// directories to be watched for model changes.
func watchTargets(conf *kcs.ModelConfig) []string {
	if fb := conf.FallbackPath(); fb != "" {
		return []string{filepath.Dir(fb)}
	}
	return nil
}

// newOrchestrator connects to the orchestrator in configuration.
//
// connectK8s is called only when the orchestrator is kubernetes.
func newOrchestrator(conf *kcs.OrchestratorConfig, connectK8s func() (k8s.Interface, error)) (retrain.Orchestrator, error) {
	if err := conf.Validate(); err != nil {
		return nil, err
	}

	switch conf.Kind() {
	case kcs.Kubernetes:
		clientset, err := connectK8s()
		if err != nil {
			return nil, fmt.Errorf("%w: cannot connect to kubernetes: %w", kcs.ErrConfiguration, err)
		}
		job := conf.Job()
		return k8sjob.New(clientset, k8sjob.Spec{
			Image:          job.Image(),
			Namespace:      job.Namespace(),
			Command:        job.Command(),
			ServiceAccount: job.ServiceAccount(),
		})
	default:
		orch, err := airflow.New(conf.URL(), conf.DagID(), conf.User(), conf.Password())
		if err != nil {
			return nil, fmt.Errorf("%w: %w", kcs.ErrConfiguration, err)
		}
		return orch, nil
	}
}

// newRetrain builds the retrain trigger.
//
// When the orchestrator is misconfigured, the trigger refuses every request with the reason,
// and the dispatcher is nil.
func newRetrain(conf *kcs.OrchestratorConfig, kubeconfig string, logger echo.Logger) (retrain.Requester, *retrain.Dispatcher) {
	orch, err := newOrchestrator(conf, func() (k8s.Interface, error) {
		return kubeutil.ConnectToK8s(kubeconfig)
	})
	if err != nil {
		logger.Warnf("retrain is not available: %s", err)
		return retrain.Refuse(err), nil
	}

	dispatcher := retrain.NewDispatcher(
		orch, logger,
		retrain.WithWorkers(conf.Workers()),
		retrain.WithQueueSize(conf.QueueSize()),
		retrain.WithDispatchTimeout(conf.Timeout()),
	)
	trigger := retrain.NewTrigger(
		retrain.RunIDs{Granularity: conf.RunIDGranularity()},
		dispatcher,
		conf.DedupeWindow(),
	)
	return trigger, dispatcher
}

// connect opens the database and prepares tables. It returns nil when url is empty.
//
// Connection is retried a few times, since the database may start later than us.
func connect(ctx context.Context, url string, logger echo.Logger) (pool.Pool, error) {
	if url == "" {
		return nil, nil
	}
	p, err := retry.Blocking(
		ctx, retry.Limited(retry.ExponentialBackoff(time.Second, 2), connectAttempts-1),
		func() (pool.Pool, error) {
			p, err := pool.Connect(ctx, url)
			if err != nil {
				logger.Warnf("database is not reachable: %s", err)
				return nil, fmt.Errorf("%w: %w", retry.ErrRetry, err)
			}
			return p, nil
		},
	)
	if err != nil {
		return nil, err
	}
	if err := schema.Migrate(ctx, p); err != nil {
		p.Close()
		return nil, err
	}
	return p, nil
}
