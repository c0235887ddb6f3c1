package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/labstack/gommon/log"
	"github.com/opst/mlgate/pkg/auth/credential"
	kcs "github.com/opst/mlgate/pkg/configs/server"
	"github.com/opst/mlgate/pkg/model/resolver"
	"github.com/opst/mlgate/pkg/utils/echoutil"
)

func main() {
	os.Exit(run())
}

func run() int {
	pconfig := flag.String("config", os.Getenv("MLGATE_CONFIG"), "path to config file (yaml). environment variables override it.")
	loglevel := flag.String("loglevel", "info", "log level. debug|info|warn|error|off")
	kubeconfig := flag.String("kubeconfig", "", "path to kubeconfig. used when orchestrator is kubernetes.")
	flag.Parse()

	logger := log.New("mlgated")
	echoutil.SetLoggerLevel(logger, *loglevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	conf, err := kcs.Load(*pconfig, os.Getenv)
	if err != nil {
		logger.Fatalf("can not read configuration: %s", err)
	}

	authority, err := newAuthority(conf.Auth())
	if err != nil {
		logger.Fatalf("can not start token authority: %s", err)
	}

	db, err := connect(ctx, conf.Database(), logger)
	if err != nil {
		logger.Fatalf("can not connect to database: %s", err)
	}
	if db != nil {
		defer db.Close()
	}

	verifier, err := credential.NewVerifier(newCredentialStore(conf.Auth(), db), authority, logger)
	if err != nil {
		logger.Fatalf("can not start credential verifier: %s", err)
	}

	models := resolver.NewHolder(
		resolver.New(logger, newStrategies(conf.Model(), newRegistry(conf.Model(), db))),
		logger,
	)
	if h, _ := models.Refresh(ctx); !h.Loaded() {
		logger.Warn("no model is loaded. /predict responds 503 until a model is resolved.")
	}

	trigger, dispatcher := newRetrain(conf.Orchestrator(), *kubeconfig, logger)

	server := BuildServer(Dependencies{
		Logger:        logger,
		Authenticator: verifier,
		Authorizer:    authority,
		Models:        models,
		Retrain:       trigger,
	})
	for _, r := range server.Routes() {
		server.Logger.Debugf("- mount handler: %s %s", strings.ToUpper(r.Method), r.Path)
	}

	watching := make(chan error, 1)
	go func() {
		defer close(watching)
		watching <- models.Watch(ctx, conf.Model().RefreshInterval(), watchTargets(conf.Model())...)
	}()

	ch := make(chan error, 1)
	go func() {
		defer close(ch)
		if err := server.Start(fmt.Sprintf(":%d", conf.Port())); err != nil && !errors.Is(err, http.ErrServerClosed) {
			ch <- err
		}
	}()

	exit := 0
	select {
	case <-ctx.Done():
		server.Logger.Infof("context has been done: %s, cause: %s", ctx.Err(), context.Cause(ctx))
	case err := <-ch:
		if err != nil {
			server.Logger.Error("server stops with error:", err)
			exit = 1
		}
	}

	{
		server.Logger.Info("shutting down...")
		qctx, qcancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer qcancel()

		if err := server.Shutdown(qctx); err != nil {
			server.Logger.Errorf("shutdown with error. %+v", err)
			exit = 1
		}
		if dispatcher != nil {
			if err := dispatcher.Stop(qctx); err != nil {
				server.Logger.Errorf("retrain dispatcher does not stop cleanly. %+v", err)
				exit = 1
			}
		}

		cancel()
		if err := <-watching; err != nil {
			server.Logger.Errorf("model watcher stops with error. %+v", err)
		}
	}
	return exit
}
