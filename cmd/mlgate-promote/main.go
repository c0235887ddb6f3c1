// mlgate-promote evaluates a newly trained model against the production one,
// and promotes it when it wins by the margin.
//
// It prints the decision as JSON. Exit status is 0 on PROMOTE or KEEP, 2 on conflict, and 1 on other errors.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/labstack/gommon/log"
	kcs "github.com/opst/mlgate/pkg/configs/server"
	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
	"github.com/opst/mlgate/pkg/conn/db/postgres/schema"
	"github.com/opst/mlgate/pkg/model/artifact"
	"github.com/opst/mlgate/pkg/promotion"
	"github.com/opst/mlgate/pkg/registry"
	"github.com/opst/mlgate/pkg/registry/filesystem"
	regpg "github.com/opst/mlgate/pkg/registry/postgres"
	"github.com/opst/mlgate/pkg/utils/echoutil"
)

const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr, os.Getenv)
	cancel()
	os.Exit(code)
}

type options struct {
	config     string
	challenger string
	register   string
	holdoutX   string
	holdoutY   string
	loglevel   string
}

func parse(args []string, stderr io.Writer, getenv func(string) string) (options, error) {
	opts := options{}
	fs := flag.NewFlagSet("mlgate-promote", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", getenv("MLGATE_CONFIG"), "path to config file (yaml). environment variables override it.")
	fs.StringVar(&opts.challenger, "challenger", "", "version of the challenger in the registry (a path, for registry on files)")
	fs.StringVar(&opts.register, "register", "", "path to an artifact. it is registered, then evaluated as the challenger")
	fs.StringVar(&opts.holdoutX, "holdout-x", "data/X_test.csv", "held-out features (csv with header)")
	fs.StringVar(&opts.holdoutY, "holdout-y", "data/y_test.csv", "held-out labels (csv with header)")
	fs.StringVar(&opts.loglevel, "loglevel", "info", "log level. debug|info|warn|error|off")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if (opts.challenger == "") == (opts.register == "") {
		fs.Usage()
		return opts, errors.New("either one of -challenger or -register is required")
	}
	return opts, nil
}

func run(ctx context.Context, args []string, stdout io.Writer, stderr io.Writer, getenv func(string) string) int {
	opts, err := parse(args, stderr, getenv)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	logger := log.New("mlgate-promote")
	logger.SetOutput(stderr)
	echoutil.SetLoggerLevel(logger, opts.loglevel)

	conf, err := kcs.Load(opts.config, getenv)
	if err != nil {
		logger.Errorf("can not read configuration: %s", err)
		return exitError
	}

	reg, closer, err := openRegistry(ctx, conf)
	if err != nil {
		logger.Errorf("can not open registry: %s", err)
		return exitError
	}
	defer closer()

	challenger := opts.challenger
	if opts.register != "" {
		v, err := register(ctx, reg, opts.register)
		if err != nil {
			logger.Errorf("can not register %s: %s", opts.register, err)
			return exitError
		}
		logger.Infof("registered %s as version %s", opts.register, v)
		challenger = v
	}

	engine, err := promotion.NewEngine(
		reg, conf.Model().ProductionAlias(), conf.Promotion().Margin(),
		promotion.CSVFiles{X: opts.holdoutX, Y: opts.holdoutY},
		logger,
	)
	if err != nil {
		logger.Error(err)
		return exitError
	}

	decision, err := engine.Evaluate(ctx, challenger)
	if err != nil {
		logger.Errorf("promotion is aborted: %s", err)
		if errors.Is(err, promotion.ErrPromotionConflict) {
			return exitConflict
		}
		return exitError
	}

	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	if err := enc.Encode(decision); err != nil {
		logger.Error(err)
		return exitError
	}
	return exitOK
}

// openRegistry opens the registry database when configured.
// Otherwise, aliases are files next to the fallback artifact.
func openRegistry(ctx context.Context, conf *kcs.Config) (registry.Registry, func(), error) {
	url := conf.Database()
	if url == "" {
		return filesystem.New(filepath.Dir(conf.Model().FallbackPath())), func() {}, nil
	}

	p, err := pool.Connect(ctx, url)
	if err != nil {
		return nil, nil, err
	}
	if err := schema.Migrate(ctx, p); err != nil {
		p.Close()
		return nil, nil, err
	}
	return regpg.New(p, conf.Model().Name()), p.Close, nil
}

// register puts the artifact at path into reg, and returns its version.
//
// Registries which cannot register (files) take the absolute path as the version.
func register(ctx context.Context, reg registry.Registry, path string) (string, error) {
	payload, err := os.ReadFile(path)
	if err != nil {
		return "", err
	}
	a, err := artifact.Decode(payload)
	if err != nil {
		return "", err
	}

	r, ok := reg.(registry.Registrar)
	if !ok {
		return filepath.Abs(path)
	}
	entry, err := r.Register(ctx, payload, a.FeatureNames())
	if err != nil {
		return "", err
	}
	return entry.Version, nil
}
