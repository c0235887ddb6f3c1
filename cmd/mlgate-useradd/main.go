// mlgate-useradd registers a user into the credential database of mlgated.
//
// The password is read from the first line of stdin, and stored as a bcrypt hash.
// Exit status is 0 on success, 2 when the user already exists, and 1 on other errors.
package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/labstack/gommon/log"
	"github.com/opst/mlgate/pkg/auth"
	"github.com/opst/mlgate/pkg/auth/credential"
	credpg "github.com/opst/mlgate/pkg/auth/credential/postgres"
	kcs "github.com/opst/mlgate/pkg/configs/server"
	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
	"github.com/opst/mlgate/pkg/conn/db/postgres/schema"
	"github.com/opst/mlgate/pkg/utils/echoutil"
)

const (
	exitOK       = 0
	exitError    = 1
	exitConflict = 2
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdin, os.Stderr, os.Getenv)
	cancel()
	os.Exit(code)
}

type options struct {
	config   string
	username string
	role     auth.Role
	loglevel string
}

func parse(args []string, stderr io.Writer, getenv func(string) string) (options, error) {
	opts := options{}
	var role string
	fs := flag.NewFlagSet("mlgate-useradd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.config, "config", getenv("MLGATE_CONFIG"), "path to config file (yaml). environment variables override it.")
	fs.StringVar(&opts.username, "username", "", "name of the new user")
	fs.StringVar(&role, "role", string(auth.User), "role of the new user. user|admin")
	fs.StringVar(&opts.loglevel, "loglevel", "info", "log level. debug|info|warn|error|off")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}
	if opts.username == "" {
		fs.Usage()
		return opts, errors.New("-username is required")
	}
	r, err := auth.ParseRole(role)
	if err != nil {
		return opts, err
	}
	opts.role = r
	return opts, nil
}

// readPassword returns the first line of r.
func readPassword(r io.Reader) (string, error) {
	line, err := bufio.NewReader(r).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", err
	}
	password := strings.TrimRight(line, "\r\n")
	if password == "" {
		return "", errors.New("password is empty")
	}
	return password, nil
}

func run(ctx context.Context, args []string, stdin io.Reader, stderr io.Writer, getenv func(string) string) int {
	opts, err := parse(args, stderr, getenv)
	if err != nil {
		fmt.Fprintln(stderr, err)
		return exitError
	}

	logger := log.New("mlgate-useradd")
	logger.SetOutput(stderr)
	echoutil.SetLoggerLevel(logger, opts.loglevel)

	conf, err := kcs.Load(opts.config, getenv)
	if err != nil {
		logger.Errorf("can not read configuration: %s", err)
		return exitError
	}
	url := conf.Database()
	if url == "" {
		logger.Errorf("%s: DATABASE_URL is required to store users", kcs.ErrConfiguration)
		return exitError
	}

	password, err := readPassword(stdin)
	if err != nil {
		logger.Errorf("can not read password: %s", err)
		return exitError
	}
	hash, err := credential.HashSecret(password)
	if err != nil {
		logger.Error(err)
		return exitError
	}

	p, err := pool.Connect(ctx, url)
	if err != nil {
		logger.Errorf("can not connect to database: %s", err)
		return exitError
	}
	defer p.Close()
	if err := schema.Migrate(ctx, p); err != nil {
		logger.Errorf("can not migrate database: %s", err)
		return exitError
	}

	if err := credpg.New(p).Put(ctx, credential.Credential{
		Subject: opts.username, SecretHash: hash, Role: opts.role,
	}); err != nil {
		logger.Errorf("can not add %s: %s", opts.username, err)
		if errors.Is(err, credpg.ErrConflict) {
			return exitConflict
		}
		return exitError
	}
	logger.Infof("user %s is added as %s", opts.username, opts.role)
	return exitOK
}
