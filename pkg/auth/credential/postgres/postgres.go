package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/opst/mlgate/pkg/auth"
	"github.com/opst/mlgate/pkg/auth/credential"
	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
)

// ErrConflict is returned by Put when the subject is already registered.
var ErrConflict = errors.New("credential already exists")

type pgStore struct {
	pool pool.Pool
}

// Store is credential.Store backed by the "credential" table.
type Store interface {
	credential.Store

	// Put registers a new credential. mlgate-useradd provisions users with it.
	//
	// When the subject is taken, it returns ErrConflict. Existing rows are never overwritten.
	Put(ctx context.Context, cred credential.Credential) error
}

func New(p pool.Pool) Store {
	return &pgStore{pool: p}
}

func (s *pgStore) Lookup(ctx context.Context, subject string) (credential.Credential, error) {
	var hash []byte
	var role string
	if err := s.pool.QueryRow(
		ctx,
		`select "secret_hash", "role" from "credential" where "subject" = $1`,
		subject,
	).Scan(&hash, &role); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return credential.Credential{}, credential.ErrMissing
		}
		return credential.Credential{}, err
	}

	r, err := auth.ParseRole(role)
	if err != nil {
		return credential.Credential{}, fmt.Errorf("credential of %q: %w", subject, err)
	}
	return credential.Credential{Subject: subject, SecretHash: hash, Role: r}, nil
}

func (s *pgStore) HasAdmin(ctx context.Context) (bool, error) {
	var found bool
	if err := s.pool.QueryRow(
		ctx,
		`select exists (select 1 from "credential" where "role" = $1)`,
		string(auth.Admin),
	).Scan(&found); err != nil {
		return false, err
	}
	return found, nil
}

func (s *pgStore) Put(ctx context.Context, cred credential.Credential) error {
	if cred.Subject == "" || len(cred.SecretHash) == 0 {
		return errors.New("credential: subject and secret hash are required")
	}
	role, err := auth.ParseRole(string(cred.Role))
	if err != nil {
		return err
	}

	if _, err := s.pool.Exec(
		ctx,
		`insert into "credential" ("subject", "secret_hash", "role") values ($1, $2, $3)`,
		cred.Subject, cred.SecretHash, string(role),
	); err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.UniqueViolation {
			return fmt.Errorf("%w: %s", ErrConflict, cred.Subject)
		}
		return err
	}
	return nil
}
