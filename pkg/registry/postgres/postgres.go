package postgres

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v4"
	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
	"github.com/opst/mlgate/pkg/registry"
)

type pgRegistry struct {
	pool pool.Pool
	name string
}

// New returns a registry of the model named name.
//
// Versions are sequence numbers (1, 2, ...) formatted in decimal.
func New(p pool.Pool, name string) registry.Registrar {
	return &pgRegistry{pool: p, name: name}
}

func parseVersion(version string) (int64, error) {
	v, err := strconv.ParseInt(version, 10, 64)
	if err != nil || v <= 0 {
		return 0, fmt.Errorf("%w: malformed version %q", registry.ErrMissing, version)
	}
	return v, nil
}

func (r *pgRegistry) Alias(ctx context.Context, alias string) (registry.Entry, error) {
	var version int64
	var payload []byte
	var names []string
	if err := r.pool.QueryRow(
		ctx,
		`
		select "v"."version", "v"."payload", "v"."feature_names"
		from "model_alias" as "a"
		inner join "model_version" as "v"
			on "a"."name" = "v"."name" and "a"."version" = "v"."version"
		where "a"."name" = $1 and "a"."alias" = $2
		`,
		r.name, alias,
	).Scan(&version, &payload, &names); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.Entry{}, fmt.Errorf("%w: alias %s@%s", registry.ErrMissing, r.name, alias)
		}
		return registry.Entry{}, err
	}
	return registry.Entry{
		Version:      strconv.FormatInt(version, 10),
		Payload:      payload,
		FeatureNames: names,
	}, nil
}

func (r *pgRegistry) Get(ctx context.Context, version string) (registry.Entry, error) {
	v, err := parseVersion(version)
	if err != nil {
		return registry.Entry{}, err
	}

	var payload []byte
	var names []string
	if err := r.pool.QueryRow(
		ctx,
		`select "payload", "feature_names" from "model_version" where "name" = $1 and "version" = $2`,
		r.name, v,
	).Scan(&payload, &names); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return registry.Entry{}, fmt.Errorf("%w: version %s/%d", registry.ErrMissing, r.name, v)
		}
		return registry.Entry{}, err
	}
	return registry.Entry{Version: strconv.FormatInt(v, 10), Payload: payload, FeatureNames: names}, nil
}

func (r *pgRegistry) SwapAlias(ctx context.Context, alias string, expected string, next string) error {
	n, err := parseVersion(next)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag
	if expected == "" {
		tag, err = r.pool.Exec(
			ctx,
			`
			insert into "model_alias" ("name", "alias", "version") values ($1, $2, $3)
			on conflict ("name", "alias") do nothing
			`,
			r.name, alias, n,
		)
	} else {
		e, perr := strconv.ParseInt(expected, 10, 64)
		if perr != nil {
			return fmt.Errorf("%w: alias %s@%s cannot be %q", registry.ErrConflict, r.name, alias, expected)
		}
		tag, err = r.pool.Exec(
			ctx,
			`
			update "model_alias" set "version" = $4, "updated_at" = now()
			where "name" = $1 and "alias" = $2 and "version" = $3
			`,
			r.name, alias, e, n,
		)
	}
	if err != nil {
		if pgerr := new(pgconn.PgError); errors.As(err, &pgerr) && pgerr.Code == pgerrcode.ForeignKeyViolation {
			return fmt.Errorf("%w: version %s/%d", registry.ErrMissing, r.name, n)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: alias %s@%s is not %q", registry.ErrConflict, r.name, alias, expected)
	}
	return nil
}

func (r *pgRegistry) Register(ctx context.Context, payload []byte, featureNames []string) (registry.Entry, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return registry.Entry{}, err
	}
	defer tx.Rollback(ctx)

	// serialize registrations of the same model name.
	if _, err := tx.Exec(ctx, `select pg_advisory_xact_lock(hashtext($1))`, r.name); err != nil {
		return registry.Entry{}, err
	}

	var version int64
	if err := tx.QueryRow(
		ctx,
		`
		insert into "model_version" ("name", "version", "payload", "feature_names")
		select $1, coalesce(max("version"), 0) + 1, $2, $3
		from "model_version" where "name" = $1
		returning "version"
		`,
		r.name, payload, featureNames,
	).Scan(&version); err != nil {
		return registry.Entry{}, err
	}

	if err := tx.Commit(ctx); err != nil {
		return registry.Entry{}, err
	}
	return registry.Entry{
		Version:      strconv.FormatInt(version, 10),
		Payload:      payload,
		FeatureNames: featureNames,
	}, nil
}
