package schema

import (
	"context"
	_ "embed"

	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
)

//go:embed schema.sql
var ddl string

// Tables lists tables created by Migrate, in the order to be truncated.
var Tables = []string{"model_alias", "model_version", "credential"}

// Migrate creates tables when they do not exist.
//
// It is safe to call repeatedly.
func Migrate(ctx context.Context, conn pool.Queryer) error {
	_, err := conn.Exec(ctx, ddl)
	return err
}
