package testenv

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"

	"github.com/opst/mlgate/pkg/conn/db/postgres/pool"
	"github.com/opst/mlgate/pkg/conn/db/postgres/schema"
)

// EnvDatabaseURL names the environment variable to point a database for tests.
const EnvDatabaseURL = "MLGATE_TEST_DATABASE_URL"

// GetPool returns a pool connected to the test database, with empty tables.
//
// Tables are cleaned up again after t. When the database is not given, t is skipped.
func GetPool(ctx context.Context, t *testing.T) pool.Pool {
	t.Helper()

	url := os.Getenv(EnvDatabaseURL)
	if url == "" {
		t.Skipf("%s is not set", EnvDatabaseURL)
	}

	p, err := pool.Connect(ctx, url)
	if err != nil {
		t.Fatalf("cannot connect to test database: %v", err)
	}
	if err := schema.Migrate(ctx, p); err != nil {
		p.Close()
		t.Fatalf("cannot migrate test database: %v", err)
	}

	ClearTables(ctx, t, p)
	t.Cleanup(func() {
		ClearTables(context.Background(), t, p)
		p.Close()
	})
	return p
}

func ClearTables(ctx context.Context, t *testing.T, conn pool.Queryer) {
	t.Helper()
	quoted := make([]string, len(schema.Tables))
	for i, tbl := range schema.Tables {
		quoted[i] = fmt.Sprintf(`"%s"`, tbl)
	}
	if _, err := conn.Exec(ctx, "truncate "+strings.Join(quoted, ", ")); err != nil {
		t.Fatalf("cannot clear tables: %v", err)
	}
}
