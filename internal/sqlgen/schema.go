package sqlgen

import (
	_ "embed"

	"github.com/roach88/overpassql/internal/dialect"
)

//go:embed schema_postgres.sql
var postgresSchema string

//go:embed schema_duckdb.sql
var duckdbSchema string

// Schema returns the DDL that creates the tables generated SQL reads.
// The scripts are idempotent.
func Schema(d dialect.Descriptor) string {
	if _, ok := d.(dialect.DuckDB); ok {
		return duckdbSchema
	}
	return postgresSchema
}
