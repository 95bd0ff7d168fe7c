// Package explain checks generated SQL against a live database by running
// EXPLAIN on every statement.
//
// PostgreSQL is reached through pgx's database/sql driver and DuckDB through
// go-duckdb. Both need the schema from sqlgen.Schema, which EnsureSchema
// installs.
package explain

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	_ "github.com/marcboeker/go-duckdb" // duckdb driver

	"github.com/roach88/overpassql/internal/dialect"
	"github.com/roach88/overpassql/internal/sqlgen"
)

// Plan is the EXPLAIN output for one statement.
type Plan struct {
	Statement string   `json:"statement" yaml:"statement"`
	Lines     []string `json:"plan" yaml:"plan"`
}

// Explainer runs EXPLAIN against one database.
type Explainer struct {
	db      *sql.DB
	dialect dialect.Descriptor
	logger  *slog.Logger
}

// Open connects to the database for dialectName.
//
// For postgres dsn is a pgx connection string (URL or key=value). For
// duckdb it is a database path; empty means an in-memory database.
func Open(ctx context.Context, dialectName, dsn string, logger *slog.Logger) (*Explainer, error) {
	if logger == nil {
		logger = slog.Default()
	}

	d, release, err := dialect.Build(dialectName, nil, nil)
	if err != nil {
		return nil, err
	}
	defer release()

	var db *sql.DB
	switch d.(type) {
	case dialect.Postgres:
		connConfig, err := pgx.ParseConfig(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
		}
		logger.Debug("connecting to postgres", slog.String("host", connConfig.Host), slog.String("database", connConfig.Database))
		db = stdlib.OpenDB(*connConfig)
	case dialect.DuckDB:
		path := dsn
		if path == "" {
			path = ":memory:"
		}
		logger.Debug("opening duckdb", slog.String("path", path))
		db, err = sql.Open("duckdb", path)
		if err != nil {
			return nil, fmt.Errorf("failed to open duckdb connection: %w", err)
		}
	}

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to ping %s: %w", d.Name(), err)
	}

	return &Explainer{db: db, dialect: d, logger: logger}, nil
}

// Close closes the database connection.
func (e *Explainer) Close() error {
	if e.db == nil {
		return nil
	}
	return e.db.Close()
}

// Dialect returns the dialect the explainer was opened for.
func (e *Explainer) Dialect() string {
	return e.dialect.Name()
}

// EnsureSchema creates the tables generated SQL reads, if missing.
func (e *Explainer) EnsureSchema(ctx context.Context) error {
	for _, stmt := range SplitStatements(sqlgen.Schema(e.dialect)) {
		if _, err := e.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema statement %q: %w", firstLine(stmt), err)
		}
	}
	return nil
}

// Explain runs EXPLAIN on one statement and returns the plan text.
func (e *Explainer) Explain(ctx context.Context, statement string) (Plan, error) {
	//nolint:rowserrcheck // rows.Err() is checked after iteration
	rows, err := e.db.QueryContext(ctx, "EXPLAIN "+statement)
	if err != nil {
		return Plan{}, fmt.Errorf("failed to explain statement: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return Plan{}, fmt.Errorf("failed to read plan columns: %w", err)
	}

	plan := Plan{Statement: statement}
	values := make([]sql.NullString, len(cols))
	dest := make([]any, len(cols))
	for i := range values {
		dest[i] = &values[i]
	}
	for rows.Next() {
		if err := rows.Scan(dest...); err != nil {
			return Plan{}, fmt.Errorf("failed to scan plan row: %w", err)
		}
		// DuckDB returns (explain_key, explain_value); the value is the plan.
		text := values[len(values)-1].String
		plan.Lines = append(plan.Lines, strings.Split(strings.TrimRight(text, "\n"), "\n")...)
	}
	if err := rows.Err(); err != nil {
		return Plan{}, fmt.Errorf("failed to read plan: %w", err)
	}
	return plan, nil
}

// ExplainAll explains each statement in order and stops at the first
// failure, reporting its 1-based index.
func (e *Explainer) ExplainAll(ctx context.Context, statements []string) ([]Plan, error) {
	plans := make([]Plan, 0, len(statements))
	for i, stmt := range statements {
		plan, err := e.Explain(ctx, stmt)
		if err != nil {
			return plans, fmt.Errorf("statement %d: %w", i+1, err)
		}
		e.logger.Debug("explained statement", "index", i+1, "lines", len(plan.Lines))
		plans = append(plans, plan)
	}
	return plans, nil
}

// SplitStatements splits a script into statements on semicolons that end a
// line, dropping "--" comment lines. It is meant for the schema scripts,
// which never contain semicolons inside literals.
func SplitStatements(script string) []string {
	var (
		out []string
		cur strings.Builder
	)
	for _, line := range strings.Split(script, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		if cur.Len() > 0 {
			cur.WriteByte('\n')
		}
		cur.WriteString(line)
		if strings.HasSuffix(trimmed, ";") {
			out = append(out, strings.TrimSuffix(strings.TrimSpace(cur.String()), ";"))
			cur.Reset()
		}
	}
	if rest := strings.TrimSpace(cur.String()); rest != "" {
		out = append(out, rest)
	}
	return out
}

func firstLine(s string) string {
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
