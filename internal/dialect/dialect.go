// Package dialect describes the SQL flavours the compiler can target.
//
// A Descriptor is a closed variant: Postgres or DuckDB. Only Postgres
// accepts a custom literal escaping function; Build registers that function
// in a callback.Registry and the descriptor reaches it through its handle.
package dialect

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/roach88/overpassql/internal/callback"
)

const (
	NamePostgres = "postgres"
	NameDuckDB   = "duckdb"
)

// Names returns the recognised dialect names in sorted order.
func Names() []string {
	return []string{NameDuckDB, NamePostgres}
}

// Descriptor is the compilation target.
//
// This is a sealed interface - only types in this package implement it.
type Descriptor interface {
	// Name returns the dialect name accepted by Build.
	Name() string

	// SupportsCustomEscape reports whether the dialect honours a host escape function.
	SupportsCustomEscape() bool

	// Literal renders s as an SQL string literal.
	Literal(s string) (string, error)

	descriptor() // Marker method - seals interface to this package
}

// Postgres targets PostgreSQL with PostGIS and jsonb tags.
// Escape is nil when the default quoting applies.
type Postgres struct {
	Escape   *callback.Handle
	registry *callback.Registry
}

func (Postgres) descriptor() {}

// Name implements Descriptor.
func (Postgres) Name() string { return NamePostgres }

// SupportsCustomEscape implements Descriptor.
func (Postgres) SupportsCustomEscape() bool { return true }

// Literal quotes s through the registered escape function, or with
// standard SQL quoting when there is none. The escape function's output is
// used unchanged.
func (d Postgres) Literal(s string) (string, error) {
	if d.Escape == nil {
		return QuoteLiteral(s), nil
	}
	if d.registry == nil {
		return "", fmt.Errorf("postgres escape handle %d: %w", uint64(*d.Escape), callback.ErrUnknownHandle)
	}
	return d.registry.Invoke(*d.Escape, s)
}

// DuckDB targets DuckDB with the spatial extension and JSON tags.
type DuckDB struct{}

func (DuckDB) descriptor() {}

// Name implements Descriptor.
func (DuckDB) Name() string { return NameDuckDB }

// SupportsCustomEscape implements Descriptor.
func (DuckDB) SupportsCustomEscape() bool { return false }

// Literal implements Descriptor.
func (DuckDB) Literal(s string) (string, error) {
	return QuoteLiteral(s), nil
}

// QuoteLiteral renders s as a standard SQL string literal, doubling single quotes.
func QuoteLiteral(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// Build returns the descriptor for name.
//
// When escape is non-nil and the dialect supports it, escape is registered
// in reg and the returned release function removes it again. The caller must
// defer release; it is never nil on success. For duckdb the escape function
// is ignored and a warning is logged. Unknown names return *UnsupportedError
// and register nothing.
func Build(name string, escape callback.Func, reg *callback.Registry) (Descriptor, func(), error) {
	switch name {
	case NamePostgres:
		if escape == nil {
			return Postgres{}, func() {}, nil
		}
		h := reg.Register(escape)
		return Postgres{Escape: &h, registry: reg}, func() { reg.Release(h) }, nil
	case NameDuckDB:
		if escape != nil {
			slog.Warn("escape function ignored: dialect does not support custom escaping", "dialect", name)
		}
		return DuckDB{}, func() {}, nil
	default:
		slog.Debug("unsupported dialect", "dialect", name)
		return nil, nil, &UnsupportedError{Name: name}
	}
}

// UnsupportedError reports a dialect name that Build does not recognise.
type UnsupportedError struct {
	Name string
}

func (e *UnsupportedError) Error() string {
	return fmt.Sprintf("unsupported SQL dialect %q (supported: %s)", e.Name, strings.Join(Names(), ", "))
}
