package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"errors"
	"fmt"
)

// keyDomain separates compile cache keys from any other hash in the system.
const keyDomain = "overpassql/compile/v1"

// Entry is one cached compilation.
type Entry struct {
	Key        string
	Dialect    string
	SRID       string
	Source     string
	Statements []string
	Seq        int64
	Hits       int64
}

// Key computes the cache key for a compilation.
func Key(dialect, srid, source string) string {
	h := sha256.New()
	h.Write([]byte(keyDomain))
	for _, part := range []string{dialect, srid, source} {
		h.Write([]byte{0x00}) // Null separator
		h.Write([]byte(part))
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Get returns the entry stored under key and records a hit.
// The boolean is false when no entry exists.
func (s *Store) Get(ctx context.Context, key string) (Entry, bool, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT key, dialect, srid, source, statements, seq, hits
		FROM compilations
		WHERE key = ?
	`, key)

	e, err := scanEntry(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, fmt.Errorf("get %s: %w", key, err)
	}

	if _, err := s.db.ExecContext(ctx, `UPDATE compilations SET hits = hits + 1 WHERE key = ?`, key); err != nil {
		return Entry{}, false, fmt.Errorf("record hit %s: %w", key, err)
	}
	e.Hits++
	return e, true, nil
}

// Put stores an entry. The key is computed from the entry's dialect, SRID
// and source; e.Key, e.Seq and e.Hits are ignored.
// Uses ON CONFLICT(key) DO NOTHING: an existing entry is never replaced.
func (s *Store) Put(ctx context.Context, e Entry) error {
	statements, err := marshalStatements(e.Statements)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}

	// WHERE true disambiguates the upsert clause after INSERT ... SELECT.
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO compilations (key, dialect, srid, source, statements, seq)
		SELECT ?, ?, ?, ?, ?, COALESCE(MAX(seq), 0) + 1 FROM compilations
		WHERE true
		ON CONFLICT(key) DO NOTHING
	`,
		Key(e.Dialect, e.SRID, e.Source),
		e.Dialect,
		e.SRID,
		e.Source,
		statements,
	)
	if err != nil {
		return fmt.Errorf("put: %w", err)
	}
	return nil
}

// List returns the entries for a dialect, or every entry when dialect is
// empty, ordered by seq ASC, key COLLATE BINARY ASC.
func (s *Store) List(ctx context.Context, dialect string) ([]Entry, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT key, dialect, srid, source, statements, seq, hits
		FROM compilations
		WHERE ? = '' OR dialect = ?
		ORDER BY seq ASC, key COLLATE BINARY ASC
	`, dialect, dialect)
	if err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	defer rows.Close()

	var entries []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("list: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list: %w", err)
	}
	return entries, nil
}

// Purge deletes the entries for a dialect, or every entry when dialect is
// empty, and returns how many were removed.
func (s *Store) Purge(ctx context.Context, dialect string) (int64, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM compilations WHERE ? = '' OR dialect = ?`, dialect, dialect)
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("purge: %w", err)
	}
	return n, nil
}

// CompileFunc produces statements on a cache miss.
type CompileFunc func() ([]string, error)

// GetOrCompile returns the cached statements for (dialect, srid, source),
// calling compile and storing its result on a miss. The boolean reports a
// cache hit. Errors from compile are returned unchanged and nothing is
// stored.
func (s *Store) GetOrCompile(ctx context.Context, dialect, srid, source string, compile CompileFunc) ([]string, bool, error) {
	key := Key(dialect, srid, source)

	e, ok, err := s.Get(ctx, key)
	if err != nil {
		return nil, false, err
	}
	if ok {
		s.logger.Debug("compile cache hit", "key", key[:12], "dialect", dialect, "hits", e.Hits)
		return e.Statements, true, nil
	}

	s.logger.Debug("compile cache miss", "key", key[:12], "dialect", dialect)
	statements, err := compile()
	if err != nil {
		return nil, false, err
	}
	if err := s.Put(ctx, Entry{Dialect: dialect, SRID: srid, Source: source, Statements: statements}); err != nil {
		return nil, false, err
	}
	return statements, false, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var (
		e          Entry
		statements string
	)
	if err := row.Scan(&e.Key, &e.Dialect, &e.SRID, &e.Source, &statements, &e.Seq, &e.Hits); err != nil {
		return Entry{}, err
	}
	decoded, err := unmarshalStatements(statements)
	if err != nil {
		return Entry{}, err
	}
	e.Statements = decoded
	return e, nil
}
