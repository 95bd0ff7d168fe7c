package dialect

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overpassql/internal/callback"
)

func upper(s string) (string, error) {
	return "'" + strings.ToUpper(s) + "'", nil
}

func TestBuild_PostgresWithoutEscape(t *testing.T) {
	reg := callback.NewRegistry()
	d, release, err := Build("postgres", nil, reg)
	require.NoError(t, err)
	defer release()

	pg, ok := d.(Postgres)
	require.True(t, ok, "expected Postgres, got %T", d)
	assert.Nil(t, pg.Escape)
	assert.True(t, d.SupportsCustomEscape())
	assert.Equal(t, 0, reg.Len())

	lit, err := d.Literal("O'Brien")
	require.NoError(t, err)
	assert.Equal(t, "'O''Brien'", lit)
}

func TestBuild_PostgresWithEscape(t *testing.T) {
	reg := callback.NewRegistry()
	d, release, err := Build("postgres", upper, reg)
	require.NoError(t, err)

	pg := d.(Postgres)
	require.NotNil(t, pg.Escape)
	assert.Equal(t, 1, reg.Len())

	lit, err := d.Literal("cafe")
	require.NoError(t, err)
	assert.Equal(t, "'CAFE'", lit)

	release()
	assert.Equal(t, 0, reg.Len(), "release must drop the registration")

	_, err = d.Literal("cafe")
	assert.ErrorIs(t, err, callback.ErrUnknownHandle)
}

func TestBuild_PostgresEscapeFailure(t *testing.T) {
	reg := callback.NewRegistry()
	d, release, err := Build("postgres", func(string) (string, error) {
		return "", errors.New("rejected")
	}, reg)
	require.NoError(t, err)
	defer release()

	_, err = d.Literal("x")
	require.Error(t, err)
	assert.True(t, callback.IsError(err))
}

func TestBuild_DuckDBIgnoresEscape(t *testing.T) {
	reg := callback.NewRegistry()
	called := false
	d, release, err := Build("duckdb", func(s string) (string, error) {
		called = true
		return s, nil
	}, reg)
	require.NoError(t, err)
	defer release()

	assert.Equal(t, DuckDB{}, d)
	assert.False(t, d.SupportsCustomEscape())
	assert.Equal(t, 0, reg.Len(), "duckdb must not register the callable")

	lit, err := d.Literal("it's")
	require.NoError(t, err)
	assert.Equal(t, "'it''s'", lit)
	assert.False(t, called)
}

func TestBuild_Unsupported(t *testing.T) {
	for _, name := range []string{"mysql", "Postgres", "POSTGRES", "duck", "", "sqlite"} {
		t.Run(name, func(t *testing.T) {
			reg := callback.NewRegistry()
			d, release, err := Build(name, upper, reg)
			require.Error(t, err)
			assert.Nil(t, d)
			assert.Nil(t, release)
			assert.Equal(t, 0, reg.Len())

			var unsupported *UnsupportedError
			require.True(t, errors.As(err, &unsupported))
			assert.Equal(t, name, unsupported.Name)
			assert.Contains(t, err.Error(), "unsupported SQL dialect")
		})
	}
}

func TestNames(t *testing.T) {
	assert.Equal(t, []string{"duckdb", "postgres"}, Names())
	for _, name := range Names() {
		d, release, err := Build(name, nil, callback.NewRegistry())
		require.NoError(t, err)
		release()
		assert.Equal(t, name, d.Name())
	}
}

func TestQuoteLiteral(t *testing.T) {
	testCases := map[string]string{
		"":         "''",
		"cafe":     "'cafe'",
		"it's":     "'it''s'",
		"''":       "''''''",
		`back\sl`:  `'back\sl'`,
		"Café":     "'Café'",
	}
	for in, want := range testCases {
		assert.Equal(t, want, QuoteLiteral(in), "QuoteLiteral(%q)", in)
	}
}
