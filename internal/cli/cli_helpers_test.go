package cli

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

// execute runs cmd with args and stdin, returning stdout.
func execute(t *testing.T, cmd *cobra.Command, stdin string, args ...string) (string, error) {
	t.Helper()

	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetIn(strings.NewReader(stdin))
	cmd.SetArgs(args)

	err := cmd.Execute()
	return out.String(), err
}

// writeQuery writes a query file into dir and returns its path.
func writeQuery(t *testing.T, dir, name, query string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(query), 0644))
	return path
}

const cafesPostgres = "WITH _q1 AS (SELECT objtype, id, tags, geom FROM osm_base WHERE objtype = 'n' AND (tags->>'amenity') = 'cafe')\n" +
	"SELECT objtype, id, tags, geom FROM _q1 ORDER BY objtype, id;"
