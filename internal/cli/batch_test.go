package cli

import (
	"encoding/json"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBatch(t *testing.T) {
	dir := t.TempDir()
	writeQuery(t, dir, "a.overpassql", "node[amenity=cafe];out;")
	writeQuery(t, dir, "b.op", "way[shop];out;rel[route];out;")
	writeQuery(t, dir, "notes.txt", "not a query")
	extra := writeQuery(t, t.TempDir(), "c.overpassql", "node[")

	out, err := execute(t, NewBatchCommand(&RootOptions{Format: "json"}), "", dir, extra, "--jobs", "2")
	require.Error(t, err)
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Status string      `json:"status"`
		Data   BatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))

	result := resp.Data
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Compiled)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Items, 3)

	// Argument order is kept regardless of completion order.
	assert.Equal(t, filepath.Join(dir, "a.overpassql"), result.Items[0].Query)
	assert.Equal(t, cafesPostgres, result.Items[0].SQL)
	assert.Equal(t, filepath.Join(dir, "b.op"), result.Items[1].Query)
	assert.Len(t, result.Items[1].Statements, 2)
	assert.Equal(t, extra, result.Items[2].Query)
	require.NotNil(t, result.Items[2].Error)
	assert.Equal(t, "PARSING_ERROR", result.Items[2].Error.Code)
}

func TestBatchText(t *testing.T) {
	dir := t.TempDir()
	for _, name := range []string{"1.op", "2.op", "3.op", "4.op", "5.op"} {
		writeQuery(t, dir, name, "node[shop];out;")
	}

	out, err := execute(t, NewBatchCommand(&RootOptions{Format: "text"}), "", dir, "--dialect", "duckdb")
	require.NoError(t, err)
	assert.Contains(t, out, "✓ "+filepath.Join(dir, "1.op")+" (1 statement(s))")
	assert.Contains(t, out, "Batch Summary: 5 compiled, 0 failed, 5 total")
}

func TestBatchCommandErrors(t *testing.T) {
	t.Run("no query files", func(t *testing.T) {
		out, err := execute(t, NewBatchCommand(&RootOptions{Format: "text"}), "", t.TempDir())
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E003]")
	})

	t.Run("missing path", func(t *testing.T) {
		out, err := execute(t, NewBatchCommand(&RootOptions{Format: "text"}), "", "/nonexistent")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, out, "Error [E005]")
	})

	t.Run("jobs out of range", func(t *testing.T) {
		_, err := execute(t, NewBatchCommand(&RootOptions{Format: "text"}), "", t.TempDir(), "--jobs", "0")
		assert.Equal(t, ExitCommandError, GetExitCode(err))
		assert.Contains(t, err.Error(), "invalid configuration")
	})
}
