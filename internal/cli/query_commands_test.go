package cli

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSelectorsFirst(t *testing.T) {
	cmd := NewSelectorsCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "node[amenity=cafe][!disused];out;way[shop];out;")
	require.NoError(t, err)
	assert.Equal(t, "[amenity=cafe][!disused]\tkeys: amenity\n", out)
}

func TestSelectorsAllJSON(t *testing.T) {
	cmd := NewSelectorsCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "node[a=1];(way[b];node(5););out;", "--all", "--sql", "--table", "p")
	require.NoError(t, err)

	var resp struct {
		Status string         `json:"status"`
		Data   []SelectorInfo `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	require.Len(t, resp.Data, 2)
	assert.Equal(t, SelectorInfo{Source: "[a=1]", Keys: []string{"a"}, SQL: "(p.tags->>'a') = '1'"}, resp.Data[0])
	assert.Equal(t, SelectorInfo{Source: "[b]", Keys: []string{"b"}, SQL: "p.tags ? 'b'"}, resp.Data[1])
}

func TestSelectorsStructuralError(t *testing.T) {
	cmd := NewSelectorsCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "(node[a];way[b];);out;")
	require.Error(t, err)
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [STRUCTURAL_ERROR]")
}

func TestMatch(t *testing.T) {
	tests := []struct {
		name     string
		tags     []string
		wantExit int
		wantOut  string
	}{
		{"satisfied", []string{"--tag", "amenity=cafe"}, ExitSuccess, "✓ [amenity=cafe][!disused]\n"},
		{"wrong value", []string{"--tag", "amenity=bar"}, ExitFailure, "failing: amenity"},
		{"negated present", []string{"-t", "amenity=cafe", "-t", "disused=yes"}, ExitFailure, "failing: disused"},
		{"no tags", nil, ExitFailure, "failing: amenity"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := NewMatchCommand(&RootOptions{Format: "text"})
			out, err := execute(t, cmd, "node[amenity=cafe][!disused];out;", tt.tags...)
			assert.Equal(t, tt.wantExit, GetExitCode(err))
			assert.Contains(t, out, tt.wantOut)
		})
	}
}

func TestMatchJSON(t *testing.T) {
	cmd := NewMatchCommand(&RootOptions{Format: "json"})
	out, err := execute(t, cmd, "node[a][b=2];", "--tag", "b=3")
	assert.Equal(t, ExitFailure, GetExitCode(err))

	var resp struct {
		Data MatchResult `json:"data"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &resp))
	assert.Equal(t, MatchResult{Selectors: "[a][b=2]", Matches: false, Failing: []string{"a", "b"}}, resp.Data)
}

func TestMatchInvalidTag(t *testing.T) {
	cmd := NewMatchCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "node[a];", "--tag", "novalue")
	assert.Equal(t, ExitCommandError, GetExitCode(err))
	assert.Contains(t, out, "Error [E010]")
}

func TestParseTags(t *testing.T) {
	tags, err := parseTags([]string{"a=1", "url=https://x?y=z", "empty="})
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"a": "1", "url": "https://x?y=z", "empty": ""}, tags)

	_, err = parseTags([]string{"=v"})
	assert.Error(t, err)
}

func TestFmt(t *testing.T) {
	cmd := NewFmtCommand(&RootOptions{Format: "text"})
	out, err := execute(t, cmd, "node [ amenity = cafe ] ; /* comment */ out ;")
	require.NoError(t, err)
	assert.Equal(t, "node[amenity=cafe];\nout;\n", out)

	// Formatting is idempotent.
	cmd = NewFmtCommand(&RootOptions{Format: "text"})
	again, err := execute(t, cmd, out)
	require.NoError(t, err)
	assert.Equal(t, out, again)
}

func TestSchema(t *testing.T) {
	for _, d := range []string{"postgres", "duckdb"} {
		t.Run(d, func(t *testing.T) {
			cmd := NewSchemaCommand(&RootOptions{Format: "text"})
			out, err := execute(t, cmd, "", "--dialect", d)
			require.NoError(t, err)
			assert.Contains(t, out, "osm_base")
			assert.Contains(t, out, "osm_members")
		})
	}
}
