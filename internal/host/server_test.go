package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/roach88/overpassql/internal/testutil"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// transcript feeds lines to a fresh server and returns every line it wrote,
// decoded into generic maps.
func transcript(t *testing.T, lines ...string) []map[string]any {
	t.Helper()
	var out bytes.Buffer
	srv := NewServer(Config{
		In:     strings.NewReader(strings.Join(lines, "\n") + "\n"),
		Out:    &out,
		IDs:    testutil.NewSequentialIDGenerator("h"),
		Logger: quietLogger(),
	})
	require.NoError(t, srv.Serve(context.Background()))

	var msgs []map[string]any
	scanner := bufio.NewScanner(&out)
	for scanner.Scan() {
		var m map[string]any
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &m), scanner.Text())
		msgs = append(msgs, m)
	}
	return msgs
}

func result(t *testing.T, msg map[string]any) map[string]any {
	t.Helper()
	require.Nil(t, msg["error"], "unexpected error response: %v", msg)
	res, ok := msg["result"].(map[string]any)
	require.True(t, ok, "no result in %v", msg)
	return res
}

func errorCode(t *testing.T, msg map[string]any) string {
	t.Helper()
	e, ok := msg["error"].(map[string]any)
	require.True(t, ok, "expected error response, got %v", msg)
	return e["code"].(string)
}

func TestServer_ParseAndInspect(t *testing.T) {
	msgs := transcript(t,
		`{"id":1,"method":"parse","params":{"query":"node [amenity=cafe] ; out;"}}`,
		`{"id":2,"method":"request.source","params":{"handle":"h-1"}}`,
		`{"id":3,"method":"request.first_selectors","params":{"handle":"h-1"}}`,
		`{"id":4,"method":"selectors.keys","params":{"handle":"h-2"}}`,
		`{"id":5,"method":"selectors.matches","params":{"handle":"h-2","tags":{"amenity":"cafe"}}}`,
		`{"id":6,"method":"selectors.matches","params":{"handle":"h-2","tags":{"amenity":"bar"}}}`,
		`{"id":7,"method":"selectors.source","params":{"handle":"h-2"}}`,
	)
	require.Len(t, msgs, 7)

	for i, msg := range msgs {
		assert.Equal(t, float64(i+1), msg["id"])
	}
	assert.Equal(t, "h-1", result(t, msgs[0])["handle"])
	assert.Equal(t, "node[amenity=cafe];\nout;\n", result(t, msgs[1])["source"])
	assert.Equal(t, "h-2", result(t, msgs[2])["handle"])
	assert.Equal(t, []any{"amenity"}, result(t, msgs[3])["keys"])

	satisfied := result(t, msgs[4])
	assert.Contains(t, satisfied, "failing")
	assert.Nil(t, satisfied["failing"])

	assert.Equal(t, []any{"amenity"}, result(t, msgs[5])["failing"])
	assert.Equal(t, "[amenity=cafe]", result(t, msgs[6])["source"])
}

func TestServer_KeysNullWithoutSelectors(t *testing.T) {
	msgs := transcript(t,
		`{"id":1,"method":"parse","params":{"query":"node(1);out;"}}`,
		`{"id":2,"method":"request.first_selectors","params":{"handle":"h-1"}}`,
		`{"id":3,"method":"selectors.keys","params":{"handle":"h-2"}}`,
	)
	keys := result(t, msgs[2])
	assert.Contains(t, keys, "keys")
	assert.Nil(t, keys["keys"])
}

func TestServer_AllSelectors(t *testing.T) {
	msgs := transcript(t,
		`{"id":1,"method":"parse","params":{"query":"(node[a];way[b];);out;"}}`,
		`{"id":2,"method":"request.all_selectors","params":{"handle":"h-1"}}`,
		`{"id":3,"method":"selectors.source","params":{"handle":"h-3"}}`,
	)
	assert.Equal(t, []any{"h-2", "h-3"}, result(t, msgs[1])["handles"])
	assert.Equal(t, "[b]", result(t, msgs[2])["source"])
}

func TestServer_CompileWithoutEscape(t *testing.T) {
	msgs := transcript(t,
		`{"id":1,"method":"parse","params":{"query":"node[shop];out;way[highway];out ids;"}}`,
		`{"id":2,"method":"request.compile","params":{"handle":"h-1","dialect":"duckdb","srid":"4326"}}`,
		`{"id":3,"method":"request.compile","params":{"handle":"h-1","dialect":"postgres","statements":true}}`,
	)
	sql := result(t, msgs[1])["sql"].(string)
	assert.Contains(t, sql, "(tags->>'shop') IS NOT NULL")
	assert.True(t, strings.HasSuffix(sql, ";"))

	statements := result(t, msgs[2])["statements"].([]any)
	assert.Len(t, statements, 2)
}

func TestServer_CompileEscapeRoundTrip(t *testing.T) {
	msgs := transcript(t,
		`{"id":1,"method":"parse","params":{"query":"node[amenity=cafe];out;"}}`,
		`{"id":7,"method":"request.compile","params":{"handle":"h-1","dialect":"postgres","escape":true}}`,
		`{"callback_result":{"request":7,"seq":1,"output":"'AMENITY'"}}`,
		`{"callback_result":{"request":7,"seq":2,"output":"'CAFE'"}}`,
	)
	require.Len(t, msgs, 4)

	assert.Equal(t, map[string]any{"request": float64(7), "seq": float64(1), "input": "amenity"}, msgs[1]["callback"])
	assert.Equal(t, map[string]any{"request": float64(7), "seq": float64(2), "input": "cafe"}, msgs[2]["callback"])

	assert.Equal(t, float64(7), msgs[3]["id"])
	assert.Contains(t, result(t, msgs[3])["sql"], "(tags->>'AMENITY') = 'CAFE'")
}

func TestServer_SelectorsCompileEscape(t *testing.T) {
	msgs := transcript(t,
		`{"id":1,"method":"parse","params":{"query":"node[!name];"}}`,
		`{"id":2,"method":"request.first_selectors","params":{"handle":"h-1"}}`,
		`{"id":3,"method":"selectors.compile","params":{"handle":"h-2","dialect":"postgres","table":"p","escape":true}}`,
		`{"callback_result":{"request":3,"seq":1,"output":"'NAME'"}}`,
	)
	require.Len(t, msgs, 4)
	assert.Equal(t, "NOT (p.tags ? 'NAME')", result(t, msgs[3])["sql"])
}

func TestServer_CallbackFailures(t *testing.T) {
	compile := `{"id":2,"method":"request.compile","params":{"handle":"h-1","dialect":"postgres","escape":true}}`
	parse := `{"id":1,"method":"parse","params":{"query":"node[amenity=cafe];out;"}}`

	testCases := map[string][]string{
		"host error":     {parse, compile, `{"callback_result":{"request":2,"seq":1,"error":"boom"}}`},
		"wrong seq":      {parse, compile, `{"callback_result":{"request":2,"seq":5,"output":"x"}}`},
		"wrong request":  {parse, compile, `{"callback_result":{"request":9,"seq":1,"output":"x"}}`},
		"not a result":   {parse, compile, `{"id":3,"method":"parse","params":{}}`},
		"missing output": {parse, compile, `{"callback_result":{"request":2,"seq":1}}`},
		"eof":            {parse, compile},
	}
	for name, lines := range testCases {
		t.Run(name, func(t *testing.T) {
			msgs := transcript(t, lines...)
			last := msgs[len(msgs)-1]
			assert.Equal(t, float64(2), last["id"])
			assert.Equal(t, "CALLBACK_ERROR", errorCode(t, last))
		})
	}
}

func TestServer_ProtocolErrors(t *testing.T) {
	msgs := transcript(t,
		`not json`,
		`{"method":"parse"}`,
		`{"id":3,"method":"frobnicate"}`,
		`{"id":4,"method":"request.source","params":{"handle":"nope"}}`,
		`{"id":5,"method":"parse","params":{"query":"node["}}`,
		`{"id":6,"method":"parse","params":"oops"}`,
		`{"id":7,"method":"parse","params":{"query":"node[a];"}}`,
		`{"id":8,"method":"selectors.keys","params":{"handle":"h-1"}}`,
		`{"id":9,"method":"request.compile","params":{"handle":"h-1","dialect":"mysql"}}`,
		`{"id":10,"method":"release","params":{"handle":"h-1"}}`,
		`{"id":11,"method":"release","params":{"handle":"h-1"}}`,
		`{"id":12,"method":"parse","params":{"query":">;out;"}}`,
		`{"id":13,"method":"request.first_selectors","params":{"handle":"h-2"}}`,
	)
	require.Len(t, msgs, 13)

	assert.Nil(t, msgs[0]["id"])
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, msgs[0]))
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, msgs[1]))
	assert.Equal(t, ErrCodeUnknownMethod, errorCode(t, msgs[2]))
	assert.Equal(t, ErrCodeInvalidHandle, errorCode(t, msgs[3]))
	assert.Equal(t, "PARSING_ERROR", errorCode(t, msgs[4]))
	assert.Equal(t, ErrCodeBadRequest, errorCode(t, msgs[5]))
	assert.Equal(t, "h-1", result(t, msgs[6])["handle"])
	assert.Equal(t, ErrCodeInvalidHandle, errorCode(t, msgs[7]), "request handle used as selectors handle")
	assert.Equal(t, "UNSUPPORTED_DIALECT", errorCode(t, msgs[8]))
	assert.Empty(t, result(t, msgs[9]))
	assert.Equal(t, ErrCodeInvalidHandle, errorCode(t, msgs[10]))
	assert.Equal(t, "STRUCTURAL_ERROR", errorCode(t, msgs[12]))

	parseErr := msgs[4]["error"].(map[string]any)
	assert.Contains(t, parseErr["message"], "failed to parse query: ")
}

func TestServer_ReleaseDropsHandle(t *testing.T) {
	var out bytes.Buffer
	srv := NewServer(Config{
		In: strings.NewReader(
			`{"id":1,"method":"parse","params":{"query":"node[a];out;"}}` + "\n" +
				`{"id":2,"method":"request.first_selectors","params":{"handle":"h-1"}}` + "\n" +
				`{"id":3,"method":"release","params":{"handle":"h-1"}}` + "\n"),
		Out:    &out,
		IDs:    testutil.NewSequentialIDGenerator("h"),
		Logger: quietLogger(),
	})
	require.NoError(t, srv.Serve(context.Background()))
	assert.Equal(t, 1, srv.Handles(), "selectors handle outlives its request")
}

func TestServer_BlankLinesIgnored(t *testing.T) {
	msgs := transcript(t, "", "   ", `{"id":1,"method":"parse","params":{"query":"node;"}}`, "")
	require.Len(t, msgs, 1)
}

func TestServer_StopsOnCancel(t *testing.T) {
	pr, pw := io.Pipe()
	t.Cleanup(func() { _ = pw.Close() })

	srv := NewServer(Config{In: pr, Out: io.Discard, Logger: quietLogger()})
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	cancel()

	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(5 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestServer_InteractiveHost(t *testing.T) {
	inR, inW := io.Pipe()
	outR, outW := io.Pipe()

	srv := NewServer(Config{In: inR, Out: outW, Logger: quietLogger()})
	done := make(chan error, 1)
	go func() {
		done <- srv.Serve(context.Background())
		_ = outW.Close()
	}()

	replies := bufio.NewScanner(outR)
	send := func(line string) {
		_, err := io.WriteString(inW, line+"\n")
		require.NoError(t, err)
	}
	recv := func() map[string]any {
		require.True(t, replies.Scan())
		var m map[string]any
		require.NoError(t, json.Unmarshal(replies.Bytes(), &m))
		return m
	}

	send(`{"id":1,"method":"parse","params":{"query":"node[shop=bakery];out;"}}`)
	handle := result(t, recv())["handle"].(string)
	assert.Len(t, handle, 36, "UUID handle")

	send(`{"id":2,"method":"request.compile","params":{"handle":"` + handle + `","dialect":"postgres","escape":true}}`)
	for {
		msg := recv()
		cb, ok := msg["callback"].(map[string]any)
		if !ok {
			assert.Contains(t, result(t, msg)["sql"], "(tags->>'SHOP') = 'BAKERY'")
			break
		}
		reply, err := json.Marshal(map[string]any{"callback_result": map[string]any{
			"request": cb["request"],
			"seq":     cb["seq"],
			"output":  "'" + strings.ToUpper(cb["input"].(string)) + "'",
		}})
		require.NoError(t, err)
		send(string(reply))
	}

	require.NoError(t, inW.Close())
	require.NoError(t, <-done)
}

func TestUUIDv7Generator(t *testing.T) {
	gen := UUIDv7Generator{}
	a, b := gen.Generate(), gen.Generate()
	assert.Len(t, a, 36)
	assert.NotEqual(t, a, b)
}
