// Package host serves the bridge over line-delimited JSON on a pair of
// streams, normally the stdin and stdout of `overpassql serve`.
//
// Every line the host writes is a Request; every line the server writes is
// either a Response or, while a compile request with "escape": true is
// pending, a callback message:
//
//	-> {"id":1,"method":"parse","params":{"query":"node[amenity=cafe];out;"}}
//	<- {"id":1,"result":{"handle":"0192..."}}
//	-> {"id":2,"method":"request.compile","params":{"handle":"0192...","dialect":"postgres","escape":true}}
//	<- {"callback":{"request":2,"seq":1,"input":"amenity"}}
//	-> {"callback_result":{"request":2,"seq":1,"output":"'amenity'"}}
//	...
//	<- {"id":2,"result":{"sql":"WITH _q1 AS (...) ..."}}
//
// Handles are opaque ids that stay valid until released. Requests are
// processed one at a time in arrival order.
package host

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"

	"github.com/roach88/overpassql/internal/bridge"
	"github.com/roach88/overpassql/internal/callback"
)

// maxLineSize bounds a single protocol line.
const maxLineSize = 16 << 20

// ErrCallbackProtocol is wrapped by escape failures caused by a malformed or
// out-of-order callback_result.
var ErrCallbackProtocol = errors.New("callback protocol violation")

// Config configures a Server.
type Config struct {
	In     io.Reader
	Out    io.Writer
	IDs    IDGenerator  // defaults to UUIDv7Generator
	Logger *slog.Logger // defaults to slog.Default()
}

// Server answers protocol requests read from In on Out.
type Server struct {
	in      io.Reader
	out     io.Writer
	logger  *slog.Logger
	handles *handleTable

	writeMu sync.Mutex
	enc     *json.Encoder
}

// NewServer creates a server.
func NewServer(cfg Config) *Server {
	ids := cfg.IDs
	if ids == nil {
		ids = UUIDv7Generator{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		in:      cfg.In,
		out:     cfg.Out,
		logger:  logger,
		handles: newHandleTable(ids),
		enc:     json.NewEncoder(cfg.Out),
	}
}

// Handles returns the number of live handles.
func (s *Server) Handles() int {
	return s.handles.len()
}

type line struct {
	data []byte
	err  error
}

// Serve processes requests until In reaches EOF, ctx is cancelled or a
// response cannot be written. EOF is a clean shutdown and returns nil.
//
// Reads happen on a separate goroutine, so cancellation is observed even
// while the host is silent.
func (s *Server) Serve(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	lines := make(chan line)
	go s.readLines(ctx, lines)

	c := &conn{server: s, ctx: ctx, lines: lines}
	for {
		data, err := c.next()
		if errors.Is(err, io.EOF) {
			s.logger.Debug("host closed input")
			return nil
		}
		if err != nil {
			return err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}
		if err := c.handle(data); err != nil {
			return fmt.Errorf("write response: %w", err)
		}
	}
}

func (s *Server) readLines(ctx context.Context, lines chan<- line) {
	defer close(lines)

	scanner := bufio.NewScanner(s.in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		data := append([]byte(nil), scanner.Bytes()...)
		select {
		case lines <- line{data: data}:
		case <-ctx.Done():
			return
		}
	}
	if err := scanner.Err(); err != nil {
		select {
		case lines <- line{err: fmt.Errorf("read request: %w", err)}:
		case <-ctx.Done():
		}
	}
}

func (s *Server) write(v any) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.enc.Encode(v)
}

// conn is the state of one Serve call.
type conn struct {
	server *Server
	ctx    context.Context
	lines  <-chan line
}

// next returns the next input line, io.EOF once the input is exhausted, or
// the context error after cancellation.
func (c *conn) next() ([]byte, error) {
	select {
	case <-c.ctx.Done():
		return nil, c.ctx.Err()
	case l, ok := <-c.lines:
		if !ok {
			return nil, io.EOF
		}
		return l.data, l.err
	}
}

func (c *conn) handle(data []byte) error {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		c.server.logger.Debug("malformed request", "error", err)
		return c.server.write(Response{Error: responseError(badRequest("malformed request: %v", err))})
	}
	if req.ID == nil {
		return c.server.write(Response{Error: responseError(badRequest("request has no id"))})
	}

	c.server.logger.Debug("host request", "id", *req.ID, "method", req.Method)
	result, err := c.dispatch(*req.ID, req.Method, req.Params)
	if err != nil {
		c.server.logger.Debug("host request failed", "id", *req.ID, "method", req.Method, "error", err)
		return c.server.write(Response{ID: req.ID, Error: responseError(err)})
	}
	return c.server.write(Response{ID: req.ID, Result: result})
}

func (c *conn) dispatch(id int64, method string, raw json.RawMessage) (any, error) {
	handles := c.server.handles

	switch method {
	case MethodParse:
		var p parseParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		h, err := bridge.Parse(p.Query)
		if err != nil {
			return nil, err
		}
		return handleResult{Handle: handles.put(h)}, nil

	case MethodRequestCompile:
		var p compileParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		h, err := handles.request(p.Handle)
		if err != nil {
			return nil, err
		}
		escape := c.escapeFunc(id, p.Escape)
		if p.Statements {
			statements, err := h.CompileStatements(p.Dialect, p.SRID, escape)
			if err != nil {
				return nil, err
			}
			return statementsResult{Statements: statements}, nil
		}
		sql, err := h.CompileToSQL(p.Dialect, p.SRID, escape)
		if err != nil {
			return nil, err
		}
		return sqlResult{SQL: sql}, nil

	case MethodRequestFirstSelectors:
		h, err := c.requestHandle(raw)
		if err != nil {
			return nil, err
		}
		sel, err := h.FirstSelectors()
		if err != nil {
			return nil, err
		}
		return handleResult{Handle: handles.put(sel)}, nil

	case MethodRequestAllSelectors:
		h, err := c.requestHandle(raw)
		if err != nil {
			return nil, err
		}
		all := h.AllSelectors()
		ids := make([]string, 0, len(all))
		for _, sel := range all {
			ids = append(ids, handles.put(sel))
		}
		return handlesResult{Handles: ids}, nil

	case MethodRequestSource:
		h, err := c.requestHandle(raw)
		if err != nil {
			return nil, err
		}
		return sourceResult{Source: h.Source()}, nil

	case MethodSelectorsMatches:
		var p matchesParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		sel, err := handles.selectors(p.Handle)
		if err != nil {
			return nil, err
		}
		failing, _ := sel.Matches(p.Tags)
		return failingResult{Failing: failing}, nil

	case MethodSelectorsKeys:
		sel, err := c.selectorsHandle(raw)
		if err != nil {
			return nil, err
		}
		keys, _ := sel.Keys()
		return keysResult{Keys: keys}, nil

	case MethodSelectorsCompile:
		var p compileParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		sel, err := handles.selectors(p.Handle)
		if err != nil {
			return nil, err
		}
		sql, err := sel.CompileToSQL(p.Dialect, p.Table, p.SRID, c.escapeFunc(id, p.Escape))
		if err != nil {
			return nil, err
		}
		return sqlResult{SQL: sql}, nil

	case MethodSelectorsSource:
		sel, err := c.selectorsHandle(raw)
		if err != nil {
			return nil, err
		}
		return sourceResult{Source: sel.Source()}, nil

	case MethodRelease:
		var p handleParams
		if err := decodeParams(raw, &p); err != nil {
			return nil, err
		}
		if err := handles.release(p.Handle); err != nil {
			return nil, err
		}
		return struct{}{}, nil

	default:
		return nil, &protocolError{code: ErrCodeUnknownMethod, message: fmt.Sprintf("unknown method %q", method)}
	}
}

func (c *conn) requestHandle(raw json.RawMessage) (*bridge.RequestHandle, error) {
	var p handleParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return c.server.handles.request(p.Handle)
}

func (c *conn) selectorsHandle(raw json.RawMessage) (*bridge.SelectorsHandle, error) {
	var p handleParams
	if err := decodeParams(raw, &p); err != nil {
		return nil, err
	}
	return c.server.handles.selectors(p.Handle)
}

// escapeFunc returns a callback.Func that forwards every literal to the host
// and waits for its answer, or nil when the host did not ask for escaping.
func (c *conn) escapeFunc(requestID int64, enabled bool) callback.Func {
	if !enabled {
		return nil
	}
	seq := 0
	return func(input string) (string, error) {
		seq++
		call := &CallbackCall{Request: requestID, Seq: seq, Input: input}
		if err := c.server.write(callbackEnvelope{Callback: call}); err != nil {
			return "", fmt.Errorf("send callback: %w", err)
		}

		data, err := c.next()
		if err != nil {
			return "", fmt.Errorf("await callback result: %w", err)
		}

		var env callbackResultEnvelope
		if err := json.Unmarshal(data, &env); err != nil || env.Result == nil {
			return "", fmt.Errorf("%w: expected callback_result for request %d seq %d", ErrCallbackProtocol, requestID, seq)
		}
		res := env.Result
		if res.Request != requestID || res.Seq != seq {
			return "", fmt.Errorf("%w: got request %d seq %d, want request %d seq %d",
				ErrCallbackProtocol, res.Request, res.Seq, requestID, seq)
		}
		if res.Error != nil {
			return "", errors.New(*res.Error)
		}
		if res.Output == nil {
			return "", fmt.Errorf("%w: callback_result has neither output nor error", ErrCallbackProtocol)
		}
		return *res.Output, nil
	}
}

func decodeParams(raw json.RawMessage, v any) error {
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, v); err != nil {
		return badRequest("invalid params: %v", err)
	}
	return nil
}

func responseError(err error) *ResponseError {
	var (
		pErr *protocolError
		bErr *bridge.Error
	)
	switch {
	case errors.As(err, &pErr):
		return &ResponseError{Code: pErr.code, Message: pErr.message}
	case errors.As(err, &bErr):
		return &ResponseError{Code: string(bErr.Code), Message: bErr.Message}
	default:
		return &ResponseError{Code: string(bridge.ErrCodeInternal), Message: err.Error()}
	}
}
