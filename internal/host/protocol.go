package host

import "encoding/json"

// Method names accepted by the server.
const (
	MethodParse                 = "parse"
	MethodRequestCompile        = "request.compile"
	MethodRequestFirstSelectors = "request.first_selectors"
	MethodRequestAllSelectors   = "request.all_selectors"
	MethodRequestSource         = "request.source"
	MethodSelectorsMatches      = "selectors.matches"
	MethodSelectorsKeys         = "selectors.keys"
	MethodSelectorsCompile      = "selectors.compile"
	MethodSelectorsSource       = "selectors.source"
	MethodRelease               = "release"
)

// Protocol error codes. Failures raised by the compiler itself carry the
// bridge error code instead.
const (
	ErrCodeInvalidHandle = "INVALID_HANDLE"
	ErrCodeUnknownMethod = "UNKNOWN_METHOD"
	ErrCodeBadRequest    = "BAD_REQUEST"
)

// Request is one line sent by the host.
type Request struct {
	ID     *int64          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is one line sent back for a Request. Exactly one of Result and
// Error is set.
type Response struct {
	ID     *int64         `json:"id"`
	Result any            `json:"result,omitempty"`
	Error  *ResponseError `json:"error,omitempty"`
}

// ResponseError describes a failed Request.
type ResponseError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// CallbackCall asks the host to run its escape function on Input while
// request Request is pending.
type CallbackCall struct {
	Request int64  `json:"request"`
	Seq     int    `json:"seq"`
	Input   string `json:"input"`
}

// CallbackResult is the host's answer to a CallbackCall. Error takes
// precedence over Output.
type CallbackResult struct {
	Request int64   `json:"request"`
	Seq     int     `json:"seq"`
	Output  *string `json:"output,omitempty"`
	Error   *string `json:"error,omitempty"`
}

type callbackEnvelope struct {
	Callback *CallbackCall `json:"callback"`
}

type callbackResultEnvelope struct {
	Result *CallbackResult `json:"callback_result"`
}

type parseParams struct {
	Query string `json:"query"`
}

type handleParams struct {
	Handle string `json:"handle"`
}

type compileParams struct {
	Handle     string `json:"handle"`
	Dialect    string `json:"dialect"`
	Table      string `json:"table"`
	SRID       string `json:"srid"`
	Escape     bool   `json:"escape"`
	Statements bool   `json:"statements"`
}

type matchesParams struct {
	Handle string            `json:"handle"`
	Tags   map[string]string `json:"tags"`
}

type handleResult struct {
	Handle string `json:"handle"`
}

type handlesResult struct {
	Handles []string `json:"handles"`
}

type sqlResult struct {
	SQL string `json:"sql"`
}

type statementsResult struct {
	Statements []string `json:"statements"`
}

type sourceResult struct {
	Source string `json:"source"`
}

type failingResult struct {
	Failing []string `json:"failing"`
}

type keysResult struct {
	Keys []string `json:"keys"`
}
