package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"btd/internal/domain"
)

const (
	CodeBadRequest = 400
	CodeInternal   = 500

	statusOK    = "ok"
	statusError = "error"
)

var (
	ErrMalformedRequest = errors.New("bad request")
	ErrUnknownMethod    = errors.New("unknown method")
)

// Request is a decoded request envelope.
type Request struct {
	ID     int64
	Method string
	Params Params
}

type Response struct {
	ID     int64  `json:"id"`
	Status string `json:"status"`
	Result any    `json:"result"`
	Error  *Error `json:"error"`
}

// Error is both the wire error object and the error handlers return to pick
// a response code.
type Error struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	err     error
}

func (e *Error) Error() string { return e.Message }

func (e *Error) Unwrap() error { return e.err }

func badRequest(err error, message string) *Error {
	return &Error{Code: CodeBadRequest, Message: message, err: err}
}

// opFailed reports a failed Core API call as "<op> failed: <cause>".
func opFailed(op string, err error) *Error {
	return &Error{Code: CodeInternal, Message: op + " failed: " + err.Error(), err: err}
}

func okResponse(id int64, result any) Response {
	if result == nil {
		result = struct{}{}
	}
	return Response{ID: id, Status: statusOK, Result: result}
}

func errorResponse(id int64, err error) Response {
	var rpcErr *Error
	if !errors.As(err, &rpcErr) {
		rpcErr = &Error{Code: CodeInternal, Message: "internal error", err: err}
	}
	return Response{ID: id, Status: statusError, Error: rpcErr}
}

// parseRequest decodes a request envelope. On a structural error the
// returned Request still carries the id when it could be read.
func parseRequest(data []byte) (Request, error) {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil || raw == nil {
		return Request{}, badRequest(ErrMalformedRequest, "bad request")
	}

	var req Request
	idRaw, ok := raw["id"]
	if !ok {
		return Request{}, badRequest(ErrMalformedRequest, "bad request")
	}
	id, ok := parseID(idRaw)
	if !ok {
		return Request{}, badRequest(ErrMalformedRequest, "bad request")
	}
	req.ID = id

	methodRaw, ok := raw["method"]
	if !ok || isNull(methodRaw) || json.Unmarshal(methodRaw, &req.Method) != nil {
		return req, badRequest(ErrMalformedRequest, "bad request")
	}

	paramsRaw, ok := raw["params"]
	if !ok || isNull(paramsRaw) || json.Unmarshal(paramsRaw, &req.Params) != nil || req.Params == nil {
		return req, badRequest(ErrMalformedRequest, "bad request")
	}
	return req, nil
}

// parseID accepts any JSON number without a fractional part, so 7, 7.0 and
// 7e0 all name request 7.
func parseID(raw json.RawMessage) (int64, bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || trimmed[0] == '"' {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(trimmed, &n); err != nil || n == "" {
		return 0, false
	}
	if id, err := n.Int64(); err == nil {
		return id, true
	}
	f, err := n.Float64()
	if err != nil || f != math.Trunc(f) || f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}

func isNull(raw json.RawMessage) bool {
	return bytes.Equal(bytes.TrimSpace(raw), []byte("null"))
}

// Params holds the raw request params keyed by field name.
type Params map[string]json.RawMessage

func invalidParam(field string) *Error {
	return badRequest(ErrMalformedRequest, "invalid params: "+field)
}

// RequiredString returns the required string field.
func (p Params) RequiredString(field string) (string, error) {
	raw, ok := p[field]
	if !ok || isNull(raw) {
		return "", invalidParam(field)
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidParam(field)
	}
	return s, nil
}

// OptionalString returns the string field, or "" when it is absent or null.
func (p Params) OptionalString(field string) (string, error) {
	raw, ok := p[field]
	if !ok || isNull(raw) {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return "", invalidParam(field)
	}
	return s, nil
}

// Bool accepts a JSON bool or a number, where any non-zero number is true.
func (p Params) Bool(field string) (bool, error) {
	raw, ok := p[field]
	if !ok || isNull(raw) {
		return false, invalidParam(field)
	}
	var b bool
	if err := json.Unmarshal(raw, &b); err == nil {
		return b, nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return f != 0, nil
	}
	return false, invalidParam(field)
}

// TorrentID reads and validates a 40-hex torrent identifier.
func (p Params) TorrentID(field string) (domain.TorrentID, error) {
	s, err := p.RequiredString(field)
	if err != nil {
		return "", err
	}
	id, err := domain.ParseTorrentID(s)
	if err != nil {
		return "", badRequest(err, fmt.Sprintf("invalid %s", field))
	}
	return id, nil
}
