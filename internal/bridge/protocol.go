// Package bridge connects extraction backends to out-of-process helpers.
// A helper speaks a line-oriented request/response protocol: every request
// carries an id, and the helper echoes it so that concurrent requests over
// one transport are never cross-delivered.
package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"io"
)

// Commands understood by helpers.
const (
	CommandParseContent   = "parse_content"
	CommandParseFile      = "parse_file"
	CommandExtractImports = "extract_imports"
	CommandResolveModule  = "resolve_module"
	CommandShutdown       = "shutdown"
)

// Error codes placed in Response.Error by the transport itself.
const (
	ErrorMalformed = "MalformedResponse"
	ErrorRPC       = "RPCError"
)

var (
	// ErrHelperExited means the helper process is gone and may not be
	// restarted.
	ErrHelperExited = errors.New("bridge: helper exited")
	// ErrTimeout means a request did not complete within its deadline.
	ErrTimeout = errors.New("bridge: request timed out")
	// ErrMalformedResponse means the helper answered with something that is
	// not a protocol response.
	ErrMalformedResponse = errors.New("bridge: malformed response")
	// ErrDuplicateRequest means a request id was already in flight.
	ErrDuplicateRequest = errors.New("bridge: duplicate request id")
	// ErrClosed means the transport was closed by its owner.
	ErrClosed = errors.New("bridge: closed")
)

// Request is one helper request. ID is assigned by the transport.
type Request struct {
	ID         int64  `json:"id"`
	Command    string `json:"command"`
	FilePath   string `json:"file_path,omitempty"`
	Content    string `json:"content,omitempty"`
	ModuleName string `json:"module_name,omitempty"`
}

// Response is one helper response. Exactly one payload field is set on
// success, depending on the command.
type Response struct {
	ID           int64           `json:"id"`
	Success      *bool           `json:"success"`
	AST          json.RawMessage `json:"ast,omitempty"`
	Imports      json.RawMessage `json:"imports,omitempty"`
	ResolvedPath string          `json:"resolved_path,omitempty"`
	Error        string          `json:"error,omitempty"`
	Message      string          `json:"message,omitempty"`
	Lineno       int             `json:"lineno,omitempty"`
	Offset       int             `json:"offset,omitempty"`
}

// OK reports whether the response is a success.
func (r *Response) OK() bool {
	return r != nil && r.Success != nil && *r.Success
}

// Caller sends requests to a helper. Call returns an error only when the
// transport failed; a helper-reported failure is a Response with OK false.
// Implementations are safe for concurrent use.
type Caller interface {
	io.Closer
	Call(ctx context.Context, req Request) (*Response, error)
}

// normalize turns a response that does not satisfy the protocol for cmd into
// a failure, so callers handle malformed and failed responses identically.
func normalize(resp *Response, cmd string) *Response {
	if resp == nil {
		return failure(0, ErrorMalformed, "no response")
	}
	if resp.Success == nil {
		return failure(resp.ID, ErrorMalformed, "response has no success field")
	}
	if !*resp.Success {
		if resp.Error == "" {
			resp.Error = "HelperError"
		}
		return resp
	}
	missing := false
	switch cmd {
	case CommandParseContent, CommandParseFile:
		missing = isEmptyJSON(resp.AST)
	case CommandExtractImports:
		missing = isEmptyJSON(resp.Imports)
	case CommandResolveModule:
		missing = resp.ResolvedPath == ""
	}
	if missing {
		return failure(resp.ID, ErrorMalformed, "successful "+cmd+" response has no payload")
	}
	return resp
}

func isEmptyJSON(raw json.RawMessage) bool {
	return len(raw) == 0 || string(raw) == "null"
}

func failure(id int64, code, msg string) *Response {
	f := false
	return &Response{ID: id, Success: &f, Error: code, Message: msg}
}
