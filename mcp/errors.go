package mcp

import (
	"errors"
	"fmt"
	"time"

	"github.com/ghiac/mcpbridge/model"
)

// ErrConnectionLost is reported for requests that were in flight when the
// server's output stream closed.
var ErrConnectionLost = errors.New("mcp: connection lost")

// ConnectionError reports a spawn or handshake failure. It is non-fatal at
// the manager level: the server is simply marked unavailable.
type ConnectionError struct {
	Server string
	Err    error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("failed to connect to MCP server '%s': %v", e.Server, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// NotConnectedError reports an invocation against a server with no live
// client.
type NotConnectedError struct {
	Server string
}

func (e *NotConnectedError) Error() string {
	return fmt.Sprintf("not connected to MCP server '%s'", e.Server)
}

// RequestTimeoutError reports that no correlated reply arrived within the
// deadline. The pending entry has been reclaimed; a late reply is dropped.
type RequestTimeoutError struct {
	Server  string
	Method  string
	Timeout time.Duration
}

func (e *RequestTimeoutError) Error() string {
	return fmt.Sprintf("request timeout for method '%s' on server '%s' after %s", e.Method, e.Server, e.Timeout)
}

// RemoteToolError carries a JSON-RPC error object returned by the provider,
// surfaced verbatim to the caller.
type RemoteToolError struct {
	Server   string
	Method   string
	RPCError *model.RPCError
}

func (e *RemoteToolError) Error() string {
	return fmt.Sprintf("MCP server '%s' returned error for '%s': %v", e.Server, e.Method, e.RPCError)
}

func (e *RemoteToolError) Unwrap() error { return e.RPCError }
