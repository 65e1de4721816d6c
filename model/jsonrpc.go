package model

import (
	"encoding/json"
	"fmt"
)

// JSONRPCVersion is the version string carried by every envelope.
const JSONRPCVersion = "2.0"

// Message is the tagged union of everything that can cross the wire:
// *Request, *Notification or *Response. Inbound lines are classified once,
// at the parse boundary, instead of being poked at as loose maps.
type Message interface {
	message()
}

// Request is an outbound JSON-RPC 2.0 call expecting a correlated reply.
type Request struct {
	JSONRPC string `json:"jsonrpc"`
	ID      int64  `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Notification is a fire-and-forget envelope: no id, no reply.
type Notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params,omitempty"`
}

// Response is an inbound reply correlated by ID. Exactly one of Result and
// Error is meaningful.
type Response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      int64           `json:"id"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *RPCError       `json:"error,omitempty"`
}

// RPCError is the JSON-RPC 2.0 error object, surfaced verbatim to callers.
type RPCError struct {
	Code    int             `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data,omitempty"`
}

func (*Request) message()      {}
func (*Notification) message() {}
func (*Response) message()     {}

func (e *RPCError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("rpc error %d", e.Code)
	}
	return e.Message
}

// ProtocolError reports a wire line that does not form a valid JSON-RPC
// 2.0 envelope. The reader logs and drops such lines.
type ProtocolError struct {
	Reason string
	Err    error
}

func (e *ProtocolError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Reason, e.Err)
	}
	return e.Reason
}

func (e *ProtocolError) Unwrap() error { return e.Err }

// NewRequest builds a request envelope for the given correlation id.
func NewRequest(id int64, method string, params any) *Request {
	return &Request{JSONRPC: JSONRPCVersion, ID: id, Method: method, Params: params}
}

// NewNotification builds a notification envelope.
func NewNotification(method string, params any) *Notification {
	return &Notification{JSONRPC: JSONRPCVersion, Method: method, Params: params}
}

// rawMessage captures every field an envelope may carry so ParseMessage can
// classify the shape before committing to a concrete type.
type rawMessage struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params"`
	Result  json.RawMessage `json:"result"`
	Error   *RPCError       `json:"error"`
}

// ParseMessage validates one wire line and returns the concrete envelope.
// Unrecognized or malformed shapes are rejected with an error so the reader
// can drop the line without guessing.
func ParseMessage(data []byte) (Message, error) {
	var raw rawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, &ProtocolError{Reason: "malformed JSON-RPC message", Err: err}
	}
	if raw.JSONRPC != JSONRPCVersion {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unsupported jsonrpc version %q", raw.JSONRPC)}
	}

	hasID := len(raw.ID) > 0 && string(raw.ID) != "null"

	if raw.Method != "" {
		if hasID {
			var id int64
			if err := json.Unmarshal(raw.ID, &id); err != nil {
				return nil, &ProtocolError{Reason: fmt.Sprintf("unsupported request id %s", raw.ID), Err: err}
			}
			return &Request{JSONRPC: raw.JSONRPC, ID: id, Method: raw.Method, Params: raw.Params}, nil
		}
		return &Notification{JSONRPC: raw.JSONRPC, Method: raw.Method, Params: raw.Params}, nil
	}

	if !hasID {
		return nil, &ProtocolError{Reason: "message has neither method nor id"}
	}
	if raw.Result == nil && raw.Error == nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("response %s has neither result nor error", raw.ID)}
	}
	var id int64
	if err := json.Unmarshal(raw.ID, &id); err != nil {
		return nil, &ProtocolError{Reason: fmt.Sprintf("unsupported response id %s", raw.ID), Err: err}
	}
	return &Response{JSONRPC: raw.JSONRPC, ID: id, Result: raw.Result, Error: raw.Error}, nil
}
