// Package wire defines the JSON envelopes exchanged with a capability provider.
package wire

import (
	"encoding/json"
	"fmt"
)

// ProtocolVersion is the protocol version spoken by this module.
const ProtocolVersion = "1.2.0"

// SupportedVersions are the protocol versions this module can speak, oldest first.
var SupportedVersions = []string{"1.0.0", "1.1.0", ProtocolVersion}

// Methods understood by a provider.
const (
	MethodInitialize       = "initialize"
	MethodListCapabilities = "capabilities/list"
	MethodCall             = "capabilities/call"
)

// Notification types published on the provider's events subject.
const (
	NotificationListChanged = "capabilities/list_changed"
	NotificationDisconnect  = "disconnect"
)

// Error codes used in ErrorDetail.
const (
	CodeMethodNotFound     = "METHOD_NOT_FOUND"
	CodeInvalidRequest     = "INVALID_REQUEST"
	CodeInvalidArgument    = "INVALID_ARGUMENT"
	CodeCapabilityNotFound = "CAPABILITY_NOT_FOUND"
	CodeCapabilityFailed   = "CAPABILITY_FAILED"
	CodeInternal           = "INTERNAL_ERROR"
)

// Request is the envelope for a provider request.
type Request struct {
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// Response is the envelope for a provider response.
type Response struct {
	ID     string          `json:"id"`
	Ok     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorDetail    `json:"error,omitempty"`
}

// ErrorDetail holds structured error information.
type ErrorDetail struct {
	Code      string      `json:"code"`
	Message   string      `json:"message"`
	Details   interface{} `json:"details,omitempty"`
	Retryable bool        `json:"retryable"`
}

// RemoteError is an ErrorDetail returned by the provider, as a Go error.
type RemoteError struct {
	Detail ErrorDetail
}

func (e *RemoteError) Error() string {
	return fmt.Sprintf("provider error [%s]: %s", e.Detail.Code, e.Detail.Message)
}

// Notification is an unsolicited message from the provider.
type Notification struct {
	Type   string `json:"type"`
	Reason string `json:"reason,omitempty"`
}

// ClientInfo identifies the client during the handshake.
type ClientInfo struct {
	Name    string `json:"name"`
	Version string `json:"version"`
}

// InitializeParams are the params of the initialize method. SupportedVersions lists
// every protocol version the client can speak; the provider answers with the one it picked.
type InitializeParams struct {
	ProtocolVersion   string     `json:"protocolVersion"`
	SupportedVersions []string   `json:"supportedVersions,omitempty"`
	ClientInfo        ClientInfo `json:"clientInfo"`
}

// InitializeResult is the result of the initialize method.
type InitializeResult struct {
	ProtocolVersion string     `json:"protocolVersion"`
	ServerInfo      ClientInfo `json:"serverInfo"`
}

// ParameterSpec describes one capability parameter.
type ParameterSpec struct {
	Name        string      `json:"name" yaml:"name"`
	Type        string      `json:"type" yaml:"type"`
	Required    bool        `json:"required" yaml:"required"`
	Description string      `json:"description,omitempty" yaml:"description,omitempty"`
	Default     interface{} `json:"default,omitempty" yaml:"default,omitempty"`
}

// CapabilitySpec is a capability descriptor as listed by the provider.
type CapabilitySpec struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []ParameterSpec `json:"parameters"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// ListParams are the params of capabilities/list.
type ListParams struct {
	Cursor string `json:"cursor,omitempty"`
}

// ListResult is one page of capabilities/list.
type ListResult struct {
	Capabilities []CapabilitySpec `json:"capabilities"`
	NextCursor   string           `json:"nextCursor,omitempty"`
}

// CallParams are the params of capabilities/call.
type CallParams struct {
	Name      string                 `json:"name"`
	Arguments map[string]interface{} `json:"arguments"`
}

// NewRequest builds a request envelope with encoded params.
func NewRequest(id, method string, params interface{}) (*Request, error) {
	req := &Request{ID: id, Method: method}
	if params != nil {
		data, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode %s params: %w", method, err)
		}
		req.Params = data
	}
	return req, nil
}

// OkResponse builds a successful response with an encoded result.
func OkResponse(id string, result interface{}) *Response {
	data, err := json.Marshal(result)
	if err != nil {
		return ErrorResponse(id, CodeInternal, fmt.Sprintf("Failed to encode result: %v", err), false)
	}
	return &Response{ID: id, Ok: true, Result: data}
}

// ErrorResponse builds a failed response.
func ErrorResponse(id, code, message string, retryable bool) *Response {
	return &Response{
		ID: id,
		Ok: false,
		Error: &ErrorDetail{
			Code:      code,
			Message:   message,
			Retryable: retryable,
		},
	}
}

// Decode checks the response against the request id and decodes its result into v.
// A nil v skips decoding.
func (r *Response) Decode(requestID string, v interface{}) error {
	if r.ID != requestID {
		return fmt.Errorf("response id %q does not match request id %q", r.ID, requestID)
	}
	if !r.Ok {
		if r.Error == nil {
			return &RemoteError{Detail: ErrorDetail{Code: CodeInternal, Message: "request failed without error detail"}}
		}
		return &RemoteError{Detail: *r.Error}
	}
	if v == nil || len(r.Result) == 0 {
		return nil
	}
	if err := json.Unmarshal(r.Result, v); err != nil {
		return fmt.Errorf("decode result: %w", err)
	}
	return nil
}
