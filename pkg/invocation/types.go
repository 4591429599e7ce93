// Package invocation defines invocation requests, outcomes and the failure taxonomy
// shared by the session, gateway, ledger and orchestrator.
package invocation

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Status is the terminal status of an invocation.
type Status string

const (
	StatusSuccess Status = "success"
	StatusFailure Status = "failure"
)

// Request is one call against a named capability. It is never mutated after submission.
type Request struct {
	ID          string                 `json:"id"`
	Capability  string                 `json:"capability"`
	Arguments   map[string]interface{} `json:"arguments"`
	RequestedAt time.Time              `json:"requestedAt"`
}

// NewRequest builds a request with its own copy of args.
func NewRequest(id, capability string, args map[string]interface{}) *Request {
	return &Request{
		ID:          id,
		Capability:  capability,
		Arguments:   CloneArguments(args),
		RequestedAt: time.Now(),
	}
}

// CloneArguments returns a shallow copy of args, never nil.
func CloneArguments(args map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(args))
	for k, v := range args {
		out[k] = v
	}
	return out
}

// Result is a provider result: the raw payload plus its text rendering.
type Result struct {
	Content string          `json:"content"`
	Raw     json.RawMessage `json:"raw,omitempty"`
}

// Outcome is the recorded result of one invocation.
type Outcome struct {
	Request     Request   `json:"request"`
	Status      Status    `json:"status"`
	Result      *Result   `json:"result,omitempty"`
	Err         error     `json:"-"`
	ErrorCode   Code      `json:"errorCode,omitempty"`
	ErrorDetail string    `json:"errorDetail,omitempty"`
	StartedAt   time.Time `json:"startedAt"`
	CompletedAt time.Time `json:"completedAt"`
}

// Succeeded builds a success outcome completed now.
func Succeeded(req *Request, startedAt time.Time, result *Result) *Outcome {
	return &Outcome{
		Request:     *req,
		Status:      StatusSuccess,
		Result:      result,
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
}

// Failed builds a failure outcome completed now.
func Failed(req *Request, startedAt time.Time, err error) *Outcome {
	return &Outcome{
		Request:     *req,
		Status:      StatusFailure,
		Err:         err,
		ErrorCode:   CodeOf(err),
		ErrorDetail: err.Error(),
		StartedAt:   startedAt,
		CompletedAt: time.Now(),
	}
}

// OK reports whether the invocation succeeded.
func (o *Outcome) OK() bool { return o.Status == StatusSuccess }

// Duration is the time between start and completion.
func (o *Outcome) Duration() time.Duration { return o.CompletedAt.Sub(o.StartedAt) }

// NormalizeResult turns a raw provider payload into a Result.
//
// A list of content blocks contributes the text of its "text" blocks joined by
// newlines; a string "content" field is used as is; a "message" field comes next;
// anything else is rendered as indented JSON.
func NormalizeResult(raw json.RawMessage) *Result {
	res := &Result{Raw: raw}
	if len(raw) == 0 || string(raw) == "null" {
		return res
	}

	var v interface{}
	if err := json.Unmarshal(raw, &v); err != nil {
		res.Content = string(raw)
		return res
	}

	switch t := v.(type) {
	case map[string]interface{}:
		if blocks, ok := t["content"].([]interface{}); ok {
			var parts []string
			for _, b := range blocks {
				block, ok := b.(map[string]interface{})
				if !ok || block["type"] != "text" {
					continue
				}
				text, _ := block["text"].(string)
				if text = strings.TrimSpace(text); text != "" {
					parts = append(parts, text)
				}
			}
			if len(parts) > 0 {
				res.Content = strings.Join(parts, "\n")
				return res
			}
		}
		if s, ok := t["content"].(string); ok {
			res.Content = s
			return res
		}
		if msg, ok := t["message"]; ok {
			res.Content = fmt.Sprint(msg)
			return res
		}
		pretty, _ := json.MarshalIndent(t, "", "  ")
		res.Content = string(pretty)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, item := range t {
			parts = append(parts, fmt.Sprint(item))
		}
		res.Content = strings.Join(parts, "\n")
	case string:
		res.Content = t
	default:
		res.Content = fmt.Sprint(t)
	}
	return res
}
