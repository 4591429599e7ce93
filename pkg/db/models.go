package db

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

// OutcomeRecord represents a row in the invocation_outcomes table.
type OutcomeRecord struct {
	ID          string          `json:"id"`
	Capability  string          `json:"capability"`
	Arguments   json.RawMessage `json:"arguments"`
	Status      string          `json:"status"`
	Content     *string         `json:"content,omitempty"`
	RawResult   json.RawMessage `json:"raw_result,omitempty"`
	ErrorCode   *string         `json:"error_code,omitempty"`
	ErrorDetail *string         `json:"error_detail,omitempty"`
	RequestedAt time.Time       `json:"requested_at"`
	StartedAt   time.Time       `json:"started_at"`
	CompletedAt time.Time       `json:"completed_at"`
}

// NewOutcomeRecord flattens an outcome into a row.
func NewOutcomeRecord(out *invocation.Outcome) (*OutcomeRecord, error) {
	args, err := json.Marshal(invocation.CloneArguments(out.Request.Arguments))
	if err != nil {
		return nil, fmt.Errorf("db:models - failed to encode arguments of %s: %w", out.Request.ID, err)
	}
	rec := &OutcomeRecord{
		ID:          out.Request.ID,
		Capability:  out.Request.Capability,
		Arguments:   args,
		Status:      string(out.Status),
		RequestedAt: out.Request.RequestedAt.UTC(),
		StartedAt:   out.StartedAt.UTC(),
		CompletedAt: out.CompletedAt.UTC(),
	}
	if out.Result != nil {
		rec.Content = &out.Result.Content
		if json.Valid(out.Result.Raw) {
			rec.RawResult = out.Result.Raw
		}
	}
	if out.ErrorCode != "" {
		code := string(out.ErrorCode)
		rec.ErrorCode = &code
	}
	if out.ErrorDetail != "" {
		rec.ErrorDetail = &out.ErrorDetail
	}
	return rec, nil
}

// Outcome rebuilds the outcome a row was made from. The original error value is
// not stored; its code and detail are.
func (r *OutcomeRecord) Outcome() (*invocation.Outcome, error) {
	var args map[string]interface{}
	if len(r.Arguments) > 0 {
		if err := json.Unmarshal(r.Arguments, &args); err != nil {
			return nil, fmt.Errorf("db:models - failed to decode arguments of %s: %w", r.ID, err)
		}
	}
	out := &invocation.Outcome{
		Request: invocation.Request{
			ID:          r.ID,
			Capability:  r.Capability,
			Arguments:   invocation.CloneArguments(args),
			RequestedAt: r.RequestedAt,
		},
		Status:      invocation.Status(r.Status),
		StartedAt:   r.StartedAt,
		CompletedAt: r.CompletedAt,
	}
	if r.Content != nil || len(r.RawResult) > 0 {
		out.Result = &invocation.Result{Raw: r.RawResult}
		if r.Content != nil {
			out.Result.Content = *r.Content
		}
	}
	if r.ErrorCode != nil {
		out.ErrorCode = invocation.Code(*r.ErrorCode)
	}
	if r.ErrorDetail != nil {
		out.ErrorDetail = *r.ErrorDetail
	}
	return out, nil
}
