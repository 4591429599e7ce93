package invocation

import (
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"
)

const typesTestPrefix = "invocation:types_test"

func TestNormalizeResult(t *testing.T) {
	tests := []struct {
		name string
		raw  string
		want string
	}{
		{"text blocks", `{"content":[{"type":"text","text":" hello "},{"type":"image","data":"x"},{"type":"text","text":"world"}]}`, "hello\nworld"},
		{"string content", `{"content":"hello"}`, "hello"},
		{"message field", `{"message":"done"}`, "done"},
		{"plain string", `"hi"`, "hi"},
		{"list", `[1,"a"]`, "1\na"},
		{"number", `42`, "42"},
		{"null", `null`, ""},
		{"other object", `{"a":1}`, "{\n  \"a\": 1\n}"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NormalizeResult(json.RawMessage(tt.raw))
			if got.Content != tt.want {
				t.Errorf("%s - Content = %q, want %q", typesTestPrefix, got.Content, tt.want)
			}
		})
	}
}

func TestNewRequest_CopiesArguments(t *testing.T) {
	args := map[string]interface{}{"path": "a.txt"}
	req := NewRequest("id-1", "read_file", args)
	args["path"] = "b.txt"

	if req.Arguments["path"] != "a.txt" {
		t.Errorf("%s - request arguments changed after submission: %v", typesTestPrefix, req.Arguments)
	}
	if req.RequestedAt.IsZero() {
		t.Errorf("%s - RequestedAt not set", typesTestPrefix)
	}
}

func TestFailed_RecordsCode(t *testing.T) {
	req := NewRequest("id-1", "read_file", nil)
	o := Failed(req, time.Now(), Errorf(CodeTransportLost, "connection dropped"))

	if o.OK() {
		t.Fatalf("%s - expected failure outcome", typesTestPrefix)
	}
	if o.ErrorCode != CodeTransportLost {
		t.Errorf("%s - ErrorCode = %q, want %q", typesTestPrefix, o.ErrorCode, CodeTransportLost)
	}
	if o.CompletedAt.Before(o.StartedAt) {
		t.Errorf("%s - CompletedAt before StartedAt", typesTestPrefix)
	}
}

func TestErrorIs(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Errorf(CodeTimeout, "no answer after %s", time.Second))

	if !errors.Is(err, ErrTimeout) {
		t.Errorf("%s - expected errors.Is(err, ErrTimeout)", typesTestPrefix)
	}
	if errors.Is(err, ErrTransportLost) {
		t.Errorf("%s - did not expect errors.Is(err, ErrTransportLost)", typesTestPrefix)
	}
	if CodeOf(err) != CodeTimeout {
		t.Errorf("%s - CodeOf = %q, want %q", typesTestPrefix, CodeOf(err), CodeTimeout)
	}
	if CodeOf(errors.New("plain")) != CodeInternal {
		t.Errorf("%s - CodeOf(plain) = %q, want %q", typesTestPrefix, CodeOf(errors.New("plain")), CodeInternal)
	}
	if CodeOf(nil) != "" {
		t.Errorf("%s - CodeOf(nil) should be empty", typesTestPrefix)
	}
}

func TestIsPreflight(t *testing.T) {
	if !IsPreflight(Errorf(CodeUnknownCapability, "x")) || !IsPreflight(Errorf(CodeArgument, "x")) {
		t.Errorf("%s - validation errors must be preflight", typesTestPrefix)
	}
	if IsPreflight(Errorf(CodeTransportLost, "x")) {
		t.Errorf("%s - transport errors are not preflight", typesTestPrefix)
	}
}
