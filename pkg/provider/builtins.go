package provider

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Builtin handler names usable from a manifest.
const (
	BuiltinReadFile   = "read_file"
	BuiltinStaticText = "static_text"
	BuiltinEcho       = "echo"
	BuiltinSleep      = "sleep"
)

// ReadFile returns a handler that reads the file named by the "path" argument.
// Paths are resolved under root and may not leave it.
func ReadFile(root string) Handler {
	return func(ctx context.Context, args map[string]interface{}) (interface{}, error) {
		name, _ := args["path"].(string)
		if name == "" {
			return nil, &HandlerError{Code: "INVALID_ARGUMENT", Message: "path is required"}
		}

		full, err := resolveUnder(root, name)
		if err != nil {
			return nil, err
		}

		data, err := os.ReadFile(full)
		if errors.Is(err, fs.ErrNotExist) {
			return nil, Failf("file not found: %s", name)
		}
		if err != nil {
			return nil, Failf("could not read %s: %v", name, err)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return TextResult(string(data)), nil
	}
}

// StaticText returns a handler that always answers with text.
func StaticText(text string) Handler {
	return func(context.Context, map[string]interface{}) (interface{}, error) {
		return TextResult(text), nil
	}
}

// Echo answers with its arguments.
func Echo(_ context.Context, args map[string]interface{}) (interface{}, error) {
	if msg, ok := args["message"].(string); ok {
		return TextResult(msg), nil
	}
	return map[string]interface{}{"arguments": args}, nil
}

// Sleep waits for the "ms" argument or until the call is cancelled.
func Sleep(ctx context.Context, args map[string]interface{}) (interface{}, error) {
	ms, _ := args["ms"].(float64)
	select {
	case <-time.After(time.Duration(ms) * time.Millisecond):
		return TextResult(fmt.Sprintf("slept %dms", int(ms))), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func resolveUnder(root, name string) (string, error) {
	if root == "" {
		root = "."
	}
	absRoot, err := filepath.Abs(root)
	if err != nil {
		return "", Failf("invalid root %s: %v", root, err)
	}
	full := filepath.Join(absRoot, filepath.Clean("/"+name))
	rel, err := filepath.Rel(absRoot, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", &HandlerError{Code: "INVALID_ARGUMENT", Message: fmt.Sprintf("path %s is outside the provider root", name)}
	}
	return full, nil
}
