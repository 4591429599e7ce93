package capability

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

const validateTestPrefix = "capability:validate_test"

func TestValidateArguments(t *testing.T) {
	d := Descriptor{
		Name: "search",
		Parameters: []Parameter{
			{Name: "query", Type: "string", Required: true},
			{Name: "limit", Type: "integer"},
			{Name: "exact", Type: "boolean"},
		},
	}

	tests := []struct {
		name    string
		args    map[string]interface{}
		wantErr bool
	}{
		{"all present", map[string]interface{}{"query": "go", "limit": float64(5), "exact": true}, false},
		{"optional omitted", map[string]interface{}{"query": "go"}, false},
		{"required missing", map[string]interface{}{"limit": 5}, true},
		{"required empty string", map[string]interface{}{"query": ""}, true},
		{"required nil", map[string]interface{}{"query": nil}, true},
		{"wrong type", map[string]interface{}{"query": 12}, true},
		{"fractional integer", map[string]interface{}{"query": "go", "limit": 1.5}, true},
		{"nil args", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateArguments(d, tt.args)
			if !tt.wantErr {
				assert.NoError(t, err, "%s - unexpected error", validateTestPrefix)
				return
			}
			require.Error(t, err, "%s - expected an error", validateTestPrefix)
			assert.True(t, errors.Is(err, invocation.ErrArgument), "%s - got %v", validateTestPrefix, err)
		})
	}
}

func TestValidateArguments_InputSchema(t *testing.T) {
	d := Descriptor{
		Name:       "resize",
		Parameters: []Parameter{{Name: "width", Type: "integer", Required: true}},
		InputSchema: json.RawMessage(`{
			"type": "object",
			"properties": {"width": {"type": "integer", "minimum": 1, "maximum": 4096}},
			"required": ["width"]
		}`),
	}

	assert.NoError(t, ValidateArguments(d, map[string]interface{}{"width": float64(640)}), "%s - unexpected error", validateTestPrefix)

	err := ValidateArguments(d, map[string]interface{}{"width": float64(0)})
	require.Error(t, err, "%s - expected an error", validateTestPrefix)
	assert.True(t, errors.Is(err, invocation.ErrArgument), "%s - expected ErrArgument", validateTestPrefix)
	assert.Contains(t, err.Error(), "input schema", "%s - unexpected content in err.Error()", validateTestPrefix)
}

func TestApplyDefaults(t *testing.T) {
	d := Descriptor{
		Name: "read_file",
		Parameters: []Parameter{
			{Name: "path", Type: "string", Required: true, Default: "sample.txt"},
			{Name: "encoding", Type: "string"},
		},
	}

	args := map[string]interface{}{"path": ""}
	out := ApplyDefaults(d, args)

	assert.Equal(t, "sample.txt", out["path"], "%s - unexpected out[path]", validateTestPrefix)
	assert.Equal(t, "", args["path"], "%s - input must not be modified", validateTestPrefix)
	_, has := out["encoding"]
	assert.False(t, has, "%s - expected has to be false", validateTestPrefix)

	kept := ApplyDefaults(d, map[string]interface{}{"path": "notes.txt"})
	assert.Equal(t, "notes.txt", kept["path"], "%s - unexpected kept[path]", validateTestPrefix)
}
