package provider

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultManifest(t *testing.T) {
	m := DefaultManifest()
	caps, err := m.Build(t.TempDir())
	if err != nil {
		t.Fatalf("provider:manifest_test - build failed: %v", err)
	}
	if len(caps) != 2 || caps[0].Spec.Name != "read_file" {
		t.Fatalf("provider:manifest_test - unexpected capabilities: %+v", caps)
	}
	if caps[0].Spec.Parameters[0].Default != "sample.txt" {
		t.Errorf("provider:manifest_test - read_file path default = %v", caps[0].Spec.Parameters[0].Default)
	}
}

func TestParseManifest_YAML(t *testing.T) {
	data := []byte(`
name: docs
version: 2.1.0
capabilities:
  - name: greeting
    handler: static_text
    text: hi there
  - name: resize
    handler: echo
    parameters:
      - name: width
        type: integer
        required: true
    inputSchema:
      type: object
      properties:
        width:
          type: integer
          minimum: 1
`)
	m, err := ParseManifest(data)
	if err != nil {
		t.Fatalf("provider:manifest_test - parse failed: %v", err)
	}
	caps, err := m.Build("")
	if err != nil {
		t.Fatalf("provider:manifest_test - build failed: %v", err)
	}
	if len(caps) != 2 {
		t.Fatalf("provider:manifest_test - expected 2 capabilities, got %d", len(caps))
	}
	if len(caps[1].Spec.InputSchema) == 0 {
		t.Error("provider:manifest_test - expected input schema to be encoded")
	}
	if !caps[1].Spec.Parameters[0].Required {
		t.Error("provider:manifest_test - expected width to be required")
	}
}

func TestParseManifest_JSON(t *testing.T) {
	m, err := ParseManifest([]byte(`{"name":"j","version":"1.0.0","capabilities":[{"name":"e","handler":"echo"}]}`))
	if err != nil {
		t.Fatalf("provider:manifest_test - parse failed: %v", err)
	}
	if m.Capabilities[0].Name != "e" {
		t.Errorf("provider:manifest_test - name = %s", m.Capabilities[0].Name)
	}
}

func TestParseManifest_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"duplicate", "capabilities: [{name: a, handler: echo}, {name: a, handler: echo}]"},
		{"unnamed", "capabilities: [{handler: echo}]"},
		{"not yaml", "capabilities: [::"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseManifest([]byte(tt.data)); err == nil {
				t.Error("provider:manifest_test - expected error")
			}
		})
	}
}

func TestBuild_UnknownHandler(t *testing.T) {
	m := &Manifest{Capabilities: []ManifestCapability{{Name: "x", Handler: "teleport"}}}
	if _, err := m.Build(""); err == nil {
		t.Error("provider:manifest_test - expected error for unknown handler")
	}
}

func TestLoadManifest_PathOrder(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "custom.yaml")
	if err := os.WriteFile(path, []byte("name: custom\ncapabilities:\n  - name: e\n    handler: echo\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	t.Setenv("PROVIDER_MANIFEST_FILE", "")

	m, err := LoadManifest(filepath.Join(dir, "missing.yaml"), path)
	if err != nil {
		t.Fatalf("provider:manifest_test - load failed: %v", err)
	}
	if m.Name != "custom" {
		t.Errorf("provider:manifest_test - name = %s, want custom", m.Name)
	}

	m, err = LoadManifest(filepath.Join(dir, "missing.yaml"))
	if err != nil {
		t.Fatalf("provider:manifest_test - load failed: %v", err)
	}
	if m.Name != "sample-provider" {
		t.Errorf("provider:manifest_test - expected default manifest, got %s", m.Name)
	}
}
