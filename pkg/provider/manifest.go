package provider

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/morezero/capability-bridge/pkg/wire"
)

const manifestLogPrefix = "provider:manifest"

// ManifestCapability is one capability entry of a manifest.
type ManifestCapability struct {
	Name        string                 `yaml:"name" json:"name"`
	Description string                 `yaml:"description,omitempty" json:"description,omitempty"`
	Handler     string                 `yaml:"handler" json:"handler"`
	Text        string                 `yaml:"text,omitempty" json:"text,omitempty"`
	Parameters  []wire.ParameterSpec   `yaml:"parameters" json:"parameters"`
	InputSchema map[string]interface{} `yaml:"inputSchema,omitempty" json:"inputSchema,omitempty"`
}

// Manifest describes the capabilities a provider serves. YAML and JSON are both accepted.
type Manifest struct {
	Name         string               `yaml:"name" json:"name"`
	Version      string               `yaml:"version" json:"version"`
	Description  string               `yaml:"description,omitempty" json:"description,omitempty"`
	Capabilities []ManifestCapability `yaml:"capabilities" json:"capabilities"`
}

// LoadManifest loads a manifest from file paths or environment.
// It tries paths in order: first any paths passed in, then PROVIDER_MANIFEST_FILE, then defaults.
// Falls back to DefaultManifest when no file can be read.
func LoadManifest(paths ...string) (*Manifest, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("PROVIDER_MANIFEST_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/provider.yaml", "provider.yaml")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}

		m, err := ParseManifest(data)
		if err != nil {
			slog.Warn(fmt.Sprintf("%s - Failed to parse manifest %s: %v", manifestLogPrefix, p, err))
			continue
		}

		slog.Info(fmt.Sprintf("%s - Loaded manifest from %s", manifestLogPrefix, p))
		return m, nil
	}

	slog.Info(fmt.Sprintf("%s - Using default manifest", manifestLogPrefix))
	return DefaultManifest(), nil
}

// ParseManifest decodes a YAML or JSON manifest.
func ParseManifest(data []byte) (*Manifest, error) {
	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("%s - decode manifest: %w", manifestLogPrefix, err)
	}
	seen := map[string]bool{}
	for i, c := range m.Capabilities {
		if c.Name == "" {
			return nil, fmt.Errorf("%s - capability %d has no name", manifestLogPrefix, i)
		}
		if seen[c.Name] {
			return nil, fmt.Errorf("%s - duplicate capability %s", manifestLogPrefix, c.Name)
		}
		seen[c.Name] = true
	}
	return &m, nil
}

// DefaultManifest returns the builtin capability set.
func DefaultManifest() *Manifest {
	return &Manifest{
		Name:        "sample-provider",
		Version:     "1.0.0",
		Description: "Builtin file and text capabilities",
		Capabilities: []ManifestCapability{
			{
				Name:        "read_file",
				Description: "Read a text file from the provider's root directory",
				Handler:     BuiltinReadFile,
				Parameters: []wire.ParameterSpec{
					{Name: "path", Type: "string", Required: true, Description: "File path relative to the provider root", Default: "sample.txt"},
				},
			},
			{
				Name:        "echo",
				Description: "Return the given message",
				Handler:     BuiltinEcho,
				Parameters: []wire.ParameterSpec{
					{Name: "message", Type: "string", Required: true, Description: "Text to return"},
				},
			},
		},
	}
}

// Build turns the manifest into registrable capabilities. root is where read_file looks.
func (m *Manifest) Build(root string) ([]Capability, error) {
	out := make([]Capability, 0, len(m.Capabilities))
	for _, mc := range m.Capabilities {
		h, err := builtin(mc, root)
		if err != nil {
			return nil, err
		}

		spec := wire.CapabilitySpec{
			Name:        mc.Name,
			Description: mc.Description,
			Parameters:  append([]wire.ParameterSpec{}, mc.Parameters...),
		}
		if len(mc.InputSchema) > 0 {
			schema, err := json.Marshal(mc.InputSchema)
			if err != nil {
				return nil, fmt.Errorf("%s - encode input schema of %s: %w", manifestLogPrefix, mc.Name, err)
			}
			spec.InputSchema = schema
		}
		out = append(out, Capability{Spec: spec, Handler: h})
	}
	return out, nil
}

func builtin(mc ManifestCapability, root string) (Handler, error) {
	switch mc.Handler {
	case BuiltinReadFile:
		return ReadFile(root), nil
	case BuiltinStaticText:
		return StaticText(mc.Text), nil
	case BuiltinEcho:
		return Echo, nil
	case BuiltinSleep:
		return Sleep, nil
	default:
		return nil, fmt.Errorf("%s - capability %s uses unknown handler %q", manifestLogPrefix, mc.Name, mc.Handler)
	}
}
