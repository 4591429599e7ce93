// Package capability holds capability descriptors and immutable catalog snapshots.
package capability

import (
	"encoding/json"

	"github.com/morezero/capability-bridge/pkg/wire"
)

// Parameter is one entry of a capability's parameter schema.
type Parameter struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Required    bool        `json:"required"`
	Description string      `json:"description,omitempty"`
	Default     interface{} `json:"default,omitempty"`
}

// Descriptor describes a remote capability. Values handed out by a Catalog are
// copies; callers cannot reach the catalog's own slices.
type Descriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  []Parameter     `json:"parameters"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

// FromSpec converts a wire descriptor.
func FromSpec(spec wire.CapabilitySpec) Descriptor {
	params := make([]Parameter, 0, len(spec.Parameters))
	for _, p := range spec.Parameters {
		typ := p.Type
		if typ == "" {
			typ = "string"
		}
		params = append(params, Parameter{
			Name:        p.Name,
			Type:        typ,
			Required:    p.Required,
			Description: p.Description,
			Default:     p.Default,
		})
	}
	d := Descriptor{
		Name:        spec.Name,
		Description: spec.Description,
		Parameters:  params,
	}
	if len(spec.InputSchema) > 0 {
		d.InputSchema = append(json.RawMessage(nil), spec.InputSchema...)
	}
	return d
}

// Parameter returns the named parameter.
func (d Descriptor) Parameter(name string) (Parameter, bool) {
	for _, p := range d.Parameters {
		if p.Name == name {
			return p, true
		}
	}
	return Parameter{}, false
}

// Required returns the names of the required parameters in schema order.
func (d Descriptor) Required() []string {
	var out []string
	for _, p := range d.Parameters {
		if p.Required {
			out = append(out, p.Name)
		}
	}
	return out
}

func (d Descriptor) clone() Descriptor {
	c := d
	c.Parameters = append([]Parameter(nil), d.Parameters...)
	if d.InputSchema != nil {
		c.InputSchema = append(json.RawMessage(nil), d.InputSchema...)
	}
	return c
}
