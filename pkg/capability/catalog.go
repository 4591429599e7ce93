package capability

import (
	"fmt"
	"time"

	"github.com/morezero/capability-bridge/pkg/invocation"
)

// Catalog is an immutable snapshot of the provider's capabilities.
// A refresh builds a new Catalog; an existing one is never edited.
type Catalog struct {
	version   uint64
	fetchedAt time.Time
	order     []Descriptor
	byName    map[string]int
}

var empty = &Catalog{byName: map[string]int{}}

// Empty returns the catalog of an unconnected session.
func Empty() *Catalog { return empty }

// NewCatalog builds a snapshot in provider order. Duplicate names are rejected so a
// lookup can never be ambiguous.
func NewCatalog(descs []Descriptor, version uint64, fetchedAt time.Time) (*Catalog, error) {
	c := &Catalog{
		version:   version,
		fetchedAt: fetchedAt,
		order:     make([]Descriptor, 0, len(descs)),
		byName:    make(map[string]int, len(descs)),
	}
	for _, d := range descs {
		if d.Name == "" {
			return nil, fmt.Errorf("capability at position %d has no name", len(c.order))
		}
		if _, dup := c.byName[d.Name]; dup {
			return nil, fmt.Errorf("duplicate capability name %q", d.Name)
		}
		c.byName[d.Name] = len(c.order)
		c.order = append(c.order, d.clone())
	}
	return c, nil
}

// Version is the snapshot version; 0 means never fetched.
func (c *Catalog) Version() uint64 { return c.version }

// FetchedAt is when the snapshot was fetched.
func (c *Catalog) FetchedAt() time.Time { return c.fetchedAt }

// Len is the number of capabilities.
func (c *Catalog) Len() int { return len(c.order) }

// Lookup returns the named descriptor or an UnknownCapability error.
func (c *Catalog) Lookup(name string) (Descriptor, error) {
	i, ok := c.byName[name]
	if !ok {
		return Descriptor{}, invocation.Errorf(invocation.CodeUnknownCapability, "capability %q is not in catalog version %d", name, c.version)
	}
	return c.order[i].clone(), nil
}

// Has reports whether name is in the catalog.
func (c *Catalog) Has(name string) bool {
	_, ok := c.byName[name]
	return ok
}

// All returns every descriptor in provider order.
func (c *Catalog) All() []Descriptor {
	out := make([]Descriptor, len(c.order))
	for i, d := range c.order {
		out[i] = d.clone()
	}
	return out
}

// Names returns capability names in provider order.
func (c *Catalog) Names() []string {
	out := make([]string, len(c.order))
	for i, d := range c.order {
		out[i] = d.Name
	}
	return out
}
