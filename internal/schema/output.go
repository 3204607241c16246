package schema

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// LoadYAML reads a catalog from a YAML file.
func LoadYAML(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog file: %w", err)
	}
	c := &Catalog{}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", err)
	}
	return c, nil
}

// WriteYAML writes the catalog to a YAML file at the given path.
func (c *Catalog) WriteYAML(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling catalog: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// ToYAML returns the catalog as a YAML byte slice.
func (c *Catalog) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

// Summary returns a human-readable summary of the catalog.
func (c *Catalog) Summary() string {
	var dims, facts, cols, fks int
	for _, t := range c.Tables {
		switch t.Kind {
		case KindDimension:
			dims++
		case KindFact:
			facts++
		}
		cols += len(t.Columns)
		fks += len(t.ForeignKeys)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Schema %q: %d dimension tables, %d fact tables, %d columns, %d foreign keys\n",
		c.SchemaName, dims, facts, cols, fks)
	for _, t := range c.Tables {
		fmt.Fprintf(&b, "  %-14s %-9s key=%s\n", t.Name, t.Kind, t.KeyColumn())
	}
	return b.String()
}
