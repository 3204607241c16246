package schema

// Catalog describes the warehouse star schema: four dimension tables and one
// fact table, qualified by an explicit schema name.
type Catalog struct {
	SchemaName string  `yaml:"schema_name"`
	Tables     []Table `yaml:"tables"`
}

// Kind distinguishes dimension tables from fact tables and staging tables.
type Kind string

const (
	KindDimension Kind = "dimension"
	KindFact      Kind = "fact"
	KindStaging   Kind = "staging"
)

// Table represents one warehouse table.
type Table struct {
	Name        string       `yaml:"name"`
	Kind        Kind         `yaml:"kind"`
	Columns     []Column     `yaml:"columns"`
	PrimaryKey  *PrimaryKey  `yaml:"primary_key,omitempty"`
	UniqueKeys  [][]string   `yaml:"unique_keys,omitempty"`
	ForeignKeys []ForeignKey `yaml:"foreign_keys,omitempty"`
}

// Role is the part a column plays in the star schema.
type Role string

const (
	RoleSurrogateKey Role = "surrogate_key" // generated by the store
	RoleNaturalKey   Role = "natural_key"   // taken from the source data
	RoleForeignKey   Role = "foreign_key"
	RoleMeasure      Role = "measure"
	RoleAttribute    Role = "attribute"
	RoleAudit        Role = "audit" // row timestamps maintained by the store
)

// Audit column names.
const (
	ColumnCreatedAt = "created_at"
	ColumnUpdatedAt = "updated_at"
)

// DataType is a logical column type rendered per SQL dialect.
type DataType string

const (
	TypeSerial  DataType = "serial"
	TypeString  DataType = "string"
	TypeText    DataType = "text"
	TypeInteger DataType = "integer"
	TypeDecimal DataType = "decimal"
	TypeFloat   DataType = "float"
	TypeDate    DataType = "date"
	TypeFlag    DataType = "flag"
	TypeTime    DataType = "timestamp"
)

// Column represents a table column.
type Column struct {
	Name      string   `yaml:"name"`
	DataType  DataType `yaml:"data_type"`
	Role      Role     `yaml:"role"`
	Nullable  bool     `yaml:"nullable"`
	MaxLength *int     `yaml:"max_length,omitempty"`
	Precision *int     `yaml:"precision,omitempty"`
	Scale     *int     `yaml:"scale,omitempty"`
}

// PrimaryKey represents a table's primary key.
type PrimaryKey struct {
	Name    string   `yaml:"name"`
	Columns []string `yaml:"columns"`
}

// ForeignKey represents a fact-to-dimension reference.
type ForeignKey struct {
	Name              string   `yaml:"name"`
	Columns           []string `yaml:"columns"`
	ReferencedTable   string   `yaml:"referenced_table"`
	ReferencedColumns []string `yaml:"referenced_columns"`
}

// Table returns the named table, or nil.
func (c *Catalog) Table(name string) *Table {
	for i := range c.Tables {
		if c.Tables[i].Name == name {
			return &c.Tables[i]
		}
	}
	return nil
}

// Qualified returns the table name prefixed with the catalog's schema name.
func (c *Catalog) Qualified(table string) string {
	if c.SchemaName == "" {
		return table
	}
	return c.SchemaName + "." + table
}

// Dimensions returns the dimension tables in load order.
func (c *Catalog) Dimensions() []Table {
	var out []Table
	for _, t := range c.Tables {
		if t.Kind == KindDimension {
			out = append(out, t)
		}
	}
	return out
}

// ColumnNames returns the table's column names in declaration order.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		names[i] = col.Name
	}
	return names
}

// ColumnsWithRole returns the names of the columns playing the given role.
func (t *Table) ColumnsWithRole(role Role) []string {
	var names []string
	for _, col := range t.Columns {
		if col.Role == role {
			names = append(names, col.Name)
		}
	}
	return names
}

// KeyColumn returns the single primary key column.
func (t *Table) KeyColumn() string {
	if t.PrimaryKey == nil || len(t.PrimaryKey.Columns) == 0 {
		return ""
	}
	return t.PrimaryKey.Columns[0]
}

// HasColumn reports whether the table declares the named column.
func (t *Table) HasColumn(name string) bool {
	for _, col := range t.Columns {
		if col.Name == name {
			return true
		}
	}
	return false
}

// HasSurrogateKey reports whether the store generates the key.
func (t *Table) HasSurrogateKey() bool {
	return len(t.ColumnsWithRole(RoleSurrogateKey)) > 0
}
