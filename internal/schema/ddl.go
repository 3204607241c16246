package schema

import (
	"fmt"
	"strings"
)

// Dialect selects the SQL flavour rendered by RenderDDL.
type Dialect string

const (
	DialectPostgres Dialect = "postgres"
	DialectMySQL    Dialect = "mysql"
	DialectSQLite   Dialect = "sqlite"
)

// RenderDDL returns CREATE statements for every catalog table, dimensions
// first. Statements are idempotent. SQLite has no schemas, so table names are
// left unqualified there.
func RenderDDL(c *Catalog, dialect Dialect) ([]string, error) {
	switch dialect {
	case DialectPostgres, DialectMySQL, DialectSQLite:
	default:
		return nil, fmt.Errorf("unsupported dialect %q", dialect)
	}

	var stmts []string
	if c.SchemaName != "" {
		switch dialect {
		case DialectPostgres:
			stmts = append(stmts, fmt.Sprintf("CREATE SCHEMA IF NOT EXISTS %s", quoteIdent(dialect, c.SchemaName)))
		case DialectMySQL:
			stmts = append(stmts, fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", quoteIdent(dialect, c.SchemaName)))
		}
	}

	for _, t := range c.Tables {
		stmts = append(stmts, createTable(c, &t, dialect))
	}
	return stmts, nil
}

// TableName returns the dialect-quoted, schema-qualified table name.
func TableName(c *Catalog, dialect Dialect, table string) string {
	if c.SchemaName == "" || dialect == DialectSQLite {
		return quoteIdent(dialect, table)
	}
	return quoteIdent(dialect, c.SchemaName) + "." + quoteIdent(dialect, table)
}

func createTable(c *Catalog, t *Table, dialect Dialect) string {
	var defs []string
	for _, col := range t.Columns {
		defs = append(defs, columnDef(&col, dialect))
	}

	// SQLite declares the autoincrement key inline.
	if t.PrimaryKey != nil && !(dialect == DialectSQLite && t.HasSurrogateKey()) {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", quoteList(dialect, t.PrimaryKey.Columns)))
	}
	for _, uk := range t.UniqueKeys {
		defs = append(defs, fmt.Sprintf("UNIQUE (%s)", quoteList(dialect, uk)))
	}
	for _, fk := range t.ForeignKeys {
		defs = append(defs, fmt.Sprintf("CONSTRAINT %s FOREIGN KEY (%s) REFERENCES %s (%s)",
			quoteIdent(dialect, fk.Name),
			quoteList(dialect, fk.Columns),
			TableName(c, dialect, fk.ReferencedTable),
			quoteList(dialect, fk.ReferencedColumns)))
	}

	stmt := fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (\n  %s\n)",
		TableName(c, dialect, t.Name), strings.Join(defs, ",\n  "))
	// Natural keys compare exactly, as they do in Postgres and SQLite.
	if dialect == DialectMySQL {
		stmt += " ENGINE=InnoDB DEFAULT CHARSET=utf8mb4 COLLATE=utf8mb4_0900_bin"
	}
	return stmt
}

func columnDef(col *Column, dialect Dialect) string {
	def := quoteIdent(dialect, col.Name) + " " + sqlType(col, dialect)
	if col.DataType == TypeSerial {
		switch dialect {
		case DialectSQLite:
			return def + " PRIMARY KEY AUTOINCREMENT"
		case DialectMySQL:
			return def + " NOT NULL AUTO_INCREMENT"
		}
		return def
	}
	if !col.Nullable {
		def += " NOT NULL"
	}
	if col.Role == RoleAudit {
		def += " DEFAULT CURRENT_TIMESTAMP"
	}
	return def
}

func sqlType(col *Column, dialect Dialect) string {
	switch col.DataType {
	case TypeSerial:
		switch dialect {
		case DialectPostgres:
			return "BIGSERIAL"
		case DialectSQLite:
			return "INTEGER"
		default:
			return "BIGINT"
		}
	case TypeString:
		if dialect == DialectSQLite {
			return "TEXT"
		}
		n := 255
		if col.MaxLength != nil {
			n = *col.MaxLength
		}
		return fmt.Sprintf("VARCHAR(%d)", n)
	case TypeText:
		return "TEXT"
	case TypeInteger:
		if dialect == DialectSQLite {
			return "INTEGER"
		}
		return "BIGINT"
	case TypeDecimal:
		if dialect == DialectSQLite {
			return "NUMERIC"
		}
		p, s := 18, 4
		if col.Precision != nil {
			p = *col.Precision
		}
		if col.Scale != nil {
			s = *col.Scale
		}
		return fmt.Sprintf("DECIMAL(%d,%d)", p, s)
	case TypeFloat:
		switch dialect {
		case DialectPostgres:
			return "DOUBLE PRECISION"
		case DialectMySQL:
			return "DOUBLE"
		default:
			return "REAL"
		}
	case TypeDate:
		if dialect == DialectSQLite {
			return "TEXT"
		}
		return "DATE"
	case TypeFlag:
		if dialect == DialectSQLite {
			return "INTEGER"
		}
		return "SMALLINT"
	case TypeTime:
		if dialect == DialectSQLite {
			return "TEXT"
		}
		return "TIMESTAMP"
	}
	return "TEXT"
}

func quoteIdent(dialect Dialect, s string) string {
	if dialect == DialectMySQL {
		return "`" + strings.ReplaceAll(s, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(s, `"`, `""`) + `"`
}

func quoteList(dialect Dialect, cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = quoteIdent(dialect, c)
	}
	return strings.Join(quoted, ", ")
}

// QuoteIdent quotes a column or table identifier for the dialect.
func QuoteIdent(dialect Dialect, s string) string {
	return quoteIdent(dialect, s)
}
