package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/config"
	"github.com/starload/starload/internal/schema"
)

var (
	schemaYAML    bool
	schemaDialect string
)

var schemaCmd = &cobra.Command{
	Use:   "schema",
	Short: "Inspect the warehouse star schema",
}

var schemaShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the star schema catalog",
	RunE: func(cmd *cobra.Command, args []string) error {
		catalog := schema.StarSchema(schemaName())
		if !schemaYAML {
			fmt.Print(catalog.Summary())
			return nil
		}
		data, err := catalog.ToYAML()
		if err != nil {
			return err
		}
		fmt.Print(string(data))
		return nil
	},
}

var schemaDDLCmd = &cobra.Command{
	Use:   "ddl",
	Short: "Print the CREATE statements for a SQL dialect",
	RunE: func(cmd *cobra.Command, args []string) error {
		dialect := schema.Dialect(schemaDialect)
		if dialect == "" {
			dialect = configuredDialect()
		}
		stmts, err := schema.RenderDDL(schema.StarSchema(schemaName()), dialect)
		if err != nil {
			return err
		}
		fmt.Println(strings.Join(stmts, ";\n\n") + ";")
		return nil
	},
}

// schemaName reads the schema from the config when one exists, so the
// schema commands also work before `starload init`.
func schemaName() string {
	cfg, err := config.Load(configPath())
	if err != nil {
		return schema.DefaultSchemaName
	}
	return cfg.Warehouse.Schema
}

func configuredDialect() schema.Dialect {
	cfg, err := config.Load(configPath())
	if err != nil {
		return schema.DialectPostgres
	}
	switch cfg.Warehouse.Type {
	case "mysql":
		return schema.DialectMySQL
	case "sqlite":
		return schema.DialectSQLite
	default:
		return schema.DialectPostgres
	}
}

func init() {
	schemaShowCmd.Flags().BoolVar(&schemaYAML, "yaml", false, "print the full catalog as YAML")
	schemaDDLCmd.Flags().StringVar(&schemaDialect, "dialect", "", "postgres, mysql or sqlite (default: from config)")
	schemaCmd.AddCommand(schemaShowCmd)
	schemaCmd.AddCommand(schemaDDLCmd)
	rootCmd.AddCommand(schemaCmd)
}
