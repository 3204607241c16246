package cmd

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/starload/starload/internal/config"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Create a config file interactively",
	Long:  `Walk through prompts to create a Starload configuration file at ~/.starload/starload.yaml.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		reader := bufio.NewReader(os.Stdin)
		cfg := config.Default()

		fmt.Println("Starload Configuration Setup")
		fmt.Println("============================")
		fmt.Println()

		fmt.Println("Dataset")
		fmt.Println("-------")
		cfg.Dataset.Location = prompt(reader, "CSV location (path, s3:// or https:// URL)", cfg.Dataset.Location)
		cfg.Dataset.Encoding = prompt(reader, "Encoding (latin1/utf8)", cfg.Dataset.Encoding)
		fmt.Println()

		fmt.Println("Warehouse")
		fmt.Println("---------")
		w := &cfg.Warehouse
		w.Type = prompt(reader, "Type (postgresql/mysql/sqlite/mongodb)", w.Type)
		switch w.Type {
		case "sqlite":
			w.Path = prompt(reader, "Database file", w.Path)
		case "mongodb":
			w.ConnectionString = prompt(reader, "Connection string", "mongodb://localhost:27017")
		case "postgresql", "mysql":
			w.Host = prompt(reader, "Host", "localhost")
			portStr := prompt(reader, "Port", defaultPort(w.Type))
			port, err := strconv.Atoi(portStr)
			if err != nil {
				return fmt.Errorf("invalid port: %s", portStr)
			}
			w.Port = port
			w.Database = prompt(reader, "Database name", "warehouse")
			w.Username = prompt(reader, "Username", "")
			w.Password = prompt(reader, "Password (or ${ENV:VAR}, ${VAULT:path#key}, ${AWS_SM:name})", "")
		default:
			return fmt.Errorf("unsupported warehouse type %q", w.Type)
		}
		w.Schema = prompt(reader, "Schema", w.Schema)
		fmt.Println()

		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("config invalid: %w", err)
		}

		cfgPath := configPath()
		if err := cfg.Save(cfgPath); err != nil {
			return fmt.Errorf("saving config: %w", err)
		}

		fmt.Printf("Config written to %s\n", cfgPath)
		fmt.Println()
		fmt.Println("Next steps:")
		fmt.Println("  starload load --dry-run   Preview what would be loaded")
		fmt.Println("  starload load             Load the warehouse")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(initCmd)
}

func prompt(reader *bufio.Reader, label, defaultVal string) string {
	if defaultVal != "" {
		fmt.Printf("  %s [%s]: ", label, defaultVal)
	} else {
		fmt.Printf("  %s: ", label)
	}
	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)
	if input == "" {
		return defaultVal
	}
	return input
}

func defaultPort(dbType string) string {
	switch dbType {
	case "mysql":
		return "3306"
	default:
		return "5432"
	}
}
