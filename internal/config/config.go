package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"gopkg.in/yaml.v3"
)

const (
	CurrentVersion = 1
	DefaultPath    = "~/.starload/starload.yaml"
)

// Config is the top-level configuration.
type Config struct {
	Version    int              `yaml:"version" validate:"eq=1"`
	Dataset    DatasetConfig    `yaml:"dataset"`
	Warehouse  WarehouseConfig  `yaml:"warehouse"`
	Load       LoadConfig       `yaml:"load,omitempty"`
	Processing ProcessingConfig `yaml:"processing,omitempty"`
	Staging    StagingConfig    `yaml:"staging,omitempty"`
	AWS        AWSConfig        `yaml:"aws,omitempty"`
	Metrics    MetricsConfig    `yaml:"metrics,omitempty"`
	Logging    LogConfig        `yaml:"logging,omitempty"`
	Report     ReportConfig     `yaml:"report,omitempty"`
}

// DatasetConfig locates the transaction CSV.
type DatasetConfig struct {
	Location    string `yaml:"location" validate:"required"`                              // file path, s3://bucket/key or http(s) URL
	Encoding    string `yaml:"encoding,omitempty" validate:"omitempty,oneof=latin1 utf8"` // default latin1
	HTTPRetries int    `yaml:"http_retries,omitempty" validate:"gte=0,lte=10"`            // default 3
}

// WarehouseConfig defines the warehouse store connection.
type WarehouseConfig struct {
	Type             string `yaml:"type" validate:"required,oneof=postgresql mysql sqlite mongodb"`
	Host             string `yaml:"host,omitempty"`
	Port             int    `yaml:"port,omitempty" validate:"gte=0,lte=65535"`
	Database         string `yaml:"database,omitempty"`
	Schema           string `yaml:"schema,omitempty"` // default data_warehouse
	Username         string `yaml:"username,omitempty"`
	Password         string `yaml:"password,omitempty"`
	SSL              bool   `yaml:"ssl,omitempty"`
	Path             string `yaml:"path,omitempty"`              // sqlite database file
	ConnectionString string `yaml:"connection_string,omitempty"` // overrides the fields above
	Transactions     *bool  `yaml:"transactions,omitempty"`      // mongodb only, default true
}

// LoadConfig controls batching and failure handling.
type LoadConfig struct {
	BatchSize    int    `yaml:"batch_size,omitempty" validate:"gte=0"`                              // default 1000
	OnBatchError string `yaml:"on_batch_error,omitempty" validate:"omitempty,oneof=continue abort"` // default continue
	ReplaceFacts *bool  `yaml:"replace_facts,omitempty"`                                            // default true
}

// ProcessingConfig toggles cleaning steps.
type ProcessingConfig struct {
	SkipImputation  bool `yaml:"skip_imputation,omitempty"`
	SkipOutlierFlag bool `yaml:"skip_outlier_flag,omitempty"`
	KeepDuplicates  bool `yaml:"keep_duplicates,omitempty"`
}

// StagingConfig keeps the raw and processed rows in raw_data and
// processed_data tables, replaced on every load.
type StagingConfig struct {
	Enabled bool `yaml:"enabled,omitempty"`
}

// AWSConfig defines AWS settings for S3 datasets and report upload.
type AWSConfig struct {
	Region       string `yaml:"region,omitempty"`
	Profile      string `yaml:"profile,omitempty"`
	S3Bucket     string `yaml:"s3_bucket,omitempty"`
	ReportPrefix string `yaml:"report_prefix,omitempty"` // default starload/reports/
}

// MetricsConfig selects a metrics backend.
type MetricsConfig struct {
	Backend        string   `yaml:"backend,omitempty" validate:"omitempty,oneof=none prometheus datadog"`
	Job            string   `yaml:"job,omitempty"`
	PushgatewayURL string   `yaml:"pushgateway_url,omitempty" validate:"omitempty,url"`
	StatsdAddr     string   `yaml:"statsd_addr,omitempty" validate:"required_if=Backend datadog"`
	Namespace      string   `yaml:"namespace,omitempty"`
	Tags           []string `yaml:"tags,omitempty"`
}

// LogConfig defines logging settings.
type LogConfig struct {
	Level         string `yaml:"level,omitempty" validate:"omitempty,oneof=debug info warn error"`
	Directory     string `yaml:"directory,omitempty"`      // default ~/.starload/logs/
	RetentionDays int    `yaml:"retention_days,omitempty"` // default 30
}

// ReportConfig controls the JSON load report.
type ReportConfig struct {
	Directory string `yaml:"directory,omitempty"` // default ~/.starload/reports/
	Upload    bool   `yaml:"upload,omitempty"`    // copy to aws.s3_bucket
}

// Load reads, resolves and validates the config file at path.
func Load(path string) (*Config, error) {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}

	if cfg.Version != CurrentVersion {
		return nil, fmt.Errorf("unsupported config version %d (expected %d)", cfg.Version, CurrentVersion)
	}

	if err := cfg.resolveSecrets(); err != nil {
		return nil, fmt.Errorf("resolving secrets: %w", err)
	}

	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a config that loads a local CSV into a SQLite warehouse.
func Default() *Config {
	cfg := &Config{
		Version: CurrentVersion,
		Dataset: DatasetConfig{Location: "./data/ecommerce_data.csv"},
		Warehouse: WarehouseConfig{
			Type: "sqlite",
			Path: "~/.starload/warehouse.db",
		},
	}
	cfg.applyDefaults()
	return cfg
}

// Save writes the config to the given path.
func (c *Config) Save(path string) error {
	if path == "" {
		path = ExpandHome(DefaultPath)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshaling config: %w", err)
	}

	return os.WriteFile(path, data, 0o600)
}

func (c *Config) applyDefaults() {
	if c.Dataset.Encoding == "" {
		c.Dataset.Encoding = "latin1"
	}
	if c.Dataset.HTTPRetries == 0 {
		c.Dataset.HTTPRetries = 3
	}
	if c.Warehouse.Schema == "" {
		c.Warehouse.Schema = "data_warehouse"
	}
	if c.Warehouse.Port == 0 {
		switch c.Warehouse.Type {
		case "postgresql":
			c.Warehouse.Port = 5432
		case "mysql":
			c.Warehouse.Port = 3306
		}
	}
	if c.Load.BatchSize == 0 {
		c.Load.BatchSize = 1000
	}
	if c.Load.OnBatchError == "" {
		c.Load.OnBatchError = "continue"
	}
	if c.Metrics.Backend == "" {
		c.Metrics.Backend = "none"
	}
	if c.Metrics.Job == "" {
		c.Metrics.Job = "starload"
	}
	if c.AWS.ReportPrefix == "" {
		c.AWS.ReportPrefix = "starload/reports/"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Directory == "" {
		c.Logging.Directory = ExpandHome("~/.starload/logs/")
	}
	if c.Logging.RetentionDays == 0 {
		c.Logging.RetentionDays = 30
	}
	if c.Report.Directory == "" {
		c.Report.Directory = ExpandHome("~/.starload/reports/")
	}
}

// ReplaceFactsEnabled reports whether a load clears the fact table first.
func (l LoadConfig) ReplaceFactsEnabled() bool {
	return l.ReplaceFacts == nil || *l.ReplaceFacts
}

// TransactionsEnabled reports whether MongoDB units of work use transactions.
func (w WarehouseConfig) TransactionsEnabled() bool {
	return w.Transactions == nil || *w.Transactions
}

var secretPattern = regexp.MustCompile(`\$\{(ENV|VAULT|AWS_SM):([^}]+)\}`)

func (c *Config) resolveSecrets() error {
	var err error
	c.Warehouse.Password, err = ResolveValue(c.Warehouse.Password)
	if err != nil {
		return fmt.Errorf("warehouse password: %w", err)
	}
	c.Warehouse.ConnectionString, err = ResolveValue(c.Warehouse.ConnectionString)
	if err != nil {
		return fmt.Errorf("warehouse connection string: %w", err)
	}
	return nil
}

// ResolveValue replaces a ${ENV:name}, ${VAULT:path#key} or ${AWS_SM:name}
// reference inside val with the secret it points to. Text around the
// reference is kept.
func ResolveValue(val string) (string, error) {
	loc := secretPattern.FindStringSubmatchIndex(val)
	if loc == nil {
		return val, nil
	}

	provider := val[loc[2]:loc[3]]
	ref := val[loc[4]:loc[5]]

	var secret string
	var err error
	switch provider {
	case "ENV":
		secret = os.Getenv(ref)
		if secret == "" {
			return "", fmt.Errorf("environment variable %s not set", ref)
		}
	case "VAULT":
		secret, err = resolveVault(ref)
	case "AWS_SM":
		secret, err = resolveAWSSecretsManager(ref)
	default:
		err = fmt.Errorf("unknown secrets provider: %s", provider)
	}
	if err != nil {
		return "", err
	}
	return val[:loc[0]] + secret + val[loc[1]:], nil
}

// ExpandHome expands ~ to the user's home directory.
func ExpandHome(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
