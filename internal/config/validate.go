package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/go-sql-driver/mysql"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field constraints and the per-type connection requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	w := c.Warehouse
	switch w.Type {
	case "sqlite":
		if w.Path == "" && w.ConnectionString == "" {
			return fmt.Errorf("invalid config: warehouse.path is required for sqlite")
		}
	case "mongodb":
		if w.ConnectionString == "" {
			return fmt.Errorf("invalid config: warehouse.connection_string is required for mongodb")
		}
	default:
		if w.ConnectionString == "" && (w.Host == "" || w.Database == "") {
			return fmt.Errorf("invalid config: warehouse.host and warehouse.database are required for %s", w.Type)
		}
	}

	if c.Metrics.Backend == "prometheus" && c.Metrics.PushgatewayURL == "" {
		return fmt.Errorf("invalid config: metrics.pushgateway_url is required for prometheus")
	}
	if c.Report.Upload && c.AWS.S3Bucket == "" {
		return fmt.Errorf("invalid config: report.upload requires aws.s3_bucket")
	}
	return nil
}

// DSN returns the driver connection string for the warehouse.
func (w WarehouseConfig) DSN() string {
	if w.ConnectionString != "" {
		return w.ConnectionString
	}

	switch w.Type {
	case "postgresql":
		sslMode := "disable"
		if w.SSL {
			sslMode = "require"
		}
		u := url.URL{
			Scheme:   "postgres",
			User:     url.UserPassword(w.Username, w.Password),
			Host:     net.JoinHostPort(w.Host, strconv.Itoa(w.Port)),
			Path:     "/" + w.Database,
			RawQuery: "sslmode=" + sslMode,
		}
		return u.String()
	case "mysql":
		mc := mysql.NewConfig()
		mc.User = w.Username
		mc.Passwd = w.Password
		mc.Net = "tcp"
		mc.Addr = net.JoinHostPort(w.Host, strconv.Itoa(w.Port))
		mc.DBName = w.Database
		mc.ParseTime = false
		if w.SSL {
			mc.TLSConfig = "true"
		}
		return mc.FormatDSN()
	case "sqlite":
		return ExpandHome(w.Path)
	}
	return ""
}

// Redacted returns a copy of the config with secrets masked, for display.
func (c *Config) Redacted() *Config {
	out := *c
	if out.Warehouse.Password != "" {
		out.Warehouse.Password = "********"
	}
	if out.Warehouse.ConnectionString != "" {
		out.Warehouse.ConnectionString = redactURL(out.Warehouse.ConnectionString)
	}
	return &out
}

func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.User == nil {
		return raw
	}
	if _, ok := u.User.Password(); ok {
		u.User = url.UserPassword(u.User.Username(), "xxxxx")
	}
	return u.String()
}
