// Package config loads the hour-bank service settings from defaults, an
// optional .env file and the environment, in that order.
package config

import (
	"errors"
	"strings"
	"time"
)

type Config struct {
	Application ApplicationConfig
	Logging     LoggingConfig
	Server      ServerConfig
	Database    DatabaseConfig
	Scheduler   SchedulerConfig
	Report      ReportConfig
	CORS        CORSConfig
}

type ApplicationConfig struct {
	Env  string
	Name string
}

// IsProduction reports whether logs should be JSON.
func (a ApplicationConfig) IsProduction() bool {
	return a.Env == "production"
}

type LoggingConfig struct {
	Level string
}

type ServerConfig struct {
	Port            int
	ShutdownTimeout time.Duration
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
}

type DatabaseConfig struct {
	Path string // SQLite file, or ":memory:"
}

// SchedulerConfig controls the periodic reconciliation sweep.
type SchedulerConfig struct {
	Enabled  bool
	Interval time.Duration
}

type ReportConfig struct {
	Workers int // Concurrent balance computations
}

type CORSConfig struct {
	AllowedOrigins []string
}

func (c *Config) validate() error {
	var validationErrors []string

	if c.Server.Port <= 0 {
		validationErrors = append(validationErrors, "SERVER_PORT must be greater than 0")
	}
	if c.Server.ShutdownTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_SHUTDOWN_TIMEOUT must be greater than 0")
	}
	if c.Server.ReadTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_READ_TIMEOUT must be greater than 0")
	}
	if c.Server.WriteTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_WRITE_TIMEOUT must be greater than 0")
	}
	if c.Server.IdleTimeout <= 0 {
		validationErrors = append(validationErrors, "SERVER_IDLE_TIMEOUT must be greater than 0")
	}

	if c.Database.Path == "" {
		validationErrors = append(validationErrors, "DB_PATH is required")
	}

	if c.Scheduler.Enabled && c.Scheduler.Interval < time.Minute {
		validationErrors = append(validationErrors, "SCHEDULER_INTERVAL must be at least 1m")
	}

	if c.Report.Workers <= 0 {
		validationErrors = append(validationErrors, "REPORT_WORKERS must be greater than 0")
	}

	switch strings.ToLower(c.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		validationErrors = append(validationErrors, "LOG_LEVEL must be one of debug, info, warn, error")
	}

	if len(validationErrors) > 0 {
		return errors.New(strings.Join(validationErrors, ", "))
	}
	return nil
}
