package server

import (
	"fmt"
	"time"

	"github.com/kbukum/pipekit/server/middleware"
)

// Config holds HTTP server configuration.
type Config struct {
	Host         string                `yaml:"host" mapstructure:"host"`
	Port         int                   `yaml:"port" mapstructure:"port"`
	ReadTimeout  int                   `yaml:"read_timeout" mapstructure:"read_timeout"`   // seconds
	WriteTimeout int                   `yaml:"write_timeout" mapstructure:"write_timeout"` // seconds
	IdleTimeout  int                   `yaml:"idle_timeout" mapstructure:"idle_timeout"`   // seconds
	MaxBodySize  string                `yaml:"max_body_size" mapstructure:"max_body_size"` // e.g. "10MB"
	CORS         middleware.CORSConfig `yaml:"cors" mapstructure:"cors"`

	// RunTimeout bounds a single session run, in seconds.
	RunTimeout int `yaml:"run_timeout" mapstructure:"run_timeout"`
	// RunsPerMinute limits session starts per client; 0 disables the limit.
	RunsPerMinute int `yaml:"runs_per_minute" mapstructure:"runs_per_minute"`
	// MaxSessions caps how many sessions are kept for inspection.
	MaxSessions int `yaml:"max_sessions" mapstructure:"max_sessions"`
}

// ApplyDefaults sets sensible default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Port == 0 {
		c.Port = 8080
	}
	if c.ReadTimeout == 0 {
		c.ReadTimeout = 15
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = 60
	}
	if c.IdleTimeout == 0 {
		c.IdleTimeout = 60
	}
	if c.MaxBodySize == "" {
		c.MaxBodySize = "10MB"
	}
	if c.RunTimeout == 0 {
		c.RunTimeout = 300
	}
	if c.MaxSessions == 0 {
		c.MaxSessions = 1000
	}
	if len(c.CORS.AllowedOrigins) == 0 {
		c.CORS.AllowedOrigins = []string{"*"}
	}
	if len(c.CORS.AllowedMethods) == 0 {
		c.CORS.AllowedMethods = []string{"GET", "POST", "OPTIONS"}
	}
	if len(c.CORS.AllowedHeaders) == 0 {
		c.CORS.AllowedHeaders = []string{"Origin", "Content-Type", "Accept", middleware.HeaderRequestID}
	}
	if c.CORS.MaxAge == 0 {
		c.CORS.MaxAge = 600
	}
}

// Validate checks the configuration for invalid values.
func (c *Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return fmt.Errorf("server.port must be between 0 and 65535 (got: %d)", c.Port)
	}
	if c.ReadTimeout < 0 {
		return fmt.Errorf("server.read_timeout must be non-negative (got: %d)", c.ReadTimeout)
	}
	if c.WriteTimeout < 0 {
		return fmt.Errorf("server.write_timeout must be non-negative (got: %d)", c.WriteTimeout)
	}
	if c.IdleTimeout < 0 {
		return fmt.Errorf("server.idle_timeout must be non-negative (got: %d)", c.IdleTimeout)
	}
	if c.RunTimeout < 0 {
		return fmt.Errorf("server.run_timeout must be non-negative (got: %d)", c.RunTimeout)
	}
	if c.RunsPerMinute < 0 {
		return fmt.Errorf("server.runs_per_minute must be non-negative (got: %d)", c.RunsPerMinute)
	}
	if c.MaxSessions < 0 {
		return fmt.Errorf("server.max_sessions must be non-negative (got: %d)", c.MaxSessions)
	}
	return nil
}

// RunTimeoutDuration returns RunTimeout as a duration; zero means unbounded.
func (c *Config) RunTimeoutDuration() time.Duration {
	return time.Duration(c.RunTimeout) * time.Second
}
