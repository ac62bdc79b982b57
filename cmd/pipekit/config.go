package main

import (
	"fmt"

	"github.com/kbukum/pipekit/config"
	"github.com/kbukum/pipekit/observability"
	"github.com/kbukum/pipekit/server"
	"github.com/kbukum/pipekit/session"
	"github.com/kbukum/pipekit/storage"
)

const serviceName = "pipekit"

// Config is the pipekit service configuration.
type Config struct {
	config.ServiceConfig `yaml:",inline" mapstructure:",squash"`

	Session       session.Config       `yaml:"session" mapstructure:"session"`
	Storage       storage.Config       `yaml:"storage" mapstructure:"storage"`
	Server        server.Config        `yaml:"server" mapstructure:"server"`
	Observability observability.Config `yaml:"observability" mapstructure:"observability"`
	Pipelines     PipelinesConfig      `yaml:"pipelines" mapstructure:"pipelines"`
}

// PipelinesConfig selects the YAML pipeline definitions served next to the
// built-in pipelines.
type PipelinesConfig struct {
	// Dirs are searched in order for <name>.yaml or <name>.yml.
	Dirs []string `yaml:"dirs" mapstructure:"dirs"`
	// Load names the definitions to register.
	Load []string `yaml:"load" mapstructure:"load"`
}

// ApplyDefaults applies defaults to every section.
func (c *Config) ApplyDefaults() {
	if c.Name == "" {
		c.Name = serviceName
	}
	c.ServiceConfig.ApplyDefaults()
	c.Session.ApplyDefaults()
	c.Storage.ApplyDefaults()
	c.Server.ApplyDefaults()
	c.Observability.ApplyDefaults()
	if len(c.Pipelines.Dirs) == 0 {
		c.Pipelines.Dirs = []string{"./pipelines"}
	}
}

// Validate validates every section.
func (c *Config) Validate() error {
	if err := c.ServiceConfig.Validate(); err != nil {
		return err
	}
	sections := []struct {
		name     string
		validate func() error
	}{
		{"session", c.Session.Validate},
		{"storage", c.Storage.Validate},
		{"server", c.Server.Validate},
		{"observability", c.Observability.Validate},
	}
	for _, s := range sections {
		if err := s.validate(); err != nil {
			return fmt.Errorf("config.%s: %w", s.name, err)
		}
	}
	return nil
}
