package storage

import (
	"errors"
	"fmt"

	"github.com/kbukum/pipekit/resilience"
)

// Provider constants for supported storage backends.
const (
	ProviderLocal  = "local"
	ProviderS3     = "s3"
	ProviderAzBlob = "azblob"
	ProviderMemory = "memory"
)

// Default configuration values.
const (
	DefaultProvider = ProviderLocal
	DefaultBasePath = "/tmp/pipekit"
	DefaultRegion   = "us-east-1"

	// Remote backends retry and trip a breaker unless configured otherwise.
	DefaultRemoteAttempts    = 3
	DefaultRemoteMaxFailures = 5
)

// Config holds storage configuration.
type Config struct {
	// Provider selects the storage backend: "local", "s3", "azblob" or "memory".
	Provider string `mapstructure:"provider" json:"provider" yaml:"provider"`

	// BasePath is the root directory for local storage.
	BasePath string `mapstructure:"base_path" json:"base_path" yaml:"base_path"`

	// Bucket is the S3 bucket name.
	Bucket string `mapstructure:"bucket" json:"bucket" yaml:"bucket"`

	// Region is the AWS region for S3.
	Region string `mapstructure:"region" json:"region" yaml:"region"`

	// Endpoint is a custom S3-compatible endpoint (e.g. MinIO).
	Endpoint string `mapstructure:"endpoint" json:"endpoint" yaml:"endpoint"`

	// AccessKey is the AWS access key ID.
	AccessKey string `mapstructure:"access_key" json:"access_key" yaml:"access_key"`

	// SecretKey is the AWS secret access key.
	SecretKey string `mapstructure:"secret_key" json:"-" yaml:"secret_key"`

	// ForcePathStyle addresses buckets by path rather than by virtual host.
	ForcePathStyle bool `mapstructure:"force_path_style" json:"force_path_style" yaml:"force_path_style"`

	// Container is the Azure blob container.
	Container string `mapstructure:"container" json:"container" yaml:"container"`

	// ConnectionString is the Azure storage account connection string.
	ConnectionString string `mapstructure:"connection_string" json:"-" yaml:"connection_string"`

	// Prefix is prepended to every object path on remote backends.
	Prefix string `mapstructure:"prefix" json:"prefix" yaml:"prefix"`

	// Retry retries transient backend failures.
	Retry resilience.RetryConfig `mapstructure:"retry" json:"retry" yaml:"retry"`

	// Breaker fails fast once the backend keeps failing.
	Breaker resilience.BreakerConfig `mapstructure:"breaker" json:"breaker" yaml:"breaker"`
}

// ApplyDefaults fills in zero-valued fields with sensible defaults.
func (c *Config) ApplyDefaults() {
	if c.Provider == "" {
		c.Provider = DefaultProvider
	}
	if c.Provider == ProviderLocal && c.BasePath == "" {
		c.BasePath = DefaultBasePath
	}
	if c.Provider == ProviderS3 && c.Region == "" {
		c.Region = DefaultRegion
	}
	if c.remote() {
		if c.Retry.MaxAttempts == 0 {
			c.Retry.MaxAttempts = DefaultRemoteAttempts
		}
		if c.Breaker.MaxFailures == 0 {
			c.Breaker.MaxFailures = DefaultRemoteMaxFailures
		}
	}
	c.Retry.ApplyDefaults()
	c.Breaker.ApplyDefaults()
}

func (c *Config) remote() bool {
	return c.Provider == ProviderS3 || c.Provider == ProviderAzBlob
}

// Validate checks that the configuration is valid for the selected provider.
func (c *Config) Validate() error {
	if err := c.Retry.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	if err := c.Breaker.Validate(); err != nil {
		return fmt.Errorf("storage: %w", err)
	}
	switch c.Provider {
	case ProviderLocal:
		if c.BasePath == "" {
			return errors.New("storage: base_path is required for local provider")
		}
	case ProviderS3:
		var errs []error
		if c.Bucket == "" {
			errs = append(errs, errors.New("storage: bucket is required for s3 provider"))
		}
		if c.Region == "" {
			errs = append(errs, errors.New("storage: region is required for s3 provider"))
		}
		if len(errs) > 0 {
			return fmt.Errorf("storage: invalid s3 config: %w", errors.Join(errs...))
		}
	case ProviderAzBlob:
		var errs []error
		if c.Container == "" {
			errs = append(errs, errors.New("storage: container is required for azblob provider"))
		}
		if c.ConnectionString == "" {
			errs = append(errs, errors.New("storage: connection_string is required for azblob provider"))
		}
		if len(errs) > 0 {
			return fmt.Errorf("storage: invalid azblob config: %w", errors.Join(errs...))
		}
	case ProviderMemory:
	default:
		return fmt.Errorf("storage: unsupported provider %q", c.Provider)
	}
	return nil
}

// Key joins the configured prefix and path into an object key.
func (c *Config) Key(path string) string {
	if c.Prefix == "" {
		return path
	}
	return c.Prefix + "/" + path
}
