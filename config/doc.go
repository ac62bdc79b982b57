// Package config loads pipekit configuration from a YAML file, an optional
// .env file and environment variables using Viper and godotenv.
//
// # Usage
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Session session.Config `yaml:"session" mapstructure:"session"`
//	}
//	var cfg Config
//	err := config.LoadConfig("pipekit", &cfg, config.WithEnvPrefix("PIPEKIT"))
//
// With a prefix, PIPEKIT_SESSION_MAX_PARALLEL=4 sets session.max_parallel.
package config
