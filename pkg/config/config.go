// Package config loads the backendctl configuration file: the target
// model, the principal volume application, the registration store
// location, the readiness wait budget, and telemetry settings.
package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/overcast-cloud/backendctl/pkg/telemetry"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// WaitConfig bounds the readiness wait of add operations.
type WaitConfig struct {
	// Attempts is the maximum number of status polls.
	Attempts int `yaml:"attempts" validate:"min=1"`

	// Interval is the delay between polls.
	Interval time.Duration `yaml:"interval" validate:"min=1s"`
}

// Config is the backendctl configuration.
type Config struct {
	// Model is the model UUID or name backends are deployed into.
	Model string `yaml:"model" validate:"required"`

	// Principal is the principal volume application.
	Principal string `yaml:"principal" validate:"required"`

	// PrincipalEndpoint is the relation endpoint on the principal side.
	PrincipalEndpoint string `yaml:"principal_endpoint" validate:"required"`

	// StorePath is the registration database path. The value ":memory:"
	// selects an ephemeral store.
	StorePath string `yaml:"store_path" validate:"required"`

	// Wait bounds the readiness wait.
	Wait WaitConfig `yaml:"wait"`

	// Telemetry configures logging, metrics, and tracing.
	Telemetry telemetry.Config `yaml:"telemetry"`
}

// Default returns the configuration defaults. The wait budget matches
// the charm deployment timeout of the principal volume service.
func Default() *Config {
	return &Config{
		Principal:         "cinder-volume",
		PrincipalEndpoint: "cinder-volume",
		StorePath:         "backends.db",
		Wait: WaitConfig{
			Attempts: 240,
			Interval: 5 * time.Second,
		},
		Telemetry: telemetry.DefaultConfig("backendctl", "dev"),
	}
}

// Load reads a configuration file over the defaults. Unknown keys are
// rejected.
func Load(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			return fmt.Errorf("invalid configuration: field %s failed %s validation", verrs[0].Field(), verrs[0].Tag())
		}
		return fmt.Errorf("invalid configuration: %w", err)
	}
	return c.Telemetry.Validate()
}
