// Package passthrough implements the pass-through storage backend
// type: an open key/value option map handed to the charm as-is, with no
// mandatory credential fields. It exists for charms whose configuration
// surface is managed outside the engine.
package passthrough

import (
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/overcast-cloud/backendctl/pkg/engine"
	"github.com/overcast-cloud/backendctl/pkg/steps"
)

// TypeTag is the registry tag for this backend type.
const TypeTag = "passthrough"

const (
	charmName    = "cinder-volume"
	charmChannel = "latest/edge"
	charmBase    = "ubuntu@24.04"
	endpoint     = "cinder-volume"
)

// reservedKeys are charm options the engine manages itself; a
// pass-through config must not collide with them.
var reservedKeys = map[string]bool{
	"volume-backend-name": true,
}

// Config is the pass-through configuration: an open option map.
type Config struct {
	// Options are charm options passed through verbatim.
	Options map[string]string `yaml:"options" json:"options"`
}

// Validate implements engine.BackendConfig. The only schema rule is
// that options must not collide with engine-managed keys.
func (c *Config) Validate() error {
	var bad []string
	for k := range c.Options {
		if reservedKeys[k] || strings.HasSuffix(k, "-secret") {
			bad = append(bad, k)
		}
	}
	if len(bad) > 0 {
		sort.Strings(bad)
		return engine.NewValidationError(
			fmt.Sprintf("options collide with engine-managed keys: %s", strings.Join(bad, ", ")), nil)
	}
	return nil
}

// CharmOptions implements engine.BackendConfig.
func (c *Config) CharmOptions(name string) map[string]string {
	opts := make(map[string]string, len(c.Options)+1)
	for k, v := range c.Options {
		opts[k] = v
	}
	opts["volume-backend-name"] = name
	return opts
}

// SecretValues implements engine.BackendConfig. Pass-through configs
// carry no credentials.
func (c *Config) SecretValues(string) map[string]map[string]string {
	return nil
}

// Persistable implements engine.BackendConfig.
func (c *Config) Persistable() (string, error) {
	blob, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("failed to render configuration: %w", err)
	}
	return string(blob), nil
}

// Backend is the pass-through backend plugin.
type Backend struct{}

// New creates the pass-through backend plugin.
func New() *Backend { return &Backend{} }

// Type implements engine.Backend.
func (b *Backend) Type() string { return TypeTag }

// DisplayName implements engine.Backend.
func (b *Backend) DisplayName() string { return "Pass-through Storage" }

// Charm implements engine.Backend.
func (b *Backend) Charm() engine.CharmSpec {
	return engine.CharmSpec{
		Name:    charmName,
		Channel: charmChannel,
		Base:    charmBase,
	}
}

// Endpoint implements engine.Backend.
func (b *Backend) Endpoint() string { return endpoint }

// NewConfig implements engine.Backend.
func (b *Backend) NewConfig() engine.BackendConfig {
	return &Config{Options: map[string]string{}}
}

// DeploySteps implements engine.Backend.
func (b *Backend) DeploySteps(wait bool) []engine.Step { return steps.DefaultDeploySteps(wait) }

// RemoveSteps implements engine.Backend.
func (b *Backend) RemoveSteps() []engine.Step { return steps.DefaultRemoveSteps() }
