package engine

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// CharmSpec identifies the deployable unit a backend type ships as.
type CharmSpec struct {
	// Name is the charm name.
	Name string `json:"name"`

	// Channel is the charm channel.
	Channel string `json:"channel"`

	// Revision pins a charm revision; zero means latest in channel.
	Revision int `json:"revision,omitempty"`

	// Base is the operating system base.
	Base string `json:"base,omitempty"`
}

// BackendConfig is the typed configuration of a backend instance. Each
// backend type supplies its own concrete schema; unknown fields are
// rejected at decode time and the config is validated once at add time.
type BackendConfig interface {
	// Validate checks the configuration against its schema. It must not
	// touch the deployment helper or the registration store.
	Validate() error

	// CharmOptions resolves the configuration to charm options for the
	// named backend instance. Sensitive fields are emitted as indirect
	// secret references derived from the instance name, never as
	// literals.
	CharmOptions(name string) map[string]string

	// SecretValues returns the credential material keyed by credential
	// group, for delivery outside the charm config path. Each group is
	// published as one secret named SecretName(name, group). Empty when
	// the config carries no credentials.
	SecretValues(name string) map[string]map[string]string

	// Persistable renders the configuration as an opaque blob for the
	// registration record, with credential literals masked.
	Persistable() (string, error)
}

// Backend is the plugin contract every backend type implements. A
// backend supplies its configuration schema and the ordered step lists
// that drive it through deployment and removal.
type Backend interface {
	// Type is the backend type tag used for registry lookup.
	Type() string

	// DisplayName is the human-readable backend name.
	DisplayName() string

	// Charm identifies the deployable unit for this backend type.
	Charm() CharmSpec

	// Endpoint is the relation endpoint that binds the backend unit to
	// the principal volume application.
	Endpoint() string

	// NewConfig returns a zero value of the backend's configuration
	// schema, ready for strict decoding.
	NewConfig() BackendConfig

	// DeploySteps returns the ordered add-path steps. When wait is true
	// the list includes the readiness wait before persistence; when
	// false, persistence follows integration directly.
	DeploySteps(wait bool) []Step

	// RemoveSteps returns the ordered remove-path steps.
	RemoveSteps() []Step
}

// DecodeConfig strictly decodes raw YAML or JSON configuration into the
// backend's schema. Any field not declared by the schema is rejected.
func DecodeConfig(raw []byte, into BackendConfig) error {
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(into); err != nil {
		return NewValidationError("configuration does not match the backend schema", err)
	}
	return nil
}

// MaskSecret is the placeholder stored in place of credential literals
// in persisted configuration blobs.
const MaskSecret = "********"

// SecretName derives the name a credential group of a backend instance
// is published under, e.g. "array-1-san-credentials". The name must be
// valid for the deployment helper, so it never carries the reference
// prefix.
func SecretName(backendName, group string) string {
	return fmt.Sprintf("%s-%s", backendName, group)
}

// SecretURI is the indirect reference form of a secret name,
// e.g. "secret:array-1-san-credentials".
func SecretURI(secretName string) string {
	return "secret:" + secretName
}

// SecretRef derives the indirect secret reference for a credential
// group of a backend instance, e.g. "secret:array-1-san-credentials".
func SecretRef(backendName, group string) string {
	return SecretURI(SecretName(backendName, group))
}
